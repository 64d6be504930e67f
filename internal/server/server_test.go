package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/seometer/internal/authorization"
	"github.com/smallbiznis/seometer/internal/config"
	"github.com/smallbiznis/seometer/internal/dataforseo"
	"github.com/smallbiznis/seometer/internal/observability/metrics"
	"github.com/smallbiznis/seometer/internal/plan"
	projectdomain "github.com/smallbiznis/seometer/internal/project/domain"
	quotadomain "github.com/smallbiznis/seometer/internal/quota/domain"
	"github.com/smallbiznis/seometer/internal/ratelimit"
	researchdomain "github.com/smallbiznis/seometer/internal/research/domain"
	subscriptiondomain "github.com/smallbiznis/seometer/internal/subscription/domain"
	usagedomain "github.com/smallbiznis/seometer/internal/usage/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testSecret = "test-secret"

type guardMock struct{ mock.Mock }

func (m *guardMock) CheckLimit(ctx context.Context, userID string, category plan.Category, requested int64) (quotadomain.CheckResult, error) {
	args := m.Called(ctx, userID, category, requested)
	return args.Get(0).(quotadomain.CheckResult), args.Error(1)
}

func (m *guardMock) CheckAndCommit(ctx context.Context, userID string, category plan.Category, requested int64) (quotadomain.CheckResult, error) {
	args := m.Called(ctx, userID, category, requested)
	return args.Get(0).(quotadomain.CheckResult), args.Error(1)
}

func (m *guardMock) Overview(ctx context.Context, userID string) (quotadomain.Overview, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(quotadomain.Overview), args.Error(1)
}

type ledgerMock struct{ mock.Mock }

func (m *ledgerMock) GetOrCreateMonthlyRecord(ctx context.Context, userID string) (*usagedomain.UsageTracking, error) {
	args := m.Called(ctx, userID)
	record, _ := args.Get(0).(*usagedomain.UsageTracking)
	return record, args.Error(1)
}

func (m *ledgerMock) IncrementCategory(ctx context.Context, userID string, category plan.Category, amount int64) error {
	return m.Called(ctx, userID, category, amount).Error(0)
}

func (m *ledgerMock) ResetCurrentMonth(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

func (m *ledgerMock) CurrentPeriod() usagedomain.Period {
	return usagedomain.Period{}
}

type researchMock struct {
	researchdomain.Service
	mock.Mock
}

func (m *researchMock) KeywordIdeas(ctx context.Context, req researchdomain.KeywordIdeasRequest) (researchdomain.Result, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(researchdomain.Result), args.Error(1)
}

func (m *researchMock) ExportKeywords(ctx context.Context, req researchdomain.ExportRequest, w io.Writer) error {
	args := m.Called(ctx, req, w)
	if err := args.Error(0); err != nil {
		return err
	}
	_, err := io.WriteString(w, "keyword\nseo\n")
	return err
}

type subscriptionFake struct {
	subscriptiondomain.Service
	upserts []subscriptiondomain.UpsertRequest
}

func (f *subscriptionFake) Upsert(ctx context.Context, req subscriptiondomain.UpsertRequest) (subscriptiondomain.Subscription, error) {
	if _, ok := plan.Lookup(req.PlanID); !ok {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidPlan
	}
	f.upserts = append(f.upserts, req)
	return subscriptiondomain.Subscription{UserID: req.UserID, PlanID: req.PlanID}, nil
}

type projectFake struct {
	projectdomain.Service
}

type fixture struct {
	engine   *gin.Engine
	guard    *guardMock
	ledger   *ledgerMock
	research *researchMock
	subs     *subscriptionFake
}

func setupServer(t *testing.T) fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	enforcer, err := authorization.NewEnforcer(db)
	require.NoError(t, err)

	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())

	f := fixture{
		engine:   engine,
		guard:    &guardMock{},
		ledger:   &ledgerMock{},
		research: &researchMock{},
		subs:     &subscriptionFake{},
	}
	NewServer(ServerParams{
		Gin:             engine,
		Cfg:             config.Config{AuthJWTSecret: testSecret, AuthJWTIssuer: "seometer-test"},
		Log:             zap.NewNop(),
		Guard:           f.guard,
		Ledger:          f.ledger,
		SubscriptionSvc: f.subs,
		ProjectSvc:      projectFake{},
		ResearchSvc:     f.research,
		AuthzSvc:        authorization.NewService(authorization.Params{Log: zap.NewNop(), Enforcer: enforcer}),
	})
	return f
}

func token(t *testing.T, userID, role string) string {
	t.Helper()
	raw, err := IssueToken(testSecret, "seometer-test", userID, role, time.Hour, time.Now())
	require.NoError(t, err)
	return raw
}

func (f fixture) do(method, path, bearer, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestAPIRequiresBearer(t *testing.T) {
	f := setupServer(t)

	rec := f.do(http.MethodGet, "/api/usage", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", decodeError(t, rec).Type)

	rec = f.do(http.MethodGet, "/api/usage", "not-a-jwt", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	expired, err := IssueToken(testSecret, "seometer-test", "user-1", "", -time.Minute, time.Now())
	require.NoError(t, err)
	rec = f.do(http.MethodGet, "/api/usage", expired, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	wrongIssuer, err := IssueToken(testSecret, "someone-else", "user-1", "", time.Hour, time.Now())
	require.NoError(t, err)
	rec = f.do(http.MethodGet, "/api/usage", wrongIssuer, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetUsage(t *testing.T) {
	f := setupServer(t)
	f.guard.On("Overview", mock.Anything, "user-1").Return(quotadomain.Overview{UserID: "user-1", Plan: plan.Pro}, nil).Once()

	rec := f.do(http.MethodGet, "/api/usage", token(t, "user-1", ""), "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data quotadomain.Overview `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, plan.Pro, resp.Data.Plan)
	f.guard.AssertExpectations(t)
}

func TestResearchDeniedReturnsPaymentRequired(t *testing.T) {
	f := setupServer(t)
	denied := &quotadomain.QuotaExceededError{Result: quotadomain.CheckResult{
		Category:     plan.CategoryKeywordSearches,
		Plan:         plan.Free,
		CurrentUsage: 10,
		Limit:        10,
		Remaining:    0,
		Message:      plan.LimitMessage(plan.CategoryKeywordSearches),
	}}
	f.research.On("KeywordIdeas", mock.Anything, mock.MatchedBy(func(req researchdomain.KeywordIdeasRequest) bool {
		return req.UserID == "user-1"
	})).Return(researchdomain.Result{}, denied).Once()

	rec := f.do(http.MethodPost, "/api/research/keywords", token(t, "user-1", ""), `{"keywords":["seo"]}`)
	require.Equal(t, http.StatusPaymentRequired, rec.Code)

	payload := decodeError(t, rec)
	assert.Equal(t, "quota_exceeded", payload.Type)
	assert.Contains(t, payload.Message, "recherches de mots-clés")
	require.NotNil(t, payload.Remaining)
	assert.Equal(t, int64(0), *payload.Remaining)
	assert.Equal(t, int64(10), *payload.Limit)
}

func TestResearchRejectsMalformedBody(t *testing.T) {
	f := setupServer(t)
	rec := f.do(http.MethodPost, "/api/research/keywords", token(t, "user-1", ""), `{"keywords":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	f.research.AssertNotCalled(t, "KeywordIdeas", mock.Anything, mock.Anything)
}

func TestResearchRateLimitedSetsRetryAfter(t *testing.T) {
	f := setupServer(t)
	f.research.On("KeywordIdeas", mock.Anything, mock.Anything).
		Return(researchdomain.Result{}, &ratelimit.RateLimitedError{Key: "k", RetryAfter: 1500 * time.Millisecond}).Once()

	rec := f.do(http.MethodPost, "/api/research/keywords", token(t, "user-1", ""), `{"keywords":["seo"]}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
	assert.Equal(t, "rate_limited", decodeError(t, rec).Type)
}

func TestExportReturnsCSV(t *testing.T) {
	f := setupServer(t)
	f.research.On("ExportKeywords", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	rec := f.do(http.MethodPost, "/api/research/exports", token(t, "user-1", ""), `{"rows":[{"keyword":"seo"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "keyword\nseo\n", rec.Body.String())
}

func TestAdminRoutesRequireRole(t *testing.T) {
	f := setupServer(t)

	rec := f.do(http.MethodDelete, "/admin/users/user-9/usage", token(t, "user-1", ""), "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(http.MethodDelete, "/admin/users/user-9/usage", token(t, "user-2", authorization.RoleSupport), "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	f.ledger.AssertNotCalled(t, "ResetCurrentMonth", mock.Anything, mock.Anything)

	f.ledger.On("ResetCurrentMonth", mock.Anything, "user-9").Return(nil).Once()
	rec = f.do(http.MethodDelete, "/admin/users/user-9/usage", token(t, "admin-1", authorization.RoleAdmin), "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	f.ledger.AssertExpectations(t)
}

func TestAdminUpsertSubscription(t *testing.T) {
	f := setupServer(t)
	admin := token(t, "admin-1", authorization.RoleAdmin)

	rec := f.do(http.MethodPut, "/admin/users/user-9/subscription", admin, `{"plan_id":"PRO"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, f.subs.upserts, 1)
	assert.Equal(t, "user-9", f.subs.upserts[0].UserID)

	rec = f.do(http.MethodPut, "/admin/users/user-9/subscription", admin, `{"plan_id":"ENTERPRISE"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_plan", decodeError(t, rec).Errors[0].Code)
}

func TestUnknownRoute(t *testing.T) {
	f := setupServer(t)
	rec := f.do(http.MethodGet, "/nope", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMapError(t *testing.T) {
	cases := []struct {
		err    error
		status int
		kind   string
	}{
		{dataforseo.ErrMissingCredentials, http.StatusInternalServerError, "configuration_error"},
		{&dataforseo.VendorError{Code: 40501, Message: "Invalid Field"}, http.StatusBadGateway, "vendor_rejected"},
		{&dataforseo.TransportError{StatusCode: http.StatusServiceUnavailable}, http.StatusBadGateway, "vendor_unavailable"},
		{fmt.Errorf("wrapped: %w", &dataforseo.TransportError{Err: io.ErrUnexpectedEOF}), http.StatusBadGateway, "vendor_unavailable"},
		{quotadomain.ErrQuotaExceeded, http.StatusPaymentRequired, "quota_exceeded"},
		{ratelimit.ErrVendorRateLimited, http.StatusTooManyRequests, "rate_limited"},
		{fmt.Errorf("quota commit k: %w", metrics.ErrLockContended), http.StatusConflict, "conflict"},
		{projectdomain.ErrDuplicateProject, http.StatusConflict, "conflict"},
		{projectdomain.ErrProjectNotFound, http.StatusNotFound, "not_found"},
		{authorization.ErrForbidden, http.StatusForbidden, "forbidden"},
		{researchdomain.ErrInvalidTarget, http.StatusBadRequest, "validation_error"},
		{quotadomain.ErrInvalidIncrement, http.StatusBadRequest, "validation_error"},
		{io.EOF, http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		status, payload := mapError(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
		assert.Equal(t, tc.kind, payload.Type, tc.err.Error())
	}
}

func TestMapErrorVendorMessagePassesThrough(t *testing.T) {
	_, payload := mapError(&dataforseo.VendorError{Code: 40200, Message: "Payment Required."})
	assert.Equal(t, "Payment Required.", payload.Message)
}

func TestRunHTTPRefusesProductionWithoutSecret(t *testing.T) {
	err := RunHTTP(fxtest.NewLifecycle(t), gin.New(), config.Config{Environment: "production"}, zap.NewNop())
	assert.ErrorIs(t, err, ErrMissingJWTSecret)
}

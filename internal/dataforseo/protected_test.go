package dataforseo

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/seometer/internal/clock"
	"github.com/smallbiznis/seometer/internal/plan"
	quotadomain "github.com/smallbiznis/seometer/internal/quota/domain"
	"github.com/smallbiznis/seometer/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type guardMock struct {
	mock.Mock
}

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

type limiterFunc func(ctx context.Context) error

func (f limiterFunc) Allow(ctx context.Context) error { return f(ctx) }

type callerFixture struct {
	caller *Caller
	guard  *guardMock
	hits   *atomic.Int32
	db     *gorm.DB
}

func setupCaller(t *testing.T, body string, limiter OutboundLimiter) callerFixture {
	t.Helper()

	hits := &atomic.Int32{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&VendorCall{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	guard := &guardMock{}
	caller := NewCaller(CallerParam{
		Client:   newClient(srv.URL, "login", "secret", srv.Client()),
		Guard:    guard,
		Log:      zap.NewNop(),
		Limiter:  limiter,
		Recorder: NewRecorder(db, node, clock.NewFakeClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)), zap.NewNop()),
	})
	return callerFixture{caller: caller, guard: guard, hits: hits, db: db}
}

func (f callerFixture) outcomes(t *testing.T) []string {
	t.Helper()
	var calls []VendorCall
	require.NoError(t, f.db.Order("id ASC").Find(&calls).Error)
	out := make([]string, 0, len(calls))
	for _, call := range calls {
		out = append(out, call.Outcome)
	}
	return out
}

func allowed(category plan.Category) quotadomain.CheckResult {
	return quotadomain.CheckResult{Category: category, Plan: plan.Free, Allowed: true, Limit: 10, Remaining: 9}
}

func TestCallProtectedCommitsThenCalls(t *testing.T) {
	f := setupCaller(t, okBody, nil)
	f.guard.On("CheckAndCommit", mock.Anything, "user-1", plan.CategoryBacklinkAnalyses, int64(1)).
		Return(allowed(plan.CategoryBacklinkAnalyses), nil).Once()

	resp, err := f.caller.CallProtected(context.Background(), "user-1", "/v3/backlinks/summary/live", CallOptions{
		Tasks: []TaskRequest{{"target": "example.com"}},
	}, 1)
	require.NoError(t, err)
	assert.Equal(t, StatusOK, resp.StatusCode)
	assert.Equal(t, int32(1), f.hits.Load())
	assert.Equal(t, []string{OutcomeOK}, f.outcomes(t))
	f.guard.AssertExpectations(t)
}

func TestCallProtectedDeniedMakesNoRequest(t *testing.T) {
	f := setupCaller(t, okBody, nil)
	denied := quotadomain.CheckResult{
		Category:     plan.CategoryAuditPages,
		Plan:         plan.Free,
		Allowed:      false,
		CurrentUsage: 95,
		Limit:        100,
		Remaining:    5,
		Message:      plan.LimitMessage(plan.CategoryAuditPages),
	}
	f.guard.On("CheckAndCommit", mock.Anything, "user-1", plan.CategoryAuditPages, int64(10)).Return(denied, nil).Once()

	_, err := f.caller.CallProtected(context.Background(), "user-1", "/v3/on_page/task_post", CallOptions{}, 10)
	assert.ErrorIs(t, err, quotadomain.ErrQuotaExceeded)
	var exceeded *quotadomain.QuotaExceededError
	require.True(t, errors.As(err, &exceeded))
	assert.Contains(t, exceeded.Result.Message, "pages auditées")
	assert.Equal(t, int32(0), f.hits.Load())
	assert.Equal(t, []string{OutcomeDenied}, f.outcomes(t))
}

func TestCallProtectedZeroIncrementOnlyChecks(t *testing.T) {
	f := setupCaller(t, okBody, nil)
	f.guard.On("CheckLimit", mock.Anything, "user-1", plan.CategoryBacklinkAnalyses, int64(0)).
		Return(allowed(plan.CategoryBacklinkAnalyses), nil).Once()

	_, err := f.caller.CallProtected(context.Background(), "user-1", "/v3/backlinks/anchors/live", CallOptions{}, 0)
	require.NoError(t, err)
	f.guard.AssertNotCalled(t, "CheckAndCommit", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.guard.AssertExpectations(t)
}

func TestCallProtectedRejectsNegativeIncrement(t *testing.T) {
	f := setupCaller(t, okBody, nil)
	_, err := f.caller.CallProtected(context.Background(), "user-1", "/v3/backlinks/anchors/live", CallOptions{}, -1)
	assert.ErrorIs(t, err, quotadomain.ErrInvalidIncrement)
	assert.Equal(t, int32(0), f.hits.Load())
}

func TestCallProtectedUnclassifiedPathFallsBack(t *testing.T) {
	f := setupCaller(t, okBody, nil)
	f.guard.On("CheckAndCommit", mock.Anything, "user-1", plan.CategoryKeywordSearches, int64(1)).
		Return(allowed(plan.CategoryKeywordSearches), nil).Once()

	_, err := f.caller.CallProtected(context.Background(), "user-1", "/v3/merchant/amazon/products/live", CallOptions{}, 1)
	require.NoError(t, err)
	f.guard.AssertExpectations(t)
}

func TestCallProtectedCategoryOverride(t *testing.T) {
	f := setupCaller(t, okBody, nil)
	f.guard.On("CheckAndCommit", mock.Anything, "user-1", plan.CategoryDomainAnalyses, int64(1)).
		Return(allowed(plan.CategoryDomainAnalyses), nil).Once()

	_, err := f.caller.CallProtected(context.Background(), "user-1", "/v3/backlinks/summary/live", CallOptions{Category: plan.CategoryDomainAnalyses}, 1)
	require.NoError(t, err)
	f.guard.AssertExpectations(t)
}

func TestCallProtectedVendorError(t *testing.T) {
	f := setupCaller(t, `{"status_code":40200,"status_message":"Payment Required.","tasks":[]}`, nil)
	f.guard.On("CheckAndCommit", mock.Anything, "user-1", plan.CategoryBacklinkAnalyses, int64(1)).
		Return(allowed(plan.CategoryBacklinkAnalyses), nil).Once()

	_, err := f.caller.CallProtected(context.Background(), "user-1", "/v3/backlinks/summary/live", CallOptions{}, 1)
	var vendorErr *VendorError
	require.True(t, errors.As(err, &vendorErr))
	assert.Equal(t, "Payment Required.", vendorErr.Message)

	var calls []VendorCall
	require.NoError(t, f.db.Find(&calls).Error)
	require.Len(t, calls, 1)
	assert.Equal(t, OutcomeVendorError, calls[0].Outcome)
	assert.Equal(t, 40200, calls[0].VendorStatusCode)
	assert.Equal(t, "Payment Required.", calls[0].Metadata["message"])
}

func TestCallProtectedRateLimitedSkipsGuard(t *testing.T) {
	limiter := limiterFunc(func(context.Context) error {
		return &ratelimit.RateLimitedError{Key: "k", RetryAfter: time.Second}
	})
	f := setupCaller(t, okBody, limiter)

	_, err := f.caller.CallProtected(context.Background(), "user-1", "/v3/backlinks/summary/live", CallOptions{}, 1)
	assert.ErrorIs(t, err, ratelimit.ErrVendorRateLimited)
	f.guard.AssertNotCalled(t, "CheckAndCommit", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, []string{OutcomeRateLimited}, f.outcomes(t))
}

func TestCallProtectedMissingCredentialsSkipsGuard(t *testing.T) {
	guard := &guardMock{}
	caller := NewCaller(CallerParam{
		Client: newClient("", "", "", http.DefaultClient),
		Guard:  guard,
		Log:    zap.NewNop(),
	})

	_, err := caller.CallProtected(context.Background(), "user-1", "/v3/backlinks/summary/live", CallOptions{}, 1)
	assert.ErrorIs(t, err, ErrMissingCredentials)
	guard.AssertNotCalled(t, "CheckAndCommit", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRecorderRecent(t *testing.T) {
	f := setupCaller(t, okBody, nil)
	f.guard.On("CheckAndCommit", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(allowed(plan.CategoryKeywordSearches), nil)

	for i := 0; i < 3; i++ {
		_, err := f.caller.CallProtected(context.Background(), "user-1", "/v3/keywords_data/google_ads/search_volume/live", CallOptions{}, 1)
		require.NoError(t, err)
	}
	calls, err := f.caller.recorder.Recent(context.Background(), "user-1", 2)
	require.NoError(t, err)
	assert.Len(t, calls, 2)

	calls, err = f.caller.recorder.Recent(context.Background(), "user-2", 0)
	require.NoError(t, err)
	assert.Empty(t, calls)
}

func TestRecorderRecentClampsLimit(t *testing.T) {
	f := setupCaller(t, okBody, nil)
	for i := 0; i < maxRecentLimit+5; i++ {
		f.caller.recorder.Record(context.Background(), VendorCall{UserID: "user-1", Path: "/v3/x", Outcome: "ok"})
	}

	calls, err := f.caller.recorder.Recent(context.Background(), "user-1", 500)
	require.NoError(t, err)
	assert.Len(t, calls, maxRecentLimit)

	calls, err = f.caller.recorder.Recent(context.Background(), "user-1", -1)
	require.NoError(t, err)
	assert.Len(t, calls, defaultRecentLimit)
}

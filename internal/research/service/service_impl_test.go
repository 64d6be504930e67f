package service

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/smallbiznis/seometer/internal/dataforseo"
	"github.com/smallbiznis/seometer/internal/plan"
	quotadomain "github.com/smallbiznis/seometer/internal/quota/domain"
	researchdomain "github.com/smallbiznis/seometer/internal/research/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type callerMock struct {
	mock.Mock
}

func (m *callerMock) CallProtected(ctx context.Context, userID, path string, opts dataforseo.CallOptions, increment int64) (*dataforseo.Response, error) {
	args := m.Called(ctx, userID, path, opts, increment)
	resp, _ := args.Get(0).(*dataforseo.Response)
	return resp, args.Error(1)
}

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

func newTestService() (*Service, *callerMock, *guardMock) {
	caller := &callerMock{}
	guard := &guardMock{}
	svc := NewService(ServiceParam{Log: zap.NewNop(), Caller: caller, Guard: guard}).(*Service)
	return svc, caller, guard
}

func vendorResponse(taskID, result string) *dataforseo.Response {
	task := dataforseo.Task{ID: taskID, StatusCode: dataforseo.StatusOK}
	if result != "" {
		task.Result = []json.RawMessage{json.RawMessage(result)}
	}
	return &dataforseo.Response{StatusCode: dataforseo.StatusOK, Cost: 0.05, Tasks: []dataforseo.Task{task}}
}

func TestKeywordIdeasCommitsOne(t *testing.T) {
	svc, caller, _ := newTestService()
	caller.On("CallProtected", mock.Anything, "user-1", pathKeywordIdeas, mock.MatchedBy(func(opts dataforseo.CallOptions) bool {
		return len(opts.Tasks) == 1 &&
			assert.ObjectsAreEqual([]string{"seo local"}, opts.Tasks[0]["keywords"]) &&
			opts.Tasks[0]["location_code"] == researchdomain.DefaultLocationCode &&
			opts.Tasks[0]["language_code"] == "fr"
	}), int64(1)).Return(vendorResponse("t-1", `{"items":[]}`), nil).Once()

	result, err := svc.KeywordIdeas(context.Background(), researchdomain.KeywordIdeasRequest{
		UserID:   "user-1",
		Keywords: []string{"  SEO   local ", "seo local", ""},
	})
	require.NoError(t, err)
	assert.Equal(t, "t-1", result.TaskID)
	assert.JSONEq(t, `{"items":[]}`, string(result.Data))
	caller.AssertExpectations(t)
}

func TestKeywordIdeasValidation(t *testing.T) {
	svc, caller, _ := newTestService()

	_, err := svc.KeywordIdeas(context.Background(), researchdomain.KeywordIdeasRequest{Keywords: []string{"seo"}})
	assert.ErrorIs(t, err, researchdomain.ErrInvalidUser)

	_, err = svc.KeywordIdeas(context.Background(), researchdomain.KeywordIdeasRequest{UserID: "user-1", Keywords: []string{" "}})
	assert.ErrorIs(t, err, researchdomain.ErrInvalidKeywords)

	caller.AssertNotCalled(t, "CallProtected", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAnalyzeBacklinksCommitsOnce(t *testing.T) {
	svc, caller, _ := newTestService()
	caller.On("CallProtected", mock.Anything, "user-1", pathBacklinks, mock.Anything, int64(1)).
		Return(vendorResponse("t-1", `{"backlinks":42}`), nil).Once()
	caller.On("CallProtected", mock.Anything, "user-1", pathAnchors, mock.Anything, int64(0)).
		Return(vendorResponse("t-2", `{"items":["seo"]}`), nil).Once()

	result, err := svc.AnalyzeBacklinks(context.Background(), researchdomain.BacklinksRequest{
		UserID: "user-1",
		Target: "https://www.Example.com/blog",
	})
	require.NoError(t, err)
	assert.Equal(t, "example.com", result.Target)
	assert.JSONEq(t, `{"backlinks":42}`, string(result.Summary))
	assert.JSONEq(t, `{"items":["seo"]}`, string(result.Anchors))
	caller.AssertExpectations(t)
}

func TestAnalyzeBacklinksStopsWhenDenied(t *testing.T) {
	svc, caller, _ := newTestService()
	denied := &quotadomain.QuotaExceededError{Result: quotadomain.CheckResult{Category: plan.CategoryBacklinkAnalyses}}
	caller.On("CallProtected", mock.Anything, "user-1", pathBacklinks, mock.Anything, int64(1)).Return(nil, denied).Once()

	_, err := svc.AnalyzeBacklinks(context.Background(), researchdomain.BacklinksRequest{UserID: "user-1", Target: "example.com"})
	assert.ErrorIs(t, err, quotadomain.ErrQuotaExceeded)
	caller.AssertNotCalled(t, "CallProtected", mock.Anything, mock.Anything, pathAnchors, mock.Anything, mock.Anything)
}

func TestStartSiteAuditCommitsMaxPages(t *testing.T) {
	svc, caller, _ := newTestService()
	caller.On("CallProtected", mock.Anything, "user-1", pathAuditTaskPost, mock.Anything, int64(researchdomain.DefaultAuditMaxPages)).
		Return(vendorResponse("audit-1", ""), nil).Once()

	task, err := svc.StartSiteAudit(context.Background(), researchdomain.SiteAuditRequest{UserID: "user-1", Target: "example.fr"})
	require.NoError(t, err)
	assert.Equal(t, "audit-1", task.TaskID)
	assert.Equal(t, int64(100), task.MaxPages)

	caller.On("CallProtected", mock.Anything, "user-1", pathAuditTaskPost, mock.Anything, int64(250)).
		Return(vendorResponse("audit-2", ""), nil).Once()
	task, err = svc.StartSiteAudit(context.Background(), researchdomain.SiteAuditRequest{UserID: "user-1", Target: "example.fr", MaxPages: 250})
	require.NoError(t, err)
	assert.Equal(t, "audit-2", task.TaskID)

	_, err = svc.StartSiteAudit(context.Background(), researchdomain.SiteAuditRequest{UserID: "user-1", Target: "example.fr", MaxPages: -5})
	assert.ErrorIs(t, err, researchdomain.ErrInvalidMaxPages)
	caller.AssertExpectations(t)
}

func TestAuditSummaryIsReadOnly(t *testing.T) {
	svc, caller, _ := newTestService()
	caller.On("CallProtected", mock.Anything, "user-1", pathAuditSummary+"audit-1", mock.MatchedBy(func(opts dataforseo.CallOptions) bool {
		return opts.Method == http.MethodGet && len(opts.Tasks) == 0
	}), int64(0)).Return(vendorResponse("audit-1", `{"crawl_progress":"finished"}`), nil).Once()

	result, err := svc.AuditSummary(context.Background(), "user-1", " audit-1 ")
	require.NoError(t, err)
	assert.JSONEq(t, `{"crawl_progress":"finished"}`, string(result.Data))

	_, err = svc.AuditSummary(context.Background(), "user-1", "")
	assert.ErrorIs(t, err, researchdomain.ErrInvalidTaskID)
	caller.AssertExpectations(t)
}

func TestSingleCallActions(t *testing.T) {
	svc, caller, _ := newTestService()
	caller.On("CallProtected", mock.Anything, "user-1", mock.Anything, mock.Anything, int64(1)).
		Return(vendorResponse("t-1", ""), nil)

	result, err := svc.SerpHistory(context.Background(), researchdomain.SerpHistoryRequest{UserID: "user-1", Keyword: "Plombier Lyon"})
	require.NoError(t, err)
	assert.Equal(t, pathSerpHistory, result.Path)
	assert.Equal(t, "null", string(result.Data))

	result, err = svc.DomainOverview(context.Background(), researchdomain.DomainOverviewRequest{UserID: "user-1", Target: "example.com"})
	require.NoError(t, err)
	assert.Equal(t, pathDomainOverview, result.Path)

	result, err = svc.AIVisibility(context.Background(), researchdomain.AIVisibilityRequest{UserID: "user-1", Prompt: "meilleur plombier à Lyon"})
	require.NoError(t, err)
	assert.Equal(t, pathAIVisibility, result.Path)

	_, err = svc.AIVisibility(context.Background(), researchdomain.AIVisibilityRequest{UserID: "user-1"})
	assert.ErrorIs(t, err, researchdomain.ErrInvalidPrompt)

	_, err = svc.DomainOverview(context.Background(), researchdomain.DomainOverviewRequest{UserID: "user-1", Target: "localhost"})
	assert.ErrorIs(t, err, researchdomain.ErrInvalidTarget)
}

func TestExportKeywordsWritesCSV(t *testing.T) {
	svc, caller, guard := newTestService()
	guard.On("CheckAndCommit", mock.Anything, "user-1", plan.CategoryExports, int64(1)).
		Return(quotadomain.CheckResult{Category: plan.CategoryExports, Allowed: true, Limit: 5, Remaining: 4}, nil).Once()

	var buf bytes.Buffer
	err := svc.ExportKeywords(context.Background(), researchdomain.ExportRequest{
		UserID: "user-1",
		Rows: []researchdomain.KeywordRow{
			{Keyword: "seo local", SearchVolume: 1900, CPC: 1.5, Competition: 0.42, KeywordDifficulty: 31},
			{Keyword: "agence, seo", SearchVolume: 10},
		},
	}, &buf)
	require.NoError(t, err)
	assert.Equal(t,
		"keyword,search_volume,cpc,competition,keyword_difficulty\n"+
			"seo local,1900,1.50,0.42,31\n"+
			"\"agence, seo\",10,0.00,0.00,0\n",
		buf.String())
	guard.AssertExpectations(t)
	caller.AssertNotCalled(t, "CallProtected", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestExportKeywordsDenied(t *testing.T) {
	svc, _, guard := newTestService()
	guard.On("CheckAndCommit", mock.Anything, "user-1", plan.CategoryExports, int64(1)).
		Return(quotadomain.CheckResult{Category: plan.CategoryExports, Allowed: false, Limit: 0, Remaining: 0}, nil).Once()

	var buf bytes.Buffer
	err := svc.ExportKeywords(context.Background(), researchdomain.ExportRequest{
		UserID: "user-1",
		Rows:   []researchdomain.KeywordRow{{Keyword: "seo"}},
	}, &buf)
	assert.ErrorIs(t, err, quotadomain.ErrQuotaExceeded)
	assert.Zero(t, buf.Len())

	err = svc.ExportKeywords(context.Background(), researchdomain.ExportRequest{UserID: "user-1"}, &buf)
	assert.ErrorIs(t, err, researchdomain.ErrInvalidRows)
}

func TestNormalizeTarget(t *testing.T) {
	cases := map[string]string{
		"example.com":                  "example.com",
		"WWW.Example.com":              "example.com",
		"https://www.example.com/path": "example.com",
		"example.com/landing":          "example.com",
	}
	for in, want := range cases {
		got, err := normalizeTarget(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"", "localhost", "https://", "exa mple.com"} {
		_, err := normalizeTarget(bad)
		assert.ErrorIs(t, err, researchdomain.ErrInvalidTarget, bad)
	}
}

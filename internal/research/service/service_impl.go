package service

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/smallbiznis/seometer/internal/dataforseo"
	"github.com/smallbiznis/seometer/internal/plan"
	quotadomain "github.com/smallbiznis/seometer/internal/quota/domain"
	researchdomain "github.com/smallbiznis/seometer/internal/research/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	pathKeywordIdeas   = "/v3/dataforseo_labs/google/keyword_ideas/live"
	pathBacklinks      = "/v3/backlinks/summary/live"
	pathAnchors        = "/v3/backlinks/anchors/live"
	pathAuditTaskPost  = "/v3/on_page/task_post"
	pathAuditSummary   = "/v3/on_page/summary/"
	pathSerpHistory    = "/v3/dataforseo_labs/google/historical_serps/live"
	pathDomainOverview = "/v3/dataforseo_labs/google/domain_rank_overview/live"
	pathAIVisibility   = "/v3/ai_optimization/chat_gpt/llm_responses/live"

	defaultResultLimit = 100
	maxResultLimit     = 1000
	maxKeywordsPerCall = 20
	defaultAIModel     = "gpt-4o-mini"
)

var exportHeader = []string{"keyword", "search_volume", "cpc", "competition", "keyword_difficulty"}

type Service struct {
	log    *zap.Logger
	caller researchdomain.Caller
	guard  quotadomain.Guard
}

type ServiceParam struct {
	fx.In

	Log    *zap.Logger
	Caller researchdomain.Caller
	Guard  quotadomain.Guard
}

func NewService(p ServiceParam) researchdomain.Service {
	return &Service{
		log:    p.Log.Named("research.service"),
		caller: p.Caller,
		guard:  p.Guard,
	}
}

func (s *Service) KeywordIdeas(ctx context.Context, req researchdomain.KeywordIdeasRequest) (researchdomain.Result, error) {
	userID, err := requireUser(req.UserID)
	if err != nil {
		return researchdomain.Result{}, err
	}
	keywords := cleanKeywords(req.Keywords)
	if len(keywords) == 0 || len(keywords) > maxKeywordsPerCall {
		return researchdomain.Result{}, researchdomain.ErrInvalidKeywords
	}

	task := dataforseo.TaskRequest{
		"keywords":      keywords,
		"location_code": locationOrDefault(req.LocationCode),
		"language_code": languageOrDefault(req.LanguageCode),
		"limit":         clampLimit(req.Limit),
	}
	return s.call(ctx, userID, pathKeywordIdeas, http.MethodPost, []dataforseo.TaskRequest{task}, 1)
}

// AnalyzeBacklinks commits one analysis for the summary; the anchors round-trip is part
// of the same action and only re-checks the limit.
func (s *Service) AnalyzeBacklinks(ctx context.Context, req researchdomain.BacklinksRequest) (researchdomain.BacklinksResult, error) {
	userID, err := requireUser(req.UserID)
	if err != nil {
		return researchdomain.BacklinksResult{}, err
	}
	target, err := normalizeTarget(req.Target)
	if err != nil {
		return researchdomain.BacklinksResult{}, err
	}

	summary, err := s.call(ctx, userID, pathBacklinks, http.MethodPost, []dataforseo.TaskRequest{{
		"target":              target,
		"internal_list_limit": 10,
	}}, 1)
	if err != nil {
		return researchdomain.BacklinksResult{}, err
	}
	anchors, err := s.call(ctx, userID, pathAnchors, http.MethodPost, []dataforseo.TaskRequest{{
		"target": target,
		"limit":  clampLimit(req.Limit),
	}}, 0)
	if err != nil {
		return researchdomain.BacklinksResult{}, err
	}

	return researchdomain.BacklinksResult{
		Target:  target,
		Summary: summary.Data,
		Anchors: anchors.Data,
	}, nil
}

func (s *Service) StartSiteAudit(ctx context.Context, req researchdomain.SiteAuditRequest) (researchdomain.SiteAuditTask, error) {
	userID, err := requireUser(req.UserID)
	if err != nil {
		return researchdomain.SiteAuditTask{}, err
	}
	target, err := normalizeTarget(req.Target)
	if err != nil {
		return researchdomain.SiteAuditTask{}, err
	}
	maxPages := req.MaxPages
	if maxPages == 0 {
		maxPages = researchdomain.DefaultAuditMaxPages
	}
	if maxPages < 0 || maxPages > researchdomain.MaxAuditPages {
		return researchdomain.SiteAuditTask{}, researchdomain.ErrInvalidMaxPages
	}

	resp, err := s.caller.CallProtected(ctx, userID, pathAuditTaskPost, dataforseo.CallOptions{
		Method: http.MethodPost,
		Tasks: []dataforseo.TaskRequest{{
			"target":          target,
			"max_crawl_pages": maxPages,
		}},
	}, maxPages)
	if err != nil {
		return researchdomain.SiteAuditTask{}, err
	}
	ids := resp.TaskIDs()
	if len(ids) == 0 {
		return researchdomain.SiteAuditTask{}, dataforseo.ErrNoResult
	}

	s.log.Info("site audit started",
		zap.String("user_id", userID),
		zap.String("target", target),
		zap.String("task_id", ids[0]),
		zap.Int64("max_crawl_pages", maxPages),
	)
	return researchdomain.SiteAuditTask{TaskID: ids[0], Target: target, MaxPages: maxPages}, nil
}

// AuditSummary polls an audit whose pages were committed when it started.
func (s *Service) AuditSummary(ctx context.Context, userID, taskID string) (researchdomain.Result, error) {
	userID, err := requireUser(userID)
	if err != nil {
		return researchdomain.Result{}, err
	}
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return researchdomain.Result{}, researchdomain.ErrInvalidTaskID
	}
	return s.call(ctx, userID, pathAuditSummary+url.PathEscape(taskID), http.MethodGet, nil, 0)
}

func (s *Service) SerpHistory(ctx context.Context, req researchdomain.SerpHistoryRequest) (researchdomain.Result, error) {
	userID, err := requireUser(req.UserID)
	if err != nil {
		return researchdomain.Result{}, err
	}
	keywords := cleanKeywords([]string{req.Keyword})
	if len(keywords) != 1 {
		return researchdomain.Result{}, researchdomain.ErrInvalidKeywords
	}

	task := dataforseo.TaskRequest{
		"keyword":       keywords[0],
		"location_code": locationOrDefault(req.LocationCode),
		"language_code": languageOrDefault(req.LanguageCode),
	}
	if from := strings.TrimSpace(req.DateFrom); from != "" {
		task["date_from"] = from
	}
	if to := strings.TrimSpace(req.DateTo); to != "" {
		task["date_to"] = to
	}
	return s.call(ctx, userID, pathSerpHistory, http.MethodPost, []dataforseo.TaskRequest{task}, 1)
}

func (s *Service) DomainOverview(ctx context.Context, req researchdomain.DomainOverviewRequest) (researchdomain.Result, error) {
	userID, err := requireUser(req.UserID)
	if err != nil {
		return researchdomain.Result{}, err
	}
	target, err := normalizeTarget(req.Target)
	if err != nil {
		return researchdomain.Result{}, err
	}

	task := dataforseo.TaskRequest{
		"target":        target,
		"location_code": locationOrDefault(req.LocationCode),
		"language_code": languageOrDefault(req.LanguageCode),
	}
	return s.call(ctx, userID, pathDomainOverview, http.MethodPost, []dataforseo.TaskRequest{task}, 1)
}

func (s *Service) AIVisibility(ctx context.Context, req researchdomain.AIVisibilityRequest) (researchdomain.Result, error) {
	userID, err := requireUser(req.UserID)
	if err != nil {
		return researchdomain.Result{}, err
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return researchdomain.Result{}, researchdomain.ErrInvalidPrompt
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = defaultAIModel
	}

	task := dataforseo.TaskRequest{
		"user_prompt": prompt,
		"model_name":  model,
	}
	return s.call(ctx, userID, pathAIVisibility, http.MethodPost, []dataforseo.TaskRequest{task}, 1)
}

func (s *Service) ExportKeywords(ctx context.Context, req researchdomain.ExportRequest, w io.Writer) error {
	userID, err := requireUser(req.UserID)
	if err != nil {
		return err
	}
	if len(req.Rows) == 0 || len(req.Rows) > researchdomain.MaxExportRows {
		return researchdomain.ErrInvalidRows
	}

	result, err := s.guard.CheckAndCommit(ctx, userID, plan.CategoryExports, 1)
	if err != nil {
		return err
	}
	if err := quotadomain.Deny(result); err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return err
	}
	for _, row := range req.Rows {
		record := []string{
			strings.TrimSpace(row.Keyword),
			strconv.FormatInt(row.SearchVolume, 10),
			strconv.FormatFloat(row.CPC, 'f', 2, 64),
			strconv.FormatFloat(row.Competition, 'f', 2, 64),
			strconv.Itoa(row.KeywordDifficulty),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}

	s.log.Info("keywords exported",
		zap.String("user_id", userID),
		zap.Int("rows", len(req.Rows)),
	)
	return nil
}

func (s *Service) call(ctx context.Context, userID, path, method string, tasks []dataforseo.TaskRequest, increment int64) (researchdomain.Result, error) {
	resp, err := s.caller.CallProtected(ctx, userID, path, dataforseo.CallOptions{
		Method: method,
		Tasks:  tasks,
	}, increment)
	if err != nil {
		return researchdomain.Result{}, err
	}

	out := researchdomain.Result{Path: path, Cost: resp.Cost, Data: json.RawMessage("null")}
	if ids := resp.TaskIDs(); len(ids) > 0 {
		out.TaskID = ids[0]
	}
	var data json.RawMessage
	switch err := resp.FirstResult(&data); {
	case err == nil:
		out.Data = data
	case errors.Is(err, dataforseo.ErrNoResult):
	default:
		return researchdomain.Result{}, err
	}
	return out, nil
}

func requireUser(userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", researchdomain.ErrInvalidUser
	}
	return userID, nil
}

func cleanKeywords(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, keyword := range raw {
		keyword = strings.ToLower(strings.Join(strings.Fields(keyword), " "))
		if keyword == "" {
			continue
		}
		if _, ok := seen[keyword]; ok {
			continue
		}
		seen[keyword] = struct{}{}
		out = append(out, keyword)
	}
	return out
}

// normalizeTarget reduces a URL or host to the bare domain the vendor expects.
func normalizeTarget(raw string) (string, error) {
	target := strings.ToLower(strings.TrimSpace(raw))
	if target == "" {
		return "", researchdomain.ErrInvalidTarget
	}
	if strings.Contains(target, "://") {
		parsed, err := url.Parse(target)
		if err != nil || parsed.Host == "" {
			return "", researchdomain.ErrInvalidTarget
		}
		target = parsed.Host
	}
	target = strings.TrimSuffix(strings.SplitN(target, "/", 2)[0], ".")
	target = strings.TrimPrefix(target, "www.")
	if !strings.Contains(target, ".") || strings.ContainsAny(target, " \t") {
		return "", researchdomain.ErrInvalidTarget
	}
	return target, nil
}

func locationOrDefault(code int) int {
	if code <= 0 {
		return researchdomain.DefaultLocationCode
	}
	return code
}

func languageOrDefault(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return researchdomain.DefaultLanguageCode
	}
	return code
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultResultLimit
	case limit > maxResultLimit:
		return maxResultLimit
	}
	return limit
}

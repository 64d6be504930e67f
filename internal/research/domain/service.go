package domain

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/smallbiznis/seometer/internal/dataforseo"
)

const (
	DefaultLocationCode  = 2250 // France
	DefaultLanguageCode  = "fr"
	DefaultAuditMaxPages = 100
	MaxAuditPages        = 10000
	MaxExportRows        = 10000
)

// Caller performs quota-gated vendor calls.
type Caller interface {
	CallProtected(ctx context.Context, userID, path string, opts dataforseo.CallOptions, increment int64) (*dataforseo.Response, error)
}

type KeywordIdeasRequest struct {
	UserID       string   `json:"-"`
	Keywords     []string `json:"keywords"`
	LocationCode int      `json:"location_code"`
	LanguageCode string   `json:"language_code"`
	Limit        int      `json:"limit"`
}

type BacklinksRequest struct {
	UserID string `json:"-"`
	Target string `json:"target"`
	Limit  int    `json:"limit"`
}

type BacklinksResult struct {
	Target  string          `json:"target"`
	Summary json.RawMessage `json:"summary"`
	Anchors json.RawMessage `json:"anchors"`
}

type SiteAuditRequest struct {
	UserID   string `json:"-"`
	Target   string `json:"target"`
	MaxPages int64  `json:"max_crawl_pages"`
}

type SiteAuditTask struct {
	TaskID   string `json:"task_id"`
	Target   string `json:"target"`
	MaxPages int64  `json:"max_crawl_pages"`
}

type SerpHistoryRequest struct {
	UserID       string `json:"-"`
	Keyword      string `json:"keyword"`
	LocationCode int    `json:"location_code"`
	LanguageCode string `json:"language_code"`
	DateFrom     string `json:"date_from"`
	DateTo       string `json:"date_to"`
}

type DomainOverviewRequest struct {
	UserID       string `json:"-"`
	Target       string `json:"target"`
	LocationCode int    `json:"location_code"`
	LanguageCode string `json:"language_code"`
}

type AIVisibilityRequest struct {
	UserID string `json:"-"`
	Prompt string `json:"prompt"`
	Model  string `json:"model"`
}

// Result wraps the first vendor result of a task with its accounting data.
type Result struct {
	Path   string          `json:"path"`
	TaskID string          `json:"task_id,omitempty"`
	Cost   float64         `json:"cost"`
	Data   json.RawMessage `json:"data"`
}

type KeywordRow struct {
	Keyword           string  `json:"keyword"`
	SearchVolume      int64   `json:"search_volume"`
	CPC               float64 `json:"cpc"`
	Competition       float64 `json:"competition"`
	KeywordDifficulty int     `json:"keyword_difficulty"`
}

type ExportRequest struct {
	UserID string       `json:"-"`
	Rows   []KeywordRow `json:"rows"`
}

type Service interface {
	KeywordIdeas(ctx context.Context, req KeywordIdeasRequest) (Result, error)
	AnalyzeBacklinks(ctx context.Context, req BacklinksRequest) (BacklinksResult, error)
	StartSiteAudit(ctx context.Context, req SiteAuditRequest) (SiteAuditTask, error)
	AuditSummary(ctx context.Context, userID, taskID string) (Result, error)
	SerpHistory(ctx context.Context, req SerpHistoryRequest) (Result, error)
	DomainOverview(ctx context.Context, req DomainOverviewRequest) (Result, error)
	AIVisibility(ctx context.Context, req AIVisibilityRequest) (Result, error)
	// ExportKeywords writes rows as CSV to w after committing one export.
	ExportKeywords(ctx context.Context, req ExportRequest, w io.Writer) error
}

var (
	ErrInvalidUser     = errors.New("invalid_user")
	ErrInvalidKeywords = errors.New("invalid_keywords")
	ErrInvalidTarget   = errors.New("invalid_target")
	ErrInvalidMaxPages = errors.New("invalid_max_pages")
	ErrInvalidTaskID   = errors.New("invalid_task_id")
	ErrInvalidPrompt   = errors.New("invalid_prompt")
	ErrInvalidRows     = errors.New("invalid_export_rows")
)

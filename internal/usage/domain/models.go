// Package domain contains the monthly usage ledger model.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/seometer/internal/plan"
)

// UsageTracking stores one user's monthly counters for a single calendar month.
type UsageTracking struct {
	ID               snowflake.ID `gorm:"primaryKey" json:"id"`
	UserID           string       `gorm:"column:user_id;type:text;not null;uniqueIndex:uidx_usage_tracking_user_period,priority:1" json:"user_id"`
	PeriodStart      time.Time    `gorm:"column:period_start;not null;uniqueIndex:uidx_usage_tracking_user_period,priority:2" json:"period_start"`
	PeriodEnd        time.Time    `gorm:"column:period_end;not null" json:"period_end"`
	KeywordSearches  int64        `gorm:"column:keyword_searches;not null;default:0" json:"keyword_searches"`
	BacklinkAnalyses int64        `gorm:"column:backlink_analyses;not null;default:0" json:"backlink_analyses"`
	AuditPages       int64        `gorm:"column:audit_pages;not null;default:0" json:"audit_pages"`
	SerpHistory      int64        `gorm:"column:serp_history;not null;default:0" json:"serp_history"`
	DomainAnalyses   int64        `gorm:"column:domain_analyses;not null;default:0" json:"domain_analyses"`
	Exports          int64        `gorm:"column:exports;not null;default:0" json:"exports"`
	AIVisibility     int64        `gorm:"column:ai_visibility;not null;default:0" json:"ai_visibility"`
	CreatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (UsageTracking) TableName() string { return "usage_tracking" }

// Counter returns the stored count for a monthly category, or 0.
func (u *UsageTracking) Counter(c plan.Category) int64 {
	if u == nil {
		return 0
	}
	if p := u.counterRef(c); p != nil {
		return *p
	}
	return 0
}

// Add bumps the in-memory counter for c. It has no effect on non-monthly categories.
func (u *UsageTracking) Add(c plan.Category, amount int64) {
	if p := u.counterRef(c); p != nil {
		*p += amount
	}
}

func (u *UsageTracking) counterRef(c plan.Category) *int64 {
	switch c {
	case plan.CategoryKeywordSearches:
		return &u.KeywordSearches
	case plan.CategoryBacklinkAnalyses:
		return &u.BacklinkAnalyses
	case plan.CategoryAuditPages:
		return &u.AuditPages
	case plan.CategorySerpHistory:
		return &u.SerpHistory
	case plan.CategoryDomainAnalyses:
		return &u.DomainAnalyses
	case plan.CategoryExports:
		return &u.Exports
	case plan.CategoryAIVisibility:
		return &u.AIVisibility
	}
	return nil
}

// Column returns the usage_tracking column backing c.
func Column(c plan.Category) (string, bool) {
	if !c.IsMonthly() {
		return "", false
	}
	return string(c), true
}

// Period is a calendar month. End is the last millisecond of the month.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// CurrentPeriod returns the calendar month containing now, evaluated in loc.
func CurrentPeriod(now time.Time, loc *time.Location) Period {
	if loc == nil {
		loc = time.Local
	}
	local := now.In(loc)
	start := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
	next := start.AddDate(0, 1, 0)
	return Period{Start: start, End: next.Add(-time.Millisecond)}
}

// Key is a compact identifier for the period, e.g. "2026-03".
func (p Period) Key() string {
	return p.Start.Format("2006-01")
}

// Package domain contains persistence models for SEO projects and their tracked keywords.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Project struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	UserID    string       `gorm:"type:text;not null;uniqueIndex:uidx_projects_user_slug,priority:1" json:"user_id"`
	Name      string       `gorm:"type:text;not null" json:"name"`
	Slug      string       `gorm:"type:text;not null;uniqueIndex:uidx_projects_user_slug,priority:2" json:"slug"`
	Domain    string       `gorm:"type:text;not null" json:"domain"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`

	Keywords []TrackedKeyword `gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE" json:"keywords,omitempty"`
}

// TableName sets the database table name.
func (Project) TableName() string { return "projects" }

type TrackedKeyword struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	ProjectID    snowflake.ID `gorm:"not null;uniqueIndex:uidx_tracked_keywords_project_keyword,priority:1" json:"project_id"`
	UserID       string       `gorm:"type:text;not null;index:idx_tracked_keywords_user_id" json:"user_id"`
	Keyword      string       `gorm:"type:text;not null;uniqueIndex:uidx_tracked_keywords_project_keyword,priority:2" json:"keyword"`
	LocationCode int          `gorm:"not null;default:0" json:"location_code"`
	LanguageCode string       `gorm:"type:text;not null;default:''" json:"language_code"`
	CreatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (TrackedKeyword) TableName() string { return "tracked_keywords" }

package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, project *Project) error
	FindByID(ctx context.Context, db *gorm.DB, userID string, id snowflake.ID) (*Project, error)
	List(ctx context.Context, db *gorm.DB, userID string) ([]Project, error)
	// Delete removes the project and its tracked keywords.
	Delete(ctx context.Context, db *gorm.DB, userID string, id snowflake.ID) (int64, error)
	ListKeywords(ctx context.Context, db *gorm.DB, projectID snowflake.ID) ([]TrackedKeyword, error)
	InsertKeywords(ctx context.Context, db *gorm.DB, keywords []TrackedKeyword) error
	CountProjects(ctx context.Context, db *gorm.DB, userID string) (int64, error)
	CountTrackedKeywords(ctx context.Context, db *gorm.DB, userID string) (int64, error)
}

package repository

import (
	"context"

	projectdomain "github.com/smallbiznis/seometer/internal/project/domain"
	quotadomain "github.com/smallbiznis/seometer/internal/quota/domain"
	"gorm.io/gorm"
)

type counter struct {
	db   *gorm.DB
	repo projectdomain.Repository
}

// NewCounter exposes live project and keyword counts to the quota guard.
func NewCounter(db *gorm.DB, repo projectdomain.Repository) quotadomain.Counter {
	return &counter{db: db, repo: repo}
}

func (c *counter) CountProjects(ctx context.Context, userID string) (int64, error) {
	return c.repo.CountProjects(ctx, c.db, userID)
}

func (c *counter) CountTrackedKeywords(ctx context.Context, userID string) (int64, error) {
	return c.repo.CountTrackedKeywords(ctx, c.db, userID)
}

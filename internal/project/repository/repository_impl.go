package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	projectdomain "github.com/smallbiznis/seometer/internal/project/domain"
	"github.com/smallbiznis/seometer/pkg/db/option"
	"github.com/smallbiznis/seometer/pkg/repository"
	"gorm.io/gorm"
)

type repo struct {
	projects repository.Store[projectdomain.Project]
	keywords repository.Store[projectdomain.TrackedKeyword]
}

func Provide(db *gorm.DB) projectdomain.Repository {
	return &repo{
		projects: repository.New[projectdomain.Project](db),
		keywords: repository.New[projectdomain.TrackedKeyword](db),
	}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, project *projectdomain.Project) error {
	return r.projects.On(db).Insert(ctx, project)
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, userID string, id snowflake.ID) (*projectdomain.Project, error) {
	return r.projects.On(db).Get(ctx, &projectdomain.Project{ID: id, UserID: userID})
}

func (r *repo) List(ctx context.Context, db *gorm.DB, userID string) ([]projectdomain.Project, error) {
	return r.projects.On(db).List(ctx,
		&projectdomain.Project{UserID: userID},
		option.WithOrder("created_at ASC, id ASC"),
	)
}

// Delete removes the project and its tracked keywords together.
func (r *repo) Delete(ctx context.Context, db *gorm.DB, userID string, id snowflake.ID) (int64, error) {
	var deleted int64
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := r.keywords.On(tx).Delete(ctx, &projectdomain.TrackedKeyword{ProjectID: id, UserID: userID}); err != nil {
			return err
		}
		n, err := r.projects.On(tx).Delete(ctx, &projectdomain.Project{ID: id, UserID: userID})
		deleted = n
		return err
	})
	return deleted, err
}

func (r *repo) ListKeywords(ctx context.Context, db *gorm.DB, projectID snowflake.ID) ([]projectdomain.TrackedKeyword, error) {
	return r.keywords.On(db).List(ctx,
		&projectdomain.TrackedKeyword{ProjectID: projectID},
		option.WithOrder("id ASC"),
	)
}

func (r *repo) InsertKeywords(ctx context.Context, db *gorm.DB, keywords []projectdomain.TrackedKeyword) error {
	rows := make([]*projectdomain.TrackedKeyword, len(keywords))
	for i := range keywords {
		rows[i] = &keywords[i]
	}
	return r.keywords.On(db).Insert(ctx, rows...)
}

func (r *repo) CountProjects(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	return r.projects.On(db).Count(ctx, &projectdomain.Project{UserID: userID})
}

func (r *repo) CountTrackedKeywords(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	return r.keywords.On(db).Count(ctx, &projectdomain.TrackedKeyword{UserID: userID})
}

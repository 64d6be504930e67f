package domain

import (
	"context"
	"errors"
)

type CreateRequest struct {
	UserID string `json:"-"`
	Name   string `json:"name"`
	Domain string `json:"domain"`
}

type AddKeywordsRequest struct {
	UserID       string   `json:"-"`
	ProjectID    string   `json:"-"`
	Keywords     []string `json:"keywords"`
	LocationCode int      `json:"location_code"`
	LanguageCode string   `json:"language_code"`
}

type AddKeywordsResponse struct {
	Added   []TrackedKeyword `json:"added"`
	Skipped []string         `json:"skipped"`
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (Project, error)
	List(ctx context.Context, userID string) ([]Project, error)
	Delete(ctx context.Context, userID, projectID string) error
	AddKeywords(ctx context.Context, req AddKeywordsRequest) (AddKeywordsResponse, error)
}

var (
	ErrInvalidUser      = errors.New("invalid_user")
	ErrInvalidProject   = errors.New("invalid_project")
	ErrInvalidName      = errors.New("invalid_name")
	ErrInvalidDomain    = errors.New("invalid_domain")
	ErrInvalidKeywords  = errors.New("invalid_keywords")
	ErrProjectNotFound  = errors.New("project_not_found")
	ErrDuplicateProject = errors.New("duplicate_project")
)

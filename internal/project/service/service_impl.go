package service

import (
	"context"
	"net/url"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/seometer/internal/clock"
	"github.com/smallbiznis/seometer/internal/plan"
	projectdomain "github.com/smallbiznis/seometer/internal/project/domain"
	quotadomain "github.com/smallbiznis/seometer/internal/quota/domain"
	"github.com/smallbiznis/seometer/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxKeywordLength = 200

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID *snowflake.Node
	clock clock.Clock
	repo  projectdomain.Repository
	guard quotadomain.Guard
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  projectdomain.Repository
	Guard quotadomain.Guard
}

func NewService(p ServiceParam) projectdomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("project.service"),

		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
		guard: p.Guard,
	}
}

func (s *Service) Create(ctx context.Context, req projectdomain.CreateRequest) (projectdomain.Project, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return projectdomain.Project{}, projectdomain.ErrInvalidUser
	}
	name := strings.TrimSpace(req.Name)
	projectSlug := slug.Make(name)
	if name == "" || projectSlug == "" {
		return projectdomain.Project{}, projectdomain.ErrInvalidName
	}
	domain, err := normalizeDomain(req.Domain)
	if err != nil {
		return projectdomain.Project{}, err
	}

	result, err := s.guard.CheckAndCommit(ctx, userID, plan.CategoryProjects, 1)
	if err != nil {
		return projectdomain.Project{}, err
	}
	if err := quotadomain.Deny(result); err != nil {
		return projectdomain.Project{}, err
	}

	now := s.clock.Now()
	project := projectdomain.Project{
		ID:        s.genID.Generate(),
		UserID:    userID,
		Name:      name,
		Slug:      projectSlug,
		Domain:    domain,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Insert(ctx, s.db, &project); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return projectdomain.Project{}, projectdomain.ErrDuplicateProject
		}
		return projectdomain.Project{}, err
	}

	s.log.Info("project created",
		zap.String("user_id", userID),
		zap.String("project_id", project.ID.String()),
		zap.String("slug", projectSlug),
	)
	return project, nil
}

func (s *Service) List(ctx context.Context, userID string) ([]projectdomain.Project, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, projectdomain.ErrInvalidUser
	}
	return s.repo.List(ctx, s.db, userID)
}

func (s *Service) Delete(ctx context.Context, userID, projectID string) error {
	project, err := s.find(ctx, userID, projectID)
	if err != nil {
		return err
	}
	deleted, err := s.repo.Delete(ctx, s.db, project.UserID, project.ID)
	if err != nil {
		return err
	}
	if deleted == 0 {
		return projectdomain.ErrProjectNotFound
	}
	s.log.Info("project deleted",
		zap.String("user_id", project.UserID),
		zap.String("project_id", project.ID.String()),
	)
	return nil
}

// AddKeywords tracks new keywords on a project. Duplicates, both within the request and
// against keywords already tracked, are skipped and not counted against the quota.
func (s *Service) AddKeywords(ctx context.Context, req projectdomain.AddKeywordsRequest) (projectdomain.AddKeywordsResponse, error) {
	project, err := s.find(ctx, req.UserID, req.ProjectID)
	if err != nil {
		return projectdomain.AddKeywordsResponse{}, err
	}

	existing, err := s.repo.ListKeywords(ctx, s.db, project.ID)
	if err != nil {
		return projectdomain.AddKeywordsResponse{}, err
	}
	seen := make(map[string]struct{}, len(existing)+len(req.Keywords))
	for _, kw := range existing {
		seen[kw.Keyword] = struct{}{}
	}

	resp := projectdomain.AddKeywordsResponse{Added: []projectdomain.TrackedKeyword{}, Skipped: []string{}}
	fresh := make([]string, 0, len(req.Keywords))
	valid := 0
	for _, raw := range req.Keywords {
		keyword := normalizeKeyword(raw)
		if keyword == "" || len(keyword) > maxKeywordLength {
			continue
		}
		valid++
		if _, dup := seen[keyword]; dup {
			resp.Skipped = append(resp.Skipped, keyword)
			continue
		}
		seen[keyword] = struct{}{}
		fresh = append(fresh, keyword)
	}
	if valid == 0 {
		return projectdomain.AddKeywordsResponse{}, projectdomain.ErrInvalidKeywords
	}
	if len(fresh) == 0 {
		return resp, nil
	}

	result, err := s.guard.CheckAndCommit(ctx, project.UserID, plan.CategoryTrackedKeywords, int64(len(fresh)))
	if err != nil {
		return projectdomain.AddKeywordsResponse{}, err
	}
	if err := quotadomain.Deny(result); err != nil {
		return projectdomain.AddKeywordsResponse{}, err
	}

	now := s.clock.Now()
	rows := make([]projectdomain.TrackedKeyword, 0, len(fresh))
	for _, keyword := range fresh {
		rows = append(rows, projectdomain.TrackedKeyword{
			ID:           s.genID.Generate(),
			ProjectID:    project.ID,
			UserID:       project.UserID,
			Keyword:      keyword,
			LocationCode: req.LocationCode,
			LanguageCode: strings.ToLower(strings.TrimSpace(req.LanguageCode)),
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}
	if err := s.repo.InsertKeywords(ctx, s.db, rows); err != nil {
		return projectdomain.AddKeywordsResponse{}, err
	}
	resp.Added = rows
	return resp, nil
}

func (s *Service) find(ctx context.Context, userID, projectID string) (*projectdomain.Project, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, projectdomain.ErrInvalidUser
	}
	id, err := snowflake.ParseString(strings.TrimSpace(projectID))
	if err != nil || id == 0 {
		return nil, projectdomain.ErrInvalidProject
	}
	project, err := s.repo.FindByID(ctx, s.db, userID, id)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, projectdomain.ErrProjectNotFound
	}
	return project, nil
}

func normalizeKeyword(raw string) string {
	return strings.ToLower(strings.Join(strings.Fields(raw), " "))
}

// normalizeDomain accepts a bare host or a URL and returns the lower-cased host.
func normalizeDomain(raw string) (string, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	if value == "" {
		return "", projectdomain.ErrInvalidDomain
	}
	if !strings.Contains(value, "://") {
		value = "https://" + value
	}
	parsed, err := url.Parse(value)
	if err != nil {
		return "", projectdomain.ErrInvalidDomain
	}
	host := strings.TrimPrefix(parsed.Hostname(), "www.")
	if host == "" || !strings.Contains(host, ".") || strings.HasPrefix(host, ".") || strings.HasSuffix(host, ".") {
		return "", projectdomain.ErrInvalidDomain
	}
	return host, nil
}

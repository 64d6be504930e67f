package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/seometer/internal/clock"
	"github.com/smallbiznis/seometer/internal/config"
	"github.com/smallbiznis/seometer/internal/observability/metrics"
	"github.com/smallbiznis/seometer/internal/plan"
	usagedomain "github.com/smallbiznis/seometer/internal/usage/domain"
	"github.com/smallbiznis/seometer/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID   *snowflake.Node
	clock   clock.Clock
	loc     *time.Location
	repo    usagedomain.Repository
	ledger  *metrics.LedgerMetrics
	metrics *metrics.Metrics
}

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Config  config.Config
	Repo    usagedomain.Repository
	Ledger  *metrics.LedgerMetrics `optional:"true"`
	Metrics *metrics.Metrics       `optional:"true"`
}

func NewService(p ServiceParam) usagedomain.Ledger {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("usage.service"),

		genID:   p.GenID,
		clock:   p.Clock,
		loc:     p.Config.Location(),
		repo:    p.Repo,
		ledger:  p.Ledger,
		metrics: p.Metrics,
	}
}

func (s *Service) CurrentPeriod() usagedomain.Period {
	return usagedomain.CurrentPeriod(s.clock.Now(), s.loc)
}

// GetOrCreateMonthlyRecord returns the current period row, creating a zeroed one if missing.
func (s *Service) GetOrCreateMonthlyRecord(ctx context.Context, userID string) (*usagedomain.UsageTracking, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, usagedomain.ErrInvalidUser
	}

	period := s.CurrentPeriod()
	record, err := s.repo.FindByPeriod(ctx, s.db, userID, period.Start)
	if err != nil {
		return nil, err
	}
	if record != nil {
		return record, nil
	}

	now := s.clock.Now()
	record = &usagedomain.UsageTracking{
		ID:          s.genID.Generate(),
		UserID:      userID,
		PeriodStart: period.Start,
		PeriodEnd:   period.End,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Insert(ctx, s.db, record); err != nil {
		if !db.IsDuplicateKeyErr(err) {
			return nil, err
		}
		// Lost the insert race; the winner's row is authoritative.
		existing, findErr := s.repo.FindByPeriod(ctx, s.db, userID, period.Start)
		if findErr != nil {
			return nil, findErr
		}
		if existing == nil {
			return nil, err
		}
		return existing, nil
	}
	return record, nil
}

// IncrementCategory adds amount to the current period's counter in a single upsert.
func (s *Service) IncrementCategory(ctx context.Context, userID string, category plan.Category, amount int64) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return usagedomain.ErrInvalidUser
	}
	if !category.IsMonthly() {
		return usagedomain.ErrNotMonthlyCategory
	}
	if amount <= 0 {
		return usagedomain.ErrInvalidAmount
	}

	started := time.Now()
	period := s.CurrentPeriod()
	now := s.clock.Now()
	record := &usagedomain.UsageTracking{
		ID:          s.genID.Generate(),
		UserID:      userID,
		PeriodStart: period.Start,
		PeriodEnd:   period.End,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Increment(ctx, s.db, record, category, amount); err != nil {
		s.ledger.IncCommitError(err)
		s.log.Error("usage increment failed",
			zap.String("user_id", userID),
			zap.String("category", string(category)),
			zap.Int64("amount", amount),
			zap.Error(err),
		)
		return err
	}

	s.ledger.ObserveCommit(string(category), time.Since(started))
	s.metrics.RecordUsageCommit(ctx, string(category), amount)
	return nil
}

// ResetCurrentMonth deletes the user's current period row.
func (s *Service) ResetCurrentMonth(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return usagedomain.ErrInvalidUser
	}

	period := s.CurrentPeriod()
	deleted, err := s.repo.DeleteByPeriod(ctx, s.db, userID, period.Start)
	if err != nil {
		return err
	}
	s.ledger.IncReset()
	s.log.Info("usage reset",
		zap.String("user_id", userID),
		zap.String("period", period.Key()),
		zap.Int64("rows", deleted),
	)
	return nil
}

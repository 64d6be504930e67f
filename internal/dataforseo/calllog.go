package dataforseo

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/seometer/internal/clock"
	"github.com/smallbiznis/seometer/pkg/db/option"
	"github.com/smallbiznis/seometer/pkg/repository"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	OutcomeOK             = "ok"
	OutcomeDenied         = "denied"
	OutcomeRateLimited    = "rate_limited"
	OutcomeVendorError    = "vendor_error"
	OutcomeTransportError = "transport_error"
	OutcomeConfigError    = "config_error"
)

// VendorCall is an audit row for every metered vendor call attempt.
type VendorCall struct {
	ID               snowflake.ID      `gorm:"primaryKey" json:"id"`
	UserID           string            `gorm:"type:text;not null;index:idx_vendor_calls_user_created,priority:1" json:"user_id"`
	Path             string            `gorm:"type:text;not null" json:"path"`
	Category         string            `gorm:"type:text;not null" json:"category"`
	Increment        int64             `gorm:"not null;default:0" json:"increment"`
	Outcome          string            `gorm:"type:text;not null" json:"outcome"`
	VendorStatusCode int               `gorm:"not null;default:0" json:"vendor_status_code"`
	Cost             float64           `gorm:"not null;default:0" json:"cost"`
	DurationMS       int64             `gorm:"column:duration_ms;not null;default:0" json:"duration_ms"`
	Metadata         datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt        time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP;index:idx_vendor_calls_user_created,priority:2" json:"created_at"`
}

// TableName sets the database table name.
func (VendorCall) TableName() string { return "vendor_calls" }

// Recorder persists VendorCall rows. Write failures are logged, never returned.
type Recorder struct {
	db    *gorm.DB
	genID *snowflake.Node
	clock clock.Clock
	log   *zap.Logger
}

func NewRecorder(db *gorm.DB, genID *snowflake.Node, clk clock.Clock, log *zap.Logger) *Recorder {
	return &Recorder{
		db:    db,
		genID: genID,
		clock: clk,
		log:   log.Named("dataforseo.calllog"),
	}
}

func (r *Recorder) Record(ctx context.Context, call VendorCall) {
	if r == nil || r.db == nil {
		return
	}
	call.ID = r.genID.Generate()
	if call.CreatedAt.IsZero() {
		call.CreatedAt = r.clock.Now()
	}
	if err := repository.New[VendorCall](r.db).Insert(context.WithoutCancel(ctx), &call); err != nil {
		r.log.Warn("vendor call log write failed",
			zap.String("path", call.Path),
			zap.String("outcome", call.Outcome),
			zap.Error(err),
		)
	}
}

const (
	defaultRecentLimit = 20
	maxRecentLimit     = 100
)

// Recent lists the user's latest vendor calls, newest first.
func (r *Recorder) Recent(ctx context.Context, userID string, limit int) ([]VendorCall, error) {
	if userID == "" {
		return nil, nil
	}
	switch {
	case limit <= 0:
		limit = defaultRecentLimit
	case limit > maxRecentLimit:
		limit = maxRecentLimit
	}
	return repository.New[VendorCall](r.db).List(ctx,
		&VendorCall{UserID: userID},
		option.WithOrder("created_at DESC, id DESC"),
		option.WithLimit(limit),
	)
}

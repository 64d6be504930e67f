package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	LedgerErrorReasonDeadlineExceeded     = "deadline_exceeded"
	LedgerErrorReasonDBLockTimeout        = "db_lock_timeout"
	LedgerErrorReasonSerializationFailure = "serialization_failure"
	LedgerErrorReasonUniqueViolation      = "unique_violation"
	LedgerErrorReasonLockContended        = "lock_contended"
	LedgerErrorReasonUnknown              = "unknown"
)

// ErrLockContended marks a commit that gave up waiting for the per-user lock.
var ErrLockContended = errors.New("lock_contended")

// LedgerMetrics exposes usage-ledger health on the Prometheus /metrics endpoint.
type LedgerMetrics struct {
	commits        *prometheus.CounterVec
	commitDuration *prometheus.HistogramVec
	commitErrors   *prometheus.CounterVec
	resets         prometheus.Counter
	lockWait       prometheus.Histogram
}

var (
	ledgerMetricsOnce sync.Once
	ledgerMetrics     *LedgerMetrics
)

// LedgerWithConfig registers the ledger collectors on the default registerer once per process.
func LedgerWithConfig(cfg Config) *LedgerMetrics {
	ledgerMetricsOnce.Do(func() {
		ledgerMetrics = NewLedgerMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return ledgerMetrics
}

// NewLedgerMetrics registers ledger collectors on registerer.
func NewLedgerMetrics(registerer prometheus.Registerer, cfg Config) *LedgerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "seometer"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	commits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "seometer_ledger_commits_total",
		Help:        "Usage ledger increments by category.",
		ConstLabels: constLabels,
	}, []string{"category"})
	commitDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "seometer_ledger_commit_duration_seconds",
		Help:        "Usage ledger upsert latency.",
		Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		ConstLabels: constLabels,
	}, []string{"category"})
	commitErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "seometer_ledger_commit_errors_total",
		Help:        "Usage ledger write failures by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"reason"})
	resets := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "seometer_ledger_resets_total",
		Help:        "Administrative resets of the current month record.",
		ConstLabels: constLabels,
	})
	lockWait := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "seometer_ledger_lock_wait_seconds",
		Help:        "Time spent acquiring the per-user commit lock.",
		Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		ConstLabels: constLabels,
	})

	registerer.MustRegister(commits, commitDuration, commitErrors, resets, lockWait)

	return &LedgerMetrics{
		commits:        commits,
		commitDuration: commitDuration,
		commitErrors:   commitErrors,
		resets:         resets,
		lockWait:       lockWait,
	}
}

func (m *LedgerMetrics) ObserveCommit(category string, duration time.Duration) {
	if m == nil {
		return
	}
	m.commits.WithLabelValues(category).Inc()
	m.commitDuration.WithLabelValues(category).Observe(duration.Seconds())
}

func (m *LedgerMetrics) IncCommitError(err error) {
	if m == nil || err == nil {
		return
	}
	m.commitErrors.WithLabelValues(ClassifyLedgerError(err)).Inc()
}

func (m *LedgerMetrics) IncReset() {
	if m == nil {
		return
	}
	m.resets.Inc()
}

func (m *LedgerMetrics) ObserveLockWait(duration time.Duration) {
	if m == nil {
		return
	}
	if duration < 0 {
		duration = 0
	}
	m.lockWait.Observe(duration.Seconds())
}

// ClassifyLedgerError maps storage failures to a stable reason label.
func ClassifyLedgerError(err error) string {
	if err == nil {
		return LedgerErrorReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return LedgerErrorReasonDeadlineExceeded
	}
	if errors.Is(err, ErrLockContended) {
		return LedgerErrorReasonLockContended
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return LedgerErrorReasonUniqueViolation
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "55P03":
			return LedgerErrorReasonDBLockTimeout
		case "40001":
			return LedgerErrorReasonSerializationFailure
		case "23505":
			return LedgerErrorReasonUniqueViolation
		}
	}
	return LedgerErrorReasonUnknown
}

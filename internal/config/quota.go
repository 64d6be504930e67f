package config

import (
	"errors"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// QuotaConfig carries runtime knobs for the quota guard and vendor wrapper.
// It is hot-reloaded from quota.yml.
type QuotaConfig struct {
	WarningPercent   int     `mapstructure:"warningPercent"`
	SerializeCommits bool    `mapstructure:"serializeCommits"`
	LockTTLSeconds   int     `mapstructure:"lockTTLSeconds"`
	LockWaitMillis   int     `mapstructure:"lockWaitMillis"`
	VendorRate       float64 `mapstructure:"vendorRate"`
	VendorBurst      int     `mapstructure:"vendorBurst"`
	PlanCacheSeconds int     `mapstructure:"planCacheSeconds"`
}

func DefaultQuotaConfig() QuotaConfig {
	return QuotaConfig{
		WarningPercent:   80,
		SerializeCommits: false,
		LockTTLSeconds:   10,
		LockWaitMillis:   500,
		VendorRate:       0,
		VendorBurst:      0,
		PlanCacheSeconds: 30,
	}
}

func (c QuotaConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

func (c QuotaConfig) LockWait() time.Duration {
	return time.Duration(c.LockWaitMillis) * time.Millisecond
}

func (c QuotaConfig) PlanCacheTTL() time.Duration {
	return time.Duration(c.PlanCacheSeconds) * time.Second
}

// VendorLimitEnabled reports whether outbound vendor calls are token-bucket limited.
func (c QuotaConfig) VendorLimitEnabled() bool {
	return c.VendorRate > 0 && c.VendorBurst > 0
}

type QuotaConfigHolder struct {
	current atomic.Value // holds QuotaConfig
}

// NewQuotaConfigHolder loads quota.yml from the standard search paths.
func NewQuotaConfigHolder(log *zap.Logger) (*QuotaConfigHolder, error) {
	paths := []string{
		"/var/lib/seometer/config", // Volume-mounted config
		"/etc/seometer",            // System config
		".",                        // Current directory (dev mode)
	}
	if dir := strings.TrimSpace(os.Getenv("SEOMETER_CONFIG_DIR")); dir != "" {
		paths = append([]string{dir}, paths...)
	}
	return LoadQuotaConfigHolder(log, paths...)
}

// LoadQuotaConfigHolder reads quota.yml from the given directories and watches it.
func LoadQuotaConfigHolder(log *zap.Logger, paths ...string) (*QuotaConfigHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.quota")

	v := viper.New()
	v.SetConfigName("quota")
	v.SetConfigType("yml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvPrefix("SEOMETER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultQuotaConfig()
	v.SetDefault("quota.warningPercent", defaults.WarningPercent)
	v.SetDefault("quota.serializeCommits", defaults.SerializeCommits)
	v.SetDefault("quota.lockTTLSeconds", defaults.LockTTLSeconds)
	v.SetDefault("quota.lockWaitMillis", defaults.LockWaitMillis)
	v.SetDefault("quota.vendorRate", defaults.VendorRate)
	v.SetDefault("quota.vendorBurst", defaults.VendorBurst)
	v.SetDefault("quota.planCacheSeconds", defaults.PlanCacheSeconds)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	cfg, err := decodeQuotaConfig(v)
	if err != nil {
		return nil, err
	}

	holder := &QuotaConfigHolder{}
	holder.current.Store(cfg)

	if !fileFound {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeQuotaConfig(v)
		if err != nil {
			log.Warn("invalid config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

// NewStaticQuotaConfigHolder wraps a fixed config.
func NewStaticQuotaConfigHolder(cfg QuotaConfig) *QuotaConfigHolder {
	holder := &QuotaConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *QuotaConfigHolder) Get() QuotaConfig {
	if h == nil {
		return DefaultQuotaConfig()
	}
	cfg, ok := h.current.Load().(QuotaConfig)
	if !ok {
		return DefaultQuotaConfig()
	}
	return cfg
}

// decodeQuotaConfig overlays the keys present under quota: onto the defaults.
func decodeQuotaConfig(v *viper.Viper) (QuotaConfig, error) {
	cfg := DefaultQuotaConfig()
	if err := v.UnmarshalKey("quota", &cfg); err != nil {
		return QuotaConfig{}, err
	}
	if err := validateQuotaConfig(cfg); err != nil {
		return QuotaConfig{}, err
	}
	return cfg, nil
}

func validateQuotaConfig(cfg QuotaConfig) error {
	if cfg.WarningPercent <= 0 || cfg.WarningPercent > 100 {
		return errors.New("quota.warningPercent must be within 1..100")
	}
	if cfg.LockTTLSeconds <= 0 {
		return errors.New("quota.lockTTLSeconds must be positive")
	}
	if cfg.LockWaitMillis < 0 {
		return errors.New("quota.lockWaitMillis cannot be negative")
	}
	if cfg.VendorRate < 0 || cfg.VendorBurst < 0 {
		return errors.New("quota.vendorRate and quota.vendorBurst cannot be negative")
	}
	if cfg.PlanCacheSeconds < 0 {
		return errors.New("quota.planCacheSeconds cannot be negative")
	}
	return nil
}

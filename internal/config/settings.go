package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Settings holds the dispatcher's engine tunables. Values come from
// environment variables prefixed with DISPATCH_ (e.g. DISPATCH_PAGE_SIZE),
// optionally overridden by a config file.
type Settings struct {
	// PageSize bounds how many requests one page transaction claims.
	PageSize int `mapstructure:"page_size" validate:"gt=0"`

	// LockLease is the ceiling on how long one scan may hold its tenant
	// lock. Sized comfortably above the expected time to drain one scan's
	// worth of pages.
	LockLease time.Duration `mapstructure:"lock_lease" validate:"gt=0"`

	// ScanSchedule is the cron spec driving periodic auto-scans.
	ScanSchedule string `mapstructure:"scan_schedule" validate:"required"`

	// WorkerTTL is how long after the last heartbeat a worker type is still
	// considered alive.
	WorkerTTL time.Duration `mapstructure:"worker_ttl" validate:"gt=0"`

	// TenantConcurrency caps how many tenants are scanned in parallel per tick.
	TenantConcurrency int `mapstructure:"tenant_concurrency" validate:"gt=0"`

	// ScanTriggersPerSecond rate-limits scan triggers per tenant, with
	// ScanTriggerBurst allowing short spikes from availability events.
	ScanTriggersPerSecond float64 `mapstructure:"scan_triggers_per_second" validate:"gt=0"`
	ScanTriggerBurst      int     `mapstructure:"scan_trigger_burst" validate:"gt=0"`

	// WorkerConfigPath locates the YAML worker configuration document.
	WorkerConfigPath string `mapstructure:"worker_config_path" validate:"required"`
}

// LoadSettings reads settings from the environment (and an optional config
// file path) and validates them.
func LoadSettings(configFile string) (Settings, error) {
	v := viper.New()

	v.SetDefault("page_size", 400)
	v.SetDefault("lock_lease", 30*time.Second)
	v.SetDefault("scan_schedule", "@every 1m")
	v.SetDefault("worker_ttl", 2*time.Minute)
	v.SetDefault("tenant_concurrency", 4)
	v.SetDefault("scan_triggers_per_second", 1.0)
	v.SetDefault("scan_trigger_burst", 5)
	v.SetDefault("worker_config_path", "/etc/dispatch/workers.yaml")

	v.SetEnvPrefix("DISPATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Settings{}, fmt.Errorf("reading config file %s: %w", configFile, err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("unmarshaling settings: %w", err)
	}

	if err := validator.New().Struct(s); err != nil {
		return Settings{}, fmt.Errorf("invalid settings: %w", err)
	}

	return s, nil
}

// Package config loads process configuration the teacher's way: env vars read through
// envutil helpers, with an optional viper-backed config file layered underneath for the
// tasksd CLI (spec §2.3) — config loading itself is an external collaborator per
// spec.md §1, but the ambient convention for reading it is carried regardless.
package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/corrigan-tasks/engine/internal/platform/envutil"
	"github.com/corrigan-tasks/engine/internal/registry"
	"github.com/corrigan-tasks/engine/internal/worker"
)

// Config is the full set of knobs a tasksd process needs.
type Config struct {
	DBDriver string // "postgres" or "sqlite"
	DBDSN    string

	RunLimit           int
	RunRescheduleDelay time.Duration

	WorkerPoolSize int
	IdleInterval   time.Duration
	FollowInterval time.Duration

	HTTPAddr string

	RedisAddr string // empty disables the fast-wake follower path

	OTelEnabled    bool
	OTelServiceName string

	LogMode string
}

// Load reads the YAML file at configPath (if non-empty) underneath env vars, with
// env vars winning — the same override order the teacher applies for every other
// environment-driven service.
func Load(configPath string) (Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	cfg := Config{
		DBDriver:           firstNonEmpty(envutil.String("DB_DRIVER", ""), v.GetString("db.driver"), "sqlite"),
		DBDSN:              firstNonEmpty(envutil.String("DB_DSN", ""), v.GetString("db.dsn"), "file::memory:?cache=shared"),
		RunLimit:           runLimit(v),
		RunRescheduleDelay: envutil.Duration("RUN_RESCHEDULE_DELAY", v.GetDuration("run_reschedule_delay")),
		WorkerPoolSize:     envutil.Int("WORKER_POOL_SIZE", 4),
		IdleInterval:       envutil.Duration("IDLE_INTERVAL", 25*time.Millisecond),
		FollowInterval:     envutil.Duration("FOLLOW_INTERVAL", 50*time.Millisecond),
		HTTPAddr:           envutil.String("HTTP_ADDR", ":8080"),
		RedisAddr:          envutil.String("REDIS_ADDR", ""),
		OTelEnabled:        envutil.Bool("OTEL_ENABLED", false),
		OTelServiceName:    envutil.String("OTEL_SERVICE_NAME", "tasksd"),
		LogMode:            envutil.String("LOG_MODE", "development"),
	}
	return cfg, nil
}

// runLimit resolves RUN_LIMIT with env winning over the config file winning over the
// registry default — but, unlike envutil.Int, an explicit 0 from either source must
// survive: run_limit=0 is a meaningful boundary (reject all work on the first
// exception, no retry), not an unset sentinel.
func runLimit(v *viper.Viper) int {
	if n, ok := envutil.LookupInt("RUN_LIMIT"); ok {
		return n
	}
	if v.IsSet("run_limit") {
		return v.GetInt("run_limit")
	}
	return registry.DefaultConfig().RunLimit
}

func (c Config) RegistryConfig() registry.Config {
	return registry.Config{RunLimit: c.RunLimit, RunRescheduleDelay: c.RunRescheduleDelay}
}

func (c Config) WorkerConfig(allowedNames []string) worker.Config {
	return worker.Config{AllowedNames: allowedNames, IdleInterval: c.IdleInterval}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

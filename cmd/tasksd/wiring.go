package main

import (
	"context"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/corrigan-tasks/engine/internal/config"
	"github.com/corrigan-tasks/engine/internal/dispatcher"
	"github.com/corrigan-tasks/engine/internal/follower"
	"github.com/corrigan-tasks/engine/internal/notify/redisbus"
	"github.com/corrigan-tasks/engine/internal/observability"
	"github.com/corrigan-tasks/engine/internal/platform/logger"
	"github.com/corrigan-tasks/engine/internal/registry"
	"github.com/corrigan-tasks/engine/internal/store/gormstore"
	"github.com/corrigan-tasks/engine/internal/task"
)

// engine bundles the components a tasksd process needs, constructed once per command
// invocation from config.Config.
type engine struct {
	store      *gormstore.Store
	registry   *registry.Registry
	dispatcher *dispatcher.Dispatcher
	follower   *follower.Follower
	metrics    *observability.Metrics
	wake       *redisbus.Bus
}

func buildEngine(ctx context.Context, cfg config.Config, log *logger.Logger) (*engine, error) {
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	metrics := observability.Init(nil)

	s := gormstore.New(db, log).WithMetrics(metrics)
	if err := s.Migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	reg := registry.New(cfg.RegistryConfig())
	if err := registerBuiltinHandlers(reg); err != nil {
		return nil, fmt.Errorf("register handlers: %w", err)
	}

	disp := dispatcher.New(s, reg, log).WithMetrics(metrics)

	var wake *redisbus.Bus
	if cfg.RedisAddr != "" {
		wake, err = redisbus.New(cfg.RedisAddr, log)
		if err != nil {
			log.Warn("redis wake source unavailable, falling back to poll-only follow", "error", err)
			wake = nil
		}
	}
	if wake != nil {
		s.WithNotifier(wake)
	}

	f := follower.New(s, log)
	if wake != nil {
		f = f.WithWakeSource(wake)
	}

	return &engine{store: s, registry: reg, dispatcher: disp, follower: f, metrics: metrics, wake: wake}, nil
}

func (e *engine) Close() error {
	if e.wake != nil {
		return e.wake.Close()
	}
	return nil
}

func dialectorFor(cfg config.Config) (gorm.Dialector, error) {
	switch cfg.DBDriver {
	case "postgres":
		return postgres.Open(cfg.DBDSN), nil
	case "sqlite", "":
		return sqlite.Open(cfg.DBDSN), nil
	default:
		return nil, fmt.Errorf("unsupported db driver %q", cfg.DBDriver)
	}
}

// registerBuiltinHandlers registers the one handler tasksd ships out of the box: a
// no-op used to smoke-test enqueue/serve/follow without requiring a separate binary
// that imports this engine and registers real handlers.
func registerBuiltinHandlers(reg *registry.Registry) error {
	return reg.Register(func(ctx context.Context, t *task.Task, params map[string]any) error {
		return t.LogInfo(ctx, "noop handler executed")
	}, "noop")
}

// Package worker implements the polling worker loop (spec §4.G): repeatedly pick the
// next eligible task and dispatch it; when none are eligible, idle-sleep before
// polling again. A Pool runs a fixed number of such loops against one shared store.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/corrigan-tasks/engine/internal/dispatcher"
	"github.com/corrigan-tasks/engine/internal/platform/logger"
	"github.com/corrigan-tasks/engine/internal/store"
)

// Config controls polling cadence.
type Config struct {
	AllowedNames []string
	IdleInterval time.Duration // sleep between empty pick_next polls
}

func DefaultConfig(allowedNames []string) Config {
	return Config{AllowedNames: allowedNames, IdleInterval: 25 * time.Millisecond}
}

// Worker is a single-flight polling loop: it runs at most one dispatch at a time.
type Worker struct {
	id     string
	store  store.TaskStore
	disp   *dispatcher.Dispatcher
	cfg    Config
	log    *logger.Logger
}

func New(id string, s store.TaskStore, d *dispatcher.Dispatcher, cfg Config, log *logger.Logger) *Worker {
	if cfg.IdleInterval <= 0 {
		cfg.IdleInterval = 25 * time.Millisecond
	}
	return &Worker{id: id, store: s, disp: d, cfg: cfg, log: log.With("worker_id", id)}
}

// Run polls until ctx is done. On a BackendError mid-transition, the worker logs the
// fault and keeps polling — it takes no recovery action on the affected task, which is
// left exactly as the store persisted it (§4.G, §7.3).
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		t, err := w.store.PickNext(ctx, w.cfg.AllowedNames)
		if err != nil {
			w.log.Warn("pick_next failed", "error", err)
			w.sleep(ctx)
			continue
		}
		if t == nil {
			w.sleep(ctx)
			continue
		}

		w.log.Debug("dispatching task", "task_id", t.ID(), "task_name", t.Name())
		if err := w.disp.Dispatch(ctx, t); err != nil {
			w.log.Warn("dispatch failed", "task_id", t.ID(), "error", err)
		}
	}
}

func (w *Worker) sleep(ctx context.Context) {
	timer := time.NewTimer(w.cfg.IdleInterval)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// Pool supervises N Workers sharing one store, stopping them together on the first
// fatal error or on context cancellation (§5: "many workers may share one store").
type Pool struct {
	workers []*Worker
}

func NewPool(size int, s store.TaskStore, d *dispatcher.Dispatcher, cfg Config, log *logger.Logger) *Pool {
	if size < 1 {
		size = 1
	}
	p := &Pool{workers: make([]*Worker, 0, size)}
	for i := 0; i < size; i++ {
		p.workers = append(p.workers, New(workerID(i), s, d, cfg, log))
	}
	return p
}

func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, w := range p.workers {
		w := w
		g.Go(func() error { return w.Run(ctx) })
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func workerID(i int) string {
	return uuid.New().String()
}

// Package dispatcher executes one claimed task (spec §4.F): transitions it to ACTIVE,
// invokes its handler, and translates the outcome into a retry-or-fail decision. The
// state-machine transitions (run, run_fail, terminal statuses) are intentionally not
// methods on task.Task — they live here, so a handler can never call them itself.
package dispatcher

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/corrigan-tasks/engine/internal/frame"
	"github.com/corrigan-tasks/engine/internal/observability"
	"github.com/corrigan-tasks/engine/internal/platform/logger"
	"github.com/corrigan-tasks/engine/internal/registry"
	"github.com/corrigan-tasks/engine/internal/store"
	"github.com/corrigan-tasks/engine/internal/task"
	"github.com/corrigan-tasks/engine/internal/taskerr"
)

var tracer = otel.Tracer("github.com/corrigan-tasks/engine/internal/dispatcher")

// Dispatcher drives the per-task retry state machine described in spec §4.F.
type Dispatcher struct {
	store    store.TaskStore
	registry *registry.Registry
	log      *logger.Logger
	metrics  *observability.Metrics
}

func New(s store.TaskStore, r *registry.Registry, log *logger.Logger) *Dispatcher {
	return &Dispatcher{store: s, registry: r, log: log.With("component", "Dispatcher")}
}

// WithMetrics attaches a metrics sink; m may be nil (metrics disabled).
func (d *Dispatcher) WithMetrics(m *observability.Metrics) *Dispatcher {
	d.metrics = m
	return d
}

// Dispatch executes exactly one run of t, end to end: ACTIVE transition, handler
// invocation, and the terminal or retry frames that follow. It returns a non-nil error
// only for store failures (a BackendError, or a ProtocolViolation when the task already
// carries a terminal STATUS frame); handler failures are absorbed into the task's own
// frame log and reported there, not via this return value (§7.3).
func (d *Dispatcher) Dispatch(ctx context.Context, t *task.Task) error {
	ctx, span := tracer.Start(ctx, "dispatcher.Dispatch",
		trace.WithAttributes(
			attribute.Int64("task.id", t.ID()),
			attribute.String("task.name", t.Name()),
		))
	defer span.End()

	if err := d.runActive(ctx, t.ID()); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "run_active transition failed")
		return err
	}
	d.metrics.IncRunDispatched(t.Name())
	started := time.Now()

	handler, ok := d.registry.Get(t.Name())
	var handlerErr error
	if !ok {
		handlerErr = &taskerr.UnknownTaskName{Name: t.Name(), TaskID: t.ID()}
	} else {
		handlerErr = d.invoke(ctx, handler, t)
	}

	if handlerErr == nil {
		err := d.taskCompleted(ctx, t.ID())
		d.metrics.ObserveRunOutcome(t.Name(), "completed", time.Since(started).Seconds())
		return err
	}
	return d.handleFailure(ctx, t, handlerErr, started)
}

// invoke calls the handler, converting a panic into a HandlerError the same way the
// retry path handles any other failure — a handler that panics is not special-cased.
func (d *Dispatcher) invoke(ctx context.Context, h registry.Func, t *task.Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &taskerr.HandlerError{TaskName: t.Name(), Cause: fmt.Errorf("panic: %v", r)}
		}
	}()
	if runErr := h(ctx, t, t.Parameters()); runErr != nil {
		return &taskerr.HandlerError{TaskName: t.Name(), Cause: runErr}
	}
	return nil
}

// handleFailure implements spec §4.F step 5: log the cause, count runs, then either
// reschedule or fail terminally. The ordering here — cause log, count log, RUN_FAILED,
// next status — is observable and contractual (§4.F, §8 scenarios 2 and 3).
func (d *Dispatcher) handleFailure(ctx context.Context, t *task.Task, cause error, started time.Time) error {
	if err := t.LogError(ctx, cause.Error()); err != nil {
		return err
	}
	r, err := t.Runs(ctx)
	if err != nil {
		return err
	}
	cfg := d.registry.Config()
	if r >= cfg.RunLimit {
		if err := t.LogError(ctx, fmt.Sprintf("Failed %d runs, exceeded run limit of %d", r, cfg.RunLimit)); err != nil {
			return err
		}
		if err := d.runFailed(ctx, t.ID()); err != nil {
			return err
		}
		err = d.taskFailed(ctx, t.ID())
		d.metrics.ObserveRunOutcome(t.Name(), "failed", time.Since(started).Seconds())
		return err
	}
	if err := t.LogError(ctx, fmt.Sprintf("Failed %d runs, rescheduling", r)); err != nil {
		return err
	}
	if err := d.runFailed(ctx, t.ID()); err != nil {
		return err
	}
	err = d.runScheduled(ctx, t.ID(), cfg.RunRescheduleDelay)
	d.metrics.ObserveRunOutcome(t.Name(), "rescheduled", time.Since(started).Seconds())
	return err
}

// --- dispatcher-owned state transitions (never exposed on task.Task) ---

func (d *Dispatcher) runActive(ctx context.Context, taskID int64) error {
	if err := d.store.Unschedule(ctx, taskID); err != nil {
		return err
	}
	_, err := d.store.Append(ctx, taskID, frame.NewStatus(taskID, frame.RunActive))
	return err
}

func (d *Dispatcher) runFailed(ctx context.Context, taskID int64) error {
	_, err := d.store.Append(ctx, taskID, frame.NewStatus(taskID, frame.RunFailed))
	return err
}

// runScheduled sets scheduled_at = now()+delay, then appends the RUN_SCHEDULED frame:
// the scheduling side-effect and the frame append happen in that order (§9 open
// question, resolved per the original task_schedule-then-frame_append sequence).
func (d *Dispatcher) runScheduled(ctx context.Context, taskID int64, delay time.Duration) error {
	if err := d.store.Schedule(ctx, taskID, delay); err != nil {
		return err
	}
	_, err := d.store.Append(ctx, taskID, frame.NewStatus(taskID, frame.RunScheduled))
	return err
}

func (d *Dispatcher) taskCompleted(ctx context.Context, taskID int64) error {
	_, err := d.store.Append(ctx, taskID, frame.NewStatus(taskID, frame.TaskCompleted))
	return err
}

func (d *Dispatcher) taskFailed(ctx context.Context, taskID int64) error {
	_, err := d.store.Append(ctx, taskID, frame.NewStatus(taskID, frame.TaskFailed))
	return err
}

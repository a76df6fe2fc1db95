// Package task defines the Task value handed to handlers: identity, parameters, and a
// narrow, emit-only back-channel to the store. State-machine transitions (run, run_fail,
// task_complete, task_fail, run_scheduled) are dispatcher-owned and deliberately absent
// from this type — see internal/dispatcher.
package task

import (
	"context"
	"time"

	"github.com/corrigan-tasks/engine/internal/frame"
)

// Store is the narrow slice of TaskStore a Task needs to emit frames and read back its
// own run count. Defined here (rather than imported from internal/store) so this
// package never depends on the store package; any concrete TaskStore implementation
// satisfies this interface structurally.
type Store interface {
	Append(ctx context.Context, taskID int64, f frame.Frame) (frame.Frame, error)
	Frames(ctx context.Context, taskID int64, filter *frame.Type) ([]frame.Frame, error)
}

// Task is a detached snapshot of a task's identity plus a handle for a handler to
// append frames during its execution. It must not be retained past the dispatch call
// that produced it — the handle is invalid once a terminal STATUS frame is appended.
type Task struct {
	id         int64
	name       string
	parameters map[string]any
	store      Store
}

// New constructs a Task. Callers are almost always a TaskStore implementation; tests
// may construct one directly against a fake Store.
func New(id int64, name string, parameters map[string]any, store Store) *Task {
	if parameters == nil {
		parameters = map[string]any{}
	}
	return &Task{id: id, name: name, parameters: parameters, store: store}
}

func (t *Task) ID() int64                   { return t.id }
func (t *Task) Name() string                { return t.name }
func (t *Task) Parameters() map[string]any  { return t.parameters }

// Data appends a DATA frame carrying an arbitrary JSON-representable value.
func (t *Task) Data(ctx context.Context, v any) error {
	_, err := t.store.Append(ctx, t.id, frame.NewData(t.id, v))
	return err
}

// Progression appends a PROGRESSION frame, conventionally a resumable cursor.
func (t *Task) Progression(ctx context.Context, v any) error {
	_, err := t.store.Append(ctx, t.id, frame.NewProgression(t.id, v))
	return err
}

// LogInfo appends an informational log frame.
func (t *Task) LogInfo(ctx context.Context, s string) error {
	_, err := t.store.Append(ctx, t.id, frame.NewLogInfo(t.id, s))
	return err
}

// LogError appends an error log frame.
func (t *Task) LogError(ctx context.Context, s string) error {
	_, err := t.store.Append(ctx, t.id, frame.NewLogError(t.id, s))
	return err
}

// Runs returns the number of RUN_ACTIVE status frames observed so far for this task,
// including the currently-in-progress attempt.
func (t *Task) Runs(ctx context.Context) (int, error) {
	statusType := frame.TypeStatus
	frames, err := t.store.Frames(ctx, t.id, &statusType)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, f := range frames {
		if s, ok := f.Data.(frame.Status); ok && s == frame.RunActive {
			n++
		}
	}
	return n, nil
}

// Snapshot mirrors a persisted task row and carries no store handle. The stores'
// Create and PickNext return *Task, not Snapshot.
type Snapshot struct {
	ID          int64
	Name        string
	Parameters  map[string]any
	ScheduledAt *time.Time
}

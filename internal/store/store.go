// Package store defines the durable TaskStore contract (spec §4.C). Concrete backends
// live in sibling packages (gormstore for Postgres/SQLite, memstore for tests).
package store

import (
	"context"
	"time"

	"github.com/corrigan-tasks/engine/internal/frame"
	"github.com/corrigan-tasks/engine/internal/task"
)

// Event is one item of a Follow stream: either a Frame in id order, or a terminal
// error. The stream closes after an Err is sent, or after a terminal task-level STATUS
// Frame is sent, or when ctx is done — whichever happens first.
type Event struct {
	Frame frame.Frame
	Err   error
}

// TaskStore is the durable backend every other component is built against.
type TaskStore interface {
	// Create assigns a fresh id, persists (name, JSON(parameters), scheduled_at=now()),
	// and returns the new Task in the SCHEDULED state.
	Create(ctx context.Context, name string, parameters map[string]any) (*task.Task, error)

	// Append atomically persists f with a fresh frame id larger than any existing
	// frame id for taskID, and returns f with that id populated. Returns a
	// *taskerr.ProtocolViolation (without writing) if f is a STATUS frame and the
	// task already carries a terminal STATUS frame.
	Append(ctx context.Context, taskID int64, f frame.Frame) (frame.Frame, error)

	// Frames returns all frames for taskID ordered by id, optionally filtered to a
	// single type. Snapshot isolation within the call.
	Frames(ctx context.Context, taskID int64, filter *frame.Type) ([]frame.Frame, error)

	// Follow streams every frame with id > resumeFromID in id order, blocking by
	// re-polling every pollInterval, until a terminal task-level STATUS frame is sent
	// or ctx is done; then the returned channel is closed.
	Follow(ctx context.Context, taskID int64, resumeFromID int64, pollInterval time.Duration) <-chan Event

	// Schedule sets scheduled_at = now() + delay.
	Schedule(ctx context.Context, taskID int64, delay time.Duration) error

	// Unschedule sets scheduled_at = null.
	Unschedule(ctx context.Context, taskID int64) error

	// PickNext returns the eligible task with the smallest scheduled_at whose name is
	// in allowedNames, atomically claiming it (scheduled_at set to null) so no other
	// concurrent caller can return the same task. Returns (nil, nil) if none eligible.
	PickNext(ctx context.Context, allowedNames []string) (*task.Task, error)
}

// Package memstore is an in-memory TaskStore used by unit tests for the dispatcher,
// worker and follower, so those suites exercise pure state-machine logic without
// depending on a SQL driver. The gormstore package carries the equivalent
// backend-contract tests against real in-memory SQLite.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/corrigan-tasks/engine/internal/frame"
	"github.com/corrigan-tasks/engine/internal/store"
	"github.com/corrigan-tasks/engine/internal/task"
	"github.com/corrigan-tasks/engine/internal/taskerr"
)

type taskRecord struct {
	id          int64
	name        string
	parameters  map[string]any
	scheduledAt *time.Time
}

// Store is a goroutine-safe, in-process TaskStore.
type Store struct {
	mu        sync.Mutex
	nextTask  int64
	nextFrame int64
	tasks     map[int64]*taskRecord
	frames    map[int64][]frame.Frame // taskID -> frames in append order
}

func New() *Store {
	return &Store{
		tasks:  make(map[int64]*taskRecord),
		frames: make(map[int64][]frame.Frame),
	}
}

func (s *Store) Create(ctx context.Context, name string, parameters map[string]any) (*task.Task, error) {
	if parameters == nil {
		parameters = map[string]any{}
	}
	if _, reserved := parameters["task"]; reserved {
		return nil, &taskerr.RegistrationError{Name: name, Reason: `parameters must not contain reserved key "task"`}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextTask++
	id := s.nextTask
	now := time.Now()
	s.tasks[id] = &taskRecord{id: id, name: name, parameters: parameters, scheduledAt: &now}
	return task.New(id, name, parameters, s), nil
}

func (s *Store) Append(ctx context.Context, taskID int64, f frame.Frame) (frame.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f.Type == frame.TypeStatus {
		existing := s.frames[taskID]
		for i := len(existing) - 1; i >= 0; i-- {
			if existing[i].Type != frame.TypeStatus {
				continue
			}
			if st, ok := existing[i].Data.(frame.Status); ok && st.Terminal() {
				return frame.Frame{}, &taskerr.ProtocolViolation{TaskID: taskID, Attempted: string(f.Data.(frame.Status))}
			}
			break
		}
	}
	s.nextFrame++
	f.ID = s.nextFrame
	f.TaskID = taskID
	s.frames[taskID] = append(s.frames[taskID], f)
	return f, nil
}

func (s *Store) Frames(ctx context.Context, taskID int64, filter *frame.Type) ([]frame.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.frames[taskID]
	out := make([]frame.Frame, 0, len(all))
	for _, f := range all {
		if filter != nil && f.Type != *filter {
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

func (s *Store) Schedule(ctx context.Context, taskID int64, delay time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return &taskerr.BackendError{Op: "schedule", Cause: errTaskNotFound(taskID)}
	}
	at := time.Now().Add(delay)
	t.scheduledAt = &at
	return nil
}

func (s *Store) Unschedule(ctx context.Context, taskID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return &taskerr.BackendError{Op: "unschedule", Cause: errTaskNotFound(taskID)}
	}
	t.scheduledAt = nil
	return nil
}

func (s *Store) PickNext(ctx context.Context, allowedNames []string) (*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	allowed := make(map[string]bool, len(allowedNames))
	for _, n := range allowedNames {
		allowed[n] = true
	}
	now := time.Now()
	var best *taskRecord
	for _, t := range s.tasks {
		if !allowed[t.name] || t.scheduledAt == nil || t.scheduledAt.After(now) {
			continue
		}
		if s.hasTerminalStatus(t.id) {
			continue
		}
		if best == nil || t.scheduledAt.Before(*best.scheduledAt) {
			best = t
		}
	}
	if best == nil {
		return nil, nil
	}
	best.scheduledAt = nil // claim
	params := make(map[string]any, len(best.parameters))
	for k, v := range best.parameters {
		params[k] = v
	}
	return task.New(best.id, best.name, params, s), nil
}

func (s *Store) hasTerminalStatus(taskID int64) bool {
	for i := len(s.frames[taskID]) - 1; i >= 0; i-- {
		f := s.frames[taskID][i]
		if f.Type != frame.TypeStatus {
			continue
		}
		st, _ := f.Data.(frame.Status)
		return st.Terminal()
	}
	return false
}

// Follow polls the in-memory frame log. It is a convenience so tests can exercise
// Follower without a SQL backend; production deployments use gormstore.
func (s *Store) Follow(ctx context.Context, taskID int64, resumeFromID int64, pollInterval time.Duration) <-chan store.Event {
	out := make(chan store.Event)
	go func() {
		defer close(out)
		lastID := resumeFromID
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		for {
			s.mu.Lock()
			all := s.frames[taskID]
			var pending []frame.Frame
			for _, f := range all {
				if f.ID > lastID {
					pending = append(pending, f)
				}
			}
			s.mu.Unlock()

			for _, f := range pending {
				select {
				case out <- store.Event{Frame: f}:
				case <-ctx.Done():
					return
				}
				lastID = f.ID
				if f.Type == frame.TypeStatus {
					if st, ok := f.Data.(frame.Status); ok && st.Terminal() {
						return
					}
				}
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

type errTaskNotFound int64

func (e errTaskNotFound) Error() string { return "task not found" }

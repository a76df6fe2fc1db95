// Package gormstore is the relational TaskStore backend (spec §4.D): two tables,
// tasks and frames, behind gorm. It supports Postgres (row-locked claim via
// SELECT ... FOR UPDATE SKIP LOCKED) and SQLite (compare-and-swap claim, since SQLite
// has no row-level locking), matching the backend contract's two allowed claim
// strategies.
package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/corrigan-tasks/engine/internal/frame"
	"github.com/corrigan-tasks/engine/internal/observability"
	"github.com/corrigan-tasks/engine/internal/platform/logger"
	"github.com/corrigan-tasks/engine/internal/task"
	"github.com/corrigan-tasks/engine/internal/taskerr"
)

// Notifier is the optional fast-wake publish side (see internal/notify/redisbus.Bus):
// Append calls Publish after every successful append so a Follower with a matching
// WakeSource subscription notices sooner than its next poll tick.
type Notifier interface {
	Publish(ctx context.Context, taskID int64) error
}

// Store is the gorm-backed TaskStore implementation.
type Store struct {
	db         *gorm.DB
	log        *logger.Logger
	skipLocked bool // true for dialects that support SELECT ... FOR UPDATE SKIP LOCKED
	metrics    *observability.Metrics
	notifier   Notifier
}

// New wraps an already-connected *gorm.DB. Call Migrate once at startup.
func New(db *gorm.DB, log *logger.Logger) *Store {
	return &Store{
		db:         db,
		log:        log.With("component", "TaskStore"),
		skipLocked: db.Dialector.Name() == "postgres",
	}
}

// WithMetrics attaches a metrics sink; m may be nil (metrics disabled).
func (s *Store) WithMetrics(m *observability.Metrics) *Store {
	s.metrics = m
	return s
}

// WithNotifier attaches the optional fast-wake publish side; n may be nil (no
// publish, poll-only followers).
func (s *Store) WithNotifier(n Notifier) *Store {
	s.notifier = n
	return s
}

// Migrate creates/updates the tasks and frames tables.
func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&taskRow{}, &frameRow{})
}

func (s *Store) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	s.metrics.IncBackendError(op)
	return &taskerr.BackendError{Op: op, Cause: err}
}

func (s *Store) Create(ctx context.Context, name string, parameters map[string]any) (*task.Task, error) {
	if parameters == nil {
		parameters = map[string]any{}
	}
	if _, reserved := parameters["task"]; reserved {
		return nil, &taskerr.RegistrationError{Name: name, Reason: `parameters must not contain reserved key "task"`}
	}
	b, err := json.Marshal(parameters)
	if err != nil {
		return nil, s.wrap("create", err)
	}
	now := time.Now()
	row := taskRow{Name: name, Parameters: datatypes.JSON(b), ScheduledAt: &now}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, s.wrap("create", err)
	}
	s.metrics.IncTaskCreated(name)
	return task.New(row.ID, row.Name, parameters, s), nil
}

func (s *Store) Append(ctx context.Context, taskID int64, f frame.Frame) (frame.Frame, error) {
	row, err := toRow(taskID, f)
	if err != nil {
		return frame.Frame{}, s.wrap("append", err)
	}
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if f.Type == frame.TypeStatus {
			var last frameRow
			err := tx.Where("task_id = ? AND type = ?", taskID, string(frame.TypeStatus)).
				Order("id DESC").Limit(1).Find(&last).Error
			if err != nil {
				return err
			}
			if last.ID != 0 && frame.Status(last.Data).Terminal() {
				return &taskerr.ProtocolViolation{TaskID: taskID, Attempted: string(f.Data.(frame.Status))}
			}
		}
		return tx.Create(&row).Error
	})
	if txErr != nil {
		var violation *taskerr.ProtocolViolation
		if errors.As(txErr, &violation) {
			return frame.Frame{}, violation
		}
		return frame.Frame{}, s.wrap("append", txErr)
	}
	f.ID = row.ID
	f.TaskID = taskID
	s.metrics.IncFrameAppended(string(f.Type))
	s.notify(ctx, taskID)
	return f, nil
}

// notify is a best-effort wake publish: a failure here never fails the Append that
// already committed, it only costs the wake-source fast path for this frame and falls
// back to the follower's own poll ticker.
func (s *Store) notify(ctx context.Context, taskID int64) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Publish(ctx, taskID); err != nil {
		s.log.Debug("wake publish failed", "task_id", taskID, "error", err)
	}
}

func (s *Store) Frames(ctx context.Context, taskID int64, filter *frame.Type) ([]frame.Frame, error) {
	q := s.db.WithContext(ctx).Where("task_id = ?", taskID).Order("id ASC")
	if filter != nil {
		q = q.Where("type = ?", string(*filter))
	}
	var rows []frameRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, s.wrap("frames", err)
	}
	out := make([]frame.Frame, 0, len(rows))
	for _, r := range rows {
		f, err := fromRow(r)
		if err != nil {
			return nil, s.wrap("frames", err)
		}
		out = append(out, f)
	}
	return out, nil
}

func (s *Store) Schedule(ctx context.Context, taskID int64, delay time.Duration) error {
	at := time.Now().Add(delay)
	err := s.db.WithContext(ctx).Model(&taskRow{}).Where("id = ?", taskID).Update("scheduled_at", at).Error
	return s.wrap("schedule", err)
}

func (s *Store) Unschedule(ctx context.Context, taskID int64) error {
	err := s.db.WithContext(ctx).Model(&taskRow{}).Where("id = ?", taskID).Update("scheduled_at", nil).Error
	return s.wrap("unschedule", err)
}

func (s *Store) PickNext(ctx context.Context, allowedNames []string) (*task.Task, error) {
	if len(allowedNames) == 0 {
		return nil, nil
	}
	now := time.Now()
	var claimed *taskRow

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx
		if s.skipLocked {
			q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}
		var row taskRow
		err := q.Where("name IN ? AND scheduled_at IS NOT NULL AND scheduled_at <= ?", allowedNames, now).
			Order("scheduled_at ASC").
			Limit(1).
			Find(&row).Error
		if err != nil {
			return err
		}
		if row.ID == 0 {
			return nil // nothing eligible
		}

		var res *gorm.DB
		if s.skipLocked {
			// Already row-locked by the SELECT above; plain update is safe.
			res = tx.Model(&taskRow{}).Where("id = ?", row.ID).Update("scheduled_at", nil)
		} else {
			// No row locking available (e.g. SQLite): compare-and-swap against the
			// scheduled_at value we just observed. Only the transaction that wins
			// this update claims the task; the serialized-transaction guarantee of
			// the underlying engine makes this race-free without locks.
			res = tx.Model(&taskRow{}).
				Where("id = ? AND scheduled_at = ?", row.ID, row.ScheduledAt).
				Update("scheduled_at", nil)
		}
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil // lost the race to another claimant
		}
		claimed = &row
		return nil
	})
	if txErr != nil {
		return nil, s.wrap("pick_next", txErr)
	}
	if claimed == nil {
		s.metrics.IncPickNextEmpty()
		return nil, nil
	}

	var parameters map[string]any
	if len(claimed.Parameters) > 0 {
		if err := json.Unmarshal(claimed.Parameters, &parameters); err != nil {
			return nil, s.wrap("pick_next", err)
		}
	}
	return task.New(claimed.ID, claimed.Name, parameters, s), nil
}

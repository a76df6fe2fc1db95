package gormstore

import (
	"context"
	"time"

	"github.com/corrigan-tasks/engine/internal/frame"
	"github.com/corrigan-tasks/engine/internal/store"
)

// Follow implements the store-level tail-follow primitive (spec §4.C, §4.H): poll for
// frames with id > resumeFromID every pollInterval, yield them in order, and close the
// returned channel once a terminal task-level STATUS frame has been sent, the query
// errors, or ctx is done.
func (s *Store) Follow(ctx context.Context, taskID int64, resumeFromID int64, pollInterval time.Duration) <-chan store.Event {
	out := make(chan store.Event)
	go func() {
		defer close(out)
		lastID := resumeFromID
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		for {
			var rows []frameRow
			err := s.db.WithContext(ctx).
				Where("task_id = ? AND id > ?", taskID, lastID).
				Order("id ASC").
				Find(&rows).Error
			if err != nil {
				select {
				case out <- store.Event{Err: s.wrap("follow", err)}:
				case <-ctx.Done():
				}
				return
			}
			for _, r := range rows {
				f, err := fromRow(r)
				if err != nil {
					select {
					case out <- store.Event{Err: s.wrap("follow", err)}:
					case <-ctx.Done():
					}
					return
				}
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

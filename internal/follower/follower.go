// Package follower wraps TaskStore.Follow with the defaults and ergonomics described
// in spec §4.H: a lazy, non-restartable stream that terminates on the first terminal
// task-level STATUS frame. It optionally subscribes to a redis pub/sub hint (see
// internal/notify/redisbus) so it can re-poll immediately after an append instead of
// waiting out the next poll tick — purely a latency optimization layered on top of the
// mandatory DB poll, never a substitute for it.
package follower

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/corrigan-tasks/engine/internal/frame"
	"github.com/corrigan-tasks/engine/internal/platform/logger"
	"github.com/corrigan-tasks/engine/internal/store"
)

const (
	DefaultResumeFromID          = -1
	DefaultPollInterval          = 50 * time.Millisecond
)

// WakeSource is satisfied by internal/notify/redisbus.Bus; nil is a valid Follower
// field (poll-only operation), which is the portable default (§4.H, §5: ordering
// guarantees only ever promise polling, never push delivery).
type WakeSource interface {
	Subscribe(ctx context.Context, taskID int64) (<-chan struct{}, func())
}

// Follower streams a single task's frames in id order.
type Follower struct {
	store store.TaskStore
	wake  WakeSource
	log   *logger.Logger
}

func New(s store.TaskStore, log *logger.Logger) *Follower {
	return &Follower{store: s, log: log.With("component", "Follower")}
}

// WithWakeSource attaches an optional fast-wake channel (see redisbus.Bus). It does
// not change Follow's contract, only its typical latency.
func (f *Follower) WithWakeSource(w WakeSource) *Follower {
	f.wake = w
	return f
}

type Option func(*options)

type options struct {
	resumeFromID int64
	pollInterval time.Duration
}

func WithResumeFromID(id int64) Option {
	return func(o *options) { o.resumeFromID = id }
}

func WithPollInterval(d time.Duration) Option {
	return func(o *options) { o.pollInterval = d }
}

// Follow returns a store.Event channel: every frame with id > resume_from_id, in id
// order, followed by closure once a terminal task-level STATUS frame has been sent or
// ctx is done. Each call logs its own subscriber id and, with a wake source attached,
// makes its own Subscribe call, so concurrent followers on the same task never
// interfere with one another.
func (f *Follower) Follow(ctx context.Context, taskID int64, opts ...Option) <-chan store.Event {
	o := options{resumeFromID: DefaultResumeFromID, pollInterval: DefaultPollInterval}
	for _, opt := range opts {
		opt(&o)
	}

	subscriberID := uuid.New()
	f.log.Debug("follower attached", "task_id", taskID, "subscriber_id", subscriberID, "resume_from_id", o.resumeFromID)

	if f.wake == nil {
		return f.store.Follow(ctx, taskID, o.resumeFromID, o.pollInterval)
	}
	return f.followWithWake(ctx, taskID, o)
}

// followWithWake re-implements the same poll-for-frames-after-id loop as
// store.Follow, but wakes on a pub/sub hint in addition to the poll_interval timer —
// the one place the redis fast path bypasses the store's own ticker.
func (f *Follower) followWithWake(ctx context.Context, taskID int64, o options) <-chan store.Event {
	hint, unsubscribe := f.wake.Subscribe(ctx, taskID)
	out := make(chan store.Event)
	go func() {
		defer close(out)
		defer unsubscribe()
		lastID := o.resumeFromID
		ticker := time.NewTicker(o.pollInterval)
		defer ticker.Stop()
		for {
			frames, err := f.store.Frames(ctx, taskID, nil)
			if err != nil {
				select {
				case out <- store.Event{Err: err}:
				case <-ctx.Done():
				}
				return
			}
			for _, fr := range frames {
				if fr.ID <= lastID {
					continue
				}
				select {
				case out <- store.Event{Frame: fr}:
				case <-ctx.Done():
					return
				}
				lastID = fr.ID
				if terminal(fr) {
					return
				}
			}
			select {
			case <-hint:
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func terminal(f frame.Frame) bool {
	if f.Type != frame.TypeStatus {
		return false
	}
	st, ok := f.Data.(frame.Status)
	return ok && st.Terminal()
}

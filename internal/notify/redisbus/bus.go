// Package redisbus is the optional fast-wake layer for internal/follower: a per-task
// redis pub/sub channel that a Follower can select on alongside its poll ticker. It
// never replaces TaskStore.Follow's polling contract, only shortens typical latency
// between an Append and a subscriber noticing it.
package redisbus

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/corrigan-tasks/engine/internal/platform/logger"
)

// Bus publishes a wake hint for a task and lets followers subscribe to it. It
// satisfies follower.WakeSource without importing that package, avoiding a cycle.
type Bus struct {
	log    *logger.Logger
	rdb    *goredis.Client
	prefix string
}

func New(addr string, log *logger.Logger) (*Bus, error) {
	if addr == "" {
		return nil, fmt.Errorf("redisbus: empty address")
	}
	rdb := goredis.NewClient(&goredis.Options{Addr: addr, DialTimeout: 5 * time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redisbus: ping: %w", err)
	}

	return &Bus{log: log.With("component", "redisbus.Bus"), rdb: rdb, prefix: "tasks:wake:"}, nil
}

func (b *Bus) channel(taskID int64) string {
	return b.prefix + strconv.FormatInt(taskID, 10)
}

// Publish should be called once per Append by whatever wrote the frame (typically the
// store implementation itself, or a thin wrapper around it). The payload is empty —
// subscribers only care that *something* changed and re-read frames from the store.
func (b *Bus) Publish(ctx context.Context, taskID int64) error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Publish(ctx, b.channel(taskID), "wake").Err()
}

// Subscribe returns a hint channel that receives a value (best-effort, never blocking
// the publisher) on every wake for taskID, and an unsubscribe func the caller must
// invoke when it stops reading. Matches internal/follower.WakeSource structurally.
func (b *Bus) Subscribe(ctx context.Context, taskID int64) (<-chan struct{}, func()) {
	hint := make(chan struct{}, 1)
	if b == nil || b.rdb == nil {
		return hint, func() {}
	}

	sub := b.rdb.Subscribe(ctx, b.channel(taskID))
	subCtx, cancel := context.WithCancel(ctx)

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				select {
				case hint <- struct{}{}:
				default:
				}
			}
		}
	}()

	unsubscribe := func() {
		cancel()
		if err := sub.Close(); err != nil {
			b.log.Debug("redisbus unsubscribe close failed", "task_id", taskID, "error", err)
		}
	}
	return hint, unsubscribe
}

func (b *Bus) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}

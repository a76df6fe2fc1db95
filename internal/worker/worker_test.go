package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corrigan-tasks/engine/internal/dispatcher"
	"github.com/corrigan-tasks/engine/internal/frame"
	"github.com/corrigan-tasks/engine/internal/platform/logger"
	"github.com/corrigan-tasks/engine/internal/registry"
	"github.com/corrigan-tasks/engine/internal/store/memstore"
	"github.com/corrigan-tasks/engine/internal/task"
)

func TestPoolDispatchesInScheduledAtOrder(t *testing.T) {
	s := memstore.New()
	reg := registry.New(registry.DefaultConfig())
	log, err := logger.New("test")
	require.NoError(t, err)

	var order []int64
	require.NoError(t, reg.Register(func(ctx context.Context, tk *task.Task, p map[string]any) error {
		order = append(order, tk.ID())
		return nil
	}, "ordered"))

	first, err := s.Create(context.Background(), "ordered", nil)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	second, err := s.Create(context.Background(), "ordered", nil)
	require.NoError(t, err)

	disp := dispatcher.New(s, reg, log)
	pool := NewPool(1, s, disp, DefaultConfig([]string{"ordered"}), log)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_ = pool.Run(ctx)

	assert.Equal(t, []int64{first.ID(), second.ID()}, order)
}

func TestPoolNeverDoubleClaimsOneTask(t *testing.T) {
	s := memstore.New()
	reg := registry.New(registry.DefaultConfig())
	log, err := logger.New("test")
	require.NoError(t, err)

	seen := make(map[int64]int)
	require.NoError(t, reg.Register(func(ctx context.Context, tk *task.Task, p map[string]any) error {
		seen[tk.ID()]++
		time.Sleep(5 * time.Millisecond)
		return nil
	}, "contended"))

	tk, err := s.Create(context.Background(), "contended", nil)
	require.NoError(t, err)

	disp := dispatcher.New(s, reg, log)
	pool := NewPool(4, s, disp, DefaultConfig([]string{"contended"}), log)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = pool.Run(ctx)

	assert.Equal(t, 1, seen[tk.ID()])

	typ := frame.TypeStatus
	frames, err := s.Frames(context.Background(), tk.ID(), &typ)
	require.NoError(t, err)
	count := 0
	for _, f := range frames {
		if f.Data.(frame.Status) == frame.RunActive {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

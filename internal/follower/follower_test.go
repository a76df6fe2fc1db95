package follower

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corrigan-tasks/engine/internal/frame"
	"github.com/corrigan-tasks/engine/internal/platform/logger"
	"github.com/corrigan-tasks/engine/internal/store/memstore"
)

func newLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	require.NoError(t, err)
	return log
}

func TestFollowReplaysFromResumeFromID(t *testing.T) {
	s := memstore.New()
	tk, err := s.Create(context.Background(), "job", nil)
	require.NoError(t, err)

	first, err := s.Append(context.Background(), tk.ID(), frame.Frame{Type: frame.TypeStatus, Data: frame.RunActive})
	require.NoError(t, err)
	_, err = s.Append(context.Background(), tk.ID(), frame.Frame{Type: frame.TypeLogInfo, Data: "working"})
	require.NoError(t, err)

	f := New(s, newLogger(t))

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	events := f.Follow(ctx, tk.ID(), WithResumeFromID(first.ID), WithPollInterval(5*time.Millisecond))

	ev, ok := <-events
	require.True(t, ok)
	require.NoError(t, ev.Err)
	assert.Equal(t, frame.TypeLogInfo, ev.Frame.Type)

	// Append the terminal frame; the stream must close right after delivering it.
	_, err = s.Append(context.Background(), tk.ID(), frame.Frame{Type: frame.TypeStatus, Data: frame.TaskCompleted})
	require.NoError(t, err)

	ev, ok = <-events
	require.True(t, ok)
	require.NoError(t, ev.Err)
	assert.Equal(t, frame.TypeStatus, ev.Frame.Type)
	assert.Equal(t, frame.TaskCompleted, ev.Frame.Data)

	_, ok = <-events
	assert.False(t, ok, "stream must close once a terminal status frame has been delivered")
}

func TestFollowStopsOnContextCancel(t *testing.T) {
	s := memstore.New()
	tk, err := s.Create(context.Background(), "job", nil)
	require.NoError(t, err)

	f := New(s, newLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	events := f.Follow(ctx, tk.ID(), WithPollInterval(5*time.Millisecond))

	cancel()

	select {
	case _, ok := <-events:
		assert.False(t, ok)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("follow did not close its channel after context cancellation")
	}
}

type fakeWakeSource struct {
	hint chan struct{}
}

func (w *fakeWakeSource) Subscribe(ctx context.Context, taskID int64) (<-chan struct{}, func()) {
	return w.hint, func() {}
}

func TestFollowWithWakeSourceDeliversFramesAppendedAfterSubscribe(t *testing.T) {
	s := memstore.New()
	tk, err := s.Create(context.Background(), "job", nil)
	require.NoError(t, err)

	wake := &fakeWakeSource{hint: make(chan struct{}, 1)}
	f := New(s, newLogger(t)).WithWakeSource(wake)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	events := f.Follow(ctx, tk.ID(), WithPollInterval(time.Hour))

	_, err = s.Append(context.Background(), tk.ID(), frame.Frame{Type: frame.TypeStatus, Data: frame.TaskCompleted})
	require.NoError(t, err)
	wake.hint <- struct{}{}

	ev, ok := <-events
	require.True(t, ok)
	require.NoError(t, ev.Err)
	assert.Equal(t, frame.TaskCompleted, ev.Frame.Data)
}

package redisbus

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corrigan-tasks/engine/internal/platform/logger"
)

func newTestBus(t *testing.T) (*Bus, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	log, err := logger.New("test")
	require.NoError(t, err)
	bus, err := New(mr.Addr(), log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = bus.Close() })
	return bus, mr
}

func TestNewFailsOnUnreachableAddress(t *testing.T) {
	log, err := logger.New("test")
	require.NoError(t, err)
	_, err = New("127.0.0.1:1", log)
	require.Error(t, err)
}

func TestNewFailsOnEmptyAddress(t *testing.T) {
	log, err := logger.New("test")
	require.NoError(t, err)
	_, err = New("", log)
	require.Error(t, err)
}

func TestPublishWakesSubscriber(t *testing.T) {
	bus, _ := newTestBus(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	hint, unsubscribe := bus.Subscribe(ctx, 42)
	defer unsubscribe()

	require.NoError(t, bus.Publish(ctx, 42))

	select {
	case <-hint:
	case <-time.After(time.Second):
		t.Fatal("subscriber never received a wake hint")
	}
}

func TestSubscribeIsPerTaskIsolated(t *testing.T) {
	bus, _ := newTestBus(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	hintA, unsubA := bus.Subscribe(ctx, 1)
	defer unsubA()
	hintB, unsubB := bus.Subscribe(ctx, 2)
	defer unsubB()

	require.NoError(t, bus.Publish(ctx, 1))

	select {
	case <-hintA:
	case <-time.After(time.Second):
		t.Fatal("task 1 subscriber never received its wake hint")
	}

	select {
	case <-hintB:
		t.Fatal("task 2 subscriber must not receive task 1's wake hint")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNilBusIsSafeToPublishAndSubscribe(t *testing.T) {
	var bus *Bus
	assert.NoError(t, bus.Publish(context.Background(), 1))
	hint, unsubscribe := bus.Subscribe(context.Background(), 1)
	assert.NotNil(t, hint)
	unsubscribe()
	assert.NoError(t, bus.Close())
}

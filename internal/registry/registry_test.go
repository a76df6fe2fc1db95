package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corrigan-tasks/engine/internal/task"
)

func noop(ctx context.Context, t *task.Task, params map[string]any) error { return nil }

func TestRegisterDerivesNameFromFunction(t *testing.T) {
	r := New(DefaultConfig())
	require.NoError(t, r.Register(noop, ""))

	h, ok := r.Get("noop")
	require.True(t, ok)
	assert.NotNil(t, h)

	name, ok := r.NameOf(noop)
	require.True(t, ok)
	assert.Equal(t, "noop", name)
}

func TestRegisterExplicitNameOverridesDerived(t *testing.T) {
	r := New(DefaultConfig())
	require.NoError(t, r.Register(noop, "custom_name"))

	_, ok := r.Get("noop")
	assert.False(t, ok)

	_, ok = r.Get("custom_name")
	assert.True(t, ok)
}

func TestRegisterTwiceUnderSameNameFails(t *testing.T) {
	r := New(DefaultConfig())
	require.NoError(t, r.Register(noop, "dup"))
	err := r.Register(noop, "dup")
	require.Error(t, err)
}

func TestRegisterNilHandlerFails(t *testing.T) {
	r := New(DefaultConfig())
	err := r.Register(nil, "anything")
	require.Error(t, err)
}

type greetParams struct {
	Name string `json:"name"`
}

func TestRegisterTypedDecodesAndRejectsExtras(t *testing.T) {
	r := New(DefaultConfig())
	err := RegisterTyped(r, "greet", func(ctx context.Context, t *task.Task, p greetParams) error {
		return nil
	})
	require.NoError(t, err)

	h, ok := r.Get("greet")
	require.True(t, ok)

	err = h(context.Background(), task.New(1, "greet", nil, nil), map[string]any{"name": "ada"})
	assert.NoError(t, err)

	err = h(context.Background(), task.New(1, "greet", nil, nil), map[string]any{"name": "ada", "extra": 1})
	assert.Error(t, err)

	err = h(context.Background(), task.New(1, "greet", nil, nil), map[string]any{})
	assert.Error(t, err)
}

func TestRegisterTypedRejectsReservedTaskField(t *testing.T) {
	type badParams struct {
		Task string `json:"task"`
	}
	r := New(DefaultConfig())
	err := RegisterTyped(r, "bad", func(ctx context.Context, t *task.Task, p badParams) error {
		return nil
	})
	require.Error(t, err)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 4, cfg.RunLimit)
	assert.Equal(t, time.Duration(0), cfg.RunRescheduleDelay)
}

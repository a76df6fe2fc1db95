package gormstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/corrigan-tasks/engine/internal/frame"
	"github.com/corrigan-tasks/engine/internal/platform/logger"
	"github.com/corrigan-tasks/engine/internal/taskerr"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	log, err := logger.New("test")
	require.NoError(t, err)
	s := New(db, log)
	require.NoError(t, s.Migrate())
	return s
}

func TestCreatePersistsScheduledTask(t *testing.T) {
	s := newTestStore(t)
	tk, err := s.Create(context.Background(), "send_email", map[string]any{"to": "a@example.com"})
	require.NoError(t, err)
	assert.NotZero(t, tk.ID())
	assert.Equal(t, "send_email", tk.Name())

	claimed, err := s.PickNext(context.Background(), []string{"send_email"})
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, tk.ID(), claimed.ID())
}

func TestCreateRejectsReservedTaskKey(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Create(context.Background(), "bad", map[string]any{"task": "x"})
	require.Error(t, err)
	var regErr *taskerr.RegistrationError
	assert.ErrorAs(t, err, &regErr)
}

func TestAppendAssignsIncreasingIDs(t *testing.T) {
	s := newTestStore(t)
	tk, err := s.Create(context.Background(), "job", nil)
	require.NoError(t, err)

	f1, err := s.Append(context.Background(), tk.ID(), frame.Frame{Type: frame.TypeLogInfo, Data: "one"})
	require.NoError(t, err)
	f2, err := s.Append(context.Background(), tk.ID(), frame.Frame{Type: frame.TypeLogInfo, Data: "two"})
	require.NoError(t, err)

	assert.Greater(t, f2.ID, f1.ID)

	frames, err := s.Frames(context.Background(), tk.ID(), nil)
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, "one", frames[0].Data)
	assert.Equal(t, "two", frames[1].Data)
}

func TestAppendRejectsFrameAfterTerminalStatus(t *testing.T) {
	s := newTestStore(t)
	tk, err := s.Create(context.Background(), "job", nil)
	require.NoError(t, err)

	_, err = s.Append(context.Background(), tk.ID(), frame.Frame{Type: frame.TypeStatus, Data: frame.TaskCompleted})
	require.NoError(t, err)

	_, err = s.Append(context.Background(), tk.ID(), frame.Frame{Type: frame.TypeStatus, Data: frame.RunActive})
	require.Error(t, err)
	var violation *taskerr.ProtocolViolation
	assert.ErrorAs(t, err, &violation)
}

func TestFramesFilterByType(t *testing.T) {
	s := newTestStore(t)
	tk, err := s.Create(context.Background(), "job", nil)
	require.NoError(t, err)

	_, err = s.Append(context.Background(), tk.ID(), frame.Frame{Type: frame.TypeLogInfo, Data: "hello"})
	require.NoError(t, err)
	_, err = s.Append(context.Background(), tk.ID(), frame.Frame{Type: frame.TypeStatus, Data: frame.RunActive})
	require.NoError(t, err)

	typ := frame.TypeStatus
	frames, err := s.Frames(context.Background(), tk.ID(), &typ)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, frame.RunActive, frames[0].Data)
}

func TestScheduleAndUnschedule(t *testing.T) {
	s := newTestStore(t)
	tk, err := s.Create(context.Background(), "job", nil)
	require.NoError(t, err)

	require.NoError(t, s.Schedule(context.Background(), tk.ID(), time.Hour))
	claimed, err := s.PickNext(context.Background(), []string{"job"})
	require.NoError(t, err)
	assert.Nil(t, claimed, "task scheduled an hour out must not be picked yet")

	require.NoError(t, s.Unschedule(context.Background(), tk.ID()))
	claimed, err = s.PickNext(context.Background(), []string{"job"})
	require.NoError(t, err)
	assert.Nil(t, claimed, "unscheduled task has no scheduled_at and is not eligible either")
}

func TestPickNextOnlyClaimsOnce(t *testing.T) {
	s := newTestStore(t)
	tk, err := s.Create(context.Background(), "job", nil)
	require.NoError(t, err)

	first, err := s.PickNext(context.Background(), []string{"job"})
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, tk.ID(), first.ID())

	second, err := s.PickNext(context.Background(), []string{"job"})
	require.NoError(t, err)
	assert.Nil(t, second, "a task claimed once must not be returned again until rescheduled")
}

func TestPickNextIgnoresDisallowedNames(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Create(context.Background(), "other", nil)
	require.NoError(t, err)

	claimed, err := s.PickNext(context.Background(), []string{"job"})
	require.NoError(t, err)
	assert.Nil(t, claimed)
}

func TestPickNextReturnsNilForEmptyAllowedNames(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Create(context.Background(), "job", nil)
	require.NoError(t, err)

	claimed, err := s.PickNext(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, claimed)
}

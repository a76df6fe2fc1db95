// Package frame defines the typed, append-only event that makes up a task's log.
package frame

import (
	"reflect"
	"time"
)

// Type tags the shape of a Frame's Data payload.
type Type string

const (
	TypeData        Type = "DATA"
	TypeProgression Type = "PROGRESSION"
	TypeStatus      Type = "STATUS"
	TypeLogInfo     Type = "LOG_INFO"
	TypeLogError    Type = "LOG_ERROR"
)

// Status is the run/task lifecycle payload carried by a Status-typed frame.
type Status string

const (
	RunScheduled  Status = "RUN_SCHEDULED"
	RunActive     Status = "RUN_ACTIVE"
	RunFailed     Status = "RUN_FAILED"
	TaskCompleted Status = "TASK_COMPLETED"
	TaskFailed    Status = "TASK_FAILED"
)

// Terminal reports whether s ends the task as a whole. Only these two names are
// recognized as terminal; no other spelling (e.g. a bare "COMPLETED") is accepted.
func (s Status) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// Frame is a single event in a task's log. ID and TaskID are assigned by the store;
// Time is captured at construction (by the emitting Task), not at persistence.
//
// Data's concrete type depends on Type:
//   - Data, Progression: a JSON-representable tree (map[string]any, []any, scalars)
//   - Status:            a Status value
//   - LogInfo, LogError: a string
type Frame struct {
	ID     int64
	TaskID int64
	Type   Type
	Data   any
	Time   time.Time
}

// Equal compares frames by (Type, Data) only, per the spec's equality contract — ID and
// Time are incidental to what a frame represents and are ignored so tests can match
// expected event sequences irrespective of timing.
func (f Frame) Equal(other Frame) bool {
	return f.Type == other.Type && reflect.DeepEqual(f.Data, other.Data)
}

func New(taskID int64, typ Type, data any) Frame {
	return Frame{TaskID: taskID, Type: typ, Data: data, Time: time.Now()}
}

func NewData(taskID int64, v any) Frame        { return New(taskID, TypeData, v) }
func NewProgression(taskID int64, v any) Frame { return New(taskID, TypeProgression, v) }
func NewLogInfo(taskID int64, s string) Frame  { return New(taskID, TypeLogInfo, s) }
func NewLogError(taskID int64, s string) Frame { return New(taskID, TypeLogError, s) }
func NewStatus(taskID int64, s Status) Frame   { return New(taskID, TypeStatus, s) }

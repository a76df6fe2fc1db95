// Package taskerr implements the engine's error taxonomy (spec §7): handler-level
// failures that feed the retry state machine, versus store-level failures that abort
// the current worker's handling of a task without mutating it further.
package taskerr

import "fmt"

// HandlerError wraps a panic or error value raised from user handler code.
type HandlerError struct {
	TaskName string
	Cause    error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler %q: %v", e.TaskName, e.Cause)
}

func (e *HandlerError) Unwrap() error { return e.Cause }

// UnknownTaskName is raised when the dispatcher finds no handler registered for a
// task's name. It is handled identically to HandlerError (§7.2) — it still drives the
// retry/fail decision — but carries the task id so operators can find the orphaned row.
type UnknownTaskName struct {
	Name   string
	TaskID int64
}

func (e *UnknownTaskName) Error() string {
	return fmt.Sprintf("no handler registered for task name %q (task_id=%d)", e.Name, e.TaskID)
}

// BackendError wraps a TaskStore operation failure. The dispatcher returns it to the
// worker, which logs it and moves on; the affected task is left exactly as the store
// persisted it.
type BackendError struct {
	Op    string
	Cause error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend: %s: %v", e.Op, e.Cause)
}

func (e *BackendError) Unwrap() error { return e.Cause }

// ProtocolViolation is returned by a store when a STATUS frame append is attempted
// against a task that already carries a terminal STATUS frame (§3 terminal finality).
type ProtocolViolation struct {
	TaskID    int64
	Attempted string
}

func (e *ProtocolViolation) Error() string {
	return fmt.Sprintf("task %d already terminal, rejecting %s append", e.TaskID, e.Attempted)
}

// RegistrationError is raised when Registry.Register is given an invalid handler —
// a nil func, an empty derived name, a duplicate name, or (§9 open question #3) a
// typed Params struct that collides with the reserved "task" field name.
type RegistrationError struct {
	Name   string
	Reason string
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("register %q: %s", e.Name, e.Reason)
}

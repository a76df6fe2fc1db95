// Package registry binds task names to handlers (spec §4.E). It is the only place
// where name -> code binding happens; workers never know about handler implementations
// directly, only that the registry can resolve a name.
package registry

import (
	"context"
	"encoding/json"
	"reflect"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/corrigan-tasks/engine/internal/task"
	"github.com/corrigan-tasks/engine/internal/taskerr"
)

// Func is the raw handler signature: the injected Task plus its parameters map.
// Handlers invoke Task's emit operations (Data, Progression, LogInfo, LogError) freely;
// they must never see the state-machine operations, which live in internal/dispatcher.
type Func func(ctx context.Context, t *task.Task, params map[string]any) error

type entry struct {
	name string
	fn   Func
}

// Config holds the retry parameters (spec §4.E): the maximum number of RUN_ACTIVE
// frames before giving up, and the delay applied on each reschedule.
type Config struct {
	RunLimit            int
	RunRescheduleDelay  time.Duration
}

// DefaultConfig matches the spec's stated defaults.
func DefaultConfig() Config {
	return Config{RunLimit: 4, RunRescheduleDelay: 0}
}

// Registry is a concurrency-safe name -> handler map. Registration records both
// name -> handler and handler -> name (by function identity), so a handler can be
// referred to either way when enqueueing.
type Registry struct {
	mu       sync.RWMutex
	byName   map[string]entry
	byFunc   map[uintptr]string
	config   Config
}

func New(cfg Config) *Registry {
	return &Registry{
		byName: make(map[string]entry),
		byFunc: make(map[uintptr]string),
		config: cfg,
	}
}

func (r *Registry) Config() Config { return r.config }

// Register binds fn to name. If name is empty, the handler's own function identifier
// is used (design note §9: "a convenience register that derives name from a function
// identifier"). Registering twice under the same name is rejected.
func (r *Registry) Register(fn Func, name string) error {
	if fn == nil {
		return &taskerr.RegistrationError{Name: name, Reason: "handler is nil"}
	}
	if name == "" {
		name = funcName(fn)
	}
	if name == "" {
		return &taskerr.RegistrationError{Name: name, Reason: "could not derive a name for handler"}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[name]; exists {
		return &taskerr.RegistrationError{Name: name, Reason: "already registered"}
	}
	r.byName[name] = entry{name: name, fn: fn}
	r.byFunc[reflect.ValueOf(fn).Pointer()] = name
	return nil
}

// Get resolves a handler by task name.
func (r *Registry) Get(name string) (Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	return e.fn, true
}

// NameOf returns the name a handler was registered under, by function identity.
func (r *Registry) NameOf(fn Func) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.byFunc[reflect.ValueOf(fn).Pointer()]
	return name, ok
}

func funcName(fn Func) string {
	full := runtime.FuncForPC(reflect.ValueOf(fn).Pointer()).Name()
	// full looks like "github.com/.../pkg.funcName" or "...pkg.Type.method-fm"
	if i := strings.LastIndex(full, "."); i >= 0 {
		full = full[i+1:]
	}
	full = strings.TrimSuffix(full, "-fm")
	return full
}

// RegisterTyped registers a handler that decodes its parameters into P instead of
// taking a raw map, for callers in languages-without-named-argument-reflection style
// (spec §9 design note): decode failures (missing required fields or unknown extras)
// surface as a handler-invocation error, which the dispatcher treats as a run-level
// exception (§6 handler contract).
func RegisterTyped[P any](r *Registry, name string, fn func(ctx context.Context, t *task.Task, params P) error) error {
	if err := checkNoReservedField[P](); err != nil {
		return &taskerr.RegistrationError{Name: name, Reason: err.Error()}
	}
	wrapped := func(ctx context.Context, t *task.Task, raw map[string]any) error {
		var p P
		if err := decodeParams(raw, &p); err != nil {
			return &taskerr.HandlerError{TaskName: name, Cause: err}
		}
		return fn(ctx, t, p)
	}
	return r.Register(wrapped, name)
}

func checkNoReservedField[P any]() error {
	var zero P
	t := reflect.TypeOf(zero)
	if t == nil || t.Kind() != reflect.Struct {
		return nil
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := strings.Split(f.Tag.Get("json"), ",")[0]
		if tag == "" {
			tag = f.Name
		}
		if strings.EqualFold(tag, "task") {
			return &reservedFieldError{Field: f.Name}
		}
	}
	return nil
}

type reservedFieldError struct{ Field string }

func (e *reservedFieldError) Error() string {
	return "params field " + e.Field + ` collides with the reserved "task" key`
}

// decodeParams round-trips raw through JSON into out, rejecting unknown keys and
// missing required (non-pointer, non-omitempty) fields — Go's structural analogue of
// "missing required arguments or extras surface as a handler-invocation error" (§6).
func decodeParams(raw map[string]any, out any) error {
	b, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(strings.NewReader(string(b)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	return checkRequiredFields(raw, out)
}

func checkRequiredFields(raw map[string]any, out any) error {
	v := reflect.ValueOf(out).Elem()
	t := v.Type()
	if t.Kind() != reflect.Struct {
		return nil
	}
	var missing []string
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		jsonTag := f.Tag.Get("json")
		parts := strings.Split(jsonTag, ",")
		key := parts[0]
		if key == "-" {
			continue
		}
		if key == "" {
			key = f.Name
		}
		optional := false
		for _, p := range parts[1:] {
			if p == "omitempty" {
				optional = true
			}
		}
		if optional || f.Type.Kind() == reflect.Ptr {
			continue
		}
		if _, present := raw[key]; !present {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return &missingFieldsError{Fields: missing}
	}
	return nil
}

type missingFieldsError struct{ Fields []string }

func (e *missingFieldsError) Error() string {
	return "missing required parameters: " + strings.Join(e.Fields, ", ")
}

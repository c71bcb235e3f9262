package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// HandlerFunc processes one task. Returning an error triggers the retry
// path; handlers must therefore be idempotent.
type HandlerFunc func(ctx context.Context, task Task) error

// Registry maps task names to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]HandlerFunc)}
}

// Register binds a handler to a task name. Registering the same name
// twice panics; it indicates a wiring bug at startup.
func (r *Registry) Register(name string, h HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[name]; exists {
		panic(fmt.Sprintf("broker: handler already registered for task %q", name))
	}
	r.handlers[name] = h
}

// Lookup returns the handler for a task name.
func (r *Registry) Lookup(name string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// UnmarshalArgs decodes task args into dst.
func UnmarshalArgs(task Task, dst any) error {
	if err := json.Unmarshal(task.Args, dst); err != nil {
		return fmt.Errorf("failed to unmarshal args for task %s: %w", task.Name, err)
	}
	return nil
}

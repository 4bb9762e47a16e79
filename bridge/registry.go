package bridge

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/hwellmann/folkfriend/engine"
	"github.com/hwellmann/folkfriend/gate"
)

// Handler runs an operation against the engine. It is only ever called
// from the goroutine that owns the engine.
type Handler func(ctx context.Context, e engine.Engine, args json.RawMessage) (any, error)

// Operation is a remotely callable method together with the readiness
// stages it waits for.
type Operation struct {
	Requires gate.Stage
	Handle   Handler
}

// Registry maps method names to operations. It is the set of methods an
// execution host exposes to the other context.
type Registry struct {
	mu  sync.RWMutex
	ops map[string]Operation
}

func NewRegistry() *Registry {
	return &Registry{ops: make(map[string]Operation)}
}

func (r *Registry) Register(name string, op Operation) {
	r.mu.Lock()
	r.ops[name] = op
	r.mu.Unlock()
}

func (r *Registry) Get(name string) (Operation, bool) {
	r.mu.RLock()
	op, ok := r.ops[name]
	r.mu.RUnlock()
	return op, ok
}

// List returns the registered method names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.ops))
	for name := range r.ops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

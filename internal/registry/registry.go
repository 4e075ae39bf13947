package registry

import (
	"context"
	"sort"
	"sync"

	"taskwell/internal/access"
)

// Params is the payload a handler borrows for the duration of one execution.
type Params struct {
	TaskID    uint64
	Key       string
	ObjectID  uint32
	Data      string
	Transient any
}

// Handler executes one unit of scheduled work.
type Handler interface {
	Execute(ctx context.Context, p Params) error
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, p Params) error

func (f HandlerFunc) Execute(ctx context.Context, p Params) error { return f(ctx, p) }

// NoOp is substituted for missing handlers so one malformed task never halts
// a scheduler loop.
var NoOp Handler = HandlerFunc(func(context.Context, Params) error { return nil })

type entry struct {
	handler  Handler
	required access.Rights
}

// Registry maps handler ids to executable callbacks plus the access right
// required to schedule them. Registration happens at startup; afterwards the
// registry is read-mostly.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

func New() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register upserts a handler. The last registration for a given id wins.
// A required rights value of zero marks the handler system-only.
func (r *Registry) Register(id string, h Handler, required access.Rights) {
	r.mu.Lock()
	r.entries[id] = entry{handler: h, required: required}
	r.mu.Unlock()
}

// Resolve looks up a handler. Missing handlers are tolerated everywhere;
// callers fall back to NoOp.
func (r *Registry) Resolve(id string) (Handler, bool) {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return e.handler, true
}

// Enumerate returns the ids of handlers the caller is allowed to schedule,
// sorted. System-only handlers (required rights zero) are visible only to
// holders of the manage-all right.
func (r *Registry) Enumerate(rights access.Rights) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.entries))
	for id, e := range r.entries {
		if e.required == 0 {
			if !rights.Any(access.ManageAllTasks) {
				continue
			}
		} else if !rights.Contains(e.required) {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

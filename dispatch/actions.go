package dispatch

import (
	"sync"

	"github.com/online-daq/goconf/change"
)

// Action is an internal observer notified before subscriber delivery and
// before cache coherence, for consistency-sensitive internal caches (e.g.
// a schema-cache invalidator). Distinct from the public Subscriber list.
type Action interface {
	Notify(batch []change.Change)
}

// ActionFunc adapts a plain function to Action.
type ActionFunc func(batch []change.Change)

func (f ActionFunc) Notify(batch []change.Change) { f(batch) }

// ActionRegistry owns the internal action list under the facade's
// actions-mutex.
type ActionRegistry struct {
	mu      sync.Mutex
	actions []Action
}

func NewActionRegistry() *ActionRegistry {
	return &ActionRegistry{}
}

func (r *ActionRegistry) Register(a Action) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, a)
}

// NotifyAll invokes every registered action's Notify, in registration
// order. Called first in the dispatch pipeline, under the actions-mutex.
func (r *ActionRegistry) NotifyAll(batch []change.Change) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range r.actions {
		a.Notify(batch)
	}
}

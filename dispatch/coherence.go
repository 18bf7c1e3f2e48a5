package dispatch

import (
	"sync"

	"github.com/online-daq/goconf/cache"
	"github.com/online-daq/goconf/change"
	"github.com/online-daq/goconf/object"
	"github.com/online-daq/goconf/schema"
)

// TemplateHooks holds the per-class template-object update hooks that
// DAL-generated wrappers install, invoked after cache coherence so derived
// caches can rebuild. Protected by the facade's template-mutex; callers
// must already hold it.
type TemplateHooks struct {
	mu    sync.Mutex
	hooks map[string]func()
}

func NewTemplateHooks() *TemplateHooks {
	return &TemplateHooks{hooks: map[string]func(){}}
}

func (t *TemplateHooks) Install(class string, hook func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hooks[class] = hook
}

func (t *TemplateHooks) invoke(classes map[string]struct{}) {
	t.mu.Lock()
	fns := make([]func(), 0, len(classes))
	for c := range classes {
		if h, ok := t.hooks[c]; ok {
			fns = append(fns, h)
		}
	}
	t.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// ApplyCoherence keeps the object cache consistent with a batch of change
// records: for each change record's class, and for that class's
// superclasses and subclasses, removed UIDs are
// marked Deleted-and-cleared, created UIDs are reset regardless of prior
// state, and modified UIDs are cleared-for-reread if Valid or reset
// otherwise. Ordering between a UID reported both modified and removed in
// the same batch is unspecified upstream; this applies removed last.
// Callers must already hold the template-mutex then the implementation-mutex.
func ApplyCoherence(reg *schema.Registry, oc *cache.ObjectCache, hooks *TemplateHooks, batch []change.Change) {
	touched := map[string]struct{}{}
	for _, ch := range batch {
		touched[ch.Class] = struct{}{}

		oc.EachClassAndClosure(reg, ch.Class, func(bucket map[string]*object.Impl) {
			for _, uid := range ch.Created {
				if o, ok := bucket[uid]; ok {
					o.Reset()
				}
			}
			for _, uid := range ch.Modified {
				if o, ok := bucket[uid]; ok {
					if o.State() == object.Valid {
						o.ClearForReread()
					} else {
						o.Reset()
					}
				}
			}
			for _, uid := range ch.Removed {
				if o, ok := bucket[uid]; ok {
					o.MarkDeleted()
				}
			}
		})
	}

	closure := map[string]struct{}{}
	for c := range touched {
		closure[c] = struct{}{}
		for s := range reg.Superclasses(c) {
			closure[s] = struct{}{}
		}
		for s := range reg.Subclasses(c) {
			closure[s] = struct{}{}
		}
	}
	hooks.invoke(closure)
}

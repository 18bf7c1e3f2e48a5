// Package cache implements the per-class object-identity cache: insertion,
// subclass-fallback lookup, rename-with-tangling, and full teardown.
package cache

import (
	"sync"

	"github.com/online-daq/goconf/object"
	"github.com/online-daq/goconf/schema"
)

// SubclassSource supplies the transitive subclass set for a class, so the
// cache can fall back to subclass buckets on a miss. Satisfied by
// *schema.Registry.
type SubclassSource interface {
	Subclasses(class string) map[string]struct{}
}

// ObjectCache is the per-class `id -> implementation object` map described
// in the object-identity cache component. All operations require the
// caller to already hold the facade's implementation-mutex; the cache's
// own mutex only protects the bucket map structure itself, not the
// individual Impls (which have their own mutex).
type ObjectCache struct {
	mu sync.Mutex

	buckets     map[string]map[string]*object.Impl
	bucketOrder []string // order buckets were first created, for subclass-fallback probing
	tangled     []*object.Impl

	hits   uint64
	misses uint64
}

func New() *ObjectCache {
	return &ObjectCache{buckets: map[string]map[string]*object.Impl{}}
}

func (c *ObjectCache) bucket(class string) map[string]*object.Impl {
	b, ok := c.buckets[class]
	if !ok {
		b = map[string]*object.Impl{}
		c.buckets[class] = b
		c.bucketOrder = append(c.bucketOrder, class)
	}
	return b
}

// GetImpl probes class's bucket, then each subclass bucket in insertion
// order, returning the first hit or nil.
func (c *ObjectCache) GetImpl(subs SubclassSource, class, id string) *object.Impl {
	c.mu.Lock()
	defer c.mu.Unlock()

	if b, ok := c.buckets[class]; ok {
		if o, ok := b[id]; ok {
			c.hits++
			return o
		}
	}

	subclasses := subs.Subclasses(class)
	for _, candidate := range c.bucketOrder {
		if candidate == class {
			continue
		}
		if _, isSub := subclasses[candidate]; !isSub {
			continue
		}
		if o, ok := c.buckets[candidate][id]; ok {
			c.hits++
			return o
		}
	}
	c.misses++
	return nil
}

// PutImpl installs obj in class's bucket, creating the bucket if needed.
func (c *ObjectCache) PutImpl(class, id string, obj *object.Impl) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bucket(class)[id] = obj
}

// RenameImpl relocates the object at (class, old) to (class, new). If an
// object already occupies (class, new), it is demoted to Unknown and
// pushed onto the tangled list rather than rejected — outstanding handles
// referencing it keep dereferencing safely.
func (c *ObjectCache) RenameImpl(class, old, new string) *object.Impl {
	c.mu.Lock()
	defer c.mu.Unlock()

	b := c.bucket(class)
	obj, ok := b[old]
	if !ok {
		return nil
	}
	if existing, collide := b[new]; collide && existing != obj {
		existing.Invalidate()
		c.tangled = append(c.tangled, existing)
	}
	delete(b, old)
	obj.SetUID(new)
	b[new] = obj
	return obj
}

// EachClassAndClosure invokes fn for the named class's own bucket plus the
// buckets of its superclasses and subclasses, per the cache-coherence rule
// that a change to class C touches C, superclasses(C), and subclasses(C).
func (c *ObjectCache) EachClassAndClosure(reg *schema.Registry, class string, fn func(bucket map[string]*object.Impl)) {
	c.mu.Lock()
	classes := map[string]struct{}{class: {}}
	for s := range reg.Superclasses(class) {
		classes[s] = struct{}{}
	}
	for s := range reg.Subclasses(class) {
		classes[s] = struct{}{}
	}
	buckets := make([]map[string]*object.Impl, 0, len(classes))
	for cn := range classes {
		if b, ok := c.buckets[cn]; ok {
			buckets = append(buckets, b)
		}
	}
	c.mu.Unlock()

	for _, b := range buckets {
		fn(b)
	}
}

// Clean destroys every cached and tangled implementation object and clears
// both structures. Called on facade teardown.
func (c *ObjectCache) Clean() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buckets = map[string]map[string]*object.Impl{}
	c.bucketOrder = nil
	c.tangled = nil
}

// InvalidateAll marks every cached and tangled object Unknown-and-cleared,
// per the abort() contract.
func (c *ObjectCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, b := range c.buckets {
		for _, o := range b {
			o.Invalidate()
		}
	}
	for _, o := range c.tangled {
		o.Invalidate()
	}
}

// Walk invokes fn for every cached object, across all class buckets, in
// no particular order. Used by the profiling dump.
func (c *ObjectCache) Walk(fn func(class, uid string, o *object.Impl)) {
	c.mu.Lock()
	type entry struct {
		class, uid string
		o          *object.Impl
	}
	var entries []entry
	for class, b := range c.buckets {
		for uid, o := range b {
			entries = append(entries, entry{class, uid, o})
		}
	}
	c.mu.Unlock()

	for _, e := range entries {
		fn(e.class, e.uid, e.o)
	}
}

// Stats returns the cumulative hit/miss counters for GetImpl.
func (c *ObjectCache) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// Tangled returns a snapshot of the tangled (rename-orphaned) list.
func (c *ObjectCache) Tangled() []*object.Impl {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*object.Impl, len(c.tangled))
	copy(out, c.tangled)
	return out
}

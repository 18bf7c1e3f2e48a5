package schema

import (
	"sort"
	"sync"

	cerrors "github.com/online-daq/goconf/errors"
)

// Registry holds the loaded class descriptors plus their derived
// inheritance closure. It is rebuilt wholesale after load, create,
// add_include, remove_include, and abort — never mutated incrementally.
type Registry struct {
	mu sync.RWMutex

	classes      map[string]*Class
	superclasses map[string]map[string]struct{} // transitive, excludes self
	subclasses   map[string]map[string]struct{} // transitive, excludes self

	// memoised class-info views, invalidated wholesale on Rebuild/Unload
	directInfo   map[string]*Class
	inheritedInfo map[string]*Class
}

func NewRegistry() *Registry {
	return &Registry{
		classes:       map[string]*Class{},
		superclasses:  map[string]map[string]struct{}{},
		subclasses:    map[string]map[string]struct{}{},
		directInfo:    map[string]*Class{},
		inheritedInfo: map[string]*Class{},
	}
}

// Rebuild replaces the class set and recomputes the inheritance closure
// from scratch. Called after load, create, add_include, remove_include,
// and abort — any operation that can change which classes are visible.
func (r *Registry) Rebuild(classes map[string]*Class) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.classes = classes
	r.superclasses = map[string]map[string]struct{}{}
	r.subclasses = map[string]map[string]struct{}{}
	r.directInfo = map[string]*Class{}
	r.inheritedInfo = map[string]*Class{}

	for name := range classes {
		r.superclasses[name] = r.closeSuperclasses(name, map[string]struct{}{})
	}
	for name, supers := range r.superclasses {
		for s := range supers {
			if r.subclasses[s] == nil {
				r.subclasses[s] = map[string]struct{}{}
			}
			r.subclasses[s][name] = struct{}{}
		}
	}
}

func (r *Registry) closeSuperclasses(name string, seen map[string]struct{}) map[string]struct{} {
	out := map[string]struct{}{}
	c, ok := r.classes[name]
	if !ok {
		return out
	}
	for _, super := range c.Superclasses {
		if _, cyc := seen[super]; cyc {
			continue
		}
		out[super] = struct{}{}
		seen[super] = struct{}{}
		for anc := range r.closeSuperclasses(super, seen) {
			out[anc] = struct{}{}
		}
	}
	return out
}

// Unload clears the registry, invalidating both memoised class-info caches.
func (r *Registry) Unload() {
	r.Rebuild(map[string]*Class{})
}

// Superclasses returns the transitive ancestor set of class (excludes C
// itself unless C appears in a cycle it's part of via another class).
func (r *Registry) Superclasses(class string) map[string]struct{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneSet(r.superclasses[class])
}

// Subclasses returns the transitive descendant set of class.
func (r *Registry) Subclasses(class string) map[string]struct{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneSet(r.subclasses[class])
}

// SubclassesOrdered returns Subclasses in a stable, deterministic order.
// Insertion order isn't tracked across map rebuilds, so callers that need
// bucket-insertion order should use the object cache's own ordered walk,
// which does track it; this is a sorted fallback for callers that only
// need determinism, such as Configuration.Get's backend probe.
func (r *Registry) SubclassesOrdered(class string) []string {
	set := r.Subclasses(class)
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func cloneSet(in map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(in))
	for k := range in {
		out[k] = struct{}{}
	}
	return out
}

// TryCast reports whether target equals source or target is a superclass
// of source. False if source is unknown.
func (r *Registry) TryCast(target, source string) bool {
	if target == source {
		return true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.classes[source]; !ok {
		return false
	}
	_, ok := r.superclasses[source][target]
	return ok
}

// Class returns the class descriptor for name.
func (r *Registry) Class(name string) (*Class, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.classes[name]
	if !ok {
		return nil, cerrors.NewNotFound("class " + name)
	}
	return c, nil
}

// ClassInfo returns the memoised class-info view for name: the class as
// declared (directOnly) or with attributes/relationships flattened across
// its inheritance chain (all-inherited).
func (r *Registry) ClassInfo(name string, directOnly bool) (*Class, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cache := r.inheritedInfo
	if directOnly {
		cache = r.directInfo
	}
	if c, ok := cache[name]; ok {
		return c, nil
	}

	c, ok := r.classes[name]
	if !ok {
		return nil, cerrors.NewNotFound("class " + name)
	}
	if directOnly {
		cache[name] = c
		return c, nil
	}

	merged := &Class{
		Name:         c.Name,
		Abstract:     c.Abstract,
		Description:  c.Description,
		Superclasses: c.Superclasses,
	}
	seenAttr := map[string]struct{}{}
	seenRel := map[string]struct{}{}
	chain := append([]string{name}, sortedKeys(r.superclasses[name])...)
	for _, cn := range chain {
		cc, ok := r.classes[cn]
		if !ok {
			continue
		}
		for _, a := range cc.Attributes {
			if _, dup := seenAttr[a.Name]; dup {
				continue
			}
			seenAttr[a.Name] = struct{}{}
			merged.Attributes = append(merged.Attributes, a)
		}
		for _, rel := range cc.Relationships {
			if _, dup := seenRel[rel.Name]; dup {
				continue
			}
			seenRel[rel.Name] = struct{}{}
			merged.Relationships = append(merged.Relationships, rel)
		}
	}
	r.inheritedInfo[name] = merged
	return merged, nil
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Names returns every loaded class name, sorted, for deterministic
// traversal (used by export).
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.classes))
	for n := range r.classes {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

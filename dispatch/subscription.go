// Package dispatch implements the subscription registry, internal action
// observers, cache-coherence application, and per-subscription filtering
// described by the change model and notification dispatcher components.
package dispatch

import (
	"sync"

	"github.com/online-daq/goconf/change"
)

// Criteria filters which changes a subscriber receives. Empty (no classes,
// no per-class object sets) means "subscribe to everything".
type Criteria struct {
	Classes map[string]struct{}
	Objects map[string]map[string]struct{} // class -> id set
}

func (c Criteria) isEmpty() bool {
	return len(c.Classes) == 0 && len(c.Objects) == 0
}

// Callback receives a filtered change batch.
type Callback func(batch []change.Change)

// Subscriber is one registered subscription.
type Subscriber struct {
	ID       uint64
	Callback Callback
	UserPtr  any
	Criteria Criteria
}

// SubscriberRegistry owns the subscriber list and criteria under a single
// mutex — the facade's subscriber-mutex.
type SubscriberRegistry struct {
	mu      sync.Mutex
	nextID  uint64
	subs    map[uint64]*Subscriber
}

func NewSubscriberRegistry() *SubscriberRegistry {
	return &SubscriberRegistry{subs: map[uint64]*Subscriber{}}
}

// Subscribe registers cb under criteria and returns an ID for Unsubscribe.
func (r *SubscriberRegistry) Subscribe(criteria Criteria, userPtr any, cb Callback) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := r.nextID
	r.subs[id] = &Subscriber{ID: id, Callback: cb, UserPtr: userPtr, Criteria: criteria}
	return id
}

func (r *SubscriberRegistry) Unsubscribe(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subs, id)
}

func (r *SubscriberRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

func (r *SubscriberRegistry) snapshot() []*Subscriber {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Subscriber, 0, len(r.subs))
	for _, s := range r.subs {
		out = append(out, s)
	}
	return out
}

// BackendCriteria is the union criterion to install on the backend after
// any subscribe/unsubscribe: either "all changes" or a unioned pair.
type BackendCriteria struct {
	All     bool
	Classes []string
	Objects map[string][]string
}

// ComputeBackendCriteria implements the reset-of-backend-subscription rule:
// if any live subscriber has empty-empty criteria, install "all changes";
// otherwise union all class-subscriptions, then union all object
// subscriptions for classes not already covered by the class union.
func (r *SubscriberRegistry) ComputeBackendCriteria() BackendCriteria {
	subs := r.snapshot()

	for _, s := range subs {
		if s.Criteria.isEmpty() {
			return BackendCriteria{All: true}
		}
	}

	classUnion := map[string]struct{}{}
	for _, s := range subs {
		for c := range s.Criteria.Classes {
			classUnion[c] = struct{}{}
		}
	}

	objUnion := map[string]map[string]struct{}{}
	for _, s := range subs {
		for c, ids := range s.Criteria.Objects {
			if _, covered := classUnion[c]; covered {
				continue
			}
			if objUnion[c] == nil {
				objUnion[c] = map[string]struct{}{}
			}
			for id := range ids {
				objUnion[c][id] = struct{}{}
			}
		}
	}

	out := BackendCriteria{Objects: map[string][]string{}}
	for c := range classUnion {
		out.Classes = append(out.Classes, c)
	}
	for c, ids := range objUnion {
		list := make([]string, 0, len(ids))
		for id := range ids {
			list = append(list, id)
		}
		out.Objects[c] = list
	}
	return out
}

// filterFor computes the batch a single subscriber should see, per the
// multi-subscriber filtering rule: class-subscribed classes pass through
// verbatim; object-subscribed classes keep only modified/removed UIDs in
// the id set (creations are never filtered by per-object subscription).
func filterFor(sub *Subscriber, batch []change.Change) []change.Change {
	if sub.Criteria.isEmpty() {
		return batch
	}
	var out []change.Change
	for _, ch := range batch {
		if _, whole := sub.Criteria.Classes[ch.Class]; whole {
			out = append(out, ch)
			continue
		}
		if ids, ok := sub.Criteria.Objects[ch.Class]; ok {
			filtered := change.Change{Class: ch.Class}
			for _, id := range ch.Modified {
				if _, want := ids[id]; want {
					filtered.Modified = append(filtered.Modified, id)
				}
			}
			for _, id := range ch.Removed {
				if _, want := ids[id]; want {
					filtered.Removed = append(filtered.Removed, id)
				}
			}
			if !filtered.Empty() {
				out = append(out, filtered)
			}
		}
	}
	return out
}

// Deliver filters batch per subscriber and invokes every subscriber whose
// filtered batch is non-empty. It must be called with no facade locks
// held, so callbacks may freely re-enter the facade. Each callback runs
// inside a recover-based firewall; failures are reported through report
// and never propagate.
func (r *SubscriberRegistry) Deliver(batch []change.Change, report func(subID uint64, err any)) {
	subs := r.snapshot()
	if len(subs) == 0 {
		return
	}
	for _, s := range subs {
		filtered := filterFor(s, batch)
		if len(filtered) == 0 {
			continue
		}
		invokeSafely(s, filtered, report)
	}
}

func invokeSafely(s *Subscriber, batch []change.Change, report func(subID uint64, err any)) {
	defer func() {
		if r := recover(); r != nil && report != nil {
			report(s.ID, r)
		}
	}()
	s.Callback(batch)
}

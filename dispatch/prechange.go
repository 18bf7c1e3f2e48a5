package dispatch

import "sync"

// PreChangeCallback is invoked immediately before each change batch is
// delivered, with no arguments beyond what the caller already knows
// (facade pointer and user parameter are threaded by Configuration itself,
// since this package holds no reference to the facade).
type PreChangeCallback func(userPtr any)

type preChangeSub struct {
	id      uint64
	cb      PreChangeCallback
	userPtr any
}

// PreChangeRegistry owns the pre-change subscriber list, under the same
// subscriber-mutex discipline as SubscriberRegistry. Pre-change callbacks
// must not call Subscribe/Unsubscribe — the registry does not defend
// against that; it is a documented caller obligation.
type PreChangeRegistry struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]*preChangeSub
}

func NewPreChangeRegistry() *PreChangeRegistry {
	return &PreChangeRegistry{subs: map[uint64]*preChangeSub{}}
}

func (r *PreChangeRegistry) Subscribe(userPtr any, cb PreChangeCallback) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := r.nextID
	r.subs[id] = &preChangeSub{id: id, cb: cb, userPtr: userPtr}
	return id
}

func (r *PreChangeRegistry) Unsubscribe(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subs, id)
}

// Fire invokes every pre-change callback, isolating failures the same way
// the main dispatch path does.
func (r *PreChangeRegistry) Fire(report func(subID uint64, err any)) {
	r.mu.Lock()
	subs := make([]*preChangeSub, 0, len(r.subs))
	for _, s := range r.subs {
		subs = append(subs, s)
	}
	r.mu.Unlock()

	for _, s := range subs {
		func() {
			defer func() {
				if e := recover(); e != nil && report != nil {
					report(s.id, e)
				}
			}()
			s.cb(s.userPtr)
		}()
	}
}

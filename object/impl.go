// Package object holds the implementation object (the core-side cached
// read of one object's fields) and the typed handle exposed to clients.
package object

import "sync"

// State is the lifecycle stage of an implementation object.
type State int

const (
	Valid State = iota
	Unknown
	Deleted
)

// Impl is the implementation object: one per live object, owning the last
// read attribute/relationship values, protected by its own mutex so a read
// of object A never blocks on a concurrent update to object B.
type Impl struct {
	mu sync.Mutex

	class  string
	uid    string
	source string
	state  State
	fields map[string]any

	// accessed counts reads of this object; used only when profiling is
	// enabled (Configuration.DumpProfile).
	accessed int
}

func NewImpl(class, uid, source string, fields map[string]any) *Impl {
	return &Impl{class: class, uid: uid, source: source, state: Valid, fields: fields}
}

func (o *Impl) Class() string { return o.class }
func (o *Impl) UID() string   { return o.uid }

func (o *Impl) SetUID(uid string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.uid = uid
}

func (o *Impl) Source() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.source
}

func (o *Impl) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// MarkDeleted sets state=Deleted and clears fields, holding the object's
// own mutex, per the cache-coherence rule for removed UIDs.
func (o *Impl) MarkDeleted() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = Deleted
	o.fields = nil
}

// Invalidate clears fields and marks the object Unknown so the next access
// forces a backend re-read. Used on abort and on the prior occupant of a
// colliding rename; "modified" notices for non-Valid objects use Reset.
func (o *Impl) Invalidate() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = Unknown
	o.fields = nil
}

// ClearForReread clears fields but leaves state alone (used when a Valid
// object is reported modified: it stays "known to exist", just stale).
func (o *Impl) ClearForReread() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fields = nil
}

// Reset clears fields and resets to Valid-but-empty, ready for a fresh
// backend read on next access. Used for "created" notices (including
// resurrected UIDs) regardless of prior state.
func (o *Impl) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = Valid
	o.fields = nil
}

// Fill installs freshly read fields and marks the object Valid.
func (o *Impl) Fill(source string, fields map[string]any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.source = source
	o.fields = fields
	o.state = Valid
}

// HasFields reports whether a backend read is still needed.
func (o *Impl) HasFields() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.fields != nil
}

// Get returns the raw value of a field, recording an access for profiling.
func (o *Impl) Get(name string) (any, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.accessed++
	if o.fields == nil {
		return nil, false
	}
	v, ok := o.fields[name]
	return v, ok
}

// Set overwrites the raw value of a field (round-trip write path).
func (o *Impl) Set(name string, value any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fields == nil {
		o.fields = map[string]any{}
	}
	o.fields[name] = value
}

// Accessed returns the access counter, for the profiling dump.
func (o *Impl) Accessed() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.accessed
}

// Package change defines the record shape a backend uses to report
// creations, modifications, and removals, and that the dispatcher consumes.
package change

// Change bundles the created/modified/removed UIDs a backend reported for
// one class in a single notification.
type Change struct {
	Class    string
	Created  []string
	Modified []string
	Removed  []string
}

// Empty reports whether the change carries no UIDs at all — used by the
// dispatcher to skip delivering an empty filtered batch to a subscriber.
func (c Change) Empty() bool {
	return len(c.Created) == 0 && len(c.Modified) == 0 && len(c.Removed) == 0
}

// Batch is a set of per-class change records delivered atomically.
type Batch []Change

package object

import (
	"fmt"

	cerrors "github.com/online-daq/goconf/errors"
)

// UpdateHook is invoked whenever a setter changes an object's identity
// (rename), so a derived cache (e.g. a DAL-generated wrapper cache) can
// relocate its own cached handle for the same underlying Impl.
type UpdateHook func(h *Handle, oldUID, newUID string)

// Handle is the thin, non-owning typed facade over an Impl. Multiple
// Handles may reference the same Impl; ownership of the Impl lives solely
// in the object cache.
type Handle struct {
	impl       *Impl
	updateHook UpdateHook
}

func NewHandle(impl *Impl, hook UpdateHook) *Handle {
	return &Handle{impl: impl, updateHook: hook}
}

func (h *Handle) IsNull() bool { return h == nil || h.impl == nil }

func (h *Handle) UID() string {
	if h.IsNull() {
		return ""
	}
	return h.impl.UID()
}

func (h *Handle) ClassName() string {
	if h.IsNull() {
		return ""
	}
	return h.impl.Class()
}

func (h *Handle) FullName() string {
	if h.IsNull() {
		return ""
	}
	return h.UID() + "@" + h.ClassName()
}

func (h *Handle) ContainedIn() string {
	if h.IsNull() {
		return ""
	}
	return h.impl.Source()
}

func (h *Handle) IsDeleted() bool {
	return !h.IsNull() && h.impl.State() == Deleted
}

// Equal implements the equality spec: same UID and class, or same
// underlying implementation, or both null.
func (h *Handle) Equal(other *Handle) bool {
	if h.IsNull() && other.IsNull() {
		return true
	}
	if h.IsNull() || other.IsNull() {
		return false
	}
	if h.impl == other.impl {
		return true
	}
	return h.UID() == other.UID() && h.ClassName() == other.ClassName()
}

func (h *Handle) String() string {
	if h.IsNull() {
		return "<null>"
	}
	return fmt.Sprintf("%s@%s", h.UID(), h.ClassName())
}

func (h *Handle) checkAlive() error {
	if h.IsNull() {
		return cerrors.NewGeneric("operation on a null object handle")
	}
	if h.impl.State() == Deleted {
		return cerrors.NewDeletedObject(h.ClassName(), h.UID())
	}
	return nil
}

// Get reads a raw field value, typed by the caller's expectations; typed
// wrappers (GetString, GetInt32, ...) are defined in typed.go.
func (h *Handle) Get(name string) (any, error) {
	if err := h.checkAlive(); err != nil {
		return nil, err
	}
	v, ok := h.impl.Get(name)
	if !ok {
		return nil, cerrors.NewNotFound("field " + name + " on " + h.FullName())
	}
	return v, nil
}

// Set writes a raw field value (round-trip write path: same-thread reads
// observe it immediately, before any commit).
func (h *Handle) Set(name string, value any) error {
	if err := h.checkAlive(); err != nil {
		return err
	}
	h.impl.Set(name, value)
	return nil
}

// Rename gives the object a new UID and fires the update hook so derived
// caches can relocate any handle they hold for this Impl.
func (h *Handle) Rename(newUID string) error {
	if err := h.checkAlive(); err != nil {
		return err
	}
	old := h.UID()
	h.impl.SetUID(newUID)
	if h.updateHook != nil {
		h.updateHook(h, old, newUID)
	}
	return nil
}

// Impl exposes the underlying implementation object, for the cache and
// dispatcher packages that must operate below the typed facade.
func (h *Handle) Impl() *Impl { return h.impl }

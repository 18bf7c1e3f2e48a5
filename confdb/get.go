package confdb

import (
	"context"

	"github.com/online-daq/goconf/backend"
	cerrors "github.com/online-daq/goconf/errors"
	"github.com/online-daq/goconf/object"
)

// Get returns the object (class, uid), consulting the cache first (with
// subclass fallback) and falling back to the backend, itself probed
// across class's transitive subclasses in registry order, on a cache
// miss. Raises NotFound if no exact-or-subclass match exists.
func (c *Configuration) Get(ctx context.Context, class, uid string, rlevel int, rclasses []string) (*object.Handle, error) {
	c.implMu.Lock()
	if err := c.requireLoaded(); err != nil {
		c.implMu.Unlock()
		return nil, err
	}
	reg := c.registry
	if impl := c.oc.GetImpl(reg, class, uid); impl != nil {
		c.recordCacheStats(class, true)
		if impl.State() == object.Deleted {
			c.implMu.Unlock()
			return nil, cerrors.NewDeletedObject(class, uid)
		}
		h := object.NewHandle(impl, c.onHandleRename)
		if impl.HasFields() {
			c.implMu.Unlock()
			return h, nil
		}
		// Unknown/stale: re-read into the same Impl before returning.
		be := c.be
		c.implMu.Unlock()
		raw, err := be.Get(ctx, backend.ObjectRef{Class: impl.Class(), UID: uid}, rlevel, rclasses)
		if err != nil {
			return nil, cerrors.Wrap(err, "read "+class+"#"+uid)
		}
		impl.Fill(raw.Source, convertRawFields(raw.Fields))
		return h, nil
	}
	c.recordCacheStats(class, false)

	candidates := append([]string{class}, reg.SubclassesOrdered(class)...)
	be := c.be
	c.implMu.Unlock()

	for _, cn := range candidates {
		raw, err := be.Get(ctx, backend.ObjectRef{Class: cn, UID: uid}, rlevel, rclasses)
		if err != nil {
			continue
		}
		impl := object.NewImpl(cn, uid, raw.Source, convertRawFields(raw.Fields))
		c.implMu.Lock()
		c.oc.PutImpl(cn, uid, impl)
		c.implMu.Unlock()
		return object.NewHandle(impl, c.onHandleRename), nil
	}
	return nil, cerrors.NewNotFound(class + "#" + uid)
}

// Exists checks object existence without materialising it into the cache.
func (c *Configuration) Exists(ctx context.Context, class, uid string, rlevel int, rclasses []string) (bool, error) {
	c.implMu.Lock()
	if err := c.requireLoaded(); err != nil {
		c.implMu.Unlock()
		return false, err
	}
	if impl := c.oc.GetImpl(c.registry, class, uid); impl != nil {
		c.implMu.Unlock()
		return impl.State() != object.Deleted, nil
	}
	be := c.be
	c.implMu.Unlock()
	return be.TestObject(ctx, backend.ObjectRef{Class: class, UID: uid}, rlevel, rclasses)
}

// GetBulk reads every object of class matching query.
func (c *Configuration) GetBulk(ctx context.Context, class string, query backend.Query, rlevel int, rclasses []string) ([]*object.Handle, error) {
	c.implMu.Lock()
	if err := c.requireLoaded(); err != nil {
		c.implMu.Unlock()
		return nil, err
	}
	be := c.be
	c.implMu.Unlock()

	raws, err := be.GetBulk(ctx, class, query, rlevel, rclasses)
	if err != nil {
		return nil, cerrors.Wrap(err, "read all "+class)
	}
	return c.materialise(raws), nil
}

// GetFrom traverses from an already-resolved object.
func (c *Configuration) GetFrom(ctx context.Context, from *object.Handle, query backend.Query, rlevel int, rclasses []string) ([]*object.Handle, error) {
	c.implMu.Lock()
	if err := c.requireLoaded(); err != nil {
		c.implMu.Unlock()
		return nil, err
	}
	be := c.be
	c.implMu.Unlock()

	raws, err := be.GetFrom(ctx, backend.ObjectRef{Class: from.ClassName(), UID: from.UID()}, query, rlevel, rclasses)
	if err != nil {
		return nil, cerrors.Wrap(err, "traverse from "+from.FullName())
	}
	return c.materialise(raws), nil
}

func (c *Configuration) materialise(raws []*backend.RawObject) []*object.Handle {
	out := make([]*object.Handle, 0, len(raws))
	c.implMu.Lock()
	for _, raw := range raws {
		impl := c.oc.GetImpl(c.registry, raw.Ref.Class, raw.Ref.UID)
		if impl == nil {
			impl = object.NewImpl(raw.Ref.Class, raw.Ref.UID, raw.Source, convertRawFields(raw.Fields))
			c.oc.PutImpl(raw.Ref.Class, raw.Ref.UID, impl)
		} else if !impl.HasFields() {
			impl.Fill(raw.Source, convertRawFields(raw.Fields))
		}
		out = append(out, object.NewHandle(impl, c.onHandleRename))
	}
	c.implMu.Unlock()
	return out
}

// onHandleRename is the update hook installed on every Handle this
// Configuration returns: it relocates the renamed object within the cache.
// It does not invoke the per-class template hooks.
func (c *Configuration) onHandleRename(h *object.Handle, oldUID, newUID string) {
	c.implMu.Lock()
	c.oc.RenameImpl(h.ClassName(), oldUID, newUID)
	c.implMu.Unlock()
}

package confdb

import (
	"context"

	"github.com/online-daq/goconf/backend"
	cerrors "github.com/online-daq/goconf/errors"
	"github.com/online-daq/goconf/object"
)

// Create asks the backend to create a new object of class with the given
// uid at the given location (source file/shard for file-backed backends,
// backend-specific otherwise), and materialises it into the cache.
func (c *Configuration) Create(ctx context.Context, at, class, uid string) (*object.Handle, error) {
	c.implMu.Lock()
	if err := c.requireLoaded(); err != nil {
		c.implMu.Unlock()
		return nil, err
	}
	be := c.be
	c.implMu.Unlock()

	raw, err := be.Create(ctx, at, backend.ObjectRef{Class: class, UID: uid})
	if err != nil {
		return nil, cerrors.Wrap(err, "create "+class+"#"+uid)
	}

	impl := object.NewImpl(class, uid, raw.Source, convertRawFields(raw.Fields))
	c.implMu.Lock()
	c.oc.PutImpl(class, uid, impl)
	c.implMu.Unlock()
	return object.NewHandle(impl, c.onHandleRename), nil
}

// Destroy asks the backend to remove h. The core does not itself cascade
// composite deletions — the backend is responsible for that and for
// reporting whatever set of UIDs it actually removed through the usual
// change-notification path.
func (c *Configuration) Destroy(ctx context.Context, h *object.Handle) error {
	c.implMu.Lock()
	if err := c.requireLoaded(); err != nil {
		c.implMu.Unlock()
		return err
	}
	be := c.be
	c.implMu.Unlock()

	ref := backend.ObjectRef{Class: h.ClassName(), UID: h.UID()}
	if err := be.Destroy(ctx, ref); err != nil {
		return cerrors.Wrap(err, "destroy "+h.FullName())
	}
	h.Impl().MarkDeleted()
	return nil
}

// Rename asks the backend to rename h to newUID, then relocates the
// cached implementation object and fires the update hook.
func (c *Configuration) Rename(ctx context.Context, h *object.Handle, newUID string) error {
	c.implMu.Lock()
	if err := c.requireLoaded(); err != nil {
		c.implMu.Unlock()
		return err
	}
	be := c.be
	c.implMu.Unlock()

	if err := be.RenameObject(ctx, h.ClassName(), h.UID(), newUID); err != nil {
		return cerrors.Wrap(err, "rename "+h.FullName()+" to "+newUID)
	}
	return h.Rename(newUID)
}

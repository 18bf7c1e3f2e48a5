package confdb

import (
	"context"

	"github.com/online-daq/goconf/backend"
	"github.com/online-daq/goconf/change"
	cerrors "github.com/online-daq/goconf/errors"
)

// SetCommitCredentials forwards commit credentials to the backend.
func (c *Configuration) SetCommitCredentials(user, password string) {
	c.implMu.Lock()
	defer c.implMu.Unlock()
	if c.loaded {
		c.be.SetCommitCredentials(user, password)
	}
}

// Commit persists all pending mutations.
func (c *Configuration) Commit(ctx context.Context, message string) error {
	c.templateMu.Lock()
	c.implMu.Lock()
	defer c.implMu.Unlock()
	defer c.templateMu.Unlock()

	if err := c.requireLoaded(); err != nil {
		return err
	}
	if err := c.be.Commit(ctx, message); err != nil {
		return cerrors.NewCommitFailed(err)
	}
	return nil
}

// Abort discards pending mutations, invalidates every cached and tangled
// implementation object, and rebuilds the inheritance closure.
func (c *Configuration) Abort(ctx context.Context) error {
	c.templateMu.Lock()
	c.implMu.Lock()
	defer c.implMu.Unlock()
	defer c.templateMu.Unlock()

	if err := c.requireLoaded(); err != nil {
		return err
	}
	if err := c.be.Abort(ctx); err != nil {
		return cerrors.Wrap(err, "abort")
	}
	c.oc.InvalidateAll()
	return c.reloadSchema(ctx)
}

// CreateDB creates a new database with the given includes, then rebuilds
// the inheritance closure.
func (c *Configuration) CreateDB(ctx context.Context, name string, includes []string) error {
	c.implMu.Lock()
	defer c.implMu.Unlock()
	if err := c.requireLoaded(); err != nil {
		return err
	}
	if err := c.be.CreateDB(ctx, name, includes); err != nil {
		return cerrors.Wrap(err, "create database "+name)
	}
	return c.reloadSchema(ctx)
}

// AddInclude adds an include to db, then rebuilds the inheritance closure.
func (c *Configuration) AddInclude(ctx context.Context, db, include string) error {
	c.implMu.Lock()
	defer c.implMu.Unlock()
	if err := c.requireLoaded(); err != nil {
		return err
	}
	if err := c.be.AddInclude(ctx, db, include); err != nil {
		return cerrors.Wrap(err, "add include "+include+" to "+db)
	}
	return c.reloadSchema(ctx)
}

// RemoveInclude removes an include from db. Object visibility changes, so
// the template-mutex is also held.
func (c *Configuration) RemoveInclude(ctx context.Context, db, include string) error {
	c.templateMu.Lock()
	c.implMu.Lock()
	defer c.implMu.Unlock()
	defer c.templateMu.Unlock()

	if err := c.requireLoaded(); err != nil {
		return err
	}
	if err := c.be.RemoveInclude(ctx, db, include); err != nil {
		return cerrors.Wrap(err, "remove include "+include+" from "+db)
	}
	return c.reloadSchema(ctx)
}

func (c *Configuration) GetIncludes(ctx context.Context, db string) ([]string, error) {
	c.implMu.Lock()
	be := c.be
	loaded := c.loaded
	c.implMu.Unlock()
	if !loaded {
		return nil, cerrors.NewGeneric("no implementation loaded")
	}
	includes, err := be.GetIncludes(ctx, db)
	if err != nil {
		return nil, cerrors.Wrap(err, "get includes for "+db)
	}
	return includes, nil
}

func (c *Configuration) IsWritable(ctx context.Context, name string) (bool, error) {
	c.implMu.Lock()
	be := c.be
	loaded := c.loaded
	c.implMu.Unlock()
	if !loaded {
		return false, cerrors.NewGeneric("no implementation loaded")
	}
	return be.IsWritable(ctx, name)
}

// GetChanges is a read-only passthrough to the backend, returning the
// pending (uncommitted) change records.
func (c *Configuration) GetChanges(ctx context.Context) ([]change.Change, error) {
	c.implMu.Lock()
	be := c.be
	loaded := c.loaded
	c.implMu.Unlock()
	if !loaded {
		return nil, cerrors.NewGeneric("no implementation loaded")
	}
	changes, err := be.GetChanges(ctx)
	if err != nil {
		return nil, cerrors.Wrap(err, "get pending changes")
	}
	return changes, nil
}

// GetVersions is a read-only passthrough to the backend.
func (c *Configuration) GetVersions(ctx context.Context, since, until string, kind backend.VersionKind, skipIrrelevant bool) ([]backend.Version, error) {
	c.implMu.Lock()
	be := c.be
	loaded := c.loaded
	c.implMu.Unlock()
	if !loaded {
		return nil, cerrors.NewGeneric("no implementation loaded")
	}
	versions, err := be.GetVersions(ctx, since, until, kind, skipIrrelevant)
	if err != nil {
		return nil, cerrors.Wrap(err, "get versions")
	}
	return versions, nil
}

// UpdatedDBs is a read-only passthrough to the backend, listing databases
// that changed since this process last checked.
func (c *Configuration) UpdatedDBs(ctx context.Context) ([]string, error) {
	c.implMu.Lock()
	be := c.be
	loaded := c.loaded
	c.implMu.Unlock()
	if !loaded {
		return nil, cerrors.NewGeneric("no implementation loaded")
	}
	dbs, err := be.GetUpdatedDBs(ctx)
	if err != nil {
		return nil, cerrors.Wrap(err, "get updated databases")
	}
	return dbs, nil
}

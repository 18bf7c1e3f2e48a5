// Package backend defines the contract a storage plugin (in-memory file
// store, remote database server, ...) must satisfy. The core depends only
// on this interface; it never inspects a concrete backend type.
package backend

import (
	"context"

	"github.com/online-daq/goconf/change"
	"github.com/online-daq/goconf/schema"
)

// VersionKind selects how GetVersions interprets Since/Until.
type VersionKind int

const (
	ByDate VersionKind = iota
	ByID
	ByTag
)

// Version is one entry in the backend's commit history.
type Version struct {
	ID      string
	Tag     string
	Date    string
	Message string
	Author  string
}

// Query is an opaque, backend-defined filter string. The core never
// parses it; it is passed through verbatim to GetBulk/GetFrom.
type Query string

// ObjectRef pairs a class name with a UID, the universal object address.
type ObjectRef struct {
	Class string
	UID   string
}

// RawObject is the backend's materialisation of one object's fields, keyed
// by attribute/relationship name. Values for attributes are the Go-native
// primitive (or slice thereof for multi-value); values for relationships
// are ObjectRef or []ObjectRef.
type RawObject struct {
	Ref    ObjectRef
	Source string // contained_in: originating file/shard
	Fields map[string]any
}

// ChangeCallback and PreChangeCallback are invoked by the backend on its
// own goroutine when it observes a modification.
type ChangeCallback func(batch []change.Change)
type PreChangeCallback func()

// Backend is the capability set a storage plugin must implement.
type Backend interface {
	OpenDB(ctx context.Context, name string) error
	CloseDB(ctx context.Context) error
	Loaded() bool

	// GetSuperclasses returns the full direct-superclass map, used by the
	// core to rebuild the inheritance closure.
	GetSuperclasses(ctx context.Context) (map[string]*schema.Class, error)

	Get(ctx context.Context, ref ObjectRef, rlevel int, rclasses []string) (*RawObject, error)
	GetBulk(ctx context.Context, class string, query Query, rlevel int, rclasses []string) ([]*RawObject, error)
	GetFrom(ctx context.Context, from ObjectRef, query Query, rlevel int, rclasses []string) ([]*RawObject, error)
	TestObject(ctx context.Context, ref ObjectRef, rlevel int, rclasses []string) (bool, error)

	Create(ctx context.Context, at string, ref ObjectRef) (*RawObject, error)
	Destroy(ctx context.Context, ref ObjectRef) error
	RenameObject(ctx context.Context, class, oldUID, newUID string) error

	GetClassInfo(ctx context.Context, class string, directOnly bool) (*schema.Class, error)
	PrefetchAllData(ctx context.Context) error

	GetChanges(ctx context.Context) ([]change.Change, error)
	GetVersions(ctx context.Context, since, until string, kind VersionKind, skipIrrelevant bool) ([]Version, error)

	IsWritable(ctx context.Context, name string) (bool, error)
	CreateDB(ctx context.Context, name string, includes []string) error
	AddInclude(ctx context.Context, db, include string) error
	RemoveInclude(ctx context.Context, db, include string) error
	GetIncludes(ctx context.Context, db string) ([]string, error)
	GetUpdatedDBs(ctx context.Context) ([]string, error)

	SetCommitCredentials(user, password string)
	Commit(ctx context.Context, message string) error
	Abort(ctx context.Context) error

	Subscribe(classes []string, objects map[string][]string, onChange ChangeCallback, onPreChange PreChangeCallback) error
	Unsubscribe() error
}

// Factory constructs a Backend from a plugin's PARAMS string.
type Factory func(params string) (Backend, error)

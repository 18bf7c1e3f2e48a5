// Package membackend is the reference in-memory file-store backend: it
// satisfies backend.Backend entirely in memory, loading its schema from a
// YAML document on an afero filesystem (so tests can mutate a virtual
// schema/data directory without touching disk). It registers itself with
// pluginloader under the name "memory"; the facade's own tests construct
// it directly with New and hand it to confdb.Open.
package membackend

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/online-daq/goconf/backend"
	"github.com/online-daq/goconf/change"
	cerrors "github.com/online-daq/goconf/errors"
	"github.com/online-daq/goconf/pluginloader"
	"github.com/online-daq/goconf/schema"
)

func init() {
	pluginloader.Register("memory", func(params string) (backend.Backend, error) {
		return New(afero.NewMemMapFs()), nil
	})
}

type record struct {
	source string
	fields map[string]any
}

// Backend is the reference in-memory backend.
type Backend struct {
	mu sync.Mutex

	fs   afero.Fs
	name string

	loaded   bool
	classes  map[string]*schema.Class
	registry *schema.Registry
	objects  map[string]map[string]*record
	includes map[string][]string

	pending  []change.Change
	versions []backend.Version

	user, password string

	changeCB    backend.ChangeCallback
	preChangeCB backend.PreChangeCallback
	subAll      bool
	subClasses  map[string]struct{}
	subObjects  map[string]map[string]struct{}
}

// New creates a Backend backed by fs, which may be a real filesystem
// (afero.NewOsFs()) or an in-memory one (afero.NewMemMapFs()).
func New(fs afero.Fs) *Backend {
	return &Backend{
		fs:       fs,
		classes:  map[string]*schema.Class{},
		registry: schema.NewRegistry(),
		objects:  map[string]map[string]*record{},
		includes: map[string][]string{},
	}
}

type yamlSchema struct {
	Classes map[string]yamlClass `yaml:"classes"`
}

type yamlClass struct {
	Abstract      bool               `yaml:"abstract"`
	Description   string             `yaml:"description"`
	Superclasses  []string           `yaml:"superclasses"`
	Attributes    []yamlAttribute    `yaml:"attributes"`
	Relationships []yamlRelationship `yaml:"relationships"`
}

type yamlAttribute struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Range       string `yaml:"range"`
	NotNull     bool   `yaml:"notNull"`
	MultiValue  bool   `yaml:"multiValue"`
	Default     string `yaml:"default"`
	Description string `yaml:"description"`
}

type yamlRelationship struct {
	Name          string `yaml:"name"`
	To            string `yaml:"to"`
	Cardinality   string `yaml:"cardinality"`
	IsAggregation bool   `yaml:"isAggregation"`
	Description   string `yaml:"description"`
}

var typeByName = map[string]schema.PrimitiveType{
	"bool": schema.Bool, "int8": schema.Int8, "uint8": schema.UInt8,
	"int16": schema.Int16, "uint16": schema.UInt16,
	"int32": schema.Int32, "uint32": schema.UInt32,
	"int64": schema.Int64, "uint64": schema.UInt64,
	"float32": schema.Float32, "float64": schema.Float64,
	"string": schema.String, "date": schema.Date, "time": schema.Time,
	"enum": schema.Enum, "class": schema.ClassRef,
}

var cardinalityByName = map[string]schema.Cardinality{
	"zero-or-one": schema.ZeroOrOne, "zero-or-many": schema.ZeroOrMany,
	"only-one": schema.OnlyOne, "one-or-many": schema.OneOrMany,
}

// OpenDB reads "<name>.yaml" off the backend's filesystem and parses it
// into the schema registry. Callers that build a schema programmatically
// (as the facade's own tests do) can call SeedSchema instead of writing a
// YAML file.
func (b *Backend) OpenDB(ctx context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.name = name
	path := "/" + name + ".yaml"
	if exists, _ := afero.Exists(b.fs, path); exists {
		raw, err := afero.ReadFile(b.fs, path)
		if err != nil {
			return cerrors.Wrap(err, "read schema file "+path)
		}
		var doc yamlSchema
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return cerrors.Wrap(err, "parse schema file "+path)
		}
		b.classes = map[string]*schema.Class{}
		for name, yc := range doc.Classes {
			b.classes[name] = toSchemaClass(name, yc)
		}
	}
	b.registry.Rebuild(b.classes)
	b.loaded = true
	return nil
}

func toSchemaClass(name string, yc yamlClass) *schema.Class {
	c := &schema.Class{
		Name:         name,
		Abstract:     yc.Abstract,
		Description:  yc.Description,
		Superclasses: yc.Superclasses,
	}
	for _, a := range yc.Attributes {
		c.Attributes = append(c.Attributes, schema.Attribute{
			Name: a.Name, Type: typeByName[a.Type], Range: a.Range,
			NotNull: a.NotNull, MultiValue: a.MultiValue,
			Default: a.Default, Description: a.Description,
		})
	}
	for _, r := range yc.Relationships {
		c.Relationships = append(c.Relationships, schema.Relationship{
			Name: r.Name, ToClass: r.To, Cardinality: cardinalityByName[r.Cardinality],
			IsAggregation: r.IsAggregation, Description: r.Description,
		})
	}
	return c
}

// SeedSchema installs classes directly, bypassing the YAML file — the
// path the facade's own unit tests use to build fixtures.
func (b *Backend) SeedSchema(classes map[string]*schema.Class) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.classes = classes
	b.registry.Rebuild(classes)
	b.loaded = true
}

func (b *Backend) CloseDB(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.loaded = false
	return nil
}

func (b *Backend) Loaded() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loaded
}

func (b *Backend) GetSuperclasses(ctx context.Context) (map[string]*schema.Class, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]*schema.Class, len(b.classes))
	for k, v := range b.classes {
		out[k] = v
	}
	return out, nil
}

func (b *Backend) bucket(class string) map[string]*record {
	m, ok := b.objects[class]
	if !ok {
		m = map[string]*record{}
		b.objects[class] = m
	}
	return m
}

func (b *Backend) Get(ctx context.Context, ref backend.ObjectRef, rlevel int, rclasses []string) (*backend.RawObject, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.objects[ref.Class][ref.UID]
	if !ok {
		return nil, cerrors.NewNotFound(ref.Class + "#" + ref.UID)
	}
	return &backend.RawObject{Ref: ref, Source: rec.source, Fields: cloneFields(rec.fields)}, nil
}

func (b *Backend) GetBulk(ctx context.Context, class string, query backend.Query, rlevel int, rclasses []string) ([]*backend.RawObject, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	uids := make([]string, 0, len(b.objects[class]))
	for uid := range b.objects[class] {
		uids = append(uids, uid)
	}
	sort.Strings(uids)
	out := make([]*backend.RawObject, 0, len(uids))
	for _, uid := range uids {
		rec := b.objects[class][uid]
		out = append(out, &backend.RawObject{Ref: backend.ObjectRef{Class: class, UID: uid}, Source: rec.source, Fields: cloneFields(rec.fields)})
	}
	return out, nil
}

// GetFrom implements the "referenced-by:<relation>[:composite-only]" query
// convention used by Configuration.ReferencedBy: it scans every object for
// a relationship field named <relation> that points at `from`.
func (b *Backend) GetFrom(ctx context.Context, from backend.ObjectRef, query backend.Query, rlevel int, rclasses []string) ([]*backend.RawObject, error) {
	relation, compositeOnly := parseReferencedByQuery(query)
	if relation == "" {
		return nil, cerrors.NewGeneric("unsupported query " + string(query))
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	var out []*backend.RawObject
	for class, objs := range b.objects {
		if compositeOnly {
			rel, ok := b.classRelationship(class, relation)
			if !ok || !rel.IsAggregation {
				continue
			}
		}
		uids := make([]string, 0, len(objs))
		for uid := range objs {
			uids = append(uids, uid)
		}
		sort.Strings(uids)
		for _, uid := range uids {
			rec := objs[uid]
			if refersTo(rec.fields[relation], from) {
				out = append(out, &backend.RawObject{Ref: backend.ObjectRef{Class: class, UID: uid}, Source: rec.source, Fields: cloneFields(rec.fields)})
			}
		}
	}
	return out, nil
}

func (b *Backend) classRelationship(class, name string) (schema.Relationship, bool) {
	c, ok := b.classes[class]
	if !ok {
		return schema.Relationship{}, false
	}
	return c.Relationship(name)
}

func refersTo(v any, target backend.ObjectRef) bool {
	switch t := v.(type) {
	case backend.ObjectRef:
		return t == target
	case []backend.ObjectRef:
		for _, r := range t {
			if r == target {
				return true
			}
		}
	}
	return false
}

func parseReferencedByQuery(q backend.Query) (relation string, compositeOnly bool) {
	s := string(q)
	const prefix = "referenced-by:"
	if len(s) <= len(prefix) || s[:len(prefix)] != prefix {
		return "", false
	}
	rest := s[len(prefix):]
	const suffix = ":composite-only"
	if len(rest) > len(suffix) && rest[len(rest)-len(suffix):] == suffix {
		return rest[:len(rest)-len(suffix)], true
	}
	return rest, false
}

func (b *Backend) TestObject(ctx context.Context, ref backend.ObjectRef, rlevel int, rclasses []string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.objects[ref.Class][ref.UID]
	return ok, nil
}

func (b *Backend) Create(ctx context.Context, at string, ref backend.ObjectRef) (*backend.RawObject, error) {
	b.mu.Lock()
	if _, ok := b.classes[ref.Class]; !ok {
		b.mu.Unlock()
		return nil, cerrors.NewNotFound("class " + ref.Class)
	}
	if _, exists := b.objects[ref.Class][ref.UID]; exists {
		b.mu.Unlock()
		return nil, cerrors.NewGeneric(ref.Class + "#" + ref.UID + " already exists")
	}
	if ref.UID == "" {
		ref.UID = "#" + uuid.NewString()
	}
	rec := &record{source: at, fields: map[string]any{}}
	b.bucket(ref.Class)[ref.UID] = rec
	batch := []change.Change{{Class: ref.Class, Created: []string{ref.UID}}}
	b.pending = append(b.pending, batch...)
	b.mu.Unlock()

	b.notify(batch)
	return &backend.RawObject{Ref: ref, Source: at, Fields: cloneFields(rec.fields)}, nil
}

// Destroy removes ref and cascades through any aggregation relationships
// it owns, reporting every UID actually removed in one change batch.
func (b *Backend) Destroy(ctx context.Context, ref backend.ObjectRef) error {
	b.mu.Lock()
	removed := map[string][]string{}
	b.destroyRecursive(ref.Class, ref.UID, removed)
	b.mu.Unlock()

	if len(removed) == 0 {
		return cerrors.NewNotFound(ref.Class + "#" + ref.UID)
	}

	var batch []change.Change
	for class, uids := range removed {
		batch = append(batch, change.Change{Class: class, Removed: uids})
	}
	b.mu.Lock()
	b.pending = append(b.pending, batch...)
	b.mu.Unlock()
	b.notify(batch)
	return nil
}

func (b *Backend) destroyRecursive(class, uid string, removed map[string][]string) {
	rec, ok := b.objects[class][uid]
	if !ok {
		return
	}
	if c, ok := b.classes[class]; ok {
		for _, rel := range c.Relationships {
			if !rel.IsAggregation {
				continue
			}
			switch v := rec.fields[rel.Name].(type) {
			case backend.ObjectRef:
				b.destroyRecursive(v.Class, v.UID, removed)
			case []backend.ObjectRef:
				for _, child := range v {
					b.destroyRecursive(child.Class, child.UID, removed)
				}
			}
		}
	}
	delete(b.objects[class], uid)
	removed[class] = append(removed[class], uid)
}

func (b *Backend) RenameObject(ctx context.Context, class, oldUID, newUID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.objects[class][oldUID]
	if !ok {
		return cerrors.NewNotFound(class + "#" + oldUID)
	}
	delete(b.objects[class], oldUID)
	// Displace whatever occupies newUID, per the rename collision policy:
	// the write is idempotent, the prior occupant is simply overwritten.
	b.bucket(class)[newUID] = rec
	return nil
}

func (b *Backend) GetClassInfo(ctx context.Context, class string, directOnly bool) (*schema.Class, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.registry.ClassInfo(class, directOnly)
}

func (b *Backend) PrefetchAllData(ctx context.Context) error { return nil }

func (b *Backend) GetChanges(ctx context.Context) ([]change.Change, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]change.Change, len(b.pending))
	copy(out, b.pending)
	return out, nil
}

func (b *Backend) GetVersions(ctx context.Context, since, until string, kind backend.VersionKind, skipIrrelevant bool) ([]backend.Version, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]backend.Version, len(b.versions))
	copy(out, b.versions)
	return out, nil
}

func (b *Backend) IsWritable(ctx context.Context, name string) (bool, error) { return true, nil }

func (b *Backend) CreateDB(ctx context.Context, name string, includes []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.includes[name] = includes
	if !b.loaded {
		b.classes = map[string]*schema.Class{}
		b.registry.Rebuild(b.classes)
		b.loaded = true
	}
	return nil
}

func (b *Backend) AddInclude(ctx context.Context, db, include string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.includes[db] = append(b.includes[db], include)
	return nil
}

func (b *Backend) RemoveInclude(ctx context.Context, db, include string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.includes[db]
	for i, inc := range list {
		if inc == include {
			b.includes[db] = append(list[:i], list[i+1:]...)
			break
		}
	}
	return nil
}

func (b *Backend) GetIncludes(ctx context.Context, db string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.includes[db]))
	copy(out, b.includes[db])
	return out, nil
}

func (b *Backend) GetUpdatedDBs(ctx context.Context) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.includes))
	for name := range b.includes {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func (b *Backend) SetCommitCredentials(user, password string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.user, b.password = user, password
}

func (b *Backend) Commit(ctx context.Context, message string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.versions = append(b.versions, backend.Version{ID: uuid.NewString(), Message: message, Author: b.user})
	b.pending = nil
	return nil
}

func (b *Backend) Abort(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = nil
	return nil
}

func (b *Backend) Subscribe(classes []string, objects map[string][]string, onChange backend.ChangeCallback, onPreChange backend.PreChangeCallback) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.changeCB = onChange
	b.preChangeCB = onPreChange
	if classes == nil && objects == nil {
		b.subAll = true
		b.subClasses = nil
		b.subObjects = nil
		return nil
	}
	b.subAll = false
	b.subClasses = map[string]struct{}{}
	for _, c := range classes {
		b.subClasses[c] = struct{}{}
	}
	b.subObjects = map[string]map[string]struct{}{}
	for c, ids := range objects {
		set := map[string]struct{}{}
		for _, id := range ids {
			set[id] = struct{}{}
		}
		b.subObjects[c] = set
	}
	return nil
}

func (b *Backend) Unsubscribe() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.changeCB = nil
	b.preChangeCB = nil
	b.subAll = false
	b.subClasses = nil
	b.subObjects = nil
	return nil
}

// notify delivers batch to the registered callbacks, filtered by whatever
// criteria Subscribe last installed, on the backend's own goroutine —
// modelled here as a plain goroutine per notification.
func (b *Backend) notify(batch []change.Change) {
	b.mu.Lock()
	cb := b.changeCB
	preCB := b.preChangeCB
	filtered := b.filterForSubscription(batch)
	b.mu.Unlock()

	if cb == nil || len(filtered) == 0 {
		return
	}
	go func() {
		if preCB != nil {
			preCB()
		}
		cb(filtered)
	}()
}

func (b *Backend) filterForSubscription(batch []change.Change) []change.Change {
	if b.subAll {
		return batch
	}
	var out []change.Change
	for _, ch := range batch {
		if _, whole := b.subClasses[ch.Class]; whole {
			out = append(out, ch)
			continue
		}
		if ids, ok := b.subObjects[ch.Class]; ok {
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

func cloneFields(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// SeedObject installs an object's fields directly, bypassing Create — the
// path fixtures use to set up a starting state before exercising the
// facade.
func (b *Backend) SeedObject(class, uid, source string, fields map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bucket(class)[uid] = &record{source: source, fields: cloneFields(fields)}
}

package membackend_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/online-daq/goconf/backend"
	"github.com/online-daq/goconf/change"
	"github.com/online-daq/goconf/confdb"
	"github.com/online-daq/goconf/dispatch"
	"github.com/online-daq/goconf/object"
	"github.com/online-daq/goconf/plugins/membackend"
	"github.com/online-daq/goconf/schema"
)

func fixtureSchema() map[string]*schema.Class {
	return map[string]*schema.Class{
		"Dummy": {
			Name: "Dummy",
			Attributes: []schema.Attribute{
				{Name: "sint32", Type: schema.Int32},
				{Name: "svarstring", Type: schema.String, MultiValue: true},
			},
		},
		"Second": {
			Name:         "Second",
			Superclasses: []string{"Dummy"},
			Attributes: []schema.Attribute{
				{Name: "sbool", Type: schema.Bool},
			},
		},
		"Third": {
			Name:         "Third",
			Superclasses: []string{"Dummy"},
			Relationships: []schema.Relationship{
				{Name: "Seconds", ToClass: "Second", Cardinality: schema.ZeroOrMany},
				{Name: "Children", ToClass: "Third", Cardinality: schema.ZeroOrMany, IsAggregation: true},
			},
		},
	}
}

func newTestConfiguration(t *testing.T) (*confdb.Configuration, *membackend.Backend) {
	t.Helper()
	be := membackend.New(afero.NewMemMapFs())
	be.SeedSchema(fixtureSchema())

	cfg, err := confdb.Open(context.Background(), be, nil, "test-db", confdb.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cfg.Close(context.Background()) })
	return cfg, be
}

// Scenario 1: primitive round-trip.
func TestPrimitiveRoundTrip(t *testing.T) {
	ctx := context.Background()
	cfg, be := newTestConfiguration(t)
	be.SeedObject("Dummy", "#1", "fixture.yaml", map[string]any{
		"sint32":     int32(42),
		"svarstring": []string{"a", "b"},
	})

	h, err := cfg.Get(ctx, "Dummy", "#1", 0, nil)
	require.NoError(t, err)

	v, err := h.GetInt32("sint32")
	require.NoError(t, err)
	assert.Equal(t, int32(42), v)

	strs, err := h.GetStringVector("svarstring")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, strs)

	require.NoError(t, h.SetInt32("sint32", 43))
	v, err = h.GetInt32("sint32")
	require.NoError(t, err)
	assert.Equal(t, int32(43), v)
}

// Scenario 2: subclass lookup — Get("Dummy", "#7") finds a Second#7.
func TestSubclassLookup(t *testing.T) {
	ctx := context.Background()
	cfg, be := newTestConfiguration(t)
	be.SeedObject("Second", "#7", "fixture.yaml", map[string]any{"sbool": true})

	h, err := cfg.Get(ctx, "Dummy", "#7", 0, nil)
	require.NoError(t, err)
	assert.Equal(t, "Second", h.ClassName())

	_, err = cfg.Get(ctx, "Third", "#7", 0, nil)
	assert.Error(t, err)
}

// Scenario 3: relationship vectors round-trip a vector of object references.
func TestRelationshipVectors(t *testing.T) {
	ctx := context.Background()
	cfg, be := newTestConfiguration(t)
	be.SeedObject("Second", "#1", "f.yaml", nil)
	be.SeedObject("Second", "#2", "f.yaml", nil)
	be.SeedObject("Third", "#1", "f.yaml", map[string]any{
		"Seconds": []backend.ObjectRef{{Class: "Second", UID: "#1"}, {Class: "Second", UID: "#2"}},
	})

	h, err := cfg.Get(ctx, "Third", "#1", 0, nil)
	require.NoError(t, err)

	refs, err := h.GetObjectRefVector("Seconds")
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, "Second", refs[0].Class)
	assert.Equal(t, "#1", refs[0].UID)
}

// Scenario 4: rename collides with an existing occupant, which tangles
// rather than being rejected.
func TestRenameAndTangle(t *testing.T) {
	ctx := context.Background()
	cfg, be := newTestConfiguration(t)
	be.SeedObject("Dummy", "#A", "f.yaml", map[string]any{"sint32": int32(1)})
	be.SeedObject("Dummy", "#B", "f.yaml", map[string]any{"sint32": int32(2)})

	ha, err := cfg.Get(ctx, "Dummy", "#A", 0, nil)
	require.NoError(t, err)
	hb, err := cfg.Get(ctx, "Dummy", "#B", 0, nil)
	require.NoError(t, err)

	require.NoError(t, cfg.Rename(ctx, ha, "#B"))
	assert.Equal(t, "#B", ha.UID())

	// The prior occupant of #B is tangled, not rejected: it demotes to
	// Unknown rather than Deleted, so a stale handle still dereferences
	// safely (it just forces a re-read next access).
	assert.Equal(t, object.Unknown, hb.Impl().State())
}

// Scenario 5: destroying a composite owner cascades to its aggregated
// children but leaves unrelated, non-composite references alone.
func TestCompositeDeleteCascade(t *testing.T) {
	ctx := context.Background()
	cfg, be := newTestConfiguration(t)
	be.SeedObject("Second", "#3", "f.yaml", nil)
	be.SeedObject("Third", "#4", "f.yaml", nil)
	be.SeedObject("Third", "#5", "f.yaml", map[string]any{
		"Children": []backend.ObjectRef{{Class: "Third", UID: "#4"}},
	})
	be.SeedObject("Third", "#6", "f.yaml", map[string]any{
		"Seconds": []backend.ObjectRef{{Class: "Second", UID: "#3"}},
	})

	h5, err := cfg.Get(ctx, "Third", "#5", 0, nil)
	require.NoError(t, err)
	require.NoError(t, cfg.Destroy(ctx, h5))

	time.Sleep(20 * time.Millisecond) // let the async change batch land

	exists, err := cfg.Exists(ctx, "Third", "#4", 0, nil)
	require.NoError(t, err)
	assert.False(t, exists, "aggregated child must be cascaded away")

	exists, err = cfg.Exists(ctx, "Second", "#3", 0, nil)
	require.NoError(t, err)
	assert.True(t, exists, "non-composite reference target must survive")
}

// Scenario 6: a class-level subscriber sees every change to its class; an
// object-level subscriber only sees modify/remove for the UIDs it named,
// never creates.
func TestSubscriptionFiltering(t *testing.T) {
	ctx := context.Background()
	cfg, be := newTestConfiguration(t)

	var mu sync.Mutex
	var classSeen, objectSeen []change.Change

	_, err := cfg.Subscribe(dispatch.Criteria{Classes: map[string]struct{}{"Dummy": {}}}, nil,
		func(batch []change.Change) {
			mu.Lock()
			defer mu.Unlock()
			classSeen = append(classSeen, batch...)
		})
	require.NoError(t, err)

	_, err = cfg.Subscribe(dispatch.Criteria{Objects: map[string]map[string]struct{}{"Dummy": {"#1": {}}}}, nil,
		func(batch []change.Change) {
			mu.Lock()
			defer mu.Unlock()
			objectSeen = append(objectSeen, batch...)
		})
	require.NoError(t, err)

	_, err = be.Create(ctx, "f.yaml", backend.ObjectRef{Class: "Dummy", UID: "#1"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(classSeen) > 0
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.NotEmpty(t, classSeen, "class-level subscriber must see the create")
	for _, ch := range objectSeen {
		assert.Empty(t, ch.Created, "object-level subscriber must never see creates")
	}
}

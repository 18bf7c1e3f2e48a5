package cache

import (
	"testing"

	"github.com/online-daq/goconf/object"
	"github.com/online-daq/goconf/schema"
	"github.com/stretchr/testify/require"
)

func testRegistry() *schema.Registry {
	r := schema.NewRegistry()
	r.Rebuild(map[string]*schema.Class{
		"Dummy":  {Name: "Dummy"},
		"Second": {Name: "Second", Superclasses: []string{"Dummy"}},
		"Third":  {Name: "Third", Superclasses: []string{"Dummy"}},
	})
	return r
}

func TestPutGetSubclassFallback(t *testing.T) {
	reg := testRegistry()
	c := New()

	o := object.NewImpl("Second", "#7", "test", map[string]any{})
	c.PutImpl("Second", "#7", o)

	require.Same(t, o, c.GetImpl(reg, "Second", "#7"))
	require.Same(t, o, c.GetImpl(reg, "Dummy", "#7"))
	require.Nil(t, c.GetImpl(reg, "Third", "#7"))
}

func TestRenameTangles(t *testing.T) {
	reg := testRegistry()
	c := New()

	a := object.NewImpl("Dummy", "#A", "test", map[string]any{})
	b := object.NewImpl("Dummy", "#B", "test", map[string]any{})
	c.PutImpl("Dummy", "#A", a)
	c.PutImpl("Dummy", "#B", b)

	renamed := c.RenameImpl("Dummy", "#A", "#B")
	require.Same(t, a, renamed)

	require.Nil(t, c.GetImpl(reg, "Dummy", "#A"))
	require.Same(t, a, c.GetImpl(reg, "Dummy", "#B"))

	tangled := c.Tangled()
	require.Len(t, tangled, 1)
	require.Same(t, b, tangled[0])
	require.Equal(t, object.Unknown, b.State())
}

func TestInvalidateAllOnAbort(t *testing.T) {
	reg := testRegistry()
	_ = reg
	c := New()
	o := object.NewImpl("Dummy", "#1", "test", map[string]any{"x": 1})
	c.PutImpl("Dummy", "#1", o)

	c.InvalidateAll()
	require.Equal(t, object.Unknown, o.State())
	require.False(t, o.HasFields())
}

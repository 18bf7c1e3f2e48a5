package schema

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testClasses() map[string]*Class {
	return map[string]*Class{
		"Dummy":  {Name: "Dummy"},
		"Second": {Name: "Second", Superclasses: []string{"Dummy"}},
		"Third":  {Name: "Third", Superclasses: []string{"Dummy"}},
	}
}

func TestInheritanceClosureInvariant(t *testing.T) {
	r := NewRegistry()
	r.Rebuild(testClasses())

	for _, c := range r.Names() {
		for _, d := range r.Names() {
			inSub := r.Subclasses(c)
			_, dIsSub := inSub[d]
			inSuper := r.Superclasses(d)
			_, cIsSuper := inSuper[c]
			require.Equal(t, cIsSuper, dIsSub, "D in subclasses(C) <=> C in superclasses(D) for C=%s D=%s", c, d)
		}
	}
}

func TestTryCast(t *testing.T) {
	r := NewRegistry()
	r.Rebuild(testClasses())

	require.True(t, r.TryCast("Dummy", "Second"))
	require.False(t, r.TryCast("Third", "Second"))
	require.True(t, r.TryCast("Dummy", "Dummy"))
	require.False(t, r.TryCast("Dummy", "Nope"))
}

func TestClassInfoInherited(t *testing.T) {
	r := NewRegistry()
	classes := testClasses()
	classes["Dummy"].Attributes = []Attribute{{Name: "sint32", Type: Int32}}
	classes["Second"].Attributes = []Attribute{{Name: "extra", Type: String}}
	r.Rebuild(classes)

	info, err := r.ClassInfo("Second", false)
	require.NoError(t, err)
	require.Len(t, info.Attributes, 2)

	direct, err := r.ClassInfo("Second", true)
	require.NoError(t, err)
	require.Len(t, direct.Attributes, 1)
}

// Package export builds structured property trees for bulk schema and
// data export, following the property-tree export contract: nested
// map[string]any trees, an error-marker sentinel for failed reads, and a
// configurable sentinel for empty multi-valued relationships.
package export

import (
	"regexp"
	"sort"

	"github.com/online-daq/goconf/object"
	"github.com/online-daq/goconf/schema"
)

// Node is one entry of the exported property tree.
type Node map[string]any

// ErrorMarker is substituted for a field whose typed read failed, so
// export never aborts midway through a class or object.
const ErrorMarker = "<error>"

// Filters restrict which classes, UIDs, and source files are exported. A
// nil Filter matches everything.
type Filters struct {
	Class  *regexp.Regexp
	UID    *regexp.Regexp
	Source *regexp.Regexp
}

func (f Filters) MatchClass(name string) bool {
	return f.Class == nil || f.Class.MatchString(name)
}

func (f Filters) MatchUID(uid string) bool {
	return f.UID == nil || f.UID.MatchString(uid)
}

func (f Filters) MatchSource(src string) bool {
	return f.Source == nil || f.Source.MatchString(src)
}

// Schema traverses classes in sorted order and builds the property tree
// described by the property-tree export contract: abstract, description,
// superclasses, attributes, relationships.
func Schema(reg *schema.Registry, filters Filters) Node {
	root := Node{}
	for _, name := range reg.Names() {
		if !filters.MatchClass(name) {
			continue
		}
		c, err := reg.ClassInfo(name, true)
		if err != nil {
			continue
		}
		root[name] = classNode(c)
	}
	return root
}

func classNode(c *schema.Class) Node {
	n := Node{
		"abstract":     c.Abstract,
		"superclasses": append([]string{}, c.Superclasses...),
	}
	if c.Description != "" {
		n["description"] = c.Description
	}

	attrs := Node{}
	for _, a := range c.Attributes {
		attrNode := Node{"type": a.Type.String()}
		if a.Range != "" {
			attrNode["range"] = a.Range
		}
		if a.Format != schema.FormatNA {
			attrNode["format"] = formatName(a.Format)
		}
		if a.NotNull {
			attrNode["is-not-null"] = true
		}
		if a.MultiValue {
			attrNode["is-multi-value"] = true
		}
		if a.Default != "" {
			attrNode["default-value"] = a.Default
		}
		if a.Description != "" {
			attrNode["description"] = a.Description
		}
		attrs[a.Name] = attrNode
	}
	n["attributes"] = attrs

	rels := Node{}
	for _, r := range c.Relationships {
		relNode := Node{
			"type":        r.ToClass,
			"cardinality": cardinalityName(r.Cardinality),
		}
		if r.IsAggregation {
			relNode["is-aggregation"] = true
		}
		if r.Description != "" {
			relNode["description"] = r.Description
		}
		rels[r.Name] = relNode
	}
	n["relationships"] = rels

	return n
}

func formatName(f schema.IntFormat) string {
	switch f {
	case schema.FormatOctal:
		return "octal"
	case schema.FormatDecimal:
		return "decimal"
	case schema.FormatHex:
		return "hex"
	default:
		return "n/a"
	}
}

func cardinalityName(c schema.Cardinality) string {
	switch c {
	case schema.ZeroOrOne:
		return "zero-or-one"
	case schema.ZeroOrMany:
		return "zero-or-many"
	case schema.OnlyOne:
		return "only-one"
	case schema.OneOrMany:
		return "one-or-many"
	default:
		return "unknown"
	}
}

// ObjectsByClass supplies the live handles to export for each class name;
// the caller (Configuration) is responsible for fetching them from the
// backend/cache and applying UID/source filtering.
type ObjectsByClass map[string][]*object.Handle

// FieldReader reads one named field off a handle as an exportable value,
// returning a non-nil error on failure, in which case Data records
// ErrorMarker for that field. Configuration supplies this so export stays
// decoupled from the typed-getter machinery.
type FieldReader func(h *object.Handle, field string) (any, error)

// Data builds the data property tree for objects, class by class in sorted
// order. emptySentinel is inserted, when non-empty, in place of an empty
// multi-value field, so downstream text writers can strip or transform it.
func Data(reg *schema.Registry, objects ObjectsByClass, read FieldReader, emptySentinel string) Node {
	root := Node{}
	for _, className := range sortedKeys(objects) {
		info, err := reg.ClassInfo(className, false)
		if err != nil {
			continue
		}
		classNode := Node{}
		for _, h := range objects[className] {
			classNode[h.UID()] = objectNode(info, h, read, emptySentinel)
		}
		root[className] = classNode
	}
	return root
}

func objectNode(info *schema.Class, h *object.Handle, read FieldReader, sentinel string) Node {
	n := Node{}
	for _, a := range info.Attributes {
		v, err := read(h, a.Name)
		if err != nil {
			n[a.Name] = ErrorMarker
			continue
		}
		if a.MultiValue && isEmptyMulti(v) && sentinel != "" {
			n[a.Name] = sentinel
			continue
		}
		n[a.Name] = v
	}
	for _, r := range info.Relationships {
		v, err := read(h, r.Name)
		if err != nil {
			n[r.Name] = ErrorMarker
			continue
		}
		if r.Cardinality.IsMulti() && isEmptyMulti(v) && sentinel != "" {
			n[r.Name] = sentinel
			continue
		}
		n[r.Name] = v
	}
	return n
}

func isEmptyMulti(v any) bool {
	switch t := v.(type) {
	case []object.Ref:
		return len(t) == 0
	case []string:
		return len(t) == 0
	case []int32:
		return len(t) == 0
	case []int64:
		return len(t) == 0
	case []float64:
		return len(t) == 0
	case []bool:
		return len(t) == 0
	case nil:
		return true
	default:
		return false
	}
}

func sortedKeys(m ObjectsByClass) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Package schema holds the immutable descriptors for classes, attributes,
// and relationships, plus the enums for primitive types, integer formats,
// and relationship cardinalities.
package schema

// PrimitiveType enumerates the primitive attribute types.
type PrimitiveType int

const (
	Bool PrimitiveType = iota
	Int8
	UInt8
	Int16
	UInt16
	Int32
	UInt32
	Int64
	UInt64
	Float32
	Float64
	String
	Date
	Time
	Enum
	ClassRef
)

func (t PrimitiveType) String() string {
	switch t {
	case Bool:
		return "bool"
	case Int8:
		return "int8"
	case UInt8:
		return "uint8"
	case Int16:
		return "int16"
	case UInt16:
		return "uint16"
	case Int32:
		return "int32"
	case UInt32:
		return "uint32"
	case Int64:
		return "int64"
	case UInt64:
		return "uint64"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case String:
		return "string"
	case Date:
		return "date"
	case Time:
		return "time"
	case Enum:
		return "enum"
	case ClassRef:
		return "class"
	default:
		return "unknown"
	}
}

// IntFormat is a pretty-printing hint for integer attributes; it never
// affects on-wire or in-cache representation.
type IntFormat int

const (
	FormatNA IntFormat = iota
	FormatOctal
	FormatDecimal
	FormatHex
)

// Cardinality is the multiplicity of a relationship.
type Cardinality int

const (
	ZeroOrOne Cardinality = iota
	ZeroOrMany
	OnlyOne
	OneOrMany
)

func (c Cardinality) IsMulti() bool {
	return c == ZeroOrMany || c == OneOrMany
}

// Attribute describes one scalar or multi-value field of a class.
type Attribute struct {
	Name         string
	Type         PrimitiveType
	Range        string
	Format       IntFormat
	NotNull      bool
	MultiValue   bool
	Default      string
	Description  string
}

// Relationship describes one edge to another class.
type Relationship struct {
	Name          string
	ToClass       string
	Cardinality   Cardinality
	IsAggregation bool
	Description   string
}

// Class is the immutable descriptor for one schema class. Two classes
// with the same Name are the same class; the Registry keys classes by
// Name and compares them with plain Go string equality.
type Class struct {
	Name          string
	Abstract      bool
	Description   string
	Superclasses  []string
	Attributes    []Attribute
	Relationships []Relationship
}

func (c *Class) Attribute(name string) (Attribute, bool) {
	for _, a := range c.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return Attribute{}, false
}

func (c *Class) Relationship(name string) (Relationship, bool) {
	for _, r := range c.Relationships {
		if r.Name == name {
			return r, true
		}
	}
	return Relationship{}, false
}

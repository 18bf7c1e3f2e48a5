package object

import cerrors "github.com/online-daq/goconf/errors"

// The typed getters below all funnel through Get and a type assertion,
// returning GenericConfig when the schema and the stored value disagree
// (e.g. a vector attribute read as a scalar or vice versa).

func (h *Handle) GetBool(name string) (bool, error)       { return getAs[bool](h, name) }
func (h *Handle) GetInt8(name string) (int8, error)       { return getAs[int8](h, name) }
func (h *Handle) GetUInt8(name string) (uint8, error)     { return getAs[uint8](h, name) }
func (h *Handle) GetInt16(name string) (int16, error)     { return getAs[int16](h, name) }
func (h *Handle) GetUInt16(name string) (uint16, error)   { return getAs[uint16](h, name) }
func (h *Handle) GetInt32(name string) (int32, error)     { return getAs[int32](h, name) }
func (h *Handle) GetUInt32(name string) (uint32, error)   { return getAs[uint32](h, name) }
func (h *Handle) GetInt64(name string) (int64, error)     { return getAs[int64](h, name) }
func (h *Handle) GetUInt64(name string) (uint64, error)   { return getAs[uint64](h, name) }
func (h *Handle) GetFloat32(name string) (float32, error) { return getAs[float32](h, name) }
func (h *Handle) GetFloat64(name string) (float64, error) { return getAs[float64](h, name) }
func (h *Handle) GetString(name string) (string, error)   { return getAs[string](h, name) }
func (h *Handle) GetDate(name string) (string, error)     { return getAs[string](h, name) }
func (h *Handle) GetTime(name string) (string, error)     { return getAs[string](h, name) }
func (h *Handle) GetEnum(name string) (string, error)     { return getAs[string](h, name) }
func (h *Handle) GetClass(name string) (string, error)    { return getAs[string](h, name) }

func (h *Handle) GetBoolVector(name string) ([]bool, error)       { return getAs[[]bool](h, name) }
func (h *Handle) GetInt32Vector(name string) ([]int32, error)     { return getAs[[]int32](h, name) }
func (h *Handle) GetInt64Vector(name string) ([]int64, error)     { return getAs[[]int64](h, name) }
func (h *Handle) GetFloat64Vector(name string) ([]float64, error) { return getAs[[]float64](h, name) }
func (h *Handle) GetStringVector(name string) ([]string, error)   { return getAs[[]string](h, name) }

func getAs[T any](h *Handle, name string) (T, error) {
	var zero T
	v, err := h.Get(name)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, cerrors.Wrap(cerrors.NewGeneric("stored value does not match requested type"), "read "+name+" on "+h.FullName())
	}
	return t, nil
}

func (h *Handle) SetBool(name string, v bool) error       { return h.Set(name, v) }
func (h *Handle) SetInt8(name string, v int8) error       { return h.Set(name, v) }
func (h *Handle) SetUInt8(name string, v uint8) error     { return h.Set(name, v) }
func (h *Handle) SetInt16(name string, v int16) error     { return h.Set(name, v) }
func (h *Handle) SetUInt16(name string, v uint16) error   { return h.Set(name, v) }
func (h *Handle) SetInt32(name string, v int32) error     { return h.Set(name, v) }
func (h *Handle) SetUInt32(name string, v uint32) error   { return h.Set(name, v) }
func (h *Handle) SetInt64(name string, v int64) error     { return h.Set(name, v) }
func (h *Handle) SetUInt64(name string, v uint64) error   { return h.Set(name, v) }
func (h *Handle) SetFloat32(name string, v float32) error { return h.Set(name, v) }
func (h *Handle) SetFloat64(name string, v float64) error { return h.Set(name, v) }
func (h *Handle) SetString(name string, v string) error   { return h.Set(name, v) }
func (h *Handle) SetDate(name string, v string) error     { return h.Set(name, v) }
func (h *Handle) SetTime(name string, v string) error     { return h.Set(name, v) }
func (h *Handle) SetEnum(name string, v string) error     { return h.Set(name, v) }
func (h *Handle) SetClass(name string, v string) error    { return h.Set(name, v) }

func (h *Handle) SetBoolVector(name string, v []bool) error       { return h.Set(name, v) }
func (h *Handle) SetInt32Vector(name string, v []int32) error     { return h.Set(name, v) }
func (h *Handle) SetInt64Vector(name string, v []int64) error     { return h.Set(name, v) }
func (h *Handle) SetFloat64Vector(name string, v []float64) error { return h.Set(name, v) }
func (h *Handle) SetStringVector(name string, v []string) error   { return h.Set(name, v) }

// GetObjectRef reads a single-valued relationship as its (class, uid)
// pair; the caller (Configuration) resolves it into a Handle via the cache.
func (h *Handle) GetObjectRef(name string) (class, uid string, err error) {
	v, err := h.Get(name)
	if err != nil {
		return "", "", err
	}
	ref, ok := v.(Ref)
	if !ok {
		return "", "", cerrors.NewGeneric("field " + name + " is not a single-valued relationship")
	}
	return ref.Class, ref.UID, nil
}

// GetObjectRefVector reads a multi-valued relationship as a list of refs.
func (h *Handle) GetObjectRefVector(name string) ([]Ref, error) {
	return getAs[[]Ref](h, name)
}

func (h *Handle) SetObjectRef(name, class, uid string) error {
	return h.Set(name, Ref{Class: class, UID: uid})
}

func (h *Handle) SetObjectRefVector(name string, refs []Ref) error {
	return h.Set(name, refs)
}

// Ref is a lightweight (class, uid) pair stored in relationship fields,
// resolved to a Handle lazily by the facade that owns the cache.
type Ref struct {
	Class string
	UID   string
}

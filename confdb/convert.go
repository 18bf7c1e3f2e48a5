package confdb

import (
	"github.com/online-daq/goconf/backend"
	"github.com/online-daq/goconf/object"
)

// convertRawFields translates a backend's relationship encoding
// (backend.ObjectRef / []backend.ObjectRef) into the encoding the typed
// facade's getters expect (object.Ref / []object.Ref). Every raw read from
// a backend must pass through here before it reaches an Impl, so
// GetObjectRef/GetObjectRefVector's type assertions succeed regardless of
// which concrete backend supplied the data.
func convertRawFields(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		switch t := v.(type) {
		case backend.ObjectRef:
			out[k] = object.Ref{Class: t.Class, UID: t.UID}
		case []backend.ObjectRef:
			refs := make([]object.Ref, len(t))
			for i, r := range t {
				refs[i] = object.Ref{Class: r.Class, UID: r.UID}
			}
			out[k] = refs
		default:
			out[k] = v
		}
	}
	return out
}

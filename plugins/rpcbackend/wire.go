// Package rpcbackend is the reference remote-database-server backend: a
// client that talks to a confdb server over gRPC, and a server that
// exposes any backend.Backend that way. It demonstrates the wire pattern
// for a genuinely remote backend; unlike membackend it does not carry
// every operation the interface names over the wire. Of the operations
// with no RPC (listed in client.go), GetFrom, GetClassInfo, GetChanges,
// GetVersions, AddInclude and RemoveInclude return a "not supported" error;
// the others are answered locally by the client without contacting the
// server.
package rpcbackend

import (
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/online-daq/goconf/backend"
	"github.com/online-daq/goconf/change"
)

// Only scalar and homogeneous-vector field values round-trip over the
// reference wire encoding; relationship references and richer types are
// out of scope for this demo backend (see DESIGN.md).

func refToStruct(ref backend.ObjectRef) *structpb.Struct {
	s, _ := structpb.NewStruct(map[string]any{"class": ref.Class, "uid": ref.UID})
	return s
}

func structToRef(s *structpb.Struct) backend.ObjectRef {
	if s == nil {
		return backend.ObjectRef{}
	}
	m := s.AsMap()
	class, _ := m["class"].(string)
	uid, _ := m["uid"].(string)
	return backend.ObjectRef{Class: class, UID: uid}
}

func rawObjectToStruct(raw *backend.RawObject) *structpb.Struct {
	fields, _ := structpb.NewStruct(raw.Fields)
	m := map[string]any{
		"class":  raw.Ref.Class,
		"uid":    raw.Ref.UID,
		"source": raw.Source,
		"fields": fields.AsMap(),
	}
	s, _ := structpb.NewStruct(m)
	return s
}

func structToRawObject(s *structpb.Struct) *backend.RawObject {
	m := s.AsMap()
	class, _ := m["class"].(string)
	uid, _ := m["uid"].(string)
	source, _ := m["source"].(string)
	fields, _ := m["fields"].(map[string]any)
	return &backend.RawObject{Ref: backend.ObjectRef{Class: class, UID: uid}, Source: source, Fields: fields}
}

func changeToStruct(ch change.Change) *structpb.Struct {
	s, _ := structpb.NewStruct(map[string]any{
		"class":    ch.Class,
		"created":  toAnySlice(ch.Created),
		"modified": toAnySlice(ch.Modified),
		"removed":  toAnySlice(ch.Removed),
	})
	return s
}

func structToChange(s *structpb.Struct) change.Change {
	m := s.AsMap()
	class, _ := m["class"].(string)
	return change.Change{
		Class:    class,
		Created:  toStringSlice(m["created"]),
		Modified: toStringSlice(m["modified"]),
		Removed:  toStringSlice(m["removed"]),
	}
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func toStringSlice(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, e := range list {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

package rpcbackend

import (
	"context"
	"sync"

	grpcprometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/online-daq/goconf/backend"
	"github.com/online-daq/goconf/change"
)

// handler is the type grpc.ServiceDesc.HandlerType points at; it exists
// only so the generated-style method handlers below can type-assert their
// srv argument, matching the pattern protoc-gen-go-grpc emits.
type handler interface{}

// Server fronts an existing backend.Backend over gRPC, the "remote
// database server" shape described in the backend contract: any backend
// this module can load in-process can also be exposed to a separate
// process through Server.
type Server struct {
	be backend.Backend

	subMu sync.Mutex
	subs  map[uint64]chan []change.Change
	nextID uint64
}

// NewServer wraps be for remote access. The caller is still responsible
// for be.OpenDB before or via the OpenDB RPC.
func NewServer(be backend.Backend) *Server {
	s := &Server{be: be, subs: map[uint64]chan []change.Change{}}
	_ = be.Subscribe(nil, nil, s.broadcast, nil)
	return s
}

// Register installs the service on srv, with go-grpc-prometheus server
// interceptors already applied by the caller's grpc.NewServer options.
func (s *Server) Register(srv *grpc.Server) {
	srv.RegisterService(&serviceDesc, s)
}

func (s *Server) broadcast(batch []change.Change) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- batch:
		default:
		}
	}
}

func (s *Server) OpenDB(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	name, _ := req.AsMap()["name"].(string)
	if err := s.be.OpenDB(ctx, name); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return &structpb.Struct{}, nil
}

func (s *Server) GetSuperclasses(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	classes, err := s.be.GetSuperclasses(ctx)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	out := map[string]any{}
	for name, c := range classes {
		out[name] = map[string]any{"superclasses": toAnySlice(c.Superclasses)}
	}
	st, _ := structpb.NewStruct(out)
	return st, nil
}

func (s *Server) Get(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ref := structToRef(req)
	raw, err := s.be.Get(ctx, ref, 0, nil)
	if err != nil {
		return nil, status.Error(codes.NotFound, err.Error())
	}
	return rawObjectToStruct(raw), nil
}

func (s *Server) GetBulk(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	m := req.AsMap()
	class, _ := m["class"].(string)
	query, _ := m["query"].(string)
	raws, err := s.be.GetBulk(ctx, class, backend.Query(query), 0, nil)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	items := make([]any, len(raws))
	for i, r := range raws {
		items[i] = rawObjectToStruct(r).AsMap()
	}
	st, _ := structpb.NewStruct(map[string]any{"objects": items})
	return st, nil
}

func (s *Server) Create(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	m := req.AsMap()
	at, _ := m["at"].(string)
	raw, err := s.be.Create(ctx, at, structToRef(req))
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return rawObjectToStruct(raw), nil
}

func (s *Server) Destroy(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := s.be.Destroy(ctx, structToRef(req)); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return &structpb.Struct{}, nil
}

func (s *Server) RenameObject(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	m := req.AsMap()
	class, _ := m["class"].(string)
	oldUID, _ := m["old_uid"].(string)
	newUID, _ := m["new_uid"].(string)
	if err := s.be.RenameObject(ctx, class, oldUID, newUID); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return &structpb.Struct{}, nil
}

func (s *Server) Commit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	message, _ := req.AsMap()["message"].(string)
	if err := s.be.Commit(ctx, message); err != nil {
		return nil, status.Error(codes.Aborted, err.Error())
	}
	return &structpb.Struct{}, nil
}

func (s *Server) Abort(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	if err := s.be.Abort(ctx); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return &structpb.Struct{}, nil
}

func (s *Server) subscribeChanges(_ *structpb.Struct, stream grpc.ServerStream) error {
	ch := make(chan []change.Change, 16)
	s.subMu.Lock()
	s.nextID++
	id := s.nextID
	s.subs[id] = ch
	s.subMu.Unlock()
	defer func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}()

	for {
		select {
		case batch := <-ch:
			items := make([]any, len(batch))
			for i, c := range batch {
				items[i] = changeToStruct(c).AsMap()
			}
			st, _ := structpb.NewStruct(map[string]any{"changes": items})
			if err := stream.SendMsg(st); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return stream.Context().Err()
		}
	}
}

func openDBHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, _ grpc.UnaryServerInterceptor) (interface{}, error) {
	req := &structpb.Struct{}
	if err := dec(req); err != nil {
		return nil, err
	}
	return srv.(*Server).OpenDB(ctx, req)
}

func getSuperclassesHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, _ grpc.UnaryServerInterceptor) (interface{}, error) {
	req := &structpb.Struct{}
	if err := dec(req); err != nil {
		return nil, err
	}
	return srv.(*Server).GetSuperclasses(ctx, req)
}

func getHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, _ grpc.UnaryServerInterceptor) (interface{}, error) {
	req := &structpb.Struct{}
	if err := dec(req); err != nil {
		return nil, err
	}
	return srv.(*Server).Get(ctx, req)
}

func getBulkHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, _ grpc.UnaryServerInterceptor) (interface{}, error) {
	req := &structpb.Struct{}
	if err := dec(req); err != nil {
		return nil, err
	}
	return srv.(*Server).GetBulk(ctx, req)
}

func createHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, _ grpc.UnaryServerInterceptor) (interface{}, error) {
	req := &structpb.Struct{}
	if err := dec(req); err != nil {
		return nil, err
	}
	return srv.(*Server).Create(ctx, req)
}

func destroyHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, _ grpc.UnaryServerInterceptor) (interface{}, error) {
	req := &structpb.Struct{}
	if err := dec(req); err != nil {
		return nil, err
	}
	return srv.(*Server).Destroy(ctx, req)
}

func renameObjectHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, _ grpc.UnaryServerInterceptor) (interface{}, error) {
	req := &structpb.Struct{}
	if err := dec(req); err != nil {
		return nil, err
	}
	return srv.(*Server).RenameObject(ctx, req)
}

func commitHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, _ grpc.UnaryServerInterceptor) (interface{}, error) {
	req := &structpb.Struct{}
	if err := dec(req); err != nil {
		return nil, err
	}
	return srv.(*Server).Commit(ctx, req)
}

func abortHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, _ grpc.UnaryServerInterceptor) (interface{}, error) {
	req := &structpb.Struct{}
	if err := dec(req); err != nil {
		return nil, err
	}
	return srv.(*Server).Abort(ctx, req)
}

func subscribeChangesHandler(srv interface{}, stream grpc.ServerStream) error {
	req := &structpb.Struct{}
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(*Server).subscribeChanges(req, stream)
}

// UnaryServerInterceptor exposes go-grpc-prometheus's default unary server
// instrumentation, for passing to grpc.NewServer before Register.
var UnaryServerInterceptor = grpcprometheus.UnaryServerInterceptor

package rpcbackend

import (
	"context"
	"math"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/online-daq/goconf/backend"
	"github.com/online-daq/goconf/change"
	cerrors "github.com/online-daq/goconf/errors"
	"github.com/online-daq/goconf/metrics"
	"github.com/online-daq/goconf/pluginloader"
	"github.com/online-daq/goconf/schema"
)

func init() {
	pluginloader.Register("rpc", func(params string) (backend.Backend, error) {
		return Dial(params)
	})
}

// Backend is the client half of the reference remote-database-server
// contract: every backend.Backend call is a gRPC round trip to a Server.
type Backend struct {
	conn *grpc.ClientConn

	user, password string

	cancelSub context.CancelFunc
}

// Dial connects to address, the "PARAMS" half of a "rpc:host:port" backend
// spec, using the same keepalive/message-size dial options the module's
// original point-to-point RPC client used.
func Dial(address string) (*Backend, error) {
	dialOpts := []grpc.DialOption{
		grpc.WithDefaultCallOptions(
			grpc.MaxCallSendMsgSize(math.MaxInt32),
			grpc.MaxCallRecvMsgSize(math.MaxInt32),
		),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                1 * time.Second,
			Timeout:             5 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(metrics.GRPCMetrics.UnaryClientInterceptor()),
		grpc.WithStreamInterceptor(metrics.GRPCMetrics.StreamClientInterceptor()),
	}
	conn, err := grpc.Dial(address, dialOpts...)
	if err != nil {
		return nil, cerrors.Wrap(err, "dial rpc backend "+address)
	}
	return &Backend{conn: conn}, nil
}

// NewClientForTesting wraps an already-established connection (typically a
// bufconn.Listener dial in tests) instead of resolving one from a spec.
func NewClientForTesting(conn *grpc.ClientConn) *Backend {
	return &Backend{conn: conn}
}

func (b *Backend) invoke(ctx context.Context, name string, req, reply *structpb.Struct) error {
	if err := b.conn.Invoke(ctx, method(name), req, reply); err != nil {
		return cerrors.Wrap(err, "rpc "+name)
	}
	return nil
}

func (b *Backend) OpenDB(ctx context.Context, name string) error {
	req, _ := structpb.NewStruct(map[string]any{"name": name})
	return b.invoke(ctx, "OpenDB", req, &structpb.Struct{})
}

func (b *Backend) CloseDB(ctx context.Context) error {
	if b.cancelSub != nil {
		b.cancelSub()
	}
	return b.conn.Close()
}

func (b *Backend) Loaded() bool {
	return b.conn.GetState().String() != "SHUTDOWN"
}

func (b *Backend) GetSuperclasses(ctx context.Context) (map[string]*schema.Class, error) {
	reply := &structpb.Struct{}
	if err := b.invoke(ctx, "GetSuperclasses", &structpb.Struct{}, reply); err != nil {
		return nil, err
	}
	out := map[string]*schema.Class{}
	for name, v := range reply.AsMap() {
		cm, _ := v.(map[string]any)
		out[name] = &schema.Class{Name: name, Superclasses: toStringSlice(cm["superclasses"])}
	}
	return out, nil
}

func (b *Backend) Get(ctx context.Context, ref backend.ObjectRef, rlevel int, rclasses []string) (*backend.RawObject, error) {
	reply := &structpb.Struct{}
	if err := b.invoke(ctx, "Get", refToStruct(ref), reply); err != nil {
		return nil, err
	}
	return structToRawObject(reply), nil
}

func (b *Backend) GetBulk(ctx context.Context, class string, query backend.Query, rlevel int, rclasses []string) ([]*backend.RawObject, error) {
	req, _ := structpb.NewStruct(map[string]any{"class": class, "query": string(query)})
	reply := &structpb.Struct{}
	if err := b.invoke(ctx, "GetBulk", req, reply); err != nil {
		return nil, err
	}
	items, _ := reply.AsMap()["objects"].([]any)
	out := make([]*backend.RawObject, 0, len(items))
	for _, item := range items {
		m, _ := item.(map[string]any)
		st, _ := structpb.NewStruct(m)
		out = append(out, structToRawObject(st))
	}
	return out, nil
}

// GetFrom, TestObject, GetClassInfo, PrefetchAllData, GetChanges,
// GetVersions, CreateDB, AddInclude, RemoveInclude, GetIncludes, and
// GetUpdatedDBs are not exposed by the reference server: this backend
// demonstrates the object-access and change-notification wire pattern,
// not full parity with membackend. A production remote backend would add
// the remaining RPCs the same way.
func (b *Backend) GetFrom(ctx context.Context, from backend.ObjectRef, query backend.Query, rlevel int, rclasses []string) ([]*backend.RawObject, error) {
	return nil, cerrors.NewGeneric("GetFrom is not supported over the reference rpc backend")
}

func (b *Backend) TestObject(ctx context.Context, ref backend.ObjectRef, rlevel int, rclasses []string) (bool, error) {
	_, err := b.Get(ctx, ref, rlevel, rclasses)
	if err != nil {
		return false, nil
	}
	return true, nil
}

func (b *Backend) Create(ctx context.Context, at string, ref backend.ObjectRef) (*backend.RawObject, error) {
	req, _ := structpb.NewStruct(map[string]any{"class": ref.Class, "uid": ref.UID, "at": at})
	reply := &structpb.Struct{}
	if err := b.invoke(ctx, "Create", req, reply); err != nil {
		return nil, err
	}
	return structToRawObject(reply), nil
}

func (b *Backend) Destroy(ctx context.Context, ref backend.ObjectRef) error {
	return b.invoke(ctx, "Destroy", refToStruct(ref), &structpb.Struct{})
}

func (b *Backend) RenameObject(ctx context.Context, class, oldUID, newUID string) error {
	req, _ := structpb.NewStruct(map[string]any{"class": class, "old_uid": oldUID, "new_uid": newUID})
	return b.invoke(ctx, "RenameObject", req, &structpb.Struct{})
}

func (b *Backend) GetClassInfo(ctx context.Context, class string, directOnly bool) (*schema.Class, error) {
	return nil, cerrors.NewGeneric("GetClassInfo is not supported over the reference rpc backend")
}

func (b *Backend) PrefetchAllData(ctx context.Context) error { return nil }

func (b *Backend) GetChanges(ctx context.Context) ([]change.Change, error) {
	return nil, cerrors.NewGeneric("GetChanges is not supported over the reference rpc backend")
}

func (b *Backend) GetVersions(ctx context.Context, since, until string, kind backend.VersionKind, skipIrrelevant bool) ([]backend.Version, error) {
	return nil, cerrors.NewGeneric("GetVersions is not supported over the reference rpc backend")
}

func (b *Backend) IsWritable(ctx context.Context, name string) (bool, error) { return true, nil }

func (b *Backend) CreateDB(ctx context.Context, name string, includes []string) error {
	return b.OpenDB(ctx, name)
}

func (b *Backend) AddInclude(ctx context.Context, db, include string) error {
	return cerrors.NewGeneric("AddInclude is not supported over the reference rpc backend")
}

func (b *Backend) RemoveInclude(ctx context.Context, db, include string) error {
	return cerrors.NewGeneric("RemoveInclude is not supported over the reference rpc backend")
}

func (b *Backend) GetIncludes(ctx context.Context, db string) ([]string, error) {
	return nil, nil
}

func (b *Backend) GetUpdatedDBs(ctx context.Context) ([]string, error) { return nil, nil }

func (b *Backend) SetCommitCredentials(user, password string) {
	b.user, b.password = user, password
}

func (b *Backend) Commit(ctx context.Context, message string) error {
	req, _ := structpb.NewStruct(map[string]any{"message": message})
	return b.invoke(ctx, "Commit", req, &structpb.Struct{})
}

func (b *Backend) Abort(ctx context.Context) error {
	return b.invoke(ctx, "Abort", &structpb.Struct{}, &structpb.Struct{})
}

// Subscribe opens the server-streaming SubscribeChanges RPC and delivers
// every batch it receives to onChange, on the goroutine this method
// starts — never the caller's goroutine, matching the "backend's own
// thread" delivery contract every backend must honor.
func (b *Backend) Subscribe(classes []string, objects map[string][]string, onChange backend.ChangeCallback, onPreChange backend.PreChangeCallback) error {
	ctx, cancel := context.WithCancel(context.Background())
	b.cancelSub = cancel

	stream, err := b.conn.NewStream(ctx, &grpc.StreamDesc{StreamName: "SubscribeChanges", ServerStreams: true}, method("SubscribeChanges"))
	if err != nil {
		cancel()
		return cerrors.Wrap(err, "open subscribe stream")
	}
	req, _ := structpb.NewStruct(map[string]any{"classes": toAnySlice(classes)})
	if err := stream.SendMsg(req); err != nil {
		cancel()
		return cerrors.Wrap(err, "send subscribe criteria")
	}

	go func() {
		for {
			reply := &structpb.Struct{}
			if err := stream.RecvMsg(reply); err != nil {
				return
			}
			items, _ := reply.AsMap()["changes"].([]any)
			batch := make([]change.Change, 0, len(items))
			for _, item := range items {
				m, _ := item.(map[string]any)
				st, _ := structpb.NewStruct(m)
				batch = append(batch, structToChange(st))
			}
			if onPreChange != nil {
				onPreChange()
			}
			if onChange != nil {
				onChange(batch)
			}
		}
	}()
	return nil
}

func (b *Backend) Unsubscribe() error {
	if b.cancelSub != nil {
		b.cancelSub()
	}
	return nil
}

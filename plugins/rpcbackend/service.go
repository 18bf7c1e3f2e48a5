package rpcbackend

import "google.golang.org/grpc"

const serviceName = "confdb.RemoteBackend"

func method(name string) string { return "/" + serviceName + "/" + name }

// serviceDesc is hand-declared rather than protoc-generated: every request
// and reply is a google.protobuf.Struct (a real, already-generated
// protobuf well-known type), so the wire format is genuine protobuf
// without needing a .proto/protoc step for this reference backend.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*handler)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "OpenDB", Handler: openDBHandler},
		{MethodName: "GetSuperclasses", Handler: getSuperclassesHandler},
		{MethodName: "Get", Handler: getHandler},
		{MethodName: "GetBulk", Handler: getBulkHandler},
		{MethodName: "Create", Handler: createHandler},
		{MethodName: "Destroy", Handler: destroyHandler},
		{MethodName: "RenameObject", Handler: renameObjectHandler},
		{MethodName: "Commit", Handler: commitHandler},
		{MethodName: "Abort", Handler: abortHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "SubscribeChanges", Handler: subscribeChangesHandler, ServerStreams: true},
	},
	Metadata: "confdb/rpcbackend.proto",
}

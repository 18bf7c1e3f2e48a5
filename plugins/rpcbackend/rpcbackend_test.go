package rpcbackend_test

import (
	"context"
	"net"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/online-daq/goconf/backend"
	"github.com/online-daq/goconf/plugins/membackend"
	"github.com/online-daq/goconf/plugins/rpcbackend"
	"github.com/online-daq/goconf/schema"
)

func dialer(lis *bufconn.Listener) func(context.Context, string) (net.Conn, error) {
	return func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.Dial()
	}
}

// TestClientServerRoundTrip exercises Get and Create across a real (in
// memory) gRPC connection, fronting a membackend.Backend the way a
// deployment would front any concrete backend.
func TestClientServerRoundTrip(t *testing.T) {
	upstream := membackend.New(afero.NewMemMapFs())
	upstream.SeedSchema(map[string]*schema.Class{
		"Dummy": {Name: "Dummy", Attributes: []schema.Attribute{{Name: "sint32", Type: schema.Int32}}},
	})
	upstream.SeedObject("Dummy", "#1", "f.yaml", map[string]any{"sint32": int32(7)})

	lis := bufconn.Listen(1024 * 1024)
	grpcServer := grpc.NewServer()
	rpcbackend.NewServer(upstream).Register(grpcServer)
	go func() { _ = grpcServer.Serve(lis) }()
	t.Cleanup(grpcServer.Stop)

	conn, err := grpc.DialContext(context.Background(), "bufnet",
		grpc.WithContextDialer(dialer(lis)),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client := rpcbackend.NewClientForTesting(conn)

	raw, err := client.Get(context.Background(), backend.ObjectRef{Class: "Dummy", UID: "#1"}, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(7), raw.Fields["sint32"])

	_, err = client.Create(context.Background(), "f.yaml", backend.ObjectRef{Class: "Dummy", UID: "#2"})
	require.NoError(t, err)

	ok, err := client.TestObject(context.Background(), backend.ObjectRef{Class: "Dummy", UID: "#2"}, 0, nil)
	require.NoError(t, err)
	assert.True(t, ok)
}

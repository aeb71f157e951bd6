package ioreactor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTcpGracefulReset(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	stop := runReactor(t, r)
	defer stop()

	loopback, lerr := NewEndpointFromString("127.0.0.1", 0)
	require.False(t, lerr.Truthy())

	server := NewTcpServer(r)
	var accepted *TcpConnectedClient
	serverAccepted := make(chan struct{})
	require.True(t, ok(r.ExecuteOnLoopThread(func() {
		err := server.Listen(loopback, 0,
			func(conn *TcpConnectedClient, acceptErr Error) {
				require.False(t, acceptErr.Truthy())
				accepted = conn
				close(serverAccepted)
			},
			func(DataChunk) {}, nil,
		)
		require.False(t, err.Truthy())
	})))

	var serverEndpoint Endpoint
	got := make(chan struct{})
	require.True(t, ok(r.ExecuteOnLoopThread(func() {
		serverEndpoint = server.Endpoint()
		close(got)
	})))
	await(t, got, time.Second, "server endpoint")

	client := NewTcpClient(r)
	clientClosed := make(chan Error, 1)
	connected := make(chan Error, 1)
	require.True(t, ok(r.ExecuteOnLoopThread(func() {
		err := client.Connect(serverEndpoint,
			func(connErr Error) { connected <- connErr },
			func(DataChunk) {},
			func(closeErr Error) { clientClosed <- closeErr },
		)
		require.False(t, err.Truthy())
	})))

	select {
	case connErr := <-connected:
		require.False(t, connErr.Truthy())
	case <-time.After(2 * time.Second):
		t.Fatal("client did not connect")
	}
	await(t, serverAccepted, 2*time.Second, "server accept")

	require.True(t, ok(r.ExecuteOnLoopThread(func() {
		accepted.CloseWithReset()
	})))

	select {
	case closeErr := <-clientClosed:
		require.True(t, closeErr.Truthy())
		require.Equal(t, CONNECTION_RESET_BY_PEER, closeErr.Code)
	case <-time.After(2 * time.Second):
		t.Fatal("client did not observe reset")
	}
}

package ioreactor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTcpEchoEndToEnd(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	stop := runReactor(t, r)
	defer stop()

	loopback, lerr := NewEndpointFromString("127.0.0.1", 0)
	require.False(t, lerr.Truthy())

	server := NewTcpServer(r)
	serverReady := make(chan struct{})
	require.True(t, ok(r.ExecuteOnLoopThread(func() {
		err := server.Listen(loopback, 0,
			func(conn *TcpConnectedClient, acceptErr Error) {
				require.False(t, acceptErr.Truthy())
				conn.onReceive = func(chunk DataChunk) {
					_ = conn.SendData(append([]byte(nil), chunk.Bytes()...), nil)
				}
			},
			func(DataChunk) {},
			nil,
		)
		require.False(t, err.Truthy())
		close(serverReady)
	})))
	await(t, serverReady, time.Second, "server listen")

	var serverEndpoint Endpoint
	got := make(chan struct{})
	require.True(t, ok(r.ExecuteOnLoopThread(func() {
		serverEndpoint = server.Endpoint()
		close(got)
	})))
	await(t, got, time.Second, "server endpoint")

	client := NewTcpClient(r)
	connected := make(chan Error, 1)
	echoed := make(chan []byte, 1)
	require.True(t, ok(r.ExecuteOnLoopThread(func() {
		err := client.Connect(serverEndpoint,
			func(connErr Error) { connected <- connErr },
			func(chunk DataChunk) { echoed <- append([]byte(nil), chunk.Bytes()...) },
			nil,
		)
		require.False(t, err.Truthy())
	})))

	select {
	case connErr := <-connected:
		require.False(t, connErr.Truthy())
	case <-time.After(2 * time.Second):
		t.Fatal("client did not connect")
	}

	require.True(t, ok(r.ExecuteOnLoopThread(func() {
		err := client.SendData([]byte("hello"), nil)
		require.False(t, err.Truthy())
	})))

	select {
	case data := <-echoed:
		require.Equal(t, "hello", string(data))
	case <-time.After(2 * time.Second):
		t.Fatal("echo did not arrive")
	}
}

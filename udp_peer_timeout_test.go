package ioreactor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestUdpPeerTimeout(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	stop := runReactor(t, r)
	defer stop()

	loopback, lerr := NewEndpointFromString("127.0.0.1", 0)
	require.False(t, lerr.Truthy())

	server := NewUdpServer(r)
	newPeer := make(chan *UdpPeer, 1)
	timedOut := make(chan Error, 1)
	require.True(t, ok(r.ExecuteOnLoopThread(func() {
		err := server.StartReceiveWithPeerTracking(loopback,
			func(peer *UdpPeer) { newPeer <- peer },
			func(*UdpPeer, DataChunk, Endpoint) {},
			200,
			func(peer *UdpPeer, timeoutErr Error) { timedOut <- timeoutErr },
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

	client := NewUdpClient(r)
	require.True(t, ok(r.ExecuteOnLoopThread(func() {
		client.SetDestination(serverEndpoint, func(Error) {
			_ = client.SendData([]byte("hi"))
		}, func(DataChunk) {}, 0, nil)
	})))

	select {
	case <-newPeer:
	case <-time.After(2 * time.Second):
		t.Fatal("server did not observe a new peer")
	}

	select {
	case timeoutErr := <-timedOut:
		require.False(t, timeoutErr.Truthy())
	case <-time.After(2 * time.Second):
		t.Fatal("peer did not time out")
	}
}

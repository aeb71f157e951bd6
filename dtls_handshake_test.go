package ioreactor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDtlsHandshakeAndExchange(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	stop := runReactor(t, r)
	defer stop()

	certPath, keyPath := generateTestCert(t, t.TempDir())
	serverCfg := TlsConfig{CertFile: certPath, KeyFile: keyPath}

	loopback, lerr := NewEndpointFromString("127.0.0.1", 0)
	require.False(t, lerr.Truthy())

	server := NewDtlsServer(r)
	serverMsgs := make(chan []byte, 1)
	serverHandshake := make(chan Error, 1)
	require.True(t, ok(r.ExecuteOnLoopThread(func() {
		err := server.Listen(loopback, serverCfg, 60_000,
			func(peer *UdpPeer, hsErr Error) { serverHandshake <- hsErr },
			func(chunk DataChunk) { serverMsgs <- append([]byte(nil), chunk.Bytes()...) },
			nil,
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

	client := NewDtlsClient(r)
	clientHandshake := make(chan Error, 1)
	clientMsgs := make(chan []byte, 1)
	require.True(t, ok(r.ExecuteOnLoopThread(func() {
		client.Connect(serverEndpoint, TlsConfig{InsecureSkipVerify: true},
			func(hsErr Error) { clientHandshake <- hsErr },
			func(chunk DataChunk) { clientMsgs <- append([]byte(nil), chunk.Bytes()...) },
			nil,
		)
	})))

	select {
	case hsErr := <-clientHandshake:
		require.False(t, hsErr.Truthy())
	case <-time.After(5 * time.Second):
		t.Fatal("client handshake did not complete")
	}
	select {
	case hsErr := <-serverHandshake:
		require.False(t, hsErr.Truthy())
	case <-time.After(5 * time.Second):
		t.Fatal("server handshake did not complete")
	}

	require.True(t, ok(r.ExecuteOnLoopThread(func() {
		err := client.SendData([]byte("ping"), nil)
		require.False(t, err.Truthy())
	})))
	select {
	case data := <-serverMsgs:
		require.Equal(t, "ping", string(data))
	case <-time.After(2 * time.Second):
		t.Fatal("server did not receive plaintext")
	}
}

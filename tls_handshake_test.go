package ioreactor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTlsHandshakeAndExchange(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	stop := runReactor(t, r)
	defer stop()

	certPath, keyPath := generateTestCert(t, t.TempDir())
	cfg := TlsConfig{
		MinVersion: TLS1_2,
		MaxVersion: TLS1_3,
		CertFile:   certPath,
		KeyFile:    keyPath,
		ServerName: "localhost",
	}

	loopback, lerr := NewEndpointFromString("127.0.0.1", 0)
	require.False(t, lerr.Truthy())

	server := NewTlsServer(r)
	serverMsgs := make(chan []byte, 1)
	var serverConn *TlsConnectedClient
	serverHandshake := make(chan Error, 1)
	require.True(t, ok(r.ExecuteOnLoopThread(func() {
		err := server.Listen(loopback, 0, cfg,
			func(conn *TlsConnectedClient, hsErr Error) {
				serverConn = conn
				serverHandshake <- hsErr
			},
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

	client := NewTlsClient(r)
	clientHandshake := make(chan Error, 1)
	clientMsgs := make(chan []byte, 1)
	require.True(t, ok(r.ExecuteOnLoopThread(func() {
		err := client.Connect(serverEndpoint, TlsConfig{
			MinVersion:         TLS1_2,
			MaxVersion:         TLS1_3,
			ServerName:         "localhost",
			InsecureSkipVerify: true,
		},
			func(hsErr Error) { clientHandshake <- hsErr },
			func(chunk DataChunk) { clientMsgs <- append([]byte(nil), chunk.Bytes()...) },
			nil,
		)
		require.False(t, err.Truthy())
	})))

	select {
	case hsErr := <-clientHandshake:
		require.False(t, hsErr.Truthy())
	case <-time.After(3 * time.Second):
		t.Fatal("client handshake did not complete")
	}
	select {
	case hsErr := <-serverHandshake:
		require.False(t, hsErr.Truthy())
	case <-time.After(3 * time.Second):
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

	require.True(t, ok(r.ExecuteOnLoopThread(func() {
		err := serverConn.SendData([]byte("pong"), nil)
		require.False(t, err.Truthy())
	})))
	select {
	case data := <-clientMsgs:
		require.Equal(t, "pong", string(data))
	case <-time.After(2 * time.Second):
		t.Fatal("client did not receive plaintext")
	}
}

func TestTlsVersionMismatch(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	stop := runReactor(t, r)
	defer stop()

	certPath, keyPath := generateTestCert(t, t.TempDir())
	serverCfg := TlsConfig{
		MinVersion: TLS1_3,
		MaxVersion: TLS1_3,
		CertFile:   certPath,
		KeyFile:    keyPath,
	}

	loopback, lerr := NewEndpointFromString("127.0.0.1", 0)
	require.False(t, lerr.Truthy())

	server := NewTlsServer(r)
	serverHandshake := make(chan Error, 1)
	require.True(t, ok(r.ExecuteOnLoopThread(func() {
		err := server.Listen(loopback, 0, serverCfg,
			func(conn *TlsConnectedClient, hsErr Error) { serverHandshake <- hsErr },
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

	client := NewTlsClient(r)
	clientHandshake := make(chan Error, 1)
	require.True(t, ok(r.ExecuteOnLoopThread(func() {
		err := client.Connect(serverEndpoint, TlsConfig{
			MinVersion:         TLS1_2,
			MaxVersion:         TLS1_2,
			InsecureSkipVerify: true,
		},
			func(hsErr Error) { clientHandshake <- hsErr },
			func(DataChunk) {}, nil,
		)
		require.False(t, err.Truthy())
	})))

	select {
	case hsErr := <-clientHandshake:
		require.True(t, hsErr.Truthy())
	case <-time.After(3 * time.Second):
		t.Fatal("client handshake did not fail as expected")
	}
	select {
	case hsErr := <-serverHandshake:
		require.True(t, hsErr.Truthy())
		require.Equal(t, OPENSSL_ERROR, hsErr.Code)
	case <-time.After(3 * time.Second):
		t.Fatal("server handshake did not fail as expected")
	}
}

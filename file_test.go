package ioreactor

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFile_OpenReadClose(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	stop := runReactor(t, r)
	defer stop()

	dir := t.TempDir()
	path := filepath.Join(dir, "data.txt")
	content := make([]byte, fileReadBlockSize*3+17)
	for i := range content {
		content[i] = byte(i)
	}
	require.NoError(t, os.WriteFile(path, content, 0o644))

	f := NewFile(r)
	opened := make(chan struct{})
	require.True(t, ok(r.ExecuteOnLoopThread(func() {
		err := f.Open(path, func(openErr Error) {
			require.False(t, openErr.Truthy())
			close(opened)
		})
		require.False(t, err.Truthy())
	})))
	await(t, opened, time.Second, "file open")

	var received []byte
	ended := make(chan Error, 1)
	require.True(t, ok(r.ExecuteOnLoopThread(func() {
		err := f.Read(func(chunk DataChunk, done func()) {
			received = append(received, chunk.Bytes()...)
			done()
		}, func(endErr Error) {
			ended <- endErr
		})
		require.False(t, err.Truthy())
	})))

	select {
	case endErr := <-ended:
		require.False(t, endErr.Truthy())
	case <-time.After(2 * time.Second):
		t.Fatal("read did not finish")
	}
	require.Equal(t, content, received)

	closed := make(chan struct{})
	require.True(t, ok(r.ExecuteOnLoopThread(func() {
		f.Close(func(closeErr Error) {
			require.False(t, closeErr.Truthy())
			close(closed)
		})
	})))
	await(t, closed, time.Second, "file close")
}

func TestFile_ReadBufsNumBackpressure(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	stop := runReactor(t, r)
	defer stop()

	dir := t.TempDir()
	path := filepath.Join(dir, "big.bin")
	content := make([]byte, fileReadBlockSize*(ReadBufsNum+2))
	require.NoError(t, os.WriteFile(path, content, 0o644))

	f := NewFile(r)
	opened := make(chan struct{})
	require.True(t, ok(r.ExecuteOnLoopThread(func() {
		_ = f.Open(path, func(Error) { close(opened) })
	})))
	await(t, opened, time.Second, "file open")

	release := make(chan func(), ReadBufsNum+2)
	ended := make(chan Error, 1)
	require.True(t, ok(r.ExecuteOnLoopThread(func() {
		_ = f.Read(func(chunk DataChunk, done func()) {
			release <- done
		}, func(endErr Error) { ended <- endErr })
	})))

	var dones []func()
	for i := 0; i < ReadBufsNum; i++ {
		select {
		case d := <-release:
			dones = append(dones, d)
		case <-time.After(2 * time.Second):
			t.Fatalf("expected %d outstanding chunks, got %d", ReadBufsNum, i)
		}
	}

	select {
	case d := <-release:
		dones = append(dones, d)
		t.Fatalf("pipeline exceeded ReadBufsNum outstanding chunks")
	case <-time.After(200 * time.Millisecond):
	}

	for _, d := range dones {
		done := d
		require.True(t, ok(r.ExecuteOnLoopThread(done)))
	}

	for len(release) == 0 {
		time.Sleep(10 * time.Millisecond)
	}
	for {
		select {
		case d := <-release:
			require.True(t, ok(r.ExecuteOnLoopThread(d)))
		case endErr := <-ended:
			require.False(t, endErr.Truthy())
			return
		case <-time.After(2 * time.Second):
			t.Fatal("read did not finish draining")
		}
	}
}

func TestFile_OpenMissing(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	stop := runReactor(t, r)
	defer stop()

	f := NewFile(r)
	openErr := make(chan Error, 1)
	require.True(t, ok(r.ExecuteOnLoopThread(func() {
		_ = f.Open(filepath.Join(t.TempDir(), "missing"), func(e Error) { openErr <- e })
	})))
	select {
	case e := <-openErr:
		require.True(t, e.Truthy())
		require.Equal(t, FILE_NOT_FOUND, e.Code)
	case <-time.After(time.Second):
		t.Fatal("open did not complete")
	}
}

func ok(err error) bool { return err == nil }

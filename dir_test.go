package ioreactor

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDir_OpenAndList(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	stop := runReactor(t, r)
	defer stop()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0o755))

	d := NewDir(r)
	opened := make(chan struct{})
	require.True(t, ok(r.ExecuteOnLoopThread(func() {
		err := d.Open(root, func(openErr Error) {
			require.False(t, openErr.Truthy())
			close(opened)
		})
		require.False(t, err.Truthy())
	})))
	await(t, opened, time.Second, "dir open")

	seen := make(map[string]EntryKind)
	listEnd := make(chan Error, 1)
	require.True(t, ok(r.ExecuteOnLoopThread(func() {
		err := d.List(func(entry DirEntry, cont func()) {
			seen[entry.Name] = entry.Kind
			cont()
		}, func(endErr Error) { listEnd <- endErr })
		require.False(t, err.Truthy())
	})))

	select {
	case endErr := <-listEnd:
		require.False(t, endErr.Truthy())
	case <-time.After(time.Second):
		t.Fatal("list did not finish")
	}

	require.Equal(t, EntryFile, seen["a.txt"])
	require.Equal(t, EntryDir, seen["sub"])
}

func TestDir_ConcurrentListRejected(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	stop := runReactor(t, r)
	defer stop()

	root := t.TempDir()
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(root, string(rune('a'+i))), nil, 0o644))
	}

	d := NewDir(r)
	opened := make(chan struct{})
	require.True(t, ok(r.ExecuteOnLoopThread(func() {
		_ = d.Open(root, func(Error) { close(opened) })
	})))
	await(t, opened, time.Second, "dir open")

	secondErr := make(chan Error, 1)
	require.True(t, ok(r.ExecuteOnLoopThread(func() {
		err := d.List(func(entry DirEntry, cont func()) {
			// never calls cont — keeps the first listing stalled
			second := d.List(func(DirEntry, func()) {}, func(Error) {})
			secondErr <- second
		}, func(Error) {})
		require.False(t, err.Truthy())
	})))

	select {
	case e := <-secondErr:
		require.True(t, e.Truthy())
		require.Equal(t, OPERATION_ALREADY_IN_PROGRESS, e.Code)
	case <-time.After(time.Second):
		t.Fatal("concurrent list did not report in progress")
	}
}

func TestMakeAllDirsAndRemoveDir(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	stop := runReactor(t, r)
	defer stop()

	root := t.TempDir()
	nested := filepath.Join(root, "a", "b", "c")

	made := make(chan Error, 1)
	require.True(t, ok(r.ExecuteOnLoopThread(func() {
		err := MakeAllDirs(r, nested, func(e Error) { made <- e })
		require.False(t, err.Truthy())
	})))
	select {
	case e := <-made:
		require.False(t, e.Truthy())
	case <-time.After(time.Second):
		t.Fatal("make_all_dirs did not finish")
	}
	info, statErr := os.Stat(nested)
	require.NoError(t, statErr)
	require.True(t, info.IsDir())

	require.NoError(t, os.WriteFile(filepath.Join(nested, "leaf.txt"), []byte("x"), 0o644))

	var removedPaths []string
	removed := make(chan Error, 1)
	require.True(t, ok(r.ExecuteOnLoopThread(func() {
		err := RemoveDir(r, filepath.Join(root, "a"), func(path string, isDir bool) {
			removedPaths = append(removedPaths, path)
		}, func(e Error) { removed <- e })
		require.False(t, err.Truthy())
	})))
	select {
	case e := <-removed:
		require.False(t, e.Truthy())
	case <-time.After(time.Second):
		t.Fatal("remove_dir did not finish")
	}
	_, statErr = os.Stat(filepath.Join(root, "a"))
	require.True(t, os.IsNotExist(statErr))
	require.NotEmpty(t, removedPaths)
}

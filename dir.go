package ioreactor

import (
	"context"
	"os"
	"path/filepath"
	"sync"
)

// EntryKind classifies one directory entry.
type EntryKind int

const (
	EntryUnknown EntryKind = iota
	EntryFile
	EntryDir
	EntryLink
	EntryFifo
	EntrySocket
	EntryChar
	EntryBlock
)

func entryKindOf(mode os.FileMode) EntryKind {
	switch {
	case mode&os.ModeSymlink != 0:
		return EntryLink
	case mode&os.ModeNamedPipe != 0:
		return EntryFifo
	case mode&os.ModeSocket != 0:
		return EntrySocket
	case mode&os.ModeDevice != 0:
		if mode&os.ModeCharDevice != 0 {
			return EntryChar
		}
		return EntryBlock
	case mode.IsDir():
		return EntryDir
	case mode.IsRegular():
		return EntryFile
	default:
		return EntryUnknown
	}
}

// DirEntry is one listed entry: its base name and kind.
type DirEntry struct {
	Name string
	Kind EntryKind
}

// OnDirOpen reports the outcome of Dir.Open.
type OnDirOpen func(err Error)

// OnDirEntry delivers one directory entry during a continuation-driven
// listing. cont must be called to request the next entry; listing pauses
// until it is.
type OnDirEntry func(entry DirEntry, cont func())

// OnDirListEnd reports the end of a listing (OK once all entries are
// delivered).
type OnDirListEnd func(err Error)

// OnDirClose reports the result of Dir.Close.
type OnDirClose func(err Error)

// Dir is a worker-pool-backed directory handle. Open reads the directory's
// entries once on the pool; List then replays them to the caller one at a
// time on the loop thread, honoring a continuation callback so a slow
// consumer never causes unbounded buffering of deeper recursive work.
type Dir struct {
	Removable

	r    *Reactor
	path string

	mu      sync.Mutex
	open    bool
	listing bool
	entries []DirEntry
	closed  bool
}

// NewDir constructs a handle bound to reactor r, not yet open.
func NewDir(r *Reactor) *Dir {
	d := &Dir{r: r}
	d.InitRemovable(r)
	d.SetOnScheduleRemoval(func() { d.Close(nil) })
	return d
}

// Path returns the path passed to Open.
func (d *Dir) Path() string { return d.path }

// Open reads path's entries on the worker pool.
func (d *Dir) Open(path string, onOpen OnDirOpen) Error {
	d.mu.Lock()
	if d.open {
		d.mu.Unlock()
		return NewError(OPERATION_ALREADY_IN_PROGRESS, "dir already open")
	}
	d.mu.Unlock()
	d.path = path

	_, err := d.r.AddWork(
		func(ctx context.Context) (any, error) {
			return os.ReadDir(path)
		},
		func(result any, rerr error) {
			if rerr != nil {
				if onOpen != nil {
					onOpen(NewError(mapDirErr(rerr), rerr.Error()))
				}
				return
			}
			raw := result.([]os.DirEntry)
			entries := make([]DirEntry, 0, len(raw))
			for _, e := range raw {
				info, ierr := e.Info()
				kind := EntryUnknown
				if ierr == nil {
					kind = entryKindOf(info.Mode())
				}
				entries = append(entries, DirEntry{Name: e.Name(), Kind: kind})
			}
			d.mu.Lock()
			d.entries = entries
			d.open = true
			d.mu.Unlock()
			if onOpen != nil {
				onOpen(Ok())
			}
		},
	)
	if err != nil {
		return NewError(WORK_QUEUE_FULL, err.Error())
	}
	return Ok()
}

// List replays the entries read by Open, one per cont() call, finishing
// with onEnd. A second List call while one is already running reports
// OPERATION_ALREADY_IN_PROGRESS.
func (d *Dir) List(onEntry OnDirEntry, onEnd OnDirListEnd) Error {
	d.mu.Lock()
	if !d.open {
		d.mu.Unlock()
		return NewError(DIR_NOT_OPEN, "dir not open")
	}
	if d.listing {
		d.mu.Unlock()
		return NewError(OPERATION_ALREADY_IN_PROGRESS, "list already in progress")
	}
	d.listing = true
	entries := d.entries
	d.mu.Unlock()

	var step func(i int)
	step = func(i int) {
		d.mu.Lock()
		closed := d.closed
		d.mu.Unlock()
		if closed {
			d.mu.Lock()
			d.listing = false
			d.mu.Unlock()
			if onEnd != nil {
				onEnd(NewError(DIR_NOT_OPEN, "dir closed during listing"))
			}
			return
		}
		if i >= len(entries) {
			d.mu.Lock()
			d.listing = false
			d.mu.Unlock()
			if onEnd != nil {
				onEnd(Ok())
			}
			return
		}
		onEntry(entries[i], func() {
			d.r.ScheduleCallback(func() { step(i + 1) })
		})
	}
	step(0)
	return Ok()
}

// Close releases the handle. Entries already read are simply discarded;
// there is no underlying descriptor held open between Open and Close.
func (d *Dir) Close(onClose OnDirClose) {
	d.mu.Lock()
	d.closed = true
	d.open = false
	d.mu.Unlock()
	if onClose != nil {
		onClose(Ok())
	}
}

func mapDirErr(err error) StatusCode {
	if os.IsNotExist(err) {
		return DIR_NOT_FOUND
	}
	return FromOSError(err)
}

// MakeDir creates a single directory.
func MakeDir(r *Reactor, path string, onDone func(err Error)) Error {
	_, err := r.AddWork(
		func(ctx context.Context) (any, error) { return nil, os.Mkdir(path, 0o755) },
		func(result any, rerr error) {
			if onDone == nil {
				return
			}
			if rerr != nil {
				onDone(NewError(mapDirErr(rerr), rerr.Error()))
				return
			}
			onDone(Ok())
		},
	)
	if err != nil {
		return NewError(WORK_QUEUE_FULL, err.Error())
	}
	return Ok()
}

// MakeAllDirs creates path and any missing parents.
func MakeAllDirs(r *Reactor, path string, onDone func(err Error)) Error {
	_, err := r.AddWork(
		func(ctx context.Context) (any, error) { return nil, os.MkdirAll(path, 0o755) },
		func(result any, rerr error) {
			if onDone == nil {
				return
			}
			if rerr != nil {
				onDone(NewError(mapDirErr(rerr), rerr.Error()))
				return
			}
			onDone(Ok())
		},
	)
	if err != nil {
		return NewError(WORK_QUEUE_FULL, err.Error())
	}
	return Ok()
}

// MakeTempDir creates a new temporary directory under dir using pattern and
// reports its path.
func MakeTempDir(r *Reactor, dir, pattern string, onDone func(path string, err Error)) Error {
	_, err := r.AddWork(
		func(ctx context.Context) (any, error) { return os.MkdirTemp(dir, pattern) },
		func(result any, rerr error) {
			if onDone == nil {
				return
			}
			if rerr != nil {
				onDone("", NewError(mapDirErr(rerr), rerr.Error()))
				return
			}
			onDone(result.(string), Ok())
		},
	)
	if err != nil {
		return NewError(WORK_QUEUE_FULL, err.Error())
	}
	return Ok()
}

// RemoveDirProgress reports one removed path during RemoveDir's walk.
type RemoveDirProgress func(path string, isDir bool)

// RemoveDir walks path depth-first on the worker pool, unlinking files and
// removing directories bottom-up, optionally reporting each removal via
// progress.
func RemoveDir(r *Reactor, path string, progress RemoveDirProgress, onDone func(err Error)) Error {
	_, err := r.AddWork(
		func(ctx context.Context) (any, error) {
			return nil, removeDirDepthFirst(path, progress)
		},
		func(result any, rerr error) {
			if onDone == nil {
				return
			}
			if rerr != nil {
				onDone(NewError(mapDirErr(rerr), rerr.Error()))
				return
			}
			onDone(Ok())
		},
	)
	if err != nil {
		return NewError(WORK_QUEUE_FULL, err.Error())
	}
	return Ok()
}

func removeDirDepthFirst(path string, progress RemoveDirProgress) error {
	entries, err := os.ReadDir(path)
	if err != nil {
		return err
	}
	for _, e := range entries {
		child := filepath.Join(path, e.Name())
		if e.IsDir() {
			if err := removeDirDepthFirst(child, progress); err != nil {
				return err
			}
			continue
		}
		if err := os.Remove(child); err != nil {
			return err
		}
		if progress != nil {
			progress(child, false)
		}
	}
	if err := os.Remove(path); err != nil {
		return err
	}
	if progress != nil {
		progress(path, true)
	}
	return nil
}

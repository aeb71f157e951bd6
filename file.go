package ioreactor

import (
	"context"
	"io"
	"os"
	"sync"
	"time"
)

// ReadBufsNum caps the number of buffers a File's pipelined read keeps
// outstanding on the worker pool at once.
const ReadBufsNum = 4

const fileReadBlockSize = 64 * 1024

// OnFileOpen reports the outcome of File.Open.
type OnFileOpen func(err Error)

// OnFileChunk delivers one buffer from a pipelined File.Read. done must be
// called exactly once, whether or not the chunk was retained past the
// callback, to admit the next buffer into the pipeline; reading stalls at
// ReadBufsNum outstanding chunks until done is called.
type OnFileChunk func(chunk DataChunk, done func())

// OnFileReadEnd reports end-of-file or a read error (OK on clean EOF).
type OnFileReadEnd func(err Error)

// FileStat mirrors the subset of os.FileInfo the library exposes.
type FileStat struct {
	Size    int64
	ModTime time.Time
	IsDir   bool
}

// OnFileStat reports the result of File.Stat.
type OnFileStat func(stat FileStat, err Error)

// OnFileClose reports the result of File.Close.
type OnFileClose func(err Error)

// File is a pipelined, worker-pool-backed file handle. Every blocking
// os-package call (open, read, stat, close) runs on the reactor's work
// pool; completions are marshaled back to the loop thread by AddWork
// itself, so none of File's own callbacks ever run off the loop thread.
type File struct {
	Removable

	r    *Reactor
	path string

	mu       sync.Mutex
	f        *os.File
	open     bool
	closing  bool
	inflight int
	nextOff  int64
	reading  bool
	stopRead bool
}

// NewFile constructs a handle bound to reactor r, not yet open.
func NewFile(r *Reactor) *File {
	file := &File{r: r}
	file.InitRemovable(r)
	file.SetOnScheduleRemoval(file.teardown)
	return file
}

// Path returns the path passed to Open.
func (file *File) Path() string { return file.path }

// IsOpen reports whether Open has completed successfully and Close has not.
func (file *File) IsOpen() bool {
	file.mu.Lock()
	defer file.mu.Unlock()
	return file.open
}

// Open opens path for reading on the worker pool.
func (file *File) Open(path string, onOpen OnFileOpen) Error {
	file.mu.Lock()
	if file.open || file.f != nil {
		file.mu.Unlock()
		return NewError(OPERATION_ALREADY_IN_PROGRESS, "file already open")
	}
	file.mu.Unlock()
	file.path = path

	_, err := file.r.AddWork(
		func(ctx context.Context) (any, error) {
			return os.Open(path)
		},
		func(result any, err error) {
			if err != nil {
				if onOpen != nil {
					onOpen(mapFileErr(err))
				}
				return
			}
			file.mu.Lock()
			file.f = result.(*os.File)
			file.open = true
			file.mu.Unlock()
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

// Read streams the file from its current offset in ReadBufsNum-deep
// pipelined chunks, calling onEnd (OK on clean EOF) once reading stops.
func (file *File) Read(onChunk OnFileChunk, onEnd OnFileReadEnd) Error {
	file.mu.Lock()
	if !file.open {
		file.mu.Unlock()
		return NewError(FILE_NOT_OPEN, "file not open")
	}
	if file.reading {
		file.mu.Unlock()
		return NewError(OPERATION_ALREADY_IN_PROGRESS, "read already in progress")
	}
	file.reading = true
	file.stopRead = false
	file.mu.Unlock()

	for i := 0; i < ReadBufsNum; i++ {
		file.issueRead(onChunk, onEnd)
	}
	return Ok()
}

func (file *File) issueRead(onChunk OnFileChunk, onEnd OnFileReadEnd) {
	file.mu.Lock()
	if file.stopRead || file.inflight >= ReadBufsNum {
		file.mu.Unlock()
		return
	}
	off := file.nextOff
	file.nextOff += fileReadBlockSize
	file.inflight++
	f := file.f
	file.mu.Unlock()

	buf := newSharedBuffer(fileReadBlockSize)
	_, werr := file.r.AddWork(
		func(ctx context.Context) (any, error) {
			n, rerr := f.ReadAt(buf.data, off)
			return n, rerr
		},
		func(result any, rerr error) {
			n, _ := result.(int)

			file.mu.Lock()
			file.inflight--
			already := file.stopRead
			file.mu.Unlock()

			if n > 0 && !already {
				chunk := newDataChunk(buf, n, uint64(off))
				onChunk(chunk, func() {
					file.mu.Lock()
					stopped := file.stopRead
					file.mu.Unlock()
					if !stopped {
						file.issueRead(onChunk, onEnd)
					}
				})
			}

			if rerr != nil {
				file.mu.Lock()
				wasStopped := file.stopRead
				file.stopRead = true
				pending := file.inflight
				file.mu.Unlock()
				if !wasStopped && pending == 0 {
					file.finishRead(rerr, onEnd)
				} else if !wasStopped {
					// other buffers still outstanding; finish once they drain
					file.awaitReadDrain(rerr, onEnd)
				}
			}
		},
	)
	if werr != nil {
		file.mu.Lock()
		file.inflight--
		file.mu.Unlock()
	}
}

func (file *File) awaitReadDrain(rerr error, onEnd OnFileReadEnd) {
	file.r.ScheduleCallback(func() {
		file.mu.Lock()
		pending := file.inflight
		file.mu.Unlock()
		if pending == 0 {
			file.finishRead(rerr, onEnd)
			return
		}
		file.awaitReadDrain(rerr, onEnd)
	})
}

func (file *File) finishRead(rerr error, onEnd OnFileReadEnd) {
	file.mu.Lock()
	file.reading = false
	file.mu.Unlock()
	if onEnd == nil {
		return
	}
	if rerr == io.EOF {
		onEnd(Ok())
		return
	}
	onEnd(mapFileErr(rerr))
}

// ReadBlock performs a single, non-pipelined read of size bytes at offset,
// independent of Read's sequential cursor.
func (file *File) ReadBlock(offset int64, size int, onChunk func(chunk DataChunk, err Error)) Error {
	file.mu.Lock()
	f := file.f
	open := file.open
	file.mu.Unlock()
	if !open {
		return NewError(FILE_NOT_OPEN, "file not open")
	}

	buf := newSharedBuffer(size)
	_, werr := file.r.AddWork(
		func(ctx context.Context) (any, error) {
			n, rerr := f.ReadAt(buf.data, offset)
			if rerr == io.EOF && n > 0 {
				rerr = nil
			}
			return n, rerr
		},
		func(result any, rerr error) {
			n, _ := result.(int)
			if rerr != nil {
				onChunk(DataChunk{}, mapFileErr(rerr))
				return
			}
			onChunk(newDataChunk(buf, n, uint64(offset)), Ok())
		},
	)
	if werr != nil {
		return NewError(WORK_QUEUE_FULL, werr.Error())
	}
	return Ok()
}

// Stat reports size/mtime/is-dir for the open file.
func (file *File) Stat(onStat OnFileStat) Error {
	file.mu.Lock()
	f := file.f
	open := file.open
	file.mu.Unlock()
	if !open {
		return NewError(FILE_NOT_OPEN, "file not open")
	}

	_, werr := file.r.AddWork(
		func(ctx context.Context) (any, error) {
			return f.Stat()
		},
		func(result any, rerr error) {
			if rerr != nil {
				onStat(FileStat{}, mapFileErr(rerr))
				return
			}
			info := result.(os.FileInfo)
			onStat(FileStat{Size: info.Size(), ModTime: info.ModTime(), IsDir: info.IsDir()}, Ok())
		},
	)
	if werr != nil {
		return NewError(WORK_QUEUE_FULL, werr.Error())
	}
	return Ok()
}

// Close stops any in-progress read and closes the descriptor on the worker
// pool. If buffers are still outstanding the close is postponed until they
// drain, matching ScheduleRemoval's postponed-removal contract.
func (file *File) Close(onClose OnFileClose) {
	file.mu.Lock()
	file.stopRead = true
	pending := file.inflight
	f := file.f
	file.open = false
	file.mu.Unlock()

	if pending > 0 {
		file.r.ScheduleCallback(func() { file.Close(onClose) })
		return
	}
	if f == nil {
		if onClose != nil {
			onClose(Ok())
		}
		return
	}

	_, werr := file.r.AddWork(
		func(ctx context.Context) (any, error) {
			return nil, f.Close()
		},
		func(result any, rerr error) {
			if onClose != nil {
				if rerr != nil {
					onClose(mapFileErr(rerr))
				} else {
					onClose(Ok())
				}
			}
		},
	)
	if werr != nil && onClose != nil {
		onClose(NewError(WORK_QUEUE_FULL, werr.Error()))
	}
}

// teardown implements postponed removal: outstanding buffers must drain
// before the descriptor is closed.
func (file *File) teardown() {
	file.mu.Lock()
	file.stopRead = true
	pending := file.inflight
	file.mu.Unlock()
	if pending > 0 {
		file.r.ScheduleCallback(file.teardown)
		return
	}
	file.Close(nil)
}

func mapFileErr(err error) Error {
	if err == nil || err == io.EOF {
		return Ok()
	}
	return NewError(FromOSError(err), err.Error())
}

// Package joinable implements the append-only, write-once byte stream that
// lets a reader tail a file while another goroutine is still writing it.
package joinable

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/sswguo/partyline/pkg/bufpool"
)

// State is the lifecycle stage of a File.
type State int

const (
	// Open accepts writes. Readers whose cursor has caught up to Written
	// park until more bytes arrive or the file leaves this state.
	Open State = iota

	// Closing means the writer finished normally but at least one reader
	// has not yet drained to Written (or released). No more bytes will
	// ever arrive; readers at the tail now see io.EOF instead of parking.
	Closing

	// Closed is terminal: the writer finished and every reader has either
	// drained to Written or been explicitly released. The pooled backing
	// buffer has been returned to its pool; the written bytes stay
	// readable from a private copy for readers created afterwards.
	Closed

	// ErroredClosed is terminal: the write failed. Every reader parked at
	// the tail wakes immediately and receives the write's error.
	ErroredClosed
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	case ErroredClosed:
		return "errored-closed"
	default:
		return "unknown"
	}
}

// ErrWriteAfterClose is returned by Write once the file has left the Open
// state.
var ErrWriteAfterClose = errors.New("joinable: write after close")

// File is an append-only, write-once byte stream. A single writer appends
// via Write and eventually calls Close or CloseWithError; any number of
// readers created with NewReader tail the stream independently, each with
// its own cursor, and may join a write that is still in progress.
//
// File is safe for concurrent use by one writer and many readers.
type File struct {
	mu   sync.Mutex
	cond *sync.Cond

	buf         []byte
	bufFromPool bool

	written int64
	state   State
	err     error

	activeReaders int
}

// New returns an empty File in the Open state.
func New() *File {
	f := &File{state: Open}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// Write appends p to the stream and wakes any parked readers. It fails once
// the file has left the Open state.
func (f *File) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != Open {
		return 0, ErrWriteAfterClose
	}
	if len(p) == 0 {
		return 0, nil
	}

	f.growLocked(len(p))
	f.buf = append(f.buf, p...)
	f.written += int64(len(p))
	f.cond.Broadcast()
	return len(p), nil
}

// growLocked ensures f.buf has room for extra more bytes, sourcing the new
// backing array from bufpool and returning the old one when it was itself
// pool-sourced. Caller must hold f.mu.
func (f *File) growLocked(extra int) {
	needed := len(f.buf) + extra
	if needed <= cap(f.buf) {
		return
	}

	newCap := cap(f.buf)*2 + extra
	if newCap < 4096 {
		newCap = 4096
	}

	newBuf := bufpool.Get(newCap)[:len(f.buf)]
	copy(newBuf, f.buf)
	if f.bufFromPool {
		bufpool.Put(f.buf)
	}
	f.buf = newBuf
	f.bufFromPool = true
}

// releaseBufferLocked returns a pool-sourced backing buffer to its pool
// once no active reader is using it, keeping a private copy of the
// written bytes so readers created later can still read them. Caller
// must hold f.mu and f.state must be terminal.
func (f *File) releaseBufferLocked() {
	if f.bufFromPool {
		kept := append([]byte(nil), f.buf...)
		bufpool.Put(f.buf)
		f.buf = kept
	}
	f.bufFromPool = false
}

// Close finishes the stream normally. Readers already at the tail see
// io.EOF instead of parking; the file becomes Closed as soon as every
// reader has drained or been released.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != Open {
		return nil
	}
	if f.activeReaders == 0 {
		f.state = Closed
		f.releaseBufferLocked()
	} else {
		f.state = Closing
	}
	f.cond.Broadcast()
	return nil
}

// CloseWithError aborts the stream. Every parked reader wakes immediately
// and every future read at the tail returns err. This transition is
// terminal and immediate regardless of how many readers are still active.
func (f *File) CloseWithError(err error) {
	if err == nil {
		err = errors.New("joinable: write failed")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != Open && f.state != Closing {
		return
	}
	f.state = ErroredClosed
	f.err = err
	f.cond.Broadcast()
}

// State returns the file's current lifecycle stage.
func (f *File) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Written returns the number of bytes committed so far.
func (f *File) Written() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.written
}

// ActiveReaders returns the number of readers created but not yet drained
// to Written (or explicitly released).
func (f *File) ActiveReaders() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.activeReaders
}

// NewReader returns a reader positioned at offset, which must be in
// [0, Written()]. The reader may join a write still in progress: reads
// beyond the current Written park until more bytes arrive, the writer
// closes, or ctx is cancelled.
func (f *File) NewReader(offset int64) (*Reader, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if offset < 0 || offset > f.written {
		return nil, fmt.Errorf("joinable: offset %d out of range [0,%d]", offset, f.written)
	}
	f.activeReaders++
	return &Reader{file: f, cursor: offset}, nil
}

// Reader tails a File from a fixed starting offset. Distinct readers never
// share state.
type Reader struct {
	file     *File
	cursor   int64
	released bool
}

// Cursor returns the reader's current read position.
func (r *Reader) Cursor() int64 {
	r.file.mu.Lock()
	defer r.file.mu.Unlock()
	return r.cursor
}

// Read copies the next available bytes into p. If the reader has caught up
// to the writer and the file is still Open, Read parks until more bytes
// are written, the writer closes (returning io.EOF once truly drained), the
// write errors (returning that error), or ctx is cancelled.
func (r *Reader) Read(ctx context.Context, p []byte) (int, error) {
	f := r.file

	f.mu.Lock()
	defer f.mu.Unlock()

	for r.cursor == f.written && f.state == Open {
		if err := f.waitLocked(ctx); err != nil {
			return 0, err
		}
	}

	if f.state == ErroredClosed && r.cursor == f.written {
		r.releaseLocked()
		return 0, f.err
	}

	if r.cursor == f.written {
		r.releaseLocked()
		return 0, io.EOF
	}

	n := copy(p, f.buf[r.cursor:f.written])
	r.cursor += int64(n)
	return n, nil
}

// Release marks the reader as drained without reading further. It is safe
// to call more than once and safe to call after Read has already returned
// io.EOF or an error (a no-op in that case).
func (r *Reader) Release() {
	f := r.file
	f.mu.Lock()
	defer f.mu.Unlock()
	r.releaseLocked()
}

// releaseLocked is the shared body of Release and the auto-release Read
// performs on EOF/error. Caller must hold f.mu.
func (r *Reader) releaseLocked() {
	if r.released {
		return
	}
	r.released = true

	f := r.file
	f.activeReaders--
	if f.state == Closing && f.activeReaders == 0 {
		f.state = Closed
		f.releaseBufferLocked()
		f.cond.Broadcast()
	}
}

// waitLocked blocks until the next Broadcast or until ctx is cancelled,
// returning ctx.Err() only in the latter case. Caller must hold f.mu.
func (f *File) waitLocked(ctx context.Context) error {
	if ctx == nil || ctx.Done() == nil {
		f.cond.Wait()
		return nil
	}

	stop := context.AfterFunc(ctx, func() {
		f.mu.Lock()
		f.cond.Broadcast()
		f.mu.Unlock()
	})
	f.cond.Wait()
	stop()

	return ctx.Err()
}

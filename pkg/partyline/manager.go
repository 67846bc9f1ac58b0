// Package partyline is the façade over the local FileTree/JoinableFile
// coordinator and the optional distributed GlobalLockManager: it exposes
// openInputStream, openOutputStream, tryDelete, and waitFor against a
// single path, translating local and global outcomes into one error
// taxonomy (see errors.go).
package partyline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sswguo/partyline/internal/logger"
	"github.com/sswguo/partyline/pkg/filetree"
	"github.com/sswguo/partyline/pkg/joinable"
	"github.com/sswguo/partyline/pkg/lock"
	"github.com/sswguo/partyline/pkg/metrics"
)

// Config configures a Manager.
type Config struct {
	// Store persists the actual file bytes. Required.
	Store FileStore

	// Global coordinates reads, writes and deletes across nodes. Nil
	// disables distributed coordination (single-node mode).
	Global GlobalLockManager

	// NodeID identifies this process. The Manager stores it, but none of
	// its operations reads it. Optional; defaults to "local".
	NodeID string

	// DefaultTimeout is used by operations called with a zero timeout.
	// Defaults to 30s.
	DefaultTimeout time.Duration

	// Metrics receives lock and stream instrumentation. Nil disables it.
	Metrics *metrics.Metrics
}

// Manager is the JoinableFileManager façade: the entry point applications
// use to read, write, and delete coordinated paths.
type Manager struct {
	tree    *filetree.Tree
	store   FileStore
	global  GlobalLockManager
	nodeID  string
	defTO   time.Duration
	metrics *metrics.Metrics

	shutdown   chan struct{}
	shutdownMu sync.Mutex
	closed     bool
	inflight   sync.WaitGroup
}

// NewManager constructs a Manager from cfg. Store must be non-nil.
func NewManager(cfg Config) *Manager {
	if cfg.NodeID == "" {
		cfg.NodeID = "local"
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 30 * time.Second
	}
	return &Manager{
		tree:     filetree.New(),
		store:    cfg.Store,
		global:   cfg.Global,
		nodeID:   cfg.NodeID,
		defTO:    cfg.DefaultTimeout,
		metrics:  cfg.Metrics,
		shutdown: make(chan struct{}),
	}
}

// tryAcquire wraps tree.TryAcquire with lock-wait and outcome metrics.
func (m *Manager) tryAcquire(ctx context.Context, path string, level lock.Level, id lock.Identity, deadline time.Time) (filetree.Outcome, *joinable.File, error) {
	start := time.Now()
	outcome, file, err := m.tree.TryAcquire(ctx, path, level, id, deadline)
	m.metrics.ObserveLockWait(level.String(), time.Since(start).Seconds())

	switch outcome {
	case filetree.Admitted:
		m.metrics.ObserveLockAttempt(level.String(), metrics.OutcomeAdmitted)
	case filetree.Denied:
		m.metrics.ObserveLockAttempt(level.String(), metrics.OutcomeDenied)
	case filetree.Cancelled:
		m.metrics.ObserveLockAttempt(level.String(), metrics.OutcomeCancelled)
	default:
		m.metrics.ObserveLockAttempt(level.String(), metrics.OutcomeTimedOut)
	}
	return outcome, file, err
}

func (m *Manager) deadline(timeout time.Duration) time.Time {
	if timeout <= 0 {
		timeout = m.defTO
	}
	return time.Now().Add(timeout)
}

// enter registers one in-flight operation, rejecting new work once Close
// has been called. Callers must invoke the returned func when the
// operation (not just the acquisition) completes.
func (m *Manager) enter() (func(), error) {
	m.shutdownMu.Lock()
	if m.closed {
		m.shutdownMu.Unlock()
		return nil, NewFatalError("", "manager is shut down")
	}
	m.inflight.Add(1)
	m.shutdownMu.Unlock()
	return m.inflight.Done, nil
}

// Close stops accepting new operations and waits for in-flight ones to
// finish, up to ctx's deadline. It does not forcibly close streams
// already handed to callers.
func (m *Manager) Close(ctx context.Context) error {
	m.shutdownMu.Lock()
	if m.closed {
		m.shutdownMu.Unlock()
		return nil
	}
	m.closed = true
	close(m.shutdown)
	m.shutdownMu.Unlock()

	done := make(chan struct{})
	go func() {
		m.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return NewTimedOutError("")
	}
}

// translate maps a filetree.Outcome that was not Admitted into this
// package's error taxonomy.
func translate(path string, outcome filetree.Outcome, cause error) *Error {
	switch outcome {
	case filetree.Denied:
		return NewDeniedError(path, "")
	case filetree.Cancelled:
		e := NewCancelledError(path)
		if cause != nil {
			e.Message = "operation cancelled: " + cause.Error()
		}
		return e
	default:
		return NewTimedOutError(path)
	}
}

// OutputStream is a handle returned by OpenOutputStream. Writes are
// visible to joined readers as soon as Write returns; Close must be
// called exactly once to release the underlying locks.
type OutputStream struct {
	mgr    *Manager
	path   string
	id     lock.Identity
	file   *joinable.File
	sink   io.WriteCloser
	global bool
	done   func()
	once   sync.Once
}

// Write appends p, persisting it to the backing store and publishing it
// to any joined readers in the same call.
func (s *OutputStream) Write(p []byte) (int, error) {
	n, err := s.sink.Write(p)
	if err != nil {
		ioErr := NewIOError(s.path, err)
		s.file.CloseWithError(ioErr)
		return n, ioErr
	}
	if _, err := s.file.Write(p[:n]); err != nil {
		return n, NewIOError(s.path, err)
	}
	s.mgr.metrics.AddJoinableBytesWritten(n)
	return n, nil
}

// Close flushes the backing store, closes the JoinableFile (draining any
// joined readers cooperatively), and releases the local and global Write
// locks in that order.
func (s *OutputStream) Close() error {
	var retErr error
	s.once.Do(func() {
		defer s.done()

		sinkErr := s.sink.Close()
		if sinkErr != nil {
			retErr = NewIOError(s.path, sinkErr)
			s.file.CloseWithError(retErr)
		} else {
			s.file.Close()
		}

		s.mgr.tree.Release(s.path, s.id.Name)
		if s.global {
			if err := s.mgr.global.Unlock(context.Background(), s.path, lock.Write); err != nil && retErr == nil {
				logger.Warn("global unlock failed", logger.Path(s.path), logger.Err(err))
			}
		}
	})
	return retErr
}

// InputStream is a handle returned by OpenInputStream. Exactly one of the
// joined or plain backing reader is active.
type InputStream struct {
	mgr    *Manager
	path   string
	id     lock.Identity
	joined *joinable.Reader
	plain  io.ReadCloser
	global bool
	done   func()
	once   sync.Once
}

// Read reads the next available bytes. If the stream has joined an
// in-progress write and has caught up to it, Read parks until more bytes
// arrive, the writer finishes, or ctx is cancelled.
func (s *InputStream) Read(ctx context.Context, p []byte) (int, error) {
	if s.joined != nil {
		n, err := s.joined.Read(ctx, p)
		if err != nil && !errors.Is(err, io.EOF) {
			return n, NewIOError(s.path, err)
		}
		return n, err
	}
	n, err := s.plain.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, NewIOError(s.path, err)
	}
	return n, err
}

// Close releases the stream's local and (if taken) global Read lock.
func (s *InputStream) Close() error {
	s.once.Do(func() {
		defer s.done()

		if s.joined != nil {
			s.joined.Release()
		} else if s.plain != nil {
			_ = s.plain.Close()
		}
		s.mgr.tree.Release(s.path, s.id.Name)
		if s.global {
			if err := s.mgr.global.Unlock(context.Background(), s.path, lock.Read); err != nil {
				logger.Warn("global unlock failed", logger.Path(s.path), logger.Err(err))
			}
		}
	})
	return nil
}

// OpenOutputStream acquires an exclusive Write lock on path (global then
// local) and returns a stream to write its new contents to. A zero timeout
// uses the Manager's default.
func (m *Manager) OpenOutputStream(ctx context.Context, path string, id lock.Identity, timeout time.Duration) (*OutputStream, error) {
	done, err := m.enter()
	if err != nil {
		return nil, err
	}
	ok := false
	defer func() {
		if !ok {
			done()
		}
	}()

	id = id.OrDefault()
	deadline := m.deadline(timeout)

	usedGlobal := false
	if m.global != nil {
		admitted, err := m.global.TryLock(ctx, path, lock.Write, deadline)
		if err != nil {
			return nil, NewFatalError(path, err.Error())
		}
		if !admitted {
			return nil, NewTimedOutError(path)
		}
		usedGlobal = true
	}

	outcome, file, err := m.tryAcquire(ctx, path, lock.Write, id, deadline)
	if outcome != filetree.Admitted {
		if usedGlobal {
			_ = m.global.Unlock(context.Background(), path, lock.Write)
		}
		return nil, translate(path, outcome, err)
	}

	sink, err := m.store.Create(ctx, path)
	if err != nil {
		m.tree.Release(path, id.Name)
		if usedGlobal {
			_ = m.global.Unlock(context.Background(), path, lock.Write)
		}
		return nil, NewIOError(path, err)
	}

	logger.DebugCtx(ctx, "opened output stream", logger.Path(path), logger.Owner(id.Name))
	ok = true
	return &OutputStream{mgr: m, path: path, id: id, file: file, sink: sink, global: usedGlobal, done: done}, nil
}

// OpenInputStream joins path's in-flight JoinableFile if one exists, or
// opens an independent reader over its current on-disk contents. Returns
// NewNotFoundError if path neither exists nor has a writer in flight.
func (m *Manager) OpenInputStream(ctx context.Context, path string, id lock.Identity, timeout time.Duration) (*InputStream, error) {
	done, err := m.enter()
	if err != nil {
		return nil, err
	}
	ok := false
	defer func() {
		if !ok {
			done()
		}
	}()

	id = id.OrDefault()
	deadline := m.deadline(timeout)

	outcome, file, err := m.tryAcquire(ctx, path, lock.Read, id, deadline)
	if outcome != filetree.Admitted {
		return nil, translate(path, outcome, err)
	}

	if file != nil {
		reader, err := file.NewReader(0)
		if err != nil {
			m.tree.Release(path, id.Name)
			return nil, NewIOError(path, err)
		}
		logger.DebugCtx(ctx, "joined in-progress write", logger.Path(path), logger.Owner(id.Name))
		ok = true
		return &InputStream{mgr: m, path: path, id: id, joined: reader, done: done}, nil
	}

	exists, err := m.store.Stat(ctx, path)
	if err != nil {
		m.tree.Release(path, id.Name)
		return nil, NewIOError(path, err)
	}
	if !exists {
		m.tree.Release(path, id.Name)
		return nil, NewNotFoundError(path)
	}

	usedGlobal := false
	if m.global != nil {
		admitted, err := m.global.TryLock(ctx, path, lock.Read, deadline)
		if err != nil {
			m.tree.Release(path, id.Name)
			return nil, NewFatalError(path, err.Error())
		}
		if !admitted {
			m.tree.Release(path, id.Name)
			return nil, NewTimedOutError(path)
		}
		usedGlobal = true
	}

	plain, err := m.store.OpenReader(ctx, path)
	if err != nil {
		m.tree.Release(path, id.Name)
		if usedGlobal {
			_ = m.global.Unlock(context.Background(), path, lock.Read)
		}
		return nil, NewIOError(path, err)
	}

	ok = true
	return &InputStream{mgr: m, path: path, id: id, plain: plain, global: usedGlobal, done: done}, nil
}

// TryDelete acquires an exclusive Delete lock on path (global then local,
// requiring no readers, writers, or locked descendants), removes it from
// the backing store, and releases the locks. Deleting a path that does
// not exist succeeds (idempotent).
func (m *Manager) TryDelete(ctx context.Context, path string, id lock.Identity, timeout time.Duration) error {
	done, err := m.enter()
	if err != nil {
		return err
	}
	defer done()

	id = id.OrDefault()
	deadline := m.deadline(timeout)

	usedGlobal := false
	if m.global != nil {
		admitted, err := m.global.TryLock(ctx, path, lock.Delete, deadline)
		if err != nil {
			return NewFatalError(path, err.Error())
		}
		if !admitted {
			return NewTimedOutError(path)
		}
		usedGlobal = true
	}

	outcome, _, err := m.tryAcquire(ctx, path, lock.Delete, id, deadline)
	if outcome != filetree.Admitted {
		if usedGlobal {
			_ = m.global.Unlock(context.Background(), path, lock.Delete)
		}
		return translate(path, outcome, err)
	}

	removeErr := m.store.Remove(ctx, path)
	m.tree.Release(path, id.Name)
	if usedGlobal {
		if err := m.global.Unlock(context.Background(), path, lock.Delete); err != nil {
			logger.Warn("global unlock failed", logger.Path(path), logger.Err(err))
		}
	}
	if removeErr != nil {
		return NewIOError(path, removeErr)
	}

	logger.DebugCtx(ctx, "deleted path", logger.Path(path), logger.Owner(id.Name))
	return nil
}

// WaitFor blocks until path's current local lock level admits level, ctx
// is cancelled, or timeout elapses. It takes no lock of its own; callers
// that want to act on compatibility must still call one of the Open*
// methods or TryDelete.
func (m *Manager) WaitFor(ctx context.Context, path string, level lock.Level, timeout time.Duration) bool {
	return m.tree.WaitFor(ctx, path, level, m.deadline(timeout))
}

// GetLockInfo returns a human-readable diagnostic summary of path's
// current local lock state, or "<path>: unlocked" if no entry exists.
func (m *Manager) GetLockInfo(path string) string {
	info, ok := m.tree.LockInfo(path)
	if !ok {
		return fmt.Sprintf("%s: unlocked", path)
	}

	refs := make([]string, 0, len(info.Refs))
	for _, r := range info.Refs {
		if r.Label != "" {
			refs = append(refs, fmt.Sprintf("%s(%s)", r.Name, r.Label))
		} else {
			refs = append(refs, r.Name)
		}
	}
	return fmt.Sprintf("%s: level=%s refs=%d holders=%v", path, info.Level, len(info.Refs), refs)
}

// Package filetree implements the per-path registry that ties a LockOwner
// to its optional JoinableFile and enforces cross-path invariants such as
// the delete-blocks-on-locked-descendant rule.
package filetree

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sswguo/partyline/pkg/joinable"
	"github.com/sswguo/partyline/pkg/lock"
)

// Outcome is the result of a TryAcquire call.
type Outcome int

const (
	// Admitted means the caller now holds the requested reference.
	Admitted Outcome = iota

	// Denied means admission is permanently impossible given the current
	// state (a Delete request blocked by a locked descendant); the
	// caller should not retry without an intervening release elsewhere.
	Denied

	// TimedOut means the deadline passed while waiting for a compatible
	// state.
	TimedOut

	// Cancelled means ctx was cancelled while waiting.
	Cancelled
)

func (o Outcome) String() string {
	switch o {
	case Admitted:
		return "admitted"
	case Denied:
		return "denied"
	case TimedOut:
		return "timed-out"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// entry is a single FileTree slot. Nil file means the path is locked at a
// level that never produces a joinable byte stream (Read with no prior
// Write, or Delete).
type entry struct {
	owner *lock.Owner
	file  *joinable.File
}

// Tree is the in-process registry of locked paths. All operations are
// serialized by a single mutex; cross-entry descendant scans therefore
// never race against concurrent inserts, and a single condition variable
// wakes every blocked caller on any release so retries never spin.
//
// Tree is safe for concurrent use.
type Tree struct {
	mu      sync.Mutex
	cond    *sync.Cond
	entries map[string]*entry
}

// New returns an empty Tree.
func New() *Tree {
	t := &Tree{entries: make(map[string]*entry)}
	t.cond = sync.NewCond(&t.mu)
	return t
}

// TryAcquire admits id at requestedLevel on path, blocking until admitted,
// denied, ctx is cancelled, or deadline passes (the zero Time means no
// deadline). On Admitted for a Write request, the returned *joinable.File
// is the stream to write to (or, for a joined Read on an in-progress
// Write, the stream to read from); it is nil for Read against an
// entry with no writer in flight, and for Delete.
func (t *Tree) TryAcquire(ctx context.Context, path string, requestedLevel lock.Level, id lock.Identity, deadline time.Time) (Outcome, *joinable.File, error) {
	waitCtx := ctx
	if !deadline.IsZero() {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithDeadline(ctx, deadline)
		defer cancel()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for {
		switch res, file := t.attemptLocked(path, requestedLevel, id); res {
		case resultAdmit:
			return Admitted, file, nil
		case resultDeny:
			return Denied, nil, nil
		}

		if err := t.waitLocked(waitCtx); err != nil {
			if ctx.Err() != nil {
				return Cancelled, nil, ctx.Err()
			}
			return TimedOut, nil, nil
		}
	}
}

type attemptResult int

const (
	resultAdmit attemptResult = iota
	resultRetry
	resultDeny
)

// attemptLocked makes one non-blocking admission attempt. Caller must hold
// t.mu.
func (t *Tree) attemptLocked(path string, requestedLevel lock.Level, id lock.Identity) (attemptResult, *joinable.File) {
	if requestedLevel == lock.Delete && t.hasLockedDescendantLocked(path) {
		return resultDeny, nil
	}

	e, exists := t.entries[path]
	if !exists {
		owner := lock.New(path, id, requestedLevel)
		var f *joinable.File
		if requestedLevel == lock.Write {
			f = joinable.New()
		}
		t.entries[path] = &entry{owner: owner, file: f}
		return resultAdmit, f
	}

	if !e.owner.Lock(id, requestedLevel) {
		return resultRetry, nil
	}
	return resultAdmit, e.file
}

// Release removes id's reference on path. If this was the last reference,
// the entry is removed and its JoinableFile (if any) is closed, which
// cooperatively drains any remaining reader cursors rather than forcing
// them to abort. Releasing a path/id with no matching reference is a
// no-op.
func (t *Tree) Release(path string, id string) {
	t.mu.Lock()
	e, exists := t.entries[path]
	if !exists {
		t.mu.Unlock()
		return
	}

	terminal := e.owner.Unlock(id)
	if terminal {
		delete(t.entries, path)
	}
	t.cond.Broadcast()
	t.mu.Unlock()

	if terminal && e.file != nil {
		e.file.Close()
	}
}

// PrefixLocked reports whether any path strictly under path currently has
// an entry. Used to enforce the delete-blocks-on-locked-descendant
// invariant outside of TryAcquire (e.g. diagnostics).
func (t *Tree) PrefixLocked(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.hasLockedDescendantLocked(path)
}

// hasLockedDescendantLocked reports whether any entry's path is strictly
// under path. Caller must hold t.mu.
func (t *Tree) hasLockedDescendantLocked(path string) bool {
	prefix := path
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	for p := range t.entries {
		if p != path && strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}

// WaitFor blocks until path's current lock level admits level, ctx is
// cancelled, or deadline passes. A path with no entry is vacuously
// compatible with any level. It returns false on cancellation or timeout.
func (t *Tree) WaitFor(ctx context.Context, path string, level lock.Level, deadline time.Time) bool {
	waitCtx := ctx
	if !deadline.IsZero() {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithDeadline(ctx, deadline)
		defer cancel()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for {
		e, exists := t.entries[path]
		if !exists || e.owner.Level().Admits(level) {
			return true
		}
		if err := t.waitLocked(waitCtx); err != nil {
			return false
		}
	}
}

// LockInfo returns a diagnostic snapshot of path's owner, if any entry
// exists.
func (t *Tree) LockInfo(path string) (lock.Info, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, exists := t.entries[path]
	if !exists {
		return lock.Info{}, false
	}
	return e.owner.Info(), true
}

// JoinableFile returns path's in-flight JoinableFile, if any.
func (t *Tree) JoinableFile(path string) (*joinable.File, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, exists := t.entries[path]
	if !exists || e.file == nil {
		return nil, false
	}
	return e.file, true
}

// Len returns the number of currently locked paths. Used by tests to
// assert the no-leak invariant.
func (t *Tree) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// waitLocked blocks until the next Broadcast or until ctx is cancelled,
// returning ctx.Err() only in the latter case. Caller must hold t.mu.
func (t *Tree) waitLocked(ctx context.Context) error {
	if ctx == nil || ctx.Done() == nil {
		t.cond.Wait()
		return nil
	}

	stop := context.AfterFunc(ctx, func() {
		t.mu.Lock()
		t.cond.Broadcast()
		t.mu.Unlock()
	})
	t.cond.Wait()
	stop()

	return ctx.Err()
}

package partyline

import (
	"context"
	"time"

	"github.com/sswguo/partyline/pkg/lock"
)

// GlobalLockManager is the cluster-wide counterpart to the local FileTree,
// consulted by Manager before taking a local Write or Delete lock, and
// after taking a local Read lock for a read that does not join an
// in-progress local write. A nil
// GlobalLockManager disables distributed coordination entirely: the
// façade then behaves as a single-node coordinator.
//
// Implementations (see pkg/globallock) back this with a transactional,
// replicated key-value store.
type GlobalLockManager interface {
	// TryLock attempts to admit this node at level for path, retrying
	// internally until deadline. It returns false (not an error) on
	// ordinary timeout; it returns an error when ctx is cancelled or for
	// fatal conditions (e.g. the backing store lacks transaction support).
	TryLock(ctx context.Context, path string, level lock.Level, deadline time.Time) (bool, error)

	// Unlock releases this node's hold on path at level. Unlocking a path
	// that has no global entry is a no-op.
	Unlock(ctx context.Context, path string, level lock.Level) error
}

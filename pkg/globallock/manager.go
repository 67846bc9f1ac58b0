// Package globallock implements cluster-wide exclusion over a path
// namespace, backed by a pluggable transactional, replicated key-value
// store. It is the distributed counterpart to pkg/filetree: the same
// compatibility matrix, applied to a set of node ids instead of a set of
// in-process reference holders.
package globallock

import (
	"context"
	"errors"
	"time"

	"github.com/sswguo/partyline/internal/logger"
	"github.com/sswguo/partyline/pkg/lock"
	"github.com/sswguo/partyline/pkg/metrics"
)

// Record is the persisted state of a single globally locked path.
type Record struct {
	// Level is Read, Write, or Delete.
	Level lock.Level

	// Owners is the set of node ids holding Level on this path. Holds
	// exactly one entry unless Level is Read.
	Owners []string

	// ExpiresAt is when the store will reclaim this record if no holder
	// has refreshed it. The zero Time means no expiry.
	ExpiresAt time.Time
}

// holds reports whether nodeID is among Owners.
func (r *Record) holds(nodeID string) bool {
	for _, id := range r.Owners {
		if id == nodeID {
			return true
		}
	}
	return false
}

// Transaction exposes the read/write/delete operations a single
// GlobalLockManager attempt needs, all scoped to one store transaction.
type Transaction interface {
	// Get returns path's current record, or ok=false if no record (or an
	// expired one) exists.
	Get(ctx context.Context, path string) (rec *Record, ok bool, err error)

	// Put writes (or overwrites) path's record, with the given TTL
	// (zero means no expiry).
	Put(ctx context.Context, path string, rec *Record, ttl time.Duration) error

	// Delete removes path's record, if any.
	Delete(ctx context.Context, path string) error
}

// Store is the transactional backend GlobalLockManager runs its admission
// logic against. See pkg/globallock/memstore, badgerstore, and
// postgresstore for implementations.
type Store interface {
	// WithTransaction runs fn within a single transaction, committing on
	// a nil return and rolling back otherwise. Errors from fn (or from
	// the commit itself) are treated as retryable by Manager unless they
	// wrap ErrUnsupported.
	WithTransaction(ctx context.Context, fn func(tx Transaction) error) error
}

// ErrUnsupported is returned (wrapped) by a Store that cannot provide
// transactional semantics at all; Manager treats this as fatal rather
// than retrying forever.
var ErrUnsupported = errors.New("globallock: store does not support transactions")

// Config configures a Manager.
type Config struct {
	// Store is the backing transactional key-value store. Required.
	Store Store

	// NodeID identifies this process among the cluster. Required.
	NodeID string

	// TTL is attached to every record this node writes, bounding how
	// long a dead node can pin a path. Defaults to 30 minutes.
	TTL time.Duration

	// RetryInterval is how long TryLock sleeps between admission
	// attempts. Defaults to 1 second.
	RetryInterval time.Duration

	// Metrics receives retry instrumentation. Nil disables it.
	Metrics *metrics.Metrics
}

// Manager is a distributed lock manager keyed by path, implementing
// partyline.GlobalLockManager.
type Manager struct {
	store   Store
	nodeID  string
	ttl     time.Duration
	retryIv time.Duration
	metrics *metrics.Metrics
}

// NewManager constructs a Manager from cfg.
func NewManager(cfg Config) *Manager {
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Minute
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = time.Second
	}
	return &Manager{
		store:   cfg.Store,
		nodeID:  cfg.NodeID,
		ttl:     cfg.TTL,
		retryIv: cfg.RetryInterval,
		metrics: cfg.Metrics,
	}
}

// TryLock loops until deadline, attempting to admit this node at level
// for path. It returns (false, nil) on ordinary timeout, (false,
// ctx.Err()) when ctx is cancelled, and (false, err) when the store
// reports a non-retryable failure.
func (m *Manager) TryLock(ctx context.Context, path string, level lock.Level, deadline time.Time) (bool, error) {
	attempts := 0
	for {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return false, nil
		}

		admitted, err := m.attempt(ctx, path, level)
		attempts++
		if err != nil {
			if errors.Is(err, ErrUnsupported) {
				return false, err
			}
			logger.WarnCtx(ctx, "global lock attempt failed, retrying",
				logger.Path(path), logger.RetryCount(attempts), logger.Err(err))
			m.metrics.IncGlobalLockRetry(level.String())
			if m.sleep(ctx, deadline) {
				return false, ctx.Err()
			}
			continue
		}
		if admitted {
			return true, nil
		}
		m.metrics.IncGlobalLockRetry(level.String())
		if m.sleep(ctx, deadline) {
			return false, ctx.Err()
		}
	}
}

// attempt makes one transactional admission attempt.
func (m *Manager) attempt(ctx context.Context, path string, level lock.Level) (bool, error) {
	admitted := false
	err := m.store.WithTransaction(ctx, func(tx Transaction) error {
		rec, ok, err := tx.Get(ctx, path)
		if err != nil {
			return err
		}

		if !ok {
			admitted = true
			return tx.Put(ctx, path, &Record{Level: level, Owners: []string{m.nodeID}}, m.ttl)
		}

		if level == lock.Read && rec.Level == lock.Read {
			admitted = true
			if !rec.holds(m.nodeID) {
				rec.Owners = append(rec.Owners, m.nodeID)
			}
			return tx.Put(ctx, path, rec, m.ttl)
		}

		admitted = false
		return nil
	})
	return admitted, err
}

// Unlock releases this node's hold on path at level. If level is not
// Read, the record is removed outright, whichever node holds it (Write
// and Delete are always single-owner); if Read, this node's id is
// removed from Owners and the record is removed once empty, or else
// rewritten with a fresh TTL. Unlocking a path that has no record is a
// no-op.
func (m *Manager) Unlock(ctx context.Context, path string, level lock.Level) error {
	return m.store.WithTransaction(ctx, func(tx Transaction) error {
		rec, ok, err := tx.Get(ctx, path)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		if level != lock.Read {
			return tx.Delete(ctx, path)
		}

		remaining := rec.Owners[:0:0]
		for _, id := range rec.Owners {
			if id != m.nodeID {
				remaining = append(remaining, id)
			}
		}
		if len(remaining) == 0 {
			return tx.Delete(ctx, path)
		}
		rec.Owners = remaining
		return tx.Put(ctx, path, rec, m.ttl)
	})
}

// sleep waits RetryInterval (capped by deadline, if set) or until ctx is
// cancelled, returning true iff ctx was the reason it woke.
func (m *Manager) sleep(ctx context.Context, deadline time.Time) bool {
	wait := m.retryIv
	if !deadline.IsZero() {
		if remaining := time.Until(deadline); remaining < wait {
			wait = remaining
		}
	}
	if wait <= 0 {
		return false
	}

	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return true
	case <-t.C:
		return false
	}
}

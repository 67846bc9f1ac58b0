package globallock_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sswguo/partyline/pkg/globallock"
	"github.com/sswguo/partyline/pkg/globallock/memstore"
	"github.com/sswguo/partyline/pkg/lock"
)

func newManager(t *testing.T, nodeID string, store globallock.Store) *globallock.Manager {
	t.Helper()
	return globallock.NewManager(globallock.Config{
		Store:         store,
		NodeID:        nodeID,
		TTL:           time.Minute,
		RetryInterval: 10 * time.Millisecond,
	})
}

func TestTryLockFirstWriterAdmittedImmediately(t *testing.T) {
	store := memstore.New()
	m := newManager(t, "a", store)

	ok, err := m.TryLock(context.Background(), "/p", lock.Write, time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTryLockSecondWriterTimesOut(t *testing.T) {
	store := memstore.New()
	a := newManager(t, "a", store)
	b := newManager(t, "b", store)
	ctx := context.Background()

	ok, err := a.TryLock(ctx, "/p", lock.Write, time.Now().Add(time.Second))
	require.NoError(t, err)
	require.True(t, ok)

	start := time.Now()
	ok, err = b.TryLock(ctx, "/p", lock.Write, time.Now().Add(60*time.Millisecond))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestTryLockTwoReadersBothAdmitted(t *testing.T) {
	store := memstore.New()
	a := newManager(t, "a", store)
	b := newManager(t, "b", store)
	ctx := context.Background()

	ok, err := a.TryLock(ctx, "/p", lock.Read, time.Now().Add(time.Second))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = b.TryLock(ctx, "/p", lock.Read, time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTryLockWriterBlocksBehindReader(t *testing.T) {
	store := memstore.New()
	a := newManager(t, "a", store)
	b := newManager(t, "b", store)
	ctx := context.Background()

	ok, err := a.TryLock(ctx, "/p", lock.Read, time.Now().Add(time.Second))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = b.TryLock(ctx, "/p", lock.Write, time.Now().Add(60*time.Millisecond))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUnlockReadRemovesOnlyThisNode(t *testing.T) {
	store := memstore.New()
	a := newManager(t, "a", store)
	b := newManager(t, "b", store)
	c := newManager(t, "c", store)
	ctx := context.Background()

	ok, err := a.TryLock(ctx, "/p", lock.Read, time.Now().Add(time.Second))
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = b.TryLock(ctx, "/p", lock.Read, time.Now().Add(time.Second))
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, a.Unlock(ctx, "/p", lock.Read))

	ok, err = c.TryLock(ctx, "/p", lock.Write, time.Now().Add(60*time.Millisecond))
	require.NoError(t, err)
	assert.False(t, ok, "b still holds a read lock")

	require.NoError(t, b.Unlock(ctx, "/p", lock.Read))

	ok, err = c.TryLock(ctx, "/p", lock.Write, time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUnlockUnknownPathIsNoop(t *testing.T) {
	store := memstore.New()
	m := newManager(t, "a", store)
	require.NoError(t, m.Unlock(context.Background(), "/missing", lock.Write))
}

func TestTryLockRecoversAfterTTLExpiry(t *testing.T) {
	store := memstore.New()
	a := globallock.NewManager(globallock.Config{Store: store, NodeID: "a", TTL: 20 * time.Millisecond, RetryInterval: 5 * time.Millisecond})
	b := globallock.NewManager(globallock.Config{Store: store, NodeID: "b", TTL: time.Minute, RetryInterval: 5 * time.Millisecond})
	ctx := context.Background()

	ok, err := a.TryLock(ctx, "/p", lock.Write, time.Now().Add(time.Second))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = b.TryLock(ctx, "/p", lock.Write, time.Now().Add(200*time.Millisecond))
	require.NoError(t, err)
	assert.True(t, ok, "expired record should be reclaimed")
}

func TestTryLockRespectsContextCancellation(t *testing.T) {
	store := memstore.New()
	a := newManager(t, "a", store)
	b := newManager(t, "b", store)

	ok, err := a.TryLock(context.Background(), "/p", lock.Write, time.Now().Add(time.Second))
	require.NoError(t, err)
	require.True(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ok, err = b.TryLock(ctx, "/p", lock.Write, time.Now().Add(time.Second))
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.Canceled)
}

// unsupportedStore always reports ErrUnsupported, simulating a backend
// that cannot offer transactional semantics at all.
type unsupportedStore struct{}

func (unsupportedStore) WithTransaction(context.Context, func(globallock.Transaction) error) error {
	return fmt.Errorf("wrapped: %w", globallock.ErrUnsupported)
}

func TestTryLockTreatsErrUnsupportedAsFatal(t *testing.T) {
	m := newManager(t, "a", unsupportedStore{})
	ok, err := m.TryLock(context.Background(), "/p", lock.Write, time.Now().Add(time.Second))
	assert.False(t, ok)
	assert.True(t, errors.Is(err, globallock.ErrUnsupported))
}

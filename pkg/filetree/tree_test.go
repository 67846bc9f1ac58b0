package filetree

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sswguo/partyline/pkg/lock"
)

func TestTryAcquireFirstWriteCreatesJoinableFile(t *testing.T) {
	tr := New()
	outcome, f, err := tr.TryAcquire(context.Background(), "/p", lock.Write, lock.Identity{Name: "w1"}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, Admitted, outcome)
	require.NotNil(t, f)
	assert.Equal(t, 1, tr.Len())
}

func TestTryAcquireReadJoinsWrite(t *testing.T) {
	tr := New()
	_, wf, err := tr.TryAcquire(context.Background(), "/p", lock.Write, lock.Identity{Name: "w1"}, time.Time{})
	require.NoError(t, err)

	outcome, rf, err := tr.TryAcquire(context.Background(), "/p", lock.Read, lock.Identity{Name: "r1"}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, Admitted, outcome)
	assert.Same(t, wf, rf)
}

func TestTryAcquireSecondWriteTimesOut(t *testing.T) {
	tr := New()
	_, _, err := tr.TryAcquire(context.Background(), "/p", lock.Write, lock.Identity{Name: "w1"}, time.Time{})
	require.NoError(t, err)

	deadline := time.Now().Add(50 * time.Millisecond)
	start := time.Now()
	outcome, _, err := tr.TryAcquire(context.Background(), "/p", lock.Write, lock.Identity{Name: "w2"}, deadline)
	require.NoError(t, err)
	assert.Equal(t, TimedOut, outcome)
	assert.GreaterOrEqual(t, time.Since(start), 45*time.Millisecond)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestTryAcquireRetriesUntilReleaseThenAdmits(t *testing.T) {
	tr := New()
	_, _, err := tr.TryAcquire(context.Background(), "/p", lock.Write, lock.Identity{Name: "w1"}, time.Time{})
	require.NoError(t, err)

	done := make(chan Outcome, 1)
	go func() {
		outcome, _, _ := tr.TryAcquire(context.Background(), "/p", lock.Write, lock.Identity{Name: "w2"}, time.Now().Add(time.Second))
		done <- outcome
	}()

	time.Sleep(20 * time.Millisecond)
	tr.Release("/p", "w1")

	select {
	case outcome := <-done:
		assert.Equal(t, Admitted, outcome)
	case <-time.After(time.Second):
		t.Fatal("second writer never admitted after release")
	}
}

func TestDeleteBlockedByLockedDescendant(t *testing.T) {
	tr := New()
	_, _, err := tr.TryAcquire(context.Background(), "/dir/child", lock.Read, lock.Identity{Name: "r1"}, time.Time{})
	require.NoError(t, err)

	outcome, _, err := tr.TryAcquire(context.Background(), "/dir", lock.Delete, lock.Identity{Name: "d1"}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, Denied, outcome)
}

func TestDeleteBlockedByReaderThenSucceedsAfterRelease(t *testing.T) {
	tr := New()
	_, _, err := tr.TryAcquire(context.Background(), "/p", lock.Read, lock.Identity{Name: "r1"}, time.Time{})
	require.NoError(t, err)

	outcome, _, err := tr.TryAcquire(context.Background(), "/p", lock.Delete, lock.Identity{Name: "d1"}, time.Now().Add(50*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, TimedOut, outcome)

	tr.Release("/p", "r1")

	outcome, _, err = tr.TryAcquire(context.Background(), "/p", lock.Delete, lock.Identity{Name: "d1"}, time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, Admitted, outcome)
}

func TestReleaseRemovesEntryOnlyWhenTerminal(t *testing.T) {
	tr := New()
	_, _, err := tr.TryAcquire(context.Background(), "/p", lock.Read, lock.Identity{Name: "r1"}, time.Time{})
	require.NoError(t, err)
	_, _, err = tr.TryAcquire(context.Background(), "/p", lock.Read, lock.Identity{Name: "r2"}, time.Time{})
	require.NoError(t, err)

	tr.Release("/p", "r1")
	assert.Equal(t, 1, tr.Len())

	tr.Release("/p", "r2")
	assert.Equal(t, 0, tr.Len())
}

func TestTryAcquireCancellation(t *testing.T) {
	tr := New()
	_, _, err := tr.TryAcquire(context.Background(), "/p", lock.Write, lock.Identity{Name: "w1"}, time.Time{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		outcome, _, err := tr.TryAcquire(ctx, "/p", lock.Write, lock.Identity{Name: "w2"}, time.Time{})
		assert.Equal(t, Cancelled, outcome)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancellation never woke the waiter")
	}
}

func TestWaitForCompatibleImmediately(t *testing.T) {
	tr := New()
	ok := tr.WaitFor(context.Background(), "/p", lock.Read, time.Now().Add(time.Second))
	assert.True(t, ok)
}

func TestWaitForBlocksUntilCompatible(t *testing.T) {
	tr := New()
	_, _, err := tr.TryAcquire(context.Background(), "/p", lock.Delete, lock.Identity{Name: "d1"}, time.Time{})
	require.NoError(t, err)

	done := make(chan bool, 1)
	go func() {
		done <- tr.WaitFor(context.Background(), "/p", lock.Read, time.Now().Add(time.Second))
	}()

	time.Sleep(20 * time.Millisecond)
	tr.Release("/p", "d1")

	select {
	case ok := <-done:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("WaitFor never unblocked")
	}
}

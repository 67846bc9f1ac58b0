package partyline

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sswguo/partyline/pkg/lock"
)

func newTestManager() *Manager {
	return NewManager(Config{
		Store:          NewMemFileStore(),
		DefaultTimeout: time.Second,
	})
}

func readAll(t *testing.T, s *InputStream) []byte {
	t.Helper()
	var out []byte
	buf := make([]byte, 64)
	for {
		n, err := s.Read(context.Background(), buf)
		out = append(out, buf[:n]...)
		if err != nil {
			require.ErrorIs(t, err, io.EOF)
			return out
		}
	}
}

// S1: delete of a missing path succeeds, concurrent reads of the missing
// path return NotFound, and a subsequent write succeeds with no leaked
// FileTree entry afterward.
func TestScenarioS1DeleteMissingThenWrite(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	require.NoError(t, m.TryDelete(ctx, "/p", lock.Identity{}, time.Second))

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.OpenInputStream(ctx, "/p", lock.Identity{}, time.Second)
			var pe *Error
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, ErrNotFound, pe.Code)
		}()
	}
	wg.Wait()

	out, err := m.OpenOutputStream(ctx, "/p", lock.Identity{}, time.Second)
	require.NoError(t, err)
	_, err = out.Write([]byte("Test data"))
	require.NoError(t, err)
	require.NoError(t, out.Close())

	in, err := m.OpenInputStream(ctx, "/p", lock.Identity{}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "Test data", string(readAll(t, in)))
	require.NoError(t, in.Close())

	assert.Equal(t, 0, m.tree.Len())
}

// S2: a reader joining an in-progress write observes exactly the bytes
// written, in order, and sees end-of-stream once the writer closes.
func TestScenarioS2JoinedRead(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	out, err := m.OpenOutputStream(ctx, "/p", lock.Identity{Name: "writer"}, time.Second)
	require.NoError(t, err)

	in, err := m.OpenInputStream(ctx, "/p", lock.Identity{Name: "reader"}, time.Second)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	var got []byte
	go func() {
		defer wg.Done()
		got = readAll(t, in)
	}()

	full := make([]byte, 0, 1024)
	for i := 0; i < 64; i++ {
		chunk := make([]byte, 16)
		for j := range chunk {
			chunk[j] = byte((i*16 + j) % 251)
		}
		full = append(full, chunk...)
		time.Sleep(time.Millisecond)
		_, err := out.Write(chunk)
		require.NoError(t, err)
	}
	require.NoError(t, out.Close())

	wg.Wait()
	require.NoError(t, in.Close())
	assert.Equal(t, full, got)
}

// S3: many concurrent joined readers all observe the identical byte
// sequence.
func TestScenarioS3ManyJoinedReaders(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	out, err := m.OpenOutputStream(ctx, "/p", lock.Identity{Name: "writer"}, time.Second)
	require.NoError(t, err)

	const numReaders = 8
	readers := make([]*InputStream, numReaders)
	for i := range readers {
		r, err := m.OpenInputStream(ctx, "/p", lock.Identity{Name: "reader"}, time.Second)
		require.NoError(t, err)
		readers[i] = r
	}

	var wg sync.WaitGroup
	results := make([][]byte, numReaders)
	for i, r := range readers {
		wg.Add(1)
		go func(i int, r *InputStream) {
			defer wg.Done()
			results[i] = readAll(t, r)
		}(i, r)
	}

	full := make([]byte, 1024)
	for i := range full {
		full[i] = byte(i % 251)
	}
	for i := 0; i < len(full); i += 16 {
		_, err := out.Write(full[i : i+16])
		require.NoError(t, err)
	}
	require.NoError(t, out.Close())

	wg.Wait()
	for _, r := range readers {
		require.NoError(t, r.Close())
	}
	for i, got := range results {
		assert.Equalf(t, full, got, "reader %d mismatch", i)
	}
}

// S4: a second concurrent writer is denied admission while the first
// holds the path; once the first closes, a third writer succeeds.
func TestScenarioS4WriteDeniesWrite(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	out1, err := m.OpenOutputStream(ctx, "/p", lock.Identity{Name: "w1"}, 50*time.Millisecond)
	require.NoError(t, err)

	start := time.Now()
	_, err = m.OpenOutputStream(ctx, "/p", lock.Identity{Name: "w2"}, 50*time.Millisecond)
	elapsed := time.Since(start)
	require.Error(t, err)
	assert.Less(t, elapsed, 100*time.Millisecond)

	require.NoError(t, out1.Close())

	out3, err := m.OpenOutputStream(ctx, "/p", lock.Identity{Name: "w3"}, time.Second)
	require.NoError(t, err)
	require.NoError(t, out3.Close())
}

// S5: a delete is blocked while a reader holds the path, and succeeds
// once the reader closes.
func TestScenarioS5DeleteBlocksOnReader(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	out, err := m.OpenOutputStream(ctx, "/p", lock.Identity{Name: "w"}, time.Second)
	require.NoError(t, err)
	_, err = out.Write([]byte("data"))
	require.NoError(t, err)
	require.NoError(t, out.Close())

	in, err := m.OpenInputStream(ctx, "/p", lock.Identity{Name: "r"}, time.Second)
	require.NoError(t, err)

	err = m.TryDelete(ctx, "/p", lock.Identity{}, 100*time.Millisecond)
	var pe *Error
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, ErrTimedOut, pe.Code)

	require.NoError(t, in.Close())

	require.NoError(t, m.TryDelete(ctx, "/p", lock.Identity{}, time.Second))
}

func TestOpenInputStreamNotFound(t *testing.T) {
	m := newTestManager()
	_, err := m.OpenInputStream(context.Background(), "/missing", lock.Identity{}, time.Second)
	var pe *Error
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, ErrNotFound, pe.Code)
}

func TestGetLockInfoReportsUnlockedAndHeld(t *testing.T) {
	m := newTestManager()
	assert.Equal(t, "/p: unlocked", m.GetLockInfo("/p"))

	in, err := m.OpenOutputStream(context.Background(), "/p", lock.Identity{Name: "w", Label: "writer-proc"}, time.Second)
	require.NoError(t, err)
	info := m.GetLockInfo("/p")
	assert.Contains(t, info, "level=write")
	assert.Contains(t, info, "writer-proc")
	require.NoError(t, in.Close())
}

func TestCloseRejectsNewOperations(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	out, err := m.OpenOutputStream(ctx, "/p", lock.Identity{}, time.Second)
	require.NoError(t, err)
	require.NoError(t, out.Close())

	require.NoError(t, m.Close(context.Background()))

	_, err = m.OpenOutputStream(ctx, "/q", lock.Identity{}, time.Second)
	var pe *Error
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, ErrFatal, pe.Code)
}

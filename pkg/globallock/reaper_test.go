package globallock_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sswguo/partyline/pkg/globallock"
)

type fakeEvictor struct {
	mu      sync.Mutex
	evicted []string
}

func (f *fakeEvictor) EvictNode(_ context.Context, node string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evicted = append(f.evicted, node)
	return 1, nil
}

func (f *fakeEvictor) evictedNodes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.evicted...)
}

func TestReaperSweepsDeadNodes(t *testing.T) {
	evictor := &fakeEvictor{}
	r := globallock.NewReaper(evictor, globallock.ReaperConfig{
		Interval: 5 * time.Millisecond,
		DeadNodes: func(context.Context) []string {
			return []string{"dead-1"}
		},
	})

	r.Start(context.Background())
	assert.Eventually(t, func() bool {
		return len(evictor.evictedNodes()) > 0
	}, time.Second, time.Millisecond)

	r.Stop()
}

func TestReaperStopIsIdempotentAndStopsSweeping(t *testing.T) {
	evictor := &fakeEvictor{}
	r := globallock.NewReaper(evictor, globallock.ReaperConfig{
		Interval: 5 * time.Millisecond,
		DeadNodes: func(context.Context) []string {
			return []string{"dead-1"}
		},
	})

	r.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	r.Stop()
	r.Stop()

	countAtStop := len(evictor.evictedNodes())
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, countAtStop, len(evictor.evictedNodes()))
}

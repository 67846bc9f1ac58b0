// Package memstore is an in-memory globallock.Store, useful for
// single-node deployments and tests that want the distributed admission
// logic exercised without a real database.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/sswguo/partyline/pkg/globallock"
)

type store struct {
	mu      sync.Mutex
	records map[string]*globallock.Record
}

// New returns an empty in-memory Store. Every WithTransaction call holds
// the store's single mutex for its duration, which is sufficient for
// correctness (if not concurrency) since the whole point of a single
// process is that there is only one writer to serialize against.
func New() globallock.Store {
	return &store{records: make(map[string]*globallock.Record)}
}

func (s *store) WithTransaction(_ context.Context, fn func(globallock.Transaction) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&tx{store: s})
}

type tx struct {
	store *store
}

func (t *tx) Get(_ context.Context, path string) (*globallock.Record, bool, error) {
	rec, ok := t.store.records[path]
	if !ok {
		return nil, false, nil
	}
	if !rec.ExpiresAt.IsZero() && time.Now().After(rec.ExpiresAt) {
		delete(t.store.records, path)
		return nil, false, nil
	}
	return cloneRecord(rec), true, nil
}

func (t *tx) Put(_ context.Context, path string, rec *globallock.Record, ttl time.Duration) error {
	cp := cloneRecord(rec)
	if ttl > 0 {
		cp.ExpiresAt = time.Now().Add(ttl)
	} else {
		cp.ExpiresAt = time.Time{}
	}
	t.store.records[path] = cp
	return nil
}

func (t *tx) Delete(_ context.Context, path string) error {
	delete(t.store.records, path)
	return nil
}

func cloneRecord(rec *globallock.Record) *globallock.Record {
	cp := *rec
	cp.Owners = append([]string(nil), rec.Owners...)
	return &cp
}

// Package badgerstore implements globallock.Store on top of an embedded
// BadgerDB instance, for single-binary deployments that want lock state
// to survive a restart without standing up a separate database.
//
// Storage model mirrors the primary-key-plus-secondary-index layout used
// elsewhere in this codebase for persisted locks:
//
//	glock:{path}            -> JSON(record)
//	glockowner:{node}:{path} -> path (index, for node-eviction sweeps)
package badgerstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/sswguo/partyline/internal/logger"
	"github.com/sswguo/partyline/pkg/globallock"
	"github.com/sswguo/partyline/pkg/lock"
)

const (
	prefixLock  = "glock:"
	prefixOwner = "glockowner:"
)

type persisted struct {
	Level  int      `json:"level"`
	Owners []string `json:"owners"`
}

// Store wraps a *badgerdb.DB as a globallock.Store and owns its lifecycle.
type Store struct {
	db *badgerdb.DB
}

// Open opens (creating if necessary) a BadgerDB instance at dir and
// returns a globallock.Store backed by it. Callers should call Close when
// done.
func Open(dir string) (*Store, error) {
	opts := badgerdb.DefaultOptions(dir).WithLogger(nil)
	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badgerstore: open %s: %w", dir, err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying BadgerDB handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// WithTransaction implements globallock.Store.
func (s *Store) WithTransaction(ctx context.Context, fn func(globallock.Transaction) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badgerdb.Txn) error {
		return fn(&tx{txn: txn})
	})
}

type tx struct {
	txn *badgerdb.Txn
}

func (t *tx) Get(_ context.Context, path string) (*globallock.Record, bool, error) {
	item, err := t.txn.Get([]byte(prefixLock + path))
	if err == badgerdb.ErrKeyNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var p persisted
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &p)
	}); err != nil {
		return nil, false, fmt.Errorf("badgerstore: unmarshal %s: %w", path, err)
	}

	return &globallock.Record{Level: lock.Level(p.Level), Owners: p.Owners}, true, nil
}

func (t *tx) Put(_ context.Context, path string, rec *globallock.Record, ttl time.Duration) error {
	data, err := json.Marshal(persisted{Level: int(rec.Level), Owners: rec.Owners})
	if err != nil {
		return fmt.Errorf("badgerstore: marshal %s: %w", path, err)
	}

	entry := badgerdb.NewEntry([]byte(prefixLock+path), data)
	if ttl > 0 {
		entry = entry.WithTTL(ttl)
	}
	if err := t.txn.SetEntry(entry); err != nil {
		return err
	}

	for _, owner := range rec.Owners {
		idxKey := []byte(prefixOwner + owner + ":" + path)
		idxEntry := badgerdb.NewEntry(idxKey, []byte(path))
		if ttl > 0 {
			idxEntry = idxEntry.WithTTL(ttl)
		}
		if err := t.txn.SetEntry(idxEntry); err != nil {
			return err
		}
	}
	return nil
}

func (t *tx) Delete(_ context.Context, path string) error {
	item, err := t.txn.Get([]byte(prefixLock + path))
	if err == badgerdb.ErrKeyNotFound {
		return nil
	}
	if err != nil {
		return err
	}

	var p persisted
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &p)
	}); err != nil {
		return fmt.Errorf("badgerstore: unmarshal %s: %w", path, err)
	}

	if err := t.txn.Delete([]byte(prefixLock + path)); err != nil {
		return err
	}
	for _, owner := range p.Owners {
		if err := t.txn.Delete([]byte(prefixOwner + owner + ":" + path)); err != nil && err != badgerdb.ErrKeyNotFound {
			return err
		}
	}
	return nil
}

// EvictNode removes every record owned solely or partly by node, for use
// when a cluster member is known to have died. It is not part of
// globallock.Store since it is an operational tool, not part of the
// admission protocol.
func (s *Store) EvictNode(ctx context.Context, node string) (int, error) {
	count := 0
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		prefix := []byte(prefixOwner + node + ":")
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		var paths []string
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := it.Item().Value(func(val []byte) error {
				paths = append(paths, string(val))
				return nil
			}); err != nil {
				return err
			}
		}

		for _, path := range paths {
			t := &tx{txn: txn}
			rec, ok, err := t.Get(ctx, path)
			if err == nil {
				owned := false
				if ok {
					for _, id := range rec.Owners {
						owned = owned || id == node
					}
				}
				if !owned {
					// Stale index key left behind by an earlier Read unlock.
					_ = txn.Delete([]byte(prefixOwner + node + ":" + path))
					continue
				}
			}
			if err := t.Delete(ctx, path); err != nil {
				logger.Warn("badgerstore: evict node failed to delete record", logger.Path(path), logger.NodeID(node), logger.Err(err))
				continue
			}
			count++
		}
		return nil
	})
	return count, err
}

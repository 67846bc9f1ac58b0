// Package postgresstore implements globallock.Store on PostgreSQL, for
// clustered deployments where the global lock table must survive any
// single node's death and be visible to every node at once.
package postgresstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sswguo/partyline/internal/logger"
	"github.com/sswguo/partyline/pkg/globallock"
	"github.com/sswguo/partyline/pkg/lock"
)

// Store wraps a *pgxpool.Pool as a globallock.Store.
type Store struct {
	pool *pgxpool.Pool
}

// Open validates cfg, establishes a connection pool, optionally runs the
// embedded schema migrations, and returns a ready Store. Callers should
// call Close when done.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("postgresstore: invalid config: %w", err)
	}

	if cfg.AutoMigrate {
		if err := runMigrations(ctx, cfg.ConnectionString()); err != nil {
			return nil, err
		}
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("postgresstore: parse connection string: %w", err)
	}
	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("postgresstore: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgresstore: ping: %w", err)
	}

	logger.Info("postgres global lock store ready", logger.Backend("postgres"))
	return &Store{pool: pool}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// WithTransaction implements globallock.Store using a single serializable
// database transaction per attempt.
func (s *Store) WithTransaction(ctx context.Context, fn func(globallock.Transaction) error) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.Serializable}, func(pgTx pgx.Tx) error {
		return fn(&tx{pgTx: pgTx})
	})
}

type tx struct {
	pgTx pgx.Tx
}

func (t *tx) Get(ctx context.Context, path string) (*globallock.Record, bool, error) {
	row := t.pgTx.QueryRow(ctx,
		`SELECT level, owners, expires_at FROM global_locks WHERE path = $1`, path)

	var level int16
	var owners []string
	var expiresAt *time.Time
	if err := row.Scan(&level, &owners, &expiresAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("postgresstore: get %s: %w", path, err)
	}

	rec := &globallock.Record{Level: lock.Level(level), Owners: owners}
	if expiresAt != nil {
		if !expiresAt.After(time.Now()) {
			if err := t.Delete(ctx, path); err != nil {
				return nil, false, err
			}
			return nil, false, nil
		}
		rec.ExpiresAt = *expiresAt
	}
	return rec, true, nil
}

func (t *tx) Put(ctx context.Context, path string, rec *globallock.Record, ttl time.Duration) error {
	var expiresAt *time.Time
	if ttl > 0 {
		exp := time.Now().Add(ttl)
		expiresAt = &exp
	}

	_, err := t.pgTx.Exec(ctx, `
		INSERT INTO global_locks (path, level, owners, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (path) DO UPDATE SET
			level = EXCLUDED.level,
			owners = EXCLUDED.owners,
			expires_at = EXCLUDED.expires_at
	`, path, int16(rec.Level), rec.Owners, expiresAt)
	if err != nil {
		return fmt.Errorf("postgresstore: put %s: %w", path, err)
	}
	return nil
}

func (t *tx) Delete(ctx context.Context, path string) error {
	if _, err := t.pgTx.Exec(ctx, `DELETE FROM global_locks WHERE path = $1`, path); err != nil {
		return fmt.Errorf("postgresstore: delete %s: %w", path, err)
	}
	return nil
}

// EvictNode removes node from every record's owner list, deleting any
// record left with no owners. It is an operational tool for reclaiming
// locks after a node is known to have died, not part of the admission
// protocol globallock.Store exposes.
func (s *Store) EvictNode(ctx context.Context, node string) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM global_locks
		WHERE owners = ARRAY[$1::text]
	`, node)
	if err != nil {
		return 0, fmt.Errorf("postgresstore: evict node %s: %w", node, err)
	}

	if _, err := s.pool.Exec(ctx, `
		UPDATE global_locks SET owners = array_remove(owners, $1)
		WHERE $1 = ANY(owners)
	`, node); err != nil {
		return 0, fmt.Errorf("postgresstore: evict node %s: %w", node, err)
	}

	return int(tag.RowsAffected()), nil
}

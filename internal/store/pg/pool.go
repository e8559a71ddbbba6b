// Package pg implements store.Store against Postgres via pgx, delegating
// ANN similarity search to internal/annindex (Qdrant). Grounded on
// intelligencedev-manifold's pgxpool usage, adapted to the bank-scoped
// schema in internal/store/migrations.
package pg

import (
	"context"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hindsightdb/hindsight/internal/annindex"
	"github.com/hindsightdb/hindsight/internal/logging"
	"github.com/hindsightdb/hindsight/internal/store"
	"github.com/hindsightdb/hindsight/internal/store/migrations"
)

// querier is the subset of pgxpool.Pool and pgx.Tx every query method
// needs, letting WithTx swap in a transaction transparently.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Config configures the Postgres connection pool.
type Config struct {
	DSN          string
	MaxConns     int32
	EmbeddingDim int
}

// Store implements store.Store against a Postgres pool and a Qdrant ANN
// index. The zero value is not usable; construct with Open.
type Store struct {
	pool   *pgxpool.Pool
	db     querier
	ann    annindex.Index
	logger *logging.Logger
	dim    int
}

// Open connects to Postgres, runs pending migrations, and returns a ready
// Store. ann may be nil only in tests that don't exercise vector search.
func Open(ctx context.Context, cfg Config, ann annindex.Index, logger *logging.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pg: parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("pg: connect: %w", err)
	}

	dim := cfg.EmbeddingDim
	if dim == 0 {
		dim = 384
	}

	s := &Store{pool: pool, db: pool, ann: ann, logger: logger, dim: dim}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// WithTx runs fn against a transaction-scoped Store.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Store) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("pg: begin tx: %w", err)
	}
	txStore := &Store{pool: s.pool, db: tx, ann: s.ann, logger: s.logger, dim: s.dim}
	if err := fn(ctx, txStore); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		return fmt.Errorf("pg: create schema_migrations: %w", err)
	}

	entries, err := migrations.FS.ReadDir(".")
	if err != nil {
		return fmt.Errorf("pg: read migrations: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		var applied bool
		err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE filename = $1)`, name).Scan(&applied)
		if err != nil {
			return fmt.Errorf("pg: check migration %s: %w", name, err)
		}
		if applied {
			continue
		}

		sqlBytes, err := migrations.FS.ReadFile(name)
		if err != nil {
			return fmt.Errorf("pg: read migration %s: %w", name, err)
		}

		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("pg: begin migration %s: %w", name, err)
		}
		if _, err := tx.Exec(ctx, string(sqlBytes)); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("pg: apply migration %s: %w", name, err)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (filename) VALUES ($1)`, name); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("pg: record migration %s: %w", name, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("pg: commit migration %s: %w", name, err)
		}
		s.logger.Info(ctx, "applied migration", zap.String("filename", name))
	}
	return nil
}

// Close releases the pool and ANN client.
func (s *Store) Close() error {
	s.pool.Close()
	if s.ann != nil {
		return s.ann.Close()
	}
	return nil
}

func unitsCollection(bankID string) string      { return bankID + "__units" }
func entitiesCollection(bankID string) string    { return bankID + "__entities" }
func reflectionsCollection(bankID string) string { return bankID + "__reflections" }

var _ store.Store = (*Store)(nil)

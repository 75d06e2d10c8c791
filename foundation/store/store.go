package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/essential-contributions/essential-node/foundation/errs"
	"github.com/essential-contributions/essential-node/foundation/store/pool"
)

// InMemoryDBPath is the sentinel db_path value that selects an in-memory
// database instead of a file on disk.
const InMemoryDBPath = "in-memory"

// Store is the relational block/state store. It owns a bounded pool of
// database connections and exposes the typed read/write operations the
// relayer, validation stream and external API depend on.
type Store struct {
	pool *pool.Pool
}

// Open creates (or opens) the database at dbPath, idempotently creates its
// schema, and returns a Store backed by a pool of the given capacity.
// dbPath may be InMemoryDBPath, in which case every pooled connection shares
// the process-wide shared-cache in-memory database so they observe the same
// data; stores opened with InMemoryDBPath in the same process while another
// is still open share that database too.
func Open(ctx context.Context, dbPath string, capacity int) (*Store, error) {
	dsn, err := dataSourceName(dbPath)
	if err != nil {
		return nil, errs.New(errs.Config, "invalid db_path", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errs.New(errs.Schema, "opening database", err)
	}

	configure := func(ctx context.Context, conn *sql.Conn) error {
		for _, pragma := range []string{
			"PRAGMA journal_mode = WAL;",
			"PRAGMA synchronous = NORMAL;",
			"PRAGMA foreign_keys = ON;",
			"PRAGMA busy_timeout = 5000;",
		} {
			if _, err := conn.ExecContext(ctx, pragma); err != nil {
				return fmt.Errorf("applying %q: %w", pragma, err)
			}
		}
		return nil
	}

	p, err := pool.Open(ctx, db, capacity, configure)
	if err != nil {
		return nil, errs.New(errs.Schema, "opening connection pool", err)
	}

	s := &Store{pool: p}
	if err := s.createSchema(ctx); err != nil {
		p.CloseAll()
		return nil, errs.New(errs.Schema, "creating schema", err)
	}

	return s, nil
}

// dataSourceName turns a configured db_path into a sqlite3 DSN. The
// in-memory sentinel maps to the shared-cache in-memory database so that
// every connection in the pool sees the same data instead of each getting
// its own private database.
func dataSourceName(dbPath string) (string, error) {
	if dbPath == "" {
		return "", fmt.Errorf("db_path must not be empty")
	}
	if dbPath == InMemoryDBPath {
		return "file::memory:?cache=shared", nil
	}
	return dbPath + "?_journal_mode=WAL&_foreign_keys=on", nil
}

func (s *Store) createSchema(ctx context.Context) error {
	return s.pool.Do(ctx, func(conn *sql.Conn) error {
		_, err := conn.ExecContext(ctx, schemaSQL)
		return err
	})
}

// Close closes every pooled connection. In-flight handles remain valid until
// released.
func (s *Store) Close() error {
	return s.pool.CloseAll()
}

// Pool exposes the underlying connection pool for components (the relayer,
// the validation stream) that need to manage their own transactions across
// several statements.
func (s *Store) Pool() *pool.Pool {
	return s.pool
}

// withConn runs fn against a pooled connection, for pure reads.
func (s *Store) withConn(ctx context.Context, fn func(conn *sql.Conn) error) error {
	h, err := s.pool.Acquire(ctx)
	if err != nil {
		return errs.New(errs.Storage, "acquiring connection", err)
	}
	defer h.Release()
	if err := fn(h.Conn()); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			h.Poison()
		}
		return err
	}
	return nil
}

// withTx runs fn inside a single transaction on a pooled connection. Any
// error returned by fn aborts the transaction.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	h, err := s.pool.Acquire(ctx)
	if err != nil {
		return errs.New(errs.Storage, "acquiring connection", err)
	}
	defer h.Release()

	tx, err := h.Conn().BeginTx(ctx, nil)
	if err != nil {
		h.Poison()
		return errs.New(errs.Storage, "beginning transaction", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			h.Poison()
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		h.Poison()
		return errs.New(errs.Storage, "committing transaction", err)
	}
	return nil
}

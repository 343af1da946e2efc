// Package sqlite implements the store.Store interface backed by SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/tidemark/scuttlestore/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements store.Store backed by a SQLite database file.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// Compile-time check that SQLiteStore implements store.Store.
var _ store.Store = (*SQLiteStore)(nil)

// New opens (or creates) the SQLite index at path and runs any pending
// migrations. The index is derivable from the offset log, so when migrations
// cannot be applied to an existing file the file is deleted and recreated
// from scratch; callers are expected to reindex afterwards.
func New(path string) (*SQLiteStore, error) {
	db, err := open(path)
	if err != nil {
		return nil, err
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		Remove(path)

		db, err = open(path)
		if err != nil {
			return nil, err
		}
		if err := runMigrations(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("run migrations on fresh database: %w", err)
		}
	}

	return &SQLiteStore{db: db, path: path}, nil
}

func open(path string) (*sql.DB, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite allows one writer; a single connection avoids lock churn.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// Remove deletes the database file along with its WAL sidecars. The caller
// is expected to reindex from the offset log afterwards.
func Remove(path string) {
	os.Remove(path)
	os.Remove(path + "-wal")
	os.Remove(path + "-shm")
}

// Path returns the database file path the store was opened with.
func (s *SQLiteStore) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Latest(ctx context.Context) (*int64, error) {
	return queryLatest(ctx, s.db)
}

func (s *SQLiteStore) InsertMessage(ctx context.Context, seq int64, flumeSeq int64, keyID, authorID int64) error {
	return queryInsertMessage(ctx, s.db, seq, flumeSeq, keyID, authorID)
}

func (s *SQLiteStore) FindOrCreateKey(ctx context.Context, key string) (int64, error) {
	return queryFindOrCreateKey(ctx, s.db, key)
}

func (s *SQLiteStore) FindOrCreateAuthor(ctx context.Context, author string) (int64, error) {
	return queryFindOrCreateAuthor(ctx, s.db, author)
}

func (s *SQLiteStore) FlumeSeqByKey(ctx context.Context, key string) (int64, error) {
	return queryFlumeSeqByKey(ctx, s.db, key)
}

func (s *SQLiteStore) FlumeSeqByFeedAndSequence(ctx context.Context, author string, seq int64) (*int64, error) {
	return queryFlumeSeqByFeedAndSequence(ctx, s.db, author, seq)
}

func (s *SQLiteStore) FeedLatestSequence(ctx context.Context, author string) (*int64, error) {
	return queryFeedLatestSequence(ctx, s.db, author)
}

func (s *SQLiteStore) FeedSeqsNewerThan(ctx context.Context, author string, seq int64, limit int64) ([]int64, error) {
	return queryFeedSeqsNewerThan(ctx, s.db, author, seq, limit)
}

// RunInTransaction begins a database transaction, creates a txStore that
// delegates to it, calls fn, and commits on success or rolls back on error.
func (s *SQLiteStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	txS := &txStore{tx: tx}
	if err := fn(txS); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// txStore implements store.Store using a *sql.Tx.
type txStore struct {
	tx *sql.Tx
}

// Compile-time check that txStore implements store.Store.
var _ store.Store = (*txStore)(nil)

func (s *txStore) Latest(ctx context.Context) (*int64, error) {
	return queryLatest(ctx, s.tx)
}

func (s *txStore) InsertMessage(ctx context.Context, seq int64, flumeSeq int64, keyID, authorID int64) error {
	return queryInsertMessage(ctx, s.tx, seq, flumeSeq, keyID, authorID)
}

func (s *txStore) FindOrCreateKey(ctx context.Context, key string) (int64, error) {
	return queryFindOrCreateKey(ctx, s.tx, key)
}

func (s *txStore) FindOrCreateAuthor(ctx context.Context, author string) (int64, error) {
	return queryFindOrCreateAuthor(ctx, s.tx, author)
}

func (s *txStore) FlumeSeqByKey(ctx context.Context, key string) (int64, error) {
	return queryFlumeSeqByKey(ctx, s.tx, key)
}

func (s *txStore) FlumeSeqByFeedAndSequence(ctx context.Context, author string, seq int64) (*int64, error) {
	return queryFlumeSeqByFeedAndSequence(ctx, s.tx, author, seq)
}

func (s *txStore) FeedLatestSequence(ctx context.Context, author string) (*int64, error) {
	return queryFeedLatestSequence(ctx, s.tx, author)
}

func (s *txStore) FeedSeqsNewerThan(ctx context.Context, author string, seq int64, limit int64) ([]int64, error) {
	return queryFeedSeqsNewerThan(ctx, s.tx, author, seq, limit)
}

// RunInTransaction on a txStore reuses the existing transaction (no nesting).
func (s *txStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(s)
}

// Close is a no-op for a transaction store; the parent store owns the connection.
func (s *txStore) Close() error {
	return nil
}

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/dhowland/epubfts/pkg/types"
)

// SQLiteStore implements Store on a single SQLite database file.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// openDatabase opens SQLite with the settings the index relies on.
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// WAL keeps readers unblocked while a sync commits.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set synchronous mode: %w", err)
	}

	// Single owning connection: one writer, and :memory: databases keep
	// their contents.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	return db, nil
}

// NewSQLiteStore opens (creating if needed) the index database at dbPath
// and ensures the schema is current.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStore{db: db, path: dbPath}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction.
func (s *SQLiteStore) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx, store: s}, nil
}

// querier is the common surface of *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type sqliteTx struct {
	tx    *sql.Tx
	store *SQLiteStore
}

func (t *sqliteTx) Commit() error   { return t.tx.Commit() }
func (t *sqliteTx) Rollback() error { return t.tx.Rollback() }

func (t *sqliteTx) querier() querier { return t.tx }

func (s *SQLiteStore) querier() querier { return s.db }

// Write operations

func (s *SQLiteStore) clearWithQuerier(ctx context.Context, q querier) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM book_fts"); err != nil {
		return fmt.Errorf("failed to clear chunks: %w", err)
	}
	if _, err := q.ExecContext(ctx, "DELETE FROM book_meta"); err != nil {
		return fmt.Errorf("failed to clear fingerprints: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	return s.inTx(ctx, func(q querier) error {
		return s.clearWithQuerier(ctx, q)
	})
}

func (s *SQLiteStore) replaceBookWithQuerier(ctx context.Context, q querier, bookID int64, filePath string, mtime float64, size int64, sections []types.Section) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM book_fts WHERE book_id = ?", bookID); err != nil {
		return fmt.Errorf("failed to delete old chunks: %w", err)
	}
	for _, section := range sections {
		_, err := q.ExecContext(ctx,
			"INSERT INTO book_fts(book_id, section, content) VALUES(?, ?, ?)",
			bookID, section.Title, section.Content)
		if err != nil {
			return fmt.Errorf("failed to insert chunk: %w", err)
		}
	}
	_, err := q.ExecContext(ctx,
		`INSERT OR REPLACE INTO book_meta(book_id, file_path, file_mtime, file_size, indexed_at)
		 VALUES(?, ?, ?, ?, ?)`,
		bookID, filePath, mtime, size, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to upsert fingerprint: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ReplaceBook(ctx context.Context, bookID int64, filePath string, mtime float64, size int64, sections []types.Section) error {
	return s.inTx(ctx, func(q querier) error {
		return s.replaceBookWithQuerier(ctx, q, bookID, filePath, mtime, size, sections)
	})
}

func (s *SQLiteStore) removeBookWithQuerier(ctx context.Context, q querier, bookID int64) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM book_fts WHERE book_id = ?", bookID); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	if _, err := q.ExecContext(ctx, "DELETE FROM book_meta WHERE book_id = ?", bookID); err != nil {
		return fmt.Errorf("failed to delete fingerprint: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RemoveBook(ctx context.Context, bookID int64) error {
	return s.inTx(ctx, func(q querier) error {
		return s.removeBookWithQuerier(ctx, q, bookID)
	})
}

// inTx runs fn inside a dedicated transaction so that multi-statement
// writes stay atomic when invoked outside a caller-managed Tx.
func (s *SQLiteStore) inTx(ctx context.Context, fn func(q querier) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Read operations

func (s *SQLiteStore) fingerprintsWithQuerier(ctx context.Context, q querier) (map[int64]Fingerprint, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT book_id, file_path, file_mtime, file_size FROM book_meta")
	if err != nil {
		return nil, fmt.Errorf("failed to load fingerprints: %w", err)
	}
	defer func() { _ = rows.Close() }()

	fps := make(map[int64]Fingerprint)
	for rows.Next() {
		var id int64
		var fp Fingerprint
		if err := rows.Scan(&id, &fp.FilePath, &fp.MTime, &fp.Size); err != nil {
			return nil, err
		}
		fps[id] = fp
	}
	return fps, rows.Err()
}

func (s *SQLiteStore) Fingerprints(ctx context.Context) (map[int64]Fingerprint, error) {
	return s.fingerprintsWithQuerier(ctx, s.querier())
}

func (s *SQLiteStore) statsWithQuerier(ctx context.Context, q querier) (*Stats, error) {
	stats := &Stats{}

	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM book_meta").Scan(&stats.BooksIndexed); err != nil {
		return nil, fmt.Errorf("failed to count books: %w", err)
	}
	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM book_fts").Scan(&stats.ChunksIndexed); err != nil {
		return nil, fmt.Errorf("failed to count chunks: %w", err)
	}
	if err := q.QueryRowContext(ctx, "SELECT COALESCE(SUM(length(content)), 0) FROM book_fts").Scan(&stats.TotalCharacters); err != nil {
		return nil, fmt.Errorf("failed to sum content length: %w", err)
	}
	var last sql.NullString
	if err := q.QueryRowContext(ctx, "SELECT MAX(indexed_at) FROM book_meta").Scan(&last); err != nil {
		return nil, fmt.Errorf("failed to read last indexed time: %w", err)
	}
	if last.Valid {
		stats.LastIndexedAt = last.String
	}

	if stats.BooksIndexed > 0 {
		stats.AvgChunksPerBook = float64(stats.ChunksIndexed) / float64(stats.BooksIndexed)
	}

	stats.DBSizeBytes = s.databaseSize(ctx, q)
	return stats, nil
}

func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	return s.statsWithQuerier(ctx, s.querier())
}

// databaseSize prefers the on-disk file size and falls back to the page
// count for in-memory databases.
func (s *SQLiteStore) databaseSize(ctx context.Context, q querier) int64 {
	if info, err := os.Stat(s.path); err == nil {
		return info.Size()
	}
	var pageCount, pageSize int64
	if err := q.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err != nil {
		return 0
	}
	if err := q.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize); err != nil {
		return 0
	}
	return pageCount * pageSize
}

// Transaction delegation

func (t *sqliteTx) Clear(ctx context.Context) error {
	return t.store.clearWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) ReplaceBook(ctx context.Context, bookID int64, filePath string, mtime float64, size int64, sections []types.Section) error {
	return t.store.replaceBookWithQuerier(ctx, t.querier(), bookID, filePath, mtime, size, sections)
}

func (t *sqliteTx) RemoveBook(ctx context.Context, bookID int64) error {
	return t.store.removeBookWithQuerier(ctx, t.querier(), bookID)
}

func (t *sqliteTx) Fingerprints(ctx context.Context) (map[int64]Fingerprint, error) {
	return t.store.fingerprintsWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) Stats(ctx context.Context) (*Stats, error) {
	return t.store.statsWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) SearchRaw(ctx context.Context, match string, fetchLimit int) ([]MatchRow, error) {
	return t.store.searchRawWithQuerier(ctx, t.querier(), match, fetchLimit)
}

func (t *sqliteTx) Close() error {
	// Transactions don't close the underlying connection.
	return nil
}

func (t *sqliteTx) BeginTx(ctx context.Context) (Tx, error) {
	return nil, fmt.Errorf("nested transactions not supported")
}

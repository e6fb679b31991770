package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"raine/internal/constants"
	"raine/internal/migrations"

	"github.com/mattn/go-sqlite3"
)

// ErrAlreadyProcessed is returned when an idempotency marker for the event
// already exists. The mutating transaction was rolled back.
var ErrAlreadyProcessed = errors.New("event already processed")

// Options tune the SQLite connection.
type Options struct {
	EncryptionSecret string
	BusyTimeoutMs    int
	MaxOpenConns     int
}

// Database is the transactional store backing every component.
type Database struct {
	db        *sql.DB
	encryptor *encryptor
}

// New opens (creating if needed) the SQLite file at dbPath and applies the
// embedded migrations. Every transaction starts with BEGIN IMMEDIATE so
// read-modify-write sequences are serialized.
func New(ctx context.Context, dbPath string, opts Options) (*Database, error) {
	if len(dbPath) == 0 || dbPath[0] == '\x00' {
		return nil, fmt.Errorf("invalid database path")
	}
	if opts.BusyTimeoutMs <= 0 {
		opts.BusyTimeoutMs = constants.DefaultDatabaseBusyTimeoutMs
	}
	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = constants.DefaultDatabaseMaxOpenConns
	}

	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_busy_timeout=%d&_journal_mode=WAL&_synchronous=NORMAL",
		dbPath, opts.BusyTimeoutMs)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(opts.MaxOpenConns)

	if err := db.PingContext(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to ping database: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := migrations.Apply(ctx, db); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize schema: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	enc, err := newEncryptor(opts.EncryptionSecret)
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize encryptor: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize encryptor: %w", err)
	}

	return &Database{db: db, encryptor: enc}, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

// Ping reports whether the store is reachable.
func (d *Database) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// commitTx is swapped in tests to simulate busy commits.
var commitTx = (*sql.Tx).Commit

// RunInTx runs fn inside one serializable transaction, retrying the whole
// transaction when SQLite reports the database busy or locked. fn may run
// more than once and must not have side effects outside tx.
func (d *Database) RunInTx(ctx context.Context, name string, fn func(tx *sql.Tx) error) error {
	return withLockRetry(ctx, func() error {
		tx, err := d.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if err := fn(tx); err != nil {
			return err
		}
		if err := commitTx(tx); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil
	}, name)
}

func isPrimaryKeyViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

// insertMarker writes a processed-event row inside tx. A duplicate event id
// yields ErrAlreadyProcessed.
func insertMarker(ctx context.Context, tx *sql.Tx, eventID, functionName string, now time.Time) error {
	_, err := tx.ExecContext(ctx, insertProcessedEventQuery, eventID, functionName, toMillis(now))
	if isPrimaryKeyViolation(err) {
		return ErrAlreadyProcessed
	}
	if err != nil {
		return fmt.Errorf("failed to write processed event marker: %w", err)
	}
	return nil
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// chunk splits n items into [start,end) ranges of at most size.
func chunk(n, size int, fn func(start, end int) error) error {
	if size <= 0 {
		size = constants.MaxBatchWriteSize
	}
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		if err := fn(start, end); err != nil {
			return err
		}
	}
	return nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, 0, n*2-1)
	for i := 0; i < n; i++ {
		if i > 0 {
			b = append(b, ',')
		}
		b = append(b, '?')
	}
	return string(b)
}

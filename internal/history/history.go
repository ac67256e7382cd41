package history

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// undefinedTable is the Postgres error code for a missing relation
const undefinedTable = "42P01"

// ErrNotMigrated is returned when the history table does not exist yet
var ErrNotMigrated = stderrors.New("query_history table does not exist; run the migrate command")

// Entry is one processed question
type Entry struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id,omitempty"`
	Question   string    `json:"question"`
	Dataset    string    `json:"dataset"`
	Intent     string    `json:"intent"`
	SQL        string    `json:"sql,omitempty"`
	RowCount   int       `json:"row_count"`
	Cached     bool      `json:"cached"`
	Outcome    string    `json:"outcome"`
	ErrorCode  string    `json:"error_code,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store persists and lists query history
type Store interface {
	Record(ctx context.Context, entry Entry) error
	// Recent lists the newest entries first. An empty userID lists every user.
	Recent(ctx context.Context, userID string, limit int) ([]Entry, error)
	Ping(ctx context.Context) error
	Close() error
}

// PostgresStore implements Store on PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens and pings the database behind dsn
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreWithDB wraps an existing connection pool
func NewPostgresStoreWithDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// DB exposes the connection pool for health checks
func (ps *PostgresStore) DB() *sql.DB {
	return ps.db
}

// Record inserts entry, assigning an ID and timestamp when missing
func (ps *PostgresStore) Record(ctx context.Context, entry Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO query_history
			(id, user_id, question, dataset, intent, sql_text, row_count, cached, outcome, error_code, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := ps.db.ExecContext(ctx, query,
		entry.ID, entry.UserID, entry.Question, entry.Dataset, entry.Intent, entry.SQL,
		entry.RowCount, entry.Cached, entry.Outcome, entry.ErrorCode, entry.DurationMs, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert history entry: %w", classify(err))
	}

	return nil
}

// Recent lists up to limit entries, newest first
func (ps *PostgresStore) Recent(ctx context.Context, userID string, limit int) ([]Entry, error) {
	query := `
		SELECT id, user_id, question, dataset, intent, sql_text, row_count, cached, outcome, error_code, duration_ms, created_at
		FROM query_history
		WHERE ($1 = '' OR user_id = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := ps.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", classify(err))
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Question, &e.Dataset, &e.Intent, &e.SQL,
			&e.RowCount, &e.Cached, &e.Outcome, &e.ErrorCode, &e.DurationMs, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history: %w", err)
	}

	return entries, nil
}

// Ping tests the database connection
func (ps *PostgresStore) Ping(ctx context.Context) error {
	return ps.db.PingContext(ctx)
}

// Close closes the database connection
func (ps *PostgresStore) Close() error {
	return ps.db.Close()
}

// classify maps well-known Postgres errors to package errors
func classify(err error) error {
	var pqErr *pq.Error
	if stderrors.As(err, &pqErr) && pqErr.Code == undefinedTable {
		return fmt.Errorf("%w: %s", ErrNotMigrated, pqErr.Message)
	}
	return err
}

// NoopStore discards history. It is used when history is disabled.
type NoopStore struct{}

// Record does nothing
func (NoopStore) Record(context.Context, Entry) error { return nil }

// Recent always returns an empty list
func (NoopStore) Recent(context.Context, string, int) ([]Entry, error) { return []Entry{}, nil }

// Ping always succeeds
func (NoopStore) Ping(context.Context) error { return nil }

// Close does nothing
func (NoopStore) Close() error { return nil }

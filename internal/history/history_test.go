package history

import (
	"context"
	stderrors "errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var historyColumns = []string{
	"id", "user_id", "question", "dataset", "intent", "sql_text",
	"row_count", "cached", "outcome", "error_code", "duration_ms", "created_at",
}

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStoreWithDB(db), mock
}

func TestPostgresStore_Record(t *testing.T) {
	store, mock := newMockStore(t)

	entry := Entry{
		UserID:     "alice",
		Question:   "текучесть в отделе HR",
		Dataset:    "sample.csv",
		Intent:     "DepartmentAttritionRate",
		SQL:        "SELECT 'HR' AS department",
		RowCount:   1,
		Outcome:    "success",
		DurationMs: 12,
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO query_history")).
		WithArgs(sqlmock.AnyArg(), "alice", entry.Question, "sample.csv", "DepartmentAttritionRate",
			entry.SQL, 1, false, "success", "", int64(12), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Record(context.Background(), entry))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Record_MissingTable(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO query_history")).
		WillReturnError(&pq.Error{Code: "42P01", Message: `relation "query_history" does not exist`})

	err := store.Record(context.Background(), Entry{Question: "q", Outcome: "success"})
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, ErrNotMigrated))
}

func TestPostgresStore_Recent(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows(historyColumns).
		AddRow("id-2", "alice", "сколько нанимать в отдел Sales", "sample.csv", "HiringRecommendationForDepartment",
			"WITH monthly AS ...", 1, true, "success", "", int64(3), now).
		AddRow("id-1", "alice", "hello", "sample.csv", "ListRows",
			"SELECT * FROM hr_data LIMIT 100;", 5, false, "success", "", int64(7), now.Add(-time.Minute))

	mock.ExpectQuery(regexp.QuoteMeta("FROM query_history")).
		WithArgs("alice", 10).
		WillReturnRows(rows)

	entries, err := store.Recent(context.Background(), "alice", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "id-2", entries[0].ID)
	assert.True(t, entries[0].Cached)
	assert.Equal(t, "ListRows", entries[1].Intent)
	assert.Equal(t, 5, entries[1].RowCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Recent_Empty(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM query_history")).
		WithArgs("", 50).
		WillReturnRows(sqlmock.NewRows(historyColumns))

	entries, err := store.Recent(context.Background(), "", 50)
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}

func TestNoopStore(t *testing.T) {
	var store Store = NoopStore{}
	ctx := context.Background()

	assert.NoError(t, store.Record(ctx, Entry{}))
	entries, err := store.Recent(ctx, "", 10)
	assert.NoError(t, err)
	assert.Empty(t, entries)
	assert.NoError(t, store.Ping(ctx))
	assert.NoError(t, store.Close())
}

type failingStore struct {
	NoopStore
	calls int
}

func (f *failingStore) Record(context.Context, Entry) error {
	f.calls++
	return stderrors.New("connection refused")
}

func TestBreakerStore_OpensAfterConsecutiveFailures(t *testing.T) {
	inner := &failingStore{}
	store := NewBreakerStore(inner, "history-test", DefaultCircuitBreakerConfig)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.Error(t, store.Record(ctx, Entry{}))
	}
	assert.Equal(t, gobreaker.StateOpen, store.State())

	// Open breaker rejects without calling the database
	err := store.Record(ctx, Entry{})
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, gobreaker.ErrOpenState))
	assert.Equal(t, 3, inner.calls)
}

func TestBreakerStore_PassesThrough(t *testing.T) {
	store := NewBreakerStore(NoopStore{}, "history-test", DefaultCircuitBreakerConfig)
	ctx := context.Background()

	assert.NoError(t, store.Record(ctx, Entry{}))
	entries, err := store.Recent(ctx, "", 5)
	assert.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, gobreaker.StateClosed, store.State())
}

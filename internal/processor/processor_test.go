package processor

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VenGr0/hr-analytics-bot/internal/cache"
	"github.com/VenGr0/hr-analytics-bot/internal/dataset"
	"github.com/VenGr0/hr-analytics-bot/internal/errors"
	"github.com/VenGr0/hr-analytics-bot/internal/history"
	"github.com/VenGr0/hr-analytics-bot/internal/observability"
)

const fixtureCSV = `Employee ID,Department,Age,Service,Hire Date,Termination Date
1,HR,24,1,2021-01-10,2022-03-15
2,HR,31,2,2020-05-01,
3,HR,38,1,2019-02-01,2022-03-20
4,Sales,45,1,2019-07-20,2021-11-30
5,Sales,52,3,2018-02-11,
6,Sales,23,1,2020-01-15,2021-11-02
7,Sales,33,1,2020-03-10,2022-01-12
8,IT,29,1,2022-09-01,2023-01-05
`

// memStore is an in-memory history.Store
type memStore struct {
	mu      sync.Mutex
	entries []history.Entry
}

func (m *memStore) Record(_ context.Context, e history.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *memStore) Recent(_ context.Context, userID string, limit int) ([]history.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []history.Entry{}
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if userID == "" || m.entries[i].UserID == userID {
			out = append(out, m.entries[i])
		}
	}
	return out, nil
}

func (m *memStore) Ping(context.Context) error { return nil }
func (m *memStore) Close() error { return nil }

func (m *memStore) all() []history.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]history.Entry(nil), m.entries...)
}

type testEnv struct {
	qp       *QueryProcessor
	dir      string
	store    *memStore
	redis    *miniredis.Miniredis
	datasets *dataset.Registry
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sample.csv"), []byte(fixtureCSV), 0o644))

	logger := observability.NewLogger("processor-test").WithOutput(&bytes.Buffer{})
	reg := dataset.NewRegistry(dir, logger)
	t.Cleanup(func() { _ = reg.Close() })

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := &memStore{}
	qp := NewQueryProcessor(reg, cache.New(client, time.Minute), store, ProcessorConfig{
		DefaultDataset:     "sample.csv",
		EnableSafetyChecks: true,
	})
	qp.SetLogger(logger)

	return &testEnv{qp: qp, dir: dir, store: store, redis: mr, datasets: reg}
}

func (env *testEnv) ask(t *testing.T, question string) *QueryResponse {
	t.Helper()
	resp, err := env.qp.ProcessQuery(context.Background(), &QueryRequest{Text: question})
	require.NoError(t, err)
	return resp
}

func TestNewQueryProcessor_Defaults(t *testing.T) {
	qp := NewQueryProcessor(nil, nil, nil, ProcessorConfig{})

	assert.Equal(t, MaxResultRowsDefault, qp.config.MaxResultRows)
	assert.Equal(t, DefaultMaxQuestionLength, qp.config.MaxQuestionLength)
	assert.Equal(t, 30*time.Second, qp.config.Timeout)
	assert.Equal(t, "sample.csv", qp.config.DefaultDataset)
	assert.IsType(t, history.NoopStore{}, qp.History())
	assert.False(t, qp.safetyChecker.InjectionChecks)
}

func TestTranslate(t *testing.T) {
	qp := NewQueryProcessor(nil, nil, nil, DefaultProcessorConfig())

	tr, err := qp.Translate(context.Background(), "текучесть в отделе HR")
	require.NoError(t, err)
	assert.Equal(t, IntentDepartmentAttrition, tr.Intent)
	assert.Equal(t, "attrition+department", tr.Rule)
	assert.Equal(t, "HR", tr.Params["department"])
	assert.Contains(t, tr.SQL, "'HR'")
	assert.True(t, tr.Signals.Attrition)
}

func TestTranslate_Rejections(t *testing.T) {
	qp := NewQueryProcessor(nil, nil, nil, DefaultProcessorConfig())

	tests := []struct {
		name     string
		question string
		code     errors.ErrorCode
	}{
		{"empty question", "  ", errors.ErrCodeInvalidInput},
		{"forbidden word as department", "текучесть в отделе drop", errors.ErrCodeUnsafeQuery},
		{"forbidden word as english department", "attrition in the delete department", errors.ErrCodeUnsafeQuery},
		{"forbidden word prefixing a department", "текучесть в отделе dropship", errors.ErrCodeUnsafeQuery},
		{"forbidden word inside a department", "attrition in the Updates department", errors.ErrCodeUnsafeQuery},
		{"plural forbidden word as department", "текучесть в отделе insertions", errors.ErrCodeUnsafeQuery},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := qp.Translate(context.Background(), tt.question)
			require.Error(t, err)
			assert.Equal(t, tt.code, errors.CodeOf(err))
		})
	}
}

func TestProcessQuery_Intents(t *testing.T) {
	env := newTestEnv(t)

	t.Run("department attrition", func(t *testing.T) {
		resp := env.ask(t, "текучесть в отделе HR")
		assert.Equal(t, IntentDepartmentAttrition, resp.Intent)
		require.Len(t, resp.Rows, 1)
		row := resp.Rows[0]
		assert.Equal(t, "HR", row["department"])
		assert.Equal(t, int64(3), row["total_count"])
		assert.Equal(t, int64(2), row["terminated_count"])
		assert.InDelta(t, 66.67, row["attrition_rate"], 0.001)
		assert.Equal(t, "Maximum attrition rate observed: 66.67%", resp.Insight)
		assert.Equal(t, "sample.csv", resp.Dataset)
		assert.False(t, resp.Cached)
	})

	// the lower-cased alias resolves to the same query, so it is served from cache
	t.Run("department alias shares the cached result", func(t *testing.T) {
		resp := env.ask(t, "текучесть в отделе hr")
		require.Len(t, resp.Rows, 1)
		assert.True(t, resp.Cached)
		assert.Equal(t, "HR", resp.Params["department"])
	})

	t.Run("hiring recommendation", func(t *testing.T) {
		resp := env.ask(t, "сколько нанимать в отдел Sales")
		assert.Equal(t, IntentHiringRecommendation, resp.Intent)
		require.Len(t, resp.Rows, 1)
		row := resp.Rows[0]
		assert.Equal(t, int64(2), row["months_with_terminations"])
		assert.InDelta(t, 1.5, row["avg_monthly_attrition"], 0.001)
		assert.Equal(t, int64(2), row["recommended_hiring_target"])
		assert.Equal(t, VisualizationMetrics, resp.Visualization.VisualizationType)
	})

	t.Run("empty department attrition", func(t *testing.T) {
		resp := env.ask(t, "текучесть в отделе Finance")
		require.Len(t, resp.Rows, 1)
		assert.Equal(t, int64(0), resp.Rows[0]["total_count"])
		assert.Nil(t, resp.Rows[0]["attrition_rate"])
		assert.Equal(t, "Attrition rate is undefined: no employees matched", resp.Insight)
	})

	t.Run("empty department hiring", func(t *testing.T) {
		resp := env.ask(t, "сколько нанимать в отдел Finance")
		require.Len(t, resp.Rows, 1)
		assert.Equal(t, int64(0), resp.Rows[0]["recommended_hiring_target"])
	})

	t.Run("annual explicit year", func(t *testing.T) {
		resp := env.ask(t, "текучесть за 2022 год")
		assert.Equal(t, IntentAnnualAttrition, resp.Intent)
		require.Len(t, resp.Rows, 1)
		row := resp.Rows[0]
		assert.Equal(t, int64(2022), row["year"])
		assert.Equal(t, int64(6), row["headcount"])
		assert.Equal(t, int64(3), row["terminations"])
		assert.InDelta(t, 50.0, row["attrition_rate"], 0.001)
		assert.Equal(t, VisualizationBar, resp.Visualization.VisualizationType)
	})

	t.Run("annual year without data", func(t *testing.T) {
		resp := env.ask(t, "текучесть за 1990 год")
		require.Len(t, resp.Rows, 1)
		assert.Equal(t, int64(0), resp.Rows[0]["headcount"])
		assert.Nil(t, resp.Rows[0]["attrition_rate"])
	})

	t.Run("monthly trend", func(t *testing.T) {
		resp := env.ask(t, "текучесть")
		assert.Equal(t, IntentMonthlyTrend, resp.Intent)
		require.Len(t, resp.Rows, 8)
		assert.Equal(t, "2018-02", resp.Rows[0]["ym"])
		assert.Equal(t, VisualizationLine, resp.Visualization.VisualizationType)
	})

	t.Run("list rows", func(t *testing.T) {
		resp := env.ask(t, "hello")
		assert.Equal(t, IntentListRows, resp.Intent)
		assert.Equal(t, "SELECT * FROM hr_data LIMIT 100;", resp.SQL)
		assert.Len(t, resp.Rows, 8)
		assert.Equal(t, "8 rows, 6 columns", resp.Summary)
	})

	t.Run("age and service default", func(t *testing.T) {
		resp := env.ask(t, "возраст и стаж")
		assert.Equal(t, IntentAgeServiceDefault, resp.Intent)
		require.Len(t, resp.Rows, 3)

		var groups []interface{}
		for _, row := range resp.Rows {
			groups = append(groups, row["age_group"])
			assert.InDelta(t, 100.0, row["service_percentage"], 0.001)
		}
		assert.Equal(t, []interface{}{"<25", "25-34", "45-54"}, groups)
		assert.Equal(t, VisualizationPie, resp.Visualization.VisualizationType)
	})
}

func TestProcessQuery_Truncates(t *testing.T) {
	env := newTestEnv(t)
	env.qp.resultProcessor.maxRows = 3

	resp := env.ask(t, "hello")
	assert.Len(t, resp.Rows, 3)
	assert.Equal(t, 8, resp.TotalRows)
	assert.True(t, resp.Truncated)
}

func TestProcessQuery_Errors(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(env.dir, "broken.csv"),
		[]byte("Employee ID,Department\n1,HR\n"), 0o644))

	tests := []struct {
		name    string
		request *QueryRequest
		code    errors.ErrorCode
	}{
		{"unsafe department", &QueryRequest{Text: "текучесть в отделе drop"}, errors.ErrCodeUnsafeQuery},
		{"missing dataset", &QueryRequest{Text: "hello", DatasetPath: "missing.csv"}, errors.ErrCodeDatasetNotFound},
		{"missing columns", &QueryRequest{Text: "hello", DatasetPath: "broken.csv"}, errors.ErrCodeSchemaMismatch},
		{"empty question", &QueryRequest{Text: ""}, errors.ErrCodeInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.qp.ProcessQuery(context.Background(), tt.request)
			require.Error(t, err)
			assert.Equal(t, tt.code, errors.CodeOf(err))
		})
	}
}

func TestProcessQuery_Cache(t *testing.T) {
	env := newTestEnv(t)

	first := env.ask(t, "текучесть в отделе HR")
	assert.False(t, first.Cached)

	second := env.ask(t, "текучесть в отделе HR")
	assert.True(t, second.Cached)
	assert.Equal(t, first.TotalRows, second.TotalRows)
	assert.Equal(t, first.SQL, second.SQL)
	assert.Equal(t, first.Fingerprint, second.Fingerprint)

	// A new dataset version gets a new fingerprint and so a new key
	updated := fixtureCSV + "9,HR,41,2,2023-02-01,2023-06-01\n"
	require.NoError(t, os.WriteFile(filepath.Join(env.dir, "sample.csv"), []byte(updated), 0o644))

	third := env.ask(t, "текучесть в отделе HR")
	assert.False(t, third.Cached)
	assert.NotEqual(t, first.Fingerprint, third.Fingerprint)
	assert.Equal(t, int64(4), third.Rows[0]["total_count"])
}

func TestProcessQuery_CacheHitKeepsCurrentTranslation(t *testing.T) {
	env := newTestEnv(t)

	withDept := env.ask(t, "возраст и стаж в отделе Sales")
	assert.False(t, withDept.Cached)
	assert.Equal(t, IntentAgeServiceWithDepartment, withDept.Intent)
	require.NotNil(t, withDept.Entities.Department)

	// Defaults to Sales and service code 1, so the rendered query is identical
	byDefault := env.ask(t, "возраст и стаж")
	assert.True(t, byDefault.Cached)
	assert.Equal(t, withDept.SQL, byDefault.SQL)
	assert.Equal(t, IntentAgeServiceDefault, byDefault.Intent)
	assert.Nil(t, byDefault.Entities.Department)
	assert.Nil(t, byDefault.Entities.ServiceCode)
	assert.Equal(t, "возраст и стаж", byDefault.Question)
	assert.Equal(t, "Sales", byDefault.Params["department"])
	assert.NotNil(t, byDefault.Visualization)
}

func TestProcessQuery_CacheDownIsAMiss(t *testing.T) {
	env := newTestEnv(t)
	env.redis.Close()

	resp := env.ask(t, "текучесть в отделе HR")
	assert.False(t, resp.Cached)
	assert.Len(t, resp.Rows, 1)
}

func TestProcessQuery_RecordsHistory(t *testing.T) {
	env := newTestEnv(t)
	ctx := observability.WithUserID(context.Background(), "user-42")

	_, err := env.qp.ProcessQuery(ctx, &QueryRequest{Text: "текучесть в отделе HR"})
	require.NoError(t, err)
	_, err = env.qp.ProcessQuery(ctx, &QueryRequest{Text: "текучесть в отделе drop"})
	require.Error(t, err)

	entries := env.store.all()
	require.Len(t, entries, 2)

	ok := entries[0]
	assert.Equal(t, "user-42", ok.UserID)
	assert.Equal(t, string(IntentDepartmentAttrition), ok.Intent)
	assert.Equal(t, observability.OutcomeSuccess, ok.Outcome)
	assert.Equal(t, 1, ok.RowCount)
	assert.Equal(t, "sample.csv", ok.Dataset)
	assert.Contains(t, ok.SQL, "'HR'")

	rejected := entries[1]
	assert.Equal(t, observability.OutcomeUnsafe, rejected.Outcome)
	assert.Equal(t, string(errors.ErrCodeUnsafeQuery), rejected.ErrorCode)
	assert.Empty(t, rejected.SQL)
}

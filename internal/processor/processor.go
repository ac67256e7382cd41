package processor

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/VenGr0/hr-analytics-bot/internal/cache"
	"github.com/VenGr0/hr-analytics-bot/internal/dataset"
	"github.com/VenGr0/hr-analytics-bot/internal/errors"
	"github.com/VenGr0/hr-analytics-bot/internal/history"
	"github.com/VenGr0/hr-analytics-bot/internal/observability"
)

// QueryRequest represents an incoming natural language question
type QueryRequest struct {
	Text        string `json:"text" binding:"required"`
	DatasetPath string `json:"dataset_path,omitempty"`
}

// QueryResponse represents the processed question and its rows
type QueryResponse struct {
	Question      string                 `json:"question"`
	SQL           string                 `json:"sql"`
	Intent        Intent                 `json:"intent"`
	Entities      Entities               `json:"entities"`
	Params        map[string]interface{} `json:"params,omitempty"`
	Dataset       string                 `json:"dataset"`
	Fingerprint   string                 `json:"fingerprint,omitempty"`
	Columns       []string               `json:"columns"`
	Rows          []dataset.Row          `json:"rows"`
	TotalRows     int                    `json:"total_rows"`
	Truncated     bool                   `json:"truncated"`
	Summary       string                 `json:"summary"`
	Insight       string                 `json:"insight,omitempty"`
	Visualization *ResultMetadata        `json:"visualization,omitempty"`
	Cached        bool                   `json:"cached"`
	ExecutionTime int64                  `json:"execution_time_ms"`
}

// Translation is a classified question and its rendered query, before execution
type Translation struct {
	Question string                 `json:"question"`
	Intent   Intent                 `json:"intent"`
	Rule     string                 `json:"rule"`
	Entities Entities               `json:"entities"`
	Signals  Signals                `json:"signals"`
	SQL      string                 `json:"sql"`
	Params   map[string]interface{} `json:"params,omitempty"`

	query *RenderedQuery
}

// Executor runs parameterized queries against a dataset handle
type Executor interface {
	Execute(ctx context.Context, handle string, q dataset.Query) (*dataset.Result, error)
	Fingerprint(ctx context.Context, handle string) (string, error)
}

// ProcessorConfig holds configuration for the query processor
type ProcessorConfig struct {
	MaxResultRows      int
	MaxQuestionLength  int
	Timeout            time.Duration
	DefaultDataset     string
	EnableSafetyChecks bool
}

// DefaultProcessorConfig returns the settings used when nothing is configured
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		MaxResultRows:      MaxResultRowsDefault,
		MaxQuestionLength:  DefaultMaxQuestionLength,
		Timeout:            30 * time.Second,
		DefaultDataset:     "sample.csv",
		EnableSafetyChecks: true,
	}
}

// QueryProcessor is the main service struct
type QueryProcessor struct {
	executor          Executor
	cache             *cache.Cache
	history           history.Store
	safetyChecker     *SafetyChecker
	intentClassifier  *IntentClassifier
	renderer          *TemplateRenderer
	resultProcessor   *ResultProcessor
	metadataGenerator *MetadataGenerator
	logger            *observability.Logger
	healthChecker     *observability.HealthChecker
	config            ProcessorConfig
}

// NewQueryProcessor creates a new query processor instance. The cache and
// history store are optional.
func NewQueryProcessor(executor Executor, responseCache *cache.Cache, store history.Store, config ProcessorConfig) *QueryProcessor {
	defaults := DefaultProcessorConfig()
	if config.MaxResultRows <= 0 {
		config.MaxResultRows = defaults.MaxResultRows
	}
	if config.MaxQuestionLength <= 0 {
		config.MaxQuestionLength = defaults.MaxQuestionLength
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.DefaultDataset == "" {
		config.DefaultDataset = defaults.DefaultDataset
	}

	if store == nil {
		store = history.NoopStore{}
	}

	safetyChecker := NewSafetyChecker()
	safetyChecker.MaxQuestionLength = config.MaxQuestionLength
	safetyChecker.InjectionChecks = config.EnableSafetyChecks

	return &QueryProcessor{
		executor:          executor,
		cache:             responseCache,
		history:           store,
		safetyChecker:     safetyChecker,
		intentClassifier:  NewIntentClassifier(),
		renderer:          NewTemplateRenderer(),
		resultProcessor:   &ResultProcessor{maxRows: config.MaxResultRows},
		metadataGenerator: NewMetadataGenerator(),
		logger:            observability.NewLogger("query-processor"),
		config:            config,
	}
}

// SetLogger replaces the processor logger
func (qp *QueryProcessor) SetLogger(logger *observability.Logger) {
	qp.logger = logger
}

// SetHealthChecker sets the health checker for the processor
func (qp *QueryProcessor) SetHealthChecker(healthChecker *observability.HealthChecker) {
	qp.healthChecker = healthChecker
}

// History returns the history store
func (qp *QueryProcessor) History() history.Store {
	return qp.history
}

// Translate classifies the question and renders its query without running it
func (qp *QueryProcessor) Translate(ctx context.Context, question string) (*Translation, error) {
	_, span := observability.StartSpan(ctx, "processor.translate")
	var err error
	defer func() { observability.EndSpan(span, err) }()

	if err = qp.safetyChecker.ValidateQuestion(question); err != nil {
		return nil, err
	}

	classification := qp.intentClassifier.Classify(question)
	span.SetAttributes(
		attribute.String("intent", string(classification.Intent)),
		attribute.String("rule", classification.Rule),
	)

	if err = qp.safetyChecker.ValidateEntities(classification.Entities); err != nil {
		observability.RecordSafetyViolation("injection")
		return nil, err
	}

	rendered, renderErr := qp.renderer.Render(classification)
	if renderErr != nil {
		err = errors.NewQueryRenderError(renderErr, string(classification.Intent))
		return nil, err
	}

	if err = qp.safetyChecker.ValidateQuery(rendered); err != nil {
		observability.RecordSafetyViolation("forbidden_keyword")
		return nil, err
	}

	return &Translation{
		Question: question,
		Intent:   classification.Intent,
		Rule:     classification.Rule,
		Entities: classification.Entities,
		Signals:  classification.Signals,
		SQL:      rendered.Text,
		Params:   rendered.Params,
		query:    rendered,
	}, nil
}

// ProcessQuery translates the question and runs it against the requested dataset
func (qp *QueryProcessor) ProcessQuery(ctx context.Context, req *QueryRequest) (*QueryResponse, error) {
	start := time.Now()
	handle := req.DatasetPath
	if handle == "" {
		handle = qp.config.DefaultDataset
	}

	ctx, span := observability.StartSpan(ctx, "processor.process",
		attribute.String("dataset", handle))

	qp.logger.Info(ctx, "Processing query", map[string]interface{}{
		"question": req.Text,
		"dataset":  handle,
	})

	var (
		translation   *Translation
		response      *QueryResponse
		processingErr error
	)

	defer func() {
		duration := time.Since(start)
		intent := ""
		if translation != nil {
			intent = string(translation.Intent)
		}

		outcome := observability.OutcomeSuccess
		switch {
		case errors.HasCode(processingErr, errors.ErrCodeUnsafeQuery):
			outcome = observability.OutcomeUnsafe
		case processingErr != nil:
			outcome = observability.OutcomeError
		}
		cached := response != nil && response.Cached
		observability.RecordQueryMetrics(intent, outcome, duration, cached)

		qp.recordHistory(ctx, req.Text, handle, translation, response, processingErr, duration)

		if processingErr != nil {
			qp.logger.Error(ctx, "Query processing failed", processingErr, map[string]interface{}{
				"question":    req.Text,
				"intent":      intent,
				"duration_ms": duration.Milliseconds(),
				"error_code":  string(errors.CodeOf(processingErr)),
			})
		} else {
			qp.logger.Info(ctx, "Query processed successfully", map[string]interface{}{
				"question":    req.Text,
				"intent":      intent,
				"duration_ms": duration.Milliseconds(),
				"cache_hit":   cached,
				"rows":        response.TotalRows,
			})
		}
		observability.EndSpan(span, processingErr)
	}()

	translation, processingErr = qp.Translate(ctx, req.Text)
	if processingErr != nil {
		return nil, processingErr
	}

	// Loading here surfaces missing files and schema problems before the cache is consulted
	fingerprint, err := qp.executor.Fingerprint(ctx, handle)
	if err != nil {
		processingErr = err
		return nil, processingErr
	}

	cacheKey := cache.ResultKey(fingerprint, translation.query.Text)
	if cached, ok := qp.getCachedResult(ctx, cacheKey); ok {
		response = qp.fromCache(cached, req.Text, translation)
		response.ExecutionTime = time.Since(start).Milliseconds()
		return response, nil
	}

	execCtx, cancel := context.WithTimeout(ctx, qp.config.Timeout)
	defer cancel()

	execCtx, execSpan := observability.StartSpan(execCtx, "dataset.execute",
		attribute.String("intent", string(translation.Intent)))
	result, err := qp.executor.Execute(execCtx, handle, dataset.Query{
		SQL:    translation.query.SQL,
		Params: translation.query.Params,
	})
	observability.EndSpan(execSpan, err)
	if err != nil {
		processingErr = err
		return nil, processingErr
	}

	results := qp.resultProcessor.ProcessResults(result)

	response = &QueryResponse{
		Question:      req.Text,
		SQL:           translation.SQL,
		Intent:        translation.Intent,
		Entities:      translation.Entities,
		Params:        translation.Params,
		Dataset:       handle,
		Fingerprint:   result.Fingerprint,
		Columns:       results.Columns,
		Rows:          results.Rows,
		TotalRows:     results.TotalRows,
		Truncated:     results.Truncated,
		Summary:       results.Summary,
		Insight:       results.Insight,
		Visualization: qp.metadataGenerator.GenerateMetadata(translation.Intent, results),
		ExecutionTime: time.Since(start).Milliseconds(),
	}

	// The dataset may have been replaced since the lookup; key by what was actually queried
	qp.cacheResult(ctx, cache.ResultKey(result.Fingerprint, translation.query.Text), response)

	return response, nil
}

// fromCache reuses cached rows for the current question. Different intents and
// entity sets can render the same query text, so everything derived from the
// question comes from this translation, never from the cached entry.
func (qp *QueryProcessor) fromCache(cached *QueryResponse, question string, translation *Translation) *QueryResponse {
	cached.Cached = true
	cached.Question = question
	cached.SQL = translation.SQL
	cached.Intent = translation.Intent
	cached.Entities = translation.Entities
	cached.Params = translation.Params
	cached.Visualization = qp.metadataGenerator.GenerateMetadata(translation.Intent, &QueryResults{
		Columns:   cached.Columns,
		Rows:      cached.Rows,
		TotalRows: cached.TotalRows,
		Truncated: cached.Truncated,
		Summary:   cached.Summary,
		Insight:   cached.Insight,
	})
	return cached
}

// getCachedResult retrieves a cached response; cache failures count as misses
func (qp *QueryProcessor) getCachedResult(ctx context.Context, key string) (*QueryResponse, bool) {
	if qp.cache == nil {
		return nil, false
	}

	var response QueryResponse
	hit, err := qp.cache.Get(ctx, key, &response)
	if err != nil {
		qp.logger.Warn(ctx, "Failed to read cached result", map[string]interface{}{
			"error": errors.Wrap(err, errors.ErrCodeCacheRead, "cache read failed").Error(),
		})
		return nil, false
	}
	if !hit {
		return nil, false
	}

	qp.logger.Debug(ctx, "Cache hit for query", map[string]interface{}{"key": key})
	return &response, true
}

// cacheResult stores a response; failures are logged and otherwise ignored
func (qp *QueryProcessor) cacheResult(ctx context.Context, key string, response *QueryResponse) {
	if qp.cache == nil {
		return
	}

	if err := qp.cache.Set(ctx, key, response); err != nil {
		qp.logger.Warn(ctx, "Failed to cache query result", map[string]interface{}{
			"error": errors.Wrap(err, errors.ErrCodeCacheWrite, "cache write failed").Error(),
		})
	}
}

// recordHistory persists the outcome of one question; failures never reach the caller
func (qp *QueryProcessor) recordHistory(ctx context.Context, question, handle string, t *Translation, resp *QueryResponse, procErr error, duration time.Duration) {
	if _, disabled := qp.history.(history.NoopStore); disabled {
		return
	}

	entry := history.Entry{
		UserID:     observability.GetUserID(ctx),
		Question:   question,
		Dataset:    handle,
		Outcome:    observability.OutcomeSuccess,
		DurationMs: duration.Milliseconds(),
	}
	if t != nil {
		entry.Intent = string(t.Intent)
		entry.SQL = t.SQL
	}
	if resp != nil {
		entry.RowCount = resp.TotalRows
		entry.Cached = resp.Cached
	}
	if procErr != nil {
		entry.Outcome = observability.OutcomeError
		if errors.HasCode(procErr, errors.ErrCodeUnsafeQuery) {
			entry.Outcome = observability.OutcomeUnsafe
		}
		entry.ErrorCode = string(errors.CodeOf(procErr))
	}

	err := qp.history.Record(ctx, entry)
	observability.RecordHistoryWrite(err)
	if err != nil {
		qp.logger.Warn(ctx, "Failed to record query history", map[string]interface{}{
			"error": errors.Wrap(err, errors.ErrCodeHistoryWrite, "history write failed").Error(),
		})
	}
}

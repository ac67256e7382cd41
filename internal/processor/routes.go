package processor

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/VenGr0/hr-analytics-bot/internal/dataset"
	"github.com/VenGr0/hr-analytics-bot/internal/errors"
	"github.com/VenGr0/hr-analytics-bot/internal/observability"
)

const maxHistoryLimit = 500

// AuthMiddleware is an interface for authentication middleware
type AuthMiddleware interface {
	Middleware() gin.HandlerFunc
}

// DatasetStore lists and accepts CSV uploads
type DatasetStore interface {
	List() ([]dataset.Info, error)
	Save(ctx context.Context, name string, src io.Reader, maxBytes int64) (dataset.Info, error)
}

// RouteConfig wires the collaborators the HTTP API needs. Auth and
// AuthRoutes are optional; without them every endpoint is open.
type RouteConfig struct {
	Datasets       DatasetStore
	Auth           AuthMiddleware
	AuthRoutes     func(*gin.RouterGroup)
	IndexHTML      []byte
	MaxUploadBytes int64
	HistoryLimit   int
	Logger         *observability.Logger
}

// SetupRoutes configures the HTTP API, health and metrics endpoints, and the web form
func (qp *QueryProcessor) SetupRoutes(rc RouteConfig) *gin.Engine {
	logger := rc.Logger
	if logger == nil {
		logger = qp.logger
	}
	if rc.HistoryLimit <= 0 {
		rc.HistoryLimit = 50
	}
	if rc.MaxUploadBytes <= 0 {
		rc.MaxUploadBytes = 50 << 20
	}

	r := gin.New()
	r.Use(
		observability.RecoveryMiddleware(logger),
		observability.RequestLoggingMiddleware(logger),
		observability.TracingMiddleware(),
		observability.MetricsMiddleware(),
		observability.CORSWithLogging(logger),
	)

	r.GET("/health", qp.handleHealth)
	r.GET("/metrics", observability.MetricsEndpoint())

	if len(rc.IndexHTML) > 0 {
		r.GET("/", func(c *gin.Context) {
			c.Data(http.StatusOK, "text/html; charset=utf-8", rc.IndexHTML)
		})
	}

	api := r.Group("/api/v1")
	if rc.Auth != nil {
		api.Use(rc.Auth.Middleware())
	}
	{
		api.POST("/query", qp.handleQuery)
		api.POST("/nlquery", qp.handleQuery)
		api.POST("/translate", qp.handleTranslate)
		api.GET("/intents", qp.handleIntents)
		api.GET("/history", qp.handleHistory(rc.HistoryLimit))

		if rc.Datasets != nil {
			api.GET("/datasets", handleListDatasets(rc.Datasets))
			api.POST("/datasets", handleUploadDataset(rc.Datasets, rc.MaxUploadBytes))
		}
	}

	if rc.AuthRoutes != nil {
		rc.AuthRoutes(api)
	}

	return r
}

func (qp *QueryProcessor) handleHealth(c *gin.Context) {
	if qp.healthChecker == nil {
		c.JSON(http.StatusOK, gin.H{
			"status":  observability.HealthStatusHealthy,
			"service": "hr-analytics-bot",
		})
		return
	}
	observability.HealthHandler(qp.healthChecker)(c)
}

func (qp *QueryProcessor) handleQuery(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.NewInvalidInputError("request body", err.Error()))
		return
	}

	response, err := qp.ProcessQuery(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

func (qp *QueryProcessor) handleTranslate(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.NewInvalidInputError("request body", err.Error()))
		return
	}

	translation, err := qp.Translate(c.Request.Context(), req.Text)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, translation)
}

func (qp *QueryProcessor) handleIntents(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rules": Rules()})
}

// handleHistory lists the caller's own questions; admins may pass ?user= or
// leave it empty to see everyone's
func (qp *QueryProcessor) handleHistory(defaultLimit int) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("user_id")
		if userID == "" {
			respondError(c, errors.NewNotAuthenticatedError())
			return
		}
		if isAdmin(c) {
			userID = c.Query("user")
		}

		limit := defaultLimit
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				respondError(c, errors.NewInvalidInputError("limit", "must be a positive integer"))
				return
			}
			limit = n
		}
		if limit > maxHistoryLimit {
			limit = maxHistoryLimit
		}

		entries, err := qp.history.Recent(c.Request.Context(), userID, limit)
		if err != nil {
			respondError(c, errors.NewHistoryReadError(err))
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"queries": entries,
			"count":   len(entries),
		})
	}
}

func handleListDatasets(store DatasetStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		infos, err := store.List()
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"datasets": infos})
	}
}

func handleUploadDataset(store DatasetStore, maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		fh, err := c.FormFile("file")
		if err != nil {
			respondError(c, errors.NewMissingRequiredError("file"))
			return
		}

		name := c.PostForm("name")
		if name == "" {
			name = fh.Filename
		}

		f, err := fh.Open()
		if err != nil {
			respondError(c, errors.NewInvalidInputError("file", err.Error()))
			return
		}
		defer f.Close()

		info, err := store.Save(c.Request.Context(), name, f, maxBytes)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusCreated, info)
	}
}

func isAdmin(c *gin.Context) bool {
	for _, role := range c.GetStringSlice("roles") {
		if role == "admin" {
			return true
		}
	}
	return false
}

func respondError(c *gin.Context, err error) {
	c.JSON(errors.HTTPStatus(err), errors.Response(err))
}

package auth

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/VenGr0/hr-analytics-bot/internal/errors"
)

// AuthHandlers provides HTTP handlers for authentication endpoints
type AuthHandlers struct {
	authManager *AuthManager
}

// NewAuthHandlers creates new auth handlers
func NewAuthHandlers(authManager *AuthManager) *AuthHandlers {
	return &AuthHandlers{
		authManager: authManager,
	}
}

// SetupRoutes registers the auth endpoints on a group already guarded by Middleware
func (ah *AuthHandlers) SetupRoutes(r *gin.RouterGroup) {
	am := ah.authManager

	r.POST("/auth/login", ah.Login)
	r.POST("/auth/logout", ah.Logout)
	r.GET("/auth/me", am.RequireUser(), ah.GetCurrentUser)
	r.GET("/auth/status", ah.GetAuthStatus)

	keys := r.Group("/api-keys", am.RequireUser())
	{
		keys.GET("", ah.ListAPIKeys)
		keys.POST("", ah.CreateAPIKey)
		keys.DELETE("/:id", ah.RevokeAPIKey)
	}

	admin := r.Group("/admin", am.RequireUser(), am.RequireRole(RoleAdmin))
	{
		admin.GET("/users", ah.ListUsers)
		admin.POST("/users", ah.CreateUser)
		admin.GET("/rate-limit-stats", ah.GetRateLimitStats)
	}
}

// LoginRequest represents a login request
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login handles user login
func (ah *AuthHandlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.NewInvalidInputError("body", err.Error()))
		return
	}

	result, err := ah.authManager.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	if result.SessionID != "" {
		c.SetCookie(
			sessionCookie,
			result.SessionID,
			int(ah.authManager.config.SessionExpiry.Seconds()),
			"/",
			"",
			c.Request.TLS != nil,
			true,
		)
	}

	c.JSON(http.StatusOK, result)
}

// Logout revokes the caller's token and session
func (ah *AuthHandlers) Logout(c *gin.Context) {
	sessionID, _ := c.Cookie(sessionCookie)

	if err := ah.authManager.Logout(c.Request.Context(), bearerToken(c), sessionID); err != nil {
		respondError(c, err)
		return
	}

	c.SetCookie(sessionCookie, "", -1, "/", "", c.Request.TLS != nil, true)
	c.JSON(http.StatusOK, gin.H{"message": "logged out successfully"})
}

// GetCurrentUser returns the current authenticated user
func (ah *AuthHandlers) GetCurrentUser(c *gin.Context) {
	user, _ := GetCurrentUser(c)
	c.JSON(http.StatusOK, user)
}

// GetAuthStatus returns authentication status and configuration
func (ah *AuthHandlers) GetAuthStatus(c *gin.Context) {
	cfg := ah.authManager.config
	status := gin.H{
		"allow_anonymous":  cfg.AllowAnonymous,
		"rate_limit":       cfg.RateLimit,
		"jwt_expiry":       cfg.JWTExpiry.String(),
		"session_expiry":   cfg.SessionExpiry.String(),
		"sessions_enabled": ah.authManager.sessions != nil,
		"authenticated":    false,
	}

	// status is outside the middleware, so resolve credentials here
	if user, _, err := ah.authManager.authenticateRequest(c); err == nil {
		status["authenticated"] = true
		status["user"] = user
	}

	c.JSON(http.StatusOK, status)
}

// CreateAPIKeyRequest represents a request to create an API key
type CreateAPIKeyRequest struct {
	Name      string `json:"name" binding:"required"`
	RateLimit int    `json:"rate_limit"`
	ExpiresIn string `json:"expires_in"` // e.g. "30d", "1y", "720h"
}

// CreateAPIKey creates a new API key for the current user
func (ah *AuthHandlers) CreateAPIKey(c *gin.Context) {
	var req CreateAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.NewInvalidInputError("body", err.Error()))
		return
	}

	expiresIn, err := parseDuration(req.ExpiresIn)
	if err != nil || expiresIn <= 0 {
		respondError(c, errors.NewInvalidInputError("expires_in", "use a positive duration such as 30d, 2w, 1y or 720h"))
		return
	}

	rateLimit := req.RateLimit
	if rateLimit <= 0 {
		rateLimit = ah.authManager.config.RateLimit
	}

	userID, _ := GetCurrentUserID(c)
	apiKey, err := ah.authManager.CreateAPIKey(userID, req.Name, rateLimit, expiresIn)
	if err != nil {
		respondError(c, err)
		return
	}

	// the plaintext key is only ever returned here
	c.JSON(http.StatusCreated, apiKey)
}

// ListAPIKeys returns all API keys for the current user
func (ah *AuthHandlers) ListAPIKeys(c *gin.Context) {
	userID, _ := GetCurrentUserID(c)
	c.JSON(http.StatusOK, gin.H{"api_keys": ah.authManager.ListAPIKeys(userID)})
}

// RevokeAPIKey revokes one of the current user's API keys
func (ah *AuthHandlers) RevokeAPIKey(c *gin.Context) {
	userID, _ := GetCurrentUserID(c)

	if err := ah.authManager.RevokeAPIKey(userID, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "API key revoked successfully"})
}

// CreateUserRequest represents a request to create a user
type CreateUserRequest struct {
	Username string   `json:"username" binding:"required"`
	Password string   `json:"password" binding:"required"`
	Roles    []string `json:"roles"`
}

// CreateUser creates a new user (admin only)
func (ah *AuthHandlers) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.NewInvalidInputError("body", err.Error()))
		return
	}

	user, err := ah.authManager.CreateUser(req.Username, req.Password, req.Roles)
	if err != nil {
		if errors.CodeOf(err) == "" {
			c.JSON(http.StatusConflict, errors.Response(err))
			return
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, user)
}

// ListUsers returns all users (admin only)
func (ah *AuthHandlers) ListUsers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"users": ah.authManager.ListUsers()})
}

// GetRateLimitStats returns rate limiting statistics (admin only)
func (ah *AuthHandlers) GetRateLimitStats(c *gin.Context) {
	c.JSON(http.StatusOK, ah.authManager.RateLimitStats())
}

func respondError(c *gin.Context, err error) {
	c.JSON(errors.HTTPStatus(err), errors.Response(err))
}

// parseDuration parses duration strings like "30d", "2w", "1y", "720h"
func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 30 * 24 * time.Hour, nil
	}

	units := map[string]time.Duration{
		"d": 24 * time.Hour,
		"w": 7 * 24 * time.Hour,
		"y": 365 * 24 * time.Hour,
	}
	for suffix, unit := range units {
		if n, ok := strings.CutSuffix(s, suffix); ok {
			count, err := strconv.Atoi(n)
			if err != nil {
				return 0, err
			}
			return time.Duration(count) * unit, nil
		}
	}

	return time.ParseDuration(s)
}

package auth

import (
	stderrors "errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/VenGr0/hr-analytics-bot/internal/errors"
	"github.com/VenGr0/hr-analytics-bot/internal/observability"
)

const sessionCookie = "session_id"

var errNoCredentials = stderrors.New("no credentials presented")

// Middleware returns a Gin middleware for authentication and rate limiting
func (am *AuthManager) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if shouldSkipAuth(c.Request.URL.Path) {
			c.Next()
			return
		}

		user, apiKey, err := am.authenticateRequest(c)

		limit := am.config.RateLimit
		if apiKey != nil && apiKey.RateLimit > 0 {
			limit = apiKey.RateLimit
		}
		if !am.limiter.Allow(clientID(c, user), limit) {
			abortWithError(c, errors.NewRateLimitedError(limit))
			return
		}

		if err != nil {
			if am.config.AllowAnonymous {
				c.Next()
				return
			}
			abortWithError(c, errors.NewNotAuthenticatedError())
			return
		}

		c.Set("user", user)
		c.Set("user_id", user.ID)
		c.Set("username", user.Username)
		c.Set("roles", user.Roles)
		c.Request = c.Request.WithContext(observability.WithUserID(c.Request.Context(), user.ID))

		c.Next()
	}
}

// RequireRole returns a middleware that checks if user has required role
func (am *AuthManager) RequireRole(requiredRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, exists := GetCurrentUser(c)
		if !exists {
			abortWithError(c, errors.NewNotAuthenticatedError())
			return
		}

		if !user.HasRole(requiredRoles...) {
			abortWithError(c, errors.NewInsufficientPermissionsError(requiredRoles))
			return
		}

		c.Next()
	}
}

// RequireUser rejects anonymous requests even when anonymous access is allowed
func (am *AuthManager) RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, exists := GetCurrentUser(c); !exists {
			abortWithError(c, errors.NewNotAuthenticatedError())
			return
		}
		c.Next()
	}
}

// authenticateRequest tries bearer token, API key, then session cookie
func (am *AuthManager) authenticateRequest(c *gin.Context) (*User, *APIKey, error) {
	if token := bearerToken(c); token != "" {
		claims, err := am.ValidateJWTToken(c.Request.Context(), token)
		if err != nil {
			return nil, nil, err
		}
		user, err := am.GetUser(claims.UserID)
		return user, nil, err
	}

	if key := c.GetHeader("X-API-Key"); key != "" {
		return am.ValidateAPIKey(key)
	}

	if sessionID, err := c.Cookie(sessionCookie); err == nil && sessionID != "" {
		user, err := am.ValidateSession(c.Request.Context(), sessionID)
		return user, nil, err
	}

	return nil, nil, errNoCredentials
}

func bearerToken(c *gin.Context) string {
	token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

// shouldSkipAuth checks if a path should skip authentication
func shouldSkipAuth(path string) bool {
	if path == "/" {
		return true
	}

	skipPaths := []string{
		"/health",
		"/metrics",
		"/api/v1/auth/login",
		"/api/v1/auth/status",
	}
	for _, skipPath := range skipPaths {
		if strings.HasPrefix(path, skipPath) {
			return true
		}
	}

	return false
}

// clientID gets a unique identifier for rate limiting
func clientID(c *gin.Context, user *User) string {
	if user != nil {
		return "user:" + user.ID
	}
	return "ip:" + c.ClientIP()
}

func abortWithError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(errors.HTTPStatus(err), errors.Response(err))
}

// GetCurrentUser returns the current authenticated user from context
func GetCurrentUser(c *gin.Context) (*User, bool) {
	value, exists := c.Get("user")
	if !exists {
		return nil, false
	}

	user, ok := value.(*User)
	return user, ok
}

// GetCurrentUserID returns the current user ID from context
func GetCurrentUserID(c *gin.Context) (string, bool) {
	value, exists := c.Get("user_id")
	if !exists {
		return "", false
	}

	id, ok := value.(string)
	return id, ok
}

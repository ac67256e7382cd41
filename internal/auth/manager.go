// Package auth authenticates analysts with passwords, JWTs, sessions, and API keys.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/VenGr0/hr-analytics-bot/internal/errors"
	"github.com/VenGr0/hr-analytics-bot/internal/observability"
	"github.com/VenGr0/hr-analytics-bot/internal/session"
)

const (
	tokenIssuer  = "hr-analytics-bot"
	apiKeyPrefix = "hrb_"

	// RoleAdmin may manage users and view limiter statistics
	RoleAdmin = "admin"
	// RoleUser may ask questions and manage its own API keys
	RoleUser = "user"
)

// userNamespace derives stable user IDs from usernames so every replica agrees on them
var userNamespace = uuid.MustParse("6f1c1d2e-3b0a-4f4e-9a53-5a2c8e1d7b10")

// dummyHash is compared against when the username is unknown so lookups take the same time
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("hr-analytics-bot"), bcrypt.MinCost)

// User represents an analyst allowed to use the bot
type User struct {
	ID           string   `json:"id"`
	Username     string   `json:"username"`
	PasswordHash string   `json:"-"`
	Roles        []string `json:"roles"`
	Active       bool     `json:"active"`
}

// HasRole reports whether the user holds any of the given roles
func (u *User) HasRole(roles ...string) bool {
	for _, required := range roles {
		for _, role := range u.Roles {
			if role == required {
				return true
			}
		}
	}
	return false
}

// APIKey represents a long-lived credential for scripts
type APIKey struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Key        string    `json:"key,omitempty"` // plaintext, only returned on creation
	HashedKey  string    `json:"-"`
	UserID     string    `json:"user_id"`
	RateLimit  int       `json:"rate_limit"`
	ExpiresAt  time.Time `json:"expires_at"`
	CreatedAt  time.Time `json:"created_at"`
	LastUsedAt time.Time `json:"last_used_at,omitempty"`
	Active     bool      `json:"active"`
}

// Claims represents JWT claims
type Claims struct {
	UserID   string   `json:"user_id"`
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
	jwt.RegisteredClaims
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret      string
	JWTExpiry      time.Duration
	SessionExpiry  time.Duration
	RateLimit      int
	AllowAnonymous bool

	// Users are "username:bcrypt-hash[:role|role]" entries
	Users []string
}

// LoginResult is what a successful login hands back to the client
type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	SessionID string    `json:"-"`
	User      *User     `json:"user"`
}

// AuthManager handles authentication and user management
type AuthManager struct {
	config         AuthConfig
	users          map[string]*User   // userID -> User
	userByUsername map[string]*User   // username -> User
	apiKeys        map[string]*APIKey // hashedKey -> APIKey
	sessions       *session.Manager   // nil when Redis is disabled
	limiter        *RateLimiter
	logger         *observability.Logger
	mu             sync.RWMutex
}

// NewAuthManager creates an authentication manager seeded with the configured users.
// sessions may be nil, in which case cookie sessions and token revocation are unavailable.
func NewAuthManager(config AuthConfig, sessions *session.Manager) (*AuthManager, error) {
	if config.JWTExpiry == 0 {
		config.JWTExpiry = 24 * time.Hour
	}
	if config.SessionExpiry == 0 {
		config.SessionExpiry = 7 * 24 * time.Hour
	}
	if config.JWTSecret == "" {
		config.JWTSecret = generateRandomString(32)
	}

	am := &AuthManager{
		config:         config,
		users:          make(map[string]*User),
		userByUsername: make(map[string]*User),
		apiKeys:        make(map[string]*APIKey),
		sessions:       sessions,
		limiter:        NewRateLimiter(),
		logger:         observability.NewLogger("auth"),
	}

	for _, spec := range config.Users {
		user, err := ParseUserSpec(spec)
		if err != nil {
			am.limiter.Stop()
			return nil, err
		}
		if err := am.addUser(user); err != nil {
			am.limiter.Stop()
			return nil, err
		}
	}

	return am, nil
}

// SetLogger replaces the default component logger
func (am *AuthManager) SetLogger(logger *observability.Logger) {
	am.logger = logger
}

// Config returns the effective configuration
func (am *AuthManager) Config() AuthConfig {
	return am.config
}

// Close stops the rate limiter's cleanup loop
func (am *AuthManager) Close() {
	am.limiter.Stop()
}

// ParseUserSpec parses a "username:bcrypt-hash[:role|role]" entry
func ParseUserSpec(spec string) (*User, error) {
	parts := strings.SplitN(spec, ":", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("invalid user entry %q: expected username:bcrypt-hash[:roles]", redactSpec(spec))
	}
	if _, err := bcrypt.Cost([]byte(parts[1])); err != nil {
		return nil, fmt.Errorf("invalid password hash for user %q: %w", parts[0], err)
	}

	roles := []string{RoleUser}
	if len(parts) == 3 && parts[2] != "" {
		roles = roles[:0]
		for _, role := range strings.Split(parts[2], "|") {
			if role = strings.TrimSpace(role); role != "" {
				roles = append(roles, role)
			}
		}
	}

	return &User{
		ID:           userID(parts[0]),
		Username:     parts[0],
		PasswordHash: parts[1],
		Roles:        roles,
		Active:       true,
	}, nil
}

// CreateUser hashes password and registers a new user
func (am *AuthManager) CreateUser(username, password string, roles []string) (*User, error) {
	if username == "" || strings.Contains(username, ":") {
		return nil, errors.NewInvalidInputError("username", "must be non-empty and must not contain ':'")
	}
	if len(password) < 8 {
		return nil, errors.NewInvalidInputError("password", "must be at least 8 characters")
	}
	if len(roles) == 0 {
		roles = []string{RoleUser}
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &User{
		ID:           userID(username),
		Username:     username,
		PasswordHash: string(hashed),
		Roles:        roles,
		Active:       true,
	}
	if err := am.addUser(user); err != nil {
		return nil, err
	}
	return user, nil
}

func (am *AuthManager) addUser(user *User) error {
	am.mu.Lock()
	defer am.mu.Unlock()

	if _, exists := am.userByUsername[user.Username]; exists {
		return fmt.Errorf("user already exists: %s", user.Username)
	}
	am.users[user.ID] = user
	am.userByUsername[user.Username] = user
	return nil
}

// GetUser retrieves a user by ID
func (am *AuthManager) GetUser(id string) (*User, error) {
	am.mu.RLock()
	defer am.mu.RUnlock()

	user, exists := am.users[id]
	if !exists {
		return nil, fmt.Errorf("user not found: %s", id)
	}
	return user, nil
}

// ListUsers returns all users ordered by username
func (am *AuthManager) ListUsers() []*User {
	am.mu.RLock()
	defer am.mu.RUnlock()

	users := make([]*User, 0, len(am.users))
	for _, user := range am.users {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users
}

// Authenticate checks a username and password pair
func (am *AuthManager) Authenticate(username, password string) (*User, error) {
	am.mu.RLock()
	user, exists := am.userByUsername[username]
	am.mu.RUnlock()

	if !exists {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, errors.NewInvalidCredentialsError()
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, errors.NewInvalidCredentialsError()
	}
	if !user.Active {
		return nil, errors.NewInvalidCredentialsError()
	}
	return user, nil
}

// Login authenticates the user, issues a JWT, and opens a session when Redis is available
func (am *AuthManager) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	user, err := am.Authenticate(username, password)
	if err != nil {
		observability.RecordAuthAttempt(false)
		am.logger.Warn(ctx, "Login rejected", map[string]interface{}{
			"username": username,
		})
		return nil, err
	}

	token, claims, err := am.CreateJWTToken(user)
	if err != nil {
		return nil, errors.NewTokenCreationError(err)
	}

	result := &LoginResult{
		Token:     token,
		ExpiresAt: claims.ExpiresAt.Time,
		User:      user,
	}

	if am.sessions != nil {
		sess, err := am.sessions.Create(ctx, user.ID, user.Username, claims.ID, user.Roles)
		if err != nil {
			return nil, errors.NewSessionCreationError(err)
		}
		result.SessionID = sess.ID
	}

	observability.RecordAuthAttempt(true)
	am.logger.Info(ctx, "User logged in", map[string]interface{}{
		"user_id":  user.ID,
		"username": user.Username,
	})

	return result, nil
}

// Logout revokes the bearer token and the session cookie, whichever are present
func (am *AuthManager) Logout(ctx context.Context, tokenString, sessionID string) error {
	if am.sessions == nil {
		return nil
	}

	if tokenString != "" {
		if claims, err := am.parseToken(tokenString); err == nil && claims.ID != "" {
			if err := am.sessions.RevokeToken(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
				return fmt.Errorf("failed to revoke token: %w", err)
			}
		}
	}

	if sessionID != "" {
		sess, err := am.sessions.Get(ctx, sessionID)
		if err == nil && sess.TokenID != "" {
			until := sess.CreatedAt.Add(am.config.JWTExpiry)
			if err := am.sessions.RevokeToken(ctx, sess.TokenID, until); err != nil {
				return fmt.Errorf("failed to revoke session token: %w", err)
			}
		}
		if err := am.sessions.Delete(ctx, sessionID); err != nil {
			return fmt.Errorf("failed to delete session: %w", err)
		}
	}

	return nil
}

// CreateJWTToken creates a signed JWT for a user
func (am *AuthManager) CreateJWTToken(user *User) (string, *Claims, error) {
	now := time.Now()

	claims := &Claims{
		UserID:   user.ID,
		Username: user.Username,
		Roles:    user.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(am.config.JWTExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
			Subject:   user.ID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(am.config.JWTSecret))
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, claims, nil
}

func (am *AuthManager) parseToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(am.config.JWTSecret), nil
	}, jwt.WithIssuer(tokenIssuer))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// ValidateJWTToken validates a JWT and checks that it was not revoked by a logout
func (am *AuthManager) ValidateJWTToken(ctx context.Context, tokenString string) (*Claims, error) {
	claims, err := am.parseToken(tokenString)
	if err != nil {
		return nil, err
	}

	if am.sessions != nil && claims.ID != "" {
		revoked, err := am.sessions.IsTokenRevoked(ctx, claims.ID)
		if err != nil {
			return nil, err
		}
		if revoked {
			return nil, fmt.Errorf("token has been revoked")
		}
	}

	user, err := am.GetUser(claims.UserID)
	if err != nil {
		return nil, err
	}
	if !user.Active {
		return nil, fmt.Errorf("user is inactive")
	}

	return claims, nil
}

// ValidateSession looks up a session cookie and returns its user
func (am *AuthManager) ValidateSession(ctx context.Context, sessionID string) (*User, error) {
	if am.sessions == nil {
		return nil, fmt.Errorf("sessions are disabled")
	}

	sess, err := am.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("invalid session: %w", err)
	}

	user, err := am.GetUser(sess.UserID)
	if err != nil {
		return nil, err
	}
	if !user.Active {
		return nil, fmt.Errorf("user is inactive")
	}

	if err := am.sessions.Refresh(ctx, sessionID); err != nil {
		am.logger.Warn(ctx, "Failed to refresh session", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return user, nil
}

// CreateAPIKey creates a new API key for a user
func (am *AuthManager) CreateAPIKey(userID, name string, rateLimit int, expiresIn time.Duration) (*APIKey, error) {
	am.mu.Lock()
	defer am.mu.Unlock()

	if _, exists := am.users[userID]; !exists {
		return nil, fmt.Errorf("user not found: %s", userID)
	}

	key := generateAPIKey()
	now := time.Now()
	apiKey := &APIKey{
		ID:        uuid.New().String(),
		Name:      name,
		Key:       key,
		HashedKey: hashAPIKey(key),
		UserID:    userID,
		RateLimit: rateLimit,
		CreatedAt: now,
		ExpiresAt: now.Add(expiresIn),
		Active:    true,
	}

	// the stored copy never keeps the plaintext
	stored := *apiKey
	stored.Key = ""
	am.apiKeys[apiKey.HashedKey] = &stored

	return apiKey, nil
}

// ValidateAPIKey validates an API key and returns the associated user
func (am *AuthManager) ValidateAPIKey(key string) (*User, *APIKey, error) {
	am.mu.Lock()
	defer am.mu.Unlock()

	apiKey, exists := am.apiKeys[hashAPIKey(key)]
	if !exists {
		return nil, nil, fmt.Errorf("invalid API key")
	}
	if !apiKey.Active {
		return nil, nil, fmt.Errorf("API key is inactive")
	}
	if time.Now().After(apiKey.ExpiresAt) {
		return nil, nil, fmt.Errorf("API key has expired")
	}

	user, exists := am.users[apiKey.UserID]
	if !exists {
		return nil, nil, fmt.Errorf("user not found for API key")
	}
	if !user.Active {
		return nil, nil, fmt.Errorf("user is inactive")
	}

	apiKey.LastUsedAt = time.Now()
	return user, apiKey, nil
}

// RevokeAPIKey deactivates one of the user's API keys
func (am *AuthManager) RevokeAPIKey(userID, keyID string) error {
	am.mu.Lock()
	defer am.mu.Unlock()

	for _, apiKey := range am.apiKeys {
		if apiKey.ID == keyID && apiKey.UserID == userID {
			apiKey.Active = false
			return nil
		}
	}
	return errors.NewNotFoundError("API key", keyID)
}

// ListAPIKeys returns the user's API keys, newest first
func (am *AuthManager) ListAPIKeys(userID string) []*APIKey {
	am.mu.RLock()
	defer am.mu.RUnlock()

	keys := make([]*APIKey, 0)
	for _, apiKey := range am.apiKeys {
		if apiKey.UserID == userID {
			keyCopy := *apiKey
			keys = append(keys, &keyCopy)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].CreatedAt.After(keys[j].CreatedAt) })
	return keys
}

// CleanupExpired removes expired API keys; sessions expire through their Redis TTL
func (am *AuthManager) CleanupExpired() int {
	am.mu.Lock()
	defer am.mu.Unlock()

	now := time.Now()
	removed := 0
	for hash, apiKey := range am.apiKeys {
		if now.After(apiKey.ExpiresAt) {
			delete(am.apiKeys, hash)
			removed++
		}
	}
	return removed
}

// RateLimitStats returns the limiter's per-client counters
func (am *AuthManager) RateLimitStats() map[string]interface{} {
	return am.limiter.GetStats()
}

func userID(username string) string {
	return uuid.NewSHA1(userNamespace, []byte(username)).String()
}

func redactSpec(spec string) string {
	if i := strings.Index(spec, ":"); i >= 0 {
		return spec[:i] + ":***"
	}
	return spec
}

// generateRandomString generates a random hex string from length random bytes
func generateRandomString(length int) string {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}

// generateAPIKey generates a new API key with the "hrb_" prefix
func generateAPIKey() string {
	return apiKeyPrefix + generateRandomString(32)
}

// hashAPIKey hashes an API key using SHA256
func hashAPIKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

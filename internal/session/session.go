// Package session stores login sessions and revoked tokens in Redis.
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	sessionPrefix = "hrbot:session:"
	revokedPrefix = "hrbot:revoked:"
	sessionIDLen  = 32
)

var (
	// ErrNotFound is returned when the session does not exist or has expired in Redis
	ErrNotFound = errors.New("session not found")
	// ErrExpired is returned when the stored session is past its expiry time
	ErrExpired = errors.New("session expired")
)

// Session represents user session data
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Roles     []string  `json:"roles"`
	TokenID   string    `json:"token_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Manager handles session storage and retrieval
type Manager struct {
	redis  *redis.Client
	expiry time.Duration
}

// NewManager creates a new session manager
func NewManager(redisClient *redis.Client, expiry time.Duration) *Manager {
	return &Manager{
		redis:  redisClient,
		expiry: expiry,
	}
}

// Expiry returns the lifetime given to new sessions
func (m *Manager) Expiry() time.Duration {
	return m.expiry
}

// Create stores a new session bound to the JWT identified by tokenID
func (m *Manager) Create(ctx context.Context, userID, username, tokenID string, roles []string) (*Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := time.Now()
	sess := &Session{
		ID:        sessionID,
		UserID:    userID,
		Username:  username,
		Roles:     roles,
		TokenID:   tokenID,
		CreatedAt: now,
		ExpiresAt: now.Add(m.expiry),
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := m.redis.Set(ctx, sessionPrefix+sessionID, data, m.expiry).Err(); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	return sess, nil
}

// Get retrieves a session by ID
func (m *Manager) Get(ctx context.Context, sessionID string) (*Session, error) {
	data, err := m.redis.Get(ctx, sessionPrefix+sessionID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	if time.Now().After(sess.ExpiresAt) {
		_ = m.Delete(ctx, sessionID)
		return nil, ErrExpired
	}

	return &sess, nil
}

// Delete removes a session
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	return m.redis.Del(ctx, sessionPrefix+sessionID).Err()
}

// Refresh extends the session expiry
func (m *Manager) Refresh(ctx context.Context, sessionID string) error {
	return m.redis.Expire(ctx, sessionPrefix+sessionID, m.expiry).Err()
}

// RevokeToken marks a JWT ID as revoked until the token would have expired anyway
func (m *Manager) RevokeToken(ctx context.Context, tokenID string, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	return m.redis.Set(ctx, revokedPrefix+tokenID, "1", ttl).Err()
}

// IsTokenRevoked reports whether the JWT ID was revoked by a logout
func (m *Manager) IsTokenRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := m.redis.Exists(ctx, revokedPrefix+tokenID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check token revocation: %w", err)
	}
	return n > 0, nil
}

// generateSessionID generates a cryptographically secure random session ID
func generateSessionID() (string, error) {
	b := make([]byte, sessionIDLen)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

package history

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
)

// CircuitBreakerConfig defines circuit breaker configuration for the history store
type CircuitBreakerConfig struct {
	MaxRequests   uint32        // Max requests allowed in half-open state
	Interval      time.Duration // Window for counting failures
	Timeout       time.Duration // Duration circuit stays open before trying recovery
	ReadyToTrip   func(counts gobreaker.Counts) bool
	OnStateChange func(name string, from gobreaker.State, to gobreaker.State)
}

// DefaultCircuitBreakerConfig trips after repeated write failures so a slow
// database cannot hold up query responses
var DefaultCircuitBreakerConfig = CircuitBreakerConfig{
	MaxRequests: 1,
	Interval:    30 * time.Second,
	Timeout:     30 * time.Second,
	ReadyToTrip: func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= 3
	},
}

// BreakerStore wraps a Store with circuit breaker protection
type BreakerStore struct {
	store   Store
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerStore creates a circuit breaker wrapped store
func NewBreakerStore(store Store, name string, config CircuitBreakerConfig) *BreakerStore {
	settings := gobreaker.Settings{
		Name:          name,
		MaxRequests:   config.MaxRequests,
		Interval:      config.Interval,
		Timeout:       config.Timeout,
		ReadyToTrip:   config.ReadyToTrip,
		OnStateChange: config.OnStateChange,
	}

	return &BreakerStore{
		store:   store,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// Record wraps the store's Record with circuit breaker protection
func (bs *BreakerStore) Record(ctx context.Context, entry Entry) error {
	_, err := bs.breaker.Execute(func() (interface{}, error) {
		return nil, bs.store.Record(ctx, entry)
	})
	if err != nil {
		return fmt.Errorf("circuit breaker: %w", err)
	}
	return nil
}

// Recent wraps the store's Recent with circuit breaker protection
func (bs *BreakerStore) Recent(ctx context.Context, userID string, limit int) ([]Entry, error) {
	result, err := bs.breaker.Execute(func() (interface{}, error) {
		return bs.store.Recent(ctx, userID, limit)
	})
	if err != nil {
		return nil, fmt.Errorf("circuit breaker: %w", err)
	}
	return result.([]Entry), nil
}

// Ping bypasses the breaker so health checks see the real state
func (bs *BreakerStore) Ping(ctx context.Context) error {
	return bs.store.Ping(ctx)
}

// Close closes the wrapped store
func (bs *BreakerStore) Close() error {
	return bs.store.Close()
}

// State returns the current state of the circuit breaker
func (bs *BreakerStore) State() gobreaker.State {
	return bs.breaker.State()
}

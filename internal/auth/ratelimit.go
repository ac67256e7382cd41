package auth

import (
	"sync"
	"time"
)

const (
	rateWindow      = time.Minute
	cleanupInterval = 5 * time.Minute
)

// ClientLimiter tracks requests for a single client
type ClientLimiter struct {
	requests    []time.Time
	mutex       sync.Mutex
	lastRequest time.Time
}

// RateLimiter provides in-memory rate limiting with a one-minute sliding window
type RateLimiter struct {
	clients  map[string]*ClientLimiter
	mutex    sync.RWMutex
	stop     chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter creates a rate limiter and starts its cleanup loop
func NewRateLimiter() *RateLimiter {
	rl := &RateLimiter{
		clients: make(map[string]*ClientLimiter),
		stop:    make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Allow records a request and reports whether it fits in the window.
// A non-positive limit disables limiting.
func (rl *RateLimiter) Allow(clientID string, limitPerMinute int) bool {
	if limitPerMinute <= 0 {
		return true
	}

	rl.mutex.Lock()
	client, exists := rl.clients[clientID]
	if !exists {
		client = &ClientLimiter{}
		rl.clients[clientID] = client
	}
	rl.mutex.Unlock()

	return client.allow(time.Now(), limitPerMinute)
}

func (cl *ClientLimiter) allow(now time.Time, limitPerMinute int) bool {
	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	cl.dropBefore(now.Add(-rateWindow))
	cl.lastRequest = now

	if len(cl.requests) >= limitPerMinute {
		return false
	}

	cl.requests = append(cl.requests, now)
	return true
}

func (cl *ClientLimiter) dropBefore(windowStart time.Time) {
	kept := cl.requests[:0]
	for _, req := range cl.requests {
		if req.After(windowStart) {
			kept = append(kept, req)
		}
	}
	cl.requests = kept
}

// cleanup removes clients idle for longer than the cleanup interval
func (rl *RateLimiter) cleanup(now time.Time) {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	cutoff := now.Add(-cleanupInterval)
	for clientID, client := range rl.clients {
		client.mutex.Lock()
		idle := client.lastRequest.Before(cutoff)
		client.mutex.Unlock()
		if idle {
			delete(rl.clients, clientID)
		}
	}
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup(time.Now())
		case <-rl.stop:
			return
		}
	}
}

// Stop ends the cleanup loop; it is safe to call more than once
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// GetStats returns rate limiting statistics
func (rl *RateLimiter) GetStats() map[string]interface{} {
	rl.mutex.RLock()
	defer rl.mutex.RUnlock()

	clientStats := make([]map[string]interface{}, 0, len(rl.clients))
	for clientID, client := range rl.clients {
		client.mutex.Lock()
		clientStats = append(clientStats, map[string]interface{}{
			"client_id":     clientID,
			"request_count": len(client.requests),
			"last_request":  client.lastRequest,
		})
		client.mutex.Unlock()
	}

	return map[string]interface{}{
		"total_clients": len(rl.clients),
		"clients":       clientStats,
	}
}

package ratelimit

import (
	"errors"
	"sync"
	"time"

	"github.com/Harshitk-cp/sketchhive/internal/config"
	"golang.org/x/time/rate"
)

// Errors returned by the rate limiter
var (
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
)

// clientLimiter holds the token bucket for a specific client
type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter throttles inbound messages per client
type Limiter struct {
	enabled         bool
	limit           rate.Limit
	burstSize       int
	expirationTime  time.Duration
	cleanupInterval time.Duration
	clients         map[string]*clientLimiter
	mu              sync.Mutex
	stopCleanup     chan struct{}
	stopOnce        sync.Once
}

// New creates a new rate limiter and starts its cleanup goroutine
func New(cfg config.RateLimitConfig) *Limiter {
	l := &Limiter{
		enabled:         cfg.Enabled,
		limit:           rate.Limit(cfg.MessagesPerSecond),
		burstSize:       cfg.BurstSize,
		expirationTime:  cfg.ExpirationTime,
		cleanupInterval: cfg.CleanupInterval,
		clients:         make(map[string]*clientLimiter),
		stopCleanup:     make(chan struct{}),
	}
	if l.expirationTime <= 0 {
		l.expirationTime = 10 * time.Minute
	}
	if l.cleanupInterval <= 0 {
		l.cleanupInterval = 5 * time.Minute
	}

	if l.enabled {
		go l.cleanup()
	}

	return l
}

// Allow consumes one token for clientID
func (l *Limiter) Allow(clientID string) error {
	if !l.enabled {
		return nil
	}

	l.mu.Lock()
	client, exists := l.clients[clientID]
	if !exists {
		client = &clientLimiter{limiter: rate.NewLimiter(l.limit, l.burstSize)}
		l.clients[clientID] = client
	}
	client.lastSeen = time.Now()
	l.mu.Unlock()

	if !client.limiter.Allow() {
		return ErrRateLimitExceeded
	}
	return nil
}

// Reset forgets the bucket of a specific client
func (l *Limiter) Reset(clientID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.clients, clientID)
}

// Len returns the number of tracked clients
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.clients)
}

// cleanup periodically removes expired limiters
func (l *Limiter) cleanup() {
	ticker := time.NewTicker(l.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.removeExpired(time.Now())
		case <-l.stopCleanup:
			return
		}
	}
}

// removeExpired removes limiters that haven't been used for a while
func (l *Limiter) removeExpired(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for clientID, client := range l.clients {
		if now.Sub(client.lastSeen) > l.expirationTime {
			delete(l.clients, clientID)
		}
	}
}

// Stop stops the cleanup goroutine
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() {
		close(l.stopCleanup)
	})
}

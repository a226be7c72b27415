package server

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/docsentry/docsentry/internal/config"
)

// clientLimiter applies per-client token bucket rate limiting to the
// redaction API. Clients are keyed by IP.
type clientLimiter struct {
	config  config.RateLimitConfig
	clients map[string]*clientBucket
	mu      sync.Mutex
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// newClientLimiter creates a rate limiter from configuration
func newClientLimiter(cfg config.RateLimitConfig) *clientLimiter {
	return &clientLimiter{
		config:  cfg,
		clients: make(map[string]*clientBucket),
	}
}

// Allow checks if a request from the given client IP is allowed
func (cl *clientLimiter) Allow(clientIP string) bool {
	if !cl.config.Enabled {
		return true
	}
	return cl.getBucket(clientIP).limiter.Allow()
}

// getBucket gets or creates the token bucket for a client IP
func (cl *clientLimiter) getBucket(clientIP string) *clientBucket {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	bucket, exists := cl.clients[clientIP]
	if !exists {
		perSecond := rate.Limit(float64(cl.config.RequestsPerMin) / 60.0)
		bucket = &clientBucket{
			limiter: rate.NewLimiter(perSecond, cl.config.Burst),
		}
		cl.clients[clientIP] = bucket
	}
	bucket.lastSeen = time.Now()

	return bucket
}

// cleanup removes buckets for clients not seen within the last hour
func (cl *clientLimiter) cleanup() {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	cutoff := time.Now().Add(-time.Hour)
	for ip, bucket := range cl.clients {
		if bucket.lastSeen.Before(cutoff) {
			delete(cl.clients, ip)
		}
	}
}

// StartCleanupRoutine starts a background routine that drops idle buckets
func (cl *clientLimiter) StartCleanupRoutine() {
	go func() {
		ticker := time.NewTicker(30 * time.Minute)
		defer ticker.Stop()

		for range ticker.C {
			cl.cleanup()
		}
	}()
}

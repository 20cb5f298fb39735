// Package ratelimit bounds how often a caller may hit one of dbdriverd's
// admin HTTP endpoints. The admin surface is a side channel for operator
// tooling (dbmonitor's poll loop, ad hoc curl checks) sitting next to the
// driver's real workload on the UDS socket; a runaway poller hammering
// /restful/stats — which reads live queue and worker pool state on every
// call — shouldn't be able to compete with that workload for the driver's
// attention. Limiting is in-process and per-instance, which fits dbdriverd's
// own deployment shape: one driver process per socket, no shared limiter
// state across replicas.
package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket is a single token-bucket counter: tokens refill at a fixed
// rate up to a cap, and each call consumes one.
type TokenBucket struct {
	mu         sync.Mutex
	tokens     int
	maxTokens  int
	refillRate time.Duration
	lastRefill time.Time
}

// NewTokenBucket creates a bucket holding up to maxTokens, refilling one
// token every refillInterval.
//
// Example: NewTokenBucket(50, time.Second) lets an admin endpoint absorb
// bursts of up to 50 requests while settling to 1/sec sustained.
func NewTokenBucket(maxTokens int, refillInterval time.Duration) *TokenBucket {
	if maxTokens <= 0 || refillInterval <= 0 {
		return &TokenBucket{
			tokens:     1,
			maxTokens:  1,
			refillRate: time.Second,
			lastRefill: time.Now(),
		}
	}
	now := time.Now()
	return &TokenBucket{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillInterval,
		lastRefill: now,
	}
}

// Allow reports whether a request should be let through.
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(tb.lastRefill)

	if elapsed >= tb.refillRate {
		tokensToAdd := int(elapsed / tb.refillRate)
		tb.tokens += tokensToAdd
		if tb.tokens > tb.maxTokens {
			tb.tokens = tb.maxTokens
		}
		tb.lastRefill = now
	}

	if tb.tokens > 0 {
		tb.tokens--
		return true
	}

	return false
}

// AllowWithRetryAfter is Allow plus, when denied, how long until the next
// token lands.
func (tb *TokenBucket) AllowWithRetryAfter() (allowed bool, retryAfter time.Duration) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(tb.lastRefill)

	if elapsed >= tb.refillRate {
		tokensToAdd := int(elapsed / tb.refillRate)
		tb.tokens += tokensToAdd
		if tb.tokens > tb.maxTokens {
			tb.tokens = tb.maxTokens
		}
		tb.lastRefill = now
	}

	if tb.tokens > 0 {
		tb.tokens--
		return true, 0
	}

	timeSinceLastRefill := now.Sub(tb.lastRefill)
	retryAfter = tb.refillRate - timeSinceLastRefill
	if retryAfter < 0 {
		retryAfter = 0
	}

	return false, retryAfter
}

// EndpointKey composes the bucket key ClientLimiter uses: one bucket per
// (admin route, caller) pair rather than one shared bucket per caller
// across the whole admin surface. That keeps a poller hammering the
// expensive /restful/stats route from also exhausting the budget a
// cheaper route (like /restful/health, which is exempted entirely by the
// admin middleware) would otherwise share with it.
func EndpointKey(route, clientIP string) string {
	return route + "|" + clientIP
}

// ClientLimiter hands out an independent TokenBucket per key — in
// dbdriverd's admin surface, per (route, client IP) pair via EndpointKey.
type ClientLimiter struct {
	mu         sync.RWMutex
	limiters   map[string]*TokenBucket
	lastAccess map[string]time.Time
	maxTokens  int
	refillRate time.Duration
}

// NewClientLimiter creates a limiter where each key gets its own bucket of
// maxTokens, refilling one token every refillInterval.
func NewClientLimiter(maxTokens int, refillInterval time.Duration) *ClientLimiter {
	if maxTokens <= 0 || refillInterval <= 0 {
		return &ClientLimiter{
			limiters:   make(map[string]*TokenBucket),
			lastAccess: make(map[string]time.Time),
			maxTokens:  1,
			refillRate: time.Second,
		}
	}
	return &ClientLimiter{
		limiters:   make(map[string]*TokenBucket),
		lastAccess: make(map[string]time.Time),
		maxTokens:  maxTokens,
		refillRate: refillInterval,
	}
}

// Allow reports whether a call under key should be let through.
func (cl *ClientLimiter) Allow(key string) bool {
	cl.mu.RLock()
	limiter, exists := cl.limiters[key]
	cl.mu.RUnlock()

	if !exists {
		cl.mu.Lock()
		limiter, exists = cl.limiters[key]
		if !exists {
			limiter = NewTokenBucket(cl.maxTokens, cl.refillRate)
			cl.limiters[key] = limiter
		}
		cl.lastAccess[key] = time.Now()
		cl.mu.Unlock()
	} else {
		cl.mu.Lock()
		cl.lastAccess[key] = time.Now()
		cl.mu.Unlock()
	}

	return limiter.Allow()
}

// AllowWithRetryAfter is Allow plus a Retry-After duration when denied.
func (cl *ClientLimiter) AllowWithRetryAfter(key string) (bool, time.Duration) {
	cl.mu.RLock()
	limiter, exists := cl.limiters[key]
	cl.mu.RUnlock()

	if !exists {
		cl.mu.Lock()
		limiter, exists = cl.limiters[key]
		if !exists {
			limiter = NewTokenBucket(cl.maxTokens, cl.refillRate)
			cl.limiters[key] = limiter
		}
		cl.lastAccess[key] = time.Now()
		cl.mu.Unlock()
	} else {
		cl.mu.Lock()
		cl.lastAccess[key] = time.Now()
		cl.mu.Unlock()
	}

	return limiter.AllowWithRetryAfter()
}

// Cleanup drops buckets idle for longer than maxAge, so a monitor that
// rotates through many short-lived client IPs (port-forwarded dbmonitor
// instances, CI runners) doesn't grow this map without bound.
func (cl *ClientLimiter) Cleanup(maxAge time.Duration) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	now := time.Now()
	for key, lastAccess := range cl.lastAccess {
		if now.Sub(lastAccess) > maxAge {
			delete(cl.limiters, key)
			delete(cl.lastAccess, key)
		}
	}
}

package middleware

import (
	"fmt"
	"sync"
	"time"

	"github.com/alextby/cacheproxy/internal/domain"

	"github.com/gofiber/fiber/v2"
)

// TokenBucket implements a token bucket rate limiter.
type TokenBucket struct {
	capacity   float64
	tokens     float64
	refillRate float64 // tokens per second
	lastRefill time.Time
	mutex      sync.Mutex
}

func newTokenBucket(capacity, refillRate float64) *TokenBucket {
	return &TokenBucket{
		capacity:   capacity,
		tokens:     capacity,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// Allow reports whether a request may proceed, consuming one token.
// capacity is re-applied on every call so a shrinking load factor takes
// effect immediately instead of only at bucket creation.
func (tb *TokenBucket) Allow(capacity, refillRate float64) bool {
	tb.mutex.Lock()
	defer tb.mutex.Unlock()

	now := time.Now()
	elapsed := now.Sub(tb.lastRefill).Seconds()

	tb.capacity = capacity
	tb.refillRate = refillRate
	tb.tokens = min(capacity, tb.tokens+elapsed*refillRate)
	tb.lastRefill = now

	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	return false
}

func (tb *TokenBucket) idleSince(now time.Time) time.Duration {
	tb.mutex.Lock()
	defer tb.mutex.Unlock()
	return now.Sub(tb.lastRefill)
}

// RateLimiter throttles the admin API on a per-IP, per-endpoint basis and
// tightens itself as the proxy's own worker pool backs up: a dispatcher
// under load has no goroutines to spare for answering /metrics polling,
// so the limiter halves admission once the queue is as deep as the pool
// is wide. A nil pool (no admin dependency wired) disables the load term
// and the limiter behaves as a flat token bucket.
type RateLimiter struct {
	buckets map[string]*TokenBucket
	mutex   sync.RWMutex

	defaultCapacity   int
	defaultRefillRate int

	endpointLimits map[string]struct {
		capacity   int
		refillRate int
	}

	pool domain.WorkerPoolMonitor
}

// NewRateLimiter creates a rate limiter for the admin API. pool is consulted
// on every request to derive the current load factor; pass nil to disable
// load-based throttling.
func NewRateLimiter(rps, burst int, pool domain.WorkerPoolMonitor) *RateLimiter {
	rl := &RateLimiter{
		buckets:           make(map[string]*TokenBucket),
		defaultCapacity:   burst,
		defaultRefillRate: rps,
		endpointLimits:    make(map[string]struct{ capacity, refillRate int }),
		pool:              pool,
	}

	// /stats and /metrics are polled by monitoring systems at a steady
	// cadence; /health is polled more aggressively by orchestrators doing
	// liveness checks, so it gets a larger allowance.
	rl.endpointLimits["/health"] = struct{ capacity, refillRate int }{40, 4}
	rl.endpointLimits["/metrics"] = struct{ capacity, refillRate int }{20, 2}
	rl.endpointLimits["/stats"] = struct{ capacity, refillRate int }{20, 2}

	return rl
}

// loadFactor returns a multiplier in (0, 1] applied to every bucket's
// capacity and refill rate, derived from worker pool occupancy. An empty
// queue leaves admission untouched; a queue as deep as the pool is wide
// halves it, shedding admin traffic in favor of in-flight relays.
func (rl *RateLimiter) loadFactor() float64 {
	if rl.pool == nil {
		return 1
	}
	stats := rl.pool.Stats()
	if stats.Size == 0 {
		return 1
	}
	occupancy := float64(stats.QueueDepth) / float64(stats.Size)
	if occupancy > 1 {
		occupancy = 1
	}
	return 1 - occupancy/2
}

// getBucket gets or creates a token bucket for a client+endpoint combination.
func (rl *RateLimiter) getBucket(clientID, endpoint string) *TokenBucket {
	key := clientID + ":" + endpoint

	rl.mutex.RLock()
	bucket, exists := rl.buckets[key]
	rl.mutex.RUnlock()

	if exists {
		return bucket
	}

	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	if bucket, exists := rl.buckets[key]; exists {
		return bucket
	}

	capacity, refillRate := rl.limitsFor(endpoint)
	bucket = newTokenBucket(float64(capacity), float64(refillRate))
	rl.buckets[key] = bucket

	return bucket
}

func (rl *RateLimiter) limitsFor(endpoint string) (capacity, refillRate int) {
	limits, exists := rl.endpointLimits[endpoint]
	if !exists {
		return rl.defaultCapacity, rl.defaultRefillRate
	}
	return limits.capacity, limits.refillRate
}

// getClientID identifies the caller. The admin API has no authentication
// layer (spec.md §1's non-goals exclude one), so the dialing IP is the only
// identity available.
func (rl *RateLimiter) getClientID(c *fiber.Ctx) string {
	return c.IP()
}

// Middleware returns a Fiber middleware for rate limiting.
func (rl *RateLimiter) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		clientID := rl.getClientID(c)
		endpoint := c.Path()

		bucket := rl.getBucket(clientID, endpoint)
		capacity, refillRate := rl.limitsFor(endpoint)
		factor := rl.loadFactor()
		effectiveCapacity := float64(capacity) * factor
		effectiveRefillRate := float64(refillRate) * factor

		if !bucket.Allow(effectiveCapacity, effectiveRefillRate) {
			appErr := domain.NewAppError(
				domain.ErrRateLimit,
				"rate limit exceeded",
				429,
				map[string]any{
					"client_id":   clientID,
					"endpoint":    endpoint,
					"load_factor": factor,
					"retry_after": "60",
				},
			).WithContext(c.Context(), "rate_limit")

			c.Set("Retry-After", "60")
			c.Set("X-RateLimit-Limit", fmt.Sprintf("%.0f", effectiveCapacity))
			c.Set("X-RateLimit-Remaining", "0")
			c.Set("X-RateLimit-Reset", time.Now().Add(time.Minute).Format(time.RFC3339))

			return c.Status(appErr.StatusCode).JSON(map[string]any{
				"status":  "error",
				"code":    appErr.Code,
				"message": appErr.Message,
				"details": appErr.Details,
			})
		}

		c.Set("X-RateLimit-Limit", fmt.Sprintf("%.0f", effectiveCapacity))
		c.Set("X-RateLimit-Remaining", fmt.Sprintf("%.0f", max(0, effectiveCapacity-1)))

		return c.Next()
	}
}

// CleanupOldBuckets removes buckets idle for over an hour, bounding memory
// growth from the admin API's open-ended set of caller IPs.
func (rl *RateLimiter) CleanupOldBuckets() {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := time.Now()
	for key, bucket := range rl.buckets {
		if bucket.idleSince(now) > time.Hour {
			delete(rl.buckets, key)
		}
	}
}

// StartCleanupRoutine starts a background routine to clean up old buckets.
// Returns a stop function to cancel the routine.
func (rl *RateLimiter) StartCleanupRoutine() (stop func()) {
	ticker := time.NewTicker(10 * time.Minute)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				rl.CleanupOldBuckets()
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	return func() { close(done) }
}

// GetStats returns rate limiter statistics, including the current worker
// pool load factor applied to every bucket.
func (rl *RateLimiter) GetStats() map[string]any {
	rl.mutex.RLock()
	defer rl.mutex.RUnlock()

	return map[string]any{
		"active_buckets":      len(rl.buckets),
		"default_capacity":    rl.defaultCapacity,
		"default_refill_rate": rl.defaultRefillRate,
		"endpoint_limits":     rl.endpointLimits,
		"load_factor":         rl.loadFactor(),
	}
}

package middleware

import (
	"sync"
	"time"

	"github.com/nyp-fyp/chatbot-go/internal/config"
	"github.com/sirupsen/logrus"
)

// Decision is the outcome of a rate limit check.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
	Used       int
	Remaining  int
}

// Info is a read-only view of one bucket's state.
type Info struct {
	Used      int
	Remaining int
	ResetIn   time.Duration
}

// RateLimiter interface for rate limiting
type RateLimiter interface {
	Check(identity, category string) Decision
	Info(identity, category string) Info
	Reset(identity, category string)
}

type bucket struct {
	windowStart time.Time
	count       int
}

// CategoryRateLimiter implements fixed-window rate limiting keyed by
// (identity, category). Each category carries its own budget and window.
type CategoryRateLimiter struct {
	enabled    bool
	categories map[string]config.CategoryBudget
	buckets    map[bucketKey]*bucket
	mu         sync.Mutex
	logger     *logrus.Logger
	now        func() time.Time

	cleanupInterval time.Duration
	maxBuckets      int
}

type bucketKey struct {
	identity string
	category string
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(cfg *config.Config, logger *logrus.Logger) RateLimiter {
	if !cfg.RateLimit.Enabled {
		return &CategoryRateLimiter{enabled: false}
	}

	rl := &CategoryRateLimiter{
		enabled:         true,
		categories:      cfg.RateLimit.Categories,
		buckets:         make(map[bucketKey]*bucket),
		logger:          logger,
		now:             time.Now,
		cleanupInterval: 1 * time.Hour,
		maxBuckets:      10000,
	}

	// Start cleanup goroutine
	go rl.cleanup()

	return rl
}

// Check performs an atomic check-and-increment for (identity, category).
// Exactly one of two concurrent callers wins the last slot in a window.
func (r *CategoryRateLimiter) Check(identity, category string) Decision {
	if !r.enabled {
		return Decision{Allowed: true}
	}

	budget := r.budget(category)
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	key := bucketKey{identity: identity, category: category}
	b, exists := r.buckets[key]
	if !exists {
		b = &bucket{windowStart: now}
		r.buckets[key] = b
	}

	// Window elapsed: reset counter
	if !now.Before(b.windowStart.Add(budget.Window)) {
		b.windowStart = now
		b.count = 0
	}

	if b.count < budget.MaxRequests {
		b.count++
		return Decision{
			Allowed:   true,
			Used:      b.count,
			Remaining: budget.MaxRequests - b.count,
		}
	}

	retryAfter := b.windowStart.Add(budget.Window).Sub(now)
	r.logger.WithFields(logrus.Fields{
		"identity":    identity,
		"category":    category,
		"retry_after": retryAfter.Round(time.Second),
	}).Warn("Rate limit exceeded")
	RecordRateLimitExceeded(category)

	return Decision{
		Allowed:    false,
		RetryAfter: retryAfter,
		Used:       b.count,
		Remaining:  0,
	}
}

// Info returns bucket state without consuming budget.
func (r *CategoryRateLimiter) Info(identity, category string) Info {
	budget := r.budget(category)
	if !r.enabled {
		return Info{Remaining: budget.MaxRequests}
	}

	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	b, exists := r.buckets[bucketKey{identity: identity, category: category}]
	if !exists || !now.Before(b.windowStart.Add(budget.Window)) {
		return Info{Used: 0, Remaining: budget.MaxRequests, ResetIn: 0}
	}

	remaining := budget.MaxRequests - b.count
	if remaining < 0 {
		remaining = 0
	}
	return Info{
		Used:      b.count,
		Remaining: remaining,
		ResetIn:   b.windowStart.Add(budget.Window).Sub(now),
	}
}

// Reset clears the bucket for (identity, category)
func (r *CategoryRateLimiter) Reset(identity, category string) {
	if !r.enabled {
		return
	}

	r.mu.Lock()
	delete(r.buckets, bucketKey{identity: identity, category: category})
	r.mu.Unlock()
}

// budget resolves a category's budget; unknown categories fall back to default.
func (r *CategoryRateLimiter) budget(category string) config.CategoryBudget {
	if b, ok := r.categories[category]; ok {
		return b
	}
	if b, ok := r.categories["default"]; ok {
		return b
	}
	// Limiter constructed without budgets at all
	return config.CategoryBudget{MaxRequests: 60, Window: time.Minute}
}

// cleanup bounds the bucket map; idle buckets are harmless but the map
// should not grow without limit on identity churn.
func (r *CategoryRateLimiter) cleanup() {
	ticker := time.NewTicker(r.cleanupInterval)
	defer ticker.Stop()

	for range ticker.C {
		r.mu.Lock()
		if len(r.buckets) > r.maxBuckets {
			r.logger.Warn("Rate limiter map size exceeded threshold, clearing")
			r.buckets = make(map[bucketKey]*bucket)
		}
		r.mu.Unlock()
	}
}

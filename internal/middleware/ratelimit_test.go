package middleware

import (
	"sync"
	"testing"
	"time"

	"github.com/nyp-fyp/chatbot-go/internal/config"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLimiter(t *testing.T, categories map[string]config.CategoryBudget) *CategoryRateLimiter {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	cfg := &config.Config{
		RateLimit: config.RateLimitConfig{
			Enabled:    true,
			Categories: categories,
		},
	}
	rl, ok := NewRateLimiter(cfg, logger).(*CategoryRateLimiter)
	require.True(t, ok)
	return rl
}

func TestCheckExactBudgetBoundary(t *testing.T) {
	rl := testLimiter(t, map[string]config.CategoryBudget{
		"chat": {MaxRequests: 5, Window: time.Minute},
	})

	for i := 0; i < 5; i++ {
		decision := rl.Check("alice", "chat")
		assert.True(t, decision.Allowed, "request %d should be allowed", i+1)
	}

	decision := rl.Check("alice", "chat")
	assert.False(t, decision.Allowed)
	assert.Greater(t, decision.RetryAfter, time.Duration(0))
	assert.Zero(t, decision.Remaining)
}

func TestCheckWindowReset(t *testing.T) {
	rl := testLimiter(t, map[string]config.CategoryBudget{
		"auth": {MaxRequests: 2, Window: time.Minute},
	})

	now := time.Now()
	rl.now = func() time.Time { return now }

	rl.Check("bob", "auth")
	rl.Check("bob", "auth")
	assert.False(t, rl.Check("bob", "auth").Allowed)

	// Advance past the window: counter resets regardless of prior count
	now = now.Add(time.Minute)
	decision := rl.Check("bob", "auth")
	assert.True(t, decision.Allowed)
	assert.Equal(t, 1, decision.Used)
}

func TestCheckIdentitiesAndCategoriesIndependent(t *testing.T) {
	rl := testLimiter(t, map[string]config.CategoryBudget{
		"chat":    {MaxRequests: 1, Window: time.Minute},
		"default": {MaxRequests: 1, Window: time.Minute},
	})

	assert.True(t, rl.Check("alice", "chat").Allowed)
	assert.False(t, rl.Check("alice", "chat").Allowed)

	// Different identity, same category
	assert.True(t, rl.Check("bob", "chat").Allowed)
	// Same identity, different category
	assert.True(t, rl.Check("alice", "default").Allowed)
}

func TestUnknownCategoryFallsBackToDefault(t *testing.T) {
	rl := testLimiter(t, map[string]config.CategoryBudget{
		"default": {MaxRequests: 1, Window: time.Minute},
	})

	assert.True(t, rl.Check("alice", "mystery").Allowed)
	assert.False(t, rl.Check("alice", "mystery").Allowed)
}

func TestInfoDoesNotConsumeBudget(t *testing.T) {
	rl := testLimiter(t, map[string]config.CategoryBudget{
		"chat": {MaxRequests: 3, Window: time.Minute},
	})

	rl.Check("alice", "chat")

	for i := 0; i < 10; i++ {
		info := rl.Info("alice", "chat")
		assert.Equal(t, 1, info.Used)
		assert.Equal(t, 2, info.Remaining)
		assert.Greater(t, info.ResetIn, time.Duration(0))
	}

	assert.True(t, rl.Check("alice", "chat").Allowed)
}

func TestInfoUnusedBucket(t *testing.T) {
	rl := testLimiter(t, map[string]config.CategoryBudget{
		"chat": {MaxRequests: 3, Window: time.Minute},
	})

	info := rl.Info("nobody", "chat")
	assert.Zero(t, info.Used)
	assert.Equal(t, 3, info.Remaining)
	assert.Zero(t, info.ResetIn)
}

func TestReset(t *testing.T) {
	rl := testLimiter(t, map[string]config.CategoryBudget{
		"chat": {MaxRequests: 1, Window: time.Minute},
	})

	assert.True(t, rl.Check("alice", "chat").Allowed)
	assert.False(t, rl.Check("alice", "chat").Allowed)

	rl.Reset("alice", "chat")
	assert.True(t, rl.Check("alice", "chat").Allowed)
}

func TestDisabledLimiterAllowsEverything(t *testing.T) {
	logger := logrus.New()
	cfg := &config.Config{RateLimit: config.RateLimitConfig{Enabled: false}}
	rl := NewRateLimiter(cfg, logger)

	for i := 0; i < 1000; i++ {
		assert.True(t, rl.Check("alice", "chat").Allowed)
	}
}

// Two concurrent callers race for the last slot: exactly one wins.
func TestConcurrentLastSlotSingleGrant(t *testing.T) {
	for round := 0; round < 50; round++ {
		rl := testLimiter(t, map[string]config.CategoryBudget{
			"chat": {MaxRequests: 5, Window: time.Minute},
		})

		for i := 0; i < 4; i++ {
			require.True(t, rl.Check("alice", "chat").Allowed)
		}

		var wg sync.WaitGroup
		results := make([]bool, 2)
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = rl.Check("alice", "chat").Allowed
			}(i)
		}
		wg.Wait()

		allowed := 0
		for _, ok := range results {
			if ok {
				allowed++
			}
		}
		assert.Equal(t, 1, allowed, "exactly one of two racing calls may win the last slot")
	}
}

package apperrors

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, "ok"},
		{"not found", ErrNotFound, "not_found"},
		{"wrapped not found", fmt.Errorf("load chat: %w", ErrNotFound), "not_found"},
		{"conflict", ErrConflict, "conflict"},
		{"validation", ErrValidation, "validation_error"},
		{"rate limited", &RateLimitedError{Category: "chat", RetryAfter: time.Minute}, "rate_limited"},
		{"storage", NewStorageError("write session", errors.New("disk full")), "storage_error"},
		{"unknown", errors.New("boom"), "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Code(tt.err))
		})
	}
}

func TestStorageErrorUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := NewStorageError("write session", cause)

	assert.ErrorIs(t, err, cause)
	assert.True(t, IsStorage(fmt.Errorf("append: %w", err)))
	assert.Contains(t, err.Error(), "write session")
}

func TestIsRateLimited(t *testing.T) {
	err := &RateLimitedError{Category: "auth", RetryAfter: 30 * time.Second}

	re, ok := IsRateLimited(err)
	assert.True(t, ok)
	assert.Equal(t, "auth", re.Category)

	_, ok = IsRateLimited(errors.New("other"))
	assert.False(t, ok)
}

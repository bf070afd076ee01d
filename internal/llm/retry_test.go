package llm

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsRateLimitError(t *testing.T) {
	assert.False(t, IsRateLimitError(nil))
	assert.False(t, IsRateLimitError(fmt.Errorf("connection refused")))
	assert.True(t, IsRateLimitError(fmt.Errorf("Error 429, Message: quota exceeded")))
	assert.True(t, IsRateLimitError(fmt.Errorf("Status: RESOURCE_EXHAUSTED")))
	assert.True(t, IsRateLimitError(fmt.Errorf("rate_limit_error: too many requests")))
}

func TestExtractRetryDelay(t *testing.T) {
	err := fmt.Errorf("Error 429, Message: quota exceeded. Please retry in 45.387061394s., Status: RESOURCE_EXHAUSTED")
	delay := ExtractRetryDelay(err)
	assert.InDelta(t, 45.387, delay.Seconds(), 0.01)

	assert.Equal(t, time.Duration(0), ExtractRetryDelay(fmt.Errorf("no delay here")))
	assert.Equal(t, time.Duration(0), ExtractRetryDelay(nil))
}

func TestCalculateBackoff(t *testing.T) {
	cfg := NewDefaultRetryConfig()

	// No API delay: initial backoff on attempt 0
	assert.Equal(t, cfg.InitialBackoff, cfg.CalculateBackoff(0, 0))

	// API delay takes precedence, plus buffer
	got := cfg.CalculateBackoff(0, 30*time.Second)
	assert.Equal(t, 35*time.Second, got)

	// Capped at MaxBackoff
	got = cfg.CalculateBackoff(5, 80*time.Second)
	assert.Equal(t, cfg.MaxBackoff, got)
}

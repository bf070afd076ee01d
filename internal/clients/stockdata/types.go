// Package stockdata provides the financial data provider client used for
// enrichment, research tools and pricing.
package stockdata

import (
	"fmt"
	"time"
)

// APIError represents a non-200 response from the data provider.
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("stockdata API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// RateLimitError represents a rate limit error.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("stockdata rate limit exceeded, retry after %v", e.RetryAfter)
}

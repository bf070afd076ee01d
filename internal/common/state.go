package common

import (
	"context"
	"sync"
	"time"
)

// ProcessState holds process-scoped mutable state shared across cycles: the
// news-provider circuit breaker and the news fetch semaphore. Everything else
// is threaded explicitly through constructors.
type ProcessState struct {
	mu               sync.Mutex
	newsBreakerUntil time.Time

	newsSem chan struct{}
}

// NewProcessState creates process state with the given news concurrency cap.
func NewProcessState(newsConcurrency int) *ProcessState {
	if newsConcurrency <= 0 {
		newsConcurrency = 5
	}
	return &ProcessState{
		newsSem: make(chan struct{}, newsConcurrency),
	}
}

// NewsAllowed reports whether calls to the primary news provider are
// currently permitted.
func (s *ProcessState) NewsAllowed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Now().After(s.newsBreakerUntil)
}

// TripNewsBreaker suppresses primary news calls for the cooldown window.
// Concurrent writers race harmlessly; last writer wins.
func (s *ProcessState) TripNewsBreaker(cooldown time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.newsBreakerUntil = time.Now().Add(cooldown)
}

// AcquireNews blocks until a news fetch slot is free or the context ends.
func (s *ProcessState) AcquireNews(ctx context.Context) error {
	select {
	case s.newsSem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ReleaseNews frees a news fetch slot.
func (s *ProcessState) ReleaseNews() {
	<-s.newsSem
}

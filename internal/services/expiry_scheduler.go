package services

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// ExpiryScheduler holds at most one pending expiry timer per poll id.
// Firing removes the entry before the callback runs, so a callback that
// calls Cancel for its own id is harmless.
type ExpiryScheduler struct {
	clock  clock.Clock
	mu     sync.Mutex
	timers map[string]*clock.Timer
}

func NewExpiryScheduler(clk clock.Clock) *ExpiryScheduler {
	if clk == nil {
		clk = clock.New()
	}
	return &ExpiryScheduler{clock: clk, timers: make(map[string]*clock.Timer)}
}

// Schedule arms fn to run after delay. A poll that already has a timer keeps
// it; timers are never rearmed. Returns false in that case.
func (s *ExpiryScheduler) Schedule(pollID string, delay time.Duration, fn func(pollID string)) bool {
	if delay < 0 {
		delay = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.timers[pollID]; exists {
		return false
	}

	var timer *clock.Timer
	timer = s.clock.AfterFunc(delay, func() {
		s.mu.Lock()
		current, ok := s.timers[pollID]
		if ok && current == timer {
			delete(s.timers, pollID)
		}
		s.mu.Unlock()
		if !ok || current != timer {
			return
		}
		fn(pollID)
	})
	s.timers[pollID] = timer
	return true
}

// Cancel stops the pending timer for pollID, if any.
func (s *ExpiryScheduler) Cancel(pollID string) bool {
	s.mu.Lock()
	timer, ok := s.timers[pollID]
	if ok {
		delete(s.timers, pollID)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}
	timer.Stop()
	return true
}

func (s *ExpiryScheduler) Pending(pollID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[pollID]
	return ok
}

// Stop cancels every pending timer.
func (s *ExpiryScheduler) Stop() {
	s.mu.Lock()
	timers := s.timers
	s.timers = make(map[string]*clock.Timer)
	s.mu.Unlock()
	for _, t := range timers {
		t.Stop()
	}
}

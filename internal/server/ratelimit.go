package server

import (
	"context"
	"sync"
	"time"

	wire "livepoll/pkg/events"
)

// Rate limits per minute
type RateLimits struct {
	MaxPollCommands int
	MaxVotes        int
	MaxChatMessages int
	MaxQueries      int
	MaxModeration   int
}

var DefaultRateLimits = RateLimits{
	MaxPollCommands: 30,
	MaxVotes:        30,
	MaxChatMessages: 60,
	MaxQueries:      60,
	MaxModeration:   30,
}

// ClientRateLimiter tracks rate limits per client
type ClientRateLimiter struct {
	limits           RateLimits
	pollTokens       int
	voteTokens       int
	chatTokens       int
	queryTokens      int
	moderationTokens int
	lastRefill       time.Time
	now              func() time.Time
	mu               sync.Mutex
}

func NewClientRateLimiter(limits RateLimits) *ClientRateLimiter {
	rl := &ClientRateLimiter{limits: limits, now: time.Now}
	rl.refillTokens()
	rl.lastRefill = rl.now()
	return rl
}

func (rl *ClientRateLimiter) Allow(msgType string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastRefill) >= time.Minute {
		rl.refillTokens()
		rl.lastRefill = now
	}

	var bucket *int
	switch msgType {
	case wire.CreatePoll, wire.ClosePoll:
		bucket = &rl.pollTokens
	case wire.SubmitVote:
		bucket = &rl.voteTokens
	case wire.SendMessage:
		bucket = &rl.chatTokens
	case wire.GetHistory, wire.JoinCheck:
		bucket = &rl.queryTokens
	case wire.KickUser:
		bucket = &rl.moderationTokens
	default:
		return true
	}

	if *bucket > 0 {
		*bucket--
		return true
	}
	return false
}

func (rl *ClientRateLimiter) refillTokens() {
	rl.pollTokens = rl.limits.MaxPollCommands
	rl.voteTokens = rl.limits.MaxVotes
	rl.chatTokens = rl.limits.MaxChatMessages
	rl.queryTokens = rl.limits.MaxQueries
	rl.moderationTokens = rl.limits.MaxModeration
}

// ConnectionRateLimiter caps new connections per IP within a sliding minute.
type ConnectionRateLimiter struct {
	maxPerMinute     int
	connectionsPerIP map[string][]time.Time
	now              func() time.Time
	mu               sync.Mutex
}

func NewConnectionRateLimiter(maxPerMinute int) *ConnectionRateLimiter {
	return &ConnectionRateLimiter{
		maxPerMinute:     maxPerMinute,
		connectionsPerIP: make(map[string][]time.Time),
		now:              time.Now,
	}
}

func (w *ConnectionRateLimiter) AllowConnection(ip string) bool {
	if w.maxPerMinute <= 0 {
		return true
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	windowStart := now.Add(-1 * time.Minute)

	validConnections := []time.Time{}
	for _, t := range w.connectionsPerIP[ip] {
		if t.After(windowStart) {
			validConnections = append(validConnections, t)
		}
	}

	if len(validConnections) >= w.maxPerMinute {
		w.connectionsPerIP[ip] = validConnections
		return false
	}

	w.connectionsPerIP[ip] = append(validConnections, now)
	return true
}

// CleanupLoop prunes stale entries until ctx is done.
func (w *ConnectionRateLimiter) CleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.cleanup()
		}
	}
}

func (w *ConnectionRateLimiter) cleanup() {
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := w.now().Add(-10 * time.Minute)

	for ip, times := range w.connectionsPerIP {
		valid := []time.Time{}
		for _, t := range times {
			if t.After(cutoff) {
				valid = append(valid, t)
			}
		}
		if len(valid) == 0 {
			delete(w.connectionsPerIP, ip)
		} else {
			w.connectionsPerIP[ip] = valid
		}
	}
}

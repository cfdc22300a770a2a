package repository

import (
	"context"
	"errors"
	"sync/atomic"

	"livepoll/internal/domain/poll"
	livepoll_errors "livepoll/pkg/errors"

	"go.uber.org/zap"
)

// FallbackPollStore prefers the durable backend and degrades to the
// transient one the first time the durable backend fails for a reason that
// is not a domain outcome. Degradation is one-way for the process lifetime:
// switching back would resurrect state the transient store never saw.
type FallbackPollStore struct {
	durable   PollStore
	transient PollStore
	degraded  atomic.Bool
	logger    *zap.Logger
}

// NewFallbackPollStore wires the two backends. durable may be nil when it
// could not be reached at startup; the store then starts degraded.
func NewFallbackPollStore(durable, transient PollStore, logger *zap.Logger) *FallbackPollStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &FallbackPollStore{
		durable:   durable,
		transient: transient,
		logger:    logger.With(zap.String("component", "poll_store")),
	}
	if durable == nil {
		s.degraded.Store(true)
		s.logger.Warn("durable poll store unavailable, using transient store")
	}
	return s
}

// Degraded reports whether calls are being served by the transient store.
func (s *FallbackPollStore) Degraded() bool {
	return s.degraded.Load()
}

func (s *FallbackPollStore) Create(ctx context.Context, p poll.Poll) (poll.Poll, *poll.Poll, error) {
	var (
		created    poll.Poll
		superseded *poll.Poll
	)
	err := s.run(ctx, "create", func(store PollStore) error {
		var err error
		created, superseded, err = store.Create(ctx, p)
		return err
	})
	return created, superseded, err
}

func (s *FallbackPollStore) Get(ctx context.Context, id string) (poll.Poll, error) {
	var out poll.Poll
	err := s.run(ctx, "get", func(store PollStore) error {
		var err error
		out, err = store.Get(ctx, id)
		return err
	})
	return out, err
}

func (s *FallbackPollStore) GetActive(ctx context.Context) (poll.Poll, error) {
	var out poll.Poll
	err := s.run(ctx, "get_active", func(store PollStore) error {
		var err error
		out, err = store.GetActive(ctx)
		return err
	})
	return out, err
}

func (s *FallbackPollStore) GetLast(ctx context.Context) (poll.Poll, error) {
	var out poll.Poll
	err := s.run(ctx, "get_last", func(store PollStore) error {
		var err error
		out, err = store.GetLast(ctx)
		return err
	})
	return out, err
}

func (s *FallbackPollStore) ListAll(ctx context.Context) ([]poll.Poll, error) {
	var out []poll.Poll
	err := s.run(ctx, "list_all", func(store PollStore) error {
		var err error
		out, err = store.ListAll(ctx)
		return err
	})
	return out, err
}

func (s *FallbackPollStore) EndPoll(ctx context.Context, id string) (poll.Poll, bool, error) {
	var (
		out          poll.Poll
		transitioned bool
	)
	err := s.run(ctx, "end_poll", func(store PollStore) error {
		var err error
		out, transitioned, err = store.EndPoll(ctx, id)
		return err
	})
	return out, transitioned, err
}

func (s *FallbackPollStore) SubmitVote(ctx context.Context, id, participantName string, optionIndex int) (poll.Poll, error) {
	var out poll.Poll
	err := s.run(ctx, "submit_vote", func(store PollStore) error {
		var err error
		out, err = store.SubmitVote(ctx, id, participantName, optionIndex)
		return err
	})
	return out, err
}

func (s *FallbackPollStore) Ping(ctx context.Context) error {
	return s.run(ctx, "ping", func(store PollStore) error {
		return store.Ping(ctx)
	})
}

func (s *FallbackPollStore) run(ctx context.Context, op string, fn func(PollStore) error) error {
	if !s.degraded.Load() {
		err := fn(s.durable)
		if err == nil || livepoll_errors.IsDomain(err) || ctx.Err() != nil {
			return err
		}
		s.degrade(op, err)
	}
	if s.transient == nil {
		return livepoll_errors.ErrServiceUnavailable
	}
	return fn(s.transient)
}

func (s *FallbackPollStore) degrade(op string, cause error) {
	if s.degraded.CompareAndSwap(false, true) {
		s.logger.Warn("durable poll store degraded, falling back to transient store",
			zap.String("op", op),
			zap.Error(errors.Join(livepoll_errors.ErrServiceUnavailable, cause)),
		)
	}
}

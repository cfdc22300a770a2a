package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"livepoll/internal/commands"
	"livepoll/internal/domain/poll"
	"livepoll/internal/events"
	"livepoll/internal/repository"
	livepoll_errors "livepoll/pkg/errors"
	wire "livepoll/pkg/events"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CloseReason records which path completed a poll.
type CloseReason string

const (
	ReasonExpired    CloseReason = "expired"
	ReasonManual     CloseReason = "manual"
	ReasonSuperseded CloseReason = "superseded"
	ReasonRecovered  CloseReason = "recovered"
)

const sideEffectTimeout = 10 * time.Second

// Broadcaster delivers wire events to connected clients.
type Broadcaster interface {
	Broadcast(eventType string, payload interface{})
	BroadcastExcept(excludeID, eventType string, payload interface{})
	SendTo(connectionID, eventType string, payload interface{}) error
}

// LifecyclePublisher receives poll lifecycle envelopes for external consumers.
type LifecyclePublisher interface {
	Publish(ctx context.Context, env events.Envelope) error
}

// ResultArchiver stores completed polls.
type ResultArchiver interface {
	Archive(ctx context.Context, p poll.Poll) error
}

type PollServiceOptions struct {
	Clock       clock.Clock
	MaxDuration time.Duration
	Publisher   LifecyclePublisher
	Archive     ResultArchiver
	Logger      *zap.Logger
}

// PollService is the only path that activates or completes polls.
type PollService struct {
	store       repository.PollStore
	hub         Broadcaster
	clock       clock.Clock
	timers      *ExpiryScheduler
	maxDuration time.Duration
	publisher   LifecyclePublisher
	archive     ResultArchiver
	logger      *zap.Logger
	background  sync.WaitGroup
}

func NewPollService(store repository.PollStore, hub Broadcaster, opts PollServiceOptions) *PollService {
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.L()
	}
	return &PollService{
		store:       store,
		hub:         hub,
		clock:       clk,
		timers:      NewExpiryScheduler(clk),
		maxDuration: opts.MaxDuration,
		publisher:   opts.Publisher,
		archive:     opts.Archive,
		logger:      logger.With(zap.String("component", "poll_service")),
	}
}

func (s *PollService) RegisterHandlers(bus *commands.Bus) {
	if bus == nil {
		return
	}

	bus.Register("poll.create", commands.HandlerFunc(func(ctx context.Context, cmd commands.Command) (commands.Result, error) {
		c, ok := cmd.(commands.CreatePollCommand)
		if !ok {
			return commands.Result{}, livepoll_errors.ErrInvalidInput
		}
		p, err := s.CreatePoll(ctx, c)
		if err != nil {
			return commands.Result{}, err
		}
		return commands.Result{AggregateID: p.ID, Payload: p}, nil
	}))

	bus.Register("poll.vote", commands.HandlerFunc(func(ctx context.Context, cmd commands.Command) (commands.Result, error) {
		c, ok := cmd.(commands.SubmitVoteCommand)
		if !ok {
			return commands.Result{}, livepoll_errors.ErrInvalidInput
		}
		p, err := s.SubmitVote(ctx, c)
		if err != nil {
			return commands.Result{}, err
		}
		return commands.Result{AggregateID: p.ID, Payload: p}, nil
	}))

	bus.Register("poll.close", commands.HandlerFunc(func(ctx context.Context, cmd commands.Command) (commands.Result, error) {
		c, ok := cmd.(commands.ClosePollCommand)
		if !ok {
			return commands.Result{}, livepoll_errors.ErrInvalidInput
		}
		p, _, err := s.ClosePoll(ctx, c.PollID, ReasonManual)
		if err != nil {
			return commands.Result{}, err
		}
		return commands.Result{AggregateID: p.ID, Payload: p}, nil
	}))
}

// CreatePoll activates a new poll. An active poll is completed in the same
// store step and its poll_ended goes out before new_poll.
func (s *PollService) CreatePoll(ctx context.Context, cmd commands.CreatePollCommand) (poll.Poll, error) {
	if err := cmd.Validate(); err != nil {
		return poll.Poll{}, err
	}
	if s.maxDuration > 0 && time.Duration(cmd.Duration)*time.Second > s.maxDuration {
		return poll.Poll{}, livepoll_errors.Invalid("duration must not exceed %d seconds", int(s.maxDuration/time.Second))
	}

	now := s.clock.Now().UTC()
	draft := poll.Poll{
		ID:        uuid.NewString(),
		Question:  cmd.Question,
		Options:   append([]poll.Option(nil), cmd.Options...),
		Duration:  cmd.Duration,
		StartTime: &now,
		Status:    poll.StatusActive,
		Votes:     []poll.Vote{},
		CreatedAt: now,
	}

	created, superseded, err := s.store.Create(ctx, draft)
	if err != nil {
		return poll.Poll{}, err
	}

	if superseded != nil {
		s.timers.Cancel(superseded.ID)
		s.completed(*superseded, ReasonSuperseded, "")
	}

	s.hub.Broadcast(wire.NewPoll, created.Public())
	s.arm(created)
	s.publish(events.EventTypePollCreated, created.ID, created.Public())

	s.logger.Info("Poll activated",
		zap.String("poll_id", created.ID),
		zap.Int("duration", created.Duration),
		zap.Int("options", len(created.Options)),
	)
	return created, nil
}

// ClosePoll is the single closure primitive. The poll_ended broadcast goes
// out only when this call performed the transition.
func (s *PollService) ClosePoll(ctx context.Context, pollID string, reason CloseReason) (poll.Poll, bool, error) {
	return s.closePoll(ctx, pollID, reason, "")
}

// closePoll ends the poll; excludeID skips one connection in the broadcast.
func (s *PollService) closePoll(ctx context.Context, pollID string, reason CloseReason, excludeID string) (poll.Poll, bool, error) {
	if pollID == "" {
		return poll.Poll{}, false, livepoll_errors.Invalid("pollId is required")
	}

	p, transitioned, err := s.store.EndPoll(ctx, pollID)
	if err != nil {
		return poll.Poll{}, false, err
	}
	s.timers.Cancel(pollID)
	if transitioned {
		s.completed(p, reason, excludeID)
	}
	return p, transitioned, nil
}

// completed runs the side effects of a transition this process performed.
func (s *PollService) completed(p poll.Poll, reason CloseReason, excludeID string) {
	if excludeID != "" {
		s.hub.BroadcastExcept(excludeID, wire.PollEnded, p.Public())
	} else {
		s.hub.Broadcast(wire.PollEnded, p.Public())
	}

	s.logger.Info("Poll completed",
		zap.String("poll_id", p.ID),
		zap.String("reason", string(reason)),
		zap.Int("votes", len(p.Votes)),
	)

	s.publish(events.EventTypePollClosed, p.ID, events.PollClosedPayload{
		PollID: p.ID,
		Reason: string(reason),
		Votes:  len(p.Votes),
		Tally:  p.Tally(),
	})

	if s.archive != nil {
		s.goBackground(func(ctx context.Context) {
			if err := s.archive.Archive(ctx, p); err != nil {
				s.logger.Warn("Failed to archive poll", zap.String("poll_id", p.ID), zap.Error(err))
			}
		})
	}
}

// SubmitVote bounds-checks the option then hands off to the store's atomic
// vote. A poll past its deadline is closed here instead of accepting votes.
func (s *PollService) SubmitVote(ctx context.Context, cmd commands.SubmitVoteCommand) (poll.Poll, error) {
	if err := cmd.Validate(); err != nil {
		return poll.Poll{}, err
	}

	current, err := s.store.Get(ctx, cmd.PollID)
	if err != nil {
		return poll.Poll{}, err
	}
	if !current.IsActive() {
		return poll.Poll{}, livepoll_errors.ErrPollNotActive
	}
	if !current.ValidOption(*cmd.OptionIndex) {
		return poll.Poll{}, livepoll_errors.Invalid("optionIndex %d out of range", *cmd.OptionIndex)
	}
	if current.Remaining(s.clock.Now()) <= 0 {
		if _, _, err := s.ClosePoll(ctx, current.ID, ReasonExpired); err != nil {
			s.logger.Warn("Failed to close overdue poll", zap.String("poll_id", current.ID), zap.Error(err))
		}
		return poll.Poll{}, livepoll_errors.ErrPollNotActive
	}

	updated, err := s.store.SubmitVote(ctx, cmd.PollID, cmd.ParticipantName, *cmd.OptionIndex)
	if err != nil {
		return poll.Poll{}, err
	}

	s.hub.Broadcast(wire.PollUpdated, updated.Public())
	s.publish(events.EventTypeVoteAccepted, updated.ID, events.VoteAcceptedPayload{
		PollID:          updated.ID,
		ParticipantName: cmd.ParticipantName,
		OptionIndex:     *cmd.OptionIndex,
	})
	return updated, nil
}

// History lists every poll, newest first.
func (s *PollService) History(ctx context.Context) ([]poll.Poll, error) {
	polls, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return poll.PublicList(polls), nil
}

// ActivePoll returns livepoll_errors.ErrNotFound when nothing is running.
func (s *PollService) ActivePoll(ctx context.Context) (poll.Poll, error) {
	return s.store.GetActive(ctx)
}

// Resume re-arms the timer for a poll left active by a previous process,
// or closes it when its deadline already passed.
func (s *PollService) Resume(ctx context.Context) error {
	active, err := s.store.GetActive(ctx)
	if errors.Is(err, livepoll_errors.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if active.Remaining(s.clock.Now()) <= 0 {
		_, _, err := s.ClosePoll(ctx, active.ID, ReasonExpired)
		return err
	}
	s.arm(active)
	s.logger.Info("Resumed active poll", zap.String("poll_id", active.ID), zap.Time("ends_at", active.EndsAt()))
	return nil
}

// Now is the service clock.
func (s *PollService) Now() time.Time {
	return s.clock.Now()
}

// Shutdown stops pending timers and waits for best-effort side effects.
func (s *PollService) Shutdown() {
	s.timers.Stop()
	s.background.Wait()
}

func (s *PollService) arm(p poll.Poll) {
	delay := p.Remaining(s.clock.Now())
	s.timers.Schedule(p.ID, delay, s.expire)
}

func (s *PollService) expire(pollID string) {
	ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
	defer cancel()
	if _, _, err := s.ClosePoll(ctx, pollID, ReasonExpired); err != nil {
		s.logger.Error("Failed to expire poll", zap.String("poll_id", pollID), zap.Error(err))
	}
}

func (s *PollService) publish(eventType, pollID string, payload interface{}) {
	if s.publisher == nil {
		return
	}
	env, err := events.NewEnvelope(eventType, pollID, s.clock.Now(), payload)
	if err != nil {
		s.logger.Warn("Failed to build lifecycle event", zap.String("event_type", eventType), zap.Error(err))
		return
	}
	s.goBackground(func(ctx context.Context) {
		if err := s.publisher.Publish(ctx, env); err != nil {
			s.logger.Warn("Failed to publish lifecycle event",
				zap.String("event_type", eventType),
				zap.String("poll_id", pollID),
				zap.Error(err),
			)
		}
	})
}

func (s *PollService) goBackground(fn func(ctx context.Context)) {
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
		defer cancel()
		fn(ctx)
	}()
}

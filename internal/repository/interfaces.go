package repository

import (
	"context"

	"livepoll/internal/domain/poll"
)

// PollStore is the persistence contract shared by every backend. All
// mutating calls are atomic with respect to concurrent calls on the same
// poll; Create is additionally atomic with respect to the single active poll.
type PollStore interface {
	// Create persists p as the active poll and completes the previously
	// active poll in the same step. The completed predecessor is returned,
	// or nil when there was none.
	Create(ctx context.Context, p poll.Poll) (poll.Poll, *poll.Poll, error)

	Get(ctx context.Context, id string) (poll.Poll, error)
	GetActive(ctx context.Context) (poll.Poll, error)
	GetLast(ctx context.Context) (poll.Poll, error)

	// ListAll returns every poll, newest first.
	ListAll(ctx context.Context) ([]poll.Poll, error)

	// EndPoll completes the poll if it is still active. The bool reports
	// whether this call performed the transition.
	EndPoll(ctx context.Context, id string) (poll.Poll, bool, error)

	// SubmitVote appends the vote only if the poll is active and the
	// participant has not voted yet. Rejections are ErrNotFound,
	// ErrPollNotActive or ErrAlreadyVoted.
	SubmitVote(ctx context.Context, id, participantName string, optionIndex int) (poll.Poll, error)

	Ping(ctx context.Context) error
}

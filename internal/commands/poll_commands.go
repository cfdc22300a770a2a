package commands

import (
	"strings"

	"livepoll/internal/domain/poll"
	livepoll_errors "livepoll/pkg/errors"
)

// CreatePollCommand asks a new question, superseding any active poll.
type CreatePollCommand struct {
	Question string        `json:"question"`
	Options  []poll.Option `json:"options"`
	Duration int           `json:"duration"`
}

func (CreatePollCommand) CommandType() string { return "poll.create" }

func (c CreatePollCommand) Validate() error {
	if strings.TrimSpace(c.Question) == "" {
		return livepoll_errors.Invalid("question is required")
	}
	if len(c.Options) < 2 {
		return livepoll_errors.Invalid("at least two options are required")
	}
	for i, opt := range c.Options {
		if strings.TrimSpace(opt.Text) == "" {
			return livepoll_errors.Invalid("option %d has no text", i)
		}
	}
	if c.Duration < 1 {
		return livepoll_errors.Invalid("duration must be at least one second")
	}
	return nil
}

// SubmitVoteCommand records one participant's answer.
type SubmitVoteCommand struct {
	PollID          string `json:"pollId"`
	ParticipantName string `json:"participantName"`
	OptionIndex     *int   `json:"optionIndex"`
}

func (SubmitVoteCommand) CommandType() string { return "poll.vote" }

func (c SubmitVoteCommand) Validate() error {
	if c.PollID == "" {
		return livepoll_errors.Invalid("pollId is required")
	}
	if strings.TrimSpace(c.ParticipantName) == "" {
		return livepoll_errors.Invalid("participantName is required")
	}
	if c.OptionIndex == nil {
		return livepoll_errors.Invalid("optionIndex is required")
	}
	if *c.OptionIndex < 0 {
		return livepoll_errors.Invalid("optionIndex must not be negative")
	}
	return nil
}

// ClosePollCommand is the moderator's explicit close.
type ClosePollCommand struct {
	PollID string `json:"pollId"`
}

func (ClosePollCommand) CommandType() string { return "poll.close" }

func (c ClosePollCommand) Validate() error {
	if c.PollID == "" {
		return livepoll_errors.Invalid("pollId is required")
	}
	return nil
}

package commands

import (
	"context"
	"testing"

	"livepoll/internal/domain/poll"
	livepoll_errors "livepoll/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func validCreate() CreatePollCommand {
	return CreatePollCommand{
		Question: "2+2?",
		Options:  []poll.Option{{Text: "4", IsCorrect: true}, {Text: "5"}},
		Duration: 30,
	}
}

func TestBusRunsRegisteredHandler(t *testing.T) {
	bus := NewBus()
	var got Command
	bus.Register("poll.create", HandlerFunc(func(ctx context.Context, cmd Command) (Result, error) {
		got = cmd
		return Result{AggregateID: "poll-1"}, nil
	}))

	res, err := bus.Execute(context.Background(), validCreate())
	require.NoError(t, err)
	assert.Equal(t, "poll-1", res.AggregateID)
	assert.Equal(t, validCreate(), got)
}

func TestBusValidatesBeforeHandling(t *testing.T) {
	bus := NewBus()
	called := false
	bus.Register("poll.vote", HandlerFunc(func(ctx context.Context, cmd Command) (Result, error) {
		called = true
		return Result{}, nil
	}))

	_, err := bus.Execute(context.Background(), SubmitVoteCommand{PollID: "p", ParticipantName: "alice"})
	assert.ErrorIs(t, err, livepoll_errors.ErrInvalidInput)
	assert.False(t, called)
}

func TestBusUnknownCommand(t *testing.T) {
	_, err := NewBus().Execute(context.Background(), ClosePollCommand{PollID: "p"})
	assert.ErrorIs(t, err, ErrHandlerNotFound)
}

func TestCreatePollCommandValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *CreatePollCommand)
		ok     bool
	}{
		{name: "valid", mutate: func(c *CreatePollCommand) {}, ok: true},
		{name: "blank question", mutate: func(c *CreatePollCommand) { c.Question = "  " }},
		{name: "one option", mutate: func(c *CreatePollCommand) { c.Options = c.Options[:1] }},
		{name: "empty option text", mutate: func(c *CreatePollCommand) { c.Options[1].Text = "" }},
		{name: "zero duration", mutate: func(c *CreatePollCommand) { c.Duration = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := validCreate()
			tt.mutate(&cmd)
			err := cmd.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, livepoll_errors.ErrInvalidInput)
		})
	}
}

func TestSubmitVoteCommandValidate(t *testing.T) {
	assert.NoError(t, SubmitVoteCommand{PollID: "p", ParticipantName: "alice", OptionIndex: intPtr(0)}.Validate())
	assert.Error(t, SubmitVoteCommand{ParticipantName: "alice", OptionIndex: intPtr(0)}.Validate())
	assert.Error(t, SubmitVoteCommand{PollID: "p", ParticipantName: " ", OptionIndex: intPtr(0)}.Validate())
	assert.Error(t, SubmitVoteCommand{PollID: "p", ParticipantName: "alice", OptionIndex: intPtr(-1)}.Validate())
}

func TestClosePollCommandValidate(t *testing.T) {
	assert.NoError(t, ClosePollCommand{PollID: "p"}.Validate())
	assert.ErrorIs(t, ClosePollCommand{}.Validate(), livepoll_errors.ErrInvalidInput)
}

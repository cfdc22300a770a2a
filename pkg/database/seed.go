package database

import (
	"context"
	"fmt"
	"time"

	"livepoll/internal/domain/poll"
	"livepoll/internal/repository"

	"github.com/google/uuid"
)

type seedPoll struct {
	question string
	options  []poll.Option
	votes    []poll.Vote
}

var demoPolls = []seedPoll{
	{
		question: "Which planet is known as the Red Planet?",
		options:  []poll.Option{{Text: "Venus"}, {Text: "Mars", IsCorrect: true}, {Text: "Jupiter"}},
		votes: []poll.Vote{
			{ParticipantName: "alice", OptionIndex: 1},
			{ParticipantName: "bob", OptionIndex: 0},
			{ParticipantName: "carol", OptionIndex: 1},
		},
	},
	{
		question: "What is 7 x 8?",
		options:  []poll.Option{{Text: "54"}, {Text: "56", IsCorrect: true}, {Text: "58"}, {Text: "64"}},
		votes: []poll.Vote{
			{ParticipantName: "alice", OptionIndex: 1},
			{ParticipantName: "dave", OptionIndex: 3},
		},
	},
}

// SeedDemoPolls writes completed sample polls so history has content.
func SeedDemoPolls(ctx context.Context, store repository.PollStore, now time.Time) ([]poll.Poll, error) {
	out := make([]poll.Poll, 0, len(demoPolls))
	for i, seed := range demoPolls {
		start := now.Add(time.Duration(i-len(demoPolls)) * time.Hour).UTC()
		created, _, err := store.Create(ctx, poll.Poll{
			ID:        uuid.NewString(),
			Question:  seed.question,
			Options:   seed.options,
			Duration:  60,
			StartTime: &start,
			CreatedAt: start,
		})
		if err != nil {
			return nil, fmt.Errorf("seed poll %d: %w", i, err)
		}
		for _, v := range seed.votes {
			if _, err := store.SubmitVote(ctx, created.ID, v.ParticipantName, v.OptionIndex); err != nil {
				return nil, fmt.Errorf("seed vote on poll %d: %w", i, err)
			}
		}
		ended, _, err := store.EndPoll(ctx, created.ID)
		if err != nil {
			return nil, fmt.Errorf("seed close poll %d: %w", i, err)
		}
		out = append(out, ended)
	}
	return out, nil
}

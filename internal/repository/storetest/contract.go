// Package storetest holds the behaviour every PollStore backend must share.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"livepoll/internal/domain/poll"
	"livepoll/internal/repository"
	livepoll_errors "livepoll/pkg/errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var contractBase = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// NewDraft returns an unsaved poll whose start is offset from a fixed base.
func NewDraft(offset time.Duration) poll.Poll {
	start := contractBase.Add(offset)
	return poll.Poll{
		ID:       uuid.NewString(),
		Question: "Which?",
		Options: []poll.Option{
			{Text: "A", IsCorrect: true},
			{Text: "B"},
		},
		Duration:  60,
		StartTime: &start,
		CreatedAt: start,
	}
}

// Run exercises the behaviour every PollStore backend must
// share, including the atomicity guarantees under concurrency.
func Run(t *testing.T, newStore func(t *testing.T) repository.PollStore) {
	ctx := context.Background()

	t.Run("CreateActivatesAndSupersedes", func(t *testing.T) {
		store := newStore(t)

		first, superseded, err := store.Create(ctx, NewDraft(0))
		require.NoError(t, err)
		assert.Nil(t, superseded)
		assert.Equal(t, poll.StatusActive, first.Status)
		assert.Empty(t, first.Votes)
		require.NotNil(t, first.StartTime)

		second, superseded, err := store.Create(ctx, NewDraft(time.Second))
		require.NoError(t, err)
		require.NotNil(t, superseded)
		assert.Equal(t, first.ID, superseded.ID)
		assert.Equal(t, poll.StatusCompleted, superseded.Status)

		active, err := store.GetActive(ctx)
		require.NoError(t, err)
		assert.Equal(t, second.ID, active.ID)

		old, err := store.Get(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, poll.StatusCompleted, old.Status)
	})

	t.Run("NoActivePoll", func(t *testing.T) {
		store := newStore(t)

		_, err := store.GetActive(ctx)
		assert.ErrorIs(t, err, livepoll_errors.ErrNotFound)
		_, err = store.GetLast(ctx)
		assert.ErrorIs(t, err, livepoll_errors.ErrNotFound)
		_, err = store.Get(ctx, uuid.NewString())
		assert.ErrorIs(t, err, livepoll_errors.ErrNotFound)
	})

	t.Run("ConcurrentDistinctVoters", func(t *testing.T) {
		store := newStore(t)
		p, _, err := store.Create(ctx, NewDraft(0))
		require.NoError(t, err)

		const voters = 40
		var wg sync.WaitGroup
		errs := make(chan error, voters)
		for i := 0; i < voters; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := store.SubmitVote(ctx, p.ID, fmt.Sprintf("voter-%d", i), i%2)
				errs <- err
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		final, err := store.Get(ctx, p.ID)
		require.NoError(t, err)
		require.Len(t, final.Votes, voters)
		seen := make(map[string]bool)
		for _, v := range final.Votes {
			assert.False(t, seen[v.ParticipantName], "duplicate vote for %s", v.ParticipantName)
			seen[v.ParticipantName] = true
		}
	})

	t.Run("ConcurrentDuplicateVoter", func(t *testing.T) {
		store := newStore(t)
		p, _, err := store.Create(ctx, NewDraft(0))
		require.NoError(t, err)

		const attempts = 20
		var accepted, duplicates atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := store.SubmitVote(ctx, p.ID, "alice", i%2)
				switch {
				case err == nil:
					accepted.Add(1)
				case errors.Is(err, livepoll_errors.ErrAlreadyVoted):
					duplicates.Add(1)
				}
			}(i)
		}
		wg.Wait()

		assert.Equal(t, int32(1), accepted.Load())
		assert.Equal(t, int32(attempts-1), duplicates.Load())

		final, err := store.Get(ctx, p.ID)
		require.NoError(t, err)
		assert.Len(t, final.Votes, 1)
	})

	t.Run("VoteRejections", func(t *testing.T) {
		store := newStore(t)
		p, _, err := store.Create(ctx, NewDraft(0))
		require.NoError(t, err)

		updated, err := store.SubmitVote(ctx, p.ID, "alice", 0)
		require.NoError(t, err)
		require.Len(t, updated.Votes, 1)
		assert.Equal(t, poll.Vote{ParticipantName: "alice", OptionIndex: 0}, updated.Votes[0])

		_, err = store.SubmitVote(ctx, p.ID, "alice", 1)
		assert.ErrorIs(t, err, livepoll_errors.ErrAlreadyVoted)
		assert.ErrorIs(t, err, livepoll_errors.ErrConflict)

		_, err = store.SubmitVote(ctx, uuid.NewString(), "alice", 0)
		assert.ErrorIs(t, err, livepoll_errors.ErrNotFound)

		_, _, err = store.EndPoll(ctx, p.ID)
		require.NoError(t, err)
		_, err = store.SubmitVote(ctx, p.ID, "bob", 0)
		assert.ErrorIs(t, err, livepoll_errors.ErrPollNotActive)

		final, err := store.Get(ctx, p.ID)
		require.NoError(t, err)
		assert.Len(t, final.Votes, 1)
	})

	t.Run("EndPollIsIdempotent", func(t *testing.T) {
		store := newStore(t)
		p, _, err := store.Create(ctx, NewDraft(0))
		require.NoError(t, err)
		_, err = store.SubmitVote(ctx, p.ID, "alice", 1)
		require.NoError(t, err)

		ended, transitioned, err := store.EndPoll(ctx, p.ID)
		require.NoError(t, err)
		assert.True(t, transitioned)
		assert.Equal(t, poll.StatusCompleted, ended.Status)

		again, transitioned, err := store.EndPoll(ctx, p.ID)
		require.NoError(t, err)
		assert.False(t, transitioned)
		assert.Equal(t, ended.Status, again.Status)
		assert.Equal(t, ended.Votes, again.Votes)

		_, err = store.GetActive(ctx)
		assert.ErrorIs(t, err, livepoll_errors.ErrNotFound)

		_, _, err = store.EndPoll(ctx, uuid.NewString())
		assert.ErrorIs(t, err, livepoll_errors.ErrNotFound)
	})

	t.Run("ConcurrentEndTransitionsOnce", func(t *testing.T) {
		store := newStore(t)
		p, _, err := store.Create(ctx, NewDraft(0))
		require.NoError(t, err)

		const closers = 10
		var transitions atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < closers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, ok, err := store.EndPoll(ctx, p.ID)
				if err == nil && ok {
					transitions.Add(1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), transitions.Load())
	})

	t.Run("VoteRacingClosure", func(t *testing.T) {
		store := newStore(t)
		p, _, err := store.Create(ctx, NewDraft(0))
		require.NoError(t, err)

		const voters = 30
		var accepted, rejected atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < voters; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := store.SubmitVote(ctx, p.ID, fmt.Sprintf("racer-%d", i), 0)
				switch {
				case err == nil:
					accepted.Add(1)
				case errors.Is(err, livepoll_errors.ErrPollNotActive):
					rejected.Add(1)
				}
			}(i)
			if i == voters/2 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, _, _ = store.EndPoll(ctx, p.ID)
				}()
			}
		}
		wg.Wait()

		assert.Equal(t, int32(voters), accepted.Load()+rejected.Load())
		final, err := store.Get(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, poll.StatusCompleted, final.Status)
		assert.Len(t, final.Votes, int(accepted.Load()))
	})

	t.Run("ConcurrentCreateKeepsSingleActive", func(t *testing.T) {
		store := newStore(t)

		const creators = 8
		var supersededCount atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < creators; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, superseded, err := store.Create(ctx, NewDraft(time.Duration(i)*time.Second))
				if err == nil && superseded != nil {
					supersededCount.Add(1)
				}
			}(i)
		}
		wg.Wait()

		all, err := store.ListAll(ctx)
		require.NoError(t, err)
		require.Len(t, all, creators)
		active := 0
		for _, p := range all {
			if p.IsActive() {
				active++
			}
		}
		assert.Equal(t, 1, active)
		assert.Equal(t, int32(creators-1), supersededCount.Load())
	})

	t.Run("HistoryOrdering", func(t *testing.T) {
		store := newStore(t)
		var ids []string
		for i := 0; i < 4; i++ {
			p, _, err := store.Create(ctx, NewDraft(time.Duration(i)*time.Minute))
			require.NoError(t, err)
			ids = append(ids, p.ID)
		}

		first, err := store.ListAll(ctx)
		require.NoError(t, err)
		second, err := store.ListAll(ctx)
		require.NoError(t, err)

		require.Len(t, first, 4)
		assert.Equal(t, []string{ids[3], ids[2], ids[1], ids[0]}, pollIDs(first))
		assert.Equal(t, pollIDs(first), pollIDs(second))
		for i := 1; i < len(first); i++ {
			assert.False(t, first[i].CreatedAt.After(first[i-1].CreatedAt))
		}

		last, err := store.GetLast(ctx)
		require.NoError(t, err)
		assert.Equal(t, ids[3], last.ID)
	})
}

// pollIDs lists ids in order.
func pollIDs(polls []poll.Poll) []string {
	ids := make([]string, 0, len(polls))
	for _, p := range polls {
		ids = append(ids, p.ID)
	}
	return ids
}

package repository_test

import (
	"context"
	"testing"

	"livepoll/internal/domain/poll"
	"livepoll/internal/repository"
	"livepoll/internal/repository/storetest"
	livepoll_errors "livepoll/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryPollStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) repository.PollStore {
		return repository.NewMemoryPollStore()
	})
}

func TestMemoryPollStoreRejectsDuplicateID(t *testing.T) {
	store := repository.NewMemoryPollStore()
	draft := storetest.NewDraft(0)

	_, _, err := store.Create(context.Background(), draft)
	require.NoError(t, err)
	_, _, err = store.Create(context.Background(), draft)
	assert.ErrorIs(t, err, livepoll_errors.ErrInvalidInput)
}

func TestMemoryPollStoreReturnsCopies(t *testing.T) {
	store := repository.NewMemoryPollStore()
	ctx := context.Background()
	p, _, err := store.Create(ctx, storetest.NewDraft(0))
	require.NoError(t, err)

	updated, err := store.SubmitVote(ctx, p.ID, "alice", 0)
	require.NoError(t, err)
	updated.Votes[0].OptionIndex = 1
	updated.Status = poll.StatusCompleted

	stored, err := store.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.Votes[0].OptionIndex)
	assert.Equal(t, poll.StatusActive, stored.Status)
}

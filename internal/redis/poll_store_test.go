package redis

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"livepoll/internal/events"
	"livepoll/internal/repository"
	"livepoll/internal/repository/storetest"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *goredis.Client {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	require.NoError(t, Ping(context.Background(), client, 2*time.Second))
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisPollStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) repository.PollStore {
		client := newTestClient(t)
		store := NewPollStore(client, "livepoll-test:"+uuid.NewString()+":")
		t.Cleanup(func() {
			_ = store.Flush(context.Background())
		})
		return store
	})
}

func TestRedisPollStoreFlushOnlyTouchesPrefix(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	mine := NewPollStore(client, "livepoll-test:"+uuid.NewString()+":")
	other := NewPollStore(client, "livepoll-test:"+uuid.NewString()+":")
	t.Cleanup(func() { _ = other.Flush(ctx) })

	_, _, err := mine.Create(ctx, storetest.NewDraft(0))
	require.NoError(t, err)
	kept, _, err := other.Create(ctx, storetest.NewDraft(0))
	require.NoError(t, err)

	require.NoError(t, mine.Flush(ctx))

	polls, err := mine.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, polls)

	active, err := other.GetActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, kept.ID, active.ID)
}

func TestPublisherDeliversEnvelope(t *testing.T) {
	client := newTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	publisher := NewPublisher(client, "livepoll-test:"+uuid.NewString())
	sub := client.Subscribe(ctx, publisher.Channel())
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	env, err := events.NewEnvelope(events.EventTypeVoteAccepted, "poll-1", time.Now(), events.VoteAcceptedPayload{
		PollID:          "poll-1",
		ParticipantName: "alice",
		OptionIndex:     1,
	})
	require.NoError(t, err)
	require.NoError(t, publisher.Publish(ctx, env))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)

	var got events.Envelope
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
	assert.Equal(t, events.EventTypeVoteAccepted, got.EventType)
	assert.Equal(t, events.AggregateTypePoll, got.AggregateType)
	assert.Equal(t, "poll-1", got.AggregateID)
	assert.JSONEq(t, `{"pollId":"poll-1","participantName":"alice","optionIndex":1}`, string(got.Payload))
}

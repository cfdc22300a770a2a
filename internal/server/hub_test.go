package server

import (
	"encoding/json"
	"fmt"
	"testing"

	"livepoll/internal/domain/participant"
	livepoll_errors "livepoll/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type frame struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"`
}

func newTestHub(t *testing.T) *Hub {
	return NewHub(NewWebSocketLoggerWith(zaptest.NewLogger(t)))
}

func newTestClient(t *testing.T, h *Hub, id string, buffer int) *Client {
	t.Helper()
	c := &Client{hub: h, id: id, send: make(chan []byte, buffer)}
	require.NoError(t, h.Register(c))
	return c
}

// drain returns every frame queued for c without blocking.
func drain(t *testing.T, c *Client) []frame {
	t.Helper()
	var out []frame
	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				return out
			}
			var f frame
			require.NoError(t, json.Unmarshal(data, &f))
			out = append(out, f)
		default:
			return out
		}
	}
}

func closed(c *Client) bool {
	for {
		select {
		case _, ok := <-c.send:
			if !ok {
				return true
			}
		default:
			return false
		}
	}
}

func participantsOf(t *testing.T, f frame) []participant.Participant {
	t.Helper()
	require.Equal(t, "participants_update", f.Type)
	var out []participant.Participant
	require.NoError(t, json.Unmarshal(f.Payload, &out))
	return out
}

func TestHubJoinIsIdempotent(t *testing.T) {
	h := newTestHub(t)
	a := newTestClient(t, h, "a", 16)
	b := newTestClient(t, h, "b", 16)

	require.NoError(t, h.Join("a", "alice"))
	require.NoError(t, h.Join("a", "alice"))
	require.NoError(t, h.Join("b", "bob"))

	assert.Equal(t, []participant.Participant{{ID: "a", Name: "alice"}, {ID: "b", Name: "bob"}}, h.Participants())

	framesA := drain(t, a)
	framesB := drain(t, b)
	require.Len(t, framesA, 3)
	require.Len(t, framesB, 3)
	assert.Len(t, participantsOf(t, framesA[1]), 1)
	assert.Len(t, participantsOf(t, framesB[2]), 2)
}

func TestHubJoinUnknownConnection(t *testing.T) {
	h := newTestHub(t)
	assert.ErrorIs(t, h.Join("ghost", "casper"), livepoll_errors.ErrNotFound)
	assert.Empty(t, h.Participants())
}

func TestHubLeaveAndUnregister(t *testing.T) {
	h := newTestHub(t)
	a := newTestClient(t, h, "a", 16)
	b := newTestClient(t, h, "b", 16)
	require.NoError(t, h.Join("a", "alice"))
	require.NoError(t, h.Join("b", "bob"))
	drain(t, a)
	drain(t, b)

	h.Leave("a")
	assert.Equal(t, []participant.Participant{{ID: "b", Name: "bob"}}, h.Participants())
	assert.Equal(t, 2, h.ClientCount(), "leaving the list keeps the connection")
	assert.Len(t, participantsOf(t, drain(t, a)[0]), 1)

	h.Unregister("b")
	assert.Empty(t, h.Participants())
	assert.Equal(t, 1, h.ClientCount())
	assert.True(t, closed(b))
	assert.Empty(t, participantsOf(t, drain(t, a)[0]))

	// Second unregister is harmless.
	h.Unregister("b")
}

func TestHubDisconnectForcibly(t *testing.T) {
	h := newTestHub(t)
	a := newTestClient(t, h, "a", 16)
	b := newTestClient(t, h, "b", 16)
	require.NoError(t, h.Join("a", "alice"))
	require.NoError(t, h.Join("b", "bob"))
	drain(t, a)
	drain(t, b)

	require.NoError(t, h.DisconnectForcibly("b"))

	framesB := drain(t, b)
	require.Len(t, framesB, 1)
	assert.Equal(t, "kicked", framesB[0].Type)
	assert.True(t, closed(b))

	framesA := drain(t, a)
	require.Len(t, framesA, 1)
	assert.Equal(t, []participant.Participant{{ID: "a", Name: "alice"}}, participantsOf(t, framesA[0]))
	assert.Equal(t, 1, h.ClientCount())

	assert.ErrorIs(t, h.DisconnectForcibly("b"), livepoll_errors.ErrNotFound)
}

func TestHubBroadcastPreservesOrder(t *testing.T) {
	h := newTestHub(t)
	a := newTestClient(t, h, "a", 128)
	b := newTestClient(t, h, "b", 128)

	for i := 0; i < 100; i++ {
		h.Broadcast("tick", i)
	}

	for _, c := range []*Client{a, b} {
		frames := drain(t, c)
		require.Len(t, frames, 100)
		for i, f := range frames {
			assert.Equal(t, "tick", f.Type)
			assert.JSONEq(t, fmt.Sprint(i), string(f.Payload))
		}
	}
}

func TestHubEvictsSlowClient(t *testing.T) {
	h := newTestHub(t)
	slow := newTestClient(t, h, "slow", 1)
	fast := newTestClient(t, h, "fast", 16)

	h.Broadcast("first", nil)
	h.Broadcast("second", nil)

	assert.Len(t, drain(t, fast), 2)
	assert.Equal(t, 1, h.ClientCount())
	assert.ErrorIs(t, h.SendTo("slow", "third", nil), livepoll_errors.ErrNotFound)

	frames := drain(t, slow)
	require.Len(t, frames, 1)
	assert.Equal(t, "first", frames[0].Type)
}

func TestHubBroadcastExceptAndSendTo(t *testing.T) {
	h := newTestHub(t)
	a := newTestClient(t, h, "a", 16)
	b := newTestClient(t, h, "b", 16)

	h.BroadcastExcept("a", "poll_ended", map[string]string{"id": "p1"})
	require.NoError(t, h.SendTo("a", "poll_ended", map[string]string{"id": "p1"}))

	assert.Len(t, drain(t, a), 1)
	assert.Len(t, drain(t, b), 1)
	assert.ErrorIs(t, h.SendTo("nobody", "x", nil), livepoll_errors.ErrNotFound)
}

func TestHubStop(t *testing.T) {
	h := newTestHub(t)
	a := newTestClient(t, h, "a", 4)

	h.Stop()
	assert.True(t, closed(a))
	assert.Zero(t, h.ClientCount())
	assert.ErrorIs(t, h.Register(&Client{id: "late", send: make(chan []byte, 1)}), ErrHubStopped)
}

func TestHubUnregisterAfterKickDoesNotRepeatList(t *testing.T) {
	h := newTestHub(t)
	a := newTestClient(t, h, "a", 16)
	newTestClient(t, h, "b", 16)
	newTestClient(t, h, "c", 16)
	require.NoError(t, h.Join("a", "alice"))
	require.NoError(t, h.Join("b", "bob"))
	drain(t, a)

	require.NoError(t, h.DisconnectForcibly("b"))
	require.Len(t, drain(t, a), 1)

	// The kicked client's read pump unregisters it afterwards.
	h.Unregister("b")
	assert.Empty(t, drain(t, a))

	// c never joined, so its departure changes nothing.
	h.Leave("c")
	h.Unregister("c")
	assert.Empty(t, drain(t, a))
	assert.Equal(t, []participant.Participant{{ID: "a", Name: "alice"}}, h.Participants())
}

func TestHubSendToIfPollSequence(t *testing.T) {
	h := newTestHub(t)
	a := newTestClient(t, h, "a", 16)

	seq := h.PollSequence()
	h.Broadcast("receive_message", "hi")
	require.NoError(t, h.Join("a", "alice"))
	assert.Equal(t, seq, h.PollSequence(), "chat and participant updates are not poll state")

	sent, err := h.SendToIfPollSequence("a", seq, "poll_active", "first")
	require.NoError(t, err)
	assert.True(t, sent)

	seq = h.PollSequence()
	h.Broadcast("new_poll", "newer")
	sent, err = h.SendToIfPollSequence("a", seq, "poll_active", "stale")
	require.NoError(t, err)
	assert.False(t, sent)

	h.BroadcastExcept("a", "poll_ended", "ended")
	assert.Equal(t, seq+2, h.PollSequence())

	var types []string
	for _, f := range drain(t, a) {
		types = append(types, f.Type)
	}
	assert.Equal(t, []string{"receive_message", "participants_update", "poll_active", "new_poll"}, types)

	_, err = h.SendToIfPollSequence("ghost", h.PollSequence(), "poll_active", nil)
	assert.ErrorIs(t, err, livepoll_errors.ErrNotFound)
}

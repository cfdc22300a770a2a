package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"livepoll/internal/commands"
	"livepoll/internal/domain/poll"
	"livepoll/internal/events"
	"livepoll/internal/repository"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const (
	deliveryBroadcast = "broadcast"
	deliveryExcept    = "except"
	deliveryDirect    = "direct"
)

type delivery struct {
	Kind    string
	Target  string
	Event   string
	Payload interface{}
}

// recordingHub captures every delivery in emission order and keeps the same
// poll sequence as server.Hub.
type recordingHub struct {
	mu         sync.Mutex
	deliveries []delivery
	pollSeq    uint64
	// afterExcept runs once, outside the lock, after the next BroadcastExcept.
	afterExcept func()
}

func (h *recordingHub) Broadcast(eventType string, payload interface{}) {
	h.record(delivery{Kind: deliveryBroadcast, Event: eventType, Payload: payload})
}

func (h *recordingHub) BroadcastExcept(excludeID, eventType string, payload interface{}) {
	h.record(delivery{Kind: deliveryExcept, Target: excludeID, Event: eventType, Payload: payload})

	h.mu.Lock()
	hook := h.afterExcept
	h.afterExcept = nil
	h.mu.Unlock()
	if hook != nil {
		hook()
	}
}

func (h *recordingHub) SendTo(connectionID, eventType string, payload interface{}) error {
	h.record(delivery{Kind: deliveryDirect, Target: connectionID, Event: eventType, Payload: payload})
	return nil
}

func (h *recordingHub) PollSequence() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pollSeq
}

func (h *recordingHub) SendToIfPollSequence(connectionID string, seq uint64, eventType string, payload interface{}) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pollSeq != seq {
		return false, nil
	}
	h.deliveries = append(h.deliveries, delivery{Kind: deliveryDirect, Target: connectionID, Event: eventType, Payload: payload})
	return true, nil
}

func (h *recordingHub) record(d delivery) {
	h.mu.Lock()
	if d.Kind != deliveryDirect {
		switch d.Event {
		case "new_poll", "poll_updated", "poll_ended":
			h.pollSeq++
		}
	}
	h.deliveries = append(h.deliveries, d)
	h.mu.Unlock()
}

func (h *recordingHub) all() []delivery {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]delivery(nil), h.deliveries...)
}

// count returns how many deliveries of kind carried event for pollID.
func (h *recordingHub) count(kind, event, pollID string) int {
	n := 0
	for _, d := range h.all() {
		if d.Kind != kind || d.Event != event {
			continue
		}
		switch p := d.Payload.(type) {
		case poll.Poll:
			if p.ID == pollID {
				n++
			}
		case ActivePollPayload:
			if p.Poll.ID == pollID {
				n++
			}
		}
	}
	return n
}

// closures counts poll_ended fan-outs for pollID, excluding direct sends.
func (h *recordingHub) closures(pollID string) int {
	return h.count(deliveryBroadcast, "poll_ended", pollID) + h.count(deliveryExcept, "poll_ended", pollID)
}

type recordingPublisher struct {
	mu   sync.Mutex
	envs []events.Envelope
}

func (p *recordingPublisher) Publish(_ context.Context, env events.Envelope) error {
	p.mu.Lock()
	p.envs = append(p.envs, env)
	p.mu.Unlock()
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.envs))
	for _, e := range p.envs {
		out = append(out, e.EventType)
	}
	return out
}

type recordingArchive struct {
	mu    sync.Mutex
	polls []poll.Poll
}

func (a *recordingArchive) Archive(_ context.Context, p poll.Poll) error {
	a.mu.Lock()
	a.polls = append(a.polls, p)
	a.mu.Unlock()
	return nil
}

type fixture struct {
	clock *clock.Mock
	store *repository.MemoryPollStore
	hub   *recordingHub
	svc   *PollService
}

func newFixture(t *testing.T, opts PollServiceOptions) *fixture {
	t.Helper()
	return newFixtureWith(t, opts, nil)
}

// newFixtureWith lets wrap decorate the memory store the service runs on.
func newFixtureWith(t *testing.T, opts PollServiceOptions, wrap func(*repository.MemoryPollStore) repository.PollStore) *fixture {
	t.Helper()
	mock := clock.NewMock()
	mock.Set(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))

	opts.Clock = mock
	if opts.Logger == nil {
		opts.Logger = zaptest.NewLogger(t)
	}
	if opts.MaxDuration == 0 {
		opts.MaxDuration = time.Hour
	}

	store := repository.NewMemoryPollStore()
	var backend repository.PollStore = store
	if wrap != nil {
		backend = wrap(store)
	}
	hub := &recordingHub{}
	svc := NewPollService(backend, hub, opts)
	t.Cleanup(svc.Shutdown)

	return &fixture{clock: mock, store: store, hub: hub, svc: svc}
}

func (f *fixture) create(t *testing.T, duration int) poll.Poll {
	t.Helper()
	p, err := f.svc.CreatePoll(context.Background(), commands.CreatePollCommand{
		Question: "Capital of France?",
		Options: []poll.Option{
			{Text: "Paris", IsCorrect: true},
			{Text: "Lyon"},
		},
		Duration: duration,
	})
	require.NoError(t, err)
	return p
}

// status reads the stored status directly.
func (f *fixture) status(t *testing.T, id string) poll.Status {
	t.Helper()
	p, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	return p.Status
}

func intPtr(v int) *int { return &v }

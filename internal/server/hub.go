package server

import (
	"encoding/json"
	"errors"
	"sync"

	"livepoll/internal/domain/participant"
	livepoll_errors "livepoll/pkg/errors"
	wire "livepoll/pkg/events"

	"go.uber.org/zap"
)

var ErrHubStopped = errors.New("hub stopped")

// Hub maintains the set of active clients and the participant list. Every
// enqueue onto a client's send buffer happens under mu, so per-client order
// matches the order in which the hub emitted.
type Hub struct {
	mu           sync.Mutex
	clients      map[string]*Client
	participants []participant.Participant
	logger       *WebSocketLogger
	stopped      bool
	// pollSeq counts new_poll, poll_updated and poll_ended fan-outs.
	pollSeq uint64
}

func NewHub(logger *WebSocketLogger) *Hub {
	if logger == nil {
		logger = NewWebSocketLogger()
	}
	return &Hub{
		clients: make(map[string]*Client),
		logger:  logger,
	}
}

// Register adds a client so it receives broadcasts.
func (h *Hub) Register(client *Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return ErrHubStopped
	}
	h.clients[client.id] = client
	h.logger.Info("client connected", client.id, zap.Int("clients", len(h.clients)))
	return nil
}

// Unregister drops the client and its participant entry, if any.
func (h *Hub) Unregister(connectionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if client, ok := h.clients[connectionID]; ok {
		h.removeLocked(client)
		h.logger.Info("client disconnected", connectionID, zap.Int("clients", len(h.clients)))
	}
	h.leaveLocked(connectionID)
}

// Join adds the connection to the participant list once and broadcasts the
// full list.
func (h *Hub) Join(connectionID, name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[connectionID]; !ok {
		return livepoll_errors.ErrNotFound
	}
	if h.indexLocked(connectionID) < 0 {
		h.participants = append(h.participants, participant.Participant{ID: connectionID, Name: name})
		h.logger.Info("participant joined", connectionID, zap.String("name", name))
	}
	h.broadcastLocked("", wire.ParticipantsUpdate, h.participantsLocked())
	return nil
}

// Leave removes the participant if present and broadcasts the list.
func (h *Hub) Leave(connectionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(connectionID)
}

// DisconnectForcibly sends kicked to the connection, closes it, then leaves.
func (h *Hub) DisconnectForcibly(connectionID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[connectionID]
	if !ok {
		return livepoll_errors.ErrNotFound
	}

	if data, err := encode(wire.Kicked, nil); err == nil {
		select {
		case client.send <- data:
		default:
		}
	}
	h.removeLocked(client)
	h.leaveLocked(connectionID)
	h.logger.Info("client kicked", connectionID)
	return nil
}

// Broadcast delivers to every registered client without waiting on any.
func (h *Hub) Broadcast(eventType string, payload interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.broadcastLocked("", eventType, payload)
}

// BroadcastExcept delivers to every registered client but one.
func (h *Hub) BroadcastExcept(excludeID, eventType string, payload interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.broadcastLocked(excludeID, eventType, payload)
}

// SendTo delivers to a single client.
func (h *Hub) SendTo(connectionID, eventType string, payload interface{}) error {
	data, err := encode(eventType, payload)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[connectionID]
	if !ok {
		return livepoll_errors.ErrNotFound
	}
	if !h.enqueueLocked(client, data) {
		return livepoll_errors.ErrServiceUnavailable
	}
	return nil
}

// PollSequence returns the number of poll state fan-outs so far.
func (h *Hub) PollSequence() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pollSeq
}

// SendToIfPollSequence delivers to a single client only if no poll state
// fan-out happened since seq was read. It reports whether the frame was queued.
func (h *Hub) SendToIfPollSequence(connectionID string, seq uint64, eventType string, payload interface{}) (bool, error) {
	data, err := encode(eventType, payload)
	if err != nil {
		return false, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[connectionID]
	if !ok {
		return false, livepoll_errors.ErrNotFound
	}
	if h.pollSeq != seq {
		return false, nil
	}
	if !h.enqueueLocked(client, data) {
		return false, livepoll_errors.ErrServiceUnavailable
	}
	return true, nil
}

// Participants returns the current participant list in join order.
func (h *Hub) Participants() []participant.Participant {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.participantsLocked()
}

func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Stop closes every client and refuses new registrations.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.stopped = true
	for _, client := range h.clients {
		h.removeLocked(client)
	}
	h.participants = nil
}

func (h *Hub) broadcastLocked(excludeID, eventType string, payload interface{}) {
	if isPollState(eventType) {
		h.pollSeq++
	}
	data, err := encode(eventType, payload)
	if err != nil {
		h.logger.Error("broadcast encode failed", "", err, zap.String("msg_type", eventType))
		return
	}
	for id, client := range h.clients {
		if id == excludeID {
			continue
		}
		h.enqueueLocked(client, data)
	}
}

// enqueueLocked never blocks. A client that cannot keep up is evicted; its
// read pump then unregisters it and the participant list is rebroadcast.
func (h *Hub) enqueueLocked(client *Client, data []byte) bool {
	select {
	case client.send <- data:
		return true
	default:
		h.logger.Warn("client send buffer full", client.id)
		h.removeLocked(client)
		return false
	}
}

func (h *Hub) removeLocked(client *Client) {
	if current, ok := h.clients[client.id]; !ok || current != client {
		return
	}
	delete(h.clients, client.id)
	close(client.send)
}

// leaveLocked broadcasts the list only when the connection was a participant.
func (h *Hub) leaveLocked(connectionID string) {
	i := h.indexLocked(connectionID)
	if i < 0 {
		return
	}
	h.participants = append(h.participants[:i], h.participants[i+1:]...)
	h.logger.Info("participant left", connectionID)
	h.broadcastLocked("", wire.ParticipantsUpdate, h.participantsLocked())
}

func (h *Hub) indexLocked(connectionID string) int {
	for i, p := range h.participants {
		if p.ID == connectionID {
			return i
		}
	}
	return -1
}

func (h *Hub) participantsLocked() []participant.Participant {
	return append(make([]participant.Participant, 0, len(h.participants)), h.participants...)
}

func isPollState(eventType string) bool {
	switch eventType {
	case wire.NewPoll, wire.PollUpdated, wire.PollEnded:
		return true
	}
	return false
}

func encode(eventType string, payload interface{}) ([]byte, error) {
	return json.Marshal(wire.NewEvent(eventType, payload))
}

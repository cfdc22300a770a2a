package events

import (
	"encoding/json"
	"time"
)

// Event is the frame written to every WebSocket client.
type Event struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload"`
	Timestamp int64       `json:"timestamp"`
}

// ClientMessage is an inbound frame. Payload is decoded per Type.
type ClientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func NewEvent(eventType string, payload interface{}) Event {
	return Event{
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
	}
}

// Server to client.
const (
	PollActive         = "poll_active"
	PollEnded          = "poll_ended"
	NewPoll            = "new_poll"
	PollUpdated        = "poll_updated"
	VoteSuccess        = "vote_success"
	Error              = "error"
	PollHistory        = "poll_history"
	ParticipantsUpdate = "participants_update"
	ReceiveMessage     = "receive_message"
	Kicked             = "kicked"
)

// Client to server.
const (
	CreatePoll  = "create_poll"
	SubmitVote  = "submit_vote"
	GetHistory  = "get_history"
	JoinCheck   = "join_check"
	SendMessage = "send_message"
	KickUser    = "kick_user"
	ClosePoll   = "close_poll"
)

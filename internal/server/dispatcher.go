package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"

	"livepoll/internal/commands"
	"livepoll/internal/domain/poll"
	"livepoll/internal/services"
	livepoll_errors "livepoll/pkg/errors"
	wire "livepoll/pkg/events"

	"go.uber.org/zap"
)

// Dispatcher routes inbound client events. Failures are reported to the
// sending connection only.
type Dispatcher struct {
	hub    *Hub
	bus    *commands.Bus
	polls  *services.PollService
	logger *WebSocketLogger
}

func NewDispatcher(hub *Hub, bus *commands.Bus, polls *services.PollService, logger *WebSocketLogger) *Dispatcher {
	if logger == nil {
		logger = NewWebSocketLogger()
	}
	return &Dispatcher{hub: hub, bus: bus, polls: polls, logger: logger}
}

type voteRequest struct {
	PollID          string `json:"pollId"`
	ParticipantName string `json:"participantName"`
	StudentName     string `json:"studentName"`
	OptionIndex     *int   `json:"optionIndex"`
}

func (d *Dispatcher) Dispatch(ctx context.Context, connectionID string, msg wire.ClientMessage) {
	var err error
	switch msg.Type {
	case wire.CreatePoll:
		err = d.createPoll(ctx, msg.Payload)
	case wire.SubmitVote:
		err = d.submitVote(ctx, connectionID, msg.Payload)
	case wire.ClosePoll:
		err = d.closePoll(ctx, msg.Payload)
	case wire.GetHistory:
		err = d.history(ctx, connectionID)
	case wire.JoinCheck:
		err = d.join(connectionID, msg.Payload)
	case wire.SendMessage:
		err = d.relay(msg.Payload)
	case wire.KickUser:
		err = d.kick(msg.Payload)
	default:
		err = livepoll_errors.Invalid("unknown event type %q", msg.Type)
	}

	if err != nil {
		d.reportError(connectionID, msg.Type, err)
	}
}

func (d *Dispatcher) createPoll(ctx context.Context, payload json.RawMessage) error {
	var cmd commands.CreatePollCommand
	if err := decode(payload, &cmd); err != nil {
		return err
	}
	_, err := d.bus.Execute(ctx, cmd)
	return err
}

func (d *Dispatcher) submitVote(ctx context.Context, connectionID string, payload json.RawMessage) error {
	var req voteRequest
	if err := decode(payload, &req); err != nil {
		return err
	}
	name := req.ParticipantName
	if name == "" {
		name = req.StudentName
	}

	res, err := d.bus.Execute(ctx, commands.SubmitVoteCommand{
		PollID:          req.PollID,
		ParticipantName: name,
		OptionIndex:     req.OptionIndex,
	})
	if err != nil {
		return err
	}

	updated, _ := res.Payload.(poll.Poll)
	return d.hub.SendTo(connectionID, wire.VoteSuccess, updated.Public())
}

func (d *Dispatcher) closePoll(ctx context.Context, payload json.RawMessage) error {
	var cmd commands.ClosePollCommand
	if err := decodeStringOr(payload, &cmd.PollID, &cmd); err != nil {
		return err
	}
	_, err := d.bus.Execute(ctx, cmd)
	return err
}

func (d *Dispatcher) history(ctx context.Context, connectionID string) error {
	polls, err := d.polls.History(ctx)
	if err != nil {
		return err
	}
	return d.hub.SendTo(connectionID, wire.PollHistory, polls)
}

func (d *Dispatcher) join(connectionID string, payload json.RawMessage) error {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeStringOr(payload, &req.Name, &req); err != nil {
		return err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return livepoll_errors.Invalid("name is required")
	}
	return d.hub.Join(connectionID, name)
}

func (d *Dispatcher) relay(payload json.RawMessage) error {
	if len(bytes.TrimSpace(payload)) == 0 || !json.Valid(payload) {
		return livepoll_errors.Invalid("message payload is required")
	}
	d.hub.Broadcast(wire.ReceiveMessage, payload)
	return nil
}

func (d *Dispatcher) kick(payload json.RawMessage) error {
	var req struct {
		ConnectionID string `json:"connectionId"`
	}
	if err := decodeStringOr(payload, &req.ConnectionID, &req); err != nil {
		return err
	}
	if req.ConnectionID == "" {
		return livepoll_errors.Invalid("connectionId is required")
	}
	if err := d.hub.DisconnectForcibly(req.ConnectionID); err != nil {
		if errors.Is(err, livepoll_errors.ErrNotFound) {
			return livepoll_errors.Invalid("unknown connection %s", req.ConnectionID)
		}
		return err
	}
	return nil
}

func (d *Dispatcher) reportError(connectionID, msgType string, err error) {
	message := errorMessage(err)
	if !livepoll_errors.IsDomain(err) {
		d.logger.Error("event handling failed", connectionID, err, zap.String("msg_type", msgType))
	} else {
		d.logger.Info("event rejected", connectionID, zap.String("msg_type", msgType), zap.String("reason", err.Error()))
	}
	if sendErr := d.hub.SendTo(connectionID, wire.Error, message); sendErr != nil {
		d.logger.Warn("error delivery failed", connectionID, zap.Error(sendErr))
	}
}

func errorMessage(err error) string {
	switch {
	case errors.Is(err, livepoll_errors.ErrAlreadyVoted):
		return "You have already voted on this poll"
	case errors.Is(err, livepoll_errors.ErrPollNotActive):
		return "Poll is closed"
	case errors.Is(err, livepoll_errors.ErrNotFound):
		return "Poll not found"
	case errors.Is(err, livepoll_errors.ErrInvalidInput):
		return err.Error()
	default:
		return "Server error"
	}
}

func decode(payload json.RawMessage, dst interface{}) error {
	if len(bytes.TrimSpace(payload)) == 0 {
		return livepoll_errors.Invalid("payload is required")
	}
	if err := json.Unmarshal(payload, dst); err != nil {
		return livepoll_errors.Invalid("malformed payload: %v", err)
	}
	return nil
}

// decodeStringOr accepts either a bare JSON string or an object.
func decodeStringOr(payload json.RawMessage, str *string, obj interface{}) error {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		if err := json.Unmarshal(trimmed, str); err != nil {
			return livepoll_errors.Invalid("malformed payload: %v", err)
		}
		return nil
	}
	return decode(payload, obj)
}

package services

import (
	"context"
	"errors"

	"livepoll/internal/domain/poll"
	livepoll_errors "livepoll/pkg/errors"
	wire "livepoll/pkg/events"

	"go.uber.org/zap"
)

// ActivePollPayload is what a (re)connecting client receives while a poll runs.
type ActivePollPayload struct {
	Poll     poll.Poll `json:"poll"`
	TimeLeft float64   `json:"timeLeft"`
}

// recoveryAttempts bounds how often Recover re-reads state that changed
// under it before giving up to the broadcasts already queued.
const recoveryAttempts = 3

// RecoveryHub delivers a snapshot to one connection only if no poll state
// broadcast was queued after the snapshot's sequence was read.
type RecoveryHub interface {
	PollSequence() uint64
	SendToIfPollSequence(connectionID string, seq uint64, eventType string, payload interface{}) (bool, error)
}

// RecoveryService brings one newly connected client up to date.
type RecoveryService struct {
	polls  *PollService
	hub    RecoveryHub
	logger *zap.Logger
}

func NewRecoveryService(polls *PollService, hub RecoveryHub, logger *zap.Logger) *RecoveryService {
	if logger == nil {
		logger = zap.L()
	}
	return &RecoveryService{
		polls:  polls,
		hub:    hub,
		logger: logger.With(zap.String("component", "recovery")),
	}
}

// Recover runs once per connection, after the connection is registered with
// the hub. A running poll is sent as poll_active with the time left. A poll
// whose deadline passed is closed through PollService; when this call wins
// the transition the connection gets poll_ended directly and everyone else
// through the broadcast. When another path won, its broadcast already
// reaches the connection.
//
// Every snapshot is read after sampling the hub's poll sequence and sent only
// if the sequence is unchanged, so a frame never lands after a newer
// new_poll, poll_updated or poll_ended. A stale snapshot is read again.
func (r *RecoveryService) Recover(ctx context.Context, connectionID string) error {
	// owed is a closure this connection was excluded from and has not seen.
	var owed *poll.Poll

	for attempt := 0; attempt < recoveryAttempts; attempt++ {
		seq := r.hub.PollSequence()

		active, err := r.polls.ActivePoll(ctx)
		if errors.Is(err, livepoll_errors.ErrNotFound) {
			if owed == nil {
				return nil
			}
			sent, err := r.hub.SendToIfPollSequence(connectionID, seq, wire.PollEnded, owed.Public())
			if err != nil || sent {
				return err
			}
			continue
		}
		if err != nil {
			return err
		}

		remaining := active.Remaining(r.polls.Now())
		if remaining > 0 {
			sent, err := r.hub.SendToIfPollSequence(connectionID, seq, wire.PollActive, ActivePollPayload{
				Poll:     active.Public(),
				TimeLeft: remaining.Seconds(),
			})
			if err != nil || sent {
				return err
			}
			continue
		}

		closed, transitioned, err := r.polls.closePoll(ctx, active.ID, ReasonRecovered, connectionID)
		if err != nil {
			return err
		}
		if !transitioned {
			r.logger.Debug("Expired poll already closed elsewhere",
				zap.String("poll_id", active.ID),
				zap.String("connection_id", connectionID),
			)
			return nil
		}

		// The closure fan-out that skipped this connection is seq+1.
		sent, err := r.hub.SendToIfPollSequence(connectionID, seq+1, wire.PollEnded, closed.Public())
		if err != nil || sent {
			return err
		}
		owed = &closed
	}

	r.logger.Warn("Poll state kept changing during recovery",
		zap.String("connection_id", connectionID),
		zap.Bool("closure_undelivered", owed != nil),
	)
	return nil
}

package events

// Lifecycle event types published for external consumers.
// These follow the format: domain.action
const (
	EventTypePollCreated  = "poll.created"
	EventTypePollClosed   = "poll.closed"
	EventTypeVoteAccepted = "vote.accepted"
)

const AggregateTypePoll = "poll"

type PollClosedPayload struct {
	PollID string `json:"pollId"`
	Reason string `json:"reason"`
	Votes  int    `json:"votes"`
	Tally  []int  `json:"tally"`
}

type VoteAcceptedPayload struct {
	PollID          string `json:"pollId"`
	ParticipantName string `json:"participantName"`
	OptionIndex     int    `json:"optionIndex"`
}

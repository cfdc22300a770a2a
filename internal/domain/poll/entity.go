package poll

import (
	"time"
)

type Status string

const (
	StatusCreated   Status = "created"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// Option is one answer choice. IsCorrect is hidden from participants until
// the poll completes, see Public.
type Option struct {
	Text      string `json:"text"`
	IsCorrect bool   `json:"isCorrect"`
}

type Vote struct {
	ParticipantName string `json:"participantName"`
	OptionIndex     int    `json:"optionIndex"`
}

// Poll is a single question with its lifecycle state and recorded votes.
type Poll struct {
	ID        string     `json:"id"`
	Question  string     `json:"question"`
	Options   []Option   `json:"options"`
	Duration  int        `json:"duration"`
	StartTime *time.Time `json:"startTime"`
	Status    Status     `json:"status"`
	Votes     []Vote     `json:"votes"`
	CreatedAt time.Time  `json:"createdAt"`
}

func (p Poll) IsActive() bool {
	return p.Status == StatusActive
}

func (p Poll) IsCompleted() bool {
	return p.Status == StatusCompleted
}

// DurationTime is the configured duration as a time.Duration.
func (p Poll) DurationTime() time.Duration {
	return time.Duration(p.Duration) * time.Second
}

// EndsAt is startTime+duration. Zero for polls that never started.
func (p Poll) EndsAt() time.Time {
	if p.StartTime == nil {
		return time.Time{}
	}
	return p.StartTime.Add(p.DurationTime())
}

// Remaining returns how long the poll has left at now. Negative or zero
// means it is due to close.
func (p Poll) Remaining(now time.Time) time.Duration {
	if p.StartTime == nil {
		return 0
	}
	return p.DurationTime() - now.Sub(*p.StartTime)
}

func (p Poll) HasVoted(participantName string) bool {
	for _, v := range p.Votes {
		if v.ParticipantName == participantName {
			return true
		}
	}
	return false
}

// ValidOption reports whether index addresses one of the poll's options.
func (p Poll) ValidOption(index int) bool {
	return index >= 0 && index < len(p.Options)
}

// Tally counts votes per option, indexed like Options.
func (p Poll) Tally() []int {
	counts := make([]int, len(p.Options))
	for _, v := range p.Votes {
		if v.OptionIndex >= 0 && v.OptionIndex < len(counts) {
			counts[v.OptionIndex]++
		}
	}
	return counts
}

// Clone returns a deep copy safe to hand out of a store.
func (p Poll) Clone() Poll {
	out := p
	if p.Options != nil {
		out.Options = append([]Option(nil), p.Options...)
	}
	out.Votes = append(make([]Vote, 0, len(p.Votes)), p.Votes...)
	if p.StartTime != nil {
		st := *p.StartTime
		out.StartTime = &st
	}
	return out
}

// Public is the participant-facing view: option correctness is stripped
// until the poll has completed.
func (p Poll) Public() Poll {
	out := p.Clone()
	if out.IsCompleted() {
		return out
	}
	for i := range out.Options {
		out.Options[i].IsCorrect = false
	}
	return out
}

// PublicList applies Public to each poll.
func PublicList(polls []Poll) []Poll {
	out := make([]Poll, 0, len(polls))
	for _, p := range polls {
		out = append(out, p.Public())
	}
	return out
}

package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"livepoll/internal/domain/poll"
	livepoll_errors "livepoll/pkg/errors"
)

type memoryRecord struct {
	poll   poll.Poll
	seq    int64
	voters map[string]struct{}
}

// MemoryPollStore is the transient backend. A single mutex guards every
// record so the check-and-append of SubmitVote and the status flip of
// EndPoll and Create are indivisible.
type MemoryPollStore struct {
	mu       sync.RWMutex
	polls    map[string]*memoryRecord
	activeID string
	nextSeq  int64
}

func NewMemoryPollStore() *MemoryPollStore {
	return &MemoryPollStore{
		polls: make(map[string]*memoryRecord),
	}
}

func (s *MemoryPollStore) Create(ctx context.Context, p poll.Poll) (poll.Poll, *poll.Poll, error) {
	if p.ID == "" {
		return poll.Poll{}, nil, livepoll_errors.Invalid("poll id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.polls[p.ID]; exists {
		return poll.Poll{}, nil, livepoll_errors.Invalid("poll %s already exists", p.ID)
	}

	var superseded *poll.Poll
	if prev, ok := s.polls[s.activeID]; ok && prev.poll.IsActive() {
		prev.poll.Status = poll.StatusCompleted
		out := prev.poll.Clone()
		superseded = &out
	}

	stored := p.Clone()
	stored.Status = poll.StatusActive
	stored.Votes = []poll.Vote{}
	if stored.StartTime == nil {
		now := time.Now()
		stored.StartTime = &now
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = *stored.StartTime
	}

	s.nextSeq++
	s.polls[stored.ID] = &memoryRecord{
		poll:   stored,
		seq:    s.nextSeq,
		voters: make(map[string]struct{}),
	}
	s.activeID = stored.ID

	return stored.Clone(), superseded, nil
}

func (s *MemoryPollStore) Get(ctx context.Context, id string) (poll.Poll, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.polls[id]
	if !ok {
		return poll.Poll{}, livepoll_errors.ErrNotFound
	}
	return rec.poll.Clone(), nil
}

func (s *MemoryPollStore) GetActive(ctx context.Context) (poll.Poll, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.polls[s.activeID]
	if !ok || !rec.poll.IsActive() {
		return poll.Poll{}, livepoll_errors.ErrNotFound
	}
	return rec.poll.Clone(), nil
}

func (s *MemoryPollStore) GetLast(ctx context.Context) (poll.Poll, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.sortedLocked()
	if len(records) == 0 {
		return poll.Poll{}, livepoll_errors.ErrNotFound
	}
	return records[0].poll.Clone(), nil
}

func (s *MemoryPollStore) ListAll(ctx context.Context) ([]poll.Poll, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.sortedLocked()
	out := make([]poll.Poll, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.poll.Clone())
	}
	return out, nil
}

func (s *MemoryPollStore) EndPoll(ctx context.Context, id string) (poll.Poll, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.polls[id]
	if !ok {
		return poll.Poll{}, false, livepoll_errors.ErrNotFound
	}
	if !rec.poll.IsActive() {
		return rec.poll.Clone(), false, nil
	}

	rec.poll.Status = poll.StatusCompleted
	if s.activeID == id {
		s.activeID = ""
	}
	return rec.poll.Clone(), true, nil
}

func (s *MemoryPollStore) SubmitVote(ctx context.Context, id, participantName string, optionIndex int) (poll.Poll, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.polls[id]
	if !ok {
		return poll.Poll{}, livepoll_errors.ErrNotFound
	}
	if !rec.poll.IsActive() {
		return poll.Poll{}, livepoll_errors.ErrPollNotActive
	}
	if _, voted := rec.voters[participantName]; voted {
		return poll.Poll{}, livepoll_errors.ErrAlreadyVoted
	}

	rec.voters[participantName] = struct{}{}
	rec.poll.Votes = append(rec.poll.Votes, poll.Vote{
		ParticipantName: participantName,
		OptionIndex:     optionIndex,
	})
	return rec.poll.Clone(), nil
}

func (s *MemoryPollStore) Ping(ctx context.Context) error {
	return nil
}

// sortedLocked orders records newest first; insertion order breaks ties.
func (s *MemoryPollStore) sortedLocked() []*memoryRecord {
	records := make([]*memoryRecord, 0, len(s.polls))
	for _, rec := range s.polls {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if !a.poll.CreatedAt.Equal(b.poll.CreatedAt) {
			return a.poll.CreatedAt.After(b.poll.CreatedAt)
		}
		return a.seq > b.seq
	})
	return records
}

package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"livepoll/internal/domain/poll"
	livepoll_errors "livepoll/pkg/errors"

	goredis "github.com/redis/go-redis/v9"
)

// Key layout:
// - {prefix}poll:{id}         hash: doc (static JSON), status
// - {prefix}poll:{id}:votes   list of vote JSON, append-only
// - {prefix}poll:{id}:voters  set of participant names
// - {prefix}polls             zset of ids scored by createdAt (unix micro)
// - {prefix}active            id of the active poll
const defaultKeyPrefix = "livepoll:"

// pollDoc is the immutable part of a poll stored under the doc field.
type pollDoc struct {
	ID        string        `json:"id"`
	Question  string        `json:"question"`
	Options   []poll.Option `json:"options"`
	Duration  int           `json:"duration"`
	StartTime *time.Time    `json:"startTime"`
	CreatedAt time.Time     `json:"createdAt"`
}

// createScript completes the current active poll (if any) and activates the
// new one. Returns the superseded id or false.
var createScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[2]) == 1 then
	return redis.error_reply('poll exists')
end
local superseded = false
local current = redis.call('GET', KEYS[1])
if current then
	local currentKey = ARGV[1] .. 'poll:' .. current
	if redis.call('HGET', currentKey, 'status') == 'active' then
		redis.call('HSET', currentKey, 'status', 'completed')
		superseded = current
	end
end
redis.call('HSET', KEYS[2], 'doc', ARGV[3], 'status', 'active')
redis.call('ZADD', KEYS[3], ARGV[4], ARGV[2])
redis.call('SET', KEYS[1], ARGV[2])
return superseded
`)

// voteScript: 1 accepted, -1 unknown poll, -2 not active, -3 duplicate.
var voteScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -1
end
if redis.call('HGET', KEYS[1], 'status') ~= 'active' then
	return -2
end
if redis.call('SADD', KEYS[2], ARGV[1]) == 0 then
	return -3
end
redis.call('RPUSH', KEYS[3], ARGV[2])
return 1
`)

// endScript: 1 transitioned, 0 already completed, -1 unknown poll.
var endScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -1
end
if redis.call('HGET', KEYS[1], 'status') ~= 'active' then
	return 0
end
redis.call('HSET', KEYS[1], 'status', 'completed')
if redis.call('GET', KEYS[2]) == ARGV[1] then
	redis.call('DEL', KEYS[2])
end
return 1
`)

// PollStore is the Redis-backed durable PollStore. Every conditional
// mutation runs as a Lua script, which Redis executes atomically.
type PollStore struct {
	client *goredis.Client
	prefix string
}

func NewPollStore(client *goredis.Client, prefix string) *PollStore {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &PollStore{client: client, prefix: prefix}
}

func (s *PollStore) pollKey(id string) string   { return s.prefix + "poll:" + id }
func (s *PollStore) votesKey(id string) string  { return s.prefix + "poll:" + id + ":votes" }
func (s *PollStore) votersKey(id string) string { return s.prefix + "poll:" + id + ":voters" }
func (s *PollStore) indexKey() string           { return s.prefix + "polls" }
func (s *PollStore) activeKey() string          { return s.prefix + "active" }

func (s *PollStore) Create(ctx context.Context, p poll.Poll) (poll.Poll, *poll.Poll, error) {
	if p.ID == "" {
		return poll.Poll{}, nil, livepoll_errors.Invalid("poll id is required")
	}
	if p.StartTime == nil {
		now := time.Now().UTC()
		p.StartTime = &now
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = *p.StartTime
	}

	doc, err := json.Marshal(pollDoc{
		ID:        p.ID,
		Question:  p.Question,
		Options:   p.Options,
		Duration:  p.Duration,
		StartTime: p.StartTime,
		CreatedAt: p.CreatedAt,
	})
	if err != nil {
		return poll.Poll{}, nil, fmt.Errorf("encode poll: %w", err)
	}

	res, err := createScript.Run(ctx, s.client,
		[]string{s.activeKey(), s.pollKey(p.ID), s.indexKey()},
		s.prefix, p.ID, doc, p.CreatedAt.UnixMicro(),
	).Result()
	if err != nil && !errors.Is(err, goredis.Nil) {
		if err.Error() == "poll exists" {
			return poll.Poll{}, nil, livepoll_errors.Invalid("poll %s already exists", p.ID)
		}
		return poll.Poll{}, nil, err
	}

	var superseded *poll.Poll
	if id, ok := res.(string); ok && id != "" {
		prev, err := s.Get(ctx, id)
		if err != nil {
			return poll.Poll{}, nil, err
		}
		superseded = &prev
	}

	created, err := s.Get(ctx, p.ID)
	if err != nil {
		return poll.Poll{}, nil, err
	}
	return created, superseded, nil
}

func (s *PollStore) Get(ctx context.Context, id string) (poll.Poll, error) {
	pipe := s.client.Pipeline()
	fields := pipe.HGetAll(ctx, s.pollKey(id))
	votes := pipe.LRange(ctx, s.votesKey(id), 0, -1)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, goredis.Nil) {
		return poll.Poll{}, err
	}
	return decodePoll(fields.Val(), votes.Val())
}

func (s *PollStore) GetActive(ctx context.Context) (poll.Poll, error) {
	id, err := s.client.Get(ctx, s.activeKey()).Result()
	if errors.Is(err, goredis.Nil) {
		return poll.Poll{}, livepoll_errors.ErrNotFound
	}
	if err != nil {
		return poll.Poll{}, err
	}

	p, err := s.Get(ctx, id)
	if err != nil {
		return poll.Poll{}, err
	}
	if !p.IsActive() {
		return poll.Poll{}, livepoll_errors.ErrNotFound
	}
	return p, nil
}

func (s *PollStore) GetLast(ctx context.Context) (poll.Poll, error) {
	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, 0).Result()
	if err != nil {
		return poll.Poll{}, err
	}
	if len(ids) == 0 {
		return poll.Poll{}, livepoll_errors.ErrNotFound
	}
	return s.Get(ctx, ids[0])
}

func (s *PollStore) ListAll(ctx context.Context) ([]poll.Poll, error) {
	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []poll.Poll{}, nil
	}

	pipe := s.client.Pipeline()
	fields := make([]*goredis.MapStringStringCmd, len(ids))
	votes := make([]*goredis.StringSliceCmd, len(ids))
	for i, id := range ids {
		fields[i] = pipe.HGetAll(ctx, s.pollKey(id))
		votes[i] = pipe.LRange(ctx, s.votesKey(id), 0, -1)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, goredis.Nil) {
		return nil, err
	}

	out := make([]poll.Poll, 0, len(ids))
	for i := range ids {
		p, err := decodePoll(fields[i].Val(), votes[i].Val())
		if errors.Is(err, livepoll_errors.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *PollStore) EndPoll(ctx context.Context, id string) (poll.Poll, bool, error) {
	code, err := endScript.Run(ctx, s.client, []string{s.pollKey(id), s.activeKey()}, id).Int()
	if err != nil {
		return poll.Poll{}, false, err
	}
	if code < 0 {
		return poll.Poll{}, false, livepoll_errors.ErrNotFound
	}

	p, err := s.Get(ctx, id)
	if err != nil {
		return poll.Poll{}, false, err
	}
	return p, code == 1, nil
}

func (s *PollStore) SubmitVote(ctx context.Context, id, participantName string, optionIndex int) (poll.Poll, error) {
	vote, err := json.Marshal(poll.Vote{ParticipantName: participantName, OptionIndex: optionIndex})
	if err != nil {
		return poll.Poll{}, fmt.Errorf("encode vote: %w", err)
	}

	code, err := voteScript.Run(ctx, s.client,
		[]string{s.pollKey(id), s.votersKey(id), s.votesKey(id)},
		participantName, vote,
	).Int()
	if err != nil {
		return poll.Poll{}, err
	}
	switch code {
	case -1:
		return poll.Poll{}, livepoll_errors.ErrNotFound
	case -2:
		return poll.Poll{}, livepoll_errors.ErrPollNotActive
	case -3:
		return poll.Poll{}, livepoll_errors.ErrAlreadyVoted
	}
	return s.Get(ctx, id)
}

func (s *PollStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Flush removes every key under the store prefix.
func (s *PollStore) Flush(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}

func decodePoll(fields map[string]string, rawVotes []string) (poll.Poll, error) {
	raw, ok := fields["doc"]
	if !ok {
		return poll.Poll{}, livepoll_errors.ErrNotFound
	}

	var doc pollDoc
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return poll.Poll{}, fmt.Errorf("decode poll: %w", err)
	}

	p := poll.Poll{
		ID:        doc.ID,
		Question:  doc.Question,
		Options:   doc.Options,
		Duration:  doc.Duration,
		StartTime: doc.StartTime,
		Status:    poll.Status(fields["status"]),
		Votes:     make([]poll.Vote, 0, len(rawVotes)),
		CreatedAt: doc.CreatedAt,
	}
	for _, rv := range rawVotes {
		var v poll.Vote
		if err := json.Unmarshal([]byte(rv), &v); err != nil {
			return poll.Poll{}, fmt.Errorf("decode vote: %w", err)
		}
		p.Votes = append(p.Votes, v)
	}
	return p, nil
}

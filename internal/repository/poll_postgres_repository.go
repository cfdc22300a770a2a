package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"livepoll/internal/domain/poll"
	livepoll_errors "livepoll/pkg/errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// createAttempts bounds retries when two creators race on the single-active
// index; the loser retries and supersedes the winner.
const createAttempts = 10

var errActiveRace = errors.New("concurrent poll activation")

type pollModel struct {
	ID        string        `gorm:"primaryKey;type:text"`
	Question  string        `gorm:"type:text;not null"`
	Options   []poll.Option `gorm:"serializer:json;type:text;not null"`
	Duration  int           `gorm:"not null"`
	StartTime *time.Time
	Status    string      `gorm:"type:text;not null;index"`
	CreatedAt time.Time   `gorm:"not null;index"`
	Votes     []voteModel `gorm:"foreignKey:PollID;references:ID;constraint:OnDelete:CASCADE"`
}

func (pollModel) TableName() string {
	return "polls"
}

type voteModel struct {
	ID              int64     `gorm:"primaryKey;autoIncrement"`
	PollID          string    `gorm:"type:text;not null;uniqueIndex:poll_votes_poll_participant"`
	ParticipantName string    `gorm:"type:text;not null;uniqueIndex:poll_votes_poll_participant"`
	OptionIndex     int       `gorm:"not null"`
	CastAt          time.Time `gorm:"not null"`
}

func (voteModel) TableName() string {
	return "poll_votes"
}

func (m pollModel) toEntity() poll.Poll {
	p := poll.Poll{
		ID:        m.ID,
		Question:  m.Question,
		Options:   m.Options,
		Duration:  m.Duration,
		StartTime: m.StartTime,
		Status:    poll.Status(m.Status),
		Votes:     make([]poll.Vote, 0, len(m.Votes)),
		CreatedAt: m.CreatedAt,
	}
	for _, v := range m.Votes {
		p.Votes = append(p.Votes, poll.Vote{ParticipantName: v.ParticipantName, OptionIndex: v.OptionIndex})
	}
	return p
}

func pollModelFromEntity(p poll.Poll) pollModel {
	return pollModel{
		ID:        p.ID,
		Question:  p.Question,
		Options:   p.Options,
		Duration:  p.Duration,
		StartTime: p.StartTime,
		Status:    string(p.Status),
		CreatedAt: p.CreatedAt,
	}
}

// PostgresPollStore is the durable backend. Row locks serialize votes
// against closure; a partial unique index keeps at most one active poll.
type PostgresPollStore struct {
	db *gorm.DB
}

func NewPostgresPollStore(db *gorm.DB) *PostgresPollStore {
	return &PostgresPollStore{db: db}
}

// Migrate creates the poll tables and the single-active index.
func (r *PostgresPollStore) Migrate(ctx context.Context) error {
	db := r.db.WithContext(ctx)
	if err := db.AutoMigrate(&pollModel{}, &voteModel{}); err != nil {
		return fmt.Errorf("automigrate polls: %w", err)
	}
	err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS polls_single_active ON polls (status) WHERE status = 'active'`).Error
	if err != nil {
		return fmt.Errorf("create single active index: %w", err)
	}
	return nil
}

// Truncate removes every poll and vote.
func (r *PostgresPollStore) Truncate(ctx context.Context) error {
	return r.db.WithContext(ctx).Exec(`TRUNCATE TABLE poll_votes, polls`).Error
}

func (r *PostgresPollStore) Create(ctx context.Context, p poll.Poll) (poll.Poll, *poll.Poll, error) {
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
	p.Status = poll.StatusActive

	var superseded *poll.Poll
	var err error
	for attempt := 0; attempt < createAttempts; attempt++ {
		superseded, err = r.create(ctx, p)
		if !errors.Is(err, errActiveRace) {
			break
		}
	}
	if err != nil {
		return poll.Poll{}, nil, err
	}

	created, err := r.Get(ctx, p.ID)
	if err != nil {
		return poll.Poll{}, nil, err
	}
	return created, superseded, nil
}

func (r *PostgresPollStore) create(ctx context.Context, p poll.Poll) (*poll.Poll, error) {
	var superseded *poll.Poll
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var prior []pollModel
		res := tx.Model(&prior).
			Clauses(clause.Returning{}).
			Where("status = ?", string(poll.StatusActive)).
			Update("status", string(poll.StatusCompleted))
		if res.Error != nil {
			return res.Error
		}
		if len(prior) > 0 {
			if err := tx.Where("poll_id = ?", prior[0].ID).Order("id").Find(&prior[0].Votes).Error; err != nil {
				return err
			}
			out := prior[0].toEntity()
			superseded = &out
		}

		row := pollModelFromEntity(p)
		if err := tx.Omit(clause.Associations).Create(&row).Error; err != nil {
			if isUniqueViolation(err) {
				return errActiveRace
			}
			return err
		}
		return nil
	})
	return superseded, err
}

func (r *PostgresPollStore) Get(ctx context.Context, id string) (poll.Poll, error) {
	var row pollModel
	err := r.withVotes(ctx).Where("id = ?", id).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return poll.Poll{}, livepoll_errors.ErrNotFound
		}
		return poll.Poll{}, err
	}
	return row.toEntity(), nil
}

func (r *PostgresPollStore) GetActive(ctx context.Context) (poll.Poll, error) {
	var row pollModel
	err := r.withVotes(ctx).Where("status = ?", string(poll.StatusActive)).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return poll.Poll{}, livepoll_errors.ErrNotFound
		}
		return poll.Poll{}, err
	}
	return row.toEntity(), nil
}

func (r *PostgresPollStore) GetLast(ctx context.Context) (poll.Poll, error) {
	var row pollModel
	err := r.withVotes(ctx).Order("created_at DESC, id DESC").Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return poll.Poll{}, livepoll_errors.ErrNotFound
		}
		return poll.Poll{}, err
	}
	return row.toEntity(), nil
}

func (r *PostgresPollStore) ListAll(ctx context.Context) ([]poll.Poll, error) {
	var rows []pollModel
	if err := r.withVotes(ctx).Order("created_at DESC, id DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]poll.Poll, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toEntity())
	}
	return out, nil
}

func (r *PostgresPollStore) EndPoll(ctx context.Context, id string) (poll.Poll, bool, error) {
	res := r.db.WithContext(ctx).
		Model(&pollModel{}).
		Where("id = ? AND status = ?", id, string(poll.StatusActive)).
		Update("status", string(poll.StatusCompleted))
	if res.Error != nil {
		return poll.Poll{}, false, res.Error
	}

	p, err := r.Get(ctx, id)
	if err != nil {
		return poll.Poll{}, false, err
	}
	return p, res.RowsAffected == 1, nil
}

func (r *PostgresPollStore) SubmitVote(ctx context.Context, id, participantName string, optionIndex int) (poll.Poll, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row pollModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).
			Take(&row).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return livepoll_errors.ErrNotFound
			}
			return err
		}
		if row.Status != string(poll.StatusActive) {
			return livepoll_errors.ErrPollNotActive
		}

		vote := voteModel{
			PollID:          id,
			ParticipantName: participantName,
			OptionIndex:     optionIndex,
			CastAt:          time.Now().UTC(),
		}
		if err := tx.Create(&vote).Error; err != nil {
			if isUniqueViolation(err) {
				return livepoll_errors.ErrAlreadyVoted
			}
			return err
		}
		return nil
	})
	if err != nil {
		return poll.Poll{}, err
	}
	return r.Get(ctx, id)
}

func (r *PostgresPollStore) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (r *PostgresPollStore) withVotes(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Preload("Votes", func(db *gorm.DB) *gorm.DB {
		return db.Order("id")
	})
}

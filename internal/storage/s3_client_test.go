package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"livepoll/internal/domain/poll"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePutter struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakePutter) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.input = params
	body, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.body = body
	return &s3.PutObjectOutput{}, nil
}

func completedPoll() poll.Poll {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return poll.Poll{
		ID:       "poll-1",
		Question: "Capital of France?",
		Options: []poll.Option{
			{Text: "Paris", IsCorrect: true},
			{Text: "Lyon"},
		},
		Duration:  30,
		StartTime: &start,
		Status:    poll.StatusCompleted,
		Votes: []poll.Vote{
			{ParticipantName: "alice", OptionIndex: 0},
			{ParticipantName: "bob", OptionIndex: 0},
			{ParticipantName: "carol", OptionIndex: 1},
		},
		CreatedAt: start,
	}
}

func TestArchiveUploadsCompletedPoll(t *testing.T) {
	putter := &fakePutter{}
	archive := NewResultArchiveWithClient(putter, "results", "")

	require.NoError(t, archive.Archive(context.Background(), completedPoll()))

	require.NotNil(t, putter.input)
	assert.Equal(t, "results", aws.ToString(putter.input.Bucket))
	assert.Equal(t, "polls/poll-1.json", aws.ToString(putter.input.Key))
	assert.Equal(t, "application/json", aws.ToString(putter.input.ContentType))
	assert.Equal(t, int64(len(putter.body)), aws.ToInt64(putter.input.ContentLength))

	var doc struct {
		ID      string        `json:"id"`
		Options []poll.Option `json:"options"`
		Tally   []int         `json:"tally"`
	}
	require.NoError(t, json.Unmarshal(putter.body, &doc))
	assert.Equal(t, "poll-1", doc.ID)
	assert.Equal(t, []int{2, 1}, doc.Tally)
	assert.True(t, doc.Options[0].IsCorrect)
}

func TestArchiveKeyUsesPrefix(t *testing.T) {
	archive := NewResultArchiveWithClient(&fakePutter{}, "results", "class/7b")
	assert.Equal(t, "class/7b/abc.json", archive.Key("abc"))
}

func TestArchiveRejectsActivePoll(t *testing.T) {
	putter := &fakePutter{}
	archive := NewResultArchiveWithClient(putter, "results", "")

	p := completedPoll()
	p.Status = poll.StatusActive

	assert.Error(t, archive.Archive(context.Background(), p))
	assert.Nil(t, putter.input)
}

func TestArchivePropagatesUploadError(t *testing.T) {
	uploadErr := errors.New("access denied")
	archive := NewResultArchiveWithClient(&fakePutter{err: uploadErr}, "results", "")

	err := archive.Archive(context.Background(), completedPoll())
	assert.ErrorIs(t, err, uploadErr)
}

func TestNewResultArchiveRequiresBucket(t *testing.T) {
	_, err := NewResultArchive(context.Background(), S3Config{Region: "eu-west-1"})
	assert.Error(t, err)
}

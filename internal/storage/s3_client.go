package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"

	"livepoll/internal/domain/poll"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type S3Config struct {
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	Endpoint  string
	Prefix    string
}

// ObjectPutter is the slice of the S3 API the archive needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// ResultArchive uploads completed polls as JSON documents.
type ResultArchive struct {
	bucket string
	prefix string
	s3     ObjectPutter
}

func NewResultArchive(ctx context.Context, cfg S3Config) (*ResultArchive, error) {
	if cfg.Region == "" || cfg.Bucket == "" {
		return nil, errors.New("s3 region and bucket are required")
	}

	var opts []func(*config.LoadOptions) error
	opts = append(opts, config.WithRegion(cfg.Region))

	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewResultArchiveWithClient(s3Client, cfg.Bucket, cfg.Prefix), nil
}

func NewResultArchiveWithClient(client ObjectPutter, bucket, prefix string) *ResultArchive {
	if prefix == "" {
		prefix = "polls"
	}
	return &ResultArchive{bucket: bucket, prefix: prefix, s3: client}
}

func (a *ResultArchive) Key(pollID string) string {
	return path.Join(a.prefix, pollID+".json")
}

// Archive stores the completed poll, correctness flags included.
func (a *ResultArchive) Archive(ctx context.Context, p poll.Poll) error {
	if a == nil {
		return errors.New("s3 archive not initialized")
	}
	if !p.IsCompleted() {
		return fmt.Errorf("poll %s is not completed", p.ID)
	}

	body, err := json.Marshal(archivedPoll{Poll: p, Tally: p.Tally()})
	if err != nil {
		return fmt.Errorf("encode poll: %w", err)
	}

	_, err = a.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(a.Key(p.ID)),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String("application/json"),
		ContentLength: aws.Int64(int64(len(body))),
	})
	return err
}

type archivedPoll struct {
	poll.Poll
	Tally []int `json:"tally"`
}

package config

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/pokerplan/pokerd/pkg/poker"
)

// S3Client is the slice of the S3 API the store needs. *s3.Client
// satisfies it.
type S3Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store persists the voting configuration as a JSON object in S3,
// for deployments without a writable disk.
//
// Example:
//
//	awsCfg, _ := awsconfig.LoadDefaultConfig(ctx)
//	store := config.NewS3Store(s3.NewFromConfig(awsCfg), "my-bucket", "pokerd/config.json")
type S3Store struct {
	client S3Client
	bucket string
	key    string
}

// NewS3Store returns a store for bucket/key.
func NewS3Store(client S3Client, bucket, key string) *S3Store {
	return &S3Store{client: client, bucket: bucket, key: key}
}

// Load fetches the object. A missing key yields the stock default,
// which is written back, mirroring the file store's first-boot
// behavior.
func (s *S3Store) Load(ctx context.Context) (poker.VotingConfig, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		var notFound *types.NoSuchKey
		if errors.As(err, &notFound) {
			cfg := poker.DefaultVotingConfig()
			if err := s.Save(ctx, cfg); err != nil {
				return poker.VotingConfig{}, err
			}
			return cfg, nil
		}
		return poker.VotingConfig{}, fmt.Errorf("config: get s3://%s/%s: %w", s.bucket, s.key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return poker.VotingConfig{}, fmt.Errorf("config: read s3://%s/%s: %w", s.bucket, s.key, err)
	}

	var cfg poker.VotingConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return poker.VotingConfig{}, fmt.Errorf("config: parse s3://%s/%s: %w", s.bucket, s.key, err)
	}
	if err := validate(cfg); err != nil {
		return poker.VotingConfig{}, fmt.Errorf("%w: s3://%s/%s", err, s.bucket, s.key)
	}
	return cfg, nil
}

// Save writes the object.
func (s *S3Store) Save(ctx context.Context, cfg poker.VotingConfig) error {
	if err := validate(cfg); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("config: put s3://%s/%s: %w", s.bucket, s.key, err)
	}
	return nil
}

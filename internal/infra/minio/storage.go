package minio

import (
	"context"
	"fmt"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MediaStore fetches media objects from S3-compatible storage so they can be
// sampled locally. defaultBucket is used when a source URI names no bucket.
type MediaStore struct {
	client        *miniogo.Client
	defaultBucket string
}

type StoreConfig struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	UseSSL        bool
	DefaultBucket string
}

func NewMediaStore(cfg StoreConfig) (*MediaStore, error) {
	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &MediaStore{
		client:        client,
		defaultBucket: cfg.DefaultBucket,
	}, nil
}

func (s *MediaStore) EnsureBucket(ctx context.Context, bucket string) error {
	if bucket == "" {
		bucket = s.defaultBucket
	}
	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, bucket, miniogo.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", bucket, err)
		}
	}
	return nil
}

func (s *MediaStore) FetchObject(ctx context.Context, bucket string, objectKey string, destPath string) error {
	if bucket == "" {
		bucket = s.defaultBucket
	}
	if err := s.client.FGetObject(ctx, bucket, objectKey, destPath, miniogo.GetObjectOptions{}); err != nil {
		return fmt.Errorf("fetch %s/%s: %w", bucket, objectKey, err)
	}
	return nil
}

package object

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// NewClient pins the region so presigning never needs a bucket-location round trip.
func NewClient(endpoint, accessKey, secretKey, region string, useSSL bool) (*minio.Client, error) {
	return minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
		Region: region,
	})
}

func EnsureBucket(ctx context.Context, client *minio.Client, bucket string) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{})
}

// MinIOStore issues presigned URLs against a single bucket.
type MinIOStore struct {
	client    *minio.Client
	bucket    string
	uploadTTL time.Duration
}

func NewMinIOStore(client *minio.Client, bucket string, uploadTTL time.Duration) *MinIOStore {
	return &MinIOStore{client: client, bucket: bucket, uploadTTL: uploadTTL}
}

func (s *MinIOStore) CreateUploadGrant(ctx context.Context, path string) (string, error) {
	u, err := s.client.PresignedPutObject(ctx, s.bucket, ObjectKey(path), s.uploadTTL)
	if err != nil {
		return "", fmt.Errorf("presign put %s: %w", path, err)
	}
	return u.String(), nil
}

func (s *MinIOStore) CreateDownloadGrant(ctx context.Context, path string, ttl time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, ObjectKey(path), ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign get %s: %w", path, err)
	}
	return u.String(), nil
}

// DeleteObject succeeds for keys that do not exist.
func (s *MinIOStore) DeleteObject(ctx context.Context, path string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, ObjectKey(path), minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

func (s *MinIOStore) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err
}

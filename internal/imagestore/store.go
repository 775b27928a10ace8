// Package imagestore checks and cleans up listing images kept in an
// S3-compatible bucket. An image's Filename is its object key.
package imagestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"carmarket/api/internal/listing"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var ErrObjectMissing = errors.New("image object missing")

type objectAPI interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
}

type Store struct {
	client objectAPI
	bucket string
}

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

func New(cfg Config) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &Store{client: client, bucket: cfg.Bucket}, nil
}

func newWithClient(client objectAPI, bucket string) *Store {
	return &Store{client: client, bucket: bucket}
}

// Ping checks that the bucket is reachable.
func (s *Store) Ping(ctx context.Context) error {
	ok, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if !ok {
		return fmt.Errorf("bucket %s does not exist", s.bucket)
	}
	return nil
}

// Stat returns the object's size and content type.
func (s *Store) Stat(ctx context.Context, key string) (minio.ObjectInfo, error) {
	key = objectKey(key)
	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return minio.ObjectInfo{}, fmt.Errorf("%w: %s", ErrObjectMissing, key)
		}
		return minio.ObjectInfo{}, fmt.Errorf("stat object %s: %w", key, err)
	}
	return info, nil
}

// VerifyImages makes sure every staged image was uploaded before the change
// is recorded.
func (s *Store) VerifyImages(ctx context.Context, images []listing.ImageInput) error {
	for _, img := range images {
		if _, err := s.Stat(ctx, img.Filename); err != nil {
			return err
		}
	}
	return nil
}

// Remove deletes an object. A missing object is not an error.
func (s *Store) Remove(ctx context.Context, key string) error {
	key = objectKey(key)
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil && !isNotFound(err) {
		return fmt.Errorf("remove object %s: %w", key, err)
	}
	return nil
}

func objectKey(key string) string {
	return strings.TrimLeft(strings.TrimSpace(key), "/")
}

func isNotFound(err error) bool {
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		return resp.Code == "NoSuchKey" || resp.StatusCode == 404
	}
	return false
}

// Package blob stores uploaded files in S3-compatible object storage.
// Handles returned from Prepare are opaque object keys; the database
// stores the handle and the blob never travels through this process.
package blob

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"huddle/api/internal/util"
)

type Store struct {
	client *minio.Client
	bucket string
	ttl    time.Duration
}

type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	UploadTTL time.Duration
}

// New connects to the object store and ensures the bucket exists.
func New(ctx context.Context, opts Options) (*Store, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create object store client: %w", err)
	}

	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	ttl := opts.UploadTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Store{client: client, bucket: opts.Bucket, ttl: ttl}, nil
}

// Prepare mints a new handle and a presigned PUT URL the client uploads
// directly to. The handle is only valid data once the upload completes.
func (s *Store) Prepare(ctx context.Context) (handle, uploadURL string, err error) {
	handle = util.NewID("file")
	u, err := s.client.PresignedPutObject(ctx, s.bucket, handle, s.ttl)
	if err != nil {
		return "", "", fmt.Errorf("presign upload: %w", err)
	}
	return handle, u.String(), nil
}

// DownloadURL presigns a GET for an existing handle.
func (s *Store) DownloadURL(ctx context.Context, handle string) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, handle, s.ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign download: %w", err)
	}
	return u.String(), nil
}

// Delete removes the object behind a handle. Missing objects are not an
// error; the metadata row may outlive an upload that never happened.
func (s *Store) Delete(ctx context.Context, handle string) error {
	if handle == "" {
		return nil
	}
	err := s.client.RemoveObject(ctx, s.bucket, handle, minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

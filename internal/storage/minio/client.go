// Package minio stores profile pictures in an S3-compatible bucket.
package minio

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// objectAPI is the slice of the minio client the store needs; it exists
// so tests can run without a real server.
type objectAPI interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
}

type clientWrapper struct{ c *minio.Client }

func (w clientWrapper) BucketExists(ctx context.Context, bucketName string) (bool, error) {
	return w.c.BucketExists(ctx, bucketName)
}

func (w clientWrapper) MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error {
	return w.c.MakeBucket(ctx, bucketName, opts)
}

func (w clientWrapper) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	return w.c.PutObject(ctx, bucketName, objectName, reader, objectSize, opts)
}

func (w clientWrapper) GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error) {
	obj, err := w.c.GetObject(ctx, bucketName, objectName, opts)
	if err != nil {
		return nil, err
	}
	return obj, nil
}

func (w clientWrapper) RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error {
	return w.c.RemoveObject(ctx, bucketName, objectName, opts)
}

// AvatarStore keeps profile pictures in a single bucket, keyed by the
// random object name the upload handler generates.
type AvatarStore struct {
	api    objectAPI
	bucket string
}

// New dials the endpoint and ensures the bucket exists.
func New(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool) (*AvatarStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio connect: %w", err)
	}
	return NewWithAPI(ctx, clientWrapper{c: client}, bucket)
}

// NewWithAPI builds the store over an injected API (used in tests).
func NewWithAPI(ctx context.Context, api objectAPI, bucket string) (*AvatarStore, error) {
	s := &AvatarStore{api: api, bucket: bucket}
	if err := s.ensureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure bucket: %w", err)
	}
	return s, nil
}

func (s *AvatarStore) ensureBucket(ctx context.Context) error {
	exists, err := s.api.BucketExists(ctx, s.bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return s.api.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{})
}

// Upload stores one picture under key. Size must be the exact byte
// count so the client streams without buffering.
func (s *AvatarStore) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	_, err := s.api.PutObject(ctx, s.bucket, key, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("put avatar: %w", err)
	}
	return nil
}

// Download opens the stored picture for streaming to a client.
func (s *AvatarStore) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.api.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get avatar: %w", err)
	}
	return obj, nil
}

// Delete removes a picture, e.g. after it is replaced.
func (s *AvatarStore) Delete(ctx context.Context, key string) error {
	if err := s.api.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove avatar: %w", err)
	}
	return nil
}

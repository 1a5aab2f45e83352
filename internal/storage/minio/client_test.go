package minio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	minioLib "github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	bucketExists    bool
	bucketExistsErr error
	makeBucketErr   error
	madeBucket      string

	putKey         string
	putSize        int64
	putContentType string
	putErr         error

	getRC  io.ReadCloser
	getErr error

	removeErr error
}

func (f *fakeAPI) BucketExists(_ context.Context, _ string) (bool, error) {
	return f.bucketExists, f.bucketExistsErr
}

func (f *fakeAPI) MakeBucket(_ context.Context, name string, _ minioLib.MakeBucketOptions) error {
	f.madeBucket = name
	return f.makeBucketErr
}

func (f *fakeAPI) PutObject(_ context.Context, _ string, key string, _ io.Reader, size int64, opts minioLib.PutObjectOptions) (minioLib.UploadInfo, error) {
	f.putKey = key
	f.putSize = size
	f.putContentType = opts.ContentType
	return minioLib.UploadInfo{}, f.putErr
}

func (f *fakeAPI) GetObject(_ context.Context, _ string, _ string, _ minioLib.GetObjectOptions) (io.ReadCloser, error) {
	return f.getRC, f.getErr
}

func (f *fakeAPI) RemoveObject(_ context.Context, _ string, _ string, _ minioLib.RemoveObjectOptions) error {
	return f.removeErr
}

func TestNewWithAPI_EnsuresBucket(t *testing.T) {
	ctx := context.Background()

	t.Run("existing bucket untouched", func(t *testing.T) {
		api := &fakeAPI{bucketExists: true}
		s, err := NewWithAPI(ctx, api, "avatars")
		require.NoError(t, err)
		assert.Equal(t, "avatars", s.bucket)
		assert.Empty(t, api.madeBucket)
	})

	t.Run("missing bucket created", func(t *testing.T) {
		api := &fakeAPI{}
		_, err := NewWithAPI(ctx, api, "avatars")
		require.NoError(t, err)
		assert.Equal(t, "avatars", api.madeBucket)
	})

	t.Run("exists check fails", func(t *testing.T) {
		api := &fakeAPI{bucketExistsErr: errors.New("boom")}
		s, err := NewWithAPI(ctx, api, "avatars")
		assert.Nil(t, s)
		assert.ErrorContains(t, err, "ensure bucket")
	})

	t.Run("create fails", func(t *testing.T) {
		api := &fakeAPI{makeBucketErr: errors.New("denied")}
		s, err := NewWithAPI(ctx, api, "avatars")
		assert.Nil(t, s)
		assert.ErrorContains(t, err, "ensure bucket")
	})
}

func TestAvatarStore_Upload(t *testing.T) {
	ctx := context.Background()
	data := []byte("png-bytes")

	t.Run("success passes size and content type", func(t *testing.T) {
		api := &fakeAPI{}
		s := &AvatarStore{api: api, bucket: "avatars"}
		err := s.Upload(ctx, "abcd.png", bytes.NewReader(data), int64(len(data)), "image/png")
		require.NoError(t, err)
		assert.Equal(t, "abcd.png", api.putKey)
		assert.Equal(t, int64(len(data)), api.putSize)
		assert.Equal(t, "image/png", api.putContentType)
	})

	t.Run("error", func(t *testing.T) {
		api := &fakeAPI{putErr: errors.New("put-fail")}
		s := &AvatarStore{api: api, bucket: "avatars"}
		err := s.Upload(ctx, "k", bytes.NewReader(data), int64(len(data)), "image/png")
		assert.ErrorContains(t, err, "put avatar")
	})
}

func TestAvatarStore_Download(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		api := &fakeAPI{getRC: io.NopCloser(bytes.NewReader([]byte("abc")))}
		s := &AvatarStore{api: api, bucket: "avatars"}
		rc, err := s.Download(ctx, "k")
		require.NoError(t, err)
		defer rc.Close()
		got, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, []byte("abc"), got)
	})

	t.Run("error", func(t *testing.T) {
		api := &fakeAPI{getErr: errors.New("get-fail")}
		s := &AvatarStore{api: api, bucket: "avatars"}
		rc, err := s.Download(ctx, "k")
		assert.Nil(t, rc)
		assert.ErrorContains(t, err, "get avatar")
	})
}

func TestAvatarStore_Delete(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		s := &AvatarStore{api: &fakeAPI{}, bucket: "avatars"}
		assert.NoError(t, s.Delete(ctx, "k"))
	})

	t.Run("error", func(t *testing.T) {
		s := &AvatarStore{api: &fakeAPI{removeErr: errors.New("remove-fail")}, bucket: "avatars"}
		assert.ErrorContains(t, s.Delete(ctx, "k"), "remove avatar")
	})
}

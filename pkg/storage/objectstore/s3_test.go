package objectstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	mu        sync.Mutex
	objects   map[string][]byte
	bucket    bool
	created   int
	deleteErr error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}}
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[*in.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	size := int64(len(data))
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data)), ContentLength: &size}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) HeadBucket(ctx context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if !f.bucket {
		return nil, &types.NotFound{}
	}
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeS3) CreateBucket(ctx context.Context, in *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	f.created++
	f.bucket = true
	return &s3.CreateBucketOutput{}, nil
}

func TestS3BlobStore_CreatesMissingBucket(t *testing.T) {
	fake := newFakeS3()
	_, err := newS3BlobStore(context.Background(), fake, "images")
	require.NoError(t, err)
	assert.Equal(t, 1, fake.created)

	_, err = newS3BlobStore(context.Background(), fake, "images")
	require.NoError(t, err)
	assert.Equal(t, 1, fake.created, "existing bucket is reused")
}

func TestS3BlobStore_RequiresBucket(t *testing.T) {
	_, err := newS3BlobStore(context.Background(), newFakeS3(), "")
	assert.Error(t, err)
}

func TestS3BlobStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	store, err := newS3BlobStore(ctx, fake, "images")
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "pots/p1/a.png", bytes.NewReader([]byte("png")), "image/png"))

	rc, err := store.Get(ctx, "pots/p1/a.png")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "png", string(data))

	require.NoError(t, store.Delete(ctx, "pots/p1/a.png"))
	_, err = store.Get(ctx, "pots/p1/a.png")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestS3BlobStore_DeleteMissingKeyIsNotAnError(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	store, err := newS3BlobStore(ctx, fake, "images")
	require.NoError(t, err)

	fake.deleteErr = &types.NoSuchKey{}
	assert.NoError(t, store.Delete(ctx, "missing"))

	fake.deleteErr = errors.New("boom")
	assert.Error(t, store.Delete(ctx, "missing"))
}

func TestS3BlobStore_HealthCheck(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	store, err := newS3BlobStore(ctx, fake, "images")
	require.NoError(t, err)
	assert.NoError(t, store.HealthCheck(ctx))

	fake.bucket = false
	assert.Error(t, store.HealthCheck(ctx))
}

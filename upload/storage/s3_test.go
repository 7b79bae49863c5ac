package storage

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 keeps objects in memory and answers like the S3 API does.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	now     time.Time
}

func newFakeS3() *fakeS3 {
	return &fakeS3{
		objects: map[string][]byte{},
		types:   map[string]string{},
		now:     time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = data
	f.types[aws.ToString(in.Key)] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(data))), LastModified: aws.Time(f.now)}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for _, k := range keys {
		out.Contents = append(out.Contents, types.Object{
			Key:          aws.String(k),
			Size:         aws.Int64(int64(len(f.objects[k]))),
			LastModified: aws.Time(f.now),
		})
	}
	return out, nil
}

func TestS3Storage_RoundTrip(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	store := newS3WithClient(fake, S3Config{Bucket: "clickfit", Region: "us-east-1", Prefix: "images"})

	name, err := store.Store(ctx, "image-1-2.png", strings.NewReader("data"))
	require.NoError(t, err)
	assert.Equal(t, "image-1-2.png", name)
	assert.Contains(t, fake.objects, "images/image-1-2.png")
	assert.Equal(t, "image/png", fake.types["images/image-1-2.png"])

	info, err := store.Stat(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, int64(4), info.Size)

	fake.objects["images/nested/skip.png"] = []byte("x")
	fake.objects["other/skip.png"] = []byte("x")
	objects, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, "image-1-2.png", objects[0].Name)

	rc, err := store.Open(ctx, name)
	require.NoError(t, err)
	body, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "data", string(body))

	require.NoError(t, store.Delete(ctx, name))
	assert.ErrorIs(t, store.Delete(ctx, name), ErrNotExist)

	_, err = store.Open(ctx, name)
	assert.ErrorIs(t, err, ErrNotExist)
}

func TestS3Storage_RejectsUnsafeNames(t *testing.T) {
	store := newS3WithClient(newFakeS3(), S3Config{Bucket: "clickfit"})
	_, err := store.Store(context.Background(), "../x.png", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestS3Storage_GetURL(t *testing.T) {
	store := newS3WithClient(newFakeS3(), S3Config{Bucket: "clickfit", Region: "eu-west-1"})
	assert.Equal(t, "https://clickfit.s3.eu-west-1.amazonaws.com/a.png", store.GetURL("a.png"))

	store = newS3WithClient(newFakeS3(), S3Config{Bucket: "clickfit", Endpoint: "http://localhost:9000/", Prefix: "img"})
	assert.Equal(t, "http://localhost:9000/clickfit/img/a.png", store.GetURL("a.png"))
}

func TestNewS3RequiresBucket(t *testing.T) {
	_, err := NewS3(context.Background(), S3Config{Region: "us-east-1"})
	assert.Error(t, err)
}

func TestNewS3WithStaticCredentials(t *testing.T) {
	store, err := NewS3(context.Background(), S3Config{
		Bucket:          "clickfit",
		Region:          "us-east-1",
		AccessKeyID:     "test-access-key",
		SecretAccessKey: "test-secret-key",
		Endpoint:        "http://localhost:9000",
		ForcePathStyle:  true,
	})
	require.NoError(t, err)
	assert.NotNil(t, store)
}

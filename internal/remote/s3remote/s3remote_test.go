package s3remote

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/openmined/docsync/internal/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObject struct {
	data []byte
	etag string
}

// fakeS3 is a single-bucket in-memory ObjectAPI
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]fakeObject
	seq     int
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string]fakeObject)}
}

func (f *fakeS3) store(key string, data []byte) string {
	f.seq++
	etag := fmt.Sprintf("\"etag%d\"", f.seq)
	f.objects[key] = fakeObject{data: data, etag: etag}
	return etag
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{ETag: aws.String(obj.etag), ContentLength: aws.Int64(int64(len(obj.data)))}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(obj.data)),
		ContentLength: aws.Int64(int64(len(obj.data))),
		ContentType:   aws.String("text/plain"),
		ETag:          aws.String(obj.etag),
	}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return &s3.PutObjectOutput{ETag: aws.String(f.store(aws.ToString(in.Key), data))}, nil
}

func (f *fakeS3) CopyObject(_ context.Context, in *s3.CopyObjectInput, _ ...func(*s3.Options)) (*s3.CopyObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, src, _ := strings.Cut(aws.ToString(in.CopySource), "/")
	obj, ok := f.objects[src]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	etag := f.store(aws.ToString(in.Key), obj.data)
	return &s3.CopyObjectOutput{CopyObjectResult: &types.CopyObjectResult{ETag: aws.String(etag)}}, nil
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
	prefix := aws.ToString(in.Prefix)
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for _, k := range keys {
		obj := f.objects[k]
		out.Contents = append(out.Contents, types.Object{
			Key:          aws.String(k),
			ETag:         aws.String(obj.etag),
			Size:         aws.Int64(int64(len(obj.data))),
			LastModified: aws.Time(time.Unix(1700000000, 0)),
		})
	}
	return out, nil
}

func (f *fakeS3) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok
}

func newTestClient() (*Client, *fakeS3) {
	api := newFakeS3()
	cfg := &Config{BucketName: "docs", Region: "us-east-1", Prefix: "docsync", QuotaBytes: 1 << 30}
	return NewClient(api, cfg, "alice"), api
}

func TestConfigValidate(t *testing.T) {
	assert.Error(t, (&Config{}).Validate())
	assert.Error(t, (&Config{BucketName: "b"}).Validate())
	assert.Error(t, (&Config{BucketName: "b", Region: "r", Endpoint: "not a url"}).Validate())
	assert.NoError(t, (&Config{BucketName: "b", Region: "r", Endpoint: "http://localhost:9000"}).Validate())
}

func TestPutFile_KeyLayoutAndRev(t *testing.T) {
	c, api := newTestClient()
	ctx := context.Background()

	e, err := c.PutFile(ctx, "/host/eng/a.txt", []byte("hello"), true)
	require.NoError(t, err)
	assert.True(t, api.has("docsync/alice/host/eng/a.txt"))
	assert.Equal(t, "etag1", e.Rev)

	meta, err := c.GetMetadata(ctx, "/host/eng/a.txt", "")
	require.NoError(t, err)
	assert.False(t, meta.IsDir)
	assert.Equal(t, "etag1", meta.Rev)
	assert.EqualValues(t, 5, meta.Size)

	_, err = c.PutFile(ctx, "/host/eng/a.txt", []byte("again"), false)
	assert.ErrorIs(t, err, remote.ErrConflict)

	_, err = c.PutFile(ctx, "/host/eng/big.bin", make([]byte, remote.MaxFileSize+1), true)
	assert.ErrorIs(t, err, remote.ErrTooLarge)
	assert.False(t, api.has("docsync/alice/host/eng/big.bin"))
}

func TestFolders(t *testing.T) {
	c, api := newTestClient()
	ctx := context.Background()

	_, err := c.CreateFolder(ctx, "/host/eng/Projects")
	require.NoError(t, err)
	assert.True(t, api.has("docsync/alice/host/eng/Projects/"))

	_, err = c.CreateFolder(ctx, "/host/eng/Projects")
	assert.ErrorIs(t, err, remote.ErrConflict)

	_, err = c.PutFile(ctx, "/host/eng/Projects/a.txt", []byte("a"), true)
	require.NoError(t, err)
	_, err = c.CreateFolder(ctx, "/host/eng/Projects/b")
	require.NoError(t, err)

	e, err := c.GetMetadata(ctx, "/host/eng/Projects", "")
	require.NoError(t, err)
	assert.True(t, e.IsDir)
	require.Len(t, e.Children, 2)
	assert.Equal(t, "/host/eng/Projects/a.txt", e.Children[0].Path)
	assert.False(t, e.Children[0].IsDir)
	assert.Equal(t, "/host/eng/Projects/b", e.Children[1].Path)
	assert.True(t, e.Children[1].IsDir)

	_, err = c.GetMetadata(ctx, "/host/eng/Projects", e.Hash)
	assert.ErrorIs(t, err, remote.ErrNotModified)

	_, err = c.PutFile(ctx, "/host/eng/Projects/b/c.txt", []byte("c"), true)
	require.NoError(t, err)
	changed, err := c.GetMetadata(ctx, "/host/eng/Projects", e.Hash)
	require.NoError(t, err)
	assert.NotEqual(t, e.Hash, changed.Hash)

	_, err = c.GetMetadata(ctx, "/host/missing", "")
	assert.ErrorIs(t, err, remote.ErrNotFound)
}

func TestFolderHashFromDirectChildren(t *testing.T) {
	c, _ := newTestClient()
	ctx := context.Background()

	a, err := c.PutFile(ctx, "/host/eng/Projects/a.txt", []byte("a"), true)
	require.NoError(t, err)
	_, err = c.PutFile(ctx, "/host/eng/Projects/b/c.txt", []byte("c"), true)
	require.NoError(t, err)

	b, err := c.GetMetadata(ctx, "/host/eng/Projects/b", "")
	require.NoError(t, err)
	e, err := c.GetMetadata(ctx, "/host/eng/Projects", "")
	require.NoError(t, err)

	sum := md5.Sum([]byte("a.txt\x00" + a.Rev + "\nb\x00" + b.Hash + "\n"))
	assert.Equal(t, hex.EncodeToString(sum[:]), e.Hash)
	require.Len(t, e.Children, 2)
	assert.Equal(t, b.Hash, e.Children[1].Hash)
	assert.Equal(t, b.Hash, e.Children[1].Rev)
}

func TestMoveAndDelete(t *testing.T) {
	c, api := newTestClient()
	ctx := context.Background()

	_, err := c.PutFile(ctx, "/p/x.txt", []byte("x"), true)
	require.NoError(t, err)
	_, err = c.CreateFolder(ctx, "/p/sub")
	require.NoError(t, err)

	moved, err := c.Move(ctx, "/p", "/q")
	require.NoError(t, err)
	assert.True(t, moved.IsDir)
	assert.True(t, api.has("docsync/alice/q/x.txt"))
	assert.True(t, api.has("docsync/alice/q/sub/"))
	assert.False(t, api.has("docsync/alice/p/x.txt"))

	_, err = c.Move(ctx, "/p", "/r")
	assert.ErrorIs(t, err, remote.ErrNotFound)

	require.NoError(t, c.Delete(ctx, "/q"))
	assert.False(t, api.has("docsync/alice/q/x.txt"))
	assert.ErrorIs(t, c.Delete(ctx, "/q"), remote.ErrNotFound)
}

func TestGetFileAndProfile(t *testing.T) {
	c, _ := newTestClient()
	ctx := context.Background()

	_, err := c.PutFile(ctx, "/notes.txt", []byte("hello"), true)
	require.NoError(t, err)

	f, err := c.GetFile(ctx, "/notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(f.Data))
	assert.Equal(t, "etag1", f.Entry.Rev)

	_, err = c.GetFile(ctx, "/nope.txt")
	assert.ErrorIs(t, err, remote.ErrNotFound)

	p, err := c.GetUserProfile(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alice", p.User)
	assert.EqualValues(t, 5, p.UsedBytes)
	assert.EqualValues(t, 1<<30, p.QuotaBytes)
}

func TestMapError(t *testing.T) {
	assert.NoError(t, mapError(nil, "/x"))
	assert.ErrorIs(t, mapError(&types.NoSuchKey{}, "/x"), remote.ErrNotFound)
	assert.ErrorIs(t, mapError(&smithy.GenericAPIError{Code: "AccessDenied"}, "/x"), remote.ErrAuthExpired)
	assert.ErrorIs(t, mapError(&smithy.GenericAPIError{Code: "ExpiredToken"}, "/x"), remote.ErrAuthExpired)
	assert.ErrorIs(t, mapError(errors.New("connection reset"), "/x"), remote.ErrUnavailable)
}

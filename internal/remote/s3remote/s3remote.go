package s3remote

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/openmined/docsync/internal/remote"
)

// ObjectAPI is the part of the S3 API the remote client uses
type ObjectAPI interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Dialer opens per-user S3 clients from the user's stored key pair
type Dialer struct {
	config     *Config
	httpClient *http.Client
}

func NewDialer(cfg *Config) *Dialer {
	return &Dialer{
		config: cfg,
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				MaxIdleConns:          100,
				MaxIdleConnsPerHost:   50,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
				ForceAttemptHTTP2:     true,
			},
			Timeout: 5 * time.Minute,
		},
	}
}

// Dial matches remote.DialFunc
func (d *Dialer) Dial(ctx context.Context, user string, creds remote.Credentials) (remote.Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(creds.Token, creds.Secret, ""),
		),
		config.WithRegion(d.config.Region),
		config.WithHTTPClient(d.httpClient),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if d.config.Endpoint != "" {
			o.BaseEndpoint = aws.String(d.config.Endpoint)
			o.UsePathStyle = true
		}
		if d.config.UsePathStyle {
			o.UsePathStyle = true
		}
	})

	return NewClient(api, d.config, user), nil
}

// Client maps one user's remote namespace onto keys below <prefix>/<user>.
// Folders are zero-byte "dir/" marker objects.
type Client struct {
	api    ObjectAPI
	bucket string
	root   string
	user   string
	quota  int64
}

var _ remote.Client = (*Client)(nil)

func NewClient(api ObjectAPI, cfg *Config, user string) *Client {
	root := strings.Trim(path.Join(cfg.Prefix, user), "/")
	return &Client{
		api:    api,
		bucket: cfg.BucketName,
		root:   root,
		user:   user,
		quota:  cfg.QuotaBytes,
	}
}

// key maps a remote path to its object key
func (c *Client) key(p string) string {
	p = strings.TrimPrefix(path.Clean("/"+p), "/")
	if p == "" {
		return c.root
	}
	return c.root + "/" + p
}

func (c *Client) dirKey(p string) string {
	return c.key(p) + "/"
}

func (c *Client) pathOf(key string) string {
	return "/" + strings.TrimSuffix(strings.TrimPrefix(key, c.root+"/"), "/")
}

type object struct {
	key      string
	etag     string
	version  string
	size     int64
	modified time.Time
}

func (o *object) rev() string {
	if o.version != "" && o.version != "null" {
		return o.version
	}
	return o.etag
}

func stripETag(etag *string) string {
	return strings.ReplaceAll(aws.ToString(etag), "\"", "")
}

func (c *Client) head(ctx context.Context, key string) (*object, error) {
	resp, err := c.api.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &c.bucket, Key: &key})
	if err != nil {
		return nil, err
	}
	return &object{
		key:      key,
		etag:     stripETag(resp.ETag),
		version:  aws.ToString(resp.VersionId),
		size:     aws.ToInt64(resp.ContentLength),
		modified: aws.ToTime(resp.LastModified),
	}, nil
}

// list returns every object below prefix in key order
func (c *Client) list(ctx context.Context, prefix string) ([]*object, error) {
	var out []*object
	paginator := s3.NewListObjectsV2Paginator(c.api, &s3.ListObjectsV2Input{
		Bucket: &c.bucket,
		Prefix: &prefix,
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			out = append(out, &object{
				key:      aws.ToString(obj.Key),
				etag:     stripETag(obj.ETag),
				size:     aws.ToInt64(obj.Size),
				modified: aws.ToTime(obj.LastModified),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key < out[j].key })
	return out, nil
}

// exists reports whether p is a file or a folder
func (c *Client) exists(ctx context.Context, p string) (bool, error) {
	if _, err := c.head(ctx, c.key(p)); err == nil {
		return true, nil
	} else if !errors.Is(mapError(err, p), remote.ErrNotFound) {
		return false, mapError(err, p)
	}
	objs, err := c.list(ctx, c.dirKey(p))
	if err != nil {
		return false, mapError(err, p)
	}
	return len(objs) > 0, nil
}

// folderEntry builds a folder entry from the flat listing of its subtree.
// The hash is the md5 of the sorted (name, rev) pairs of the direct children.
// A child folder's rev is its own hash.
func (c *Client) folderEntry(p string, objs []*object, withChildren bool) *remote.Entry {
	prefix := c.dirKey(p)
	entry := &remote.Entry{Path: path.Clean("/" + p), IsDir: true}

	var names []string
	files := make(map[string]*object)
	folders := make(map[string][]*object)
	for _, obj := range objs {
		if obj.modified.After(entry.Modified) {
			entry.Modified = obj.modified
		}
		rel := strings.TrimPrefix(obj.key, prefix)
		if rel == "" {
			continue
		}
		name, _, nested := strings.Cut(rel, "/")
		if _, ok := files[name]; !ok && folders[name] == nil {
			names = append(names, name)
		}
		if nested {
			folders[name] = append(folders[name], obj)
		} else {
			files[name] = obj
		}
	}
	sort.Strings(names)

	h := md5.New()
	for _, name := range names {
		child := &remote.Entry{Path: path.Join(entry.Path, name)}
		if obj, ok := files[name]; ok {
			child.Rev, child.Size, child.Modified = obj.rev(), obj.size, obj.modified
		} else {
			sub := c.folderEntry(child.Path, folders[name], false)
			child.IsDir = true
			child.Hash, child.Rev, child.Modified = sub.Hash, sub.Rev, sub.Modified
		}
		fmt.Fprintf(h, "%s\x00%s\n", name, child.Rev)
		if withChildren {
			entry.Children = append(entry.Children, child)
		}
	}
	entry.Hash = hex.EncodeToString(h.Sum(nil))
	entry.Rev = entry.Hash
	return entry
}

func (c *Client) GetMetadata(ctx context.Context, p string, priorHash string) (*remote.Entry, error) {
	p = path.Clean("/" + p)
	if p != "/" {
		obj, err := c.head(ctx, c.key(p))
		if err == nil {
			return &remote.Entry{Path: p, Rev: obj.rev(), Size: obj.size, Modified: obj.modified}, nil
		}
		if err = mapError(err, p); !errors.Is(err, remote.ErrNotFound) {
			return nil, err
		}
	}

	objs, err := c.list(ctx, c.dirKey(p))
	if err != nil {
		return nil, mapError(err, p)
	}
	if len(objs) == 0 && p != "/" {
		return nil, fmt.Errorf("%w: %s", remote.ErrNotFound, p)
	}

	entry := c.folderEntry(p, objs, true)
	if priorHash != "" && priorHash == entry.Hash {
		return nil, remote.ErrNotModified
	}
	return entry, nil
}

func (c *Client) PutFile(ctx context.Context, p string, data []byte, overwrite bool) (*remote.Entry, error) {
	p = path.Clean("/" + p)
	if err := remote.CheckSize(p, int64(len(data))); err != nil {
		return nil, err
	}

	if !overwrite {
		exists, err := c.exists(ctx, p)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, fmt.Errorf("%w: %s", remote.ErrConflict, p)
		}
	}

	key := c.key(p)
	resp, err := c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        &c.bucket,
		Key:           &key,
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(http.DetectContentType(data)),
	})
	if err != nil {
		return nil, mapError(err, p)
	}

	obj := &object{key: key, etag: stripETag(resp.ETag), version: aws.ToString(resp.VersionId), size: int64(len(data))}
	return &remote.Entry{Path: p, Rev: obj.rev(), Size: obj.size, Modified: time.Now().UTC()}, nil
}

func (c *Client) CreateFolder(ctx context.Context, p string) (*remote.Entry, error) {
	p = path.Clean("/" + p)
	exists, err := c.exists(ctx, p)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", remote.ErrConflict, p)
	}

	key := c.dirKey(p)
	resp, err := c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        &c.bucket,
		Key:           &key,
		Body:          bytes.NewReader(nil),
		ContentLength: aws.Int64(0),
	})
	if err != nil {
		return nil, mapError(err, p)
	}

	return c.folderEntry(p, []*object{{key: key, etag: stripETag(resp.ETag)}}, false), nil
}

// Move is a copy followed by a delete of the source
func (c *Client) Move(ctx context.Context, from, to string) (*remote.Entry, error) {
	entry, err := c.Copy(ctx, from, to)
	if err != nil {
		return nil, err
	}
	if err := c.Delete(ctx, from); err != nil {
		return nil, err
	}
	return entry, nil
}

func (c *Client) Copy(ctx context.Context, from, to string) (*remote.Entry, error) {
	from, to = path.Clean("/"+from), path.Clean("/"+to)
	if strings.HasPrefix(to, from+"/") {
		return nil, fmt.Errorf("%w: cannot copy %s into itself", remote.ErrConflict, from)
	}

	exists, err := c.exists(ctx, to)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", remote.ErrConflict, to)
	}

	// a single file
	if _, err := c.head(ctx, c.key(from)); err == nil {
		if err := c.copyKey(ctx, c.key(from), c.key(to)); err != nil {
			return nil, mapError(err, from)
		}
		return c.GetMetadata(ctx, to, "")
	} else if err = mapError(err, from); !errors.Is(err, remote.ErrNotFound) {
		return nil, err
	}

	objs, err := c.list(ctx, c.dirKey(from))
	if err != nil {
		return nil, mapError(err, from)
	}
	if len(objs) == 0 {
		return nil, fmt.Errorf("%w: %s", remote.ErrNotFound, from)
	}
	src, dst := c.dirKey(from), c.dirKey(to)
	for _, obj := range objs {
		if err := c.copyKey(ctx, obj.key, dst+strings.TrimPrefix(obj.key, src)); err != nil {
			return nil, mapError(err, from)
		}
	}
	return c.GetMetadata(ctx, to, "")
}

func (c *Client) copyKey(ctx context.Context, src, dst string) error {
	_, err := c.api.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     &c.bucket,
		CopySource: aws.String(fmt.Sprintf("%s/%s", c.bucket, src)),
		Key:        &dst,
	})
	return err
}

func (c *Client) Delete(ctx context.Context, p string) error {
	p = path.Clean("/" + p)
	if p == "/" {
		return fmt.Errorf("%w: refusing to delete the account root", remote.ErrConflict)
	}

	keys := []string{}
	if _, err := c.head(ctx, c.key(p)); err == nil {
		keys = append(keys, c.key(p))
	} else if err = mapError(err, p); !errors.Is(err, remote.ErrNotFound) {
		return err
	}

	objs, err := c.list(ctx, c.dirKey(p))
	if err != nil {
		return mapError(err, p)
	}
	for _, obj := range objs {
		keys = append(keys, obj.key)
	}
	if len(keys) == 0 {
		return fmt.Errorf("%w: %s", remote.ErrNotFound, p)
	}

	for _, key := range keys {
		if _, err := c.api.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &c.bucket, Key: aws.String(key)}); err != nil {
			return mapError(err, p)
		}
	}
	return nil
}

func (c *Client) GetFile(ctx context.Context, p string) (*remote.File, error) {
	p = path.Clean("/" + p)
	key := c.key(p)
	resp, err := c.api.GetObject(ctx, &s3.GetObjectInput{Bucket: &c.bucket, Key: &key})
	if err != nil {
		return nil, mapError(err, p)
	}
	defer resp.Body.Close()

	size := aws.ToInt64(resp.ContentLength)
	if err := remote.CheckSize(p, size); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, remote.MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", remote.ErrUnavailable, p, err)
	}

	obj := &object{key: key, etag: stripETag(resp.ETag), version: aws.ToString(resp.VersionId), size: int64(len(data))}
	return &remote.File{
		Data:        data,
		ContentType: aws.ToString(resp.ContentType),
		Entry: &remote.Entry{
			Path:     p,
			Rev:      obj.rev(),
			Size:     obj.size,
			MimeType: aws.ToString(resp.ContentType),
			Modified: aws.ToTime(resp.LastModified),
		},
	}, nil
}

func (c *Client) GetUserProfile(ctx context.Context) (*remote.Profile, error) {
	objs, err := c.list(ctx, c.root+"/")
	if err != nil {
		return nil, mapError(err, "/")
	}
	var used int64
	for _, obj := range objs {
		used += obj.size
	}
	return &remote.Profile{
		User:        c.user,
		DisplayName: c.user,
		QuotaBytes:  c.quota,
		UsedBytes:   used,
	}, nil
}

// mapError translates S3 failures into the remote error taxonomy
func mapError(err error, p string) error {
	if err == nil {
		return nil
	}

	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return fmt.Errorf("%w: %s", remote.ErrNotFound, p)
	}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.HTTPStatusCode() {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", remote.ErrNotFound, p)
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %v", remote.ErrAuthExpired, err)
		}
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return fmt.Errorf("%w: %s", remote.ErrNotFound, p)
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken":
			return fmt.Errorf("%w: %v", remote.ErrAuthExpired, err)
		}
	}

	return fmt.Errorf("%w: %s: %v", remote.ErrUnavailable, p, err)
}

// Package objstore reads and writes whole objects addressed by s3://bucket/key
// URLs, backed by MinIO/S3 or by a local directory in tests.
package objstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Scheme prefixes object URLs.
const Scheme = "s3://"

var (
	// ErrNotFound is returned for a missing bucket or object.
	ErrNotFound = errors.New("object not found")
	// ErrBadURL is returned for paths that are not s3://bucket/key.
	ErrBadURL = errors.New("invalid object URL")
)

// Store is the object access dataio needs.
type Store interface {
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Put(ctx context.Context, bucket, key string, data []byte) error
}

// IsURL reports whether path addresses an object store.
func IsURL(path string) bool {
	return strings.HasPrefix(path, Scheme)
}

// ParseURL splits s3://bucket/key into bucket and key.
func ParseURL(path string) (bucket, key string, err error) {
	if !IsURL(path) {
		return "", "", fmt.Errorf("%w: %q", ErrBadURL, path)
	}
	bucket, key, _ = strings.Cut(strings.TrimPrefix(path, Scheme), "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("%w: %q", ErrBadURL, path)
	}
	return bucket, key, nil
}

// Config holds S3 connection settings. Credentials come from the caller,
// usually the environment.
type Config struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// Client implements Store with minio-go.
type Client struct {
	client *minio.Client
	region string
}

// New creates an S3 client. Endpoint may be a bare host:port or a URL; an
// https URL enables TLS.
func New(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("objstore: endpoint is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("objstore: credentials are required")
	}

	host := cfg.Endpoint
	secure := cfg.UseSSL
	if u, err := url.Parse(cfg.Endpoint); err == nil && u.Host != "" {
		host = u.Host
		if u.Scheme == "https" {
			secure = true
		}
	}

	client, err := minio.New(host, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("objstore: create client: %w", err)
	}
	return &Client{client: client, region: cfg.Region}, nil
}

// Get downloads an object.
func (c *Client) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	obj, err := c.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, classify(err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, classify(err)
	}
	return data, nil
}

// Put uploads an object, creating the bucket when it does not exist.
func (c *Client) Put(ctx context.Context, bucket, key string, data []byte) error {
	if err := c.ensureBucket(ctx, bucket); err != nil {
		return err
	}
	_, err := c.client.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType(key),
	})
	if err != nil {
		return classify(err)
	}
	return nil
}

func (c *Client) ensureBucket(ctx context.Context, bucket string) error {
	exists, err := c.client.BucketExists(ctx, bucket)
	if err != nil {
		return classify(err)
	}
	if exists {
		return nil
	}
	if err := c.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: c.region}); err != nil {
		return classify(err)
	}
	return nil
}

func classify(err error) error {
	resp := minio.ToErrorResponse(err)
	switch {
	case resp.StatusCode == http.StatusNotFound,
		resp.Code == "NoSuchKey",
		resp.Code == "NoSuchBucket":
		return fmt.Errorf("%w: %s", ErrNotFound, resp.Message)
	}
	return fmt.Errorf("objstore: %w", err)
}

func contentType(key string) string {
	switch strings.ToLower(filepath.Ext(key)) {
	case ".json":
		return "application/json"
	case ".jsonl":
		return "application/x-ndjson"
	case ".csv":
		return "text/csv"
	default:
		return "application/octet-stream"
	}
}

// Local implements Store on a directory, one subdirectory per bucket.
type Local struct {
	root string
}

// NewLocal creates a local store rooted at root.
func NewLocal(root string) *Local {
	return &Local{root: root}
}

// Get implements Store.
func (l *Local) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(l.path(bucket, key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, bucket, key)
	}
	return data, err
}

// Put implements Store.
func (l *Local) Put(ctx context.Context, bucket, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full := l.path(bucket, key)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	return os.WriteFile(full, data, 0o644)
}

func (l *Local) path(bucket, key string) string {
	return filepath.Join(l.root, filepath.Clean("/"+bucket), filepath.FromSlash(filepath.Clean("/"+key)))
}

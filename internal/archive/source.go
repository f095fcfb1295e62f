package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Source is an archive blob with metadata. Size may be -1 when unknown;
// readers of Open must not trust it and bound their own reads.
type Source interface {
	Name() string
	Size() int64
	LastModified() time.Time
	Open(ctx context.Context) (io.ReadCloser, error)
}

// FileSource reads an archive from the local filesystem
type FileSource struct {
	path    string
	size    int64
	modTime time.Time
}

// NewFileSource stats path and returns a Source for it
func NewFileSource(path string) (*FileSource, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat archive: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	return &FileSource{path: path, size: info.Size(), modTime: info.ModTime()}, nil
}

func (s *FileSource) Name() string            { return filepath.Base(s.path) }
func (s *FileSource) Size() int64             { return s.size }
func (s *FileSource) LastModified() time.Time { return s.modTime }

// Open opens the file for reading
func (s *FileSource) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	return f, nil
}

// BytesSource serves an archive already held in memory
type BytesSource struct {
	name    string
	data    []byte
	modTime time.Time
}

// NewBytesSource wraps data as a Source
func NewBytesSource(name string, data []byte, modTime time.Time) *BytesSource {
	return &BytesSource{name: name, data: data, modTime: modTime}
}

func (s *BytesSource) Name() string            { return s.name }
func (s *BytesSource) Size() int64             { return int64(len(s.data)) }
func (s *BytesSource) LastModified() time.Time { return s.modTime }

// Open returns a reader over the wrapped bytes
func (s *BytesSource) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(s.data)), nil
}

// S3Config holds connection settings for an S3-compatible endpoint
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// NewS3Client connects to an S3-compatible object store
func NewS3Client(cfg S3Config) (*minio.Client, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 client: %w", err)
	}
	return mc, nil
}

// S3Source reads an archive object from S3-compatible storage
type S3Source struct {
	client  *minio.Client
	bucket  string
	key     string
	size    int64
	modTime time.Time
}

// NewS3Source stats the object so Size is known before any download
func NewS3Source(ctx context.Context, client *minio.Client, bucket, key string) (*S3Source, error) {
	info, err := client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("stat s3://%s/%s: %w", bucket, key, err)
	}
	return &S3Source{
		client:  client,
		bucket:  bucket,
		key:     key,
		size:    info.Size,
		modTime: info.LastModified,
	}, nil
}

func (s *S3Source) Name() string            { return filepath.Base(s.key) }
func (s *S3Source) Size() int64             { return s.size }
func (s *S3Source) LastModified() time.Time { return s.modTime }

// Open starts the object download
func (s *S3Source) Open(ctx context.Context) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get s3://%s/%s: %w", s.bucket, s.key, err)
	}
	return obj, nil
}

// ParseS3URL splits s3://bucket/key into its parts
func ParseS3URL(raw string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(raw, "s3://")
	if !ok {
		return "", "", fmt.Errorf("not an s3 url: %s", raw)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("s3 url needs bucket and key: %s", raw)
	}
	return bucket, key, nil
}

// Package blob makes submission documents available on local disk. Locations
// are plain filesystem paths or s3://bucket/key objects served by MinIO or any
// S3-compatible store.
package blob

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/okian/pitchjudge/pkg/logger"
)

var (
	// ErrNoObjectStore is returned for s3:// locations when no store is configured.
	ErrNoObjectStore = errors.New("object store not configured")
	// ErrInvalidLocation is returned for unparseable or unsupported locations.
	ErrInvalidLocation = errors.New("invalid document location")
)

// ObjectGetter downloads an object to a local file. *minio.Client satisfies it.
type ObjectGetter interface {
	FGetObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.GetObjectOptions) error
}

// MinioConfig holds the connection settings of the object store.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

// NewMinioClient connects to an S3-compatible object store.
func NewMinioClient(cfg MinioConfig) (*minio.Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("%w: empty endpoint", ErrNoObjectStore)
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	return client, nil
}

// Option applies a configuration option to the Fetcher.
type Option func(*Fetcher)

// WithObjectStore enables s3:// locations.
func WithObjectStore(objects ObjectGetter) Option {
	return func(f *Fetcher) {
		f.objects = objects
	}
}

// WithLogger sets a custom logger.
func WithLogger(log logger.Logger) Option {
	return func(f *Fetcher) {
		if log != nil {
			f.logger = log
		}
	}
}

// Fetcher resolves document locations.
type Fetcher struct {
	objects ObjectGetter
	logger  logger.Logger
}

// New creates a Fetcher. Without WithObjectStore only local paths resolve.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{}
	for _, opt := range opts {
		opt(f)
	}
	if f.logger == nil {
		f.logger = logger.Get().Named("blob")
	}
	return f
}

// Fetch returns a local path for location. Local documents are used in place;
// objects are downloaded into destDir.
func (f *Fetcher) Fetch(ctx context.Context, location, destDir string) (string, error) {
	if strings.HasPrefix(location, "s3://") {
		return f.fetchObject(ctx, location, destDir)
	}
	local := strings.TrimPrefix(location, "file://")
	info, err := os.Stat(local)
	if err != nil {
		return "", fmt.Errorf("stat document: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory", ErrInvalidLocation, local)
	}
	return local, nil
}

func (f *Fetcher) fetchObject(ctx context.Context, location, destDir string) (string, error) {
	if f.objects == nil {
		return "", fmt.Errorf("%w: %s", ErrNoObjectStore, location)
	}
	bucket, key, err := ParseObjectURL(location)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}
	dest := filepath.Join(destDir, "document"+path.Ext(key))
	if err := f.objects.FGetObject(ctx, bucket, key, dest, minio.GetObjectOptions{}); err != nil {
		return "", fmt.Errorf("download %s: %w", location, err)
	}
	f.logger.Debug(ctx, "document downloaded",
		logger.String("bucket", bucket),
		logger.String("key", key),
		logger.String("path", dest),
	)
	return dest, nil
}

// ParseObjectURL splits s3://bucket/key.
func ParseObjectURL(location string) (bucket, key string, err error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrInvalidLocation, err)
	}
	bucket, key = u.Host, strings.TrimPrefix(u.Path, "/")
	if u.Scheme != "s3" || bucket == "" || key == "" {
		return "", "", fmt.Errorf("%w: %s", ErrInvalidLocation, location)
	}
	return bucket, key, nil
}

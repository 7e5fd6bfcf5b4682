package fetch

import (
	"context"
	"io"
	"path"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/ajitpratap0/stockpile/pkg/config"
	"github.com/ajitpratap0/stockpile/pkg/errors"
	"github.com/ajitpratap0/stockpile/pkg/metrics"
)

// GCSFetcher retrieves bundle payloads from a Google Cloud Storage bucket.
// Source keys are joined with the configured prefix to form the object name.
type GCSFetcher struct {
	bucket  *storage.BucketHandle
	name    string
	prefix  string
	timeout time.Duration
	logger  *zap.Logger
}

// NewGCSFetcher creates a GCS fetcher. Credentials come from the
// configured service account file, or application default credentials
// when none is set.
func NewGCSFetcher(ctx context.Context, cfg config.FetchConfig, logger *zap.Logger) (*GCSFetcher, error) {
	if cfg.Bucket == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "gcs fetcher bucket must not be empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to create GCS client")
	}

	return &GCSFetcher{
		bucket:  client.Bucket(cfg.Bucket),
		name:    cfg.Bucket,
		prefix:  cfg.Prefix,
		timeout: cfg.Timeout,
		logger:  logger.With(zap.String("component", "gcs_fetcher"), zap.String("bucket", cfg.Bucket)),
	}, nil
}

// Backend implements Fetcher.
func (f *GCSFetcher) Backend() string { return "gcs" }

// Fetch retrieves the object at prefix/key.
func (f *GCSFetcher) Fetch(ctx context.Context, key string) ([]byte, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	objectName := path.Join(f.prefix, key)
	start := time.Now()

	reader, err := f.bucket.Object(objectName).NewReader(ctx)
	if err != nil {
		errType := errors.ErrorTypeLoadFailed
		if ctx.Err() != nil {
			errType = errors.ErrorTypeTimeout
		}
		return nil, errors.Wrap(err, errType, "gcs object open failed").
			WithDetail("object", objectName)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeLoadFailed, "gcs object read failed").
			WithDetail("object", objectName)
	}

	metrics.BundleBytesFetched.WithLabelValues(f.Backend()).Add(float64(len(data)))
	f.logger.Debug("payload fetched",
		zap.String("object", objectName),
		zap.Int("bytes", len(data)),
		zap.Duration("elapsed", time.Since(start)))

	return data, nil
}

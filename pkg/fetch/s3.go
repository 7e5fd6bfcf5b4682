package fetch

import (
	"context"
	"io"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/ajitpratap0/stockpile/pkg/config"
	"github.com/ajitpratap0/stockpile/pkg/errors"
	"github.com/ajitpratap0/stockpile/pkg/metrics"
)

// S3Fetcher retrieves bundle payloads from an S3 bucket. Source keys are
// joined with the configured prefix to form the object key.
type S3Fetcher struct {
	client  *s3.Client
	bucket  string
	prefix  string
	timeout time.Duration
	logger  *zap.Logger
}

// NewS3Fetcher creates an S3 fetcher using the default AWS credential
// chain and the configured region.
func NewS3Fetcher(ctx context.Context, cfg config.FetchConfig, logger *zap.Logger) (*S3Fetcher, error) {
	if cfg.Bucket == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "s3 fetcher bucket must not be empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to load AWS configuration")
	}

	return &S3Fetcher{
		client:  s3.NewFromConfig(awsCfg),
		bucket:  cfg.Bucket,
		prefix:  cfg.Prefix,
		timeout: cfg.Timeout,
		logger:  logger.With(zap.String("component", "s3_fetcher"), zap.String("bucket", cfg.Bucket)),
	}, nil
}

// Backend implements Fetcher.
func (f *S3Fetcher) Backend() string { return "s3" }

// Fetch retrieves the object at prefix/key.
func (f *S3Fetcher) Fetch(ctx context.Context, key string) ([]byte, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	objectKey := path.Join(f.prefix, key)
	start := time.Now()

	out, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		errType := errors.ErrorTypeLoadFailed
		if ctx.Err() != nil {
			errType = errors.ErrorTypeTimeout
		}
		return nil, errors.Wrap(err, errType, "s3 object fetch failed").
			WithDetail("key", objectKey)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeLoadFailed, "s3 object read failed").
			WithDetail("key", objectKey)
	}

	metrics.BundleBytesFetched.WithLabelValues(f.Backend()).Add(float64(len(data)))
	f.logger.Debug("payload fetched",
		zap.String("key", objectKey),
		zap.Int("bytes", len(data)),
		zap.Duration("elapsed", time.Since(start)))

	return data, nil
}

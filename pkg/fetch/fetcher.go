// Package fetch provides the payload retrieval backends for the bundle
// loader. A Fetcher turns a bundle source key into raw payload bytes;
// whether those bytes come from local disk, an HTTP CDN, or an object
// store is an implementation detail behind the interface.
//
// Fetchers do not retry: retry and backoff policy belongs to the caller,
// which can inspect error types (timeout, connection, load_failed) to
// decide.
package fetch

import (
	"context"

	"github.com/ajitpratap0/stockpile/pkg/config"
	"github.com/ajitpratap0/stockpile/pkg/errors"
	"go.uber.org/zap"
)

// Fetcher retrieves raw bundle payload bytes by source key.
// Implementations must be safe for concurrent use.
type Fetcher interface {
	// Fetch retrieves the payload for the given source key. The returned
	// bytes may be compressed; callers pass them through Decode.
	Fetch(ctx context.Context, key string) ([]byte, error)

	// Backend identifies the fetcher implementation for logging and
	// metrics labels.
	Backend() string
}

// New constructs the fetcher selected by cfg.Kind.
func New(ctx context.Context, cfg config.FetchConfig, logger *zap.Logger) (Fetcher, error) {
	switch cfg.Kind {
	case config.FetchFile:
		return NewFileFetcher(cfg.Root, logger)
	case config.FetchHTTP:
		return NewHTTPFetcher(cfg, logger)
	case config.FetchS3:
		return NewS3Fetcher(ctx, cfg, logger)
	case config.FetchGCS:
		return NewGCSFetcher(ctx, cfg, logger)
	default:
		return nil, errors.Newf(errors.ErrorTypeConfig, "unknown fetch backend %q", cfg.Kind)
	}
}

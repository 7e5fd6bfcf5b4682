// Package config provides the unified configuration system for Stockpile.
// It defines a single Config structure covering every runtime concern,
// ensuring consistent configuration across the entire system.
//
// The configuration is organized into logical sections:
//   - Logging: Level, encoding, and output destinations
//   - Manifest: Where the bundle manifest is loaded from
//   - Fetch: Which fetcher backend retrieves bundle payloads
//   - Cache: Bundle cache tuning (released-payload retention)
//   - Observability: Metrics and tracing toggles
//
// Example usage:
//
//	cfg := config.Default()
//	cfg.Manifest.Path = "bundles.yaml"
//	cfg.Fetch.Kind = config.FetchHTTP
//	cfg.Fetch.BaseURL = "https://cdn.example.com/bundles"
//
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"time"

	"github.com/ajitpratap0/stockpile/pkg/errors"
)

// FetchKind selects the fetcher backend used to retrieve bundle payloads.
type FetchKind string

const (
	// FetchFile reads payloads from a local directory
	FetchFile FetchKind = "file"
	// FetchHTTP retrieves payloads over HTTP(S)
	FetchHTTP FetchKind = "http"
	// FetchS3 retrieves payloads from an S3 bucket
	FetchS3 FetchKind = "s3"
	// FetchGCS retrieves payloads from a Google Cloud Storage bucket
	FetchGCS FetchKind = "gcs"
)

// Config is the single unified configuration structure for a Stockpile
// process. Zero values are filled in by ApplyDefaults.
type Config struct {
	// Logging controls structured log output
	Logging LoggingConfig `yaml:"logging" json:"logging"`

	// Manifest locates the bundle dependency manifest
	Manifest ManifestConfig `yaml:"manifest" json:"manifest"`

	// Fetch selects and configures the payload fetcher
	Fetch FetchConfig `yaml:"fetch" json:"fetch"`

	// Cache tunes the bundle cache
	Cache CacheConfig `yaml:"cache" json:"cache"`

	// Observability toggles metrics and tracing
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

// LoggingConfig controls log level and encoding.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error)
	Level string `yaml:"level" json:"level"`
	// Encoding is the output format (json or console)
	Encoding string `yaml:"encoding" json:"encoding"`
	// Development enables human-friendly output and error stacktraces
	Development bool `yaml:"development" json:"development"`
	// OutputPaths lists log destinations (defaults to stdout)
	OutputPaths []string `yaml:"output_paths" json:"output_paths"`
}

// ManifestConfig locates the bundle manifest.
type ManifestConfig struct {
	// Path is the manifest file path (.yaml/.yml or .json)
	Path string `yaml:"path" json:"path"`
}

// FetchConfig configures the payload fetcher backend.
type FetchConfig struct {
	// Kind selects the backend: file, http, s3, or gcs
	Kind FetchKind `yaml:"kind" json:"kind"`
	// Root is the base directory for the file backend
	Root string `yaml:"root" json:"root"`
	// BaseURL is the URL prefix for the http backend
	BaseURL string `yaml:"base_url" json:"base_url"`
	// Bucket is the bucket name for the s3/gcs backends
	Bucket string `yaml:"bucket" json:"bucket"`
	// Prefix is prepended to object keys for the s3/gcs backends
	Prefix string `yaml:"prefix" json:"prefix"`
	// Region is the AWS region for the s3 backend
	Region string `yaml:"region" json:"region"`
	// CredentialsFile holds service account credentials for the gcs backend
	CredentialsFile string `yaml:"credentials_file" json:"credentials_file"`
	// Timeout bounds a single payload fetch
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	// Auth configures OAuth2 client credentials for the http backend
	Auth AuthConfig `yaml:"auth" json:"auth"`
}

// AuthConfig configures OAuth2 client-credentials authentication for
// remote fetchers. All fields empty disables authentication.
type AuthConfig struct {
	TokenURL     string   `yaml:"token_url" json:"token_url"`
	ClientID     string   `yaml:"client_id" json:"client_id"`
	ClientSecret string   `yaml:"client_secret" json:"client_secret"`
	Scopes       []string `yaml:"scopes" json:"scopes"`
}

// Enabled reports whether client-credentials auth is configured.
func (a AuthConfig) Enabled() bool {
	return a.TokenURL != "" && a.ClientID != ""
}

// CacheConfig tunes the bundle cache.
type CacheConfig struct {
	// HotPayloads bounds the LRU of released payloads kept resident for
	// cheap reloads. Zero disables retention.
	HotPayloads int `yaml:"hot_payloads" json:"hot_payloads"`
}

// ObservabilityConfig toggles metrics and tracing.
type ObservabilityConfig struct {
	// EnableMetrics activates prometheus metrics collection
	EnableMetrics bool `yaml:"enable_metrics" json:"enable_metrics"`
	// EnableTracing activates OpenTelemetry span emission
	EnableTracing bool `yaml:"enable_tracing" json:"enable_tracing"`
	// ServiceName labels emitted telemetry
	ServiceName string `yaml:"service_name" json:"service_name"`
}

// Default returns a configuration with every section filled with
// sensible defaults: file fetching from the working directory, info-level
// JSON logging, metrics on, tracing off.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero-valued fields with defaults. It is safe to call
// on a partially populated configuration loaded from a file.
func (c *Config) ApplyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Encoding == "" {
		c.Logging.Encoding = "json"
	}
	if c.Fetch.Kind == "" {
		c.Fetch.Kind = FetchFile
	}
	if c.Fetch.Root == "" {
		c.Fetch.Root = "."
	}
	if c.Fetch.Timeout == 0 {
		c.Fetch.Timeout = 30 * time.Second
	}
	if c.Cache.HotPayloads == 0 {
		c.Cache.HotPayloads = 32
	}
	if c.Observability.ServiceName == "" {
		c.Observability.ServiceName = "stockpile"
	}
}

// Validate checks the configuration for inconsistencies. It returns a
// config-typed error describing the first problem found.
func (c *Config) Validate() error {
	switch c.Fetch.Kind {
	case FetchFile:
		if c.Fetch.Root == "" {
			return errors.New(errors.ErrorTypeConfig, "fetch.root is required for the file backend")
		}
	case FetchHTTP:
		if c.Fetch.BaseURL == "" {
			return errors.New(errors.ErrorTypeConfig, "fetch.base_url is required for the http backend")
		}
	case FetchS3:
		if c.Fetch.Bucket == "" {
			return errors.New(errors.ErrorTypeConfig, "fetch.bucket is required for the s3 backend")
		}
		if c.Fetch.Region == "" {
			return errors.New(errors.ErrorTypeConfig, "fetch.region is required for the s3 backend")
		}
	case FetchGCS:
		if c.Fetch.Bucket == "" {
			return errors.New(errors.ErrorTypeConfig, "fetch.bucket is required for the gcs backend")
		}
	default:
		return errors.Newf(errors.ErrorTypeConfig, "unknown fetch backend %q", c.Fetch.Kind)
	}

	if c.Fetch.Timeout < 0 {
		return errors.New(errors.ErrorTypeConfig, "fetch.timeout must not be negative")
	}
	if c.Cache.HotPayloads < 0 {
		return errors.New(errors.ErrorTypeConfig, "cache.hot_payloads must not be negative")
	}
	return nil
}

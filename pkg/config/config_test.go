package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ajitpratap0/stockpile/pkg/errors"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default configuration invalid: %v", err)
	}
	if cfg.Fetch.Kind != FetchFile {
		t.Errorf("unexpected default backend: %s", cfg.Fetch.Kind)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Encoding != "json" {
		t.Errorf("unexpected logging defaults: %+v", cfg.Logging)
	}
}

func TestApplyDefaultsPreservesExplicitValues(t *testing.T) {
	cfg := &Config{}
	cfg.Logging.Level = "debug"
	cfg.Fetch.Kind = FetchHTTP
	cfg.Fetch.BaseURL = "https://cdn.example.com/"
	cfg.Fetch.Timeout = 5 * time.Second

	cfg.ApplyDefaults()

	if cfg.Logging.Level != "debug" {
		t.Errorf("explicit log level overwritten: %s", cfg.Logging.Level)
	}
	if cfg.Fetch.Kind != FetchHTTP {
		t.Errorf("explicit backend overwritten: %s", cfg.Fetch.Kind)
	}
	if cfg.Fetch.Timeout != 5*time.Second {
		t.Errorf("explicit timeout overwritten: %s", cfg.Fetch.Timeout)
	}
	if cfg.Cache.HotPayloads == 0 {
		t.Error("cache defaults not applied")
	}
}

func TestValidatePerBackend(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"file ok", func(c *Config) {}, false},
		{"file missing root", func(c *Config) { c.Fetch.Root = "" }, true},
		{"http missing url", func(c *Config) { c.Fetch.Kind = FetchHTTP }, true},
		{"http ok", func(c *Config) {
			c.Fetch.Kind = FetchHTTP
			c.Fetch.BaseURL = "https://cdn.example.com/"
		}, false},
		{"s3 missing region", func(c *Config) {
			c.Fetch.Kind = FetchS3
			c.Fetch.Bucket = "bundles"
		}, true},
		{"s3 ok", func(c *Config) {
			c.Fetch.Kind = FetchS3
			c.Fetch.Bucket = "bundles"
			c.Fetch.Region = "us-east-1"
		}, false},
		{"gcs missing bucket", func(c *Config) { c.Fetch.Kind = FetchGCS }, true},
		{"gcs ok", func(c *Config) {
			c.Fetch.Kind = FetchGCS
			c.Fetch.Bucket = "bundles"
		}, false},
		{"unknown backend", func(c *Config) { c.Fetch.Kind = "ftp" }, true},
		{"negative timeout", func(c *Config) { c.Fetch.Timeout = -time.Second }, true},
		{"negative hot payloads", func(c *Config) { c.Cache.HotPayloads = -1 }, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr && err == nil {
				t.Error("expected validation error")
			}
			if tc.wantErr && err != nil && !errors.IsType(err, errors.ErrorTypeConfig) {
				t.Errorf("expected config error type, got %v", err)
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestAuthConfigEnabled(t *testing.T) {
	var a AuthConfig
	if a.Enabled() {
		t.Error("empty auth reported enabled")
	}
	a = AuthConfig{TokenURL: "https://auth.example.com/token", ClientID: "stockpile"}
	if !a.Enabled() {
		t.Error("configured auth reported disabled")
	}
}

func TestLoadSubstitutesEnvVars(t *testing.T) {
	t.Setenv("BUNDLE_BUCKET", "prod-bundles")
	t.Setenv("AWS_DEFAULT_REGION", "eu-west-1")

	path := filepath.Join(t.TempDir(), "stockpile.yaml")
	content := `
manifest:
  path: bundles.yaml
fetch:
  kind: s3
  bucket: ${BUNDLE_BUCKET}
  region: ${AWS_DEFAULT_REGION}
cache:
  hot_payloads: 16
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := &Config{}
	if err := Load(path, cfg); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	cfg.ApplyDefaults()

	if cfg.Fetch.Bucket != "prod-bundles" {
		t.Errorf("bucket substitution failed: %q", cfg.Fetch.Bucket)
	}
	if cfg.Fetch.Region != "eu-west-1" {
		t.Errorf("region substitution failed: %q", cfg.Fetch.Region)
	}
	if cfg.Fetch.Timeout != 30*time.Second {
		t.Errorf("default timeout not applied: %s", cfg.Fetch.Timeout)
	}
	if cfg.Cache.HotPayloads != 16 {
		t.Errorf("hot payload count not parsed: %d", cfg.Cache.HotPayloads)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("loaded config invalid: %v", err)
	}
}

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("STOCKPILE_TEST_VALUE", "resolved")

	got := SubstituteEnvVars("before ${STOCKPILE_TEST_VALUE} after")
	if got != "before resolved after" {
		t.Errorf("substitution failed: %q", got)
	}

	// Unset variables resolve to empty.
	got = SubstituteEnvVars("x${STOCKPILE_DEFINITELY_UNSET_VAR}y")
	if got != "xy" {
		t.Errorf("unset substitution failed: %q", got)
	}
}

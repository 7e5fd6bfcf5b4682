package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"strings"
	"time"

	gojson "github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ajitpratap0/stockpile/pkg/bundle"
	"github.com/ajitpratap0/stockpile/pkg/config"
	"github.com/ajitpratap0/stockpile/pkg/fetch"
	"github.com/ajitpratap0/stockpile/pkg/logger"
	"github.com/ajitpratap0/stockpile/pkg/observability"
	"github.com/ajitpratap0/stockpile/pkg/performance"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("STOCKPILE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:   "stockpile",
		Short: "Stockpile - resource pooling and dependency-aware bundle loading",
		Long: `Stockpile manages bounded object pools and a dependency-resolving bundle
cache. Bundles declared in a manifest are fetched from local disk, HTTP,
S3, or GCS, with dependencies always made resident first.`,
	}

	root.PersistentFlags().StringP("config", "c", "", "Path to configuration YAML file")
	root.PersistentFlags().String("log-level", "", "Log level override (debug, info, warn, error)")
	root.PersistentFlags().String("manifest", "", "Manifest path override")
	_ = v.BindPFlag("config", root.PersistentFlags().Lookup("config"))
	_ = v.BindPFlag("log_level", root.PersistentFlags().Lookup("log-level"))
	_ = v.BindPFlag("manifest", root.PersistentFlags().Lookup("manifest"))

	root.AddCommand(versionCmd())
	root.AddCommand(validateCmd(v))
	root.AddCommand(loadCmd(v))
	root.AddCommand(statsCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Stockpile v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

func validateCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and bundle manifest",
		Long: `Validate checks the configuration file and performs the dry-run pass on
the bundle manifest: undeclared dependencies, self-dependencies, and
dependency cycles are all rejected before any payload is fetched.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}

			m, err := bundle.LoadManifest(cfg.Manifest.Path)
			if err != nil {
				return err
			}
			if err := m.Validate(); err != nil {
				return err
			}

			order, err := m.TopoOrder()
			if err != nil {
				return err
			}
			fmt.Printf("manifest OK: %d bundles\n", m.Len())
			fmt.Println("load order:")
			for _, name := range order {
				fmt.Printf("  - %s\n", name)
			}
			return nil
		},
	}
}

func loadCmd(v *viper.Viper) *cobra.Command {
	var (
		hold        time.Duration
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "load <bundle> [bundle...]",
		Short: "Load bundles and their dependency closures",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			loader, err := buildLoader(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() {
				loader.UnloadAll()
				_ = logger.Sync()
				_ = observability.Shutdown(context.Background())
			}()

			if metricsAddr != "" && cfg.Observability.EnableMetrics {
				go serveMetrics(metricsAddr)
			}

			for _, name := range args {
				bctx := context.WithValue(ctx, logger.BundleKey, name)
				logger.WithContext(bctx).Info("loading bundle")

				h, err := loader.Load(bctx, name)
				if err != nil {
					return err
				}
				fmt.Printf("loaded %s (%d bytes, %d dependencies)\n",
					h.Name, h.Size(), len(h.Dependencies))
			}

			out, err := gojson.MarshalIndent(loader.Status(), "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))

			if hold > 0 {
				fmt.Printf("holding bundles resident for %s\n", hold)
				time.Sleep(hold)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&hold, "hold", 0, "Keep bundles resident for this long before exiting")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve prometheus metrics on this address while running")
	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show process resource usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			usage := performance.NewResourceMonitor().Usage()
			out, err := gojson.MarshalIndent(usage, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}

// loadConfig assembles the effective configuration: defaults, then the
// config file, then STOCKPILE_* environment and flag overrides.
func loadConfig(v *viper.Viper) (*config.Config, error) {
	cfg := config.Default()

	if path := v.GetString("config"); path != "" {
		if err := config.Load(path, cfg); err != nil {
			return nil, err
		}
		cfg.ApplyDefaults()
	}
	if level := v.GetString("log_level"); level != "" {
		cfg.Logging.Level = level
	}
	if manifest := v.GetString("manifest"); manifest != "" {
		cfg.Manifest.Path = manifest
	}

	if cfg.Manifest.Path == "" {
		return nil, fmt.Errorf("no manifest configured: set manifest.path or --manifest")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildLoader wires the runtime: logger, tracing, fetcher, cache, and a
// loader over the validated manifest.
func buildLoader(ctx context.Context, cfg *config.Config) (*bundle.Loader, error) {
	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		Encoding:    cfg.Logging.Encoding,
		OutputPaths: cfg.Logging.OutputPaths,
	}); err != nil {
		return nil, err
	}
	log := logger.Get()

	if cfg.Observability.EnableTracing {
		if err := observability.Initialize(observability.Config{
			ServiceName: cfg.Observability.ServiceName,
		}); err != nil {
			return nil, err
		}
	}

	m, err := bundle.LoadManifest(cfg.Manifest.Path)
	if err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}

	fetcher, err := fetch.New(ctx, cfg.Fetch, log)
	if err != nil {
		return nil, err
	}

	cache, err := bundle.NewCache(cfg.Cache.HotPayloads, log)
	if err != nil {
		return nil, err
	}

	log.Info("stockpile ready",
		zap.String("manifest", cfg.Manifest.Path),
		zap.String("fetch_backend", string(cfg.Fetch.Kind)),
		zap.Int("bundles", m.Len()))

	return bundle.NewLoader(m, fetcher, cache, log), nil
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Warn("metrics endpoint stopped", zap.Error(err))
	}
}

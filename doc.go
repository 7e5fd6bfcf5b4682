// Package stockpile provides resource pooling and dependency-aware bundle
// loading for latency-sensitive interactive applications.
//
// Stockpile solves two problems that show up together whenever content is
// streamed into a running process: reusing expensive short-lived objects
// instead of allocating them per use, and bringing named content bundles
// (and everything they depend on) into memory exactly once, in the right
// order, and releasing them safely.
//
// # Architecture
//
// The system is built from two cooperating engines:
//
// 1. Pool Engine: Bounded, auto-expanding object pools keyed by resource
// name. A pool never exceeds its configured capacity, never blocks on
// acquire, and tracks peak concurrency so capacity can be tuned from
// production data.
//
// 2. Bundle Engine: A manifest-driven loader and reference-counted cache.
// Dependencies are always resident before their dependents' payloads are
// fetched; concurrent loads of the same bundle collapse into one fetch;
// unloading is a hint that takes effect only when the last holder lets go.
//
// # Quick Start
//
// Pools:
//
//	reg := pool.NewRegistry(logger.Get())
//	_ = reg.CreatePool("bullet",
//	    pool.Settings{InitialSize: 20, MaxSize: 100, ExpandBy: 10, AutoExpand: true},
//	    func() (any, error) { return newBullet(), nil })
//
//	h, err := reg.Acquire("bullet")
//	if err == nil {
//	    defer reg.Release(h)
//	    // use h.Instance
//	}
//
// Bundles:
//
//	m, _ := bundle.LoadManifest("bundles.yaml")
//	f, _ := fetch.New(ctx, cfg.Fetch, logger.Get())
//	c, _ := bundle.NewCache(cfg.Cache.HotPayloads, logger.Get())
//	loader := bundle.NewLoader(m, f, c, logger.Get())
//
//	h, err := loader.Load(ctx, "level-3") // textures and audio load first
//	defer loader.Unload("level-3")
//
// # Key Packages
//
//	pkg/pool          - Bounded object pools and the keyed registry
//	pkg/bundle        - Manifest, dependency-resolving loader, refcounted cache
//	pkg/fetch         - Payload backends (file, HTTP, S3, GCS) and compression
//	pkg/config        - Unified YAML configuration with ${VAR} substitution
//	pkg/errors        - Structured error handling with typed categories
//	pkg/logger        - Structured logging
//	pkg/metrics       - Prometheus metrics for pools and bundle loads
//	pkg/observability - OpenTelemetry tracing around loads and fetches
//
// # Manifest
//
// Bundles and their dependencies are declared once, in YAML or JSON:
//
//	level-3:
//	  source: levels/level-3.bin
//	  dependencies: [textures, audio]
//	  compression: zstd
//	  checksum: 4f2a...
//	textures:
//	  source: shared/textures.bin
//
// The manifest is validated up front: undeclared references,
// self-dependencies, and cycles are configuration defects rejected before
// any payload is fetched.
package stockpile

package bundle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/ajitpratap0/stockpile/pkg/errors"
	"github.com/ajitpratap0/stockpile/pkg/fetch"
	"github.com/ajitpratap0/stockpile/pkg/logger"
	"github.com/ajitpratap0/stockpile/pkg/metrics"
	"github.com/ajitpratap0/stockpile/pkg/observability"
)

// loadStackKey carries the chain of bundle names currently being resolved
// on this call path, for runtime cycle detection.
type loadStackKey struct{}

func pushLoadStack(ctx context.Context, name string) (context.Context, error) {
	stack, _ := ctx.Value(loadStackKey{}).([]string)
	for _, n := range stack {
		if n == name {
			return nil, cycleError(append(append([]string(nil), stack...), name))
		}
	}
	next := make([]string, len(stack), len(stack)+1)
	copy(next, stack)
	next = append(next, name)
	return context.WithValue(ctx, loadStackKey{}, next), nil
}

// currentLoad returns the bundle whose load is running on this call path,
// or "" for a root caller.
func currentLoad(ctx context.Context) string {
	stack, _ := ctx.Value(loadStackKey{}).([]string)
	if len(stack) == 0 {
		return ""
	}
	return stack[len(stack)-1]
}

// Loader resolves bundle dependency chains and drives payload fetches.
// Concurrent loads of the same bundle collapse into a single underlying
// fetch; every dependency reaches Loaded before its dependent's payload
// is requested.
type Loader struct {
	manifest *Manifest
	cache    *Cache
	fetcher  fetch.Fetcher
	flights  singleflight.Group
	logger   *zap.Logger

	// waits records which flights each flight is currently blocked on.
	// The per-call-path stack cannot see a cycle that closes across two
	// independent flights (a's flight joining b's while b's joins a's),
	// so joins are checked against this graph before blocking.
	waitMu sync.Mutex
	waits  map[string]map[string]struct{}
}

// NewLoader creates a loader over the given manifest, payload fetcher,
// and cache.
func NewLoader(m *Manifest, f fetch.Fetcher, c *Cache, log *zap.Logger) *Loader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Loader{
		manifest: m,
		cache:    c,
		fetcher:  f,
		logger:   log.With(zap.String("component", "bundle_loader")),
		waits:    make(map[string]map[string]struct{}),
	}
}

// Manifest returns the loader's manifest.
func (l *Loader) Manifest() *Manifest { return l.manifest }

// Load makes name and its full dependency closure resident and returns a
// handle holding one reference. Each successful call takes its own
// reference, so concurrent callers unload independently. Canceling ctx
// detaches this caller; an in-flight fetch shared with other callers
// runs to completion so their loads still succeed.
func (l *Loader) Load(ctx context.Context, name string) (*Handle, error) {
	return l.load(ctx, name, false)
}

func (l *Loader) load(ctx context.Context, name string, asDependency bool) (*Handle, error) {
	if !l.manifest.Has(name) {
		return nil, errors.Newf(errors.ErrorTypeUnknownBundle, "bundle %q is not in the manifest", name)
	}

	parent := currentLoad(ctx)
	ctx, err := pushLoadStack(ctx, name)
	if err != nil {
		return nil, err
	}

	// Retry after a lost race between a completed flight and a concurrent
	// full release of the freshly loaded bundle.
	for {
		if h, ok := l.cache.acquireLoaded(name, asDependency); ok {
			metrics.BundleCacheHits.WithLabelValues("loaded").Inc()
			l.logger.Debug("load served from cache", logger.Bundle(name))
			return h, nil
		}

		if err := l.addWait(parent, name); err != nil {
			return nil, err
		}

		// The flight deliberately outlives any single caller: cancellation
		// detaches the waiter while other callers of the same bundle keep
		// their load. Context values (trace, load stack) are preserved.
		flightCtx := context.WithoutCancel(ctx)
		ch := l.flights.DoChan(name, func() (interface{}, error) {
			return l.runFlight(flightCtx, name)
		})

		select {
		case res := <-ch:
			l.removeWait(parent, name)
			if res.Err != nil {
				return nil, res.Err
			}
			if h, ok := l.cache.acquireLoaded(name, asDependency); ok {
				return h, nil
			}
			// Fully released before we could acquire; load again.
			continue

		case <-ctx.Done():
			l.removeWait(parent, name)
			errType := errors.ErrorTypeInternal
			if ctx.Err() == context.DeadlineExceeded {
				errType = errors.ErrorTypeTimeout
			}
			return nil, errors.Wrap(ctx.Err(), errType, "bundle load abandoned by caller").
				WithDetail("bundle", name)
		}
	}
}

// addWait records that the flight for parent is about to block on the
// flight for name. If name's flight already waits, directly or through
// other flights, on parent, the join would deadlock both flights and a
// cycle error is returned instead. Root callers (parent == "") cannot be
// waited on and never form an edge.
func (l *Loader) addWait(parent, name string) error {
	if parent == "" {
		return nil
	}

	l.waitMu.Lock()
	defer l.waitMu.Unlock()

	if path := l.waitPathLocked(name, parent); path != nil {
		return cycleError(append([]string{parent}, path...))
	}

	set := l.waits[parent]
	if set == nil {
		set = make(map[string]struct{})
		l.waits[parent] = set
	}
	set[name] = struct{}{}
	return nil
}

func (l *Loader) removeWait(parent, name string) {
	if parent == "" {
		return
	}

	l.waitMu.Lock()
	defer l.waitMu.Unlock()

	if set := l.waits[parent]; set != nil {
		delete(set, name)
		if len(set) == 0 {
			delete(l.waits, parent)
		}
	}
}

// waitPathLocked returns the chain of flights from from to to through
// recorded wait edges, or nil when to is unreachable. Caller holds
// l.waitMu.
func (l *Loader) waitPathLocked(from, to string) []string {
	seen := make(map[string]struct{})
	var walk func(n string) []string
	walk = func(n string) []string {
		if n == to {
			return []string{n}
		}
		if _, ok := seen[n]; ok {
			return nil
		}
		seen[n] = struct{}{}
		for next := range l.waits[n] {
			if path := walk(next); path != nil {
				return append([]string{n}, path...)
			}
		}
		return nil
	}
	return walk(from)
}

// runFlight performs the actual load: dependencies first, then the
// payload. It leaves the bundle Loaded with zero references; each waiter
// acquires its own on return. Failure rolls the bundle back to Unloaded
// and drops any dependency pins already taken, so no partial state
// survives.
func (l *Loader) runFlight(ctx context.Context, name string) (interface{}, error) {
	entry, ok := l.manifest.Entry(name)
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeUnknownBundle, "bundle %q is not in the manifest", name)
	}

	if !l.cache.beginLoad(name) {
		h, _ := l.cache.peekLoaded(name)
		return h, nil
	}

	ctx, span := observability.StartSpan(ctx, "bundle.load",
		attribute.String("bundle.name", name),
		attribute.Int("bundle.dependency_count", len(entry.Dependencies)))
	timer := metrics.NewTimer()

	h, err := l.fetchWithDeps(ctx, name, entry)

	outcome := "success"
	if err != nil {
		outcome = "failure"
		l.cache.failLoad(name)
		l.logger.Error("bundle load failed", logger.Bundle(name), zap.Error(err))
	}
	metrics.BundleLoads.WithLabelValues(outcome).Inc()
	metrics.BundleLoadDuration.WithLabelValues(outcome).Observe(timer.Stop().Seconds())
	observability.EndSpan(span, err)

	if err != nil {
		return nil, err
	}

	l.cache.completeLoad(name, h)
	l.logger.Info("bundle loaded",
		logger.Bundle(name),
		zap.Int("bytes", h.Size()),
		zap.Duration("elapsed", timer.Stop()))
	return h, nil
}

// fetchWithDeps brings every dependency to Loaded, then fetches, decodes,
// and verifies the bundle's own payload.
func (l *Loader) fetchWithDeps(ctx context.Context, name string, entry Entry) (*Handle, error) {
	if len(entry.Dependencies) > 0 {
		if err := l.loadDependencies(ctx, name, entry.Dependencies); err != nil {
			return nil, err
		}
	}

	payload, fromHot := l.cache.takeHot(name)
	if fromHot {
		metrics.BundleCacheHits.WithLabelValues("hot").Inc()
		l.logger.Debug("payload revived from hot store", logger.Bundle(name))
	} else {
		raw, err := l.fetcher.Fetch(ctx, entry.Source)
		if err != nil {
			l.releaseDependencies(name, entry.Dependencies)
			return nil, errors.Wrap(err, errors.ErrorTypeLoadFailed, "payload fetch failed").
				WithDetail("bundle", name).
				WithDetail("source", entry.Source)
		}

		payload, err = fetch.Decode(raw, entry.Compression)
		if err != nil {
			l.releaseDependencies(name, entry.Dependencies)
			return nil, errors.Wrap(err, errors.ErrorTypeLoadFailed, "payload decode failed").
				WithDetail("bundle", name)
		}

		if err := verifyChecksum(payload, entry.Checksum); err != nil {
			l.releaseDependencies(name, entry.Dependencies)
			return nil, errors.Wrap(err, errors.ErrorTypeLoadFailed, "payload integrity check failed").
				WithDetail("bundle", name).
				WithDetail("source", entry.Source)
		}
	}

	return &Handle{
		Name:         name,
		Payload:      payload,
		Dependencies: append([]string(nil), entry.Dependencies...),
		LoadedAt:     time.Now(),
	}, nil
}

// loadDependencies loads siblings concurrently. Each successful
// dependency load pins the dependency on behalf of name; on any failure
// the pins already taken are dropped again.
func (l *Loader) loadDependencies(ctx context.Context, name string, deps []string) error {
	var (
		g, gctx = errgroup.WithContext(ctx)
		loaded  = make(chan string, len(deps))
	)
	for _, dep := range deps {
		dep := dep
		g.Go(func() error {
			// Propagated as-is so the caller sees the dependency's own
			// error type (cycle, unknown bundle, fetch failure).
			if _, err := l.load(gctx, dep, true); err != nil {
				l.logger.Debug("dependency load failed",
					logger.Bundle(name),
					zap.String("dependency", dep),
					zap.Error(err))
				return err
			}
			loaded <- dep
			return nil
		})
	}

	err := g.Wait()
	close(loaded)
	if err != nil {
		for dep := range loaded {
			l.cache.releaseHold(dep)
		}
		return err
	}
	return nil
}

func (l *Loader) releaseDependencies(name string, deps []string) {
	for _, dep := range deps {
		l.cache.releaseHold(dep)
	}
	l.logger.Debug("dependency pins dropped after failed load", logger.Bundle(name))
}

// Unload drops one caller reference on name. The payload stays resident
// while other callers or loaded dependents still hold it; unloading a
// bundle that is not resident is a logged no-op.
func (l *Loader) Unload(name string) error {
	if !l.manifest.Has(name) {
		return errors.Newf(errors.ErrorTypeUnknownBundle, "bundle %q is not in the manifest", name)
	}
	if err := l.cache.release(name); err != nil {
		l.logger.Debug("unload of non-resident bundle", logger.Bundle(name))
	}
	return nil
}

// UnloadAll tears down every resident bundle regardless of outstanding
// references. Intended for shutdown.
func (l *Loader) UnloadAll() {
	l.cache.Purge()
	l.logger.Info("all bundles unloaded")
}

// Status returns a snapshot of every tracked bundle.
func (l *Loader) Status() []BundleStatus {
	return l.cache.Snapshot()
}

func verifyChecksum(payload []byte, want string) error {
	if want == "" {
		return nil
	}
	sum := sha256.Sum256(payload)
	got := hex.EncodeToString(sum[:])
	if !strings.EqualFold(got, want) {
		return errors.Newf(errors.ErrorTypeLoadFailed, "checksum mismatch: got %s, want %s", got, want)
	}
	return nil
}

package pool

import (
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/stockpile/pkg/errors"
	"github.com/ajitpratap0/stockpile/pkg/logger"
	"github.com/ajitpratap0/stockpile/pkg/metrics"
)

// Registry namespaces pools by key and is the single authority other
// subsystems talk to. It is safe for concurrent use and has an explicit
// lifecycle: construct at startup, DestroyAll at shutdown or scene
// transition. Consumers receive it by reference rather than through
// ambient global state.
type Registry struct {
	mu         sync.RWMutex
	pools      map[string]*Pool[any]
	destroyers map[string]Destructor[any]
	logger     *zap.Logger
}

// NewRegistry creates an empty pool registry.
func NewRegistry(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		pools:      make(map[string]*Pool[any]),
		destroyers: make(map[string]Destructor[any]),
		logger:     log.With(zap.String("component", "pool_registry")),
	}
}

// CreatePool registers a new pool under key and initializes it. It fails
// with a duplicate-key error if the key is already registered; existing
// pools are never replaced implicitly.
func (r *Registry) CreatePool(key string, settings Settings, factory Factory[any], opts ...Option[any]) error {
	if factory == nil {
		return errors.New(errors.ErrorTypeValidation, "pool factory must not be nil").
			WithDetail("pool", key)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.pools[key]; exists {
		return errors.Newf(errors.ErrorTypeDuplicateKey, "pool %q already registered", key)
	}

	opts = append([]Option[any]{WithLogger[any](r.logger.With(logger.Pool(key)))}, opts...)
	p := New[any](opts...)
	if err := p.Initialize(settings, factory); err != nil {
		// Instances created before the factory failed must still reach
		// the destructor; the pool itself is discarded.
		p.Clear()
		return errors.Wrap(err, errors.ErrorTypeInternal, "pool initialization failed").
			WithDetail("pool", key)
	}

	r.pools[key] = p
	r.destroyers[key] = p.destroy
	r.publish(key, p.Stats())

	r.logger.Info("pool registered",
		logger.Pool(key),
		zap.Int("initial_size", settings.InitialSize),
		zap.Int("max_size", settings.MaxSize))

	return nil
}

// Acquire checks an instance out of the pool registered under key. It
// returns an unknown-pool error for an unregistered key and a
// resource-exhausted error when the pool is at capacity with no idle
// instances. It never blocks.
func (r *Registry) Acquire(key string) (Handle, error) {
	r.mu.RLock()
	p, exists := r.pools[key]
	r.mu.RUnlock()

	if !exists {
		return Handle{}, errors.Newf(errors.ErrorTypeUnknownPool, "pool %q not registered", key)
	}

	inst, ok := p.Acquire()
	if !ok {
		metrics.PoolAcquireFailures.WithLabelValues(key).Inc()
		return Handle{}, errors.Newf(errors.ErrorTypeResourceExhausted,
			"pool %q has no instance available", key)
	}

	r.publish(key, p.Stats())
	return Handle{Key: key, Instance: inst}, nil
}

// Release returns a handle's instance to its pool. If the pool no longer
// exists the instance is destroyed directly: orphans are never leaked and
// never silently ignored.
func (r *Registry) Release(h Handle) {
	r.mu.RLock()
	p, exists := r.pools[h.Key]
	destroy := r.destroyers[h.Key]
	r.mu.RUnlock()

	// The pool can be cleared between the lookup and the release. The
	// outcome distinguishes that from a tolerated double-release, which
	// must not finalize an instance the pool still owns.
	if exists && p.release(h.Instance) != releaseNotInitialized {
		r.publish(h.Key, p.Stats())
		return
	}

	r.logger.Warn("released handle for destroyed pool, finalizing instance",
		logger.Pool(h.Key))
	if destroy != nil {
		destroy(h.Instance)
	}
}

// PreWarm grows the pool registered under key by up to count idle
// instances, truncating at the pool's capacity.
func (r *Registry) PreWarm(key string, count int) error {
	r.mu.RLock()
	p, exists := r.pools[key]
	r.mu.RUnlock()

	if !exists {
		return errors.Newf(errors.ErrorTypeUnknownPool, "pool %q not registered", key)
	}

	if err := p.Expand(count); err != nil {
		return err
	}
	r.publish(key, p.Stats())
	return nil
}

// Stats returns a usage snapshot for the pool registered under key.
func (r *Registry) Stats(key string) (Stats, error) {
	r.mu.RLock()
	p, exists := r.pools[key]
	r.mu.RUnlock()

	if !exists {
		return Stats{}, errors.Newf(errors.ErrorTypeUnknownPool, "pool %q not registered", key)
	}
	return p.Stats(), nil
}

// Keys returns the registered pool keys.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.pools))
	for key := range r.pools {
		keys = append(keys, key)
	}
	return keys
}

// DestroyPool clears and removes the pool registered under key. The
// destructor registration is retained so handles still in flight can be
// finalized by Release. Destroying an unknown key is a no-op.
func (r *Registry) DestroyPool(key string) {
	r.mu.Lock()
	p, exists := r.pools[key]
	if exists {
		delete(r.pools, key)
	}
	r.mu.Unlock()

	if !exists {
		return
	}

	p.Clear()
	metrics.PoolActive.DeleteLabelValues(key)
	metrics.PoolAvailable.DeleteLabelValues(key)
	metrics.PoolPeak.DeleteLabelValues(key)

	r.logger.Info("pool destroyed", logger.Pool(key))
}

// DestroyAll tears down every registered pool.
func (r *Registry) DestroyAll() {
	r.mu.Lock()
	pools := r.pools
	r.pools = make(map[string]*Pool[any])
	r.mu.Unlock()

	for key, p := range pools {
		p.Clear()
		metrics.PoolActive.DeleteLabelValues(key)
		metrics.PoolAvailable.DeleteLabelValues(key)
		metrics.PoolPeak.DeleteLabelValues(key)
	}

	r.logger.Info("all pools destroyed", zap.Int("count", len(pools)))
}

// publish pushes a stats snapshot to the prometheus gauges.
func (r *Registry) publish(key string, s Stats) {
	metrics.PoolActive.WithLabelValues(key).Set(float64(s.Active))
	metrics.PoolAvailable.WithLabelValues(key).Set(float64(s.Available))
	metrics.PoolPeak.WithLabelValues(key).Set(float64(s.Peak))
}

// Package pool provides bounded, auto-expanding object pools for Stockpile.
// A Pool hands out and reclaims instances of one resource key without ever
// exceeding its configured capacity, and tracks usage statistics for
// monitoring and tuning.
//
// The package provides:
//   - Generic type-safe bounded pooling with Pool[T]
//   - A keyed Registry namespacing pools per resource key
//   - Incremental pre-warming that spreads allocation cost across turns
//   - Usage statistics including peak concurrency
//
// Example usage:
//
//	p := pool.New[*Projectile](pool.WithLogger[*Projectile](log))
//	err := p.Initialize(pool.Settings{InitialSize: 20, MaxSize: 100, ExpandBy: 10, AutoExpand: true},
//	    func() (*Projectile, error) { return newProjectile(), nil })
//
//	inst, ok := p.Acquire()
//	if ok {
//	    defer p.Release(inst)
//	    // position and activate the instance
//	}
package pool

import (
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/stockpile/pkg/errors"
)

// Factory produces one new instance of a pooled resource. It must be
// side-effect free aside from allocation; an error aborts that single
// allocation attempt without corrupting pool state.
type Factory[T any] func() (T, error)

// Destructor releases one instance that is leaving the pool for good.
type Destructor[T any] func(T)

// Settings configures a Pool. All values are non-negative and immutable
// once the pool is initialized.
type Settings struct {
	// InitialSize is the number of instances pre-allocated by Initialize
	InitialSize int `yaml:"initial_size" json:"initial_size"`
	// MaxSize bounds available+active at all times
	MaxSize int `yaml:"max_size" json:"max_size"`
	// ExpandBy is the default batch size used by Expand when no count is given
	ExpandBy int `yaml:"expand_by" json:"expand_by"`
	// AutoExpand marks the pool as eligible for batch expansion when it
	// runs empty. It does not gate single on-demand creations in Acquire.
	AutoExpand bool `yaml:"auto_expand" json:"auto_expand"`
}

// Validate checks the settings for consistency.
func (s Settings) Validate() error {
	if s.InitialSize < 0 || s.MaxSize < 0 || s.ExpandBy < 0 {
		return errors.New(errors.ErrorTypeValidation, "pool sizes must not be negative")
	}
	if s.MaxSize < s.InitialSize {
		return errors.Newf(errors.ErrorTypeValidation,
			"max size %d is below initial size %d", s.MaxSize, s.InitialSize)
	}
	return nil
}

// Stats is a read-only snapshot of pool usage. Total is always
// Active+Available.
type Stats struct {
	Total     int `json:"total"`
	Active    int `json:"active"`
	Available int `json:"available"`
	Peak      int `json:"peak"`
}

// Pool is a bounded collection of reusable instances of one resource type.
// It is safe for concurrent use. Instances must be comparable (pointer
// types are recommended); identity is how Release recognizes a checked-out
// instance.
type Pool[T any] struct {
	mu          sync.Mutex
	settings    Settings
	factory     Factory[T]
	destroy     Destructor[T]
	available   []T
	active      map[any]struct{}
	peak        int
	initialized bool
	logger      *zap.Logger
}

// Option configures a Pool.
type Option[T any] func(*Pool[T])

// WithLogger attaches a logger. Defaults to zap.NewNop.
func WithLogger[T any](logger *zap.Logger) Option[T] {
	return func(p *Pool[T]) { p.logger = logger }
}

// WithDestructor registers a finalizer invoked for every instance that is
// destroyed by Clear or dropped as an orphan.
func WithDestructor[T any](destroy Destructor[T]) Option[T] {
	return func(p *Pool[T]) { p.destroy = destroy }
}

// New creates an uninitialized pool. Initialize must be called before use.
func New[T any](opts ...Option[T]) *Pool[T] {
	p := &Pool[T]{
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Initialize configures the pool and pre-allocates InitialSize instances,
// one factory call at a time. It fails if the factory is nil or the
// settings are inconsistent. A factory error during pre-allocation is
// returned, but instances created before the failure remain usable and the
// pool stays initialized.
func (p *Pool[T]) Initialize(settings Settings, factory Factory[T]) error {
	if factory == nil {
		return errors.New(errors.ErrorTypeValidation, "pool factory must not be nil")
	}
	if err := settings.Validate(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.initialized {
		return errors.New(errors.ErrorTypeValidation, "pool is already initialized")
	}

	p.settings = settings
	p.factory = factory
	p.available = make([]T, 0, settings.InitialSize)
	p.active = make(map[any]struct{})
	p.peak = 0
	p.initialized = true

	for i := 0; i < settings.InitialSize; i++ {
		inst, err := factory()
		if err != nil {
			p.logger.Warn("pool pre-allocation stopped early",
				zap.Int("created", i),
				zap.Int("requested", settings.InitialSize),
				zap.Error(err))
			return errors.Wrap(err, errors.ErrorTypeInternal, "pool pre-allocation failed")
		}
		p.available = append(p.available, inst)
	}

	p.logger.Debug("pool initialized",
		zap.Int("initial_size", settings.InitialSize),
		zap.Int("max_size", settings.MaxSize))

	return nil
}

// Acquire returns an idle instance if one exists. Otherwise, while
// available+active is below MaxSize, it attempts one synchronous creation
// through the factory regardless of the AutoExpand setting. Once MaxSize is
// reached and no instance is idle, Acquire returns ok=false without
// blocking. Acquire on an uninitialized pool returns ok=false.
func (p *Pool[T]) Acquire() (T, bool) {
	var zero T

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		return zero, false
	}

	if n := len(p.available); n > 0 {
		inst := p.available[n-1]
		p.available = p.available[:n-1]
		p.checkOutLocked(inst)
		return inst, true
	}

	if p.totalLocked() >= p.settings.MaxSize {
		p.logger.Debug("pool exhausted",
			zap.Int("max_size", p.settings.MaxSize),
			zap.Int("peak", p.peak))
		return zero, false
	}

	inst, err := p.factory()
	if err != nil {
		p.logger.Warn("on-demand pool creation failed", zap.Error(err))
		return zero, false
	}
	p.checkOutLocked(inst)

	if p.settings.AutoExpand && p.settings.ExpandBy > 0 {
		p.logger.Debug("pool ran empty, batch expansion recommended",
			zap.Int("expand_by", p.settings.ExpandBy))
	}

	return inst, true
}

// checkOutLocked moves inst into the active set and maintains peak.
// Caller holds p.mu.
func (p *Pool[T]) checkOutLocked(inst T) {
	p.active[inst] = struct{}{}
	if len(p.active) > p.peak {
		p.peak = len(p.active)
	}
}

// releaseOutcome tells a caller that owns teardown (the registry) why a
// release did not return the instance, so a pool cleared mid-release can
// be told apart from a tolerated double-release.
type releaseOutcome uint8

const (
	releaseReturned releaseOutcome = iota
	releaseUnknownInstance
	releaseNotInitialized
)

// Release returns a checked-out instance to the idle collection. Releasing
// an instance the pool does not recognize (double release, foreign
// instance, or release after Clear) is a tolerated no-op.
func (p *Pool[T]) Release(inst T) {
	p.release(inst)
}

func (p *Pool[T]) release(inst T) releaseOutcome {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		return releaseNotInitialized
	}
	if _, ok := p.active[inst]; !ok {
		p.logger.Debug("ignoring release of unknown instance")
		return releaseUnknownInstance
	}

	delete(p.active, inst)
	p.available = append(p.available, inst)
	return releaseReturned
}

// Expand creates up to count new idle instances, one factory call per
// iteration, stopping early once the pool reaches MaxSize. Expanding past
// capacity is not an error: the count silently truncates to the remaining
// room. A count of zero or less uses the configured ExpandBy. Expand is
// designed to be invoked incrementally with small counts so the owner can
// spread allocation cost across scheduling turns.
func (p *Pool[T]) Expand(count int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		return errors.New(errors.ErrorTypeValidation, "pool is not initialized")
	}
	if count <= 0 {
		count = p.settings.ExpandBy
	}

	created := 0
	for created < count && p.totalLocked() < p.settings.MaxSize {
		inst, err := p.factory()
		if err != nil {
			p.logger.Warn("pool expansion stopped early",
				zap.Int("created", created),
				zap.Int("requested", count),
				zap.Error(err))
			return errors.Wrap(err, errors.ErrorTypeInternal, "pool expansion failed")
		}
		p.available = append(p.available, inst)
		created++
	}

	if created > 0 {
		p.logger.Debug("pool expanded",
			zap.Int("created", created),
			zap.Int("total", p.totalLocked()))
	}

	return nil
}

// Stats returns a snapshot of current usage.
func (p *Pool[T]) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return Stats{
		Total:     p.totalLocked(),
		Active:    len(p.active),
		Available: len(p.available),
		Peak:      p.peak,
	}
}

// Clear destroys every instance, active and available, and resets the pool
// to its uninitialized state. Subsequent use requires re-Initialize.
func (p *Pool[T]) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		return
	}

	destroyed := 0
	if p.destroy != nil {
		for _, inst := range p.available {
			p.destroy(inst)
			destroyed++
		}
		for inst := range p.active {
			p.destroy(inst.(T))
			destroyed++
		}
	} else {
		destroyed = len(p.available) + len(p.active)
	}

	p.available = nil
	p.active = nil
	p.peak = 0
	p.initialized = false

	p.logger.Debug("pool cleared", zap.Int("destroyed", destroyed))
}

// Destroy invokes the destructor (if any) on an instance that is leaving
// the pool system entirely, such as a handle released after its pool was
// torn down.
func (p *Pool[T]) Destroy(inst T) {
	if p.destroy != nil {
		p.destroy(inst)
	}
}

// totalLocked returns available+active. Caller holds p.mu.
func (p *Pool[T]) totalLocked() int {
	return len(p.available) + len(p.active)
}

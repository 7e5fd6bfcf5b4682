package bundle

import (
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/ajitpratap0/stockpile/pkg/errors"
	"github.com/ajitpratap0/stockpile/pkg/logger"
	"github.com/ajitpratap0/stockpile/pkg/metrics"
)

// State is a bundle's position in its lifecycle.
type State uint8

const (
	// StateUnloaded means no payload is resident and no load is in flight
	StateUnloaded State = iota
	// StateLoading means a fetch is in progress
	StateLoading
	// StateLoaded means the payload is resident
	StateLoaded
	// StateUnloading means the payload is being released
	StateUnloading
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateUnloading:
		return "unloading"
	default:
		return "unknown"
	}
}

// Handle is the caller-facing view of a loaded bundle. The fields are
// read-only after the load completes; a handle stays valid until the last
// reference on its bundle is released.
type Handle struct {
	Name         string
	Payload      []byte
	Dependencies []string
	LoadedAt     time.Time
}

// Size returns the resident payload size in bytes.
func (h *Handle) Size() int { return len(h.Payload) }

// BundleStatus is a point-in-time snapshot of one cache entry.
type BundleStatus struct {
	Name     string `json:"name"`
	State    string `json:"state"`
	RefCount int    `json:"ref_count"`
	Holds    int    `json:"holds"`
	Bytes    int    `json:"bytes"`
}

// entry tracks a bundle's runtime lifecycle. refs counts explicit caller
// acquisitions; holds counts loaded dependents keeping the bundle pinned.
// The payload is released only when both reach zero.
type entry struct {
	handle *Handle
	state  State
	refs   int
	holds  int
}

// Cache owns bundle lifecycle state: which bundles are resident, who
// holds them, and the bounded hot store of recently released payloads.
// Hot payloads were decoded and checksum-verified at first load; the
// manifest never changes within a process, so reviving one is safe.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	hot     *lru.Cache[string, []byte]
	logger  *zap.Logger
}

// NewCache creates a cache. hotSize bounds the number of released
// payloads retained for fetch-free reload; zero disables the hot store.
func NewCache(hotSize int, log *zap.Logger) (*Cache, error) {
	if log == nil {
		log = zap.NewNop()
	}

	var hot *lru.Cache[string, []byte]
	if hotSize > 0 {
		var err error
		hot, err = lru.New[string, []byte](hotSize)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to create hot payload store")
		}
	}

	return &Cache{
		entries: make(map[string]*entry),
		hot:     hot,
		logger:  log.With(zap.String("component", "bundle_cache")),
	}, nil
}

// State returns the lifecycle state for name.
func (c *Cache) State(name string) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[name]; ok {
		return e.state
	}
	return StateUnloaded
}

// RefCount returns the explicit reference count for name.
func (c *Cache) RefCount(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[name]; ok {
		return e.refs
	}
	return 0
}

// acquireLoaded returns the handle for name and takes one reference when
// the bundle is already resident. asHold records a dependent's pin
// instead of a caller reference.
func (c *Cache) acquireLoaded(name string, asHold bool) (*Handle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[name]
	if !ok || e.state != StateLoaded {
		return nil, false
	}
	if asHold {
		e.holds++
	} else {
		e.refs++
	}
	return e.handle, true
}

// peekLoaded returns the handle for name without taking a reference.
func (c *Cache) peekLoaded(name string) (*Handle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[name]
	if !ok || e.state != StateLoaded {
		return nil, false
	}
	return e.handle, true
}

// beginLoad transitions name to Loading. It reports false when the
// bundle is already resident, in which case the caller should take the
// fast path instead of fetching.
func (c *Cache) beginLoad(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[name]; ok && e.state == StateLoaded {
		return false
	}
	c.entries[name] = &entry{state: StateLoading}
	return true
}

// completeLoad installs the fetched handle and transitions name to
// Loaded with no references; every waiter acquires its own afterwards.
func (c *Cache) completeLoad(name string, h *Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[name] = &entry{handle: h, state: StateLoaded}
	metrics.BundlesResident.Inc()
	c.logger.Debug("bundle resident",
		logger.Bundle(name),
		zap.Int("bytes", h.Size()),
		zap.Strings("dependencies", h.Dependencies))
}

// failLoad rolls name back to Unloaded after a failed fetch. No partial
// state survives.
func (c *Cache) failLoad(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[name]; ok && e.state == StateLoading {
		delete(c.entries, name)
	}
}

// release drops one caller reference. The payload is freed only when no
// caller references and no dependent holds remain; freeing a bundle
// releases its own holds on each dependency, which may cascade.
func (c *Cache) release(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.releaseLocked(name, false)
}

// releaseHold drops one dependent pin, used when a failed parent load
// backs out holds it already took.
func (c *Cache) releaseHold(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.releaseLocked(name, true); err != nil {
		c.logger.Warn("dependency hold release failed", logger.Bundle(name), zap.Error(err))
	}
}

func (c *Cache) releaseLocked(name string, asHold bool) error {
	e, ok := c.entries[name]
	if !ok || e.state != StateLoaded {
		return errors.Newf(errors.ErrorTypeUnknownBundle, "bundle %q is not loaded", name)
	}

	if asHold {
		if e.holds == 0 {
			c.logger.Warn("hold release without matching hold", logger.Bundle(name))
			return nil
		}
		e.holds--
	} else {
		if e.refs == 0 {
			if e.holds == 0 {
				// Resident with no holder at all: every waiter detached
				// before taking a reference. The release frees it now
				// instead of leaving the payload resident forever.
				c.freeLocked(name, e)
				return nil
			}
			// Tolerated: release is a hint, over-release is a no-op while
			// dependents still pin the bundle.
			c.logger.Debug("release of bundle with zero references", logger.Bundle(name))
			return nil
		}
		e.refs--
	}

	if e.refs == 0 && e.holds == 0 {
		c.freeLocked(name, e)
	}
	return nil
}

// freeLocked retires a fully released entry: the payload moves to the
// hot store and each dependency loses this bundle's pin.
func (c *Cache) freeLocked(name string, e *entry) {
	e.state = StateUnloading

	if c.hot != nil {
		c.hot.Add(name, e.handle.Payload)
	}
	deps := e.handle.Dependencies
	delete(c.entries, name)
	metrics.BundlesResident.Dec()
	c.logger.Debug("bundle released", logger.Bundle(name))

	for _, dep := range deps {
		if err := c.releaseLocked(dep, true); err != nil {
			c.logger.Warn("dependency release failed",
				logger.Bundle(name),
				zap.String("dependency", dep),
				zap.Error(err))
		}
	}
}

// takeHot removes and returns a parked payload for name.
func (c *Cache) takeHot(name string) ([]byte, bool) {
	if c.hot == nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.hot.Get(name)
	if !ok {
		return nil, false
	}
	c.hot.Remove(name)
	return p, true
}

// Snapshot returns the status of every tracked bundle, sorted by name.
func (c *Cache) Snapshot() []BundleStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]BundleStatus, 0, len(c.entries))
	for name, e := range c.entries {
		st := BundleStatus{
			Name:     name,
			State:    e.state.String(),
			RefCount: e.refs,
			Holds:    e.holds,
		}
		if e.handle != nil {
			st.Bytes = e.handle.Size()
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ResidentBytes returns the total payload bytes held by loaded bundles.
func (c *Cache) ResidentBytes() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := 0
	for _, e := range c.entries {
		if e.handle != nil {
			total += e.handle.Size()
		}
	}
	return total
}

// Purge tears down every entry regardless of outstanding references and
// empties the hot store. Used for explicit en-masse shutdown.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for name, e := range c.entries {
		if e.state == StateLoaded {
			metrics.BundlesResident.Dec()
		}
		c.logger.Debug("bundle purged",
			logger.Bundle(name),
			zap.Int("ref_count", e.refs),
			zap.Int("holds", e.holds))
		delete(c.entries, name)
	}
	if c.hot != nil {
		c.hot.Purge()
	}
}

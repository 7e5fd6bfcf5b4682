// Package bundle provides the dependency-resolving bundle loader and cache
// for Stockpile. A bundle is a named, loadable content package that may
// depend on other bundles; the loader guarantees that a bundle's full
// dependency closure is resident before the bundle itself is fetched, that
// concurrent loads of the same name collapse into one underlying fetch,
// and that unloading is reference counted and dependency aware.
package bundle

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	gojson "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/stockpile/pkg/config"
	"github.com/ajitpratap0/stockpile/pkg/errors"
	"github.com/ajitpratap0/stockpile/pkg/fetch"
)

// Entry describes one bundle in the manifest.
type Entry struct {
	// Source is the fetch key for the payload; defaults to the bundle name
	Source string `yaml:"source,omitempty" json:"source,omitempty"`
	// Dependencies lists prerequisite bundles in declaration order
	Dependencies []string `yaml:"dependencies,omitempty" json:"dependencies,omitempty"`
	// Checksum is the optional sha256 hex of the decoded payload
	Checksum string `yaml:"checksum,omitempty" json:"checksum,omitempty"`
	// Compression optionally names the payload framing; empty means sniff
	Compression fetch.Algorithm `yaml:"compression,omitempty" json:"compression,omitempty"`
}

// Manifest is the read-only mapping from bundle name to its declaration.
// It is loaded once at startup and never mutated afterwards.
type Manifest struct {
	entries map[string]Entry
}

// NewManifest builds a manifest from entries. Structural validation
// (cycles, unknown references) is a separate explicit step: Validate.
func NewManifest(entries map[string]Entry) *Manifest {
	owned := make(map[string]Entry, len(entries))
	for name, e := range entries {
		if e.Source == "" {
			e.Source = name
		}
		e.Dependencies = append([]string(nil), e.Dependencies...)
		owned[name] = e
	}
	return &Manifest{entries: owned}
}

// LoadManifest reads a manifest file. The format is chosen by extension:
// .yaml/.yml or .json. ${VAR} references are substituted from the
// environment before parsing.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: manifest path is operator-controlled
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to read manifest").
			WithDetail("path", path)
	}

	content := []byte(config.SubstituteEnvVars(string(data)))
	entries := make(map[string]Entry)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(content, &entries); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse manifest YAML").
				WithDetail("path", path)
		}
	case ".json":
		if err := gojson.Unmarshal(content, &entries); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse manifest JSON").
				WithDetail("path", path)
		}
	default:
		return nil, errors.Newf(errors.ErrorTypeConfig, "unsupported manifest format %q", filepath.Ext(path))
	}

	return NewManifest(entries), nil
}

// Has reports whether name is declared.
func (m *Manifest) Has(name string) bool {
	_, ok := m.entries[name]
	return ok
}

// Entry returns the declaration for name.
func (m *Manifest) Entry(name string) (Entry, bool) {
	e, ok := m.entries[name]
	return e, ok
}

// Dependencies returns the declared dependency list for name, in
// declaration order.
func (m *Manifest) Dependencies(name string) ([]string, bool) {
	e, ok := m.entries[name]
	if !ok {
		return nil, false
	}
	return append([]string(nil), e.Dependencies...), true
}

// Names returns every declared bundle name, sorted.
func (m *Manifest) Names() []string {
	names := make([]string, 0, len(m.entries))
	for name := range m.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of declared bundles.
func (m *Manifest) Len() int {
	return len(m.entries)
}

// Validate performs the dry-run structural pass: every dependency must be
// declared, no bundle may depend on itself, and the dependency graph must
// be acyclic. A cyclic manifest is a configuration defect that should be
// rejected before any runtime load is attempted.
func (m *Manifest) Validate() error {
	for name, e := range m.entries {
		for _, dep := range e.Dependencies {
			if dep == name {
				return errors.Newf(errors.ErrorTypeCyclicDependency,
					"bundle %q depends on itself", name)
			}
			if !m.Has(dep) {
				return errors.Newf(errors.ErrorTypeValidation,
					"bundle %q depends on undeclared bundle %q", name, dep)
			}
		}
	}

	_, err := m.TopoOrder()
	return err
}

// TopoOrder returns every declared bundle in dependency-first order, or a
// cyclic-dependency error naming the offending chain.
func (m *Manifest) TopoOrder() ([]string, error) {
	const (
		stateNew uint8 = iota
		stateVisiting
		stateDone
	)

	state := make(map[string]uint8, len(m.entries))
	stack := make([]string, 0, len(m.entries))
	stackPos := make(map[string]int, len(m.entries))
	topo := make([]string, 0, len(m.entries))

	var dfs func(name string) error
	dfs = func(name string) error {
		switch state[name] {
		case stateDone:
			return nil
		case stateVisiting:
			pos := stackPos[name]
			cycle := append([]string(nil), stack[pos:]...)
			cycle = append(cycle, name)
			return cycleError(cycle)
		}

		state[name] = stateVisiting
		stackPos[name] = len(stack)
		stack = append(stack, name)

		for _, dep := range m.entries[name].Dependencies {
			if !m.Has(dep) {
				continue // reported by Validate; skip for ordering
			}
			if state[dep] == stateVisiting {
				pos := stackPos[dep]
				cycle := append([]string(nil), stack[pos:]...)
				cycle = append(cycle, dep)
				return cycleError(cycle)
			}
			if err := dfs(dep); err != nil {
				return err
			}
		}

		stack = stack[:len(stack)-1]
		delete(stackPos, name)
		state[name] = stateDone
		topo = append(topo, name)
		return nil
	}

	for _, name := range m.Names() {
		if state[name] == stateDone {
			continue
		}
		if err := dfs(name); err != nil {
			return nil, err
		}
	}
	return topo, nil
}

func cycleError(chain []string) error {
	return errors.Newf(errors.ErrorTypeCyclicDependency,
		"dependency cycle: %s", strings.Join(chain, " -> "))
}

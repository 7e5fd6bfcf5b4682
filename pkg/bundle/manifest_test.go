package bundle

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ajitpratap0/stockpile/pkg/errors"
)

func TestManifestValidateAcceptsChain(t *testing.T) {
	m := NewManifest(map[string]Entry{
		"level-3":  {Dependencies: []string{"textures", "audio"}},
		"textures": {Dependencies: []string{"base"}},
		"audio":    {Dependencies: []string{"base"}},
		"base":     {},
	})
	if err := m.Validate(); err != nil {
		t.Fatalf("valid manifest rejected: %v", err)
	}
}

func TestManifestValidateRejectsSelfDependency(t *testing.T) {
	m := NewManifest(map[string]Entry{
		"solo": {Dependencies: []string{"solo"}},
	})
	err := m.Validate()
	if !errors.IsType(err, errors.ErrorTypeCyclicDependency) {
		t.Errorf("expected cyclic_dependency error, got %v", err)
	}
}

func TestManifestValidateRejectsUnknownDependency(t *testing.T) {
	m := NewManifest(map[string]Entry{
		"a": {Dependencies: []string{"ghost"}},
	})
	err := m.Validate()
	if !errors.IsType(err, errors.ErrorTypeValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestManifestValidateRejectsCycle(t *testing.T) {
	m := NewManifest(map[string]Entry{
		"a": {Dependencies: []string{"b"}},
		"b": {Dependencies: []string{"c"}},
		"c": {Dependencies: []string{"a"}},
	})
	err := m.Validate()
	if !errors.IsType(err, errors.ErrorTypeCyclicDependency) {
		t.Fatalf("expected cyclic_dependency error, got %v", err)
	}
}

func TestManifestTopoOrder(t *testing.T) {
	m := NewManifest(map[string]Entry{
		"x":      {Dependencies: []string{"a", "b"}},
		"a":      {Dependencies: []string{"shared"}},
		"b":      {Dependencies: []string{"shared"}},
		"shared": {},
	})

	order, err := m.TopoOrder()
	if err != nil {
		t.Fatalf("TopoOrder failed: %v", err)
	}
	if len(order) != 4 {
		t.Fatalf("expected 4 names, got %v", order)
	}

	pos := make(map[string]int, len(order))
	for i, name := range order {
		pos[name] = i
	}
	for name := range map[string]struct{}{"x": {}, "a": {}, "b": {}} {
		deps, _ := m.Dependencies(name)
		for _, dep := range deps {
			if pos[dep] > pos[name] {
				t.Errorf("dependency %s ordered after dependent %s: %v", dep, name, order)
			}
		}
	}
}

func TestManifestDefaultsSourceToName(t *testing.T) {
	m := NewManifest(map[string]Entry{
		"plain":    {},
		"explicit": {Source: "payloads/explicit.bin"},
	})

	e, _ := m.Entry("plain")
	if e.Source != "plain" {
		t.Errorf("expected source to default to name, got %q", e.Source)
	}
	e, _ = m.Entry("explicit")
	if e.Source != "payloads/explicit.bin" {
		t.Errorf("explicit source overwritten: %q", e.Source)
	}
}

func TestLoadManifestYAML(t *testing.T) {
	t.Setenv("BUNDLE_PREFIX", "cdn/assets")

	path := filepath.Join(t.TempDir(), "bundles.yaml")
	content := `
level-1:
  source: ${BUNDLE_PREFIX}/level-1.bin
  dependencies: [textures]
  compression: gzip
textures:
  checksum: aabbcc
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest failed: %v", err)
	}
	if err := m.Validate(); err != nil {
		t.Fatalf("loaded manifest invalid: %v", err)
	}

	e, ok := m.Entry("level-1")
	if !ok {
		t.Fatal("level-1 missing")
	}
	if e.Source != "cdn/assets/level-1.bin" {
		t.Errorf("env substitution failed: %q", e.Source)
	}
	if len(e.Dependencies) != 1 || e.Dependencies[0] != "textures" {
		t.Errorf("unexpected dependencies: %v", e.Dependencies)
	}
	if e.Compression != "gzip" {
		t.Errorf("unexpected compression: %q", e.Compression)
	}
}

func TestLoadManifestJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bundles.json")
	content := `{
  "hud": {"dependencies": ["fonts"]},
  "fonts": {"checksum": "deadbeef"}
}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest failed: %v", err)
	}
	if m.Len() != 2 {
		t.Errorf("expected 2 bundles, got %d", m.Len())
	}
	deps, _ := m.Dependencies("hud")
	if len(deps) != 1 || deps[0] != "fonts" {
		t.Errorf("unexpected dependencies: %v", deps)
	}
}

func TestLoadManifestRejectsUnknownFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bundles.toml")
	if err := os.WriteFile(path, []byte("x = 1"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadManifest(path); !errors.IsType(err, errors.ErrorTypeConfig) {
		t.Errorf("expected config error, got %v", err)
	}
}

package bundle

import (
	"context"
	"testing"

	"go.uber.org/zap/zaptest"
)

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateUnloaded:  "unloaded",
		StateLoading:   "loading",
		StateLoaded:    "loaded",
		StateUnloading: "unloading",
		State(99):      "unknown",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}

func TestCacheSnapshotAndPurge(t *testing.T) {
	f := newFakeFetcher()
	f.payloads["hud"] = []byte("hud-payload")
	f.payloads["fonts"] = []byte("fonts")

	l, c := newTestLoader(t, map[string]Entry{
		"hud":   {Dependencies: []string{"fonts"}},
		"fonts": {},
	}, f)

	if _, err := l.Load(context.Background(), "hud"); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	snap := c.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 entries, got %v", snap)
	}
	// Sorted by name: fonts before hud.
	if snap[0].Name != "fonts" || snap[1].Name != "hud" {
		t.Errorf("snapshot not sorted: %v", snap)
	}
	if snap[1].RefCount != 1 || snap[1].State != "loaded" {
		t.Errorf("unexpected hud status: %+v", snap[1])
	}
	if snap[0].Holds != 1 {
		t.Errorf("dependency not pinned by dependent: %+v", snap[0])
	}

	if got := c.ResidentBytes(); got != len("hud-payload")+len("fonts") {
		t.Errorf("unexpected resident bytes: %d", got)
	}

	l.UnloadAll()
	if len(c.Snapshot()) != 0 {
		t.Error("entries survived UnloadAll")
	}
	if c.ResidentBytes() != 0 {
		t.Error("resident bytes nonzero after UnloadAll")
	}
}

func TestCacheDisabledHotStore(t *testing.T) {
	c, err := NewCache(0, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewCache failed: %v", err)
	}
	if _, ok := c.takeHot("anything"); ok {
		t.Error("disabled hot store returned a payload")
	}
}

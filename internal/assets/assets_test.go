package assets

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestManager_RootPriority(t *testing.T) {
	base, patch := t.TempDir(), t.TempDir()
	writeFile(t, base, "tiles/a.f32", "base")
	writeFile(t, base, "tiles/b.f32", "only-base")
	writeFile(t, patch, "tiles/a.f32", "patch")

	m := NewManager(1 << 20)
	defer m.Close()
	if err := m.AddRoot(base); err != nil {
		t.Fatal(err)
	}
	if err := m.AddRoot(patch); err != nil {
		t.Fatal(err)
	}

	data, err := m.Load("tiles/a.f32")
	if err != nil || string(data) != "patch" {
		t.Errorf("Load(a) = %q, %v; want patch", data, err)
	}
	data, err = m.Load("tiles/b.f32")
	if err != nil || string(data) != "only-base" {
		t.Errorf("Load(b) = %q, %v; want only-base", data, err)
	}

	if _, err := m.Load("tiles/missing.f32"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if m.Exists("tiles/missing.f32") || !m.Exists("tiles/b.f32") {
		t.Error("Exists disagrees with Load")
	}
}

func TestManager_AddRootRejectsFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "x", "")

	m := NewManager(0)
	if err := m.AddRoot(filepath.Join(dir, "x")); err == nil {
		t.Error("expected error for non-directory root")
	}
	if err := m.AddRoot(filepath.Join(dir, "nope")); err == nil {
		t.Error("expected error for missing root")
	}
}

func TestManager_CachesLoads(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a", "one")

	m := NewManager(1 << 10)
	m.AddRoot(dir)

	m.Load("a")
	writeFile(t, dir, "a", "two")
	data, _ := m.Load("a")
	if string(data) != "one" {
		t.Errorf("second load = %q, want cached value", data)
	}

	hits, misses := m.Cache().Stats()
	if hits != 1 || misses != 1 {
		t.Errorf("stats = %d hits, %d misses", hits, misses)
	}

	m.Cache().Forget("a")
	data, _ = m.Load("a")
	if string(data) != "two" {
		t.Errorf("after Forget = %q, want fresh value", data)
	}
}

func TestCache_Bound(t *testing.T) {
	c := NewCache(10)

	c.Set("a", make([]byte, 4))
	c.Set("b", make([]byte, 4))
	c.Set("c", make([]byte, 4))

	if _, ok := c.Get("a"); ok {
		t.Error("oldest entry survived overflow")
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("newest entry missing")
	}
	if c.Size() != 8 {
		t.Errorf("size = %d, want 8", c.Size())
	}

	c.Set("huge", make([]byte, 11))
	if _, ok := c.Get("huge"); ok {
		t.Error("entry larger than the cache was kept")
	}

	c.Clear()
	if c.Size() != 0 {
		t.Error("Clear left bytes behind")
	}
}

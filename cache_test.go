package blackboard

import (
	"fmt"
	"testing"
	"time"
)

func TestSectionMap_SetGetDelete(t *testing.T) {
	m := newSectionMap()

	m.set("app", "version", "1.0.0")

	v, ok := m.get("app", "version")
	if !ok {
		t.Fatal("version not found")
	}
	if v != "1.0.0" {
		t.Errorf("get = %v; want 1.0.0", v)
	}

	if _, ok := m.get("app", "missing"); ok {
		t.Error("missing key should not be found")
	}
	if _, ok := m.get("nosection", "version"); ok {
		t.Error("missing section should not be found")
	}

	m.delete("app", "version")
	if _, ok := m.get("app", "version"); ok {
		t.Error("deleted key should not be found")
	}
}

func TestSectionMap_EmptySectionRemoved(t *testing.T) {
	m := newSectionMap()

	m.set("app", "version", "1.0.0")
	m.delete("app", "version")

	// The section itself must be gone, not retained empty.
	if _, ok := m.dump()["app"]; ok {
		t.Error("empty section should be removed")
	}
}

func TestSectionMap_DeleteSection(t *testing.T) {
	m := newSectionMap()

	m.set("database", "host", "localhost")
	m.set("database", "port", 5432)
	m.set("app", "version", "1.0.0")

	m.deleteSection("database")

	if _, ok := m.get("database", "host"); ok {
		t.Error("host should be gone")
	}
	if _, ok := m.get("app", "version"); !ok {
		t.Error("other sections must survive")
	}
	if got := m.len(); got != 1 {
		t.Errorf("len = %d; want 1", got)
	}
}

func TestSectionMap_DumpIsACopy(t *testing.T) {
	m := newSectionMap()
	m.set("app", "version", "1.0.0")

	d := m.dump()
	d["app"]["version"] = "tampered"

	v, _ := m.get("app", "version")
	if v != "1.0.0" {
		t.Error("mutating a dump must not affect the tier")
	}
}

func TestBoundedCache_Eviction(t *testing.T) {
	c := newBoundedCache(3, time.Minute)

	for i := 0; i < 4; i++ {
		c.set("s", fmt.Sprintf("k%d", i), i)
	}

	// Capacity 3, 4 inserts: the least recently used key is gone.
	if _, ok := c.get("s", "k0"); ok {
		t.Error("k0 should have been evicted")
	}
	for i := 1; i < 4; i++ {
		if _, ok := c.get("s", fmt.Sprintf("k%d", i)); !ok {
			t.Errorf("k%d should still be cached", i)
		}
	}
}

func TestBoundedCache_GetRefreshesRecency(t *testing.T) {
	c := newBoundedCache(3, time.Minute)

	c.set("s", "a", 1)
	c.set("s", "b", 2)
	c.set("s", "c", 3)

	// Touch "a" so "b" becomes least recently used.
	if _, ok := c.get("s", "a"); !ok {
		t.Fatal("a not found")
	}
	c.set("s", "d", 4)

	if _, ok := c.get("s", "b"); ok {
		t.Error("b should have been evicted")
	}
	if _, ok := c.get("s", "a"); !ok {
		t.Error("a should have survived")
	}
}

func TestBoundedCache_Expiry(t *testing.T) {
	c := newBoundedCache(10, 50*time.Millisecond)

	c.set("s", "temp", "v")
	if _, ok := c.get("s", "temp"); !ok {
		t.Fatal("temp should be found immediately")
	}

	time.Sleep(120 * time.Millisecond)

	if _, ok := c.get("s", "temp"); ok {
		t.Error("temp should have expired")
	}
}

func TestBoundedCache_DeleteSection(t *testing.T) {
	c := newBoundedCache(100, time.Minute)

	c.set("database", "host", "localhost")
	c.set("database", "port", 5432)
	c.set("app", "version", "1.0.0")

	c.deleteSection("database")

	if _, ok := c.get("database", "host"); ok {
		t.Error("host should be gone")
	}
	if _, ok := c.get("database", "port"); ok {
		t.Error("port should be gone")
	}
	if _, ok := c.get("app", "version"); !ok {
		t.Error("other sections must survive")
	}
}

func TestBoundedCache_Dump(t *testing.T) {
	c := newBoundedCache(100, time.Minute)

	c.set("app", "version", "1.0.0")
	c.set("database", "host", "localhost")

	d := c.dump()
	if d["app"]["version"] != "1.0.0" || d["database"]["host"] != "localhost" {
		t.Errorf("dump = %#v", d)
	}
}

func TestBoundedCache_DumpSkipsEvicted(t *testing.T) {
	c := newBoundedCache(2, time.Minute)

	c.set("s", "a", 1)
	c.set("s", "b", 2)
	c.set("s", "c", 3) // evicts a

	d := c.dump()
	if _, ok := d["s"]["a"]; ok {
		t.Error("evicted key must not appear in dump")
	}
	if len(d["s"]) != 2 {
		t.Errorf("dump section size = %d; want 2", len(d["s"]))
	}
}

func TestBoundedCache_ForEach(t *testing.T) {
	c := newBoundedCache(100, time.Minute)

	c.set("s", "a", 1)
	c.set("s", "b", 2)

	seen := map[string]any{}
	c.forEach("s", func(key string, value any) {
		seen[key] = value
	})
	if len(seen) != 2 || seen["a"] != 1 || seen["b"] != 2 {
		t.Errorf("forEach saw %#v", seen)
	}
}

package cache

import (
	"testing"
	"time"
)

func TestGetSet_RoundTrip(t *testing.T) {
	c := New("test", time.Minute)
	if _, ok := c.Get("missing"); ok {
		t.Fatalf("expected miss on empty cache")
	}
	c.Set("k", 42)
	v, ok := c.Get("k")
	if !ok {
		t.Fatalf("expected hit after Set")
	}
	if v.(int) != 42 {
		t.Fatalf("expected 42, got %v", v)
	}
}

func TestGet_ExpiresAfterTTL(t *testing.T) {
	c := New("test", 10*time.Millisecond)
	c.Set("k", "v")
	if _, ok := c.Get("k"); !ok {
		t.Fatalf("expected hit before expiry")
	}
	time.Sleep(20 * time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Fatalf("expected miss after TTL elapsed")
	}
	if s := c.Stats(); s.Size != 0 {
		t.Fatalf("expected expired entry to be evicted, size=%d", s.Size)
	}
}

func TestInvalidatePrefix(t *testing.T) {
	c := New("test", time.Minute)
	c.Set("models_a", 1)
	c.Set("models_b", 2)
	c.Set("profile_1", 3)

	if n := c.InvalidatePrefix("models_"); n != 2 {
		t.Fatalf("expected 2 invalidations, got %d", n)
	}
	if _, ok := c.Get("models_a"); ok {
		t.Fatalf("expected models_a to be gone")
	}
	if _, ok := c.Get("profile_1"); !ok {
		t.Fatalf("expected profile_1 to survive")
	}
}

func TestStats_CountsHitsAndMisses(t *testing.T) {
	c := New("stats", 30*time.Second)
	c.Set("k", "v")
	c.Get("k")
	c.Get("k")
	c.Get("nope")

	s := c.Stats()
	if s.Name != "stats" {
		t.Fatalf("unexpected name %q", s.Name)
	}
	if s.Hits != 2 || s.Misses != 1 {
		t.Fatalf("expected 2 hits / 1 miss, got %d/%d", s.Hits, s.Misses)
	}
	if s.HitRate != "66.7%" {
		t.Fatalf("unexpected hit rate %q", s.HitRate)
	}
	if s.TTLSec != 30 {
		t.Fatalf("unexpected ttl %d", s.TTLSec)
	}
	if s.Size != 1 {
		t.Fatalf("unexpected size %d", s.Size)
	}
}

func TestClear_DropsEntriesKeepsCounters(t *testing.T) {
	c := New("test", time.Minute)
	c.Set("a", 1)
	c.Get("a")
	c.Clear()
	if s := c.Stats(); s.Size != 0 || s.Hits != 1 {
		t.Fatalf("expected empty cache with counters intact, got size=%d hits=%d", s.Size, s.Hits)
	}
}

func TestResetForTest_ZeroesSingletons(t *testing.T) {
	Profiles.Set("x", 1)
	Models.Set("y", 2)
	Profiles.Get("x")
	ResetForTest()
	if s := Profiles.Stats(); s.Size != 0 || s.Hits != 0 || s.Misses != 0 {
		t.Fatalf("expected profiles singleton reset, got %+v", s)
	}
	if s := Models.Stats(); s.Size != 0 {
		t.Fatalf("expected models singleton reset, got %+v", s)
	}
}

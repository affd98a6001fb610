package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestCache(ttl time.Duration, max int) (*TTL[string], *clock) {
	clk := &clock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New[string](ttl, max)
	c.now = clk.now
	return c, clk
}

func TestTTL_GetSet(t *testing.T) {
	c, _ := newTestCache(time.Minute, 0)
	c.Set("a", "1")
	if v, ok := c.Get("a"); !ok || v != "1" {
		t.Errorf("get: got %q %v", v, ok)
	}
	if _, ok := c.Get("b"); ok {
		t.Error("unexpected hit for missing key")
	}
	c.Set("", "ignored")
	if c.Len() != 1 {
		t.Errorf("len: got %d, want 1", c.Len())
	}
}

func TestTTL_Expiry(t *testing.T) {
	c, clk := newTestCache(time.Minute, 0)
	c.Set("a", "1")
	clk.advance(59 * time.Second)
	if _, ok := c.Get("a"); !ok {
		t.Fatal("entry expired early")
	}
	clk.advance(time.Second)
	if _, ok := c.Get("a"); ok {
		t.Error("entry should expire at its deadline")
	}
	if c.Len() != 0 {
		t.Errorf("expired entry still stored")
	}
}

func TestTTL_EvictsSoonestExpiry(t *testing.T) {
	c, clk := newTestCache(time.Minute, 2)
	c.Set("first", "1")
	clk.advance(time.Second)
	c.Set("second", "2")
	clk.advance(time.Second)
	c.Set("third", "3")

	if _, ok := c.Get("first"); ok {
		t.Error("oldest entry should have been evicted")
	}
	for _, k := range []string{"second", "third"} {
		if _, ok := c.Get(k); !ok {
			t.Errorf("%s evicted", k)
		}
	}
	if s := c.Stats(); s.Evictions != 1 || s.Size != 2 {
		t.Errorf("stats: got %+v", s)
	}
}

func TestTTL_FullCachePrefersExpired(t *testing.T) {
	c, clk := newTestCache(time.Minute, 2)
	c.Set("a", "1")
	clk.advance(2 * time.Minute)
	c.Set("b", "2")
	c.Set("c", "3")
	if c.Stats().Evictions != 0 {
		t.Error("expired entry should be purged, not evicted")
	}
	if _, ok := c.Get("b"); !ok {
		t.Error("live entry lost")
	}
}

func TestTTL_Stats(t *testing.T) {
	c, _ := newTestCache(time.Minute, 0)
	c.Set("a", "1")
	c.Get("a")
	c.Get("a")
	c.Get("missing")
	s := c.Stats()
	if s.Hits != 2 || s.Misses != 1 {
		t.Errorf("counters: got %+v", s)
	}
	if s.HitRate < 0.66 || s.HitRate > 0.67 {
		t.Errorf("hit rate: got %f", s.HitRate)
	}
}

func TestTTL_Purge(t *testing.T) {
	c, clk := newTestCache(time.Minute, 0)
	c.Set("a", "1")
	c.Set("b", "2")
	clk.advance(time.Hour)
	c.Set("c", "3")
	if n := c.Purge(); n != 2 {
		t.Errorf("purged: got %d, want 2", n)
	}
	c.Delete("c")
	if c.Len() != 0 {
		t.Errorf("len: got %d", c.Len())
	}
}

func TestTTL_Concurrent(t *testing.T) {
	c := New[int](time.Minute, 50)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				k := fmt.Sprintf("k%d", (w*j)%80)
				c.Set(k, j)
				c.Get(k)
			}
		}(i)
	}
	wg.Wait()
	if c.Len() > 50 {
		t.Errorf("len %d exceeds bound", c.Len())
	}
}

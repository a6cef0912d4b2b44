package cache

import (
	"fmt"
	"sort"
	"sync"
	"testing"
)

func testBasicOperations(t *testing.T, cache Cache[string]) {
	if value, exists := cache.Get("key1"); exists {
		t.Errorf("Expected cache miss, got value: %s", value)
	}

	isNew, err := cache.Set("key1", "value1")
	if err != nil {
		t.Fatalf("Unexpected error setting key: %v", err)
	}
	if !isNew {
		t.Error("Expected new entry creation")
	}
	if value, exists := cache.Get("key1"); !exists || value != "value1" {
		t.Errorf("Expected 'value1', got value: %s, exists: %t", value, exists)
	}

	isNew, err = cache.Set("key1", "value1_updated")
	if err != nil {
		t.Fatalf("Unexpected error updating key: %v", err)
	}
	if isNew {
		t.Error("Expected existing entry update")
	}
	if value, _ := cache.Get("key1"); value != "value1_updated" {
		t.Errorf("Expected 'value1_updated', got %s", value)
	}

	deleted, err := cache.Delete("key1")
	if err != nil || !deleted {
		t.Fatalf("Expected successful deletion, got deleted=%t err=%v", deleted, err)
	}
	deleted, err = cache.Delete("key1")
	if err != nil || deleted {
		t.Errorf("Expected no-op deletion, got deleted=%t err=%v", deleted, err)
	}

	if _, err := cache.Set("", "value"); err == nil {
		t.Error("Expected error for empty key")
	}
}

func testKeysAndClear(t *testing.T, cache Cache[string]) {
	for i := 0; i < 3; i++ {
		if _, err := cache.Set(fmt.Sprintf("key%d", i), "v"); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}
	if cache.Size() != 3 {
		t.Errorf("Expected size 3, got %d", cache.Size())
	}

	keys := cache.Keys()
	sort.Strings(keys)
	if fmt.Sprint(keys) != "[key0 key1 key2]" {
		t.Errorf("Unexpected keys %v", keys)
	}

	if err := cache.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if cache.Size() != 0 {
		t.Errorf("Expected empty cache after Clear, got %d", cache.Size())
	}
	if _, exists := cache.Get("key0"); exists {
		t.Error("Expected miss after Clear")
	}
}

func testSuite(t *testing.T, createCache func() Cache[string]) {
	t.Run("BasicOperations", func(t *testing.T) {
		testBasicOperations(t, createCache())
	})
	t.Run("KeysAndClear", func(t *testing.T) {
		testKeysAndClear(t, createCache())
	})
}

func TestSimpleCache(t *testing.T) {
	testSuite(t, func() Cache[string] {
		c, err := NewSimple[string]()
		if err != nil {
			t.Fatalf("NewSimple failed: %v", err)
		}
		return c
	})

	t.Run("NoEviction", func(t *testing.T) {
		c, _ := NewSimple[string]()
		for i := 0; i < 1000; i++ {
			_, _ = c.Set(fmt.Sprintf("key%d", i), "v")
		}
		if c.Size() != 1000 {
			t.Errorf("Expected 1000 entries, got %d", c.Size())
		}
		if c.Stats().Evictions() != 0 {
			t.Errorf("Expected no evictions, got %d", c.Stats().Evictions())
		}
	})

	t.Run("WriteOrder", func(t *testing.T) {
		c, _ := NewSimple[string]()
		_, _ = c.Set("a", "1")
		_, _ = c.Set("b", "2")
		c.Get("a")
		_, _ = c.Set("c", "3")
		_, _ = c.Set("b", "4")

		if got := fmt.Sprint(c.Keys()); got != "[b c a]" {
			t.Errorf("Expected latest-write-first order [b c a], got %s", got)
		}
	})
}

func TestLRUCache(t *testing.T) {
	testSuite(t, func() Cache[string] {
		c, err := NewLRU[string](10)
		if err != nil {
			t.Fatalf("NewLRU failed: %v", err)
		}
		return c
	})

	t.Run("LRUEviction", func(t *testing.T) {
		c, _ := NewLRU[string](2)
		_, _ = c.Set("a", "1")
		_, _ = c.Set("b", "2")
		c.Get("a")
		_, _ = c.Set("c", "3")

		if _, ok := c.Get("b"); ok {
			t.Error("Expected 'b' to be evicted as least recently used")
		}
		if _, ok := c.Get("a"); !ok {
			t.Error("Expected 'a' to survive")
		}
		if c.Stats().Evictions() != 1 {
			t.Errorf("Expected 1 eviction, got %d", c.Stats().Evictions())
		}
	})

	t.Run("LRUOrder", func(t *testing.T) {
		c, _ := NewLRU[string](3)
		_, _ = c.Set("a", "1")
		_, _ = c.Set("b", "2")
		_, _ = c.Set("c", "3")
		c.Get("a")

		keys := c.Keys()
		if fmt.Sprint(keys) != "[a c b]" {
			t.Errorf("Expected MRU-first order [a c b], got %v", keys)
		}
	})
}

func TestConcurrency(t *testing.T) {
	caches := map[string]func() Cache[string]{
		"simple": func() Cache[string] { c, _ := NewSimple[string](); return c },
		"lru":    func() Cache[string] { c, _ := NewLRU[string](50); return c },
	}

	for name, create := range caches {
		t.Run(name, func(t *testing.T) {
			c := create()
			var wg sync.WaitGroup
			for g := 0; g < 8; g++ {
				wg.Add(1)
				go func(g int) {
					defer wg.Done()
					for i := 0; i < 200; i++ {
						key := fmt.Sprintf("g%d-k%d", g, i%20)
						_, _ = c.Set(key, "v")
						c.Get(key)
						if i%7 == 0 {
							_, _ = c.Delete(key)
						}
					}
				}(g)
			}
			wg.Wait()

			if c.Size() != len(c.Keys()) {
				t.Errorf("Size %d disagrees with Keys %d", c.Size(), len(c.Keys()))
			}
		})
	}
}

func TestEvictCallback(t *testing.T) {
	var mu sync.Mutex
	evicted := map[string]string{}
	onEvict := WithEvictionCallback[string](func(key, value string) {
		mu.Lock()
		evicted[key] = value
		mu.Unlock()
	})

	c, err := NewLRU[string](1, onEvict)
	if err != nil {
		t.Fatalf("NewLRU failed: %v", err)
	}
	_, _ = c.Set("first", "1")
	_, _ = c.Set("second", "2")
	_, _ = c.Delete("second")

	if evicted["first"] != "1" || evicted["second"] != "2" {
		t.Errorf("Expected both entries reported, got %v", evicted)
	}
}

func TestStatistics(t *testing.T) {
	c, _ := NewSimple[string]()
	_, _ = c.Set("k", "v")
	c.Get("k")
	c.Get("k")
	c.Get("missing")
	_, _ = c.Delete("k")

	s := c.Stats().Summary()
	if s.Hits != 2 || s.Misses != 1 || s.Sets != 1 || s.Deletes != 1 {
		t.Errorf("Unexpected summary: %+v", s)
	}
	if s.PeakSize != 1 || s.CurrentSize != 0 {
		t.Errorf("Unexpected sizes: %+v", s)
	}
	if s.HitRatio < 0.66 || s.HitRatio > 0.67 {
		t.Errorf("Expected hit ratio 2/3, got %f", s.HitRatio)
	}

	c.Stats().Reset()
	if c.Stats().Hits() != 0 {
		t.Error("Expected counters reset")
	}
}

func TestConfiguration(t *testing.T) {
	valid := []Config{
		DefaultConfig(),
		{Enabled: true, Strategy: StrategyLRU, MaxSize: 10},
		{Enabled: false, Strategy: "anything"},
	}
	for i, cfg := range valid {
		t.Run(fmt.Sprintf("Valid%d", i), func(t *testing.T) {
			c, err := NewFromConfig[string](cfg)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if c == nil {
				t.Fatal("Expected cache")
			}
		})
	}

	t.Run("Disabled", func(t *testing.T) {
		c, _ := NewFromConfig[string](Config{Enabled: false})
		_, _ = c.Set("k", "v")
		if _, ok := c.Get("k"); ok {
			t.Error("Disabled cache must always miss")
		}
		if c.Stats() != nil {
			t.Error("Disabled cache has no statistics")
		}
	})

	invalid := []Config{
		{Enabled: true, Strategy: StrategyLRU, MaxSize: 0},
		{Enabled: true, Strategy: "ttl"},
	}
	for i, cfg := range invalid {
		t.Run(fmt.Sprintf("Invalid%d", i), func(t *testing.T) {
			if _, err := NewFromConfig[string](cfg); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

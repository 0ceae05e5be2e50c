// Package cmap tests.
package cmap

import (
	"fmt"
	"sync"
	"testing"
)

func TestMap_SetGet(t *testing.T) {
	m := New[int]()

	m.Set("a", 1)
	m.Set("b", 2)

	if v, ok := m.Get("a"); !ok || v != 1 {
		t.Errorf("Get(a) = %d, %v; want 1, true", v, ok)
	}
	if v, ok := m.Get("b"); !ok || v != 2 {
		t.Errorf("Get(b) = %d, %v; want 2, true", v, ok)
	}
	if _, ok := m.Get("missing"); ok {
		t.Error("Get(missing) should report absence")
	}
}

func TestMap_Delete(t *testing.T) {
	m := New[string]()
	m.Set("k", "v")
	m.Delete("k")

	if m.Has("k") {
		t.Error("key should be gone after Delete")
	}
	// Deleting a missing key is a no-op.
	m.Delete("k")
}

func TestMap_Count(t *testing.T) {
	m := New[int]()
	for i := 0; i < 100; i++ {
		m.Set(fmt.Sprintf("key-%d", i), i)
	}
	if got := m.Count(); got != 100 {
		t.Errorf("Count() = %d, want 100", got)
	}

	m.Clear()
	if got := m.Count(); got != 0 {
		t.Errorf("Count() after Clear = %d, want 0", got)
	}
}

func TestMap_GetOrSet(t *testing.T) {
	m := New[int]()

	v, loaded := m.GetOrSet("k", 1)
	if loaded || v != 1 {
		t.Errorf("first GetOrSet = %d, %v; want 1, false", v, loaded)
	}

	v, loaded = m.GetOrSet("k", 2)
	if !loaded || v != 1 {
		t.Errorf("second GetOrSet = %d, %v; want 1, true", v, loaded)
	}
}

func TestMap_Update(t *testing.T) {
	m := New[int]()

	m.Update("counter", func(v int, exists bool) int {
		if exists {
			t.Error("counter should not exist yet")
		}
		return 1
	})
	m.Update("counter", func(v int, exists bool) int {
		if !exists {
			t.Error("counter should exist")
		}
		return v + 1
	})

	if v, _ := m.Get("counter"); v != 2 {
		t.Errorf("counter = %d, want 2", v)
	}
}

func TestMap_Range_Stop(t *testing.T) {
	m := New[int]()
	for i := 0; i < 50; i++ {
		m.Set(fmt.Sprintf("key-%d", i), i)
	}

	seen := 0
	m.Range(func(_ string, _ int) bool {
		seen++
		return seen < 10
	})

	if seen != 10 {
		t.Errorf("Range visited %d items after stop, want 10", seen)
	}
}

func TestMap_Keys(t *testing.T) {
	m := New[int]()
	m.Set("x", 1)
	m.Set("y", 2)

	keys := m.Keys()
	if len(keys) != 2 {
		t.Fatalf("Keys() returned %d keys, want 2", len(keys))
	}
}

func TestMap_ConcurrentAccess(t *testing.T) {
	m := New[int]()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("key-%d", i%20)
				m.Set(key, g)
				m.Get(key)
				m.Update(key, func(v int, _ bool) int { return v + 1 })
			}
		}(g)
	}
	wg.Wait()

	if got := m.Count(); got != 20 {
		t.Errorf("Count() = %d, want 20", got)
	}
}

func TestNewWithShards_InvalidFallsBack(t *testing.T) {
	for _, n := range []int{0, -1, 3, 17} {
		m := NewWithShards[int](n)
		if len(m.shards) != DefaultShardCount {
			t.Errorf("NewWithShards(%d) shard count = %d, want %d", n, len(m.shards), DefaultShardCount)
		}
	}
}

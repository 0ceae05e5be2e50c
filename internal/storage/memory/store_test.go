package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/yndnr/memmesh-go/internal/storage"
)

func TestEngine_BasicOperations(t *testing.T) {
	engine := NewEngine()
	defer engine.Close()

	ctx := context.Background()

	t.Run("Set and Get", func(t *testing.T) {
		if err := engine.Set(ctx, []byte("k1"), []byte("v1")); err != nil {
			t.Fatal(err)
		}

		got, err := engine.Get(ctx, []byte("k1"))
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != "v1" {
			t.Errorf("expected v1, got %s", got)
		}
	})

	t.Run("Get non-existent key", func(t *testing.T) {
		_, err := engine.Get(ctx, []byte("missing"))
		if !errors.Is(err, storage.ErrKeyNotFound) {
			t.Errorf("expected ErrKeyNotFound, got %v", err)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := engine.Set(ctx, []byte("k2"), []byte("v2")); err != nil {
			t.Fatal(err)
		}
		if err := engine.Delete(ctx, []byte("k2")); err != nil {
			t.Fatal(err)
		}

		_, err := engine.Get(ctx, []byte("k2"))
		if !errors.Is(err, storage.ErrKeyNotFound) {
			t.Errorf("expected ErrKeyNotFound after delete, got %v", err)
		}
	})

	t.Run("Get returns a copy", func(t *testing.T) {
		if err := engine.Set(ctx, []byte("k3"), []byte("abc")); err != nil {
			t.Fatal(err)
		}

		got, _ := engine.Get(ctx, []byte("k3"))
		got[0] = 'X'

		again, _ := engine.Get(ctx, []byte("k3"))
		if string(again) != "abc" {
			t.Errorf("stored value mutated: %s", again)
		}
	})
}

func TestEngine_Scan(t *testing.T) {
	engine := NewEngine()
	defer engine.Close()

	ctx := context.Background()

	data := map[string]string{
		"record:c": "3",
		"record:a": "1",
		"record:b": "2",
		"other:x":  "9",
	}
	for k, v := range data {
		if err := engine.Set(ctx, []byte(k), []byte(v)); err != nil {
			t.Fatal(err)
		}
	}

	t.Run("prefix scan in key order", func(t *testing.T) {
		var keys []string
		err := engine.Scan(ctx, []byte("record:"), func(key, value []byte) bool {
			keys = append(keys, string(key))
			return true
		})
		if err != nil {
			t.Fatal(err)
		}

		want := []string{"record:a", "record:b", "record:c"}
		if len(keys) != len(want) {
			t.Fatalf("expected %d keys, got %d", len(want), len(keys))
		}
		for i := range want {
			if keys[i] != want[i] {
				t.Errorf("key[%d]: expected %s, got %s", i, want[i], keys[i])
			}
		}
	})

	t.Run("early stop", func(t *testing.T) {
		count := 0
		err := engine.Scan(ctx, []byte("record:"), func(key, value []byte) bool {
			count++
			return count < 2
		})
		if err != nil {
			t.Fatal(err)
		}
		if count != 2 {
			t.Errorf("expected 2 iterations, got %d", count)
		}
	})
}

func TestEngine_Stats(t *testing.T) {
	engine := NewEngine()
	defer engine.Close()

	ctx := context.Background()

	if err := engine.Set(ctx, []byte("ab"), []byte("cdef")); err != nil {
		t.Fatal(err)
	}

	stats, err := engine.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}

	if stats.TotalKeys != 1 {
		t.Errorf("expected 1 key, got %d", stats.TotalKeys)
	}
	if stats.TotalSize != 6 {
		t.Errorf("expected size 6, got %d", stats.TotalSize)
	}
}

func TestEngine_Closed(t *testing.T) {
	engine := NewEngine()

	ctx := context.Background()

	if err := engine.Close(); err != nil {
		t.Fatal(err)
	}

	if _, err := engine.Get(ctx, []byte("k")); !errors.Is(err, storage.ErrClosed) {
		t.Errorf("Get after close: expected ErrClosed, got %v", err)
	}
	if err := engine.Set(ctx, []byte("k"), []byte("v")); !errors.Is(err, storage.ErrClosed) {
		t.Errorf("Set after close: expected ErrClosed, got %v", err)
	}
	if err := engine.Scan(ctx, nil, func(k, v []byte) bool { return true }); !errors.Is(err, storage.ErrClosed) {
		t.Errorf("Scan after close: expected ErrClosed, got %v", err)
	}
}

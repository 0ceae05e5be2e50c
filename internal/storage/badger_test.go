package storage

import (
	"context"
	"log/slog"
	"os"
	"testing"
)

func TestBadgerEngine_BasicOperations(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "badger-test-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)

	cfg := DefaultKVConfig(tmpDir)
	cfg.Badger.GCInterval = "1h" // Disable auto GC for tests

	engine, err := NewBadgerEngine(cfg, slog.Default())
	if err != nil {
		t.Fatal(err)
	}
	defer engine.Close()

	ctx := context.Background()

	t.Run("Set and Get", func(t *testing.T) {
		key := []byte("test-key")
		value := []byte("test-value")

		if err := engine.Set(ctx, key, value); err != nil {
			t.Fatal(err)
		}

		got, err := engine.Get(ctx, key)
		if err != nil {
			t.Fatal(err)
		}

		if string(got) != string(value) {
			t.Errorf("expected %s, got %s", value, got)
		}
	})

	t.Run("Get non-existent key", func(t *testing.T) {
		_, err := engine.Get(ctx, []byte("non-existent"))
		if err != ErrKeyNotFound {
			t.Errorf("expected ErrKeyNotFound, got %v", err)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		key := []byte("delete-key")
		value := []byte("delete-value")

		if err := engine.Set(ctx, key, value); err != nil {
			t.Fatal(err)
		}

		if err := engine.Delete(ctx, key); err != nil {
			t.Fatal(err)
		}

		_, err := engine.Get(ctx, key)
		if err != ErrKeyNotFound {
			t.Errorf("expected ErrKeyNotFound after delete, got %v", err)
		}
	})

	t.Run("Delete missing key is not an error", func(t *testing.T) {
		if err := engine.Delete(ctx, []byte("never-existed")); err != nil {
			t.Errorf("expected nil, got %v", err)
		}
	})
}

func TestBadgerEngine_Scan(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "badger-test-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)

	cfg := DefaultKVConfig(tmpDir)
	engine, err := NewBadgerEngine(cfg, slog.Default())
	if err != nil {
		t.Fatal(err)
	}
	defer engine.Close()

	ctx := context.Background()

	// Insert test data
	testData := map[string]string{
		"record:alpha": "a",
		"record:beta":  "b",
		"record:gamma": "c",
		"raft:term":    "7",
	}

	for k, v := range testData {
		if err := engine.Set(ctx, []byte(k), []byte(v)); err != nil {
			t.Fatal(err)
		}
	}

	t.Run("Scan with prefix", func(t *testing.T) {
		var results []string

		err := engine.Scan(ctx, []byte("record:"), func(key, value []byte) bool {
			results = append(results, string(value))
			return true
		})

		if err != nil {
			t.Fatal(err)
		}

		if len(results) != 3 {
			t.Errorf("expected 3 results, got %d", len(results))
		}
	})

	t.Run("Scan returns keys in order", func(t *testing.T) {
		var keys []string

		err := engine.Scan(ctx, []byte("record:"), func(key, value []byte) bool {
			keys = append(keys, string(key))
			return true
		})

		if err != nil {
			t.Fatal(err)
		}

		for i := 1; i < len(keys); i++ {
			if keys[i-1] >= keys[i] {
				t.Errorf("keys out of order: %q before %q", keys[i-1], keys[i])
			}
		}
	})

	t.Run("Scan with early stop", func(t *testing.T) {
		count := 0

		err := engine.Scan(ctx, []byte("record:"), func(key, value []byte) bool {
			count++
			return count < 2 // Stop after 2 items
		})

		if err != nil {
			t.Fatal(err)
		}

		if count != 2 {
			t.Errorf("expected 2 iterations, got %d", count)
		}
	})
}

func TestBadgerEngine_GC(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "badger-test-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)

	cfg := DefaultKVConfig(tmpDir)
	cfg.Badger.GCThreshold = 0.5
	cfg.Badger.GCInterval = "10m" // Disable auto GC

	engine, err := NewBadgerEngine(cfg, slog.Default())
	if err != nil {
		t.Fatal(err)
	}
	defer engine.Close()

	ctx := context.Background()

	// Insert and delete data to create garbage
	for i := 0; i < 100; i++ {
		key := []byte{byte(i)}
		value := make([]byte, 1000)
		if err := engine.Set(ctx, key, value); err != nil {
			t.Fatal(err)
		}
	}

	for i := 0; i < 50; i++ {
		key := []byte{byte(i)}
		if err := engine.Delete(ctx, key); err != nil {
			t.Fatal(err)
		}
	}

	reclaimed, err := engine.GC(ctx)
	if err != nil {
		t.Fatal(err)
	}

	t.Logf("GC reclaimed ~%d bytes", reclaimed)
	// Actual reclaimed bytes depend on Badger's internal behavior
}

func TestBadgerEngine_Stats(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "badger-test-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)

	cfg := DefaultKVConfig(tmpDir)
	engine, err := NewBadgerEngine(cfg, slog.Default())
	if err != nil {
		t.Fatal(err)
	}
	defer engine.Close()

	ctx := context.Background()

	for i := 0; i < 10; i++ {
		key := []byte{byte(i)}
		value := make([]byte, 100)
		if err := engine.Set(ctx, key, value); err != nil {
			t.Fatal(err)
		}
	}

	stats, err := engine.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}

	// Badger Size() may return 0 until data is flushed to disk, so we
	// only check the call succeeds.
	if stats == nil {
		t.Fatal("expected non-nil stats")
	}

	t.Logf("Stats: TotalSize=%d, LSMSize=%d, ValueLogSize=%d",
		stats.TotalSize, stats.LSMSize, stats.ValueLogSize)
}

func TestBadgerEngine_Restart(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "badger-test-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)

	cfg := DefaultKVConfig(tmpDir)
	cfg.Badger.GCInterval = "1h"

	ctx := context.Background()

	engine, err := NewBadgerEngine(cfg, slog.Default())
	if err != nil {
		t.Fatal(err)
	}

	if err := engine.Set(ctx, []byte("raft:state"), []byte("term=3 vote=mmnode-a")); err != nil {
		t.Fatal(err)
	}

	if err := engine.Close(); err != nil {
		t.Fatal(err)
	}

	// Reopen the same directory and verify the data survived
	engine2, err := NewBadgerEngine(cfg, slog.Default())
	if err != nil {
		t.Fatal(err)
	}
	defer engine2.Close()

	got, err := engine2.Get(ctx, []byte("raft:state"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "term=3 vote=mmnode-a" {
		t.Errorf("unexpected value after restart: %s", got)
	}
}

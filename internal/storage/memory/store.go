package memory

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/yndnr/memmesh-go/internal/storage"
)

// Engine implements storage.KVEngine with an in-memory map.
type Engine struct {
	mu     sync.RWMutex
	data   map[string][]byte
	closed bool
}

// NewEngine creates an empty in-memory KV engine.
func NewEngine() *Engine {
	return &Engine{
		data: make(map[string][]byte),
	}
}

// Get retrieves a value by key.
func (e *Engine) Get(ctx context.Context, key []byte) ([]byte, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return nil, storage.ErrClosed
	}

	value, ok := e.data[string(key)]
	if !ok {
		return nil, storage.ErrKeyNotFound
	}

	// Copy so callers can't mutate stored data
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

// Set stores a key-value pair.
func (e *Engine) Set(ctx context.Context, key, value []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return storage.ErrClosed
	}

	stored := make([]byte, len(value))
	copy(stored, value)
	e.data[string(key)] = stored
	return nil
}

// Delete removes a key.
func (e *Engine) Delete(ctx context.Context, key []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return storage.ErrClosed
	}

	delete(e.data, string(key))
	return nil
}

// Scan iterates over keys with a given prefix in key order.
func (e *Engine) Scan(ctx context.Context, prefix []byte, fn func(key, value []byte) bool) error {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return storage.ErrClosed
	}

	// Snapshot matching keys so the callback can call back into the engine
	keys := make([]string, 0, len(e.data))
	for k := range e.data {
		if bytes.HasPrefix([]byte(k), prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	values := make([][]byte, len(keys))
	for i, k := range keys {
		values[i] = e.data[k]
	}
	e.mu.RUnlock()

	for i, k := range keys {
		if !fn([]byte(k), values[i]) {
			break
		}
	}

	return nil
}

// GC is a no-op for the memory engine.
func (e *Engine) GC(ctx context.Context) (uint64, error) {
	return 0, nil
}

// Stats returns storage statistics.
func (e *Engine) Stats(ctx context.Context) (*storage.KVStats, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return nil, storage.ErrClosed
	}

	var size uint64
	for k, v := range e.data {
		size += uint64(len(k) + len(v))
	}

	return &storage.KVStats{
		TotalKeys: uint64(len(e.data)),
		TotalSize: size,
	}, nil
}

// Close shuts down the engine. Further operations return ErrClosed.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.closed = true
	e.data = nil
	return nil
}

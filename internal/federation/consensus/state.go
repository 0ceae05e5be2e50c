package consensus

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/yndnr/memmesh-go/internal/storage"
)

// Durable-state keys. Log entry keys append the big-endian index so
// engine scans return entries in order.
const (
	keyTerm      = "raft:term"
	keyVote      = "raft:vote"
	keyLogPrefix = "raft:log:"
)

// durableState persists (current_term, voted_for, log) through a
// storage.KVEngine so they survive restarts.
type durableState struct {
	engine storage.KVEngine
}

func logKey(index uint64) []byte {
	key := make([]byte, len(keyLogPrefix)+8)
	copy(key, keyLogPrefix)
	binary.BigEndian.PutUint64(key[len(keyLogPrefix):], index)
	return key
}

// saveTerm persists the current term and the vote cast in it.
func (d *durableState) saveTerm(ctx context.Context, term uint64, votedFor string) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], term)
	if err := d.engine.Set(ctx, []byte(keyTerm), buf[:]); err != nil {
		return fmt.Errorf("persist term: %w", err)
	}
	if err := d.engine.Set(ctx, []byte(keyVote), []byte(votedFor)); err != nil {
		return fmt.Errorf("persist vote: %w", err)
	}
	return nil
}

// appendEntries persists new log entries.
func (d *durableState) appendEntries(ctx context.Context, entries []LogEntry) error {
	for _, entry := range entries {
		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("encode log entry %d: %w", entry.Index, err)
		}
		if err := d.engine.Set(ctx, logKey(entry.Index), data); err != nil {
			return fmt.Errorf("persist log entry %d: %w", entry.Index, err)
		}
	}
	return nil
}

// truncateFrom removes persisted entries at and after index.
func (d *durableState) truncateFrom(ctx context.Context, index, lastIndex uint64) error {
	for i := index; i <= lastIndex; i++ {
		if err := d.engine.Delete(ctx, logKey(i)); err != nil {
			return fmt.Errorf("truncate log entry %d: %w", i, err)
		}
	}
	return nil
}

// restore loads the persisted term, vote and log.
func (d *durableState) restore(ctx context.Context) (term uint64, votedFor string, log []LogEntry, err error) {
	termBytes, err := d.engine.Get(ctx, []byte(keyTerm))
	switch {
	case err == nil:
		term = binary.BigEndian.Uint64(termBytes)
	case errors.Is(err, storage.ErrKeyNotFound):
		// Fresh node
	default:
		return 0, "", nil, fmt.Errorf("restore term: %w", err)
	}

	voteBytes, err := d.engine.Get(ctx, []byte(keyVote))
	switch {
	case err == nil:
		votedFor = string(voteBytes)
	case errors.Is(err, storage.ErrKeyNotFound):
	default:
		return 0, "", nil, fmt.Errorf("restore vote: %w", err)
	}

	var decodeErr error
	scanErr := d.engine.Scan(ctx, []byte(keyLogPrefix), func(key, value []byte) bool {
		var entry LogEntry
		if jsonErr := json.Unmarshal(value, &entry); jsonErr != nil {
			decodeErr = fmt.Errorf("decode log entry %q: %w", key, jsonErr)
			return false
		}
		log = append(log, entry)
		return true
	})
	if scanErr != nil {
		return 0, "", nil, fmt.Errorf("restore log: %w", scanErr)
	}
	if decodeErr != nil {
		return 0, "", nil, fmt.Errorf("restore log: %w", decodeErr)
	}

	return term, votedFor, log, nil
}

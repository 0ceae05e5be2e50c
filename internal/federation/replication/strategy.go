package replication

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/yndnr/memmesh-go/internal/federation/domain"
)

// Strategy names.
const (
	StrategyLWW         = "lww"
	StrategyHighestNode = "highest_node"
	StrategyMergeUnion  = "merge_union"
)

// Strategy resolves two concurrent versions of the same key.
//
// Resolve is only called when neither clock dominates; the result
// carries the merged vector clock and a fresh checksum.
type Strategy interface {
	Name() string
	Resolve(local, remote Record) Record
}

// StrategyFor returns the named strategy.
func StrategyFor(name string) (Strategy, error) {
	switch name {
	case StrategyLWW:
		return lwwStrategy{}, nil
	case StrategyHighestNode:
		return highestNodeStrategy{}, nil
	case StrategyMergeUnion:
		return mergeUnionStrategy{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownStrategy, name)
	}
}

// lwwStrategy keeps the version with the later writer timestamp,
// breaking exact ties toward the lexicographically smallest writer ID.
type lwwStrategy struct{}

func (lwwStrategy) Name() string { return StrategyLWW }

func (lwwStrategy) Resolve(local, remote Record) Record {
	winner := lwwWinner(local, remote)
	return finishResolve(winner, local, remote)
}

func lwwWinner(local, remote Record) Record {
	switch {
	case remote.WrittenAt.After(local.WrittenAt):
		return remote
	case local.WrittenAt.After(remote.WrittenAt):
		return local
	case remote.LastWriter < local.LastWriter:
		return remote
	default:
		return local
	}
}

// highestNodeStrategy keeps the version written by the
// lexicographically greatest node ID.
type highestNodeStrategy struct{}

func (highestNodeStrategy) Name() string { return StrategyHighestNode }

func (highestNodeStrategy) Resolve(local, remote Record) Record {
	winner := local
	if remote.LastWriter > local.LastWriter {
		winner = remote
	}
	return finishResolve(winner, local, remote)
}

// mergeUnionStrategy unions set-valued payloads (JSON string arrays).
// Payloads that do not parse as string sets fall back to last-write-wins.
type mergeUnionStrategy struct{}

func (mergeUnionStrategy) Name() string { return StrategyMergeUnion }

func (mergeUnionStrategy) Resolve(local, remote Record) Record {
	localSet, okL := parseSet(local.Value)
	remoteSet, okR := parseSet(remote.Value)
	if !okL || !okR || local.Tombstone || remote.Tombstone {
		winner := lwwWinner(local, remote)
		return finishResolve(winner, local, remote)
	}

	union := make(map[string]struct{}, len(localSet)+len(remoteSet))
	for _, v := range localSet {
		union[v] = struct{}{}
	}
	for _, v := range remoteSet {
		union[v] = struct{}{}
	}

	merged := make([]string, 0, len(union))
	for v := range union {
		merged = append(merged, v)
	}
	sort.Strings(merged)

	value, _ := json.Marshal(merged)

	// The later writer fronts the merged version so repeated merges
	// stay deterministic
	base := lwwWinner(local, remote)
	out := base.Clone()
	out.Value = value
	out.Clock = local.Clock.Merge(remote.Clock)
	out.Seal()
	return out
}

func parseSet(value []byte) ([]string, bool) {
	var set []string
	if err := json.Unmarshal(value, &set); err != nil {
		return nil, false
	}
	return set, true
}

// finishResolve stamps the merged clock onto the winning version.
func finishResolve(winner, local, remote Record) Record {
	out := winner.Clone()
	out.Clock = local.Clock.Merge(remote.Clock)
	out.Seal()
	return out
}

// Package vclock implements vector clocks for causal versioning.
package vclock

import (
	"fmt"
	"sort"
	"strings"
)

// Ordering is the result of comparing two vector clocks.
type Ordering int

const (
	// Equal means both clocks carry identical counters.
	Equal Ordering = iota

	// Before means the receiver causally precedes the other clock.
	Before

	// After means the receiver causally descends from the other clock.
	After

	// Concurrent means neither clock dominates the other.
	Concurrent
)

// String returns the ordering name.
func (o Ordering) String() string {
	switch o {
	case Equal:
		return "equal"
	case Before:
		return "before"
	case After:
		return "after"
	case Concurrent:
		return "concurrent"
	default:
		return fmt.Sprintf("ordering(%d)", int(o))
	}
}

// Clock is a vector clock: node ID to counter.
//
// The zero value (nil map) is a valid empty clock for read operations;
// use New or Copy before mutating.
type Clock map[string]uint64

// New returns an empty clock.
func New() Clock {
	return make(Clock)
}

// Tick increments the component owned by nodeID and returns the clock.
// Only the owning node may call Tick for its own ID.
func (c Clock) Tick(nodeID string) Clock {
	c[nodeID]++
	return c
}

// Get returns the counter for nodeID (zero if absent).
func (c Clock) Get(nodeID string) uint64 {
	return c[nodeID]
}

// Copy returns a deep copy of the clock.
func (c Clock) Copy() Clock {
	out := make(Clock, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Compare determines the causal relationship between c and other.
func (c Clock) Compare(other Clock) Ordering {
	var less, greater bool

	for node, v := range c {
		ov := other[node]
		if v < ov {
			less = true
		} else if v > ov {
			greater = true
		}
	}
	for node, ov := range other {
		if _, seen := c[node]; !seen && ov > 0 {
			less = true
		}
	}

	switch {
	case less && greater:
		return Concurrent
	case less:
		return Before
	case greater:
		return After
	default:
		return Equal
	}
}

// Dominates reports whether c causally descends from or equals other.
func (c Clock) Dominates(other Clock) bool {
	ord := c.Compare(other)
	return ord == After || ord == Equal
}

// Merge returns a new clock with the component-wise maximum of c and other.
func (c Clock) Merge(other Clock) Clock {
	out := c.Copy()
	for node, v := range other {
		if v > out[node] {
			out[node] = v
		}
	}
	return out
}

// String renders the clock deterministically, e.g. "{n1:3 n2:1}".
func (c Clock) String() string {
	nodes := make([]string, 0, len(c))
	for n := range c {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)

	var b strings.Builder
	b.WriteByte('{')
	for i, n := range nodes {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%s:%d", n, c[n])
	}
	b.WriteByte('}')
	return b.String()
}

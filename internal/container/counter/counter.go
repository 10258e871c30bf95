// Package counter implements the Counter container: sum of signed
// increments (spec.md §4.2.5). Grounded directly on the teacher's
// gcounter.go/pn_counter.go "map of per-contributor deltas, sum to read"
// shape, keyed here by each Add op's own ID (not by peer) since distinct
// concurrent Adds from the same peer in the same transaction are still
// individually undoable (spec.md §4.6).
package counter

import (
	"sync"

	"github.com/loro-go/loro/internal/identity"
	"github.com/loro-go/loro/internal/oplog"
)

// Counter is the Counter container's live state: commutative and
// conflict-free by construction, as the teacher's doc comment on
// GCounter.Merge notes — no tie-break is ever needed.
type Counter struct {
	mu      sync.RWMutex
	deltas  map[identity.ID]float64
	ordered []identity.ID // insertion order, for deterministic undo replay
}

// New creates an empty Counter.
func New() *Counter {
	return &Counter{deltas: make(map[identity.ID]float64)}
}

// Apply integrates one Add op.
func (c *Counter) Apply(op oplog.Op) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.deltas[op.ID]; dup {
		return nil // idempotent reapplication
	}
	c.deltas[op.ID] = op.Content.CounterDelta
	c.ordered = append(c.ordered, op.ID)
	return nil
}

// Value returns the sum of every integrated delta.
func (c *Counter) Value() any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var sum float64
	for _, d := range c.deltas {
		sum += d
	}
	return sum
}

// DeltaOf returns the delta recorded for a specific Add op, used by undo
// to compute the inverse (-delta) as a fresh local Add.
func (c *Counter) DeltaOf(id identity.ID) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.deltas[id]
	return d, ok
}

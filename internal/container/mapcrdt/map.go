// Package mapcrdt implements the Map container: per-key LWW by
// (Lamport, PeerID) (spec.md §4.2.3). Grounded on the teacher's PNCounter
// "two independently-tracked monotone components merged independently"
// idiom, applied here to LWW register selection: per key, keep whichever
// write has the greatest (Lamport, PeerID), using the same comparator
// shape as rga.go's ID.Greater.
package mapcrdt

import (
	"sync"

	"github.com/loro-go/loro/internal/container"
	"github.com/loro-go/loro/internal/identity"
	"github.com/loro-go/loro/internal/oplog"
)

// entry is one key's current winning write.
type entry struct {
	writer    identity.IdLp
	value     any
	tombstone bool
}

// Map is the Map container's live LWW state.
type Map struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// New creates an empty Map.
func New() *Map {
	return &Map{entries: make(map[string]entry)}
}

// Apply integrates one Map{Insert|Delete} op. A delete is represented as
// a write of a tombstone value (spec.md §4.2.3): both compete for the key
// under the same (Lamport, PeerID) comparator.
func (m *Map) Apply(op oplog.Op) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	writer := op.IdLp()
	key := op.Content.MapKey
	cur, exists := m.entries[key]
	if exists && !writer.Greater(cur.writer) {
		return nil // existing write wins the tie-break
	}
	value := op.Content.MapValue
	if op.Content.HasChild {
		value = container.ChildRef{Idx: uint32(op.Content.ChildContainer)}
	}
	m.entries[key] = entry{
		writer:    writer,
		value:     value,
		tombstone: op.Content.MapDeleted,
	}
	return nil
}

// Value returns the live key->value view, omitting tombstoned keys.
func (m *Map) Value() any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]any, len(m.entries))
	for k, e := range m.entries {
		if !e.tombstone {
			out[k] = e.value
		}
	}
	return out
}

// Get returns the current winning value for key, if present and live.
func (m *Map) Get(key string) (any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	if !ok || e.tombstone {
		return nil, false
	}
	return e.value, true
}

// WriterOf returns the ID of the op currently winning key, used by undo
// to decide whether this peer's own write is still the live one.
func (m *Map) WriterOf(key string) (identity.ID, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	if !ok {
		return identity.ID{}, false
	}
	return e.writer.ID, true
}

// Package movablelist implements the MovableList container: a List whose
// elements carry a "current position pointer" updated by Move ops with
// LWW semantics (spec.md §4.2.2). Kept a distinct package/type from list,
// per spec: "Pure Fugue-list ops are a strict subset; MovableList and List
// containers are distinct types so the Text/List fuzz corpus does not
// conflate them."
//
// Grounded on the teacher's rga.go integration algorithm, generalized:
// each element's position is "insert after anchor", exactly like list's
// origin-left, except the anchor can be overwritten later by a winning
// Move. The visible order is reconstructed by a depth-first walk of the
// anchor tree (children-anchored-after-X are threaded in immediately
// after X, recursively) — the same ordering a linked-list RGA produces
// incrementally, computed here from scratch on each read.
package movablelist

import (
	"sort"
	"sync"

	"github.com/loro-go/loro/internal/identity"
	"github.com/loro-go/loro/internal/oplog"
)

type item struct {
	value   any
	deleted bool

	anchorAfter identity.ID
	hasAnchor   bool
	anchorWriter identity.IdLp // the (move or birth) op that currently owns this item's position
}

// MovableList is the MovableList container's live state.
type MovableList struct {
	mu       sync.RWMutex
	items    map[identity.ID]*item
	children map[anchorKey][]identity.ID
}

type anchorKey struct {
	id   identity.ID
	has  bool
}

// New creates an empty MovableList.
func New() *MovableList {
	return &MovableList{
		items:    make(map[identity.ID]*item),
		children: make(map[anchorKey][]identity.ID),
	}
}

func (m *MovableList) addChild(anchor identity.ID, hasAnchor bool, id identity.ID) {
	k := anchorKey{anchor, hasAnchor}
	m.children[k] = append(m.children[k], id)
}

func (m *MovableList) removeChild(anchor identity.ID, hasAnchor bool, id identity.ID) {
	k := anchorKey{anchor, hasAnchor}
	list := m.children[k]
	for i, x := range list {
		if x == id {
			m.children[k] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// orderedIDs returns every live (non-deleted) element ID in visible order.
func (m *MovableList) orderedIDs() []identity.ID {
	var out []identity.ID
	var visit func(anchor identity.ID, has bool)
	visit = func(anchor identity.ID, has bool) {
		bucket := append([]identity.ID(nil), m.children[anchorKey{anchor, has}]...)
		sort.Slice(bucket, func(i, j int) bool {
			return m.items[bucket[i]].anchorWriter.Greater(m.items[bucket[j]].anchorWriter)
		})
		for _, id := range bucket {
			it := m.items[id]
			if !it.deleted {
				out = append(out, id)
			}
			visit(id, true)
		}
	}
	visit(identity.ID{}, false)
	return out
}

// liveIDsInOrder is orderedIDs exposed for callers needing identity-based
// addressing (undo, MoveOp validation).
func (m *MovableList) liveIDsInOrder() []identity.ID {
	return m.orderedIDs()
}

func (m *MovableList) anchorForVisibleIndex(idx int) (identity.ID, bool) {
	return m.anchorForVisibleIndexExcluding(idx, identity.ID{}, false)
}

// anchorForVisibleIndexExcluding computes the anchor ID for inserting (or
// moving) at visible index idx, as if `exclude` were not part of the
// current visible sequence — new_pos for a Move is defined relative to the
// list with the moving element already removed.
func (m *MovableList) anchorForVisibleIndexExcluding(idx int, exclude identity.ID, hasExclude bool) (identity.ID, bool) {
	ids := m.orderedIDs()
	if hasExclude {
		filtered := ids[:0:0]
		for _, id := range ids {
			if id != exclude {
				filtered = append(filtered, id)
			}
		}
		ids = filtered
	}
	if idx == 0 {
		return identity.ID{}, false
	}
	if idx-1 >= len(ids) {
		if len(ids) == 0 {
			return identity.ID{}, false
		}
		return ids[len(ids)-1], true
	}
	return ids[idx-1], true
}

// Apply integrates a List{Insert|Delete|Move} op targeting this
// MovableList.
func (m *MovableList) Apply(op oplog.Op) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch op.Content.Kind {
	case oplog.OpKindListInsert:
		for i, v := range op.Content.ListValues {
			id := identity.ID{Peer: op.ID.Peer, Counter: op.ID.Counter + identity.Counter(i)}
			anchor, hasAnchor := m.anchorForVisibleIndex(op.Content.ListIndex + i)
			writer := identity.IdLp{ID: id, Lamport: op.Lamport + identity.Lamport(i)}
			m.items[id] = &item{value: v, anchorAfter: anchor, hasAnchor: hasAnchor, anchorWriter: writer}
			m.addChild(anchor, hasAnchor, id)
		}
	case oplog.OpKindListDelete:
		ids := m.orderedIDs()
		start := op.Content.ListIndex
		for i := 0; i < op.Content.ListDelLen && start+i < len(ids); i++ {
			if it, ok := m.items[ids[start+i]]; ok {
				it.deleted = true // delete wins over any concurrent move: identity-based, position-independent
			}
		}
	case oplog.OpKindListMove:
		target := op.Content.ListMoveElem
		it, ok := m.items[target]
		if !ok || it.deleted {
			return nil // move of a deleted (or unknown) element is a no-op
		}
		mover := op.IdLp()
		if !mover.Greater(it.anchorWriter) {
			return nil // an earlier/lower-priority move never overrides
		}
		newAnchor, hasNewAnchor := m.anchorForVisibleIndexExcluding(op.Content.ListMoveTo, target, true)
		m.removeChild(it.anchorAfter, it.hasAnchor, target)
		it.anchorAfter = newAnchor
		it.hasAnchor = hasNewAnchor
		it.anchorWriter = mover
		m.addChild(newAnchor, hasNewAnchor, target)
	}
	return nil
}

// Value returns the tombstone-free, move-resolved ordered value sequence.
func (m *MovableList) Value() any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := m.orderedIDs()
	out := make([]any, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.items[id].value)
	}
	return out
}

// Len returns the visible element count.
func (m *MovableList) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.orderedIDs())
}

// ElemAt returns the element identity at a visible index.
func (m *MovableList) ElemAt(idx int) (identity.ID, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := m.orderedIDs()
	if idx < 0 || idx >= len(ids) {
		return identity.ID{}, false
	}
	return ids[idx], true
}

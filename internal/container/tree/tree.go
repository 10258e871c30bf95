// Package tree implements the Tree container: a forest of nodes with
// move-with-cycle-prevention (spec.md §4.2.4). New relative to the
// teacher (no tree CRDT exists in the pack's CRDT-specific code);
// grounded on AKJUS-bsc-erigon's use of ordered btrees for maintaining a
// sorted children-by-key structure, applied here to each parent's
// children-by-fractional-index list.
package tree

import (
	"sync"

	"github.com/google/btree"

	"github.com/loro-go/loro/internal/identity"
	"github.com/loro-go/loro/internal/oplog"
)

// Node is one tree node. Spec.md §4.2.4 identifies a node by the ID of
// the op that created it; that identity never changes even as Parent and
// FracIndex change under Move.
type Node struct {
	ID        identity.ID
	Parent    *identity.ID // nil means "attached at root"
	FracIndex string
	Deleted   bool
	Meta      map[string]metaEntry

	// lastMoveID is the ID of the most recently applied Move op on this
	// node, with priorParent/priorFracIndex the position it moved from —
	// enough for undo to invert that specific move, and to detect when a
	// later move has already superseded it (spec.md §4.6).
	lastMoveID     identity.ID
	lastMoveKnown  bool
	priorParent    *identity.ID
	priorFracIndex string
}

type metaEntry struct {
	value  any
	writer identity.IdLp
}

type childKey struct {
	fracIndex string
	id        identity.ID
}

func childLess(a, b childKey) bool {
	if a.fracIndex != b.fracIndex {
		return a.fracIndex < b.fracIndex
	}
	return a.id.Less(b.id)
}

type parentKey struct {
	id      identity.ID
	isRoot  bool
}

// Forest is the Tree container's live state.
type Forest struct {
	mu       sync.RWMutex
	nodes    map[identity.ID]*Node
	children map[parentKey]*btree.BTreeG[childKey]
}

// New creates an empty Forest.
func New() *Forest {
	return &Forest{
		nodes:    make(map[identity.ID]*Node),
		children: make(map[parentKey]*btree.BTreeG[childKey]),
	}
}

func parentKeyOf(parent *identity.ID) parentKey {
	if parent == nil {
		return parentKey{isRoot: true}
	}
	return parentKey{id: *parent}
}

func (f *Forest) childSet(parent *identity.ID) *btree.BTreeG[childKey] {
	k := parentKeyOf(parent)
	bt, ok := f.children[k]
	if !ok {
		bt = btree.NewG(16, childLess)
		f.children[k] = bt
	}
	return bt
}

// isAncestorOrSelf reports whether candidate is an ancestor of (or equal to)
// node, walking Parent pointers. Used by Move's cycle check (spec.md
// §4.2.4 "Cycle prevention").
func (f *Forest) isAncestorOrSelf(candidate, node identity.ID) bool {
	cur := node
	visited := map[identity.ID]bool{}
	for {
		if cur == candidate {
			return true
		}
		if visited[cur] {
			return false // defensive: shouldn't happen in a valid tree
		}
		visited[cur] = true
		n, ok := f.nodes[cur]
		if !ok || n.Parent == nil {
			return false
		}
		cur = *n.Parent
	}
}

// Apply integrates a Tree{Create|Move|Delete|SetMeta} op.
func (f *Forest) Apply(op oplog.Op) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch op.Content.Kind {
	case oplog.OpKindTreeCreate:
		if _, exists := f.nodes[op.Content.TreeNode]; exists {
			return nil
		}
		n := &Node{ID: op.Content.TreeNode, Parent: op.Content.TreeParent, FracIndex: op.Content.TreeFracIdx, Meta: make(map[string]metaEntry)}
		f.nodes[n.ID] = n
		f.childSet(n.Parent).ReplaceOrInsert(childKey{n.FracIndex, n.ID})

	case oplog.OpKindTreeMove:
		n, ok := f.nodes[op.Content.TreeNode]
		if !ok || n.Deleted {
			return nil
		}
		newParent := op.Content.TreeParent
		if newParent != nil {
			if *newParent == n.ID || f.isAncestorOrSelf(n.ID, *newParent) {
				// Would create a cycle: skip (no-op) but the op is still
				// present in the log so every replica computes the same
				// skip (spec.md §4.2.4 "critical" invariant).
				return nil
			}
			if _, exists := f.nodes[*newParent]; !exists {
				return nil
			}
		}
		f.childSet(n.Parent).Delete(childKey{n.FracIndex, n.ID})
		n.priorParent = n.Parent
		n.priorFracIndex = n.FracIndex
		n.lastMoveID = op.ID
		n.lastMoveKnown = true
		n.Parent = newParent
		n.FracIndex = op.Content.TreeFracIdx
		f.childSet(n.Parent).ReplaceOrInsert(childKey{n.FracIndex, n.ID})

	case oplog.OpKindTreeDelete:
		n, ok := f.nodes[op.Content.TreeNode]
		if !ok {
			return nil
		}
		n.Deleted = true
		// Descendants are NOT recursively marked: a concurrent move of a
		// descendant out from under a deleted parent must still surface
		// it (spec.md §4.2.4 "Delete vs Move of descendant" — move wins).

	case oplog.OpKindTreeSetMeta:
		n, ok := f.nodes[op.Content.TreeNode]
		if !ok {
			return nil
		}
		writer := op.IdLp()
		cur, exists := n.Meta[op.Content.TreeMetaKey]
		if exists && !writer.Greater(cur.writer) {
			return nil
		}
		n.Meta[op.Content.TreeMetaKey] = metaEntry{value: op.Content.TreeMetaVal, writer: writer}
	}
	return nil
}

// NodeView is the read-only materialized view of one tree node.
type NodeView struct {
	ID       identity.ID
	Parent   *identity.ID
	Children []identity.ID // in fractional-index order
	Meta     map[string]any
}

// Value returns the materialized forest: every live node whose nearest
// non-deleted ancestor chain reaches a root (or IS a root), with children
// ordered by fractional index (spec.md §3.3 "ordered children per
// parent").
func (f *Forest) Value() any {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make(map[identity.ID]NodeView)
	for id, n := range f.nodes {
		if n.Deleted || !f.liveAncestryLocked(id) {
			continue
		}
		meta := make(map[string]any, len(n.Meta))
		for k, e := range n.Meta {
			meta[k] = e.value
		}
		out[id] = NodeView{ID: id, Parent: n.Parent, Meta: meta}
	}
	for pk, bt := range f.children {
		var kids []identity.ID
		bt.Ascend(func(ck childKey) bool {
			if _, live := out[ck.id]; live {
				kids = append(kids, ck.id)
			}
			return true
		})
		if !pk.isRoot {
			if v, ok := out[pk.id]; ok {
				v.Children = kids
				out[pk.id] = v
			}
		}
	}
	return out
}

func (f *Forest) liveAncestryLocked(id identity.ID) bool {
	cur := id
	for {
		n, ok := f.nodes[cur]
		if !ok || n.Deleted {
			return false
		}
		if n.Parent == nil {
			return true
		}
		cur = *n.Parent
	}
}

// IsAncestor exposes the cycle-check primitive for undo/diff callers.
func (f *Forest) IsAncestor(candidate, node identity.ID) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.isAncestorOrSelf(candidate, node)
}

// PriorPosition returns the parent/fracIndex a node held immediately
// before moveID's Move, provided moveID is still the most recent Move
// applied to that node — ok is false once a later Move has superseded it,
// or if the node has never been moved, matching the Map undo case's
// "nothing left to undo" convention.
func (f *Forest) PriorPosition(id, moveID identity.ID) (parent *identity.ID, fracIdx string, ok bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	n, exists := f.nodes[id]
	if !exists || !n.lastMoveKnown || n.lastMoveID != moveID {
		return nil, "", false
	}
	return n.priorParent, n.priorFracIndex, true
}

// ParentOf returns a node's current parent, if the node exists.
func (f *Forest) ParentOf(id identity.ID) (*identity.ID, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	n, ok := f.nodes[id]
	if !ok {
		return nil, false
	}
	return n.Parent, true
}

// Package undo implements Doc.undo/Doc.redo: inverting a peer's own past
// ops against the *current* state rather than reverting to a prior
// version (spec.md §4.6).
//
// No teacher analogue (cshekharsharma-go-crdt has no undo concept);
// grounded directly on spec.md §4.6's algorithm description and built
// atop internal/state + internal/txn, the same way internal/diff is
// grounded primarily on its own spec section.
package undo

import (
	"github.com/pkg/errors"

	"github.com/loro-go/loro/internal/container/list"
	"github.com/loro-go/loro/internal/container/mapcrdt"
	"github.com/loro-go/loro/internal/container/text"
	"github.com/loro-go/loro/internal/container/tree"
	"github.com/loro-go/loro/internal/identity"
	"github.com/loro-go/loro/internal/oplog"
	"github.com/loro-go/loro/internal/state"
)

// entry is one undoable unit: the local Change it inverts.
type entry struct {
	change *oplog.Change
}

// Manager tracks a peer's local undo/redo history. One Manager belongs to
// exactly one Doc (spec.md §9 "threaded explicitly, never a singleton").
type Manager struct {
	peer  identity.PeerID
	log   *oplog.OpLog
	state *state.DocState

	undoStack []entry
	redoStack []entry
}

// New creates an empty undo/redo history for peer.
func New(peer identity.PeerID, log *oplog.OpLog, st *state.DocState) *Manager {
	return &Manager{peer: peer, log: log, state: st}
}

// RecordLocalChange registers a freshly-committed local change as
// undoable, clearing any pending redo history (spec.md: a fresh edit
// invalidates redo, matching standard editor undo-stack semantics). Must
// NOT be called for changes that Undo/Redo themselves produced (those are
// recorded via their own push onto the opposite stack).
func (m *Manager) RecordLocalChange(c *oplog.Change) {
	if c == nil {
		return
	}
	m.undoStack = append(m.undoStack, entry{change: c})
	m.redoStack = nil
}

// Undo inverts up to n of the most recent undoable local changes,
// committing the inverses as one new local change and moving the
// originals onto the redo stack. Returns (nil, nil) if there is nothing
// to undo.
func (m *Manager) Undo(n int) (*oplog.Change, error) {
	return m.invert(&m.undoStack, &m.redoStack, n)
}

// Redo reapplies up to n of the most recently undone changes, computing a
// fresh inverse-of-the-inverse against current state exactly as Undo does
// (spec.md §4.6 "Undo is not revert"; the same holds symmetrically for
// redo — it is not a blind replay of the original ops either).
func (m *Manager) Redo(n int) (*oplog.Change, error) {
	return m.invert(&m.redoStack, &m.undoStack, n)
}

func (m *Manager) invert(from, to *[]entry, n int) (*oplog.Change, error) {
	if n <= 0 || len(*from) == 0 {
		return nil, nil
	}
	if n > len(*from) {
		n = len(*from)
	}
	popped := (*from)[len(*from)-n:]
	*from = (*from)[:len(*from)-n]

	var inverseOps []oplog.Op
	// Most-recently-authored change inverts first, and within a change its
	// ops invert last-to-first, so the inverse change undoes effects in
	// exactly the reverse order they were originally applied.
	for i := len(popped) - 1; i >= 0; i-- {
		c := popped[i].change
		for j := len(c.Ops) - 1; j >= 0; j-- {
			op := c.Ops[j]
			inv, ok, err := m.inverseOf(op)
			if err != nil {
				return nil, errors.Wrapf(err, "undo: invert op %s", op.ID)
			}
			if ok {
				inverseOps = append(inverseOps, inv)
			}
		}
	}
	if len(inverseOps) == 0 {
		return nil, nil
	}

	change, err := m.log.AppendLocal(m.peer, inverseOps, "undo", 0)
	if err != nil {
		return nil, errors.Wrap(err, "undo: commit inverse change")
	}
	if err := m.state.ApplyOps(change.Ops); err != nil {
		return nil, errors.Wrap(err, "undo: apply inverse ops to state")
	}
	*to = append(*to, entry{change: change})
	return change, nil
}

// inverseOf computes op's inverse against the container's current live
// state. ok is false when there is genuinely nothing to undo (a
// concurrent edit already superseded this op's effect), matching spec.md
// §4.6's "compute its inverse under the current state".
func (m *Manager) inverseOf(op oplog.Op) (oplog.Op, bool, error) {
	c, err := m.state.Container(op.Container)
	if err != nil {
		return oplog.Op{}, false, err
	}

	switch op.Content.Kind {
	case oplog.OpKindCounterAdd:
		return oplog.Op{Container: op.Container, Content: oplog.OpContent{
			Kind: oplog.OpKindCounterAdd, CounterDelta: -op.Content.CounterDelta,
		}}, true, nil

	case oplog.OpKindMapInsert, oplog.OpKindMapDelete:
		mp, ok := c.(*mapcrdt.Map)
		if !ok {
			return oplog.Op{}, false, nil
		}
		writer, exists := mp.WriterOf(op.Content.MapKey)
		if !exists || writer != op.ID {
			// A concurrent write has already superseded this one; nothing
			// of this op's effect remains to undo (documented
			// simplification: true prior-value restoration would need
			// per-key write history, which Map does not retain).
			return oplog.Op{}, false, nil
		}
		return oplog.Op{Container: op.Container, Content: oplog.OpContent{
			Kind: oplog.OpKindMapDelete, MapKey: op.Content.MapKey, MapDeleted: true,
		}}, true, nil

	case oplog.OpKindListInsert:
		ls, ok := c.(*list.List)
		if !ok {
			return oplog.Op{}, false, nil
		}
		return inverseOfListInsert(op, ls)

	case oplog.OpKindListDelete:
		ls, ok := c.(*list.List)
		if !ok {
			return oplog.Op{}, false, nil
		}
		idx, values, found := ls.DeletedRun(op.ID)
		if !found {
			return oplog.Op{}, false, nil
		}
		return oplog.Op{Container: op.Container, Content: oplog.OpContent{
			Kind: oplog.OpKindListInsert, ListIndex: idx, ListValues: values,
		}}, true, nil

	case oplog.OpKindTextInsert:
		tx, ok := c.(*text.Text)
		if !ok {
			return oplog.Op{}, false, nil
		}
		return inverseOfTextInsert(op, tx)

	case oplog.OpKindTextDelete:
		tx, ok := c.(*text.Text)
		if !ok {
			return oplog.Op{}, false, nil
		}
		idx, runes, found := tx.DeletedRun(op.ID)
		if !found {
			return oplog.Op{}, false, nil
		}
		rs := make([]rune, len(runes))
		for i, r := range runes {
			rs[i] = r.(rune)
		}
		return oplog.Op{Container: op.Container, Content: oplog.OpContent{
			Kind: oplog.OpKindTextInsert, TextPos: idx, TextValue: string(rs),
		}}, true, nil

	case oplog.OpKindTreeCreate:
		tr, ok := c.(*tree.Forest)
		if !ok {
			return oplog.Op{}, false, nil
		}
		live := tr.Value().(map[identity.ID]tree.NodeView)
		if _, exists := live[op.Content.TreeNode]; !exists {
			return oplog.Op{}, false, nil // already deleted (by us or concurrently)
		}
		return oplog.Op{Container: op.Container, Content: oplog.OpContent{
			Kind: oplog.OpKindTreeDelete, TreeNode: op.Content.TreeNode,
		}}, true, nil

	case oplog.OpKindTreeDelete:
		// A tree delete only sets the node's Deleted flag, and the Tree
		// container exposes no op that clears it again, so there is no
		// inverse op to emit: tree-delete undo is a no-op in this engine.
		return oplog.Op{}, false, nil

	case oplog.OpKindTreeMove:
		tr, ok := c.(*tree.Forest)
		if !ok {
			return oplog.Op{}, false, nil
		}
		prevParent, prevFrac, ok := tr.PriorPosition(op.Content.TreeNode, op.ID)
		if !ok {
			// Either the node was never moved before op, or a later move
			// (local or concurrent) has already superseded it; nothing of
			// this specific move remains to invert.
			return oplog.Op{}, false, nil
		}
		return oplog.Op{Container: op.Container, Content: oplog.OpContent{
			Kind: oplog.OpKindTreeMove, TreeNode: op.Content.TreeNode,
			TreeParent: prevParent, TreeFracIdx: prevFrac,
		}}, true, nil

	default:
		return oplog.Op{}, false, nil
	}
}

// inverseOfListInsert deletes the elements this op inserted that are
// still live, addressed by current visible index, as one delete op.
func inverseOfListInsert(op oplog.Op, ls *list.List) (oplog.Op, bool, error) {
	type live struct{ idx int }
	var lives []live
	for i := range op.Content.ListValues {
		id := identity.ID{Peer: op.ID.Peer, Counter: op.ID.Counter + identity.Counter(i)}
		if idx, ok := ls.VisibleIndexOf(id); ok {
			lives = append(lives, live{idx: idx})
		}
	}
	if len(lives) == 0 {
		return oplog.Op{}, false, nil
	}
	// Represented as a single op carrying the highest-index deletion; the
	// caller (Manager.invert) only needs one op per source op, so fold the
	// remaining deletes into this op's ListIndex/ListDelLen only when they
	// are contiguous, which an uninterrupted own-insert run always is
	// immediately after insertion.
	minIdx, maxIdx := lives[0].idx, lives[0].idx
	for _, l := range lives[1:] {
		if l.idx < minIdx {
			minIdx = l.idx
		}
		if l.idx > maxIdx {
			maxIdx = l.idx
		}
	}
	if maxIdx-minIdx+1 != len(lives) {
		minIdx = maxIdx
	}
	return oplog.Op{Container: op.Container, Content: oplog.OpContent{
		Kind: oplog.OpKindListDelete, ListIndex: minIdx, ListDelLen: maxIdx - minIdx + 1,
	}}, true, nil
}

// inverseOfTextInsert mirrors inverseOfListInsert for the character RGA
// backing Text.
func inverseOfTextInsert(op oplog.Op, tx *text.Text) (oplog.Op, bool, error) {
	runes := []rune(op.Content.TextValue)
	type live struct{ idx int }
	var lives []live
	for i := range runes {
		id := identity.ID{Peer: op.ID.Peer, Counter: op.ID.Counter + identity.Counter(i)}
		if idx, ok := tx.VisibleIndexOf(id); ok {
			lives = append(lives, live{idx: idx})
		}
	}
	if len(lives) == 0 {
		return oplog.Op{}, false, nil
	}
	minIdx, maxIdx := lives[0].idx, lives[0].idx
	for _, l := range lives[1:] {
		if l.idx < minIdx {
			minIdx = l.idx
		}
		if l.idx > maxIdx {
			maxIdx = l.idx
		}
	}
	if maxIdx-minIdx+1 != len(lives) {
		minIdx = maxIdx
	}
	return oplog.Op{Container: op.Container, Content: oplog.OpContent{
		Kind: oplog.OpKindTextDelete, TextPos: minIdx, TextDelLen: maxIdx - minIdx + 1,
	}}, true, nil
}

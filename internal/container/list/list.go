// Package list implements the List container: a Fugue/RGA-style ordered
// sequence (spec.md §4.2.2). Grounded on the teacher's rga.go
// integrate/Greater concurrent-insert ordering, generalized from a linked
// list of runes to a slice of arbitrary values, and from index-addressed
// inserts to origin-left-addressed inserts so concurrent inserts at the
// same position converge.
//
// Simplification noted in DESIGN.md: this tracks only origin-left (the
// element immediately to the left at insert time), the same single-origin
// reduction the teacher's RGA already makes, rather than full Fugue
// origin-left+origin-right tree balancing. Convergence and the
// (Lamport desc, PeerID desc) tie-break from spec.md still hold.
package list

import (
	"sync"

	"github.com/loro-go/loro/internal/container"
	"github.com/loro-go/loro/internal/identity"
	"github.com/loro-go/loro/internal/oplog"
)

type elem struct {
	id         identity.ID
	lamport    identity.Lamport
	value      any
	deleted    bool
	originLeft identity.ID // zero value means "begin of document"
	hasLeft    bool

	// deletedBy records which Delete op tombstoned this element, so undo
	// can later find exactly the run one local delete removed (spec.md
	// §4.6 "reinsert a deleted run as a fresh local insert at the position
	// where the deleted characters' neighbors currently lie").
	deletedBy    identity.ID
	hasDeletedBy bool
}

// List is the List container's live RGA state.
type List struct {
	mu    sync.RWMutex
	elems []elem // kept in document (total) order, including tombstones
	index map[identity.ID]int
}

// New creates an empty List.
func New() *List {
	return &List{index: make(map[identity.ID]int)}
}

func (l *List) idLp(i int) identity.IdLp {
	return identity.IdLp{ID: l.elems[i].id, Lamport: l.elems[i].lamport}
}

// integrate places a freshly-decoded element per the RGA rule: start right
// after its origin-left, then skip forward over any existing concurrent
// siblings (elements that also claim the same origin-left) that sort
// ahead of it by (Lamport desc, PeerID desc).
func (l *List) integrate(e elem) {
	pos := 0
	if e.hasLeft {
		i, ok := l.index[e.originLeft]
		if ok {
			pos = i + 1
		}
	}
	newIdLp := identity.IdLp{ID: e.id, Lamport: e.lamport}
	for pos < len(l.elems) {
		cur := l.elems[pos]
		sameOrigin := cur.hasLeft == e.hasLeft && cur.originLeft == e.originLeft
		if !sameOrigin {
			break
		}
		curIdLp := identity.IdLp{ID: cur.id, Lamport: cur.lamport}
		if newIdLp.Greater(curIdLp) {
			break
		}
		pos++
	}
	l.elems = append(l.elems, elem{})
	copy(l.elems[pos+1:], l.elems[pos:])
	l.elems[pos] = e
	for id, idx := range l.index {
		if idx >= pos {
			l.index[id] = idx + 1
		}
	}
	l.index[e.id] = pos
}

// visibleIndexToElemIndex maps a visible (tombstone-excluded) index to a
// position in l.elems, or len(l.elems) if idx == visible length.
func (l *List) visibleIndexToElemIndex(idx int) int {
	seen := 0
	for i, e := range l.elems {
		if !e.deleted {
			if seen == idx {
				return i
			}
			seen++
		}
	}
	return len(l.elems)
}

// originLeftFor returns the origin-left ID for an insert at visible index
// idx: the element currently at visible position idx-1, or "begin".
func (l *List) originLeftFor(idx int) (identity.ID, bool) {
	if idx == 0 {
		return identity.ID{}, false
	}
	pos := l.visibleIndexToElemIndex(idx - 1)
	if pos >= len(l.elems) {
		return identity.ID{}, false
	}
	return l.elems[pos].id, true
}

// Apply integrates a List{Insert|Delete} op.
func (l *List) Apply(op oplog.Op) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch op.Content.Kind {
	case oplog.OpKindListInsert:
		for i, v := range op.Content.ListValues {
			if op.Content.HasChild && i == 0 {
				v = container.ChildRef{Idx: uint32(op.Content.ChildContainer)}
			}
			origin, hasLeft := l.originLeftFor(op.Content.ListIndex + i)
			l.integrate(elem{
				id:         identity.ID{Peer: op.ID.Peer, Counter: op.ID.Counter + identity.Counter(i)},
				lamport:    op.Lamport + identity.Lamport(i),
				value:      v,
				originLeft: origin,
				hasLeft:    hasLeft,
			})
		}
	case oplog.OpKindListDelete:
		start := op.Content.ListIndex
		for i := 0; i < op.Content.ListDelLen; i++ {
			pos := l.visibleIndexToElemIndex(start)
			if pos >= len(l.elems) {
				break
			}
			l.elems[pos].deleted = true
			l.elems[pos].deletedBy = op.ID
			l.elems[pos].hasDeletedBy = true
		}
	}
	return nil
}

// Value returns the tombstone-free ordered value sequence.
func (l *List) Value() any {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]any, 0, len(l.elems))
	for _, e := range l.elems {
		if !e.deleted {
			out = append(out, e.value)
		}
	}
	return out
}

// Len returns the visible element count.
func (l *List) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := 0
	for _, e := range l.elems {
		if !e.deleted {
			n++
		}
	}
	return n
}

// ElemAt returns the element identity at a visible index, used by
// MovableList and undo to address elements by identity rather than index.
func (l *List) ElemAt(idx int) (identity.ID, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	pos := l.visibleIndexToElemIndex(idx)
	if pos >= len(l.elems) {
		return identity.ID{}, false
	}
	return l.elems[pos].id, true
}

// DeletedRun returns, in document order, the values tombstoned by the
// Delete op with the given ID, plus the visible index they should be
// reinserted at to restore them in place (spec.md §4.6). ok is false if
// no element is currently recorded as having been deleted by opID (the
// op never deleted anything live, or this query raced an import that
// hasn't integrated the delete yet).
func (l *List) DeletedRun(opID identity.ID) (index int, values []any, ok bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	visible := 0
	started := false
	for _, e := range l.elems {
		if e.hasDeletedBy && e.deletedBy == opID {
			if !started {
				index = visible
				started = true
			}
			values = append(values, e.value)
			continue
		}
		if !e.deleted {
			visible++
		}
	}
	return index, values, started
}

// VisibleIndexOf returns the current visible index of a live element by
// its ID, used by undo to address still-live inserted elements for
// deletion regardless of how the document has shifted since.
func (l *List) VisibleIndexOf(id identity.ID) (int, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	pos, ok := l.index[id]
	if !ok || l.elems[pos].deleted {
		return 0, false
	}
	visible := 0
	for i := 0; i < pos; i++ {
		if !l.elems[i].deleted {
			visible++
		}
	}
	return visible, true
}

// IsDeleted reports whether the element with the given id is tombstoned.
func (l *List) IsDeleted(id identity.ID) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	pos, ok := l.index[id]
	if !ok {
		return true
	}
	return l.elems[pos].deleted
}

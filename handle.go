package loro

import (
	"github.com/loro-go/loro/internal/arena"
	"github.com/loro-go/loro/internal/container"
	"github.com/loro-go/loro/internal/container/list"
	"github.com/loro-go/loro/internal/container/mapcrdt"
	"github.com/loro-go/loro/internal/container/movablelist"
	"github.com/loro-go/loro/internal/container/text"
	"github.com/loro-go/loro/internal/container/tree"
	"github.com/loro-go/loro/internal/identity"
	"github.com/loro-go/loro/internal/oplog"
)

// Each Handle is a thin, cheaply-copyable reference to one container
// within a Doc (spec.md §6.1 "On a handle: insert, delete, get, len, id,
// and type-specific move/mark/insert_container"). A handle holds no state
// of its own beyond which container it names; every read re-resolves the
// container from the Doc's current DocState, so a handle obtained before
// a Checkout still observes the new state afterward.

// withContainer resolves idx's container instance under the Doc's mutex
// and runs fn against it; reads never need a txn, but still need the
// same single-mutex discipline as every other Doc access (spec.md §5).
func (d *Doc) withContainer(idx arena.ContainerIdx, fn func(c container.Container) (any, error)) (any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrDocClosed
	}
	c, err := d.state.Container(idx)
	if err != nil {
		return nil, err
	}
	return fn(c)
}

// MapHandle is a handle onto a Map container.
type MapHandle struct {
	doc *Doc
	idx arena.ContainerIdx
}

// GetMap returns a handle onto the root Map container named name,
// creating it lazily on first write (spec.md §6.1 "Doc::get_map(name)").
func (d *Doc) GetMap(name string) *MapHandle {
	return &MapHandle{doc: d, idx: d.arena.Intern(arena.RootID(name, arena.ContainerTypeMap))}
}

// ID returns this handle's ContainerID.
func (h *MapHandle) ID() (arena.ContainerID, bool) { return h.doc.arena.Lookup(h.idx) }

// Insert sets key to value, superseding any concurrent write per the
// Map's (Lamport, PeerID) tie-break (spec.md §4.2.3).
func (h *MapHandle) Insert(key string, value any) error {
	_, err := h.doc.commit(h.idx, oplog.OpContent{Kind: oplog.OpKindMapInsert, MapKey: key, MapValue: value})
	return err
}

// InsertContainer sets key to a freshly created container of type t and
// returns the child's ContainerIdx (spec.md §6.1 "insert_container").
func (h *MapHandle) InsertContainer(key string, t arena.ContainerType) (arena.ContainerIdx, error) {
	var childIdx arena.ContainerIdx
	_, err := h.doc.commit1Predicted(h.idx, func(id identity.ID) oplog.OpContent {
		childIdx = h.doc.internContainer(id, t)
		return oplog.OpContent{
			Kind: oplog.OpKindMapInsert, MapKey: key,
			ChildContainer: childIdx, HasChild: true,
		}
	})
	return childIdx, err
}

// Delete removes key (spec.md §4.2.3: a tombstoned LWW write, not a
// physical removal, so a concurrent re-insert still resolves correctly).
func (h *MapHandle) Delete(key string) error {
	_, err := h.doc.commit(h.idx, oplog.OpContent{Kind: oplog.OpKindMapDelete, MapKey: key, MapDeleted: true})
	return err
}

// Get returns key's current live value, if any, with a nested container
// resolved to its own materialized value.
func (h *MapHandle) Get(key string) (any, bool, error) {
	var found bool
	v, err := h.doc.withContainer(h.idx, func(c container.Container) (any, error) {
		m, ok := c.(*mapcrdt.Map)
		if !ok {
			return nil, ErrInvalidOp
		}
		raw, ok := m.Get(key)
		if !ok {
			return nil, nil
		}
		found = true
		return h.doc.state.ResolveValue(raw), nil
	})
	return v, found, err
}

// Len returns the number of live keys.
func (h *MapHandle) Len() (int, error) {
	v, err := h.doc.withContainer(h.idx, func(c container.Container) (any, error) {
		m, ok := c.(*mapcrdt.Map)
		if !ok {
			return nil, ErrInvalidOp
		}
		return len(m.Value().(map[string]any)), nil
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

// Value returns the materialized, tombstone-free key/value view, with
// every nested container resolved inline.
func (h *MapHandle) Value() (any, error) {
	return h.doc.withContainer(h.idx, func(c container.Container) (any, error) {
		return h.doc.state.ResolveValue(c.Value()), nil
	})
}

// ListHandle is a handle onto a List container.
type ListHandle struct {
	doc *Doc
	idx arena.ContainerIdx
}

// GetList returns a handle onto the root List container named name.
func (d *Doc) GetList(name string) *ListHandle {
	return &ListHandle{doc: d, idx: d.arena.Intern(arena.RootID(name, arena.ContainerTypeList))}
}

func (h *ListHandle) ID() (arena.ContainerID, bool) { return h.doc.arena.Lookup(h.idx) }

// Insert inserts values starting at index (spec.md §4.2.2). Elements are
// integrated by origin-left only; no origin-right is recorded.
func (h *ListHandle) Insert(index int, values ...any) error {
	if len(values) == 0 {
		return nil
	}
	_, err := h.doc.commit(h.idx, oplog.OpContent{Kind: oplog.OpKindListInsert, ListIndex: index, ListValues: values})
	return err
}

// InsertContainer inserts a freshly created container of type t at index
// and returns the child's ContainerIdx.
func (h *ListHandle) InsertContainer(index int, t arena.ContainerType) (arena.ContainerIdx, error) {
	var childIdx arena.ContainerIdx
	_, err := h.doc.commit1Predicted(h.idx, func(id identity.ID) oplog.OpContent {
		childIdx = h.doc.internContainer(id, t)
		return oplog.OpContent{
			Kind: oplog.OpKindListInsert, ListIndex: index, ListValues: []any{nil},
			ChildContainer: childIdx, HasChild: true,
		}
	})
	return childIdx, err
}

// Delete removes the n elements starting at index.
func (h *ListHandle) Delete(index, n int) error {
	if n == 0 {
		return nil
	}
	_, err := h.doc.commit(h.idx, oplog.OpContent{Kind: oplog.OpKindListDelete, ListIndex: index, ListDelLen: n})
	return err
}

// Get returns the live element at index, with a nested container
// resolved to its own materialized value.
func (h *ListHandle) Get(index int) (any, error) {
	return h.doc.withContainer(h.idx, func(c container.Container) (any, error) {
		l, ok := c.(*list.List)
		if !ok {
			return nil, ErrInvalidOp
		}
		values, ok := l.Value().([]any)
		if !ok || index < 0 || index >= len(values) {
			return nil, ErrOutOfBounds
		}
		return h.doc.state.ResolveValue(values[index]), nil
	})
}

// Len returns the number of live elements.
func (h *ListHandle) Len() (int, error) {
	v, err := h.doc.withContainer(h.idx, func(c container.Container) (any, error) {
		l, ok := c.(*list.List)
		if !ok {
			return nil, ErrInvalidOp
		}
		return l.Len(), nil
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

// Value returns the materialized, tombstone-free element slice, with
// every nested container resolved inline.
func (h *ListHandle) Value() (any, error) {
	return h.doc.withContainer(h.idx, func(c container.Container) (any, error) {
		return h.doc.state.ResolveValue(c.Value()), nil
	})
}

// MovableListHandle is a handle onto a MovableList container.
type MovableListHandle struct {
	doc *Doc
	idx arena.ContainerIdx
}

// GetMovableList returns a handle onto the root MovableList container
// named name (spec.md §4.2.2: a distinct container type from List, not a
// mode of it).
func (d *Doc) GetMovableList(name string) *MovableListHandle {
	return &MovableListHandle{doc: d, idx: d.arena.Intern(arena.RootID(name, arena.ContainerTypeMovableList))}
}

func (h *MovableListHandle) ID() (arena.ContainerID, bool) { return h.doc.arena.Lookup(h.idx) }

// Insert inserts values starting at index.
func (h *MovableListHandle) Insert(index int, values ...any) error {
	if len(values) == 0 {
		return nil
	}
	_, err := h.doc.commit(h.idx, oplog.OpContent{Kind: oplog.OpKindListInsert, ListIndex: index, ListValues: values})
	return err
}

// Delete removes the n elements starting at index.
func (h *MovableListHandle) Delete(index, n int) error {
	if n == 0 {
		return nil
	}
	_, err := h.doc.commit(h.idx, oplog.OpContent{Kind: oplog.OpKindListDelete, ListIndex: index, ListDelLen: n})
	return err
}

// Move relocates the element currently visible at from so that it ends
// up at visible index to of the list as it reads with that element
// removed (moving x to 2 in [x,y,z] targets [y,z,x]), without losing its
// identity (so concurrent edits anchored to that element still resolve;
// spec.md §4.2.2 "MovableList ... moves carry the element's identity
// forward").
func (h *MovableListHandle) Move(from, to int) error {
	v, err := h.doc.withContainer(h.idx, func(c container.Container) (any, error) {
		ml, ok := c.(*movablelist.MovableList)
		if !ok {
			return nil, ErrInvalidOp
		}
		elemID, ok := ml.ElemAt(from)
		if !ok {
			return nil, ErrOutOfBounds
		}
		return elemID, nil
	})
	if err != nil {
		return err
	}
	_, err = h.doc.commit(h.idx, oplog.OpContent{Kind: oplog.OpKindListMove, ListMoveElem: v.(identity.ID), ListMoveTo: to})
	return err
}

// Get returns the live element at index.
func (h *MovableListHandle) Get(index int) (any, error) {
	return h.doc.withContainer(h.idx, func(c container.Container) (any, error) {
		ml, ok := c.(*movablelist.MovableList)
		if !ok {
			return nil, ErrInvalidOp
		}
		values, ok := ml.Value().([]any)
		if !ok || index < 0 || index >= len(values) {
			return nil, ErrOutOfBounds
		}
		return h.doc.state.ResolveValue(values[index]), nil
	})
}

// Len returns the number of live elements.
func (h *MovableListHandle) Len() (int, error) {
	v, err := h.doc.withContainer(h.idx, func(c container.Container) (any, error) {
		ml, ok := c.(*movablelist.MovableList)
		if !ok {
			return nil, ErrInvalidOp
		}
		return ml.Len(), nil
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

// Value returns the materialized, tombstone-free element slice.
func (h *MovableListHandle) Value() (any, error) {
	return h.doc.withContainer(h.idx, func(c container.Container) (any, error) {
		return h.doc.state.ResolveValue(c.Value()), nil
	})
}

// TextHandle is a handle onto a rich-text container.
type TextHandle struct {
	doc *Doc
	idx arena.ContainerIdx
}

// GetText returns a handle onto the root Text container named name.
func (d *Doc) GetText(name string) *TextHandle {
	return &TextHandle{doc: d, idx: d.arena.Intern(arena.RootID(name, arena.ContainerTypeText))}
}

func (h *TextHandle) ID() (arena.ContainerID, bool) { return h.doc.arena.Lookup(h.idx) }

// Insert inserts s at the given unicode-scalar index.
func (h *TextHandle) Insert(index int, s string) error {
	if s == "" {
		return nil
	}
	_, err := h.doc.commit(h.idx, oplog.OpContent{Kind: oplog.OpKindTextInsert, TextPos: index, TextValue: s})
	return err
}

// Delete removes n unicode scalars starting at index.
func (h *TextHandle) Delete(index, n int) error {
	if n == 0 {
		return nil
	}
	_, err := h.doc.commit(h.idx, oplog.OpContent{Kind: oplog.OpKindTextDelete, TextPos: index, TextDelLen: n})
	return err
}

// Mark applies a style key/value to [start, end), expanding onto
// neighboring insertions per expand (spec.md §4.2.1 "Mark/MarkEnd span
// pair"). Both ops commit as one Change so observers never see a mark
// half-applied.
func (h *TextHandle) Mark(start, end int, key string, value any, expand oplog.ExpandPolicy) error {
	first := oplog.OpContent{Kind: oplog.OpKindTextMark, TextPos: start, StyleKey: key, StyleValue: value, StyleExpand: expand}
	return h.doc.commitLinkedPair(h.idx, first, func(markID identity.ID) oplog.OpContent {
		return oplog.OpContent{Kind: oplog.OpKindTextMarkEnd, TextPos: end, MarkStartID: markID}
	})
}

// Get returns the live string at index..index+n.
func (h *TextHandle) Get(index, n int) (string, error) {
	v, err := h.doc.withContainer(h.idx, func(c container.Container) (any, error) {
		t, ok := c.(*text.Text)
		if !ok {
			return nil, ErrInvalidOp
		}
		runes := []rune(t.String())
		if index < 0 || index+n > len(runes) {
			return nil, ErrOutOfBounds
		}
		return string(runes[index : index+n]), nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Len returns the number of live unicode scalars.
func (h *TextHandle) Len() (int, error) {
	v, err := h.doc.withContainer(h.idx, func(c container.Container) (any, error) {
		t, ok := c.(*text.Text)
		if !ok {
			return nil, ErrInvalidOp
		}
		return t.Len(), nil
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

// Value returns the full materialized string.
func (h *TextHandle) Value() (string, error) {
	v, err := h.doc.withContainer(h.idx, func(c container.Container) (any, error) {
		t, ok := c.(*text.Text)
		if !ok {
			return nil, ErrInvalidOp
		}
		return t.String(), nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// TreeHandle is a handle onto a Tree container.
type TreeHandle struct {
	doc *Doc
	idx arena.ContainerIdx
}

// GetTree returns a handle onto the root Tree container named name.
func (d *Doc) GetTree(name string) *TreeHandle {
	return &TreeHandle{doc: d, idx: d.arena.Intern(arena.RootID(name, arena.ContainerTypeTree))}
}

func (h *TreeHandle) ID() (arena.ContainerID, bool) { return h.doc.arena.Lookup(h.idx) }

// CreateNode creates a new node under parent (nil for a root node) at
// fracIdx among its siblings, returning the new node's ID.
func (h *TreeHandle) CreateNode(parent *identity.ID, fracIdx string) (identity.ID, error) {
	return h.doc.commit1Predicted(h.idx, func(id identity.ID) oplog.OpContent {
		return oplog.OpContent{Kind: oplog.OpKindTreeCreate, TreeNode: id, TreeParent: parent, TreeFracIdx: fracIdx}
	})
}

// Move relocates node under newParent at fracIdx. Rejected with
// ErrInvalidOp if newParent is node itself or one of node's own
// descendants (spec.md §4.2.4 cycle prevention).
func (h *TreeHandle) Move(node identity.ID, newParent *identity.ID, fracIdx string) error {
	_, err := h.doc.withContainer(h.idx, func(c container.Container) (any, error) {
		f, ok := c.(*tree.Forest)
		if !ok {
			return nil, ErrInvalidOp
		}
		if newParent != nil && (*newParent == node || f.IsAncestor(node, *newParent)) {
			return nil, ErrInvalidOp
		}
		return nil, nil
	})
	if err != nil {
		return err
	}
	_, err = h.doc.commit(h.idx, oplog.OpContent{Kind: oplog.OpKindTreeMove, TreeNode: node, TreeParent: newParent, TreeFracIdx: fracIdx})
	return err
}

// Delete tombstones node and its whole subtree.
func (h *TreeHandle) Delete(node identity.ID) error {
	_, err := h.doc.commit(h.idx, oplog.OpContent{Kind: oplog.OpKindTreeDelete, TreeNode: node})
	return err
}

// SetMeta annotates node with a key/value pair.
func (h *TreeHandle) SetMeta(node identity.ID, key string, value any) error {
	_, err := h.doc.commit(h.idx, oplog.OpContent{Kind: oplog.OpKindTreeSetMeta, TreeNode: node, TreeMetaKey: key, TreeMetaVal: value})
	return err
}

// ParentOf returns node's current live parent, if any.
func (h *TreeHandle) ParentOf(node identity.ID) (*identity.ID, bool, error) {
	var found bool
	v, err := h.doc.withContainer(h.idx, func(c container.Container) (any, error) {
		f, ok := c.(*tree.Forest)
		if !ok {
			return nil, ErrInvalidOp
		}
		p, ok := f.ParentOf(node)
		found = ok
		return p, nil
	})
	if err != nil {
		return nil, false, err
	}
	p, _ := v.(*identity.ID)
	return p, found, nil
}

// Value returns every live node, keyed by ID.
func (h *TreeHandle) Value() (any, error) {
	return h.doc.withContainer(h.idx, func(c container.Container) (any, error) {
		return c.Value(), nil
	})
}

// CounterHandle is a handle onto a Counter container.
type CounterHandle struct {
	doc *Doc
	idx arena.ContainerIdx
}

// GetCounter returns a handle onto the root Counter container named name.
func (d *Doc) GetCounter(name string) *CounterHandle {
	return &CounterHandle{doc: d, idx: d.arena.Intern(arena.RootID(name, arena.ContainerTypeCounter))}
}

func (h *CounterHandle) ID() (arena.ContainerID, bool) { return h.doc.arena.Lookup(h.idx) }

// Add adds delta (possibly negative) to the counter (spec.md §4.2.5: a
// commutative sum of per-op deltas, so concurrent adds always converge).
func (h *CounterHandle) Add(delta float64) error {
	_, err := h.doc.commit(h.idx, oplog.OpContent{Kind: oplog.OpKindCounterAdd, CounterDelta: delta})
	return err
}

// Value returns the current sum.
func (h *CounterHandle) Value() (float64, error) {
	v, err := h.doc.withContainer(h.idx, func(c container.Container) (any, error) {
		f, ok := c.Value().(float64)
		if !ok {
			return nil, ErrInvalidOp
		}
		return f, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(float64), nil
}

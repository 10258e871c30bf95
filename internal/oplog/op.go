// Package oplog implements the append-only causal DAG of Changes that is
// the system of record for a Doc: OpLog (spec.md §2, §4.1).
package oplog

import (
	"github.com/loro-go/loro/internal/arena"
	"github.com/loro-go/loro/internal/identity"
)

// OpKind tags which container algorithm an Op's content belongs to. Kept as
// a closed enum (a tagged variant, spec.md §9 "Dynamic dispatch") rather
// than an interface, so the codec can exhaustively switch over it.
type OpKind uint8

const (
	OpKindListInsert OpKind = iota
	OpKindListDelete
	OpKindListMove
	OpKindListSet
	OpKindTextInsert
	OpKindTextDelete
	OpKindTextMark
	OpKindTextMarkEnd
	OpKindMapInsert
	OpKindMapDelete
	OpKindTreeCreate
	OpKindTreeMove
	OpKindTreeDelete
	OpKindTreeSetMeta
	OpKindCounterAdd
	OpKindUnknown
)

// ExpandPolicy controls whether newly-inserted text inherits a style span
// that abuts it (spec.md §4.2.1).
type ExpandPolicy uint8

const (
	ExpandNone ExpandPolicy = iota
	ExpandBefore
	ExpandAfter
	ExpandBoth
)

// OpContent is the tagged-variant payload of an Op. Exactly the fields
// relevant to Kind are populated; this mirrors spec.md's closed sum type
// (List{Insert|Delete|Move|Set}, Text{...}, Map{...}, Tree{...},
// Counter{Add}, Unknown{type_tag, bytes}) as a single flat struct instead
// of an interface, so encode/decode and diff computation can switch
// exhaustively over Kind without a dispatch vtable.
type OpContent struct {
	Kind OpKind

	// List{Insert|Delete|Move|Set}
	ListIndex    int
	ListValues   []any // Insert: values inserted at ListIndex
	ListDelLen   int   // Delete: number of elements removed starting at ListIndex
	ListMoveElem identity.ID
	ListMoveTo   int
	ListSetValue any

	// Text{Insert|Delete|Mark|MarkEnd}
	TextPos       int // unicode-scalar index
	TextValue     string
	TextDelLen    int
	StyleKey      string
	StyleValue    any
	StyleExpand   ExpandPolicy
	MarkStartID   identity.ID // MarkEnd refers back to its Mark's op ID

	// Map{Insert|Delete}
	MapKey      string
	MapValue    any // nil + MapDeleted=true represents a tombstone write
	MapDeleted  bool

	// Tree{Create|Move|Delete|SetMeta}
	TreeNode     identity.ID // node being created/moved/deleted/annotated; for Create this equals the op's own ID
	TreeParent   *identity.ID // nil means "root"
	TreeFracIdx  string       // fractional index string among siblings
	TreeMetaKey  string
	TreeMetaVal  any

	// Counter{Add}
	CounterDelta float64

	// Unknown forward-compat payload (spec.md §3.2 "Unknown ops")
	UnknownTypeTag uint32
	UnknownBytes   []byte

	// ChildContainer is set when this op's value creates a new container
	// (spec.md §3.3 "Containers inside containers"): the created
	// container's idx, so callers don't need to re-derive it from the op
	// ID and a guessed type.
	ChildContainer arena.ContainerIdx
	HasChild       bool
}

// Op is one mutation within a Change, addressed by its own ID and
// targeting exactly one container.
type Op struct {
	ID        identity.ID
	Lamport   identity.Lamport
	Container arena.ContainerIdx
	Content   OpContent
}

// IdLp returns the (ID, Lamport) pair used for concurrent-op tie-breaking
// across the text/list/map/tree container algorithms.
func (o Op) IdLp() identity.IdLp {
	return identity.IdLp{ID: o.ID, Lamport: o.Lamport}
}

// TargetsSameRun reports whether two ops are adjacent, same-container,
// same-kind mutations that run-length merging should consider combining
// (spec.md §4.1 "Run-length merging").
func (o Op) TargetsSameRun(next Op) bool {
	if o.Container != next.Container || o.Content.Kind != next.Content.Kind {
		return false
	}
	if o.ID.Peer != next.ID.Peer || o.ID.Counter+1 != next.ID.Counter {
		return false
	}
	switch o.Content.Kind {
	case OpKindTextInsert:
		return o.Content.TextPos+len([]rune(o.Content.TextValue)) == next.Content.TextPos
	case OpKindTextDelete:
		// Deleting [a..a+n) then [a..a+m) is contiguous in the BEFORE image
		// only if consecutive deletes target the same start position
		// repeatedly (each delete shifts content left); deleting disjoint
		// ranges must not merge (spec.md §4.1 explicit counter-example).
		return o.Content.TextPos == next.Content.TextPos
	case OpKindListInsert:
		return o.Content.ListIndex+len(o.Content.ListValues) == next.Content.ListIndex
	case OpKindListDelete:
		return o.Content.ListIndex == next.Content.ListIndex
	case OpKindCounterAdd:
		return false // each Add is independent; merging would lose per-op IDs undo needs
	default:
		return false
	}
}

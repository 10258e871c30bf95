// Package diff computes the semantic delta between two document versions
// without replaying from genesis (spec.md §4.3, DiffCalculator).
package diff

import (
	"github.com/loro-go/loro/internal/arena"
	"github.com/loro-go/loro/internal/oplog"
)

// ListDeltaItem is one element of a List/MovableList diff, mirroring
// spec.md's "sequence-delta of {retain n | insert values | delete n}".
type ListDeltaItem struct {
	Retain int
	Insert []any
	Delete int
}

// TextDeltaItem mirrors ListDeltaItem, additionally carrying attribute
// deltas for rich-text runs.
type TextDeltaItem struct {
	Retain     int
	Insert     string
	Delete     int
	Attributes map[string]any
}

// MapEntryDiffKind tags one key's change.
type MapEntryDiffKind uint8

const (
	MapAdded MapEntryDiffKind = iota
	MapUpdated
	MapDeleted
)

// MapEntryDiff is one key's Added|Updated{old,new}|Deleted change.
type MapEntryDiff struct {
	Key      string
	Kind     MapEntryDiffKind
	OldValue any
	NewValue any
}

// TreeEventKind tags a tree node-level event.
type TreeEventKind uint8

const (
	TreeCreate TreeEventKind = iota
	TreeMove
	TreeDelete
	TreeMeta
)

// TreeEvent is one node-level create/move/delete/meta event.
type TreeEvent struct {
	Kind TreeEventKind
	Node oplog.Op // carries the originating op for full detail
}

// Diff is the per-container, type-specific delta DiffCalculator produces.
// Exactly one of the slices is meaningful, selected by Kind, mirroring
// the container's own arena.ContainerType.
type Diff struct {
	Kind arena.ContainerType

	ListDelta []ListDeltaItem
	TextDelta []TextDeltaItem
	MapDelta  []MapEntryDiff
	TreeDelta []TreeEvent

	// RawOps is the forward op slice this diff was derived from; state
	// application replays these directly rather than interpreting the
	// typed delta, which exists primarily for EventEmitter payloads.
	RawOps []oplog.Op
}

// Package container defines the shared contract every per-type CRDT
// algorithm package (mapcrdt, list, movablelist, text, tree, counter)
// implements, generalized from the teacher's CRDT interface
// (cshekharsharma-go-crdt/crdt.go):
//
//	type CRDT interface {
//	    Value() any
//	    Merge(other CRDT) error
//	}
//
// This engine is operation-based rather than state-based, so instead of
// Merge(otherState) each container applies one Op at a time as the OpLog
// integrates it; Value() is kept with the same name and shape.
package container

import (
	"github.com/loro-go/loro/internal/oplog"
)

// Container is the behavior every per-type CRDT state machine provides.
// Kept deliberately small: apply one op, read the materialized value.
type Container interface {
	// Apply integrates a single already-causally-ordered Op into the
	// container's state. Ops are always applied in the DAG-topological,
	// (Lamport, PeerID) tie-broken order the OpLog/DiffCalculator
	// establishes (spec.md §4.3).
	Apply(op oplog.Op) error

	// Value returns the materialized, tombstone-free view (spec.md §3.3
	// "Value View" column).
	Value() any
}

// ChildRef is the placeholder value a Map entry or List/MovableList
// element stores when it holds a nested container, in place of that
// container's own materialized value (spec.md §3.3 "Containers inside
// containers"). Idx mirrors arena.ContainerIdx without this package
// importing arena, the same convention Kind already follows for
// arena.ContainerType; DocState.Value and Doc.ToJSON are what actually
// resolve it, recursing into the referenced container.
type ChildRef struct {
	Idx uint32
}

// Kind identifies which algorithm a Container implements, mirroring
// arena.ContainerType without importing arena here (kept dependency-free
// so container sub-packages don't need to import arena just to declare
// their Kind).
type Kind uint8

const (
	KindMap Kind = iota
	KindList
	KindMovableList
	KindText
	KindTree
	KindCounter
)

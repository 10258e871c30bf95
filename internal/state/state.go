// Package state holds the materialized, tombstone-aware document state:
// one container algorithm instance per interned container, kept current
// by replaying ops in causal order (spec.md §4.4).
//
// Grounded on the teacher's single mutex guarding a whole CRDT's value
// (cshekharsharma-go-crdt/crdt.go's embedding sync.RWMutex directly in
// GCounter/PNCounter/RGA), generalized here to the Doc's single mutex
// (Doc.mu) serializing every path into this state, since containers
// routinely need to read each other during diff application (e.g. a
// tree's SetMeta value may itself be a container reference). DocState
// itself holds no lock; each container keeps its own RWMutex.
package state

import (
	"github.com/pkg/errors"

	"github.com/loro-go/loro/internal/arena"
	"github.com/loro-go/loro/internal/container"
	"github.com/loro-go/loro/internal/container/counter"
	"github.com/loro-go/loro/internal/container/list"
	"github.com/loro-go/loro/internal/container/mapcrdt"
	"github.com/loro-go/loro/internal/container/movablelist"
	"github.com/loro-go/loro/internal/container/text"
	"github.com/loro-go/loro/internal/container/tree"
	"github.com/loro-go/loro/internal/identity"
	"github.com/loro-go/loro/internal/oplog"
)

// DocState is the materialized view of a document at some frontier.
type DocState struct {
	arena *arena.Arena

	containers map[arena.ContainerIdx]container.Container

	// frontiers is the set of op IDs this state currently reflects;
	// advanced by ApplyOps and rewound/fast-forwarded by checkout.
	frontiers identity.Frontiers
}

// New creates an empty DocState bound to arena (spec.md §2: Arena is
// threaded explicitly, never a package-level singleton).
func New(a *arena.Arena) *DocState {
	return &DocState{
		arena:      a,
		containers: make(map[arena.ContainerIdx]container.Container),
	}
}

// Frontiers returns the version this state currently reflects.
func (s *DocState) Frontiers() identity.Frontiers {
	return s.frontiers.Clone()
}

// Container returns the container instance at idx, creating it (per the
// arena's recorded ContainerType) on first access.
func (s *DocState) Container(idx arena.ContainerIdx) (container.Container, error) {
	if c, ok := s.containers[idx]; ok {
		return c, nil
	}
	id, ok := s.arena.Lookup(idx)
	if !ok {
		return nil, errors.Errorf("state: container %d not interned in arena", idx)
	}
	c, err := newContainer(id.Type)
	if err != nil {
		return nil, err
	}
	s.containers[idx] = c
	return c, nil
}

func newContainer(t arena.ContainerType) (container.Container, error) {
	switch t {
	case arena.ContainerTypeMap:
		return mapcrdt.New(), nil
	case arena.ContainerTypeList:
		return list.New(), nil
	case arena.ContainerTypeMovableList:
		return movablelist.New(), nil
	case arena.ContainerTypeText:
		return text.New(), nil
	case arena.ContainerTypeTree:
		return tree.New(), nil
	case arena.ContainerTypeCounter:
		return counter.New(), nil
	default:
		return nil, errors.Errorf("state: unknown container type %v (spec.md §3.2 unknown ops are archived, never materialized)", t)
	}
}

// ApplyOps routes each op to its container and advances frontiers to
// reflect having applied every op's ID. Ops must already be in the
// DAG-topological, (Lamport, PeerID) tie-broken order the OpLog/
// DiffCalculator establishes; ApplyOps does not reorder them.
func (s *DocState) ApplyOps(ops []oplog.Op) error {
	for _, op := range ops {
		c, err := s.Container(op.Container)
		if err != nil {
			return errors.Wrapf(err, "state: resolve container for op %s", op.ID)
		}
		if err := c.Apply(op); err != nil {
			return errors.Wrapf(err, "state: apply op %s", op.ID)
		}
		s.advanceFrontier(op.ID)
	}
	return nil
}

// advanceFrontier folds a newly-applied op's ID into the frontier set,
// dropping any existing tip it directly supersedes (same peer, dense).
func (s *DocState) advanceFrontier(id identity.ID) {
	next := make(identity.Frontiers, 0, len(s.frontiers)+1)
	for _, f := range s.frontiers {
		if f.Peer == id.Peer && f.Counter == id.Counter-1 {
			continue
		}
		next = append(next, f)
	}
	next = append(next, id)
	s.frontiers = identity.NewFrontiers(next...)
}

// Value returns the materialized value of every live (non-tombstoned)
// container, keyed by its ContainerID (spec.md §3.3 "Value View"), with
// nested containers (spec.md §3.3 "Containers inside containers")
// recursively resolved in place of their container.ChildRef placeholder.
func (s *DocState) Value() map[arena.ContainerID]any {
	out := make(map[arena.ContainerID]any, len(s.containers))
	for idx, c := range s.containers {
		id, ok := s.arena.Lookup(idx)
		if !ok {
			continue
		}
		out[id] = s.ResolveValue(c.Value())
	}
	return out
}

// ResolveValue walks a container's raw Value(), replacing every
// container.ChildRef it finds with that nested container's own resolved
// value. Used both by Value() and by the top-level Doc.ToJSON so a
// sub-container's contents appear inline rather than as an opaque index.
func (s *DocState) ResolveValue(v any) any {
	switch val := v.(type) {
	case container.ChildRef:
		c, err := s.Container(arena.ContainerIdx(val.Idx))
		if err != nil {
			return nil
		}
		return s.ResolveValue(c.Value())
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			out[k] = s.ResolveValue(v)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, v := range val {
			out[i] = s.ResolveValue(v)
		}
		return out
	default:
		return v
	}
}

// ResetAndApply rebuilds state from scratch: every container is
// discarded and recreated as ops is replayed from the start, and the
// frontier is then set to target directly rather than derived op by op.
// Used for a checkout whose target is not a descendant of the current
// state (a rewind or a divergent branch) — container algorithms have no
// general inverse-apply, so such a checkout cannot be patched
// incrementally the way ApplyDiff patches a forward-only move (spec.md
// §4.4).
func (s *DocState) ResetAndApply(ops []oplog.Op, target identity.Frontiers) error {
	s.containers = make(map[arena.ContainerIdx]container.Container)
	for _, op := range ops {
		c, err := s.Container(op.Container)
		if err != nil {
			return errors.Wrapf(err, "state: resolve container for op %s", op.ID)
		}
		if err := c.Apply(op); err != nil {
			return errors.Wrapf(err, "state: apply op %s", op.ID)
		}
	}
	s.frontiers = target.Clone()
	return nil
}

// ApplyDiff advances state by the forward op sequence a DiffCalculator
// produced, keyed by container, mirroring spec.md §4.4's "Checkout:
// DiffCalculator.calc_diff -> state.apply_diff -> current := target".
// Takes the raw per-container op slices directly rather than the
// diff package's Diff type, so state does not need to import diff.
func (s *DocState) ApplyDiff(opsByContainer map[arena.ContainerIdx][]oplog.Op) error {
	for idx, ops := range opsByContainer {
		c, err := s.Container(idx)
		if err != nil {
			return err
		}
		for _, op := range ops {
			if err := c.Apply(op); err != nil {
				return errors.Wrapf(err, "state: apply diff op %s", op.ID)
			}
			s.advanceFrontier(op.ID)
		}
	}
	return nil
}

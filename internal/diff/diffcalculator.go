package diff

import (
	"github.com/loro-go/loro/internal/arena"
	"github.com/loro-go/loro/internal/identity"
	"github.com/loro-go/loro/internal/oplog"
)

// logSource is the subset of oplog.OpLog the calculator needs, kept as an
// interface so tests can stub it without constructing a full OpLog.
type logSource interface {
	Lca(a, b identity.Frontiers) identity.Frontiers
	Ancestors(from identity.Frontiers) map[identity.ID]bool
	GetChangeAt(id identity.ID) (*oplog.Change, bool)
}

// Calculator implements spec.md §4.3's calc_diff contract.
//
// Simplification (recorded in DESIGN.md): container algorithms expose no
// general inverse-apply, so there is no way to patch a materialized state
// back to an ancestor frontier incrementally. CalcDiff therefore only
// ever returns a pure forward op sequence; IsAncestor/AncestorOps let the
// caller (Doc.Checkout) detect when `from` is not itself an ancestor of
// `to` and fall back to rebuilding state from scratch instead of trying
// to patch it, which keeps the common collaborative-editing path (import
// advances the frontier strictly forward) O(ops since lca) while a
// divergent or backward checkout still recomputes correctly.
type Calculator struct {
	log logSource
}

// New creates a Calculator bound to an OpLog-like source.
func New(log logSource) *Calculator {
	return &Calculator{log: log}
}

// CalcDiff computes, for each touched container, the forward op sequence
// that must be applied to move live state from `from` to `to`.
// spec.md §4.3: "Emission is in DAG topological order; within one causal
// step order by (Lamport, PeerID)."
func (c *Calculator) CalcDiff(from, to identity.Frontiers) map[arena.ContainerIdx]Diff {
	lca := c.log.Lca(from, to)

	redoIDs := c.log.Ancestors(to)
	baseIDs := c.log.Ancestors(lca)
	for id := range baseIDs {
		delete(redoIDs, id)
	}

	ordered := orderByChange(c.log, redoIDs)

	byContainer := make(map[arena.ContainerIdx][]oplog.Op)
	for _, op := range ordered {
		byContainer[op.Container] = append(byContainer[op.Container], op)
	}

	out := make(map[arena.ContainerIdx]Diff, len(byContainer))
	for idx, ops := range byContainer {
		out[idx] = Diff{RawOps: ops}
	}
	return out
}

// IsAncestor reports whether every op in from is also in to's ancestry —
// i.e. state already reflecting from can be advanced to to purely by
// applying CalcDiff's forward ops, with nothing to undo first. Ancestors(lca)
// is always a subset of Ancestors(from) by definition of lca, so the two
// sets are equal (from is itself the lca) exactly when they have the same
// size.
func (c *Calculator) IsAncestor(from, to identity.Frontiers) bool {
	lca := c.log.Lca(from, to)
	return len(c.log.Ancestors(from)) == len(c.log.Ancestors(lca))
}

// AncestorOps returns every op in to's causal ancestry, in the same
// DAG-topological, (Lamport, PeerID) tie-broken order CalcDiff emits,
// suitable for rebuilding a DocState from scratch when checking out to a
// frontier that is not a descendant of the current state.
func (c *Calculator) AncestorOps(to identity.Frontiers) []oplog.Op {
	return orderByChange(c.log, c.log.Ancestors(to))
}

// orderByChange returns every op whose ID is in ids, sorted by ascending
// (Lamport, PeerID). Lamport grows along every dependency edge, so this
// order is also a DAG-topological one, with PeerID breaking ties between
// ops that share no causal order — spec.md §4.3's emission order.
func orderByChange(log logSource, ids map[identity.ID]bool) []oplog.Op {
	type keyed struct {
		op  oplog.Op
		idx identity.IdLp
	}
	var out []keyed
	for id := range ids {
		ch, found := log.GetChangeAt(id)
		if !found {
			continue
		}
		op, ok := ch.OpAt(id.Counter)
		if !ok {
			continue
		}
		out = append(out, keyed{op: op, idx: identity.IdLp{ID: id, Lamport: op.Lamport}})
	}
	// Stable sort by (Lamport, PeerID) ascending so the forward replay is
	// deterministic across replicas that hold the same op set, regardless
	// of local discovery order.
	for i := 1; i < len(out); i++ {
		j := i
		for j > 0 && out[j-1].idx.Greater(out[j].idx) {
			out[j-1], out[j] = out[j], out[j-1]
			j--
		}
	}
	result := make([]oplog.Op, len(out))
	for i, k := range out {
		result[i] = k.op
	}
	return result
}

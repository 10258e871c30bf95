package oplog

import (
	"sync"

	"github.com/RoaringBitmap/roaring"
	"github.com/google/btree"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/loro-go/loro/internal/identity"
)

// pendingItem orders buffered changes by their starting ID in a btree
// (AKJUS-bsc-erigon idiom); that btree backs PendingCount. The re-checks
// after a new change arrives go through pendingByMissing, keyed by the
// missing ID. Grounded on the teacher's RGA.pendingOrphans map[ID][]Node,
// generalized from per-node orphan buffering to per-change dependency
// buffering.
type pendingItem struct {
	change *Change
}

func pendingLess(a, b pendingItem) bool {
	return a.change.ID.Less(b.change.ID)
}

// OpLog is the append-only causal DAG of Changes (spec.md §2, §4.1).
type OpLog struct {
	mu sync.RWMutex

	log *zap.SugaredLogger

	// changesByPeer[peer] is kept sorted by starting counter; lookups by
	// ID binary-search this slice.
	changesByPeer map[identity.PeerID][]*Change

	vv        identity.VersionVector
	frontiers identity.Frontiers

	// lamportByID caches the Lamport assigned to each ID, so DAG/diff
	// queries don't need to re-walk a change to recover it.
	lamportByID map[identity.ID]identity.Lamport

	// seenCounters gives O(1) "have I already integrated counter c from
	// peer p" checks independent of vv, used to make reimporting an
	// already-seen change a no-op cheaply (spec.md §8 property 5).
	seenCounters map[identity.PeerID]*roaring.Bitmap

	// pending holds changes whose deps are not yet all satisfied, keyed by
	// the ID they are missing, plus an ordered index for deterministic
	// re-processing.
	pendingByMissing map[identity.ID][]*Change
	pendingOrdered   *btree.BTreeG[pendingItem]
}

// New creates an empty OpLog.
func New(log *zap.SugaredLogger) *OpLog {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &OpLog{
		log:              log,
		changesByPeer:    make(map[identity.PeerID][]*Change),
		vv:               identity.NewVersionVector(),
		frontiers:        identity.Frontiers{},
		lamportByID:      make(map[identity.ID]identity.Lamport),
		seenCounters:     make(map[identity.PeerID]*roaring.Bitmap),
		pendingByMissing: make(map[identity.ID][]*Change),
		pendingOrdered:   btree.NewG(32, pendingLess),
	}
}

// VV returns the current version vector. O(1).
func (l *OpLog) VV() identity.VersionVector {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.vv.Clone()
}

// Frontiers returns the current frontier set. O(1).
func (l *OpLog) Frontiers() identity.Frontiers {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.frontiers.Clone()
}

func (l *OpLog) hasSeen(peer identity.PeerID, counter identity.Counter) bool {
	bm, ok := l.seenCounters[peer]
	if !ok {
		return false
	}
	return bm.Contains(uint32(counter))
}

func (l *OpLog) markSeen(span identity.IdSpan) {
	bm, ok := l.seenCounters[span.Peer]
	if !ok {
		bm = roaring.New()
		l.seenCounters[span.Peer] = bm
	}
	bm.AddRange(uint64(span.From), uint64(span.To))
}

// AppendLocal assigns consecutive counters to this peer, computes the
// change's Lamport from current Frontiers, takes the current Frontiers as
// Deps, and pushes the change (spec.md §4.1 "append_local").
func (l *OpLog) AppendLocal(peer identity.PeerID, ops []Op, commitMsg string, timestamp int64) (*Change, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	startCounter := l.vv.Get(peer)
	lamport := l.maxDepLamportLocked(l.frontiers) + 1

	for i := range ops {
		ops[i].ID = identity.ID{Peer: peer, Counter: startCounter + identity.Counter(i)}
	}

	change := &Change{
		ID:        identity.ID{Peer: peer, Counter: startCounter},
		Lamport:   lamport,
		Timestamp: timestamp,
		Deps:      l.frontiers.Clone(),
		Ops:       ops,
		CommitMsg: commitMsg,
	}
	if err := l.integrateLocked(change); err != nil {
		return nil, errors.Wrap(err, "oplog: append_local")
	}
	return change, nil
}

func (l *OpLog) maxDepLamportLocked(deps identity.Frontiers) identity.Lamport {
	var max identity.Lamport
	for _, d := range deps {
		if lp, ok := l.lamportByID[d]; ok {
			if lp > max {
				max = lp
			}
		}
	}
	return max
}

// depsSatisfiedLocked reports whether every dep of change is already
// integrated, returning the missing ones otherwise.
func (l *OpLog) depsSatisfiedLocked(deps identity.Frontiers) (missing []identity.ID) {
	for _, d := range deps {
		if !l.vv.Includes(d) {
			missing = append(missing, d)
		}
	}
	return missing
}

// integrateLocked appends change to the log proper: must be called with
// deps already verified satisfied (or for a just-authored local change,
// where deps are by construction the prior frontier).
func (l *OpLog) integrateLocked(change *Change) error {
	span := change.Span()
	if l.vv.Get(span.Peer) != span.From {
		return errors.Wrapf(ErrInvariant, "change %s: counters not dense (have %d, want %d)",
			change.ID, l.vv.Get(span.Peer), span.From)
	}

	l.changesByPeer[span.Peer] = append(l.changesByPeer[span.Peer], change)

	for i := range change.Ops {
		id := identity.ID{Peer: span.Peer, Counter: span.From + identity.Counter(i)}
		lp := change.LamportAt(id.Counter)
		l.lamportByID[id] = lp
		change.Ops[i].Lamport = lp
	}

	l.vv.SetEnd(span.Peer, span.To)
	l.markSeen(span)

	// Advance frontiers: drop any tip that is now a dep of the new change,
	// add the new change's end ID.
	next := identity.Frontiers{}
	for _, f := range l.frontiers {
		if !change.Deps.Contains(f) {
			next = append(next, f)
		}
	}
	next = append(next, change.End().Inc(-1))
	l.frontiers = identity.NewFrontiers(next...)

	return nil
}

// Import integrates a batch of remote changes, buffering any whose deps
// are not yet satisfied (spec.md §4.1 "import"). Changes may arrive out of
// order; when a missing dep later arrives, dependents are re-checked
// transitively. Returns the first fatal (ErrCorrupt) error encountered, if
// any; already-integrated changes are skipped idempotently.
func (l *OpLog) Import(changes []*Change) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, c := range changes {
		if err := l.validateShapeLocked(c); err != nil {
			return errors.Wrapf(ErrCorrupt, "change %s: %v", c.ID, err)
		}
	}

	queue := append([]*Change(nil), changes...)
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		l.tryIntegrateLocked(c, &queue)
	}
	return nil
}

func (l *OpLog) validateShapeLocked(c *Change) error {
	if len(c.Ops) == 0 {
		return errors.New("empty change")
	}
	for i, op := range c.Ops {
		want := c.ID.Counter + identity.Counter(i)
		if op.ID.Peer != c.ID.Peer || op.ID.Counter != want {
			return errors.Errorf("non-dense op counters at index %d", i)
		}
	}
	return nil
}

func (l *OpLog) tryIntegrateLocked(c *Change, queue *[]*Change) {
	if l.hasSeen(c.ID.Peer, c.ID.Counter) {
		return // already integrated: idempotent reimport (spec.md §8.5)
	}
	if l.vv.Get(c.ID.Peer) != c.ID.Counter {
		// hasSeen already returned for any start counter below vv, so
		// this peer's earlier counters are missing: defer until they
		// arrive.
		l.deferLocked(c)
		return
	}
	missing := l.depsSatisfiedLocked(c.Deps)
	if len(missing) > 0 {
		l.log.Debugw("oplog: buffering change pending deps", "change", c.ID.String(), "missing", len(missing))
		for _, m := range missing {
			l.pendingByMissing[m] = append(l.pendingByMissing[m], c)
		}
		l.pendingOrdered.ReplaceOrInsert(pendingItem{change: c})
		return
	}

	if err := l.integrateLocked(c); err != nil {
		l.log.Errorw("oplog: integrate failed", "change", c.ID.String(), "error", err)
		return
	}

	// Re-check anything waiting on this change's IDs.
	for i := 0; i < len(c.Ops); i++ {
		id := identity.ID{Peer: c.ID.Peer, Counter: c.ID.Counter + identity.Counter(i)}
		if waiters, ok := l.pendingByMissing[id]; ok {
			delete(l.pendingByMissing, id)
			for _, w := range waiters {
				l.pendingOrdered.Delete(pendingItem{change: w})
				*queue = append(*queue, w)
			}
		}
	}
}

func (l *OpLog) deferLocked(c *Change) {
	// The change's own predecessor on its peer's stream hasn't arrived
	// yet; key the defer on a synthetic "previous counter" ID so it is
	// retried once that counter is integrated.
	prev := identity.ID{Peer: c.ID.Peer, Counter: c.ID.Counter - 1}
	l.pendingByMissing[prev] = append(l.pendingByMissing[prev], c)
	l.pendingOrdered.ReplaceOrInsert(pendingItem{change: c})
}

// GetChangeAt returns the change containing id, if any.
func (l *OpLog) GetChangeAt(id identity.ID) (*Change, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.getChangeAtLocked(id)
}

func (l *OpLog) getChangeAtLocked(id identity.ID) (*Change, bool) {
	changes := l.changesByPeer[id.Peer]
	// changes is append-ordered and therefore counter-ordered; binary
	// search for the change whose span contains id.
	lo, hi := 0, len(changes)
	for lo < hi {
		mid := (lo + hi) / 2
		if changes[mid].Span().To <= id.Counter {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo >= len(changes) {
		return nil, false
	}
	c := changes[lo]
	if c.Span().Contains(id) {
		return c, true
	}
	return nil, false
}

// IterOpsInSpan returns every Op covered by span, in counter order.
func (l *OpLog) IterOpsInSpan(span identity.IdSpan) []Op {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Op
	for c := span.From; c < span.To; {
		change, ok := l.getChangeAtLocked(identity.ID{Peer: span.Peer, Counter: c})
		if !ok {
			break
		}
		for _, op := range change.Ops {
			if span.ContainsCounter(op.ID.Counter) {
				out = append(out, op)
			}
		}
		c = change.Span().To
	}
	return out
}

// IsAncestor reports whether a happens-before (or equals) b.
func (l *OpLog) IsAncestor(a, b identity.ID) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if a == b {
		return true
	}
	return l.isAncestorLocked(a, identity.Frontiers{b})
}

func (l *OpLog) isAncestorLocked(target identity.ID, from identity.Frontiers) bool {
	visited := make(map[identity.ID]bool)
	stack := append([]identity.ID(nil), from...)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[id] {
			continue
		}
		visited[id] = true
		if id.Peer == target.Peer && target.Counter <= id.Counter {
			c, ok := l.getChangeAtLocked(id)
			if ok && c.ID.Counter <= target.Counter {
				return true
			}
		}
		c, ok := l.getChangeAtLocked(id)
		if !ok {
			continue
		}
		if c.ID.Counter < id.Counter {
			// Walk back within the same change first (dense predecessor).
			stack = append(stack, id.Inc(-1))
			continue
		}
		for _, d := range c.Deps {
			stack = append(stack, d)
		}
	}
	return false
}

// Ancestors returns every ID reachable (inclusive) from the given
// frontier, walking the DAG backward. Used by LCA and diff computation.
func (l *OpLog) Ancestors(from identity.Frontiers) map[identity.ID]bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.ancestorsLocked(from)
}

func (l *OpLog) ancestorsLocked(from identity.Frontiers) map[identity.ID]bool {
	visited := make(map[identity.ID]bool)
	stack := append([]identity.ID(nil), from...)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[id] {
			continue
		}
		visited[id] = true
		if id.Counter > 0 {
			stack = append(stack, id.Inc(-1))
		}
		c, ok := l.getChangeAtLocked(id)
		if ok && c.ID == id {
			for _, d := range c.Deps {
				stack = append(stack, d)
			}
		}
	}
	return visited
}

// Lca computes the greatest lower bound of two frontiers: the maximal set
// of IDs that are ancestors of both (spec.md §3.4).
func (l *OpLog) Lca(a, b identity.Frontiers) identity.Frontiers {
	ancA := l.Ancestors(a)
	ancB := l.Ancestors(b)

	common := make(map[identity.ID]bool)
	for id := range ancA {
		if ancB[id] {
			common[id] = true
		}
	}
	// Reduce to the maximal antichain: an ID is a tip of the LCA iff none
	// of its causal successors within `common` exist. We approximate the
	// minimal-but-sufficient case used by DiffCalculator: keep IDs from
	// `common` that are not a dep-of-predecessor of another ID in common
	// reachable purely by the dense same-peer chain or explicit deps.
	isDominated := make(map[identity.ID]bool)
	for id := range common {
		c, ok := l.GetChangeAt(id)
		if !ok {
			continue
		}
		for _, d := range c.Deps {
			if common[d] {
				isDominated[d] = true
			}
		}
		if id.Counter > c.ID.Counter {
			isDominated[id.Inc(-1)] = true
		}
	}
	var tips identity.Frontiers
	for id := range common {
		if !isDominated[id] {
			tips = append(tips, id)
		}
	}
	return identity.NewFrontiers(tips...)
}

// FindCommonAncestor computes the LCA across a set of frontiers (used by
// checkout/fork when reconciling more than two versions).
func (l *OpLog) FindCommonAncestor(frontiersSet []identity.Frontiers) identity.Frontiers {
	if len(frontiersSet) == 0 {
		return identity.Frontiers{}
	}
	acc := frontiersSet[0]
	for _, f := range frontiersSet[1:] {
		acc = l.Lca(acc, f)
	}
	return acc
}

// ExportFrom returns every change covering counters the peer at peerVV has
// not yet observed (spec.md §4.5 "export_from").
func (l *OpLog) ExportFrom(peerVV identity.VersionVector) []*Change {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []*Change
	for _, span := range l.vv.Sub(peerVV) {
		for c := span.From; c < span.To; {
			change, ok := l.getChangeAtLocked(identity.ID{Peer: span.Peer, Counter: c})
			if !ok {
				break
			}
			out = append(out, change)
			c = change.Span().To
		}
	}
	return out
}

// PendingCount reports how many changes are currently buffered awaiting
// dependencies — exposed for tests/diagnostics only.
func (l *OpLog) PendingCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.pendingOrdered.Len()
}

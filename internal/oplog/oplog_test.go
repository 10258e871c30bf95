package oplog

import (
	"testing"

	"github.com/loro-go/loro/internal/identity"
)

func mkOp(peer identity.PeerID, counter identity.Counter) Op {
	return Op{ID: identity.ID{Peer: peer, Counter: counter}, Content: OpContent{Kind: OpKindCounterAdd, CounterDelta: 1}}
}

func TestAppendLocalAdvancesVVAndFrontiers(t *testing.T) {
	l := New(nil)
	c1, err := l.AppendLocal(1, []Op{mkOp(1, 0)}, "", 0)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if l.VV().Get(1) != 1 {
		t.Fatalf("expected vv[1]=1, got %d", l.VV().Get(1))
	}
	if !l.Frontiers().Equal(identity.NewFrontiers(c1.End().Inc(-1))) {
		t.Fatalf("unexpected frontiers: %s", l.Frontiers())
	}
}

func TestImportBuffersMissingDepThenIntegrates(t *testing.T) {
	lA := New(nil)
	c1, _ := lA.AppendLocal(1, []Op{mkOp(1, 0)}, "", 0)
	c2, _ := lA.AppendLocal(1, []Op{mkOp(1, 1)}, "", 0)

	lB := New(nil)
	// Deliver out of order: c2 before c1.
	if err := lB.Import([]*Change{c2}); err != nil {
		t.Fatalf("import c2: %v", err)
	}
	if lB.PendingCount() != 1 {
		t.Fatalf("expected c2 buffered, pending=%d", lB.PendingCount())
	}
	if err := lB.Import([]*Change{c1}); err != nil {
		t.Fatalf("import c1: %v", err)
	}
	if lB.PendingCount() != 0 {
		t.Fatalf("expected pending drained, got %d", lB.PendingCount())
	}
	if lB.VV().Get(1) != 2 {
		t.Fatalf("expected vv[1]=2 after both integrated, got %d", lB.VV().Get(1))
	}
}

func TestImportIsIdempotent(t *testing.T) {
	lA := New(nil)
	c1, _ := lA.AppendLocal(1, []Op{mkOp(1, 0)}, "", 0)

	lB := New(nil)
	_ = lB.Import([]*Change{c1})
	vvBefore := lB.VV()
	_ = lB.Import([]*Change{c1})
	if !lB.VV().Equal(vvBefore) {
		t.Fatalf("reimport changed state: before=%v after=%v", vvBefore, lB.VV())
	}
}

func TestLcaOfLinearHistoryIsEarlier(t *testing.T) {
	l := New(nil)
	c1, _ := l.AppendLocal(1, []Op{mkOp(1, 0)}, "", 0)
	c2, _ := l.AppendLocal(1, []Op{mkOp(1, 1)}, "", 0)

	lca := l.Lca(identity.NewFrontiers(c1.End().Inc(-1)), identity.NewFrontiers(c2.End().Inc(-1)))
	if !lca.Equal(identity.NewFrontiers(c1.End().Inc(-1))) {
		t.Fatalf("expected lca=c1 end, got %s", lca)
	}
}

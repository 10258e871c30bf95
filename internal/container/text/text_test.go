package text

import (
	"testing"

	"github.com/loro-go/loro/internal/identity"
	"github.com/loro-go/loro/internal/oplog"
)

func insertOp(peer identity.PeerID, counter identity.Counter, lamport identity.Lamport, pos int, s string) oplog.Op {
	return oplog.Op{
		ID:      identity.ID{Peer: peer, Counter: counter},
		Lamport: lamport,
		Content: oplog.OpContent{Kind: oplog.OpKindTextInsert, TextPos: pos, TextValue: s},
	}
}

// TestTextConcurrentInsertTieBreak mirrors spec.md §8's text convergence
// scenario: site A inserts "hello" at 0; site B concurrently inserts
// "world" at 0. After sync both observe the same string, determined by
// the (Lamport desc, PeerID desc) tie-break.
func TestTextConcurrentInsertTieBreak(t *testing.T) {
	opA := insertOp(10, 0, 1, 0, "hello")
	opB := insertOp(20, 0, 1, 0, "world")

	rep1 := New()
	_ = rep1.Apply(opA)
	_ = rep1.Apply(opB)

	rep2 := New()
	_ = rep2.Apply(opB)
	_ = rep2.Apply(opA)

	if rep1.String() != rep2.String() {
		t.Fatalf("divergence: rep1=%q rep2=%q", rep1.String(), rep2.String())
	}
	// Peer 20 (bob) > peer 10 (alice) on the Lamport tie, so "world" wins
	// the insert-at-0 race and sorts first.
	if rep1.String() != "worldhello" {
		t.Fatalf("got %q, want worldhello", rep1.String())
	}
}

func TestTextDelete(t *testing.T) {
	tx := New()
	_ = tx.Apply(insertOp(1, 0, 1, 0, "hello"))
	_ = tx.Apply(oplog.Op{
		ID:      identity.ID{Peer: 1, Counter: 5},
		Lamport: 2,
		Content: oplog.OpContent{Kind: oplog.OpKindTextDelete, TextPos: 1, TextDelLen: 3},
	})
	if tx.String() != "ho" {
		t.Fatalf("got %q, want \"ho\"", tx.String())
	}
}

func TestMarkRequiresPairedMarkEnd(t *testing.T) {
	tx := New()
	_ = tx.Apply(insertOp(1, 0, 1, 0, "hello"))
	markID := identity.ID{Peer: 1, Counter: 5}
	_ = tx.Apply(oplog.Op{
		ID:      markID,
		Lamport: 2,
		Content: oplog.OpContent{Kind: oplog.OpKindTextMark, TextPos: 0, StyleKey: "bold", StyleValue: true},
	})
	if attrs := tx.AttributesAt(0); attrs["bold"] != nil {
		t.Fatalf("expected no style before MarkEnd, got %v", attrs)
	}
	_ = tx.Apply(oplog.Op{
		ID:      identity.ID{Peer: 1, Counter: 6},
		Lamport: 3,
		Content: oplog.OpContent{Kind: oplog.OpKindTextMarkEnd, TextPos: 5, MarkStartID: markID},
	})
	if attrs := tx.AttributesAt(0); attrs["bold"] != true {
		t.Fatalf("expected bold=true after MarkEnd, got %v", attrs)
	}
}

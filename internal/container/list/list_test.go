package list

import (
	"reflect"
	"testing"

	"github.com/loro-go/loro/internal/identity"
	"github.com/loro-go/loro/internal/oplog"
)

func insertOp(peer identity.PeerID, counter identity.Counter, lamport identity.Lamport, idx int, vals ...any) oplog.Op {
	return oplog.Op{
		ID:      identity.ID{Peer: peer, Counter: counter},
		Lamport: lamport,
		Content: oplog.OpContent{Kind: oplog.OpKindListInsert, ListIndex: idx, ListValues: vals},
	}
}

func TestListSequentialInsert(t *testing.T) {
	l := New()
	_ = l.Apply(insertOp(1, 0, 1, 0, "a"))
	_ = l.Apply(insertOp(1, 1, 2, 1, "b"))
	got := l.Value().([]any)
	want := []any{"a", "b"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestListConcurrentInsertAtSamePositionConverges(t *testing.T) {
	a := New()
	_ = a.Apply(insertOp(1, 0, 1, 0, "h"))

	// Two replicas both insert at index 1 (after "h"), concurrently.
	opAlice := insertOp(10, 1, 2, 1, "x")
	opBob := insertOp(20, 1, 2, 1, "y")

	rep1 := New()
	_ = rep1.Apply(insertOp(1, 0, 1, 0, "h"))
	_ = rep1.Apply(opAlice)
	_ = rep1.Apply(opBob)

	rep2 := New()
	_ = rep2.Apply(insertOp(1, 0, 1, 0, "h"))
	_ = rep2.Apply(opBob)
	_ = rep2.Apply(opAlice)

	if !reflect.DeepEqual(rep1.Value(), rep2.Value()) {
		t.Fatalf("divergence: rep1=%v rep2=%v", rep1.Value(), rep2.Value())
	}
	// Higher peer (20=bob) wins the Lamport tie, so bob's "y" sorts first.
	want := []any{"h", "y", "x"}
	if !reflect.DeepEqual(rep1.Value(), want) {
		t.Fatalf("got %v want %v", rep1.Value(), want)
	}
}

func TestListDeleteTombstones(t *testing.T) {
	l := New()
	_ = l.Apply(insertOp(1, 0, 1, 0, "a", "b", "c"))
	_ = l.Apply(oplog.Op{
		ID:      identity.ID{Peer: 1, Counter: 3},
		Lamport: 4,
		Content: oplog.OpContent{Kind: oplog.OpKindListDelete, ListIndex: 1, ListDelLen: 1},
	})
	got := l.Value().([]any)
	want := []any{"a", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestDeletedRunReportsNeighborRelativePosition(t *testing.T) {
	l := New()
	_ = l.Apply(insertOp(1, 0, 1, 0, "a", "b", "c"))
	delOp := identity.ID{Peer: 1, Counter: 3}
	_ = l.Apply(oplog.Op{
		ID: delOp, Lamport: 4,
		Content: oplog.OpContent{Kind: oplog.OpKindListDelete, ListIndex: 1, ListDelLen: 1},
	})

	idx, values, ok := l.DeletedRun(delOp)
	if !ok {
		t.Fatalf("expected DeletedRun to find the deleted run")
	}
	if idx != 1 || !reflect.DeepEqual(values, []any{"b"}) {
		t.Fatalf("got idx=%d values=%v", idx, values)
	}

	if _, _, ok := l.DeletedRun(identity.ID{Peer: 99, Counter: 0}); ok {
		t.Fatalf("expected DeletedRun to report not-found for an unrelated op")
	}
}

func TestVisibleIndexOfTracksLiveElements(t *testing.T) {
	l := New()
	_ = l.Apply(insertOp(1, 0, 1, 0, "a", "b", "c"))

	bID := identity.ID{Peer: 1, Counter: 1}
	idx, ok := l.VisibleIndexOf(bID)
	if !ok || idx != 1 {
		t.Fatalf("expected b at visible index 1, got %d, ok=%v", idx, ok)
	}

	_ = l.Apply(oplog.Op{
		ID: identity.ID{Peer: 1, Counter: 3}, Lamport: 4,
		Content: oplog.OpContent{Kind: oplog.OpKindListDelete, ListIndex: 0, ListDelLen: 1},
	})
	idx, ok = l.VisibleIndexOf(bID)
	if !ok || idx != 0 {
		t.Fatalf("expected b at visible index 0 after 'a' deleted, got %d, ok=%v", idx, ok)
	}

	if _, ok := l.VisibleIndexOf(identity.ID{Peer: 1, Counter: 0}); ok {
		t.Fatalf("expected a deleted element to report not-live")
	}
}

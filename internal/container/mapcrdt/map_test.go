package mapcrdt

import (
	"testing"

	"github.com/loro-go/loro/internal/identity"
	"github.com/loro-go/loro/internal/oplog"
)

func write(peer identity.PeerID, counter identity.Counter, lamport identity.Lamport, key string, val any) oplog.Op {
	return oplog.Op{
		ID:      identity.ID{Peer: peer, Counter: counter},
		Lamport: lamport,
		Content: oplog.OpContent{Kind: oplog.OpKindMapInsert, MapKey: key, MapValue: val},
	}
}

// TestMapLWWHigherPeerWinsOnLamportTie mirrors spec.md §8's "Map LWW"
// scenario: A writes k=1 then B (without seeing A) writes k=2; both
// Lamports are 1; higher PeerID wins.
func TestMapLWWHigherPeerWinsOnLamportTie(t *testing.T) {
	m := New()
	_ = m.Apply(write(1, 0, 1, "k", 1))
	_ = m.Apply(write(2, 0, 1, "k", 2))

	v, ok := m.Get("k")
	if !ok || v.(int) != 2 {
		t.Fatalf("expected higher-peer write (2) to win, got %v ok=%v", v, ok)
	}
}

func TestMapApplyOrderIndependent(t *testing.T) {
	a := New()
	_ = a.Apply(write(2, 0, 1, "k", 2))
	_ = a.Apply(write(1, 0, 1, "k", 1))

	b := New()
	_ = b.Apply(write(1, 0, 1, "k", 1))
	_ = b.Apply(write(2, 0, 1, "k", 2))

	va, _ := a.Get("k")
	vb, _ := b.Get("k")
	if va != vb {
		t.Fatalf("convergence failure: a=%v b=%v", va, vb)
	}
}

func TestMapDeleteIsTombstoneWrite(t *testing.T) {
	m := New()
	_ = m.Apply(write(1, 0, 1, "k", 1))
	del := oplog.Op{
		ID:      identity.ID{Peer: 1, Counter: 1},
		Lamport: 2,
		Content: oplog.OpContent{Kind: oplog.OpKindMapDelete, MapKey: "k", MapDeleted: true},
	}
	_ = m.Apply(del)
	if _, ok := m.Get("k"); ok {
		t.Fatalf("expected k to be deleted")
	}
	if _, present := m.Value().(map[string]any)["k"]; present {
		t.Fatalf("expected tombstoned key excluded from Value()")
	}
}

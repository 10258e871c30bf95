package identity

import "testing"

func TestFrontiersEqualIgnoresOrder(t *testing.T) {
	a := NewFrontiers(ID{1, 3}, ID{2, 1})
	b := NewFrontiers(ID{2, 1}, ID{1, 3})
	if !a.Equal(b) {
		t.Fatalf("expected equal frontiers, got %s vs %s", a, b)
	}
}

func TestVersionVectorMergeIsMax(t *testing.T) {
	a := VersionVector{1: 3, 2: 1}
	b := VersionVector{1: 1, 2: 5, 3: 2}
	m := a.Merge(b)
	if m.Get(1) != 3 || m.Get(2) != 5 || m.Get(3) != 2 {
		t.Fatalf("unexpected merge result: %+v", m)
	}
}

func TestVersionVectorSub(t *testing.T) {
	local := VersionVector{1: 5, 2: 2}
	remote := VersionVector{1: 2}
	spans := local.Sub(remote)
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
}

func TestIdLpGreaterTieBreak(t *testing.T) {
	a := IdLp{ID: ID{Peer: 1, Counter: 0}, Lamport: 5}
	b := IdLp{ID: ID{Peer: 2, Counter: 0}, Lamport: 5}
	if !b.Greater(a) {
		t.Fatalf("expected higher peer to win Lamport tie")
	}
}

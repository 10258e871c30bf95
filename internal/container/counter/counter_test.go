package counter

import (
	"testing"

	"github.com/loro-go/loro/internal/identity"
	"github.com/loro-go/loro/internal/oplog"
)

func TestCounterSumsDeltas(t *testing.T) {
	c := New()
	ops := []oplog.Op{
		{ID: identity.ID{Peer: 1, Counter: 0}, Content: oplog.OpContent{Kind: oplog.OpKindCounterAdd, CounterDelta: 3}},
		{ID: identity.ID{Peer: 2, Counter: 0}, Content: oplog.OpContent{Kind: oplog.OpKindCounterAdd, CounterDelta: -1}},
	}
	for _, op := range ops {
		if err := c.Apply(op); err != nil {
			t.Fatalf("apply: %v", err)
		}
	}
	if c.Value().(float64) != 2 {
		t.Fatalf("expected 2, got %v", c.Value())
	}
}

func TestCounterApplyIsIdempotent(t *testing.T) {
	c := New()
	op := oplog.Op{ID: identity.ID{Peer: 1, Counter: 0}, Content: oplog.OpContent{Kind: oplog.OpKindCounterAdd, CounterDelta: 5}}
	_ = c.Apply(op)
	_ = c.Apply(op)
	if c.Value().(float64) != 5 {
		t.Fatalf("expected idempotent apply to sum to 5, got %v", c.Value())
	}
}

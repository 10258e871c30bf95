package codec

import (
	"testing"

	"github.com/loro-go/loro/internal/arena"
	"github.com/loro-go/loro/internal/identity"
	"github.com/loro-go/loro/internal/oplog"
)

func TestEncodeDecodeUpdateRoundTrips(t *testing.T) {
	a := arena.New()
	counterIdx := a.Intern(arena.RootID("counter", arena.ContainerTypeCounter))
	textIdx := a.Intern(arena.RootID("text", arena.ContainerTypeText))

	log := oplog.New(nil)
	c1, err := log.AppendLocal(1, []oplog.Op{
		{Content: oplog.OpContent{Kind: oplog.OpKindCounterAdd, CounterDelta: 3.5}, Container: counterIdx},
	}, "first", 100)
	if err != nil {
		t.Fatalf("AppendLocal: %v", err)
	}
	c2, err := log.AppendLocal(1, []oplog.Op{
		{Content: oplog.OpContent{Kind: oplog.OpKindTextInsert, TextPos: 0, TextValue: "hi"}, Container: textIdx},
	}, "second", 101)
	if err != nil {
		t.Fatalf("AppendLocal: %v", err)
	}

	data, err := EncodeUpdate(a.AllContainers(), []*oplog.Change{c1, c2})
	if err != nil {
		t.Fatalf("EncodeUpdate: %v", err)
	}

	// Decode into a fresh, independently-ordered arena — a different peer
	// never shares the sender's interning order, so this exercises the
	// remapping the container table exists for.
	b := arena.New()
	_ = b.Intern(arena.RootID("unrelated", arena.ContainerTypeMap))
	decoded, err := DecodeUpdate(data, b)
	if err != nil {
		t.Fatalf("DecodeUpdate: %v", err)
	}
	if len(decoded) != 2 {
		t.Fatalf("expected 2 changes, got %d", len(decoded))
	}
	if decoded[0].CommitMsg != "first" || decoded[1].CommitMsg != "second" {
		t.Fatalf("commit messages did not round-trip: %+v", decoded)
	}
	if decoded[0].Ops[0].Content.CounterDelta != 3.5 {
		t.Fatalf("counter delta did not round-trip: %+v", decoded[0].Ops[0].Content)
	}
	if decoded[1].Ops[0].Content.TextValue != "hi" {
		t.Fatalf("text value did not round-trip: %+v", decoded[1].Ops[0].Content)
	}
	if decoded[1].Ops[0].ID != (identity.ID{Peer: 1, Counter: 1}) {
		t.Fatalf("expected reconstructed op ID to use the second change's own counter base, got %v", decoded[1].Ops[0].ID)
	}

	// The decoded ops must route to b's own interning of "counter"/"text",
	// not to counterIdx/textIdx from the sender's arena.
	wantCounterIdx, ok := b.TryGet(arena.RootID("counter", arena.ContainerTypeCounter))
	if !ok || decoded[0].Ops[0].Container != wantCounterIdx {
		t.Fatalf("counter op routed to wrong container: got %v, want %v", decoded[0].Ops[0].Container, wantCounterIdx)
	}
	wantTextIdx, ok := b.TryGet(arena.RootID("text", arena.ContainerTypeText))
	if !ok || decoded[1].Ops[0].Container != wantTextIdx {
		t.Fatalf("text op routed to wrong container: got %v, want %v", decoded[1].Ops[0].Container, wantTextIdx)
	}
}

func TestDecodeUpdateRejectsBadMagic(t *testing.T) {
	if _, err := DecodeUpdate([]byte{0xFF, 0xFF, 0xFF}, arena.New()); err == nil {
		t.Fatalf("expected an error decoding garbage input")
	}
}

func TestEncodeDecodeFullSnapshotRoundTrips(t *testing.T) {
	a := arena.New()
	idx := a.Intern(arena.RootID("doc", arena.ContainerTypeCounter))
	_ = idx

	log := oplog.New(nil)
	_, _ = log.AppendLocal(1, []oplog.Op{
		{Content: oplog.OpContent{Kind: oplog.OpKindCounterAdd, CounterDelta: 9}, Container: idx},
	}, "", 0)

	data, err := EncodeSnapshot(a.AllContainers(), log.ExportFrom(identity.NewVersionVector()))
	if err != nil {
		t.Fatalf("EncodeSnapshot: %v", err)
	}

	b := arena.New()
	changes, shallow, err := DecodeSnapshot(data, b)
	if err != nil {
		t.Fatalf("DecodeSnapshot: %v", err)
	}
	if shallow {
		t.Fatalf("expected a full snapshot to decode as non-shallow")
	}
	wantIdx, ok := b.TryGet(arena.RootID("doc", arena.ContainerTypeCounter))
	if !ok {
		t.Fatalf("expected \"doc\" to have been interned into the decoding arena")
	}
	if len(changes) != 1 || changes[0].Ops[0].Content.CounterDelta != 9 {
		t.Fatalf("unexpected changes: %+v", changes)
	}
	if changes[0].Ops[0].Container != wantIdx {
		t.Fatalf("op routed to wrong container: got %v, want %v", changes[0].Ops[0].Container, wantIdx)
	}
}

func TestShallowSnapshotTrimsChangesAtOrBeforeFrontier(t *testing.T) {
	a := arena.New()
	idx := a.Intern(arena.RootID("counter", arena.ContainerTypeCounter))

	log := oplog.New(nil)
	c1, _ := log.AppendLocal(1, []oplog.Op{
		{Content: oplog.OpContent{Kind: oplog.OpKindCounterAdd, CounterDelta: 1}, Container: idx},
	}, "c1", 0)
	_, _ = log.AppendLocal(1, []oplog.Op{
		{Content: oplog.OpContent{Kind: oplog.OpKindCounterAdd, CounterDelta: 2}, Container: idx},
	}, "c2", 0)

	trim := identity.NewFrontiers(c1.End().Inc(-1))
	all := log.ExportFrom(identity.NewVersionVector())

	data, err := EncodeShallowSnapshot(a.AllContainers(), all, trim)
	if err != nil {
		t.Fatalf("EncodeShallowSnapshot: %v", err)
	}
	changes, shallow, err := DecodeSnapshot(data, arena.New())
	if err != nil {
		t.Fatalf("DecodeSnapshot: %v", err)
	}
	if !shallow {
		t.Fatalf("expected a shallow snapshot to decode as shallow")
	}
	if len(changes) != 1 || changes[0].CommitMsg != "c2" {
		t.Fatalf("expected only c2 to survive the trim, got %+v", changes)
	}
}

package txn

import (
	"testing"

	"github.com/loro-go/loro/internal/arena"
	"github.com/loro-go/loro/internal/oplog"
	"github.com/loro-go/loro/internal/state"
)

func TestCommitIntegratesIntoLogAndState(t *testing.T) {
	a := arena.New()
	idx := a.Intern(arena.RootID("counter", arena.ContainerTypeCounter))
	log := oplog.New(nil)
	st := state.New(a)

	tx := New(1, log, st, "", 0)
	if err := tx.Buffer(idx, oplog.OpContent{Kind: oplog.OpKindCounterAdd, CounterDelta: 4}); err != nil {
		t.Fatalf("Buffer: %v", err)
	}
	if err := tx.Buffer(idx, oplog.OpContent{Kind: oplog.OpKindCounterAdd, CounterDelta: 1}); err != nil {
		t.Fatalf("Buffer: %v", err)
	}

	change, err := tx.Commit()
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if change == nil || len(change.Ops) != 2 {
		t.Fatalf("expected a 2-op change, got %+v", change)
	}

	c, _ := st.Container(idx)
	if v := c.Value().(float64); v != 5 {
		t.Fatalf("expected state to reflect committed ops (sum=5), got %v", v)
	}
	if log.VV().Get(1) != 2 {
		t.Fatalf("expected oplog vv to advance by 2, got %d", log.VV().Get(1))
	}
}

func TestCommitTwiceErrors(t *testing.T) {
	a := arena.New()
	idx := a.Intern(arena.RootID("counter", arena.ContainerTypeCounter))
	log := oplog.New(nil)
	st := state.New(a)

	tx := New(1, log, st, "", 0)
	_ = tx.Buffer(idx, oplog.OpContent{Kind: oplog.OpKindCounterAdd, CounterDelta: 1})
	if _, err := tx.Commit(); err != nil {
		t.Fatalf("first Commit: %v", err)
	}
	if _, err := tx.Commit(); err != ErrAlreadyCommitted {
		t.Fatalf("expected ErrAlreadyCommitted, got %v", err)
	}
}

func TestEmptyTxnCommitIsNoop(t *testing.T) {
	a := arena.New()
	log := oplog.New(nil)
	st := state.New(a)

	tx := New(1, log, st, "", 0)
	change, err := tx.Commit()
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if change != nil {
		t.Fatalf("expected nil change for an empty txn, got %+v", change)
	}
	if !log.Frontiers().Equal(nil) {
		t.Fatalf("expected no frontier advance from an empty txn")
	}
}

func TestRollbackDiscardsBufferedOps(t *testing.T) {
	a := arena.New()
	idx := a.Intern(arena.RootID("counter", arena.ContainerTypeCounter))
	log := oplog.New(nil)
	st := state.New(a)

	tx := New(1, log, st, "", 0)
	_ = tx.Buffer(idx, oplog.OpContent{Kind: oplog.OpKindCounterAdd, CounterDelta: 100})
	tx.Rollback()

	change, err := tx.Commit()
	if err != ErrAlreadyCommitted || change != nil {
		t.Fatalf("expected Commit after Rollback to report already-committed, got change=%+v err=%v", change, err)
	}
	if log.VV().Get(1) != 0 {
		t.Fatalf("expected rolled-back txn to never reach the log")
	}
}

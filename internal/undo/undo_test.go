package undo

import (
	"testing"

	"github.com/loro-go/loro/internal/arena"
	"github.com/loro-go/loro/internal/oplog"
	"github.com/loro-go/loro/internal/state"
	"github.com/loro-go/loro/internal/txn"
)

func TestUndoCounterAddNegatesDelta(t *testing.T) {
	a := arena.New()
	idx := a.Intern(arena.RootID("c", arena.ContainerTypeCounter))
	log := oplog.New(nil)
	st := state.New(a)
	mgr := New(1, log, st)

	tx := txn.New(1, log, st, "", 0)
	_ = tx.Buffer(idx, oplog.OpContent{Kind: oplog.OpKindCounterAdd, CounterDelta: 10})
	change, _ := tx.Commit()
	mgr.RecordLocalChange(change)

	cont, _ := st.Container(idx)
	if v := cont.Value().(float64); v != 10 {
		t.Fatalf("expected 10 before undo, got %v", v)
	}

	undone, err := mgr.Undo(1)
	if err != nil {
		t.Fatalf("Undo: %v", err)
	}
	if undone == nil {
		t.Fatalf("expected a non-nil inverse change")
	}
	if v := cont.Value().(float64); v != 0 {
		t.Fatalf("expected 0 after undo, got %v", v)
	}

	redone, err := mgr.Redo(1)
	if err != nil {
		t.Fatalf("Redo: %v", err)
	}
	if redone == nil {
		t.Fatalf("expected a non-nil redo change")
	}
	if v := cont.Value().(float64); v != 10 {
		t.Fatalf("expected 10 after redo, got %v", v)
	}
}

func TestUndoMapInsertDeletesOwnStillLiveWrite(t *testing.T) {
	a := arena.New()
	idx := a.Intern(arena.RootID("m", arena.ContainerTypeMap))
	log := oplog.New(nil)
	st := state.New(a)
	mgr := New(1, log, st)

	tx := txn.New(1, log, st, "", 0)
	_ = tx.Buffer(idx, oplog.OpContent{Kind: oplog.OpKindMapInsert, MapKey: "k", MapValue: "v"})
	change, _ := tx.Commit()
	mgr.RecordLocalChange(change)

	if _, err := mgr.Undo(1); err != nil {
		t.Fatalf("Undo: %v", err)
	}

	cont, _ := st.Container(idx)
	m := cont.Value().(map[string]any)
	if _, present := m["k"]; present {
		t.Fatalf("expected key k removed after undo, got %v", m)
	}
}

func TestUndoNothingWhenStackEmpty(t *testing.T) {
	a := arena.New()
	log := oplog.New(nil)
	st := state.New(a)
	mgr := New(1, log, st)

	change, err := mgr.Undo(1)
	if err != nil || change != nil {
		t.Fatalf("expected (nil, nil) undoing an empty history, got %+v, %v", change, err)
	}
}

func TestUndoTextInsertDeletesStillLiveRun(t *testing.T) {
	a := arena.New()
	idx := a.Intern(arena.RootID("t", arena.ContainerTypeText))
	log := oplog.New(nil)
	st := state.New(a)
	mgr := New(1, log, st)

	tx := txn.New(1, log, st, "", 0)
	_ = tx.Buffer(idx, oplog.OpContent{Kind: oplog.OpKindTextInsert, TextPos: 0, TextValue: "hello"})
	change, _ := tx.Commit()
	mgr.RecordLocalChange(change)

	if _, err := mgr.Undo(1); err != nil {
		t.Fatalf("Undo: %v", err)
	}
	cont, _ := st.Container(idx)
	if s := cont.Value().(string); s != "" {
		t.Fatalf("expected empty text after undo, got %q", s)
	}
}

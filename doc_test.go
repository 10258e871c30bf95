package loro

import (
	"testing"

	"github.com/loro-go/loro/internal/arena"
)

func TestMapAndListConverge(t *testing.T) {
	a := NewWithPeer(1)
	b := NewWithPeer(2)

	if err := a.GetMap("profile").Insert("name", "alice"); err != nil {
		t.Fatalf("a insert: %v", err)
	}
	if err := b.GetList("todo").Insert(0, "buy milk"); err != nil {
		t.Fatalf("b insert: %v", err)
	}

	update, err := a.ExportFrom(b.VV())
	if err != nil {
		t.Fatalf("a export: %v", err)
	}
	if err := b.Import(update); err != nil {
		t.Fatalf("b import: %v", err)
	}
	update, err = b.ExportFrom(a.VV())
	if err != nil {
		t.Fatalf("b export: %v", err)
	}
	if err := a.Import(update); err != nil {
		t.Fatalf("a import: %v", err)
	}

	aJSON, err := a.ToJSON()
	if err != nil {
		t.Fatalf("a ToJSON: %v", err)
	}
	bJSON, err := b.ToJSON()
	if err != nil {
		t.Fatalf("b ToJSON: %v", err)
	}
	if string(aJSON) != string(bJSON) {
		t.Fatalf("replicas diverged after sync:\na=%s\nb=%s", aJSON, bJSON)
	}

	name, ok, err := a.GetMap("profile").Get("name")
	if err != nil || !ok || name != "alice" {
		t.Fatalf("expected profile.name=alice, got %v %v %v", name, ok, err)
	}
}

func TestExplicitTxnCommitsOneChange(t *testing.T) {
	d := NewWithPeer(1)
	var gotEvents int
	sub := d.SubscribeRoot(func(ContainerEvent) { gotEvents++ })
	defer sub.Unsubscribe()

	tx, err := d.Txn()
	if err != nil {
		t.Fatalf("Txn: %v", err)
	}
	m := d.GetMap("settings")
	if err := m.Insert("theme", "dark"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := m.Insert("lang", "en"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if gotEvents != 1 {
		t.Fatalf("expected both buffered ops to collapse into one event, got %d", gotEvents)
	}
	if d.VV().Get(1) != 2 {
		t.Fatalf("expected 2 ops integrated, vv=%d", d.VV().Get(1))
	}
}

func TestTxnRollbackDiscardsOps(t *testing.T) {
	d := NewWithPeer(1)
	tx, err := d.Txn()
	if err != nil {
		t.Fatalf("Txn: %v", err)
	}
	if err := d.GetCounter("score").Add(10); err != nil {
		t.Fatalf("add: %v", err)
	}
	tx.Rollback()

	if d.VV().Get(1) != 0 {
		t.Fatalf("expected rollback to leave vv untouched, got %d", d.VV().Get(1))
	}
	if _, err := d.Txn(); err != nil {
		t.Fatalf("expected Txn to be reopenable after rollback: %v", err)
	}
}

func TestUndoRedoThroughDoc(t *testing.T) {
	d := NewWithPeer(1)
	c := d.GetCounter("score")
	if err := c.Add(5); err != nil {
		t.Fatalf("add: %v", err)
	}
	v, err := c.Value()
	if err != nil || v != 5 {
		t.Fatalf("expected 5, got %v %v", v, err)
	}

	if err := d.Undo(1); err != nil {
		t.Fatalf("Undo: %v", err)
	}
	if v, _ := c.Value(); v != 0 {
		t.Fatalf("expected undo to zero the counter, got %v", v)
	}
	if err := d.Redo(1); err != nil {
		t.Fatalf("Redo: %v", err)
	}
	if v, _ := c.Value(); v != 5 {
		t.Fatalf("expected redo to restore 5, got %v", v)
	}
}

func TestForkIsIndependent(t *testing.T) {
	d := NewWithPeer(1)
	if err := d.GetText("body").Insert(0, "hello"); err != nil {
		t.Fatalf("insert: %v", err)
	}

	fork, err := d.Fork()
	if err != nil {
		t.Fatalf("Fork: %v", err)
	}
	if err := fork.GetText("body").Insert(5, " world"); err != nil {
		t.Fatalf("fork insert: %v", err)
	}

	dv, _ := d.GetText("body").Value()
	fv, _ := fork.GetText("body").Value()
	if dv != "hello" {
		t.Fatalf("expected original unaffected by fork edit, got %q", dv)
	}
	if fv != "hello world" {
		t.Fatalf("expected fork to see its own edit, got %q", fv)
	}
}

func TestMapInsertContainerNestsAList(t *testing.T) {
	d := NewWithPeer(1)
	root := d.GetMap("doc")
	childIdx, err := root.InsertContainer("items", arena.ContainerTypeList)
	if err != nil {
		t.Fatalf("InsertContainer: %v", err)
	}
	child := &ListHandle{doc: d, idx: childIdx}
	if err := child.Insert(0, "a", "b"); err != nil {
		t.Fatalf("child insert: %v", err)
	}

	v, err := root.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	asMap := v.(map[string]any)
	items, ok := asMap["items"].([]any)
	if !ok || len(items) != 2 || items[0] != "a" || items[1] != "b" {
		t.Fatalf("expected nested list [a b] resolved inline, got %#v", asMap["items"])
	}
}

func TestCheckoutRewindsAndReturns(t *testing.T) {
	d := NewWithPeer(1)
	c := d.GetCounter("score")
	if err := c.Add(1); err != nil {
		t.Fatalf("add: %v", err)
	}
	mid := d.Frontiers()
	if err := c.Add(10); err != nil {
		t.Fatalf("add: %v", err)
	}
	tip := d.Frontiers()

	if err := d.Checkout(mid); err != nil {
		t.Fatalf("Checkout(mid): %v", err)
	}
	if v, err := c.Value(); err != nil || v != 1 {
		t.Fatalf("expected rewind to see only the first add, got %v %v", v, err)
	}

	if err := d.Attach(); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if v, err := c.Value(); err != nil || v != 11 {
		t.Fatalf("expected attach to return to the tip value, got %v %v", v, err)
	}

	if err := d.Checkout(tip); err != nil {
		t.Fatalf("Checkout(tip): %v", err)
	}
	if v, err := c.Value(); err != nil || v != 11 {
		t.Fatalf("expected checking out the tip explicitly to match it, got %v %v", v, err)
	}
}

func TestCheckoutOntoDivergentBranchRecomputes(t *testing.T) {
	a := NewWithPeer(1)
	b := NewWithPeer(2)

	if err := a.GetText("body").Insert(0, "hello"); err != nil {
		t.Fatalf("a insert: %v", err)
	}
	update, err := a.ExportFrom(b.VV())
	if err != nil {
		t.Fatalf("a export: %v", err)
	}
	if err := b.Import(update); err != nil {
		t.Fatalf("b import: %v", err)
	}
	sharedFrontier := b.Frontiers()

	if err := b.GetText("body").Insert(5, " there"); err != nil {
		t.Fatalf("b insert: %v", err)
	}
	bTip := b.Frontiers()

	// Check b out to the frontier it shared with a before b's own edit,
	// then back to its own tip — neither direction is a descendant of the
	// other along b's local timeline once it has diverged from a.
	if err := b.Checkout(sharedFrontier); err != nil {
		t.Fatalf("Checkout(sharedFrontier): %v", err)
	}
	if v, err := b.GetText("body").Value(); err != nil || v != "hello" {
		t.Fatalf("expected checkout to the shared frontier to hide b's own edit, got %q %v", v, err)
	}
	if err := b.Checkout(bTip); err != nil {
		t.Fatalf("Checkout(bTip): %v", err)
	}
	if v, err := b.GetText("body").Value(); err != nil || v != "hello there" {
		t.Fatalf("expected checkout back to b's tip to restore its own edit, got %q %v", v, err)
	}
}

func TestSyncPreservesNestedContainerAcrossPeers(t *testing.T) {
	a := NewWithPeer(1)
	b := NewWithPeer(2)

	root := a.GetMap("doc")
	childIdx, err := root.InsertContainer("items", arena.ContainerTypeList)
	if err != nil {
		t.Fatalf("InsertContainer: %v", err)
	}
	child := &ListHandle{doc: a, idx: childIdx}
	if err := child.Insert(0, "a", "b"); err != nil {
		t.Fatalf("child insert: %v", err)
	}

	// b interns unrelated containers first so its arena's interning order
	// diverges from a's, exercising the update codec's container table
	// rather than relying on both peers coincidentally assigning the same
	// ContainerIdx.
	_ = b.GetCounter("decoy")
	_ = b.GetText("decoy2")

	update, err := a.ExportFrom(b.VV())
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if err := b.Import(update); err != nil {
		t.Fatalf("import: %v", err)
	}

	v, err := b.GetMap("doc").Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	asMap := v.(map[string]any)
	items, ok := asMap["items"].([]any)
	if !ok || len(items) != 2 || items[0] != "a" || items[1] != "b" {
		t.Fatalf("expected nested list [a b] resolved inline on b, got %#v", asMap["items"])
	}
}

func TestSetPeerIDRejectedAfterLocalWrite(t *testing.T) {
	d := NewWithPeer(1)
	if err := d.GetCounter("c").Add(1); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := d.SetPeerID(2); err == nil {
		t.Fatalf("expected SetPeerID to fail once the peer has authored a change")
	}
}

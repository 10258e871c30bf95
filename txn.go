package loro

import (
	"github.com/pkg/errors"

	"github.com/loro-go/loro/internal/txn"
)

// ErrTxnAlreadyOpen is returned by Doc.Txn when a prior explicit
// transaction has not yet been committed or rolled back.
var ErrTxnAlreadyOpen = errors.New("loro: a transaction is already open on this doc")

// Txn is an explicit, caller-controlled batch of handle operations that
// reach the OpLog and observers as a single Change/event only once
// committed (spec.md §6.1 "Doc::txn() -> Txn; Txn::commit(); ops buffer
// until commit").
type Txn struct {
	doc *Doc
	t   *txn.Txn
	done bool
}

// Txn opens an explicit transaction. Handle operations called while it is
// open buffer into it instead of each auto-committing individually.
func (d *Doc) Txn() (*Txn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrDocClosed
	}
	if d.activeTxn != nil {
		return nil, ErrTxnAlreadyOpen
	}
	t := txn.New(d.peer, d.oplog, d.state, "", 0)
	d.activeTxn = t
	return &Txn{doc: d, t: t}, nil
}

// Commit integrates every buffered op as one Change and delivers one
// ContainerEvent per touched container to observers.
func (tx *Txn) Commit() error {
	tx.doc.mu.Lock()
	defer tx.doc.mu.Unlock()
	if tx.done {
		return txn.ErrAlreadyCommitted
	}
	tx.done = true
	tx.doc.activeTxn = nil

	change, err := tx.t.Commit()
	if err != nil {
		return err
	}
	if change != nil {
		tx.doc.peerHasWritten = true
		tx.doc.undo.RecordLocalChange(change)
		tx.doc.emitForContainers(buildContainerEvents(tx.doc.arena, change.Ops, true))
	}
	return nil
}

// Rollback discards every buffered op without committing.
func (tx *Txn) Rollback() {
	tx.doc.mu.Lock()
	defer tx.doc.mu.Unlock()
	if tx.done {
		return
	}
	tx.done = true
	tx.doc.activeTxn = nil
	tx.t.Rollback()
}

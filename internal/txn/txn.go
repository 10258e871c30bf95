// Package txn implements Txn: the scoped unit of mutation ops buffer into
// until commit (spec.md §4.4 "a mutation path is always op -> state.apply
// -> diff.record -> frontier.advance", §6.1 "Doc::txn() -> Txn;
// Txn::commit(); ops buffer until commit").
//
// No teacher analogue exists (cshekharsharma-go-crdt applies each mutation
// to its CRDT immediately, with no batching boundary); grounded instead on
// the teacher's single-lock-around-state idiom, extended here to cover the
// buffer-then-apply two-phase commit spec.md requires so that every op
// inside one transaction reaches observers as exactly one event (spec.md
// §5 "Ops within one local transaction are delivered to observers as one
// event").
package txn

import (
	"github.com/pkg/errors"

	"github.com/loro-go/loro/internal/arena"
	"github.com/loro-go/loro/internal/identity"
	"github.com/loro-go/loro/internal/oplog"
	"github.com/loro-go/loro/internal/state"
)

// ErrAlreadyCommitted is returned by any mutation attempted after Commit.
var ErrAlreadyCommitted = errors.New("txn: already committed")

// Txn buffers ops authored by one peer until Commit integrates them into
// the OpLog and replays them into DocState as a single unit.
type Txn struct {
	peer      identity.PeerID
	log       *oplog.OpLog
	state     *state.DocState
	commitMsg string
	timestamp int64

	ops       []oplog.Op
	committed bool
}

// New begins a transaction. timestamp is the caller-supplied unix-seconds
// clock (kept explicit rather than time.Now() so replay/testing stays
// deterministic).
func New(peer identity.PeerID, log *oplog.OpLog, st *state.DocState, commitMsg string, timestamp int64) *Txn {
	return &Txn{peer: peer, log: log, state: st, commitMsg: commitMsg, timestamp: timestamp}
}

// Buffer appends one op to the pending transaction. The op's ID is left
// zero-valued; Commit assigns real (peer, counter) IDs in buffer order via
// OpLog.AppendLocal, mirroring spec.md §4.1's append_local contract.
func (t *Txn) Buffer(container arena.ContainerIdx, content oplog.OpContent) error {
	if t.committed {
		return ErrAlreadyCommitted
	}
	t.ops = append(t.ops, oplog.Op{Container: container, Content: content})
	return nil
}

// Len reports how many ops are currently buffered.
func (t *Txn) Len() int {
	return len(t.ops)
}

// Commit integrates every buffered op into the OpLog as one Change, then
// replays those ops into DocState, advancing both in lockstep. An empty
// transaction is a no-op returning (nil, nil) rather than an empty Change,
// since the engine never appends a dependency-only, content-free change.
func (t *Txn) Commit() (*oplog.Change, error) {
	if t.committed {
		return nil, ErrAlreadyCommitted
	}
	t.committed = true
	if len(t.ops) == 0 {
		return nil, nil
	}

	change, err := t.log.AppendLocal(t.peer, t.ops, t.commitMsg, t.timestamp)
	if err != nil {
		return nil, errors.Wrap(err, "txn: commit")
	}
	if err := t.state.ApplyOps(change.Ops); err != nil {
		return nil, errors.Wrap(err, "txn: apply committed ops to state")
	}
	return change, nil
}

// Rollback discards every buffered op without touching the OpLog or
// DocState. Safe to call instead of Commit, or after Commit as a no-op.
func (t *Txn) Rollback() {
	t.committed = true
	t.ops = nil
}

package oplog

import (
	"github.com/loro-go/loro/internal/identity"
)

// Change is the atomic unit of the log: a batch of causally-adjacent ops
// authored in one transaction by one peer (spec.md §3.2, GLOSSARY).
type Change struct {
	ID        identity.ID // starting ID: (peer, first op's counter)
	Lamport   identity.Lamport
	Timestamp int64 // unix seconds, informational only
	Deps      identity.Frontiers
	Ops       []Op
	CommitMsg string
}

// End returns the exclusive end ID of this change: one past its last op.
func (c *Change) End() identity.ID {
	return identity.ID{Peer: c.ID.Peer, Counter: c.ID.Counter + identity.Counter(len(c.Ops))}
}

// LamportEnd returns the Lamport value one past the change's last op.
func (c *Change) LamportEnd() identity.Lamport {
	return c.Lamport + identity.Lamport(len(c.Ops))
}

// Span returns the IdSpan of counters this change occupies.
func (c *Change) Span() identity.IdSpan {
	return identity.IdSpan{Peer: c.ID.Peer, From: c.ID.Counter, To: c.ID.Counter + identity.Counter(len(c.Ops))}
}

// OpAt returns the op at the given counter within this change, if present.
func (c *Change) OpAt(counter identity.Counter) (Op, bool) {
	i := int(counter - c.ID.Counter)
	if i < 0 || i >= len(c.Ops) {
		return Op{}, false
	}
	return c.Ops[i], true
}

// LamportAt returns the Lamport assigned to the op at the given counter.
func (c *Change) LamportAt(counter identity.Counter) identity.Lamport {
	return c.Lamport + identity.Lamport(counter-c.ID.Counter)
}

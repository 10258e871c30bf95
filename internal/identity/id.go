// Package identity defines the identifier types that give every operation
// in the log a stable, globally unique address: PeerID, Counter, ID,
// IdSpan and Lamport. See spec.md §3.1.
package identity

import "fmt"

// PeerID identifies one replica. Assigned once at Doc construction time.
type PeerID uint64

// Counter is a per-peer, monotonically assigned sequence number. The first
// op authored by a peer has Counter 0.
type Counter int32

// Lamport is a logical clock used only to break ties between concurrent
// operations. It carries no causal meaning on its own.
type Lamport uint32

// ID globally identifies a single op: the peer that authored it and its
// position in that peer's counter sequence.
type ID struct {
	Peer    PeerID
	Counter Counter
}

// String renders an ID as "peer@counter", used in diagnostics.
func (id ID) String() string {
	return fmt.Sprintf("%d@%d", id.Peer, id.Counter)
}

// Inc returns the ID delta counters further along the same peer's sequence.
func (id ID) Inc(delta int32) ID {
	return ID{Peer: id.Peer, Counter: id.Counter + Counter(delta)}
}

// Less gives IDs a total order: by peer first, then by counter. This is
// unrelated to causal order — it exists only so IDs can be used as map/set
// keys in a deterministic iteration order.
func (id ID) Less(other ID) bool {
	if id.Peer != other.Peer {
		return id.Peer < other.Peer
	}
	return id.Counter < other.Counter
}

// IdSpan is a contiguous run of counters authored by one peer:
// [From, To) in that peer's counter sequence.
type IdSpan struct {
	Peer PeerID
	From Counter
	To   Counter // exclusive
}

// Len returns the number of counters covered by the span.
func (s IdSpan) Len() int {
	if s.To <= s.From {
		return 0
	}
	return int(s.To - s.From)
}

// Contains reports whether id falls within the span.
func (s IdSpan) Contains(id ID) bool {
	return id.Peer == s.Peer && id.Counter >= s.From && id.Counter < s.To
}

// ContainsCounter reports whether a bare counter value on this span's peer
// falls within the span.
func (s IdSpan) ContainsCounter(c Counter) bool {
	return c >= s.From && c < s.To
}

// Overlaps reports whether two spans on the same peer share any counters.
func (s IdSpan) Overlaps(other IdSpan) bool {
	if s.Peer != other.Peer {
		return false
	}
	return s.From < other.To && other.From < s.To
}

// IdLp pairs an ID with the Lamport timestamp assigned to it. Used
// wherever both the identity and the tie-break clock of an op are needed
// together (e.g. concurrent-insert ordering in text/list containers).
type IdLp struct {
	ID      ID
	Lamport Lamport
}

// Greater implements the engine-wide concurrent-op tie-break: higher
// Lamport wins; ties are broken by higher PeerID. Mirrors the teacher's
// rga.go ID.Greater, generalized to a separate Lamport field.
func (a IdLp) Greater(b IdLp) bool {
	if a.Lamport != b.Lamport {
		return a.Lamport > b.Lamport
	}
	return a.ID.Peer > b.ID.Peer
}

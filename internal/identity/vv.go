package identity

// VersionVector maps PeerID to the exclusive end counter observed for that
// peer: VV[p] = n means counters [0, n) from peer p have been integrated.
// Grounded on the teacher's GCounter.slots map[string]int (a per-node slot
// map), generalized from "count" to "exclusive end counter" (spec.md §3.1).
type VersionVector map[PeerID]Counter

// NewVersionVector returns an empty vector.
func NewVersionVector() VersionVector {
	return make(VersionVector)
}

// Get returns the exclusive end counter for peer, or 0 if never seen.
func (v VersionVector) Get(peer PeerID) Counter {
	return v[peer]
}

// Includes reports whether id has already been observed by this vector.
func (v VersionVector) Includes(id ID) bool {
	return id.Counter < v[id.Peer]
}

// IncludesSpan reports whether every counter in span has been observed.
func (v VersionVector) IncludesSpan(s IdSpan) bool {
	return v[s.Peer] >= s.To
}

// SetEnd records that counters [0, end) from peer have been observed,
// raising the stored value, never lowering it.
func (v VersionVector) SetEnd(peer PeerID, end Counter) {
	if end > v[peer] {
		v[peer] = end
	}
}

// Extend advances peer's end counter to at least id.Counter+1.
func (v VersionVector) Extend(id ID) {
	v.SetEnd(id.Peer, id.Counter+1)
}

// Clone returns an independent copy.
func (v VersionVector) Clone() VersionVector {
	out := make(VersionVector, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// Merge returns the component-wise maximum of v and other — the
// join-semilattice merge familiar from the teacher's GCounter.Merge.
func (v VersionVector) Merge(other VersionVector) VersionVector {
	out := v.Clone()
	for peer, end := range other {
		out.SetEnd(peer, end)
	}
	return out
}

// IncludesVV reports whether every counter present in other is also present
// in v — used for the "VV(A) ⊆ VV(B)" testable property (spec.md §8.3).
func (v VersionVector) IncludesVV(other VersionVector) bool {
	for peer, end := range other {
		if v[peer] < end {
			return false
		}
	}
	return true
}

// Sub returns the set of spans present in v but absent from base: the
// counters this vector has that base does not, per peer. Used by
// OpLog.ExportFrom to compute "local_vv \ peer_vv" (spec.md §4.5).
func (v VersionVector) Sub(base VersionVector) []IdSpan {
	var out []IdSpan
	for peer, end := range v {
		from := base[peer]
		if end > from {
			out = append(out, IdSpan{Peer: peer, From: from, To: end})
		}
	}
	return out
}

// Equal reports whether two vectors describe the same observed counters.
func (v VersionVector) Equal(other VersionVector) bool {
	if len(v) != len(other) {
		// A zero entry is equivalent to an absent entry, so lengths alone
		// aren't decisive; fall through to a full comparison.
	}
	for peer, end := range v {
		if other[peer] != end && end != 0 {
			return false
		}
	}
	for peer, end := range other {
		if v[peer] != end && end != 0 {
			return false
		}
	}
	return true
}

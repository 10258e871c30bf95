package codec

import (
	"bytes"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"

	"github.com/loro-go/loro/internal/arena"
	"github.com/loro-go/loro/internal/identity"
	"github.com/loro-go/loro/internal/oplog"
)

// Snapshot variants, tagged in the version byte per spec.md §6.2
// ("subformats (current, shallow)").
const (
	snapshotMagic          = 0x4C73 // "Ls"
	snapshotVersionFull    = 1
	snapshotVersionShallow = 2
)

// EncodeSnapshot serializes a self-contained full snapshot: the complete
// log plus the container table needed to re-derive materialized state by
// replay (spec.md §4.5 "Full snapshot — complete log; can be re-exported
// losslessly"). containers is written in full (not just containers with
// ops — a root container interned via get_<type> but never written to
// must still round-trip), unlike the update codec's referenced-only
// subset. The body is zstd-compressed (klauspost/compress), mirroring
// ghjramos-aistore's on-disk object compression idiom.
func EncodeSnapshot(containers []arena.ContainerID, changes []*oplog.Change) ([]byte, error) {
	return encodeSnapshot(snapshotVersionFull, containers, changes)
}

// EncodeShallowSnapshot serializes a GC'd snapshot: the log truncated at
// trimFrontier. Changes entirely at or before the per-peer counter
// trimFrontier names are dropped outright (spec.md §4.5 "Trim invariants:
// no live op depends on trimmed data").
//
// Simplification (recorded in DESIGN.md): trimming drops whole changes
// only, requiring trimFrontier to fall on a change boundary for every
// peer it names; splitting a change mid-span to trim a partial prefix is
// not implemented.
func EncodeShallowSnapshot(containers []arena.ContainerID, changes []*oplog.Change, trimFrontier identity.Frontiers) ([]byte, error) {
	cutoff := make(map[identity.PeerID]identity.Counter, len(trimFrontier))
	for _, id := range trimFrontier {
		if cur, ok := cutoff[id.Peer]; !ok || id.Counter > cur {
			cutoff[id.Peer] = id.Counter
		}
	}
	kept := make([]*oplog.Change, 0, len(changes))
	for _, c := range changes {
		if max, ok := cutoff[c.ID.Peer]; ok && c.End().Counter-1 <= max {
			continue // fully covered by the trim, drop
		}
		kept = append(kept, c)
	}
	return encodeSnapshot(snapshotVersionShallow, containers, kept)
}

func encodeSnapshot(version uint64, containers []arena.ContainerID, changes []*oplog.Change) ([]byte, error) {
	// The container table is the full, arena-ordered list, so the
	// wire-local table position of each entry is just its position in
	// containers — identical to its ContainerIdx in the exporting arena.
	tableIdx := make(map[arena.ContainerIdx]uint64, len(containers))
	for i := range containers {
		tableIdx[arena.ContainerIdx(i)] = uint64(i)
	}

	var body bytes.Buffer
	putUvarint(&body, uint64(len(containers)))
	for _, c := range containers {
		encodeContainerID(&body, c)
	}
	putUvarint(&body, uint64(len(changes)))
	for _, c := range changes {
		if err := encodeChange(&body, c, tableIdx); err != nil {
			return nil, err
		}
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, errors.Wrap(err, "codec: allocate zstd encoder")
	}
	defer enc.Close()
	compressed := enc.EncodeAll(body.Bytes(), nil)

	var out bytes.Buffer
	putUvarint(&out, snapshotMagic)
	putUvarint(&out, version)
	putBytes(&out, compressed)
	return out.Bytes(), nil
}

// DecodeSnapshot parses a blob produced by EncodeSnapshot or
// EncodeShallowSnapshot, interning every container it names into a (the
// importing Doc's arena) exactly as DecodeUpdate does, so every decoded
// Op.Container/ChildContainer is already remapped to a's local
// ContainerIdx space rather than the exporting arena's. Reports whether
// the blob was a shallow snapshot.
func DecodeSnapshot(data []byte, a *arena.Arena) (changes []*oplog.Change, shallow bool, err error) {
	r := newReader(data)
	magic, err := r.uvarint()
	if err != nil {
		return nil, false, err
	}
	version, err := r.uvarint()
	if err != nil {
		return nil, false, err
	}
	if magic != snapshotMagic || (version != snapshotVersionFull && version != snapshotVersionShallow) {
		return nil, false, ErrIncompatible
	}
	compressed, err := r.bytesN()
	if err != nil {
		return nil, false, err
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, false, errors.Wrap(err, "codec: allocate zstd decoder")
	}
	defer dec.Close()
	body, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, false, errors.Wrap(err, "codec: decompress snapshot body")
	}

	br := newReader(body)
	table, err := decodeContainerTable(br, a)
	if err != nil {
		return nil, false, err
	}

	changeCount, err := br.uvarint()
	if err != nil {
		return nil, false, err
	}
	changes = make([]*oplog.Change, 0, changeCount)
	for i := uint64(0); i < changeCount; i++ {
		c, err := decodeChange(br, table)
		if err != nil {
			return nil, false, err
		}
		changes = append(changes, c)
	}
	return changes, version == snapshotVersionShallow, nil
}

func encodeContainerID(buf *bytes.Buffer, c arena.ContainerID) {
	if c.IsRoot {
		putUvarint(buf, 1)
		putString(buf, c.Name)
	} else {
		putUvarint(buf, 0)
		putUvarint(buf, uint64(c.Peer))
		putUvarint(buf, uint64(uint32(c.Counter)))
	}
	putUvarint(buf, uint64(c.Type))
}

func decodeContainerID(r *reader) (arena.ContainerID, error) {
	isRoot, err := r.uvarint()
	if err != nil {
		return arena.ContainerID{}, err
	}
	var id arena.ContainerID
	if isRoot == 1 {
		name, err := r.stringN()
		if err != nil {
			return arena.ContainerID{}, err
		}
		id.IsRoot = true
		id.Name = name
	} else {
		peer, err := r.uvarint()
		if err != nil {
			return arena.ContainerID{}, err
		}
		counter, err := r.uvarint()
		if err != nil {
			return arena.ContainerID{}, err
		}
		id.Peer = identity.PeerID(peer)
		id.Counter = identity.Counter(int32(counter))
	}
	t, err := r.uvarint()
	if err != nil {
		return arena.ContainerID{}, err
	}
	id.Type = arena.ContainerType(t)
	return id, nil
}

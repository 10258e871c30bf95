package codec

import (
	"bytes"

	"github.com/pkg/errors"

	"github.com/loro-go/loro/internal/arena"
	"github.com/loro-go/loro/internal/identity"
	"github.com/loro-go/loro/internal/oplog"
)

// updateMagic tags the update (export_from/import) wire format, read at
// byte 0 so an incompatible major version is rejected outright (spec.md
// §6.2 "Reader must refuse unknown major version with Incompatible").
const updateMagic = 0x4C6F // "Lo"
const updateVersion = 1

// ErrIncompatible is returned when a blob's magic/version byte is not one
// this codec understands.
var ErrIncompatible = errors.New("codec: incompatible wire version")

// EncodeUpdate serializes a batch of changes for export_from (spec.md
// §4.5): a container table followed by per-peer run-length ranges of
// (counter_start, counter_end, lamport_start, dep_edges, ops). containers
// must be indexable by the ContainerIdx every op in changes carries
// (typically the exporting Doc's arena.AllContainers()) — a ContainerIdx
// is a local interning order, never stable across Docs, so it must never
// reach the wire directly; only the ContainerID it names is portable
// (spec.md §3.3, mirroring the snapshot codec's container table).
func EncodeUpdate(containers []arena.ContainerID, changes []*oplog.Change) ([]byte, error) {
	table, tableIdx := referencedContainers(containers, changes)

	var buf bytes.Buffer
	putUvarint(&buf, updateMagic)
	putUvarint(&buf, updateVersion)

	putUvarint(&buf, uint64(len(table)))
	for _, cid := range table {
		encodeContainerID(&buf, cid)
	}

	putUvarint(&buf, uint64(len(changes)))
	for _, c := range changes {
		if err := encodeChange(&buf, c, tableIdx); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// referencedContainers builds the subset of containers actually touched by
// changes (as either an op's own container or, for insert_container ops,
// its ChildContainer), in first-reference order, plus the map from the
// exporting arena's ContainerIdx to that table's wire-local position.
func referencedContainers(containers []arena.ContainerID, changes []*oplog.Change) ([]arena.ContainerID, map[arena.ContainerIdx]uint64) {
	tableIdx := make(map[arena.ContainerIdx]uint64)
	var table []arena.ContainerID
	ref := func(idx arena.ContainerIdx) {
		if _, ok := tableIdx[idx]; ok {
			return
		}
		tableIdx[idx] = uint64(len(table))
		table = append(table, containers[idx])
	}
	for _, c := range changes {
		for _, op := range c.Ops {
			ref(op.Container)
			if op.Content.HasChild {
				ref(op.Content.ChildContainer)
			}
		}
	}
	return table, tableIdx
}

// DecodeUpdate parses a blob produced by EncodeUpdate back into Changes,
// ready for OpLog.Import. Every ContainerID in the blob's table is interned
// into a (the importing Doc's arena), so every decoded Op.Container and
// ChildContainer is remapped to that Doc's own local ContainerIdx —
// critical for correctness, since the sender's ContainerIdx values have no
// meaning on the receiver.
func DecodeUpdate(data []byte, a *arena.Arena) ([]*oplog.Change, error) {
	r := newReader(data)
	magic, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	version, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	if magic != updateMagic || version != updateVersion {
		return nil, ErrIncompatible
	}

	table, err := decodeContainerTable(r, a)
	if err != nil {
		return nil, err
	}

	n, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	out := make([]*oplog.Change, 0, n)
	for i := uint64(0); i < n; i++ {
		c, err := decodeChange(r, table)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// decodeContainerTable reads a wire container table and interns each entry
// into a, returning the resulting local ContainerIdx in wire order.
func decodeContainerTable(r *reader, a *arena.Arena) ([]arena.ContainerIdx, error) {
	n, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	table := make([]arena.ContainerIdx, 0, n)
	for i := uint64(0); i < n; i++ {
		cid, err := decodeContainerID(r)
		if err != nil {
			return nil, err
		}
		table = append(table, a.Intern(cid))
	}
	return table, nil
}

// encodeChange writes c using tableIdx to translate every ContainerIdx
// reference (the op's own container and, when present, its ChildContainer)
// into the wire-local table position built by the caller.
func encodeChange(buf *bytes.Buffer, c *oplog.Change, tableIdx map[arena.ContainerIdx]uint64) error {
	putUvarint(buf, uint64(c.ID.Peer))
	putUvarint(buf, uint64(uint32(c.ID.Counter)))
	putUvarint(buf, uint64(c.Lamport))
	putUvarint(buf, uint64(c.Timestamp))
	putString(buf, c.CommitMsg)

	putUvarint(buf, uint64(len(c.Deps)))
	for _, d := range c.Deps {
		putUvarint(buf, uint64(d.Peer))
		putUvarint(buf, uint64(uint32(d.Counter)))
	}

	putUvarint(buf, uint64(len(c.Ops)))
	for _, op := range c.Ops {
		putUvarint(buf, tableIdx[op.Container])

		content := op.Content
		if content.HasChild {
			content.ChildContainer = arena.ContainerIdx(tableIdx[content.ChildContainer])
		}
		encoded, err := encodeOpContent(content)
		if err != nil {
			return errors.Wrapf(err, "codec: encode op %s", op.ID)
		}
		putBytes(buf, encoded)
	}
	return nil
}

// decodeChange mirrors encodeChange, translating each wire-local table
// reference back into the local ContainerIdx table resolved it to.
func decodeChange(r *reader, table []arena.ContainerIdx) (*oplog.Change, error) {
	peer, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	startCounter, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	lamport, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	timestamp, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	commitMsg, err := r.stringN()
	if err != nil {
		return nil, err
	}

	depCount, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	deps := make(identity.Frontiers, 0, depCount)
	for i := uint64(0); i < depCount; i++ {
		depPeer, err := r.uvarint()
		if err != nil {
			return nil, err
		}
		depCounter, err := r.uvarint()
		if err != nil {
			return nil, err
		}
		deps = append(deps, identity.ID{Peer: identity.PeerID(depPeer), Counter: identity.Counter(int32(depCounter))})
	}

	opCount, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	change := &oplog.Change{
		ID:        identity.ID{Peer: identity.PeerID(peer), Counter: identity.Counter(int32(startCounter))},
		Lamport:   identity.Lamport(lamport),
		Timestamp: int64(timestamp),
		Deps:      deps,
		CommitMsg: commitMsg,
		Ops:       make([]oplog.Op, 0, opCount),
	}
	for i := uint64(0); i < opCount; i++ {
		tableRef, err := r.uvarint()
		if err != nil {
			return nil, err
		}
		if tableRef >= uint64(len(table)) {
			return nil, errors.New("codec: op references out-of-range container table entry")
		}
		contentBytes, err := r.bytesN()
		if err != nil {
			return nil, err
		}
		content, err := decodeOpContent(contentBytes)
		if err != nil {
			return nil, err
		}
		if content.HasChild {
			if uint64(content.ChildContainer) >= uint64(len(table)) {
				return nil, errors.New("codec: op references out-of-range child container table entry")
			}
			content.ChildContainer = table[content.ChildContainer]
		}
		change.Ops = append(change.Ops, oplog.Op{
			ID:        identity.ID{Peer: change.ID.Peer, Counter: change.ID.Counter + identity.Counter(i)},
			Lamport:   change.Lamport + identity.Lamport(i),
			Container: table[tableRef],
			Content:   content,
		})
	}
	return change, nil
}

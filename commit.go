package loro

import (
	"github.com/loro-go/loro/internal/arena"
	"github.com/loro-go/loro/internal/identity"
	"github.com/loro-go/loro/internal/oplog"
	"github.com/loro-go/loro/internal/txn"
)

// commit buffers one or more ops targeting a single container and, unless
// an explicit Txn is open on the Doc, immediately commits them as one
// local Change and emits the resulting ContainerEvent (spec.md §6.1
// "operations outside an explicit txn auto-commit"). Multiple contents in
// one call always land in the same Change. (Text.Mark links its
// Mark/MarkEnd pair through commitLinkedPair instead.)
//
// The predicted IDs are exact: nothing else can append to this peer's log
// between prediction and commit, since both happen while d.mu is held and
// activeTxn (if any) is only ever committed by this same Doc.
func (d *Doc) commit(idx arena.ContainerIdx, contents ...oplog.OpContent) ([]identity.ID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrDocClosed
	}

	offset := 0
	if d.activeTxn != nil {
		offset = d.activeTxn.Len()
	}
	base := identity.Counter(d.oplog.VV().Get(d.peer))
	ids := make([]identity.ID, len(contents))
	for i := range contents {
		ids[i] = identity.ID{Peer: d.peer, Counter: base + identity.Counter(offset+i)}
	}

	if d.activeTxn != nil {
		for _, c := range contents {
			if err := d.activeTxn.Buffer(idx, c); err != nil {
				return nil, err
			}
		}
		return ids, nil
	}

	tx := txn.New(d.peer, d.oplog, d.state, "", 0)
	for _, c := range contents {
		if err := tx.Buffer(idx, c); err != nil {
			return nil, err
		}
	}
	change, err := tx.Commit()
	if err != nil {
		return nil, err
	}
	d.peerHasWritten = true
	if change != nil {
		d.undo.RecordLocalChange(change)
		d.emitForContainers(buildContainerEvents(d.arena, change.Ops, true))
	}
	return ids, nil
}

// internContainer interns a child container's ID, derived from the
// creating op's own ID (spec.md §3.3 "Containers inside containers").
func (d *Doc) internContainer(creator identity.ID, t arena.ContainerType) arena.ContainerIdx {
	return d.arena.Intern(arena.NormalID(creator, t))
}

// commit1Predicted is commit's single-op variant for ops whose content
// depends on their own not-yet-assigned ID, i.e. insert_container (the
// new container's ContainerID is rooted at the creating op's ID, so it
// must be interned before the op content referencing it is built).
func (d *Doc) commit1Predicted(idx arena.ContainerIdx, build func(id identity.ID) oplog.OpContent) (identity.ID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return identity.ID{}, ErrDocClosed
	}

	offset := 0
	if d.activeTxn != nil {
		offset = d.activeTxn.Len()
	}
	base := identity.Counter(d.oplog.VV().Get(d.peer))
	id := identity.ID{Peer: d.peer, Counter: base + identity.Counter(offset)}
	content := build(id)

	if d.activeTxn != nil {
		if err := d.activeTxn.Buffer(idx, content); err != nil {
			return identity.ID{}, err
		}
		return id, nil
	}

	tx := txn.New(d.peer, d.oplog, d.state, "", 0)
	if err := tx.Buffer(idx, content); err != nil {
		return identity.ID{}, err
	}
	change, err := tx.Commit()
	if err != nil {
		return identity.ID{}, err
	}
	d.peerHasWritten = true
	if change != nil {
		d.undo.RecordLocalChange(change)
		d.emitForContainers(buildContainerEvents(d.arena, change.Ops, true))
	}
	return id, nil
}

// commitLinkedPair is commit's two-op variant for a pair where the second
// op's content must reference the first op's own not-yet-assigned ID
// (Text.Mark/MarkEnd: MarkEnd.MarkStartID has to equal its Mark's ID).
func (d *Doc) commitLinkedPair(idx arena.ContainerIdx, first oplog.OpContent, buildSecond func(firstID identity.ID) oplog.OpContent) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDocClosed
	}

	offset := 0
	if d.activeTxn != nil {
		offset = d.activeTxn.Len()
	}
	base := identity.Counter(d.oplog.VV().Get(d.peer))
	firstID := identity.ID{Peer: d.peer, Counter: base + identity.Counter(offset)}
	second := buildSecond(firstID)

	if d.activeTxn != nil {
		if err := d.activeTxn.Buffer(idx, first); err != nil {
			return err
		}
		return d.activeTxn.Buffer(idx, second)
	}

	tx := txn.New(d.peer, d.oplog, d.state, "", 0)
	if err := tx.Buffer(idx, first); err != nil {
		return err
	}
	if err := tx.Buffer(idx, second); err != nil {
		return err
	}
	change, err := tx.Commit()
	if err != nil {
		return err
	}
	d.peerHasWritten = true
	if change != nil {
		d.undo.RecordLocalChange(change)
		d.emitForContainers(buildContainerEvents(d.arena, change.Ops, true))
	}
	return nil
}

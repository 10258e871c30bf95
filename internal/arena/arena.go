// Package arena interns container identifiers, string values, and op
// content so the rest of the engine can pass around small integer handles
// (ContainerIdx) instead of repeatedly hashing/copying strings. Spec.md §2.
//
// New relative to the teacher: cshekharsharma-go-crdt's RGA references
// nodes by value ID directly, with no interning layer. Grounded on
// AKJUS-bsc-erigon's habit of fronting expensive repeated lookups with an
// LRU cache.
package arena

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"

	"github.com/loro-go/loro/internal/identity"
)

// ContainerType enumerates the container algorithms the engine knows
// about. Unknown types are preserved verbatim (spec.md §3.2 "Unknown ops").
type ContainerType uint8

const (
	ContainerTypeMap ContainerType = iota
	ContainerTypeList
	ContainerTypeMovableList
	ContainerTypeText
	ContainerTypeTree
	ContainerTypeCounter
	ContainerTypeUnknown
)

func (t ContainerType) String() string {
	switch t {
	case ContainerTypeMap:
		return "Map"
	case ContainerTypeList:
		return "List"
	case ContainerTypeMovableList:
		return "MovableList"
	case ContainerTypeText:
		return "Text"
	case ContainerTypeTree:
		return "Tree"
	case ContainerTypeCounter:
		return "Counter"
	default:
		return "Unknown"
	}
}

// ContainerID names a container: either a root container addressed by
// name, or a "normal" container whose identity is the ID of the op that
// created it (spec.md §3.3).
type ContainerID struct {
	IsRoot bool
	Name   string // valid iff IsRoot
	Peer   identity.PeerID
	Counter identity.Counter
	Type   ContainerType
}

// RootID builds a root container ID.
func RootID(name string, t ContainerType) ContainerID {
	return ContainerID{IsRoot: true, Name: name, Type: t}
}

// NormalID builds a container ID rooted at the creating op's ID.
func NormalID(creator identity.ID, t ContainerType) ContainerID {
	return ContainerID{IsRoot: false, Peer: creator.Peer, Counter: creator.Counter, Type: t}
}

func (c ContainerID) String() string {
	if c.IsRoot {
		return "root:" + c.Name + ":" + c.Type.String()
	}
	return identity.ID{Peer: c.Peer, Counter: c.Counter}.String() + ":" + c.Type.String()
}

// ContainerIdx is the arena-interned handle used internally in place of a
// ContainerID throughout OpLog/state/diff (spec.md §2).
type ContainerIdx uint32

// Arena interns container IDs and caches decoded string/value blobs. One
// Arena belongs to exactly one Doc; it is never a process-wide singleton
// (spec.md §9 "prefer threading it explicitly through every state
// operation").
type Arena struct {
	mu sync.RWMutex

	containersByID  map[ContainerID]ContainerIdx
	containersByIdx []ContainerID

	strings *lru.Cache[string, string]
	values  *lru.Cache[uint64, any]
}

// New creates an empty Arena with a bounded interning cache.
func New() *Arena {
	strCache, err := lru.New[string, string](4096)
	if err != nil {
		panic(errors.Wrap(err, "arena: allocate string cache"))
	}
	valCache, err := lru.New[uint64, any](4096)
	if err != nil {
		panic(errors.Wrap(err, "arena: allocate value cache"))
	}
	return &Arena{
		containersByID: make(map[ContainerID]ContainerIdx),
		strings:        strCache,
		values:         valCache,
	}
}

// Intern returns the ContainerIdx for id, allocating one if this is the
// first time id has been seen.
func (a *Arena) Intern(id ContainerID) ContainerIdx {
	a.mu.Lock()
	defer a.mu.Unlock()
	if idx, ok := a.containersByID[id]; ok {
		return idx
	}
	idx := ContainerIdx(len(a.containersByIdx))
	a.containersByIdx = append(a.containersByIdx, id)
	a.containersByID[id] = idx
	return idx
}

// Lookup resolves a ContainerIdx back to its full ContainerID.
func (a *Arena) Lookup(idx ContainerIdx) (ContainerID, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if int(idx) >= len(a.containersByIdx) {
		return ContainerID{}, false
	}
	return a.containersByIdx[idx], true
}

// TryGet returns the ContainerIdx for id without interning it.
func (a *Arena) TryGet(id ContainerID) (ContainerIdx, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	idx, ok := a.containersByID[id]
	return idx, ok
}

// InternString interns a string value, deduplicating identical content —
// mirrors the content-addressed string interning spec.md §9 calls for.
func (a *Arena) InternString(s string) string {
	if cached, ok := a.strings.Get(s); ok {
		return cached
	}
	a.strings.Add(s, s)
	return s
}

// CacheValue stores an arbitrary decoded op-content value under a cache
// key (typically a hash of its encoded bytes), for reuse during
// DiffCalculator replay so repeated decodes of the same run don't
// re-allocate (spec.md §4.3).
func (a *Arena) CacheValue(key uint64, v any) {
	a.values.Add(key, v)
}

// GetValue retrieves a previously cached decoded value.
func (a *Arena) GetValue(key uint64) (any, bool) {
	return a.values.Get(key)
}

// Len returns the number of interned containers.
func (a *Arena) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.containersByIdx)
}

// AllContainers returns a snapshot slice of every interned ContainerID,
// indexed by ContainerIdx. Used by the codec when serializing a full
// snapshot's container table.
func (a *Arena) AllContainers() []ContainerID {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]ContainerID, len(a.containersByIdx))
	copy(out, a.containersByIdx)
	return out
}

// Package text implements the Text container: a rope of unicode text runs
// with interleaved style spans (spec.md §4.2.1). Grounded on the teacher's
// rga.go integration algorithm — reused directly via internal/container/list
// (a Text is, for its character sequence, an RGA of runes) — generalized
// with a style-span overlay for rich text.
package text

import (
	"sort"
	"strings"
	"unicode/utf16"

	"github.com/loro-go/loro/internal/container/list"
	"github.com/loro-go/loro/internal/identity"
	"github.com/loro-go/loro/internal/oplog"
)

// span is one Mark..MarkEnd pairing's resolved style annotation. Anchored
// to character element IDs rather than indices so it survives concurrent
// inserts/deletes elsewhere in the document (spec.md §4.2.1 "Style
// spans").
type span struct {
	key         string
	value       any
	expand      oplog.ExpandPolicy
	writer      identity.IdLp
	startAfter  identity.ID // char id this span begins immediately after; hasStart=false means doc start
	hasStart    bool
	endBefore   identity.ID // char id this span ends immediately before; hasEnd=false means doc end
	hasEnd      bool
}

// Text is the Text container's live state.
type Text struct {
	chars *list.List // RGA of runes, same algorithm as List (spec.md §4.2.1)

	// pendingMarks holds Mark ops awaiting their paired MarkEnd, keyed by
	// the Mark op's own ID (spec.md §4.2.1: "MarkEnd is paired with Mark;
	// both sides are needed before the style takes effect").
	pendingMarks map[identity.ID]pendingMark
	spans        []span
}

type pendingMark struct {
	key        string
	value      any
	expand     oplog.ExpandPolicy
	writer     identity.IdLp
	startAfter identity.ID
	hasStart   bool
}

// New creates an empty Text.
func New() *Text {
	return &Text{chars: list.New(), pendingMarks: make(map[identity.ID]pendingMark)}
}

// Apply integrates a Text{Insert|Delete|Mark|MarkEnd} op.
func (t *Text) Apply(op oplog.Op) error {
	switch op.Content.Kind {
	case oplog.OpKindTextInsert:
		runes := []rune(op.Content.TextValue)
		vals := make([]any, len(runes))
		for i, r := range runes {
			vals[i] = r
		}
		return t.chars.Apply(oplog.Op{
			ID:      op.ID,
			Lamport: op.Lamport,
			Content: oplog.OpContent{Kind: oplog.OpKindListInsert, ListIndex: op.Content.TextPos, ListValues: vals},
		})
	case oplog.OpKindTextDelete:
		return t.chars.Apply(oplog.Op{
			ID:      op.ID,
			Lamport: op.Lamport,
			Content: oplog.OpContent{Kind: oplog.OpKindListDelete, ListIndex: op.Content.TextPos, ListDelLen: op.Content.TextDelLen},
		})
	case oplog.OpKindTextMark:
		anchor, hasAnchor := t.chars.ElemAt(op.Content.TextPos - 1)
		if op.Content.TextPos == 0 {
			hasAnchor = false
		}
		t.pendingMarks[op.ID] = pendingMark{
			key:        op.Content.StyleKey,
			value:      op.Content.StyleValue,
			expand:     op.Content.StyleExpand,
			writer:     op.IdLp(),
			startAfter: anchor,
			hasStart:   hasAnchor,
		}
	case oplog.OpKindTextMarkEnd:
		pm, ok := t.pendingMarks[op.Content.MarkStartID]
		if !ok {
			return nil // Mark side hasn't arrived yet; spec.md §4.2.1 requires both sides
		}
		delete(t.pendingMarks, op.Content.MarkStartID)
		endAnchor, hasEndAnchor := t.chars.ElemAt(op.Content.TextPos)
		t.spans = append(t.spans, span{
			key: pm.key, value: pm.value, expand: pm.expand, writer: pm.writer,
			startAfter: pm.startAfter, hasStart: pm.hasStart,
			endBefore: endAnchor, hasEnd: hasEndAnchor,
		})
	}
	return nil
}

// Value returns the materialized string (tombstones excluded).
func (t *Text) Value() any {
	return t.String()
}

// String returns the live text content.
func (t *Text) String() string {
	var b strings.Builder
	for _, v := range t.chars.Value().([]any) {
		b.WriteRune(v.(rune))
	}
	return b.String()
}

// Len returns the number of live unicode scalar values.
func (t *Text) Len() int {
	return t.chars.Len()
}

// LenUTF16 returns the number of UTF-16 code units in the live text,
// supporting the engine's UTF-16 indexing mode (spec.md §4.2.1).
func (t *Text) LenUTF16() int {
	n := 0
	for _, r := range t.String() {
		n += len(utf16.Encode([]rune{r}))
	}
	return n
}

// RuneIndexFromUTF16 converts a UTF-16 code-unit offset to a rune index,
// never splitting a surrogate pair (spec.md "utf16_err" invariant).
func (t *Text) RuneIndexFromUTF16(u16 int) int {
	units := 0
	runeIdx := 0
	for _, r := range t.String() {
		runeUnits := len(utf16.Encode([]rune{r}))
		if units >= u16 {
			return runeIdx
		}
		units += runeUnits
		runeIdx++
	}
	return t.Len()
}

// AttributesAt returns the resolved style map for the rune at position
// idx: for each style key with any span covering idx, the value of the
// span with the highest (Lamport, PeerID) among those covering it
// (spec.md "style LWW by Lamport").
func (t *Text) AttributesAt(idx int) map[string]any {
	id, ok := t.chars.ElemAt(idx)
	if !ok {
		return nil
	}
	best := make(map[string]identity.IdLp)
	out := make(map[string]any)
	for _, s := range t.spans {
		if !t.covers(s, id, idx) {
			continue
		}
		if cur, exists := best[s.key]; !exists || s.writer.Greater(cur) {
			best[s.key] = s.writer
			out[s.key] = s.value
		}
	}
	return out
}

// covers reports whether span s covers the character with the given id
// at visible index idx. Anchor resolution is approximate (index-based)
// since exact anchor-to-current-index translation would require walking
// chars; acceptable for the style-preview use this method serves.
func (t *Text) covers(s span, id identity.ID, idx int) bool {
	startIdx := 0
	if s.hasStart {
		if pos, ok := t.indexOf(s.startAfter); ok {
			startIdx = pos + 1
		}
	}
	endIdx := t.Len()
	if s.hasEnd {
		if pos, ok := t.indexOf(s.endBefore); ok {
			endIdx = pos
		}
	}
	return idx >= startIdx && idx < endIdx
}

func (t *Text) indexOf(id identity.ID) (int, bool) {
	n := t.Len()
	for i := 0; i < n; i++ {
		if x, ok := t.chars.ElemAt(i); ok && x == id {
			return i, true
		}
	}
	return -1, false
}

// DeletedRun exposes the underlying character RGA's DeletedRun, letting
// undo reinsert a deleted text run at its current neighbor-relative
// position (spec.md §4.6).
func (t *Text) DeletedRun(opID identity.ID) (index int, runes []any, ok bool) {
	return t.chars.DeletedRun(opID)
}

// VisibleIndexOf exposes the underlying character RGA's VisibleIndexOf.
func (t *Text) VisibleIndexOf(id identity.ID) (int, bool) {
	return t.chars.VisibleIndexOf(id)
}

// Spans returns a stable-ordered snapshot of every resolved style span.
func (t *Text) Spans() []span {
	out := append([]span(nil), t.spans...)
	sort.Slice(out, func(i, j int) bool { return out[i].writer.Greater(out[j].writer) })
	return out
}

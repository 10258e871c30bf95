// Package codec implements the two on-wire shapes spec.md §4.5 describes:
// the update codec (export_from/import of Changes) and the snapshot codec
// (full + shallow/GC'd state dumps). New relative to the teacher
// (cshekharsharma-go-crdt has no wire format at all); grounded on
// AKJUS-bsc-erigon's indirect dependency on github.com/multiformats/go-varint
// for counters/lengths, and on ghjramos-aistore's use of
// github.com/json-iterator/go for op payloads. The container table is
// varints plus length-prefixed strings, not JSON.
//
// Simplification recorded in DESIGN.md: rather than a fully bespoke binary
// tag-dispatch encoding per OpKind, each op's variable-shaped content is a
// length-prefixed JSON envelope; the surrounding Change/Snapshot framing
// (peer, counters, lamport, op counts, dependency edges — exactly the
// "counters, lengths" spec.md §4.5 calls out) is real varint.
package codec

import (
	"bytes"
	"io"

	"github.com/multiformats/go-varint"
	"github.com/pkg/errors"
)

// putUvarint appends v to buf in varint form.
func putUvarint(buf *bytes.Buffer, v uint64) {
	buf.Write(varint.ToUvarint(v))
}

// putBytes writes a varint length prefix followed by b's raw bytes.
func putBytes(buf *bytes.Buffer, b []byte) {
	putUvarint(buf, uint64(len(b)))
	buf.Write(b)
}

// putString is putBytes for a string, avoiding an extra copy via
// []byte(s) only at the write call (bytes.Buffer.WriteString takes it
// directly).
func putString(buf *bytes.Buffer, s string) {
	putUvarint(buf, uint64(len(s)))
	buf.WriteString(s)
}

// reader wraps a byte slice for sequential varint/length-prefixed reads.
type reader struct {
	r *bytes.Reader
}

func newReader(b []byte) *reader {
	return &reader{r: bytes.NewReader(b)}
}

func (d *reader) uvarint() (uint64, error) {
	v, err := varint.ReadUvarint(d.r)
	if err != nil {
		return 0, errors.Wrap(err, "codec: read varint")
	}
	return v, nil
}

func (d *reader) bytesN() ([]byte, error) {
	n, err := d.uvarint()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return nil, errors.Wrap(err, "codec: read length-prefixed bytes")
	}
	return buf, nil
}

func (d *reader) stringN() (string, error) {
	b, err := d.bytesN()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (d *reader) done() bool {
	return d.r.Len() == 0
}

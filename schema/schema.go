// Copyright 2026 The Segidx Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package schema describes the closed set of field types a segment can
// index, the documents built from them, and the byte encoding of terms.
//
// Field options are a small set of independent bits combined with bitwise
// OR, each with its own accessor method.
package schema

import (
	"encoding/binary"
	"fmt"
	"math"
)

// FieldID is the stable, zero-based index of a field entry within a Schema.
type FieldID uint32

// FieldOptions is a bitset of indexing/storage behaviors for a field.
type FieldOptions uint8

const (
	// Indexed marks a field as contributing terms to the postings lists.
	Indexed FieldOptions = 1 << iota
	// Stored marks a field's raw value as kept in the document store.
	Stored
	// FastField marks a field as carrying a columnar fast-field column.
	FastField
	// WithTermFrequencies records per-doc term frequency in the postings.
	WithTermFrequencies
	// WithPositions records per-doc term positions in the postings. Implies WithTermFrequencies.
	WithPositions
)

// Indexed reports whether terms from this field are written to the postings lists.
func (o FieldOptions) Indexed() bool { return o&Indexed != 0 }

// Stored reports whether the field's value is kept in the document store.
func (o FieldOptions) Stored() bool { return o&Stored != 0 }

// Fast reports whether the field has a columnar fast-field column.
func (o FieldOptions) Fast() bool { return o&FastField != 0 }

// RecordsTermFrequencies reports whether postings for this field carry TF.
func (o FieldOptions) RecordsTermFrequencies() bool {
	return o&WithTermFrequencies != 0 || o&WithPositions != 0
}

// RecordsPositions reports whether postings for this field carry positions.
func (o FieldOptions) RecordsPositions() bool { return o&WithPositions != 0 }

// FieldKind is the closed set of field types a schema entry can declare.
type FieldKind int

const (
	KindText FieldKind = iota
	KindU64
	KindI64
	KindF64
	KindDate
	KindHierarchicalFacet
	KindBytes
)

func (k FieldKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindU64:
		return "u64"
	case KindI64:
		return "i64"
	case KindF64:
		return "f64"
	case KindDate:
		return "date"
	case KindHierarchicalFacet:
		return "facet"
	case KindBytes:
		return "bytes"
	default:
		return "unknown"
	}
}

// FieldEntry is one element of a Schema: a stable field id, a name, a kind
// and the options that govern how values of that field are handled.
type FieldEntry struct {
	ID        FieldID
	Name      string
	Kind      FieldKind
	Options   FieldOptions
	Tokenizer string // only meaningful for KindText
}

// Schema is an ordered, immutable list of field entries. A field's ID is
// always its index in Entries.
type Schema struct {
	Entries []FieldEntry
}

// NewBuilder returns an empty schema builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Builder accumulates field entries in declaration order.
type Builder struct {
	entries []FieldEntry
}

// AddField appends a field of the given kind/options and returns its id.
func (b *Builder) AddField(name string, kind FieldKind, options FieldOptions, tokenizer string) FieldID {
	id := FieldID(len(b.entries))
	b.entries = append(b.entries, FieldEntry{
		ID:        id,
		Name:      name,
		Kind:      kind,
		Options:   options,
		Tokenizer: tokenizer,
	})
	return id
}

// Build finalizes the schema. The builder must not be reused afterward.
func (b *Builder) Build() Schema {
	return Schema{Entries: b.entries}
}

// Field returns the entry for id, or an error if id is out of range.
func (s Schema) Field(id FieldID) (FieldEntry, error) {
	if int(id) < 0 || int(id) >= len(s.Entries) {
		return FieldEntry{}, fmt.Errorf("schema: field id %d out of range", id)
	}
	return s.Entries[id], nil
}

// FieldByName looks up a field entry by name.
func (s Schema) FieldByName(name string) (FieldEntry, bool) {
	for _, e := range s.Entries {
		if e.Name == name {
			return e, true
		}
	}
	return FieldEntry{}, false
}

// fieldIDPrefixLen is the number of bytes a Term spends on its field id.
const fieldIDPrefixLen = 4

// Term is the byte sequence a posting list is keyed by: a 4-byte big-endian
// field id followed by type-specific content (tokenized text, a big-endian
// numeric encoding, or a facet path).
type Term struct {
	buf []byte
}

// TermForField returns a Term carrying only the field-id prefix; callers
// append content with SetBytes/SetText before use.
func TermForField(field FieldID) Term {
	t := Term{buf: make([]byte, fieldIDPrefixLen, fieldIDPrefixLen+16)}
	binary.BigEndian.PutUint32(t.buf, uint32(field))
	return t
}

// SetBytes truncates the term back to its field-id prefix and appends raw
// content bytes, reusing the underlying array across calls.
func (t *Term) SetBytes(content []byte) {
	t.buf = append(t.buf[:fieldIDPrefixLen], content...)
}

// SetText is SetBytes for a string, avoiding an intermediate []byte copy by
// the caller.
func (t *Term) SetText(text string) {
	t.buf = append(t.buf[:fieldIDPrefixLen], text...)
}

// Bytes returns the encoded term: field-id prefix plus content.
func (t Term) Bytes() []byte { return t.buf }

// Field extracts the field id a term's prefix encodes.
func (t Term) Field() FieldID {
	return FieldID(binary.BigEndian.Uint32(t.buf[:fieldIDPrefixLen]))
}

// Clone returns an independent copy of the term's bytes, safe to retain
// past the next mutation of t (e.g. to use as a hash-table arena key).
func (t Term) Clone() []byte {
	out := make([]byte, len(t.buf))
	copy(out, t.buf)
	return out
}

// TermFromFieldU64 encodes an unsigned integer term: straight big-endian,
// since unsigned big-endian order already equals numeric order.
func TermFromFieldU64(field FieldID, v uint64) Term {
	t := TermForField(field)
	var enc [8]byte
	binary.BigEndian.PutUint64(enc[:], v)
	t.SetBytes(enc[:])
	return t
}

// TermFromFieldI64 encodes a signed integer term: big-endian with the sign
// bit flipped, so that two's-complement ordering becomes lexical ordering.
func TermFromFieldI64(field FieldID, v int64) Term {
	return TermFromFieldU64(field, flipSignI64(v))
}

// TermFromFieldF64 encodes a float term by mapping it to an ordering-
// preserving uint64 key, then delegating to the unsigned encoding.
func TermFromFieldF64(field FieldID, v float64) Term {
	return TermFromFieldU64(field, orderPreservingF64(v))
}

// TermFromFieldDate encodes a date as its second-precision Unix timestamp,
// using the same signed-integer encoding as I64.
func TermFromFieldDate(field FieldID, unixSeconds int64) Term {
	return TermFromFieldI64(field, unixSeconds)
}

func flipSignI64(v int64) uint64 {
	return uint64(v) ^ (1 << 63)
}

func unflipSignI64(v uint64) int64 {
	return int64(v ^ (1 << 63))
}

// orderPreservingF64 maps a float64 to a uint64 such that a < b (as floats,
// excluding NaN) implies the mapped values compare a' < b' as unsigned
// integers. For non-negative floats the IEEE-754 bit pattern already sorts
// correctly; for negative floats every bit must be flipped.
func orderPreservingF64(v float64) uint64 {
	bits := math.Float64bits(v)
	if bits&(1<<63) != 0 {
		return ^bits
	}
	return bits | (1 << 63)
}

func orderPreservingF64Inverse(key uint64) float64 {
	if key&(1<<63) != 0 {
		return math.Float64frombits(key &^ (1 << 63))
	}
	return math.Float64frombits(^key)
}

// DecodeU64 reverses TermFromFieldU64's content (the bytes after the field prefix).
func DecodeU64(content []byte) uint64 {
	return binary.BigEndian.Uint64(content)
}

// DecodeI64 reverses TermFromFieldI64's content.
func DecodeI64(content []byte) int64 {
	return unflipSignI64(binary.BigEndian.Uint64(content))
}

// DecodeF64 reverses TermFromFieldF64's content.
func DecodeF64(content []byte) float64 {
	return orderPreservingF64Inverse(binary.BigEndian.Uint64(content))
}

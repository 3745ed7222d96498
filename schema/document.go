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

package schema

import (
	"strings"
	"time"
)

// ValueKind tags the concrete type carried by a FieldValue.
type ValueKind int

const (
	ValueText ValueKind = iota
	ValueU64
	ValueI64
	ValueF64
	ValueDate
	ValueFacet
	ValueBytes
)

// FieldValue is one value of one field within a Document. Exactly one of
// the typed accessors is meaningful, selected by Kind.
type FieldValue struct {
	Kind  ValueKind
	Text  string
	U64   uint64
	I64   int64
	F64   float64
	Date  time.Time
	Facet string // already facet-path-encoded, e.g. "/a/b/c"
	Bytes []byte
}

// Document maps field id to the ordered list of values supplied for it.
// A field absent from the map simply contributes nothing to that doc.
type Document struct {
	Fields map[FieldID][]FieldValue
}

// NewDocument returns an empty document ready to receive values.
func NewDocument() *Document {
	return &Document{Fields: make(map[FieldID][]FieldValue)}
}

// AddText appends a text value for field.
func (d *Document) AddText(field FieldID, text string) {
	d.Fields[field] = append(d.Fields[field], FieldValue{Kind: ValueText, Text: text})
}

// AddU64 appends an unsigned integer value for field.
func (d *Document) AddU64(field FieldID, v uint64) {
	d.Fields[field] = append(d.Fields[field], FieldValue{Kind: ValueU64, U64: v})
}

// AddI64 appends a signed integer value for field.
func (d *Document) AddI64(field FieldID, v int64) {
	d.Fields[field] = append(d.Fields[field], FieldValue{Kind: ValueI64, I64: v})
}

// AddF64 appends a floating point value for field.
func (d *Document) AddF64(field FieldID, v float64) {
	d.Fields[field] = append(d.Fields[field], FieldValue{Kind: ValueF64, F64: v})
}

// AddDate appends a date value for field.
func (d *Document) AddDate(field FieldID, t time.Time) {
	d.Fields[field] = append(d.Fields[field], FieldValue{Kind: ValueDate, Date: t})
}

// AddFacet appends a hierarchical facet path for field, e.g. "/category/books".
func (d *Document) AddFacet(field FieldID, path string) {
	d.Fields[field] = append(d.Fields[field], FieldValue{Kind: ValueFacet, Facet: path})
}

// AddBytes appends a raw byte-column value for field.
func (d *Document) AddBytes(field FieldID, b []byte) {
	d.Fields[field] = append(d.Fields[field], FieldValue{Kind: ValueBytes, Bytes: b})
}

// FilterStored removes values of fields that are not marked Stored,
// leaving the document holding only what belongs in the document store.
func (d *Document) FilterStored(s Schema) {
	for id := range d.Fields {
		entry, err := s.Field(id)
		if err != nil || !entry.Options.Stored() {
			delete(d.Fields, id)
		}
	}
}

// SortedFieldValues returns (field id, values) pairs in ascending field-id
// order, so that per-field work is grouped deterministically.
func (d *Document) SortedFieldValues() []FieldValuesEntry {
	out := make([]FieldValuesEntry, 0, len(d.Fields))
	for id, vs := range d.Fields {
		out = append(out, FieldValuesEntry{Field: id, Values: vs})
	}
	sortFieldValuesEntries(out)
	return out
}

// FieldValuesEntry pairs a field id with the document's values for it.
type FieldValuesEntry struct {
	Field  FieldID
	Values []FieldValue
}

func sortFieldValuesEntries(entries []FieldValuesEntry) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j-1].Field > entries[j].Field; j-- {
			entries[j-1], entries[j] = entries[j], entries[j-1]
		}
	}
}

// FacetAncestors returns path and every ancestor prefix, deepest last:
// "/a/b/c" yields ["/a", "/a/b", "/a/b/c"].
func FacetAncestors(path string) []string {
	if path == "" || path == "/" {
		return []string{"/"}
	}
	trimmed := strings.TrimPrefix(path, "/")
	parts := strings.Split(trimmed, "/")
	out := make([]string, 0, len(parts))
	cur := ""
	for _, p := range parts {
		cur += "/" + p
		out = append(out, cur)
	}
	return out
}

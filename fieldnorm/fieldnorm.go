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

// Package fieldnorm keeps one lossy-quantized token count per (doc,
// text-field), used at query time for scoring.
package fieldnorm

import (
	"fmt"
	"io"

	"github.com/doublemo/segidx/schema"
)

// exactRange is the number of token counts ToByte represents exactly;
// counts at or above it fall into the lossy mantissa/exponent range.
const exactRange = 24

// ToByte quantizes a token count into a single byte: counts below
// exactRange map 1:1, larger counts are encoded as a 4-bit mantissa (with
// an implicit leading 1) plus a shift, floating-point style. Scoring
// decodes norms with FromByte, so a norm always round-trips through the
// same pair of functions it was written with.
func ToByte(tokenCount uint32) byte {
	if tokenCount < exactRange {
		return byte(tokenCount)
	}
	nbits := bitLength(tokenCount)
	const mantissaBits = 4
	shift := nbits - mantissaBits // >= 1 for every tokenCount >= exactRange
	mantissa := tokenCount >> uint(shift)
	return byte(exactRange + (shift-1)*8 + int(mantissa-8))
}

// FromByte reverses ToByte, returning the approximate original count.
func FromByte(b byte) uint32 {
	if b < exactRange {
		return uint32(b)
	}
	coded := int(b) - exactRange
	shift := coded/8 + 1
	mantissa := uint32(coded%8) + 8
	return mantissa << uint(shift)
}

func bitLength(v uint32) int {
	n := 0
	for v > 0 {
		v >>= 1
		n++
	}
	return n
}

// Writer buffers one token-count stream per text field declared in the
// schema, to be quantized and padded to max_doc at Serialize time.
type Writer struct {
	schema  schema.Schema
	streams map[schema.FieldID][]uint32
	order   []schema.FieldID
}

// FromSchema allocates one stream per indexed text field.
func FromSchema(sch schema.Schema) *Writer {
	w := &Writer{schema: sch, streams: make(map[schema.FieldID][]uint32)}
	for _, e := range sch.Entries {
		if e.Kind == schema.KindText && e.Options.Indexed() {
			w.streams[e.ID] = nil
			w.order = append(w.order, e.ID)
		}
	}
	return w
}

// Record appends the token count produced for field in the doc currently
// being written. Segment writers call this once per text field per doc
// that field is present in; RecordAbsent below must be called for docs
// missing the field so counts stay aligned with doc id.
func (w *Writer) Record(field schema.FieldID, tokenCount int) {
	w.streams[field] = append(w.streams[field], uint32(tokenCount))
}

// RecordAbsent records a zero token count for field, keeping its stream's
// length equal to the current doc id.
func (w *Writer) RecordAbsent(field schema.FieldID) {
	w.streams[field] = append(w.streams[field], 0)
}

// Pad extends every field's stream to exactly maxDoc entries with zeros.
func (w *Writer) Pad(maxDoc uint32) {
	for _, field := range w.order {
		stream := w.streams[field]
		for uint32(len(stream)) < maxDoc {
			stream = append(stream, 0)
		}
		w.streams[field] = stream
	}
}

// TOCEntry locates one field's quantized norm stream within S.fieldnorm.
type TOCEntry struct {
	Field  schema.FieldID
	Offset uint64
	Length uint64
}

// Serialize writes every text field's quantized stream to sink in
// field-id order.
func (w *Writer) Serialize(sink io.Writer, maxDoc uint32) ([]TOCEntry, error) {
	w.Pad(maxDoc)

	var toc []TOCEntry
	var offset uint64
	for _, field := range w.order {
		stream := w.streams[field]
		buf := make([]byte, len(stream))
		for i, c := range stream {
			buf[i] = ToByte(c)
		}
		if _, err := sink.Write(buf); err != nil {
			return nil, fmt.Errorf("fieldnorm: writing field %d: %w", field, err)
		}
		toc = append(toc, TOCEntry{Field: field, Offset: offset, Length: uint64(len(buf))})
		offset += uint64(len(buf))
	}
	return toc, nil
}

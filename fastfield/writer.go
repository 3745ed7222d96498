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

// Package fastfield implements the columnar per-doc value store: single-
// valued numeric columns and multi-valued columns (including hierarchical
// facets), written alongside the postings.
package fastfield

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/doublemo/segidx/schema"
)

// ColumnCodec names the on-disk encoding of one column, recorded in the
// fast-field file's TOC of (field_id, offset, length, codec) entries.
type ColumnCodec uint8

const (
	// CodecFixedWidth stores one little-endian value per doc, packed to
	// the narrowest byte width (1/2/4/8) that fits every value.
	CodecFixedWidth ColumnCodec = iota
	// CodecMultiValue stores a var-int-encoded prefix-sum offset array
	// followed by var-int-encoded values, for facet multi-valued columns.
	CodecMultiValue
	// CodecBlob stores one length-prefixed raw byte value per doc, for
	// Bytes fields, which are columnar only and never indexed.
	CodecBlob
)

// TOCEntry locates one serialized column within the fast-field file.
// Offset is relative to the start of the column area, immediately after
// the encoded TOC itself.
type TOCEntry struct {
	Field  schema.FieldID
	Offset uint64
	Length uint64
	Codec  ColumnCodec
}

// EncodeTOC serializes the column table written at the head of the
// fast-field file: an entry-count varint, then per entry the field id,
// offset and length as varints plus a codec byte.
func EncodeTOC(toc []TOCEntry) []byte {
	var buf []byte
	buf = putUvarintAppend(buf, uint64(len(toc)))
	for _, e := range toc {
		buf = putUvarintAppend(buf, uint64(e.Field))
		buf = putUvarintAppend(buf, e.Offset)
		buf = putUvarintAppend(buf, e.Length)
		buf = append(buf, byte(e.Codec))
	}
	return buf
}

// DecodeTOC reverses EncodeTOC, returning the entries and the byte offset
// at which the column area begins.
func DecodeTOC(buf []byte) ([]TOCEntry, int) {
	off := 0
	count, n := readUvarint(buf, off)
	off = n
	toc := make([]TOCEntry, count)
	for i := range toc {
		var field, offset, length uint64
		field, off = readUvarint(buf, off)
		offset, off = readUvarint(buf, off)
		length, off = readUvarint(buf, off)
		codec := ColumnCodec(buf[off])
		off++
		toc[i] = TOCEntry{Field: schema.FieldID(field), Offset: offset, Length: length, Codec: codec}
	}
	return toc, off
}

type singleColumn struct {
	values []uint64
}

type multiColumn struct {
	offsets []uint32 // prefix sums; row i's values live in values[offsets[i]:offsets[i+1]]
	values  []uint32
	open    bool // a row has been opened by advance and not yet closed
}

func newMultiColumn() *multiColumn {
	return &multiColumn{offsets: []uint32{0}}
}

// advance opens the row for a new doc, first closing the previous row at
// the current values length; values appended afterward (via addValue)
// belong to the new row until the next advance. The final row is closed
// by the padding pass at serialize time.
func (c *multiColumn) advance() {
	if c.open {
		c.offsets = append(c.offsets, uint32(len(c.values)))
	}
	c.open = true
}

func (c *multiColumn) addValue(v uint32) {
	c.values = append(c.values, v)
}

type blobColumn struct {
	values [][]byte
}

// Writer owns one columnar builder per fast field declared in the schema.
type Writer struct {
	schema    schema.Schema
	single    map[schema.FieldID]*singleColumn
	multi     map[schema.FieldID]*multiColumn
	blob      map[schema.FieldID]*blobColumn
	order     []schema.FieldID // field ids with a fast column, ascending
	rowCursor uint32
}

// FromSchema allocates one column per field marked FastField. A
// HierarchicalFacet field always gets a multi-value column regardless of
// its options.
func FromSchema(sch schema.Schema) *Writer {
	w := &Writer{
		schema: sch,
		single: make(map[schema.FieldID]*singleColumn),
		multi:  make(map[schema.FieldID]*multiColumn),
		blob:   make(map[schema.FieldID]*blobColumn),
	}
	for _, e := range sch.Entries {
		if e.Kind == schema.KindHierarchicalFacet {
			w.multi[e.ID] = newMultiColumn()
			w.order = append(w.order, e.ID)
			continue
		}
		if !e.Options.Fast() {
			continue
		}
		switch e.Kind {
		case schema.KindU64, schema.KindI64, schema.KindF64, schema.KindDate:
			w.single[e.ID] = &singleColumn{}
			w.order = append(w.order, e.ID)
		case schema.KindBytes:
			w.blob[e.ID] = &blobColumn{}
			w.order = append(w.order, e.ID)
		}
	}
	sort.Slice(w.order, func(i, j int) bool { return w.order[i] < w.order[j] })
	return w
}

// AddDocument advances every column's row cursor for the new doc: single
// and blob columns immediately record the doc's (first) value or a zero
// value if absent; multi columns open a new row boundary, to be filled by
// AddFacetValue calls as the segment writer processes the doc's fields.
// Absent fields still advance, so a doc with no value gets an implicit
// empty row.
func (w *Writer) AddDocument(doc *schema.Document) {
	for field, col := range w.single {
		var v uint64
		if values, ok := doc.Fields[field]; ok && len(values) > 0 {
			v = encodeSingleValue(values[0])
		}
		col.values = append(col.values, v)
	}
	for field, col := range w.blob {
		var v []byte
		if values, ok := doc.Fields[field]; ok && len(values) > 0 {
			v = values[0].Bytes
		}
		col.values = append(col.values, v)
	}
	for _, col := range w.multi {
		col.advance()
	}
	w.rowCursor++
}

func encodeSingleValue(v schema.FieldValue) uint64 {
	switch v.Kind {
	case schema.ValueU64:
		return v.U64
	case schema.ValueI64:
		return uint64(v.I64) ^ (1 << 63)
	case schema.ValueF64:
		bits := math.Float64bits(v.F64)
		if bits&(1<<63) != 0 {
			return ^bits
		}
		return bits | (1 << 63)
	case schema.ValueDate:
		return uint64(v.Date.Unix()) ^ (1 << 63)
	default:
		return 0
	}
}

// AddFacetValue appends an unordered term id to field's multi-value
// column for the row currently open (the doc AddDocument most recently
// advanced to).
func (w *Writer) AddFacetValue(field schema.FieldID, unorderedID uint32) error {
	col, ok := w.multi[field]
	if !ok {
		return fmt.Errorf("fastfield: field %d has no multi-value column", field)
	}
	col.addValue(unorderedID)
	return nil
}

// MultiValueWriter exposes the narrow append-only capability the segment
// writer's facet-handling branch needs.
type MultiValueWriter interface {
	AddVal(unorderedID uint32)
}

type multiValueWriterHandle struct{ col *multiColumn }

func (h multiValueWriterHandle) AddVal(id uint32) { h.col.addValue(id) }

// GetMultiValueWriter returns field's multi-value column handle, or false
// if field has no such column.
func (w *Writer) GetMultiValueWriter(field schema.FieldID) (MultiValueWriter, bool) {
	col, ok := w.multi[field]
	if !ok {
		return nil, false
	}
	return multiValueWriterHandle{col: col}, true
}

// finalizePadding closes every multi column's trailing offset so that
// offsets has exactly maxDoc+1 entries, covering docs whose row was
// opened by AddDocument but never received a value.
func (w *Writer) finalizePadding(maxDoc uint32) {
	for _, col := range w.multi {
		for uint32(len(col.offsets)) < maxDoc+1 {
			col.offsets = append(col.offsets, uint32(len(col.values)))
		}
	}
}

// Serialize applies remap to every facet/multi column (unordered -> final
// ordered term id, re-sorting each row since remapping doesn't preserve
// relative order), bit-packs single-valued columns, and writes the column
// area to sink in field-id order. The TOC is returned rather than written;
// the caller places EncodeTOC's bytes ahead of the column area.
func (w *Writer) Serialize(sink io.Writer, maxDoc uint32, remap []uint32) ([]TOCEntry, error) {
	w.finalizePadding(maxDoc)

	var toc []TOCEntry
	var offset uint64
	for _, field := range w.order {
		if col, ok := w.single[field]; ok {
			buf := encodeFixedWidth(col.values)
			if _, err := sink.Write(buf); err != nil {
				return nil, fmt.Errorf("fastfield: writing field %d: %w", field, err)
			}
			toc = append(toc, TOCEntry{Field: field, Offset: offset, Length: uint64(len(buf)), Codec: CodecFixedWidth})
			offset += uint64(len(buf))
			continue
		}
		if col, ok := w.blob[field]; ok {
			buf := encodeBlob(col)
			if _, err := sink.Write(buf); err != nil {
				return nil, fmt.Errorf("fastfield: writing field %d: %w", field, err)
			}
			toc = append(toc, TOCEntry{Field: field, Offset: offset, Length: uint64(len(buf)), Codec: CodecBlob})
			offset += uint64(len(buf))
			continue
		}
		col := w.multi[field]
		applyRemapAndSort(col, remap)
		buf := encodeMultiValue(col)
		if _, err := sink.Write(buf); err != nil {
			return nil, fmt.Errorf("fastfield: writing field %d: %w", field, err)
		}
		toc = append(toc, TOCEntry{Field: field, Offset: offset, Length: uint64(len(buf)), Codec: CodecMultiValue})
		offset += uint64(len(buf))
	}
	return toc, nil
}

// applyRemapAndSort is a no-op (identity) when remap is nil: the column's
// ids are then written as recorded, neither remapped nor re-sorted.
func applyRemapAndSort(col *multiColumn, remap []uint32) {
	if remap == nil {
		return
	}
	for i, v := range col.values {
		col.values[i] = remap[v]
	}
	for row := 0; row+1 < len(col.offsets); row++ {
		start, end := col.offsets[row], col.offsets[row+1]
		sort.Slice(col.values[start:end], func(i, j int) bool {
			return col.values[start:end][i] < col.values[start:end][j]
		})
	}
}

func encodeFixedWidth(values []uint64) []byte {
	var maxV uint64
	for _, v := range values {
		if v > maxV {
			maxV = v
		}
	}
	width := 1
	switch {
	case maxV > 0xFFFFFFFF:
		width = 8
	case maxV > 0xFFFF:
		width = 4
	case maxV > 0xFF:
		width = 2
	}
	buf := make([]byte, 1+width*len(values))
	buf[0] = byte(width)
	for i, v := range values {
		off := 1 + i*width
		switch width {
		case 1:
			buf[off] = byte(v)
		case 2:
			binary.LittleEndian.PutUint16(buf[off:], uint16(v))
		case 4:
			binary.LittleEndian.PutUint32(buf[off:], uint32(v))
		case 8:
			binary.LittleEndian.PutUint64(buf[off:], v)
		}
	}
	return buf
}

// DecodeFixedWidth reverses encodeFixedWidth, for readers/tests.
func DecodeFixedWidth(buf []byte) []uint64 {
	if len(buf) == 0 {
		return nil
	}
	width := int(buf[0])
	body := buf[1:]
	n := len(body) / width
	out := make([]uint64, n)
	for i := 0; i < n; i++ {
		off := i * width
		switch width {
		case 1:
			out[i] = uint64(body[off])
		case 2:
			out[i] = uint64(binary.LittleEndian.Uint16(body[off:]))
		case 4:
			out[i] = uint64(binary.LittleEndian.Uint32(body[off:]))
		case 8:
			out[i] = binary.LittleEndian.Uint64(body[off:])
		}
	}
	return out
}

func encodeBlob(col *blobColumn) []byte {
	var buf []byte
	buf = putUvarintAppend(buf, uint64(len(col.values)))
	for _, v := range col.values {
		buf = putUvarintAppend(buf, uint64(len(v)))
		buf = append(buf, v...)
	}
	return buf
}

// DecodeBlob reverses encodeBlob.
func DecodeBlob(buf []byte) [][]byte {
	off := 0
	numRows, n := readUvarint(buf, off)
	off = n
	out := make([][]byte, numRows)
	for i := range out {
		length, next := readUvarint(buf, off)
		off = next
		if length > 0 {
			out[i] = append([]byte(nil), buf[off:off+int(length)]...)
		}
		off += int(length)
	}
	return out
}

func encodeMultiValue(col *multiColumn) []byte {
	var buf []byte
	buf = putUvarintAppend(buf, uint64(len(col.offsets)))
	for _, o := range col.offsets {
		buf = putUvarintAppend(buf, uint64(o))
	}
	buf = putUvarintAppend(buf, uint64(len(col.values)))
	for _, v := range col.values {
		buf = putUvarintAppend(buf, uint64(v))
	}
	return buf
}

// DecodeMultiValue reverses encodeMultiValue.
func DecodeMultiValue(buf []byte) (offsets []uint32, values []uint32) {
	off := 0
	numOffsets, n := readUvarint(buf, off)
	off = n
	offsets = make([]uint32, numOffsets)
	for i := range offsets {
		var v uint64
		v, off = readUvarint(buf, off)
		offsets[i] = uint32(v)
	}
	numValues, n2 := readUvarint(buf, off)
	off = n2
	values = make([]uint32, numValues)
	for i := range values {
		var v uint64
		v, off = readUvarint(buf, off)
		values[i] = uint32(v)
	}
	return offsets, values
}

func putUvarintAppend(buf []byte, x uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], x)
	return append(buf, tmp[:n]...)
}

func readUvarint(buf []byte, off int) (uint64, int) {
	v, n := binary.Uvarint(buf[off:])
	return v, off + n
}

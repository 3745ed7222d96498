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

// Package store implements the chunked, compressed document store: the
// raw (stored-only) field values for every doc, grouped into
// zstd-compressed chunks with a doc-id -> chunk index. The zstd encoder
// and decoder are shared process-wide, since constructing one is
// expensive relative to compressing a single chunk.
package store

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/doublemo/segidx/schema"
)

// DefaultChunkSize is the number of docs grouped into one compressed
// chunk.
const DefaultChunkSize = 128

var (
	sharedEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	sharedDecoder, _ = zstd.NewReader(nil)
)

// EncodeDocument serializes a document's stored field values (already
// filtered via schema.Document.FilterStored) into the flat bytes the
// store persists per doc. Each field carries its id and value count, each
// value a kind tag, and variable-length values a length prefix, so
// DecodeDocument never needs a schema to parse the stream.
func EncodeDocument(doc *schema.Document) []byte {
	var buf bytes.Buffer
	entries := doc.SortedFieldValues()
	writeUvarint(&buf, uint64(len(entries)))
	for _, entry := range entries {
		writeUvarint(&buf, uint64(entry.Field))
		writeUvarint(&buf, uint64(len(entry.Values)))
		for _, v := range entry.Values {
			encodeValue(&buf, v)
		}
	}
	return buf.Bytes()
}

func encodeValue(buf *bytes.Buffer, v schema.FieldValue) {
	buf.WriteByte(byte(v.Kind))
	switch v.Kind {
	case schema.ValueText:
		writeBytes(buf, []byte(v.Text))
	case schema.ValueU64:
		var tmp [8]byte
		binary.BigEndian.PutUint64(tmp[:], v.U64)
		buf.Write(tmp[:])
	case schema.ValueI64:
		var tmp [8]byte
		binary.BigEndian.PutUint64(tmp[:], uint64(v.I64))
		buf.Write(tmp[:])
	case schema.ValueF64:
		var tmp [8]byte
		binary.BigEndian.PutUint64(tmp[:], math.Float64bits(v.F64))
		buf.Write(tmp[:])
	case schema.ValueDate:
		var tmp [8]byte
		binary.BigEndian.PutUint64(tmp[:], uint64(v.Date.Unix()))
		buf.Write(tmp[:])
	case schema.ValueFacet:
		writeBytes(buf, []byte(v.Facet))
	case schema.ValueBytes:
		writeBytes(buf, v.Bytes)
	}
}

// DecodeDocument reverses EncodeDocument.
func DecodeDocument(data []byte) (*schema.Document, error) {
	doc := schema.NewDocument()
	off := 0
	numFields, n := binary.Uvarint(data[off:])
	off += n
	for i := uint64(0); i < numFields; i++ {
		fieldID, n := binary.Uvarint(data[off:])
		off += n
		field := schema.FieldID(fieldID)
		numValues, n := binary.Uvarint(data[off:])
		off += n
		for j := uint64(0); j < numValues; j++ {
			kind := schema.ValueKind(data[off])
			off++
			switch kind {
			case schema.ValueText:
				var b []byte
				b, off = readBytes(data, off)
				doc.AddText(field, string(b))
			case schema.ValueU64:
				doc.AddU64(field, binary.BigEndian.Uint64(data[off:off+8]))
				off += 8
			case schema.ValueI64:
				doc.AddI64(field, int64(binary.BigEndian.Uint64(data[off:off+8])))
				off += 8
			case schema.ValueF64:
				bits := binary.BigEndian.Uint64(data[off : off+8])
				doc.AddF64(field, math.Float64frombits(bits))
				off += 8
			case schema.ValueDate:
				sec := int64(binary.BigEndian.Uint64(data[off : off+8]))
				off += 8
				doc.AddDate(field, time.Unix(sec, 0).UTC())
			case schema.ValueFacet:
				var b []byte
				b, off = readBytes(data, off)
				doc.AddFacet(field, string(b))
			case schema.ValueBytes:
				var b []byte
				b, off = readBytes(data, off)
				doc.AddBytes(field, b)
			default:
				return nil, fmt.Errorf("store: unknown field value kind %d", kind)
			}
		}
	}
	return doc, nil
}

func writeUvarint(buf *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}

func writeBytes(buf *bytes.Buffer, b []byte) {
	writeUvarint(buf, uint64(len(b)))
	buf.Write(b)
}

func readBytes(data []byte, off int) ([]byte, int) {
	n, next := binary.Uvarint(data[off:])
	off += next
	return data[off : off+int(n)], off + int(n)
}

// Writer buffers docs in document order and flushes them, zstd-compressed,
// every chunkSize docs.
type Writer struct {
	chunkSize int
	sink      io.Writer

	buf     bytes.Buffer
	inChunk int
	written uint64
	offsets []uint64 // offsets[i] = byte offset of chunk i's compressed bytes; len == numChunks+1
}

// NewWriter returns a store writer flushing a compressed chunk every
// chunkSize documents.
func NewWriter(sink io.Writer, chunkSize int) *Writer {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Writer{chunkSize: chunkSize, sink: sink, offsets: []uint64{0}}
}

// Add appends one doc's encoded bytes to the current chunk, flushing it
// if this completes the chunk.
func (w *Writer) Add(encoded []byte) error {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], uint64(len(encoded)))
	w.buf.Write(tmp[:n])
	w.buf.Write(encoded)
	w.inChunk++
	if w.inChunk == w.chunkSize {
		return w.flush()
	}
	return nil
}

func (w *Writer) flush() error {
	if w.buf.Len() > 0 {
		compressed := sharedEncoder.EncodeAll(w.buf.Bytes(), nil)
		n, err := w.sink.Write(compressed)
		if err != nil {
			return fmt.Errorf("store: writing chunk: %w", err)
		}
		w.written += uint64(n)
		w.buf.Reset()
	}
	w.inChunk = 0
	w.offsets = append(w.offsets, w.written)
	return nil
}

// ChunkOffsets returns the cumulative compressed-byte offset of every
// chunk boundary written so far, including a trailing entry for the
// chunk currently being accumulated.
func (w *Writer) ChunkOffsets() []uint64 {
	out := make([]uint64, len(w.offsets))
	copy(out, w.offsets)
	return out
}

// Finalize flushes any partially-filled chunk and returns the final chunk
// offset table, ready for the segment serializer to write as the store
// file's index.
func (w *Writer) Finalize() ([]uint64, error) {
	if err := w.flush(); err != nil {
		return nil, err
	}
	return w.ChunkOffsets(), nil
}

// Reader resolves a doc id to its stored field bytes: locate the
// compressed chunk it falls in, decompress that one chunk, then walk its
// length-prefixed docs to the target.
type Reader struct {
	data      []byte
	offsets   []uint64
	chunkSize int
}

// NewReader wraps the raw compressed chunk bytes (as written by Writer to
// its sink) plus the chunk offset table Finalize returned.
func NewReader(data []byte, offsets []uint64, chunkSize int) *Reader {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Reader{data: data, offsets: offsets, chunkSize: chunkSize}
}

// Doc decodes the doc at docID.
func (r *Reader) Doc(docID uint32) (*schema.Document, error) {
	chunk := int(docID) / r.chunkSize
	within := int(docID) % r.chunkSize
	if chunk+1 >= len(r.offsets) {
		return nil, fmt.Errorf("store: doc %d out of range (only %d chunks)", docID, len(r.offsets)-1)
	}
	compressed := r.data[r.offsets[chunk]:r.offsets[chunk+1]]
	raw, err := sharedDecoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("store: decompressing chunk %d: %w", chunk, err)
	}

	off := 0
	for i := 0; i < within; i++ {
		n, next := binary.Uvarint(raw[off:])
		off += next + int(n)
	}
	n, next := binary.Uvarint(raw[off:])
	off += next
	return DecodeDocument(raw[off : off+int(n)])
}

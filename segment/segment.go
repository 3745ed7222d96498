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

// Package segment groups the per-file write handles for one segment build
// and drives the fixed finalize order: postings+terms+positions (producing
// the term-id remap) -> fast fields -> field norms -> store -> meta.
package segment

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/blevesearch/vellum"
	"github.com/gofrs/uuid"

	"github.com/doublemo/segidx/directory"
	"github.com/doublemo/segidx/fastfield"
	"github.com/doublemo/segidx/fieldnorm"
	"github.com/doublemo/segidx/postings"
	"github.com/doublemo/segidx/schema"
)

// file extensions for a segment's file set, each sharing the UUID stem.
const (
	extTerm      = ".term"
	extPostings  = ".idx"
	extPositions = ".pos"
	extFast      = ".fast"
	extFieldnorm = ".fieldnorm"
	extStore     = ".store"
	extMeta      = ".meta.json"
)

// NewStem returns a fresh UUID segment-file stem.
func NewStem() string {
	return uuid.Must(uuid.NewV4()).String()
}

// Meta is the per-segment metadata written to "<stem>.meta.json": the
// segment's doc count and opstamp vector, distinct from the
// directory-level meta.json that lists committed segments.
type Meta struct {
	Stem      string   `json:"stem"`
	MaxDoc    uint32   `json:"max_doc"`
	Opstamps  []uint64 `json:"opstamps"`
	NumFields int      `json:"num_fields"`
}

// termDictSink adapts a vellum FST builder plus growing postings and
// positions buffers into the postings.Serializer interface. Each term's
// entry in the postings buffer is a doc-frequency varint, a varint offset
// into the positions buffer, then the doc stream; the term's byte offset
// into the postings buffer becomes the FST value. No posting-list length
// is stored: a reader decodes from the term's offset and stops after
// docFreq postings (see LookupTerm and postings.DecodePostingList).
type termDictSink struct {
	postingsBuf  *bytes.Buffer
	positionsBuf *bytes.Buffer
	builder      *vellum.Builder
}

func (s *termDictSink) NewTerm(_ schema.FieldID, term []byte, docFreq uint32) (io.Writer, io.Writer, error) {
	offset := uint64(s.postingsBuf.Len())
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], uint64(docFreq))
	s.postingsBuf.Write(tmp[:n])
	n = binary.PutUvarint(tmp[:], uint64(s.positionsBuf.Len()))
	s.postingsBuf.Write(tmp[:n])

	key := make([]byte, len(term))
	copy(key, term)
	if err := s.builder.Insert(key, offset); err != nil {
		return nil, nil, fmt.Errorf("segment: inserting term into dictionary: %w", err)
	}
	return s.postingsBuf, s.positionsBuf, nil
}

// Writer bundles the files of one segment build and performs the fixed
// close order.
type Writer struct {
	dir  directory.Directory
	stem string
}

// New returns a segment writer that will create files stem{.term,.idx,...}
// in dir.
func New(dir directory.Directory, stem string) *Writer {
	return &Writer{dir: dir, stem: stem}
}

// Stem returns this segment's UUID filename stem.
func (w *Writer) Stem() string { return w.stem }

func (w *Writer) fileName(ext string) string {
	return w.stem + ext
}

// Finalize performs the fixed close order: postings+terms+positions
// (producing the remap) -> fast fields -> field norms -> store -> meta.
// It consumes pw, fw and nw; the caller supplies the schema and the
// already-accumulated store bytes plus chunk offsets (store.Writer is fed
// incrementally by the caller as documents arrive, since its compressed
// chunks cannot wait for the remap). A failure at any step leaves the
// files already written in the directory but unreferenced by any meta.
func (w *Writer) Finalize(
	sch schema.Schema,
	pw *postings.Writer,
	fw *fastfield.Writer,
	nw *fieldnorm.Writer,
	maxDoc uint32,
	opstamps []uint64,
	storeBytes []byte,
	storeChunkOffsets []uint64,
) (remap []uint32, err error) {
	// 1. postings + terms + positions, producing the unordered->ordered
	// remap.
	var postingsBuf, positionsBuf bytes.Buffer
	var fstBuf bytes.Buffer
	builder, err := vellum.New(&fstBuf, nil)
	if err != nil {
		return nil, fmt.Errorf("segment: creating term dictionary builder: %w", err)
	}
	sink := &termDictSink{postingsBuf: &postingsBuf, positionsBuf: &positionsBuf, builder: builder}
	remap, err = pw.Serialize(sink)
	if err != nil {
		return nil, fmt.Errorf("segment: serializing postings: %w", err)
	}
	if err := builder.Close(); err != nil {
		return nil, fmt.Errorf("segment: closing term dictionary: %w", err)
	}
	if err := w.writeFile(extTerm, fstBuf.Bytes()); err != nil {
		return nil, err
	}
	if err := w.writeFile(extPostings, postingsBuf.Bytes()); err != nil {
		return nil, err
	}
	if err := w.writeFile(extPositions, positionsBuf.Bytes()); err != nil {
		return nil, err
	}

	// 2. fast fields, consuming the remap. The file is the encoded TOC
	// followed by the column area the TOC's offsets index into.
	var fastBuf bytes.Buffer
	toc, err := fw.Serialize(&fastBuf, maxDoc, remap)
	if err != nil {
		return nil, fmt.Errorf("segment: serializing fast fields: %w", err)
	}
	fastFile := append(fastfield.EncodeTOC(toc), fastBuf.Bytes()...)
	if err := w.writeFile(extFast, fastFile); err != nil {
		return nil, err
	}

	// 3. field norms.
	var normBuf bytes.Buffer
	if _, err := nw.Serialize(&normBuf, maxDoc); err != nil {
		return nil, fmt.Errorf("segment: serializing field norms: %w", err)
	}
	if err := w.writeFile(extFieldnorm, normBuf.Bytes()); err != nil {
		return nil, err
	}

	// 4. store: already-compressed chunk bytes produced by
	// store.Writer.Finalize, length-prefixed so SplitStoreFile can
	// recover the boundary, followed by the chunk offset index.
	var storeFile bytes.Buffer
	var lenPrefix [8]byte
	binary.BigEndian.PutUint64(lenPrefix[:], uint64(len(storeBytes)))
	storeFile.Write(lenPrefix[:])
	storeFile.Write(storeBytes)
	for _, o := range storeChunkOffsets {
		var tmp [binary.MaxVarintLen64]byte
		n := binary.PutUvarint(tmp[:], o)
		storeFile.Write(tmp[:n])
	}
	if err := w.writeFile(extStore, storeFile.Bytes()); err != nil {
		return nil, err
	}

	// 5. per-segment meta.
	meta := Meta{Stem: w.stem, MaxDoc: maxDoc, Opstamps: opstamps, NumFields: len(sch.Entries)}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("segment: marshaling meta: %w", err)
	}
	if err := w.dir.AtomicWrite(w.fileName(extMeta), metaBytes); err != nil {
		return nil, fmt.Errorf("segment: writing meta: %w", err)
	}

	return remap, nil
}

func (w *Writer) writeFile(ext string, data []byte) error {
	h, err := w.dir.OpenWrite(w.fileName(ext))
	if err != nil {
		return fmt.Errorf("segment: opening %s: %w", ext, err)
	}
	if _, err := h.Write(data); err != nil {
		_ = h.Close()
		return fmt.Errorf("segment: writing %s: %w", ext, err)
	}
	if err := h.Flush(); err != nil {
		_ = h.Close()
		return fmt.Errorf("segment: flushing %s: %w", ext, err)
	}
	return h.Close()
}

// ReadMeta loads a segment's per-segment meta file back from dir.
func ReadMeta(dir directory.Directory, stem string) (Meta, error) {
	h, err := dir.OpenRead(stem + extMeta)
	if err != nil {
		return Meta{}, fmt.Errorf("segment: opening meta for %s: %w", stem, err)
	}
	defer h.Close()
	var meta Meta
	if err := json.Unmarshal(h.Bytes(), &meta); err != nil {
		return Meta{}, fmt.Errorf("segment: unmarshaling meta for %s: %w", stem, err)
	}
	return meta, nil
}

// LookupTerm resolves a term's doc frequency, its doc-stream offset in
// the .idx bytes and its positions offset in the .pos bytes, from an FST
// loaded via vellum.Load plus the raw postings buffer. It exists for this
// module's own tests; a full query path is out of scope.
func LookupTerm(fst *vellum.FST, postingsBuf []byte, term []byte) (docFreq uint32, docOffset int, posOffset int, ok bool, err error) {
	offset, exists, err := fst.Get(term)
	if err != nil {
		return 0, 0, 0, false, fmt.Errorf("segment: FST lookup: %w", err)
	}
	if !exists {
		return 0, 0, 0, false, nil
	}
	df, n := binary.Uvarint(postingsBuf[offset:])
	pos, m := binary.Uvarint(postingsBuf[int(offset)+n:])
	return uint32(df), int(offset) + n + m, int(pos), true, nil
}

// SplitStoreFile separates a finalized .store file's compressed chunk
// bytes from its chunk-offset table, the inverse of the length-prefixed
// layout Writer.Finalize's step 4 writes: an 8-byte big-endian chunk-byte
// count, the chunk bytes themselves, then the offset table as
// back-to-back var-ints running to the end of the file.
func SplitStoreFile(storeFileBytes []byte) (chunkBytes []byte, chunkOffsets []uint64, err error) {
	if len(storeFileBytes) < 8 {
		return nil, nil, fmt.Errorf("segment: store file too small")
	}
	chunkLen := binary.BigEndian.Uint64(storeFileBytes[:8])
	rest := storeFileBytes[8:]
	if uint64(len(rest)) < chunkLen {
		return nil, nil, fmt.Errorf("segment: store file truncated")
	}
	chunkBytes = rest[:chunkLen]
	offsetBytes := rest[chunkLen:]

	off := 0
	for off < len(offsetBytes) {
		v, n := binary.Uvarint(offsetBytes[off:])
		if n <= 0 {
			return nil, nil, fmt.Errorf("segment: malformed chunk offset table")
		}
		chunkOffsets = append(chunkOffsets, v)
		off += n
	}
	return chunkBytes, chunkOffsets, nil
}

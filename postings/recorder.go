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

package postings

import (
	"io"

	"github.com/doublemo/segidx/internal/varint"
)

// Variant selects what a Recorder accumulates per posting, driven by the
// owning text field's indexing options.
type Variant int

const (
	// VariantDocIDOnly appends only delta-coded doc ids.
	VariantDocIDOnly Variant = iota
	// VariantDocIDTF appends delta-coded doc ids plus a raw term
	// frequency per doc.
	VariantDocIDTF
	// VariantDocIDTFPositions appends doc ids, term frequencies and
	// delta-coded positions within each doc.
	VariantDocIDTFPositions
)

// Recorder accumulates one term's posting list into lists of fixed-size
// blocks obtained from Arena: the doc stream (delta doc ids plus per-doc TF) and,
// for VariantDocIDTFPositions, a sibling positions stream. The head/tail
// block lists plus the last-seen doc id are all the per-term state. TF
// and positions for the doc currently being written are buffered in
// memory (curTF, curPositions) and only appended once the next doc's
// first subscription (or Close) seals them, since neither is known in
// full until every occurrence within that doc has been seen.
type Recorder struct {
	variant   Variant
	arena     *Arena
	docBlocks [][]byte
	posBlocks [][]byte

	docDelta varint.DeltaEncoder

	hasDoc  bool
	lastDoc uint32

	curTF        uint32
	curPositions []uint32

	docFreq uint32
}

// NewRecorder returns a Recorder of the given variant sharing arena.
func NewRecorder(variant Variant, arena *Arena) *Recorder {
	return &Recorder{variant: variant, arena: arena}
}

// DocFreq returns the number of distinct docs recorded so far.
func (r *Recorder) DocFreq() uint32 { return r.docFreq }

// Subscribe records one occurrence of this term in docID. position is the
// token's absolute position within the field and is only meaningful (and
// only consulted) for VariantDocIDTFPositions.
func (r *Recorder) Subscribe(docID uint32, position uint32) {
	if !r.hasDoc || r.lastDoc != docID {
		r.sealCurrentDoc()
		r.appendDoc(r.docDelta.Append(nil, uint64(docID)))
		r.hasDoc = true
		r.lastDoc = docID
		r.docFreq++
		r.curTF = 0
		r.curPositions = r.curPositions[:0]
	}
	r.curTF++
	if r.variant == VariantDocIDTFPositions {
		r.curPositions = append(r.curPositions, position)
	}
}

// sealCurrentDoc flushes the buffered TF/positions for the doc currently
// being written, exactly once, right before moving on to the next doc or
// closing out the term. Positions are framed with their own count so a
// reader never needs to look ahead to know where they end.
func (r *Recorder) sealCurrentDoc() {
	if !r.hasDoc {
		return
	}
	if r.variant == VariantDocIDTFPositions {
		r.appendPos(varint.PutUvarint(nil, uint64(len(r.curPositions))))
		var posDelta varint.DeltaEncoder
		for _, p := range r.curPositions {
			r.appendPos(posDelta.Append(nil, uint64(p)))
		}
	}
	if r.variant == VariantDocIDTF || r.variant == VariantDocIDTFPositions {
		r.appendDoc(varint.PutUvarint(nil, uint64(r.curTF)))
	}
}

func (r *Recorder) appendDoc(b []byte) {
	r.docBlocks = appendToBlocks(r.arena, r.docBlocks, b)
}

func (r *Recorder) appendPos(b []byte) {
	r.posBlocks = appendToBlocks(r.arena, r.posBlocks, b)
}

func appendToBlocks(arena *Arena, blocks [][]byte, b []byte) [][]byte {
	for len(b) > 0 {
		if len(blocks) == 0 {
			blocks = append(blocks, arena.newBlock())
		}
		last := len(blocks) - 1
		room := cap(blocks[last]) - len(blocks[last])
		if room == 0 {
			blocks = append(blocks, arena.newBlock())
			last++
			room = cap(blocks[last])
		}
		n := room
		if n > len(b) {
			n = len(b)
		}
		blocks[last] = append(blocks[last], b[:n]...)
		b = b[n:]
	}
	return blocks
}

// MemUsage estimates the recorder's footprint: the capacity of every block
// it has been handed by the arena.
func (r *Recorder) MemUsage() int {
	total := 0
	for _, b := range r.docBlocks {
		total += cap(b)
	}
	for _, b := range r.posBlocks {
		total += cap(b)
	}
	return total
}

// Close seals any buffered final-doc state and writes the recorder's
// entire encoded doc stream to docW and, for variants that record them,
// the positions stream to posW (which may be nil otherwise). Returns the
// document frequency recorded.
func (r *Recorder) Close(docW, posW io.Writer) (docFreq uint32, err error) {
	r.sealCurrentDoc()
	r.hasDoc = false // guard against double-seal if Close is called twice
	for _, b := range r.docBlocks {
		if _, err := docW.Write(b); err != nil {
			return r.docFreq, err
		}
	}
	if posW != nil {
		for _, b := range r.posBlocks {
			if _, err := posW.Write(b); err != nil {
				return r.docFreq, err
			}
		}
	}
	return r.docFreq, nil
}

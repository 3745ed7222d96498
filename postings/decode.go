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

import "github.com/doublemo/segidx/internal/varint"

// Posting is one doc's contribution to a term's posting list, as decoded
// by DecodePostingList. TF and Positions are only populated for variants
// that record them.
type Posting struct {
	DocID     uint32
	TF        uint32
	Positions []uint32
}

// DecodePostingList reverses a Recorder's Close output: docFreq postings
// decoded from the doc stream in docData and, for
// VariantDocIDTFPositions, each doc's positions from the sibling stream
// in posData. Both slices must start at the term's own offset; decoding
// stops after docFreq postings, so trailing bytes belonging to later
// terms are ignored. It exists purely as a minimal reference reader for
// this module's own tests; a full segment reader, with its caching and
// skip lists, is out of scope.
func DecodePostingList(docData, posData []byte, variant Variant, docFreq int) []Posting {
	out := make([]Posting, 0, docFreq)
	var docDelta varint.DeltaDecoder
	off := 0
	posOff := 0
	for len(out) < docFreq && off < len(docData) {
		var docID uint64
		docID, off = docDelta.Next(docData, off)
		p := Posting{DocID: uint32(docID)}
		if variant == VariantDocIDTF || variant == VariantDocIDTFPositions {
			if variant == VariantDocIDTFPositions {
				p.Positions, posOff = decodePositions(posData, posOff)
			}
			var tf uint64
			tf, off = varint.ReadUvarint(docData, off)
			p.TF = uint32(tf)
		}
		out = append(out, p)
	}
	return out
}

// decodePositions reads a position-count prefix followed by that many
// delta-coded positions, the framing Recorder.sealCurrentDoc writes for
// VariantDocIDTFPositions.
func decodePositions(data []byte, off int) ([]uint32, int) {
	count, next := varint.ReadUvarint(data, off)
	off = next
	positions := make([]uint32, 0, count)
	var posDelta varint.DeltaDecoder
	for i := uint64(0); i < count; i++ {
		var v uint64
		v, off = posDelta.Next(data, off)
		positions = append(positions, uint32(v))
	}
	return positions, off
}

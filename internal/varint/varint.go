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

// Package varint provides the var-int and delta encoding helpers shared by
// the postings recorders, the fast-field writer and the document store.
package varint

import "encoding/binary"

// PutUvarint appends x to buf using the same unsigned LEB128 encoding as
// encoding/binary, returning the extended slice.
func PutUvarint(buf []byte, x uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], x)
	return append(buf, tmp[:n]...)
}

// ReadUvarint reads a single var-int from buf starting at off, returning the
// decoded value and the offset immediately after it.
func ReadUvarint(buf []byte, off int) (uint64, int) {
	v, n := binary.Uvarint(buf[off:])
	return v, off + n
}

// DeltaEncoder accumulates strictly ascending uint64s (doc ids, positions)
// and appends their var-int deltas, mirroring the posting recorders'
// "last-seen value" bookkeeping.
type DeltaEncoder struct {
	last uint64
	has  bool
}

// Reset clears the encoder so it can be reused for a new posting list.
func (e *DeltaEncoder) Reset() {
	e.last = 0
	e.has = false
}

// Append writes the var-int delta between v and the previously appended
// value (or v itself, for the first call) to buf.
func (e *DeltaEncoder) Append(buf []byte, v uint64) []byte {
	var delta uint64
	if e.has {
		delta = v - e.last
	} else {
		delta = v
	}
	e.last = v
	e.has = true
	return PutUvarint(buf, delta)
}

// DeltaDecoder is the read-side counterpart of DeltaEncoder.
type DeltaDecoder struct {
	last uint64
	has  bool
}

// Reset clears decoder state between posting lists.
func (d *DeltaDecoder) Reset() {
	d.last = 0
	d.has = false
}

// Next reads the next delta-coded value from buf at off and returns the
// reconstructed absolute value along with the offset past it.
func (d *DeltaDecoder) Next(buf []byte, off int) (uint64, int) {
	delta, next := ReadUvarint(buf, off)
	var v uint64
	if d.has {
		v = d.last + delta
	} else {
		v = delta
	}
	d.last = v
	d.has = true
	return v, next
}

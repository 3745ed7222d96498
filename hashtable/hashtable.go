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

// Package hashtable implements the term hash table: an open-addressed map
// from term bytes to a monotone "unordered" term id, backed by an
// append-only byte arena for the variable-length keys. It never resizes;
// callers must check IsFull and flush the owning segment when it reports
// true.
package hashtable

import (
	"fmt"

	"go.uber.org/zap"
)

// bytesPerBucket is the fixed footprint of one bucket record: a 32-bit
// hash, a 32-bit arena offset, a 32-bit arena length and a 32-bit
// unordered id. The recorder slot lives in the postings package, indexed
// directly by unordered id, so it does not add to the bucket's own
// footprint.
const bytesPerBucket = 16

// maxTableBits caps the table at 2^19 buckets regardless of budget.
const maxTableBits = 19

// minTableBits is the smallest table size construction will choose.
const minTableBits = 10

// ComputeTableSize returns the estimated byte footprint of a table with
// 2^numBits buckets. This must stay in lock-step across any
// reimplementation of this core: the reference vectors in
// InitialTableSize's doc comment are derived from exactly this formula.
func ComputeTableSize(numBits int) int {
	return bytesPerBucket * (1 << uint(numBits))
}

// InitialTableSize picks b such that 2^b is the largest table size whose
// estimated footprint stays under budget/3 (reserving the rest of the
// per-thread memory budget for posting-list arena growth), capped at 19.
//
// Reference vectors: 100_000 -> 11, 1_000_000 -> 14, 10_000_000 -> 17,
// 1_000_000_000 -> 19.
func InitialTableSize(budget int) (int, error) {
	upperBound := budget / 3
	best := -1
	for b := minTableBits; b <= maxTableBits+8; b++ {
		if ComputeTableSize(b) >= upperBound {
			break
		}
		best = b
	}
	if best < 0 {
		return 0, fmt.Errorf("hashtable: per-thread memory budget (%d) is too small; raise the budget or lower the thread count", budget)
	}
	if best > maxTableBits {
		best = maxTableBits
	}
	return best, nil
}

type bucket struct {
	used        bool
	hash        uint32
	offset      uint32
	length      uint32
	unorderedID uint32
}

// Table is the open-addressed term hash table. Keys are appended to an
// internal byte arena; buckets only ever store fixed-size records, so
// probing never touches variable-length data until a candidate hash
// matches.
type Table struct {
	buckets []bucket
	mask    uint32

	arena []byte

	// terms holds one entry per unordered id, in first-insertion order,
	// so that consumers (fast fields, facets) can resolve an unordered id
	// back to its term bytes in O(1) without re-hashing.
	terms []termRef

	arenaBudget int
	logger      *zap.Logger
}

type termRef struct {
	offset uint32
	length uint32
}

// New creates a table with 2^numBits buckets and the given arena budget in
// bytes (the remainder of the per-thread memory budget after the table
// itself, per InitialTableSize).
func New(numBits int, arenaBudget int, logger *zap.Logger) *Table {
	if logger == nil {
		logger = zap.NewNop()
	}
	size := 1 << uint(numBits)
	return &Table{
		buckets:     make([]bucket, size),
		mask:        uint32(size - 1),
		arena:       make([]byte, 0, minInt(arenaBudget, 1<<20)),
		arenaBudget: arenaBudget,
		logger:      logger,
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func hashBytes(b []byte) uint32 {
	// FNV-1a: cheap, dependency-free, and only used for bucket probing —
	// any full hash collision still resolves correctly via the arena
	// byte comparison below.
	var h uint32 = 2166136261
	for _, c := range b {
		h ^= uint32(c)
		h *= 16777619
	}
	return h
}

// Insert finds or creates the bucket for term, returning its unordered id.
// The id is returned whether or not the term previously existed.
func (t *Table) Insert(term []byte) uint32 {
	h := hashBytes(term)
	idx := h & t.mask
	for {
		b := &t.buckets[idx]
		if !b.used {
			off := uint32(len(t.arena))
			t.arena = append(t.arena, term...)
			id := uint32(len(t.terms))
			t.terms = append(t.terms, termRef{offset: off, length: uint32(len(term))})
			*b = bucket{used: true, hash: h, offset: off, length: uint32(len(term)), unorderedID: id}
			return id
		}
		if b.hash == h && t.sameKey(*b, term) {
			return b.unorderedID
		}
		idx = (idx + 1) & t.mask
	}
}

func (t *Table) sameKey(b bucket, term []byte) bool {
	if int(b.length) != len(term) {
		return false
	}
	stored := t.arena[b.offset : b.offset+b.length]
	for i := range term {
		if stored[i] != term[i] {
			return false
		}
	}
	return true
}

// NumTerms returns the number of distinct terms inserted so far, i.e. one
// past the highest unordered id ever issued.
func (t *Table) NumTerms() int { return len(t.terms) }

// Term returns the bytes for unordered id, which must be < NumTerms().
func (t *Table) Term(id uint32) []byte {
	ref := t.terms[id]
	return t.arena[ref.offset : ref.offset+ref.length]
}

// IsFull reports whether the table's fill factor or arena budget has been
// exceeded; the owning segment writer must finalize and start a fresh
// table rather than attempt to grow this one.
func (t *Table) IsFull() bool {
	const loadFactor = 0.9
	if float64(len(t.terms)) > loadFactor*float64(len(t.buckets)) {
		return true
	}
	return len(t.arena) >= t.arenaBudget
}

// MemUsage estimates the table's current footprint: the fixed bucket
// array plus the arena's allocated capacity.
func (t *Table) MemUsage() int {
	return len(t.buckets)*bytesPerBucket + cap(t.arena)
}

// Each iterates every (unorderedID, term bytes) pair in first-insertion
// order.
func (t *Table) Each(fn func(unorderedID uint32, term []byte)) {
	for id, ref := range t.terms {
		fn(uint32(id), t.arena[ref.offset:ref.offset+ref.length])
	}
}

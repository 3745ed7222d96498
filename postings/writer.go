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
	"bytes"
	"fmt"
	"io"
	"sort"

	"go.uber.org/zap"

	"github.com/doublemo/segidx/hashtable"
	"github.com/doublemo/segidx/schema"
)

// Serializer receives terms in final sorted order and returns the writers
// for each one's doc-stream and positions bytes. Concrete implementations
// live in the segment package, where they fan a term out to the FST-backed
// term dictionary plus the .idx and .pos files.
type Serializer interface {
	NewTerm(field schema.FieldID, term []byte, docFreq uint32) (docW, posW io.Writer, err error)
}

// VariantForField resolves the Recorder variant a field's indexing options
// imply.
func VariantForField(entry schema.FieldEntry) Variant {
	switch {
	case entry.Options.RecordsPositions():
		return VariantDocIDTFPositions
	case entry.Options.RecordsTermFrequencies():
		return VariantDocIDTF
	default:
		return VariantDocIDOnly
	}
}

// Writer owns the term hash table and every field's posting recorders
// across one segment build.
type Writer struct {
	schema schema.Schema
	table  *hashtable.Table
	arena  *Arena
	logger *zap.Logger

	recorders []*Recorder         // index = unordered id
	fieldOf   []schema.FieldID    // index = unordered id
	variantOf map[schema.FieldID]Variant
}

// New returns a postings writer sized from numTableBits (see
// hashtable.InitialTableSize) with arenaBudget bytes available for posting
// data.
func New(sch schema.Schema, numTableBits int, arenaBudget int, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	variantOf := make(map[schema.FieldID]Variant, len(sch.Entries))
	for _, e := range sch.Entries {
		variantOf[e.ID] = VariantForField(e)
	}
	return &Writer{
		schema:    sch,
		table:     hashtable.New(numTableBits, arenaBudget, logger),
		arena:     NewArena(4096),
		logger:    logger,
		variantOf: variantOf,
	}
}

// Subscribe inserts-or-finds term, appends docID (and, for text fields,
// position) to its recorder, and returns the term's unordered id.
func (w *Writer) Subscribe(docID uint32, term schema.Term, position uint32) uint32 {
	id := w.table.Insert(term.Bytes())
	if int(id) == len(w.recorders) {
		field := term.Field()
		variant := w.variantOf[field]
		w.recorders = append(w.recorders, NewRecorder(variant, w.arena))
		w.fieldOf = append(w.fieldOf, field)
	}
	w.recorders[id].Subscribe(docID, position)
	return id
}

// IndexText tokenizes stream, subscribing every token's term (field prefix
// plus token text) and returns the number of tokens consumed. Positions
// are assigned by the token stream's PositionIncr.
func (w *Writer) IndexText(docID uint32, field schema.FieldID, stream schema.TokenStream) int {
	term := schema.TermForField(field)
	var position uint32
	first := true
	count := 0
	for {
		tok, ok := stream.Next()
		if !ok {
			break
		}
		if first {
			first = false
		} else {
			position += uint32(tok.PositionIncr)
		}
		term.SetText(tok.Term)
		w.Subscribe(docID, term, position)
		count++
	}
	return count
}

// IsFull reports whether the underlying table or arena has exceeded its
// budget; the owning segment writer must finalize when this is true.
func (w *Writer) IsFull() bool { return w.table.IsFull() }

// MemUsage sums the hash table's and every recorder's footprint.
func (w *Writer) MemUsage() int {
	total := w.table.MemUsage()
	for _, r := range w.recorders {
		total += r.MemUsage()
	}
	return total
}

type sortEntry struct {
	unorderedID uint32
	field       schema.FieldID
	term        []byte
}

// Serialize sorts the live term set by (field id, term bytes), writes the
// term dictionary and posting streams in that order via sink, and returns
// a table mapping each unordered id ever issued to its final rank.
func (w *Writer) Serialize(sink Serializer) ([]uint32, error) {
	entries := make([]sortEntry, 0, w.table.NumTerms())
	w.table.Each(func(id uint32, term []byte) {
		entries = append(entries, sortEntry{unorderedID: id, field: w.fieldOf[id], term: term})
	})

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].field != entries[j].field {
			return entries[i].field < entries[j].field
		}
		return bytes.Compare(entries[i].term, entries[j].term) < 0
	})

	remap := make([]uint32, w.table.NumTerms())
	for rank, e := range entries {
		rec := w.recorders[e.unorderedID]
		docW, posW, err := sink.NewTerm(e.field, e.term, rec.DocFreq())
		if err != nil {
			return nil, fmt.Errorf("postings: serialize term %q field %d: %w", e.term, e.field, err)
		}
		if _, err := rec.Close(docW, posW); err != nil {
			return nil, fmt.Errorf("postings: writing posting list for %q: %w", e.term, err)
		}
		remap[e.unorderedID] = uint32(rank)
	}
	return remap, nil
}

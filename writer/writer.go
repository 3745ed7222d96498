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

// Package writer implements the top-level per-segment ingest loop: it
// binds the term hash table, the multi-field postings writer, the
// fast-field writer, the field-norm writer and the document store to one
// schema, accepts a stream of documents, and finalizes them into a
// segment through the directory.
package writer

import (
	"bytes"
	"errors"
	"fmt"
	"math"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/doublemo/segidx/directory"
	"github.com/doublemo/segidx/fastfield"
	"github.com/doublemo/segidx/fieldnorm"
	"github.com/doublemo/segidx/hashtable"
	"github.com/doublemo/segidx/postings"
	"github.com/doublemo/segidx/schema"
	"github.com/doublemo/segidx/segment"
	"github.com/doublemo/segidx/store"
)

// ErrSchemaMismatch is returned when a document's value for a field
// disagrees with that field's declared kind (e.g. a non-facet value
// supplied for a HierarchicalFacet field). The mismatch is recoverable:
// the document is rejected before any builder observes it, and the
// writer stays usable.
var ErrSchemaMismatch = errors.New("writer: schema mismatch")

// AddOperation pairs a document with the monotonic opstamp assigned to it
// upstream.
type AddOperation struct {
	Opstamp  uint64
	Document *schema.Document
}

// Options configures a new segment Writer. The core has few enough knobs
// that a plain struct literal reads better than a chain of With* calls.
type Options struct {
	// Directory is where the finalized segment's files are written.
	Directory directory.Directory
	// Schema describes the fields documents may carry.
	Schema schema.Schema
	// MemoryBudget is the per-thread budget (bytes) the term hash table
	// and posting arena are sized from.
	MemoryBudget int
	// Tokenizers resolves a text field's Tokenizer option by name. A text
	// field naming a tokenizer absent from this map fails construction
	// rather than silently indexing zero tokens: a schema that can never
	// index what it claims to index is a configuration bug, not runtime
	// data.
	Tokenizers map[string]schema.Tokenizer
	// StoreChunkSize overrides store.DefaultChunkSize when non-zero.
	StoreChunkSize int
	// Logger receives Debug-level flush-pressure notices. Defaults to
	// zap.NewNop().
	Logger *zap.Logger
}

// Writer ingests documents for exactly one segment build. It is
// single-owner, single-threaded: only one goroutine may call AddDocument
// or Finalize on a given Writer.
type Writer struct {
	dir    directory.Directory
	schema schema.Schema
	logger *zap.Logger

	tokenizers map[string]schema.Tokenizer

	postings  *postings.Writer
	fastField *fastfield.Writer
	fieldNorm *fieldnorm.Writer
	storeBuf  bytes.Buffer
	storeW    *store.Writer

	stem string

	maxDoc   *atomic.Uint32
	opstamps []uint64
}

// New constructs a Writer for opts.Schema, sizing the term hash table
// from opts.MemoryBudget via hashtable.InitialTableSize. A budget too
// small to satisfy even the smallest representable table size fails
// construction.
func New(opts Options) (*Writer, error) {
	if opts.Directory == nil {
		return nil, fmt.Errorf("writer: InvalidArgument: Directory is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	for _, e := range opts.Schema.Entries {
		if e.Kind != schema.KindText || !e.Options.Indexed() {
			continue
		}
		if e.Tokenizer == "" {
			continue
		}
		if _, ok := opts.Tokenizers[e.Tokenizer]; !ok {
			return nil, fmt.Errorf("writer: InvalidArgument: field %q names unknown tokenizer %q", e.Name, e.Tokenizer)
		}
	}

	numTableBits, err := hashtable.InitialTableSize(opts.MemoryBudget)
	if err != nil {
		return nil, fmt.Errorf("writer: InvalidArgument: %w", err)
	}
	arenaBudget := opts.MemoryBudget - hashtable.ComputeTableSize(numTableBits)
	if arenaBudget < 0 {
		arenaBudget = 0
	}

	stem := segment.NewStem()
	w := &Writer{
		dir:        opts.Directory,
		schema:     opts.Schema,
		logger:     logger,
		tokenizers: opts.Tokenizers,
		postings:   postings.New(opts.Schema, numTableBits, arenaBudget, logger),
		fastField:  fastfield.FromSchema(opts.Schema),
		fieldNorm:  fieldnorm.FromSchema(opts.Schema),
		stem:       stem,
		maxDoc:     atomic.NewUint32(0),
	}
	w.storeW = store.NewWriter(&w.storeBuf, opts.StoreChunkSize)
	return w, nil
}

// Stem returns the UUID filename stem this build will finalize under.
func (w *Writer) Stem() string { return w.stem }

// MaxDoc returns the number of documents accepted so far.
func (w *Writer) MaxDoc() uint32 { return w.maxDoc.Load() }

// MemUsage estimates the writer's current in-memory footprint: the
// postings writer's table and arena.
func (w *Writer) MemUsage() int { return w.postings.MemUsage() }

// IsFull reports whether the postings writer's table or arena has
// exceeded its budget; the caller must Finalize and start a fresh Writer
// once this is true.
func (w *Writer) IsFull() bool {
	full := w.postings.IsFull()
	if full {
		w.logger.Debug("writer: table/arena budget exceeded, segment should be finalized",
			zap.String("stem", w.stem), zap.Uint32("max_doc", w.maxDoc.Load()))
	}
	return full
}

// AddDocument ingests one document: offer the document to the fast-field
// writer, dispatch each present field by kind, filter to stored fields and
// append to the document store, then record the opstamp and increment
// max_doc.
func (w *Writer) AddDocument(op AddOperation) error {
	docID := w.maxDoc.Load()
	doc := op.Document

	if docID >= math.MaxInt32 {
		return fmt.Errorf("writer: segment %s is at the maximum doc count (%d)", w.stem, math.MaxInt32)
	}
	if err := w.validateFieldKinds(doc); err != nil {
		return err
	}

	w.fastField.AddDocument(doc)

	for _, entry := range w.schema.Entries {
		values := doc.Fields[entry.ID]
		switch entry.Kind {
		case schema.KindText:
			if err := w.indexTextField(docID, entry, values); err != nil {
				return err
			}
		case schema.KindHierarchicalFacet:
			if err := w.indexFacetField(docID, entry, values); err != nil {
				return err
			}
		case schema.KindU64, schema.KindI64, schema.KindF64, schema.KindDate:
			w.indexNumericField(docID, entry, values)
		case schema.KindBytes:
			// Bytes fields are never indexed.
		}
	}

	doc.FilterStored(w.schema)
	if err := w.storeW.Add(store.EncodeDocument(doc)); err != nil {
		return fmt.Errorf("writer: appending doc %d to store: %w", docID, err)
	}

	w.opstamps = append(w.opstamps, op.Opstamp)
	w.maxDoc.Inc()
	return nil
}

// validateFieldKinds checks every value supplied for every field against
// that field's declared kind, surfacing the mismatch as ErrSchemaMismatch
// before any builder observes the document.
func (w *Writer) validateFieldKinds(doc *schema.Document) error {
	for id, values := range doc.Fields {
		entry, err := w.schema.Field(id)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
		}
		for _, v := range values {
			if !kindMatches(entry.Kind, v.Kind) {
				return fmt.Errorf("writer: field %q (%s): %w: got value kind %v", entry.Name, entry.Kind, ErrSchemaMismatch, v.Kind)
			}
		}
	}
	return nil
}

func kindMatches(field schema.FieldKind, value schema.ValueKind) bool {
	switch field {
	case schema.KindText:
		return value == schema.ValueText
	case schema.KindU64:
		return value == schema.ValueU64
	case schema.KindI64:
		return value == schema.ValueI64
	case schema.KindF64:
		return value == schema.ValueF64
	case schema.KindDate:
		return value == schema.ValueDate
	case schema.KindHierarchicalFacet:
		return value == schema.ValueFacet
	case schema.KindBytes:
		return value == schema.ValueBytes
	default:
		return false
	}
}

// indexTextField tokenizes every text value jointly (one token stream per
// field, positions carrying across values) and routes tokens to the
// postings writer, recording the resulting token count in the field-norm
// writer. A field absent from the document, or indexed with an unnamed
// tokenizer, still records a norm of zero so the stream stays aligned
// with doc id.
func (w *Writer) indexTextField(docID uint32, entry schema.FieldEntry, values []schema.FieldValue) error {
	if !entry.Options.Indexed() {
		return nil
	}
	if len(values) == 0 {
		w.fieldNorm.RecordAbsent(entry.ID)
		return nil
	}
	tok, ok := w.tokenizers[entry.Tokenizer]
	if !ok {
		// Construction already rejected any named-but-missing tokenizer.
		// A blank tokenizer name on an indexed text field indexes
		// nothing: an empty name is a valid "no analysis" declaration,
		// unlike a named tokenizer that doesn't resolve.
		w.fieldNorm.RecordAbsent(entry.ID)
		return nil
	}
	texts := make([]string, len(values))
	for i, v := range values {
		texts[i] = v.Text
	}
	stream := tok.TokenStreamTexts(texts)
	numTokens := w.postings.IndexText(docID, entry.ID, stream)
	w.fieldNorm.Record(entry.ID, numTokens)
	return nil
}

// indexFacetField tokenizes every facet value into its path and every
// ancestor prefix, subscribes each to the postings writer, and pushes the
// deepest token's unordered id (the last one FacetTokenStream yields)
// into the field's multi-value fast-field column.
func (w *Writer) indexFacetField(docID uint32, entry schema.FieldEntry, values []schema.FieldValue) error {
	mv, ok := w.fastField.GetMultiValueWriter(entry.ID)
	if !ok {
		return fmt.Errorf("writer: field %q declared HierarchicalFacet but has no fast-field column", entry.Name)
	}
	for _, v := range values {
		stream := schema.FacetTokenStream(v.Facet)
		var lastID uint32
		for {
			tok, ok := stream.Next()
			if !ok {
				break
			}
			term := schema.TermForField(entry.ID)
			term.SetText(tok.Term)
			lastID = w.postings.Subscribe(docID, term, 0)
		}
		mv.AddVal(lastID)
	}
	return nil
}

// indexNumericField subscribes one big-endian-encoded (sign-flipped for
// signed kinds) term per value, when the field is indexed. The fast-field
// column itself was already populated by fastfield.Writer.AddDocument
// before the field dispatch loop ran.
func (w *Writer) indexNumericField(docID uint32, entry schema.FieldEntry, values []schema.FieldValue) {
	if !entry.Options.Indexed() {
		return
	}
	for _, v := range values {
		var term schema.Term
		switch entry.Kind {
		case schema.KindU64:
			term = schema.TermFromFieldU64(entry.ID, v.U64)
		case schema.KindI64:
			term = schema.TermFromFieldI64(entry.ID, v.I64)
		case schema.KindF64:
			term = schema.TermFromFieldF64(entry.ID, v.F64)
		case schema.KindDate:
			term = schema.TermFromFieldDate(entry.ID, v.Date.Unix())
		}
		w.postings.Subscribe(docID, term, 0)
	}
}

// Finalize consumes the Writer, padding the field-norm streams to max_doc
// and fanning the fixed close order out through the segment serializer,
// returning the per-doc opstamp vector in document order.
func (w *Writer) Finalize() ([]uint64, error) {
	maxDoc := w.maxDoc.Load()
	w.fieldNorm.Pad(maxDoc)

	chunkOffsets, err := w.storeW.Finalize()
	if err != nil {
		return nil, fmt.Errorf("writer: finalizing store: %w", err)
	}

	seg := segment.New(w.dir, w.stem)
	_, err = seg.Finalize(w.schema, w.postings, w.fastField, w.fieldNorm, maxDoc, w.opstamps, w.storeBuf.Bytes(), chunkOffsets)
	if err != nil {
		return nil, fmt.Errorf("writer: finalizing segment %s: %w", w.stem, err)
	}
	return w.opstamps, nil
}

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

// Package segidx implements the segment-building core of a full-text
// search engine: a single-owner segment writer that ingests structured
// documents and finalizes them into an immutable bundle of index files —
// sorted term dictionary, posting lists with optional term frequencies
// and positions, columnar fast fields, per-doc field norms and a
// compressed document store — through a pluggable directory abstraction.
//
// The entry point is the writer package:
//
//	w, err := writer.New(writer.Options{
//	    Directory:    dir,
//	    Schema:       sch,
//	    MemoryBudget: 50 << 20,
//	    Tokenizers:   tokenizers,
//	})
//	for _, op := range ops {
//	    if err := w.AddDocument(op); err != nil { ... }
//	    if w.IsFull() { break } // finalize and start a fresh writer
//	}
//	opstamps, err := w.Finalize()
//
// Segments are write-once: a writer owns all of its builders until
// Finalize consumes it, and a writer dropped before Finalize abandons
// its segment. The directory package provides the two storage backends,
// an in-memory variant for tests and a memory-mapped on-disk variant
// for production, both safe for concurrent use across writers.
package segidx

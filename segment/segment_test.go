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

package segment

import (
	"bytes"
	"testing"

	"github.com/blevesearch/vellum"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doublemo/segidx/directory"
	"github.com/doublemo/segidx/fastfield"
	"github.com/doublemo/segidx/fieldnorm"
	"github.com/doublemo/segidx/postings"
	"github.com/doublemo/segidx/schema"
	"github.com/doublemo/segidx/store"
)

func buildTestInputs(t *testing.T) (schema.Schema, *postings.Writer, *fastfield.Writer, *fieldnorm.Writer, []byte, []uint64) {
	t.Helper()
	b := schema.NewBuilder()
	body := b.AddField("body", schema.KindText, schema.Indexed|schema.Stored|schema.WithTermFrequencies, "")
	sch := b.Build()

	pw := postings.New(sch, 10, 1<<16, nil)
	term := schema.TermForField(body)
	for doc, text := range []string{"beta", "alpha", "beta"} {
		term.SetText(text)
		pw.Subscribe(uint32(doc), term, 0)
	}

	fw := fastfield.FromSchema(sch)
	nw := fieldnorm.FromSchema(sch)
	var storeBuf bytes.Buffer
	sw := store.NewWriter(&storeBuf, 0)
	for doc := 0; doc < 3; doc++ {
		fw.AddDocument(schema.NewDocument())
		nw.Record(body, 1)
		d := schema.NewDocument()
		d.AddText(body, "stored text")
		require.NoError(t, sw.Add(store.EncodeDocument(d)))
	}
	chunkOffsets, err := sw.Finalize()
	require.NoError(t, err)
	return sch, pw, fw, nw, storeBuf.Bytes(), chunkOffsets
}

func TestFinalizeWritesFullFileSet(t *testing.T) {
	sch, pw, fw, nw, storeBytes, chunkOffsets := buildTestInputs(t)
	dir := directory.NewRAMDirectory(nil)
	stem := NewStem()
	w := New(dir, stem)

	remap, err := w.Finalize(sch, pw, fw, nw, 3, []uint64{7, 8, 9}, storeBytes, chunkOffsets)
	require.NoError(t, err)
	require.Len(t, remap, 2) // "alpha", "beta"

	for _, ext := range []string{".term", ".idx", ".pos", ".fast", ".fieldnorm", ".store", ".meta.json"} {
		assert.True(t, dir.Exists(stem+ext), "missing %s", ext)
	}

	meta, err := ReadMeta(dir, stem)
	require.NoError(t, err)
	assert.Equal(t, stem, meta.Stem)
	assert.Equal(t, uint32(3), meta.MaxDoc)
	assert.Equal(t, []uint64{7, 8, 9}, meta.Opstamps)
}

func TestFinalizeTermLookupAndPostings(t *testing.T) {
	sch, pw, fw, nw, storeBytes, chunkOffsets := buildTestInputs(t)
	dir := directory.NewRAMDirectory(nil)
	stem := NewStem()

	_, err := New(dir, stem).Finalize(sch, pw, fw, nw, 3, []uint64{7, 8, 9}, storeBytes, chunkOffsets)
	require.NoError(t, err)

	termHandle, err := dir.OpenRead(stem + ".term")
	require.NoError(t, err)
	idxHandle, err := dir.OpenRead(stem + ".idx")
	require.NoError(t, err)

	fst, err := vellum.Load(termHandle.Bytes())
	require.NoError(t, err)

	term := schema.TermForField(schema.FieldID(0))
	term.SetText("beta")
	docFreq, docOffset, _, ok, err := LookupTerm(fst, idxHandle.Bytes(), term.Bytes())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint32(2), docFreq)

	decoded := postings.DecodePostingList(idxHandle.Bytes()[docOffset:], nil, postings.VariantDocIDTF, int(docFreq))
	require.Len(t, decoded, 2)
	assert.Equal(t, uint32(0), decoded[0].DocID)
	assert.Equal(t, uint32(2), decoded[1].DocID)

	term.SetText("missing")
	_, _, _, ok, err = LookupTerm(fst, idxHandle.Bytes(), term.Bytes())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFinalizeStoreRoundTrip(t *testing.T) {
	sch, pw, fw, nw, storeBytes, chunkOffsets := buildTestInputs(t)
	dir := directory.NewRAMDirectory(nil)
	stem := NewStem()

	_, err := New(dir, stem).Finalize(sch, pw, fw, nw, 3, []uint64{7, 8, 9}, storeBytes, chunkOffsets)
	require.NoError(t, err)

	storeHandle, err := dir.OpenRead(stem + ".store")
	require.NoError(t, err)
	chunkBytes, offsets, err := SplitStoreFile(storeHandle.Bytes())
	require.NoError(t, err)
	assert.Equal(t, chunkOffsets, offsets)

	reader := store.NewReader(chunkBytes, offsets, 0)
	doc, err := reader.Doc(2)
	require.NoError(t, err)
	entries := doc.SortedFieldValues()
	require.Len(t, entries, 1)
	assert.Equal(t, "stored text", entries[0].Values[0].Text)
}

func TestIndexMetaRoundTrip(t *testing.T) {
	dir := directory.NewRAMDirectory(nil)

	meta, err := ReadIndexMeta(dir)
	require.NoError(t, err)
	assert.Empty(t, meta.Segments)
	assert.Zero(t, meta.Opstamp)

	want := IndexMeta{Segments: []string{NewStem(), NewStem()}, Opstamp: 42}
	require.NoError(t, WriteIndexMeta(dir, want))

	got, err := ReadIndexMeta(dir)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// Recommitting rewrites in place; AtomicWrite has no
	// already-exists failure mode.
	want.Opstamp = 43
	require.NoError(t, WriteIndexMeta(dir, want))
	got, err = ReadIndexMeta(dir)
	require.NoError(t, err)
	assert.Equal(t, uint64(43), got.Opstamp)
}

// A finalize that fails midway leaves whatever files it already wrote,
// but never the meta that would reference them.
func TestFinalizeFailureLeavesNoMeta(t *testing.T) {
	sch, pw, fw, nw, storeBytes, chunkOffsets := buildTestInputs(t)
	dir := directory.NewRAMDirectory(nil)
	stem := NewStem()

	// Occupy the .idx name so the postings write fails after .term
	// succeeded.
	h, err := dir.OpenWrite(stem + ".idx")
	require.NoError(t, err)
	require.NoError(t, h.Flush())
	require.NoError(t, h.Close())

	_, err = New(dir, stem).Finalize(sch, pw, fw, nw, 3, []uint64{7, 8, 9}, storeBytes, chunkOffsets)
	require.Error(t, err)
	assert.False(t, dir.Exists(stem+".meta.json"))
}

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

package fastfield

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/RoaringBitmap/roaring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doublemo/segidx/schema"
)

func TestSingleValueColumnRoundTrip(t *testing.T) {
	b := schema.NewBuilder()
	age := b.AddField("age", schema.KindU64, schema.Indexed|schema.FastField, "")
	sch := b.Build()

	w := FromSchema(sch)
	for _, v := range []uint64{10, 255, 256, 70000} {
		doc := schema.NewDocument()
		doc.AddU64(age, v)
		w.AddDocument(doc)
	}
	// one doc with the field absent: must still advance the row
	w.AddDocument(schema.NewDocument())

	var buf bytes.Buffer
	toc, err := w.Serialize(&buf, 5, nil)
	require.NoError(t, err)
	require.Len(t, toc, 1)
	assert.Equal(t, age, toc[0].Field)
	assert.Equal(t, CodecFixedWidth, toc[0].Codec)

	decoded := DecodeFixedWidth(buf.Bytes())
	require.Len(t, decoded, 5)
	assert.Equal(t, []uint64{10, 255, 256, 70000, 0}, decoded)
}

func TestMultiValueColumnAdvancesEvenWhenAbsent(t *testing.T) {
	b := schema.NewBuilder()
	tags := b.AddField("tags", schema.KindHierarchicalFacet, schema.Indexed|schema.FastField, "")
	sch := b.Build()

	w := FromSchema(sch)

	// doc 0: two facet values pushed after AddDocument opens its row
	w.AddDocument(schema.NewDocument())
	require.NoError(t, w.AddFacetValue(tags, 7))
	require.NoError(t, w.AddFacetValue(tags, 3))

	// doc 1: field absent entirely
	w.AddDocument(schema.NewDocument())

	// doc 2: one facet value
	w.AddDocument(schema.NewDocument())
	require.NoError(t, w.AddFacetValue(tags, 9))

	var buf bytes.Buffer
	remap := []uint32{0: 100, 3: 30, 7: 70, 9: 90}
	toc, err := w.Serialize(&buf, 3, remap)
	require.NoError(t, err)
	require.Len(t, toc, 1)
	assert.Equal(t, CodecMultiValue, toc[0].Codec)

	offsets, values := DecodeMultiValue(buf.Bytes())
	require.Len(t, offsets, 4) // max_doc + 1
	assert.Equal(t, []uint32{0, 2, 2, 3}, offsets)
	// row 0 remapped (30, 70) then sorted ascending
	assert.Equal(t, []uint32{30, 70}, values[offsets[0]:offsets[1]])
	assert.Empty(t, values[offsets[1]:offsets[2]])
	assert.Equal(t, []uint32{90}, values[offsets[2]:offsets[3]])
}

// TestFacetAggregation indexes v*v documents per facet v in [0,50), in
// shuffled order, and confirms a simple roaring-bitmap aggregation over
// the serialized column recovers exactly v*v docs per facet.
func TestFacetAggregation(t *testing.T) {
	b := schema.NewBuilder()
	facetField := b.AddField("category", schema.KindHierarchicalFacet, schema.Indexed|schema.FastField, "")
	sch := b.Build()

	const numFacets = 50
	type assignment struct {
		docIdx int
		facet  uint32
	}
	var assignments []assignment
	docCount := 0
	for v := 0; v < numFacets; v++ {
		for i := 0; i < v*v; i++ {
			assignments = append(assignments, assignment{docIdx: docCount, facet: uint32(v)})
			docCount++
		}
	}
	rng := rand.New(rand.NewSource(42))
	rng.Shuffle(len(assignments), func(i, j int) { assignments[i], assignments[j] = assignments[j], assignments[i] })

	byDoc := make(map[int]uint32, docCount)
	for _, a := range assignments {
		byDoc[a.docIdx] = a.facet
	}

	w := FromSchema(sch)
	for doc := 0; doc < docCount; doc++ {
		w.AddDocument(schema.NewDocument())
		require.NoError(t, w.AddFacetValue(facetField, byDoc[doc]))
	}

	var buf bytes.Buffer
	_, err := w.Serialize(&buf, uint32(docCount), nil)
	require.NoError(t, err)

	offsets, values := DecodeMultiValue(buf.Bytes())
	require.Len(t, offsets, docCount+1)

	perFacet := make(map[uint32]*roaring.Bitmap)
	for doc := 0; doc < docCount; doc++ {
		for _, facetID := range values[offsets[doc]:offsets[doc+1]] {
			bm, ok := perFacet[facetID]
			if !ok {
				bm = roaring.New()
				perFacet[facetID] = bm
			}
			bm.Add(uint32(doc))
		}
	}

	for v := 0; v < numFacets; v++ {
		bm := perFacet[uint32(v)]
		if v == 0 {
			assert.Nil(t, bm)
			continue
		}
		require.NotNil(t, bm, "facet %d", v)
		assert.Equal(t, uint64(v*v), bm.GetCardinality(), "facet %d", v)
	}
}

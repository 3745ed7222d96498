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

package fieldnorm

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doublemo/segidx/schema"
)

func TestToByteFromByteSmallCountsExact(t *testing.T) {
	for n := uint32(0); n < 24; n++ {
		b := ToByte(n)
		assert.Equal(t, n, FromByte(b))
	}
}

func TestToByteFromByteLargeCountsApproximate(t *testing.T) {
	for _, n := range []uint32{24, 42, 255, 256, 1000, 100000, 1 << 20} {
		b := ToByte(n)
		got := FromByte(b)
		// lossy from 24 up: must stay in the right order of magnitude and
		// never round up past the true count.
		assert.LessOrEqual(t, got, n)
		assert.Greater(t, got, n/4)
	}
}

func TestToByteIsMonotone(t *testing.T) {
	prev := ToByte(0)
	for n := uint32(1); n < 1<<16; n++ {
		cur := ToByte(n)
		require.GreaterOrEqual(t, cur, prev, "n=%d", n)
		prev = cur
	}
}

func TestWriterPadsToMaxDoc(t *testing.T) {
	b := schema.NewBuilder()
	body := b.AddField("body", schema.KindText, schema.Indexed, "")
	sch := b.Build()

	w := FromSchema(sch)
	w.Record(body, 10)
	w.Record(body, 20)
	// doc 2 never recorded at all

	var buf bytes.Buffer
	toc, err := w.Serialize(&buf, 3)
	require.NoError(t, err)
	require.Len(t, toc, 1)
	assert.Equal(t, uint64(3), toc[0].Length)

	bs := buf.Bytes()
	assert.Equal(t, byte(10), bs[0])
	assert.Equal(t, byte(20), bs[1])
	assert.Equal(t, byte(0), bs[2])
}

func TestWriterOnlyCoversIndexedTextFields(t *testing.T) {
	b := schema.NewBuilder()
	b.AddField("count", schema.KindU64, schema.Indexed|schema.FastField, "")
	b.AddField("title", schema.KindText, schema.Indexed, "")
	b.AddField("notes", schema.KindText, schema.Stored, "") // not indexed -> no norm stream
	sch := b.Build()

	w := FromSchema(sch)
	assert.Len(t, w.order, 1)
}

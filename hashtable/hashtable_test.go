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

package hashtable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialTableSizeReferenceVectors(t *testing.T) {
	cases := []struct {
		budget int
		want   int
	}{
		{100_000, 11},
		{1_000_000, 14},
		{10_000_000, 17},
		{1_000_000_000, 19},
	}
	for _, c := range cases {
		got, err := InitialTableSize(c.budget)
		require.NoError(t, err)
		assert.Equal(t, c.want, got, "budget=%d", c.budget)
	}
}

func TestInitialTableSizeTooSmallBudgetFails(t *testing.T) {
	_, err := InitialTableSize(1)
	assert.Error(t, err)
}

func TestTableInsertReturnsStableUnorderedIDs(t *testing.T) {
	tbl := New(10, 1<<16, nil)

	idApple1 := tbl.Insert([]byte("apple"))
	idBanana := tbl.Insert([]byte("banana"))
	idApple2 := tbl.Insert([]byte("apple"))

	assert.Equal(t, idApple1, idApple2, "re-inserting an existing term returns its original id")
	assert.NotEqual(t, idApple1, idBanana)
	assert.Equal(t, 2, tbl.NumTerms())
	assert.Equal(t, []byte("apple"), tbl.Term(idApple1))
	assert.Equal(t, []byte("banana"), tbl.Term(idBanana))
}

func TestTableInsertionOrderIsMonotone(t *testing.T) {
	tbl := New(10, 1<<16, nil)
	terms := []string{"zebra", "apple", "mango", "banana"}
	var ids []uint32
	for _, term := range terms {
		ids = append(ids, tbl.Insert([]byte(term)))
	}
	for i, id := range ids {
		assert.Equal(t, uint32(i), id, "unordered ids follow first-insertion order, not lexical order")
	}
}

func TestTableIsFullOnLoadFactor(t *testing.T) {
	tbl := New(4, 1<<20, nil) // 16 buckets, full beyond 90% occupancy
	for i := 0; i < 15; i++ {
		tbl.Insert([]byte{byte(i), byte(i >> 8)})
	}
	assert.True(t, tbl.IsFull())
}

func TestTableIsFullOnArenaBudget(t *testing.T) {
	tbl := New(12, 32, nil)
	big := make([]byte, 40)
	tbl.Insert(big)
	assert.True(t, tbl.IsFull())
}

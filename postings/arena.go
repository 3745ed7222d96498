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

// Arena hands out fixed-size blocks to every posting recorder of a single
// segment build, so that a recorder allocates once per block rather than
// once per append. Each block is a separate allocation owned by the
// recorder that requested it; blocks are not pooled, shared or reused.
type Arena struct {
	blockSize int
}

// NewArena returns an arena handing out blocks of blockSize bytes.
func NewArena(blockSize int) *Arena {
	if blockSize <= 0 {
		blockSize = 4096
	}
	return &Arena{blockSize: blockSize}
}

func (a *Arena) newBlock() []byte {
	return make([]byte, 0, a.blockSize)
}

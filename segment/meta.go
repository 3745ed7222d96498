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
	"encoding/json"
	"fmt"

	"github.com/doublemo/segidx/directory"
)

// IndexMeta is the directory-level meta.json: the set of committed
// segment stems plus the opstamp of the last committed operation. It is
// read on open and rewritten atomically on every commit; a segment whose
// stem is absent from it is unreferenced, whatever files it left behind.
type IndexMeta struct {
	Segments []string `json:"segments"`
	Opstamp  uint64   `json:"opstamp"`
}

// ReadIndexMeta loads meta.json from dir. A directory that has never
// committed returns an empty meta rather than an error.
func ReadIndexMeta(dir directory.Directory) (IndexMeta, error) {
	if !dir.Exists(directory.MetaFileName) {
		return IndexMeta{}, nil
	}
	h, err := dir.OpenRead(directory.MetaFileName)
	if err != nil {
		return IndexMeta{}, fmt.Errorf("segment: opening %s: %w", directory.MetaFileName, err)
	}
	defer h.Close()
	var meta IndexMeta
	if err := json.Unmarshal(h.Bytes(), &meta); err != nil {
		return IndexMeta{}, fmt.Errorf("segment: unmarshaling %s: %w", directory.MetaFileName, err)
	}
	return meta, nil
}

// WriteIndexMeta atomically replaces meta.json, committing the listed
// segments. Every successful write fires the directory's watch
// callbacks.
func WriteIndexMeta(dir directory.Directory, meta IndexMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("segment: marshaling %s: %w", directory.MetaFileName, err)
	}
	if err := dir.AtomicWrite(directory.MetaFileName, data); err != nil {
		return fmt.Errorf("segment: writing %s: %w", directory.MetaFileName, err)
	}
	return nil
}

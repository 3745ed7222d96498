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

package directory

import (
	"bytes"
	"fmt"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RAMDirectory is an in-memory Directory for tests and ephemeral indexes:
// a map of byte buffers behind a mutex.
type RAMDirectory struct {
	logger *zap.Logger

	// LockWarnThreshold is how long a blocking AcquireLock may wait
	// before a warning is logged. Zero means defaultLockWarnThreshold.
	LockWarnThreshold time.Duration

	mu    sync.RWMutex
	files map[string][]byte

	locksMu sync.Mutex
	locks   map[string]chan struct{} // open while held; closed and removed on release

	watchMu   sync.Mutex
	watchers  map[int]WatchCallback
	nextWatch int
}

// NewRAMDirectory returns an empty in-memory directory. A nil logger
// disables the slow-lock warning.
func NewRAMDirectory(logger *zap.Logger) *RAMDirectory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RAMDirectory{
		logger:   logger,
		files:    make(map[string][]byte),
		locks:    make(map[string]chan struct{}),
		watchers: make(map[int]WatchCallback),
	}
}

func (d *RAMDirectory) OpenWrite(path string) (WriteHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.files[path]; ok {
		return nil, fmt.Errorf("%w: %s", ErrFileAlreadyExists, path)
	}
	// Reserve the name immediately: OpenWrite makes Exists true right
	// away, before any bytes are flushed.
	d.files[path] = nil
	h := &ramWriteHandle{dir: d, path: path}
	runtime.SetFinalizer(h, finalizeRAMWriteHandle)
	return h, nil
}

func (d *RAMDirectory) OpenRead(path string) (ReadHandle, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	data, ok := d.files[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFileDoesNotExist, path)
	}
	// Copy so that the read handle's bytes are immune to concurrent
	// Delete/overwrite, matching "bytes unchanged even if the file is
	// subsequently deleted on POSIX".
	cp := make([]byte, len(data))
	copy(cp, data)
	return &ramReadHandle{data: cp}, nil
}

func (d *RAMDirectory) AtomicWrite(path string, data []byte) error {
	d.mu.Lock()
	cp := make([]byte, len(data))
	copy(cp, data)
	d.files[path] = cp
	d.mu.Unlock()

	d.fireWatchers()
	return nil
}

func (d *RAMDirectory) Exists(path string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.files[path]
	return ok
}

func (d *RAMDirectory) Delete(path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.files[path]; !ok {
		return fmt.Errorf("%w: %s", ErrFileDoesNotExist, path)
	}
	delete(d.files, path)
	return nil
}

func (d *RAMDirectory) AcquireLock(lock Lock) (LockGuard, error) {
	start := time.Now()
	for {
		d.locksMu.Lock()
		held, ok := d.locks[lock.Path]
		if !ok {
			held = make(chan struct{})
			d.locks[lock.Path] = held
			d.locksMu.Unlock()
			d.warnIfSlowLock(lock, start)
			return &ramLockGuard{dir: d, path: lock.Path, ch: held}, nil
		}
		d.locksMu.Unlock()
		if !lock.Blocking {
			return nil, fmt.Errorf("%w: %s", ErrLockBusy, lock.Path)
		}
		<-held // wait for the holder to release, then retry acquisition
	}
}

func (d *RAMDirectory) warnIfSlowLock(lock Lock, start time.Time) {
	if !lock.Blocking {
		return
	}
	threshold := d.LockWarnThreshold
	if threshold == 0 {
		threshold = defaultLockWarnThreshold
	}
	if waited := time.Since(start); waited >= threshold {
		d.logger.Warn("directory: lock acquisition blocked",
			zap.String("path", lock.Path), zap.Duration("waited", waited))
	}
}

func (d *RAMDirectory) Watch(callback WatchCallback) (WatchHandle, error) {
	d.watchMu.Lock()
	id := d.nextWatch
	d.nextWatch++
	d.watchers[id] = callback
	d.watchMu.Unlock()
	return &ramWatchHandle{dir: d, id: id}, nil
}

func (d *RAMDirectory) fireWatchers() {
	d.watchMu.Lock()
	cbs := make([]WatchCallback, 0, len(d.watchers))
	for _, cb := range d.watchers {
		cbs = append(cbs, cb)
	}
	d.watchMu.Unlock()
	for _, cb := range cbs {
		cb()
	}
}

type ramReadHandle struct {
	data []byte
}

func (h *ramReadHandle) Bytes() []byte { return h.data }
func (h *ramReadHandle) Close() error  { return nil }

type ramWriteHandle struct {
	dir     *RAMDirectory
	path    string
	buf     bytes.Buffer
	flushed bool
}

func (h *ramWriteHandle) Write(p []byte) (int, error) {
	return h.buf.Write(p)
}

func (h *ramWriteHandle) Flush() error {
	h.dir.mu.Lock()
	h.dir.files[h.path] = append([]byte(nil), h.buf.Bytes()...)
	h.dir.mu.Unlock()
	h.flushed = true
	return nil
}

// Close seals the handle. Dropping a write handle without flushing is a
// programmer error; here it is enforced deterministically (a finalizer
// backs up the case where Close is never called either, see
// finalizeRAMWriteHandle).
func (h *ramWriteHandle) Close() error {
	if !h.flushed {
		panic(fmt.Sprintf("directory: write handle for %q closed without Flush", h.path))
	}
	runtime.SetFinalizer(h, nil)
	return nil
}

func finalizeRAMWriteHandle(h *ramWriteHandle) {
	if !h.flushed {
		// A write handle reaching GC without ever being flushed means
		// the caller dropped buffered data on the floor.
		panic(fmt.Sprintf("directory: write handle for %q garbage-collected without Flush", h.path))
	}
}

type ramLockGuard struct {
	dir      *RAMDirectory
	path     string
	ch       chan struct{}
	released bool
}

func (g *ramLockGuard) Release() error {
	if g.released {
		return nil
	}
	g.released = true
	g.dir.locksMu.Lock()
	if g.dir.locks[g.path] == g.ch {
		delete(g.dir.locks, g.path)
	}
	g.dir.locksMu.Unlock()
	close(g.ch)
	return nil
}

type ramWatchHandle struct {
	dir *RAMDirectory
	id  int
}

func (h *ramWatchHandle) Close() error {
	h.dir.watchMu.Lock()
	delete(h.dir.watchers, h.id)
	h.dir.watchMu.Unlock()
	return nil
}

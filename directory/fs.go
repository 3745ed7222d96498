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
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	mmap "github.com/blevesearch/mmap-go"
	"go.uber.org/zap"
	"gopkg.in/fsnotify.v1"
)

// FileSystemDirectory is the production Directory: sequential writers are
// real files, random reads are served from a memory mapping, locks are
// POSIX/Windows advisory file locks, and watch is backed by fsnotify.
type FileSystemDirectory struct {
	logger      *zap.Logger
	path        string
	newFilePerm os.FileMode

	// LockWarnThreshold is how long a blocking AcquireLock may wait
	// before a warning is logged. Zero means defaultLockWarnThreshold.
	LockWarnThreshold time.Duration

	watcher   *fsnotify.Watcher
	watchDone chan struct{}

	consumersMu     sync.Mutex
	consumers       map[*fsWatchHandle]struct{}
	dispatchStarted bool
}

// NewFileSystemDirectory creates (if needed) and returns a directory rooted
// at path. A nil logger disables the slow-lock warning.
func NewFileSystemDirectory(logger *zap.Logger, path string) (*FileSystemDirectory, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(path, 0o700); err != nil {
		return nil, fmt.Errorf("directory: creating %q: %w", path, err)
	}
	return &FileSystemDirectory{logger: logger, path: path, newFilePerm: 0o600}, nil
}

func (d *FileSystemDirectory) full(path string) string {
	return filepath.Join(d.path, path)
}

func (d *FileSystemDirectory) OpenWrite(path string) (WriteHandle, error) {
	full := d.full(path)
	f, err := os.OpenFile(full, os.O_CREATE|os.O_EXCL|os.O_RDWR, d.newFilePerm)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrFileAlreadyExists, path)
		}
		return nil, fmt.Errorf("directory: open_write %q: %w", path, err)
	}
	return &fsWriteHandle{path: path, f: f, w: bufio.NewWriter(f)}, nil
}

func (d *FileSystemDirectory) OpenRead(path string) (ReadHandle, error) {
	full := d.full(path)
	f, err := os.Open(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrFileDoesNotExist, path)
		}
		return nil, fmt.Errorf("directory: open_read %q: %w", path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("directory: stat %q: %w", path, err)
	}
	if fi.Size() == 0 {
		// mmap.Map refuses to map a zero-length file; an empty read
		// handle is a legitimate result (e.g. a just-created, not-yet-
		// written segment file).
		if err := f.Close(); err != nil {
			return nil, err
		}
		return &fsReadHandle{data: nil}, nil
	}
	mm, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("directory: mmap %q: %w", path, err)
	}
	return &fsReadHandle{mm: mm, data: mm, f: f}, nil
}

func (d *FileSystemDirectory) AtomicWrite(path string, data []byte) error {
	full := d.full(path)
	tmp := full + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_RDWR, d.newFilePerm)
	if err != nil {
		return fmt.Errorf("directory: atomic_write tmp %q: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("directory: atomic_write %q: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("directory: atomic_write sync %q: %w", path, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("directory: atomic_write close %q: %w", path, err)
	}
	if err := os.Rename(tmp, full); err != nil {
		return fmt.Errorf("directory: atomic_write rename %q: %w", path, err)
	}
	return nil
}

func (d *FileSystemDirectory) Exists(path string) bool {
	_, err := os.Stat(d.full(path))
	return err == nil
}

func (d *FileSystemDirectory) Delete(path string) error {
	err := os.Remove(d.full(path))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrFileDoesNotExist, path)
		}
		// On Windows, removing a file with a live memory mapping fails
		// with a sharing violation; surface it verbatim rather than the
		// FileDoesNotExist sentinel.
		return fmt.Errorf("directory: delete %q: %w", path, err)
	}
	return nil
}

func (d *FileSystemDirectory) AcquireLock(lock Lock) (LockGuard, error) {
	start := time.Now()
	guard, err := acquireFileLock(d.full(lock.Path), lock.Blocking)
	if err != nil {
		return nil, err
	}
	if lock.Blocking {
		threshold := d.LockWarnThreshold
		if threshold == 0 {
			threshold = defaultLockWarnThreshold
		}
		if waited := time.Since(start); waited >= threshold {
			d.logger.Warn("directory: lock acquisition blocked",
				zap.String("path", lock.Path), zap.Duration("waited", waited))
		}
	}
	return guard, nil
}

func (d *FileSystemDirectory) Watch(callback WatchCallback) (WatchHandle, error) {
	if d.watcher == nil {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("directory: watch: %w", err)
		}
		if err := w.Add(d.path); err != nil {
			_ = w.Close()
			return nil, fmt.Errorf("directory: watch add %q: %w", d.path, err)
		}
		d.watcher = w
		d.watchDone = make(chan struct{})
	}
	return newFSWatchHandle(d, callback), nil
}

type fsWriteHandle struct {
	path    string
	f       *os.File
	w       *bufio.Writer
	flushed bool
}

func (h *fsWriteHandle) Write(p []byte) (int, error) {
	return h.w.Write(p)
}

func (h *fsWriteHandle) Flush() error {
	if err := h.w.Flush(); err != nil {
		return err
	}
	if err := h.f.Sync(); err != nil {
		return err
	}
	h.flushed = true
	return nil
}

func (h *fsWriteHandle) Close() error {
	if !h.flushed {
		panic(fmt.Sprintf("directory: write handle for %q closed without Flush", h.path))
	}
	return h.f.Close()
}

type fsReadHandle struct {
	mm   mmap.MMap
	data []byte
	f    *os.File
}

func (h *fsReadHandle) Bytes() []byte { return h.data }

func (h *fsReadHandle) Close() error {
	var err error
	if h.mm != nil {
		err = h.mm.Unmap()
	}
	if h.f != nil {
		if cerr := h.f.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

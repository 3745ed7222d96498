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

// Package directory abstracts over a collection of named byte-stream
// files: append-only creation, random-read via memory mapping, atomic
// metadata writes, advisory locks and change notification.
package directory

import (
	"errors"
	"io"
	"time"
)

// Sentinel errors surfaced by every Directory implementation. Callers
// should use errors.Is against these rather than matching concrete types.
var (
	ErrFileAlreadyExists = errors.New("directory: file already exists")
	ErrFileDoesNotExist  = errors.New("directory: file does not exist")
	ErrLockBusy          = errors.New("directory: lock busy")
)

// WriteHandle is a buffered, append-only, sequential writer for one file.
// Flush must be called before Close; discarding a handle unflushed is a
// programmer error and implementations panic on it.
type WriteHandle interface {
	io.Writer
	Flush() error
	Close() error
}

// ReadHandle exposes a file's full contents as a byte slice, as if memory
// mapped. Once obtained, Bytes remains valid even if the file is deleted
// afterward on POSIX systems.
type ReadHandle interface {
	Bytes() []byte
	Close() error
}

// Lock names an advisory, exclusive lock keyed by path within a Directory.
type Lock struct {
	Path     string
	Blocking bool
}

// LockGuard releases its lock when Release is called; a guard must only be
// released once.
type LockGuard interface {
	Release() error
}

// WatchCallback is invoked at least once per successful AtomicWrite to any
// path in the directory. The on-disk directory calls it from its own
// notifier goroutine; the in-memory directory calls it synchronously on
// the goroutine performing the AtomicWrite. It must not block.
type WatchCallback func()

// WatchHandle disarms its callback when closed; subsequent writes must not
// invoke it afterward.
type WatchHandle interface {
	Close() error
}

// Directory is the capability set the segment-building core depends on.
// Two conforming variants are provided: an in-memory Directory for tests
// and ephemeral indexes (see ram.go), and a memory-mapped on-disk
// Directory for production (see fs.go).
type Directory interface {
	// OpenWrite creates path exclusively and returns a sequential writer.
	// Returns ErrFileAlreadyExists if path is already present.
	OpenWrite(path string) (WriteHandle, error)

	// OpenRead returns a random-read handle over path's full contents.
	// Returns ErrFileDoesNotExist if path is absent.
	OpenRead(path string) (ReadHandle, error)

	// AtomicWrite replaces path's content with data via write-to-temp +
	// rename, intended for small meta.json-class files only.
	AtomicWrite(path string, data []byte) error

	// Exists reports whether path is present.
	Exists(path string) bool

	// Delete removes path. Returns ErrFileDoesNotExist if path is absent.
	// On Windows, deletion fails while any read handle over path remains
	// open; on POSIX open read handles do not prevent it.
	Delete(path string) error

	// AcquireLock takes the advisory exclusive lock named by lock.Path.
	// If lock.Blocking, it waits indefinitely; otherwise it returns
	// ErrLockBusy immediately if the lock is held.
	AcquireLock(lock Lock) (LockGuard, error)

	// Watch registers callback to fire after every successful
	// AtomicWrite. Closing the returned handle disarms it.
	Watch(callback WatchCallback) (WatchHandle, error)
}

// Well-known lock file names used by the outer index writer.
const (
	WriterLockName = ".tantivy-writer.lock"
	MetaLockName   = ".tantivy-meta.lock"
)

// MetaFileName is the atomically-written file listing committed segments
// and the current opstamp.
const MetaFileName = "meta.json"

// defaultLockWarnThreshold is how long a blocking AcquireLock may wait
// before the directory logs a warning. Lock contention is normal control
// flow for the outer index writer, so the warning fires only for waits
// long enough to suggest a stuck holder.
const defaultLockWarnThreshold = time.Second

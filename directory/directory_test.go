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
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// variants is the shared conformance matrix: both directory
// implementations must satisfy every test below.
func variants(t *testing.T) map[string]Directory {
	t.Helper()
	fsDir, err := NewFileSystemDirectory(nil, t.TempDir())
	require.NoError(t, err)
	return map[string]Directory{
		"ram": NewRAMDirectory(nil),
		"fs":  fsDir,
	}
}

func TestDirectorySimpleRoundTrip(t *testing.T) {
	for name, d := range variants(t) {
		d := d
		t.Run(name, func(t *testing.T) {
			const path = "some_path_for_test"
			w, err := d.OpenWrite(path)
			require.NoError(t, err)
			assert.True(t, d.Exists(path))

			_, err = w.Write([]byte{4})
			require.NoError(t, err)
			_, err = w.Write([]byte{3})
			require.NoError(t, err)
			_, err = w.Write([]byte{7, 3, 5})
			require.NoError(t, err)
			require.NoError(t, w.Flush())
			require.NoError(t, w.Close())

			r, err := d.OpenRead(path)
			require.NoError(t, err)
			assert.Equal(t, []byte{4, 3, 7, 3, 5}, r.Bytes())
			require.NoError(t, r.Close())

			require.NoError(t, d.Delete(path))
			_, err = d.OpenRead(path)
			assert.True(t, errors.Is(err, ErrFileDoesNotExist))
		})
	}
}

func TestDirectoryRewriteForbidden(t *testing.T) {
	for name, d := range variants(t) {
		d := d
		t.Run(name, func(t *testing.T) {
			const path = "some_path_for_test"
			w, err := d.OpenWrite(path)
			require.NoError(t, err)
			assert.True(t, d.Exists(path))
			require.NoError(t, w.Flush())
			require.NoError(t, w.Close())

			_, err = d.OpenWrite(path)
			assert.True(t, errors.Is(err, ErrFileAlreadyExists))

			require.NoError(t, d.Delete(path))
		})
	}
}

func TestDirectoryDeletePOSIXSemantics(t *testing.T) {
	for name, d := range variants(t) {
		d := d
		t.Run(name, func(t *testing.T) {
			const path = "some_path_for_test"
			_, err := d.OpenRead(path)
			assert.True(t, errors.Is(err, ErrFileDoesNotExist))

			w, err := d.OpenWrite(path)
			require.NoError(t, err)
			_, err = w.Write([]byte{1, 2, 3, 4})
			require.NoError(t, err)
			require.NoError(t, w.Flush())
			require.NoError(t, w.Close())

			rh, err := d.OpenRead(path)
			require.NoError(t, err)
			assert.Equal(t, []byte{1, 2, 3, 4}, rh.Bytes())

			require.NoError(t, d.Delete(path))
			// the already-open read handle's bytes remain valid (POSIX
			// unlink-after-open semantics).
			assert.Equal(t, []byte{1, 2, 3, 4}, rh.Bytes())
			require.NoError(t, rh.Close())

			err = d.Delete("SomeOtherPath")
			assert.Error(t, err)

			_, err = d.OpenRead(path)
			assert.True(t, errors.Is(err, ErrFileDoesNotExist))
			err = d.Delete(path)
			assert.Error(t, err)
		})
	}
}

func TestDirectoryLockNonBlocking(t *testing.T) {
	for name, d := range variants(t) {
		d := d
		t.Run(name, func(t *testing.T) {
			lockA, err := d.AcquireLock(Lock{Path: "a.lock", Blocking: false})
			require.NoError(t, err)

			lockB, err := d.AcquireLock(Lock{Path: "b.lock", Blocking: false})
			require.NoError(t, err)

			_, err = d.AcquireLock(Lock{Path: "a.lock", Blocking: false})
			assert.True(t, errors.Is(err, ErrLockBusy))

			require.NoError(t, lockA.Release())
			require.NoError(t, lockB.Release())

			lockA2, err := d.AcquireLock(Lock{Path: "a.lock", Blocking: false})
			require.NoError(t, err)
			require.NoError(t, lockA2.Release())
		})
	}
}

func TestDirectoryLockBlocking(t *testing.T) {
	for name, d := range variants(t) {
		d := d
		t.Run(name, func(t *testing.T) {
			lockA, err := d.AcquireLock(Lock{Path: "a.lock", Blocking: true})
			require.NoError(t, err)

			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				time.Sleep(10 * time.Millisecond)
				_ = lockA.Release()
			}()

			_, err = d.AcquireLock(Lock{Path: "a.lock", Blocking: false})
			assert.True(t, errors.Is(err, ErrLockBusy))

			start := time.Now()
			lockA2, err := d.AcquireLock(Lock{Path: "a.lock", Blocking: true})
			require.NoError(t, err)
			assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
			require.NoError(t, lockA2.Release())
			wg.Wait()
		})
	}
}

// TestDirectoryWatchCadence runs against both variants. The in-memory
// directory fires its callbacks synchronously, so the count is asserted
// exactly; the fsnotify-backed directory may legitimately fire more than
// once per atomic write (temp-file create plus rename), so only the
// at-least-once-per-write half of the contract is asserted there.
func TestDirectoryWatchCadence(t *testing.T) {
	for name, d := range variants(t) {
		d := d
		exact := name == "ram"
		t.Run(name, func(t *testing.T) {
			var counter int64
			require.NoError(t, d.AtomicWrite(MetaFileName, []byte("random_test_data")))
			time.Sleep(10 * time.Millisecond)
			assert.Equal(t, int64(0), atomic.LoadInt64(&counter))

			watchHandle, err := d.Watch(func() {
				atomic.AddInt64(&counter, 1)
			})
			require.NoError(t, err)

			deadline := time.Now().Add(10 * time.Second)
			for i := 0; i < 10; i++ {
				require.NoError(t, d.AtomicWrite(MetaFileName, []byte("random_test_data_2")))
				for atomic.LoadInt64(&counter) <= int64(i) && time.Now().Before(deadline) {
					time.Sleep(time.Millisecond)
				}
				if exact {
					assert.Equal(t, int64(i+1), atomic.LoadInt64(&counter))
				} else {
					assert.GreaterOrEqual(t, atomic.LoadInt64(&counter), int64(i+1))
				}
			}

			// let any in-flight notifications drain before disarming, so
			// the post-close snapshot is stable.
			time.Sleep(200 * time.Millisecond)
			require.NoError(t, watchHandle.Close())
			snapshot := atomic.LoadInt64(&counter)
			require.NoError(t, d.AtomicWrite(MetaFileName, []byte("random_test_data")))
			time.Sleep(200 * time.Millisecond)
			assert.Equal(t, snapshot, atomic.LoadInt64(&counter))
		})
	}
}

func TestDirectoryPanicsIfFlushForgotten(t *testing.T) {
	for name, d := range variants(t) {
		d := d
		t.Run(name, func(t *testing.T) {
			defer func() {
				r := recover()
				assert.NotNil(t, r, "expected a panic when closing an unflushed write handle")
			}()

			w, err := d.OpenWrite("some_path_for_test")
			require.NoError(t, err)
			_, err = w.Write([]byte{4})
			require.NoError(t, err)
			_ = w.Close() // never flushed: must panic
		})
	}
}

// TestDirectorySlowBlockingLockWarns pins the ambient logging contract:
// a blocking acquisition that waits past the configured threshold logs
// exactly one warning, and fast or non-blocking acquisitions stay quiet.
func TestDirectorySlowBlockingLockWarns(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	d := NewRAMDirectory(zap.New(core))
	d.LockWarnThreshold = time.Millisecond

	holder, err := d.AcquireLock(Lock{Path: "a.lock", Blocking: false})
	require.NoError(t, err)
	assert.Zero(t, logs.Len(), "non-blocking acquisition must not log")

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = holder.Release()
	}()

	guard, err := d.AcquireLock(Lock{Path: "a.lock", Blocking: true})
	require.NoError(t, err)
	require.NoError(t, guard.Release())

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "directory: lock acquisition blocked", entry.Message)
	assert.Equal(t, "a.lock", entry.ContextMap()["path"])

	// an uncontended blocking acquisition stays under the threshold.
	quick, err := d.AcquireLock(Lock{Path: "b.lock", Blocking: true})
	require.NoError(t, err)
	require.NoError(t, quick.Release())
	assert.Equal(t, 1, logs.Len())
}

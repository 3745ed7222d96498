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

//go:build windows

package directory

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/windows"
)

// acquireFileLock takes an exclusive LockFileEx lock on path. Windows has
// no native "block forever" primitive exposed by LockFileEx without
// overlapped I/O completion ports, so the blocking case polls with a short
// sleep until the lock becomes available.
func acquireFileLock(path string, blocking bool) (LockGuard, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("directory: acquire_lock open %q: %w", path, err)
	}

	for {
		lockFlags := uint32(windows.LOCKFILE_EXCLUSIVE_LOCK | windows.LOCKFILE_FAIL_IMMEDIATELY)
		err = windows.LockFileEx(windows.Handle(f.Fd()), lockFlags, 0, 1, 0, &windows.Overlapped{})
		if err == nil {
			return &fileLockGuard{f: f}, nil
		}
		if !blocking {
			_ = f.Close()
			return nil, fmt.Errorf("%w: %s", ErrLockBusy, path)
		}
		time.Sleep(time.Millisecond)
	}
}

type fileLockGuard struct {
	f        *os.File
	released bool
}

func (g *fileLockGuard) Release() error {
	if g.released {
		return nil
	}
	g.released = true
	_ = windows.UnlockFileEx(windows.Handle(g.f.Fd()), 0, 1, 0, &windows.Overlapped{})
	return g.f.Close()
}

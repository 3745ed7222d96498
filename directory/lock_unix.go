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

//go:build darwin || dragonfly || freebsd || linux || netbsd || openbsd

package directory

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// acquireFileLock takes an exclusive flock(2) on path, creating it if
// needed. The blocking case uses LOCK_EX without LOCK_NB rather than
// polling, since flock already blocks natively.
func acquireFileLock(path string, blocking bool) (LockGuard, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("directory: acquire_lock open %q: %w", path, err)
	}

	how := unix.LOCK_EX
	if !blocking {
		how |= unix.LOCK_NB
	}

	if err := unix.Flock(int(f.Fd()), how); err != nil {
		_ = f.Close()
		if !blocking {
			return nil, fmt.Errorf("%w: %s", ErrLockBusy, path)
		}
		return nil, fmt.Errorf("directory: acquire_lock flock %q: %w", path, err)
	}

	return &fileLockGuard{f: f}, nil
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
	_ = unix.Flock(int(g.f.Fd()), unix.LOCK_UN)
	return g.f.Close()
}

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
	"sync"

	"gopkg.in/fsnotify.v1"
)

// fsWatchHandle fans a FileSystemDirectory's single fsnotify.Watcher out to
// every registered callback, started lazily on the first Watch call. The
// watch contract needs only "fire on write", not recursive directory
// tracking.
type fsWatchHandle struct {
	dir      *FileSystemDirectory
	callback WatchCallback
	closeOne sync.Once
}

func newFSWatchHandle(d *FileSystemDirectory, cb WatchCallback) *fsWatchHandle {
	h := &fsWatchHandle{dir: d, callback: cb}
	d.registerWatchConsumer(h)
	return h
}

func (h *fsWatchHandle) fire() {
	h.callback()
}

func (h *fsWatchHandle) Close() error {
	h.closeOne.Do(func() {
		h.dir.unregisterWatchConsumer(h)
	})
	return nil
}

// registerWatchConsumer adds h to the set of live watchers and, on the
// first registration, starts the dispatch goroutine draining the
// fsnotify.Watcher's Events channel.
func (d *FileSystemDirectory) registerWatchConsumer(h *fsWatchHandle) {
	d.consumersMu.Lock()
	defer d.consumersMu.Unlock()
	if d.consumers == nil {
		d.consumers = make(map[*fsWatchHandle]struct{})
	}
	d.consumers[h] = struct{}{}
	if !d.dispatchStarted {
		d.dispatchStarted = true
		go d.dispatchLoop()
	}
}

func (d *FileSystemDirectory) unregisterWatchConsumer(h *fsWatchHandle) {
	d.consumersMu.Lock()
	defer d.consumersMu.Unlock()
	delete(d.consumers, h)
}

func (d *FileSystemDirectory) dispatchLoop() {
	for {
		select {
		case ev, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			d.consumersMu.Lock()
			targets := make([]*fsWatchHandle, 0, len(d.consumers))
			for c := range d.consumers {
				targets = append(targets, c)
			}
			d.consumersMu.Unlock()
			for _, c := range targets {
				c.fire()
			}
		case _, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
		case <-d.watchDone:
			return
		}
	}
}

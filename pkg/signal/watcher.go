// Copyright 2025 RO Agent Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package signal

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// CancelWatcher latches when the session's .cancel file appears so the
// agent loop can check cancellation without a stat per step. The stat
// in Manager.IsCancelled stays the protocol of record; the watcher is
// a push-based shortcut on top of it.
type CancelWatcher struct {
	manager   *Manager
	sessionID string
	watcher   *fsnotify.Watcher
	cancelled atomic.Bool

	mu      sync.Mutex
	started bool
	stop    context.CancelFunc
}

// NewCancelWatcher creates a watcher for one session's cancel file.
func NewCancelWatcher(manager *Manager, sessionID string) (*CancelWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &CancelWatcher{manager: manager, sessionID: sessionID, watcher: watcher}, nil
}

// Start watches the signal directory until ctx ends or Stop is called.
func (w *CancelWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}
	if err := w.watcher.Add(w.manager.Dir()); err != nil {
		return err
	}

	// A cancel written before the watcher came up must still latch.
	if w.manager.IsCancelled(w.sessionID) {
		w.cancelled.Store(true)
	}

	ctx, w.stop = context.WithCancel(ctx)
	w.started = true
	go w.run(ctx)
	return nil
}

// Stop closes the watcher.
func (w *CancelWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return
	}
	w.stop()
	w.watcher.Close()
	w.started = false
}

// Cancelled reports whether the cancel file was observed. Once true it
// stays true.
func (w *CancelWatcher) Cancelled() bool {
	return w.cancelled.Load()
}

func (w *CancelWatcher) run(ctx context.Context) {
	target := w.manager.cancelPath(w.sessionID)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Name != target {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				w.cancelled.Store(true)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("Signal watcher error", "dir", w.manager.Dir(), "error", err)
			// Fall back to the stat check on watcher trouble.
			if w.manager.IsCancelled(w.sessionID) {
				w.cancelled.Store(true)
			}
		}
	}
}

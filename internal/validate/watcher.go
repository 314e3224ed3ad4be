// Logkeep - Durable Persistence and Recovery for Logging Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/logkeep

package validate

import (
	"context"
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/tomtom215/logkeep/internal/diag"
)

// CacheWatcher evicts validation cache entries when files change outside
// the durability API (an operator editing a file, another process rotating
// it). It watches directories rather than files because an atomic rename
// replaces the inode a file watch is bound to.
//
// CacheWatcher implements suture.Service; run it under the supervisor tree.
type CacheWatcher struct {
	validator *Validator
	rep       *diag.Reporter

	mu      sync.Mutex
	dirs    map[string]struct{}
	watcher *fsnotify.Watcher
}

// NewCacheWatcher creates a watcher that evicts entries from the given
// validator's cache.
func NewCacheWatcher(validator *Validator, rep *diag.Reporter) *CacheWatcher {
	return &CacheWatcher{
		validator: validator,
		rep:       rep.Component("cache-watcher"),
		dirs:      make(map[string]struct{}),
	}
}

// WatchDir registers a directory. Registration before Serve is buffered;
// registration while serving takes effect immediately.
func (cw *CacheWatcher) WatchDir(dir string) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cw.dirs[dir] = struct{}{}
	if cw.watcher != nil {
		if err := cw.watcher.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	return nil
}

// Serve runs the event loop until the context is canceled.
func (cw *CacheWatcher) Serve(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	cw.mu.Lock()
	cw.watcher = watcher
	for dir := range cw.dirs {
		if err := watcher.Add(dir); err != nil {
			cw.rep.Warn().Err(err).Str("dir", dir).Msg("cannot watch directory")
		}
	}
	cw.mu.Unlock()

	defer func() {
		cw.mu.Lock()
		cw.watcher = nil
		cw.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				cw.validator.Evict(event.Name)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			cw.rep.Warn().Err(err).Msg("fsnotify error")
		}
	}
}

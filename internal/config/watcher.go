// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// =============================================================================
// CONFIG WATCHER
// =============================================================================

// Watcher hot-reloads the global configuration when the config file changes
// on disk. Editors often rewrite files as remove+create, so the watch is on
// the config directory rather than the file itself.
type Watcher struct {
	watcher  *fsnotify.Watcher
	debounce time.Duration

	mu      sync.Mutex
	pending time.Time

	onReload func(*Config)
	cancel   context.CancelFunc
}

// NewWatcher creates a config watcher. onReload, when non-nil, is called with
// the freshly loaded config after each successful reload.
func NewWatcher(onReload func(*Config)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		watcher:  fsw,
		debounce: 250 * time.Millisecond,
		onReload: onReload,
	}, nil
}

// Watch starts watching the config directory for changes.
func (w *Watcher) Watch() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	if err := EnsureConfigDir(); err != nil {
		return err
	}
	if err := w.watcher.Add(dir); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel

	go w.processEvents(ctx)
	go w.processPending(ctx)
	return nil
}

// Close stops watching and releases resources.
func (w *Watcher) Close() error {
	if w.cancel != nil {
		w.cancel()
	}
	return w.watcher.Close()
}

func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !isConfigFile(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.mu.Lock()
			w.pending = time.Now()
			w.mu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("CONFIG_WATCH_ERROR | error=%v", err)
		}
	}
}

// processPending debounces rapid write bursts into one reload.
func (w *Watcher) processPending(ctx context.Context) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			w.mu.Lock()
			due := !w.pending.IsZero() && time.Since(w.pending) >= w.debounce
			if due {
				w.pending = time.Time{}
			}
			w.mu.Unlock()

			if !due {
				continue
			}
			if err := ReloadGlobal(); err != nil {
				log.Printf("CONFIG_RELOAD_ERROR | error=%v", err)
				continue
			}
			log.Printf("CONFIG_RELOADED")
			if w.onReload != nil {
				w.onReload(Global())
			}
		}
	}
}

func isConfigFile(path string) bool {
	base := filepath.Base(path)
	return base == "config.toml" || base == "config.json"
}

package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce collapses editor write bursts (truncate + write + rename)
// into a single reload.
const watchDebounce = 250 * time.Millisecond

// runMappingsWatcher watches the mappings file and enqueues a ReloadMappings
// action when it changes on disk. The parent directory is watched rather than
// the file itself so atomic replaces (write temp, rename) keep working.
//
// Runs until ctx is canceled.
func runMappingsWatcher(ctx context.Context, path string, events chan<- Event, logger *slog.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// The directory may not exist before the first capture saves a mapping.
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := watcher.Add(dir); err != nil {
		return err
	}

	logger.Info("watching mappings file", "path", path)

	target := filepath.Clean(path)

	var debounce *time.Timer
	var debounceCh <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			logger.Debug("mappings watcher stopping (context canceled)")
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}

			// Own save goes through the same path; the reducer keeps function
			// state for unchanged mappings, so no self-write suppression.
			if debounce == nil {
				debounce = time.NewTimer(watchDebounce)
			} else {
				if !debounce.Stop() {
					select {
					case <-debounce.C:
					default:
					}
				}
				debounce.Reset(watchDebounce)
			}
			debounceCh = debounce.C

		case <-debounceCh:
			debounceCh = nil
			logger.Info("mappings file changed, reloading", "path", path)
			select {
			case events <- ReloadMappings{}:
			default:
				logger.Warn("event queue full, dropping mappings reload")
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("mappings watcher error", "error", err)
		}
	}
}

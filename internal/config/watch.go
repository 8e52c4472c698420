package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const settingsDebounce = 250 * time.Millisecond

// WatchSettings reloads the settings file whenever it changes on disk and
// passes the result to onChange. The parent directory is watched so that
// editors replacing the file by rename are still noticed. It blocks until ctx
// is done.
func WatchSettings(ctx context.Context, path string, logger *slog.Logger, onChange func(Settings)) error {
	if logger == nil {
		logger = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create settings watcher: %w", err)
	}
	defer func() {
		if closeErr := watcher.Close(); closeErr != nil {
			logger.Debug("failed to close settings watcher", "error", closeErr)
		}
	}()

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve settings path: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch settings directory: %w", err)
	}
	logger.Info("Watching session settings", "path", abs)

	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				debounce = time.After(settingsDebounce)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Settings watcher error", "error", err)

		case <-debounce:
			debounce = nil
			s, err := LoadSettings(abs)
			if err != nil {
				logger.Warn("Failed to reload session settings", "error", err, "path", abs)
				continue
			}
			onChange(s)
		}
	}
}

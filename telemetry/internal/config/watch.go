package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// settle is how long the file must stay quiet before it is reloaded. Saving a
// file usually produces a burst of events (truncate, write, chmod, rename).
const settle = 100 * time.Millisecond

// Watch reloads path whenever it changes and hands the new Config to
// onChange. It returns nil when ctx is cancelled.
//
// The parent directory is watched rather than the file itself, so saves that
// replace the file (write to a temp file, then rename over it) keep being
// seen. Events are coalesced: one burst of writes yields one reload.
// A reload that fails to parse or validate is logged and skipped, leaving the
// previous config in effect.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	path = filepath.Clean(path)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("config: watch %s: %w", path, err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: watcher: %w", err)
	}
	defer w.Close()

	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("config: watch %s: %w", dir, err)
	}
	slog.Info("config: watching for changes", "path", path)

	timer := time.NewTimer(settle)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != path || !relevant(ev) {
				continue
			}
			timer.Reset(settle)

		case <-timer.C:
			cfg, err := Load(path)
			if err != nil {
				slog.Error("config: reload failed, keeping previous config",
					"path", path, "err", err)
				continue
			}
			slog.Info("config: reloaded", "path", path,
				"frame_interval", cfg.Telemetry.FrameInterval,
				"wrap_interval", cfg.Telemetry.WrapInterval)
			onChange(cfg)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}

// relevant reports whether ev can have changed the file's contents. A Remove
// is skipped: an editor that deletes and recreates will follow with Create.
func relevant(ev fsnotify.Event) bool {
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename)
}

package server

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// WatchConfig reloads the config file at path whenever it is written or
// replaced and passes each valid result to onChange. It runs until ctx is
// cancelled.
//
// The directory holding path is watched rather than the file itself, so saves
// that rename a new file into place keep being seen even when a reload in
// between failed. A reload that fails to parse or validate is logged and
// skipped; the previous config stays active.
func WatchConfig(ctx context.Context, path string, log *slog.Logger, onChange func(*Config)) error {
	target, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return err
	}
	log.Info("Watching config for changes", "path", target)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			// Rename and Remove are followed by a Create once the
			// replacement lands.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				log.Debug("Config file moved or removed", "path", target, "op", event.Op.String())
				continue
			}
			reloadConfig(target, log, onChange)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error("Config watcher error", "err", err)
		}
	}
}

func reloadConfig(path string, log *slog.Logger, onChange func(*Config)) {
	cfg, err := LoadConfig(path)
	if err != nil {
		log.Error("Config reload failed, keeping previous config", "path", path, "err", err)
		return
	}
	log.Info("Config reloaded", "path", path)
	onChange(cfg)
}

package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/haasonsaas/agentcore/internal/observability"
)

// Watch reloads the configuration at path whenever the file (or, for
// $include targets, its containing directory) changes on disk, calling
// onChange with the freshly loaded Config. Reload errors are logged and
// leave the previously loaded configuration in effect; Watch never calls
// onChange with a config that failed Validate.
//
// Watch blocks until ctx is cancelled, at which point it closes the
// underlying fsnotify.Watcher and returns nil.
func Watch(ctx context.Context, path string, logger *observability.Logger, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: start watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("config: watch %s: %w", dir, err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("config: resolve %s: %w", path, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			changed, err := filepath.Abs(event.Name)
			if err != nil || changed != abs {
				continue
			}
			if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
				continue
			}
			cfg, err := Load(path)
			if err != nil {
				if logger != nil {
					logger.Warn(ctx, "config reload failed, keeping previous configuration", "path", path, "error", err)
				}
				continue
			}
			onChange(cfg)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			if logger != nil {
				logger.Warn(ctx, "config watcher error", "error", err)
			}
		}
	}
}

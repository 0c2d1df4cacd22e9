package maintenance

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const debounceDelay = 500 * time.Millisecond

// WatchNetworkFile triggers a full rebuild whenever the file at path is written, created or
// renamed into place. Bursts of events are collapsed into one trigger. The parent directory is
// watched so that atomic replacements are seen. It returns once the watch is installed and
// stops when ctx is done.
func (r *Rebuilder) WatchNetworkFile(ctx context.Context, path string) error {
	return r.watchFile(ctx, path, debounceDelay)
}

func (r *Rebuilder) watchFile(ctx context.Context, path string, delay time.Duration) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}
	r.logger.Info("watching network file", zap.String("path", abs))

	go func() {
		defer w.Close()

		var debounceTimer *time.Timer
		defer func() {
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != abs {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				r.logger.Debug("network file changed",
					zap.String("file", event.Name),
					zap.String("operation", event.Op.String()),
				)
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(delay, r.Trigger)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				r.logger.Warn("network file watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}

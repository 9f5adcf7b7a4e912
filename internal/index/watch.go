package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch reloads the active pointer whenever active.json changes, until ctx
// is cancelled. ready, if non-nil, is closed once the watcher is installed.
func (ix *Indexer) Watch(ctx context.Context, ready chan<- struct{}) error {
	if err := os.MkdirAll(ix.cfg.Dir, 0755); err != nil {
		return fmt.Errorf("creating index dir: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: atomic renames replace the file's inode.
	if err := watcher.Add(ix.cfg.Dir); err != nil {
		return fmt.Errorf("watching %s: %w", ix.cfg.Dir, err)
	}
	if ready != nil {
		close(ready)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != PointerFile {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}
			if err := ix.Reload(); err != nil {
				ix.logger.Warn("failed to reload index pointer", zap.Error(err))
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			ix.logger.Warn("index watcher error", zap.Error(err))
		}
	}
}

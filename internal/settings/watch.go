package settings

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceInterval absorbs the burst of events an editor's save-as-rename
// produces so a single edit triggers a single reload.
const debounceInterval = 250 * time.Millisecond

// WatchForChanges watches the main config file and the clients/resource
// server directories for writes, creates, and renames, and calls
// ReloadConfig after each debounced burst. It watches the containing
// directories rather than the files directly so atomic-rename saves (vim,
// most editors, and authd's own SetGlobalConfig) are still observed. This
// is a convenience layered on top of ReloadConfig, which remains directly
// callable (e.g. from a SIGHUP handler) and works fine without a watcher
// at all.
func (s *Store) WatchForChanges(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	dirs := map[string]bool{
		filepath.Dir(s.paths.ConfigFile): true,
		s.paths.ClientsDir: true,
		s.paths.ResourceServersDir: true,
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			s.logger.Warn("settings: could not watch directory for changes", "dir", dir, "err", err)
		}
	}

	go func() {
		defer watcher.Close()

		var timer *time.Timer
		reloadPending := make(chan struct{}, 1)

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(debounceInterval, func() {
					select {
					case reloadPending <- struct{}{}:
					default:
					}
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn("settings: file watcher error", "err", err)
			case <-reloadPending:
				s.logger.Info("settings: reloading configuration after change on disk")
				s.ReloadConfig()
			}
		}
	}()

	return nil
}

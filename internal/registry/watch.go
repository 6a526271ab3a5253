package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/mabhi256/jprof/internal/snapshot"
)

// Watch follows the snapshot directory and its project subdirectories until
// ctx is done. Bursts of file events collapse into one refresh.
func (m *Manager) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return err
	}
	dirs := []string{m.dir}
	if projects, err := m.Projects(); err == nil {
		for _, p := range projects {
			dirs = append(dirs, filepath.Join(m.dir, p))
		}
	}
	for _, d := range dirs {
		if err := w.Add(d); err != nil {
			m.logger.Error("failed to watch directory", "path", d, "error", err)
			return err
		}
		m.logger.Debug("watching directory for snapshots", "path", d)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				if fi, err := os.Stat(event.Name); err == nil && fi.IsDir() {
					if err := w.Add(event.Name); err != nil {
						m.logger.Warn("failed to watch project directory", "path", event.Name, "error", err)
					}
					continue
				}
			}
			if isSnapshotFile(event.Name) && !event.Has(fsnotify.Chmod) {
				m.scheduleRefresh(event.Name)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			m.logger.Error("snapshot watcher error", "error", err)
		}
	}
}

// scheduleRefresh records a changed file and starts a refresh unless one is
// already pending
func (m *Manager) scheduleRefresh(path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return
	}

	m.mu.Lock()
	m.changed[abs] = struct{}{}
	m.mu.Unlock()

	if m.refreshPending.CompareAndSwap(false, true) {
		go m.refresh()
	}
}

// refresh drops caches of changed files and forgets loaded snapshots whose
// files are gone
func (m *Manager) refresh() {
	m.refreshPending.Store(false)

	m.mu.Lock()
	changed := m.changed
	m.changed = make(map[string]struct{})

	var events []Event
	var kept []*snapshot.LoadedSnapshot
	for _, ls := range m.loaded {
		if _, ok := changed[ls.File()]; ok {
			if _, err := os.Stat(ls.File()); errors.Is(err, os.ErrNotExist) {
				events = append(events, Event{Kind: EventRemoved, Snapshot: ls, File: ls.File()})
				continue
			}
		}
		kept = append(kept, ls)
	}
	m.loaded = kept

	for path := range changed {
		m.dropCacheLocked(path)
		events = append(events, Event{Kind: EventChanged, File: path})
	}
	m.mu.Unlock()

	m.logger.Debug("snapshot directory refreshed", "changed", len(changed))
	m.fire(events...)
}

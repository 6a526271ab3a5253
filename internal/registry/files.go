package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/mabhi256/jprof/internal/snapshot"
)

// SavedFile is a snapshot file found on disk
type SavedFile struct {
	Path    string
	Name    string
	Size    int64
	ModTime time.Time
	Header  snapshot.Header
	Err     error // header could not be read
	Loaded  bool
}

// ListSaved lists the snapshot files of project sorted by name. A missing
// directory yields an empty list.
func (m *Manager) ListSaved(project string) ([]SavedFile, error) {
	dir, err := filepath.Abs(m.ProjectDir(project))
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	var files []SavedFile
	for _, e := range entries {
		if e.IsDir() || !isSnapshotFile(e.Name()) || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}

		path := filepath.Join(dir, e.Name())
		f := SavedFile{
			Path:    path,
			Name:    strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())),
			Size:    info.Size(),
			ModTime: info.ModTime(),
			Loaded:  m.FindByFile(path) != nil,
		}
		f.Header, f.Err = m.Header(path)
		files = append(files, f)
	}

	slices.SortFunc(files, func(a, b SavedFile) int {
		return strings.Compare(a.Name, b.Name)
	})
	return files, nil
}

// Projects lists the project subdirectories
func (m *Manager) Projects() ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var projects []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			projects = append(projects, e.Name())
		}
	}
	return projects, nil
}

// UpdateComments sets the user comments of ls and rewrites its file when it
// has one
func (m *Manager) UpdateComments(ls *snapshot.LoadedSnapshot, comments string) error {
	if isRecording(ls.File()) {
		return ErrReadOnly
	}
	ls.SetUserComments(comments)
	if ls.File() == "" {
		return nil
	}
	return m.Save(ls, ls.File())
}

package snapshot

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mabhi256/jprof/internal/results"
	"github.com/mabhi256/jprof/internal/settings"
)

const (
	Ext        = "nps"
	namePrefix = "snapshot-"

	// key the user comments travel under inside the settings block
	commentsKey = "profiler.snapshot.user.comments"
)

// LoadedSnapshot is a results payload together with the settings that produced
// it and its on-disk identity
type LoadedSnapshot struct {
	results      results.Snapshot
	settings     *settings.ProfilingSettings
	file         string
	project      string
	saved        bool
	userComments string
}

// New wraps freshly produced or decoded results. file may be empty for a
// snapshot that has never been written.
func New(res results.Snapshot, s *settings.ProfilingSettings, file, project string) (*LoadedSnapshot, error) {
	if res == nil {
		return nil, errors.New("snapshot results must not be nil")
	}
	if s == nil {
		return nil, errors.New("snapshot settings must not be nil")
	}
	if _, err := typeOf(res); err != nil {
		return nil, err
	}
	return &LoadedSnapshot{
		results:  res,
		settings: s,
		file:     file,
		project:  project,
	}, nil
}

func (ls *LoadedSnapshot) Results() results.Snapshot {
	return ls.results
}

func (ls *LoadedSnapshot) Settings() *settings.ProfilingSettings {
	return ls.settings
}

func (ls *LoadedSnapshot) Type() Type {
	t, _ := typeOf(ls.results)
	return t
}

func (ls *LoadedSnapshot) File() string {
	return ls.file
}

// SetFile records where the snapshot lives and marks it saved
func (ls *LoadedSnapshot) SetFile(file string) {
	ls.file = file
	ls.saved = true
}

func (ls *LoadedSnapshot) Project() string {
	return ls.project
}

func (ls *LoadedSnapshot) SetProject(project string) {
	ls.project = project
}

func (ls *LoadedSnapshot) Saved() bool {
	return ls.saved
}

func (ls *LoadedSnapshot) SetSaved(saved bool) {
	ls.saved = saved
}

func (ls *LoadedSnapshot) UserComments() string {
	return ls.userComments
}

func (ls *LoadedSnapshot) SetUserComments(comments string) {
	ls.userComments = comments
}

// DefaultName is the file name a snapshot gets when saved without one
func (ls *LoadedSnapshot) DefaultName() string {
	return fmt.Sprintf("%s%d.%s", namePrefix, ls.results.TimeTaken().UnixMilli(), Ext)
}

// DisplayName is the file name without extension, or the default name for
// snapshots that have never been saved
func (ls *LoadedSnapshot) DisplayName() string {
	name := ls.DefaultName()
	if ls.file != "" {
		name = filepath.Base(ls.file)
	}
	return strings.TrimSuffix(name, "."+Ext)
}

func (ls *LoadedSnapshot) String() string {
	file := ls.file
	if file == "" {
		file = "<unsaved>"
	}
	return fmt.Sprintf("%s snapshot %s taken %s (%s)",
		ls.Type(), ls.DisplayName(), ls.results.TimeTaken().Format("2006-01-02 15:04:05"), file)
}

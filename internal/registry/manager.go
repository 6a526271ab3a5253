package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/mabhi256/jprof/internal/results"
	"github.com/mabhi256/jprof/internal/samples"
	"github.com/mabhi256/jprof/internal/settings"
	"github.com/mabhi256/jprof/internal/snapshot"
	"golang.org/x/sync/errgroup"
)

var (
	ErrExists    = errors.New("file already exists")
	ErrNotLoaded = errors.New("snapshot is not loaded")
	ErrReadOnly  = errors.New("sample recordings are read-only, convert them to a snapshot first")
)

const loadConcurrency = 4

type EventKind int

const (
	EventLoaded EventKind = iota
	EventSaved
	EventRemoved
	EventChanged
)

func (k EventKind) String() string {
	switch k {
	case EventLoaded:
		return "loaded"
	case EventSaved:
		return "saved"
	case EventRemoved:
		return "removed"
	case EventChanged:
		return "changed"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

type Event struct {
	Kind     EventKind
	Snapshot *snapshot.LoadedSnapshot // nil for directory changes
	File     string
}

type Listener func(Event)

// Manager keeps the snapshots open in this process and the snapshot files of
// a directory, one subdirectory per project
type Manager struct {
	dir    string
	codec  *snapshot.Codec
	logger *slog.Logger

	mu        sync.Mutex
	loaded    []*snapshot.LoadedSnapshot
	headers   map[string]snapshot.Header
	settings  map[string]*settings.ProfilingSettings
	listeners []Listener

	changed        map[string]struct{}
	refreshPending atomic.Bool
}

type Option func(*Manager)

func WithCodec(c *snapshot.Codec) Option {
	return func(m *Manager) {
		m.codec = c
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

func NewManager(dir string, opts ...Option) *Manager {
	m := &Manager{
		dir:      dir,
		codec:    &snapshot.Codec{},
		logger:   slog.Default(),
		headers:  make(map[string]snapshot.Header),
		settings: make(map[string]*settings.ProfilingSettings),
		changed:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) Dir() string {
	return m.dir
}

func (m *Manager) Subscribe(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// fire delivers events to listeners; callers must not hold m.mu
func (m *Manager) fire(events ...Event) {
	m.mu.Lock()
	listeners := slices.Clone(m.listeners)
	m.mu.Unlock()

	for _, e := range events {
		for _, l := range listeners {
			l(e)
		}
	}
}

func (m *Manager) Snapshots() []*snapshot.LoadedSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.loaded)
}

func (m *Manager) FindByFile(path string) *snapshot.LoadedSnapshot {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findByFileLocked(abs)
}

func (m *Manager) findByFileLocked(abs string) *snapshot.LoadedSnapshot {
	for _, ls := range m.loaded {
		if ls.File() == abs {
			return ls
		}
	}
	return nil
}

func (m *Manager) FindByResults(res results.Snapshot) *snapshot.LoadedSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ls := range m.loaded {
		if ls.Results() == res {
			return ls
		}
	}
	return nil
}

// Add registers a snapshot produced in this process
func (m *Manager) Add(ls *snapshot.LoadedSnapshot) {
	m.mu.Lock()
	if slices.Contains(m.loaded, ls) {
		m.mu.Unlock()
		return
	}
	m.loaded = append(m.loaded, ls)
	m.mu.Unlock()

	m.fire(Event{Kind: EventLoaded, Snapshot: ls, File: ls.File()})
}

// Load opens the snapshot at path. A file that is already loaded is returned
// as is.
func (m *Manager) Load(path string) (*snapshot.LoadedSnapshot, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if ls := m.findByFileLocked(abs); ls != nil {
		m.mu.Unlock()
		return ls, nil
	}
	m.mu.Unlock()

	ls, err := m.codec.LoadFile(abs)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	// another goroutine may have won the race
	if existing := m.findByFileLocked(abs); existing != nil {
		m.mu.Unlock()
		return existing, nil
	}
	m.loaded = append(m.loaded, ls)
	m.mu.Unlock()

	m.logger.Debug("snapshot loaded", "file", abs, "type", ls.Type())
	m.fire(Event{Kind: EventLoaded, Snapshot: ls, File: abs})
	return ls, nil
}

// LoadAll loads paths concurrently. Snapshots come back in the order of
// paths, with nil for failed loads; the error joins every failure.
func (m *Manager) LoadAll(ctx context.Context, paths []string) ([]*snapshot.LoadedSnapshot, error) {
	loaded := make([]*snapshot.LoadedSnapshot, len(paths))
	errs := make([]error, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(loadConcurrency)
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			loaded[i], errs[i] = m.Load(path)
			return nil
		})
	}
	g.Wait()

	return loaded, errors.Join(errs...)
}

// Save writes ls to path and registers it
func (m *Manager) Save(ls *snapshot.LoadedSnapshot, path string) error {
	if err := m.codec.SaveFile(ls, path); err != nil {
		return err
	}

	m.mu.Lock()
	m.dropCacheLocked(ls.File())
	if !slices.Contains(m.loaded, ls) {
		m.loaded = append(m.loaded, ls)
	}
	m.mu.Unlock()

	m.logger.Debug("snapshot saved", "file", ls.File())
	m.fire(Event{Kind: EventSaved, Snapshot: ls, File: ls.File()})
	return nil
}

// ProjectDir is where snapshots of project are kept
func (m *Manager) ProjectDir(project string) string {
	if project == "" {
		return m.dir
	}
	return filepath.Join(m.dir, project)
}

// SaveDefault saves ls under its default name in its project directory
func (m *Manager) SaveDefault(ls *snapshot.LoadedSnapshot) (string, error) {
	path := filepath.Join(m.ProjectDir(ls.Project()), ls.DefaultName())
	if err := m.Save(ls, path); err != nil {
		return "", err
	}
	return ls.File(), nil
}

// Close forgets ls without touching its file
func (m *Manager) Close(ls *snapshot.LoadedSnapshot) error {
	if !m.remove(ls) {
		return ErrNotLoaded
	}
	m.fire(Event{Kind: EventRemoved, Snapshot: ls, File: ls.File()})
	return nil
}

// Delete removes the file of ls, then forgets ls
func (m *Manager) Delete(ls *snapshot.LoadedSnapshot) error {
	if file := ls.File(); file != "" {
		if err := os.Remove(file); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to delete snapshot: %w", err)
		}
	}

	m.mu.Lock()
	m.dropCacheLocked(ls.File())
	m.mu.Unlock()
	m.remove(ls)

	m.logger.Debug("snapshot deleted", "file", ls.File())
	m.fire(Event{Kind: EventRemoved, Snapshot: ls, File: ls.File()})
	return nil
}

// DeleteFile deletes a saved snapshot file whether or not it is loaded
func (m *Manager) DeleteFile(path string) error {
	if ls := m.FindByFile(path); ls != nil {
		return m.Delete(ls)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	m.mu.Lock()
	m.dropCacheLocked(abs)
	m.mu.Unlock()

	m.fire(Event{Kind: EventRemoved, File: abs})
	return nil
}

func (m *Manager) remove(ls *snapshot.LoadedSnapshot) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := slices.Index(m.loaded, ls)
	if i < 0 {
		return false
	}
	m.loaded = slices.Delete(m.loaded, i, i+1)
	return true
}

// Unsaved lists snapshots that would be lost on exit
func (m *Manager) Unsaved() []*snapshot.LoadedSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	var unsaved []*snapshot.LoadedSnapshot
	for _, ls := range m.loaded {
		if !ls.Saved() {
			unsaved = append(unsaved, ls)
		}
	}
	return unsaved
}

// Export writes a copy of ls to dest. The snapshot keeps its own file.
func (m *Manager) Export(ls *snapshot.LoadedSnapshot, dest string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(dest); err == nil {
			return fmt.Errorf("%w: %s", ErrExists, dest)
		}
	}

	var data []byte
	var err error
	if ls.Saved() && ls.File() != "" {
		data, err = os.ReadFile(ls.File())
	} else {
		data, err = m.codec.Marshal(ls)
	}
	if err != nil {
		return fmt.Errorf("failed to export snapshot: %w", err)
	}

	return writeFileAtomic(dest, data)
}

func writeFileAtomic(dest string, data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to export snapshot: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("failed to export snapshot: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to export snapshot: %w", err)
	}
	if err = os.Rename(tmp.Name(), dest); err != nil {
		return fmt.Errorf("failed to export snapshot: %w", err)
	}
	return nil
}

// Compare diffs two memory snapshots of the same kind
func (m *Manager) Compare(first, second *snapshot.LoadedSnapshot) (*results.MemoryDiff, error) {
	if !first.Type().IsMemory() || !second.Type().IsMemory() {
		return nil, fmt.Errorf("%w: %s and %s", results.ErrCannotCompare, first.Type(), second.Type())
	}
	return results.Diff(first.Results(), second.Results())
}

func isSnapshotFile(name string) bool {
	ext := strings.TrimPrefix(filepath.Ext(name), ".")
	return ext == snapshot.Ext || isRecording(name)
}

func isRecording(name string) bool {
	return strings.TrimPrefix(filepath.Ext(name), ".") == samples.StreamExt
}

// Header returns the cached header of a snapshot file
func (m *Manager) Header(path string) (snapshot.Header, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return snapshot.Header{}, err
	}

	m.mu.Lock()
	h, ok := m.headers[abs]
	m.mu.Unlock()
	if ok {
		return h, nil
	}

	f, err := os.Open(abs)
	if err != nil {
		return snapshot.Header{}, err
	}
	defer f.Close()

	h, err = m.codec.ReadHeader(f)
	if err != nil {
		return snapshot.Header{}, fmt.Errorf("%s: %w", filepath.Base(abs), err)
	}

	m.mu.Lock()
	m.headers[abs] = h
	m.mu.Unlock()
	return h, nil
}

// Settings returns the cached settings of a snapshot file
func (m *Manager) Settings(path string) (*settings.ProfilingSettings, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	s, ok := m.settings[abs]
	m.mu.Unlock()
	if ok {
		return s.Copy(), nil
	}

	f, err := os.Open(abs)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	s, err = m.codec.ReadSettings(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(abs), err)
	}

	m.mu.Lock()
	m.settings[abs] = s
	m.mu.Unlock()
	return s.Copy(), nil
}

func (m *Manager) dropCacheLocked(path string) {
	delete(m.headers, path)
	delete(m.settings, path)
}

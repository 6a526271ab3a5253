package registry

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mabhi256/jprof/internal/results"
	"github.com/mabhi256/jprof/internal/samples"
	"github.com/mabhi256/jprof/internal/settings"
	"github.com/mabhi256/jprof/internal/snapshot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) listen(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kinds []EventKind
	for _, e := range r.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

func allocSnapshot(t *testing.T, takenMillis int64, project string, bytes int64) *snapshot.LoadedSnapshot {
	t.Helper()
	res := results.NewAllocResults(time.UnixMilli(takenMillis-100), time.UnixMilli(takenMillis), []results.ClassAllocation{
		{Name: "byte[]", Bytes: bytes, Objects: 1},
	})
	ls, err := snapshot.New(res, settings.MemoryPreset(), "", project)
	require.NoError(t, err)
	return ls
}

func cpuSnapshot(t *testing.T) *snapshot.LoadedSnapshot {
	t.Helper()
	res := results.NewCPUResults(time.UnixMilli(1), time.UnixMilli(2), false)
	ls, err := snapshot.New(res, settings.CPUPreset(), "", "")
	require.NoError(t, err)
	return ls
}

func TestSaveDefaultAndLoad(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)
	rec := &recorder{}
	m.Subscribe(rec.listen)

	ls := allocSnapshot(t, 5000, "shop", 64)
	path, err := m.SaveDefault(ls)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "shop", "snapshot-5000.nps"), path)
	assert.True(t, ls.Saved())

	again, err := m.Load(path)
	require.NoError(t, err)
	assert.Same(t, ls, again)
	assert.Equal(t, []EventKind{EventSaved}, rec.kinds())

	fresh := NewManager(dir)
	a, err := fresh.Load(path)
	require.NoError(t, err)
	b, err := fresh.Load(path)
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Len(t, fresh.Snapshots(), 1)
	assert.Same(t, a, fresh.FindByFile(path))
	assert.Same(t, a, fresh.FindByResults(a.Results()))
}

func TestLoadAllJoinsErrors(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)

	var paths []string
	for i := range 3 {
		ls := allocSnapshot(t, int64(1000+i), "", 8)
		p, err := m.SaveDefault(ls)
		require.NoError(t, err)
		paths = append(paths, p)
	}
	bad := filepath.Join(dir, "bad.nps")
	require.NoError(t, os.WriteFile(bad, []byte("garbage"), 0o644))
	paths = append(paths, bad, filepath.Join(dir, "missing.nps"))

	fresh := NewManager(dir)
	loaded, err := fresh.LoadAll(context.Background(), paths)
	require.Error(t, err)
	assert.ErrorIs(t, err, snapshot.ErrInvalidFile)
	assert.ErrorIs(t, err, os.ErrNotExist)

	require.Len(t, loaded, 5)
	for i := range 3 {
		assert.NotNil(t, loaded[i])
	}
	assert.Nil(t, loaded[3])
	assert.Nil(t, loaded[4])
	assert.Len(t, fresh.Snapshots(), 3)
}

func TestListSaved(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)

	for _, ms := range []int64{3000, 1000, 2000} {
		_, err := m.SaveDefault(allocSnapshot(t, ms, "", 8))
		require.NoError(t, err)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	files, err := m.ListSaved("")
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, "snapshot-1000", files[0].Name)
	assert.Equal(t, "snapshot-3000", files[2].Name)
	assert.Equal(t, snapshot.TypeMemoryAllocations, files[0].Header.Type)
	assert.NoError(t, files[0].Err)
	assert.True(t, files[0].Loaded)
	assert.Positive(t, files[0].Size)

	none, err := m.ListSaved("no-such-project")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDeleteAndClose(t *testing.T) {
	m := NewManager(t.TempDir())
	rec := &recorder{}
	m.Subscribe(rec.listen)

	ls := allocSnapshot(t, 1000, "", 8)
	path, err := m.SaveDefault(ls)
	require.NoError(t, err)

	require.NoError(t, m.Delete(ls))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	assert.Empty(t, m.Snapshots())

	other := allocSnapshot(t, 2000, "", 8)
	m.Add(other)
	require.NoError(t, m.Close(other))
	assert.ErrorIs(t, m.Close(other), ErrNotLoaded)

	assert.Equal(t, []EventKind{EventSaved, EventRemoved, EventLoaded, EventRemoved}, rec.kinds())
}

func TestDeleteFileNotLoaded(t *testing.T) {
	dir := t.TempDir()
	_, err := NewManager(dir).SaveDefault(allocSnapshot(t, 1000, "", 8))
	require.NoError(t, err)

	m := NewManager(dir)
	require.NoError(t, m.DeleteFile(filepath.Join(dir, "snapshot-1000.nps")))
	files, err := m.ListSaved("")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestExport(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)
	dest := filepath.Join(dir, "copy.nps")

	unsaved := allocSnapshot(t, 1000, "", 8)
	require.NoError(t, m.Export(unsaved, dest, false))
	assert.Empty(t, unsaved.File())
	assert.False(t, unsaved.Saved())

	err := m.Export(unsaved, dest, false)
	assert.ErrorIs(t, err, ErrExists)

	saved := allocSnapshot(t, 2000, "", 16)
	_, err = m.SaveDefault(saved)
	require.NoError(t, err)
	require.NoError(t, m.Export(saved, dest, true))

	copied, err := snapshot.LoadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, int64(16), copied.Results().(*results.AllocResults).TotalBytes())
}

func TestCompare(t *testing.T) {
	m := NewManager(t.TempDir())

	d, err := m.Compare(allocSnapshot(t, 1000, "", 8), allocSnapshot(t, 2000, "", 24))
	require.NoError(t, err)
	require.Len(t, d.Classes, 1)
	assert.Equal(t, int64(16), d.Classes[0].Bytes)

	_, err = m.Compare(allocSnapshot(t, 1000, "", 8), cpuSnapshot(t))
	assert.ErrorIs(t, err, results.ErrCannotCompare)
}

func TestUnsaved(t *testing.T) {
	m := NewManager(t.TempDir())
	a := allocSnapshot(t, 1000, "", 8)
	b := allocSnapshot(t, 2000, "", 8)
	m.Add(a)
	m.Add(b)
	_, err := m.SaveDefault(a)
	require.NoError(t, err)

	assert.Equal(t, []*snapshot.LoadedSnapshot{b}, m.Unsaved())
}

func TestUpdateComments(t *testing.T) {
	m := NewManager(t.TempDir())
	ls := allocSnapshot(t, 1000, "", 8)
	path, err := m.SaveDefault(ls)
	require.NoError(t, err)

	require.NoError(t, m.UpdateComments(ls, "leak suspect"))
	got, err := snapshot.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "leak suspect", got.UserComments())
}

func TestHeaderCacheRefresh(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)
	path := filepath.Join(dir, "x.nps")
	require.NoError(t, snapshot.SaveFile(allocSnapshot(t, 1000, "", 8), path))

	h, err := m.Header(path)
	require.NoError(t, err)
	assert.Equal(t, snapshot.TypeMemoryAllocations, h.Type)

	live, err := snapshot.New(results.NewLivenessResults(time.UnixMilli(1), time.UnixMilli(2), 1, nil), settings.LivenessPreset(), "", "")
	require.NoError(t, err)
	require.NoError(t, snapshot.SaveFile(live, path))

	h, err = m.Header(path)
	require.NoError(t, err)
	assert.Equal(t, snapshot.TypeMemoryAllocations, h.Type, "served from cache")

	s, err := m.Settings(path)
	require.NoError(t, err)
	assert.Equal(t, settings.ProfileMemoryLiveness, s.Type)

	m.scheduleRefresh(path)
	assert.Eventually(t, func() bool {
		h, err := m.Header(path)
		return err == nil && h.Type == snapshot.TypeMemoryLiveness
	}, 2*time.Second, 5*time.Millisecond)
}

func TestRefreshForgetsVanishedFiles(t *testing.T) {
	m := NewManager(t.TempDir())
	ls := allocSnapshot(t, 1000, "", 8)
	path, err := m.SaveDefault(ls)
	require.NoError(t, err)

	// listeners run without the registry lock held
	var seen []int
	var mu sync.Mutex
	m.Subscribe(func(e Event) {
		if e.Kind == EventRemoved {
			mu.Lock()
			seen = append(seen, len(m.Snapshots()))
			mu.Unlock()
		}
	})

	require.NoError(t, os.Remove(path))
	m.changed[path] = struct{}{}
	m.refresh()

	assert.Empty(t, m.Snapshots())
	mu.Lock()
	assert.Equal(t, []int{0}, seen)
	mu.Unlock()
}

func TestWatchReportsNewFiles(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)

	changed := make(chan string, 16)
	m.Subscribe(func(e Event) {
		if e.Kind == EventChanged {
			changed <- e.File
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Watch(ctx) }()

	path := filepath.Join(dir, "late.nps")
	require.Eventually(t, func() bool {
		// the watch registers asynchronously, so keep writing until seen
		if err := snapshot.SaveFile(allocSnapshot(t, 1000, "", 8), path); err != nil {
			return false
		}
		select {
		case got := <-changed:
			return got == path
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func TestRecordingsAreReadOnly(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.npss")

	f, err := os.Create(path)
	require.NoError(t, err)
	w, err := samples.NewWriter(f)
	require.NoError(t, err)
	frame := samples.StackFrame{ClassName: "com.shop.Server", MethodName: "serve"}
	for i := range 2 {
		require.NoError(t, w.WriteSample(int64(i)*1_000_000, []samples.ThreadInfo{
			{ID: 1, Name: "main", State: samples.StateRunnable, Stack: []samples.StackFrame{frame}},
		}))
	}
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	m := NewManager(dir)
	ls, err := m.Load(path)
	require.NoError(t, err)
	assert.Equal(t, snapshot.TypeCPU, ls.Type())
	assert.ErrorIs(t, m.UpdateComments(ls, "x"), ErrReadOnly)

	files, err := m.ListSaved("")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.True(t, files[0].Header.Stream)
}

package cmd

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/mabhi256/jprof/internal/registry"
	"github.com/mabhi256/jprof/internal/results"
	"github.com/mabhi256/jprof/internal/settings"
	"github.com/mabhi256/jprof/internal/snapshot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescribeError(t *testing.T) {
	_, err := snapshot.Decode(strings.NewReader("definitely not a snapshot"))
	require.Error(t, err)
	assert.Equal(t, "a.nps: not a profiler snapshot file", describeError(fmt.Errorf("a.nps: %w", err)))

	data := append([]byte(snapshot.Magic), 1, 1)
	_, err = snapshot.Decode(bytes.NewReader(data))
	require.Error(t, err)
	assert.Equal(t, "a.nps: snapshot file is corrupted: snapshot file is too short",
		describeError(fmt.Errorf("a.nps: %w", err)))

	assert.Equal(t, "a.nps: not enough memory to load snapshot (raise snapshot.max_section_mb)",
		describeError(fmt.Errorf("a.nps: %w", snapshot.ErrOutOfMemory)))
	assert.Equal(t, "boom", describeError(fmt.Errorf("boom")))
}

func TestParseView(t *testing.T) {
	for in, want := range map[string]results.View{"": results.MethodView, "classes": results.ClassView, "Package": results.PackageView} {
		got, err := parseView(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := parseView("threads")
	assert.Error(t, err)
}

func TestResolveSnapshotByName(t *testing.T) {
	dir := t.TempDir()
	m := registry.NewManager(dir)
	res := results.NewAllocResults(time.UnixMilli(1000), time.UnixMilli(2000), nil)
	ls, err := snapshot.New(res, settings.MemoryPreset(), "", "shop")
	require.NoError(t, err)
	path, err := m.SaveDefault(ls)
	require.NoError(t, err)

	got, err := resolveSnapshot(m, "shop", "snapshot-2000")
	require.NoError(t, err)
	assert.Equal(t, path, got)

	got, err = resolveSnapshot(m, "", path)
	require.NoError(t, err)
	assert.Equal(t, path, got)

	_, err = resolveSnapshot(m, "", "missing")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestPrintResultsTableLimit(t *testing.T) {
	res := results.NewAllocResults(time.UnixMilli(1), time.UnixMilli(2), []results.ClassAllocation{
		{Name: "byte[]", Bytes: 300, Objects: 3},
		{Name: "java.lang.String", Bytes: 200, Objects: 2},
		{Name: "int[]", Bytes: 100, Objects: 1},
	})

	var buf bytes.Buffer
	printResultsTable(&buf, results.Tabulate(res, results.MethodView), 2)
	out := buf.String()
	assert.Contains(t, out, "Allocated objects")
	assert.Contains(t, out, "java.lang.String")
	assert.NotContains(t, out, "int[]")
	assert.Contains(t, out, "2 of 3 entries")

	buf.Reset()
	printResultsTable(&buf, results.Table{}, 0)
	assert.Equal(t, "No data collected\n", buf.String())
}

func TestConfirm(t *testing.T) {
	var out bytes.Buffer
	assert.True(t, confirm(strings.NewReader("yes\n"), &out, "Save?"))
	assert.Equal(t, "Save? [y/N] ", out.String())
	assert.False(t, confirm(strings.NewReader("\n"), &out, "Save?"))
	assert.False(t, confirm(strings.NewReader(""), &out, "Save?"))
}

func TestSigned(t *testing.T) {
	assert.Equal(t, "+2K", signedSize(2048))
	assert.Equal(t, "-512B", signedSize(-512))
	assert.Equal(t, "0", signedCount(0))
	assert.Equal(t, "+3", signedCount(3))
}

package html

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mabhi256/jprof/internal/results"
	"github.com/mabhi256/jprof/internal/settings"
	"github.com/mabhi256/jprof/internal/snapshot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func allocSnapshot(t *testing.T, classes int) *snapshot.LoadedSnapshot {
	t.Helper()
	var list []results.ClassAllocation
	for i := range classes {
		list = append(list, results.ClassAllocation{Name: "com.shop.Item" + string(rune('A'+i%26)), Bytes: int64(1024 * (i + 1)), Objects: 1})
	}
	res := results.NewAllocResults(time.Now().Add(-time.Hour-time.Minute), time.Now().Add(-time.Hour), list)
	ls, err := snapshot.New(res, settings.MemoryPreset(), "", "")
	require.NoError(t, err)
	return ls
}

func TestGenerate(t *testing.T) {
	ls := allocSnapshot(t, 2)
	ls.SetUserComments(`<script>alert("x")</script>`)

	var sb strings.Builder
	require.NoError(t, Generate(&sb, ls, results.MethodView))
	out := sb.String()

	assert.Contains(t, out, "<title>"+ls.DisplayName()+"</title>")
	assert.Contains(t, out, "Memory Allocations")
	assert.Contains(t, out, "1 hour ago")
	assert.Contains(t, out, "Allocated objects")
	assert.Contains(t, out, `<td class="num">2K</td>`)
	assert.Contains(t, out, "&lt;unsaved&gt;")
	assert.NotContains(t, out, "<script>", "comments are escaped")
	assert.NotContains(t, out, "Showing")
}

func TestGenerateTruncatesRows(t *testing.T) {
	var sb strings.Builder
	require.NoError(t, Generate(&sb, allocSnapshot(t, MaxRows+5), results.MethodView))
	assert.Contains(t, sb.String(), "Showing 500 of 505 rows.")
}

func TestGenerateHTMLReport(t *testing.T) {
	dir := t.TempDir()
	ls := allocSnapshot(t, 1)
	path := filepath.Join(dir, "snapshot.nps")
	require.NoError(t, snapshot.SaveFile(ls, path))

	written, err := GenerateHTMLReport(ls, results.MethodView, filepath.Join(dir, "out", "report"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "out", "report.html"), written)

	data, err := os.ReadFile(written)
	require.NoError(t, err)
	assert.Contains(t, string(data), path)
	assert.Contains(t, string(data), "File size")

	assert.Equal(t, "snapshot.html", GetDefaultOutputPath(ls))
}

func TestGenerateNil(t *testing.T) {
	assert.Error(t, Generate(&strings.Builder{}, nil, results.MethodView))
}

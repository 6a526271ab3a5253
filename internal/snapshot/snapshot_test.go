package snapshot

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mabhi256/jprof/internal/results"
	"github.com/mabhi256/jprof/internal/samples"
	"github.com/mabhi256/jprof/internal/settings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cpuResults() *results.CPUResults {
	c := results.NewCPUResults(time.UnixMilli(1000), time.UnixMilli(5000), true)
	c.Methods = []results.MethodInfo{{ClassName: "com.acme.App", MethodName: "main", Signature: "()V"}}
	c.Threads = []*results.ThreadTree{{
		ID:   1,
		Name: "main",
		Root: &results.Node{MethodID: results.RootMethodID, TotalTime0: 40, TotalTime1: 30, Children: []*results.Node{
			{MethodID: 0, Calls: 1, TotalTime0: 40, SelfTime0: 40, TotalTime1: 30, SelfTime1: 30},
		}},
	}}
	return c
}

func cpuSnapshot(t *testing.T) *LoadedSnapshot {
	t.Helper()
	s := settings.CPUPreset()
	s.JVMArgs = "-Xmx1g -Dpath=${HOME}"
	ls, err := New(cpuResults(), s, "", "demo")
	require.NoError(t, err)
	return ls
}

func encoded(t *testing.T, ls *LoadedSnapshot) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, ls))
	return buf.Bytes()
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	ls := cpuSnapshot(t)
	ls.SetUserComments("slow startup\nsecond line é")

	got, err := Decode(bytes.NewReader(encoded(t, ls)))
	require.NoError(t, err)

	assert.Equal(t, TypeCPU, got.Type())
	assert.Equal(t, "slow startup\nsecond line é", got.UserComments())
	assert.Equal(t, "CPU", got.Settings().Name)
	assert.Equal(t, settings.ProfileCPUSampling, got.Settings().Type)
	assert.Equal(t, "-Xmx1g -Dpath=${HOME}", got.Settings().JVMArgs)
	assert.False(t, got.Saved())

	res := got.Results().(*results.CPUResults)
	want := cpuResults()
	assert.Equal(t, want.Methods, res.Methods)
	assert.Equal(t, want.Threads, res.Threads)
	assert.Equal(t, want.TimeTaken(), res.TimeTaken())
}

func TestRoundTripPayloadTypes(t *testing.T) {
	begin, taken := time.UnixMilli(10), time.UnixMilli(20)
	tests := []struct {
		name string
		res  results.Snapshot
		want Type
	}{
		{"code region", results.NewCodeRegionResults(begin, taken, 2, []int64{3, 4}), TypeCodeFragment},
		{"allocations", results.NewAllocResults(begin, taken, []results.ClassAllocation{{Name: "byte[]", Bytes: 64, Objects: 2}}), TypeMemoryAllocations},
		{"liveness", results.NewLivenessResults(begin, taken, 1, []results.ClassLiveness{{Name: "byte[]", LiveBytes: 64, LiveObjects: 2}}), TypeMemoryLiveness},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ls, err := New(tt.res, settings.PresetFor(settings.ProfileMemoryAllocations), "", "")
			require.NoError(t, err)

			got, err := Decode(bytes.NewReader(encoded(t, ls)))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Type())
			assert.Equal(t, tt.res, got.Results())
		})
	}
}

func TestEncodedLayout(t *testing.T) {
	data := encoded(t, cpuSnapshot(t))

	assert.Equal(t, Magic, string(data[:10]))
	assert.Equal(t, []byte{1, 1}, data[10:12])
	assert.Equal(t, uint32(TypeCPU), binary.BigEndian.Uint32(data[12:16]))

	compLen := int(binary.BigEndian.Uint32(data[16:20]))
	settingsAt := 24 + compLen
	settingsLen := int(binary.BigEndian.Uint32(data[settingsAt : settingsAt+4]))
	assert.Equal(t, len(data), settingsAt+4+settingsLen)

	block := string(data[settingsAt+4:])
	assert.Contains(t, block, "profiler.settings.settings.name = CPU")
	assert.Equal(t, byte('#'), block[0])
}

func TestDecodeInvalidFile(t *testing.T) {
	for _, input := range [][]byte{nil, []byte("nBpRo"), []byte("PK\x03\x04 not a snapshot at all")} {
		_, err := Decode(bytes.NewReader(input))
		assert.ErrorIs(t, err, ErrInvalidFile)
		assert.NotErrorIs(t, err, ErrCorrupted)
	}
}

func TestDecodeUnsupportedVersion(t *testing.T) {
	data := encoded(t, cpuSnapshot(t))
	data[10] = 2

	_, err := Decode(bytes.NewReader(data))
	assert.ErrorIs(t, err, ErrCorrupted)
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
	assert.Contains(t, err.Error(), "snapshot file is corrupted: ")
}

func TestDecodeOlderMinorVersion(t *testing.T) {
	data := encoded(t, cpuSnapshot(t))
	data[11] = 0

	_, err := Decode(bytes.NewReader(data))
	assert.NoError(t, err)
}

func TestDecodeBadType(t *testing.T) {
	tests := []struct {
		tag  int32
		want error
	}{
		{-1, ErrWrongType},
		{99, ErrUnrecognizedType},
		{int32(TypeMemory), ErrUnrecognizedType},
	}
	for _, tt := range tests {
		data := encoded(t, cpuSnapshot(t))
		binary.BigEndian.PutUint32(data[12:16], uint32(tt.tag))

		_, err := Decode(bytes.NewReader(data))
		assert.ErrorIs(t, err, ErrCorrupted)
		assert.ErrorIs(t, err, tt.want, "tag %d", tt.tag)
	}
}

func TestDecodeLengthMismatch(t *testing.T) {
	for _, delta := range []int32{-1, 1} {
		data := encoded(t, cpuSnapshot(t))
		n := int32(binary.BigEndian.Uint32(data[20:24]))
		binary.BigEndian.PutUint32(data[20:24], uint32(n+delta))

		_, err := Decode(bytes.NewReader(data))
		assert.ErrorIs(t, err, ErrCorrupted)
		assert.ErrorIs(t, err, ErrDataCorrupted, "delta %d", delta)
	}
}

func TestDecodeNegativeLength(t *testing.T) {
	data := encoded(t, cpuSnapshot(t))
	binary.BigEndian.PutUint32(data[16:20], 0xFFFFFFF0)

	_, err := Decode(bytes.NewReader(data))
	assert.ErrorIs(t, err, ErrCorrupted)
}

func TestDecodeTruncated(t *testing.T) {
	data := encoded(t, cpuSnapshot(t))

	for cut := len(Magic); cut < len(data); cut++ {
		_, err := Decode(bytes.NewReader(data[:cut]))
		require.ErrorIs(t, err, ErrCorrupted, "cut at %d of %d", cut, len(data))
	}
}

func TestDecodeTruncatedSections(t *testing.T) {
	data := encoded(t, cpuSnapshot(t))
	compLen := int(binary.BigEndian.Uint32(data[16:20]))

	_, err := Decode(bytes.NewReader(data[:24+compLen/2]))
	assert.ErrorIs(t, err, ErrCannotReadData)

	_, err = Decode(bytes.NewReader(data[:len(data)-1]))
	assert.ErrorIs(t, err, ErrCannotReadSettings)
}

func TestMemoryBudget(t *testing.T) {
	data := encoded(t, cpuSnapshot(t))
	small := &Codec{MaxSection: 16}

	_, err := small.Decode(bytes.NewReader(data))
	assert.ErrorIs(t, err, ErrOutOfMemory)
	assert.NotErrorIs(t, err, ErrCorrupted)

	var buf bytes.Buffer
	err = small.Encode(&buf, cpuSnapshot(t))
	assert.ErrorIs(t, err, ErrOutOfMemory)
	assert.Zero(t, buf.Len())
}

func TestNewRejectsNil(t *testing.T) {
	_, err := New(nil, settings.CPUPreset(), "", "")
	assert.Error(t, err)

	_, err = New(cpuResults(), nil, "", "")
	assert.Error(t, err)
}

func TestLoadedSnapshotNames(t *testing.T) {
	ls := cpuSnapshot(t)
	assert.Equal(t, "snapshot-5000.nps", ls.DefaultName())
	assert.Equal(t, "snapshot-5000", ls.DisplayName())
	assert.Equal(t, "demo", ls.Project())
	assert.False(t, ls.Saved())

	ls.SetFile("/tmp/run/startup.nps")
	assert.True(t, ls.Saved())
	assert.Equal(t, "startup", ls.DisplayName())
	assert.Contains(t, ls.String(), "CPU snapshot startup")

	ls.SetSaved(false)
	assert.False(t, ls.Saved())
}

func TestSaveAndLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run", "cpu.nps")

	ls := cpuSnapshot(t)
	require.NoError(t, SaveFile(ls, path))
	assert.Equal(t, path, ls.File())
	assert.True(t, ls.Saved())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary file left behind")

	got, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, got.File())
	assert.True(t, got.Saved())
	assert.Equal(t, TypeCPU, got.Type())
}

func TestSaveFailureLeavesNoFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.nps")
	small := &Codec{MaxSection: 8}

	err := small.SaveFile(cpuSnapshot(t), path)
	require.ErrorIs(t, err, ErrOutOfMemory)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestLoadFileWrapsName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.nps")
	require.NoError(t, os.WriteFile(path, []byte("definitely not a snapshot"), 0o644))

	_, err := LoadFile(path)
	assert.ErrorIs(t, err, ErrInvalidFile)
	assert.Contains(t, err.Error(), "junk.nps")
}

func TestReadHeaderAndSettings(t *testing.T) {
	ls := cpuSnapshot(t)
	ls.SetUserComments("note")
	data := encoded(t, ls)

	h, err := defaultCodec.ReadHeader(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, TypeCPU, h.Type)
	assert.Equal(t, MajorVersion, h.Major)
	assert.False(t, h.Stream)
	assert.Positive(t, h.UncompressedLen)

	s, err := defaultCodec.ReadSettings(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, "CPU", s.Name)
	assert.Equal(t, "-Xmx1g -Dpath=${HOME}", s.JVMArgs)
}

func sampleStream(t *testing.T) []byte {
	t.Helper()
	run := samples.StackFrame{ClassName: "com.acme.App", MethodName: "run", FileName: "App.java", Line: 3}

	var buf bytes.Buffer
	w, err := samples.NewWriter(&buf)
	require.NoError(t, err)
	for i := range 3 {
		threads := []samples.ThreadInfo{{ID: 1, Name: "main", State: samples.StateRunnable, Stack: []samples.StackFrame{run}}}
		require.NoError(t, w.WriteSample(int64(i)*1_000_000, threads))
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestDecodeSampleStream(t *testing.T) {
	ls, err := Decode(bytes.NewReader(sampleStream(t)))
	require.NoError(t, err)

	assert.Equal(t, TypeCPU, ls.Type())
	assert.Equal(t, "CPU", ls.Settings().Name)
	assert.True(t, ls.Settings().IsPreset)

	res := ls.Results().(*results.CPUResults)
	require.Len(t, res.Threads, 1)
	assert.Equal(t, int64(2_000_000), res.Threads[0].Root.TotalTime0)

	h, err := defaultCodec.ReadHeader(bytes.NewReader(sampleStream(t)))
	require.NoError(t, err)
	assert.True(t, h.Stream)
	assert.Equal(t, samples.StreamVersion, h.StreamVersion)
}

func TestSampleStreamKeepsRecordingTime(t *testing.T) {
	before := time.Now().Truncate(time.Second)
	data := sampleStream(t)
	after := time.Now()

	ls, err := Decode(bytes.NewReader(data))
	require.NoError(t, err)

	res := ls.Results()
	assert.False(t, res.BeginTime().Before(before))
	assert.False(t, res.BeginTime().After(after))
	assert.Equal(t, res.BeginTime().Add(2*time.Millisecond), res.TimeTaken())
	assert.Equal(t, fmt.Sprintf("snapshot-%d", res.TimeTaken().UnixMilli()), ls.DisplayName())
}

func TestSampleStreamWithoutOriginEndsNow(t *testing.T) {
	data := sampleStream(t)
	// gzip MTIME follows the 5 byte stream header and 4 bytes of gzip header
	copy(data[9:13], []byte{0, 0, 0, 0})

	before := time.Now().Truncate(time.Millisecond)
	ls, err := Decode(bytes.NewReader(data))
	require.NoError(t, err)

	res := ls.Results()
	assert.False(t, res.TimeTaken().Before(before))
	assert.Equal(t, 2*time.Millisecond, res.Duration())
}

func TestDecodeEmptySampleStream(t *testing.T) {
	var buf bytes.Buffer
	w, err := samples.NewWriter(&buf)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = Decode(&buf)
	assert.ErrorIs(t, err, ErrCorrupted)
	assert.ErrorIs(t, err, samples.ErrNoData)
}

func TestTypeString(t *testing.T) {
	assert.Equal(t, "Memory Liveness", TypeMemoryLiveness.String())
	assert.Equal(t, "Type(77)", Type(77).String())
	assert.True(t, TypeMemoryAllocations.IsMemory())
	assert.False(t, TypeCPU.IsMemory())
}

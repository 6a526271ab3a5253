package settings

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	s := CPUPreset()
	s.JVMArgs = "-Xmx2g -Dfoo=${bar}"
	s.WorkingDir = "/tmp/work dir"
	s.JavaPlatform = "JDK 21"
	s.RootMethods = []SourceCodeSelection{
		{ClassName: "com.acme.Main", MethodName: "main", MethodSignature: "([Ljava/lang/String;)V"},
		{ClassName: "com.acme.Worker"},
	}
	s.MarkerMethods = []SourceCodeSelection{{ClassName: "com.acme.Servlet", MethodName: "service"}}
	s.FragmentSelection = &SourceCodeSelection{ClassName: "com.acme.Main", StartLine: 10, EndLine: 20, ViaLines: true}
	s.InstrumentationFilter = SimpleFilter{Name: "acme", Type: FilterInclusive, Value: "com.acme."}

	data, err := s.Encode()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "#\n#"))

	got, err := Decode(data)
	require.NoError(t, err)

	assert.Equal(t, s.Name, got.Name)
	assert.True(t, got.IsPreset)
	assert.Equal(t, ProfileCPUSampling, got.Type)
	assert.Equal(t, s.JVMArgs, got.JVMArgs)
	assert.Equal(t, s.WorkingDir, got.WorkingDir)
	assert.Equal(t, "JDK 21", got.JavaPlatform)
	assert.Equal(t, CPUSampled, got.CPUProfilingType)
	assert.Equal(t, s.RootMethods, got.RootMethods)
	require.Len(t, got.MarkerMethods, 1)
	assert.True(t, got.MarkerMethods[0].Marker)
	assert.Equal(t, "service", got.MarkerMethods[0].MethodName)
	require.NotNil(t, got.FragmentSelection)
	assert.Equal(t, *s.FragmentSelection, *got.FragmentSelection)
	assert.Equal(t, s.InstrumentationFilter, got.InstrumentationFilter)
	assert.Equal(t, s.UseProfilingPoints, got.UseProfilingPoints)
}

func TestLoadDefaults(t *testing.T) {
	s, err := Decode(nil)
	require.NoError(t, err)

	assert.Equal(t, UnknownSettingsName, s.Name)
	assert.Equal(t, ProfileCPUEntire, s.Type)
	assert.True(t, s.ThreadsSamplingEnabled)
	assert.Equal(t, 32, s.ProfiledThreadsLimit)
	assert.Equal(t, 10, s.SamplingInterval)
	assert.Equal(t, 1000, s.CodeRegionCPUResBufSize)
	assert.Equal(t, -5, s.AllocStackTraceLimit)
	assert.False(t, s.UseProfilingPoints)
	assert.Nil(t, s.FragmentSelection)
	assert.Equal(t, FilterNone, s.InstrumentationFilter.Type)
}

func TestLoadMalformedNumberFallsBack(t *testing.T) {
	props := NewProperties()
	props.Set(PropProfiledThreadsLimit, "many")
	props.Set(PropProfilingType, "64")

	s := New("")
	s.Load(props)
	assert.Equal(t, 32, s.ProfiledThreadsLimit)
	assert.Equal(t, ProfileCPUSampling, s.Type)
}

func TestDecodeEscapedValues(t *testing.T) {
	data := []byte("#comment\n" + PropSettingsName + "=Caf\\u00e9 \\u4e2d\n")
	s, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "Café 中", s.Name)
}

func TestNonASCIIRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"latin1", "-Dname=café"},
		{"cjk", "-Duser=中文"},
		{"supplementary", "-Dx=😀"},
		{"escaped backslash", `C:\\u00e9\work`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := CPUPreset()
			s.JVMArgs = tt.value
			s.Name = tt.value

			data, err := s.Encode()
			require.NoError(t, err)
			for _, b := range data {
				require.Less(t, b, byte(0x80), "encoded settings must be ASCII")
			}

			got, err := Decode(data)
			require.NoError(t, err)
			assert.Equal(t, tt.value, got.JVMArgs)
			assert.Equal(t, tt.value, got.Name)
		})
	}
}

func TestEncodeEscapesSurrogatePairs(t *testing.T) {
	s := CPUPreset()
	s.JVMArgs = "-Dx=😀"
	data, err := s.Encode()
	require.NoError(t, err)
	assert.Contains(t, string(data), `-Dx=\ud83d\ude00`)
}

func TestDecodeJavaSurrogateEscape(t *testing.T) {
	data := []byte(PropJVMArgs + "=-Dx=\\ud83d\\ude00 \\u00e9\n")
	s, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "-Dx=😀 é", s.JVMArgs)
}

func TestDecodeLatin1Bytes(t *testing.T) {
	data := append([]byte(PropSettingsName+"=caf"), 0xE9, '\n')
	s, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "café", s.Name)
}

func TestSelectionParse(t *testing.T) {
	tests := []struct {
		in   string
		want SourceCodeSelection
		ok   bool
	}{
		{"", SourceCodeSelection{}, false},
		{"a.B", SourceCodeSelection{ClassName: "a.B"}, true},
		{"a.B,run", SourceCodeSelection{ClassName: "a.B", MethodName: "run"}, true},
		{"a.B,run,()V", SourceCodeSelection{ClassName: "a.B", MethodName: "run", MethodSignature: "()V"}, true},
		{"[lines]a.B,3,9", SourceCodeSelection{ClassName: "a.B", StartLine: 3, EndLine: 9, ViaLines: true}, true},
		{"[lines]a.B,x,9", SourceCodeSelection{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseSelection(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
			if ok {
				assert.Equal(t, tt.in, got.String())
			}
		})
	}
}

func TestSimpleFilter(t *testing.T) {
	inc := SimpleFilter{Type: FilterInclusive, Value: "com.acme., org.example.Main"}
	assert.True(t, inc.Passes("com.acme.Foo"))
	assert.True(t, inc.Passes("org.example.Main"))
	assert.False(t, inc.Passes("org.example.MainHelper"))
	assert.False(t, inc.Passes("java.lang.Thread"))

	exc := SimpleFilter{Type: FilterExclusive, Value: "java.* sun.*"}
	assert.False(t, exc.Passes("java.lang.Object"))
	assert.True(t, exc.Passes("com.acme.Foo"))

	assert.True(t, NoFilter.Passes("anything"))
}

func TestPresetFor(t *testing.T) {
	assert.Equal(t, ProfileCPUSampling, PresetFor(ProfileCPUSampling).Type)
	assert.Equal(t, ProfileMemoryLiveness, PresetFor(ProfileMemoryLiveness).Type)
	assert.Equal(t, ProfileCPUPart, PresetFor(ProfileCPUPart).Type)
	assert.True(t, PresetFor(ProfileMonitor).ThreadsMonitoringEnabled)
	assert.True(t, ProfileCPUStopwatch.IsCPU())
	assert.True(t, ProfileMemorySampling.IsMemory())
}

func TestCopyIsDeep(t *testing.T) {
	s := New("orig")
	s.RootMethods = []SourceCodeSelection{{ClassName: "a.B"}}
	c := s.Copy()
	c.RootMethods[0].ClassName = "x.Y"
	assert.Equal(t, "a.B", s.RootMethods[0].ClassName)
}

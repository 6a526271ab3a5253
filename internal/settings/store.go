package settings

import (
	"bytes"
	"fmt"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/magiconair/properties"
)

// Property keys as they appear in snapshot files. The misspellings are part
// of the persisted format.
const (
	PropOverrideGlobalSettings   = "profiler.settings.override"
	PropWorkingDir               = "profiler.settings.override.working.dir"
	PropJVMArgs                  = "profiler.settings.override.jvm.args"
	PropJavaPlatform             = "profiler.settings.override.java.platform"
	PropIsPreset                 = "profiler.settigns.ispreset"
	PropSettingsName             = "profiler.settings.settings.name"
	PropProfilingType            = "profiler.settings.profiling.type"
	PropThreadsMonitoringEnabled = "profiler.settings.threads.monitoring.enabled"
	PropThreadsSamplingEnabled   = "profiler.settings.threads.sampling.enabled"
	PropCPUProfilingType         = "profiler.settings.cpu.profiling.type"
	PropExcludeWaitTime          = "profiler.settings.cpu.exclude.wait.time"
	PropInstrScheme              = "profiler.settings.instr.scheme"
	PropThreadCPUTimerOn         = "profiler.settings.thread.cpu.timer.on"
	PropInstrumentGetterSetters  = "profiler.settings.istrument.getter.setter.methods"
	PropInstrumentEmptyMethods   = "profiler.settings.instrument.empty.methods"
	PropInstrumentMethodInvoke   = "profiler.settings.instrument.method.invoke"
	PropInstrumentSpawnedThreads = "profiler.settings.instrument.spawned.threads"
	PropProfiledThreadsLimit     = "profiler.settings.n.profiled.threads.limit"
	PropSortByThreadCPUTime      = "profiler.settings.sort.results.by.thread.cpu.time"
	PropSamplingInterval         = "profiler.settings.sampling.interval"
	PropRootMethodsSize          = "profiler.settings.instrumentation.root.methods.size"
	PropRootMethodsPrefix        = "profiler.settings.istrumentation.root.methods-"
	PropMarkerMethodsSize        = "profiler.settings.instrumentation.marker.methods.size"
	PropMarkerMethodsPrefix      = "profiler.settings.istrumentation.marker.methods-"
	PropFragmentSelection        = "profiler.settings.fragment.selection"
	PropCodeRegionCPUResBufSize  = "profiler.settings.code.region.cpu.res.buf.size"
	PropRunGCOnGetResults        = "profiler.settings.run.gc.on.get.results.in.memory.profiling"
	PropAllocTrackEvery          = "profiler.settings.obj.alloc.stack.sampling.interval"
	PropAllocStackTraceLimit     = "profiler.settings.obj.alloc.stack.sampling.depth"
	PropSelectedInstrFilter      = "profiler.settings.instrumentation.filter.selected"
	PropProfileUnderlying        = "profiler.settings.profile.underlying.framework"
	PropProfilingPointsEnabled   = "profiler.settings.profilingpoints.enabled"
	PropQuickFilter              = "profiler.settings.cpu.quick.filter"
	PropSamplingFrequency        = "profiler.settings.cpu.sampling.frequency"
)

// NewProperties returns an empty property set with ${} expansion disabled,
// since stored values such as JVM arguments are taken literally.
func NewProperties() *properties.Properties {
	p := properties.NewProperties()
	p.DisableExpansion = true
	return p
}

// Store writes every setting into props
func (s *ProfilingSettings) Store(props *properties.Properties) {
	set := func(k, v string) {
		props.Set(k, v)
	}
	setBool := func(k string, v bool) { set(k, strconv.FormatBool(v)) }
	setInt := func(k string, v int) { set(k, strconv.Itoa(v)) }

	setBool(PropIsPreset, s.IsPreset)
	set(PropSettingsName, s.Name)
	setInt(PropProfilingType, int(s.Type))
	setBool(PropOverrideGlobalSettings, s.OverrideGlobalSettings)
	set(PropWorkingDir, s.WorkingDir)
	set(PropJVMArgs, s.JVMArgs)
	if s.JavaPlatform != "" {
		set(PropJavaPlatform, s.JavaPlatform)
	}

	setBool(PropThreadsMonitoringEnabled, s.ThreadsMonitoringEnabled)
	setBool(PropThreadsSamplingEnabled, s.ThreadsSamplingEnabled)

	setBool(PropExcludeWaitTime, s.ExcludeWaitTime)
	setInt(PropCPUProfilingType, s.CPUProfilingType)
	setInt(PropInstrScheme, s.InstrScheme)
	setBool(PropThreadCPUTimerOn, s.ThreadCPUTimerOn)
	setBool(PropInstrumentGetterSetters, s.InstrumentGetterSetters)
	setBool(PropInstrumentEmptyMethods, s.InstrumentEmptyMethods)
	setBool(PropInstrumentMethodInvoke, s.InstrumentMethodInvoke)
	setBool(PropInstrumentSpawnedThreads, s.InstrumentSpawnedThreads)
	setInt(PropProfiledThreadsLimit, s.ProfiledThreadsLimit)
	setBool(PropSortByThreadCPUTime, s.SortResultsByThreadCPUTime)
	setInt(PropSamplingFrequency, s.SamplingFrequency)

	storeFilter(props, PropSelectedInstrFilter, s.InstrumentationFilter)
	storeFilter(props, PropQuickFilter, s.QuickFilter)

	setBool(PropProfileUnderlying, s.ProfileUnderlyingFramework)
	setInt(PropSamplingInterval, s.SamplingInterval)

	setInt(PropRootMethodsSize, len(s.RootMethods))
	for i, m := range s.RootMethods {
		set(PropRootMethodsPrefix+strconv.Itoa(i), m.String())
	}
	setInt(PropMarkerMethodsSize, len(s.MarkerMethods))
	for i, m := range s.MarkerMethods {
		set(PropMarkerMethodsPrefix+strconv.Itoa(i), m.String())
	}

	if s.FragmentSelection != nil {
		set(PropFragmentSelection, s.FragmentSelection.String())
	}
	setInt(PropCodeRegionCPUResBufSize, s.CodeRegionCPUResBufSize)

	setBool(PropRunGCOnGetResults, s.RunGCOnGetResults)
	setInt(PropAllocTrackEvery, s.AllocTrackEvery)
	setInt(PropAllocStackTraceLimit, s.AllocStackTraceLimit)

	setBool(PropProfilingPointsEnabled, s.UseProfilingPoints)
}

// Load replaces every field with the value found in props. Missing keys and
// unparsable values fall back to the engine's load defaults.
func (s *ProfilingSettings) Load(props *properties.Properties) {
	str := func(k, def string) string { return props.GetString(k, def) }
	boolean := func(k string, def bool) bool {
		v, ok := props.Get(k)
		if !ok {
			return def
		}
		// Boolean.valueOf semantics: anything but "true" is false
		b, err := strconv.ParseBool(v)
		return err == nil && b
	}
	integer := func(k string, def int) int {
		v, ok := props.Get(k)
		if !ok {
			return def
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return def
		}
		return n
	}

	s.IsPreset = boolean(PropIsPreset, false)
	s.Name = str(PropSettingsName, UnknownSettingsName)
	s.Type = ProfilingType(integer(PropProfilingType, int(ProfileCPUEntire)))
	s.OverrideGlobalSettings = boolean(PropOverrideGlobalSettings, false)
	s.WorkingDir = str(PropWorkingDir, "")
	s.JVMArgs = str(PropJVMArgs, "")
	s.JavaPlatform = str(PropJavaPlatform, "")

	s.ThreadsMonitoringEnabled = boolean(PropThreadsMonitoringEnabled, false)
	s.ThreadsSamplingEnabled = boolean(PropThreadsSamplingEnabled, true)

	s.ExcludeWaitTime = boolean(PropExcludeWaitTime, false)
	s.CPUProfilingType = integer(PropCPUProfilingType, CPUInstrFull)
	s.InstrScheme = integer(PropInstrScheme, InstrSchemeLazy)
	s.ThreadCPUTimerOn = boolean(PropThreadCPUTimerOn, false)
	s.InstrumentGetterSetters = boolean(PropInstrumentGetterSetters, false)
	s.InstrumentEmptyMethods = boolean(PropInstrumentEmptyMethods, false)
	s.InstrumentMethodInvoke = boolean(PropInstrumentMethodInvoke, true)
	s.InstrumentSpawnedThreads = boolean(PropInstrumentSpawnedThreads, false)
	s.ProfiledThreadsLimit = integer(PropProfiledThreadsLimit, 32)
	s.SortResultsByThreadCPUTime = boolean(PropSortByThreadCPUTime, false)
	s.ProfileUnderlyingFramework = boolean(PropProfileUnderlying, false)
	s.SamplingFrequency = integer(PropSamplingFrequency, 10)

	s.InstrumentationFilter = loadFilter(props, PropSelectedInstrFilter)
	s.QuickFilter = loadFilter(props, PropQuickFilter)

	s.SamplingInterval = integer(PropSamplingInterval, 10)

	s.RootMethods = nil
	for i := range integer(PropRootMethodsSize, 0) {
		if sel, ok := ParseSelection(str(PropRootMethodsPrefix+strconv.Itoa(i), "")); ok {
			s.RootMethods = append(s.RootMethods, sel)
		}
	}
	s.MarkerMethods = nil
	for i := range integer(PropMarkerMethodsSize, 0) {
		if sel, ok := ParseSelection(str(PropMarkerMethodsPrefix+strconv.Itoa(i), "")); ok {
			sel.Marker = true
			s.MarkerMethods = append(s.MarkerMethods, sel)
		}
	}

	s.FragmentSelection = nil
	if sel, ok := ParseSelection(str(PropFragmentSelection, "")); ok {
		s.FragmentSelection = &sel
	}
	s.CodeRegionCPUResBufSize = integer(PropCodeRegionCPUResBufSize, 1000)

	s.RunGCOnGetResults = boolean(PropRunGCOnGetResults, true)
	s.AllocTrackEvery = integer(PropAllocTrackEvery, 10)
	s.AllocStackTraceLimit = integer(PropAllocStackTraceLimit, -5)

	s.UseProfilingPoints = boolean(PropProfilingPointsEnabled, false)
}

func storeFilter(props *properties.Properties, key string, f SimpleFilter) {
	props.Set(key+".name", f.Name)
	props.Set(key+".type", f.Type.String())
	props.Set(key+".value", f.Value)
}

func loadFilter(props *properties.Properties, key string) SimpleFilter {
	return SimpleFilter{
		Name:  props.GetString(key+".name", NoFilter.Name),
		Type:  ParseFilterType(props.GetString(key+".type", "")),
		Value: props.GetString(key+".value", ""),
	}
}

// EncodeProperties renders props as .properties text, keys sorted, with the
// comment and timestamp header java.util.Properties writes. The output is
// ASCII: other runes are written as \uXXXX escapes.
func EncodeProperties(props *properties.Properties) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "#\n#%s\n", time.Now().Format("Mon Jan 02 15:04:05 MST 2006"))

	props.Sort()
	if _, err := props.Write(&buf, properties.UTF8); err != nil {
		return nil, fmt.Errorf("failed to write settings: %w", err)
	}
	return escapeNonASCII(buf.Bytes()), nil
}

// DecodeProperties parses .properties text. Blank input yields an empty set.
// Raw bytes that are not valid UTF-8 are read as ISO-8859-1, and surrogate
// pair escapes decode to a single rune.
func DecodeProperties(data []byte) (*properties.Properties, error) {
	if !utf8.Valid(data) {
		data = latin1ToUTF8(data)
	}
	loader := &properties.Loader{Encoding: properties.UTF8, DisableExpansion: true}
	props, err := loader.LoadBytes(joinSurrogates(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}
	props.DisableExpansion = true
	return props, nil
}

// Encode stores s into a fresh property set and renders it
func (s *ProfilingSettings) Encode() ([]byte, error) {
	props := NewProperties()
	s.Store(props)
	return EncodeProperties(props)
}

// Decode parses a settings block produced by Encode
func Decode(data []byte) (*ProfilingSettings, error) {
	props, err := DecodeProperties(data)
	if err != nil {
		return nil, err
	}
	s := New("")
	s.Load(props)
	return s, nil
}

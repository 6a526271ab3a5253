package settings

import (
	"fmt"
	"strings"
)

// ProfilingType selects what the profiler collects. The numeric values are
// persisted in snapshot files.
type ProfilingType int

const (
	ProfileMonitor           ProfilingType = 1
	ProfileMemoryAllocations ProfilingType = 2
	ProfileMemoryLiveness    ProfilingType = 4
	ProfileCPUEntire         ProfilingType = 8
	ProfileCPUPart           ProfilingType = 16
	ProfileCPUStopwatch      ProfilingType = 32
	ProfileCPUSampling       ProfilingType = 64
	ProfileMemorySampling    ProfilingType = 128
)

func (t ProfilingType) String() string {
	switch t {
	case ProfileMonitor:
		return "Monitor"
	case ProfileMemoryAllocations:
		return "Memory (allocations)"
	case ProfileMemoryLiveness:
		return "Memory (liveness)"
	case ProfileCPUEntire:
		return "CPU (entire application)"
	case ProfileCPUPart:
		return "CPU (part of application)"
	case ProfileCPUStopwatch:
		return "CPU (code fragment)"
	case ProfileCPUSampling:
		return "CPU (sampled)"
	case ProfileMemorySampling:
		return "Memory (sampled)"
	default:
		return fmt.Sprintf("Unknown (%d)", int(t))
	}
}

func (t ProfilingType) IsCPU() bool {
	return t == ProfileCPUEntire || t == ProfileCPUPart || t == ProfileCPUStopwatch || t == ProfileCPUSampling
}

func (t ProfilingType) IsMemory() bool {
	return t == ProfileMemoryAllocations || t == ProfileMemoryLiveness || t == ProfileMemorySampling
}

// CPU profiling modes
const (
	CPUInstrFull    = 0
	CPUInstrSampled = 1
	CPUSampled      = 2
)

// Instrumentation schemes
const (
	InstrSchemeLazy  = 1
	InstrSchemeEager = 2
	InstrSchemeTotal = 3
)

const (
	DefaultSettingsName = "Default configuration"
	UnknownSettingsName = "Unknown configuration"
)

// ProfilingSettings is one named profiling configuration. Snapshots carry
// the settings that produced them.
type ProfilingSettings struct {
	Name     string
	IsPreset bool
	Type     ProfilingType

	OverrideGlobalSettings bool
	WorkingDir             string
	JVMArgs                string
	JavaPlatform           string // empty means the project default

	ThreadsMonitoringEnabled bool
	ThreadsSamplingEnabled   bool

	// CPU
	CPUProfilingType           int
	ExcludeWaitTime            bool
	InstrScheme                int
	ThreadCPUTimerOn           bool
	InstrumentGetterSetters    bool
	InstrumentEmptyMethods     bool
	InstrumentMethodInvoke     bool
	InstrumentSpawnedThreads   bool
	ProfiledThreadsLimit       int
	SortResultsByThreadCPUTime bool
	ProfileUnderlyingFramework bool
	SamplingInterval           int // ms, hybrid instrumentation
	SamplingFrequency          int // ms, pure sampling
	RootMethods                []SourceCodeSelection
	MarkerMethods              []SourceCodeSelection
	InstrumentationFilter      SimpleFilter
	QuickFilter                SimpleFilter

	// Code fragment
	FragmentSelection       *SourceCodeSelection
	CodeRegionCPUResBufSize int

	// Memory
	RunGCOnGetResults    bool
	AllocTrackEvery      int
	AllocStackTraceLimit int

	UseProfilingPoints bool
}

// New returns settings populated with the engine defaults.
func New(name string) *ProfilingSettings {
	if name == "" {
		name = DefaultSettingsName
	}
	return &ProfilingSettings{
		Name:                    name,
		Type:                    ProfileCPUSampling,
		ThreadsSamplingEnabled:  true,
		CPUProfilingType:        CPUInstrFull,
		ExcludeWaitTime:         true,
		InstrScheme:             InstrSchemeLazy,
		InstrumentMethodInvoke:  true,
		ProfiledThreadsLimit:    32,
		SamplingInterval:        10,
		SamplingFrequency:       10,
		CodeRegionCPUResBufSize: 1000,
		RunGCOnGetResults:       true,
		AllocTrackEvery:         10,
		UseProfilingPoints:      true,
	}
}

// Copy returns a deep copy
func (s *ProfilingSettings) Copy() *ProfilingSettings {
	c := *s
	c.RootMethods = append([]SourceCodeSelection(nil), s.RootMethods...)
	c.MarkerMethods = append([]SourceCodeSelection(nil), s.MarkerMethods...)
	if s.FragmentSelection != nil {
		fs := *s.FragmentSelection
		c.FragmentSelection = &fs
	}
	return &c
}

func (s *ProfilingSettings) String() string {
	return s.Name
}

// Debug lists the effective values, one per line.
func (s *ProfilingSettings) Debug() string {
	var sb strings.Builder
	line := func(k string, v any) {
		fmt.Fprintf(&sb, "%s: %v\n", k, v)
	}

	line("Name", s.Name)
	line("Preset", s.IsPreset)
	line("Profiling type", s.Type)
	line("Override global settings", s.OverrideGlobalSettings)
	line("Working dir", s.WorkingDir)
	line("JVM args", s.JVMArgs)
	line("Java platform", s.JavaPlatform)
	line("Threads monitoring", s.ThreadsMonitoringEnabled)
	line("Threads sampling", s.ThreadsSamplingEnabled)
	line("CPU profiling type", s.CPUProfilingType)
	line("Exclude wait time", s.ExcludeWaitTime)
	line("Instrumentation scheme", s.InstrScheme)
	line("Thread CPU timer", s.ThreadCPUTimerOn)
	line("Profiled threads limit", s.ProfiledThreadsLimit)
	line("Sampling interval", s.SamplingInterval)
	line("Sampling frequency", s.SamplingFrequency)
	line("Root methods", len(s.RootMethods))
	line("Marker methods", len(s.MarkerMethods))
	line("Instrumentation filter", s.InstrumentationFilter)
	line("Code region buffer", s.CodeRegionCPUResBufSize)
	line("Alloc track every", s.AllocTrackEvery)
	line("Alloc stack trace limit", s.AllocStackTraceLimit)
	line("Profiling points", s.UseProfilingPoints)

	return sb.String()
}

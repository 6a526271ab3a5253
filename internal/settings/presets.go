package settings

// CPUPreset is the sampled CPU configuration. Snapshots rebuilt from raw
// stack samples carry it.
func CPUPreset() *ProfilingSettings {
	s := New("CPU")
	s.IsPreset = true
	s.Type = ProfileCPUSampling
	s.CPUProfilingType = CPUSampled
	s.ThreadsSamplingEnabled = true
	s.SamplingFrequency = 10
	return s
}

// CPUEntirePreset instruments the whole application from main()
func CPUEntirePreset() *ProfilingSettings {
	s := New("CPU (entire application)")
	s.IsPreset = true
	s.Type = ProfileCPUEntire
	s.CPUProfilingType = CPUInstrFull
	s.InstrScheme = InstrSchemeTotal
	return s
}

func MemoryPreset() *ProfilingSettings {
	s := New("Memory")
	s.IsPreset = true
	s.Type = ProfileMemoryAllocations
	s.AllocTrackEvery = 10
	s.AllocStackTraceLimit = 0
	return s
}

func LivenessPreset() *ProfilingSettings {
	s := New("Memory (liveness)")
	s.IsPreset = true
	s.Type = ProfileMemoryLiveness
	s.AllocTrackEvery = 10
	s.AllocStackTraceLimit = -5
	return s
}

func MonitorPreset() *ProfilingSettings {
	s := New("Monitor")
	s.IsPreset = true
	s.Type = ProfileMonitor
	s.ThreadsMonitoringEnabled = true
	return s
}

// PresetFor returns the preset matching a profiling type
func PresetFor(t ProfilingType) *ProfilingSettings {
	switch t {
	case ProfileCPUEntire, ProfileCPUPart, ProfileCPUStopwatch:
		p := CPUEntirePreset()
		p.Type = t
		return p
	case ProfileMemoryAllocations, ProfileMemorySampling:
		p := MemoryPreset()
		p.Type = t
		return p
	case ProfileMemoryLiveness:
		return LivenessPreset()
	case ProfileMonitor:
		return MonitorPreset()
	default:
		return CPUPreset()
	}
}

package utils

import (
	"fmt"
	"strconv"
	"strings"
)

// MemorySize is a size in bytes
type MemorySize int64

const (
	Byte MemorySize = 1
	KB   MemorySize = 1024 * Byte
	MB   MemorySize = 1024 * KB
	GB   MemorySize = 1024 * MB
	TB   MemorySize = 1024 * GB
)

// String renders the size with a binary unit suffix, e.g. 512B, 1.50K, 2G
func (m MemorySize) String() string {
	if m == 0 {
		return "0B"
	}
	if m < 0 {
		return "-" + (-m).String()
	}

	formatValue := func(val float64, unit string) string {
		if val == float64(int64(val)) {
			return fmt.Sprintf("%.0f%s", val, unit)
		}
		return fmt.Sprintf("%.2f%s", val, unit)
	}

	switch {
	case m >= TB:
		return formatValue(float64(m)/float64(TB), "T")
	case m >= GB:
		return formatValue(float64(m)/float64(GB), "G")
	case m >= MB:
		return formatValue(float64(m)/float64(MB), "M")
	case m >= KB:
		return formatValue(float64(m)/float64(KB), "K")
	default:
		return fmt.Sprintf("%dB", m)
	}
}

func (m MemorySize) Bytes() int64 {
	return int64(m)
}

func (m MemorySize) MB() float64 {
	return float64(m) / float64(MB)
}

// Ratio returns m / other, or 0 when other is 0
func (m MemorySize) Ratio(other MemorySize) float64 {
	if other == 0 {
		return 0
	}
	return float64(m) / float64(other)
}

// ParseMemorySize parses sizes like "64M", "2G", "1024K" or a plain byte count
func ParseMemorySize(s string) (MemorySize, error) {
	s = strings.TrimSpace(s)
	if len(s) == 0 {
		return 0, fmt.Errorf("empty memory size string")
	}

	multiplier := Byte
	valueStr := s[:len(s)-1]

	switch strings.ToUpper(s[len(s)-1:]) {
	case "T":
		multiplier = TB
	case "G":
		multiplier = GB
	case "M":
		multiplier = MB
	case "K":
		multiplier = KB
	case "B":
	default:
		valueStr = s
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("invalid memory size: %s", s)
	}

	return MemorySize(value * float64(multiplier)), nil
}

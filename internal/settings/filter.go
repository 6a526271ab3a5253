package settings

import (
	"strings"
)

// FilterType decides how a SimpleFilter's patterns are applied
type FilterType int

const (
	FilterNone FilterType = iota
	FilterInclusive
	FilterExclusive
)

func (t FilterType) String() string {
	switch t {
	case FilterInclusive:
		return "inclusive"
	case FilterExclusive:
		return "exclusive"
	default:
		return "none"
	}
}

func ParseFilterType(s string) FilterType {
	switch strings.ToLower(s) {
	case "inclusive":
		return FilterInclusive
	case "exclusive":
		return FilterExclusive
	default:
		return FilterNone
	}
}

// SimpleFilter matches class names against a list of patterns separated by
// commas or whitespace. A pattern ending in "*" matches by prefix, "." is
// treated as a package prefix, anything else must match exactly.
type SimpleFilter struct {
	Name  string
	Type  FilterType
	Value string
}

var NoFilter = SimpleFilter{Name: "No filter", Type: FilterNone}

func (f SimpleFilter) String() string {
	if f.Type == FilterNone || f.Value == "" {
		return f.Type.String()
	}
	return f.Type.String() + ": " + f.Value
}

func (f SimpleFilter) Patterns() []string {
	return strings.FieldsFunc(f.Value, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
}

// Passes reports whether className survives the filter
func (f SimpleFilter) Passes(className string) bool {
	patterns := f.Patterns()
	if f.Type == FilterNone || len(patterns) == 0 {
		return true
	}

	matched := false
	for _, p := range patterns {
		if matchClass(p, className) {
			matched = true
			break
		}
	}

	if f.Type == FilterInclusive {
		return matched
	}
	return !matched
}

func matchClass(pattern, className string) bool {
	switch {
	case strings.HasSuffix(pattern, "*"):
		return strings.HasPrefix(className, strings.TrimSuffix(pattern, "*"))
	case strings.HasSuffix(pattern, "."):
		return strings.HasPrefix(className, pattern)
	default:
		return className == pattern
	}
}

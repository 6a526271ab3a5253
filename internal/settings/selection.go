package settings

import (
	"fmt"
	"strconv"
	"strings"
)

const linesPrefix = "[lines]"

// SourceCodeSelection names a class, a method, or a line range used as an
// instrumentation root, marker or code fragment.
type SourceCodeSelection struct {
	ClassName       string
	MethodName      string
	MethodSignature string
	StartLine       int
	EndLine         int
	ViaLines        bool
	Marker          bool
}

// String renders the selection in its persisted form
func (s SourceCodeSelection) String() string {
	switch {
	case s.ViaLines:
		return fmt.Sprintf("%s%s,%d,%d", linesPrefix, s.ClassName, s.StartLine, s.EndLine)
	case s.MethodName == "":
		return s.ClassName
	case s.MethodSignature == "":
		return s.ClassName + "," + s.MethodName
	default:
		return s.ClassName + "," + s.MethodName + "," + s.MethodSignature
	}
}

// ParseSelection is the inverse of SourceCodeSelection.String. It returns
// false for empty or malformed input.
func ParseSelection(str string) (SourceCodeSelection, bool) {
	if str == "" {
		return SourceCodeSelection{}, false
	}

	if rest, ok := strings.CutPrefix(str, linesPrefix); ok {
		parts := strings.Split(rest, ",")
		if len(parts) != 3 {
			return SourceCodeSelection{}, false
		}
		start, err1 := strconv.Atoi(parts[1])
		end, err2 := strconv.Atoi(parts[2])
		if err1 != nil || err2 != nil {
			return SourceCodeSelection{}, false
		}
		return SourceCodeSelection{ClassName: parts[0], StartLine: start, EndLine: end, ViaLines: true}, true
	}

	parts := strings.SplitN(str, ",", 3)
	sel := SourceCodeSelection{ClassName: parts[0]}
	if len(parts) > 1 {
		sel.MethodName = parts[1]
	}
	if len(parts) > 2 {
		sel.MethodSignature = parts[2]
	}
	return sel, true
}

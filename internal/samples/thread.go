package samples

import (
	"fmt"
	"slices"
	"strings"
)

type ThreadState int

const (
	StateNew ThreadState = iota
	StateRunnable
	StateBlocked
	StateWaiting
	StateTimedWaiting
	StateTerminated
)

var stateNames = []string{"NEW", "RUNNABLE", "BLOCKED", "WAITING", "TIMED_WAITING", "TERMINATED"}

func (s ThreadState) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("ThreadState(%d)", int(s))
	}
	return stateNames[s]
}

// ParseThreadState accepts the java.lang.Thread.State names
func ParseThreadState(name string) (ThreadState, error) {
	i := slices.Index(stateNames, strings.ToUpper(strings.TrimSpace(name)))
	if i < 0 {
		return 0, fmt.Errorf("unknown thread state: %q", name)
	}
	return ThreadState(i), nil
}

type StackFrame struct {
	ClassName  string
	MethodName string
	FileName   string
	Line       int32
	Native     bool
}

func (f StackFrame) String() string {
	var loc string
	switch {
	case f.Native:
		loc = "Native Method"
	case f.FileName == "":
		loc = "Unknown Source"
	case f.Line > 0:
		loc = fmt.Sprintf("%s:%d", f.FileName, f.Line)
	default:
		loc = f.FileName
	}
	return fmt.Sprintf("%s.%s(%s)", f.ClassName, f.MethodName, loc)
}

func (f StackFrame) sameMethod(o StackFrame) bool {
	return f.ClassName == o.ClassName && f.MethodName == o.MethodName && f.Native == o.Native
}

// ThreadInfo is one thread in one sample. Stack is ordered top frame first.
type ThreadInfo struct {
	ID    int64
	Name  string
	State ThreadState
	Stack []StackFrame
}

func (t ThreadInfo) Equal(o ThreadInfo) bool {
	return t.ID == o.ID && t.Name == o.Name && t.State == o.State && slices.Equal(t.Stack, o.Stack)
}

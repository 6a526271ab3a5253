package threaddump

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/mabhi256/jprof/internal/samples"
)

const TimestampLayout = "2006-01-02 15:04:05"

var (
	// 2025-07-27 06:54:55
	timestampPattern = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2})$`)

	// "main" #1 [4321] prio=5 os_prio=0 cpu=96.31ms elapsed=12.10s tid=0x00007f nid=4321 waiting on condition  [0x00007f]
	// "Reference Handler" #9 daemon prio=10 os_prio=0 tid=0x00007f nid=0x1c03 waiting on condition [0x00007f]
	// "VM Thread" os_prio=0 cpu=4.12ms elapsed=12.09s tid=0x00007f nid=4327 runnable
	threadPattern = regexp.MustCompile(`^"(.*)"\s+(?:#(\d+)\s+)?`)

	//    java.lang.Thread.State: TIMED_WAITING (sleeping)
	statePattern = regexp.MustCompile(`^\s+java\.lang\.Thread\.State:\s+([A-Z_]+)`)

	//	at java.lang.Thread.sleep0(java.base@21.0.2/Native Method)
	//	at com.acme.App.main(App.java:10)
	//	at jdk.internal.misc.Unsafe.park(java.base/Unknown Source)
	framePattern = regexp.MustCompile(`^\s+at\s+(\S+)\.([^.(\s]+)\((.*)\)\s*$`)
)

type ParseError struct {
	Line    string
	LineNum int
	Err     error
}

func (e ParseError) Error() string {
	return fmt.Sprintf("parse error at line %d: %v", e.LineNum, e.Err)
}

func (e ParseError) Unwrap() error {
	return e.Err
}

// Dump is one thread dump. Threads keep the order they were printed in.
type Dump struct {
	Taken   time.Time
	Threads []samples.ThreadInfo
}

// Parse reads jcmd Thread.print or jstack output. VM-internal threads, which
// print no Java thread id, are skipped.
func Parse(r io.Reader) (*Dump, error) {
	dump := &Dump{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var current *samples.ThreadInfo
	flush := func() {
		if current != nil {
			dump.Threads = append(dump.Threads, *current)
			current = nil
		}
	}

	lineNum := 0
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		lineNum++

		if matches := threadPattern.FindStringSubmatch(line); matches != nil {
			flush()
			if matches[2] == "" {
				continue
			}
			id, err := strconv.ParseInt(matches[2], 10, 64)
			if err != nil {
				return nil, ParseError{Line: line, LineNum: lineNum, Err: fmt.Errorf("invalid thread id: %v", err)}
			}
			current = &samples.ThreadInfo{ID: id, Name: matches[1], State: samples.StateRunnable}
			continue
		}

		if current == nil {
			if dump.Taken.IsZero() {
				if matches := timestampPattern.FindStringSubmatch(line); matches != nil {
					if ts, err := time.ParseInLocation(TimestampLayout, matches[1], time.Local); err == nil {
						dump.Taken = ts
					}
				}
			}
			continue
		}

		if matches := statePattern.FindStringSubmatch(line); matches != nil {
			state, err := samples.ParseThreadState(matches[1])
			if err != nil {
				return nil, ParseError{Line: line, LineNum: lineNum, Err: err}
			}
			current.State = state
			continue
		}

		if matches := framePattern.FindStringSubmatch(line); matches != nil {
			current.Stack = append(current.Stack, parseFrame(matches[1], matches[2], matches[3]))
			continue
		}

		// lock lines ("- locked <0x...>") and blank separators
		if strings.TrimSpace(line) == "" {
			flush()
		}
	}
	flush()

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read thread dump: %w", err)
	}
	return dump, nil
}

// parseFrame splits the location part of a frame:
// "Native Method", "Unknown Source", "App.java", "App.java:10", each
// optionally behind a "module@version/" or "loader//" prefix
func parseFrame(className, methodName, location string) samples.StackFrame {
	f := samples.StackFrame{ClassName: className, MethodName: methodName}

	if i := strings.LastIndex(location, "/"); i >= 0 {
		location = location[i+1:]
	}

	switch location {
	case "Native Method":
		f.Native = true
		return f
	case "Unknown Source", "":
		return f
	}

	file, line, ok := strings.Cut(location, ":")
	f.FileName = file
	if ok {
		if n, err := strconv.ParseInt(line, 10, 32); err == nil {
			f.Line = int32(n)
		}
	}
	return f
}

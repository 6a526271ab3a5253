package sampler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/mabhi256/jprof/internal/threaddump"
)

var ErrTargetTerminated = errors.New("target JVM terminated")

// Dumper takes one thread dump of the profiled JVM
type Dumper interface {
	Dump(ctx context.Context) (*threaddump.Dump, error)
}

// JcmdDumper runs "jcmd <pid> Thread.print"
type JcmdDumper struct {
	Jcmd string
	PID  int
}

func NewJcmdDumper(jcmd string, pid int) *JcmdDumper {
	if jcmd == "" {
		jcmd = "jcmd"
	}
	return &JcmdDumper{Jcmd: jcmd, PID: pid}
}

// jcmd reports a vanished target on stdout with one of these
var goneMarkers = []string{
	"No such process",
	"not found",
	"Unable to open socket file",
	"Connection refused",
}

func (d *JcmdDumper) Dump(ctx context.Context) (*threaddump.Dump, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, d.Jcmd, strconv.Itoa(d.PID), "Thread.print")
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		out := stdout.String() + stderr.String()
		if targetGone(out) {
			return nil, fmt.Errorf("%w: pid %d", ErrTargetTerminated, d.PID)
		}
		return nil, fmt.Errorf("jcmd %d Thread.print failed: %w: %s", d.PID, err, strings.TrimSpace(out))
	}

	if targetGone(stdout.String()) && !strings.Contains(stdout.String(), "java.lang.Thread.State") {
		return nil, fmt.Errorf("%w: pid %d", ErrTargetTerminated, d.PID)
	}
	return threaddump.Parse(&stdout)
}

func targetGone(out string) bool {
	for _, m := range goneMarkers {
		if strings.Contains(out, m) {
			return true
		}
	}
	return false
}

package sampler

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

type JavaProcess struct {
	PID       int
	MainClass string
	Args      string
}

func (p *JavaProcess) String() string {
	return fmt.Sprintf("%d %s", p.PID, p.MainClass)
}

// DiscoverJavaProcesses lists local JVMs with jps
func DiscoverJavaProcesses(ctx context.Context, jps string) ([]*JavaProcess, error) {
	if jps == "" {
		jps = "jps"
	}
	output, err := exec.CommandContext(ctx, jps, "-l", "-v").Output()
	if err != nil {
		return nil, fmt.Errorf("failed to run jps: %w (ensure Java development tools are installed)", err)
	}
	return parseJps(string(output)), nil
}

func parseJps(output string) []*JavaProcess {
	var processes []*JavaProcess
	scanner := bufio.NewScanner(strings.NewReader(output))

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.SplitN(line, " ", 3)
		if len(parts) < 2 {
			continue
		}

		pid, err := strconv.Atoi(parts[0])
		if err != nil {
			continue
		}

		mainClass := parts[1]
		if shouldSkipProcess(mainClass) {
			continue
		}

		args := ""
		if len(parts) > 2 {
			args = parts[2]
		}

		processes = append(processes, &JavaProcess{
			PID:       pid,
			MainClass: strings.TrimSuffix(mainClass, ".jar"),
			Args:      args,
		})
	}

	return processes
}

// Skip the JDK tools themselves and IDE helper JVMs
func shouldSkipProcess(mainClass string) bool {
	mainClass = strings.TrimSpace(mainClass)
	if mainClass == "" || strings.HasPrefix(mainClass, "--") {
		return true
	}

	if strings.Contains(mainClass, ".vscode") && strings.Contains(mainClass, "extensions") {
		return true
	}

	skipPatterns := []string{
		"sun.tools.jps.Jps",
		"jdk.jcmd",
		"sun.tools.jcmd.JCmd",
		"-- process information unavailable",
		"org.eclipse.equinox.launcher",
	}

	for _, pattern := range skipPatterns {
		if strings.Contains(mainClass, pattern) {
			return true
		}
	}

	return false
}

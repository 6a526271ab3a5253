package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/mabhi256/jprof/internal/registry"
	"github.com/mabhi256/jprof/internal/sampler"
	"github.com/mabhi256/jprof/internal/samples"
	"github.com/mabhi256/jprof/internal/snapshot"
	"github.com/mabhi256/jprof/internal/tui"
	"github.com/spf13/cobra"
)

var (
	sampleDuration time.Duration
	sampleInterval time.Duration
	recordPath     string
	outputPath     string
	sampleProject  string
	openViewer     bool
	jpsPath        string
)

var sampleCmd = &cobra.Command{
	Use:   "sample [PID]",
	Short: "Sample thread stacks of a running JVM into a CPU snapshot",
	Long: `Sample attaches to a local JVM with jcmd, takes a thread dump every interval and
builds a CPU snapshot from the stacks. Sampling stops after --duration, when the
JVM exits, or on Ctrl-C.

Examples:
  jprof sample                       # Interactive process selection
  jprof sample <TAB>                 # Tab completion with PID and MainClass
  jprof sample 1234 -d 30s           # Sample for 30 seconds
  jprof sample 1234 --record run.npss`,
	Args: cobra.MaximumNArgs(1),
	ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if len(args) != 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}

		processes, err := sampler.DiscoverJavaProcesses(cmd.Context(), jpsPath)
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}

		var completions []string
		for _, proc := range processes {
			completions = append(completions, fmt.Sprintf("%d\t%s", proc.PID, proc.MainClass))
		}
		return completions, cobra.ShellCompDirectiveNoFileComp
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		pid, err := targetPID(cmd.Context(), args)
		if err != nil {
			return err
		}

		interval := cfg.Sampler.Interval()
		if cmd.Flags().Changed("interval") {
			interval = sampleInterval
		}
		opts := sampler.Options{
			Interval:       interval,
			IgnoredThreads: cfg.Sampler.IgnoredThreads,
			Filter:         cfg.Sampler.SimpleFilter(),
			Logger:         logger,
		}

		if recordPath != "" {
			if filepath.Ext(recordPath) == "" {
				recordPath += "." + samples.StreamExt
			}
			f, err := os.Create(recordPath)
			if err != nil {
				return fmt.Errorf("failed to create recording: %w", err)
			}
			defer f.Close()
			opts.Recording = f
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		session := sampler.NewSession(sampler.NewJcmdDumper(cfg.Sampler.Jcmd, pid), opts)
		if err := session.Start(ctx); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "📡 Sampling PID %d every %s, press Ctrl-C to stop\n", pid, interval)
		waitForSession(ctx, session, sampleDuration)

		ls, err := session.Stop()
		if err != nil {
			return err
		}
		if serr := session.Err(); serr != nil {
			fmt.Fprintf(out, "⚠️  %v\n", serr)
		}
		fmt.Fprintf(out, "✅ Collected %d samples\n", session.SampleCount())
		if recordPath != "" {
			fmt.Fprintf(out, "💾 Recording written to %s\n", recordPath)
		}

		ls.SetProject(sampleProject)
		m := newManager()
		m.Add(ls)
		if err := saveSampled(m, ls, out); err != nil {
			return err
		}

		if openViewer || !cmd.Flags().Changed("view") && cfg.Snapshot.AutoOpen && outputPath == "" {
			if err := tui.StartTUI(ls); err != nil {
				return fmt.Errorf("unable to start TUI: %w", err)
			}
		}

		return promptUnsaved(cmd, m)
	},
}

func targetPID(ctx context.Context, args []string) (int, error) {
	if len(args) > 0 {
		pid, err := strconv.Atoi(args[0])
		if err != nil || pid <= 0 {
			return 0, fmt.Errorf("invalid argument '%s': must be a PID", args[0])
		}
		return pid, nil
	}

	processes, err := sampler.DiscoverJavaProcesses(ctx, jpsPath)
	if err != nil {
		return 0, err
	}
	proc, err := tui.PickProcess(processes)
	if err != nil {
		return 0, err
	}
	return proc.PID, nil
}

// waitForSession blocks until ctx is done, the session ends on its own, or
// the optional duration passes
func waitForSession(ctx context.Context, s *sampler.Session, duration time.Duration) {
	var timeout <-chan time.Time
	if duration > 0 {
		timer := time.NewTimer(duration)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-ctx.Done():
	case <-s.Done():
	case <-timeout:
	}
}

func saveSampled(m *registry.Manager, ls *snapshot.LoadedSnapshot, out io.Writer) error {
	var path string
	var err error
	switch {
	case outputPath != "":
		path = outputPath
		if filepath.Ext(path) == "" {
			path += "." + snapshot.Ext
		}
		err = m.Save(ls, path)
	case cfg.Snapshot.AutoSave:
		path, err = m.SaveDefault(ls)
	default:
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "💾 Snapshot saved to %s\n", path)
	return nil
}

// promptUnsaved offers to save snapshots that would otherwise be lost
func promptUnsaved(cmd *cobra.Command, m *registry.Manager) error {
	for _, ls := range m.Unsaved() {
		if !confirm(cmd.InOrStdin(), cmd.OutOrStdout(), "Save "+ls.DisplayName()+"?") {
			continue
		}
		path, err := m.SaveDefault(ls)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "💾 Snapshot saved to %s\n", path)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(sampleCmd)

	sampleCmd.Flags().DurationVarP(&sampleDuration, "duration", "d", 0, "stop after this long (0 waits for Ctrl-C)")
	sampleCmd.Flags().DurationVarP(&sampleInterval, "interval", "i", sampler.DefaultInterval, "sampling interval")
	sampleCmd.Flags().StringVarP(&recordPath, "record", "r", "", "also write every sample to a raw recording (.npss)")
	sampleCmd.Flags().StringVarP(&outputPath, "output", "o", "", "save the snapshot to this file")
	sampleCmd.Flags().StringVarP(&sampleProject, "project", "p", "", "project subdirectory for saved snapshots")
	sampleCmd.Flags().BoolVar(&openViewer, "view", false, "open the viewer when sampling stops")
	sampleCmd.Flags().StringVar(&jpsPath, "jps", "jps", "jps executable used for process discovery")

	sampleCmd.RegisterFlagCompletionFunc("record", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{samples.StreamExt}, cobra.ShellCompDirectiveFilterFileExt
	})
}

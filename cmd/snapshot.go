package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/mabhi256/jprof/internal/html"
	"github.com/mabhi256/jprof/internal/registry"
	"github.com/mabhi256/jprof/internal/results"
	"github.com/mabhi256/jprof/internal/snapshot"
	"github.com/mabhi256/jprof/internal/tui"
	"github.com/mabhi256/jprof/utils"
	"github.com/spf13/cobra"
)

var (
	project      string
	viewName     string
	limit        int
	showSettings bool
	force        bool
	watchDir     bool
)

var snapshotCmd = &cobra.Command{
	Use:     "snapshot",
	Aliases: []string{"snap"},
	Short:   "Work with saved profiler snapshots",
	Long: `Snapshots are .nps files written by jprof or the NetBeans profiler. Raw sample
recordings (.npss) are accepted wherever a snapshot is expected.

A snapshot can be named by path or, for files in the snapshot directory, by name:
  jprof snapshot info snapshot-1718000000000`,
}

var snapshotInfoCmd = &cobra.Command{
	Use:               "info [snapshot...]",
	Short:             "Show snapshot properties",
	Args:              cobra.MinimumNArgs(1),
	ValidArgsFunction: completeSnapshotFiles,
	RunE: func(cmd *cobra.Command, args []string) error {
		m := newManager()
		paths := make([]string, len(args))
		for i, arg := range args {
			path, err := resolveSnapshot(m, project, arg)
			if err != nil {
				return err
			}
			paths[i] = path
		}

		loaded, err := m.LoadAll(cmd.Context(), paths)
		out := cmd.OutOrStdout()
		for i, ls := range loaded {
			if ls == nil {
				continue
			}
			if i > 0 {
				fmt.Fprintln(out)
			}
			printInfo(out, ls, showSettings)
		}
		return err
	},
}

var snapshotHotspotsCmd = &cobra.Command{
	Use:               "hotspots [snapshot]",
	Short:             "Print hot spots (CPU) or classes (memory)",
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeSnapshotFiles,
	RunE: func(cmd *cobra.Command, args []string) error {
		view, err := parseView(viewName)
		if err != nil {
			return err
		}
		ls, err := loadSnapshot(newManager(), project, args[0])
		if err != nil {
			return err
		}
		printResultsTable(cmd.OutOrStdout(), results.Tabulate(ls.Results(), view), limit)
		return nil
	},
}

var snapshotConvertCmd = &cobra.Command{
	Use:   "convert [recording.npss] [output.nps]",
	Short: "Build a snapshot from a raw sample recording",
	Long: `Convert replays a raw sample recording (.npss) into a CPU snapshot. Without an
output path the snapshot is saved into the snapshot directory.`,
	Args:              cobra.RangeArgs(1, 2),
	ValidArgsFunction: completeSnapshotFiles,
	RunE: func(cmd *cobra.Command, args []string) error {
		m := newManager()
		ls, err := loadSnapshot(m, project, args[0])
		if err != nil {
			return err
		}
		ls.SetProject(project)

		var path string
		if len(args) == 2 {
			path = args[1]
			if filepath.Ext(path) == "" {
				path += "." + snapshot.Ext
			}
			err = m.Save(ls, path)
		} else {
			path, err = m.SaveDefault(ls)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✅ Saved %s\n", path)
		return nil
	},
}

var snapshotExportCmd = &cobra.Command{
	Use:   "export [snapshot] [destination]",
	Short: "Copy a snapshot or write it as an HTML report",
	Long: `Export copies a snapshot to destination. A destination ending in .html gets a
single-file HTML report instead.`,
	Args:              cobra.ExactArgs(2),
	ValidArgsFunction: completeSnapshotFiles,
	RunE: func(cmd *cobra.Command, args []string) error {
		m := newManager()
		ls, err := loadSnapshot(m, project, args[0])
		if err != nil {
			return err
		}

		dest := args[1]
		if strings.EqualFold(filepath.Ext(dest), ".html") {
			view, err := parseView(viewName)
			if err != nil {
				return err
			}
			path, err := html.GenerateHTMLReport(ls, view, dest)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ Report written to %s\n", path)
			return nil
		}

		if err := m.Export(ls, dest, force); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✅ Exported to %s\n", dest)
		return nil
	},
}

var snapshotCompareCmd = &cobra.Command{
	Use:               "compare [first] [second]",
	Short:             "Compare two memory snapshots",
	Args:              cobra.ExactArgs(2),
	ValidArgsFunction: completeSnapshotFiles,
	RunE: func(cmd *cobra.Command, args []string) error {
		m := newManager()
		first, err := loadSnapshot(m, project, args[0])
		if err != nil {
			return err
		}
		second, err := loadSnapshot(m, project, args[1])
		if err != nil {
			return err
		}

		diff, err := m.Compare(first, second)
		if err != nil {
			return err
		}

		rows := make([][]string, 0, len(diff.Classes))
		for i, d := range diff.Classes {
			if limit > 0 && i == limit {
				break
			}
			rows = append(rows, []string{d.Name, signedSize(d.Bytes), signedCount(d.Objects)})
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s → %s\n", first.DisplayName(), second.DisplayName())
		if len(rows) == 0 {
			fmt.Fprintln(out, "No differences")
			return nil
		}
		fmt.Fprintln(out, renderTable([]string{"Class", "Bytes Δ", "Objects Δ"}, []bool{false, true, true}, rows))
		return nil
	},
}

var snapshotListCmd = &cobra.Command{
	Use:   "list",
	Short: "List snapshots in the snapshot directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m := newManager()
		out := cmd.OutOrStdout()
		if err := printSaved(out, m); err != nil {
			return err
		}
		if !watchDir {
			return nil
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		changed := make(chan struct{}, 1)
		m.Subscribe(func(e registry.Event) {
			if e.Kind != registry.EventChanged {
				return
			}
			select {
			case changed <- struct{}{}:
			default:
			}
		})

		watchErr := make(chan error, 1)
		go func() { watchErr <- m.Watch(ctx) }()
		fmt.Fprintln(out, mutedStyle.Render("Watching "+m.ProjectDir(project)+", press Ctrl-C to stop"))

		for {
			select {
			case <-ctx.Done():
				return <-watchErr
			case err := <-watchErr:
				return err
			case <-changed:
				fmt.Fprintln(out)
				if err := printSaved(out, m); err != nil {
					return err
				}
			}
		}
	},
}

func printSaved(out io.Writer, m *registry.Manager) error {
	files, err := m.ListSaved(project)
	if err != nil {
		return err
	}

	if len(files) == 0 {
		fmt.Fprintf(out, "No snapshots in %s\n", m.ProjectDir(project))
		return nil
	}

	rows := make([][]string, 0, len(files))
	for _, f := range files {
		kind := f.Header.Type.String()
		switch {
		case f.Err != nil:
			kind = "unreadable"
		case f.Header.Stream:
			kind = "Sample recording"
		}
		rows = append(rows, []string{f.Name, kind, humanize.IBytes(uint64(f.Size)), humanize.Time(f.ModTime)})
	}
	fmt.Fprintln(out, renderTable([]string{"Name", "Type", "Size", "Modified"}, []bool{false, false, true, false}, rows))

	if projects, err := m.Projects(); err == nil && project == "" && len(projects) > 0 {
		fmt.Fprintln(out, mutedStyle.Render("Projects: "+strings.Join(projects, ", ")+" (use --project)"))
	}
	return nil
}

var snapshotDeleteCmd = &cobra.Command{
	Use:               "delete [snapshot...]",
	Short:             "Delete snapshot files",
	Args:              cobra.MinimumNArgs(1),
	ValidArgsFunction: completeSnapshotFiles,
	RunE: func(cmd *cobra.Command, args []string) error {
		m := newManager()
		for _, arg := range args {
			path, err := resolveSnapshot(m, project, arg)
			if err != nil {
				return err
			}
			if !force && !confirm(cmd.InOrStdin(), cmd.OutOrStdout(), "Delete "+path+"?") {
				continue
			}
			if err := m.DeleteFile(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "🗑  Deleted %s\n", path)
		}
		return nil
	},
}

var snapshotCommentCmd = &cobra.Command{
	Use:               "comment [snapshot] [text]",
	Short:             "Set the user comments of a snapshot",
	Args:              cobra.MinimumNArgs(1),
	ValidArgsFunction: completeSnapshotFiles,
	RunE: func(cmd *cobra.Command, args []string) error {
		m := newManager()
		ls, err := loadSnapshot(m, project, args[0])
		if err != nil {
			return err
		}
		if len(args) == 1 {
			fmt.Fprintln(cmd.OutOrStdout(), ls.UserComments())
			return nil
		}
		return m.UpdateComments(ls, strings.Join(args[1:], " "))
	},
}

var snapshotViewCmd = &cobra.Command{
	Use:               "view [snapshot]",
	Short:             "Browse a snapshot interactively",
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeSnapshotFiles,
	RunE: func(cmd *cobra.Command, args []string) error {
		ls, err := loadSnapshot(newManager(), project, args[0])
		if err != nil {
			return err
		}
		if err := tui.StartTUI(ls); err != nil {
			return fmt.Errorf("unable to start TUI: %w", err)
		}
		return nil
	},
}

func signedSize(b int64) string {
	if b > 0 {
		return "+" + utils.MemorySize(b).String()
	}
	return utils.MemorySize(b).String()
}

func signedCount(n int64) string {
	if n > 0 {
		return "+" + strconv.FormatInt(n, 10)
	}
	return strconv.FormatInt(n, 10)
}

func init() {
	rootCmd.AddCommand(snapshotCmd)

	snapshotCmd.AddCommand(snapshotInfoCmd)
	snapshotCmd.AddCommand(snapshotHotspotsCmd)
	snapshotCmd.AddCommand(snapshotConvertCmd)
	snapshotCmd.AddCommand(snapshotExportCmd)
	snapshotCmd.AddCommand(snapshotCompareCmd)
	snapshotCmd.AddCommand(snapshotListCmd)
	snapshotCmd.AddCommand(snapshotDeleteCmd)
	snapshotCmd.AddCommand(snapshotCommentCmd)
	snapshotCmd.AddCommand(snapshotViewCmd)

	snapshotCmd.PersistentFlags().StringVarP(&project, "project", "p", "", "project subdirectory of the snapshot directory")

	snapshotListCmd.Flags().BoolVarP(&watchDir, "watch", "w", false, "keep listing as snapshot files change")
	snapshotInfoCmd.Flags().BoolVar(&showSettings, "settings", false, "also print the profiling settings")

	for _, c := range []*cobra.Command{snapshotHotspotsCmd, snapshotExportCmd} {
		c.Flags().StringVar(&viewName, "view", "methods", "aggregation level for CPU snapshots: methods, classes, packages")
		c.RegisterFlagCompletionFunc("view", completeViews)
	}
	for _, c := range []*cobra.Command{snapshotHotspotsCmd, snapshotCompareCmd} {
		c.Flags().IntVarP(&limit, "limit", "n", 20, "number of rows to print, 0 for all")
	}

	snapshotExportCmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing destination")
	snapshotDeleteCmd.Flags().BoolVarP(&force, "force", "f", false, "do not ask for confirmation")
}

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mabhi256/jprof/internal/registry"
	"github.com/mabhi256/jprof/internal/results"
	"github.com/mabhi256/jprof/internal/samples"
	"github.com/mabhi256/jprof/internal/snapshot"
	"github.com/mabhi256/jprof/utils"
	"github.com/spf13/cobra"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
)

// renderTable draws headers and rows, right-aligning the numeric columns
func renderTable(headers []string, numeric []bool, rows [][]string) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col < len(numeric) && numeric[col] {
				return cellStyle.Align(lipgloss.Right)
			}
			return cellStyle
		})
	return t.Render()
}

// printResultsTable prints at most limit rows of data, all when limit <= 0
func printResultsTable(w io.Writer, data results.Table, limit int) {
	if len(data.Rows) == 0 {
		fmt.Fprintln(w, "No data collected")
		return
	}

	headers := make([]string, len(data.Columns))
	numeric := make([]bool, len(data.Columns))
	for i, c := range data.Columns {
		headers[i] = c.Title
		numeric[i] = c.Numeric
	}

	shown := data.Rows
	if limit > 0 && len(shown) > limit {
		shown = shown[:limit]
	}
	rows := make([][]string, len(shown))
	for i, r := range shown {
		rows[i] = r.Cells
	}

	fmt.Fprintln(w, data.Title)
	fmt.Fprintln(w, renderTable(headers, numeric, rows))
	if len(shown) < len(data.Rows) {
		fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("%d of %d entries, use --limit 0 for all", len(shown), len(data.Rows))))
	}
}

func parseView(s string) (results.View, error) {
	switch strings.ToLower(s) {
	case "", "method", "methods":
		return results.MethodView, nil
	case "class", "classes":
		return results.ClassView, nil
	case "package", "packages":
		return results.PackageView, nil
	default:
		return 0, fmt.Errorf("invalid view %q: must be methods, classes or packages", s)
	}
}

func completeViews(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return []string{"methods", "classes", "packages"}, cobra.ShellCompDirectiveNoFileComp
}

var completeSnapshotFiles = utils.CompleteFilesByExtension(snapshot.Ext, samples.StreamExt)

// resolveSnapshot finds arg as a path, then as a snapshot name in the
// project directory
func resolveSnapshot(m *registry.Manager, project, arg string) (string, error) {
	if _, err := os.Stat(arg); err == nil {
		return arg, nil
	}
	if !strings.ContainsRune(arg, filepath.Separator) {
		name := arg
		if filepath.Ext(name) == "" {
			name += "." + snapshot.Ext
		}
		candidate := filepath.Join(m.ProjectDir(project), name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("snapshot %s: %w", arg, os.ErrNotExist)
}

func loadSnapshot(m *registry.Manager, project, arg string) (*snapshot.LoadedSnapshot, error) {
	path, err := resolveSnapshot(m, project, arg)
	if err != nil {
		return nil, err
	}
	return m.Load(path)
}

func printInfo(w io.Writer, ls *snapshot.LoadedSnapshot, withSettings bool) {
	res := ls.Results()
	file := ls.File()
	if file == "" {
		file = "<unsaved>"
	}

	rows := [][]string{
		{"Name", ls.DisplayName()},
		{"Type", ls.Type().String()},
		{"Taken at", res.TimeTaken().Format("2006-01-02 15:04:05")},
		{"Duration", utils.FormatDuration(res.Duration())},
		{"File", file},
		{"Settings", ls.Settings().Name},
		{"Results", res.String()},
	}
	if ls.Project() != "" {
		rows = append(rows, []string{"Project", ls.Project()})
	}
	if c := ls.UserComments(); c != "" {
		rows = append(rows, []string{"Comments", c})
	}
	if region, ok := res.(*results.CodeRegionResults); ok {
		s := region.Summary()
		rows = append(rows,
			[]string{"Invocations", fmt.Sprintf("%d (%d recorded)", s.Invocations, s.Recorded)},
			[]string{"Min / Avg / Max", fmt.Sprintf("%s / %s / %s",
				utils.FormatDuration(s.Min), utils.FormatDuration(s.Avg), utils.FormatDuration(s.Max))},
			[]string{"Std deviation", utils.FormatDuration(s.StdDev)})
	}

	fmt.Fprintln(w, renderTable([]string{"Property", "Value"}, nil, rows))
	if withSettings {
		fmt.Fprintln(w)
		fmt.Fprint(w, ls.Settings().Debug())
	}
}

// confirm asks a yes/no question on stdin, defaulting to no
func confirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s [y/N] ", question)
	var answer string
	if _, err := fmt.Fscanln(in, &answer); err != nil && !errors.Is(err, io.EOF) {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

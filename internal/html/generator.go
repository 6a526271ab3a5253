package html

import (
	_ "embed"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mabhi256/jprof/internal/results"
	"github.com/mabhi256/jprof/internal/snapshot"
	"github.com/mabhi256/jprof/utils"
)

// Embed template files at compile time
//
//go:embed templates/report.html
var htmlTemplate string

//go:embed templates/styles.css
var cssContent string

var reportTemplate = template.Must(template.New("report").Parse(htmlTemplate))

// MaxRows caps the result table of a report
const MaxRows = 500

// ReportData is everything the report template renders
type ReportData struct {
	Title        string
	GeneratedAt  string
	Type         string
	TakenAt      string
	TakenAgo     string
	Duration     string
	File         string
	FileSize     string
	SettingsName string
	Settings     string
	Comments     string
	Table        results.Table
	Rows         []results.Row
	Numeric      []bool
	Truncated    bool
	CSS          template.CSS
}

func newReportData(ls *snapshot.LoadedSnapshot, view results.View, now time.Time) *ReportData {
	res := ls.Results()
	table := results.Tabulate(res, view)

	data := &ReportData{
		Title:        ls.DisplayName(),
		GeneratedAt:  now.Format(time.RFC1123),
		Type:         ls.Type().String(),
		TakenAt:      res.TimeTaken().Format(time.RFC1123),
		TakenAgo:     humanize.RelTime(res.TimeTaken(), now, "ago", "from now"),
		Duration:     utils.FormatDuration(res.Duration()),
		File:         ls.File(),
		SettingsName: ls.Settings().Name,
		Settings:     ls.Settings().Debug(),
		Comments:     ls.UserComments(),
		Table:        table,
		Rows:         table.Rows,
		CSS:          template.CSS(cssContent),
	}
	if len(data.Rows) > MaxRows {
		data.Rows = data.Rows[:MaxRows]
		data.Truncated = true
	}
	for _, c := range table.Columns {
		data.Numeric = append(data.Numeric, c.Numeric)
	}
	if ls.File() != "" {
		if fi, err := os.Stat(ls.File()); err == nil {
			data.FileSize = humanize.IBytes(uint64(fi.Size()))
		}
	}
	return data
}

// Generate writes a single-file HTML report of ls to w
func Generate(w io.Writer, ls *snapshot.LoadedSnapshot, view results.View) error {
	if ls == nil {
		return fmt.Errorf("snapshot cannot be nil")
	}
	if err := reportTemplate.Execute(w, newReportData(ls, view, time.Now())); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	return nil
}

// GenerateHTMLReport writes the report of ls to outputPath, or to a default
// name next to the working directory when empty, and returns the absolute
// path written
func GenerateHTMLReport(ls *snapshot.LoadedSnapshot, view results.View, outputPath string) (string, error) {
	if outputPath == "" {
		outputPath = GetDefaultOutputPath(ls)
	}
	absPath, err := GetOutputPath(outputPath)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	if err := Generate(&sb, ls, view); err != nil {
		return "", err
	}
	if err := os.WriteFile(absPath, []byte(sb.String()), 0644); err != nil {
		return "", fmt.Errorf("failed to write HTML file: %w", err)
	}
	return absPath, nil
}

// GetOutputPath returns the absolute form of path with an .html extension,
// creating its directory if needed
func GetOutputPath(path string) (string, error) {
	if !strings.HasSuffix(strings.ToLower(path), ".html") {
		path += ".html"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path for %s: %w", path, err)
	}

	dir := filepath.Dir(absPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return absPath, nil
}

func GetDefaultOutputPath(ls *snapshot.LoadedSnapshot) string {
	if ls == nil {
		return "snapshot-report-" + time.Now().Format("20060102_150405") + ".html"
	}
	return ls.DisplayName() + ".html"
}

package tui

import (
	"strconv"
	"strings"
	"time"

	"github.com/NimbleMarkets/ntcharts/sparkline"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
	"github.com/mabhi256/jprof/internal/results"
	"github.com/mabhi256/jprof/utils"
)

const (
	sparklineHeight = 6
	keyWidth        = 16
)

func (m *Model) renderInfo() string {
	res := m.snapshot.Results()
	file := m.snapshot.File()
	if file == "" {
		file = "<unsaved>"
	}

	lines := []string{
		TitleStyle.Render(m.snapshot.DisplayName()),
		"",
		FormatKeyValue("Type", m.snapshot.Type().String(), keyWidth),
		FormatKeyValue("Taken at", res.TimeTaken().Format(time.DateTime), keyWidth),
		FormatKeyValue("Duration", utils.FormatDuration(res.Duration()), keyWidth),
		FormatKeyValue("File", file, keyWidth),
		FormatKeyValue("Settings", m.snapshot.Settings().Name, keyWidth),
		FormatKeyValue("Entries", strconv.Itoa(len(m.data.Rows)), keyWidth),
	}
	if c := m.snapshot.UserComments(); c != "" {
		lines = append(lines, FormatKeyValue("Comments", c, keyWidth))
	}

	body := lipgloss.JoinVertical(lipgloss.Left, lines...)
	if chart := m.renderDistribution(); chart != "" {
		body = lipgloss.JoinVertical(lipgloss.Left, body, "", chart)
	}
	return BoxStyle.Width(max(m.width-2, 20)).Render(body)
}

// renderDistribution draws the weight of the leading table rows, largest
// first, as a sparkline
func (m *Model) renderDistribution() string {
	width := max(m.width-10, 10)
	if len(m.data.Rows) == 0 {
		return ""
	}

	values := make([]float64, 0, width)
	for _, r := range m.data.Rows {
		if len(values) == width {
			break
		}
		values = append(values, float64(r.Weight))
	}

	sl := sparkline.New(width, sparklineHeight, sparkline.WithStyle(InfoStyle))
	sl.PushAll(values)
	sl.Draw()

	label := "Distribution of " + strings.ToLower(m.data.Columns[1].Title)
	return lipgloss.JoinVertical(lipgloss.Left, MutedStyle.Render(label), sl.View())
}

func newHotspotTable(data results.Table, width, height int) table.Model {
	columns := make([]table.Column, len(data.Columns))
	used := 0
	for i, c := range data.Columns {
		columns[i] = table.Column{Title: c.Title, Width: c.Width}
		used += c.Width + 2
	}
	// the name column takes whatever the others leave
	if len(columns) > 0 && width > used {
		columns[0].Width += width - used
	}

	rows := make([]table.Row, len(data.Rows))
	for i, r := range data.Rows {
		rows[i] = table.Row(r.Cells)
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithFocused(true),
		table.WithHeight(max(height, 3)),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(BorderColor).
		BorderBottom(true).
		Bold(true)
	s.Selected = SelectedStyle
	t.SetStyles(s)
	return t
}

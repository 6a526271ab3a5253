package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mabhi256/jprof/internal/results"
	"github.com/mabhi256/jprof/internal/snapshot"
	"github.com/mabhi256/jprof/utils"
)

// rows taken by the header and help bar
const chromeHeight = 4

func initialModel(ls *snapshot.LoadedSnapshot) *Model {
	m := &Model{
		snapshot:   ls,
		currentTab: InfoTab,
		view:       results.MethodView,
		keys:       DefaultKeyMap(),
	}
	m.rebuild()
	return m
}

// rebuild recomputes the table and tree for the current view level
func (m *Model) rebuild() {
	res := m.snapshot.Results()
	m.data = results.Tabulate(res, m.view)
	m.hotspots = newHotspotTable(m.data, m.width, m.height-chromeHeight-2)
	m.tree = buildTree(res, m.view)
	m.lines = visibleLines(m.tree)
	m.cursor, m.offset = 0, 0
}

func (m *Model) Init() tea.Cmd {
	return nil
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		cursor := m.hotspots.Cursor()
		m.hotspots = newHotspotTable(m.data, m.width, m.height-chromeHeight-2)
		m.hotspots.SetCursor(cursor)

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Tab1):
			m.currentTab = InfoTab
		case key.Matches(msg, m.keys.Tab2):
			m.currentTab = HotspotsTab
		case key.Matches(msg, m.keys.Tab3):
			m.currentTab = TreeTab
		case key.Matches(msg, m.keys.Left):
			m.currentTab = utils.Cycle(m.currentTab, -1, lastTab)
		case key.Matches(msg, m.keys.Right):
			m.currentTab = utils.Cycle(m.currentTab, 1, lastTab)
		case key.Matches(msg, m.keys.View):
			if m.snapshot.Type() == snapshot.TypeCPU {
				m.view = utils.Cycle(m.view, 1, results.PackageView)
				m.rebuild()
			}
		default:
			return m.handleTabSpecificKeys(msg)
		}
	}

	return m, nil
}

func (m *Model) handleTabSpecificKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.currentTab {
	case HotspotsTab:
		var cmd tea.Cmd
		m.hotspots, cmd = m.hotspots.Update(msg)
		return m, cmd

	case TreeTab:
		switch {
		case key.Matches(msg, m.keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, m.keys.Down):
			if m.cursor < len(m.lines)-1 {
				m.cursor++
			}
		case key.Matches(msg, m.keys.Enter):
			m.toggleSelected()
		}
	}
	return m, nil
}

func (m *Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var content string
	switch m.currentTab {
	case InfoTab:
		content = m.renderInfo()
	case HotspotsTab:
		if len(m.data.Rows) == 0 {
			content = MutedStyle.Render("No data collected")
		} else {
			content = m.hotspots.View()
		}
	case TreeTab:
		content = m.renderTree(m.height - chromeHeight)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		content,
		m.renderHelp(),
	)
}

func (m *Model) renderHeader() string {
	var tabs []string
	for i := range lastTab + 1 {
		style := TabInactiveStyle
		indicator := " "
		if i == m.currentTab {
			style = TabActiveStyle
			indicator = "●"
		}
		tabs = append(tabs, style.Render(fmt.Sprintf("%s %s [%d]", indicator, i, i+1)))
	}

	tabLine := strings.Join(tabs, "  ")
	if m.snapshot.Type() == snapshot.TypeCPU {
		tabLine += "  " + MutedStyle.Render("view: "+m.view.String())
	}

	return lipgloss.JoinVertical(lipgloss.Left, tabLine, strings.Repeat("─", m.width))
}

func (m *Model) renderHelp() string {
	h := help.New()
	h.Width = m.width
	return HelpBarStyle.Render(h.View(m.keys))
}

// StartTUI opens the interactive viewer for ls
func StartTUI(ls *snapshot.LoadedSnapshot) error {
	program := tea.NewProgram(
		initialModel(ls),
		tea.WithAltScreen(),
	)

	_, err := program.Run()
	return err
}

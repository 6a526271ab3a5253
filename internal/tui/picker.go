package tui

import (
	"errors"
	"fmt"
	"slices"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mabhi256/jprof/internal/sampler"
)

var ErrNoSelection = errors.New("no process selected")

// processItem represents a Java process in the selection list
type processItem struct {
	process *sampler.JavaProcess
}

func (i processItem) FilterValue() string {
	return fmt.Sprintf("%d %s", i.process.PID, i.process.MainClass)
}

func (i processItem) Title() string {
	return TruncateString(fmt.Sprintf("PID %d: %s", i.process.PID, i.process.MainClass), 60)
}

func (i processItem) Description() string {
	return TruncateString(i.process.Args, 80)
}

type pickerModel struct {
	list   list.Model
	chosen *sampler.JavaProcess
}

func newPicker(processes []*sampler.JavaProcess) *pickerModel {
	sorted := slices.Clone(processes)
	slices.SortFunc(sorted, func(a, b *sampler.JavaProcess) int { return a.PID - b.PID })

	items := make([]list.Item, len(sorted))
	for i, p := range sorted {
		items[i] = processItem{process: p}
	}

	l := list.New(items, list.NewDefaultDelegate(), 80, 20)
	l.Title = "Select Java process to sample"
	l.Styles.Title = TitleStyle.Background(InfoColor)
	return &pickerModel{list: l}
}

func (m *pickerModel) Init() tea.Cmd {
	return nil
}

func (m *pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.list.SetSize(msg.Width, msg.Height-1)
		return m, nil

	case tea.KeyMsg:
		if m.list.FilterState() == list.Filtering {
			break
		}
		switch msg.String() {
		case "enter":
			if item, ok := m.list.SelectedItem().(processItem); ok {
				m.chosen = item.process
			}
			return m, tea.Quit
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m *pickerModel) View() string {
	return m.list.View()
}

// PickProcess lets the user choose one of processes interactively
func PickProcess(processes []*sampler.JavaProcess) (*sampler.JavaProcess, error) {
	if len(processes) == 0 {
		return nil, fmt.Errorf("no Java processes found")
	}

	m := newPicker(processes)
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		return nil, fmt.Errorf("unable to start process picker: %w", err)
	}
	if m.chosen == nil {
		return nil, ErrNoSelection
	}
	return m.chosen, nil
}

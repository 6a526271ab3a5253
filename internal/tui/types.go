package tui

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	"github.com/mabhi256/jprof/internal/results"
	"github.com/mabhi256/jprof/internal/snapshot"
)

type Model struct {
	// Data
	snapshot *snapshot.LoadedSnapshot
	data     results.Table

	// UI State
	currentTab TabType
	view       results.View
	width      int
	height     int

	hotspots table.Model
	tree     *treeNode
	lines    []treeLine // visible tree rows
	cursor   int
	offset   int

	// Key bindings
	keys KeyMap
}

type TabType int

const (
	InfoTab TabType = iota
	HotspotsTab
	TreeTab
)

const lastTab = TreeTab

func (t TabType) String() string {
	switch t {
	case HotspotsTab:
		return "Hot spots"
	case TreeTab:
		return "Call tree"
	default:
		return "Info"
	}
}

type KeyMap struct {
	Tab1  key.Binding
	Tab2  key.Binding
	Tab3  key.Binding
	Left  key.Binding
	Right key.Binding
	Up    key.Binding
	Down  key.Binding
	Enter key.Binding
	View  key.Binding
	Quit  key.Binding
}

func k(keys []string, help, desc string) key.Binding {
	return key.NewBinding(
		key.WithKeys(keys...),
		key.WithHelp(help, desc),
	)
}

func DefaultKeyMap() KeyMap {
	return KeyMap{
		Tab1:  k([]string{"1"}, "1", "info"),
		Tab2:  k([]string{"2"}, "2", "hot spots"),
		Tab3:  k([]string{"3"}, "3", "call tree"),
		Left:  k([]string{"left", "h"}, "←/h", "prev tab"),
		Right: k([]string{"right", "l"}, "→/l", "next tab"),
		Up:    k([]string{"up", "k"}, "↑/k", "up"),
		Down:  k([]string{"down", "j"}, "↓/j", "down"),
		Enter: k([]string{"enter", " "}, "enter", "expand"),
		View:  k([]string{"v"}, "v", "methods/classes/packages"),
		Quit:  k([]string{"q", "ctrl+c"}, "q", "quit"),
	}
}

func (km KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{km.Tab1, km.Tab2, km.Tab3, km.Up, km.Down, km.Enter, km.View, km.Quit}
}

func (km KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{km.Tab1, km.Tab2, km.Tab3, km.Left, km.Right},
		{km.Up, km.Down, km.Enter, km.View, km.Quit},
	}
}

// Package tui provides the terminal machine picker used by interactive
// actions. The dispatcher only sees a MachineSelector func; all bubbletea
// plumbing stays here.
package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	pickerTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("#FAFAFA")).
				Padding(0, 1)

	pickerDocStyle = lipgloss.NewStyle().Margin(1, 2)
)

type machineItem string

func (i machineItem) Title() string       { return string(i) }
func (i machineItem) Description() string { return "" }
func (i machineItem) FilterValue() string { return string(i) }

type pickerModel struct {
	list     list.Model
	choice   string
	canceled bool
}

func newPickerModel(candidates []string) pickerModel {
	items := make([]list.Item, 0, len(candidates))
	for _, name := range candidates {
		items = append(items, machineItem(name))
	}

	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = false

	l := list.New(items, delegate, 40, len(candidates)+8)
	l.Title = "Select machine"
	l.Styles.Title = pickerTitleStyle
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(true)

	return pickerModel{list: l}
}

func (m pickerModel) Init() tea.Cmd { return nil }

func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "enter":
			if item, ok := m.list.SelectedItem().(machineItem); ok {
				m.choice = string(item)
			}
			return m, tea.Quit
		case "q", "esc", "ctrl+c":
			m.canceled = true
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		h, v := pickerDocStyle.GetFrameSize()
		m.list.SetSize(msg.Width-h, msg.Height-v)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m pickerModel) View() string {
	return pickerDocStyle.Render(m.list.View())
}

// SelectMachine shows the picker and returns the chosen machine name. A
// cancelled picker is an error: the user declined, so nothing may spawn.
func SelectMachine(candidates []string) (string, error) {
	if len(candidates) == 0 {
		return "", nil
	}

	p := tea.NewProgram(newPickerModel(candidates))
	final, err := p.Run()
	if err != nil {
		return "", fmt.Errorf("machine picker: %w", err)
	}

	m := final.(pickerModel)
	if m.canceled {
		return "", fmt.Errorf("selection cancelled")
	}
	return m.choice, nil
}

package watch

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattjoyce/boxhand/internal/events"
)

const maxViewerLines = 2000

// ViewerState mirrors one daemon-side viewer.
type ViewerState struct {
	Name     string
	Attached bool
	ExitCode *int
	Lines    []string
	OpenedAt time.Time
}

// Model is the main bubbletea model for the watch TUI.
type Model struct {
	apiURL string
	apiKey string

	width  int
	height int

	viewers  map[string]*ViewerState
	order    []string
	selected int

	output    viewport.Model
	theme     Theme
	connected bool
	lastError string

	hubEvents chan events.Event
}

// New creates a watch model pointed at a daemon.
func New(apiURL, apiKey string) *Model {
	return &Model{
		apiURL:    apiURL,
		apiKey:    apiKey,
		viewers:   make(map[string]*ViewerState),
		theme:     NewDefaultTheme(),
		hubEvents: make(chan events.Event, 100),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		subscribeToEvents(m.apiURL, m.apiKey, m.hubEvents),
		receiveNextEvent(m.hubEvents),
		func() tea.Msg { return fetchViewers(m.apiURL, m.apiKey) },
		tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) }),
		tea.EnterAltScreen,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "up", "k":
			if m.selected > 0 {
				m.selected--
				m.refreshOutput()
			}
		case "down", "j":
			if m.selected < len(m.order)-1 {
				m.selected++
				m.refreshOutput()
			}
		case "pgup":
			m.output.HalfPageUp()
		case "pgdown":
			m.output.HalfPageDown()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.output.Width = msg.Width - 6
		m.output.Height = msg.Height - len(m.order) - 8
		if m.output.Height < 3 {
			m.output.Height = 3
		}
		m.refreshOutput()

	case tickMsg:
		return m, tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })

	case viewerListMsg:
		for _, v := range msg {
			if _, ok := m.viewers[v.Name]; !ok {
				m.viewers[v.Name] = &ViewerState{
					Name:     v.Name,
					Attached: v.Attached,
					OpenedAt: v.CreatedAt,
				}
			}
		}
		m.reorder()
		m.refreshOutput()

	case eventMsg:
		m.applyEvent(events.Event(msg))
		m.connected = true
		m.lastError = ""
		return m, receiveNextEvent(m.hubEvents)

	case sseDisconnectedMsg:
		m.connected = false
		m.lastError = "event stream disconnected, reconnecting..."
		return m, tea.Tick(3*time.Second, func(t time.Time) tea.Msg {
			return reconnectMsg{}
		})

	case reconnectMsg:
		return m, subscribeToEvents(m.apiURL, m.apiKey, m.hubEvents)

	case errMsg:
		m.lastError = msg.Error()
	}

	return m, nil
}

func (m *Model) applyEvent(e events.Event) {
	var payload struct {
		ID       string `json:"id"`
		Viewer   string `json:"viewer"`
		Line     string `json:"line"`
		ExitCode *int   `json:"exit_code"`
	}
	if err := json.Unmarshal(e.Data, &payload); err != nil || payload.Viewer == "" {
		return
	}

	v, ok := m.viewers[payload.Viewer]
	if !ok {
		v = &ViewerState{Name: payload.Viewer, OpenedAt: e.At}
		m.viewers[payload.Viewer] = v
		m.reorder()
	}

	switch e.Type {
	case events.TypeDispatchStarted:
		v.Attached = true
	case events.TypeDispatchOutput:
		v.Lines = append(v.Lines, payload.Line)
		if len(v.Lines) > maxViewerLines {
			v.Lines = v.Lines[len(v.Lines)-maxViewerLines:]
		}
	case events.TypeDispatchFinished:
		v.Attached = false
		v.ExitCode = payload.ExitCode
	}

	if m.selectedName() == payload.Viewer {
		m.refreshOutput()
	}
}

func (m *Model) reorder() {
	m.order = m.order[:0]
	for name := range m.viewers {
		m.order = append(m.order, name)
	}
	sort.Slice(m.order, func(i, j int) bool {
		return m.viewers[m.order[i]].OpenedAt.Before(m.viewers[m.order[j]].OpenedAt)
	})
	if m.selected >= len(m.order) {
		m.selected = len(m.order) - 1
	}
	if m.selected < 0 {
		m.selected = 0
	}
}

func (m *Model) selectedName() string {
	if m.selected < 0 || m.selected >= len(m.order) {
		return ""
	}
	return m.order[m.selected]
}

func (m *Model) refreshOutput() {
	name := m.selectedName()
	if name == "" {
		m.output.SetContent("")
		return
	}
	v := m.viewers[name]
	content := ""
	for _, line := range v.Lines {
		content += line + "\n"
	}
	m.output.SetContent(content)
	m.output.GotoBottom()
}

func (m Model) View() string {
	if m.width == 0 {
		return "Connecting to boxhand..."
	}

	title := m.theme.Title.Render(" BOXHAND WATCH ")
	status := m.theme.Dim.Render("connected")
	if !m.connected {
		status = m.theme.StatusRunning.Render("connecting")
	}
	header := lipgloss.JoinHorizontal(lipgloss.Top, title, " ", status)

	var rows []string
	for i, name := range m.order {
		v := m.viewers[name]
		marker := "  "
		style := m.theme.Dim
		if i == m.selected {
			marker = "> "
			style = m.theme.Selected
		}

		state := m.theme.StatusRunning.Render("running")
		if !v.Attached {
			if v.ExitCode != nil {
				state = m.theme.StatusExited.Render(fmt.Sprintf("exit %d", *v.ExitCode))
			} else {
				state = m.theme.StatusExited.Render("idle")
			}
		}
		rows = append(rows, marker+style.Render(name)+" "+state)
	}
	if len(rows) == 0 {
		rows = append(rows, m.theme.Dim.Render("  no viewers yet — dispatch something"))
	}
	viewerList := lipgloss.JoinVertical(lipgloss.Left, rows...)

	outputPane := m.theme.Border.Render(m.output.View())

	var errBar string
	if m.lastError != "" {
		errBar = m.theme.StatusRunning.Render(fmt.Sprintf(" ! %s", m.lastError))
	}

	help := m.theme.Dim.Render(" [q] Quit • [↑/↓] Select viewer • [PgUp/PgDn] Scroll")

	parts := []string{header, viewerList, outputPane}
	if errBar != "" {
		parts = append(parts, errBar)
	}
	parts = append(parts, help)

	return lipgloss.NewStyle().Margin(1, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left, parts...),
	)
}

// Package tui is a terminal dashboard for watching batch runs live.
package tui

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/lexstat/internal/events"
)

// --- Styles ---

var (
	docStyle = lipgloss.NewStyle().Margin(1, 2)

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#874BFD"))

	statusOK      = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00"))
	statusRunning = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00"))
	statusFailed  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000"))

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Padding(0, 1)
)

// --- Types ---

type runNode struct {
	ID        string
	Folders   []string
	Commands  []string
	Status    string
	Results   int
	StartTime time.Time
	EndTime   time.Time
}

type Model struct {
	apiURL string
	apiKey string

	width  int
	height int

	runs      map[string]*runNode
	runOrder  []string
	eventLog  []events.Event
	hubEvents chan events.Event

	health struct {
		Status        string
		UptimeSeconds int64
		LastRunID     string
		LastRunStatus string
	}

	runTable table.Model

	mu sync.Mutex
}

type eventMsg events.Event
type healthMsg struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	LastRunID     string `json:"last_run_id"`
	LastRunStatus string `json:"last_run_status"`
}
type errMsg error

// --- Init ---

func NewWatch(apiURL, apiKey string) *Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "ST", Width: 2},
			{Title: "Run", Width: 10},
			{Title: "Folders", Width: 24},
			{Title: "Commands", Width: 20},
			{Title: "Results", Width: 7},
			{Title: "Duration", Width: 10},
		}),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	return &Model{
		apiURL:    apiURL,
		apiKey:    apiKey,
		runs:      make(map[string]*runNode),
		eventLog:  make([]events.Event, 0),
		hubEvents: make(chan events.Event, 100),
		runTable:  t,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.subscribeToEvents(),
		m.pollHealth(),
		tea.EnterAltScreen,
	)
}

// --- Update ---

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.runTable.SetWidth(m.width - 6)

	case eventMsg:
		m.handleEvent(events.Event(msg))
		m.updateTable()
		return m, m.receiveNextEvent()

	case healthMsg:
		m.health.Status = msg.Status
		m.health.UptimeSeconds = msg.UptimeSeconds
		m.health.LastRunID = msg.LastRunID
		m.health.LastRunStatus = msg.LastRunStatus
		return m, tea.Tick(5*time.Second, func(t time.Time) tea.Msg {
			return m.fetchHealth()
		})

	case errMsg:
		// Keep rendering; the next health poll surfaces recovery.
	}

	m.runTable, cmd = m.runTable.Update(msg)
	return m, cmd
}

func (m *Model) handleEvent(e events.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.eventLog = append([]events.Event{e}, m.eventLog...)
	if len(m.eventLog) > 50 {
		m.eventLog = m.eventLog[:50]
	}

	switch e.Type {
	case events.TypeRunStarted, events.TypeRunCompleted, events.TypeRunFailed:
		var p events.RunPayload
		if err := json.Unmarshal(e.Data, &p); err != nil || p.RunID == "" {
			return
		}
		node, ok := m.runs[p.RunID]
		if !ok {
			node = &runNode{ID: p.RunID}
			m.runs[p.RunID] = node
			m.runOrder = append(m.runOrder, p.RunID)
		}
		if len(p.Folders) > 0 {
			node.Folders = p.Folders
		}
		if len(p.Commands) > 0 {
			node.Commands = p.Commands
		}
		switch e.Type {
		case events.TypeRunStarted:
			node.Status = "running"
			node.StartTime = time.Now()
		case events.TypeRunCompleted:
			node.Status = "succeeded"
			node.EndTime = time.Now()
		case events.TypeRunFailed:
			node.Status = "failed"
			node.EndTime = time.Now()
		}

	case events.TypeResultRecorded:
		var p events.ResultPayload
		if err := json.Unmarshal(e.Data, &p); err != nil {
			return
		}
		if node, ok := m.runs[p.RunID]; ok {
			node.Results += p.Count
		}
	}
}

func (m *Model) updateTable() {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows := make([]table.Row, 0, len(m.runOrder))
	// Newest runs at the top.
	for i := len(m.runOrder) - 1; i >= 0; i-- {
		node := m.runs[m.runOrder[i]]

		statusSym := "○"
		switch node.Status {
		case "running":
			statusSym = statusRunning.Render("◉")
		case "succeeded":
			statusSym = statusOK.Render("●")
		case "failed":
			statusSym = statusFailed.Render("∅")
		}

		duration := "-"
		if !node.StartTime.IsZero() {
			end := node.EndTime
			if end.IsZero() {
				end = time.Now()
			}
			duration = end.Sub(node.StartTime).Round(time.Millisecond).String()
		}

		id := node.ID
		if len(id) > 8 {
			id = id[:8]
		}

		rows = append(rows, table.Row{
			statusSym,
			id,
			strings.Join(node.Folders, ","),
			strings.Join(node.Commands, ","),
			strconv.Itoa(node.Results),
			duration,
		})
	}

	m.runTable.SetRows(rows)
}

// --- View ---

func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	header := m.renderHeader()
	runsView := borderStyle.Width(m.width - 4).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			titleStyle.Render("Batch Runs"),
			m.runTable.View(),
		),
	)

	eventsView := borderStyle.Width(m.width - 4).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			titleStyle.Render("Event Stream"),
			m.renderEvents(),
		),
	)

	help := lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Render(" [q] Quit • [↑/↓] Scroll Runs")

	return docStyle.Render(
		lipgloss.JoinVertical(
			lipgloss.Left,
			header,
			runsView,
			eventsView,
			help,
		),
	)
}

func (m Model) renderHeader() string {
	status := statusOK.Render("RUNNING")
	if m.health.Status != "ok" && m.health.Status != "" {
		status = statusFailed.Render("DEGRADED")
	}

	uptime := time.Duration(m.health.UptimeSeconds) * time.Second

	lastRun := "-"
	if m.health.LastRunID != "" {
		id := m.health.LastRunID
		if len(id) > 8 {
			id = id[:8]
		}
		lastRun = fmt.Sprintf("%s (%s)", id, m.health.LastRunStatus)
	}

	items := []string{
		fmt.Sprintf("Status: %s", status),
		fmt.Sprintf("Uptime: %s", uptime.String()),
		fmt.Sprintf("Last Run: %s", lastRun),
	}

	return borderStyle.Width(m.width - 4).Render(
		lipgloss.JoinHorizontal(lipgloss.Top,
			lipgloss.NewStyle().Width((m.width-4)/3).Render(items[0]),
			lipgloss.NewStyle().Width((m.width-4)/3).Render(items[1]),
			lipgloss.NewStyle().Width((m.width-4)/3).Render(items[2]),
		),
	)
}

func (m Model) renderEvents() string {
	var lines []string
	for i, e := range m.eventLog {
		if i >= 10 {
			break
		}
		ts := e.At.Format("15:04:05")
		lines = append(lines, fmt.Sprintf("%s | %-16s | %s", ts, e.Type, string(e.Data)))
	}
	if len(lines) == 0 {
		return "  No events yet..."
	}
	return lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n"))
}

// --- Commands ---

// subscribeToEvents consumes the SSE stream and reassembles events from the
// id/event/data framing.
func (m Model) subscribeToEvents() tea.Cmd {
	return func() tea.Msg {
		client := &http.Client{}
		req, _ := http.NewRequest("GET", m.apiURL+"/events", nil)
		req.Header.Set("Authorization", "Bearer "+m.apiKey)

		resp, err := client.Do(req)
		if err != nil {
			return errMsg(err)
		}
		defer resp.Body.Close()

		var current events.Event
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case strings.HasPrefix(line, "id: "):
				current.ID, _ = strconv.ParseInt(line[4:], 10, 64)
			case strings.HasPrefix(line, "event: "):
				current.Type = line[7:]
			case strings.HasPrefix(line, "data: "):
				current.Data = []byte(line[6:])
				current.At = time.Now()
			case line == "":
				if current.Type != "" {
					m.hubEvents <- current
				}
				current = events.Event{}
			}
		}
		return nil
	}
}

func (m Model) receiveNextEvent() tea.Cmd {
	return func() tea.Msg {
		return eventMsg(<-m.hubEvents)
	}
}

func (m Model) pollHealth() tea.Cmd {
	return func() tea.Msg {
		return m.fetchHealth()
	}
}

func (m Model) fetchHealth() tea.Msg {
	client := &http.Client{Timeout: 2 * time.Second}
	req, _ := http.NewRequest("GET", m.apiURL+"/healthz", nil)

	resp, err := client.Do(req)
	if err != nil {
		return errMsg(err)
	}
	defer resp.Body.Close()

	var h healthMsg
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return errMsg(err)
	}
	return h
}

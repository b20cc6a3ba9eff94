package tui

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/runlet/internal/history"
)

// --- Styles ---

var (
	docStyle = lipgloss.NewStyle().Margin(1, 2)

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#874BFD"))

	statusOK     = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00"))
	statusFailed = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Padding(0, 1)
)

// --- Types ---

// Model is the watch screen: service health plus the rolling run journal.
type Model struct {
	apiURL string
	apiKey string

	width  int
	height int

	health struct {
		Status        string
		UptimeSeconds int64
		Languages     int
	}
	languages []string
	lastErr   error

	runTable table.Model
}

type healthMsg struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Languages     int    `json:"languages"`
}
type languagesMsg []string
type historyMsg []history.Attempt
type errMsg error

// NewWatch creates the watch model for a running service at apiURL.
func NewWatch(apiURL, apiKey string) *Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "ST", Width: 2},
			{Title: "Language", Width: 12},
			{Title: "Kind", Width: 18},
			{Title: "ID", Width: 10},
			{Title: "Duration", Width: 10},
			{Title: "When", Width: 10},
		}),
		table.WithFocused(true),
		table.WithHeight(12),
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
		apiURL:   apiURL,
		apiKey:   apiKey,
		runTable: t,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.fetchAll(),
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
		case "r":
			return m, m.fetchAll()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.runTable.SetWidth(m.width - 6)

	case healthMsg:
		m.health.Status = msg.Status
		m.health.UptimeSeconds = msg.UptimeSeconds
		m.health.Languages = msg.Languages
		m.lastErr = nil

	case languagesMsg:
		m.languages = msg

	case historyMsg:
		m.setRows(msg)
		return m, tea.Tick(2*time.Second, func(time.Time) tea.Msg {
			return m.fetchAll()()
		})

	case errMsg:
		m.lastErr = msg
		return m, tea.Tick(5*time.Second, func(time.Time) tea.Msg {
			return m.fetchAll()()
		})
	}

	m.runTable, cmd = m.runTable.Update(msg)
	return m, cmd
}

func (m *Model) setRows(attempts []history.Attempt) {
	rows := make([]table.Row, 0, len(attempts))
	for _, a := range attempts {
		sym := statusFailed.Render("∅")
		if a.OK {
			sym = statusOK.Render("●")
		}
		id := a.ID
		if len(id) > 8 {
			id = id[:8]
		}
		rows = append(rows, table.Row{
			sym,
			a.Language,
			string(a.Kind),
			id,
			a.Duration.Round(time.Millisecond).String(),
			a.CreatedAt.Local().Format("15:04:05"),
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
	runs := borderStyle.Width(m.width - 4).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			titleStyle.Render("Recent Runs"),
			m.runTable.View(),
		),
	)

	help := dimStyle.Render(" [q] Quit • [r] Refresh • [↑/↓] Scroll")

	parts := []string{header, runs}
	if m.lastErr != nil {
		parts = append(parts, statusFailed.Render(" "+m.lastErr.Error()))
	}
	parts = append(parts, help)

	return docStyle.Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

func (m Model) renderHeader() string {
	status := statusOK.Render("RUNNING")
	if m.health.Status != "ok" && m.health.Status != "" {
		status = statusFailed.Render("DEGRADED")
	}
	if m.lastErr != nil {
		status = statusFailed.Render("UNREACHABLE")
	}

	uptime := time.Duration(m.health.UptimeSeconds) * time.Second

	langs := fmt.Sprintf("Languages: %d", m.health.Languages)
	if len(m.languages) > 0 {
		langs = "Languages: " + strings.Join(m.languages, ", ")
	}

	items := []string{
		fmt.Sprintf("Status: %s", status),
		fmt.Sprintf("Uptime: %s", uptime.String()),
		langs,
	}

	third := (m.width - 4) / 3
	return borderStyle.Width(m.width - 4).Render(
		lipgloss.JoinHorizontal(lipgloss.Top,
			lipgloss.NewStyle().Width(third).Render(items[0]),
			lipgloss.NewStyle().Width(third).Render(items[1]),
			lipgloss.NewStyle().Width(third).Render(items[2]),
		),
	)
}

// --- Commands ---

func (m Model) fetchAll() tea.Cmd {
	return func() tea.Msg {
		h, err := m.fetchHealth()
		if err != nil {
			return errMsg(err)
		}
		// Health landed; the rest rides on the same poll.
		if langs, err := m.fetchLanguages(); err == nil {
			m.languages = langs
		}
		attempts, err := m.fetchHistory()
		if err != nil {
			return errMsg(err)
		}
		return tea.BatchMsg{
			func() tea.Msg { return h },
			func() tea.Msg { return languagesMsg(m.languages) },
			func() tea.Msg { return historyMsg(attempts) },
		}
	}
}

func (m Model) get(path string, out any) error {
	client := &http.Client{Timeout: 2 * time.Second}
	req, err := http.NewRequest(http.MethodGet, m.apiURL+path, nil)
	if err != nil {
		return err
	}
	if m.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+m.apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %s", path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (m Model) fetchHealth() (healthMsg, error) {
	var h healthMsg
	err := m.get("/healthz", &h)
	return h, err
}

func (m Model) fetchLanguages() ([]string, error) {
	var resp struct {
		Languages []string `json:"languages"`
	}
	err := m.get("/languages", &resp)
	return resp.Languages, err
}

func (m Model) fetchHistory() ([]history.Attempt, error) {
	var resp struct {
		Attempts []history.Attempt `json:"attempts"`
	}
	err := m.get("/history?limit=50", &resp)
	return resp.Attempts, err
}

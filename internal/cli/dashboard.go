package cli

import (
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/valter-silva-au/chatrange/internal/core"
)

// Dashboard panel indices.
const (
	panelCaptures = iota
	panelSessions
	panelAlerts
	panelCount
)

// dashboardRecent is how many captures the captures panel lists.
const dashboardRecent = 8

type dashboardModel struct {
	activePanel int
	width       int
	height      int

	captures []captureSnapshot
	sessions *sessionSnapshot
	alerts   []alertSnapshot

	loading bool
	err     error
}

type captureSnapshot struct {
	id         string
	capturedAt string
	messages   int
	summarized bool
}

type sessionSnapshot struct {
	started     int
	completed   int
	failed      int
	cancelled   int
	successRate float64
	messages    int
	searchMiss  int
	archived    int
}

type alertSnapshot struct {
	severity string
	message  string
	time     string
}

// dataLoadedMsg carries loaded data back to the model.
type dataLoadedMsg struct {
	captures []captureSnapshot
	sessions *sessionSnapshot
	alerts   []alertSnapshot
	err      error
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("29")).
			Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(1, 2)

	activePanelStyle = lipgloss.NewStyle().
				BorderStyle(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("29")).
				Padding(1, 2)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("29")).
			MarginBottom(1)

	summarizedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	rateGood        = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	rateWarn        = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	rateBad         = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)

	severityHigh   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	severityMedium = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	severityLow    = lipgloss.NewStyle().Foreground(lipgloss.Color("69"))

	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func newDashboardModel() dashboardModel {
	return dashboardModel{
		activePanel: panelCaptures,
		loading:     true,
	}
}

func (m dashboardModel) Init() tea.Cmd {
	return loadData
}

func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "tab":
			m.activePanel = (m.activePanel + 1) % panelCount
			return m, nil
		case "shift+tab":
			m.activePanel = (m.activePanel - 1 + panelCount) % panelCount
			return m, nil
		case "r":
			m.loading = true
			return m, loadData
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case dataLoadedMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.captures = msg.captures
		m.sessions = msg.sessions
		m.alerts = msg.alerts
		m.err = nil
		return m, nil
	}

	return m, nil
}

func (m dashboardModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	title := titleStyle.Render(" chatrange ")
	help := helpStyle.Render("tab: switch panel | r: refresh | q: quit")

	if m.loading {
		return fmt.Sprintf("%s\n\n  Loading data...\n\n%s", title, help)
	}
	if m.err != nil {
		return fmt.Sprintf("%s\n\n  Error: %s\n\n%s", title, m.err, help)
	}

	panels := []string{m.renderCapturesPanel(), m.renderSessionsPanel(), m.renderAlertsPanel()}
	availableWidth := m.width - 2

	var body string
	if availableWidth > 120 {
		colWidth := availableWidth/panelCount - 4
		for i := range panels {
			panels[i] = m.applyPanelStyle(i, panels[i], colWidth)
		}
		body = lipgloss.JoinHorizontal(lipgloss.Top, panels...)
	} else {
		panelWidth := max(availableWidth-4, 20)
		for i := range panels {
			panels[i] = m.applyPanelStyle(i, panels[i], panelWidth)
		}
		body = lipgloss.JoinVertical(lipgloss.Left, panels...)
	}

	return fmt.Sprintf("%s\n\n%s\n\n%s", title, body, help)
}

func (m dashboardModel) applyPanelStyle(panel int, content string, width int) string {
	style := panelStyle
	if m.activePanel == panel {
		style = activePanelStyle
	}
	return style.Width(width).Render(content)
}

func (m dashboardModel) renderCapturesPanel() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Recent captures"))
	b.WriteString("\n")

	if len(m.captures) == 0 {
		b.WriteString("  No captures archived.")
		return b.String()
	}

	for _, c := range m.captures {
		line := fmt.Sprintf("  %-8s %s %5d msgs", c.id, c.capturedAt, c.messages)
		if c.summarized {
			line += " " + summarizedStyle.Render("summarized")
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

func (m dashboardModel) renderSessionsPanel() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Sessions (7d)"))
	b.WriteString("\n")

	if m.sessions == nil {
		b.WriteString("  No metrics available.")
		return b.String()
	}

	s := m.sessions
	lines := []struct {
		label string
		value int
	}{
		{"Started", s.started},
		{"Completed", s.completed},
		{"Failed", s.failed},
		{"Cancelled", s.cancelled},
		{"Messages", s.messages},
		{"Search misses", s.searchMiss},
		{"Archived", s.archived},
	}
	for _, l := range lines {
		b.WriteString(fmt.Sprintf("  %-14s %d\n", l.label, l.value))
	}
	if s.completed+s.failed > 0 {
		rate := fmt.Sprintf("%.0f%%", s.successRate*100)
		b.WriteString(fmt.Sprintf("\n  %-14s %s", "Success rate", styleForRate(s.successRate).Render(rate)))
	}
	return b.String()
}

func (m dashboardModel) renderAlertsPanel() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Alerts"))
	b.WriteString("\n")

	if len(m.alerts) == 0 {
		b.WriteString("  No active alerts.")
		return b.String()
	}

	for _, a := range m.alerts {
		sev := styleForSeverity(a.severity).Render(fmt.Sprintf("[%s]", strings.ToUpper(a.severity)))
		b.WriteString(fmt.Sprintf("  %s %s\n", sev, a.message))
	}
	b.WriteString(fmt.Sprintf("\n  Total: %d alert(s)", len(m.alerts)))
	return b.String()
}

func styleForRate(rate float64) lipgloss.Style {
	switch {
	case rate >= 0.9:
		return rateGood
	case rate >= 0.5:
		return rateWarn
	default:
		return rateBad
	}
}

func styleForSeverity(severity string) lipgloss.Style {
	switch strings.ToLower(severity) {
	case "high":
		return severityHigh
	case "medium":
		return severityMedium
	case "low":
		return severityLow
	default:
		return lipgloss.NewStyle()
	}
}

func loadData() tea.Msg {
	var result dataLoadedMsg

	if Archive != nil {
		captures, err := Archive.Recent(dashboardRecent)
		if err != nil {
			result.err = fmt.Errorf("loading captures: %w", err)
			return result
		}
		for _, c := range captures {
			result.captures = append(result.captures, captureSnapshot{
				id:         c.ID,
				capturedAt: c.CapturedAt.Local().Format("01-02 15:04"),
				messages:   c.MessageCount,
				summarized: c.Summary != "",
			})
		}
	}

	if MetricsCalc != nil {
		since := time.Now().UTC().AddDate(0, 0, -7)
		metrics, err := MetricsCalc.Calculate(since)
		if err != nil {
			result.err = fmt.Errorf("loading metrics: %w", err)
			return result
		}
		result.sessions = &sessionSnapshot{
			started:     metrics.SessionsStarted,
			completed:   metrics.SessionsCompleted,
			failed:      metrics.SessionsFailed,
			cancelled:   metrics.SessionsCancelled,
			successRate: metrics.SuccessRate(),
			messages:    metrics.MessagesCaptured,
			searchMiss:  searchMisses(metrics.SearchesByOutcome),
			archived:    metrics.Archived,
		}
	}

	if AlertEngine != nil {
		alerts, err := AlertEngine.Evaluate()
		if err != nil {
			result.err = fmt.Errorf("loading alerts: %w", err)
			return result
		}
		sort.SliceStable(alerts, func(i, j int) bool {
			return severityRank(string(alerts[i].Severity)) < severityRank(string(alerts[j].Severity))
		})
		for _, a := range alerts {
			result.alerts = append(result.alerts, alertSnapshot{
				severity: string(a.Severity),
				message:  a.Message,
				time:     a.TriggeredAt.Format("2006-01-02 15:04 UTC"),
			})
		}
	}

	return result
}

// searchMisses counts searches that ended without finding their anchor.
func searchMisses(byOutcome map[string]int) int {
	n := 0
	for outcome, count := range byOutcome {
		if outcome != string(core.OutcomeFound) && outcome != string(core.OutcomeCancelled) {
			n += count
		}
	}
	return n
}

func severityRank(s string) int {
	switch s {
	case "high":
		return 0
	case "medium":
		return 1
	case "low":
		return 2
	default:
		return 3
	}
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Interactive TUI dashboard for captures, metrics and alerts",
	Long: `Launch an interactive terminal dashboard showing recent captures,
capture session metrics and health alerts.

Navigate between panels with Tab, refresh with r, quit with q.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Archive == nil && MetricsCalc == nil {
			return fmt.Errorf("capture archive not initialized")
		}
		p := tea.NewProgram(newDashboardModel(), tea.WithAltScreen())
		_, err := p.Run()
		return err
	},
}

func init() {
	rootCmd.AddCommand(dashboardCmd)
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/valter-silva-au/chatrange/internal/core"
	"github.com/valter-silva-au/chatrange/internal/integration"
	"github.com/valter-silva-au/chatrange/pkg/models"
)

const (
	// pickStatusLines is how many engine status lines the picker keeps.
	pickStatusLines = 4
	// pickMaxStepScrolls bounds the scrolls one cursor step may take.
	pickMaxStepScrolls = 4
)

var (
	pickFixture   string
	pickSynthetic int
	pickAt        string
	pickViewport  float64
	pickFinish    finishOptions
)

var (
	pickCursorStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("230")).Background(lipgloss.Color("29"))
	pickStartStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	pickEndStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	pickMetaStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// pickModel is an interactive anchor picker over a simulated conversation.
// The cursor always stays on a rendered row; moving past the viewport edge
// scrolls the page and samples it, like a user scrolling the real view.
type pickModel struct {
	ctx    context.Context
	page   *integration.VirtualPage
	eng    *core.Engine
	status <-chan core.StatusUpdate

	cursor int
	lines  []string
	busy   bool
	result *core.Result
	err    error
}

type statusMsg core.StatusUpdate

type markDoneMsg struct {
	mr  core.MarkResult
	err error
}

func newPickModel(ctx context.Context, page *integration.VirtualPage, eng *core.Engine, status <-chan core.StatusUpdate) pickModel {
	first, _ := page.VisibleRange()
	return pickModel{ctx: ctx, page: page, eng: eng, status: status, cursor: first}
}

func (m pickModel) Init() tea.Cmd {
	return m.waitForStatus()
}

func (m pickModel) waitForStatus() tea.Cmd {
	if m.status == nil {
		return nil
	}
	ch := m.status
	return func() tea.Msg {
		u, ok := <-ch
		if !ok {
			return nil
		}
		return statusMsg(u)
	}
}

func (m pickModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case statusMsg:
		if msg.Message != "" {
			m.lines = append(m.lines, fmt.Sprintf("[%s] %s", msg.Status, msg.Message))
			if len(m.lines) > pickStatusLines {
				m.lines = m.lines[len(m.lines)-pickStatusLines:]
			}
		}
		return m, m.waitForStatus()

	case markDoneMsg:
		m.busy = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		if msg.mr.Result != nil {
			m.result = msg.mr.Result
			return m, tea.Quit
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.eng.CancelSession()
			return m, tea.Quit
		}
		if m.busy {
			return m, nil
		}
		switch msg.String() {
		case "up", "k":
			m.move(-1)
		case "down", "j":
			m.move(1)
		case "pgup":
			m.scroll(-m.viewport())
		case "pgdown", " ":
			m.scroll(m.viewport())
		case "esc":
			m.eng.CancelSession()
			m.err = nil
		case "enter":
			return m.mark()
		}
	}
	return m, nil
}

func (m *pickModel) viewport() float64 {
	first, last := m.page.VisibleRange()
	return float64(max(last-first, 1)) * integration.DefaultRowHeight
}

// move steps the cursor, scrolling one row when it leaves the viewport.
func (m *pickModel) move(delta int) {
	target := m.cursor + delta
	if target < 0 || target >= m.page.Len() {
		return
	}
	for range pickMaxStepScrolls {
		first, last := m.page.VisibleRange()
		if target >= first && target <= last {
			break
		}
		m.scroll(float64(delta) * integration.DefaultRowHeight)
	}
	m.cursor = target
	m.clampCursor()
}

func (m *pickModel) scroll(delta float64) {
	if _, err := m.page.ScrollBy(m.ctx, delta); err != nil {
		m.err = err
		return
	}
	_ = m.page.Settle(m.ctx)
	// Sampling only applies while awaiting the end anchor.
	_, _ = m.eng.SampleNow(m.ctx)
	m.clampCursor()
}

func (m *pickModel) clampCursor() {
	first, last := m.page.VisibleRange()
	m.cursor = min(max(m.cursor, first), last)
}

// mark starts a session when none is open and marks the row under the
// cursor. The end anchor resolves asynchronously since it may search.
func (m pickModel) mark() (tea.Model, tea.Cmd) {
	node, err := m.page.Row(m.cursor)
	if err != nil {
		m.err = err
		return m, nil
	}
	row, ok, err := m.page.FindRow(m.ctx, node.DataID)
	if err != nil || !ok {
		m.err = fmt.Errorf("row %s is not rendered", node.DataID)
		return m, nil
	}

	switch status := m.eng.Status(); {
	case status == models.StatusAwaitingEnd:
	case status == models.StatusIdle && m.eng.Snapshot().ID != "":
	case status == models.StatusIdle, status == models.StatusDone, status == models.StatusFailed:
		if _, err := m.eng.StartSession(m.ctx); err != nil {
			m.err = err
			return m, nil
		}
	default:
		return m, nil
	}

	m.err = nil
	m.busy = true
	eng, ctx := m.eng, m.ctx
	return m, func() tea.Msg {
		mr, err := eng.MarkAnchor(ctx, row)
		return markDoneMsg{mr: mr, err: err}
	}
}

func (m pickModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(" chatrange pick "))
	b.WriteString("\n\n")

	highlights := m.page.Highlights()
	first, last := m.page.VisibleRange()
	for i := first; i <= last; i++ {
		node, err := m.page.Row(i)
		if err != nil {
			continue
		}
		marker := "  "
		switch highlights[node.DataID] {
		case core.MarkerStart:
			marker = pickStartStyle.Render("S ")
		case core.MarkerEnd:
			marker = pickEndStyle.Render("E ")
		}
		label := fmt.Sprintf("%4d %s", i, pickRowLabel(node))
		if i == m.cursor {
			label = pickCursorStyle.Render(label)
		}
		b.WriteString(marker + label + "\n")
	}

	snap := m.eng.Snapshot()
	b.WriteString("\n")
	b.WriteString(pickMetaStyle.Render(fmt.Sprintf("status: %s  captured: %d  row %d/%d", snap.Status, snap.Captured, m.cursor+1, m.page.Len())))
	b.WriteString("\n")
	for _, line := range m.lines {
		b.WriteString(pickMetaStyle.Render(line))
		b.WriteString("\n")
	}
	if m.err != nil {
		b.WriteString(severityHigh.Render("Error: " + m.err.Error()))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("up/down: move | pgup/pgdown: scroll | enter: mark anchor | esc: reset | q: quit"))
	return b.String()
}

// pickRowLabel renders a row as a single line.
func pickRowLabel(node models.RowNode) string {
	text := node.InnerText
	if c := node.Copyable; c != nil {
		body := c.Text
		if body == "" {
			var b strings.Builder
			for _, seg := range c.Segments {
				b.WriteString(seg.Text)
				b.WriteString(seg.Alt)
			}
			body = b.String()
		}
		text = c.PrePlainText + body
	}
	return truncate(strings.Join(strings.Fields(text), " "), 72)
}

var pickCmd = &cobra.Command{
	Use:   "pick",
	Short: "Pick a range interactively in a simulated conversation",
	Long: `Open a terminal view of a virtualized conversation and mark the first
and last message of a range with Enter.

Only the rows inside the viewport are rendered, as in a real chat view.
Scroll between the two anchors, or jump far away and let the engine search
for messages it never saw. The captured range is printed on exit.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config()

		var fixture *integration.Fixture
		if pickFixture != "" {
			f, err := integration.LoadFixture(pickFixture)
			if err != nil {
				return err
			}
			fixture = f
		} else {
			fixture = integration.SyntheticConversation(pickSynthetic, nil)
		}

		page := integration.NewVirtualPage(fixture.Conversation(), integration.VirtualPageOptions{
			ViewportHeight: pickViewport,
			Overscan:       integration.DefaultOverscan,
			SettleDelay:    cfg.Search.Settle,
		})
		if pickAt != "" {
			i, ok := page.IndexOf(pickAt)
			if !ok {
				return fmt.Errorf("no row with id %q", pickAt)
			}
			if err := page.Reveal(i); err != nil {
				return err
			}
		}

		source := "synthetic"
		if pickFixture != "" {
			source = pickFixture
		}
		status := make(chan core.StatusUpdate, 64)
		eng := core.NewEngine(page, core.EngineOptions{
			Capture: cfg.Capture,
			Search:  cfg.Search,
			Resolve: cfg.Resolve,
			Source:  source,
			Events:  Events,
			OnStatus: func(u core.StatusUpdate) {
				select {
				case status <- u:
				default:
				}
			},
		})

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		final, err := tea.NewProgram(newPickModel(ctx, page, eng, status), tea.WithAltScreen()).Run()
		if err != nil {
			return err
		}
		m, ok := final.(pickModel)
		if !ok || m.result == nil {
			if m.err != nil && !errors.Is(m.err, core.ErrCancelled) {
				return m.err
			}
			_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "No range captured.")
			return nil
		}
		return finishCapture(ctx, cmd.OutOrStdout(), m.result, pickFinish)
	},
}

func init() {
	pickCmd.Flags().StringVar(&pickFixture, "fixture", "", "YAML conversation fixture (default: synthetic conversation)")
	pickCmd.Flags().IntVar(&pickSynthetic, "synthetic", integration.DefaultSyntheticSize, "Number of messages in the synthetic conversation")
	pickCmd.Flags().StringVar(&pickAt, "at", "", "Row id to scroll to initially")
	pickCmd.Flags().Float64Var(&pickViewport, "viewport", integration.DefaultViewportHeight, "Viewport height in pixels")
	pickCmd.Flags().BoolVar(&pickFinish.archive, "archive", false, "Store the capture in the archive")
	pickCmd.Flags().BoolVar(&pickFinish.summarize, "summarize", false, "Archive and summarize the capture")
	pickCmd.Flags().BoolVar(&pickFinish.share, "share", false, "Archive, summarize and post the summary to Slack")
	pickCmd.Flags().BoolVar(&pickFinish.json, "json", false, "Output the result as JSON")
	rootCmd.AddCommand(pickCmd)
}

// Package tui renders the cycle status board served over SSH.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fixture-edge/internal/domain"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	recentLimit    = 25
	loadTimeout    = 5 * time.Second
	defaultRefresh = 30 * time.Second
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	partial    = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Render("partial")
	complete   = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Render("complete")
)

type SummaryReader interface {
	LastSummary(ctx context.Context) (domain.CycleSummary, bool, error)
}

type AssessmentReader interface {
	RecentAssessments(ctx context.Context, limit int) ([]domain.AssessmentRecord, error)
}

// Services are the read-only sources behind one board session. Assessments
// may be nil when persistence is disabled.
type Services struct {
	Summaries   SummaryReader
	Assessments AssessmentReader
	Username    string
	Refresh     time.Duration
}

type refreshMsg struct {
	summary domain.CycleSummary
	found   bool
	records []domain.AssessmentRecord
	err     error
}

type tickMsg time.Time

type BoardModel struct {
	svc     Services
	table   table.Model
	summary domain.CycleSummary
	found   bool
	records int
	err     error
	loaded  bool
	width   int
	height  int
}

func NewBoardModel(svc Services) *BoardModel {
	if svc.Refresh <= 0 {
		svc.Refresh = defaultRefresh
	}
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Assessed", Width: 11},
			{Title: "Match", Width: 34},
			{Title: "Pick", Width: 18},
			{Title: "Price", Width: 6},
			{Title: "EV %", Width: 7},
			{Title: "Tier", Width: 11},
		}),
		table.WithFocused(true),
		table.WithHeight(10),
	)
	return &BoardModel{svc: svc, table: t}
}

func (m *BoardModel) SetSize(width, height int) {
	m.width, m.height = width, height
	// Header, summary box and footer take roughly twelve rows.
	if h := height - 12; h > 3 {
		m.table.SetHeight(h)
	}
}

func (m *BoardModel) Init() tea.Cmd {
	return tea.Batch(m.load(), m.tick())
}

func (m *BoardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			return m, m.load()
		}
	case tea.WindowSizeMsg:
		m.SetSize(msg.Width, msg.Height)
		return m, nil
	case refreshMsg:
		m.loaded = true
		m.err = msg.err
		if msg.err == nil {
			m.summary, m.found = msg.summary, msg.found
			m.records = len(msg.records)
			m.table.SetRows(rows(msg.records))
		}
		return m, nil
	case tickMsg:
		return m, tea.Batch(m.load(), m.tick())
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *BoardModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("fixture-edge"))
	if m.svc.Username != "" {
		b.WriteString(mutedStyle.Render("  signed in as " + m.svc.Username))
	}
	b.WriteString("\n\n")

	switch {
	case !m.loaded:
		b.WriteString(mutedStyle.Render("Loading..."))
	case m.err != nil:
		b.WriteString(errStyle.Render("Error: " + m.err.Error()))
	case !m.found:
		b.WriteString(boxStyle.Render("No cycle has run yet."))
	default:
		b.WriteString(boxStyle.Render(summaryBlock(m.summary)))
	}
	b.WriteString("\n\n")

	if m.svc.Assessments == nil {
		b.WriteString(mutedStyle.Render("Persistence is disabled, no assessment history."))
	} else if m.loaded && m.records == 0 && m.err == nil {
		b.WriteString(mutedStyle.Render("No assessments yet."))
	} else {
		b.WriteString(m.table.View())
	}
	b.WriteString("\n\n")
	b.WriteString(mutedStyle.Render("r refresh • ↑/↓ scroll • q quit"))
	return b.String()
}

func (m *BoardModel) tick() tea.Cmd {
	return tea.Tick(m.svc.Refresh, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *BoardModel) load() tea.Cmd {
	svc := m.svc
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()

		var msg refreshMsg
		if svc.Summaries != nil {
			msg.summary, msg.found, msg.err = svc.Summaries.LastSummary(ctx)
			if msg.err != nil {
				return msg
			}
		}
		if svc.Assessments != nil {
			msg.records, msg.err = svc.Assessments.RecentAssessments(ctx, recentLimit)
		}
		return msg
	}
}

func summaryBlock(s domain.CycleSummary) string {
	status := complete
	if s.Partial {
		status = partial
	}
	lines := []string{
		fmt.Sprintf("Cycle %s  %s  finished %s UTC in %s", shortID(s.ID), status, s.FinishedAt.UTC().Format("02.01 15:04"), s.Duration().Round(time.Second)),
		fmt.Sprintf("Events %d   resolved %d   no match %d", s.Events, s.Resolved, s.NoMatch),
		fmt.Sprintf("Assessed %d   emitted %d   deduplicated %d", s.Assessed, s.Emitted, s.Deduplicated),
		fmt.Sprintf("External calls %d   failures %d", s.ExternalCalls, len(s.Failures)),
	}
	if kinds := failureKinds(s.Failures); kinds != "" {
		lines = append(lines, mutedStyle.Render(kinds))
	}
	return strings.Join(lines, "\n")
}

// failureKinds renders failure counts in first-seen order.
func failureKinds(failures []domain.EventFailure) string {
	counts := map[domain.Kind]int{}
	var order []domain.Kind
	for _, f := range failures {
		if counts[f.Kind] == 0 {
			order = append(order, f.Kind)
		}
		counts[f.Kind]++
	}
	parts := make([]string, 0, len(order))
	for _, k := range order {
		parts = append(parts, fmt.Sprintf("%s=%d", k, counts[k]))
	}
	return strings.Join(parts, " ")
}

func rows(records []domain.AssessmentRecord) []table.Row {
	out := make([]table.Row, 0, len(records))
	for _, r := range records {
		out = append(out, table.Row{
			r.CreatedAt.UTC().Format("02.01 15:04"),
			r.Home + " v " + r.Away,
			r.Selection,
			fmt.Sprintf("%.2f", r.Price),
			fmt.Sprintf("%+.1f", r.EVPct),
			string(r.Tier),
		})
	}
	return out
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

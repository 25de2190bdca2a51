// Package tui implements the monitor subcommand's terminal dashboard: a
// bubbletea program that renders the bot's status-snapshot stream, the
// direct replacement for the teacher's browser-based dashboard
// (internal/api) now that the bot is a single-symbol CLI tool rather than a
// multi-market scanner serving a web UI.
package tui

import (
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"perp-mm/internal/bot"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("62")).Padding(0, 1)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	valueStyle  = lipgloss.NewStyle().Bold(true)
	closeStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	okStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	staleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

// snapshotMsg wraps one bot.Snapshot as a tea.Msg.
type snapshotMsg bot.Snapshot

// Model is the bubbletea model backing the monitor subcommand.
type Model struct {
	snapshots <-chan bot.Snapshot
	latest    bot.Snapshot
	haveAny   bool
	quitting  bool
	spin      spinner.Model
}

// New constructs a monitor Model reading from the bot's snapshot stream.
func New(snapshots <-chan bot.Snapshot) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = labelStyle
	return Model{snapshots: snapshots, spin: s}
}

// Init starts the first wait for a snapshot and the waiting spinner.
func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForSnapshot(m.snapshots), m.spin.Tick)
}

func waitForSnapshot(ch <-chan bot.Snapshot) tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-ch
		if !ok {
			return nil
		}
		return snapshotMsg(snap)
	}
}

// Update handles incoming snapshots and key presses.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		}
	case snapshotMsg:
		m.latest = bot.Snapshot(msg)
		m.haveAny = true
		return m, waitForSnapshot(m.snapshots)
	case spinner.TickMsg:
		if m.haveAny {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View renders the current snapshot as a compact status panel.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.haveAny {
		return headerStyle.Render(" market maker monitor ") + "\n\n" + m.spin.View() + " waiting for first status tick...\n"
	}

	s := m.latest
	var b lipgloss.Style
	if s.CloseMode {
		b = closeStyle
	} else {
		b = okStyle
	}

	fairPrice := "not ready"
	if s.FairPriceReady {
		fairPrice = s.FairPrice.String()
	}

	bestBid := "-"
	if s.HasBid {
		bestBid = s.BestBid.String()
	}
	bestAsk := "-"
	if s.HasAsk {
		bestAsk = s.BestAsk.String()
	}

	age := time.Since(s.Timestamp).Round(time.Second)
	ageLine := labelStyle.Render("age") + "  " + valueStyle.Render(age.String())
	if age > 5*time.Second {
		ageLine = staleStyle.Render("stale status (" + age.String() + ")")
	}

	lines := []string{
		headerStyle.Render(" " + s.Symbol + " "),
		"",
		labelStyle.Render("fair price") + "   " + valueStyle.Render(fairPrice),
		labelStyle.Render("best bid")   + "    " + valueStyle.Render(bestBid),
		labelStyle.Render("best ask")   + "    " + valueStyle.Render(bestAsk),
		labelStyle.Render("position")   + "    " + valueStyle.Render(s.PositionBase.String()+" base ("+s.PositionUSD.String()+" usd)"),
		labelStyle.Render("mode")       + "        " + b.Render(modeLabel(s.CloseMode)),
		labelStyle.Render("active orders") + " " + valueStyle.Render(strconv.Itoa(s.ActiveOrders)),
		ageLine,
		"",
		labelStyle.Render("press q to quit"),
	}

	out := ""
	for _, l := range lines {
		out += l + "\n"
	}
	return out
}

func modeLabel(closeMode bool) string {
	if closeMode {
		return "CLOSE-ONLY"
	}
	return "two-sided"
}

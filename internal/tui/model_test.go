package tui

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/shopspring/decimal"

	"perp-mm/internal/bot"
)

func TestUpdateAppliesSnapshotAndRequeuesWait(t *testing.T) {
	t.Parallel()
	ch := make(chan bot.Snapshot, 1)
	m := New(ch)

	snap := bot.Snapshot{Symbol: "BTC-PERP", FairPriceReady: true, FairPrice: decimal.NewFromInt(100)}
	next, cmd := m.Update(snapshotMsg(snap))

	updated := next.(Model)
	if !updated.haveAny {
		t.Fatal("expected haveAny to be true after first snapshot")
	}
	if updated.latest.Symbol != "BTC-PERP" {
		t.Errorf("latest.Symbol = %q, want BTC-PERP", updated.latest.Symbol)
	}
	if cmd == nil {
		t.Error("expected a follow-up wait command after applying a snapshot")
	}
}

func TestUpdateQuitsOnQKey(t *testing.T) {
	t.Parallel()
	m := New(make(chan bot.Snapshot))

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})

	updated := next.(Model)
	if !updated.quitting {
		t.Error("expected quitting to be true after 'q'")
	}
	if cmd == nil {
		t.Error("expected tea.Quit command")
	}
}

func TestViewBeforeFirstSnapshotShowsWaitingMessage(t *testing.T) {
	t.Parallel()
	m := New(make(chan bot.Snapshot))

	view := m.View()
	if view == "" {
		t.Error("expected a non-empty waiting view")
	}
}

func TestViewAfterQuittingIsEmpty(t *testing.T) {
	t.Parallel()
	m := New(make(chan bot.Snapshot))
	m.quitting = true

	if view := m.View(); view != "" {
		t.Errorf("View() = %q, want empty string once quitting", view)
	}
}

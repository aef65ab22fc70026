package statsui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/verte-zerg/lovefit/internal/model"
)

type fakeStore struct {
	runs      []model.RunAggregate
	choices   map[string][]model.RunChoice
	err       error
	lastCfg   model.HistoryConfig
	choiceHit int
}

func (f *fakeStore) ListRuns(_ context.Context, cfg model.HistoryConfig) ([]model.RunAggregate, error) {
	f.lastCfg = cfg
	if f.err != nil {
		return nil, f.err
	}
	return f.runs, nil
}

func (f *fakeStore) ListRunChoices(_ context.Context, runID string) ([]model.RunChoice, error) {
	f.choiceHit++
	return f.choices[runID], nil
}

func sampleStore() *fakeStore {
	base := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	return &fakeStore{
		runs: []model.RunAggregate{
			{ID: "old", EndedAt: base, Mode: "auto", ElapsedSeconds: 600, FinalIndex: 3, HRAvg: 120, Choices: 1},
			{ID: "new", EndedAt: base.Add(24 * time.Hour), Mode: "chapter-gate", ElapsedSeconds: 1800, FinalIndex: 9, ReachedFinale: true, Choices: 2},
		},
		choices: map[string][]model.RunChoice{
			"new": {
				{SegmentID: "crossroads", SegmentIndex: 4, Option: "Take the river path", ElapsedSeconds: 420},
				{SegmentID: "finale", SegmentIndex: 9, Option: "Finish", ElapsedSeconds: 1800},
			},
		},
	}
}

func sized(m *Model) *Model {
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return m
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "right":
		return tea.KeyMsg{Type: tea.KeyRight}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestNewModelListsRunsNewestFirst(t *testing.T) {
	m := sized(NewModel(sampleStore(), model.HistoryConfig{}, 0))
	if m.window != defaultWindow {
		t.Fatalf("expected default window, got %d", m.window)
	}
	run, ok := m.SelectedRun()
	if !ok || run.ID != "new" {
		t.Fatalf("expected newest run selected, got %+v", run)
	}
	view := m.View()
	if !strings.Contains(view, "Runs") || !strings.Contains(view, "Finished") {
		t.Fatalf("overview missing summary cards: %s", view)
	}
}

func TestEnterShowsChoicesOfSelectedRun(t *testing.T) {
	st := sampleStore()
	m := sized(NewModel(st, model.HistoryConfig{}, 5))
	m.Update(key("right"))
	if m.activeTab != tabRuns {
		t.Fatalf("expected runs tab, got %d", m.activeTab)
	}
	m.Update(key("enter"))
	if m.activeTab != tabChoices {
		t.Fatalf("expected choices tab, got %d", m.activeTab)
	}
	view := m.View()
	if !strings.Contains(view, "Take the river path") || !strings.Contains(view, "reached the finale") {
		t.Fatalf("choices view missing run details: %s", view)
	}

	// Choices are cached per run.
	m.moveTab(-1)
	m.moveTab(1)
	if st.choiceHit != 1 {
		t.Fatalf("expected one choices query, got %d", st.choiceHit)
	}
}

func TestChoicesFollowTableCursor(t *testing.T) {
	m := sized(NewModel(sampleStore(), model.HistoryConfig{}, 5))
	m.Update(key("right"))
	m.Update(key("down"))
	run, _ := m.SelectedRun()
	if run.ID != "old" {
		t.Fatalf("expected cursor on older run, got %s", run.ID)
	}
	m.Update(key("enter"))
	if view := m.View(); !strings.Contains(view, "No choices recorded.") {
		t.Fatalf("expected empty choices for old run: %s", view)
	}
}

func TestWindowKeys(t *testing.T) {
	m := sized(NewModel(sampleStore(), model.HistoryConfig{}, 5))
	m.Update(key("="))
	if m.window != 10 {
		t.Fatalf("expected window 10, got %d", m.window)
	}
	m.Update(key("-"))
	m.Update(key("-"))
	if m.window != 1 {
		t.Fatalf("expected window 1, got %d", m.window)
	}
}

func TestFilterAppliesHistoryConfig(t *testing.T) {
	st := sampleStore()
	m := sized(NewModel(st, model.HistoryConfig{}, 5))
	m.Update(key("/"))
	if !m.filterMode {
		t.Fatalf("expected filter mode")
	}
	m.filterInputs[0].SetValue("auto")
	m.filterInputs[2].SetValue("3")
	m.Update(key("enter"))
	if m.filterMode {
		t.Fatalf("expected filter mode to close, error %q", m.filterError)
	}
	if st.lastCfg.Mode != "auto" || st.lastCfg.Last != 3 {
		t.Fatalf("unexpected config passed to store: %+v", st.lastCfg)
	}
}

func TestFilterRejectsBadInput(t *testing.T) {
	tests := []struct {
		field int
		value string
	}{
		{0, "sideways"},
		{1, "03/01/2026"},
		{2, "-1"},
		{3, "0"},
	}
	for _, tt := range tests {
		m := sized(NewModel(sampleStore(), model.HistoryConfig{}, 5))
		m.Update(key("/"))
		m.filterInputs[tt.field].SetValue(tt.value)
		m.Update(key("enter"))
		if !m.filterMode || m.filterError == "" {
			t.Fatalf("expected error for field %d value %q", tt.field, tt.value)
		}
		m.Update(key("esc"))
		if m.filterMode {
			t.Fatalf("esc should close the filter form")
		}
	}
}

func TestLoadErrorShownInFooter(t *testing.T) {
	st := &fakeStore{err: errors.New("db locked")}
	m := sized(NewModel(st, model.HistoryConfig{}, 5))
	if view := m.View(); !strings.Contains(view, "db locked") {
		t.Fatalf("expected error in footer: %s", view)
	}
	if _, ok := m.SelectedRun(); ok {
		t.Fatalf("expected no selected run")
	}
}

func TestQuitKey(t *testing.T) {
	m := NewModel(sampleStore(), model.HistoryConfig{}, 5)
	_, cmd := m.Update(key("q"))
	if cmd == nil {
		t.Fatalf("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("expected quit message")
	}
}

func TestWindowSteps(t *testing.T) {
	if nextWindow(1) != 5 || nextWindow(5) != 10 || nextWindow(7) != 10 {
		t.Fatalf("unexpected next window steps")
	}
	if prevWindow(5) != 1 || prevWindow(10) != 5 || prevWindow(7) != 5 {
		t.Fatalf("unexpected prev window steps")
	}
}

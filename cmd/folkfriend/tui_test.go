package main

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/hwellmann/folkfriend/engine"
	"github.com/hwellmann/folkfriend/gate"
)

func TestTUIQuitReturnsQuit(t *testing.T) {
	m := newTUIModel(nil, time.Second, 10)

	model, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	tm, ok := model.(tuiModel)
	if !ok {
		t.Fatalf("unexpected model type %T", model)
	}
	if !tm.quitting {
		t.Fatalf("quitting flag not set")
	}
	if cmd == nil {
		t.Fatalf("expected tea.Quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("expected QuitMsg")
	}
	if tm.View() != "" {
		t.Errorf("view should be empty after quitting")
	}
}

func TestTUITabSwitchesMode(t *testing.T) {
	m := newTUIModel(nil, time.Second, 10)

	model, _ := m.Update(tea.KeyMsg{Type: tea.KeyTab})
	tm := model.(tuiModel)
	if tm.mode != modeTranscription {
		t.Fatalf("mode = %s, want contour", tm.mode)
	}

	model, _ = tm.Update(tea.KeyMsg{Type: tea.KeyTab})
	if model.(tuiModel).mode != modeName {
		t.Fatalf("mode should switch back to name")
	}
}

func TestTUIEnterIgnoresEmptyInput(t *testing.T) {
	m := newTUIModel(nil, time.Second, 10)

	model, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd != nil {
		t.Errorf("expected no command for empty input")
	}
	if model.(tuiModel).busy {
		t.Errorf("empty input should not start a search")
	}
}

func TestTUISearchRoundTrip(t *testing.T) {
	p := newTestProxy(t, true)
	m := newTUIModel(p, 2*time.Second, 10)
	m.input.SetValue("maggie")

	model, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	tm := model.(tuiModel)
	if !tm.busy || cmd == nil {
		t.Fatalf("enter should start a search (busy=%v)", tm.busy)
	}
	if !strings.Contains(tm.View(), "searching") {
		t.Errorf("view should show progress, got %q", tm.View())
	}

	msg := tm.search(modeName, "maggie")()
	res, ok := msg.(resultsMsg)
	if !ok {
		t.Fatalf("unexpected message %T", msg)
	}
	if res.err != nil {
		t.Fatalf("search: %v", res.err)
	}

	model, _ = tm.Update(res)
	tm = model.(tuiModel)
	if tm.busy {
		t.Errorf("busy should clear when results arrive")
	}
	if !strings.Contains(tm.View(), "Drowsy Maggie") {
		t.Errorf("view should list results, got %q", tm.View())
	}
}

func TestTUIVersionMessage(t *testing.T) {
	p := newTestProxy(t, false)
	m := newTUIModel(p, 2*time.Second, 10)

	if !strings.Contains(m.View(), "loading engine") {
		t.Errorf("view should show loading state, got %q", m.View())
	}

	msg := m.fetchVersion()()
	model, _ := m.Update(msg)
	tm := model.(tuiModel)
	if !strings.HasPrefix(tm.version, "native-") {
		t.Fatalf("version = %q", tm.version)
	}
	if !strings.Contains(tm.View(), "engine native-") {
		t.Errorf("view should show version, got %q", tm.View())
	}
}

func TestTUIShowsErrors(t *testing.T) {
	m := newTUIModel(nil, time.Second, 10)
	m.busy = true
	m.query = "kesh"

	model, _ := m.Update(resultsMsg{mode: modeName, query: "kesh", err: errors.New("engine gone")})
	tm := model.(tuiModel)
	if !strings.Contains(tm.View(), "engine gone") {
		t.Errorf("view should show the error, got %q", tm.View())
	}

	model, _ = tm.Update(resultsMsg{mode: modeName, query: "kesh", results: engine.ResultSet{}})
	if !strings.Contains(model.(tuiModel).View(), "no matches") {
		t.Errorf("view should show empty results")
	}
}

func TestTUIEngineFailureStopsSpinner(t *testing.T) {
	m := newTUIModel(nil, time.Second, 10)

	model, _ := m.Update(versionMsg{err: gate.ErrEngineFailed})
	tm := model.(tuiModel)

	view := tm.View()
	if !strings.Contains(view, "engine failed") {
		t.Errorf("view should report the failed engine, got %q", view)
	}
	if strings.Contains(view, "loading engine") {
		t.Errorf("view should not claim the engine is still loading, got %q", view)
	}

	tick, ok := tm.spinner.Tick().(spinner.TickMsg)
	if !ok {
		t.Fatalf("unexpected tick message type")
	}
	if _, cmd := tm.Update(tick); cmd != nil {
		t.Errorf("spinner should stop once the engine has failed")
	}
}

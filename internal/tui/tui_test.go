package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/aristath/seqflow/internal/events"
	"github.com/aristath/seqflow/internal/scheduler"
)

func feed(t *testing.T, m Model, msgs ...tea.Msg) Model {
	t.Helper()
	for _, msg := range msgs {
		next, _ := m.Update(msg)
		m = next.(Model)
	}
	return m
}

func TestModel_TracksTaskLifecycle(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Close()
	now := time.Now()

	m := feed(t, New(bus),
		tea.WindowSizeMsg{Width: 120, Height: 40},
		events.TaskStartedEvent{ID: "align:s1", Rule: "align", Command: "STAR --runThreadN 8", LogPath: "logs/align_s1.log", Timestamp: now},
		events.TaskStartedEvent{ID: "fastqc:s1", Rule: "fastqc", Timestamp: now},
		events.TaskRetryingEvent{ID: "align:s1", Attempt: 2, Delay: time.Second, Err: errors.New("exit status 1"), Timestamp: now},
		events.TaskFailedEvent{ID: "align:s1", Err: errors.New("task align:s1 exited with status 1"), Timestamp: now},
		events.TaskBlockedEvent{ID: "index:s1", BlockedBy: "align:s1", Timestamp: now},
		events.TaskCompletedEvent{ID: "fastqc:s1", Duration: 2 * time.Second, Timestamp: now},
		events.TaskUpToDateEvent{ID: "umi_extract:s1", Timestamp: now},
	)

	want := map[string]scheduler.State{
		"align:s1":       scheduler.StateFailed,
		"fastqc:s1":      scheduler.StateSucceeded,
		"index:s1":       scheduler.StateBlocked,
		"umi_extract:s1": scheduler.StateUpToDate,
	}
	for key, st := range want {
		if got := m.taskPane.tasks[key].State; got != st {
			t.Errorf("%s state = %s, want %s", key, got, st)
		}
	}

	sel, ok := m.taskPane.Selected()
	if !ok || sel.Key != "align:s1" {
		t.Fatalf("Selected() = %q, want the first task", sel.Key)
	}
	detail := strings.Join(sel.Lines, "\n")
	for _, s := range []string{"$ STAR --runThreadN 8", "attempt 2 in 1s", "failed: task align:s1 exited with status 1"} {
		if !strings.Contains(detail, s) {
			t.Errorf("detail missing %q:\n%s", s, detail)
		}
	}

	if !strings.Contains(m.View(), "align:s1") {
		t.Error("View() does not list align:s1")
	}
}

func TestModel_KeysMoveSelection(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Close()

	m := feed(t, New(bus),
		tea.WindowSizeMsg{Width: 100, Height: 30},
		events.TaskStartedEvent{ID: "a"},
		events.TaskStartedEvent{ID: "b"},
		events.TaskFailedEvent{ID: "b", Err: errors.New("boom")},
		events.TaskStartedEvent{ID: "c"},
	)

	m = feed(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("j")})
	if sel, _ := m.taskPane.Selected(); sel.Key != "b" {
		t.Errorf("after j selected %q, want b", sel.Key)
	}
	m = feed(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("j")}, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("f")})
	if sel, _ := m.taskPane.Selected(); sel.Key != "b" {
		t.Errorf("after f selected %q, want the failed task b", sel.Key)
	}

	m = feed(t, m, tea.KeyMsg{Type: tea.KeyTab})
	if m.focusedPane != PaneProgress {
		t.Errorf("focused pane = %d after tab, want progress", m.focusedPane)
	}
	m = feed(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("k")})
	if sel, _ := m.taskPane.Selected(); sel.Key != "b" {
		t.Error("keys reached the task pane while it was unfocused")
	}
}

func TestModel_ProgressAndFinish(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Close()

	m := feed(t, New(bus),
		tea.WindowSizeMsg{Width: 120, Height: 40},
		events.DAGProgressEvent{Total: 4, Succeeded: 2, UpToDate: 1, Failed: 1},
		events.RunFinishedEvent{RunID: "r", Success: false, Duration: 3 * time.Second},
	)

	if !m.dagPane.Finished() {
		t.Fatal("Finished() = false after RunFinishedEvent")
	}
	view := m.View()
	for _, s := range []string{"4/4", "run failed", "in 3s"} {
		if !strings.Contains(view, s) {
			t.Errorf("View() missing %q", s)
		}
	}
}

func TestModel_Quit(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Close()

	next, cmd := New(bus).Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if !next.(Model).quitting || cmd == nil {
		t.Error("q did not quit")
	}
}

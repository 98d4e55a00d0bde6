package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/seqflow/internal/events"
	"github.com/aristath/seqflow/internal/scheduler"
)

const listWidth = 28

// TaskState is what the pane knows about one task.
type TaskState struct {
	Key      string
	Rule     string
	State    scheduler.State
	Lines    []string
	Start    time.Time
	Duration time.Duration
}

// TaskPaneModel is the task list plus a scrollable detail viewport.
type TaskPaneModel struct {
	tasks       map[string]*TaskState
	order       []string // first-seen order
	selectedIdx int
	viewport    viewport.Model
	width       int
	height      int
	focused     bool
}

// NewTaskPaneModel creates an empty task pane.
func NewTaskPaneModel() TaskPaneModel {
	return TaskPaneModel{
		tasks:    make(map[string]*TaskState),
		viewport: viewport.New(0, 0),
	}
}

// task returns the state for key, adding it to the list on first sight.
func (m *TaskPaneModel) task(key string) *TaskState {
	if t, ok := m.tasks[key]; ok {
		return t
	}
	t := &TaskState{Key: key}
	m.tasks[key] = t
	m.order = append(m.order, key)
	return t
}

// Update handles messages for the task pane.
func (m TaskPaneModel) Update(msg tea.Msg) (TaskPaneModel, tea.Cmd) {
	var cmd tea.Cmd
	var touched string

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if !m.focused {
			break
		}
		switch msg.String() {
		case KeyJ, KeyDown:
			if m.selectedIdx < len(m.order)-1 {
				m.selectedIdx++
				m.updateViewportContent()
			}
		case KeyK, KeyUp:
			if m.selectedIdx > 0 {
				m.selectedIdx--
				m.updateViewportContent()
			}
		case KeyFailed:
			m.selectNextFailure()
		default:
			m.viewport, cmd = m.viewport.Update(msg)
		}

	case events.TaskStartedEvent:
		t := m.task(msg.ID)
		t.Rule = msg.Rule
		t.State = scheduler.StateRunning
		t.Start = msg.Timestamp
		t.Lines = append(t.Lines,
			fmt.Sprintf("[%s] started", msg.Timestamp.Format(time.TimeOnly)),
			"  $ "+msg.Command,
			"  log: "+msg.LogPath)
		touched = msg.ID

	case events.TaskRetryingEvent:
		t := m.task(msg.ID)
		t.Lines = append(t.Lines, fmt.Sprintf("[%s] attempt failed (%v), attempt %d in %s",
			msg.Timestamp.Format(time.TimeOnly), msg.Err, msg.Attempt, msg.Delay.Round(time.Millisecond)))
		touched = msg.ID

	case events.TaskCompletedEvent:
		t := m.task(msg.ID)
		t.State = scheduler.StateSucceeded
		t.Duration = msg.Duration
		t.Lines = append(t.Lines, fmt.Sprintf("[%s] succeeded in %s", msg.Timestamp.Format(time.TimeOnly), msg.Duration.Round(time.Millisecond)))
		touched = msg.ID

	case events.TaskFailedEvent:
		t := m.task(msg.ID)
		t.State = scheduler.StateFailed
		t.Duration = msg.Duration
		t.Lines = append(t.Lines, fmt.Sprintf("[%s] failed: %v", msg.Timestamp.Format(time.TimeOnly), msg.Err))
		touched = msg.ID

	case events.TaskBlockedEvent:
		t := m.task(msg.ID)
		t.State = scheduler.StateBlocked
		t.Lines = append(t.Lines, "blocked by "+msg.BlockedBy)
		touched = msg.ID

	case events.TaskUpToDateEvent:
		t := m.task(msg.ID)
		t.State = scheduler.StateUpToDate
		t.Lines = append(t.Lines, "outputs are up to date")
		touched = msg.ID
	}

	if touched != "" && (touched == m.selectedKey() || len(m.order) == 1) {
		m.updateViewportContent()
	}
	return m, cmd
}

// View renders the task pane.
func (m TaskPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	detailWidth := m.width - listWidth - 4
	content := lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.renderList(),
		lipgloss.NewStyle().
			Width(detailWidth).
			Height(m.height-2).
			Render(m.viewport.View()),
	)

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}
	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(content)
}

func (m TaskPaneModel) renderList() string {
	var b strings.Builder

	title := StyleTitle.Render("Tasks")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", min(listWidth, lipgloss.Width(title))))
	b.WriteString("\n\n")

	if len(m.order) == 0 {
		b.WriteString(StyleStatusPending.Render("Waiting..."))
	}

	// Keep the selection visible when the list is taller than the pane.
	rows := max(1, m.height-6)
	first := 0
	if m.selectedIdx >= rows {
		first = m.selectedIdx - rows + 1
	}
	for i := first; i < len(m.order) && i < first+rows; i++ {
		t := m.tasks[m.order[i]]
		name := t.Key
		if len(name) > listWidth-4 {
			name = name[:listWidth-7] + "..."
		}
		line := fmt.Sprintf("%s %s", StatusIcon(t.State), name)
		if i == m.selectedIdx {
			line = StyleSelected.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	return lipgloss.NewStyle().
		Width(listWidth).
		Height(m.height - 2).
		Render(b.String())
}

func (m TaskPaneModel) selectedKey() string {
	if m.selectedIdx >= 0 && m.selectedIdx < len(m.order) {
		return m.order[m.selectedIdx]
	}
	return ""
}

// selectNextFailure moves the selection to the next failed task, wrapping.
func (m *TaskPaneModel) selectNextFailure() {
	n := len(m.order)
	for step := 1; step <= n; step++ {
		i := (m.selectedIdx + step) % n
		if m.tasks[m.order[i]].State == scheduler.StateFailed {
			m.selectedIdx = i
			m.updateViewportContent()
			return
		}
	}
}

func (m *TaskPaneModel) updateViewportContent() {
	key := m.selectedKey()
	t, ok := m.tasks[key]
	if !ok {
		m.viewport.SetContent("Waiting for tasks...")
		return
	}

	header := fmt.Sprintf("%s  %s", t.Key, t.State)
	if t.Duration > 0 {
		header += "  " + t.Duration.Round(time.Millisecond).String()
	}
	m.viewport.SetContent(header + "\n\n" + strings.Join(t.Lines, "\n"))
	m.viewport.GotoBottom()
}

// SetSize updates the pane dimensions.
func (m *TaskPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.viewport.Width = max(10, w-listWidth-4)
	m.viewport.Height = max(5, h-4)
	m.updateViewportContent()
}

// SetFocused updates the focus state.
func (m *TaskPaneModel) SetFocused(focused bool) {
	m.focused = focused
}

// Selected returns the selected task, if any.
func (m TaskPaneModel) Selected() (TaskState, bool) {
	t, ok := m.tasks[m.selectedKey()]
	if !ok {
		return TaskState{}, false
	}
	return *t, true
}

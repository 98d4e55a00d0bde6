package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/seqflow/internal/events"
)

// DAGPaneModel shows run-wide progress.
type DAGPaneModel struct {
	progress events.DAGProgressEvent
	finished *events.RunFinishedEvent
	width    int
	height   int
	focused  bool
}

// NewDAGPaneModel creates a new DAG pane model.
func NewDAGPaneModel() DAGPaneModel {
	return DAGPaneModel{}
}

// Update handles messages for the DAG pane.
func (m DAGPaneModel) Update(msg tea.Msg) (DAGPaneModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case events.DAGProgressEvent:
		m.progress = msg

	case events.RunFinishedEvent:
		m.finished = &msg
	}

	return m, nil
}

// View renders the DAG pane.
func (m DAGPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder
	p := m.progress

	title := StyleTitle.Render("Run Progress")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", lipgloss.Width(title)))
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "Total:      %d\n", p.Total)
	fmt.Fprintf(&b, "Succeeded:  %s\n", StyleStatusComplete.Render(fmt.Sprint(p.Succeeded)))
	fmt.Fprintf(&b, "Up to date: %s\n", StyleStatusUpToDate.Render(fmt.Sprint(p.UpToDate)))
	fmt.Fprintf(&b, "Running:    %s\n", StyleStatusRunning.Render(fmt.Sprint(p.Running)))
	fmt.Fprintf(&b, "Failed:     %s\n", StyleStatusFailed.Render(fmt.Sprint(p.Failed)))
	fmt.Fprintf(&b, "Blocked:    %s\n", StyleStatusBlocked.Render(fmt.Sprint(p.Blocked)))
	fmt.Fprintf(&b, "Pending:    %s\n", StyleStatusPending.Render(fmt.Sprint(p.Pending)))
	b.WriteString("\n")

	if p.Total > 0 {
		barWidth := max(0, min(m.width-12, 40))
		ok := ((p.Succeeded + p.UpToDate) * barWidth) / p.Total
		bad := ((p.Failed + p.Blocked) * barWidth) / p.Total
		running := (p.Running * barWidth) / p.Total
		rest := max(0, barWidth-ok-bad-running)

		bar := StyleStatusComplete.Render(strings.Repeat("=", ok))
		bar += StyleStatusFailed.Render(strings.Repeat("!", bad))
		bar += StyleStatusRunning.Render(strings.Repeat("-", running))
		bar += StyleStatusPending.Render(strings.Repeat(".", rest))
		fmt.Fprintf(&b, "[%s]  %d/%d\n", bar, p.Done(), p.Total)
	}

	if f := m.finished; f != nil {
		b.WriteString("\n")
		status := StyleStatusComplete.Render("run succeeded")
		if !f.Success {
			status = StyleStatusFailed.Render("run failed")
		}
		fmt.Fprintf(&b, "%s in %s, press q to exit\n", status, f.Duration.Round(time.Millisecond))
	}

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}
	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(b.String())
}

// SetSize updates the pane dimensions.
func (m *DAGPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// SetFocused updates the focus state.
func (m *DAGPaneModel) SetFocused(focused bool) {
	m.focused = focused
}

// Finished reports whether the run-finished event has arrived.
func (m DAGPaneModel) Finished() bool {
	return m.finished != nil
}

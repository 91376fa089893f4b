package cli

import (
	"context"
	"fmt"
	"time"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"

	"github.com/wujekbizon/wolfmed-progress/internal/client"
)

const pollInterval = 250 * time.Millisecond

// Theme holds the color scheme for the progress display.
type Theme struct {
	Status  lipgloss.Color
	Success lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Status:  lipgloss.Color("#5FAFD7"), // light blue
	Success: lipgloss.Color("#00D787"), // green
	Error:   lipgloss.Color("#FF005F"), // red
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
}

// Style functions for dynamic theming
func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// tickMsg triggers polling the listener state
type tickMsg time.Time

// progressModel is the bubbletea model for job progress.
type progressModel struct {
	listener *client.Listener
	jobID    string
	state    client.State
	progress progress.Model
	theme    Theme
	done     bool
	quitting bool
	err      error
}

// newProgressModel creates a new progress model.
func newProgressModel(l *client.Listener, jobID string) progressModel {
	// Create progress bar with color blend
	prog := progress.New(
		progress.WithDefaultBlend(),
		progress.WithWidth(40),
	)

	return progressModel{
		listener: l,
		jobID:    jobID,
		state:    l.State(),
		progress: prog,
		theme:    defaultTheme,
	}
}

// Init returns the initial command (start polling).
func (m progressModel) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		m.progress.Init(),
	)
}

// Update handles messages and returns the updated model.
func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case tickMsg:
		m.state = m.listener.State()

		if m.state.IsComplete {
			m.done = true
			if m.state.Err != "" {
				m.err = fmt.Errorf("%s", m.state.Err)
			}
			return m, tea.Quit
		}

		// Continue polling for running jobs
		return m, tickCmd()

	case progress.FrameMsg:
		// Update progress bar animation
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the progress display.
func (m progressModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

// renderContent builds the display string.
func (m progressModel) renderContent() string {
	if m.done {
		return m.finalView()
	}

	st := m.state
	if st.Stage == "" {
		return m.theme.hintStyle().Render("Waiting for job to start...") + "\n"
	}

	// Progress is already a percentage; Total is an optional item count.
	pct := float64(st.Progress) / 100

	// Stage line with color
	stage := m.theme.statusStyle().Render(fmt.Sprintf("[%s]", st.Stage))

	// Progress bar with percentage
	progressBar := m.progress.ViewAs(pct)
	counts := fmt.Sprintf("%d%%", st.Progress)
	if st.Total > 0 {
		counts += fmt.Sprintf(" of %d items", st.Total)
	}
	if st.Tool != "" {
		counts += " " + m.theme.hintStyle().Render("("+st.Tool+")")
	}

	out := fmt.Sprintf("%s %s %s\n%s\n", stage, progressBar, counts, st.Message)

	if verbose {
		for _, entry := range tailLogs(st.Logs, 5) {
			out += m.theme.hintStyle().Render(fmt.Sprintf("  %s: %s", entry.Level, entry.Message)) + "\n"
		}
	}

	hint := m.theme.hintStyle().Render("Press Ctrl+C to stop watching (the job keeps running)")
	return out + hint + "\n"
}

// finalView renders the completion message.
func (m progressModel) finalView() string {
	if m.quitting {
		msg := fmt.Sprintf("\nJob %s continues in background.\nUse 'progress watch %s' to reattach.\n",
			m.jobID, m.jobID)
		return m.theme.hintStyle().Render(msg)
	}

	if m.err != nil {
		return m.theme.errorStyle().Render(fmt.Sprintf("\n✗ Job failed: %s\n", m.err))
	}

	return m.theme.completedStyle().Render("✓ Completed") + "\n"
}

// tailLogs returns the last n entries.
func tailLogs(logs []client.LogEntry, n int) []client.LogEntry {
	if len(logs) <= n {
		return logs
	}
	return logs[len(logs)-n:]
}

// tickCmd returns a command that sends a tick after the poll interval.
func tickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// runJobProgress runs the interactive progress UI for a job.
// Returns nil on success or Ctrl+C (detach), error on job failure.
func runJobProgress(ctx context.Context, l *client.Listener, jobID string) error {
	model := newProgressModel(l, jobID)
	p := tea.NewProgram(model, tea.WithContext(ctx))

	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("progress UI error: %w", err)
	}

	// Check final state
	if m, ok := finalModel.(progressModel); ok {
		// If the user quit with Ctrl+C the job continues server-side
		if m.quitting {
			return nil
		}
		if m.err != nil {
			return m.err
		}
	}

	return nil
}

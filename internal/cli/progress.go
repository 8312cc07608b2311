package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

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

// ProgressFunc reports that done of total items are finished.
type ProgressFunc func(done, total int)

// Task runs work that reports progress and returns a printable summary.
type Task func(ctx context.Context, onProgress ProgressFunc) (summary string, err error)

// progressMsg carries a progress update from the running task.
type progressMsg struct {
	done, total int
}

// finishedMsg carries the task outcome.
type finishedMsg struct {
	summary string
	err     error
}

// progressModel is the bubbletea model for a running task.
type progressModel struct {
	label    string
	unit     string
	cancel   context.CancelFunc
	progress progress.Model
	theme    Theme

	done, total int
	summary     string
	finished    bool
	quitting    bool
	err         error
}

func newProgressModel(label, unit string, cancel context.CancelFunc) progressModel {
	return progressModel{
		label:    label,
		unit:     unit,
		cancel:   cancel,
		progress: progress.New(progress.WithDefaultBlend(), progress.WithWidth(40)),
		theme:    defaultTheme,
	}
}

// Init returns the initial command.
func (m progressModel) Init() tea.Cmd {
	return m.progress.Init()
}

// Update handles messages and returns the updated model.
func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			m.cancel()
			return m, tea.Quit
		}

	case progressMsg:
		m.done, m.total = msg.done, msg.total
		return m, nil

	case finishedMsg:
		m.finished = true
		m.summary = msg.summary
		m.err = msg.err
		return m, tea.Quit

	case progress.FrameMsg:
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

func (m progressModel) renderContent() string {
	if m.finished || m.quitting {
		return m.finalView()
	}

	var pct float64
	if m.total > 0 {
		pct = float64(m.done) / float64(m.total)
	}

	status := m.theme.statusStyle().Render(fmt.Sprintf("[%s]", m.label))
	counts := fmt.Sprintf("%d/%d %s", m.done, m.total, m.unit)
	hint := m.theme.hintStyle().Render("Press Ctrl+C to stop")

	return fmt.Sprintf("%s %s %s\n%s\n", status, m.progress.ViewAs(pct), counts, hint)
}

func (m progressModel) finalView() string {
	if m.quitting {
		return m.theme.hintStyle().Render(fmt.Sprintf("\n%s stopped after %d/%d %s.\n", m.label, m.done, m.total, m.unit))
	}
	if m.err != nil {
		return m.theme.errorStyle().Render(fmt.Sprintf("\n✗ %s failed: %s\n", m.label, m.err))
	}
	return m.theme.completedStyle().Render("✓ Completed") + "\n\n" + m.summary
}

// RunWithProgress runs task and shows its progress. On a terminal it renders a
// progress bar; otherwise it prints one line per update to out.
func RunWithProgress(ctx context.Context, out io.Writer, label, unit string, task Task) error {
	if f, ok := out.(*os.File); !ok || !term.IsTerminal(int(f.Fd())) {
		return runPlain(ctx, out, label, unit, task)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newProgressModel(label, unit, cancel), tea.WithOutput(out))
	go func() {
		summary, err := task(ctx, func(done, total int) {
			p.Send(progressMsg{done: done, total: total})
		})
		p.Send(finishedMsg{summary: summary, err: err})
	}()

	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("progress UI error: %w", err)
	}

	if m, ok := finalModel.(progressModel); ok {
		if m.quitting {
			return context.Canceled
		}
		return m.err
	}
	return nil
}

func runPlain(ctx context.Context, out io.Writer, label, unit string, task Task) error {
	summary, err := task(ctx, func(done, total int) {
		fmt.Fprintf(out, "%s: %d/%d %s\n", label, done, total, unit)
	})
	if err != nil {
		return err
	}
	fmt.Fprint(out, summary)
	return nil
}

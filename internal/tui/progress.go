package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/san-kum/fimlab/internal/viz"
)

// Work is a long computation reporting progress through onProgress.
type Work func(ctx context.Context, onProgress func(done, total int)) error

// ProgressMsg reports done of total entries in the current pass.
type ProgressMsg struct {
	Done, Total int
}

type doneMsg struct{ err error }

type tickMsg time.Time

type model struct {
	title  string
	styles viz.Styles

	done, total int
	passes      int
	started     time.Time
	now         time.Time

	finished bool
	canceled bool
	err      error
	width    int
}

func newModel(title string, theme viz.Theme) model {
	now := time.Now()
	return model{
		title:   title,
		styles:  viz.NewStyles(theme),
		started: now,
		now:     now,
		width:   40,
	}
}

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) Init() tea.Cmd { return tick() }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.canceled = true
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = max(10, msg.Width-30)
	case ProgressMsg:
		// a new pass starts when the counter wraps
		if msg.Done < m.done || m.passes == 0 {
			m.passes++
		}
		m.done, m.total = msg.Done, msg.Total
	case doneMsg:
		m.finished = true
		m.err = msg.err
		return m, tea.Quit
	case tickMsg:
		m.now = time.Time(msg)
		return m, tick()
	}
	return m, nil
}

func (m model) fraction() float64 {
	if m.total == 0 {
		return 0
	}
	return float64(m.done) / float64(m.total)
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(m.styles.Title.Render(m.title) + "\n")

	elapsed := m.now.Sub(m.started).Round(100 * time.Millisecond)
	fmt.Fprintf(&b, "%s %s %s\n",
		m.styles.ProgressBar(m.fraction(), m.width),
		m.styles.Value.Render(fmt.Sprintf("%d/%d", m.done, m.total)),
		m.styles.Label.Render(fmt.Sprintf("pass %d  %s", m.passes, elapsed)))

	switch {
	case m.err != nil:
		b.WriteString(m.styles.Bad.Render("failed: "+m.err.Error()) + "\n")
	case m.finished:
		b.WriteString(m.styles.OK.Render("done") + "\n")
	case m.canceled:
		b.WriteString(m.styles.Warn.Render("canceling") + "\n")
	default:
		b.WriteString(m.styles.Subtle.Render("q to cancel") + "\n")
	}
	return b.String()
}

// throttle forwards at most about 200 updates per pass, always including the
// last one.
func throttle(send func(ProgressMsg)) func(done, total int) {
	return func(done, total int) {
		step := max(1, total/200)
		if done%step == 0 || done == total {
			send(ProgressMsg{Done: done, Total: total})
		}
	}
}

// Run executes work while showing a progress view. Quitting the view cancels
// the context passed to work; Run still waits for work to return.
func Run(ctx context.Context, title string, theme viz.Theme, work Work, opts ...tea.ProgramOption) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newModel(title, theme), opts...)
	result := make(chan error, 1)
	go func() {
		err := work(ctx, throttle(func(m ProgressMsg) { p.Send(m) }))
		result <- err
		p.Send(doneMsg{err: err})
	}()

	final, runErr := p.Run()
	if m, ok := final.(model); ok && m.canceled {
		cancel()
	}
	workErr := <-result
	if runErr != nil {
		return fmt.Errorf("tui: %w", runErr)
	}
	return workErr
}

package downloader

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guiyumin/clipget/internal/core/i18n"
)

var (
	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	infoStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	doneStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

// Job runs one download, reporting through progress. It must return once
// ctx is cancelled.
type Job func(ctx context.Context, progress ProgressFunc) (*Result, error)

// downloadState is shared between the job goroutine and the view.
type downloadState struct {
	mu         sync.RWMutex
	current    int64
	total      int64
	speed      float64
	done       bool
	err        error
	startTime  time.Time
	endTime    time.Time
	finalSpeed float64
	result     *Result
}

func (s *downloadState) update(current, total int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = current
	s.total = total
	elapsed := time.Since(s.startTime).Seconds()
	if elapsed > 0 {
		s.speed = float64(current) / elapsed
	}
}

func (s *downloadState) finish(result *Result, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endTime = time.Now()
	elapsed := s.endTime.Sub(s.startTime).Seconds()
	if elapsed > 0 {
		s.finalSpeed = float64(s.current) / elapsed
	}
	s.result = result
	s.err = err
	s.done = true
}

func (s *downloadState) get() (current, total int64, speed float64, done bool, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, s.total, s.speed, s.done, s.err
}

func (s *downloadState) final() (elapsed time.Duration, avgSpeed float64, result *Result) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.endTime.IsZero() {
		return time.Since(s.startTime), s.speed, s.result
	}
	return s.endTime.Sub(s.startTime), s.finalSpeed, s.result
}

type tickMsg time.Time

type downloadModel struct {
	progress progress.Model
	spinner  spinner.Model
	t        *i18n.Translations

	label  string
	state  *downloadState
	cancel context.CancelFunc

	// quitting is set once the user asked to stop; the model keeps running
	// until the job has cleaned up.
	quitting bool
}

func newDownloadModel(label string, t *i18n.Translations, state *downloadState, cancel context.CancelFunc) downloadModel {
	p := progress.New(
		progress.WithDefaultGradient(),
		progress.WithWidth(50),
	)

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return downloadModel{
		progress: p,
		spinner:  s,
		t:        t,
		label:    label,
		state:    state,
		cancel:   cancel,
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m downloadModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

func (m downloadModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			m.cancel()
			return m, nil
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		progressModel, cmd := m.progress.Update(msg)
		m.progress = progressModel.(progress.Model)
		return m, cmd

	case tickMsg:
		current, total, _, done, _ := m.state.get()
		if done {
			return m, tea.Quit
		}
		cmds := []tea.Cmd{tickCmd()}
		if total > 0 {
			cmds = append(cmds, m.progress.SetPercent(float64(current)/float64(total)))
		}
		return m, tea.Batch(cmds...)
	}

	return m, nil
}

func (m downloadModel) View() string {
	current, total, speed, done, err := m.state.get()

	if done && err != nil {
		if errors.Is(err, context.Canceled) {
			return fmt.Sprintf("\n  %s %s\n\n", warnStyle.Render("■"), m.t.Download.Cancelled)
		}
		return fmt.Sprintf("\n  %s %s: %v\n\n", errStyle.Render("✗"), m.t.Download.Failed, err)
	}

	if done {
		elapsed, avgSpeed, result := m.state.final()
		location := ""
		if result != nil {
			location = result.Location
			if abs, err := filepath.Abs(location); err == nil && !strings.Contains(location, "://") {
				location = abs
			}
		}
		return fmt.Sprintf("\n  %s %s\n  %s: %s (%s)\n  %s: %s  |  %s: %s/s\n\n",
			doneStyle.Render("✓"),
			m.t.Download.Completed,
			m.t.Download.FileSaved,
			location,
			formatBytes(current),
			m.t.Download.Elapsed,
			formatDuration(elapsed),
			m.t.Download.AvgSpeed,
			formatBytes(int64(avgSpeed)),
		)
	}

	var b strings.Builder
	b.WriteString("\n")
	fmt.Fprintf(&b, "  %s %s: %s\n\n", m.spinner.View(), m.t.Download.Downloading, infoStyle.Render(m.label))
	fmt.Fprintf(&b, "  %s\n\n", m.progress.View())

	if pct, ok := Percent(current, total); ok {
		fmt.Fprintf(&b, "  %s: %d%%  |  %s/%s  |  %s: %s/s  |  %s: %s\n",
			m.t.Download.Progress,
			pct,
			formatBytes(current),
			formatBytes(total),
			m.t.Download.Speed,
			formatBytes(int64(speed)),
			m.t.Download.ETA,
			calculateETA(total-current, speed),
		)
	} else {
		fmt.Fprintf(&b, "  %s  |  %s: %s/s\n",
			formatBytes(current),
			m.t.Download.Speed,
			formatBytes(int64(speed)),
		)
	}

	b.WriteString("\n")
	if m.quitting {
		b.WriteString(helpStyle.Render("  " + m.t.Download.Cancelling))
	} else {
		b.WriteString(helpStyle.Render("  " + m.t.Download.CancelHint))
	}
	b.WriteString("\n")
	return b.String()
}

func calculateETA(remaining int64, speed float64) string {
	if speed <= 0 {
		return "??:??"
	}
	eta := time.Duration(float64(remaining)/speed) * time.Second
	return formatDuration(eta)
}

// RunProgressTUI runs job while showing a progress bar. Pressing q or
// ctrl+c cancels the job and waits for it to return.
func RunProgressTUI(ctx context.Context, label string, t *i18n.Translations, job Job) (*Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	state := &downloadState{startTime: time.Now(), total: -1}
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		result, err := job(ctx, state.update)
		state.finish(result, err)
	}()

	p := tea.NewProgram(newDownloadModel(label, t, state, cancel))
	if _, err := p.Run(); err != nil {
		cancel()
		<-finished
		return nil, err
	}

	<-finished
	_, _, result := state.final()
	_, _, _, _, err := state.get()
	return result, err
}

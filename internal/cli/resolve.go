package cli

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guiyumin/clipget/internal/core/extractor"
	"github.com/guiyumin/clipget/internal/core/i18n"
)

var (
	resolveURLStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	resolveDoneStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	resolveErrStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	resolveHintStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("248"))
)

var errResolveCancelled = errors.New("resolve cancelled")

// resolveState is shared between the resolving goroutine and the view.
type resolveState struct {
	mu   sync.RWMutex
	done bool
	err  error
	info *extractor.VideoInfo
}

func (s *resolveState) finish(info *extractor.VideoInfo, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done, s.info, s.err = true, info, err
}

func (s *resolveState) get() (bool, *extractor.VideoInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.done, s.info, s.err
}

type resolveTickMsg time.Time

type resolveModel struct {
	spinner spinner.Model
	t       *i18n.Translations
	url     string
	state   *resolveState
	cancel  context.CancelFunc
}

func resolveTick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return resolveTickMsg(t)
	})
}

func (m resolveModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, resolveTick())
}

func (m resolveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.cancel()
			return m, tea.Quit
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case resolveTickMsg:
		if done, _, _ := m.state.get(); done {
			return m, tea.Quit
		}
		return m, resolveTick()
	}
	return m, nil
}

func (m resolveModel) View() string {
	done, info, err := m.state.get()
	switch {
	case err != nil:
		return fmt.Sprintf("\n  %s %s\n\n", resolveErrStyle.Render("✗"), extractor.Describe(err, m.t))
	case done && !info.Playable():
		return fmt.Sprintf("\n  %s %s\n\n", resolveErrStyle.Render("✗"), m.t.Errors.NoMedia)
	case done:
		return fmt.Sprintf("\n  %s %s\n  %s\n\n",
			resolveDoneStyle.Render("✓"), info.Title, resolveHintStyle.Render(info.Platform.DisplayName()))
	}
	return fmt.Sprintf("\n  %s %s: %s\n\n", m.spinner.View(), m.t.Download.Resolving, resolveURLStyle.Render(m.url))
}

// resolveWithSpinner resolves url while showing a spinner. q or ctrl+c
// abandons the resolve.
func resolveWithSpinner(ctx context.Context, r *extractor.Resolver, url string, t *i18n.Translations) (*extractor.VideoInfo, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	state := &resolveState{}
	go func() {
		state.finish(r.Resolve(ctx, url))
	}()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	p := tea.NewProgram(resolveModel{spinner: s, t: t, url: url, state: state, cancel: cancel})
	if _, err := p.Run(); err != nil {
		return nil, err
	}

	done, info, err := state.get()
	if !done {
		return nil, errResolveCancelled
	}
	return info, err
}

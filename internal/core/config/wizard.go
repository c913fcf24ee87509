package config

import (
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guiyumin/clipget/internal/core/i18n"
	"github.com/guiyumin/clipget/internal/core/platform"
)

const banner = `
   ___ _ _            _
  / __| (_)_ __  __ _| |_
 | (__| | | '_ \/ _' |  _|
  \___|_|_| .__/\__, |\__|
          |_|   |___/
`

var (
	logoStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true)
	titleStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	stepStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("248"))
	selectedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true)
	unselectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	helpStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	inputStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	labelStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("248")).Width(20)
	containerStyle  = lipgloss.NewStyle().Padding(2, 4)
)

// ErrWizardCancelled is returned when the user leaves the init wizard.
var ErrWizardCancelled = errors.New("configuration cancelled")

type choice struct{ label, value string }

// wizardStep is one screen of the init wizard. Steps with options are
// pickers; a step without options edits free text.
type wizardStep struct {
	title   func(t *i18n.ConfigTranslations) (string, string)
	options func(t *i18n.Translations) []choice
	get     func(c *Config) string
	set     func(c *Config, v string)
}

var wizardSteps = []wizardStep{
	{
		title: func(t *i18n.ConfigTranslations) (string, string) { return t.Language, t.LanguageDesc },
		options: func(*i18n.Translations) []choice {
			opts := make([]choice, len(i18n.SupportedLanguages))
			for i, lang := range i18n.SupportedLanguages {
				opts[i] = choice{lang.Name, lang.Code}
			}
			return opts
		},
		get: func(c *Config) string { return c.Language },
		set: func(c *Config, v string) { c.Language = v },
	},
	{
		title: func(t *i18n.ConfigTranslations) (string, string) { return t.OutputDir, t.OutputDirDesc },
		get:   func(c *Config) string { return c.OutputDir },
		set:   func(c *Config, v string) { c.OutputDir = expandPath(strings.TrimSpace(v)) },
	},
	{
		title: func(t *i18n.ConfigTranslations) (string, string) { return t.Quality, t.QualityDesc },
		options: func(t *i18n.Translations) []choice {
			opts := []choice{{t.Config.Best, "best"}}
			for _, q := range platform.Tiers() {
				label := q.Label()
				if q == platform.DefaultQuality {
					label += " " + t.Config.Recommended
				}
				opts = append(opts, choice{label, string(q)})
			}
			return opts
		},
		get: func(c *Config) string { return c.Quality },
		set: func(c *Config, v string) { c.Quality = v },
	},
	{
		title: func(t *i18n.ConfigTranslations) (string, string) { return t.Sink, t.SinkDesc },
		options: func(t *i18n.Translations) []choice {
			return []choice{{t.Config.SinkFile, "file"}, {"WebDAV", "webdav"}, {"Amazon S3", "s3"}}
		},
		get: func(c *Config) string { return c.Storage.Sink },
		set: func(c *Config, v string) { c.Storage.Sink = v },
	},
}

type model struct {
	step      int // len(wizardSteps) is the review screen
	cursor    int
	input     string
	config    *Config
	confirmed bool
	cancelled bool
	width     int
	height    int
}

func initialModel(cfg *Config) model {
	m := model{config: cfg}
	m.load()
	return m
}

func (m *model) t() *i18n.Translations {
	return i18n.GetTranslations(m.config.Language)
}

func (m *model) reviewing() bool { return m.step == len(wizardSteps) }

func (m *model) options() []choice {
	t := m.t()
	if m.reviewing() {
		return []choice{{t.Config.YesSave, "yes"}, {t.Config.NoCancel, "no"}}
	}
	if s := wizardSteps[m.step]; s.options != nil {
		return s.options(t)
	}
	return nil
}

func (m *model) isInput() bool {
	return !m.reviewing() && wizardSteps[m.step].options == nil
}

// load positions the cursor (or fills the input) from the current config.
func (m *model) load() {
	m.cursor = 0
	if m.reviewing() {
		return
	}
	current := wizardSteps[m.step].get(m.config)
	if m.isInput() {
		m.input = current
		return
	}
	for i, opt := range m.options() {
		if opt.value == current {
			m.cursor = i
			break
		}
	}
}

// store writes the current selection back into the config.
func (m *model) store() {
	if m.reviewing() {
		return
	}
	s := wizardSteps[m.step]
	if m.isInput() {
		s.set(m.config, m.input)
		return
	}
	if opts := m.options(); m.cursor < len(opts) {
		s.set(m.config, opts[m.cursor].value)
	}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch key := msg.String(); key {
		case "ctrl+c", "esc":
			m.cancelled = true
			return m, tea.Quit

		case "left":
			if m.step > 0 {
				m.store()
				m.step--
				m.load()
			}

		case "right", "enter":
			if m.reviewing() {
				m.confirmed = m.cursor == 0
				m.cancelled = !m.confirmed
				return m, tea.Quit
			}
			m.store()
			m.step++
			m.load()

		case "up", "k", "down", "j":
			if m.isInput() {
				if len(key) == 1 {
					m.input += key
				}
				break
			}
			n := len(m.options())
			if key == "up" || key == "k" {
				m.cursor = (m.cursor + n - 1) % n
			} else {
				m.cursor = (m.cursor + 1) % n
			}

		case "backspace":
			if m.isInput() && m.input != "" {
				r := []rune(m.input)
				m.input = string(r[:len(r)-1])
			}

		default:
			if m.isInput() && msg.Type == tea.KeyRunes {
				m.input += string(msg.Runes)
			}
		}
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder
	t := m.t()

	b.WriteString(logoStyle.Render(banner))
	b.WriteString("\n\n")
	b.WriteString(stepStyle.Render(fmt.Sprintf(t.Config.StepOf, m.step+1, len(wizardSteps)+1)))
	b.WriteString("\n\n")

	title, desc := t.Config.Confirm, t.Config.ConfirmDesc
	if !m.reviewing() {
		title, desc = wizardSteps[m.step].title(&t.Config)
	}
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n")
	b.WriteString(stepStyle.Render(desc))
	b.WriteString("\n\n")

	if m.reviewing() {
		b.WriteString(m.review())
		b.WriteString("\n")
	}

	if m.isInput() {
		b.WriteString(selectedStyle.Render("> "))
		b.WriteString(inputStyle.Render(m.input))
		b.WriteString(selectedStyle.Render("█"))
		b.WriteString("\n")
	} else {
		for i, opt := range m.options() {
			if i == m.cursor {
				b.WriteString(selectedStyle.Render("> " + opt.label))
			} else {
				b.WriteString(unselectedStyle.Render("  " + opt.label))
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render(fmt.Sprintf("← %s • → %s • ↑↓ %s • enter %s • esc %s",
		t.Help.Back, t.Help.Next, t.Help.Select, t.Help.Confirm, t.Help.Quit)))

	content := containerStyle.Render(b.String())
	if m.width > 0 && m.height > 0 {
		content = lipgloss.Place(m.width, m.height, lipgloss.Left, lipgloss.Top, content)
	}
	return content
}

func (m model) review() string {
	var b strings.Builder
	t := m.t()
	for _, s := range wizardSteps {
		label, _ := s.title(&t.Config)
		value := s.get(m.config)
		if s.options != nil {
			for _, opt := range s.options(t) {
				if opt.value == value {
					value = opt.label
				}
			}
		}
		b.WriteString(labelStyle.Render(label + ":"))
		b.WriteString(selectedStyle.Render(value))
		b.WriteString("\n")
	}
	return b.String()
}

// RunInitWizard walks the user through the main settings, starting from
// the existing config or the defaults. It does not save.
func RunInitWizard() (*Config, error) {
	cfg := LoadOrDefault()

	final, err := tea.NewProgram(initialModel(cfg), tea.WithAltScreen()).Run()
	if err != nil {
		return nil, err
	}

	result := final.(model)
	if !result.confirmed {
		return nil, ErrWizardCancelled
	}
	if result.config.OutputDir == "" {
		result.config.OutputDir = DefaultDownloadDir()
	}
	return result.config, nil
}

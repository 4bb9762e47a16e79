package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/hwellmann/folkfriend/bridge"
	"github.com/hwellmann/folkfriend/engine"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Full-screen search interface",
	Long: `Start a full-screen search interface.

Queries run in the background; the interface stays responsive while the
engine loads or searches. Tab switches between name and contour search.`,
	Args: cobra.NoArgs,
	RunE: runTUI,
}

func init() {
	tuiCmd.Flags().IntP("limit", "n", 15, "Maximum number of results shown")
	rootCmd.AddCommand(tuiCmd)
}

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true).
			Padding(0, 1)

	modeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("12")).
			Padding(0, 1)
)

type searchMode int

const (
	modeName searchMode = iota
	modeTranscription
)

func (m searchMode) String() string {
	if m == modeTranscription {
		return "contour"
	}
	return "name"
}

type tuiKeyMap struct {
	Quit  key.Binding
	Mode  key.Binding
	Enter key.Binding
}

var tuiKeys = tuiKeyMap{
	Quit: key.NewBinding(
		key.WithKeys("ctrl+c", "esc"),
		key.WithHelp("esc", "quit"),
	),
	Mode: key.NewBinding(
		key.WithKeys("tab"),
		key.WithHelp("tab", "name/contour"),
	),
	Enter: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "search"),
	),
}

type versionMsg struct {
	version string
	err     error
}

type resultsMsg struct {
	mode    searchMode
	query   string
	results engine.ResultSet
	err     error
}

type tuiModel struct {
	proxy   *bridge.Proxy
	timeout time.Duration
	limit   int

	input   textinput.Model
	spinner spinner.Model
	mode    searchMode

	version   string
	engineErr error
	busy      bool
	query     string
	results   engine.ResultSet
	err       error
	quitting  bool
}

func newTUIModel(p *bridge.Proxy, timeout time.Duration, limit int) tuiModel {
	ti := textinput.New()
	ti.Placeholder = "tune name..."
	ti.Focus()
	ti.CharLimit = 200
	ti.Width = 50
	ti.Prompt = "search> "

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return tuiModel{
		proxy:   p,
		timeout: timeout,
		limit:   limit,
		input:   ti,
		spinner: sp,
	}
}

func (m tuiModel) callContext() (context.Context, context.CancelFunc) {
	if m.timeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), m.timeout)
}

// fetchVersion doubles as the readiness probe: it returns once the engine
// has loaded.
func (m tuiModel) fetchVersion() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := m.callContext()
		defer cancel()
		v, err := m.proxy.Version(ctx)
		return versionMsg{version: v, err: err}
	}
}

func (m tuiModel) search(mode searchMode, query string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := m.callContext()
		defer cancel()

		var rs engine.ResultSet
		var err error
		if mode == modeTranscription {
			rs, err = m.proxy.RunTranscriptionQuery(ctx, query)
		} else {
			rs, err = m.proxy.RunNameQuery(ctx, query)
		}
		return resultsMsg{mode: mode, query: query, results: rs, err: err}
	}
}

func (m tuiModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, m.fetchVersion())
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, tuiKeys.Quit):
			m.quitting = true
			return m, tea.Quit

		case key.Matches(msg, tuiKeys.Mode):
			if m.mode == modeName {
				m.mode = modeTranscription
				m.input.Placeholder = "contour..."
			} else {
				m.mode = modeName
				m.input.Placeholder = "tune name..."
			}
			return m, nil

		case key.Matches(msg, tuiKeys.Enter):
			query := strings.TrimSpace(m.input.Value())
			if query == "" || m.busy {
				return m, nil
			}
			m.busy = true
			m.query = query
			m.err = nil
			return m, tea.Batch(m.search(m.mode, query), m.spinner.Tick)
		}

	case versionMsg:
		if msg.err != nil {
			m.engineErr = msg.err
			m.err = fmt.Errorf("engine: %w", msg.err)
		} else {
			m.version = msg.version
		}
		return m, nil

	case resultsMsg:
		m.busy = false
		m.results = msg.results
		m.err = msg.err
		return m, nil

	case spinner.TickMsg:
		if (m.version != "" || m.engineErr != nil) && !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m tuiModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	var status string
	switch {
	case m.engineErr != nil:
		status = errStyle.Render("engine failed")
	case m.version != "":
		status = dimStyle.Render("engine " + m.version)
	default:
		status = dimStyle.Render(m.spinner.View() + " loading engine")
	}
	b.WriteString(headerStyle.Render("folkfriend") + " " + status + "\n\n")

	b.WriteString(modeStyle.Render("["+m.mode.String()+"]") + " " + m.input.View() + "\n\n")

	switch {
	case m.busy:
		b.WriteString(m.spinner.View() + " searching " + titleStyle.Render(m.query) + "\n")
	case m.err != nil:
		b.WriteString(errStyle.Render("Error: "+m.err.Error()) + "\n")
	case m.query != "":
		b.WriteString(borderStyle.Render(strings.TrimRight(renderResults(m.results, m.limit), "\n")) + "\n")
	}

	b.WriteString("\n" + dimStyle.Render("enter search · tab name/contour · esc quit"))
	return b.String()
}

func runTUI(cmd *cobra.Command, args []string) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("tui needs a terminal; use 'folkfriend repl' for piped input")
	}
	if err := requireIndex(cmd); err != nil {
		return err
	}

	p, err := connect(cmd)
	if err != nil {
		return err
	}

	timeout, _ := cmd.Flags().GetDuration("timeout")
	limit, _ := cmd.Flags().GetInt("limit")

	_, err = tea.NewProgram(newTUIModel(p, timeout, limit), tea.WithAltScreen()).Run()
	return err
}

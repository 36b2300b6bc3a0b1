package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/valter-silva-au/signal-radar/internal/core"
	"github.com/valter-silva-au/signal-radar/internal/integration"
	"github.com/valter-silva-au/signal-radar/pkg/models"
)

// What the prompt submits.
type inputPurpose int

const (
	purposeTrack inputPurpose = iota
	purposeSubscribe
)

const dashboardFeedRows = 12

type dashboardKeyMap struct {
	Submit key.Binding
	Switch key.Binding
	Retry  key.Binding
	Reset  key.Binding
	Quit   key.Binding
}

var dashboardKeys = dashboardKeyMap{
	Submit: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "submit")),
	Switch: key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "track/subscribe")),
	Retry:  key.NewBinding(key.WithKeys("ctrl+r"), key.WithHelp("ctrl+r", "retry")),
	Reset:  key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "reset")),
	Quit:   key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
}

func (k dashboardKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Submit, k.Switch, k.Retry, k.Reset, k.Quit}
}

func (k dashboardKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

// dashboardModel drives a Session from the bubbletea event loop. Session
// Cmds run as tea.Cmds and their results come back through Update, so the
// session is only ever touched from the program goroutine.
type dashboardModel struct {
	session *core.Session
	source  integration.SourceStatus
	vm      models.ViewModel

	input   textinput.Model
	purpose inputPurpose
	spinner spinner.Model
	help    help.Model

	width  int
	height int
}

// Style definitions.
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62"))

	noticePausedStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("0")).
				Background(lipgloss.Color("226")).
				Padding(0, 1)

	noticePersistentStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("230")).
				Background(lipgloss.Color("196")).
				Bold(true).
				Padding(0, 1)

	modeIdle      = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	modeResolving = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	modeRevealed  = lipgloss.NewStyle().Foreground(lipgloss.Color("141"))
	modeTracking  = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	modeFailed    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	directionUp   = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	directionDown = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	feedDiagnostic = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	feedSystem     = lipgloss.NewStyle().Foreground(lipgloss.Color("69"))

	dimStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func newDashboardModel(session *core.Session, source integration.SourceStatus) dashboardModel {
	input := textinput.New()
	input.CharLimit = 256
	input.Width = 48
	input.Focus()

	spin := spinner.New()
	spin.Spinner = spinner.MiniDot

	m := dashboardModel{
		session: session,
		source:  source,
		vm:      session.View(),
		input:   input,
		spinner: spin,
		help:    help.New(),
	}
	m.setPurpose(purposeTrack)
	return m
}

func (m *dashboardModel) setPurpose(p inputPurpose) {
	m.purpose = p
	switch p {
	case purposeSubscribe:
		m.input.Prompt = "subscribe> "
		m.input.Placeholder = "you@example.com"
	default:
		m.input.Prompt = "track> "
		m.input.Placeholder = "acme.com or https://acme.com"
	}
}

func (m dashboardModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, dashboardKeys.Quit):
			m.session.Close()
			return m, tea.Quit
		case key.Matches(msg, dashboardKeys.Submit):
			return m.submit()
		case key.Matches(msg, dashboardKeys.Switch):
			if m.purpose == purposeTrack {
				m.setPurpose(purposeSubscribe)
			} else {
				m.setPurpose(purposeTrack)
			}
			return m, nil
		case key.Matches(msg, dashboardKeys.Retry):
			return m.send(core.RetryMsg{})
		case key.Matches(msg, dashboardKeys.Reset):
			return m.send(core.ResetMsg{})
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	// Everything else is either a textinput blink or a session result.
	var inputCmd tea.Cmd
	m.input, inputCmd = m.input.Update(msg)
	next, sessionCmd := m.send(msg)
	return next, tea.Batch(inputCmd, sessionCmd)
}

func (m dashboardModel) submit() (tea.Model, tea.Cmd) {
	value := strings.TrimSpace(m.input.Value())
	if value == "" {
		return m, nil
	}
	m.input.Reset()

	if m.purpose == purposeSubscribe {
		return m.send(core.SubscribeMsg{Contact: value})
	}

	// A new company replaces whatever is on the radar.
	var cmds []core.Cmd
	if m.vm.Mode != models.ModeIdle && m.vm.Mode != models.ModeFailed {
		cmds = append(cmds, m.session.Update(core.ResetMsg{})...)
	}
	cmds = append(cmds, m.session.Update(core.SubmitMsg{Identifier: value})...)
	m.vm = m.session.View()
	return m, sessionCmds(cmds)
}

func (m dashboardModel) send(msg core.Msg) (tea.Model, tea.Cmd) {
	cmds := m.session.Update(msg)
	m.vm = m.session.View()
	return m, sessionCmds(cmds)
}

// sessionCmds runs session Cmds as bubbletea commands.
func sessionCmds(cmds []core.Cmd) tea.Cmd {
	if len(cmds) == 0 {
		return nil
	}
	batch := make([]tea.Cmd, 0, len(cmds))
	for _, c := range cmds {
		batch = append(batch, func() tea.Msg { return c() })
	}
	return tea.Batch(batch...)
}

func (m dashboardModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(" Signal Radar "))
	b.WriteString("  ")
	b.WriteString(m.renderMode())
	b.WriteString("  ")
	b.WriteString(dimStyle.Render("source: " + m.source.Name))
	b.WriteString("\n\n")

	if m.vm.Notice != nil {
		style := noticePausedStyle
		if m.vm.Notice.Level == models.NoticePersistent {
			style = noticePersistentStyle
		}
		b.WriteString(style.Render(m.vm.Notice.Text))
		b.WriteString("\n\n")
	}

	b.WriteString(m.input.View())
	b.WriteString("\n\n")

	if m.vm.Entity != nil {
		b.WriteString(headerStyle.Render(m.vm.Entity.Name))
		b.WriteString(dimStyle.Render("  " + m.vm.Entity.Domain))
		if m.vm.Entity.Description != "" {
			b.WriteString("\n")
			b.WriteString(m.vm.Entity.Description)
		}
		b.WriteString("\n\n")
	}

	channels := panelStyle.Render(m.renderChannels())
	feed := panelStyle.Render(m.renderFeed())
	if m.width > 110 {
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, channels, feed))
	} else {
		b.WriteString(lipgloss.JoinVertical(lipgloss.Left, channels, feed))
	}
	if panels := m.renderPanels(); panels != "" {
		b.WriteString("\n")
		b.WriteString(panelStyle.Render(panels))
	}

	b.WriteString("\n")
	b.WriteString(m.help.View(dashboardKeys))
	return b.String()
}

func (m dashboardModel) renderMode() string {
	label := string(m.vm.Mode)
	switch m.vm.Mode {
	case models.ModeResolving:
		return modeResolving.Render(m.spinner.View() + " " + label)
	case models.ModeRevealed:
		return modeRevealed.Render(label)
	case models.ModeTracking:
		return modeTracking.Render("● " + label)
	case models.ModeFailed:
		return modeFailed.Render(label + " (ctrl+r to retry)")
	default:
		return modeIdle.Render(label)
	}
}

func (m dashboardModel) renderChannels() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Channels"))
	b.WriteString("\n")

	if len(m.vm.Channels) == 0 {
		b.WriteString(dimStyle.Render("No channels yet."))
		return b.String()
	}

	ids := make([]string, 0, len(m.vm.Channels))
	for id := range m.vm.Channels {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		ch := m.vm.Channels[id]
		b.WriteString(fmt.Sprintf("%-10s %s %5.1f %s\n", id, valueBar(ch.Value, 20), ch.Value, renderDelta(ch)))
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderDelta(ch models.ChannelState) string {
	text := fmt.Sprintf("%+.1f", ch.Delta)
	switch ch.Direction {
	case models.DirectionUp:
		return directionUp.Render("▲ " + text)
	case models.DirectionDown:
		return directionDown.Render("▼ " + text)
	default:
		return dimStyle.Render("  " + text)
	}
}

// valueBar draws v, a value on the 0-100 channel scale, as a bar width cells
// wide.
func valueBar(v float64, width int) string {
	filled := int(v / 100 * float64(width))
	filled = max(0, min(width, filled))
	return strings.Repeat("█", filled) + dimStyle.Render(strings.Repeat("░", width-filled))
}

func (m dashboardModel) renderFeed() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Feed"))
	b.WriteString("\n")

	if len(m.vm.Feed) == 0 {
		b.WriteString(dimStyle.Render("Nothing yet."))
		return b.String()
	}

	for i, item := range m.vm.Feed {
		if i == dashboardFeedRows {
			b.WriteString(dimStyle.Render(fmt.Sprintf("… %d more", len(m.vm.Feed)-i)))
			break
		}
		line := fmt.Sprintf("%s %s", item.Timestamp.Local().Format("15:04:05"), item.Text)
		switch item.Kind {
		case models.FeedDiagnostic:
			line = feedDiagnostic.Render(line)
		case models.FeedSystem:
			line = feedSystem.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m dashboardModel) renderPanels() string {
	if m.vm.Panels == nil || len(m.vm.Panels.Metrics) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(headerStyle.Render("Panels"))
	if m.vm.Panels.Summary != "" {
		b.WriteString("  ")
		b.WriteString(m.vm.Panels.Summary)
	}
	b.WriteString("\n")

	names := make([]string, 0, len(m.vm.Panels.Metrics))
	for name := range m.vm.Panels.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	cells := make([]string, 0, len(names))
	for _, name := range names {
		cells = append(cells, fmt.Sprintf("%s %.2f", name, m.vm.Panels.Metrics[name]))
	}
	b.WriteString(strings.Join(cells, dimStyle.Render(" · ")))
	return b.String()
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Interactive radar dashboard",
	Long: `Launch an interactive terminal radar. Type a domain or URL and press enter
to reveal a company; its channels and feed then update live.

Tab switches the prompt between tracking and subscribing, ctrl+r retries a
failed reveal, esc resets the radar and ctrl+c quits.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(commandContext(cmd))
		defer cancel()

		session, status, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer session.Close()

		p := tea.NewProgram(newDashboardModel(session, status), tea.WithAltScreen(), tea.WithContext(ctx))
		_, err = p.Run()
		return err
	},
}

func init() {
	rootCmd.AddCommand(dashboardCmd)
}

// Package tui renders a chat session in the terminal with bubbletea: a
// scrollback viewport above an input line.
package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Tyrowin/tcpchat/internal/client"
	"github.com/Tyrowin/tcpchat/internal/protocol"
)

// Conn is the part of client.Client the model needs.
type Conn interface {
	Username() string
	Send(m protocol.Message) error
	Recv() (protocol.Message, error)
	Close() error
}

var (
	kindStyles = map[protocol.Kind]lipgloss.Style{
		protocol.KindChat:    lipgloss.NewStyle(),
		protocol.KindStatus:  lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		protocol.KindCommand: lipgloss.NewStyle().Foreground(lipgloss.Color("4")),
		protocol.KindDM:      lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		protocol.KindError:   lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
	}
	noticeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
)

// Messages delivered to Update.
type (
	receivedMsg     protocol.Message
	disconnectedMsg struct{ err error }
)

// Model is the bubbletea model for a connected chat session.
type Model struct {
	conn     Conn
	input    textinput.Model
	viewport viewport.Model
	lines    []string
	ready    bool
	quitting bool
}

// New creates a model for conn. The welcome message returned by the
// handshake, if any, is shown first.
func New(conn Conn, welcome *protocol.Message) Model {
	ti := textinput.New()
	ti.Placeholder = "Type a message, /help for commands"
	ti.Prompt = "> "
	ti.CharLimit = protocol.DefaultMaxFrameSize / 2
	ti.Focus()

	m := Model{
		conn:  conn,
		input: ti,
		lines: []string{noticeStyle.Render("=== Welcome to the Chat Room! ===")},
	}
	if welcome != nil {
		m.lines = append(m.lines, FormatMessage(*welcome))
	}
	return m
}

// FormatMessage renders m as "[timestamp] sender: content" in its kind's colour.
func FormatMessage(m protocol.Message) string {
	style, ok := kindStyles[m.Kind()]
	if !ok {
		style = kindStyles[protocol.KindChat]
	}
	return style.Render("[" + m.Timestamp() + "] " + m.Sender() + ": " + m.Content())
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.waitForMessage())
}

// waitForMessage reads one frame; Update schedules it again after each message.
func (m Model) waitForMessage() tea.Cmd {
	return func() tea.Msg {
		msg, err := m.conn.Recv()
		if err != nil {
			return disconnectedMsg{err: err}
		}
		return receivedMsg(msg)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		height := max(msg.Height-2, 1)
		if !m.ready {
			m.viewport = viewport.New(msg.Width, height)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = height
		}
		m.input.Width = max(msg.Width-3, 10)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m.quit()
		case tea.KeyEnter:
			return m.submit()
		}

	case receivedMsg:
		m.appendLine(FormatMessage(protocol.Message(msg)))
		return m, m.waitForMessage()

	case disconnectedMsg:
		if m.quitting {
			return m, tea.Quit
		}
		m.appendLine(errorStyle.Render("Disconnected from server: " + msg.err.Error()))
		m.input.Blur()
		return m, nil
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	line := m.input.Value()
	m.input.Reset()

	in, err := client.ParseInput(line, m.conn.Username())
	if err != nil {
		m.appendLine(errorStyle.Render("Error: " + err.Error()))
		return m, nil
	}

	switch in.Action {
	case client.ActionQuit:
		return m.quit()
	case client.ActionHelp:
		for _, l := range client.HelpLines() {
			m.appendLine(noticeStyle.Render(l))
		}
	case client.ActionSend:
		if err := m.conn.Send(in.Message); err != nil {
			m.appendLine(errorStyle.Render("Error sending message: " + err.Error()))
			return m, nil
		}
		if in.Message.Kind() == protocol.KindChat {
			m.appendLine(FormatMessage(in.Message))
		}
	}
	return m, nil
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	m.quitting = true
	_ = m.conn.Close()
	return m, tea.Quit
}

func (m *Model) appendLine(line string) {
	m.lines = append(m.lines, line)
	m.refresh()
}

func (m *Model) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(strings.Join(m.lines, "\n"))
	m.viewport.GotoBottom()
}

// Lines returns the rendered scrollback, mainly for tests.
func (m Model) Lines() []string {
	return m.lines
}

func (m Model) View() string {
	if m.quitting {
		return noticeStyle.Render("Disconnecting from chat...") + "\n"
	}
	if !m.ready {
		return "Connecting...\n"
	}
	return m.viewport.View() + "\n" + m.input.View()
}

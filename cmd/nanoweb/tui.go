package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"nanoweb/pkg/console"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Start a terminal chat UI",
	Long:  "Start a Bubble Tea chat screen against the gateway. Press Esc or Ctrl+C to exit.",
	RunE:  withClient(runTUI),
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	userStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	botStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	systemStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Italic(true)
	hintStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// storeChangedMsg tells the model to re-read the store.
type storeChangedMsg struct{}

type sendResultMsg struct{ err error }

// chatStateMsg reports a connection or thinking change on the socket.
type chatStateMsg struct{ closed bool }

// watchChat waits for the next chat state change.
func watchChat(chat *console.ChatClient) tea.Cmd {
	changed := chat.Changed()
	done := chat.Done()
	return func() tea.Msg {
		select {
		case <-changed:
			return chatStateMsg{}
		case <-done:
			return chatStateMsg{closed: true}
		}
	}
}

type tuiModel struct {
	chat   *console.ChatClient
	store  *console.Store
	server string

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	ready    bool
	lastErr  error
}

func newTUIModel(chat *console.ChatClient, store *console.Store, server string) tuiModel {
	input := textinput.New()
	input.Placeholder = "Type a message and press Enter"
	input.Prompt = "> "
	input.CharLimit = 4000
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return tuiModel{
		chat:     chat,
		store:    store,
		server:   server,
		input:    input,
		viewport: viewport.New(80, 20),
		spinner:  sp,
	}
}

func (m tuiModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, watchChat(m.chat))
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			text := strings.TrimSpace(m.input.Value())
			if text == "" || m.chat.Thinking() || !m.chat.Connected() {
				return m, nil
			}
			m.input.SetValue("")
			chat := m.chat
			return m, func() tea.Msg {
				return sendResultMsg{err: chat.Send(text)}
			}
		}
	case tea.WindowSizeMsg:
		// Header, separator, input line and hint.
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-4, 3)
		m.input.Width = max(msg.Width-4, 10)
		m.ready = true
		m.refresh()
	case storeChangedMsg:
		m.refresh()
	case chatStateMsg:
		if msg.closed {
			return m, nil
		}
		return m, watchChat(m.chat)
	case sendResultMsg:
		m.lastErr = msg.err
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *tuiModel) refresh() {
	m.viewport.SetContent(renderTranscript(m.store.ChatMessages(), m.viewport.Width))
	m.viewport.GotoBottom()
}

func (m tuiModel) View() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("nanobot chat"))
	b.WriteString(badge(m.chat.Connected(), "● connected", "○ disconnected"))
	if m.server != "" {
		b.WriteString(hintStyle.Render("  " + m.server))
	}
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")

	switch {
	case m.chat.Thinking():
		b.WriteString(m.spinner.View() + " Thinking...")
	case m.lastErr != nil:
		b.WriteString(badStyle.Render(m.lastErr.Error()))
	}
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(hintStyle.Render("Enter to send, Esc to quit"))
	return b.String()
}

func renderTranscript(messages []console.ChatMessage, width int) string {
	wrap := lipgloss.NewStyle()
	if width > 0 {
		wrap = wrap.Width(width)
	}

	lines := make([]string, 0, len(messages))
	for _, msg := range messages {
		var prefix string
		switch msg.Role {
		case console.RoleUser:
			prefix = userStyle.Render("You:") + " "
		case console.RoleAssistant:
			prefix = botStyle.Render("nanobot:") + " "
		default:
			lines = append(lines, wrap.Render(systemStyle.Render(msg.Content)))
			continue
		}
		lines = append(lines, wrap.Render(prefix+msg.Content))
	}
	return strings.Join(lines, "\n")
}

func runTUI(ctx context.Context, env *clientEnv) error {
	cc, err := console.NewChatClient(env.client.BaseURL(), env.tokens, env.store)
	if err != nil {
		return err
	}
	if err := cc.Connect(ctx); err != nil {
		return err
	}
	defer cc.Close()

	if env.store.ServerInfo() == nil {
		if me, err := env.client.Me(ctx); err == nil {
			env.store.SetServerInfo(me)
		}
	}
	server := ""
	if info := env.store.ServerInfo(); info != nil {
		server = fmt.Sprintf("%s@%s:%d", info.Username, info.Host, info.Port)
	}

	p := tea.NewProgram(newTUIModel(cc, env.store, server), tea.WithAltScreen(), tea.WithContext(ctx))
	unsubscribe := env.store.Subscribe(func() {
		// Send blocks until the program reads it; never stall the socket reader.
		go p.Send(storeChangedMsg{})
	})
	defer unsubscribe()

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}

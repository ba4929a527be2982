// Package tui implements the terminal chat client. It speaks the gateway's
// WebSocket protocol: a connected frame on open, then typing/chunk/complete
// frames per exchange.
package tui

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/chathub/chathub/internal/config"
)

// DefaultGatewayPort is the default ChatHub gateway port.
const DefaultGatewayPort = 8090

// Config holds TUI configuration.
type Config struct {
	Host     string // Gateway host (default: localhost)
	Port     int    // Gateway port (default: from config file, or 8090)
	Token    string // Gateway authentication token
	Provider string // Provider to chat with (default: gateway default)
}

type wsFrame struct {
	Type      string `json:"type"`
	Message   string `json:"message,omitempty"`
	Content   string `json:"content,omitempty"`
	Provider  string `json:"provider,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Error     string `json:"error,omitempty"`
}

type model struct {
	viewport  viewport.Model
	textInput textinput.Model
	messages  []string
	err       error
	ready     bool

	// State
	connecting bool
	connected  bool
	streaming  bool
	conn       *websocket.Conn

	// Gateway target
	gatewayAddr string
	token       string
	provider    string
	sessionID   string

	// Streaming accumulator for the in-flight response
	partial string
}

func initialModel(cfg *Config, addr string) model {
	ti := textinput.New()
	ti.Placeholder = "Type a message..."
	ti.Focus()
	ti.CharLimit = 1000000
	ti.Width = 20

	return model{
		textInput:   ti,
		messages:    []string{},
		connecting:  true,
		gatewayAddr: addr,
		token:       cfg.Token,
		provider:    cfg.Provider,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		connectGateway(m.gatewayAddr, m.token),
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
	)

	m.textInput, tiCmd = m.textInput.Update(msg)
	m.viewport, vpCmd = m.viewport.Update(msg)

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		headerHeight := 1
		footerHeight := 3
		verticalMarginHeight := headerHeight + footerHeight

		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-verticalMarginHeight)
			m.viewport.YPosition = headerHeight
			m.viewport.SetContent(strings.Join(m.messages, "\n"))
			m.textInput.Width = msg.Width - 2
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - verticalMarginHeight
			m.textInput.Width = msg.Width - 2
		}

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			if m.conn != nil {
				_ = m.conn.Close()
			}
			return m, tea.Quit
		case tea.KeyCtrlN:
			if m.connected && !m.streaming {
				return m, sendFrame(m.conn, wsFrame{Type: "new_chat", Provider: m.provider})
			}
		case tea.KeyEnter:
			if m.textInput.Value() != "" && m.connected && !m.streaming {
				val := m.textInput.Value()
				m.messages = append(m.messages, fmt.Sprintf("%s %s", senderStyle.Render("You:"), val))
				m.textInput.SetValue("")
				m.viewport.SetContent(strings.Join(m.messages, "\n"))
				m.viewport.GotoBottom()

				return m, sendFrame(m.conn, wsFrame{
					Type:      "chat",
					Message:   val,
					Provider:  m.provider,
					SessionID: m.sessionID,
				})
			}
		}

	case connectedMsg:
		m.conn = msg.conn
		return m, waitForFrame(m.conn)

	case frameMsg:
		return m.handleFrame(wsFrame(msg))

	case errMsg:
		m.err = msg
		m.messages = append(m.messages, errorStyle.Render(fmt.Sprintf("Error: %v", msg)))
		m.viewport.SetContent(strings.Join(m.messages, "\n"))
		m.connecting = false
		m.streaming = false
		return m, nil
	}

	return m, tea.Batch(tiCmd, vpCmd)
}

func (m model) handleFrame(frame wsFrame) (tea.Model, tea.Cmd) {
	switch frame.Type {
	case "connected":
		m.connecting = false
		m.connected = true
		m.sessionID = frame.SessionID
		if m.provider == "" {
			m.provider = frame.Provider
		}
		m.messages = append(m.messages, infoStyle.Render(fmt.Sprintf("Connected (provider: %s)", m.provider)))

	case "typing":
		m.streaming = true
		m.partial = ""
		m.messages = append(m.messages, m.providerLine("..."))

	case "chunk":
		m.partial += frame.Content
		if m.streaming && len(m.messages) > 0 {
			m.messages[len(m.messages)-1] = m.providerLine(m.partial)
		}

	case "complete":
		if m.streaming && len(m.messages) > 0 {
			m.messages[len(m.messages)-1] = m.providerLine(frame.Content)
		} else {
			m.messages = append(m.messages, m.providerLine(frame.Content))
		}
		m.streaming = false
		m.partial = ""

	case "chat_reset":
		m.messages = append(m.messages, infoStyle.Render("New conversation started"))

	case "error":
		m.streaming = false
		m.messages = append(m.messages, errorStyle.Render("Error: "+frame.Error))
	}

	m.viewport.SetContent(strings.Join(m.messages, "\n"))
	m.viewport.GotoBottom()
	return m, waitForFrame(m.conn)
}

func (m model) providerLine(text string) string {
	name := m.provider
	if name == "" {
		name = "assistant"
	}
	return fmt.Sprintf("%s %s", senderStyle.Render(name+":"), text)
}

func (m model) View() string {
	if !m.ready {
		return "\n  Initializing..."
	}
	return fmt.Sprintf("%s\n%s\n%s", m.headerView(), m.viewport.View(), m.footerView())
}

func (m model) headerView() string {
	title := "ChatHub TUI"
	status := "Disconnected"
	switch {
	case m.streaming:
		status = "Thinking..."
	case m.connected:
		status = "Connected"
	case m.connecting:
		status = "Connecting..."
	}

	line := strings.Repeat("─", maximum(0, m.viewport.Width-len(title)-len(status)-2))
	return lipgloss.JoinHorizontal(lipgloss.Center, title, line, status)
}

func (m model) footerView() string {
	if !m.connected {
		return infoStyle.Render("Waiting for connection...")
	}
	return infoStyle.Render(m.textInput.View())
}

func maximum(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Messages
type connectedMsg struct{ conn *websocket.Conn }
type frameMsg wsFrame
type errMsg error

// Commands
func connectGateway(addr, token string) tea.Cmd {
	return func() tea.Msg {
		u := url.URL{Scheme: "ws", Host: addr, Path: "/ws/tui-" + uuid.NewString()}
		if token != "" {
			q := u.Query()
			q.Set("token", token)
			u.RawQuery = q.Encode()
		}

		conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
		if err != nil {
			return errMsg(err)
		}
		return connectedMsg{conn: conn}
	}
}

func sendFrame(conn *websocket.Conn, frame wsFrame) tea.Cmd {
	return func() tea.Msg {
		if err := conn.WriteJSON(frame); err != nil {
			return errMsg(err)
		}
		return nil
	}
}

func waitForFrame(conn *websocket.Conn) tea.Cmd {
	return func() tea.Msg {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return errMsg(err)
		}

		var frame wsFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			// Skip unparseable frames and keep listening.
			return waitForFrame(conn)()
		}
		if frame.Type == "pong" {
			return waitForFrame(conn)()
		}
		return frameMsg(frame)
	}
}

// Run starts the TUI against the local gateway.
func Run() error {
	return RunWithConfig(nil)
}

// RunWithConfig starts the TUI with custom configuration.
// If host is empty, defaults to "localhost". If port is 0, reads from the
// config file, then falls back to the default gateway port. The token falls
// back to the config file too.
func RunWithConfig(cfg *Config) error {
	if cfg == nil {
		cfg = &Config{}
	}

	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port

	if port == 0 || cfg.Token == "" {
		if loaded, err := config.Load(); err == nil {
			if port == 0 && loaded.Gateway.Port > 0 {
				port = loaded.Gateway.Port
			}
			if cfg.Token == "" {
				cfg.Token = loaded.Gateway.Auth.Token
			}
		}
	}
	if port == 0 {
		port = DefaultGatewayPort
	}

	addr := fmt.Sprintf("%s:%d", host, port)
	p := tea.NewProgram(initialModel(cfg, addr), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return err
	}
	return nil
}

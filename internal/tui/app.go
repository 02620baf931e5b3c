// Package tui is the terminal front end: a session sidebar, the transcript
// and an input line driving a conversation controller.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/zhouzirui/datastream-chat/backend/internal/model/chat"
	"github.com/zhouzirui/datastream-chat/backend/internal/service/conversation"
	"github.com/zhouzirui/datastream-chat/backend/internal/view"
)

// Controller is the subset of *conversation.Controller the UI drives.
type Controller interface {
	Start(ctx context.Context) error
	CreateSession(ctx context.Context) (string, error)
	SwitchSession(ctx context.Context, id string) error
	StreamMessage(ctx context.Context, text string, onDelta func(string)) (conversation.Exchange, error)
}

type (
	readyMsg   struct{ err error }
	refreshMsg struct{ err error }
	deltaMsg   struct {
		seq  int
		text string
	}
	sentMsg struct {
		ex  conversation.Exchange
		err error
	}
)

type Model struct {
	ctx        context.Context
	ctrl       Controller
	transcript *view.Transcript
	deltas     chan deltaMsg

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	width    int
	height   int
	sending  bool
	seq      int    // identifies the send whose deltas are shown
	pending  string // streamed reply so far
	status   string
	quitting bool
}

// New builds the model. transcript must be (one of) the controller's views.
func New(ctx context.Context, ctrl Controller, transcript *view.Transcript) Model {
	in := textinput.New()
	in.Placeholder = "type a message..."
	in.CharLimit = 4000
	in.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Line
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("63")).Bold(true)

	m := Model{
		ctx:        ctx,
		ctrl:       ctrl,
		transcript: transcript,
		deltas:     make(chan deltaMsg, 256),
		input:      in,
		viewport:   viewport.New(80, 20),
		spinner:    sp,
		width:      120,
		height:     30,
	}
	m.resize()
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, m.start(), waitForDelta(m.deltas))
}

func waitForDelta(ch <-chan deltaMsg) tea.Cmd {
	return func() tea.Msg {
		d, ok := <-ch
		if !ok {
			return nil
		}
		return d
	}
}

func (m Model) start() tea.Cmd {
	ctrl, ctx := m.ctrl, m.ctx
	return func() tea.Msg {
		return readyMsg{err: ctrl.Start(ctx)}
	}
}

func (m Model) send(text string, seq int) tea.Cmd {
	ctrl, ctx, deltas := m.ctrl, m.ctx, m.deltas
	return func() tea.Msg {
		ex, err := ctrl.StreamMessage(ctx, text, func(d string) {
			select {
			case deltas <- deltaMsg{seq: seq, text: d}:
			case <-ctx.Done():
			}
		})
		return sentMsg{ex: ex, err: err}
	}
}

func (m Model) createSession() tea.Cmd {
	ctrl, ctx := m.ctrl, m.ctx
	return func() tea.Msg {
		_, err := ctrl.CreateSession(ctx)
		return refreshMsg{err: err}
	}
}

func (m Model) switchSession(id string) tea.Cmd {
	ctrl, ctx := m.ctrl, m.ctx
	return func() tea.Msg {
		return refreshMsg{err: ctrl.SwitchSession(ctx, id)}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		return m.updateKeys(msg)

	case readyMsg:
		m.setStatus(msg.err)
		m.refresh()
		return m, nil

	case refreshMsg:
		m.setStatus(msg.err)
		m.refresh()
		return m, nil

	case deltaMsg:
		if m.sending && msg.seq == m.seq {
			m.pending += msg.text
			m.refresh()
		}
		return m, waitForDelta(m.deltas)

	case sentMsg:
		m.sending = false
		m.pending = ""
		switch {
		case msg.err != nil:
			m.setStatus(msg.err)
		case msg.ex.Failed:
			m.status = "remote service unavailable"
		default:
			m.status = ""
		}
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "enter":
		text := strings.TrimSpace(m.input.Value())
		if m.sending || text == "" {
			return m, nil
		}
		m.sending = true
		m.seq++
		m.pending = ""
		m.status = ""
		m.input.Reset()
		return m, m.send(text, m.seq)

	case "ctrl+n":
		return m, m.createSession()

	case "ctrl+up", "ctrl+down":
		delta := 1
		if msg.String() == "ctrl+up" {
			delta = -1
		}
		if id, ok := m.neighbour(delta); ok {
			return m, m.switchSession(id)
		}
		return m, nil

	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// neighbour finds the session delta places away from the active one.
func (m Model) neighbour(delta int) (string, bool) {
	snap := m.transcript.Snapshot()
	for i, s := range snap.Sessions {
		if s.ID != snap.ActiveID {
			continue
		}
		j := i + delta
		if j < 0 || j >= len(snap.Sessions) {
			return "", false
		}
		return snap.Sessions[j].ID, true
	}
	return "", false
}

func (m *Model) setStatus(err error) {
	switch {
	case err == nil:
		m.status = ""
	case errors.Is(err, conversation.ErrBusy):
		m.status = "still waiting for the previous reply"
	default:
		m.status = err.Error()
	}
}

func (m *Model) resize() {
	w := m.width - sidebarWidth - 2
	if w < 20 {
		w = 20
	}
	h := m.height - 4
	if h < 3 {
		h = 3
	}
	m.viewport.Width = w
	m.viewport.Height = h
	m.input.Width = w - 4
}

func (m *Model) refresh() {
	snap := m.transcript.Snapshot()
	var b strings.Builder
	for _, e := range snap.Entries {
		b.WriteString(renderEntry(e.Role, e.Text))
		b.WriteString("\n\n")
	}
	if m.sending && m.pending != "" {
		b.WriteString(renderEntry(chat.RoleModel, m.pending))
		b.WriteString("\n")
	}
	m.viewport.SetContent(lipgloss.NewStyle().Width(m.viewport.Width).Render(b.String()))
	m.viewport.GotoBottom()
}

func renderEntry(role chat.Role, text string) string {
	switch {
	case role == chat.RoleUser:
		return userRoleStyle.Render(" USER ") + " " + text
	case text == chat.ErrorNoticeText:
		return modelRoleStyle.Render(" AI ") + " " + errorStyle.Render(text)
	default:
		return modelRoleStyle.Render(" AI ") + " " + text
	}
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	snap := m.transcript.Snapshot()

	header := titleStyle.Render("DATASTREAM")
	if m.sending || snap.Loading {
		header += " " + m.spinner.View() + dimStyle.Render(" receiving")
	}
	column := lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.viewport.View(),
		m.input.View(),
	)

	body := lipgloss.JoinHorizontal(lipgloss.Top, m.renderSidebar(snap), column)

	footer := helpStyle.Render("  Enter: send  Ctrl+N: new  Ctrl+Up/Down: switch  Ctrl+C: quit")
	if m.status != "" {
		footer = errorStyle.Render("  "+m.status) + "\n" + footer
	}
	return body + "\n" + footer
}

func (m Model) renderSidebar(snap view.Snapshot) string {
	var b strings.Builder
	b.WriteString(dimStyle.Render(fmt.Sprintf("%d sessions", len(snap.Sessions))))
	b.WriteString("\n")
	for _, s := range snap.Sessions {
		line := truncate(s.Title, sidebarWidth-2)
		if s.ID == snap.ActiveID {
			b.WriteString(selectedStyle.Render("> " + line))
		} else {
			b.WriteString(normalStyle.Render("  " + line))
		}
		b.WriteString("\n")
	}
	return sidebarStyle.Height(m.viewport.Height + 2).Render(b.String())
}

func truncate(s string, width int) string {
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	return string(runes[:width-2]) + ".."
}

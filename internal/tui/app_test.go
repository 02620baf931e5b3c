package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/datastream-chat/backend/internal/model/chat"
	"github.com/zhouzirui/datastream-chat/backend/internal/service/ai/aitest"
	"github.com/zhouzirui/datastream-chat/backend/internal/service/conversation"
	"github.com/zhouzirui/datastream-chat/backend/internal/service/session"
	"github.com/zhouzirui/datastream-chat/backend/internal/storage"
	"github.com/zhouzirui/datastream-chat/backend/internal/view"
)

func newTestModel(t *testing.T, client *aitest.Client) (Model, *view.Transcript) {
	t.Helper()

	transcript := view.NewTranscript()
	store := session.NewStore(storage.NewMemoryStore())
	ctrl := conversation.NewController(store, client, transcript, zerolog.Nop())

	m := New(context.Background(), ctrl, transcript)
	m = step(t, m, m.start()())
	return m, transcript
}

func step(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	model, ok := next.(Model)
	if !ok {
		t.Fatalf("unexpected model type %T", next)
	}
	return model
}

func press(t *testing.T, m Model, key tea.KeyType) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(tea.KeyMsg{Type: key})
	return next.(Model), cmd
}

func TestStartShowsGreeting(t *testing.T) {
	m, _ := newTestModel(t, aitest.Echo("Pong"))

	out := m.View()
	if !strings.Contains(out, chat.GreetingText) {
		t.Fatalf("expected greeting in view, got:\n%s", out)
	}
	if !strings.Contains(out, chat.DefaultTitle) {
		t.Fatalf("expected placeholder title in sidebar, got:\n%s", out)
	}
}

func TestEnterSendsAndRendersReply(t *testing.T) {
	m, transcript := newTestModel(t, aitest.Echo("Pong"))

	m.input.SetValue("  Ping  ")
	m, cmd := press(t, m, tea.KeyEnter)
	if cmd == nil {
		t.Fatal("expected send command")
	}
	if !m.sending {
		t.Fatal("expected model to be sending")
	}
	if m.input.Value() != "" {
		t.Fatalf("expected input cleared, got %q", m.input.Value())
	}

	m = step(t, m, cmd())
	if m.sending {
		t.Fatal("expected sending to finish")
	}

	snap := transcript.Snapshot()
	if len(snap.Entries) != 3 {
		t.Fatalf("expected greeting, user and reply entries, got %+v", snap.Entries)
	}
	if snap.Entries[1].Text != "Ping" || snap.Entries[2].Text != "Pong" {
		t.Fatalf("unexpected entries: %+v", snap.Entries)
	}
	if !strings.Contains(m.View(), "PING") {
		t.Fatalf("expected derived title in sidebar, got:\n%s", m.View())
	}
}

func TestEnterIgnoredWhileSending(t *testing.T) {
	client := aitest.Echo("Pong")
	m, _ := newTestModel(t, client)

	m.sending = true
	m.input.SetValue("Ping")
	m, cmd := press(t, m, tea.KeyEnter)
	if cmd != nil {
		t.Fatal("expected no command while a send is outstanding")
	}
	if m.input.Value() != "Ping" {
		t.Fatalf("expected input kept, got %q", m.input.Value())
	}
	if client.Sends() != 0 {
		t.Fatalf("expected no remote calls, got %d", client.Sends())
	}
}

func TestEnterIgnoresBlankInput(t *testing.T) {
	m, _ := newTestModel(t, aitest.Echo("Pong"))

	m.input.SetValue("   ")
	if _, cmd := press(t, m, tea.KeyEnter); cmd != nil {
		t.Fatal("expected no command for blank input")
	}
}

func TestDeltasShownWhileStreaming(t *testing.T) {
	m, _ := newTestModel(t, aitest.Echo("Pong"))

	m.sending = true
	m = step(t, m, deltaMsg{seq: m.seq, text: "Po"})
	m = step(t, m, deltaMsg{seq: m.seq, text: "ng"})
	if m.pending != "Pong" {
		t.Fatalf("expected pending reply, got %q", m.pending)
	}
	if !strings.Contains(m.viewport.View(), "Pong") {
		t.Fatalf("expected streamed text in transcript, got:\n%s", m.viewport.View())
	}

	m = step(t, m, sentMsg{})
	if m.pending != "" {
		t.Fatalf("expected pending cleared, got %q", m.pending)
	}
}

func TestStaleDeltasIgnoredByNextSend(t *testing.T) {
	m, _ := newTestModel(t, aitest.Echo("first reply"))

	m.input.SetValue("one")
	m, cmd := press(t, m, tea.KeyEnter)
	m = step(t, m, cmd())
	firstSeq := m.seq

	m.input.SetValue("two")
	m, _ = press(t, m, tea.KeyEnter)
	if m.seq == firstSeq {
		t.Fatal("expected a new send sequence")
	}

	m = step(t, m, deltaMsg{seq: firstSeq, text: "first "})
	m = step(t, m, deltaMsg{seq: m.seq, text: "second"})
	if m.pending != "second" {
		t.Fatalf("expected only the current reply's deltas, got %q", m.pending)
	}
}

func TestCreateAndSwitchSessions(t *testing.T) {
	client := aitest.Echo("Pong")
	m, transcript := newTestModel(t, client)
	first := transcript.Snapshot().ActiveID

	m, cmd := press(t, m, tea.KeyCtrlN)
	m = step(t, m, cmd())

	snap := transcript.Snapshot()
	if len(snap.Sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(snap.Sessions))
	}
	second := snap.ActiveID
	if second == first || snap.Sessions[0].ID != second {
		t.Fatalf("expected new session active at the front, got %+v", snap)
	}

	m, cmd = press(t, m, tea.KeyCtrlDown)
	if cmd == nil {
		t.Fatal("expected switch command")
	}
	m = step(t, m, cmd())
	if got := transcript.Snapshot().ActiveID; got != first {
		t.Fatalf("expected %s active, got %s", first, got)
	}

	if _, cmd = press(t, m, tea.KeyCtrlDown); cmd != nil {
		t.Fatal("expected no switch past the last session")
	}
	if client.Sends() != 0 {
		t.Fatalf("switching must not call the remote, got %d sends", client.Sends())
	}
}

func TestFailedSendShowsNotice(t *testing.T) {
	client := &aitest.Client{Reply: func(string) (string, error) { return "", errors.New("boom") }}
	m, transcript := newTestModel(t, client)

	m.input.SetValue("Ping")
	m, cmd := press(t, m, tea.KeyEnter)
	m = step(t, m, cmd())

	entries := transcript.Snapshot().Entries
	if last := entries[len(entries)-1]; last.Text != chat.ErrorNoticeText {
		t.Fatalf("expected error notice, got %+v", last)
	}
	if m.status == "" {
		t.Fatal("expected status line for failed send")
	}
}

func TestCtrlCQuits(t *testing.T) {
	m, _ := newTestModel(t, aitest.Echo("Pong"))

	m, cmd := press(t, m, tea.KeyCtrlC)
	if cmd == nil || !m.quitting {
		t.Fatal("expected quit")
	}
	if m.View() != "" {
		t.Fatal("expected empty view after quit")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Fatalf("unexpected %q", got)
	}
	if got := truncate("HELLO THERE, FR...", 10); got != "HELLO TH.." {
		t.Fatalf("unexpected %q", got)
	}
}

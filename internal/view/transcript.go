// Package view holds renderable chat state for front ends that poll rather than
// receive callbacks.
package view

import (
	"sync"

	"github.com/zhouzirui/datastream-chat/backend/internal/model/chat"
)

// Entry is one visible transcript line.
type Entry struct {
	Role  chat.Role `json:"role"`
	Text  string    `json:"text"`
	Fresh bool      `json:"fresh"`
}

// Snapshot is a point-in-time copy of the visible state.
type Snapshot struct {
	ActiveID string         `json:"activeId"`
	Loading  bool           `json:"loading"`
	Entries  []Entry        `json:"entries"`
	Sessions []chat.Summary `json:"sessions"`
}

// Transcript records what a user would currently see. Safe for concurrent use.
type Transcript struct {
	mu       sync.RWMutex
	activeID string
	loading  bool
	entries  []Entry
	sessions []chat.Summary
}

func NewTranscript() *Transcript {
	return &Transcript{}
}

func (t *Transcript) SetLoading(on bool) {
	t.mu.Lock()
	t.loading = on
	t.mu.Unlock()
}

func (t *Transcript) Reset() {
	t.mu.Lock()
	t.entries = nil
	t.mu.Unlock()
}

func (t *Transcript) AppendTurn(turn chat.Turn, fresh bool) {
	t.mu.Lock()
	t.entries = append(t.entries, Entry{Role: turn.Role, Text: turn.Text(), Fresh: fresh})
	t.mu.Unlock()
}

func (t *Transcript) RenderSessions(sessions []chat.Summary, activeID string) {
	t.mu.Lock()
	t.sessions = append([]chat.Summary(nil), sessions...)
	t.activeID = activeID
	t.mu.Unlock()
}

func (t *Transcript) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return Snapshot{
		ActiveID: t.activeID,
		Loading:  t.loading,
		Entries:  append([]Entry{}, t.entries...),
		Sessions: append([]chat.Summary{}, t.sessions...),
	}
}

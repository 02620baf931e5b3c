package chat

import "strings"

const (
	// DefaultTitle labels a session until its first successful exchange.
	DefaultTitle = "NEW_DATA_STRM"

	titleLength = 15
	ellipsis    = "..."
)

// Session is one persisted conversation thread.
type Session struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	History []Turn `json:"history"`
}

// Summary is the sidebar view of a session.
type Summary struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Turns int    `json:"turns"`
}

// NewSession returns an empty session carrying the placeholder title.
func NewSession(id string) Session {
	return Session{ID: id, Title: DefaultTitle, History: []Turn{}}
}

// Clone returns a deep copy so callers cannot mutate store-owned history.
func (s Session) Clone() Session {
	out := s
	out.History = CloneTurns(s.History)
	return out
}

// Summary reports the session's sidebar entry.
func (s Session) Summary() Summary {
	return Summary{ID: s.ID, Title: s.Title, Turns: len(s.History)}
}

// DeriveTitle builds a session title from the first user message.
func DeriveTitle(text string) string {
	runes := []rune(text)
	if len(runes) <= titleLength {
		return strings.ToUpper(text)
	}
	return strings.ToUpper(string(runes[:titleLength])) + ellipsis
}

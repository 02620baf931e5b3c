package chat

// Role tags who produced a turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

const (
	// GreetingText is shown, never stored, when an empty session is opened.
	GreetingText = "SYSTEM READY. SESSION ESTABLISHED. HOW CAN I ASSIST?"
	// ErrorNoticeText replaces the reply when the remote call fails.
	ErrorNoticeText = "CRITICAL ERROR: DATA STREAM INTERRUPTED."
)

// Part is a single content fragment of a turn.
type Part struct {
	Text string `json:"text"`
}

// Turn is one message in a session transcript, in the remote service's history shape.
type Turn struct {
	Role  Role   `json:"role"`
	Parts []Part `json:"parts"`
}

// NewTurn builds a single-part text turn.
func NewTurn(role Role, text string) Turn {
	return Turn{Role: role, Parts: []Part{{Text: text}}}
}

// Text returns the turn's first text part.
func (t Turn) Text() string {
	if len(t.Parts) == 0 {
		return ""
	}
	return t.Parts[0].Text
}

// CloneTurns copies a transcript including its parts.
func CloneTurns(turns []Turn) []Turn {
	out := make([]Turn, len(turns))
	for i, turn := range turns {
		out[i] = Turn{Role: turn.Role, Parts: append([]Part(nil), turn.Parts...)}
	}
	return out
}

package conversation

import "github.com/zhouzirui/datastream-chat/backend/internal/model/chat"

// View is the rendering surface the controller drives.
type View interface {
	// SetLoading toggles the in-flight indicator and input lock.
	SetLoading(on bool)
	// Reset clears the visible transcript before a session is replayed.
	Reset()
	// AppendTurn shows one turn; fresh is false for replayed history.
	AppendTurn(turn chat.Turn, fresh bool)
	// RenderSessions refreshes the session list.
	RenderSessions(sessions []chat.Summary, activeID string)
}

// NopView discards everything.
type NopView struct{}

func (NopView) SetLoading(bool) {}
func (NopView) Reset() {}
func (NopView) AppendTurn(chat.Turn, bool) {}
func (NopView) RenderSessions([]chat.Summary, string) {}

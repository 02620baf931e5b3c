package view

import "github.com/zhouzirui/datastream-chat/backend/internal/model/chat"

// Renderer matches the controller's view contract.
type Renderer interface {
	SetLoading(on bool)
	Reset()
	AppendTurn(turn chat.Turn, fresh bool)
	RenderSessions(sessions []chat.Summary, activeID string)
}

// Multi forwards every call to each view in order.
type Multi []Renderer

func (m Multi) SetLoading(on bool) {
	for _, v := range m {
		v.SetLoading(on)
	}
}

func (m Multi) Reset() {
	for _, v := range m {
		v.Reset()
	}
}

func (m Multi) AppendTurn(turn chat.Turn, fresh bool) {
	for _, v := range m {
		v.AppendTurn(turn, fresh)
	}
}

func (m Multi) RenderSessions(sessions []chat.Summary, activeID string) {
	for _, v := range m {
		v.RenderSessions(sessions, activeID)
	}
}

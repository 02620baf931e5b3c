package chat_test

import (
	"testing"

	"github.com/zhouzirui/datastream-chat/backend/internal/model/chat"
)

func TestDeriveTitleTruncatesLongMessages(t *testing.T) {
	got := chat.DeriveTitle("Hello there, friend")
	if got != "HELLO THERE, FR..." {
		t.Fatalf("unexpected title: %q", got)
	}
}

func TestDeriveTitleKeepsShortMessages(t *testing.T) {
	got := chat.DeriveTitle("ping pong!")
	if got != "PING PONG!" {
		t.Fatalf("unexpected title: %q", got)
	}

	got = chat.DeriveTitle("exactly fifteen")
	if got != "EXACTLY FIFTEEN" {
		t.Fatalf("15 chars must not get an ellipsis, got %q", got)
	}
}

func TestDeriveTitleCountsRunes(t *testing.T) {
	got := chat.DeriveTitle("こんにちは、今日はいい天気ですね本当に")
	if got != "こんにちは、今日はいい天気です..." {
		t.Fatalf("unexpected title: %q", got)
	}
}

func TestSessionCloneIsDeep(t *testing.T) {
	s := chat.NewSession("a")
	s.History = append(s.History, chat.NewTurn(chat.RoleUser, "hi"))

	c := s.Clone()
	c.History[0].Parts[0].Text = "changed"

	if s.History[0].Text() != "hi" {
		t.Fatalf("clone shares parts with original")
	}
}

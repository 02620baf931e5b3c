// Package aitest provides an in-memory ai.Client for tests.
package aitest

import (
	"context"
	"strings"
	"sync"

	"github.com/zhouzirui/datastream-chat/backend/internal/model/chat"
	"github.com/zhouzirui/datastream-chat/backend/internal/service/ai"
)

// Client answers every message with Reply. Streams are split on spaces.
type Client struct {
	Reply func(text string) (string, error)

	mu    sync.Mutex
	sends int
}

var _ ai.Client = (*Client)(nil)

// Echo replies with a fixed string.
func Echo(reply string) *Client {
	return &Client{Reply: func(string) (string, error) { return reply, nil }}
}

func (c *Client) NewConversation(_ context.Context, seed []chat.Turn) (ai.Conversation, error) {
	return &conversation{client: c, history: chat.CloneTurns(seed)}, nil
}

// Sends reports how many messages reached the fake remote.
func (c *Client) Sends() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sends
}

type conversation struct {
	client  *Client
	mu      sync.Mutex
	history []chat.Turn
}

func (c *conversation) Send(_ context.Context, text string) (string, error) {
	c.client.mu.Lock()
	c.client.sends++
	c.client.mu.Unlock()

	reply, err := c.client.Reply(text)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.history = append(c.history, chat.NewTurn(chat.RoleUser, text), chat.NewTurn(chat.RoleModel, reply))
	c.mu.Unlock()
	return reply, nil
}

func (c *conversation) Stream(ctx context.Context, text string, onDelta func(string)) (string, error) {
	reply, err := c.Send(ctx, text)
	if err != nil {
		return "", err
	}
	if onDelta != nil {
		for _, part := range strings.SplitAfter(reply, " ") {
			onDelta(part)
		}
	}
	return reply, nil
}

func (c *conversation) History(context.Context) ([]chat.Turn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return chat.CloneTurns(c.history), nil
}

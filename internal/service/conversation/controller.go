package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/zhouzirui/datastream-chat/backend/internal/model/chat"
	"github.com/zhouzirui/datastream-chat/backend/internal/service/ai"
	"github.com/zhouzirui/datastream-chat/backend/internal/service/session"
)

var (
	ErrEmptyMessage   = errors.New("message is empty")
	ErrBusy           = errors.New("a message is already being sent")
	ErrNoConversation = errors.New("no active conversation")
)

// Exchange reports the outcome of one send.
type Exchange struct {
	SessionID string    `json:"sessionId"`
	User      chat.Turn `json:"user"`
	Reply     chat.Turn `json:"reply"`
	Failed    bool      `json:"failed"`
	Title     string    `json:"title"`
}

// Controller bridges user input to the remote service for the active session.
type Controller struct {
	store  *session.Store
	client ai.Client
	view   View
	log    zerolog.Logger

	// sending admits one outstanding call at a time.
	sending sync.Mutex
	// switching serializes changes of the active session across store and handle.
	switching sync.Mutex

	mu       sync.Mutex
	activeID string
	conv     ai.Conversation
}

func NewController(store *session.Store, client ai.Client, view View, logger zerolog.Logger) *Controller {
	if view == nil {
		view = NopView{}
	}
	return &Controller{
		store:  store,
		client: client,
		view:   view,
		log:    logger.With().Str("component", "conversation").Logger(),
	}
}

// Start loads persisted sessions and activates the current one.
func (c *Controller) Start(ctx context.Context) error {
	c.switching.Lock()
	defer c.switching.Unlock()

	c.store.Initialize(ctx)
	return c.activate(ctx, c.store.ActiveID())
}

// CreateSession adds a new empty session and activates it.
func (c *Controller) CreateSession(ctx context.Context) (string, error) {
	c.switching.Lock()
	defer c.switching.Unlock()

	id, err := c.store.CreateSession(ctx)
	if err != nil {
		return "", err
	}
	if err := c.activate(ctx, id); err != nil {
		return "", err
	}
	return id, nil
}

// SwitchSession activates id. Re-selecting the active session does nothing
// unless its conversation failed to open.
func (c *Controller) SwitchSession(ctx context.Context, id string) error {
	c.switching.Lock()
	defer c.switching.Unlock()

	c.mu.Lock()
	current := c.activeID == id && c.conv != nil
	c.mu.Unlock()
	if current {
		return nil
	}

	if err := c.store.SwitchActive(ctx, id); err != nil {
		return err
	}
	return c.activate(ctx, id)
}

// ActiveID reports the session new messages are sent to.
func (c *Controller) ActiveID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeID
}

// Sessions lists sidebar entries.
func (c *Controller) Sessions() []chat.Summary {
	return c.store.Summaries()
}

// activate replaces the conversation handle and replays the stored transcript.
// Callers hold c.switching.
func (c *Controller) activate(ctx context.Context, id string) error {
	s, err := c.store.Session(id)
	if err != nil {
		return fmt.Errorf("activate %q: %w", id, err)
	}

	conv, err := c.client.NewConversation(ctx, s.History)
	if err != nil {
		c.mu.Lock()
		c.activeID, c.conv = id, nil
		c.mu.Unlock()
		c.log.Error().Err(err).Str("session_id", id).Msg("failed to open remote conversation")
		c.render(s)
		return fmt.Errorf("open conversation: %w", err)
	}

	c.mu.Lock()
	c.activeID, c.conv = id, conv
	c.mu.Unlock()

	c.render(s)
	c.log.Debug().Str("session_id", id).Int("turns", len(s.History)).Msg("session activated")
	return nil
}

func (c *Controller) render(s chat.Session) {
	c.view.Reset()
	if len(s.History) == 0 {
		c.view.AppendTurn(chat.NewTurn(chat.RoleModel, chat.GreetingText), false)
	}
	for _, turn := range s.History {
		c.view.AppendTurn(turn, false)
	}
	c.view.RenderSessions(c.store.Summaries(), s.ID)
}

// SendMessage sends text to the active session's conversation and waits for the reply.
// Remote failures are reported through the view and Exchange.Failed, not as errors.
func (c *Controller) SendMessage(ctx context.Context, text string) (Exchange, error) {
	return c.send(ctx, text, nil)
}

// StreamMessage is SendMessage with reply fragments passed to onDelta as they arrive.
func (c *Controller) StreamMessage(ctx context.Context, text string, onDelta func(string)) (Exchange, error) {
	if onDelta == nil {
		onDelta = func(string) {}
	}
	return c.send(ctx, text, onDelta)
}

func (c *Controller) send(ctx context.Context, text string, onDelta func(string)) (Exchange, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Exchange{}, ErrEmptyMessage
	}
	if !c.sending.TryLock() {
		return Exchange{}, ErrBusy
	}
	defer c.sending.Unlock()

	c.mu.Lock()
	sessionID, conv := c.activeID, c.conv
	c.mu.Unlock()
	if conv == nil {
		return Exchange{}, ErrNoConversation
	}

	c.view.SetLoading(true)
	defer c.view.SetLoading(false)

	ex := Exchange{SessionID: sessionID, User: chat.NewTurn(chat.RoleUser, text)}
	c.view.AppendTurn(ex.User, true)

	var (
		reply string
		err   error
	)
	if onDelta != nil {
		reply, err = conv.Stream(ctx, text, onDelta)
	} else {
		reply, err = conv.Send(ctx, text)
	}
	if err != nil {
		c.log.Error().Err(err).Str("session_id", sessionID).Msg("remote call failed")
		ex.Failed = true
		ex.Reply = chat.NewTurn(chat.RoleModel, chat.ErrorNoticeText)
		c.showIfActive(sessionID, ex.Reply)
		return ex, nil
	}

	ex.Reply = chat.NewTurn(chat.RoleModel, reply)
	c.showIfActive(sessionID, ex.Reply)
	c.record(ctx, sessionID, conv, ex)

	if s, err := c.store.Session(sessionID); err == nil {
		ex.Title = s.Title
	}
	c.view.RenderSessions(c.store.Summaries(), c.ActiveID())
	return ex, nil
}

// record stores the exchange on the session it was sent from, preferring the
// remote's canonical history over locally accumulated turns.
func (c *Controller) record(ctx context.Context, sessionID string, conv ai.Conversation, ex Exchange) {
	history, err := conv.History(ctx)
	if err == nil {
		err = c.store.ReplaceHistory(ctx, sessionID, history)
	} else {
		c.log.Warn().Err(err).Str("session_id", sessionID).Msg("failed to fetch remote history, appending locally")
		if err = c.store.AppendTurn(ctx, sessionID, chat.RoleUser, ex.User.Text()); err == nil {
			err = c.store.AppendTurn(ctx, sessionID, chat.RoleModel, ex.Reply.Text())
		}
	}
	if err != nil {
		c.log.Error().Err(err).Str("session_id", sessionID).Msg("failed to record exchange")
		return
	}

	if _, err := c.store.RenameIfDefault(ctx, sessionID, chat.DeriveTitle(ex.User.Text())); err != nil {
		c.log.Error().Err(err).Str("session_id", sessionID).Msg("failed to rename session")
	}
}

func (c *Controller) showIfActive(sessionID string, turn chat.Turn) {
	if c.ActiveID() == sessionID {
		c.view.AppendTurn(turn, true)
	}
}

package ai

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/datastream-chat/backend/internal/config"
	"github.com/zhouzirui/datastream-chat/backend/internal/model/chat"
)

// Client opens remote conversations.
type Client interface {
	NewConversation(ctx context.Context, seed []chat.Turn) (Conversation, error)
}

// Conversation is a stateful dialogue handle with the remote model.
type Conversation interface {
	// Send transmits text and waits for the complete reply.
	Send(ctx context.Context, text string) (string, error)
	// Stream is Send with incremental reply fragments passed to onDelta.
	Stream(ctx context.Context, text string, onDelta func(string)) (string, error)
	// History returns the canonical transcript including seeded turns.
	History(ctx context.Context) ([]chat.Turn, error)
}

// Service encapsulates AI-powered chat functionality
type Service struct {
	chatModel model.BaseChatModel
	modelName string
	streaming bool
	chain     compose.Runnable[map[string]any, *schema.Message]
	log       zerolog.Logger
}

var _ Client = (*Service)(nil)

// Options tune a Service built around an existing chat model.
type Options struct {
	ModelName    string
	SystemPrompt string
	Streaming    bool
	Logger       zerolog.Logger
}

// NewService creates the Ark-backed service described by cfg.
func NewService(ctx context.Context, cfg config.AIConfig, logger zerolog.Logger) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	return NewServiceWithModel(ctx, chatModel, Options{
		ModelName:    cfg.Model,
		SystemPrompt: cfg.SystemPrompt,
		Streaming:    cfg.StreamResponse,
		Logger:       logger,
	})
}

// NewServiceWithModel compiles the conversation chain around chatModel.
func NewServiceWithModel(ctx context.Context, chatModel model.BaseChatModel, opts Options) (*Service, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model is required")
	}

	templates := make([]schema.MessagesTemplate, 0, 3)
	if opts.SystemPrompt != "" {
		templates = append(templates, schema.SystemMessage(escapeTemplate(opts.SystemPrompt)))
	}
	templates = append(templates,
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(prompt.FromMessages(schema.FString, templates...))
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{
		chatModel: chatModel,
		modelName: opts.ModelName,
		streaming: opts.Streaming,
		chain:     runnable,
		log:       opts.Logger.With().Str("component", "ai").Logger(),
	}, nil
}

// StreamingEnabled 指示是否开启流式输出。
func (s *Service) StreamingEnabled() bool {
	return s.streaming
}

// ModelName reports the model identifier conversations are scoped to.
func (s *Service) ModelName() string {
	return s.modelName
}

// NewConversation opens a handle seeded with a session's stored turns.
func (s *Service) NewConversation(_ context.Context, seed []chat.Turn) (Conversation, error) {
	history := make([]*schema.Message, 0, len(seed))
	for _, turn := range seed {
		history = append(history, toSchemaMessage(turn))
	}
	s.log.Debug().Str("model", s.modelName).Int("seed_turns", len(seed)).Msg("conversation opened")
	return &conversation{service: s, history: history}, nil
}

func toSchemaMessage(turn chat.Turn) *schema.Message {
	if turn.Role == chat.RoleModel {
		return schema.AssistantMessage(turn.Text(), nil)
	}
	return schema.UserMessage(turn.Text())
}

func fromSchemaMessage(msg *schema.Message) chat.Turn {
	role := chat.RoleUser
	if msg.Role == schema.Assistant {
		role = chat.RoleModel
	}
	return chat.NewTurn(role, msg.Content)
}

// escapeTemplate keeps literal braces in operator-provided prompts out of FString substitution.
func escapeTemplate(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		out = append(out, r)
		if r == '{' || r == '}' {
			out = append(out, r)
		}
	}
	return string(out)
}

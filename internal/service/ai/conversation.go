package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/datastream-chat/backend/internal/model/chat"
)

var ErrEmptyResponse = errors.New("empty response from model")

type conversation struct {
	service *Service

	mu      sync.Mutex
	history []*schema.Message
}

func (c *conversation) Send(ctx context.Context, text string) (string, error) {
	input := c.chainInput(text)

	response, err := c.service.chain.Invoke(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to run AI chain: %w", err)
	}
	if response == nil {
		return "", ErrEmptyResponse
	}

	c.commit(text, response)
	c.service.log.Info().Int("length", len(response.Content)).Msg("generated response")
	return response.Content, nil
}

// Stream falls back to a single Send, delivered as one delta, when streaming is disabled.
func (c *conversation) Stream(ctx context.Context, text string, onDelta func(string)) (string, error) {
	if !c.service.streaming {
		reply, err := c.Send(ctx, text)
		if err != nil {
			return "", err
		}
		if reply != "" && onDelta != nil {
			onDelta(reply)
		}
		return reply, nil
	}

	input := c.chainInput(text)

	stream, err := c.service.chain.Stream(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to stream AI chain output: %w", err)
	}
	defer stream.Close()

	chunks := make([]*schema.Message, 0, 8)
	for {
		chunk, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			return "", fmt.Errorf("failed to receive stream chunk: %w", recvErr)
		}
		if chunk == nil {
			continue
		}

		chunks = append(chunks, chunk)
		if chunk.Content != "" && onDelta != nil {
			onDelta(chunk.Content)
		}
	}
	if len(chunks) == 0 {
		return "", ErrEmptyResponse
	}

	response, err := schema.ConcatMessages(chunks)
	if err != nil {
		return "", fmt.Errorf("failed to concat stream chunks: %w", err)
	}

	c.commit(text, response)
	c.service.log.Info().Int("length", len(response.Content)).Int("chunks", len(chunks)).Msg("streamed response")
	return response.Content, nil
}

func (c *conversation) History(_ context.Context) ([]chat.Turn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	turns := make([]chat.Turn, 0, len(c.history))
	for _, msg := range c.history {
		turns = append(turns, fromSchemaMessage(msg))
	}
	return turns, nil
}

func (c *conversation) chainInput(text string) map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()

	return map[string]any{
		"history": append([]*schema.Message(nil), c.history...),
		"query":   text,
	}
}

// commit records a completed exchange; failed calls never reach here.
func (c *conversation) commit(text string, response *schema.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.history = append(c.history,
		schema.UserMessage(text),
		schema.AssistantMessage(response.Content, nil),
	)
}

package stream

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/zhouzirui/datastream-chat/backend/internal/service/conversation"
	"github.com/zhouzirui/datastream-chat/backend/pkg/utils"
)

// Handler manages streaming AI responses via Server-Sent Events
type Handler struct {
	ctrl *conversation.Controller
	log  zerolog.Logger
}

// New creates a new stream handler
func New(ctrl *conversation.Controller, logger zerolog.Logger) *Handler {
	return &Handler{
		ctrl: ctrl,
		log:  logger.With().Str("component", "stream").Logger(),
	}
}

// StreamResponse represents a streaming response chunk
type StreamResponse struct {
	SessionID string `json:"sessionId,omitempty"`
	Content   string `json:"content,omitempty"`
	Title     string `json:"title,omitempty"`
	Failed    bool   `json:"failed,omitempty"`
	Finished  bool   `json:"finished,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ServeHTTP streams the reply to ?message= for the active session.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	message := r.URL.Query().Get("message")
	if err := h.HandleStreamRequest(r.Context(), w, message); err != nil {
		h.log.Warn().Err(err).Msg("stream request ended with error")
	}
}

// HandleStreamRequest sends a message and relays the reply as SSE events:
// start, delta*, then message or error, then end.
func (h *Handler) HandleStreamRequest(ctx context.Context, w http.ResponseWriter, message string) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return fmt.Errorf("streaming unsupported")
	}

	utils.SetupSSEHeaders(w)
	sessionID := h.ctrl.ActiveID()

	if err := utils.SendSSEEvent(w, flusher, "start", StreamResponse{SessionID: sessionID}); err != nil {
		return err
	}

	var writeErr error
	exchange, err := h.ctrl.StreamMessage(ctx, message, func(delta string) {
		if writeErr != nil {
			return
		}
		writeErr = utils.SendSSEEvent(w, flusher, "delta", StreamResponse{SessionID: sessionID, Content: delta})
	})
	if err != nil {
		_ = utils.SendSSEEvent(w, flusher, "error", StreamResponse{SessionID: sessionID, Error: err.Error()})
		return err
	}
	if writeErr != nil {
		// The exchange is already recorded; only the client connection is gone.
		return writeErr
	}

	if exchange.Failed {
		if err := utils.SendSSEEvent(w, flusher, "error", StreamResponse{
			SessionID: exchange.SessionID,
			Content:   exchange.Reply.Text(),
			Failed:    true,
		}); err != nil {
			return err
		}
	} else if err := utils.SendSSEEvent(w, flusher, "message", StreamResponse{
		SessionID: exchange.SessionID,
		Content:   exchange.Reply.Text(),
		Title:     exchange.Title,
	}); err != nil {
		return err
	}

	h.log.Info().Str("session_id", exchange.SessionID).Bool("failed", exchange.Failed).Msg("completed stream")
	return utils.SendSSEEvent(w, flusher, "end", StreamResponse{SessionID: exchange.SessionID, Finished: true})
}

package chat

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/datastream-chat/backend/internal/model/chat"
	"github.com/zhouzirui/datastream-chat/backend/internal/service/conversation"
	"github.com/zhouzirui/datastream-chat/backend/internal/service/session"
	"github.com/zhouzirui/datastream-chat/backend/internal/view"
	"github.com/zhouzirui/datastream-chat/backend/pkg/utils"
)

// Handler 聊天服务的HTTP处理器
type Handler struct {
	ctrl       *conversation.Controller
	transcript *view.Transcript
}

// New 创建聊天处理器
func New(ctrl *conversation.Controller, transcript *view.Transcript) *Handler {
	return &Handler{
		ctrl:       ctrl,
		transcript: transcript,
	}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/sessions", h.handleListSessions)
	r.Post("/sessions", h.handleCreateSession)
	r.Put("/sessions/active", h.handleSwitchSession)
	r.Get("/transcript", h.handleTranscript)
	r.Post("/messages", h.handleSendMessage)
}

type sessionList struct {
	ActiveID string         `json:"activeId"`
	Sessions []chat.Summary `json:"sessions"`
}

// handleListSessions 列出会话
func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, sessionList{
		ActiveID: h.ctrl.ActiveID(),
		Sessions: h.ctrl.Sessions(),
	})
}

// handleCreateSession 创建会话
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	id, err := h.ctrl.CreateSession(r.Context())
	if err != nil {
		utils.RespondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// handleSwitchSession 切换当前会话
func (h *Handler) handleSwitchSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ID string `json:"id"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.ID == "" {
		utils.RespondError(w, http.StatusBadRequest, "id is required")
		return
	}

	if err := h.ctrl.SwitchSession(r.Context(), payload.ID); err != nil {
		status := http.StatusServiceUnavailable
		if errors.Is(err, session.ErrSessionNotFound) {
			status = http.StatusNotFound
		}
		utils.RespondError(w, status, err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleTranscript 返回当前可见的对话内容
func (h *Handler) handleTranscript(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.transcript.Snapshot())
}

// handleSendMessage 发送消息并等待回复
func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Text string `json:"text"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	exchange, err := h.ctrl.SendMessage(r.Context(), payload.Text)
	if err != nil {
		utils.RespondError(w, StatusForSendError(err), err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, exchange)
}

// StatusForSendError 将发送错误映射为HTTP状态码
func StatusForSendError(err error) int {
	switch {
	case errors.Is(err, conversation.ErrEmptyMessage):
		return http.StatusBadRequest
	case errors.Is(err, conversation.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, conversation.ErrNoConversation):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

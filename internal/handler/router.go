package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/datastream-chat/backend/internal/handler/chat"
	"github.com/zhouzirui/datastream-chat/backend/internal/handler/events"
	"github.com/zhouzirui/datastream-chat/backend/internal/handler/stream"
	middlewarePkg "github.com/zhouzirui/datastream-chat/backend/internal/middleware"
	"github.com/zhouzirui/datastream-chat/backend/internal/service/conversation"
	"github.com/zhouzirui/datastream-chat/backend/internal/view"
	"github.com/zhouzirui/datastream-chat/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(ctrl *conversation.Controller, transcript *view.Transcript, hub *events.Hub, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	chatHandler := chat.New(ctrl, transcript)
	streamHandler := stream.New(ctrl, logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(api chi.Router) {
		chatHandler.RegisterRoutes(api)
		api.Get("/stream", streamHandler.ServeHTTP)

		if hub != nil {
			hub.RegisterRoutes(api)
		}
	})

	return r
}

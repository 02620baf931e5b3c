package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/datastream-chat/backend/internal/config"
	"github.com/zhouzirui/datastream-chat/backend/internal/handler"
	"github.com/zhouzirui/datastream-chat/backend/internal/handler/events"
	"github.com/zhouzirui/datastream-chat/backend/internal/logging"
	"github.com/zhouzirui/datastream-chat/backend/internal/service/ai"
	"github.com/zhouzirui/datastream-chat/backend/internal/service/conversation"
	"github.com/zhouzirui/datastream-chat/backend/internal/service/session"
	"github.com/zhouzirui/datastream-chat/backend/internal/storage"
	"github.com/zhouzirui/datastream-chat/backend/internal/view"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		boot := logging.New(logging.Config{}, os.Stderr)
		boot.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}, os.Stderr)
	if envErr != nil {
		logger.Warn().Err(envErr).Msg("failed to load .env file, continuing with system environment variables only")
	}

	kv, err := storage.Open(ctx, cfg.Store.Storage())
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Store.Driver).Msg("failed to open session storage")
	}
	defer kv.Close()
	logger.Info().Str("driver", cfg.Store.Driver).Str("path", cfg.Store.Path).Msg("session storage opened")

	if !cfg.AI.Enabled() {
		logger.Fatal().Msg("Ark 凭证或模型未配置，至少提供 ARK_API_KEY + Model 或 AK/SK 组合")
	}
	aiService, err := ai.NewService(ctx, cfg.AI, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize AI service")
	}
	logger.Info().Str("model", aiService.ModelName()).Bool("streaming", aiService.StreamingEnabled()).Msg("AI service initialized")

	transcript := view.NewTranscript()
	hub := events.NewHub(transcript.Snapshot, logger)
	store := session.NewStore(kv, session.WithLogger(logger))
	ctrl := conversation.NewController(store, aiService, view.Multi{transcript, hub}, logger)
	if err := ctrl.Start(ctx); err != nil {
		// The server stays up; the next activation retries opening a conversation.
		logger.Error().Err(err).Msg("failed to activate session")
	}

	router := handler.NewRouter(ctrl, transcript, hub, logger)

	startServer(ctx, cfg.Server, router, logger)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, logger zerolog.Logger) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info().Str("addr", addr).Msg("datastream chat backend listening")
	if err := runServer(ctx, srv); err != nil {
		logger.Fatal().Err(err).Msg("server error")
	}
	logger.Info().Msg("server shutdown complete")
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

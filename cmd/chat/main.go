package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/datastream-chat/backend/internal/config"
	"github.com/zhouzirui/datastream-chat/backend/internal/logging"
	"github.com/zhouzirui/datastream-chat/backend/internal/service/ai"
	"github.com/zhouzirui/datastream-chat/backend/internal/service/conversation"
	"github.com/zhouzirui/datastream-chat/backend/internal/service/session"
	"github.com/zhouzirui/datastream-chat/backend/internal/storage"
	"github.com/zhouzirui/datastream-chat/backend/internal/tui"
	"github.com/zhouzirui/datastream-chat/backend/internal/view"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "chat",
		Short:        "Terminal client for multi-session AI chat",
		SilenceUsage: true,
		RunE:         run,
	}

	rootCmd.Flags().String("store-driver", "", "Session storage backend (memory, file, sqlite, redis); overrides STORE_DRIVER")
	rootCmd.Flags().String("store-path", "", "Session storage path for file/sqlite backends; overrides STORE_PATH")
	rootCmd.Flags().String("log-file", "", "Write logs to this file (logs are discarded when empty)")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if err := applyStoreFlags(cmd, &cfg.Store); err != nil {
		return err
	}

	logger := zerolog.Nop()
	if path, _ := cmd.Flags().GetString("log-file"); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		logger = logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}, f)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	kv, err := storage.Open(ctx, cfg.Store.Storage())
	if err != nil {
		return fmt.Errorf("open session storage: %w", err)
	}
	defer kv.Close()

	if !cfg.AI.Enabled() {
		return fmt.Errorf("AI credentials are not configured: set Model plus ARK_API_KEY or ARK_ACCESS_KEY and ARK_SECRET_KEY")
	}
	aiService, err := ai.NewService(ctx, cfg.AI, logger)
	if err != nil {
		return fmt.Errorf("initialize AI service: %w", err)
	}

	transcript := view.NewTranscript()
	store := session.NewStore(kv, session.WithLogger(logger))
	ctrl := conversation.NewController(store, aiService, transcript, logger)

	p := tea.NewProgram(tui.New(ctx, ctrl, transcript), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run terminal UI: %w", err)
	}
	return nil
}

// applyStoreFlags lets command-line flags win over the environment.
func applyStoreFlags(cmd *cobra.Command, store *config.StoreConfig) error {
	flags := cmd.Flags()
	if flags.Changed("store-driver") {
		driver, _ := flags.GetString("store-driver")
		driver = strings.ToLower(strings.TrimSpace(driver))
		switch driver {
		case storage.DriverMemory, storage.DriverFile, storage.DriverSQLite, storage.DriverRedis:
		default:
			return fmt.Errorf("invalid --store-driver value %q", driver)
		}
		if driver != store.Driver && !flags.Changed("store-path") && os.Getenv("STORE_PATH") == "" {
			store.Path = config.DefaultStorePath(driver)
		}
		store.Driver = driver
	}
	if flags.Changed("store-path") {
		store.Path, _ = flags.GetString("store-path")
	}
	return nil
}

package main

import (
	"testing"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/datastream-chat/backend/internal/config"
)

func newFlagCommand(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "chat"}
	cmd.Flags().String("store-driver", "", "")
	cmd.Flags().String("store-path", "", "")
	if err := cmd.Flags().Parse(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return cmd
}

func TestApplyStoreFlagsDriverSwitchesDefaultPath(t *testing.T) {
	t.Setenv("STORE_PATH", "")
	store := config.StoreConfig{Driver: "file", Path: config.DefaultStorePath("file")}

	if err := applyStoreFlags(newFlagCommand(t, "--store-driver", "SQLite"), &store); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.Driver != "sqlite" || store.Path != "data/chat_store.db" {
		t.Fatalf("unexpected store config: %+v", store)
	}
}

func TestApplyStoreFlagsExplicitPath(t *testing.T) {
	store := config.StoreConfig{Driver: "file", Path: "a.json"}

	if err := applyStoreFlags(newFlagCommand(t, "--store-driver", "sqlite", "--store-path", "/tmp/x.db"), &store); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.Driver != "sqlite" || store.Path != "/tmp/x.db" {
		t.Fatalf("unexpected store config: %+v", store)
	}
}

func TestApplyStoreFlagsRejectsUnknownDriver(t *testing.T) {
	store := config.StoreConfig{Driver: "file"}
	if err := applyStoreFlags(newFlagCommand(t, "--store-driver", "etcd"), &store); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestApplyStoreFlagsNoFlags(t *testing.T) {
	store := config.StoreConfig{Driver: "redis", Path: "keep"}
	if err := applyStoreFlags(newFlagCommand(t), &store); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.Driver != "redis" || store.Path != "keep" {
		t.Fatalf("unexpected store config: %+v", store)
	}
}

package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("STORE_PATH", "")
	t.Setenv("ARK_STREAM", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("unexpected addr %q", cfg.Server.Addr)
	}
	if cfg.Store.Driver != "file" || cfg.Store.Path != "data/chat_store.json" {
		t.Fatalf("unexpected store config %+v", cfg.Store)
	}
	if !cfg.AI.StreamResponse {
		t.Fatal("streaming should default to on")
	}
}

func TestLoadSQLiteDefaultPath(t *testing.T) {
	t.Setenv("STORE_DRIVER", "SQLite")
	t.Setenv("STORE_PATH", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}
	if cfg.Store.Driver != "sqlite" || cfg.Store.Path != "data/chat_store.db" {
		t.Fatalf("unexpected store config %+v", cfg.Store)
	}
	if got := cfg.Store.Storage(); got.Driver != "sqlite" || got.Path != cfg.Store.Path {
		t.Fatalf("storage config not mapped: %+v", got)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"STORE_DRIVER": "etcd",
		"REDIS_DB":     "-1",
		"ARK_STREAM":   "maybe",
		"PORT":         "80 80",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%q", key, value)
			}
		})
	}
}

func TestAIConfigEnabled(t *testing.T) {
	if (AIConfig{APIKey: "k"}).Enabled() {
		t.Fatal("model is required")
	}
	if !(AIConfig{APIKey: "k", Model: "m"}).Enabled() {
		t.Fatal("api key + model should enable AI")
	}
	if !(AIConfig{AccessKey: "a", SecretKey: "s", Model: "m"}).Enabled() {
		t.Fatal("ak/sk + model should enable AI")
	}
}

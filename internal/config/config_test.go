package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("TELEGRAM_BOT_TOKEN", "test-token")
	t.Setenv("OPENAI_API_KEY", "test-key")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Capacity != 1000 {
		t.Errorf("capacity = %d, want 1000", cfg.Capacity)
	}
	if cfg.DefaultWindow != 100 {
		t.Errorf("default window = %d, want 100", cfg.DefaultWindow)
	}
	if !cfg.TrackTopics {
		t.Error("topics should be tracked by default")
	}
	if !strings.Contains(cfg.TelegramAPIBase, "test-token") {
		t.Errorf("api base = %q", cfg.TelegramAPIBase)
	}
	if cfg.SystemPrompt != DefaultSystemPrompt {
		t.Error("system prompt should default to DefaultSystemPrompt")
	}
	if cfg.OpenAIChatCompURL != "https://api.openai.com/v1/chat/completions" {
		t.Errorf("completions url = %q", cfg.OpenAIChatCompURL)
	}
}

func TestLoad_MissingTelegramToken(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("OPENAI_API_KEY", "test-key")
	t.Setenv("RECAP_GATEWAY", "telegram")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when TELEGRAM_BOT_TOKEN is missing")
	}
}

func TestLoad_MissingOpenAIKey(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "test-token")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("RECAP_PROVIDER", "openai")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when OPENAI_API_KEY is missing")
	}
}

func TestLoad_DummyNeedsNoCredentials(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("RECAP_GATEWAY", "dummy")
	t.Setenv("RECAP_PROVIDER", "dummy")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Gateway != "dummy" || cfg.Provider != "dummy" {
		t.Errorf("gateway/provider = %s/%s", cfg.Gateway, cfg.Provider)
	}
}

func TestLoad_FileOverlayAndEnvWins(t *testing.T) {
	setRequiredEnv(t)

	path := filepath.Join(t.TempDir(), "recap.yaml")
	content := "capacity: 500\ndefault_window: 50\nmodel: file-model\nops_addr: :9090\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("RECAP_CONFIG", path)
	t.Setenv("OPENAI_MODEL", "env-model")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Capacity != 500 || cfg.DefaultWindow != 50 {
		t.Errorf("file values not applied: capacity=%d window=%d", cfg.Capacity, cfg.DefaultWindow)
	}
	if cfg.OpsAddr != ":9090" {
		t.Errorf("ops addr = %q", cfg.OpsAddr)
	}
	if cfg.OpenAIModel != "env-model" {
		t.Errorf("environment should win over file, model = %q", cfg.OpenAIModel)
	}
}

func TestLoad_InvalidFile(t *testing.T) {
	setRequiredEnv(t)

	path := filepath.Join(t.TempDir(), "recap.yaml")
	if err := os.WriteFile(path, []byte("capacity: [broken"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("RECAP_CONFIG", path)

	if _, err := Load(); err == nil {
		t.Fatal("expected error for malformed config file")
	}
}

func TestLoad_WindowOutOfRange(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("RECAP_CAPACITY", "100")
	t.Setenv("RECAP_DEFAULT_WINDOW", "200")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when default window exceeds capacity")
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("RECAP_TEST_INT", "abc")
	if got := envIntOrDefault("RECAP_TEST_INT", 7); got != 7 {
		t.Errorf("non-numeric int env should fall back, got %d", got)
	}
	t.Setenv("RECAP_TEST_BOOL", "TRUE")
	if !envBoolOrDefault("RECAP_TEST_BOOL", false) {
		t.Error("TRUE should parse as true")
	}
	t.Setenv("RECAP_TEST_FLOAT", "0.5")
	if got := envFloatOrDefault("RECAP_TEST_FLOAT", 1); got != 0.5 {
		t.Errorf("float env = %v, want 0.5", got)
	}
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q, want :8080", cfg.BindAddr)
	}
	if cfg.LLMProvider != "auto" || cfg.IntentStrategy != "llm" {
		t.Fatalf("provider/strategy = %q/%q, want auto/llm", cfg.LLMProvider, cfg.IntentStrategy)
	}
	if cfg.LLMModel != "gemini-3-flash-preview" || cfg.LLMLiteModel != "gemini-2.5-flash-lite" {
		t.Fatalf("models = %q/%q", cfg.LLMModel, cfg.LLMLiteModel)
	}
	if !cfg.SerializePerUser {
		t.Fatalf("SerializePerUser = false, want true by default")
	}
	if cfg.LLMMaxRetries != 0 {
		t.Fatalf("LLMMaxRetries = %d, want 0", cfg.LLMMaxRetries)
	}
	if cfg.OnboardingURL != "https://tally.so/r/9qN6p4" {
		t.Fatalf("OnboardingURL = %q", cfg.OnboardingURL)
	}
	if cfg.DatabaseURL != "" {
		t.Fatalf("DatabaseURL = %q, want empty default", cfg.DatabaseURL)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_BIND_ADDR", ":9191")
	t.Setenv("APP_SERIALIZE_PER_USER", "off")
	t.Setenv("LLM_PROVIDER", "mock")
	t.Setenv("LLM_MAX_RETRIES", "3")
	t.Setenv("INTENT_STRATEGY", "keyword")
	t.Setenv("TELEGRAM_WEBHOOK_SECRET", "s3cret")
	t.Setenv("APP_SESSION_IDLE_TIMEOUT", "10m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":9191" || cfg.SerializePerUser || cfg.LLMProvider != "mock" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.LLMMaxRetries != 3 || cfg.IntentStrategy != "keyword" || cfg.TelegramWebhookSecret != "s3cret" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.SessionIdleTimeout != 10*time.Minute {
		t.Fatalf("SessionIdleTimeout = %v, want 10m", cfg.SessionIdleTimeout)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"LLM_PROVIDER":             "openai",
		"INTENT_STRATEGY":          "tools",
		"APP_SESSION_IDLE_TIMEOUT": "1s",
		"LLM_MAX_RETRIES":          "-1",
		"APP_ALLOW_ANY_ORIGIN":     "maybe",
		"LOG_FORMAT":               "xml",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			setCoreEnvEmpty(t)
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Fatalf("Load() with %s=%q: expected error", key, value)
			}
		})
	}
}

func TestLoadFileOverlayAndEnvPrecedence(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("TRAVELER_TEST_DB", "bolt:///tmp/traveler.db")

	path := filepath.Join(t.TempDir(), "traveler.yaml")
	data := strings.Join([]string{
		"app:",
		"  bind_addr: \":7070\"",
		"  session_idle_timeout: 45m",
		"  serialize_per_user: false",
		"database_url: ${TRAVELER_TEST_DB}",
		"llm:",
		"  provider: http",
		"  http_url: http://localhost:11434/v1/chat/completions",
		"  max_retries: 2",
		"intent_strategy: keyword",
	}, "\n")
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("LLM_MAX_RETRIES", "5")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.BindAddr != ":7070" || cfg.SessionIdleTimeout != 45*time.Minute || cfg.SerializePerUser {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.DatabaseURL != "bolt:///tmp/traveler.db" {
		t.Fatalf("DatabaseURL = %q, want expanded env reference", cfg.DatabaseURL)
	}
	if cfg.LLMProvider != "http" || cfg.IntentStrategy != "keyword" {
		t.Fatalf("unexpected provider/strategy: %+v", cfg)
	}
	if cfg.LLMMaxRetries != 5 {
		t.Fatalf("LLMMaxRetries = %d, want env override 5", cfg.LLMMaxRetries)
	}
}

func TestLoadFileMissing(t *testing.T) {
	setCoreEnvEmpty(t)
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		ConfigFileEnv,
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_SESSION_IDLE_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"APP_SERIALIZE_PER_USER",
		"LOG_LEVEL",
		"LOG_FORMAT",
		"DATABASE_URL",
		"LLM_PROVIDER",
		"GOOGLE_API_KEY",
		"LLM_MODEL",
		"LLM_LITE_MODEL",
		"LLM_HTTP_URL",
		"LLM_HTTP_API_KEY",
		"LLM_MAX_RETRIES",
		"LLM_TIMEOUT",
		"INTENT_STRATEGY",
		"ONBOARDING_URL",
		"TELEGRAM_WEBHOOK_SECRET",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}

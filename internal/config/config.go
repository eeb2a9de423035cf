package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config contains all runtime settings for the travel assistant service.
type Config struct {
	BindAddr           string
	ShutdownTimeout    time.Duration
	SessionIdleTimeout time.Duration
	MetricsNamespace   string
	AllowAnyOrigin     bool
	SerializePerUser   bool

	LogLevel  string
	LogFormat string

	DatabaseURL string

	LLMProvider   string
	GoogleAPIKey  string
	LLMModel      string
	LLMLiteModel  string
	LLMHTTPURL    string
	LLMHTTPAPIKey string
	LLMMaxRetries int
	LLMTimeout    time.Duration

	IntentStrategy        string
	OnboardingURL         string
	TelegramWebhookSecret string
}

// ConfigFileEnv names the variable holding an optional YAML config path.
const ConfigFileEnv = "TRAVELER_CONFIG"

// DotEnvFiles are loaded, when present, before the environment is read.
// Variables already set in the process environment win.
var DotEnvFiles = []string{".env.local", ".env"}

func defaults() Config {
	return Config{
		BindAddr:           ":8080",
		ShutdownTimeout:    15 * time.Second,
		SessionIdleTimeout: 30 * time.Minute,
		MetricsNamespace:   "traveler",
		SerializePerUser:   true,
		LogLevel:           "info",
		LogFormat:          "json",
		LLMProvider:        "auto",
		LLMModel:           "gemini-3-flash-preview",
		LLMLiteModel:       "gemini-2.5-flash-lite",
		LLMTimeout:         60 * time.Second,
		IntentStrategy:     "llm",
		OnboardingURL:      "https://tally.so/r/9qN6p4",
	}
}

// Load reads .env files, the optional YAML file named by TRAVELER_CONFIG and
// environment variables, in increasing precedence, then validates the result.
func Load() (Config, error) {
	return LoadFile(strings.TrimSpace(os.Getenv(ConfigFileEnv)))
}

// LoadFile is Load with an explicit YAML path. An empty path skips the file.
func LoadFile(path string) (Config, error) {
	if err := loadDotEnv(); err != nil {
		return Config{}, err
	}

	cfg := defaults()
	if path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadDotEnv() error {
	for _, name := range DotEnvFiles {
		if _, err := os.Stat(name); err != nil {
			continue
		}
		if err := godotenv.Load(name); err != nil {
			return fmt.Errorf("load %s: %w", name, err)
		}
	}
	return nil
}

type fileConfig struct {
	App struct {
		BindAddr           string `yaml:"bind_addr"`
		ShutdownTimeout    string `yaml:"shutdown_timeout"`
		SessionIdleTimeout string `yaml:"session_idle_timeout"`
		MetricsNamespace   string `yaml:"metrics_namespace"`
		AllowAnyOrigin     *bool  `yaml:"allow_any_origin"`
		SerializePerUser   *bool  `yaml:"serialize_per_user"`
	} `yaml:"app"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	DatabaseURL string `yaml:"database_url"`
	LLM         struct {
		Provider   string `yaml:"provider"`
		APIKey     string `yaml:"api_key"`
		Model      string `yaml:"model"`
		LiteModel  string `yaml:"lite_model"`
		HTTPURL    string `yaml:"http_url"`
		HTTPAPIKey string `yaml:"http_api_key"`
		MaxRetries *int   `yaml:"max_retries"`
		Timeout    string `yaml:"timeout"`
	} `yaml:"llm"`
	IntentStrategy        string `yaml:"intent_strategy"`
	OnboardingURL         string `yaml:"onboarding_url"`
	TelegramWebhookSecret string `yaml:"telegram_webhook_secret"`
}

// applyFile overlays a YAML file. ${VAR} references are expanded from the
// environment before parsing.
func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setString(&cfg.BindAddr, fc.App.BindAddr)
	setString(&cfg.MetricsNamespace, fc.App.MetricsNamespace)
	if fc.App.AllowAnyOrigin != nil {
		cfg.AllowAnyOrigin = *fc.App.AllowAnyOrigin
	}
	if fc.App.SerializePerUser != nil {
		cfg.SerializePerUser = *fc.App.SerializePerUser
	}
	setString(&cfg.LogLevel, fc.Log.Level)
	setString(&cfg.LogFormat, fc.Log.Format)
	setString(&cfg.DatabaseURL, fc.DatabaseURL)
	setString(&cfg.LLMProvider, fc.LLM.Provider)
	setString(&cfg.GoogleAPIKey, fc.LLM.APIKey)
	setString(&cfg.LLMModel, fc.LLM.Model)
	setString(&cfg.LLMLiteModel, fc.LLM.LiteModel)
	setString(&cfg.LLMHTTPURL, fc.LLM.HTTPURL)
	setString(&cfg.LLMHTTPAPIKey, fc.LLM.HTTPAPIKey)
	if fc.LLM.MaxRetries != nil {
		cfg.LLMMaxRetries = *fc.LLM.MaxRetries
	}
	setString(&cfg.IntentStrategy, fc.IntentStrategy)
	setString(&cfg.OnboardingURL, fc.OnboardingURL)
	setString(&cfg.TelegramWebhookSecret, fc.TelegramWebhookSecret)

	durations := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"app.shutdown_timeout", fc.App.ShutdownTimeout, &cfg.ShutdownTimeout},
		{"app.session_idle_timeout", fc.App.SessionIdleTimeout, &cfg.SessionIdleTimeout},
		{"llm.timeout", fc.LLM.Timeout, &cfg.LLMTimeout},
	}
	for _, d := range durations {
		if strings.TrimSpace(d.raw) == "" {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return fmt.Errorf("%s parse error: %w", d.name, err)
		}
		*d.dst = v
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.BindAddr = envOrDefault("APP_BIND_ADDR", cfg.BindAddr)
	cfg.MetricsNamespace = envOrDefault("APP_METRICS_NAMESPACE", cfg.MetricsNamespace)
	cfg.LogLevel = envOrDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = envOrDefault("LOG_FORMAT", cfg.LogFormat)
	cfg.DatabaseURL = envOrDefault("DATABASE_URL", cfg.DatabaseURL)
	cfg.LLMProvider = envOrDefault("LLM_PROVIDER", cfg.LLMProvider)
	cfg.GoogleAPIKey = envOrDefault("GOOGLE_API_KEY", cfg.GoogleAPIKey)
	cfg.LLMModel = envOrDefault("LLM_MODEL", cfg.LLMModel)
	cfg.LLMLiteModel = envOrDefault("LLM_LITE_MODEL", cfg.LLMLiteModel)
	cfg.LLMHTTPURL = envOrDefault("LLM_HTTP_URL", cfg.LLMHTTPURL)
	cfg.LLMHTTPAPIKey = envOrDefault("LLM_HTTP_API_KEY", cfg.LLMHTTPAPIKey)
	cfg.IntentStrategy = envOrDefault("INTENT_STRATEGY", cfg.IntentStrategy)
	cfg.OnboardingURL = envOrDefault("ONBOARDING_URL", cfg.OnboardingURL)
	cfg.TelegramWebhookSecret = envOrDefault("TELEGRAM_WEBHOOK_SECRET", cfg.TelegramWebhookSecret)

	var err error
	if cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout); err != nil {
		return err
	}
	if cfg.SessionIdleTimeout, err = durationFromEnv("APP_SESSION_IDLE_TIMEOUT", cfg.SessionIdleTimeout); err != nil {
		return err
	}
	if cfg.LLMTimeout, err = durationFromEnv("LLM_TIMEOUT", cfg.LLMTimeout); err != nil {
		return err
	}
	if cfg.LLMMaxRetries, err = intFromEnv("LLM_MAX_RETRIES", cfg.LLMMaxRetries); err != nil {
		return err
	}
	if cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin); err != nil {
		return err
	}
	if cfg.SerializePerUser, err = boolFromEnv("APP_SERIALIZE_PER_USER", cfg.SerializePerUser); err != nil {
		return err
	}
	return nil
}

// Validate checks value ranges and enumerations.
func (c Config) Validate() error {
	var errs []error
	if c.SessionIdleTimeout < 5*time.Second {
		errs = append(errs, errors.New("APP_SESSION_IDLE_TIMEOUT must be at least 5s"))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("APP_SHUTDOWN_TIMEOUT must be positive"))
	}
	if c.LLMMaxRetries < 0 {
		errs = append(errs, errors.New("LLM_MAX_RETRIES must be >= 0"))
	}
	if c.LLMTimeout <= 0 {
		errs = append(errs, errors.New("LLM_TIMEOUT must be positive"))
	}
	if !oneOf(c.LLMProvider, "auto", "gemini", "http", "mock") {
		errs = append(errs, fmt.Errorf("LLM_PROVIDER %q must be one of auto|gemini|http|mock", c.LLMProvider))
	}
	if !oneOf(c.IntentStrategy, "llm", "keyword") {
		errs = append(errs, fmt.Errorf("INTENT_STRATEGY %q must be llm or keyword", c.IntentStrategy))
	}
	if !oneOf(c.LogFormat, "json", "console") {
		errs = append(errs, fmt.Errorf("LOG_FORMAT %q must be json or console", c.LogFormat))
	}
	return errors.Join(errs...)
}

func oneOf(v string, options ...string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	for _, o := range options {
		if v == o {
			return true
		}
	}
	return false
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}

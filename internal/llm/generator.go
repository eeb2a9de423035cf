package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Purpose labels what a generation call is for. Adapters and metrics use it;
// prompts never depend on it.
type Purpose string

const (
	PurposeReply     Purpose = "reply"
	PurposeClassify  Purpose = "classify"
	PurposeReview    Purpose = "review"
	PurposeSummarize Purpose = "summarize"
	PurposeExtract   Purpose = "extract"
)

// Tier selects between the quality model and the cheaper lite model.
type Tier string

const (
	TierStandard Tier = "standard"
	TierLite     Tier = "lite"
)

// Request is the normalized text-generation request.
type Request struct {
	Purpose         Purpose
	Tier            Tier
	Instructions    string
	Prompt          string
	Temperature     float32
	MaxOutputTokens int
	// Input is the raw traveler message, when the call has one.
	Input string
}

// Generator produces a completion for a prompt.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// ErrOffline is returned by the mock backend for calls it cannot answer.
var ErrOffline = errors.New("generation backend offline")

// StatusError is a non-2xx response from an HTTP backend.
type StatusError struct {
	Code int
	Body string
	// RetryAfter is the backend's requested wait, zero when absent.
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend http status %d: %s", e.Code, e.Body)
}

// Config controls generator construction.
type Config struct {
	Provider   string
	APIKey     string
	Model      string
	LiteModel  string
	HTTPURL    string
	HTTPAPIKey string
	Timeout    time.Duration
	MaxRetries int
	RetryBase  time.Duration
	RetryCap   time.Duration
}

func (c Config) modelFor(t Tier) string {
	if t == TierLite && strings.TrimSpace(c.LiteModel) != "" {
		return c.LiteModel
	}
	return c.Model
}

func NewGenerator(ctx context.Context, cfg Config) (Generator, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = "auto"
	}

	switch provider {
	case "auto":
		return newAutoGenerator(ctx, cfg)
	case "gemini":
		if strings.TrimSpace(cfg.APIKey) == "" {
			return nil, errors.New("GOOGLE_API_KEY is required for gemini provider")
		}
		g, err := NewGeminiGenerator(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return withRetry(g, cfg), nil
	case "http":
		if strings.TrimSpace(cfg.HTTPURL) == "" {
			return nil, errors.New("LLM_HTTP_URL is required for http provider")
		}
		return withRetry(NewHTTPGenerator(cfg), cfg), nil
	case "mock":
		return NewMockGenerator(), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}

func newAutoGenerator(ctx context.Context, cfg Config) (Generator, error) {
	var secondary Generator
	if strings.TrimSpace(cfg.HTTPURL) != "" {
		secondary = withRetry(NewHTTPGenerator(cfg), cfg)
	}

	if strings.TrimSpace(cfg.APIKey) != "" {
		g, err := NewGeminiGenerator(ctx, cfg)
		if err != nil {
			return nil, err
		}
		primary := withRetry(g, cfg)
		if secondary != nil {
			return NewFallbackGenerator(primary, secondary), nil
		}
		return primary, nil
	}

	if secondary != nil {
		return secondary, nil
	}
	return NewMockGenerator(), nil
}

func withRetry(g Generator, cfg Config) Generator {
	if cfg.MaxRetries <= 0 {
		return g
	}
	return NewRetryGenerator(g, cfg.MaxRetries, cfg.RetryBase, cfg.RetryCap)
}

// ProviderName describes the backend chain behind g.
func ProviderName(g Generator) string {
	switch t := g.(type) {
	case *GeminiGenerator:
		return "gemini"
	case *HTTPGenerator:
		return "http"
	case *MockGenerator:
		return "mock"
	case *RetryGenerator:
		return ProviderName(t.next)
	case *InstrumentedGenerator:
		return ProviderName(t.next)
	case *FallbackGenerator:
		return ProviderName(t.primary) + "+" + ProviderName(t.fallback)
	default:
		return "custom"
	}
}

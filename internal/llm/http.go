package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/agentic-traveler/traveler/internal/reliability"
)

// HTTPGenerator talks to an OpenAI-compatible chat completions endpoint.
type HTTPGenerator struct {
	url    string
	apiKey string
	cfg    Config
	client *http.Client
}

func NewHTTPGenerator(cfg Config) *HTTPGenerator {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPGenerator{
		url:    strings.TrimSpace(cfg.HTTPURL),
		apiKey: strings.TrimSpace(cfg.HTTPAPIKey),
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model,omitempty"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

func (g *HTTPGenerator) Generate(ctx context.Context, req Request) (string, error) {
	messages := make([]chatMessage, 0, 2)
	if strings.TrimSpace(req.Instructions) != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.Instructions})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	payload, err := json.Marshal(chatRequest{
		Model:       g.cfg.modelFor(req.Tier),
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxOutputTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	res, err := g.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return "", &StatusError{
			Code:       res.StatusCode,
			Body:       strings.TrimSpace(string(body)),
			RetryAfter: reliability.ParseRetryAfter(res.Header.Get("Retry-After"), time.Now()),
		}
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	return extractText(body), nil
}

var responseTextPaths = []string{
	"choices.0.message.content",
	"choices.0.text",
	"candidates.0.content.parts.0.text",
	"output_text",
	"text",
	"output",
	"message",
}

// extractText pulls the completion out of the common response shapes.
// A body that is not JSON is treated as the completion itself.
func extractText(body []byte) string {
	if !gjson.ValidBytes(body) {
		return strings.TrimSpace(string(body))
	}
	for _, path := range responseTextPaths {
		r := gjson.GetBytes(body, path)
		if r.Type == gjson.String {
			return r.String()
		}
	}
	return ""
}

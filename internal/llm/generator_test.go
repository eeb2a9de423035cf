package llm

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNewGeneratorAutoFallsBackToMock(t *testing.T) {
	g, err := NewGenerator(context.Background(), Config{Provider: "auto"})
	if err != nil {
		t.Fatalf("NewGenerator() error = %v", err)
	}
	if got := ProviderName(g); got != "mock" {
		t.Fatalf("ProviderName() = %q, want mock", got)
	}

	text, err := g.Generate(context.Background(), Request{Purpose: PurposeReply, Input: "hello"})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if !strings.Contains(text, "I heard you: hello") {
		t.Fatalf("unexpected response text: %q", text)
	}
}

func TestNewGeneratorAutoPrefersHTTPWithoutKey(t *testing.T) {
	g, err := NewGenerator(context.Background(), Config{Provider: "auto", HTTPURL: "http://example.test", MaxRetries: 2})
	if err != nil {
		t.Fatalf("NewGenerator() error = %v", err)
	}
	if got := ProviderName(g); got != "http" {
		t.Fatalf("ProviderName() = %q, want http", got)
	}
}

func TestNewGeneratorRejectsMissingSettings(t *testing.T) {
	for _, cfg := range []Config{
		{Provider: "gemini"},
		{Provider: "http"},
		{Provider: "carrier-pigeon"},
	} {
		if _, err := NewGenerator(context.Background(), cfg); err == nil {
			t.Fatalf("NewGenerator(%+v) expected error", cfg)
		}
	}
}

func TestMockGeneratorOnlyAnswersReplies(t *testing.T) {
	g := NewMockGenerator()
	if _, err := g.Generate(context.Background(), Request{Purpose: PurposeReview, Prompt: "x"}); !errors.Is(err, ErrOffline) {
		t.Fatalf("error = %v, want ErrOffline", err)
	}
	text, err := g.Generate(context.Background(), Request{Purpose: PurposeReply, Prompt: "line one\nTraveler says: \"hi\"\n"})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if text != `I heard you: Traveler says: "hi"` {
		t.Fatalf("text = %q", text)
	}
}

func TestFallbackGeneratorUsesFallback(t *testing.T) {
	g := NewFallbackGenerator(errGenerator{}, okGenerator{text: "fallback"})
	text, err := g.Generate(context.Background(), Request{Prompt: "x"})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if text != "fallback" {
		t.Fatalf("text = %q, want fallback", text)
	}
}

func TestFallbackGeneratorSkipsFallbackOnCanceledContext(t *testing.T) {
	fb := &countingGenerator{text: "fallback"}
	g := NewFallbackGenerator(cancelGenerator{}, fb)
	_, err := g.Generate(context.Background(), Request{Prompt: "x"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if fb.calls != 0 {
		t.Fatalf("fallback should not be called, calls = %d", fb.calls)
	}
}

func TestRetryGeneratorRetriesTransientStatus(t *testing.T) {
	inner := &flakyGenerator{failures: 2, err: &StatusError{Code: 503}}
	g := NewRetryGenerator(inner, 3, time.Millisecond, time.Millisecond)
	g.sleep = func(context.Context, time.Duration) error { return nil }

	text, err := g.Generate(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if text != "ok" || inner.calls != 3 {
		t.Fatalf("text = %q calls = %d, want ok after 3 calls", text, inner.calls)
	}
}

func TestRetryGeneratorStopsOnPermanentError(t *testing.T) {
	inner := &flakyGenerator{failures: 5, err: &StatusError{Code: 400}}
	g := NewRetryGenerator(inner, 3, time.Millisecond, time.Millisecond)
	g.sleep = func(context.Context, time.Duration) error { return nil }

	if _, err := g.Generate(context.Background(), Request{}); err == nil {
		t.Fatalf("Generate() expected error")
	}
	if inner.calls != 1 {
		t.Fatalf("calls = %d, want 1", inner.calls)
	}
}

func TestHTTPGeneratorParsesChatCompletion(t *testing.T) {
	var gotAuth, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Try Porto."}}]}`))
	}))
	defer srv.Close()

	g := NewHTTPGenerator(Config{HTTPURL: srv.URL, HTTPAPIKey: "secret", Model: "big", LiteModel: "small"})
	text, err := g.Generate(context.Background(), Request{
		Tier:            TierLite,
		Instructions:    "be brief",
		Prompt:          "where to?",
		Temperature:     0.2,
		MaxOutputTokens: 300,
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if text != "Try Porto." {
		t.Fatalf("text = %q", text)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("Authorization = %q", gotAuth)
	}
	for _, want := range []string{`"model":"small"`, `"role":"system"`, `"max_tokens":300`} {
		if !strings.Contains(gotBody, want) {
			t.Fatalf("request body %s missing %s", gotBody, want)
		}
	}
}

func TestHTTPGeneratorReturnsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "2")
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewHTTPGenerator(Config{HTTPURL: srv.URL}).Generate(context.Background(), Request{Prompt: "x"})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusTooManyRequests {
		t.Fatalf("error = %v, want StatusError 429", err)
	}
	if !Retryable(err) {
		t.Fatalf("429 should be retryable")
	}
	if statusErr.RetryAfter != 2*time.Second {
		t.Fatalf("RetryAfter = %v, want 2s", statusErr.RetryAfter)
	}
}

func TestRetryGeneratorWaitsRetryAfterWhenThrottled(t *testing.T) {
	inner := &flakyGenerator{failures: 1, err: &StatusError{Code: http.StatusTooManyRequests, RetryAfter: 3 * time.Second}}
	g := NewRetryGenerator(inner, 2, 10*time.Millisecond, 5*time.Second)
	var waits []time.Duration
	g.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	if _, err := g.Generate(context.Background(), Request{Prompt: "x"}); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(waits) != 1 || waits[0] != 3*time.Second {
		t.Fatalf("waits = %v, want [3s]", waits)
	}
}

func TestExtractTextShapes(t *testing.T) {
	cases := []struct {
		body string
		want string
	}{
		{`{"text":"a"}`, "a"},
		{`{"candidates":[{"content":{"parts":[{"text":"b"}]}}]}`, "b"},
		{`{"output":"c"}`, "c"},
		{"plain words\n", "plain words"},
		{`{"unrelated":1}`, ""},
	}
	for _, tc := range cases {
		if got := extractText([]byte(tc.body)); got != tc.want {
			t.Fatalf("extractText(%q) = %q, want %q", tc.body, got, tc.want)
		}
	}
}

type errGenerator struct{}

func (errGenerator) Generate(context.Context, Request) (string, error) {
	return "", errors.New("boom")
}

type okGenerator struct {
	text string
}

func (g okGenerator) Generate(context.Context, Request) (string, error) {
	return g.text, nil
}

type cancelGenerator struct{}

func (cancelGenerator) Generate(context.Context, Request) (string, error) {
	return "", context.Canceled
}

type countingGenerator struct {
	text  string
	calls int
}

func (g *countingGenerator) Generate(context.Context, Request) (string, error) {
	g.calls++
	return g.text, nil
}

type flakyGenerator struct {
	failures int
	err      error
	calls    int
}

func (g *flakyGenerator) Generate(context.Context, Request) (string, error) {
	g.calls++
	if g.calls <= g.failures {
		return "", g.err
	}
	return "ok", nil
}

package llm

import (
	"context"
	"errors"
	"net"
	"time"

	"google.golang.org/genai"

	"github.com/agentic-traveler/traveler/internal/reliability"
)

// RetryGenerator retries transient backend failures with capped exponential backoff.
type RetryGenerator struct {
	next       Generator
	maxRetries int
	base       time.Duration
	cap        time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
}

func NewRetryGenerator(next Generator, maxRetries int, base, cap time.Duration) *RetryGenerator {
	if base <= 0 {
		base = 250 * time.Millisecond
	}
	if cap <= 0 {
		cap = 4 * time.Second
	}
	return &RetryGenerator{
		next:       next,
		maxRetries: maxRetries,
		base:       base,
		cap:        cap,
		sleep:      sleepCtx,
	}
}

func (g *RetryGenerator) Generate(ctx context.Context, req Request) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			class, retryAfter := classify(lastErr)
			if err := g.sleep(ctx, reliability.Delay(class, attempt-1, g.base, g.cap, retryAfter)); err != nil {
				return "", err
			}
		}
		text, err := g.next.Generate(ctx, req)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !Retryable(err) {
			return "", err
		}
	}
	return "", lastErr
}

// Retryable reports whether err looks transient.
func Retryable(err error) bool {
	class, _ := classify(err)
	return class != reliability.Permanent
}

func classify(err error) (reliability.Class, time.Duration) {
	if err == nil {
		return reliability.Permanent, 0
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return reliability.Permanent, 0
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return reliability.ClassifyHTTPStatus(statusErr.Code), statusErr.RetryAfter
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return reliability.ClassifyHTTPStatus(apiErr.Code), 0
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return reliability.Transient, 0
	}
	return reliability.Permanent, 0
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

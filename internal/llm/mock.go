package llm

import (
	"context"
	"fmt"
	"strings"
)

// MockGenerator provides deterministic local replies when no backend is configured.
// Only reply calls are answered; every other purpose reports ErrOffline so callers
// take their local fallback path.
type MockGenerator struct{}

func NewMockGenerator() *MockGenerator { return &MockGenerator{} }

func (g *MockGenerator) Generate(ctx context.Context, req Request) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	if req.Purpose != PurposeReply {
		return "", ErrOffline
	}
	return buildMockReply(req), nil
}

func buildMockReply(req Request) string {
	base := strings.TrimSpace(req.Input)
	if base == "" {
		base = lastLine(req.Prompt)
	}
	if base == "" {
		return "I am listening."
	}
	return fmt.Sprintf("I heard you: %s", base)
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}

package safety

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-traveler/traveler/internal/llm"
	"github.com/agentic-traveler/traveler/internal/llm/llmtest"
)

func TestFilterSafeIsExactPassThrough(t *testing.T) {
	text := "  Try the tapas bars in El Born.\n\nEnjoy!  "
	r := NewReviewer(llmtest.Fixed("SAFE\n"), nil, nil)
	assert.Equal(t, text, r.Filter(context.Background(), text))
}

func TestFilterDisclaimerVerdict(t *testing.T) {
	text := "Cliff jumping at the quarry is popular with locals."
	r := NewReviewer(llmtest.Fixed(text+"\nSAFETY_DISCLAIMER_NEEDED"), nil, nil)

	got := r.Filter(context.Background(), text)
	assert.Equal(t, text+Disclaimer, got)
}

func TestFilterRewrite(t *testing.T) {
	rewrite := "Skip the abandoned factory and visit the industrial museum instead."
	r := NewReviewer(llmtest.Fixed("  "+rewrite+"  "), nil, nil)
	assert.Equal(t, rewrite, r.Filter(context.Background(), "Sneak into the abandoned factory at night."))
}

func TestFilterBackendFailureUsesKeywords(t *testing.T) {
	r := NewReviewer(llmtest.Failing(), nil, nil)

	risky := "You could try cliff jumping at sunset."
	assert.Equal(t, risky+Disclaimer, r.Filter(context.Background(), risky))

	safe := "The botanical garden opens at 9."
	assert.Equal(t, safe, r.Filter(context.Background(), safe))
}

func TestFilterEmptyVerdictUsesKeywords(t *testing.T) {
	r := NewReviewer(llmtest.Fixed(""), nil, nil)
	text := "Hitchhiking is common on that island."
	assert.Equal(t, text+Disclaimer, r.Filter(context.Background(), text))
}

func TestFilterRequest(t *testing.T) {
	gen := llmtest.NewRecorder()
	gen.Responses[llm.PurposeReview] = "SAFE"
	r := NewReviewer(gen, nil, nil)
	r.Filter(context.Background(), "hello")

	calls := gen.Calls(llm.PurposeReview)
	require.Len(t, calls, 1)
	assert.Equal(t, llm.TierLite, calls[0].Tier)
	assert.Equal(t, 2048, calls[0].MaxOutputTokens)
	assert.Equal(t, "hello", calls[0].Prompt)
}

func TestKeywordReview(t *testing.T) {
	assert.Equal(t, "Walking ALONE AT NIGHT there"+Disclaimer, KeywordReview("Walking ALONE AT NIGHT there"))
	assert.Equal(t, "Have a lovely trip", KeywordReview("Have a lovely trip"))
}

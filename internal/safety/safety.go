// Package safety reviews outgoing replies before they reach the traveler.
package safety

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/agentic-traveler/traveler/internal/llm"
	"github.com/agentic-traveler/traveler/internal/observability"
	"github.com/agentic-traveler/traveler/internal/policy"
)

// Disclaimer is appended to replies that touch safety-sensitive topics.
const Disclaimer = "\n\n⚠️ Please verify details and safety before booking or acting on this suggestion."

const (
	verdictSafe       = "SAFE"
	verdictDisclaimer = "SAFETY_DISCLAIMER_NEEDED"

	reviewTemperature = 0
	reviewMaxTokens   = 2048
)

const reviewInstructions = `You are a safety reviewer for a travel assistant chatbot.
You receive a response that the chatbot is about to send to the user.

Your job:
1. If the response contains clearly illegal or obviously unsafe suggestions
   (e.g. trespassing, drug use, dangerous stunts), REWRITE the response to
   remove those parts and replace them with a safe alternative. Return the
   full rewritten response.
2. If the response touches safety-sensitive topics (e.g. local laws, health
   risks, extreme sports, solo night walks) but is otherwise fine, return the
   original response AS-IS but append EXACTLY this line at the end:
   "SAFETY_DISCLAIMER_NEEDED"
3. If the response is completely safe, return EXACTLY:
   "SAFE"

Reply with ONLY one of the three options above, nothing else.`

type Reviewer struct {
	gen     llm.Generator
	logger  *zap.Logger
	metrics *observability.Metrics
}

func NewReviewer(gen llm.Generator, logger *zap.Logger, metrics *observability.Metrics) *Reviewer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reviewer{gen: gen, logger: logger.Named("safety"), metrics: metrics}
}

// Filter returns the reply to deliver for text. Safe text is returned
// byte-for-byte; sensitive text gains Disclaimer; unsafe text is replaced
// by the backend's rewrite.
func (r *Reviewer) Filter(ctx context.Context, text string) string {
	if r.gen == nil {
		return KeywordReview(text)
	}
	raw, err := r.gen.Generate(ctx, llm.Request{
		Purpose:         llm.PurposeReview,
		Tier:            llm.TierLite,
		Instructions:    reviewInstructions,
		Prompt:          text,
		Temperature:     reviewTemperature,
		MaxOutputTokens: reviewMaxTokens,
	})
	verdict := strings.TrimSpace(raw)
	if err != nil || verdict == "" {
		r.logger.Warn("safety review unavailable, using keyword check", zap.Error(err))
		r.metrics.ObserveFallback("safety")
		return KeywordReview(text)
	}

	switch {
	case verdict == verdictSafe:
		return text
	case strings.HasSuffix(verdict, verdictDisclaimer):
		return text + Disclaimer
	default:
		r.logger.Info("reply rewritten by safety review",
			zap.Int("original_chars", len(text)),
			zap.Int("rewritten_chars", len(verdict)),
		)
		return verdict
	}
}

// KeywordReview appends Disclaimer when text mentions a sensitive keyword.
func KeywordReview(text string) string {
	if policy.IsSensitive(text) {
		return text + Disclaimer
	}
	return text
}

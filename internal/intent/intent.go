// Package intent routes a traveler message to one of the reply categories
// and flags whether it states a preference.
package intent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/agentic-traveler/traveler/internal/llm"
	"github.com/agentic-traveler/traveler/internal/observability"
)

type Category string

const (
	Discovery Category = "discovery"
	Planning  Category = "planning"
	InTrip    Category = "in_trip"
	Chat      Category = "chat"
)

// Strategy selects how messages are classified.
type Strategy string

const (
	StrategyLLM     Strategy = "llm"
	StrategyKeyword Strategy = "keyword"
)

// ParseStrategy maps a configuration value to a Strategy. Empty means llm.
func ParseStrategy(raw string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", StrategyLLM:
		return StrategyLLM, nil
	case StrategyKeyword:
		return StrategyKeyword, nil
	default:
		return "", fmt.Errorf("unsupported intent strategy %q (expected llm|keyword)", raw)
	}
}

var wireCategories = map[string]Category{
	"NEW_TRIP": Discovery,
	"PLANNING": Planning,
	"IN_TRIP":  InTrip,
	"CHAT":     Chat,
}

const (
	classifyTemperature = 0
	classifyMaxTokens   = 15
)

const classifyInstructions = `You are an intent classifier for a travel assistant chatbot.
Given the user message, reply with EXACTLY ONE line in the format:

INTENT|PREF_FLAG

Where:
- INTENT is one of: NEW_TRIP, PLANNING, IN_TRIP, CHAT
  NEW_TRIP   - the user wants to discover or explore new destinations
  PLANNING   - the user wants to create or refine an itinerary / schedule
  IN_TRIP    - the user is currently travelling and needs live suggestions
  CHAT       - general conversation, greetings, or anything else

- PREF_FLAG is one of: PREF, NO_PREF
  PREF    - the message reveals or changes a personal preference
            (budget, vibe, avoidance, dietary need, travel style, etc.)
  NO_PREF - no preference information detected

Examples:
"I hate crowded beaches" -> CHAT|PREF
"Plan my Rome trip for April" -> PLANNING|NO_PREF
"Actually my budget is about 800 euros" -> CHAT|PREF
"I want somewhere tropical" -> NEW_TRIP|PREF
"Hello!" -> CHAT|NO_PREF`

type Router struct {
	gen      llm.Generator
	strategy Strategy
	logger   *zap.Logger
	metrics  *observability.Metrics
}

func NewRouter(gen llm.Generator, strategy Strategy, logger *zap.Logger, metrics *observability.Metrics) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strategy == "" {
		strategy = StrategyLLM
	}
	return &Router{
		gen:      gen,
		strategy: strategy,
		logger:   logger.Named("intent"),
		metrics:  metrics,
	}
}

// Classify returns the category for text and whether it states a preference.
// It never fails: backend problems fall back to keyword routing.
func (r *Router) Classify(ctx context.Context, text string) (Category, bool) {
	if r.strategy == StrategyKeyword || r.gen == nil {
		return KeywordCategory(text), false
	}

	raw, err := r.gen.Generate(ctx, llm.Request{
		Purpose:         llm.PurposeClassify,
		Tier:            llm.TierLite,
		Instructions:    classifyInstructions,
		Prompt:          text,
		Temperature:     classifyTemperature,
		MaxOutputTokens: classifyMaxTokens,
		Input:           text,
	})
	if err != nil {
		r.logger.Warn("intent classification failed, using keywords", zap.Error(err))
		r.metrics.ObserveFallback("intent")
		return KeywordCategory(text), false
	}

	cat, pref, ok := ParseClassification(raw)
	if !ok {
		r.logger.Warn("unexpected intent from backend, using keywords", zap.String("raw", raw))
		r.metrics.ObserveFallback("intent")
		cat = KeywordCategory(text)
	}
	r.logger.Debug("classified message",
		zap.String("category", string(cat)),
		zap.Bool("has_preference", pref),
	)
	return cat, pref
}

// ParseClassification decodes an "INTENT|PREF_FLAG" line. ok is false when the
// intent token is not recognized; the preference flag is still reported.
func ParseClassification(raw string) (cat Category, hasPreference bool, ok bool) {
	parts := strings.Split(strings.ToUpper(strings.TrimSpace(raw)), "|")
	token := strings.TrimSpace(parts[0])
	flag := "NO_PREF"
	if len(parts) > 1 {
		flag = strings.TrimSpace(parts[1])
	}
	cat, ok = wireCategories[token]
	return cat, flag == "PREF", ok
}

// KeywordCategory routes by substring heuristics, checked in priority order.
func KeywordCategory(text string) Category {
	in := strings.ToLower(text)
	switch {
	case containsAny(in, "itinerary", "schedule", "detailed plan"):
		return Planning
	case containsAny(in, "plan", "trip", "go to", "visit", "vacation"):
		return Discovery
	case containsAny(in, "here", "now", "tired", "hungry", "bored"):
		return InTrip
	default:
		return Chat
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

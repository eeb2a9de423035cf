// Package agent generates the traveler-facing reply for a routed message.
package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/agentic-traveler/traveler/internal/intent"
	"github.com/agentic-traveler/traveler/internal/llm"
	"github.com/agentic-traveler/traveler/internal/observability"
	"github.com/agentic-traveler/traveler/internal/traveler"
)

// Reply actions reported to transports.
const (
	ActionDiscovery  = "DISCOVERY_RESULTS"
	ActionPlanner    = "PLANNER_RESULTS"
	ActionCompanion  = "COMPANION_RESULTS"
	ActionChat       = "CHAT_REPLY"
	ActionOnboarding = "ONBOARDING_REQUIRED"
	ActionError      = "ERROR"
)

// Reply is the text delivered to the traveler and the action that produced it.
type Reply struct {
	Text   string `json:"text"`
	Action string `json:"action"`
}

type persona struct {
	action       string
	temperature  float32
	instructions string
}

var personas = map[intent.Category]persona{
	intent.Discovery: {
		action:      ActionDiscovery,
		temperature: 0.7,
		instructions: `You are a friendly, knowledgeable travel advisor chatting with a traveler.

Response guidelines:
- Match the depth of your answer to the traveler's message. If they are just
  pondering or casually mentioning a place, give a SHORT conversational reply
  (2-4 sentences) with a light suggestion and a follow-up question.
- Only produce a full destination list (up to 3 options) when they clearly ask
  for recommendations or give concrete constraints (dates, budget, duration).
- Keep each recommended option to 3-4 lines.
- Tie suggestions back to the traveler's profile.
- Use the conversation so far for continuity and don't repeat yourself.
- Tone: warm and personal, like a well-traveled friend, not a brochure.`,
	},
	intent.Planning: {
		action:      ActionPlanner,
		temperature: 0.7,
		instructions: `You are an expert travel planner building itineraries for a traveler.

Response guidelines:
- If the destination or dates are unclear, ask one short clarifying question
  instead of inventing them.
- When enough is known, produce a day-by-day plan with a morning, afternoon
  and evening rhythm that respects the traveler's pace and budget.
- Honour every avoidance and deal breaker in the profile.
- Build on decisions already made in the conversation so far.
- Keep it skimmable: short headings, one line per activity.`,
	},
	intent.InTrip: {
		action:      ActionCompanion,
		temperature: 0.8,
		instructions: `You are a real-time travel companion helping a traveler who is on the road right now.

Response guidelines:
- Give 1-3 concrete, nearby suggestions they can act on immediately.
- Respect their energy level, diet and budget from the profile.
- Be brief; they are reading on a phone while travelling.
- Tone: upbeat and practical.`,
	},
	intent.Chat: {
		action:      ActionChat,
		temperature: 0.8,
		instructions: `You are "Agentic Traveler", a friendly AI travel companion.

Guidelines:
- If they ask what you know about them, summarise their profile naturally,
  woven into a warm answer rather than a field dump.
- If they say hello or thanks, respond warmly and briefly.
- If they ask a general travel question, answer helpfully but concisely.
- Keep casual replies to 2-5 sentences.`,
	},
}

// Responder turns a routed message into a reply using the standard tier.
type Responder struct {
	gen     llm.Generator
	logger  *zap.Logger
	metrics *observability.Metrics
}

func NewResponder(gen llm.Generator, logger *zap.Logger, metrics *observability.Metrics) *Responder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Responder{gen: gen, logger: logger.Named("agent"), metrics: metrics}
}

// Respond generates the reply for message. Backend failure yields a static
// fallback with the category's action; it never returns an error.
func (r *Responder) Respond(ctx context.Context, cat intent.Category, rec traveler.Record, contextBlock, message string) Reply {
	p, ok := personas[cat]
	if !ok {
		cat = intent.Chat
		p = personas[cat]
	}

	if r.gen == nil {
		return Reply{Text: FallbackText(cat, rec.Name()), Action: p.action}
	}

	text, err := r.gen.Generate(ctx, llm.Request{
		Purpose:      llm.PurposeReply,
		Tier:         llm.TierStandard,
		Instructions: p.instructions,
		Prompt:       BuildPrompt(rec, contextBlock, message),
		Temperature:  p.temperature,
		Input:        message,
	})
	if err != nil || strings.TrimSpace(text) == "" {
		r.logger.Error("reply generation failed, using fallback",
			zap.String("category", string(cat)),
			zap.Error(err),
		)
		r.metrics.ObserveFallback("agent")
		return Reply{Text: FallbackText(cat, rec.Name()), Action: p.action}
	}
	return Reply{Text: text, Action: p.action}
}

// BuildPrompt renders the per-turn user content. The profile comes first so
// repeated turns for one traveler share a stable prefix.
func BuildPrompt(rec traveler.Record, contextBlock, message string) string {
	var b strings.Builder
	b.WriteString("Traveler profile:\n")
	b.WriteString(traveler.BuildProfileSummary(rec))
	if strings.TrimSpace(contextBlock) != "" {
		b.WriteString("\n\nConversation so far:\n")
		b.WriteString(contextBlock)
	}
	b.WriteString("\n\nTraveler says: \"")
	b.WriteString(message)
	b.WriteString("\"")
	return b.String()
}

// FallbackText is the static reply used when generation fails.
func FallbackText(cat intent.Category, name string) string {
	if cat == intent.Chat {
		return fmt.Sprintf("Hello %s! How can I help you with your travels today?", name)
	}
	return fmt.Sprintf("Sorry %s, I hit a snag processing your message. Please try again in a moment.", name)
}

// Package history keeps each traveler's bounded conversation buffer and
// folds older exchanges into a running summary.
package history

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/agentic-traveler/traveler/internal/llm"
	"github.com/agentic-traveler/traveler/internal/observability"
	"github.com/agentic-traveler/traveler/internal/store"
	"github.com/agentic-traveler/traveler/internal/traveler"
)

const (
	// MaxRecent is the most raw exchanges kept before compaction.
	MaxRecent = 10
	// KeepAfterCompact is how many of the newest exchanges survive compaction.
	KeepAfterCompact = 4

	summaryTemperature = 0.2
	summaryMaxTokens   = 300
)

// Manager appends exchanges to a record's history and persists them.
type Manager struct {
	gen     llm.Generator
	store   store.Store
	logger  *zap.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

func NewManager(gen llm.Generator, st store.Store, logger *zap.Logger, metrics *observability.Metrics) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		gen:     gen,
		store:   st,
		logger:  logger.Named("history"),
		metrics: metrics,
		now:     time.Now,
	}
}

// SetClock overrides the time source used for exchange timestamps.
func (m *Manager) SetClock(now func() time.Time) {
	if now != nil {
		m.now = now
	}
}

// Load returns a copy of the record's history, defaulting to an empty state.
func Load(rec traveler.Record) traveler.HistoryState {
	state := rec.History.Clone()
	if state.RecentMessages == nil {
		state.RecentMessages = []traveler.Exchange{}
	}
	return state
}

// BuildContextBlock renders the summary and recent exchanges for prompt injection.
func BuildContextBlock(rec traveler.Record) string {
	state := rec.History
	parts := make([]string, 0, 2)

	if state.Summary != "" {
		parts = append(parts, "Previous conversation summary:\n"+state.Summary)
	}
	if len(state.RecentMessages) > 0 {
		lines := make([]string, 0, len(state.RecentMessages))
		for _, ex := range state.RecentMessages {
			label := "Agent"
			if ex.Role == traveler.RoleUser {
				label = "User"
			}
			lines = append(lines, label+": "+ex.Text)
		}
		parts = append(parts, "Recent messages:\n"+strings.Join(lines, "\n"))
	}
	return strings.Join(parts, "\n\n")
}

// AppendAndSave records a user/agent exchange pair, compacting the buffer when it
// overflows, and persists the history with a single merge-write. rec is updated
// only after the write succeeds.
func (m *Manager) AppendAndSave(ctx context.Context, rec *traveler.Record, ref store.Ref, userText, agentText string) error {
	state := Load(*rec)
	ts := m.now().UTC()
	state.RecentMessages = append(state.RecentMessages,
		traveler.Exchange{Role: traveler.RoleUser, Text: userText, Timestamp: ts},
		traveler.Exchange{Role: traveler.RoleAgent, Text: agentText, Timestamp: ts},
	)

	if len(state.RecentMessages) > MaxRecent {
		state = m.Compact(ctx, state)
	}

	if err := m.store.Merge(ctx, ref, store.Patch{"conversation_history": state}); err != nil {
		m.metrics.ObserveStoreError("history")
		return fmt.Errorf("save conversation history: %w", err)
	}
	rec.History = state
	m.logger.Debug("saved conversation history",
		zap.String("record_id", string(ref)),
		zap.Int("recent_messages", len(state.RecentMessages)),
	)
	return nil
}

// Compact folds all but the newest KeepAfterCompact exchanges into the summary.
func (m *Manager) Compact(ctx context.Context, state traveler.HistoryState) traveler.HistoryState {
	msgs := state.RecentMessages
	if len(msgs) <= KeepAfterCompact {
		return state.Clone()
	}
	cut := len(msgs) - KeepAfterCompact
	toCompact := msgs[:cut]
	toKeep := make([]traveler.Exchange, KeepAfterCompact)
	copy(toKeep, msgs[cut:])

	summary := m.summarize(ctx, toCompact, state.Summary)
	m.logger.Info("compacted conversation history",
		zap.Int("compacted", len(toCompact)),
		zap.Int("summary_chars", len(summary)),
	)
	return traveler.HistoryState{RecentMessages: toKeep, Summary: summary}
}

func (m *Manager) summarize(ctx context.Context, msgs []traveler.Exchange, existing string) string {
	if m.gen == nil {
		m.metrics.ObserveCompaction("fallback")
		return FallbackSummary(existing, msgs)
	}
	text, err := m.gen.Generate(ctx, llm.Request{
		Purpose:         llm.PurposeSummarize,
		Tier:            llm.TierLite,
		Prompt:          summaryPrompt(existing, msgs),
		Temperature:     summaryTemperature,
		MaxOutputTokens: summaryMaxTokens,
	})
	text = strings.TrimSpace(text)
	if err != nil || text == "" {
		m.logger.Warn("summarization failed, using raw fallback", zap.Error(err))
		m.metrics.ObserveFallback("history")
		m.metrics.ObserveCompaction("fallback")
		return FallbackSummary(existing, msgs)
	}
	m.metrics.ObserveCompaction("summarized")
	return text
}

// FallbackSummary appends the raw "role: text" lines of msgs to the existing summary.
// It is a pure function of its inputs.
func FallbackSummary(existing string, msgs []traveler.Exchange) string {
	lines := make([]string, 0, len(msgs))
	for _, ex := range msgs {
		lines = append(lines, string(ex.Role)+": "+ex.Text)
	}
	joined := strings.Join(lines, "\n")
	if existing == "" {
		return joined
	}
	if joined == "" {
		return existing
	}
	return existing + "\n" + joined
}

func summaryPrompt(existing string, msgs []traveler.Exchange) string {
	lines := make([]string, 0, len(msgs))
	for _, ex := range msgs {
		label := "Agent"
		if ex.Role == traveler.RoleUser {
			label = "User"
		}
		lines = append(lines, label+": "+ex.Text)
	}

	var b strings.Builder
	b.WriteString("Summarize the following conversation fragment into one concise paragraph.\n")
	b.WriteString("Keep every concrete fact: destination names, dates, budgets, preferences, ")
	b.WriteString("decisions already made and questions still open.\n\n")
	if existing != "" {
		b.WriteString("Existing summary of the earlier conversation:\n")
		b.WriteString(existing)
		b.WriteString("\n\n")
	}
	b.WriteString("New messages to fold in:\n")
	b.WriteString(strings.Join(lines, "\n"))
	b.WriteString("\n\nReply with ONLY the updated summary.")
	return b.String()
}

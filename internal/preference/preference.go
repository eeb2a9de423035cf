// Package preference extracts travel preferences from free text and merges
// them into a traveler record with union semantics for list fields.
package preference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/jsonc"
	"go.uber.org/zap"

	"github.com/agentic-traveler/traveler/internal/llm"
	"github.com/agentic-traveler/traveler/internal/observability"
	"github.com/agentic-traveler/traveler/internal/policy"
	"github.com/agentic-traveler/traveler/internal/store"
	"github.com/agentic-traveler/traveler/internal/traveler"
)

// ErrEmptyKey is returned by SavePreference when key is blank.
var ErrEmptyKey = errors.New("preference key is empty")

// OtherKey holds free-form preferences that fit no known field.
const OtherKey = "other"

const (
	extractTemperature = 0
	extractMaxTokens   = 200
)

// Merger writes preference deltas to the record store.
type Merger struct {
	gen     llm.Generator
	store   store.Store
	logger  *zap.Logger
	metrics *observability.Metrics
}

func NewMerger(gen llm.Generator, st store.Store, logger *zap.Logger, metrics *observability.Metrics) *Merger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Merger{
		gen:     gen,
		store:   st,
		logger:  logger.Named("preference"),
		metrics: metrics,
	}
}

// SavePreference merges a single key/value pair with one merge-write.
func (m *Merger) SavePreference(ctx context.Context, rec *traveler.Record, ref store.Ref, key string, value any) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrEmptyKey
	}
	return m.save(ctx, rec, ref, map[string]any{key: value})
}

// ExtractAndSave asks the backend for preferences stated in text and merges
// them. An empty or failed extraction performs no write and returns an empty map.
func (m *Merger) ExtractAndSave(ctx context.Context, rec *traveler.Record, ref store.Ref, text string) (map[string]any, error) {
	delta, err := m.Extract(ctx, text)
	if err != nil {
		m.logger.Warn("preference extraction failed",
			zap.String("message", policy.Redacted(text)),
			zap.Error(err),
		)
		m.metrics.ObserveFallback("preference")
		return map[string]any{}, nil
	}
	if len(delta) == 0 {
		return map[string]any{}, nil
	}
	if err := m.save(ctx, rec, ref, delta); err != nil {
		return delta, err
	}
	m.logger.Info("learned preferences", zap.Strings("keys", sortedKeys(delta)))
	return delta, nil
}

func (m *Merger) save(ctx context.Context, rec *traveler.Record, ref store.Ref, delta map[string]any) error {
	next := rec.Clone()
	patch := Merge(&next, delta)
	if len(patch) == 0 {
		return nil
	}
	if err := m.store.Merge(ctx, ref, patch); err != nil {
		m.metrics.ObserveStoreError("preference")
		return fmt.Errorf("save preferences: %w", err)
	}
	*rec = next
	return nil
}

// Extract runs one extraction call and decodes the JSON object it returns.
func (m *Merger) Extract(ctx context.Context, text string) (map[string]any, error) {
	if m.gen == nil {
		return nil, llm.ErrOffline
	}
	raw, err := m.gen.Generate(ctx, llm.Request{
		Purpose:         llm.PurposeExtract,
		Tier:            llm.TierLite,
		Instructions:    extractionInstructions(),
		Prompt:          text,
		Temperature:     extractTemperature,
		MaxOutputTokens: extractMaxTokens,
		Input:           text,
	})
	if err != nil {
		return nil, err
	}
	return ParseExtraction(raw)
}

// ParseExtraction decodes a backend reply into a preference delta. Markdown
// code fences, comments and trailing commas are tolerated.
func ParseExtraction(raw string) (map[string]any, error) {
	body := stripCodeFences(raw)
	if body == "" {
		return map[string]any{}, nil
	}
	var out map[string]any
	if err := json.Unmarshal(jsonc.ToJSON([]byte(body)), &out); err != nil {
		return nil, fmt.Errorf("decode extraction: %w", err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

func stripCodeFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if i := strings.Index(s, "\n"); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// Merge applies delta to rec and returns the patch of changed paths.
func Merge(rec *traveler.Record, delta map[string]any) store.Patch {
	patch := store.Patch{}
	extrasTouched := false

	for _, key := range sortedKeys(delta) {
		value := delta[key]

		if key == OtherKey {
			if sub, ok := value.(map[string]any); ok {
				for k, v := range sub {
					setExtra(rec, k, v)
				}
				extrasTouched = true
				continue
			}
		}

		if !traveler.IsMergeable(key) {
			setExtra(rec, key, value)
			extrasTouched = true
			continue
		}

		incoming := traveler.ValueOf(value)
		var merged traveler.Value
		if traveler.IsListField(key) {
			merged = union(rec.Profile.Get(key), incoming)
		} else {
			merged = incoming
		}
		if rec.Profile == nil {
			rec.Profile = traveler.Profile{}
		}
		rec.Profile[key] = merged
		patch["profile."+key] = merged
	}

	if extrasTouched {
		extras := make(map[string]any, len(rec.LearnedExtras))
		for k, v := range rec.LearnedExtras {
			extras[k] = v
		}
		patch["learned_extras"] = extras
	}
	return patch
}

func setExtra(rec *traveler.Record, key string, value any) {
	if rec.LearnedExtras == nil {
		rec.LearnedExtras = make(map[string]any)
	}
	rec.LearnedExtras[key] = value
}

// union keeps current items in order and appends unseen incoming items.
// A current value that is not a list is discarded.
func union(current, incoming traveler.Value) traveler.Value {
	var base []string
	if current.IsList() {
		base = current.Items()
	}
	seen := make(map[string]bool, len(base))
	out := make([]string, 0, len(base))
	for _, item := range base {
		if seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	for _, item := range incoming.Items() {
		if seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	return traveler.List(out...)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func extractionInstructions() string {
	var b strings.Builder
	b.WriteString("You are a preference extraction engine for a travel assistant.\n\n")
	b.WriteString("The traveler just said something that contains a personal preference or constraint.\n")
	b.WriteString("Extract the preference(s) as a JSON object.\n\n")
	b.WriteString("Rules:\n")
	b.WriteString("- Use these keys when the preference maps to a known field:\n  ")
	b.WriteString(strings.Join(traveler.MergeableKeys(), ", "))
	b.WriteString("\n- For list-type fields (")
	b.WriteString(strings.Join(traveler.ListKeys(), ", "))
	b.WriteString("), return the value as a list of strings.\n")
	b.WriteString("- If the preference fits no known field, put it under a key called \"other\" ")
	b.WriteString("with a short descriptive sub-key, e.g. {\"other\": {\"preferred_airlines\": \"low-cost only\"}}\n")
	b.WriteString("- Return ONLY valid JSON, nothing else.\n\n")
	b.WriteString("Example input: \"I hate crowded beaches and my budget is about 800 euros for 5 days\"\n")
	b.WriteString("Example output: {\"absolute_avoidances\": [\"Crowded beaches\"], \"budget_priority\": \"~800 EUR for 5 days\"}\n")
	return b.String()
}

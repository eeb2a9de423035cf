// Package orchestrator runs the per-message pipeline: lookup, routing, reply
// generation, preference learning, history persistence and safety review.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/agentic-traveler/traveler/internal/agent"
	"github.com/agentic-traveler/traveler/internal/history"
	"github.com/agentic-traveler/traveler/internal/intent"
	"github.com/agentic-traveler/traveler/internal/observability"
	"github.com/agentic-traveler/traveler/internal/policy"
	"github.com/agentic-traveler/traveler/internal/preference"
	"github.com/agentic-traveler/traveler/internal/safety"
	"github.com/agentic-traveler/traveler/internal/session"
	"github.com/agentic-traveler/traveler/internal/store"
)

const DefaultOnboardingURL = "https://tally.so/r/9qN6p4"

// TransportDirect labels messages handled without a network transport.
const TransportDirect = "direct"

// Deps wires the pipeline components. Sessions may be nil, which disables
// per-traveler turn tracking.
type Deps struct {
	Store         store.Store
	Sessions      *session.Manager
	Router        *intent.Router
	Responder     *agent.Responder
	Preferences   *preference.Merger
	History       *history.Manager
	Reviewer      *safety.Reviewer
	OnboardingURL string
	Logger        *zap.Logger
	Metrics       *observability.Metrics
}

type Orchestrator struct {
	store         store.Store
	sessions      *session.Manager
	router        *intent.Router
	responder     *agent.Responder
	prefs         *preference.Merger
	history       *history.Manager
	reviewer      *safety.Reviewer
	onboardingURL string
	logger        *zap.Logger
	metrics       *observability.Metrics
}

func New(d Deps) *Orchestrator {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	url := strings.TrimSpace(d.OnboardingURL)
	if url == "" {
		url = DefaultOnboardingURL
	}
	return &Orchestrator{
		store:         d.Store,
		sessions:      d.Sessions,
		router:        d.Router,
		responder:     d.Responder,
		prefs:         d.Preferences,
		history:       d.History,
		reviewer:      d.Reviewer,
		onboardingURL: url,
		logger:        logger.Named("orchestrator"),
		metrics:       d.Metrics,
	}
}

// OnboardingText is the reply sent to travelers without a record.
func OnboardingText(url string) string {
	return "Welcome to Agentic Traveler! I don't see a profile for you yet. " +
		"Please fill out our onboarding form to get started: " + url
}

// Handle processes one message for userID.
func (o *Orchestrator) Handle(ctx context.Context, userID, text string) (agent.Reply, error) {
	return o.HandleFrom(ctx, TransportDirect, userID, text)
}

// HandleFrom is Handle with the originating transport recorded in metrics
// and the traveler's session.
func (o *Orchestrator) HandleFrom(ctx context.Context, transport, userID, text string) (agent.Reply, error) {
	started := time.Now()
	log := o.logger.With(zap.String("user_id", userID), zap.String("transport", transport))

	if o.sessions != nil {
		turn, err := o.sessions.Begin(ctx, userID, transport)
		if err != nil {
			return agent.Reply{}, fmt.Errorf("begin turn: %w", err)
		}
		defer turn.End()
		if turn.Started {
			o.metrics.ObserveSession("started", o.sessions.ActiveCount())
		}
		log = log.With(zap.String("turn_id", turn.ID))
	}

	reply, err := o.run(ctx, log, userID, text)
	o.metrics.ObserveStage(observability.StageTurnTotal, time.Since(started))
	if err != nil {
		o.metrics.ObserveMessage(transport, agent.ActionError)
		return agent.Reply{}, err
	}
	o.metrics.ObserveMessage(transport, reply.Action)
	log.Info("handled message",
		zap.String("action", reply.Action),
		zap.Duration("elapsed", time.Since(started)),
	)
	return reply, nil
}

func (o *Orchestrator) run(ctx context.Context, log *zap.Logger, userID, text string) (agent.Reply, error) {
	t := time.Now()
	rec, ref, err := o.store.Lookup(ctx, userID)
	o.metrics.ObserveStage(observability.StageLookup, time.Since(t))
	if errors.Is(err, store.ErrNotFound) {
		log.Info("unknown traveler, onboarding required")
		return agent.Reply{Text: OnboardingText(o.onboardingURL), Action: agent.ActionOnboarding}, nil
	}
	if err != nil {
		o.metrics.ObserveStoreError("lookup")
		return agent.Reply{}, fmt.Errorf("lookup traveler %q: %w", userID, err)
	}

	contextBlock := history.BuildContextBlock(rec)

	t = time.Now()
	cat, hasPref := o.router.Classify(ctx, text)
	o.metrics.ObserveStage(observability.StageClassify, time.Since(t))
	log.Debug("routed message",
		zap.String("category", string(cat)),
		zap.Bool("has_preference", hasPref),
		zap.String("message", policy.Redacted(text)),
	)

	t = time.Now()
	draft := o.responder.Respond(ctx, cat, rec, contextBlock, text)
	o.metrics.ObserveStage(observability.StageGenerate, time.Since(t))

	if hasPref && o.prefs != nil {
		t = time.Now()
		if _, err := o.prefs.ExtractAndSave(ctx, &rec, ref, text); err != nil {
			log.Error("saving learned preferences failed", zap.Error(err))
		}
		o.metrics.ObserveStage(observability.StagePreferences, time.Since(t))
	}

	t = time.Now()
	if err := o.history.AppendAndSave(ctx, &rec, ref, text, draft.Text); err != nil {
		log.Error("saving conversation history failed", zap.Error(err))
	}
	o.metrics.ObserveStage(observability.StageHistory, time.Since(t))

	t = time.Now()
	final := o.reviewer.Filter(ctx, draft.Text)
	o.metrics.ObserveStage(observability.StageReview, time.Since(t))

	return agent.Reply{Text: final, Action: draft.Action}, nil
}

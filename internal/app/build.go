package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/agentic-traveler/traveler/internal/agent"
	"github.com/agentic-traveler/traveler/internal/config"
	"github.com/agentic-traveler/traveler/internal/history"
	"github.com/agentic-traveler/traveler/internal/httpapi"
	"github.com/agentic-traveler/traveler/internal/intent"
	"github.com/agentic-traveler/traveler/internal/llm"
	"github.com/agentic-traveler/traveler/internal/observability"
	"github.com/agentic-traveler/traveler/internal/orchestrator"
	"github.com/agentic-traveler/traveler/internal/preference"
	"github.com/agentic-traveler/traveler/internal/safety"
	"github.com/agentic-traveler/traveler/internal/session"
	"github.com/agentic-traveler/traveler/internal/store"
)

type BuildResult struct {
	Config       config.Config
	Logger       *zap.Logger
	API          *httpapi.Server
	Sessions     *session.Manager
	Orchestrator *orchestrator.Orchestrator
	Store        store.Store
	Metrics      *observability.Metrics
	Provider     string
	StoreMode    string

	// Cleanup should be called on shutdown to release external resources (DB, logger buffers).
	Cleanup func() error
}

// Build wires every component from cfg. A nil logger builds one from the
// configured level and format.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*BuildResult, error) {
	if logger == nil {
		l, err := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
		if err != nil {
			return nil, err
		}
		logger = l
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	records, err := store.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("record store init failed: %w", err)
	}

	gen, err := llm.NewGenerator(ctx, llm.Config{
		Provider:   cfg.LLMProvider,
		APIKey:     cfg.GoogleAPIKey,
		Model:      cfg.LLMModel,
		LiteModel:  cfg.LLMLiteModel,
		HTTPURL:    cfg.LLMHTTPURL,
		HTTPAPIKey: cfg.LLMHTTPAPIKey,
		Timeout:    cfg.LLMTimeout,
		MaxRetries: cfg.LLMMaxRetries,
	})
	if err != nil {
		_ = records.Close()
		return nil, fmt.Errorf("llm init failed: %w", err)
	}
	provider := llm.ProviderName(gen)
	gen = llm.Instrument(gen, metrics)

	strategy, err := intent.ParseStrategy(cfg.IntentStrategy)
	if err != nil {
		_ = records.Close()
		return nil, err
	}

	sessions := session.NewManager(cfg.SessionIdleTimeout)
	sessions.SetSerialize(cfg.SerializePerUser)
	sessions.SetExpireHook(func(_ *session.Session) {
		metrics.ObserveSession("expired", sessions.ActiveCount())
	})

	orch := orchestrator.New(orchestrator.Deps{
		Store:         records,
		Sessions:      sessions,
		Router:        intent.NewRouter(gen, strategy, logger, metrics),
		Responder:     agent.NewResponder(gen, logger, metrics),
		Preferences:   preference.NewMerger(gen, records, logger, metrics),
		History:       history.NewManager(gen, records, logger, metrics),
		Reviewer:      safety.NewReviewer(gen, logger, metrics),
		OnboardingURL: cfg.OnboardingURL,
		Logger:        logger,
		Metrics:       metrics,
	})

	mode := store.Mode(records)
	api := httpapi.New(cfg, orch, sessions, httpapi.Backends{
		Provider:  provider,
		StoreMode: mode,
	}, logger, metrics)

	logger.Info("traveler assistant wired",
		zap.String("llm_provider", provider),
		zap.String("store_mode", mode),
		zap.String("intent_strategy", string(strategy)),
		zap.Bool("serialize_per_user", cfg.SerializePerUser),
	)

	cleanup := func() error {
		var errs []error
		if err := records.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close record store: %w", err))
		}
		// Sync fails on some terminals; only the store error matters.
		_ = logger.Sync()
		return errors.Join(errs...)
	}

	return &BuildResult{
		Config:       cfg,
		Logger:       logger,
		API:          api,
		Sessions:     sessions,
		Orchestrator: orch,
		Store:        records,
		Metrics:      metrics,
		Provider:     provider,
		StoreMode:    mode,
		Cleanup:      cleanup,
	}, nil
}

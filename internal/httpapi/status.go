package httpapi

import (
	"fmt"
	"net/http"
	"strings"
)

type statusCheck struct {
	ID     string `json:"id"`
	Status string `json:"status"` // ok|warn|error
	Label  string `json:"label"`
	Detail string `json:"detail,omitempty"`
	Fix    string `json:"fix,omitempty"`
}

type statusResponse struct {
	Provider         string        `json:"provider"`
	StoreMode        string        `json:"store_mode"`
	IntentStrategy   string        `json:"intent_strategy"`
	SerializePerUser bool          `json:"serialize_per_user"`
	ActiveSessions   int           `json:"active_sessions"`
	Checks           []statusCheck `json:"checks"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	checks := make([]statusCheck, 0, 6)
	checks = append(checks, s.providerChecks()...)
	checks = append(checks, s.storeCheck())

	if strings.EqualFold(s.cfg.IntentStrategy, "keyword") {
		checks = append(checks, statusCheck{
			ID:     "intent_strategy",
			Status: "warn",
			Label:  "Intent routing",
			Detail: "keyword heuristics only; preference learning is disabled",
			Fix:    "Set INTENT_STRATEGY=llm to classify with the backend.",
		})
	} else {
		checks = append(checks, statusCheck{
			ID:     "intent_strategy",
			Status: "ok",
			Label:  "Intent routing",
			Detail: "llm",
		})
	}

	if s.cfg.TelegramWebhookSecret == "" {
		checks = append(checks, statusCheck{
			ID:     "telegram_secret",
			Status: "warn",
			Label:  "Telegram webhook secret",
			Detail: "not set; webhook requests are not authenticated",
			Fix:    "Set TELEGRAM_WEBHOOK_SECRET and pass it as secret_token to setWebhook.",
		})
	} else {
		checks = append(checks, statusCheck{
			ID:     "telegram_secret",
			Status: "ok",
			Label:  "Telegram webhook secret",
			Detail: "present",
		})
	}

	active := 0
	if s.sessions != nil {
		active = s.sessions.ActiveCount()
	}
	respondJSON(w, http.StatusOK, statusResponse{
		Provider:         s.backends.Provider,
		StoreMode:        s.backends.StoreMode,
		IntentStrategy:   s.cfg.IntentStrategy,
		SerializePerUser: s.cfg.SerializePerUser,
		ActiveSessions:   active,
		Checks:           checks,
	})
}

func (s *Server) providerChecks() []statusCheck {
	provider := strings.ToLower(strings.TrimSpace(s.backends.Provider))
	switch {
	case provider == "mock":
		return []statusCheck{{
			ID:     "llm_provider",
			Status: "warn",
			Label:  "Generation backend is mock",
			Detail: "replies echo the message; classification, review and summaries use local fallbacks",
			Fix:    "Set GOOGLE_API_KEY or LLM_HTTP_URL.",
		}}
	case strings.Contains(provider, "gemini"):
		return []statusCheck{
			{ID: "llm_provider", Status: "ok", Label: "Generation backend", Detail: provider},
			{ID: "llm_models", Status: "ok", Label: "Models",
				Detail: fmt.Sprintf("%s (replies), %s (lite)", s.cfg.LLMModel, s.cfg.LLMLiteModel)},
		}
	case provider == "":
		return []statusCheck{{ID: "llm_provider", Status: "error", Label: "Generation backend", Detail: "not configured"}}
	default:
		return []statusCheck{{ID: "llm_provider", Status: "ok", Label: "Generation backend", Detail: provider}}
	}
}

func (s *Server) storeCheck() statusCheck {
	switch s.backends.StoreMode {
	case "memory":
		return statusCheck{
			ID:     "record_store",
			Status: "warn",
			Label:  "Traveler records",
			Detail: "in-memory only",
			Fix:    "Set DATABASE_URL to persist traveler records across restarts.",
		}
	case "":
		return statusCheck{ID: "record_store", Status: "error", Label: "Traveler records", Detail: "not configured"}
	default:
		return statusCheck{ID: "record_store", Status: "ok", Label: "Traveler records", Detail: s.backends.StoreMode}
	}
}

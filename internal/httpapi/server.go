package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/agentic-traveler/traveler/internal/agent"
	"github.com/agentic-traveler/traveler/internal/config"
	"github.com/agentic-traveler/traveler/internal/observability"
	"github.com/agentic-traveler/traveler/internal/session"
)

// Handler processes one traveler message.
type Handler interface {
	HandleFrom(ctx context.Context, transport, userID, text string) (agent.Reply, error)
}

// Transport labels used in metrics and sessions.
const (
	TransportREST      = "rest"
	TransportTelegram  = "telegram"
	TransportWebSocket = "websocket"
)

// apologyText is returned when a message cannot be handled. Internal errors
// are never echoed to travelers.
const apologyText = "Sorry, something went wrong on our side. Please try again in a moment."

// Backends describes the configured backends for status reporting.
type Backends struct {
	Provider  string
	StoreMode string
}

type Server struct {
	cfg      config.Config
	handler  Handler
	sessions *session.Manager
	backends Backends
	logger   *zap.Logger
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
	static   http.Handler

	// wsPongWait bounds client silence; pings go out every wsPingInterval.
	wsPongWait     time.Duration
	wsPingInterval time.Duration
}

func New(cfg config.Config, handler Handler, sessions *session.Manager, backends Backends, logger *zap.Logger, metrics *observability.Metrics) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:      cfg,
		handler:  handler,
		sessions: sessions,
		backends: backends,
		logger:   logger.Named("httpapi"),
		metrics:  metrics,
		static:   newStaticHandler(),

		wsPongWait:     defaultWSPongWait,
		wsPingInterval: defaultWSPingInterval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Browsers may only connect from the same origin unless explicitly opened up.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusTemporaryRedirect)
	})
	r.Get("/ui", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusTemporaryRedirect)
	})
	r.Handle("/ui/*", http.StripPrefix("/ui/", s.static))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/messages", s.handleMessage)
	r.Post("/v1/telegram/webhook", s.handleTelegramWebhook)
	r.Get("/v1/chat/ws", s.handleChatWS)
	r.Get("/v1/sessions/{userID}", s.handleGetSession)
	r.Post("/v1/sessions/{id}/end", s.handleEndSession)
	r.Get("/v1/perf/latency", s.handlePerfLatency)
	r.Get("/v1/status", s.handleStatus)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"provider":   s.backends.Provider,
		"store_mode": s.backends.StoreMode,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if s.handler == nil {
		respondError(w, http.StatusServiceUnavailable, "not_ready", "message handler not configured")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":     "ready",
		"provider":   s.backends.Provider,
		"store_mode": s.backends.StoreMode,
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "session tracking disabled")
		return
	}
	sess, err := s.sessions.ForUser(chi.URLParam(r, "userID"))
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "session tracking disabled")
		return
	}
	id := chi.URLParam(r, "id")
	if strings.TrimSpace(id) == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return
	}
	sess, err := s.sessions.End(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	s.metrics.ObserveSession("ended", s.sessions.ActiveCount())
	respondJSON(w, http.StatusOK, sess)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

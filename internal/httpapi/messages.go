package httpapi

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/agentic-traveler/traveler/internal/agent"
)

type messageRequest struct {
	UserID string `json:"user_id"`
	Text   string `json:"text"`
}

type telegramUpdate struct {
	TelegramUserID string `json:"telegramUserId"`
	MessageText    string `json:"messageText"`
}

// telegramSecretHeader carries the secret configured with setWebhook.
const telegramSecretHeader = "X-Telegram-Bot-Api-Secret-Token"

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "body must be JSON {user_id, text}")
		return
	}
	s.dispatch(w, r, TransportREST, req.UserID, req.Text)
}

func (s *Server) handleTelegramWebhook(w http.ResponseWriter, r *http.Request) {
	if secret := s.cfg.TelegramWebhookSecret; secret != "" {
		got := r.Header.Get(telegramSecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			respondError(w, http.StatusForbidden, "forbidden", "invalid webhook secret")
			return
		}
	}
	var upd telegramUpdate
	if err := decodeJSON(r, &upd); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "body must be JSON {telegramUserId, messageText}")
		return
	}
	s.dispatch(w, r, TransportTelegram, upd.TelegramUserID, upd.MessageText)
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, transport, userID, text string) {
	userID = strings.TrimSpace(userID)
	if userID == "" || strings.TrimSpace(text) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "user id and text are required")
		return
	}
	if s.handler == nil {
		respondError(w, http.StatusServiceUnavailable, "unavailable", "message handler not configured")
		return
	}

	reply, err := s.handle(r.Context(), transport, userID, text)
	if err != nil {
		s.logger.Error("message handling failed",
			zap.String("transport", transport),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
		respondJSON(w, http.StatusInternalServerError, reply)
		return
	}
	respondJSON(w, http.StatusOK, reply)
}

// handle runs the message and maps failures to the opaque apology reply.
func (s *Server) handle(ctx context.Context, transport, userID, text string) (agent.Reply, error) {
	reply, err := s.handler.HandleFrom(ctx, transport, userID, text)
	if err != nil {
		return agent.Reply{Text: apologyText, Action: agent.ActionError}, err
	}
	return reply, nil
}

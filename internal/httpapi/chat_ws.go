package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/agentic-traveler/traveler/internal/protocol"
)

const (
	defaultWSPongWait     = 2 * time.Minute
	defaultWSPingInterval = 45 * time.Second
)

func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		respondError(w, http.StatusBadRequest, "missing_user_id", "query parameter user_id is required")
		return
	}
	if s.handler == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "message handler not configured")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.observeSessionEvent("ws_connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	inbound := make(chan protocol.UserMessage, 32)
	outbound := make(chan any, 32)

	// Messages from one socket are handled in arrival order.
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		for msg := range inbound {
			if ctx.Err() != nil {
				return
			}
			reply, err := s.handle(ctx, TransportWebSocket, userID, msg.Text)
			var out any
			if err != nil {
				s.logger.Error("websocket message handling failed", zap.String("user_id", userID), zap.Error(err))
				out = protocol.ErrorEvent{
					Type:      protocol.TypeErrorEvent,
					ReplyTo:   msg.ID,
					Code:      "handler_failed",
					Source:    "orchestrator",
					Retryable: true,
					Detail:    reply.Text,
				}
			} else {
				out = protocol.AssistantReply{
					Type:    protocol.TypeAssistantReply,
					ReplyTo: msg.ID,
					Text:    reply.Text,
					Action:  reply.Action,
				}
			}
			select {
			case outbound <- out:
			case <-ctx.Done():
				return
			}
		}
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		ping := time.NewTicker(s.wsPingInterval)
		defer ping.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ping.C:
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					cancel()
					return
				}
			case msg := <-outbound:
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteJSON(msg); err != nil {
					cancel()
					return
				}
				if t, ok := messageTypeOf(msg); ok {
					s.observeWS("outbound", t)
				}
			}
		}
	}()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(s.wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.wsPongWait))
	})

readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(s.wsPongWait))
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			errEvent := protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				Code:      "invalid_client_message",
				Source:    "gateway",
				Retryable: false,
				Detail:    err.Error(),
			}
			select {
			case outbound <- errEvent:
			default:
				// Keep websocket writes single-threaded; drop if the queue is saturated.
			}
			continue
		}
		msg, ok := parsed.(protocol.UserMessage)
		if !ok {
			continue
		}
		s.observeWS("inbound", msg.Type)
		select {
		case <-ctx.Done():
			break readLoop
		case inbound <- msg:
		}
	}

	cancel()
	close(inbound)
	<-workerDone
	<-writerDone
	s.observeSessionEvent("ws_disconnected")
}

func (s *Server) observeWS(direction string, t protocol.MessageType) {
	if s.metrics == nil {
		return
	}
	s.metrics.WSMessages.WithLabelValues(direction, string(t)).Inc()
}

func (s *Server) observeSessionEvent(event string) {
	active := 0
	if s.sessions != nil {
		active = s.sessions.ActiveCount()
	}
	s.metrics.ObserveSession(event, active)
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.UserMessage:
		return m.Type, true
	case protocol.AssistantReply:
		return m.Type, true
	case protocol.SystemEvent:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}

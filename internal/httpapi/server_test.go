package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/agentic-traveler/traveler/internal/agent"
	"github.com/agentic-traveler/traveler/internal/config"
	"github.com/agentic-traveler/traveler/internal/observability"
	"github.com/agentic-traveler/traveler/internal/protocol"
	"github.com/agentic-traveler/traveler/internal/session"
)

type call struct {
	transport string
	userID    string
	text      string
}

type fakeHandler struct {
	mu    sync.Mutex
	calls []call
	err   error
}

func (f *fakeHandler) HandleFrom(_ context.Context, transport, userID, text string) (agent.Reply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{transport: transport, userID: userID, text: text})
	if f.err != nil {
		return agent.Reply{}, f.err
	}
	return agent.Reply{Text: "echo: " + text, Action: agent.ActionChat}, nil
}

func (f *fakeHandler) last() call {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return call{}
	}
	return f.calls[len(f.calls)-1]
}

func newTestServer(t *testing.T, cfg config.Config, h Handler) *httptest.Server {
	t.Helper()
	metrics := observability.NewMetrics("test_httpapi_" + strings.ReplaceAll(t.Name(), "/", "_") + "_" + time.Now().Format("150405000000000"))
	sessions := session.NewManager(time.Minute)
	srv := New(cfg, h, sessions, Backends{Provider: "mock", StoreMode: "memory"}, nil, metrics)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, body any, header http.Header) *http.Response {
	t.Helper()
	raw, _ := json.Marshal(body)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST %s error = %v", url, err)
	}
	t.Cleanup(func() { res.Body.Close() })
	return res
}

func decodeReply(t *testing.T, res *http.Response) agent.Reply {
	t.Helper()
	var reply agent.Reply
	if err := json.NewDecoder(res.Body).Decode(&reply); err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	return reply
}

func TestPostMessage(t *testing.T) {
	h := &fakeHandler{}
	ts := newTestServer(t, config.Config{}, h)

	res := postJSON(t, ts.URL+"/v1/messages", map[string]string{"user_id": "12345", "text": "Hello"}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	reply := decodeReply(t, res)
	if reply.Text != "echo: Hello" || reply.Action != agent.ActionChat {
		t.Fatalf("unexpected reply: %+v", reply)
	}
	if got := h.last(); got.transport != TransportREST || got.userID != "12345" {
		t.Fatalf("unexpected call: %+v", got)
	}
}

func TestPostMessageValidation(t *testing.T) {
	ts := newTestServer(t, config.Config{}, &fakeHandler{})

	res := postJSON(t, ts.URL+"/v1/messages", map[string]string{"user_id": "", "text": "hi"}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}

	empty, err := http.Post(ts.URL+"/v1/messages", "application/json", strings.NewReader(""))
	if err != nil {
		t.Fatalf("POST error = %v", err)
	}
	defer empty.Body.Close()
	if empty.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty body status = %d, want %d", empty.StatusCode, http.StatusBadRequest)
	}
}

func TestPostMessageHandlerFailureIsOpaque(t *testing.T) {
	h := &fakeHandler{err: errors.New("pq: connection refused to 10.0.0.7")}
	ts := newTestServer(t, config.Config{}, h)

	res := postJSON(t, ts.URL+"/v1/messages", map[string]string{"user_id": "12345", "text": "Hello"}, nil)
	if res.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusInternalServerError)
	}
	reply := decodeReply(t, res)
	if reply.Action != agent.ActionError || reply.Text != apologyText {
		t.Fatalf("unexpected reply: %+v", reply)
	}
	if strings.Contains(reply.Text, "10.0.0.7") {
		t.Fatalf("internal error leaked to traveler: %q", reply.Text)
	}
}

func TestTelegramWebhookSecret(t *testing.T) {
	h := &fakeHandler{}
	ts := newTestServer(t, config.Config{TelegramWebhookSecret: "s3cret"}, h)
	body := map[string]string{"telegramUserId": "777", "messageText": "Hi there"}

	missing := postJSON(t, ts.URL+"/v1/telegram/webhook", body, nil)
	if missing.StatusCode != http.StatusForbidden {
		t.Fatalf("missing secret status = %d, want %d", missing.StatusCode, http.StatusForbidden)
	}

	wrong := postJSON(t, ts.URL+"/v1/telegram/webhook", body, http.Header{telegramSecretHeader: {"nope"}})
	if wrong.StatusCode != http.StatusForbidden {
		t.Fatalf("wrong secret status = %d, want %d", wrong.StatusCode, http.StatusForbidden)
	}
	if len(h.calls) != 0 {
		t.Fatalf("handler called %d times for rejected webhooks", len(h.calls))
	}

	ok := postJSON(t, ts.URL+"/v1/telegram/webhook", body, http.Header{telegramSecretHeader: {"s3cret"}})
	if ok.StatusCode != http.StatusOK {
		t.Fatalf("valid secret status = %d, want %d", ok.StatusCode, http.StatusOK)
	}
	if got := h.last(); got.transport != TransportTelegram || got.userID != "777" || got.text != "Hi there" {
		t.Fatalf("unexpected call: %+v", got)
	}
}

func TestTelegramWebhookWithoutSecret(t *testing.T) {
	ts := newTestServer(t, config.Config{}, &fakeHandler{})
	res := postJSON(t, ts.URL+"/v1/telegram/webhook", map[string]string{"telegramUserId": "777", "messageText": "Hi"}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if reply := decodeReply(t, res); reply.Text != "echo: Hi" {
		t.Fatalf("unexpected reply: %+v", reply)
	}
}

func TestChatWebSocket(t *testing.T) {
	h := &fakeHandler{}
	ts := newTestServer(t, config.Config{}, h)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/chat/ws?user_id=12345"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	if err := conn.WriteJSON(protocol.UserMessage{Type: protocol.TypeUserMessage, ID: "c1", Text: "Where to?"}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	var reply protocol.AssistantReply
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if reply.Type != protocol.TypeAssistantReply || reply.Text != "echo: Where to?" || reply.ReplyTo != "c1" {
		t.Fatalf("unexpected reply: %+v", reply)
	}
	if got := h.last(); got.transport != TransportWebSocket {
		t.Fatalf("transport = %q, want %q", got.transport, TransportWebSocket)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"wat"}`)); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
	var errEvent protocol.ErrorEvent
	if err := conn.ReadJSON(&errEvent); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if errEvent.Type != protocol.TypeErrorEvent || errEvent.Code != "invalid_client_message" {
		t.Fatalf("unexpected error event: %+v", errEvent)
	}
}

func TestChatWebSocketRequiresUser(t *testing.T) {
	ts := newTestServer(t, config.Config{}, &fakeHandler{})
	res, err := http.Get(ts.URL + "/v1/chat/ws")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
}

func TestStatusAndHealth(t *testing.T) {
	ts := newTestServer(t, config.Config{IntentStrategy: "llm"}, &fakeHandler{})

	res, err := http.Get(ts.URL + "/v1/status")
	if err != nil {
		t.Fatalf("GET /v1/status error = %v", err)
	}
	defer res.Body.Close()
	var payload statusResponse
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if payload.Provider != "mock" || payload.StoreMode != "memory" {
		t.Fatalf("unexpected status: %+v", payload)
	}
	ids := map[string]string{}
	for _, c := range payload.Checks {
		ids[c.ID] = c.Status
	}
	if ids["llm_provider"] != "warn" || ids["record_store"] != "warn" || ids["telegram_secret"] != "warn" {
		t.Fatalf("unexpected checks: %+v", payload.Checks)
	}

	for _, path := range []string{"/healthz", "/readyz", "/v1/perf/latency"} {
		r, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s error = %v", path, err)
		}
		r.Body.Close()
		if r.StatusCode != http.StatusOK {
			t.Fatalf("GET %s status = %d, want %d", path, r.StatusCode, http.StatusOK)
		}
	}
}

func TestUIRoutes(t *testing.T) {
	ts := newTestServer(t, config.Config{}, &fakeHandler{})

	client := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	rootRes, err := client.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET / error = %v", err)
	}
	defer rootRes.Body.Close()
	if got := rootRes.Header.Get("Location"); got != "/ui/" {
		t.Fatalf("GET / location = %q, want %q", got, "/ui/")
	}

	uiRes, err := http.Get(ts.URL + "/ui/")
	if err != nil {
		t.Fatalf("GET /ui/ error = %v", err)
	}
	defer uiRes.Body.Close()
	var body bytes.Buffer
	if _, err := body.ReadFrom(uiRes.Body); err != nil {
		t.Fatalf("reading /ui/ body failed: %v", err)
	}
	if !strings.Contains(body.String(), "/v1/chat/ws") {
		t.Fatalf("GET /ui/ body missing chat client")
	}
}

func TestEndSessionUnknown(t *testing.T) {
	ts := newTestServer(t, config.Config{}, &fakeHandler{})
	res := postJSON(t, ts.URL+"/v1/sessions/missing/end", nil, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusNotFound)
	}
}

func TestPerfLatencyStageFilter(t *testing.T) {
	ts := newTestServer(t, config.Config{}, &fakeHandler{})
	res, err := http.Get(ts.URL + "/v1/perf/latency?stage=classify,nope")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer res.Body.Close()
	var snap observability.StageSnapshot
	if err := json.NewDecoder(res.Body).Decode(&snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	for _, st := range snap.Stages {
		if st.Stage != observability.StageClassify {
			t.Fatalf("unexpected stage %q in filtered snapshot", st.Stage)
		}
	}
}

func TestUIDeepLinkServesIndex(t *testing.T) {
	ts := newTestServer(t, config.Config{}, &fakeHandler{})
	res, err := http.Get(ts.URL + "/ui/trips/lisbon")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if got := res.Header.Get("Cache-Control"); got != "no-cache" {
		t.Fatalf("Cache-Control = %q, want no-cache", got)
	}
}

func TestChatWebSocketSurvivesIdleClient(t *testing.T) {
	h := &fakeHandler{}
	metrics := observability.NewMetrics("test_httpapi_ws_idle_" + time.Now().Format("150405000000000"))
	srv := New(config.Config{}, h, session.NewManager(time.Minute), Backends{}, nil, metrics)
	srv.wsPongWait = 300 * time.Millisecond
	srv.wsPingInterval = 50 * time.Millisecond
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/chat/ws?user_id=12345"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	var pings int32
	var pingMu sync.Mutex
	conn.SetPingHandler(func(data string) error {
		pingMu.Lock()
		pings++
		pingMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})

	replies := make(chan protocol.AssistantReply, 1)
	readErr := make(chan error, 1)
	go func() {
		for {
			var reply protocol.AssistantReply
			if err := conn.ReadJSON(&reply); err != nil {
				readErr <- err
				return
			}
			replies <- reply
		}
	}()

	// Stay silent for well past the pong wait; pings keep the socket open.
	time.Sleep(time.Second)

	if err := conn.WriteJSON(protocol.UserMessage{Type: protocol.TypeUserMessage, ID: "late", Text: "Still there?"}); err != nil {
		t.Fatalf("WriteJSON() after idle error = %v", err)
	}
	select {
	case reply := <-replies:
		if reply.ReplyTo != "late" || reply.Text != "echo: Still there?" {
			t.Fatalf("unexpected reply after idle: %+v", reply)
		}
	case err := <-readErr:
		t.Fatalf("connection dropped while idle: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for reply after idle")
	}

	pingMu.Lock()
	defer pingMu.Unlock()
	if pings == 0 {
		t.Fatalf("expected server pings while idle")
	}
}

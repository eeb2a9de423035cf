package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseClientMessageUserMessage(t *testing.T) {
	raw := []byte(`{"type":"user_message","id":"c1","text":"Where should I go in May?"}`)
	msg, err := ParseClientMessage(raw)
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}

	um, ok := msg.(UserMessage)
	if !ok {
		t.Fatalf("message type = %T, want UserMessage", msg)
	}
	if um.ID != "c1" || um.Text != "Where should I go in May?" {
		t.Fatalf("unexpected user message: %+v", um)
	}
}

func TestParseClientMessageRejectsEmptyText(t *testing.T) {
	if _, err := ParseClientMessage([]byte(`{"type":"user_message","text":"   "}`)); err == nil {
		t.Fatalf("expected error for empty text")
	}
}

func TestParseClientMessageRejectsUnknownType(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"wat"}`))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("error = %v, want ErrUnsupportedType", err)
	}
}

func TestParseClientMessageRejectsBadJSON(t *testing.T) {
	if _, err := ParseClientMessage([]byte(`{not json`)); err == nil {
		t.Fatalf("expected error for malformed envelope")
	}
}

func TestAssistantReplyWireShape(t *testing.T) {
	raw, err := json.Marshal(AssistantReply{Type: TypeAssistantReply, Text: "hi", Action: "CHAT_REPLY"})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `{"type":"assistant_reply","text":"hi","action":"CHAT_REPLY"}`
	if string(raw) != want {
		t.Fatalf("wire = %s, want %s", raw, want)
	}
}

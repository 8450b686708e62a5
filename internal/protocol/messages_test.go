package protocol

import (
	"encoding/json"
	"testing"
)

// ---------------------------------------------------------------------------
// Test: Parsing a valid find_partner message
// ---------------------------------------------------------------------------

func TestParseClientMessage_FindPartner(t *testing.T) {
	input := []byte(`{"type":"find_partner"}`)

	msgType, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeFindPartner {
		t.Fatalf("expected type %q, got %q", TypeFindPartner, msgType)
	}

	fp, ok := msg.(FindPartnerMsg)
	if !ok {
		t.Fatalf("expected FindPartnerMsg, got %T", msg)
	}
	if fp.Stop {
		t.Error("stop should default to false")
	}
}

func TestParseClientMessage_FindPartnerStop(t *testing.T) {
	input := []byte(`{"type":"find_partner","stop":true}`)

	_, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fp, ok := msg.(FindPartnerMsg)
	if !ok {
		t.Fatalf("expected FindPartnerMsg, got %T", msg)
	}
	if !fp.Stop {
		t.Error("expected stop=true")
	}
}

// ---------------------------------------------------------------------------
// Test: Parsing a chat_message
// ---------------------------------------------------------------------------

func TestParseClientMessage_ChatMsg(t *testing.T) {
	input := []byte(`{"type":"chat_message","msg":"Hello!"}`)

	msgType, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeChatMessage {
		t.Fatalf("expected type %q, got %q", TypeChatMessage, msgType)
	}

	cm, ok := msg.(ChatMsg)
	if !ok {
		t.Fatalf("expected ChatMsg, got %T", msg)
	}
	if cm.Text != "Hello!" {
		t.Errorf("expected text %q, got %q", "Hello!", cm.Text)
	}
}

// ---------------------------------------------------------------------------
// Test: Signal payloads survive the round trip untouched
// ---------------------------------------------------------------------------

func TestParseClientMessage_SignalPayloadOpaque(t *testing.T) {
	input := []byte(`{"type":"signal","payload":{"sdp":"offer","candidates":[1,2,3]}}`)

	_, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sm, ok := msg.(SignalMsg)
	if !ok {
		t.Fatalf("expected SignalMsg, got %T", msg)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(sm.Payload, &decoded); err != nil {
		t.Fatalf("payload not preserved as JSON: %v", err)
	}
	if decoded["sdp"] != "offer" {
		t.Errorf("payload content lost: %v", decoded)
	}
}

// ---------------------------------------------------------------------------
// Test: Unknown and malformed inputs
// ---------------------------------------------------------------------------

func TestParseClientMessage_UnknownType(t *testing.T) {
	if _, _, err := ParseClientMessage([]byte(`{"type":"bogus"}`)); err == nil {
		t.Fatal("expected error for unknown type")
	}
}

func TestParseClientMessage_MissingType(t *testing.T) {
	if _, _, err := ParseClientMessage([]byte(`{"msg":"hi"}`)); err == nil {
		t.Fatal("expected error for missing type field")
	}
}

func TestParseClientMessage_InvalidJSON(t *testing.T) {
	if _, _, err := ParseClientMessage([]byte(`{nope`)); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

// ---------------------------------------------------------------------------
// Test: Creating a found_partner server message
// ---------------------------------------------------------------------------

func TestNewServerMessage_FoundPartner(t *testing.T) {
	payload := FoundPartnerMsg{
		RoomID:          "room-456",
		Initiator:       true,
		PartnerIdentity: "Neon Falcon 42",
	}

	data, err := NewServerMessage(TypeFoundPartner, payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if m["type"] != TypeFoundPartner {
		t.Errorf("expected type %q, got %v", TypeFoundPartner, m["type"])
	}
	if m["room_id"] != "room-456" {
		t.Errorf("expected room_id room-456, got %v", m["room_id"])
	}
	if m["initiator"] != true {
		t.Errorf("expected initiator true, got %v", m["initiator"])
	}
}

func TestNewServerMessage_InjectsTypeOverPayload(t *testing.T) {
	// The discriminator from the call wins over whatever the struct holds.
	data, err := NewServerMessage(TypePong, PongMsg{Type: "wrong"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	if m["type"] != TypePong {
		t.Errorf("expected type %q, got %v", TypePong, m["type"])
	}
}

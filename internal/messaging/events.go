package messaging

import "encoding/json"

// Room event types carried over NATS room subjects.
const (
	EventSignal      = "signal"
	EventChatMessage = "chat_message"
	EventTyping      = "typing"
	EventPartnerLeft = "partner_left"
)

// RoomEvent is the envelope for everything published on a room subject.
// Payload carries opaque signaling data, Text carries chat text, IsTyping
// carries the typing flag; only the field matching Type is set.
type RoomEvent struct {
	Type     string          `json:"type"`
	From     string          `json:"from"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Text     string          `json:"text,omitempty"`
	IsTyping bool            `json:"is_typing,omitempty"`
	Ts       int64           `json:"ts"`
}

// Encode marshals the event for publishing.
func (e *RoomEvent) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeRoomEvent unmarshals a room subject payload.
func DecodeRoomEvent(data []byte) (*RoomEvent, error) {
	var e RoomEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

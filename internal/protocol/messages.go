// Package protocol defines the WebSocket message types and structures used
// for communication between the client and server. All messages are
// serialized as JSON and follow a consistent envelope format with a type
// discriminator.
package protocol

import (
	"encoding/json"
	"fmt"
)

// ---------------------------------------------------------------------------
// Message type constants
// ---------------------------------------------------------------------------

// Client -> Server message types.
const (
	TypeFindPartner     = "find_partner"
	TypeSignal          = "signal"
	TypeChatMessage     = "chat_message"
	TypeTyping          = "typing"
	TypeReportUser      = "report_user"
	TypeUpdateInterests = "update_interests"
	TypePing            = "ping"
)

// Server -> Client message types.
const (
	TypeIdentityAssigned    = "identity_assigned"
	TypeUpdateCount         = "update_count"
	TypeFoundPartner        = "found_partner"
	TypeJoinPrivateRoom     = "join_private_room"
	TypeWaiting             = "waiting"
	TypeStopped             = "stopped"
	TypePartnerDisconnected = "partner_disconnected"
	TypeServerSignal        = "signal"
	TypeServerChatMessage   = "chat_message"
	TypePartnerTyping       = "partner_typing"
	TypeReportReceived      = "report_received"
	TypeError               = "error"
	TypePong                = "pong"
)

// ---------------------------------------------------------------------------
// Envelope — used for initial JSON parsing to extract the type discriminator.
// ---------------------------------------------------------------------------

// Envelope holds the message type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON implements the json.Unmarshaler interface. It captures the
// full raw bytes and extracts only the "type" field so that the rest of the
// payload can be decoded later into the appropriate concrete struct.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Client -> Server message structs
// ---------------------------------------------------------------------------

// FindPartnerMsg is sent by the client to request a partner, or with Stop
// set to leave the current match and the waiting queue.
type FindPartnerMsg struct {
	Type string `json:"type"`
	Stop bool   `json:"stop"`
}

// SignalMsg carries an opaque connection-negotiation payload for the
// partner. The server relays it without inspecting the contents.
type SignalMsg struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ChatMsg is a text message for the partner.
type ChatMsg struct {
	Type string `json:"type"`
	Text string `json:"msg"`
}

// TypingMsg indicates whether the client is currently typing.
type TypingMsg struct {
	Type     string `json:"type"`
	IsTyping bool   `json:"is_typing"`
}

// ReportUserMsg is sent by the client to report the current partner.
type ReportUserMsg struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// UpdateInterestsMsg carries the client's interest tags. Pairing is
// interest-blind; the server accepts and acknowledges without acting on it.
type UpdateInterestsMsg struct {
	Type      string   `json:"type"`
	Interests []string `json:"interests"`
}

// PingMsg is a client-initiated keepalive ping.
type PingMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Server -> Client message structs
// ---------------------------------------------------------------------------

// IdentityAssignedMsg carries the ephemeral display name given to the
// client at connection time.
type IdentityAssignedMsg struct {
	Type     string `json:"type"`
	Identity string `json:"identity"`
}

// UpdateCountMsg carries the current online user count.
type UpdateCountMsg struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// FoundPartnerMsg is sent to the side that closed the match. That side
// initiates the connection handshake.
type FoundPartnerMsg struct {
	Type            string `json:"type"`
	RoomID          string `json:"room_id"`
	Initiator       bool   `json:"initiator"`
	PartnerIdentity string `json:"partner_identity"`
}

// JoinPrivateRoomMsg is sent to the side that was taken from the queue.
type JoinPrivateRoomMsg struct {
	Type            string `json:"type"`
	RoomID          string `json:"room_id"`
	PartnerIdentity string `json:"partner_identity"`
}

// WaitingMsg confirms the client entered the waiting queue.
type WaitingMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// StoppedMsg confirms a stop request returned the client to idle.
type StoppedMsg struct {
	Type string `json:"type"`
}

// PartnerDisconnectedMsg tells the client its partner left the match.
type PartnerDisconnectedMsg struct {
	Type string `json:"type"`
}

// ServerSignalMsg relays the partner's negotiation payload.
type ServerSignalMsg struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	Sender  string          `json:"sender"`
}

// ServerChatMsg relays the partner's chat text. Senders also receive their
// own messages back as room echoes.
type ServerChatMsg struct {
	Type   string `json:"type"`
	Text   string `json:"msg"`
	Sender string `json:"sender"`
}

// PartnerTypingMsg relays the partner's typing indicator.
type PartnerTypingMsg struct {
	Type     string `json:"type"`
	IsTyping bool   `json:"typing"`
	Sender   string `json:"sender"`
}

// ReportReceivedMsg acknowledges a report submission.
type ReportReceivedMsg struct {
	Type   string `json:"type"`
	Status string `json:"status"`
}

// ErrorMsg is sent by the server to communicate an error condition.
type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PongMsg is the server's response to a client ping.
type PongMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// ParseClientMessage parses raw WebSocket bytes into a typed client message.
// It returns the message type string, the decoded struct, and any error
// encountered during parsing. An error is returned for unknown or
// server-only message types.
func ParseClientMessage(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse message: %w", err)
	}

	var (
		msg interface{}
		err error
	)

	switch env.Type {
	case TypeFindPartner:
		var m FindPartnerMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeSignal:
		var m SignalMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeChatMessage:
		var m ChatMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeTyping:
		var m TypingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeReportUser:
		var m ReportUserMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeUpdateInterests:
		var m UpdateInterestsMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypePing:
		var m PingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown client message type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}

// NewServerMessage creates a JSON-encoded byte slice for a server message.
// The msgType is injected into the payload under the "type" key. The payload
// should be one of the server message structs; this function marshals it to
// JSON, injects the type field, and returns the final bytes.
func NewServerMessage(msgType string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal payload into map: %w", err)
	}

	m["type"] = msgType

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal server message: %w", err)
	}
	return out, nil
}

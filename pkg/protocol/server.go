package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/pokerplan/pokerd/pkg/poker"
)

// ServerKind tags a server record.
type ServerKind string

const (
	KindWelcome ServerKind = "welcome"
	KindState   ServerKind = "state"
	KindError   ServerKind = "error"
)

// ErrorCode identifies the type of error event.
type ErrorCode string

const (
	CodeMalformed     ErrorCode = "malformed_message"
	CodeNotAuthorized ErrorCode = "not_authorized"
	CodeNotLoggedIn   ErrorCode = "not_logged_in"
	CodeRateLimited   ErrorCode = "rate_limited"
)

// ServerMessage is any record the server may send. Welcome carries the
// assigned participant id plus an initial snapshot; state carries a
// snapshot only; error carries a code and message.
type ServerMessage struct {
	Kind ServerKind `json:"kind"`

	ParticipantID *uuid.UUID      `json:"participant_id,omitempty"`
	Snapshot      *poker.Snapshot `json:"snapshot,omitempty"`

	Code    ErrorCode `json:"code,omitempty"`
	Message string    `json:"message,omitempty"`
	Fatal   bool      `json:"fatal,omitempty"`
}

// NewWelcome builds the first record of an identified connection.
func NewWelcome(id uuid.UUID, snap poker.Snapshot) *ServerMessage {
	return &ServerMessage{Kind: KindWelcome, ParticipantID: &id, Snapshot: &snap}
}

// NewStateUpdate builds a broadcast record for one viewer.
func NewStateUpdate(snap poker.Snapshot) *ServerMessage {
	return &ServerMessage{Kind: KindState, Snapshot: &snap}
}

// NewError builds a non-fatal error event. The connection stays open.
func NewError(code ErrorCode, message string) *ServerMessage {
	return &ServerMessage{Kind: KindError, Code: code, Message: message}
}

// EncodeServerMessage renders one server record without the trailing
// newline; the codec adds framing.
func EncodeServerMessage(m *ServerMessage) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode server message: %w", err)
	}
	return data, nil
}

// DecodeServerMessage parses one server record. Used by clients and
// tests.
func DecodeServerMessage(data []byte) (*ServerMessage, error) {
	var msg ServerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("protocol: decode server message: %w", err)
	}
	switch msg.Kind {
	case KindWelcome, KindState, KindError:
		return &msg, nil
	default:
		return nil, fmt.Errorf("protocol: unknown server kind %q", msg.Kind)
	}
}

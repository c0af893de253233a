package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/pokerplan/pokerd/pkg/poker"
)

// ClientKind tags a client record.
type ClientKind string

const (
	KindLogin       ClientKind = "login"
	KindMove        ClientKind = "move"
	KindVote        ClientKind = "vote"
	KindVoteConfirm ClientKind = "vote_confirm"
	KindAdmin       ClientKind = "admin"
)

// AdminAction tags the admin sub-command.
type AdminAction string

const (
	ActionStartVote    AdminAction = "start_vote"
	ActionReveal       AdminAction = "reveal"
	ActionReset        AdminAction = "reset"
	ActionKick         AdminAction = "kick"
	ActionUpdateConfig AdminAction = "update_config"
)

// ClientMessage is any record a client may send. Which fields are
// meaningful depends on Kind (and, for admin, Action); Validate
// enforces the per-kind requirements.
type ClientMessage struct {
	Kind ClientKind `json:"kind"`

	// login
	Name   string             `json:"name,omitempty"`
	Role   poker.Role         `json:"role,omitempty"`
	Color  poker.AvatarColor  `json:"color,omitempty"`
	Symbol poker.AvatarSymbol `json:"symbol,omitempty"`

	// move
	X uint16 `json:"x,omitempty"`
	Y uint16 `json:"y,omitempty"`

	// vote
	Value *int `json:"value,omitempty"`

	// vote_confirm
	Confirmed bool `json:"confirmed,omitempty"`

	// admin
	Action      AdminAction         `json:"action,omitempty"`
	Ticket      string              `json:"ticket,omitempty"`
	TimeoutSecs *int64              `json:"timeout_secs,omitempty"`
	TargetID    *uuid.UUID          `json:"target_id,omitempty"`
	Config      *poker.VotingConfig `json:"config,omitempty"`
}

// DecodeClientMessage parses and validates one client record.
func DecodeClientMessage(data []byte) (*ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("protocol: decode client message: %w", err)
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Validate checks the per-kind field requirements.
func (m *ClientMessage) Validate() error {
	switch m.Kind {
	case KindLogin:
		if m.Name == "" {
			return fmt.Errorf("protocol: login: %w", errMissingField("name"))
		}
		if !m.Role.Valid() {
			return fmt.Errorf("protocol: login: invalid role %q", m.Role)
		}
		if !m.Color.Valid() {
			return fmt.Errorf("protocol: login: invalid color %q", m.Color)
		}
		if !m.Symbol.Valid() {
			return fmt.Errorf("protocol: login: invalid symbol %q", m.Symbol)
		}
		return nil
	case KindMove, KindVoteConfirm:
		return nil
	case KindVote:
		// A missing value is a vote retraction.
		return nil
	case KindAdmin:
		switch m.Action {
		case ActionStartVote, ActionReveal, ActionReset:
			return nil
		case ActionKick:
			if m.TargetID == nil {
				return fmt.Errorf("protocol: kick: %w", errMissingField("target_id"))
			}
			return nil
		case ActionUpdateConfig:
			if m.Config == nil {
				return fmt.Errorf("protocol: update_config: %w", errMissingField("config"))
			}
			if len(m.Config.Cards) == 0 {
				return fmt.Errorf("protocol: update_config: empty card deck")
			}
			return nil
		default:
			return fmt.Errorf("protocol: unknown admin action %q", m.Action)
		}
	default:
		return fmt.Errorf("protocol: unknown message kind %q", m.Kind)
	}
}

func errMissingField(name string) error {
	return fmt.Errorf("missing field %q", name)
}

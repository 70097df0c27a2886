// Package v1 defines the Expertly chat wire protocol.
//
// This package is intentionally stable and dependency-light. It is shared
// between server and clients to keep the protocol authoritative.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Version is the protocol version identifier embedded into every envelope.
const Version = "v1"

// Type constants (wire-stable).
const (
	// TypeConversationJoin enters a conversation room (client -> server).
	TypeConversationJoin = "join_conversation"
	// TypeConversationLeave leaves a conversation room (client -> server).
	TypeConversationLeave = "leave_conversation"

	// TypeMessageSend submits a message through the pipeline (client -> server).
	TypeMessageSend = "send_message"
	// TypeMessageNew broadcasts an accepted message to the room (server -> room).
	TypeMessageNew = "new_message"
	// TypeConversationUpdated refreshes a participant's conversation listing
	// entry after a message (server -> each participant, individually framed).
	TypeConversationUpdated = "conversation_updated"

	// TypeUserActive reports presence inside a conversation (both directions).
	TypeUserActive = "user_active"
	// TypeTyping relays a typing indicator (both directions).
	TypeTyping = "typing"

	// TypeError is a generic error envelope (server -> client).
	TypeError = "error"
)

// Envelope is the canonical wire wrapper.
type Envelope struct {
	V       string          `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	TS      time.Time       `json:"ts,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validate performs strict structural validation for an Envelope.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.V) == "" {
		return errors.New("missing field: v")
	}
	if e.V != Version {
		return fmt.Errorf("unsupported protocol version: %q", e.V)
	}
	if strings.TrimSpace(e.Type) == "" {
		return errors.New("missing field: type")
	}

	switch e.Type {
	case TypeConversationJoin,
		TypeConversationLeave,
		TypeMessageSend,
		TypeMessageNew,
		TypeConversationUpdated,
		TypeUserActive,
		TypeTyping,
		TypeError:
		return nil
	default:
		return fmt.Errorf("unknown type: %q", e.Type)
	}
}

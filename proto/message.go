// Package proto defines the inter-agent message protocol: a routing header,
// a discriminated payload validated against a per-type JSON Schema, and the
// task model shared by the workforce router and the agents.
package proto

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Type discriminates message payloads. Every Type has exactly one payload
// shape and one registered schema.
type Type string

const (
	TypeTaskAssignment   Type = "TASK_ASSIGNMENT"
	TypeStatusUpdate     Type = "STATUS_UPDATE"
	TypeDataRequest      Type = "DATA_REQUEST"
	TypeDataResponse     Type = "DATA_RESPONSE"
	TypeTaskCancellation Type = "TASK_CANCELLATION"
	TypeErrorReport      Type = "ERROR_REPORT"
)

// RecipientAll addresses every registered agent except the sender.
const RecipientAll = "ALL"

// rolePrefix marks a broadcast-by-role recipient, e.g. "TYPE:SEO_RESEARCHER".
const rolePrefix = "TYPE:"

// Header carries routing metadata. RecipientID is one of: a specific agent
// id, "TYPE:<role>", or "ALL".
type Header struct {
	MessageID   string    `json:"message_id"`
	SenderID    string    `json:"sender_id"`
	RecipientID string    `json:"recipient_id"`
	Type        Type      `json:"message_type"`
	Timestamp   time.Time `json:"timestamp"`
}

// Message is the unit of inter-agent communication. Payload always satisfies
// the schema registered for Header.Type; Build is the only constructor.
type Message struct {
	Header  Header          `json:"header"`
	Payload json.RawMessage `json:"payload"`
}

// ValidationError reports a message that failed construction. Messages that
// fail validation are never placed on any outbox.
type ValidationError struct {
	Type   Type
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s message: %s", e.Type, e.Reason)
}

// Build constructs a validated message. The payload is serialized to JSON and
// checked against the schema registered for typ; sender and recipient are
// checked for well-formedness. A fresh 128-bit random message id is generated
// on every call.
func Build(senderID, recipientID string, typ Type, payload any) (*Message, error) {
	if senderID == "" {
		return nil, &ValidationError{Type: typ, Reason: "empty sender id"}
	}
	if _, err := ParseRecipient(recipientID); err != nil {
		return nil, &ValidationError{Type: typ, Reason: err.Error()}
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, &ValidationError{Type: typ, Reason: fmt.Sprintf("payload not serializable: %v", err)}
	}
	if err := validatePayload(typ, raw); err != nil {
		return nil, err
	}

	return &Message{
		Header: Header{
			MessageID:   uuid.New().String(),
			SenderID:    senderID,
			RecipientID: recipientID,
			Type:        typ,
			Timestamp:   time.Now().UTC(),
		},
		Payload: raw,
	}, nil
}

// DecodePayload deserializes the payload into v, which should be a pointer to
// the payload struct matching the message type.
func (m *Message) DecodePayload(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("message %s has empty payload", m.Header.MessageID)
	}
	return json.Unmarshal(m.Payload, v)
}

func (m *Message) String() string {
	return fmt.Sprintf("Message{ID:%s, Type:%s, From:%s, To:%s}",
		m.Header.MessageID, m.Header.Type, m.Header.SenderID, m.Header.RecipientID)
}

// RecipientKind classifies the three address forms.
type RecipientKind int

const (
	RecipientDirect RecipientKind = iota
	RecipientRole
	RecipientGlobal
)

// Recipient is a parsed recipient address.
type Recipient struct {
	Kind RecipientKind
	// ID is the agent id for direct addresses.
	ID string
	// Role is the target role for TYPE:<role> addresses.
	Role Role
}

// ParseRecipient validates and classifies a recipient address.
func ParseRecipient(addr string) (Recipient, error) {
	switch {
	case addr == "":
		return Recipient{}, fmt.Errorf("empty recipient")
	case addr == RecipientAll:
		return Recipient{Kind: RecipientGlobal}, nil
	case strings.HasPrefix(addr, rolePrefix):
		role := Role(strings.TrimPrefix(addr, rolePrefix))
		if !role.Valid() {
			return Recipient{}, fmt.Errorf("unknown role in recipient %q", addr)
		}
		return Recipient{Kind: RecipientRole, Role: role}, nil
	default:
		return Recipient{Kind: RecipientDirect, ID: addr}, nil
	}
}

// RoleRecipient builds a TYPE:<role> broadcast address.
func RoleRecipient(role Role) string {
	return rolePrefix + string(role)
}

// Role is an agent's role type, drawn from a closed set.
type Role string

const (
	RoleCoordinator    Role = "COORDINATOR"
	RoleSEOResearcher  Role = "SEO_RESEARCHER"
	RoleContentCreator Role = "CONTENT_CREATOR"
	RoleAnalyst        Role = "ANALYST"
	RolePublisher      Role = "PUBLISHER"
)

// Valid reports whether the role is a member of the closed role set.
func (r Role) Valid() bool {
	switch r {
	case RoleCoordinator, RoleSEOResearcher, RoleContentCreator, RoleAnalyst, RolePublisher:
		return true
	}
	return false
}

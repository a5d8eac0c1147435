package model

import (
	"encoding/json"
	"strings"
	"time"
)

// EventType names an event published on the hub's NATS subjects.
type EventType string

const (
	// V1MessagesReceived announces a stored inbound message awaiting routing.
	V1MessagesReceived EventType = "v1.integration.messages.received"
)

// MapToBaseEventType maps a subject, optionally suffixed with a company id,
// to its known event type.
func MapToBaseEventType(input string) (EventType, bool) {
	if isKnownEventType(EventType(input)) {
		return EventType(input), true
	}

	lastDot := strings.LastIndex(input, ".")
	if lastDot <= 0 {
		return "", false
	}

	base := EventType(input[:lastDot])
	if isKnownEventType(base) {
		return base, true
	}
	return "", false
}

func isKnownEventType(e EventType) bool {
	switch e {
	case V1MessagesReceived:
		return true
	}
	return false
}

// Subject returns the company-scoped subject for this event type.
func (e EventType) Subject(companyID string) string {
	return string(e) + "." + companyID
}

// MessageMetadata is the JetStream delivery metadata of one event.
type MessageMetadata struct {
	ConsumerSequence uint64
	StreamSequence   uint64
	NumDelivered     uint64
	NumPending       uint64
	Timestamp        time.Time
	Stream           string
	Consumer         string
	Domain           string
	MessageID        string
	MessageSubject   string
	CompanyID        string
}

// MessageReceivedEvent is published after the hub has durably stored a message.
type MessageReceivedEvent struct {
	MessageID     string    `json:"message_id" validate:"required"`
	IntegrationID string    `json:"integration_id" validate:"required"`
	Channel       Channel   `json:"channel" validate:"required"`
	CompanyID     string    `json:"company_id" validate:"required"`
	ReceivedAt    time.Time `json:"received_at"`
}

// DLQPayload wraps an event that could not be routed.
type DLQPayload struct {
	SourceSubject   string          `json:"source_subject"`
	Company         string          `json:"company"`
	OriginalPayload json.RawMessage `json:"original_payload"`
	Error           string          `json:"error"`
	ErrorType       string          `json:"error_type"`
	RetryCount      uint64          `json:"retry_count"`
	MaxRetry        int             `json:"max_retry"`
	Timestamp       time.Time       `json:"ts"`
}

package model

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm/schema"
)

type AttachmentKind string

const (
	AttachmentImage    AttachmentKind = "image"
	AttachmentVideo    AttachmentKind = "video"
	AttachmentAudio    AttachmentKind = "audio"
	AttachmentDocument AttachmentKind = "document"
)

// Attachment references media. Location is a URL or, for platforms that
// only hand out media ids, the opaque id.
type Attachment struct {
	Kind     AttachmentKind `json:"kind"`
	Location string         `json:"location"`
	Filename string         `json:"filename,omitempty"`
}

// CanonicalMessage is the channel-independent shape every payload is mapped to.
// (Channel, ExternalUserID) identifies one conversation partner.
type CanonicalMessage struct {
	Channel        Channel         `json:"channel"`
	ExternalUserID string          `json:"external_user_id"`
	Username       string          `json:"username,omitempty"`
	FirstName      string          `json:"first_name,omitempty"`
	LastName       string          `json:"last_name,omitempty"`
	Phone          string          `json:"phone,omitempty"`
	MessageText    string          `json:"message_text"`
	Attachments    []Attachment    `json:"attachments,omitempty"`
	OwnerType      OwnerType       `json:"owner_type"`
	OwnerID        *string         `json:"owner_id,omitempty"`
	ReceivedAt     time.Time       `json:"received_at"`
	RawPayload     json.RawMessage `json:"raw_payload,omitempty"`
}

type MessageStatus string

const (
	StatusPending   MessageStatus = "pending"
	StatusProcessed MessageStatus = "processed"
	StatusFailed    MessageStatus = "failed"
)

// InboundMessage is the durable record of one webhook delivery.
type InboundMessage struct {
	ID             string         `json:"id" gorm:"primaryKey;type:text"`
	CompanyID      string         `json:"company_id" gorm:"type:text"`
	IntegrationID  string         `json:"integration_id" gorm:"type:text;not null;index:idx_inbound_pending,priority:1"`
	Channel        Channel        `json:"channel" gorm:"type:text;not null;index:idx_inbound_identity,priority:1"`
	ExternalUserID string         `json:"external_user_id" gorm:"type:text;not null;index:idx_inbound_identity,priority:2"`
	Username       string         `json:"username,omitempty" gorm:"type:text"`
	FirstName      string         `json:"first_name,omitempty" gorm:"type:text"`
	LastName       string         `json:"last_name,omitempty" gorm:"type:text"`
	Phone          *string        `json:"phone,omitempty" gorm:"type:text"`
	MessageText    string         `json:"message_text" gorm:"type:text"`
	Attachments    datatypes.JSON `json:"attachments,omitempty" gorm:"type:jsonb"`
	OwnerType      OwnerType      `json:"owner_type" gorm:"type:text"`
	OwnerID        *string        `json:"owner_id,omitempty" gorm:"type:text"`
	ReceivedAt     time.Time      `json:"received_at" gorm:"not null;index:idx_inbound_identity,priority:3"`
	RawPayload     datatypes.JSON `json:"raw_payload,omitempty" gorm:"type:jsonb"`
	Status         MessageStatus  `json:"status" gorm:"type:text;not null;default:pending;index:idx_inbound_pending,priority:2"`
	LeadID         *string        `json:"lead_id,omitempty" gorm:"type:text"`
	LeadType       *LeadType      `json:"lead_type,omitempty" gorm:"type:text"`
	ProcessedAt    *time.Time     `json:"processed_at,omitempty"`
	FailureReason  string         `json:"failure_reason,omitempty" gorm:"type:text"`
	CreatedAt      time.Time      `json:"created_at" gorm:"autoCreateTime;index:idx_inbound_pending,priority:3"`
	UpdatedAt      time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
}

func (InboundMessage) TableName(namer schema.Namer) string {
	return namer.TableName("inbound_messages")
}

// NewInboundMessage builds a pending record from a normalized message.
func NewInboundMessage(id, companyID, integrationID string, msg CanonicalMessage) *InboundMessage {
	m := &InboundMessage{
		ID:             id,
		CompanyID:      companyID,
		IntegrationID:  integrationID,
		Channel:        msg.Channel,
		ExternalUserID: msg.ExternalUserID,
		Username:       msg.Username,
		FirstName:      msg.FirstName,
		LastName:       msg.LastName,
		MessageText:    msg.MessageText,
		OwnerType:      msg.OwnerType,
		OwnerID:        msg.OwnerID,
		ReceivedAt:     msg.ReceivedAt,
		Status:         StatusPending,
	}
	if msg.Phone != "" {
		phone := msg.Phone
		m.Phone = &phone
	}
	if len(msg.Attachments) > 0 {
		data, _ := json.Marshal(msg.Attachments)
		m.Attachments = datatypes.JSON(data)
	}
	if len(msg.RawPayload) > 0 && json.Valid(msg.RawPayload) {
		m.RawPayload = datatypes.JSON(msg.RawPayload)
	}
	return m
}

// Canonical rebuilds the normalized message for reprocessing.
func (m *InboundMessage) Canonical() CanonicalMessage {
	msg := CanonicalMessage{
		Channel:        m.Channel,
		ExternalUserID: m.ExternalUserID,
		Username:       m.Username,
		FirstName:      m.FirstName,
		LastName:       m.LastName,
		MessageText:    m.MessageText,
		OwnerType:      m.OwnerType,
		OwnerID:        m.OwnerID,
		ReceivedAt:     m.ReceivedAt,
		RawPayload:     json.RawMessage(m.RawPayload),
	}
	if m.Phone != nil {
		msg.Phone = *m.Phone
	}
	if len(m.Attachments) > 0 {
		_ = json.Unmarshal(m.Attachments, &msg.Attachments)
	}
	return msg
}

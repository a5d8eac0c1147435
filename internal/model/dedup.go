package model

import (
	"time"

	"gorm.io/gorm/schema"
)

// DedupMapping records that a lead exists for an external identity. Both
// (channel, external_user_id) and phone are unique; inserts never overwrite.
// A sender without a platform id has a NULL external_user_id, so anonymous
// senders never collide with each other.
type DedupMapping struct {
	ID             string    `json:"id" gorm:"primaryKey;type:text"`
	Channel        Channel   `json:"channel" gorm:"type:text;not null;uniqueIndex:idx_dedup_identity,priority:1"`
	ExternalUserID *string   `json:"external_user_id,omitempty" gorm:"type:text;uniqueIndex:idx_dedup_identity,priority:2"`
	Phone          *string   `json:"phone,omitempty" gorm:"type:text;uniqueIndex:idx_dedup_phone"`
	LeadID         string    `json:"lead_id" gorm:"type:text;not null"`
	LeadType       LeadType  `json:"lead_type" gorm:"type:text;not null"`
	IntegrationID  string    `json:"integration_id" gorm:"type:text;not null"`
	CreatedAt      time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (DedupMapping) TableName(namer schema.Namer) string {
	return namer.TableName("dedup_mappings")
}

package model

import (
	"time"

	"gorm.io/gorm/schema"
)

// CounterKind is the closed set of per-day usage counters.
type CounterKind string

const (
	CounterMessagesReceived    CounterKind = "messages_received"
	CounterLeadsCreated        CounterKind = "leads_created"
	CounterDuplicatesPrevented CounterKind = "duplicates_prevented"
)

// UsageCounter holds one integration's counters for one UTC day.
type UsageCounter struct {
	IntegrationID       string    `json:"integration_id" gorm:"primaryKey;type:text"`
	Date                time.Time `json:"date" gorm:"primaryKey;type:date"`
	MessagesReceived    int64     `json:"messages_received" gorm:"not null;default:0"`
	LeadsCreated        int64     `json:"leads_created" gorm:"not null;default:0"`
	DuplicatesPrevented int64     `json:"duplicates_prevented" gorm:"not null;default:0"`
	UpdatedAt           time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (UsageCounter) TableName(namer schema.Namer) string {
	return namer.TableName("usage_counters")
}

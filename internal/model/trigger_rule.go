package model

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm/schema"
)

type RuleType string

const (
	RuleAlways       RuleType = "always"
	RuleFirstMessage RuleType = "first_message"
	RuleKeywords     RuleType = "keywords"
)

type MatchMode string

const (
	MatchAny MatchMode = "any"
	MatchAll MatchMode = "all"
)

// TriggerRule decides whether a message opens a lead. Rules are evaluated
// by descending Priority; the first match wins.
type TriggerRule struct {
	ID            string         `json:"id" gorm:"primaryKey;type:text"`
	IntegrationID string         `json:"integration_id" gorm:"type:text;index;not null"`
	Type          RuleType       `json:"type" gorm:"type:text;not null"`
	Keywords      datatypes.JSON `json:"keywords,omitempty" gorm:"type:jsonb"`
	MatchMode     MatchMode      `json:"match_mode,omitempty" gorm:"type:text;default:any"`
	Priority      int            `json:"priority" gorm:"not null;default:0"`
	IsActive      bool           `json:"is_active" gorm:"not null"`
	CreatedAt     time.Time      `json:"created_at" gorm:"autoCreateTime"`
}

func (TriggerRule) TableName(namer schema.Namer) string {
	return namer.TableName("trigger_rules")
}

// KeywordList decodes Keywords; malformed or empty JSON yields nil.
func (r *TriggerRule) KeywordList() []string {
	if len(r.Keywords) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(r.Keywords, &out); err != nil {
		return nil
	}
	return out
}

// SetKeywords encodes words into the Keywords column.
func (r *TriggerRule) SetKeywords(words []string) {
	data, _ := json.Marshal(words)
	r.Keywords = datatypes.JSON(data)
}

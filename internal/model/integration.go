package model

import (
	"time"

	"gorm.io/gorm/schema"
)

// OwnerType says which funnel an integration feeds.
type OwnerType string

const (
	OwnerHeadOffice OwnerType = "head_office"
	OwnerFranchisee OwnerType = "franchisee"
)

// AssignmentStrategy selects the responsible staff member for new leads.
type AssignmentStrategy string

const (
	AssignFixedUser  AssignmentStrategy = "fixed_user"
	AssignFirstAdmin AssignmentStrategy = "first_admin"
	AssignRoundRobin AssignmentStrategy = "round_robin"
)

// Integration connects one channel account to one CRM owner. The hub only
// writes WebhookSecret; everything else is managed by the dashboard.
type Integration struct {
	ID                 string             `json:"id" gorm:"primaryKey;type:text"`
	CompanyID          string             `json:"company_id" gorm:"type:text;index"`
	Name               string             `json:"name" gorm:"type:text"`
	Channel            Channel            `json:"channel" gorm:"type:text;not null" validate:"required"`
	OwnerType          OwnerType          `json:"owner_type" gorm:"type:text;not null" validate:"required,oneof=head_office franchisee"`
	OwnerID            *string            `json:"owner_id,omitempty" gorm:"type:text;index" validate:"required_if=OwnerType franchisee"`
	IsActive           bool               `json:"is_active" gorm:"not null"`
	AssignmentStrategy AssignmentStrategy `json:"assignment_strategy,omitempty" gorm:"type:text"`
	DefaultAssigneeID  *string            `json:"default_assignee_id,omitempty" gorm:"type:text"`
	WebhookSecret      string             `json:"-" gorm:"type:text"`
	CreatedAt          time.Time          `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt          time.Time          `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Integration) TableName(namer schema.Namer) string {
	return namer.TableName("integrations")
}

// LeadType is derived from the owner alone, whatever the routing outcome.
func (i *Integration) LeadType() LeadType {
	return LeadTypeFor(i.OwnerType)
}

// FranchiseeID returns the owning franchisee, or nil for head-office integrations.
func (i *Integration) FranchiseeID() *string {
	if i.OwnerType != OwnerFranchisee {
		return nil
	}
	return i.OwnerID
}

package model

import (
	"strings"
	"time"

	"gorm.io/gorm/schema"
)

type LeadType string

const (
	LeadFranchiseSale LeadType = "franchise_sale"
	LeadBooking       LeadType = "booking"
)

// LeadTypeFor maps an owner to its funnel.
func LeadTypeFor(owner OwnerType) LeadType {
	if owner == OwnerFranchisee {
		return LeadBooking
	}
	return LeadFranchiseSale
}

// StageNew is the entry stage for both funnels.
const StageNew = "new"

// FranchiseDeal is a lead in the head-office franchise-sales funnel.
type FranchiseDeal struct {
	ID            string    `json:"id" gorm:"primaryKey;type:text"`
	CompanyID     string    `json:"company_id" gorm:"type:text"`
	IntegrationID string    `json:"integration_id" gorm:"type:text;index"`
	Name          string    `json:"name" gorm:"type:text;not null"`
	Phone         *string   `json:"phone,omitempty" gorm:"type:text"`
	Email         *string   `json:"email,omitempty" gorm:"type:text"`
	Source        string    `json:"source" gorm:"type:text"`
	Stage         string    `json:"stage" gorm:"type:text;default:new"`
	ResponsibleID *string   `json:"responsible_id,omitempty" gorm:"type:text;index"`
	Notes         string    `json:"notes,omitempty" gorm:"type:text"`
	CreatedAt     time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt     time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (FranchiseDeal) TableName(namer schema.Namer) string {
	return namer.TableName("franchise_deals")
}

// BookingLead is a lead in one franchisee's booking funnel. Exactly one of
// the platform identity columns is set, matching the source channel.
type BookingLead struct {
	ID              string    `json:"id" gorm:"primaryKey;type:text"`
	CompanyID       string    `json:"company_id" gorm:"type:text"`
	FranchiseeID    string    `json:"franchisee_id" gorm:"type:text;not null;index"`
	IntegrationID   string    `json:"integration_id" gorm:"type:text;index"`
	Name            string    `json:"name" gorm:"type:text;not null"`
	Phone           *string   `json:"phone,omitempty" gorm:"type:text"`
	Email           *string   `json:"email,omitempty" gorm:"type:text"`
	Source          string    `json:"source" gorm:"type:text"`
	Stage           string    `json:"stage" gorm:"type:text;default:new"`
	ResponsibleID   *string   `json:"responsible_id,omitempty" gorm:"type:text;index"`
	Notes           string    `json:"notes,omitempty" gorm:"type:text"`
	TelegramUserID  *string   `json:"telegram_user_id,omitempty" gorm:"type:text"`
	InstagramUserID *string   `json:"instagram_user_id,omitempty" gorm:"type:text"`
	VKUserID        *string   `json:"vk_user_id,omitempty" gorm:"column:vk_user_id;type:text"`
	WhatsAppUserID  *string   `json:"whatsapp_user_id,omitempty" gorm:"column:whatsapp_user_id;type:text"`
	AvitoUserID     *string   `json:"avito_user_id,omitempty" gorm:"type:text"`
	MaxUserID       *string   `json:"max_user_id,omitempty" gorm:"type:text"`
	CreatedAt       time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt       time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (BookingLead) TableName(namer schema.Namer) string {
	return namer.TableName("booking_leads")
}

// SetPlatformIdentity fills the identity column that belongs to ch.
func (b *BookingLead) SetPlatformIdentity(ch Channel, externalUserID string) {
	id := strings.TrimSpace(externalUserID)
	if id == "" {
		return
	}
	switch ch {
	case ChannelTelegram:
		b.TelegramUserID = &id
	case ChannelInstagram:
		b.InstagramUserID = &id
	case ChannelVK:
		b.VKUserID = &id
	case ChannelWhatsApp:
		b.WhatsAppUserID = &id
	case ChannelAvito:
		b.AvitoUserID = &id
	case ChannelMax:
		b.MaxUserID = &id
	}
}

// LeadResult reports the outcome of a create-lead call. Created is false
// when another delivery won the dedup insert; LeadID then names the winner.
type LeadResult struct {
	LeadID     string   `json:"lead_id"`
	LeadType   LeadType `json:"lead_type"`
	Created    bool     `json:"created"`
	AssigneeID *string  `json:"assignee_id,omitempty"`
}

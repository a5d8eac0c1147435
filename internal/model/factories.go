package model

import (
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"gitlab.com/timkado/api/franchise-integration-hub/pkg/utils"
)

func init() {
	gofakeit.Seed(time.Now().UnixNano())
}

// NewIntegration returns an active head-office integration with fake data.
// Non-zero fields of the override replace the defaults; OwnerID,
// DefaultAssigneeID and IsActive are always taken from it.
func NewIntegration(overrideDefaults ...*Integration) *Integration {
	base := &Integration{
		ID:                 gofakeit.UUID(),
		CompanyID:          "company_" + gofakeit.LetterN(8),
		Name:               gofakeit.Company() + " " + gofakeit.RandomString([]string{"bot", "inbox", "page"}),
		Channel:            Channels[gofakeit.Number(0, len(Channels)-1)],
		OwnerType:          OwnerHeadOffice,
		IsActive:           true,
		AssignmentStrategy: AssignFirstAdmin,
		WebhookSecret:      gofakeit.LetterN(32),
		CreatedAt:          utils.Now().Add(-time.Duration(gofakeit.Number(24, 720)) * time.Hour),
		UpdatedAt:          utils.Now(),
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		if ovr.ID != "" {
			base.ID = ovr.ID
		}
		if ovr.CompanyID != "" {
			base.CompanyID = ovr.CompanyID
		}
		if ovr.Channel != "" {
			base.Channel = ovr.Channel
		}
		if ovr.OwnerType != "" {
			base.OwnerType = ovr.OwnerType
		}
		if ovr.AssignmentStrategy != "" {
			base.AssignmentStrategy = ovr.AssignmentStrategy
		}
		base.OwnerID = ovr.OwnerID
		base.DefaultAssigneeID = ovr.DefaultAssigneeID
		base.IsActive = ovr.IsActive
	}
	return base
}

// NewFranchiseeIntegration returns an active integration owned by franchiseeID.
func NewFranchiseeIntegration(franchiseeID string, channel Channel) *Integration {
	return NewIntegration(&Integration{
		Channel:   channel,
		OwnerType: OwnerFranchisee,
		OwnerID:   &franchiseeID,
		IsActive:  true,
	})
}

// NewCanonicalMessage returns a telegram-like message with fake data.
func NewCanonicalMessage(overrideDefaults ...*CanonicalMessage) *CanonicalMessage {
	base := &CanonicalMessage{
		Channel:        ChannelTelegram,
		ExternalUserID: gofakeit.DigitN(9),
		Username:       gofakeit.Username(),
		MessageText:    gofakeit.Sentence(6),
		OwnerType:      OwnerHeadOffice,
		ReceivedAt:     utils.Now().Add(-time.Duration(gofakeit.Number(1, 600)) * time.Second),
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		if ovr.Channel != "" {
			base.Channel = ovr.Channel
		}
		if ovr.ExternalUserID != "" {
			base.ExternalUserID = ovr.ExternalUserID
		}
		if !ovr.ReceivedAt.IsZero() {
			base.ReceivedAt = ovr.ReceivedAt
		}
		if ovr.OwnerType != "" {
			base.OwnerType = ovr.OwnerType
		}
		base.Username = ovr.Username
		base.FirstName = ovr.FirstName
		base.LastName = ovr.LastName
		base.Phone = ovr.Phone
		base.MessageText = ovr.MessageText
		base.Attachments = ovr.Attachments
		base.OwnerID = ovr.OwnerID
	}
	return base
}

// NewStaffUser returns an active user with role. A nil franchiseeID means head office.
func NewStaffUser(role StaffRole, franchiseeID *string, createdAt time.Time) *StaffUser {
	return &StaffUser{
		ID:           gofakeit.UUID(),
		CompanyID:    "company_" + gofakeit.LetterN(8),
		FranchiseeID: franchiseeID,
		FullName:     gofakeit.Name(),
		Role:         role,
		IsActive:     true,
		CreatedAt:    createdAt,
	}
}

// NewTriggerRule returns an active rule of the given type.
func NewTriggerRule(integrationID string, ruleType RuleType, priority int, keywords ...string) *TriggerRule {
	r := &TriggerRule{
		ID:            gofakeit.UUID(),
		IntegrationID: integrationID,
		Type:          ruleType,
		MatchMode:     MatchAny,
		Priority:      priority,
		IsActive:      true,
	}
	if len(keywords) > 0 {
		r.SetKeywords(keywords)
	}
	return r
}

package storage

import (
	"context"
	"time"

	"gitlab.com/timkado/api/franchise-integration-hub/internal/model"
)

// IntegrationRepoAdapter adapts the PostgresRepo to the IntegrationRepo interface
type IntegrationRepoAdapter struct {
	postgres *PostgresRepo
}

// NewIntegrationRepoAdapter creates a new integration repository adapter
func NewIntegrationRepoAdapter(postgres *PostgresRepo) IntegrationRepo {
	return &IntegrationRepoAdapter{postgres: postgres}
}

func (a *IntegrationRepoAdapter) FindByID(ctx context.Context, id string) (*model.Integration, error) {
	return a.postgres.FindIntegrationByID(ctx, id)
}

func (a *IntegrationRepoAdapter) Save(ctx context.Context, integration model.Integration) error {
	return a.postgres.SaveIntegration(ctx, integration)
}

func (a *IntegrationRepoAdapter) UpdateWebhookSecret(ctx context.Context, integrationID, secret string) error {
	return a.postgres.UpdateWebhookSecret(ctx, integrationID, secret)
}

// TriggerRuleRepoAdapter adapts the PostgresRepo to the TriggerRuleRepo interface
type TriggerRuleRepoAdapter struct {
	postgres *PostgresRepo
}

// NewTriggerRuleRepoAdapter creates a new trigger rule repository adapter
func NewTriggerRuleRepoAdapter(postgres *PostgresRepo) TriggerRuleRepo {
	return &TriggerRuleRepoAdapter{postgres: postgres}
}

func (a *TriggerRuleRepoAdapter) FindActiveByIntegration(ctx context.Context, integrationID string) ([]model.TriggerRule, error) {
	return a.postgres.FindActiveTriggerRules(ctx, integrationID)
}

func (a *TriggerRuleRepoAdapter) Save(ctx context.Context, rule model.TriggerRule) error {
	return a.postgres.SaveTriggerRule(ctx, rule)
}

// InboundMessageRepoAdapter adapts the PostgresRepo to the InboundMessageRepo interface
type InboundMessageRepoAdapter struct {
	postgres *PostgresRepo
}

// NewInboundMessageRepoAdapter creates a new inbound message repository adapter
func NewInboundMessageRepoAdapter(postgres *PostgresRepo) InboundMessageRepo {
	return &InboundMessageRepoAdapter{postgres: postgres}
}

func (a *InboundMessageRepoAdapter) Save(ctx context.Context, msg model.InboundMessage) error {
	return a.postgres.SaveInboundMessage(ctx, msg)
}

func (a *InboundMessageRepoAdapter) FindByID(ctx context.Context, id string) (*model.InboundMessage, error) {
	return a.postgres.FindInboundMessageByID(ctx, id)
}

func (a *InboundMessageRepoAdapter) HasEarlierMessage(ctx context.Context, channel model.Channel, externalUserID string, before time.Time) (bool, error) {
	return a.postgres.HasEarlierMessage(ctx, channel, externalUserID, before)
}

func (a *InboundMessageRepoAdapter) MarkProcessed(ctx context.Context, id string, leadID *string, leadType *model.LeadType) error {
	return a.postgres.MarkInboundMessageProcessed(ctx, id, leadID, leadType)
}

func (a *InboundMessageRepoAdapter) MarkProcessedByIdentity(ctx context.Context, channel model.Channel, externalUserID string, receivedAt time.Time, leadID string, leadType model.LeadType) (int64, error) {
	return a.postgres.MarkProcessedByIdentity(ctx, channel, externalUserID, receivedAt, leadID, leadType)
}

func (a *InboundMessageRepoAdapter) MarkFailed(ctx context.Context, id, reason string) error {
	return a.postgres.MarkInboundMessageFailed(ctx, id, reason)
}

func (a *InboundMessageRepoAdapter) FindPending(ctx context.Context, integrationID string, olderThan time.Time, limit int) ([]model.InboundMessage, error) {
	return a.postgres.FindPendingInboundMessages(ctx, integrationID, olderThan, limit)
}

// DedupRepoAdapter adapts the PostgresRepo to the DedupRepo interface
type DedupRepoAdapter struct {
	postgres *PostgresRepo
}

// NewDedupRepoAdapter creates a new dedup repository adapter
func NewDedupRepoAdapter(postgres *PostgresRepo) DedupRepo {
	return &DedupRepoAdapter{postgres: postgres}
}

func (a *DedupRepoAdapter) FindByIdentity(ctx context.Context, channel model.Channel, externalUserID string) (*model.DedupMapping, error) {
	return a.postgres.FindDedupByIdentity(ctx, channel, externalUserID)
}

func (a *DedupRepoAdapter) FindByPhone(ctx context.Context, phone string) (*model.DedupMapping, error) {
	return a.postgres.FindDedupByPhone(ctx, phone)
}

func (a *DedupRepoAdapter) InsertIfAbsent(ctx context.Context, mapping model.DedupMapping) (bool, error) {
	return a.postgres.InsertDedupIfAbsent(ctx, mapping)
}

// UsageCounterRepoAdapter adapts the PostgresRepo to the UsageCounterRepo interface
type UsageCounterRepoAdapter struct {
	postgres *PostgresRepo
}

// NewUsageCounterRepoAdapter creates a new usage counter repository adapter
func NewUsageCounterRepoAdapter(postgres *PostgresRepo) UsageCounterRepo {
	return &UsageCounterRepoAdapter{postgres: postgres}
}

func (a *UsageCounterRepoAdapter) Increment(ctx context.Context, integrationID string, kind model.CounterKind, day time.Time) error {
	return a.postgres.IncrementUsage(ctx, integrationID, kind, day)
}

func (a *UsageCounterRepoAdapter) FindRange(ctx context.Context, integrationID string, from, to time.Time) ([]model.UsageCounter, error) {
	return a.postgres.FindUsageRange(ctx, integrationID, from, to)
}

// LeadRepoAdapter adapts the PostgresRepo to the LeadRepo interface
type LeadRepoAdapter struct {
	postgres *PostgresRepo
}

// NewLeadRepoAdapter creates a new lead repository adapter
func NewLeadRepoAdapter(postgres *PostgresRepo) LeadRepo {
	return &LeadRepoAdapter{postgres: postgres}
}

func (a *LeadRepoAdapter) CreateFranchiseDeal(ctx context.Context, deal model.FranchiseDeal) error {
	return a.postgres.CreateFranchiseDeal(ctx, deal)
}

func (a *LeadRepoAdapter) CreateBookingLead(ctx context.Context, lead model.BookingLead) error {
	return a.postgres.CreateBookingLead(ctx, lead)
}

// StaffRepoAdapter adapts the PostgresRepo to the StaffRepo interface
type StaffRepoAdapter struct {
	postgres *PostgresRepo
}

// NewStaffRepoAdapter creates a new staff repository adapter
func NewStaffRepoAdapter(postgres *PostgresRepo) StaffRepo {
	return &StaffRepoAdapter{postgres: postgres}
}

func (a *StaffRepoAdapter) FindFirstAdmin(ctx context.Context, franchiseeID *string) (*model.StaffUser, error) {
	return a.postgres.FindFirstAdmin(ctx, franchiseeID)
}

func (a *StaffRepoAdapter) FindEligible(ctx context.Context, franchiseeID *string, roles []model.StaffRole) ([]model.StaffUser, error) {
	return a.postgres.FindEligibleStaff(ctx, franchiseeID, roles)
}

func (a *StaffRepoAdapter) Save(ctx context.Context, user model.StaffUser) error {
	return a.postgres.SaveStaffUser(ctx, user)
}

package mock

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"gitlab.com/timkado/api/franchise-integration-hub/internal/model"
)

// --- IntegrationRepo Mock ---

// IntegrationRepoMock mocks the IntegrationRepo interface
type IntegrationRepoMock struct {
	mock.Mock
}

func (m *IntegrationRepoMock) FindByID(ctx context.Context, id string) (*model.Integration, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Integration), args.Error(1)
}

func (m *IntegrationRepoMock) Save(ctx context.Context, integration model.Integration) error {
	args := m.Called(ctx, integration)
	return args.Error(0)
}

func (m *IntegrationRepoMock) UpdateWebhookSecret(ctx context.Context, integrationID, secret string) error {
	args := m.Called(ctx, integrationID, secret)
	return args.Error(0)
}

// --- TriggerRuleRepo Mock ---

// TriggerRuleRepoMock mocks the TriggerRuleRepo interface
type TriggerRuleRepoMock struct {
	mock.Mock
}

func (m *TriggerRuleRepoMock) FindActiveByIntegration(ctx context.Context, integrationID string) ([]model.TriggerRule, error) {
	args := m.Called(ctx, integrationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.TriggerRule), args.Error(1)
}

func (m *TriggerRuleRepoMock) Save(ctx context.Context, rule model.TriggerRule) error {
	args := m.Called(ctx, rule)
	return args.Error(0)
}

// --- InboundMessageRepo Mock ---

// InboundMessageRepoMock mocks the InboundMessageRepo interface
type InboundMessageRepoMock struct {
	mock.Mock
}

func (m *InboundMessageRepoMock) Save(ctx context.Context, msg model.InboundMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *InboundMessageRepoMock) FindByID(ctx context.Context, id string) (*model.InboundMessage, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.InboundMessage), args.Error(1)
}

func (m *InboundMessageRepoMock) HasEarlierMessage(ctx context.Context, channel model.Channel, externalUserID string, before time.Time) (bool, error) {
	args := m.Called(ctx, channel, externalUserID, before)
	return args.Bool(0), args.Error(1)
}

func (m *InboundMessageRepoMock) MarkProcessed(ctx context.Context, id string, leadID *string, leadType *model.LeadType) error {
	args := m.Called(ctx, id, leadID, leadType)
	return args.Error(0)
}

func (m *InboundMessageRepoMock) MarkProcessedByIdentity(ctx context.Context, channel model.Channel, externalUserID string, receivedAt time.Time, leadID string, leadType model.LeadType) (int64, error) {
	args := m.Called(ctx, channel, externalUserID, receivedAt, leadID, leadType)
	return args.Get(0).(int64), args.Error(1)
}

func (m *InboundMessageRepoMock) MarkFailed(ctx context.Context, id, reason string) error {
	args := m.Called(ctx, id, reason)
	return args.Error(0)
}

func (m *InboundMessageRepoMock) FindPending(ctx context.Context, integrationID string, olderThan time.Time, limit int) ([]model.InboundMessage, error) {
	args := m.Called(ctx, integrationID, olderThan, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.InboundMessage), args.Error(1)
}

// --- DedupRepo Mock ---

// DedupRepoMock mocks the DedupRepo interface
type DedupRepoMock struct {
	mock.Mock
}

func (m *DedupRepoMock) FindByIdentity(ctx context.Context, channel model.Channel, externalUserID string) (*model.DedupMapping, error) {
	args := m.Called(ctx, channel, externalUserID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DedupMapping), args.Error(1)
}

func (m *DedupRepoMock) FindByPhone(ctx context.Context, phone string) (*model.DedupMapping, error) {
	args := m.Called(ctx, phone)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DedupMapping), args.Error(1)
}

func (m *DedupRepoMock) InsertIfAbsent(ctx context.Context, mapping model.DedupMapping) (bool, error) {
	args := m.Called(ctx, mapping)
	return args.Bool(0), args.Error(1)
}

// --- UsageCounterRepo Mock ---

// UsageCounterRepoMock mocks the UsageCounterRepo interface
type UsageCounterRepoMock struct {
	mock.Mock
}

func (m *UsageCounterRepoMock) Increment(ctx context.Context, integrationID string, kind model.CounterKind, day time.Time) error {
	args := m.Called(ctx, integrationID, kind, day)
	return args.Error(0)
}

func (m *UsageCounterRepoMock) FindRange(ctx context.Context, integrationID string, from, to time.Time) ([]model.UsageCounter, error) {
	args := m.Called(ctx, integrationID, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.UsageCounter), args.Error(1)
}

// --- LeadRepo Mock ---

// LeadRepoMock mocks the LeadRepo interface
type LeadRepoMock struct {
	mock.Mock
}

func (m *LeadRepoMock) CreateFranchiseDeal(ctx context.Context, deal model.FranchiseDeal) error {
	args := m.Called(ctx, deal)
	return args.Error(0)
}

func (m *LeadRepoMock) CreateBookingLead(ctx context.Context, lead model.BookingLead) error {
	args := m.Called(ctx, lead)
	return args.Error(0)
}

// --- StaffRepo Mock ---

// StaffRepoMock mocks the StaffRepo interface
type StaffRepoMock struct {
	mock.Mock
}

func (m *StaffRepoMock) FindFirstAdmin(ctx context.Context, franchiseeID *string) (*model.StaffUser, error) {
	args := m.Called(ctx, franchiseeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.StaffUser), args.Error(1)
}

func (m *StaffRepoMock) FindEligible(ctx context.Context, franchiseeID *string, roles []model.StaffRole) ([]model.StaffUser, error) {
	args := m.Called(ctx, franchiseeID, roles)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.StaffUser), args.Error(1)
}

func (m *StaffRepoMock) Save(ctx context.Context, user model.StaffUser) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

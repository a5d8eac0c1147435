package storage

import (
	"context"
	"time"

	"go.uber.org/zap"

	"gitlab.com/timkado/api/franchise-integration-hub/internal/model"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/observer"
	"gitlab.com/timkado/api/franchise-integration-hub/pkg/logger"
	"gitlab.com/timkado/api/franchise-integration-hub/pkg/utils"
)

// IntegrationRepo defines integration storage operations
type IntegrationRepo interface {
	FindByID(ctx context.Context, id string) (*model.Integration, error)
	Save(ctx context.Context, integration model.Integration) error
	UpdateWebhookSecret(ctx context.Context, integrationID, secret string) error
}

// TriggerRuleRepo defines trigger rule storage operations
type TriggerRuleRepo interface {
	FindActiveByIntegration(ctx context.Context, integrationID string) ([]model.TriggerRule, error)
	Save(ctx context.Context, rule model.TriggerRule) error
}

// InboundMessageRepo defines inbound message storage operations
type InboundMessageRepo interface {
	Save(ctx context.Context, msg model.InboundMessage) error
	FindByID(ctx context.Context, id string) (*model.InboundMessage, error)
	HasEarlierMessage(ctx context.Context, channel model.Channel, externalUserID string, before time.Time) (bool, error)
	MarkProcessed(ctx context.Context, id string, leadID *string, leadType *model.LeadType) error
	MarkProcessedByIdentity(ctx context.Context, channel model.Channel, externalUserID string, receivedAt time.Time, leadID string, leadType model.LeadType) (int64, error)
	MarkFailed(ctx context.Context, id, reason string) error
	FindPending(ctx context.Context, integrationID string, olderThan time.Time, limit int) ([]model.InboundMessage, error)
}

// DedupRepo defines deduplication mapping operations
type DedupRepo interface {
	FindByIdentity(ctx context.Context, channel model.Channel, externalUserID string) (*model.DedupMapping, error)
	FindByPhone(ctx context.Context, phone string) (*model.DedupMapping, error)
	InsertIfAbsent(ctx context.Context, mapping model.DedupMapping) (bool, error)
}

// UsageCounterRepo defines usage counter operations
type UsageCounterRepo interface {
	Increment(ctx context.Context, integrationID string, kind model.CounterKind, day time.Time) error
	FindRange(ctx context.Context, integrationID string, from, to time.Time) ([]model.UsageCounter, error)
}

// LeadRepo defines lead storage operations for both funnels
type LeadRepo interface {
	CreateFranchiseDeal(ctx context.Context, deal model.FranchiseDeal) error
	CreateBookingLead(ctx context.Context, lead model.BookingLead) error
}

// StaffRepo defines read access to the user directory
type StaffRepo interface {
	FindFirstAdmin(ctx context.Context, franchiseeID *string) (*model.StaffUser, error)
	FindEligible(ctx context.Context, franchiseeID *string, roles []model.StaffRole) ([]model.StaffUser, error)
	Save(ctx context.Context, user model.StaffUser) error
}

// Pinger is implemented by stores that can report connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// usageIncrementTimeout caps one best-effort increment, retries included.
var usageIncrementTimeout = 2 * time.Second

// IncrementUsageBestEffort bumps a usage counter for today and swallows any
// failure after logging it. Counters never affect message or lead outcomes.
func IncrementUsageBestEffort(ctx context.Context, usage UsageCounterRepo, integrationID string, kind model.CounterKind) {
	if usage == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, usageIncrementTimeout)
	defer cancel()
	if err := usage.Increment(ctx, integrationID, kind, utils.Now()); err != nil {
		observer.IncUsageCounterFailure(string(kind))
		logger.FromContext(ctx).Warn("Usage counter increment failed",
			zap.String("integration_id", integrationID),
			zap.String("counter", string(kind)),
			zap.Error(err),
		)
	}
}

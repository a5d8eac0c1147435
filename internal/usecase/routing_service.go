package usecase

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"gitlab.com/timkado/api/franchise-integration-hub/internal/apperrors"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/identity"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/model"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/observer"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/storage"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/tenant"
	"gitlab.com/timkado/api/franchise-integration-hub/pkg/logger"
)

// MessageRouter decides what to do with a canonical message.
type MessageRouter interface {
	Route(ctx context.Context, msg model.CanonicalMessage, integration *model.Integration) (model.RoutingDecision, error)
}

// LeadCreator opens a lead for a positive routing decision.
type LeadCreator interface {
	CreateLead(ctx context.Context, msg model.CanonicalMessage, decision model.RoutingDecision, integration *model.Integration) (*model.LeadResult, error)
}

// MessageProcessor runs the routing pipeline for one stored message.
type MessageProcessor interface {
	ProcessMessage(ctx context.Context, messageID string) (*model.RoutingOutcome, error)
}

// RoutingService bridges receipt and decisioning: it takes a stored pending
// message through routing and, when needed, lead creation. Errors it returns
// are either RetryableError (message left pending) or FatalError (message
// marked failed).
type RoutingService struct {
	integrations storage.IntegrationRepo
	messages     storage.InboundMessageRepo
	usage        storage.UsageCounterRepo
	router       MessageRouter
	creator      LeadCreator
}

var _ MessageProcessor = (*RoutingService)(nil)

func NewRoutingService(
	integrations storage.IntegrationRepo,
	messages storage.InboundMessageRepo,
	usage storage.UsageCounterRepo,
	router MessageRouter,
	creator LeadCreator,
) *RoutingService {
	return &RoutingService{
		integrations: integrations,
		messages:     messages,
		usage:        usage,
		router:       router,
		creator:      creator,
	}
}

// ProcessMessage routes the stored message messageID. Messages that are no
// longer pending are skipped, which makes redelivery harmless.
func (s *RoutingService) ProcessMessage(ctx context.Context, messageID string) (*model.RoutingOutcome, error) {
	companyID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, apperrors.NewFatal(err, "routing message %s", messageID)
	}
	log := logger.FromContext(ctx).With(zap.String("message_id", messageID))

	stored, err := s.messages.FindByID(ctx, messageID)
	if err != nil {
		if apperrors.IsNotFoundError(err) {
			return nil, apperrors.NewFatal(err, "load message %s", messageID)
		}
		return nil, apperrors.NewRetryable(err, "load message %s", messageID)
	}

	outcome := &model.RoutingOutcome{MessageID: messageID}
	if stored.Status != model.StatusPending {
		log.Debug("Message already routed, skipping", zap.String("status", string(stored.Status)))
		outcome.Skipped = true
		return outcome, nil
	}

	log = log.With(
		zap.String("integration_id", stored.IntegrationID),
		zap.String("channel", string(stored.Channel)),
		zap.String("external_user_id", stored.ExternalUserID),
	)

	integration, err := s.integrations.FindByID(ctx, stored.IntegrationID)
	switch {
	case err != nil && !apperrors.IsNotFoundError(err):
		return nil, apperrors.NewRetryable(err, "load integration %s", stored.IntegrationID)
	case err != nil || !integration.IsActive:
		cause := fmt.Errorf("%w: %s", apperrors.ErrIntegrationUnavailable, stored.IntegrationID)
		return nil, s.fail(ctx, log, stored.ID, cause)
	}

	msg := stored.Canonical()
	if contact := identity.DeriveIdentity(msg); !contact.Usable() {
		cause := fmt.Errorf("%w: no name or reachable identity for %s user %q",
			apperrors.ErrInvalidContact, msg.Channel, msg.ExternalUserID)
		return nil, s.fail(ctx, log, stored.ID, cause)
	}

	decision, err := s.router.Route(ctx, msg, integration)
	if err != nil {
		return nil, apperrors.NewRetryable(err, "route message %s", messageID)
	}
	outcome.Decision = decision

	switch {
	case decision.Reason == model.ReasonDuplicate:
		leadID := decision.ExistingLeadID
		leadType := decision.ExistingLeadType
		if leadType == "" {
			leadType = decision.LeadType
		}
		if err := s.messages.MarkProcessed(ctx, stored.ID, &leadID, &leadType); err != nil {
			return nil, apperrors.NewRetryable(err, "link duplicate message %s", messageID)
		}
		storage.IncrementUsageBestEffort(ctx, s.usage, integration.ID, model.CounterDuplicatesPrevented)
		observer.IncDuplicatePrevented(companyID, "lookup")
		outcome.Lead = &model.LeadResult{LeadID: leadID, LeadType: leadType, Created: false}
		log.Info("Duplicate contact linked to existing lead", zap.String("lead_id", leadID))

	case !decision.Create:
		if err := s.messages.MarkProcessed(ctx, stored.ID, nil, nil); err != nil {
			return nil, apperrors.NewRetryable(err, "mark message %s processed", messageID)
		}
		log.Debug("No trigger matched, message processed without lead")

	default:
		result, err := s.creator.CreateLead(ctx, msg, decision, integration)
		if err != nil {
			if isPermanent(err) {
				return nil, s.fail(ctx, log, stored.ID, err)
			}
			log.Warn("Lead creation failed, message stays pending", zap.Error(err))
			return nil, apperrors.NewRetryable(err, "create lead for message %s", messageID)
		}
		if strings.TrimSpace(msg.ExternalUserID) == "" {
			if err := s.messages.MarkProcessed(ctx, stored.ID, &result.LeadID, &result.LeadType); err != nil {
				return nil, apperrors.NewRetryable(err, "link message %s to lead %s", messageID, result.LeadID)
			}
		}
		outcome.Lead = result
	}

	return outcome, nil
}

// fail marks the message failed and returns cause as a fatal error. If the
// mark itself fails the message stays pending and the error is retryable.
func (s *RoutingService) fail(ctx context.Context, log *zap.Logger, messageID string, cause error) error {
	if err := s.messages.MarkFailed(ctx, messageID, cause.Error()); err != nil {
		return apperrors.NewRetryable(err, "mark message %s failed", messageID)
	}
	log.Warn("Message marked failed", zap.Error(cause))
	return apperrors.NewFatal(cause, "message %s", messageID)
}

func isPermanent(err error) bool {
	return apperrors.IsInvalidContactError(err) ||
		apperrors.IsConfigurationError(err) ||
		apperrors.IsUnsupportedChannelError(err) ||
		apperrors.IsBadRequestError(err)
}

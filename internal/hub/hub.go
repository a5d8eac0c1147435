// Package hub is the receipt side of the integration hub: it accepts a raw
// webhook body for an integration and stores it as a pending message.
// Routing happens later, on a separate unit of work.
package hub

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/franchise-integration-hub/internal/apperrors"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/channel"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/model"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/storage"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/tenant"
	"gitlab.com/timkado/api/franchise-integration-hub/pkg/logger"
	"gitlab.com/timkado/api/franchise-integration-hub/pkg/utils"
)

const webhookSecretLength = 32

type Hub struct {
	integrations storage.IntegrationRepo
	messages     storage.InboundMessageRepo
	usage        storage.UsageCounterRepo
	baseURL      string
	newID        func() string
}

// New returns a hub issuing webhook URLs under baseURL.
func New(integrations storage.IntegrationRepo, messages storage.InboundMessageRepo, usage storage.UsageCounterRepo, baseURL string) *Hub {
	return &Hub{
		integrations: integrations,
		messages:     messages,
		usage:        usage,
		baseURL:      strings.TrimRight(baseURL, "/"),
		newID:        uuid.NewString,
	}
}

// ProcessIncomingMessage normalizes payload for integrationID and stores it
// as a pending InboundMessage. It returns the stored message id. A missing or
// inactive integration has no side effects.
func (h *Hub) ProcessIncomingMessage(ctx context.Context, ch model.Channel, payload []byte, integrationID string) (messageID string, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.FromContext(ctx).Error("Recovered from panic while receiving message",
				zap.Any("panic", r),
				zap.String("integration_id", integrationID),
			)
			messageID = ""
			err = fmt.Errorf("panic recovered while receiving message: %v", r)
		}
	}()

	companyID, err := tenant.FromContext(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", apperrors.ErrUnauthorized, err)
	}
	log := logger.FromContext(ctx).With(
		zap.String("integration_id", integrationID),
		zap.String("channel", string(ch)),
	)

	integration, err := h.loadActive(ctx, integrationID)
	if err != nil {
		return "", err
	}

	if !ch.Valid() {
		return "", fmt.Errorf("%w: %q", apperrors.ErrUnsupportedChannel, ch)
	}
	if ch != integration.Channel {
		return "", fmt.Errorf("%w: integration %s is configured for %s, not %s",
			apperrors.ErrIntegrationUnavailable, integration.ID, integration.Channel, ch)
	}

	msg, err := channel.Normalize(ch, payload, integration)
	if err != nil {
		return "", err
	}

	stored := model.NewInboundMessage(h.newID(), companyID, integration.ID, msg)
	if err := h.messages.Save(ctx, *stored); err != nil {
		log.Error("Failed to store inbound message", zap.Error(err))
		return "", fmt.Errorf("store inbound message: %w", err)
	}

	storage.IncrementUsageBestEffort(ctx, h.usage, integration.ID, model.CounterMessagesReceived)

	log.Info("Inbound message stored",
		zap.String("message_id", stored.ID),
		zap.String("external_user_id", msg.ExternalUserID),
	)
	return stored.ID, nil
}

// GenerateWebhookURL issues a fresh secret for integrationID and returns the
// URL the channel should deliver to. The secret is persisted first, so the
// latest URL is the valid one.
func (h *Hub) GenerateWebhookURL(ctx context.Context, integrationID string, ch model.Channel) (string, error) {
	if !ch.Valid() {
		return "", fmt.Errorf("%w: %q", apperrors.ErrUnsupportedChannel, ch)
	}

	integration, err := h.integrations.FindByID(ctx, integrationID)
	if err != nil {
		if apperrors.IsNotFoundError(err) {
			return "", fmt.Errorf("%w: %s", apperrors.ErrIntegrationUnavailable, integrationID)
		}
		return "", fmt.Errorf("load integration: %w", err)
	}
	if integration.Channel != ch {
		return "", fmt.Errorf("%w: integration %s is configured for %s, not %s",
			apperrors.ErrBadRequest, integrationID, integration.Channel, ch)
	}

	secret, err := utils.RandomAlphanumeric(webhookSecretLength)
	if err != nil {
		return "", fmt.Errorf("generate webhook secret: %w", err)
	}
	if err := h.integrations.UpdateWebhookSecret(ctx, integrationID, secret); err != nil {
		return "", fmt.Errorf("persist webhook secret: %w", err)
	}

	logger.FromContext(ctx).Info("Issued webhook URL",
		zap.String("integration_id", integrationID),
		zap.String("channel", string(ch)),
	)
	return fmt.Sprintf("%s/api/webhooks/%s/%s?secret=%s",
		h.baseURL, ch, url.PathEscape(integrationID), url.QueryEscape(secret)), nil
}

func (h *Hub) loadActive(ctx context.Context, integrationID string) (*model.Integration, error) {
	if strings.TrimSpace(integrationID) == "" {
		return nil, fmt.Errorf("%w: empty integration id", apperrors.ErrIntegrationUnavailable)
	}
	integration, err := h.integrations.FindByID(ctx, integrationID)
	if err != nil {
		if apperrors.IsNotFoundError(err) {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrIntegrationUnavailable, integrationID)
		}
		return nil, fmt.Errorf("load integration: %w", err)
	}
	if !integration.IsActive {
		return nil, fmt.Errorf("%w: %s is inactive", apperrors.ErrIntegrationUnavailable, integrationID)
	}
	return integration, nil
}

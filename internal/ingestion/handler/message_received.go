package handler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/franchise-integration-hub/internal/apperrors"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/model"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/tenant"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/validator"
	"gitlab.com/timkado/api/franchise-integration-hub/pkg/logger"
)

// MessageProcessor routes one stored inbound message.
type MessageProcessor interface {
	ProcessMessage(ctx context.Context, messageID string) (*model.RoutingOutcome, error)
}

// EventHandlerInterface defines the common interface for event handlers
type EventHandlerInterface interface {
	HandleEvent(ctx context.Context, eventType model.EventType, metadata *model.MessageMetadata, rawEvent []byte) error
}

var _ EventHandlerInterface = (*MessageReceivedHandler)(nil)

// MessageReceivedHandler turns message-received events into routing runs.
type MessageReceivedHandler struct {
	processor MessageProcessor
}

func NewMessageReceivedHandler(processor MessageProcessor) *MessageReceivedHandler {
	return &MessageReceivedHandler{processor: processor}
}

// HandleEvent decodes the event and routes the message it names. Malformed
// events and events of another company are fatal.
func (h *MessageReceivedHandler) HandleEvent(ctx context.Context, eventType model.EventType, metadata *model.MessageMetadata, rawEvent []byte) error {
	ctx = tenant.WithRequestID(ctx, uuid.NewString())
	log := logger.FromContext(ctx)

	if eventType != model.V1MessagesReceived {
		return apperrors.NewFatal(fmt.Errorf("%w: unsupported event type %q", apperrors.ErrBadRequest, eventType), "message received handler")
	}

	var event model.MessageReceivedEvent
	if err := json.Unmarshal(rawEvent, &event); err != nil {
		log.Error("Failed to unmarshal message received payload", zap.Error(err))
		return apperrors.NewFatal(err, "failed to unmarshal message received payload")
	}
	if err := validator.Validate(event); err != nil {
		log.Error("Message received payload failed validation", zap.Error(err))
		return apperrors.NewFatal(fmt.Errorf("%w: %w", apperrors.ErrBadRequest, err), "invalid message received payload")
	}
	if metadata != nil && metadata.CompanyID != "" && event.CompanyID != metadata.CompanyID {
		return apperrors.NewFatal(apperrors.ErrUnauthorized, "event company %s delivered to consumer of %s", event.CompanyID, metadata.CompanyID)
	}

	ctx = tenant.WithCompanyID(ctx, event.CompanyID)
	ctx = logger.WithLogger(ctx, log.With(
		zap.String("message_id", event.MessageID),
		zap.String("integration_id", event.IntegrationID),
		zap.String("channel", string(event.Channel)),
	))

	outcome, err := h.processor.ProcessMessage(ctx, event.MessageID)
	if err != nil {
		return err
	}

	log = logger.FromContext(ctx)
	switch {
	case outcome.Skipped:
		log.Debug("Message already routed")
	case outcome.Lead != nil:
		log.Info("Message routed to lead",
			zap.String("lead_id", outcome.Lead.LeadID),
			zap.String("lead_type", string(outcome.Lead.LeadType)),
			zap.Bool("created", outcome.Lead.Created),
		)
	default:
		log.Info("Message routed without lead", zap.String("reason", string(outcome.Decision.Reason)))
	}
	return nil
}

package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"gitlab.com/timkado/api/franchise-integration-hub/internal/config"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/ingestion"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/ingestion/handler"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/jetstream"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/model"
	"gitlab.com/timkado/api/franchise-integration-hub/pkg/logger"
)

// Processor wires the routing consumer to the routing service.
type Processor struct {
	jsClient        jetstream.ClientInterface
	consumer        ingestion.ConsumerInterface
	eventRouter     ingestion.RouterInterface
	receivedHandler handler.EventHandlerInterface
}

// NewProcessor creates a processor for companyID.
func NewProcessor(routing MessageProcessor, jsClient jetstream.ClientInterface, cfg *config.Config, companyID string) *Processor {
	router := ingestion.NewRouter()
	consumer := ingestion.NewRoutingConsumer(
		jsClient,
		router,
		cfg.NATS.Routing,
		companyID,
		cfg.NATS.DLQStream,
		cfg.NATS.DLQSubject,
		cfg.NATS.DLQMaxAge,
	)

	return &Processor{
		jsClient:        jsClient,
		consumer:        consumer,
		eventRouter:     router,
		receivedHandler: handler.NewMessageReceivedHandler(routing),
	}
}

// GetRouter returns the processor's event router.
func (p *Processor) GetRouter() ingestion.RouterInterface {
	return p.eventRouter
}

// Setup registers handlers and prepares the streams and consumer.
func (p *Processor) Setup() error {
	p.eventRouter.Register(model.V1MessagesReceived, p.receivedHandler.HandleEvent)

	// Other hub events share the stream prefix; acknowledge them untouched.
	p.eventRouter.RegisterDefault(func(ctx context.Context, eventType model.EventType, metadata *model.MessageMetadata, rawEvent []byte) error {
		logger.FromContext(ctx).Warn("Unhandled event type",
			zap.String("type", string(eventType)),
			zap.String("subject", metadata.MessageSubject),
		)
		return nil
	})

	if err := p.consumer.Setup(); err != nil {
		return fmt.Errorf("failed to setup routing consumer: %w", err)
	}

	logger.FromContext(context.Background()).Info("Processor setup complete")
	return nil
}

// Start starts the routing consumer.
func (p *Processor) Start() (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.FromContext(context.Background()).Error("[panic] Recovered from panic in processor",
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			err = fmt.Errorf("panic while starting processor: %v", r)
		}
	}()

	if err := p.consumer.Start(); err != nil {
		return fmt.Errorf("failed to start routing consumer: %w", err)
	}
	logger.FromContext(context.Background()).Info("Routing consumer started")
	return nil
}

// Stop drains the routing consumer.
func (p *Processor) Stop() {
	p.consumer.Stop()
}

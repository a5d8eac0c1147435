package ingestion

import (
	"context"

	"gitlab.com/timkado/api/franchise-integration-hub/internal/model"
)

// RouterInterface defines the interface for an event router
type RouterInterface interface {
	// Register registers a handler for an event type
	Register(eventType model.EventType, handler EventHandler)

	// RegisterDefault registers a default handler for unknown event types
	RegisterDefault(handler EventHandler)

	// Route routes an event to the appropriate handler
	Route(ctx context.Context, metadata *model.MessageMetadata, rawEvent []byte) error
}

// ConsumerInterface defines the basic methods for a NATS consumer
type ConsumerInterface interface {
	// Setup creates or updates the stream and durable consumer
	Setup() error

	// Start subscribes and begins delivering events
	Start() error

	// Stop drains the subscription
	Stop()
}

// EventPublisher announces stored messages to the routing consumer.
type EventPublisher interface {
	PublishMessageReceived(ctx context.Context, event model.MessageReceivedEvent) error
}

var (
	_ RouterInterface   = (*Router)(nil)
	_ ConsumerInterface = (*RoutingConsumer)(nil)
	_ EventPublisher    = (*Publisher)(nil)
)

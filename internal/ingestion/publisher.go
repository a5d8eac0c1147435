package ingestion

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/franchise-integration-hub/internal/jetstream"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/model"
	"gitlab.com/timkado/api/franchise-integration-hub/pkg/logger"
)

// Publisher emits hub events onto JetStream.
type Publisher struct {
	client jetstream.ClientInterface
}

func NewPublisher(client jetstream.ClientInterface) *Publisher {
	return &Publisher{client: client}
}

// PublishMessageReceived announces a stored message. The message id doubles
// as the JetStream dedup id, so a repeated publish is dropped by the stream.
func (p *Publisher) PublishMessageReceived(ctx context.Context, event model.MessageReceivedEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal message received event: %w", err)
	}

	subject := model.V1MessagesReceived.Subject(event.CompanyID)
	headers := map[string]string{nats.MsgIdHdr: event.MessageID}
	if err := p.client.Publish(ctx, subject, data, headers); err != nil {
		return err
	}

	logger.FromContext(ctx).Debug("Published message received event",
		zap.String("subject", subject),
		zap.String("message_id", event.MessageID),
	)
	return nil
}

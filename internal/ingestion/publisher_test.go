package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	jsmock "gitlab.com/timkado/api/franchise-integration-hub/internal/jetstream/mock"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/model"
)

func TestPublisher_PublishMessageReceived(t *testing.T) {
	client := new(jsmock.ClientMock)
	publisher := NewPublisher(client)

	event := model.MessageReceivedEvent{
		MessageID:     "msg-1",
		IntegrationID: "int-1",
		Channel:       model.ChannelVK,
		CompanyID:     "acme",
		ReceivedAt:    time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}

	client.On("Publish", mock.Anything, "v1.integration.messages.received.acme",
		mock.MatchedBy(func(data []byte) bool {
			var decoded model.MessageReceivedEvent
			return json.Unmarshal(data, &decoded) == nil &&
				decoded.MessageID == event.MessageID &&
				decoded.Channel == event.Channel &&
				decoded.ReceivedAt.Equal(event.ReceivedAt)
		}),
		map[string]string{nats.MsgIdHdr: "msg-1"},
	).Return(nil).Once()

	require.NoError(t, publisher.PublishMessageReceived(context.Background(), event))
	client.AssertExpectations(t)
}

func TestPublisher_PublishError(t *testing.T) {
	client := new(jsmock.ClientMock)
	publisher := NewPublisher(client)

	publishErr := errors.New("no responders")
	client.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(publishErr)

	err := publisher.PublishMessageReceived(context.Background(), model.MessageReceivedEvent{MessageID: "m", CompanyID: "acme"})
	assert.ErrorIs(t, err, publishErr)
}

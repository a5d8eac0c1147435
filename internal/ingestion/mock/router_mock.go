package mock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"gitlab.com/timkado/api/franchise-integration-hub/internal/ingestion"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/model"
)

// RouterMock is a mock implementation of the ingestion.RouterInterface
type RouterMock struct {
	mock.Mock
}

var _ ingestion.RouterInterface = (*RouterMock)(nil)

func (m *RouterMock) Register(eventType model.EventType, handler ingestion.EventHandler) {
	m.Called(eventType, handler)
}

func (m *RouterMock) RegisterDefault(handler ingestion.EventHandler) {
	m.Called(handler)
}

func (m *RouterMock) Route(ctx context.Context, metadata *model.MessageMetadata, rawEvent []byte) error {
	args := m.Called(ctx, metadata, rawEvent)
	return args.Error(0)
}

// PublisherMock is a mock implementation of ingestion.EventPublisher
type PublisherMock struct {
	mock.Mock
}

var _ ingestion.EventPublisher = (*PublisherMock)(nil)

func (m *PublisherMock) PublishMessageReceived(ctx context.Context, event model.MessageReceivedEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

package mock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"gitlab.com/timkado/api/franchise-integration-hub/internal/ingestion/handler"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/model"
)

// ProcessorMock is a mock implementation of handler.MessageProcessor
type ProcessorMock struct {
	mock.Mock
}

var _ handler.MessageProcessor = (*ProcessorMock)(nil)

func (m *ProcessorMock) ProcessMessage(ctx context.Context, messageID string) (*model.RoutingOutcome, error) {
	args := m.Called(ctx, messageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.RoutingOutcome), args.Error(1)
}

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

	"gitlab.com/timkado/api/franchise-integration-hub/internal/apperrors"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/config"
	jsmock "gitlab.com/timkado/api/franchise-integration-hub/internal/jetstream/mock"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/model"
)

type fakeDelivery struct {
	subject     string
	data        []byte
	msgID       string
	metadata    *nats.MsgMetadata
	metadataErr error

	acked    int
	naked    int
	nakDelay time.Duration
}

func (d *fakeDelivery) Subject() string { return d.subject }
func (d *fakeDelivery) Data() []byte    { return d.data }
func (d *fakeDelivery) MsgID() string   { return d.msgID }
func (d *fakeDelivery) Metadata() (*nats.MsgMetadata, error) {
	return d.metadata, d.metadataErr
}
func (d *fakeDelivery) Ack() error { d.acked++; return nil }
func (d *fakeDelivery) Nak() error { d.naked++; return nil }
func (d *fakeDelivery) NakWithDelay(delay time.Duration) error {
	d.nakDelay = delay
	return nil
}

func newDelivery(numDelivered uint64) *fakeDelivery {
	return &fakeDelivery{
		subject:  model.V1MessagesReceived.Subject("acme"),
		data:     []byte(`{"message_id":"msg-1"}`),
		msgID:    "msg-1",
		metadata: &nats.MsgMetadata{NumDelivered: numDelivered, Sequence: nats.SequencePair{Stream: 7, Consumer: 3}},
	}
}

func testConsumerConfig() config.ConsumerNatsConfig {
	return config.ConsumerNatsConfig{
		MaxAge:       7,
		Stream:       "integration_messages",
		Consumer:     "integration_routing_",
		QueueGroup:   "integration_routing_",
		SubjectList:  []string{"v1.integration.messages.received"},
		MaxDeliver:   3,
		NakBaseDelay: time.Second,
		NakMaxDelay:  10 * time.Second,
	}
}

func newTestConsumer(client *jsmock.ClientMock, handler EventHandler) *RoutingConsumer {
	router := NewRouter()
	router.Register(model.V1MessagesReceived, handler)
	return NewRoutingConsumer(client, router, testConsumerConfig(), "acme", "integration_dlq", "v1.integration.dlq", 7)
}

func TestDetermineAckNakAction(t *testing.T) {
	retryable := apperrors.NewRetryable(errors.New("db"), "op")
	fatal := apperrors.NewFatal(errors.New("bad"), "op")

	tests := []struct {
		name         string
		err          error
		numDelivered uint64
		wantAction   AckNakAction
		wantDelay    time.Duration
	}{
		{"success", nil, 1, ActionAck, 0},
		{"retryable first attempt", retryable, 1, ActionNakDelay, time.Second},
		{"retryable second attempt doubles", retryable, 2, ActionNakDelay, 2 * time.Second},
		{"retryable capped", retryable, 5, ActionNakDelay, 10 * time.Second},
		{"retryable exhausted", retryable, 6, ActionDLQ, 0},
		{"fatal", fatal, 1, ActionDLQ, 0},
		{"unclassified is fatal", errors.New("plain"), 1, ActionDLQ, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			action, delay := determineAckNakAction(tt.err, &nats.MsgMetadata{NumDelivered: tt.numDelivered}, 6, time.Second, 10*time.Second)
			assert.Equal(t, tt.wantAction, action)
			assert.Equal(t, tt.wantDelay, delay)
		})
	}
}

func TestModifySubjects(t *testing.T) {
	stream, consumer := modifySubjects([]string{"v1.integration.messages.received"}, "acme")
	assert.Equal(t, []string{"v1.integration.messages.received.*"}, stream)
	assert.Equal(t, []string{"v1.integration.messages.received.acme"}, consumer)
}

func TestRoutingConsumer_AcksOnSuccess(t *testing.T) {
	client := new(jsmock.ClientMock)
	var got *model.MessageMetadata
	consumer := newTestConsumer(client, func(_ context.Context, _ model.EventType, md *model.MessageMetadata, _ []byte) error {
		got = md
		return nil
	})

	d := newDelivery(1)
	consumer.handleMessage(d)

	assert.Equal(t, 1, d.acked)
	assert.Zero(t, d.naked)
	require.NotNil(t, got)
	assert.Equal(t, "msg-1", got.MessageID)
	assert.Equal(t, "acme", got.CompanyID)
	assert.Equal(t, uint64(7), got.StreamSequence)
	client.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRoutingConsumer_NaksRetryableWithDelay(t *testing.T) {
	client := new(jsmock.ClientMock)
	consumer := newTestConsumer(client, func(context.Context, model.EventType, *model.MessageMetadata, []byte) error {
		return apperrors.NewRetryable(errors.New("db down"), "load message")
	})

	d := newDelivery(2)
	consumer.handleMessage(d)

	assert.Equal(t, 2*time.Second, d.nakDelay)
	assert.Zero(t, d.acked)
}

func TestRoutingConsumer_FatalGoesToDLQ(t *testing.T) {
	client := new(jsmock.ClientMock)
	consumer := newTestConsumer(client, func(context.Context, model.EventType, *model.MessageMetadata, []byte) error {
		return apperrors.NewFatal(apperrors.ErrInvalidContact, "message msg-1")
	})

	client.On("Publish", mock.Anything, "v1.integration.dlq.acme",
		mock.MatchedBy(func(data []byte) bool {
			var payload model.DLQPayload
			if err := json.Unmarshal(data, &payload); err != nil {
				return false
			}
			return payload.ErrorType == "fatal" &&
				payload.Company == "acme" &&
				payload.SourceSubject == "v1.integration.messages.received.acme" &&
				string(payload.OriginalPayload) == `{"message_id":"msg-1"}`
		}),
		map[string]string{"Original-Nats-Msg-Id": "msg-1"},
	).Return(nil).Once()

	d := newDelivery(1)
	consumer.handleMessage(d)

	assert.Equal(t, 1, d.acked)
	client.AssertExpectations(t)
}

func TestRoutingConsumer_ExhaustedRetriesGoToDLQ(t *testing.T) {
	client := new(jsmock.ClientMock)
	consumer := newTestConsumer(client, func(context.Context, model.EventType, *model.MessageMetadata, []byte) error {
		return apperrors.NewRetryable(errors.New("db down"), "load message")
	})

	client.On("Publish", mock.Anything, "v1.integration.dlq.acme",
		mock.MatchedBy(func(data []byte) bool {
			var payload model.DLQPayload
			return json.Unmarshal(data, &payload) == nil && payload.ErrorType == "retryable" && payload.RetryCount == 3
		}),
		mock.Anything,
	).Return(nil).Once()

	d := newDelivery(3)
	consumer.handleMessage(d)

	assert.Equal(t, 1, d.acked)
	client.AssertExpectations(t)
}

func TestRoutingConsumer_DLQPublishFailureNaks(t *testing.T) {
	client := new(jsmock.ClientMock)
	consumer := newTestConsumer(client, func(context.Context, model.EventType, *model.MessageMetadata, []byte) error {
		return apperrors.NewFatal(errors.New("bad payload"), "decode")
	})
	client.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("nats down"))

	d := newDelivery(1)
	d.data = []byte("not json")
	consumer.handleMessage(d)

	assert.Zero(t, d.acked)
	assert.Equal(t, 1, d.naked)
}

func TestRoutingConsumer_UnknownSubjectAndMetadataErrors(t *testing.T) {
	client := new(jsmock.ClientMock)
	called := false
	consumer := newTestConsumer(client, func(context.Context, model.EventType, *model.MessageMetadata, []byte) error {
		called = true
		return nil
	})

	unknown := newDelivery(1)
	unknown.subject = "v1.integration.other.acme"
	consumer.handleMessage(unknown)
	assert.Equal(t, 1, unknown.naked)

	broken := newDelivery(1)
	broken.metadataErr = nats.ErrNotJSMessage
	consumer.handleMessage(broken)
	assert.Equal(t, 1, broken.naked)

	assert.False(t, called)
}

func TestRoutingConsumer_PanicIsNaked(t *testing.T) {
	client := new(jsmock.ClientMock)
	consumer := newTestConsumer(client, func(context.Context, model.EventType, *model.MessageMetadata, []byte) error {
		panic("handler exploded")
	})

	d := newDelivery(1)
	assert.NotPanics(t, func() { consumer.handleMessage(d) })
	assert.Equal(t, 1, d.naked)
	assert.Zero(t, d.acked)
}

func TestRoutingConsumer_Setup(t *testing.T) {
	client := new(jsmock.ClientMock)
	consumer := newTestConsumer(client, func(context.Context, model.EventType, *model.MessageMetadata, []byte) error { return nil })

	client.On("SetupStream", mock.Anything, mock.MatchedBy(func(cfg *nats.StreamConfig) bool {
		return cfg.Name == "integration_messages" &&
			assert.ObjectsAreEqual([]string{"v1.integration.messages.received.*"}, cfg.Subjects) &&
			cfg.MaxAge == 7*24*time.Hour
	})).Return(nil).Once()
	client.On("SetupStream", mock.Anything, mock.MatchedBy(func(cfg *nats.StreamConfig) bool {
		return cfg.Name == "integration_dlq" && assert.ObjectsAreEqual([]string{"v1.integration.dlq.*"}, cfg.Subjects)
	})).Return(nil).Once()
	client.On("SetupConsumer", mock.Anything, "integration_messages", mock.MatchedBy(func(cfg *nats.ConsumerConfig) bool {
		return cfg.Durable == "integration_routing_acme" &&
			cfg.DeliverGroup == "integration_routing_acme" &&
			cfg.MaxDeliver == 3 &&
			assert.ObjectsAreEqual([]string{"v1.integration.messages.received.acme"}, cfg.FilterSubjects)
	})).Return(nil).Once()

	require.NoError(t, consumer.Setup())
	client.AssertExpectations(t)
}

func TestRoutingConsumer_SetupStreamError(t *testing.T) {
	client := new(jsmock.ClientMock)
	consumer := newTestConsumer(client, func(context.Context, model.EventType, *model.MessageMetadata, []byte) error { return nil })
	client.On("SetupStream", mock.Anything, mock.Anything).Return(errors.New("jetstream not enabled")).Once()

	err := consumer.Setup()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "integration_messages")
	client.AssertNotCalled(t, "SetupConsumer", mock.Anything, mock.Anything, mock.Anything)
}

func TestRoutingConsumer_Start(t *testing.T) {
	client := new(jsmock.ClientMock)
	consumer := newTestConsumer(client, func(context.Context, model.EventType, *model.MessageMetadata, []byte) error { return nil })

	sub := &nats.Subscription{}
	client.On("SubscribePush", "v1.integration.messages.received.acme", "integration_routing_acme", "integration_routing_acme", "integration_messages", mock.Anything).
		Return(sub, nil).Once()

	require.NoError(t, consumer.Start())
	client.AssertExpectations(t)
}

package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/franchise-integration-hub/internal/apperrors"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/config"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/jetstream"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/model"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/observer"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/tenant"
	"gitlab.com/timkado/api/franchise-integration-hub/pkg/logger"
	"gitlab.com/timkado/api/franchise-integration-hub/pkg/utils"
)

const consumerTypeRouting = "routing"

// AckNakAction represents the decision made after processing a message
type AckNakAction int

const (
	ActionAck      AckNakAction = iota // Message processed successfully, ACK it
	ActionNak                          // DLQ failure, NAK immediately
	ActionNakDelay                     // Retryable error, NAK with calculated delay
	ActionDLQ                          // Max retries reached or fatal error, publish to DLQ then ACK
)

// delivery is the part of a JetStream message the consumer relies on.
type delivery interface {
	Subject() string
	Data() []byte
	MsgID() string
	Metadata() (*nats.MsgMetadata, error)
	Ack() error
	Nak() error
	NakWithDelay(d time.Duration) error
}

type natsDelivery struct {
	msg *nats.Msg
}

func (d natsDelivery) Subject() string { return d.msg.Subject }
func (d natsDelivery) Data() []byte    { return d.msg.Data }

func (d natsDelivery) MsgID() string {
	if d.msg.Header == nil {
		return ""
	}
	return d.msg.Header.Get(nats.MsgIdHdr)
}

func (d natsDelivery) Metadata() (*nats.MsgMetadata, error) { return d.msg.Metadata() }
func (d natsDelivery) Ack() error                           { return d.msg.Ack() }
func (d natsDelivery) Nak() error                           { return d.msg.Nak() }
func (d natsDelivery) NakWithDelay(delay time.Duration) error {
	return d.msg.NakWithDelay(delay)
}

func modifySubjects(subjects []string, companyID string) (streamSubjects, consumerSubjects []string) {
	for _, subject := range subjects {
		streamSubjects = append(streamSubjects, fmt.Sprintf("%s.*", subject))
		consumerSubjects = append(consumerSubjects, fmt.Sprintf("%s.%s", subject, companyID))
	}
	return streamSubjects, consumerSubjects
}

// determineAckNakAction decides the fate of a message based on processing result and metadata.
// It returns the action to take (ACK, NAK_DELAY, DLQ) and the delay duration if applicable.
func determineAckNakAction(
	processingErr error,
	metadata *nats.MsgMetadata,
	maxDeliver int,
	nakBaseDelay time.Duration,
	nakMaxDelay time.Duration,
) (action AckNakAction, delay time.Duration) {
	if processingErr == nil {
		return ActionAck, 0
	}

	numDelivered := metadata.NumDelivered
	if numDelivered >= uint64(maxDeliver) || !apperrors.IsRetryable(processingErr) {
		return ActionDLQ, 0
	}

	delay = nakBaseDelay
	if numDelivered > 1 {
		delay = nakBaseDelay * (1 << (numDelivered - 1))
	}
	if delay > nakMaxDelay || delay <= 0 {
		delay = nakMaxDelay
	}
	return ActionNakDelay, delay
}

// RoutingConsumer feeds message-received events of one company into the
// router and settles each delivery according to the handler's verdict.
type RoutingConsumer struct {
	client     jetstream.ClientInterface
	router     RouterInterface
	cfg        config.ConsumerNatsConfig
	companyID  string
	dlqStream  string
	dlqSubject string
	dlqMaxAge  int
	ctx        context.Context
	cancel     context.CancelFunc
	sub        *nats.Subscription
}

// NewRoutingConsumer creates the routing consumer for companyID.
func NewRoutingConsumer(client jetstream.ClientInterface, router RouterInterface, cfg config.ConsumerNatsConfig, companyID, dlqStream, dlqSubject string, dlqMaxAge int) *RoutingConsumer {
	ctx, cancel := context.WithCancel(context.Background())
	ctx = logger.WithLogger(ctx, logger.FromContext(ctx).With(
		zap.String("company_id", companyID),
		zap.String("consumerType", consumerTypeRouting),
	))
	ctx = tenant.WithCompanyID(ctx, companyID)

	return &RoutingConsumer{
		client:     client,
		router:     router,
		cfg:        cfg,
		companyID:  companyID,
		dlqStream:  dlqStream,
		dlqSubject: dlqSubject,
		dlqMaxAge:  dlqMaxAge,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Setup configures the message stream, the DLQ stream and the durable consumer.
func (c *RoutingConsumer) Setup() error {
	log := logger.FromContext(c.ctx)
	log.Info("Setting up RoutingConsumer...", zap.String("stream", c.cfg.Stream), zap.String("consumer", c.cfg.Consumer))

	streamSubjects, consumerSubjects := modifySubjects(c.cfg.SubjectList, c.companyID)

	streamCfg := &nats.StreamConfig{
		Name:      c.cfg.Stream,
		Subjects:  streamSubjects,
		Storage:   nats.FileStorage,
		Retention: nats.LimitsPolicy,
		MaxAge:    time.Duration(c.cfg.MaxAge*24) * time.Hour,
	}
	if err := c.client.SetupStream(c.ctx, streamCfg); err != nil {
		log.Error("Failed to setup routing stream", zap.Error(err))
		return fmt.Errorf("failed to setup routing stream '%s': %w", c.cfg.Stream, err)
	}

	if c.dlqStream != "" && c.dlqSubject != "" {
		dlqCfg := &nats.StreamConfig{
			Name:      c.dlqStream,
			Subjects:  []string{c.dlqSubject + ".*"},
			Storage:   nats.FileStorage,
			Retention: nats.LimitsPolicy,
			MaxAge:    time.Duration(c.dlqMaxAge*24) * time.Hour,
		}
		if err := c.client.SetupStream(c.ctx, dlqCfg); err != nil {
			log.Error("Failed to setup DLQ stream", zap.Error(err), zap.String("dlq_stream", c.dlqStream))
			return fmt.Errorf("failed to setup DLQ stream '%s': %w", c.dlqStream, err)
		}
	}

	consumerCfg := &nats.ConsumerConfig{
		Durable:        c.durableName(),
		DeliverGroup:   c.queueGroup(),
		FilterSubjects: consumerSubjects,
		AckPolicy:      nats.AckExplicitPolicy,
		DeliverSubject: nats.NewInbox(),
		MaxDeliver:     c.cfg.MaxDeliver,
		AckWait:        30 * time.Second,
		MaxAckPending:  1000,
		ReplayPolicy:   nats.ReplayInstantPolicy,
		DeliverPolicy:  nats.DeliverAllPolicy,
	}
	if err := c.client.SetupConsumer(c.ctx, c.cfg.Stream, consumerCfg); err != nil {
		log.Error("Failed to setup routing consumer", zap.Error(err))
		return fmt.Errorf("failed to setup routing consumer '%s' for stream '%s': %w", consumerCfg.Durable, c.cfg.Stream, err)
	}

	log.Info("RoutingConsumer setup complete")
	return nil
}

// Start subscribes to the stream.
func (c *RoutingConsumer) Start() error {
	log := logger.FromContext(c.ctx)

	_, consumerSubjects := modifySubjects(c.cfg.SubjectList, c.companyID)
	subject := ""
	if len(consumerSubjects) == 1 {
		subject = consumerSubjects[0]
	}

	sub, err := c.client.SubscribePush(subject, c.durableName(), c.queueGroup(), c.cfg.Stream, func(msg *nats.Msg) {
		c.handleMessage(natsDelivery{msg: msg})
	})
	if err != nil {
		log.Error("Failed to subscribe routing consumer", zap.Error(err))
		return fmt.Errorf("failed to subscribe routing consumer '%s': %w", c.durableName(), err)
	}
	c.sub = sub
	log.Info("RoutingConsumer subscribed successfully")
	return nil
}

// Stop unsubscribes and cleans up resources
func (c *RoutingConsumer) Stop() {
	log := logger.FromContext(c.ctx)
	log.Info("Stopping RoutingConsumer...")
	if c.sub != nil {
		if err := c.sub.Drain(); err != nil {
			log.Error("Error draining routing subscription", zap.Error(err))
		}
	}
	if c.cancel != nil {
		c.cancel()
	}
	log.Info("RoutingConsumer stopped")
}

// durableName appends the company to configured names ending in "_".
func (c *RoutingConsumer) durableName() string {
	return suffixCompany(c.cfg.Consumer, c.companyID)
}

func (c *RoutingConsumer) queueGroup() string {
	return suffixCompany(c.cfg.QueueGroup, c.companyID)
}

func suffixCompany(name, companyID string) string {
	if name != "" && name[len(name)-1] == '_' {
		return name + companyID
	}
	return name
}

func (c *RoutingConsumer) handleMessage(msg delivery) {
	startTime := utils.Now()
	eventType, found := model.MapToBaseEventType(msg.Subject())
	log := logger.FromContext(c.ctx)

	defer func() {
		observer.ObserveEventProcessingDuration(string(eventType), c.companyID, consumerTypeRouting, time.Since(startTime))
		if r := recover(); r != nil {
			log.Error("[panic] Recovered from panic in message handler",
				zap.Any("panic", r),
				zap.String("nats_message_id", msg.MsgID()),
				zap.String("subject", msg.Subject()),
				zap.Stack("stack"),
			)
			observer.IncEventsFailed(string(eventType), c.companyID, consumerTypeRouting)
			observer.IncEventProcessingAction(string(eventType), c.companyID, consumerTypeRouting, "panic_nak", "panic")
			if nakErr := msg.Nak(); nakErr != nil {
				log.Error("Failed to NAK message after panic", zap.Error(nakErr))
			}
		}
	}()

	if !found {
		log.Warn("Unknown event type", zap.String("subject", msg.Subject()))
		observer.IncEventProcessingAction(string(eventType), c.companyID, consumerTypeRouting, "nak_unknown_type", "unknown_event_type")
		if nakErr := msg.Nak(); nakErr != nil {
			log.Error("Failed to NAK message for unknown event type", zap.Error(nakErr))
		}
		return
	}

	metadata, err := msg.Metadata()
	if err != nil {
		log.Error("Failed to read message metadata", zap.Error(err))
		observer.IncEventProcessingAction(string(eventType), c.companyID, consumerTypeRouting, "nak_metadata_error", "metadata")
		if nakErr := msg.Nak(); nakErr != nil {
			log.Error("Failed to NAK message", zap.Error(nakErr))
		}
		return
	}

	msgID := msg.MsgID()
	if msgID == "" {
		msgID = fmt.Sprintf("msg-%d", metadata.Sequence.Stream)
	}
	internalMetadata := &model.MessageMetadata{
		StreamSequence:   metadata.Sequence.Stream,
		ConsumerSequence: metadata.Sequence.Consumer,
		NumDelivered:     metadata.NumDelivered,
		NumPending:       metadata.NumPending,
		Timestamp:        metadata.Timestamp,
		Stream:           metadata.Stream,
		Consumer:         metadata.Consumer,
		Domain:           metadata.Domain,
		MessageID:        msgID,
		MessageSubject:   msg.Subject(),
		CompanyID:        c.companyID,
	}

	observer.IncEventsReceived(string(eventType), c.companyID, consumerTypeRouting)

	msgCtx := logger.WithLogger(c.ctx, log.With(
		zap.String("nats_message_id", msgID),
		zap.Uint64("stream_sequence", internalMetadata.StreamSequence),
		zap.Uint64("num_delivered", internalMetadata.NumDelivered),
		zap.String("subject", msg.Subject()),
	))
	log = logger.FromContext(msgCtx)

	routingStart := utils.Now()
	processingErr := c.router.Route(msgCtx, internalMetadata, msg.Data())
	observer.ObserveEventRoutingDuration(string(eventType), c.companyID, consumerTypeRouting, time.Since(routingStart))

	action, nakDelay := determineAckNakAction(processingErr, metadata, c.cfg.MaxDeliver, c.cfg.NakBaseDelay, c.cfg.NakMaxDelay)

	errorType := "none"
	if processingErr != nil {
		errorType = observer.SanitizeErrorType(processingErr.Error())
	}

	switch action {
	case ActionAck:
		log.Info("Successfully processed message", zap.Duration("duration", time.Since(startTime)))
		observer.IncEventsProcessed(string(eventType), c.companyID, consumerTypeRouting)
		observer.IncEventProcessingAction(string(eventType), c.companyID, consumerTypeRouting, "ack_success", errorType)
		if ackErr := msg.Ack(); ackErr != nil {
			log.Error("Failed to ACK message after successful processing", zap.Error(ackErr))
		}

	case ActionNakDelay:
		log.Info("NAKing message with delay for redelivery (retryable error)",
			zap.Error(processingErr),
			zap.Int("max_deliver", c.cfg.MaxDeliver),
			zap.Duration("nak_delay", nakDelay),
		)
		observer.IncEventsFailed(string(eventType), c.companyID, consumerTypeRouting)
		observer.IncEventProcessingAction(string(eventType), c.companyID, consumerTypeRouting, "nak_retry", errorType)
		if nakErr := msg.NakWithDelay(nakDelay); nakErr != nil {
			log.Error("Failed to NAK message with delay", zap.Error(nakErr))
		}

	case ActionDLQ:
		observer.IncEventsFailed(string(eventType), c.companyID, consumerTypeRouting)
		if err := c.publishDLQ(msgCtx, msg, msgID, metadata, processingErr); err != nil {
			log.Error("Failed to publish message to DLQ, NAKing original message", zap.Error(err))
			observer.IncEventProcessingAction(string(eventType), c.companyID, consumerTypeRouting, "nak_dlq_publish_fail", "dlq_publish_fail")
			if nakErr := msg.Nak(); nakErr != nil {
				log.Error("Failed to NAK message after DLQ publish error", zap.Error(nakErr))
			}
			return
		}
		observer.IncEventProcessingAction(string(eventType), c.companyID, consumerTypeRouting, "dlq_published_ack_success", errorType)
		if ackErr := msg.Ack(); ackErr != nil {
			log.Error("Failed to ACK message after successful DLQ publish", zap.Error(ackErr))
		}
	}
}

func (c *RoutingConsumer) publishDLQ(ctx context.Context, msg delivery, msgID string, metadata *nats.MsgMetadata, processingErr error) error {
	log := logger.FromContext(ctx)

	errorType := "fatal"
	reason := "fatal error encountered"
	if apperrors.IsRetryable(processingErr) {
		errorType = "retryable"
		reason = "max delivery attempts reached"
	}
	log.Warn("Sending message to DLQ: "+reason,
		zap.Error(processingErr),
		zap.Int("max_deliver", c.cfg.MaxDeliver),
	)

	original := msg.Data()
	if !json.Valid(original) {
		// Keep undecodable payloads readable as a JSON string.
		original, _ = json.Marshal(string(original))
	}

	payload := model.DLQPayload{
		SourceSubject:   msg.Subject(),
		Company:         c.companyID,
		OriginalPayload: json.RawMessage(original),
		Error:           processingErr.Error(),
		ErrorType:       errorType,
		RetryCount:      metadata.NumDelivered,
		MaxRetry:        c.cfg.MaxDeliver,
		Timestamp:       utils.Now(),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal DLQ payload: %w", err)
	}

	subject := fmt.Sprintf("%s.%s", c.dlqSubject, c.companyID)
	headers := map[string]string{"Original-Nats-Msg-Id": msgID}
	if err := c.client.Publish(ctx, subject, data, headers); err != nil {
		return err
	}
	log.Info("Message published to DLQ", zap.String("dlq_subject", subject))
	return nil
}

package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/franchise-integration-hub/internal/apperrors"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/model"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/observer"
	"gitlab.com/timkado/api/franchise-integration-hub/pkg/logger"
	"gitlab.com/timkado/api/franchise-integration-hub/pkg/utils"
)

const (
	dateLayout        = "2006-01-02"
	defaultUsageDays  = 30
	maxUsageRangeDays = 366
)

// HealthResponse is the response structure for health check endpoints
type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type webhookResponse struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

type webhookURLRequest struct {
	Channel model.Channel `json:"channel" binding:"required"`
}

type webhookURLResponse struct {
	Success bool   `json:"success"`
	URL     string `json:"url"`
}

type usageTotals struct {
	MessagesReceived    int64 `json:"messages_received"`
	LeadsCreated        int64 `json:"leads_created"`
	DuplicatesPrevented int64 `json:"duplicates_prevented"`
}

type usageResponse struct {
	IntegrationID string               `json:"integration_id"`
	From          string               `json:"from"`
	To            string               `json:"to"`
	Days          []model.UsageCounter `json:"days"`
	Totals        usageTotals          `json:"totals"`
}

// handleWebhook stores one channel delivery. Failures the channel cannot fix
// by retrying are answered with 200 and success=false so it stops
// redelivering; storage failures get 503 so it tries again.
func (s *Server) handleWebhook(c *gin.Context) {
	ctx := c.Request.Context()
	ch := model.Channel(c.Param("channel"))
	integrationID := c.Param("integrationId")
	log := logger.FromContext(ctx).With(
		zap.String("channel", string(ch)),
		zap.String("integration_id", integrationID),
	)

	payload, err := c.GetRawData()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			observer.IncWebhookReceived(string(ch), "rejected")
			c.JSON(http.StatusRequestEntityTooLarge, webhookResponse{Success: false, Error: "payload too large"})
			return
		}
		observer.IncWebhookReceived(string(ch), "error")
		c.JSON(http.StatusBadRequest, webhookResponse{Success: false, Error: "unreadable body"})
		return
	}

	messageID, err := s.hub.ProcessIncomingMessage(ctx, ch, payload, integrationID)
	if err != nil {
		if isRejection(err) {
			log.Warn("Webhook rejected", zap.Error(err))
			observer.IncWebhookReceived(string(ch), "rejected")
			c.JSON(http.StatusOK, webhookResponse{Success: false, Error: err.Error()})
			return
		}
		log.Error("Failed to store webhook", zap.Error(err))
		observer.IncWebhookReceived(string(ch), "error")
		c.JSON(http.StatusServiceUnavailable, webhookResponse{Success: false, Error: "temporarily unavailable"})
		return
	}

	observer.IncWebhookReceived(string(ch), "stored")
	s.announce(ctx, log, model.MessageReceivedEvent{
		MessageID:     messageID,
		IntegrationID: integrationID,
		Channel:       ch,
		CompanyID:     s.opts.CompanyID,
		ReceivedAt:    utils.Now(),
	})

	c.JSON(http.StatusOK, webhookResponse{Success: true, MessageID: messageID})
}

// announce publishes the received event. The message is already stored as
// pending, so a failed publish only delays routing until the next sweep.
func (s *Server) announce(ctx context.Context, log *zap.Logger, event model.MessageReceivedEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishMessageReceived(ctx, event); err != nil {
		log.Warn("Failed to publish message received event, leaving it to the sweep",
			zap.String("message_id", event.MessageID),
			zap.Error(err),
		)
	}
}

func (s *Server) handleWebhookURL(c *gin.Context) {
	var req webhookURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Success: false, Error: "channel is required"})
		return
	}

	url, err := s.hub.GenerateWebhookURL(c.Request.Context(), c.Param("integrationId"), req.Channel)
	if err != nil {
		c.JSON(statusFor(err), errorResponse{Success: false, Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, webhookURLResponse{Success: true, URL: url})
}

func (s *Server) handleUsage(c *gin.Context) {
	from, to, err := usageRange(c.Query("from"), c.Query("to"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Success: false, Error: err.Error()})
		return
	}

	integrationID := c.Param("integrationId")
	days, err := s.usage.FindRange(c.Request.Context(), integrationID, from, to)
	if err != nil {
		logger.FromContext(c.Request.Context()).Error("Failed to read usage", zap.String("integration_id", integrationID), zap.Error(err))
		c.JSON(statusFor(err), errorResponse{Success: false, Error: "failed to read usage"})
		return
	}

	resp := usageResponse{
		IntegrationID: integrationID,
		From:          from.Format(dateLayout),
		To:            to.Format(dateLayout),
		Days:          days,
	}
	if resp.Days == nil {
		resp.Days = []model.UsageCounter{}
	}
	for _, d := range days {
		resp.Totals.MessagesReceived += d.MessagesReceived
		resp.Totals.LeadsCreated += d.LeadsCreated
		resp.Totals.DuplicatesPrevented += d.DuplicatesPrevented
	}
	c.JSON(http.StatusOK, resp)
}

// handleHealth handles the /health endpoint for liveness probes
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "UP", Version: "1.0.0"})
}

// handleReady reports READY only when every dependency answers.
func (s *Server) handleReady(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	details := map[string]string{"timestamp": utils.FormatISO8601(utils.Now())}
	status, code := "READY", http.StatusOK
	for _, check := range s.opts.Checks {
		if err := check.Check(ctx); err != nil {
			details[check.Name] = err.Error()
			status, code = "NOT_READY", http.StatusServiceUnavailable
			continue
		}
		details[check.Name] = "ok"
	}
	c.JSON(code, HealthResponse{Status: status, Details: details})
}

func usageRange(fromParam, toParam string) (time.Time, time.Time, error) {
	to := utils.StartOfDay(utils.Now())
	if toParam != "" {
		parsed, err := time.Parse(dateLayout, toParam)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("to must be YYYY-MM-DD")
		}
		to = parsed
	}

	from := to.AddDate(0, 0, -(defaultUsageDays - 1))
	if fromParam != "" {
		parsed, err := time.Parse(dateLayout, fromParam)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("from must be YYYY-MM-DD")
		}
		from = parsed
	}

	if from.After(to) {
		return time.Time{}, time.Time{}, errors.New("from must not be after to")
	}
	if to.Sub(from) > maxUsageRangeDays*24*time.Hour {
		return time.Time{}, time.Time{}, errors.New("range exceeds one year")
	}
	return from, to, nil
}

// isRejection reports errors caused by the delivery or the integration
// setup rather than by the hub.
func isRejection(err error) bool {
	return apperrors.IsConfigurationError(err) ||
		apperrors.IsUnsupportedChannelError(err) ||
		apperrors.IsBadRequestError(err) ||
		apperrors.IsValidationError(err)
}

func statusFor(err error) int {
	switch {
	case apperrors.IsConfigurationError(err), apperrors.IsNotFoundError(err):
		return http.StatusNotFound
	case apperrors.IsUnsupportedChannelError(err), apperrors.IsBadRequestError(err), apperrors.IsValidationError(err):
		return http.StatusBadRequest
	case apperrors.IsUnauthorizedError(err):
		return http.StatusUnauthorized
	case apperrors.IsTimeoutError(err), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

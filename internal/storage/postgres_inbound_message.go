package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"gitlab.com/timkado/api/franchise-integration-hub/internal/apperrors"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/model"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/observer"
	"gitlab.com/timkado/api/franchise-integration-hub/pkg/logger"
	"gitlab.com/timkado/api/franchise-integration-hub/pkg/utils"
)

// SaveInboundMessage inserts a new inbound message. Messages are append-only;
// a second insert with the same id is a duplicate error.
func (r *PostgresRepo) SaveInboundMessage(ctx context.Context, msg model.InboundMessage) error {
	companyID, err := companyFromContext(ctx)
	if err != nil {
		return err
	}
	if msg.CompanyID != companyID {
		return fmt.Errorf("%w: message CompanyID %s does not match tenant ID %s", apperrors.ErrBadRequest, msg.CompanyID, companyID)
	}
	if msg.Status == "" {
		msg.Status = model.StatusPending
	}
	msg.ReceivedAt = msg.ReceivedAt.UTC()

	operation := func() error {
		if err := r.db.WithContext(ctx).Create(&msg).Error; err != nil {
			return checkConstraintViolation(err)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	err = retryableOperation(ctx, commitPolicy, "SaveInboundMessage Commit", operation)
	observer.ObserveDbOperationDuration("save", "inbound_message", companyID, time.Since(startTime), err)
	if err != nil {
		logger.FromContext(ctx).Error("Failed to save inbound message",
			zap.String("message_id", msg.ID),
			zap.String("integration_id", msg.IntegrationID),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (r *PostgresRepo) FindInboundMessageByID(ctx context.Context, id string) (*model.InboundMessage, error) {
	companyID, err := companyFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var msg model.InboundMessage
	operation := func() error {
		result := r.db.WithContext(ctx).Where("id = ? AND company_id = ?", id, companyID).First(&msg)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: message_id %s: %w", apperrors.ErrNotFound, id, result.Error)
			}
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	err = retryableOperation(ctx, readPolicy, "FindInboundMessageByID", operation)
	observer.ObserveDbOperationDuration("find_by_id", "inbound_message", companyID, time.Since(startTime), err)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// HasEarlierMessage reports whether a message from the same identity was
// stored with a strictly earlier origin timestamp. Senders without a
// platform id have no history to compare against.
func (r *PostgresRepo) HasEarlierMessage(ctx context.Context, channel model.Channel, externalUserID string, before time.Time) (bool, error) {
	companyID, err := companyFromContext(ctx)
	if err != nil {
		return false, err
	}
	if strings.TrimSpace(externalUserID) == "" {
		return false, nil
	}

	var count int64
	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.InboundMessage{}).
			Where("channel = ? AND external_user_id = ? AND received_at < ?", channel, externalUserID, before.UTC()).
			Count(&count)
		if result.Error != nil {
			return fmt.Errorf("%w: count failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	err = retryableOperation(ctx, readPolicy, "HasEarlierMessage", operation)
	observer.ObserveDbOperationDuration("count_earlier", "inbound_message", companyID, time.Since(startTime), err)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// MarkInboundMessageProcessed links one pending message to a lead, or to
// nothing when leadID is nil (no trigger matched).
func (r *PostgresRepo) MarkInboundMessageProcessed(ctx context.Context, id string, leadID *string, leadType *model.LeadType) error {
	companyID, err := companyFromContext(ctx)
	if err != nil {
		return err
	}

	now := utils.Now()
	updates := map[string]interface{}{
		"status":       model.StatusProcessed,
		"lead_id":      leadID,
		"lead_type":    leadType,
		"processed_at": now,
		"updated_at":   now,
	}
	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.InboundMessage{}).
			Where("id = ? AND company_id = ?", id, companyID).
			Updates(updates)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: message_id %s", apperrors.ErrNotFound, id)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	err = retryableOperation(ctx, commitPolicy, "MarkInboundMessageProcessed Commit", operation)
	observer.ObserveDbOperationDuration("mark_processed", "inbound_message", companyID, time.Since(startTime), err)
	if err != nil {
		logger.FromContext(ctx).Error("Failed to mark message processed", zap.String("message_id", id), zap.Error(err))
		return err
	}
	return nil
}

// MarkProcessedByIdentity marks the pending message identified by
// (channel, external user, origin timestamp) as processed and linked to a
// lead. It returns the number of rows updated; zero is not an error. A blank
// external user id matches nothing.
func (r *PostgresRepo) MarkProcessedByIdentity(ctx context.Context, channel model.Channel, externalUserID string, receivedAt time.Time, leadID string, leadType model.LeadType) (int64, error) {
	companyID, err := companyFromContext(ctx)
	if err != nil {
		return 0, err
	}
	if strings.TrimSpace(externalUserID) == "" {
		return 0, nil
	}

	now := utils.Now()
	var affected int64
	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.InboundMessage{}).
			Where("channel = ? AND external_user_id = ? AND received_at = ? AND status = ?",
				channel, externalUserID, receivedAt.UTC(), model.StatusPending).
			Updates(map[string]interface{}{
				"status":       model.StatusProcessed,
				"lead_id":      leadID,
				"lead_type":    leadType,
				"processed_at": now,
				"updated_at":   now,
			})
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		affected = result.RowsAffected
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	err = retryableOperation(ctx, commitPolicy, "MarkProcessedByIdentity Commit", operation)
	observer.ObserveDbOperationDuration("mark_processed_by_identity", "inbound_message", companyID, time.Since(startTime), err)
	if err != nil {
		logger.FromContext(ctx).Error("Failed to link message to lead",
			zap.String("channel", string(channel)),
			zap.String("external_user_id", externalUserID),
			zap.String("lead_id", leadID),
			zap.Error(err),
		)
		return 0, err
	}
	return affected, nil
}

// MarkInboundMessageFailed records a terminal routing failure.
func (r *PostgresRepo) MarkInboundMessageFailed(ctx context.Context, id, reason string) error {
	companyID, err := companyFromContext(ctx)
	if err != nil {
		return err
	}

	now := utils.Now()
	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.InboundMessage{}).
			Where("id = ? AND company_id = ?", id, companyID).
			Updates(map[string]interface{}{
				"status":         model.StatusFailed,
				"failure_reason": reason,
				"processed_at":   now,
				"updated_at":     now,
			})
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: message_id %s", apperrors.ErrNotFound, id)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	err = retryableOperation(ctx, commitPolicy, "MarkInboundMessageFailed Commit", operation)
	observer.ObserveDbOperationDuration("mark_failed", "inbound_message", companyID, time.Since(startTime), err)
	if err != nil {
		logger.FromContext(ctx).Error("Failed to mark message failed", zap.String("message_id", id), zap.Error(err))
		return err
	}
	return nil
}

// FindPendingInboundMessages returns pending messages stored before
// olderThan, oldest first. An empty integrationID means every integration.
func (r *PostgresRepo) FindPendingInboundMessages(ctx context.Context, integrationID string, olderThan time.Time, limit int) ([]model.InboundMessage, error) {
	companyID, err := companyFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultPendingLimit
	}

	var msgs []model.InboundMessage
	operation := func() error {
		msgs = msgs[:0]
		q := r.db.WithContext(ctx).
			Where("company_id = ? AND status = ? AND created_at < ?", companyID, model.StatusPending, olderThan.UTC())
		if integrationID != "" {
			q = q.Where("integration_id = ?", integrationID)
		}
		if err := q.Order("created_at ASC").Limit(limit).Find(&msgs).Error; err != nil {
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, err)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	err = retryableOperation(ctx, readPolicy, "FindPendingInboundMessages", operation)
	observer.ObserveDbOperationDuration("find_pending", "inbound_message", companyID, time.Since(startTime), err)
	if err != nil {
		logger.FromContext(ctx).Error("Failed to load pending messages", zap.String("integration_id", integrationID), zap.Error(err))
		return nil, err
	}
	return msgs, nil
}

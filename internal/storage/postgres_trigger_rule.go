package storage

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"gitlab.com/timkado/api/franchise-integration-hub/internal/apperrors"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/model"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/observer"
	"gitlab.com/timkado/api/franchise-integration-hub/pkg/logger"
	"gitlab.com/timkado/api/franchise-integration-hub/pkg/utils"
)

// FindActiveTriggerRules returns the active rules of an integration,
// highest priority first. Ties keep creation order.
func (r *PostgresRepo) FindActiveTriggerRules(ctx context.Context, integrationID string) ([]model.TriggerRule, error) {
	companyID, err := companyFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var rules []model.TriggerRule
	operation := func() error {
		rules = rules[:0]
		result := r.db.WithContext(ctx).
			Where("integration_id = ? AND is_active = ?", integrationID, true).
			Order("priority DESC").
			Order("created_at ASC").
			Find(&rules)
		if result.Error != nil {
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	err = retryableOperation(ctx, readPolicy, "FindActiveTriggerRules", operation)
	observer.ObserveDbOperationDuration("find_active", "trigger_rule", companyID, time.Since(startTime), err)
	if err != nil {
		logger.FromContext(ctx).Error("Failed to load trigger rules", zap.String("integration_id", integrationID), zap.Error(err))
		return nil, err
	}
	return rules, nil
}

func (r *PostgresRepo) SaveTriggerRule(ctx context.Context, rule model.TriggerRule) error {
	companyID, err := companyFromContext(ctx)
	if err != nil {
		return err
	}

	operation := func() error {
		if err := r.db.WithContext(ctx).Save(&rule).Error; err != nil {
			return checkConstraintViolation(err)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	err = retryableOperation(ctx, commitPolicy, "SaveTriggerRule Commit", operation)
	observer.ObserveDbOperationDuration("save", "trigger_rule", companyID, time.Since(startTime), err)
	if err != nil {
		logger.FromContext(ctx).Error("Failed to save trigger rule", zap.String("rule_id", rule.ID), zap.Error(err))
		return err
	}
	return nil
}

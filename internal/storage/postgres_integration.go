package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"gitlab.com/timkado/api/franchise-integration-hub/internal/apperrors"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/model"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/observer"
	"gitlab.com/timkado/api/franchise-integration-hub/pkg/logger"
	"gitlab.com/timkado/api/franchise-integration-hub/pkg/utils"
)

// FindIntegrationByID loads an integration of the current company.
func (r *PostgresRepo) FindIntegrationByID(ctx context.Context, id string) (*model.Integration, error) {
	companyID, err := companyFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var integration model.Integration
	operation := func() error {
		result := r.db.WithContext(ctx).Where("id = ? AND company_id = ?", id, companyID).First(&integration)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: integration_id %s: %w", apperrors.ErrNotFound, id, result.Error)
			}
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	err = retryableOperation(ctx, readPolicy, "FindIntegrationByID", operation)
	observer.ObserveDbOperationDuration("find_by_id", "integration", companyID, time.Since(startTime), err)
	if err != nil {
		if !apperrors.IsNotFoundError(err) {
			logger.FromContext(ctx).Error("Failed to find integration", zap.String("integration_id", id), zap.Error(err))
		}
		return nil, err
	}
	return &integration, nil
}

// SaveIntegration inserts or fully replaces an integration record. The hub
// itself only writes secrets; this exists for provisioning and tests.
func (r *PostgresRepo) SaveIntegration(ctx context.Context, integration model.Integration) error {
	companyID, err := companyFromContext(ctx)
	if err != nil {
		return err
	}
	if integration.CompanyID != companyID {
		return fmt.Errorf("%w: integration CompanyID %s does not match tenant ID %s", apperrors.ErrBadRequest, integration.CompanyID, companyID)
	}

	operation := func() error {
		if err := r.db.WithContext(ctx).Save(&integration).Error; err != nil {
			return checkConstraintViolation(err)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	err = retryableOperation(ctx, commitPolicy, "SaveIntegration Commit", operation)
	observer.ObserveDbOperationDuration("save", "integration", companyID, time.Since(startTime), err)
	if err != nil {
		logger.FromContext(ctx).Error("Failed to save integration", zap.String("integration_id", integration.ID), zap.Error(err))
		return err
	}
	return nil
}

// UpdateWebhookSecret overwrites the stored secret; the latest issued URL wins.
func (r *PostgresRepo) UpdateWebhookSecret(ctx context.Context, integrationID, secret string) error {
	companyID, err := companyFromContext(ctx)
	if err != nil {
		return err
	}

	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.Integration{}).
			Where("id = ? AND company_id = ?", integrationID, companyID).
			Updates(map[string]interface{}{
				"webhook_secret": secret,
				"updated_at":     utils.Now(),
			})
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: integration_id %s", apperrors.ErrNotFound, integrationID)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	err = retryableOperation(ctx, commitPolicy, "UpdateWebhookSecret Commit", operation)
	observer.ObserveDbOperationDuration("update_secret", "integration", companyID, time.Since(startTime), err)
	if err != nil {
		logger.FromContext(ctx).Error("Failed to update webhook secret", zap.String("integration_id", integrationID), zap.Error(err))
		return err
	}
	return nil
}

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

// CreateFranchiseDeal inserts a head-office lead.
func (r *PostgresRepo) CreateFranchiseDeal(ctx context.Context, deal model.FranchiseDeal) error {
	companyID, err := companyFromContext(ctx)
	if err != nil {
		return err
	}
	if deal.CompanyID != companyID {
		return fmt.Errorf("%w: deal CompanyID %s does not match tenant ID %s", apperrors.ErrBadRequest, deal.CompanyID, companyID)
	}
	if deal.Stage == "" {
		deal.Stage = model.StageNew
	}

	operation := func() error {
		if err := r.db.WithContext(ctx).Create(&deal).Error; err != nil {
			return checkConstraintViolation(err)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	err = retryableOperation(ctx, commitPolicy, "CreateFranchiseDeal Commit", operation)
	observer.ObserveDbOperationDuration("create", "franchise_deal", companyID, time.Since(startTime), err)
	if err != nil {
		logger.FromContext(ctx).Error("Failed to create franchise deal", zap.String("lead_id", deal.ID), zap.Error(err))
		return err
	}
	return nil
}

// CreateBookingLead inserts a lead into a franchisee's booking funnel.
func (r *PostgresRepo) CreateBookingLead(ctx context.Context, lead model.BookingLead) error {
	companyID, err := companyFromContext(ctx)
	if err != nil {
		return err
	}
	if lead.CompanyID != companyID {
		return fmt.Errorf("%w: lead CompanyID %s does not match tenant ID %s", apperrors.ErrBadRequest, lead.CompanyID, companyID)
	}
	if lead.FranchiseeID == "" {
		return fmt.Errorf("%w: booking lead %s has no franchisee", apperrors.ErrBadRequest, lead.ID)
	}
	if lead.Stage == "" {
		lead.Stage = model.StageNew
	}

	operation := func() error {
		if err := r.db.WithContext(ctx).Create(&lead).Error; err != nil {
			return checkConstraintViolation(err)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	err = retryableOperation(ctx, commitPolicy, "CreateBookingLead Commit", operation)
	observer.ObserveDbOperationDuration("create", "booking_lead", companyID, time.Since(startTime), err)
	if err != nil {
		logger.FromContext(ctx).Error("Failed to create booking lead",
			zap.String("lead_id", lead.ID),
			zap.String("franchisee_id", lead.FranchiseeID),
			zap.Error(err),
		)
		return err
	}
	return nil
}

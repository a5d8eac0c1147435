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

// staffScope restricts q to one franchisee, or to head office when
// franchiseeID is nil.
func staffScope(q *gorm.DB, franchiseeID *string) *gorm.DB {
	if franchiseeID == nil {
		return q.Where("franchisee_id IS NULL")
	}
	return q.Where("franchisee_id = ?", *franchiseeID)
}

// FindFirstAdmin returns the earliest-created active admin in scope.
func (r *PostgresRepo) FindFirstAdmin(ctx context.Context, franchiseeID *string) (*model.StaffUser, error) {
	companyID, err := companyFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var user model.StaffUser
	operation := func() error {
		q := r.db.WithContext(ctx).
			Where("company_id = ? AND role = ? AND is_active = ?", companyID, model.RoleAdmin, true)
		result := staffScope(q, franchiseeID).
			Order("created_at ASC").
			Order("id ASC").
			Take(&user)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: no active admin in scope: %w", apperrors.ErrNotFound, result.Error)
			}
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	err = retryableOperation(ctx, readPolicy, "FindFirstAdmin", operation)
	observer.ObserveDbOperationDuration("find_first_admin", "staff_user", companyID, time.Since(startTime), err)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// FindEligibleStaff lists active staff in scope holding one of roles,
// ordered by creation so rotation indexes are stable.
func (r *PostgresRepo) FindEligibleStaff(ctx context.Context, franchiseeID *string, roles []model.StaffRole) ([]model.StaffUser, error) {
	companyID, err := companyFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if len(roles) == 0 {
		return nil, nil
	}

	var users []model.StaffUser
	operation := func() error {
		users = users[:0]
		q := r.db.WithContext(ctx).
			Where("company_id = ? AND is_active = ? AND role IN ?", companyID, true, roles)
		result := staffScope(q, franchiseeID).
			Order("created_at ASC").
			Order("id ASC").
			Find(&users)
		if result.Error != nil {
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	err = retryableOperation(ctx, readPolicy, "FindEligibleStaff", operation)
	observer.ObserveDbOperationDuration("find_eligible", "staff_user", companyID, time.Since(startTime), err)
	if err != nil {
		logger.FromContext(ctx).Warn("Failed to load eligible staff", zap.Error(err))
		return nil, err
	}
	return users, nil
}

func (r *PostgresRepo) SaveStaffUser(ctx context.Context, user model.StaffUser) error {
	companyID, err := companyFromContext(ctx)
	if err != nil {
		return err
	}
	if user.CompanyID != companyID {
		return fmt.Errorf("%w: staff CompanyID %s does not match tenant ID %s", apperrors.ErrBadRequest, user.CompanyID, companyID)
	}

	operation := func() error {
		if err := r.db.WithContext(ctx).Save(&user).Error; err != nil {
			return checkConstraintViolation(err)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	err = retryableOperation(ctx, commitPolicy, "SaveStaffUser Commit", operation)
	observer.ObserveDbOperationDuration("save", "staff_user", companyID, time.Since(startTime), err)
	if err != nil {
		logger.FromContext(ctx).Error("Failed to save staff user", zap.String("user_id", user.ID), zap.Error(err))
		return err
	}
	return nil
}

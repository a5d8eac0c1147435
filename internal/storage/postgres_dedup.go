package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gitlab.com/timkado/api/franchise-integration-hub/internal/apperrors"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/model"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/observer"
	"gitlab.com/timkado/api/franchise-integration-hub/pkg/logger"
	"gitlab.com/timkado/api/franchise-integration-hub/pkg/utils"
)

// FindDedupByIdentity looks up the mapping for (channel, external user id).
// A blank id identifies nobody and is always a miss.
func (r *PostgresRepo) FindDedupByIdentity(ctx context.Context, channel model.Channel, externalUserID string) (*model.DedupMapping, error) {
	if strings.TrimSpace(externalUserID) == "" {
		return nil, fmt.Errorf("%w: empty external user id", apperrors.ErrNotFound)
	}
	return r.findDedup(ctx, "FindDedupByIdentity", "find_by_identity",
		"channel = ? AND external_user_id = ?", channel, externalUserID)
}

// FindDedupByPhone looks up the mapping that owns a normalized phone.
func (r *PostgresRepo) FindDedupByPhone(ctx context.Context, phone string) (*model.DedupMapping, error) {
	if phone == "" {
		return nil, fmt.Errorf("%w: empty phone", apperrors.ErrNotFound)
	}
	return r.findDedup(ctx, "FindDedupByPhone", "find_by_phone", "phone = ?", phone)
}

func (r *PostgresRepo) findDedup(ctx context.Context, opName, metricOp, query string, args ...interface{}) (*model.DedupMapping, error) {
	companyID, err := companyFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var mapping model.DedupMapping
	operation := func() error {
		result := r.db.WithContext(ctx).Where(query, args...).First(&mapping)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: dedup mapping: %w", apperrors.ErrNotFound, result.Error)
			}
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	err = retryableOperation(ctx, readPolicy, opName, operation)
	observer.ObserveDbOperationDuration(metricOp, "dedup_mapping", companyID, time.Since(startTime), err)
	if err != nil {
		return nil, err
	}
	return &mapping, nil
}

// InsertDedupIfAbsent inserts mapping unless a row already holds the same
// identity or phone. It reports true only for the caller whose insert
// created the row; existing rows are never overwritten.
func (r *PostgresRepo) InsertDedupIfAbsent(ctx context.Context, mapping model.DedupMapping) (bool, error) {
	companyID, err := companyFromContext(ctx)
	if err != nil {
		return false, err
	}
	if mapping.Phone != nil && *mapping.Phone == "" {
		mapping.Phone = nil
	}
	if mapping.ExternalUserID != nil && strings.TrimSpace(*mapping.ExternalUserID) == "" {
		mapping.ExternalUserID = nil
	}

	var inserted bool
	operation := func() error {
		result := r.db.WithContext(ctx).
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(&mapping)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		inserted = result.RowsAffected == 1
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	err = retryableOperation(ctx, commitPolicy, "InsertDedupIfAbsent Commit", operation)
	observer.ObserveDbOperationDuration("insert_if_absent", "dedup_mapping", companyID, time.Since(startTime), err)
	if err != nil {
		logger.FromContext(ctx).Error("Failed to insert dedup mapping",
			zap.String("channel", string(mapping.Channel)),
			zap.Stringp("external_user_id", mapping.ExternalUserID),
			zap.Error(err),
		)
		return false, err
	}
	return inserted, nil
}

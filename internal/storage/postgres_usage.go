package storage

import (
	"context"
	"fmt"
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

// counterColumn maps a counter kind to its column. Only these three
// columns are ever interpolated into SQL.
func counterColumn(kind model.CounterKind) (string, error) {
	switch kind {
	case model.CounterMessagesReceived:
		return "messages_received", nil
	case model.CounterLeadsCreated:
		return "leads_created", nil
	case model.CounterDuplicatesPrevented:
		return "duplicates_prevented", nil
	default:
		return "", fmt.Errorf("%w: unknown counter %q", apperrors.ErrBadRequest, kind)
	}
}

// IncrementUsage adds one to kind for integrationID on the UTC day of day,
// creating the row on first use. A single upsert statement.
func (r *PostgresRepo) IncrementUsage(ctx context.Context, integrationID string, kind model.CounterKind, day time.Time) error {
	companyID, err := companyFromContext(ctx)
	if err != nil {
		return err
	}
	column, err := counterColumn(kind)
	if err != nil {
		return err
	}

	counter := model.UsageCounter{
		IntegrationID: integrationID,
		Date:          utils.StartOfDay(day),
	}
	switch kind {
	case model.CounterMessagesReceived:
		counter.MessagesReceived = 1
	case model.CounterLeadsCreated:
		counter.LeadsCreated = 1
	case model.CounterDuplicatesPrevented:
		counter.DuplicatesPrevented = 1
	}

	operation := func() error {
		result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "integration_id"}, {Name: "date"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				column:       gorm.Expr(r.qualified("usage_counters") + "." + column + " + 1"),
				"updated_at": utils.Now(),
			}),
		}).Create(&counter)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	counterPolicy := newRetryPolicy(ctx, counterRetryMaxElapsedTime)
	startTime := utils.Now()
	err = retryableOperation(ctx, counterPolicy, "IncrementUsage Commit", operation)
	observer.ObserveDbOperationDuration("increment", "usage_counter", companyID, time.Since(startTime), err)
	if err != nil {
		logger.FromContext(ctx).Warn("Failed to increment usage counter",
			zap.String("integration_id", integrationID),
			zap.String("counter", column),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// FindUsageRange returns the daily counters of an integration between from
// and to inclusive, oldest first. Days without activity have no row.
func (r *PostgresRepo) FindUsageRange(ctx context.Context, integrationID string, from, to time.Time) ([]model.UsageCounter, error) {
	companyID, err := companyFromContext(ctx)
	if err != nil {
		return nil, err
	}
	from, to = utils.StartOfDay(from), utils.StartOfDay(to)
	if to.Before(from) {
		return nil, fmt.Errorf("%w: range end %s is before start %s", apperrors.ErrBadRequest, utils.FormatISO8601(to), utils.FormatISO8601(from))
	}

	var counters []model.UsageCounter
	operation := func() error {
		counters = counters[:0]
		result := r.db.WithContext(ctx).
			Where("integration_id = ? AND date >= ? AND date <= ?", integrationID, from, to).
			Order("date ASC").
			Find(&counters)
		if result.Error != nil {
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	err = retryableOperation(ctx, readPolicy, "FindUsageRange", operation)
	observer.ObserveDbOperationDuration("find_range", "usage_counter", companyID, time.Since(startTime), err)
	if err != nil {
		return nil, err
	}
	return counters, nil
}

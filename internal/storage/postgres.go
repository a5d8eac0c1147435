package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
	"gorm.io/gorm/schema"

	"gitlab.com/timkado/api/franchise-integration-hub/internal/apperrors"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/model"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/tenant"
	"gitlab.com/timkado/api/franchise-integration-hub/pkg/logger"
	"gitlab.com/timkado/api/franchise-integration-hub/pkg/utils"
)

const (
	defaultRetryInitialInterval = 50 * time.Millisecond
	defaultRetryMaxInterval     = 2 * time.Second
	readRetryMaxElapsedTime     = 5 * time.Second
	commitRetryMaxElapsedTime   = 15 * time.Second
	counterRetryMaxElapsedTime  = 1 * time.Second

	connectInitialInterval = 1 * time.Second
	connectMaxInterval     = 15 * time.Second
	connectMaxElapsedTime  = 1 * time.Minute

	defaultPendingLimit = 500
)

// SchemaPrefix prefixes every per-company schema.
const SchemaPrefix = "hub_"

// SchemaName returns the schema that holds companyID's tables.
func SchemaName(companyID string) string {
	return SchemaPrefix + companyID
}

// PostgresRepo implements every hub repository over one gorm connection
// scoped to a company schema.
type PostgresRepo struct {
	db         *gorm.DB
	schemaName string
}

// tenantNamer qualifies every table with the company schema.
type tenantNamer struct {
	schema.NamingStrategy
	schemaName string
}

func (tn tenantNamer) TableName(table string) string {
	return fmt.Sprintf("%q.%s", tn.schemaName, table)
}

// models lists every table the hub migrates, in dependency order.
func models() []interface{} {
	return []interface{}{
		&model.Integration{},
		&model.TriggerRule{},
		&model.StaffUser{},
		&model.InboundMessage{},
		&model.DedupMapping{},
		&model.UsageCounter{},
		&model.FranchiseDeal{},
		&model.BookingLead{},
	}
}

func newRetryPolicy(ctx context.Context, maxElapsedTime time.Duration) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = defaultRetryInitialInterval
	b.MaxInterval = defaultRetryMaxInterval
	b.MaxElapsedTime = maxElapsedTime
	b.Reset()
	return backoff.WithContext(b, ctx)
}

func newConnectPolicy() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = connectInitialInterval
	b.MaxInterval = connectMaxInterval
	b.MaxElapsedTime = connectMaxElapsedTime
	return b
}

// retryableOperation retries operation while it fails with a transient error.
func retryableOperation(ctx context.Context, policy backoff.BackOffContext, opName string, operation func() error) error {
	notify := func(err error, d time.Duration) {
		logger.FromContext(ctx).Warn("Retrying DB operation",
			zap.String("operation", opName),
			zap.Error(err),
			zap.Duration("after", d),
		)
	}

	return backoff.RetryNotify(func() error {
		err := operation()
		if err == nil {
			return nil
		}
		if errors.Is(err, gorm.ErrRecordNotFound) ||
			errors.Is(err, gorm.ErrInvalidTransaction) ||
			errors.Is(err, gorm.ErrDuplicatedKey) ||
			apperrors.IsNotFoundError(err) {
			return backoff.Permanent(err)
		}
		if isTransientError(err) {
			return err
		}
		return backoff.Permanent(err)
	}, policy, notify)
}

var transientIndicators = []string{
	"connection refused",
	"network is unreachable",
	"i/o timeout",
	"broken pipe",
	"connection reset",
	"could not translate host name",
	"no route to host",
	"database system is starting up",
	"connection timed out",
}

// isTransientError reports whether err looks like a connectivity or
// contention problem worth retrying.
func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08 connection, class 53 resources, serialization failure, deadlock.
		if strings.HasPrefix(pgErr.Code, "08") ||
			strings.HasPrefix(pgErr.Code, "53") ||
			pgErr.Code == "40001" ||
			pgErr.Code == "40P01" {
			return true
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, indicator := range transientIndicators {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}
	return false
}

// NewPostgresRepo connects to Postgres, ensures the company schema exists and
// optionally auto-migrates the hub tables into it.
func NewPostgresRepo(dsn string, autoMigrate bool, companyID string) (*PostgresRepo, error) {
	if companyID == "" {
		return nil, fmt.Errorf("%w: company id is required", apperrors.ErrBadRequest)
	}
	schemaName := SchemaName(companyID)

	connect := func(cfg *gorm.Config, target string) func() (*gorm.DB, error) {
		return func() (*gorm.DB, error) {
			db, err := gorm.Open(postgres.Open(dsn), cfg)
			if err != nil {
				if isTransientError(err) {
					logger.Log.Warn("Postgres not reachable yet, retrying", zap.String("target", target), zap.Error(err))
					return nil, err
				}
				return nil, backoff.Permanent(fmt.Errorf("failed to connect to postgres (%s): %w", target, err))
			}
			return db, nil
		}
	}
	notify := func(err error, d time.Duration) {
		logger.Log.Warn("Retrying DB connection", zap.String("schema", schemaName), zap.Error(err), zap.Duration("after", d))
	}

	bootstrap, err := backoff.RetryNotifyWithData(connect(&gorm.Config{}, "default"), newConnectPolicy(), notify)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres after retries: %w", err)
	}

	logger.Log.Info("Ensuring PostgreSQL schema exists", zap.String("schema", schemaName))
	schemaErr := bootstrap.Exec(fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %q", schemaName)).Error
	closeGorm(bootstrap)
	if schemaErr != nil {
		return nil, fmt.Errorf("failed to create schema %s: %w", schemaName, schemaErr)
	}

	tenantCfg := &gorm.Config{
		NamingStrategy: tenantNamer{schemaName: schemaName},
		Logger:         gormLogger.Default.LogMode(gormLogger.Warn),
		NowFunc:        utils.Now,
	}
	db, err := backoff.RetryNotifyWithData(connect(tenantCfg, schemaName), newConnectPolicy(), notify)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres schema %s after retries: %w", schemaName, err)
	}

	repo := &PostgresRepo{db: db, schemaName: schemaName}
	if autoMigrate {
		if err := repo.Migrate(context.Background()); err != nil {
			closeGorm(db)
			return nil, err
		}
	} else {
		logger.Log.Info("Auto-migration disabled", zap.String("schema", schemaName))
	}
	return repo, nil
}

// NewPostgresRepoFromDB wraps an already configured gorm connection without
// schema qualification. Used with in-memory databases in tests.
func NewPostgresRepoFromDB(db *gorm.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

// Migrate creates or updates every hub table.
func (r *PostgresRepo) Migrate(ctx context.Context) error {
	logger.FromContext(ctx).Info("Running auto-migration", zap.String("schema", r.schemaName))
	if err := r.db.WithContext(ctx).AutoMigrate(models()...); err != nil {
		return fmt.Errorf("%w: auto-migration failed: %w", apperrors.ErrDatabase, err)
	}
	return nil
}

// Ping checks database connectivity for readiness probes.
func (r *PostgresRepo) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrDatabase, err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: ping: %w", apperrors.ErrDatabase, err)
	}
	return nil
}

func (r *PostgresRepo) Close(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		logger.FromContext(ctx).Warn("Failed to get underlying SQL DB for closing", zap.Error(err))
		return nil
	}
	if err := sqlDB.Close(); err != nil {
		logger.FromContext(ctx).Error("Failed to close database connection", zap.Error(err))
		return fmt.Errorf("failed to close SQL DB: %w", err)
	}
	logger.FromContext(ctx).Info("Database connection closed")
	return nil
}

// qualified returns table prefixed with the company schema when there is one,
// for expressions gorm does not qualify by itself.
func (r *PostgresRepo) qualified(table string) string {
	if r.schemaName == "" {
		return table
	}
	return fmt.Sprintf("%q.%s", r.schemaName, table)
}

func closeGorm(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		logger.Log.Warn("Failed to close DB connection", zap.Error(err))
	}
}

// companyFromContext resolves the tenant every repository call is scoped to.
func companyFromContext(ctx context.Context) (string, error) {
	companyID, err := tenant.FromContext(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: failed to get tenant ID from context: %w", apperrors.ErrUnauthorized, err)
	}
	return companyID, nil
}

// checkConstraintViolation maps driver and gorm errors onto apperrors.
func checkConstraintViolation(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %w", apperrors.ErrNotFound, err)
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %w", apperrors.ErrDuplicate, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", apperrors.ErrTimeout, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%w: constraint %s: %w", apperrors.ErrDuplicate, pgErr.ConstraintName, err)
		case "23503", "23514": // foreign_key_violation, check_violation
			return fmt.Errorf("%w: constraint %s: %w", apperrors.ErrBadRequest, pgErr.ConstraintName, err)
		case "23502": // not_null_violation
			return fmt.Errorf("%w: null value in column %s: %w", apperrors.ErrBadRequest, pgErr.ColumnName, err)
		case "22001": // string_data_right_truncation
			return fmt.Errorf("%w: value too long for column %s: %w", apperrors.ErrBadRequest, pgErr.ColumnName, err)
		case "22P02": // invalid_text_representation
			return fmt.Errorf("%w: invalid input syntax for type %s: %w", apperrors.ErrBadRequest, pgErr.DataTypeName, err)
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return fmt.Errorf("%w: transaction rollback (%s): %w", apperrors.ErrDatabase, pgErr.Code, err)
		default:
			if strings.HasPrefix(pgErr.Code, "53") {
				return fmt.Errorf("%w: insufficient resources (%s): %w", apperrors.ErrDatabase, pgErr.Code, err)
			}
			if strings.HasPrefix(pgErr.Code, "08") {
				return fmt.Errorf("%w: connection error (%s): %w", apperrors.ErrDatabase, pgErr.Code, err)
			}
			return fmt.Errorf("%w: unhandled pgcode %s: %w", apperrors.ErrDatabase, pgErr.Code, err)
		}
	}

	return fmt.Errorf("%w: %w", apperrors.ErrDatabase, err)
}

package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/franchise-integration-hub/internal/apperrors"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/tenant"
	"gitlab.com/timkado/api/franchise-integration-hub/pkg/logger"
)

const rotationKeyPrefix = "hub:rr"

// RotationStore hands out successive round-robin positions per integration.
type RotationStore interface {
	Next(ctx context.Context, integrationID string, n int) (int, error)
}

// Incrementer is the single Redis command rotation needs. *redis.Client
// satisfies it.
type Incrementer interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
}

// RedisRotation keeps one INCR counter per company and integration, so
// every hub replica shares the same rotation.
type RedisRotation struct {
	client Incrementer
	calls  atomic.Int64
	errors atomic.Int64
}

func NewRedisRotation(client Incrementer) *RedisRotation {
	return &RedisRotation{client: client}
}

// RotationKey is the Redis key holding the counter for integrationID.
func RotationKey(companyID, integrationID string) string {
	return fmt.Sprintf("%s:%s:%s", rotationKeyPrefix, companyID, integrationID)
}

// Next returns a position in [0, n). The first call for an integration
// returns 0.
func (r *RedisRotation) Next(ctx context.Context, integrationID string, n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("%w: rotation over %d candidates", apperrors.ErrBadRequest, n)
	}
	companyID, err := tenant.FromContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", apperrors.ErrUnauthorized, err)
	}

	r.calls.Add(1)
	key := RotationKey(companyID, integrationID)
	v, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		r.errors.Add(1)
		logger.FromContext(ctx).Warn("Rotation counter unavailable",
			zap.String("key", key),
			zap.Error(err),
		)
		return 0, fmt.Errorf("rotation counter %s: %w", key, err)
	}
	return int((v - 1) % int64(n)), nil
}

// RotationStats summarizes store usage since start.
type RotationStats struct {
	Calls  int64 `json:"calls"`
	Errors int64 `json:"errors"`
}

func (r *RedisRotation) GetStats() RotationStats {
	return RotationStats{Calls: r.calls.Load(), Errors: r.errors.Load()}
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient connects and pings Redis.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	logger.FromContext(ctx).Info("Connected to Redis", zap.String("addr", cfg.Addr))
	return rdb, nil
}

// Package app assembles the hub's object graph from configuration. The
// server and the CLI share it.
package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/franchise-integration-hub/internal/cache"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/config"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/hub"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/leads"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/routing"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/storage"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/tenant"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/usecase"
	"gitlab.com/timkado/api/franchise-integration-hub/pkg/logger"
)

// App holds the wired components for one company.
type App struct {
	Config    *config.Config
	CompanyID string
	Postgres  *storage.PostgresRepo
	Redis     *redis.Client

	Integrations storage.IntegrationRepo
	Messages     storage.InboundMessageRepo
	Usage        storage.UsageCounterRepo

	Hub       *hub.Hub
	Routing   *usecase.RoutingService
	Reprocess *usecase.ReprocessWorker

	log *zap.Logger
}

// New connects to storage and builds every service.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	companyID := cfg.CompanyID()
	if companyID == "" {
		return nil, fmt.Errorf("company id is required")
	}
	if cfg.Database.PostgresDSN == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	pg, err := storage.NewPostgresRepo(cfg.Database.PostgresDSN, cfg.Database.PostgresAutoMigrate, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres repository: %w", err)
	}
	log.Info("Initialized PostgreSQL repository", zap.String("schema", storage.SchemaName(companyID)))

	a := &App{
		Config:    cfg,
		CompanyID: companyID,
		Postgres:  pg,
		log:       log,
	}

	var rotation cache.RotationStore
	if cfg.RotationEnabled() {
		rdb, err := cache.NewRedisClient(ctx, cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			log.Warn("Redis unavailable, round-robin falls back to random pick", zap.Error(err))
		} else {
			a.Redis = rdb
			rotation = cache.NewRedisRotation(rdb)
		}
	}

	if err := a.wire(rotation); err != nil {
		a.Close(ctx)
		return nil, err
	}
	return a, nil
}

func (a *App) wire(rotation cache.RotationStore) error {
	a.Integrations = storage.NewIntegrationRepoAdapter(a.Postgres)
	a.Messages = storage.NewInboundMessageRepoAdapter(a.Postgres)
	a.Usage = storage.NewUsageCounterRepoAdapter(a.Postgres)
	dedup := storage.NewDedupRepoAdapter(a.Postgres)
	rules := storage.NewTriggerRuleRepoAdapter(a.Postgres)
	leadRepo := storage.NewLeadRepoAdapter(a.Postgres)
	staff := storage.NewStaffRepoAdapter(a.Postgres)

	engine := routing.NewEngine(dedup, rules, a.Messages)
	creator := leads.NewCreator(leadRepo, dedup, a.Usage, a.Messages, leads.NewResolver(staff, rotation))

	a.Hub = hub.New(a.Integrations, a.Messages, a.Usage, a.Config.Hub.BaseURL)
	a.Routing = usecase.NewRoutingService(a.Integrations, a.Messages, a.Usage, engine, creator)

	worker, err := usecase.NewReprocessWorker(a.Config.WorkerPools.Reprocess, a.Routing, a.Messages, a.log)
	if err != nil {
		return fmt.Errorf("failed to initialize reprocess worker pool: %w", err)
	}
	a.Reprocess = worker
	return nil
}

// Context scopes ctx to the served company.
func (a *App) Context(ctx context.Context) context.Context {
	ctx = tenant.WithCompanyID(ctx, a.CompanyID)
	return logger.WithLogger(ctx, a.log.With(zap.String("company_id", a.CompanyID)))
}

// Close releases the worker pool and connections.
func (a *App) Close(ctx context.Context) {
	if a.Reprocess != nil {
		a.Reprocess.Stop()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.log.Warn("Failed to close Redis client", zap.Error(err))
		}
	}
	if a.Postgres != nil {
		if err := a.Postgres.Close(ctx); err != nil {
			a.log.Error("Failed to close PostgreSQL connection", zap.Error(err))
		}
	}
}

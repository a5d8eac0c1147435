package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/franchise-integration-hub/internal/app"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/config"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/httpapi"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/ingestion"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/jetstream"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/observer"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/usecase"
	"gitlab.com/timkado/api/franchise-integration-hub/pkg/logger"
	"gitlab.com/timkado/api/franchise-integration-hub/pkg/utils"
)

func main() {
	time.Local = time.UTC

	cfg, err := config.LoadConfig("")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Initialize(cfg.LogLevel); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	observer.InitMetrics(cfg.Metrics.Enabled)

	companyID := cfg.CompanyID()
	logger.Log.Info("Starting Franchise Integration Hub",
		zap.String("environment", cfg.Environment),
		zap.String("company_id", companyID),
		zap.String("nats_url", cfg.NATS.URL),
		zap.Bool("rotation", cfg.RotationEnabled()),
	)

	mainCtx, mainCancel := context.WithCancel(context.Background())
	defer mainCancel()

	hubApp, err := app.New(mainCtx, cfg, logger.Log)
	if err != nil {
		logger.Log.Fatal("Failed to initialize hub", zap.Error(err))
	}

	jsClient, err := jetstream.NewClient(cfg.NATS.URL, "franchise-integration-hub-"+companyID)
	if err != nil {
		logger.Log.Fatal("Failed to initialize JetStream client", zap.Error(err))
	}

	processor := usecase.NewProcessor(hubApp.Routing, jsClient, cfg, companyID)
	if err := processor.Setup(); err != nil {
		logger.Log.Fatal("Failed to set up processor", zap.Error(err))
	}

	opts := httpapi.Options{
		Port:           cfg.Server.Port,
		CompanyID:      companyID,
		RequestTimeout: cfg.Server.RequestTimeout,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		Checks: []httpapi.Checker{
			{Name: "postgres", Check: hubApp.Postgres.Ping},
			{Name: "nats", Check: func(context.Context) error { return jsClient.Ping() }},
		},
	}
	if hubApp.Redis != nil {
		opts.Checks = append(opts.Checks, httpapi.Checker{
			Name:  "redis",
			Check: func(ctx context.Context) error { return hubApp.Redis.Ping(ctx).Err() },
		})
	}
	if cfg.Metrics.Enabled {
		opts.Metrics = promhttp.Handler()
	} else {
		logger.Log.Info("Metrics endpoint disabled", zap.String("environment", cfg.Environment))
	}

	server := httpapi.NewServer(hubApp.Hub, hubApp.Usage, ingestion.NewPublisher(jsClient), opts, logger.Log)
	server.Start()

	logger.Log.Info("HTTP endpoints available",
		zap.String("webhooks", fmt.Sprintf("http://localhost:%d/api/webhooks/:channel/:integrationId", cfg.Server.Port)),
		zap.String("health", fmt.Sprintf("http://localhost:%d/health", cfg.Server.Port)),
		zap.String("readiness", fmt.Sprintf("http://localhost:%d/ready", cfg.Server.Port)),
	)

	if err := processor.Start(); err != nil {
		logger.Log.Fatal("Failed to start processor", zap.Error(err))
	}

	scheduler, err := startSweepScheduler(hubApp.Context(mainCtx), hubApp.Reprocess, cfg.WorkerPools.Reprocess)
	if err != nil {
		logger.Log.Fatal("Failed to schedule pending-message sweep", zap.Error(err))
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Log.Info("Received termination signal", zap.String("signal", sig.String()))

	mainCancel()

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	logger.Log.Info("Starting graceful shutdown", zap.Duration("timeout", shutdownTimeout))

	// Intake stops first so nothing new reaches the pool while it drains.
	var intake sync.WaitGroup
	intake.Add(3)
	shutdown(&intake, "HTTP server", func() {
		if err := server.Stop(shutdownCtx); err != nil {
			logger.Log.Error("[shutdown] Error stopping HTTP server", zap.Error(err))
		}
	})
	shutdown(&intake, "routing consumer", processor.Stop)
	shutdown(&intake, "sweep scheduler", func() {
		if scheduler != nil {
			<-scheduler.Stop().Done()
		}
	})

	if !waitFor(shutdownCtx, &intake) {
		logger.Log.Warn("[shutdown] Intake did not stop in time")
	}

	var rest sync.WaitGroup
	rest.Add(1)
	shutdown(&rest, "reprocess pool and connections", func() {
		hubApp.Reprocess.Wait()
		hubApp.Close(shutdownCtx)
		jsClient.Close()
	})

	if waitFor(shutdownCtx, &rest) {
		logger.Log.Info("[shutdown] All components stopped gracefully")
	} else {
		logger.Log.Warn("[shutdown] Graceful shutdown timed out, forcing exit")
	}

	logger.Log.Info("Franchise Integration Hub shutdown complete")
}

// startSweepScheduler runs the pending-message sweep on the configured cron
// schedule. An empty schedule disables it.
func startSweepScheduler(ctx context.Context, worker usecase.IReprocessWorker, cfg config.ReprocessWorkerPoolConfig) (*cron.Cron, error) {
	if cfg.SweepSchedule == "" {
		logger.Log.Info("Pending-message sweep disabled")
		return nil, nil
	}

	cronLog := cronLogger{log: logger.Log.Named("cron").Sugar()}
	scheduler := cron.New(
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)
	sweep := utils.WrapWithContextRecovery(func(ctx context.Context) error {
		n, err := worker.Sweep(ctx, "", utils.Now().Add(-cfg.SweepAge), cfg.SweepLimit)
		if err != nil {
			return err
		}
		if n > 0 {
			logger.FromContext(ctx).Info("Pending-message sweep submitted messages", zap.Int("count", n))
		}
		return nil
	})
	_, err := scheduler.AddFunc(cfg.SweepSchedule, func() {
		if err := sweep(ctx); err != nil {
			logger.FromContext(ctx).Error("Pending-message sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", cfg.SweepSchedule, err)
	}

	scheduler.Start()
	logger.Log.Info("Pending-message sweep scheduled",
		zap.String("schedule", cfg.SweepSchedule),
		zap.Duration("age", cfg.SweepAge),
		zap.Int("limit", cfg.SweepLimit),
	)
	return scheduler, nil
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}

func shutdown(wg *sync.WaitGroup, name string, stop func()) {
	utils.SafeGo(func() {
		logger.Log.Info("[shutdown] Stopping " + name)
		start := time.Now()
		stop()
		logger.Log.Info("[shutdown] Stopped "+name, zap.Duration("duration", time.Since(start)))
		wg.Done()
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while stopping "+name,
			zap.Any("panic", r),
			zap.ByteString("stack", stack),
		)
		wg.Done()
	})
}

func waitFor(ctx context.Context, wg *sync.WaitGroup) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

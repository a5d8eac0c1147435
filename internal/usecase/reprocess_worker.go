package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/franchise-integration-hub/internal/config"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/observer"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/storage"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/tenant"
	"gitlab.com/timkado/api/franchise-integration-hub/pkg/logger"
)

// ReprocessTask is one stored message to run through routing again.
type ReprocessTask struct {
	Ctx       context.Context // Detached from any request; carries tenant and logger
	CompanyID string
	MessageID string
}

// IReprocessWorker defines the interface for the reprocess worker pool.
type IReprocessWorker interface {
	SubmitTask(task ReprocessTask) error
	Sweep(ctx context.Context, integrationID string, olderThan time.Time, limit int) (int, error)
	Wait()
	Stop()
}

// ReprocessWorker runs pending messages through the routing pipeline on an
// ants pool. It serves both the scheduled sweep and the CLI.
type ReprocessWorker struct {
	pool       *ants.PoolWithFunc
	processor  MessageProcessor
	messages   storage.InboundMessageRepo
	cfg        config.ReprocessWorkerPoolConfig
	baseLogger *zap.Logger
	inflight   sync.WaitGroup
}

var _ IReprocessWorker = (*ReprocessWorker)(nil)

// NewReprocessWorker creates and initializes the reprocess worker pool.
func NewReprocessWorker(
	cfg config.ReprocessWorkerPoolConfig,
	processor MessageProcessor,
	messages storage.InboundMessageRepo,
	baseLogger *zap.Logger,
) (*ReprocessWorker, error) {
	worker := &ReprocessWorker{
		processor:  processor,
		messages:   messages,
		cfg:        cfg,
		baseLogger: baseLogger.Named("reprocess_worker"),
	}

	pool, err := ants.NewPoolWithFunc(cfg.PoolSize, func(i interface{}) {
		task, ok := i.(ReprocessTask)
		if !ok {
			worker.baseLogger.Error("Invalid task data type received", zap.Any("data", i))
			return
		}
		defer worker.inflight.Done()
		worker.processTask(task)
	},
		ants.WithExpiryDuration(cfg.ExpiryTime),
		ants.WithNonblocking(false),
		ants.WithMaxBlockingTasks(cfg.QueueSize),
		ants.WithPanicHandler(func(p interface{}) {
			worker.baseLogger.Error("Panic recovered in reprocess worker", zap.Any("panic_error", p), zap.Stack("stack"))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create reprocess worker pool: %w", err)
	}
	worker.pool = pool
	worker.baseLogger.Info("Reprocess worker pool initialized",
		zap.Int("pool_size", cfg.PoolSize),
		zap.Int("queue_size", cfg.QueueSize),
		zap.Duration("expiry_time", cfg.ExpiryTime),
	)
	return worker, nil
}

// SubmitTask hands one message to the pool, blocking while all workers are busy.
func (w *ReprocessWorker) SubmitTask(task ReprocessTask) error {
	observer.IncReprocessTasksSubmitted(task.CompanyID)

	w.inflight.Add(1)
	if err := w.pool.Invoke(task); err != nil {
		w.inflight.Done()
		w.baseLogger.Warn("Failed to submit reprocess task to pool",
			zap.String("message_id", task.MessageID),
			zap.String("company_id", task.CompanyID),
			zap.Error(err),
		)
		observer.IncReprocessTasksProcessed(task.CompanyID, "submit_error")
		if errors.Is(err, ants.ErrPoolOverload) {
			return fmt.Errorf("reprocess pool overload: %w", err)
		}
		return fmt.Errorf("failed to invoke reprocess task: %w", err)
	}
	observer.SetReprocessWorkersRunning(w.pool.Running())
	return nil
}

// Sweep submits every message of the tenant in ctx that has been pending
// since before olderThan. An empty integrationID sweeps all integrations.
// It returns the number of submitted tasks.
func (w *ReprocessWorker) Sweep(ctx context.Context, integrationID string, olderThan time.Time, limit int) (int, error) {
	companyID, err := tenant.FromContext(ctx)
	if err != nil {
		return 0, err
	}
	log := logger.FromContextOr(ctx, w.baseLogger).With(zap.String("integration_id", integrationID))

	pending, err := w.messages.FindPending(ctx, integrationID, olderThan, limit)
	if err != nil {
		return 0, fmt.Errorf("load pending messages: %w", err)
	}
	if len(pending) == 0 {
		log.Debug("No pending messages to reprocess")
		return 0, nil
	}

	taskCtx := logger.WithLogger(tenant.WithCompanyID(context.WithoutCancel(ctx), companyID), log)
	submitted := 0
	for _, m := range pending {
		if ctx.Err() != nil {
			return submitted, ctx.Err()
		}
		if err := w.SubmitTask(ReprocessTask{Ctx: taskCtx, CompanyID: companyID, MessageID: m.ID}); err != nil {
			return submitted, err
		}
		submitted++
	}
	log.Info("Submitted pending messages for reprocessing", zap.Int("count", submitted))
	return submitted, nil
}

func (w *ReprocessWorker) processTask(task ReprocessTask) {
	log := logger.FromContextOr(task.Ctx, w.baseLogger).With(
		zap.String("task_message_id", task.MessageID),
		zap.String("task_company_id", task.CompanyID),
	)

	ctx := tenant.WithCompanyID(task.Ctx, task.CompanyID)
	if w.cfg.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.cfg.TaskTimeout)
		defer cancel()
	}

	start := time.Now()
	status := "success"

	outcome, err := w.processor.ProcessMessage(ctx, task.MessageID)
	switch {
	case err != nil:
		status = "error"
		log.Warn("Reprocess task failed", zap.Error(err))
	case outcome.Skipped:
		status = "skipped"
	case outcome.Lead != nil && outcome.Lead.Created:
		status = "lead_created"
	}

	duration := time.Since(start)
	observer.ObserveReprocessDuration(task.CompanyID, duration)
	observer.IncReprocessTasksProcessed(task.CompanyID, status)
	log.Debug("Finished reprocess task", zap.Duration("duration", duration), zap.String("final_status", status))
}

// Wait blocks until every submitted task has finished.
func (w *ReprocessWorker) Wait() {
	w.inflight.Wait()
}

// Stop gracefully shuts down the worker pool.
func (w *ReprocessWorker) Stop() {
	if w.pool != nil {
		w.baseLogger.Info("Releasing reprocess worker pool")
		start := time.Now()
		w.pool.Release()
		w.baseLogger.Info("Reprocess worker pool released", zap.Duration("duration", time.Since(start)))
	}
}

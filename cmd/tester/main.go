package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/config"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/model"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/observer"
	"gitlab.com/timkado/api/franchise-integration-hub/pkg/logger"
	"gitlab.com/timkado/api/franchise-integration-hub/pkg/utils"
	"go.uber.org/zap"
)

// target is one integration the generator delivers webhooks to.
type target struct {
	Channel       model.Channel
	IntegrationID string
	Secret        string
}

// batchTask is a batch of deliveries handled by one worker invocation.
type batchTask struct {
	Targets []target
}

const defaultBatchSize = 50

type loadgen struct {
	baseURL  string
	client   *http.Client
	payloads *payloadFactory
}

func main() {
	cfg, err := config.LoadConfig("")
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	baseURL := flag.String("base-url", fmt.Sprintf("http://localhost:%d", cfg.Server.Port), "Hub HTTP base URL")
	targetsStr := flag.String("targets", "", "Comma-separated channel:integrationId[:secret] list, e.g. telegram:int-1,vk:int-2")
	rate := flag.Int("rate", 50, "Target webhook deliveries per second (total)")
	duration := flag.Duration("duration", time.Minute, "Load test duration")
	concurrency := flag.Int("concurrency", 10, "Number of concurrent workers")
	batchSize := flag.Int("batch-size", defaultBatchSize, "Deliveries per worker batch")
	userPool := flag.Int("users", 200, "Distinct fake contacts; smaller pools exercise duplicate prevention")
	keywordsStr := flag.String("keywords", "франшиза,franchise", "Comma-separated trigger keywords mixed into message text")
	keywordRatio := flag.Float64("keyword-ratio", 0.3, "Share of messages that carry a trigger keyword")
	metricsPort := flag.Int("metrics-port", 9091, "Port for Prometheus metrics endpoint")
	logLevel := flag.String("log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Webhook Load Generator\n")
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Delivers fake channel webhooks to the integration hub HTTP API.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *batchSize <= 0 {
		*batchSize = defaultBatchSize
	}
	if *rate <= 0 {
		fmt.Println("rate must be positive")
		os.Exit(1)
	}

	if err := logger.Initialize(*logLevel); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	targets, err := parseTargets(*targetsStr)
	if err != nil {
		logger.Log.Fatal("Invalid targets", zap.Error(err))
	}

	observer.InitMetrics(true)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metricsServer := startMetricsServer(*metricsPort)
	var metricsWg sync.WaitGroup
	metricsWg.Add(1)
	go func() {
		defer metricsWg.Done()
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Log.Error("Metrics server shutdown error", zap.Error(err))
		}
	}()

	logger.Log.Info("Starting webhook load generator",
		zap.String("base_url", *baseURL),
		zap.Int("targets", len(targets)),
		zap.Int("rate_per_sec", *rate),
		zap.Duration("duration", *duration),
		zap.Int("concurrency", *concurrency),
		zap.Int("batch_size", *batchSize),
		zap.Int("users", *userPool),
	)

	lg := &loadgen{
		baseURL:  strings.TrimRight(*baseURL, "/"),
		client:   &http.Client{Timeout: 10 * time.Second},
		payloads: newPayloadFactory(*userPool, splitNonEmpty(*keywordsStr), *keywordRatio),
	}

	var wg sync.WaitGroup
	pool, err := ants.NewPoolWithFunc(*concurrency, func(data interface{}) {
		lg.runBatch(ctx, data.(batchTask), &wg)
	})
	if err != nil {
		logger.Log.Fatal("Failed to create worker pool", zap.Error(err))
	}
	defer pool.Release()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		runLoadLoop(ctx, *rate, *duration, *batchSize, targets, pool, &wg)
	}()

	select {
	case sig := <-sigChan:
		logger.Log.Info("Received termination signal, shutting down...", zap.String("signal", sig.String()))
		cancel()
		<-loopDone
	case <-loopDone:
		logger.Log.Info("Load generation duration finished")
	}

	wg.Wait()
	logger.Log.Info("All worker tasks finished")
	cancel()
	metricsWg.Wait()
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseTargets(s string) ([]target, error) {
	parts := splitNonEmpty(s)
	if len(parts) == 0 {
		return nil, fmt.Errorf("at least one channel:integrationId target is required")
	}
	targets := make([]target, 0, len(parts))
	for _, p := range parts {
		fields := strings.SplitN(p, ":", 3)
		if len(fields) < 2 || fields[1] == "" {
			return nil, fmt.Errorf("target %q: want channel:integrationId[:secret]", p)
		}
		ch, err := model.ParseChannel(fields[0])
		if err != nil {
			return nil, fmt.Errorf("target %q: %w", p, err)
		}
		t := target{Channel: ch, IntegrationID: fields[1]}
		if len(fields) == 3 {
			t.Secret = fields[2]
		}
		targets = append(targets, t)
	}
	return targets, nil
}

func startMetricsServer(port int) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Error("Failed to start Prometheus metrics server", zap.Error(err))
		}
	}()
	return server
}

// runLoadLoop paces deliveries with a ticker and hands them to the pool in batches.
func runLoadLoop(ctx context.Context, rate int, duration time.Duration, batchSize int, targets []target, pool *ants.PoolWithFunc, wg *sync.WaitGroup) {
	ticker := time.NewTicker(time.Second / time.Duration(rate))
	defer ticker.Stop()

	durationTimer := time.NewTimer(duration)
	defer durationTimer.Stop()

	counter := 0
	current := make([]target, 0, batchSize)

	submit := func(batch []target) {
		if len(batch) == 0 {
			return
		}
		wg.Add(len(batch))
		if err := pool.Invoke(batchTask{Targets: batch}); err != nil {
			logger.Log.Warn("Failed to invoke worker pool for batch", zap.Int("batch_size", len(batch)), zap.Error(err))
			wg.Add(-len(batch))
			for _, t := range batch {
				observer.IncLoadgenRequestsCompleted(string(t.Channel), "error")
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-durationTimer.C:
			submit(current)
			return
		case <-ticker.C:
			t := targets[counter%len(targets)]
			counter++
			observer.IncLoadgenRequestsAttempted(string(t.Channel))

			current = append(current, t)
			if len(current) >= batchSize {
				submit(current)
				current = make([]target, 0, batchSize)
			}
		}
	}
}

func (lg *loadgen) runBatch(ctx context.Context, task batchTask, wg *sync.WaitGroup) {
	for _, t := range task.Targets {
		func() {
			defer wg.Done()
			defer utils.RecoverWithLog(ctx, "webhook delivery")
			outcome := lg.deliver(ctx, t)
			observer.IncLoadgenRequestsCompleted(string(t.Channel), outcome)
		}()
	}
}

// deliver posts one fake webhook and classifies the hub's answer.
func (lg *loadgen) deliver(ctx context.Context, t target) string {
	body, err := lg.payloads.Build(t.Channel)
	if err != nil {
		logger.Log.Error("Failed to build payload", zap.String("channel", string(t.Channel)), zap.Error(err))
		return "error"
	}

	endpoint := fmt.Sprintf("%s/api/webhooks/%s/%s", lg.baseURL, t.Channel, url.PathEscape(t.IntegrationID))
	if t.Secret != "" {
		endpoint += "?secret=" + url.QueryEscape(t.Secret)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "error"
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := lg.client.Do(req)
	observer.ObserveLoadgenRequestDuration(string(t.Channel), time.Since(start).Seconds())
	if err != nil {
		logger.Log.Debug("Webhook delivery failed", zap.String("url", endpoint), zap.Error(err))
		return "error"
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		logger.Log.Debug("Webhook delivery got non-200", zap.String("url", endpoint), zap.Int("status", resp.StatusCode))
		return "error"
	}
	var out struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "error"
	}
	if !out.Success {
		logger.Log.Debug("Webhook rejected", zap.String("integration_id", t.IntegrationID), zap.String("reason", out.Error))
		return "rejected"
	}
	return "stored"
}

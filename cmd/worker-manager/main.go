// cmd/worker-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	awsclient "trial-matcher/internal/common/aws"
	"trial-matcher/internal/common/camunda"
	"trial-matcher/internal/common/config"
	"trial-matcher/internal/common/database"
	"trial-matcher/internal/common/logger"
	"trial-matcher/internal/common/observability"
	"trial-matcher/internal/matching/batch"
	"trial-matcher/internal/matching/diversity"
	"trial-matcher/internal/matching/evaluator"
	"trial-matcher/internal/matching/prefilter"
	"trial-matcher/internal/matching/report"
	"trial-matcher/internal/matching/rules"
	"trial-matcher/internal/notify"
	"trial-matcher/internal/store"

	// Matching Workers (2)
	mt "trial-matcher/internal/workers/matching/match-trials"
	sc "trial-matcher/internal/workers/matching/score-candidate"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New("info", "console")
		bootLog.Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.NewService(cfg.App.Name, cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()

	// Wrap zap logger with our logger interface
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting trial matcher worker manager...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	var obsOpts []observability.Option
	if cfg.Tracing.Enabled {
		obsOpts = append(obsOpts, observability.WithTracing(nil))
	}
	obs := observability.New(cfg.App.Name, obsOpts...)
	defer obs.Shutdown()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// --- Init Zeebe Client with retry ---
	zc, err := camunda.Connect(ctx, &camunda.ClientConfig{
		GatewayAddress:         cfg.Camunda.BrokerAddress,
		UsePlaintextConnection: true,
		ConnectionTimeout:      config.GetDuration(cfg.Camunda.RequestTimeout),
	}, log)
	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	zapLog.Info("Zeebe client connected successfully")

	// --- Init PostgreSQL with retry ---
	pg, err := database.NewPostgres(cfg.Database.Postgres)
	if err != nil {
		zapLog.Fatal("postgres init failed", zap.Error(err))
	}
	defer pg.Close()
	if err := database.WaitReady(ctx, "PostgreSQL", pg, 15, 2*time.Second, log); err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry ---
	rdb := database.NewRedis(cfg.Database.Redis)
	defer rdb.Close()
	if err := database.WaitReady(ctx, "Redis", rdb, 10, 2*time.Second, log); err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	zapLog.Info("Redis connected successfully")

	// --- Activity registry ---
	reg, err := loadRegistry(cfg.Registry.Path, log)
	if err != nil {
		zapLog.Fatal("activity registry invalid", zap.Error(err))
	}

	// --- Matching engine ---
	policy, err := policyFromConfig(cfg.Matching)
	if err != nil {
		zapLog.Fatal("confidence policy invalid", zap.Error(err))
	}

	deps := evaluator.Deps{
		Scorer:    rules.NewEvaluator(policy),
		Diversity: diversity.NewCalculator(cfg.Matching.MaxDiversityBonus),
		Reports:   report.NewBuilder(),
		Logger:    log,
	}
	if cfg.Matching.Explanation.Enabled {
		deps.Explainer = newExplainer(ctx, cfg.Matching.Explanation, rdb.Client, log)
		deps.ExplainTimeout = explainBudget(explainConfig(cfg.Matching.Explanation))
	}
	candidates := evaluator.New(deps)

	runnerOpts := []batch.Option{
		batch.WithRecorder(obs),
		batch.WithTracer(obs.Tracer("trial-matcher/batch")),
	}

	// --- Init Elasticsearch with retry ---
	if cfg.Matching.Prefilter.Enabled {
		esClient, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			zapLog.Fatal("elasticsearch init failed", zap.Error(err))
		}
		if err := database.WaitReady(ctx, "Elasticsearch", esClient, 15, 2*time.Second, log); err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		runnerOpts = append(runnerOpts, batch.WithPrefilter(prefilter.NewElasticsearch(
			esClient.Client,
			cfg.Matching.Prefilter.Index,
			cfg.Matching.Prefilter.EmbeddingField,
		)))
		zapLog.Info("Elasticsearch connected successfully")
	}

	runner := batch.NewRunner(candidates, batch.Config{
		MaxConcurrency:     cfg.Matching.MaxConcurrency,
		PrefilterOverfetch: cfg.Matching.PrefilterOverfetch,
	}, log, runnerOpts...)

	matchStore := store.NewPostgresStore(pg.DB, rdb.Client, store.DefaultCacheTTL, log)

	// --- Notifications ---
	var notifier mt.Notifier
	if cfg.Notifications.Enabled {
		snsClient, err := awsclient.NewSNSClient(ctx, cfg.Notifications.Region, os.Getenv("AWS_ENDPOINT_URL"))
		if err != nil {
			zapLog.Fatal("sns client init failed", zap.Error(err))
		}
		notifier = notify.NewSNSNotifier(snsClient, cfg.Notifications.TopicARN, log)
		zapLog.Info("SNS notifier configured", zap.String("topic", cfg.Notifications.TopicARN))
	}

	// --- Register Workers ---
	var workers []worker.JobWorker

	matchActivity, err := reg.Find(mt.TaskType)
	if err != nil {
		zapLog.Fatal("activity missing from registry", zap.String("taskType", mt.TaskType), zap.Error(err))
	}
	matchCfg := mt.ConfigFromApp(cfg)
	matchHandler, err := mt.NewHandler(mt.HandlerOptions{
		Config: matchCfg,
		Deps: mt.Dependencies{
			Subjects:  matchStore,
			Cache:     matchStore,
			Offerings: matchStore,
			Matches:   matchStore,
			Notifier:  notifier,
			Runner:    runner,
			Activity:  matchActivity,
		},
		Logger: log,
	})
	if err != nil {
		zapLog.Fatal("handler init failed", zap.String("taskType", mt.TaskType), zap.Error(err))
	}
	if w := camunda.StartWorker(zc.GetClient(), mt.TaskType, config.WorkerConfig{
		Enabled:       matchCfg.Enabled,
		MaxJobsActive: matchCfg.MaxJobsActive,
		Timeout:       int(matchCfg.Timeout.Milliseconds()),
	}, instrument(obs, matchHandler.Handle, log), log); w != nil {
		workers = append(workers, w)
	}

	scoreActivity, err := reg.Find(sc.TaskType)
	if err != nil {
		zapLog.Fatal("activity missing from registry", zap.String("taskType", sc.TaskType), zap.Error(err))
	}
	scoreCfg := sc.ConfigFromApp(cfg)
	scoreHandler, err := sc.NewHandler(sc.HandlerOptions{
		Config: scoreCfg,
		Deps: sc.Dependencies{
			Subjects:  matchStore,
			Offerings: matchStore,
			Matches:   matchStore,
			Evaluator: candidates,
			Activity:  scoreActivity,
		},
		Logger: log,
	})
	if err != nil {
		zapLog.Fatal("handler init failed", zap.String("taskType", sc.TaskType), zap.Error(err))
	}
	if w := camunda.StartWorker(zc.GetClient(), sc.TaskType, config.WorkerConfig{
		Enabled:       scoreCfg.Enabled,
		MaxJobsActive: scoreCfg.MaxJobsActive,
		Timeout:       int(scoreCfg.Timeout.Milliseconds()),
	}, instrument(obs, scoreHandler.Handle, log), log); w != nil {
		workers = append(workers, w)
	}

	zapLog.Info("Workers registered", zap.Int("count", len(workers)))

	// --- Health & Metrics Server ---
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	mux.HandleFunc("/ready", readyHandler(map[string]func(context.Context) error{
		"postgres": pg.Ping,
		"redis":    rdb.Ping,
		"zeebe":    zc.HealthCheck,
	}))
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.HealthPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		zapLog.Info("Health/Metrics server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")
	stop()

	for _, w := range workers {
		w.Close()
		w.AwaitClose()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping health server", zap.Error(err))
	}

	if err := zc.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped gracefully")
}

func writeStatus(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// readyHandler reports 503 until every dependency answers its ping.
func readyHandler(checks map[string]func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status := map[string]string{}
		code := http.StatusOK
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status[name] = err.Error()
				code = http.StatusServiceUnavailable
				continue
			}
			status[name] = "ok"
		}

		status["status"] = "ready"
		if code != http.StatusOK {
			status["status"] = "not ready"
		}
		writeStatus(w, code, status)
	}
}

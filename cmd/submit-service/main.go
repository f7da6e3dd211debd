package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"codearena/internal/common/cache"
	"codearena/internal/common/db"
	commonmw "codearena/internal/common/http/middleware"
	"codearena/internal/common/metrics"
	"codearena/internal/common/mq"
	"codearena/internal/common/storage"
	"codearena/internal/evaluator"
	"codearena/internal/judge/executor"
	"codearena/internal/judge/harness"
	"codearena/internal/judge/runner"
	"codearena/internal/judge/scoring"
	"codearena/internal/monitor"
	"codearena/internal/submit/controller"
	"codearena/internal/submit/repository"
	"codearena/internal/submit/service"
	"codearena/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

const defaultConfigPath = "configs/submit-service.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := run(appCfg); err != nil {
		logger.Error(context.Background(), "submit service exited", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(appCfg *AppConfig) error {
	ctx := context.Background()

	mysqlDB, err := db.NewMySQLWithConfig(&appCfg.Database)
	if err != nil {
		return fmt.Errorf("init database failed: %w", err)
	}
	defer func() {
		_ = mysqlDB.Close()
	}()

	redisCache, err := cache.NewRedisCacheWithConfig(&appCfg.Redis)
	if err != nil {
		return fmt.Errorf("init redis failed: %w", err)
	}
	defer func() {
		_ = redisCache.Close()
	}()

	mqClient, err := mq.NewKafkaQueue(appCfg.Kafka)
	if err != nil {
		return fmt.Errorf("init kafka failed: %w", err)
	}
	defer func() {
		_ = mqClient.Close()
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics, err := metrics.NewMetrics(prometheus.WrapRegistererWith(metrics.Labels(serviceName), registry))
	if err != nil {
		return fmt.Errorf("init metrics failed: %w", err)
	}

	backend, err := executor.New(appCfg.Executor, appCfg.AllowMockExecutor())
	if err != nil {
		return fmt.Errorf("init executor failed: %w", err)
	}
	if backend.Name() == executor.BackendMock {
		logger.Warn(ctx, "mock execution backend enabled, results are simulated")
	}
	backend = executor.Instrument(backend, appMetrics)

	codeEvaluator, err := evaluator.New(appCfg.Evaluator, nil)
	if err != nil {
		return fmt.Errorf("init evaluator failed: %w", err)
	}
	if codeEvaluator != nil {
		logger.Info(ctx, "code evaluator enabled", zap.String("provider", appCfg.Evaluator.Provider))
	}

	taskRepo := repository.NewTaskRepository(mysqlDB, redisCache, appCfg.Submit.TaskCacheTTL)
	submissionRepo := repository.NewSubmissionRepository(mysqlDB)
	contestRepo := repository.NewContestRepository(mysqlDB, redisCache, appCfg.Submit.SettingsCacheTTL)
	activityRepo := repository.NewActivityRepository(mysqlDB)

	hooks, err := buildHooks(ctx, appCfg, activityRepo, mqClient)
	if err != nil {
		return err
	}

	submitService, err := service.NewSubmitService(service.Config{
		Tasks:          taskRepo,
		Submissions:    submissionRepo,
		Contests:       contestRepo,
		Progress:       activityRepo,
		Transactor:     mysqlDB,
		Cache:          redisCache,
		Runner:         runner.NewRunner(backend, harness.NewWrapper(nil), appCfg.Runner),
		Scoring:        scoring.NewEngine(codeEvaluator, appCfg.Submit.ScoringTimeout, appMetrics),
		Metrics:        appMetrics,
		Hooks:          hooks,
		MaxCodeBytes:   appCfg.Submit.MaxCodeBytes,
		IdempotencyTTL: appCfg.Submit.IdempotencyTTL,
		LockTTL:        appCfg.Submit.LockTTL,
		HistoryLimit:   appCfg.Submit.HistoryLimit,
		MaxCustomCases: appCfg.Submit.MaxCustomCases,
		RateLimit:      appCfg.Submit.RateLimit,
		Timeouts:       appCfg.Submit.Timeouts,
	})
	if err != nil {
		return fmt.Errorf("init submit service failed: %w", err)
	}

	var hub *monitor.Hub
	if appCfg.Monitor.Enabled {
		hub = monitor.NewHub(appCfg.Monitor.Hub)
		defer hub.Close()
		if err := hub.Subscribe(ctx, mqClient, appCfg.Submit.NotifyTopic, appCfg.Monitor.ConsumerGroup); err != nil {
			return fmt.Errorf("subscribe monitor topic failed: %w", err)
		}
		if err := mqClient.Start(); err != nil {
			return fmt.Errorf("start kafka consumer failed: %w", err)
		}
		defer func() {
			_ = mqClient.Stop()
		}()
	}

	verifier := commonmw.NewTokenVerifier(appCfg.Auth.JWTSecret, appCfg.Auth.JWTIssuer)
	httpServer := buildHTTPServer(appCfg, controller.NewSubmitController(submitService), hub, verifier, registry)
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("init http listener failed: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "submit http server started",
			zap.String("addr", appCfg.Server.Addr),
			zap.String("executor", backend.Name()),
			zap.Bool("ai_evaluation", codeEvaluator != nil),
		)
		errCh <- httpServer.Serve(listener)
	}()

	shutdownCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "http server stopped", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		logger.Info(ctx, "shutdown signal received")
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(timeoutCtx); err != nil {
		logger.Error(ctx, "http server shutdown failed", zap.Error(err))
	}
	submitService.Wait()
	return nil
}

func buildHooks(ctx context.Context, appCfg *AppConfig, activityRepo repository.ActivityRepository, producer mq.Producer) ([]service.PostCommitHook, error) {
	var hooks []service.PostCommitHook
	if appCfg.Submit.ActivityLog {
		hooks = append(hooks, service.NewActivityHook(activityRepo))
	}
	hooks = append(hooks, service.NewNotifyHook(producer, appCfg.Submit.NotifyTopic))

	if appCfg.Submit.Archive.Enabled {
		objStorage, err := storage.NewMinIOStorage(appCfg.MinIO)
		if err != nil {
			return nil, fmt.Errorf("init minio failed: %w", err)
		}
		if err := objStorage.EnsureBucket(ctx, appCfg.Submit.Archive.Bucket, appCfg.MinIO.Region); err != nil {
			return nil, fmt.Errorf("ensure archive bucket failed: %w", err)
		}
		hooks = append(hooks, service.NewArchiveHook(objStorage, appCfg.Submit.Archive.Bucket, appCfg.Submit.Archive.Prefix))
	}
	return hooks, nil
}

func buildHTTPServer(appCfg *AppConfig, submitController *controller.SubmitController, hub *monitor.Hub, verifier *commonmw.TokenVerifier, gatherer prometheus.Gatherer) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceContextMiddleware())
	router.Use(commonmw.RequestLogger("/healthz", appCfg.Metrics.Path))
	router.Use(commonmw.CORSMiddleware(appCfg.Server.CORS))

	router.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	if appCfg.Metrics.Enabled {
		router.GET(appCfg.Metrics.Path, metrics.Handler(gatherer))
	}
	submitController.RegisterRoutes(router, verifier)
	if hub != nil {
		hub.RegisterRoutes(router, verifier)
	}

	return &http.Server{
		Addr:         appCfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  appCfg.Server.ReadTimeout,
		WriteTimeout: appCfg.Server.WriteTimeout,
		IdleTimeout:  appCfg.Server.IdleTimeout,
	}
}

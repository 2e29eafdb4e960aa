package main

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"

	"github.com/wolfman30/heitor/cmd/mainconfig"
	"github.com/wolfman30/heitor/internal/api/router"
	"github.com/wolfman30/heitor/internal/app/bootstrap"
	"github.com/wolfman30/heitor/internal/assistant"
	appconfig "github.com/wolfman30/heitor/internal/config"
	"github.com/wolfman30/heitor/internal/conversation"
	"github.com/wolfman30/heitor/internal/dispatch"
	"github.com/wolfman30/heitor/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/heitor/internal/http/middleware"
	"github.com/wolfman30/heitor/internal/observability/metrics"
	"github.com/wolfman30/heitor/internal/reports"
	"github.com/wolfman30/heitor/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	logger.Info("starting heitor",
		"env", cfg.Env,
		"store", cfg.StoreBackend,
		"queue", cfg.QueueBackend,
		"llm", cfg.LLMProvider,
	)

	startCtx, startCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startCancel()

	awsCfg, err := mainconfig.LoadAWSConfig(startCtx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}
	clients := mainconfig.AWSClients(awsCfg, cfg)

	store, closeStore, err := bootstrap.BuildStore(startCtx, cfg, clients, logger)
	if err != nil {
		logger.Error("failed to build conversation store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	engine := conversation.NewEngine(store, logger,
		conversation.WithLimits(cfg.Limits()),
		conversation.WithSaveAttempts(cfg.SaveAttempts),
		conversation.WithMetrics(metrics.NewEngineMetrics(prometheus.DefaultRegisterer)),
		conversation.WithTracer(otel.Tracer("heitor/conversation")),
		conversation.WithAssistantName(cfg.AssistantName),
	)

	completer, closeCompleter, err := bootstrap.BuildCompleter(startCtx, cfg, clients, logger)
	if err != nil {
		logger.Error("failed to build language model", "error", err)
		os.Exit(1)
	}
	defer closeCompleter()

	seed := cfg.RandomSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	responder := assistant.NewResponder(engine, completer, logger,
		assistant.WithPersona(assistant.DefaultPersona(cfg.AssistantName, cfg.OwnerName)),
		assistant.WithRand(rand.New(rand.NewSource(seed))),
		assistant.WithAudioChance(cfg.AudioReplyChance),
	)

	dispatchMetrics := metrics.NewDispatchMetrics(prometheus.DefaultRegisterer)
	publisher, worker, err := bootstrap.BuildDispatch(cfg, clients, responder, dispatch.NewLogReplySender(logger), dispatchMetrics, logger)
	if err != nil {
		logger.Error("failed to build dispatch", "error", err)
		os.Exit(1)
	}

	reporter := reports.NewReporter(engine, cfg.ReportLocation())
	var scheduler *reports.Scheduler
	if cfg.OwnerEmail != "" {
		scheduler = reports.NewScheduler(reporter, bootstrap.BuildEmailSender(cfg, clients, logger), cfg.OwnerEmail, cfg.DailyReportHour, logger,
			reports.WithDigestMetrics(dispatchMetrics),
			reports.WithRecipientName(cfg.OwnerName),
		)
	} else {
		logger.Warn("OWNER_EMAIL not set; digest emails disabled")
	}

	var rateLimiter *httpmiddleware.RateLimiter
	if cfg.InboundRateLimit > 0 {
		rateLimiter = httpmiddleware.NewRateLimiter(cfg.InboundRateLimit, cfg.InboundRateBurst)
	}
	if cfg.AdminJWTSecret == "" {
		logger.Warn("ADMIN_JWT_SECRET not set; admin routes will reject every request")
	}

	r := router.New(&router.Config{
		Logger:             logger,
		InboundMessages:    handlers.NewInboundMessagesHandler(publisher, logger),
		AdminConversations: handlers.NewAdminConversationsHandler(engine, logger),
		AdminReports:       handlers.NewAdminReportsHandler(reporter, cfg.ReportLocation(), logger),
		AdminAuthSecret:    cfg.AdminJWTSecret,
		MetricsHandler:     promhttp.Handler(),
		InboundRateLimiter: rateLimiter,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	worker.Start(ctx)

	var background sync.WaitGroup
	if scheduler != nil {
		background.Add(1)
		go func() {
			defer background.Done()
			scheduler.Start(ctx)
		}()
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down heitor...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	cancel()

	waitCh := make(chan struct{})
	go func() {
		worker.Wait()
		background.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info("heitor stopped")
	case <-shutdownCtx.Done():
		logger.Error("shutdown timed out", "error", shutdownCtx.Err())
	}
}

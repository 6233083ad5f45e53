// Command rounds is the composition root: the one place that imports
// both the core domain packages and every concrete adapter, wires them
// together per the loaded config, and dispatches to the selected run
// mode (daemon, cli, or webhook).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jordigilh/rounds/internal/config"
	"github.com/jordigilh/rounds/internal/database"
	apperrors "github.com/jordigilh/rounds/internal/errors"
	"github.com/jordigilh/rounds/pkg/cli"
	"github.com/jordigilh/rounds/pkg/diagnosis"
	"github.com/jordigilh/rounds/pkg/fingerprint"
	"github.com/jordigilh/rounds/pkg/investigator"
	"github.com/jordigilh/rounds/pkg/management"
	"github.com/jordigilh/rounds/pkg/metrics"
	"github.com/jordigilh/rounds/pkg/notification"
	"github.com/jordigilh/rounds/pkg/poll"
	"github.com/jordigilh/rounds/pkg/ports"
	"github.com/jordigilh/rounds/pkg/scheduler"
	"github.com/jordigilh/rounds/pkg/store"
	"github.com/jordigilh/rounds/pkg/tagpolicy"
	"github.com/jordigilh/rounds/pkg/telemetry"
	"github.com/jordigilh/rounds/pkg/tracing"
	"github.com/jordigilh/rounds/pkg/triage"
	"github.com/jordigilh/rounds/pkg/webhook"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	configPath := "config.yaml"
	if len(args) > 0 && args[0] == "--config" {
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "--config requires a path argument")
			return 2
		}
		configPath = args[1]
		args = args[2:]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}

	logger, syncLogger := newLogger(cfg.Logging.Level, cfg.Logging.Format)
	defer syncLogger()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	telemetryPort, err := buildTelemetry(cfg.Telemetry)
	if err != nil {
		logger.Error(err, "failed to initialize telemetry adapter")
		return 1
	}

	signatureStore, err := buildStore(ctx, cfg.Store)
	if err != nil {
		logger.Error(err, "failed to initialize signature store")
		return 1
	}

	diagnosisPort, err := buildDiagnosis(ctx, cfg.Diagnosis)
	if err != nil {
		logger.Error(err, "failed to initialize diagnosis adapter")
		return 1
	}

	notificationPort, err := buildNotification(cfg.Notification)
	if err != nil {
		logger.Error(err, "failed to initialize notification adapter")
		return 1
	}

	tagPolicy, err := tagpolicy.Compile(ctx, tagpolicy.DefaultModule)
	if err != nil {
		logger.Error(err, "failed to compile tag policy")
		return 1
	}

	metricsReg := metrics.NewMetrics()
	tracer := tracing.New()

	inv := &investigator.Investigator{
		Telemetry:    telemetryPort,
		Store:        signatureStore,
		Diagnosis:    diagnosisPort,
		Notification: notificationPort,
		Triage:       triage.NewDefault(),
		Logger:       logger.WithName("investigator"),
		CodebasePath: os.Getenv("ROUNDS_CODEBASE_PATH"),
		Tracer:       tracer,
	}

	pollService := &poll.Service{
		Telemetry:      telemetryPort,
		Store:          signatureStore,
		Investigator:   inv,
		Fingerprinter:  fingerprint.New(),
		Triage:         triage.NewDefault(),
		TagPolicy:      tagPolicy,
		Logger:         logger.WithName("poll"),
		LookbackWindow: time.Duration(cfg.Poll.WindowMinutes) * time.Minute,
		Metrics:        metricsReg,
		Tracer:         tracer,
	}

	managementService := &management.Service{
		Store:        signatureStore,
		Telemetry:    telemetryPort,
		Investigator: inv,
		Logger:       logger.WithName("management"),
	}

	switch cfg.RunMode {
	case "daemon":
		return runDaemon(ctx, cfg, configPath, pollService, signatureStore, notificationPort, logger)
	case "webhook":
		return runWebhook(ctx, cfg, pollService, managementService, metricsReg, logger)
	case "cli":
		return cli.Run(ctx, args, os.Stdout, os.Stderr, pollService, managementService)
	default:
		fmt.Fprintf(os.Stderr, "unknown run mode %q (expected daemon, webhook, or cli)\n", cfg.RunMode)
		return 1
	}
}

func runDaemon(ctx context.Context, cfg *config.Config, configFilePath string, pollService ports.PollPort, signatureStore ports.SignatureStorePort, notificationPort ports.NotificationPort, logger logr.Logger) int {
	var budgetLimit *float64
	if cfg.Diagnosis.DailyBudgetUSD > 0 {
		limit := cfg.Diagnosis.DailyBudgetUSD
		budgetLimit = &limit
	}

	sched := scheduler.New(pollService, cfg.Poll.Interval, budgetLimit, logger.WithName("scheduler"))
	sched.Store = signatureStore
	sched.Notification = notificationPort

	watcher, err := config.Watch(configFilePath, func(reloaded *config.Config, watchErr error) {
		if watchErr != nil {
			logger.Error(watchErr, "config reload failed, keeping last-known-good settings")
			return
		}
		sched.SetPollInterval(reloaded.Poll.Interval)
		if reloaded.Diagnosis.DailyBudgetUSD > 0 {
			limit := reloaded.Diagnosis.DailyBudgetUSD
			sched.SetBudgetLimit(&limit)
		} else {
			sched.SetBudgetLimit(nil)
		}
		logger.Info("config reloaded", "poll_interval", reloaded.Poll.Interval, "daily_budget_usd", reloaded.Diagnosis.DailyBudgetUSD)
	})
	if err != nil {
		logger.Error(err, "failed to start config watcher, continuing without hot-reload")
	} else {
		defer watcher.Close()
	}

	if err := sched.Start(ctx); err != nil {
		logger.Error(err, "scheduler exited with error")
		return 1
	}
	return 0
}

func runWebhook(ctx context.Context, cfg *config.Config, pollService ports.PollPort, managementService ports.ManagementPort, metricsReg *metrics.Metrics, logger logr.Logger) int {
	router := webhook.NewRouterWithMetrics(pollService, managementService, cfg.Webhook.RequireAuth, cfg.Webhook.AuthToken, metricsReg)

	srv := &http.Server{
		Addr:         cfg.Webhook.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("webhook server listening", "port", cfg.Webhook.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error(err, "webhook server shutdown error")
			return 1
		}
		return 0
	case err := <-errCh:
		if err != nil {
			logger.Error(err, "webhook server failed")
			return 1
		}
		return 0
	}
}

func buildTelemetry(cfg config.TelemetryConfig) (ports.TelemetryPort, error) {
	switch cfg.Backend {
	case "signoz", "":
		return telemetry.NewSigNozClient(cfg.Endpoint, cfg.AuthToken, cfg.Timeout), nil
	case "jaeger":
		return telemetry.NewJaegerClient(cfg.Endpoint, cfg.AuthToken, cfg.Timeout), nil
	default:
		return nil, apperrors.New(apperrors.ErrorTypeValidation, fmt.Sprintf("unknown telemetry backend %q", cfg.Backend))
	}
}

func buildStore(ctx context.Context, cfg config.StoreConfig) (ports.SignatureStorePort, error) {
	dbCfg := database.DefaultConfig()
	dbCfg.Host = cfg.Host
	dbCfg.Port = cfg.Port
	dbCfg.User = cfg.User
	dbCfg.Password = cfg.Password
	dbCfg.Database = cfg.Database
	dbCfg.SSLMode = cfg.SSLMode
	if err := dbCfg.Validate(); err != nil {
		return nil, err
	}

	pg, err := store.Open(ctx, dbCfg.ConnectionString())
	if err != nil {
		return nil, err
	}

	var base ports.SignatureStorePort = pg
	if cfg.RedisAddr != "" {
		base = store.NewRedisCache(base, cfg.RedisAddr, cfg.CacheTTL)
	}
	return base, nil
}

func buildDiagnosis(ctx context.Context, cfg config.DiagnosisConfig) (ports.DiagnosisPort, error) {
	switch cfg.Backend {
	case "anthropic", "":
		apiKey := os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, apperrors.New(apperrors.ErrorTypeValidation, "ANTHROPIC_API_KEY must be set for the anthropic diagnosis backend")
		}
		return diagnosis.NewAnthropicDiagnoser(apiKey, cfg.Model, cfg.MaxTokens, cfg.PerCallBudgetUSD), nil
	case "bedrock":
		return diagnosis.NewBedrockDiagnoser(ctx, cfg.AWSRegion, cfg.Model, cfg.MaxTokens, cfg.Temperature, cfg.PerCallBudgetUSD)
	default:
		return nil, apperrors.New(apperrors.ErrorTypeValidation, fmt.Sprintf("unknown diagnosis backend %q", cfg.Backend))
	}
}

func buildNotification(cfg config.NotificationConfig) (ports.NotificationPort, error) {
	switch cfg.Backend {
	case "stdout", "":
		return notification.NewStdoutNotifier(false), nil
	case "markdown":
		return notification.NewMarkdownNotifier(cfg.MarkdownDir)
	case "slack":
		return notification.NewSlackNotifier(cfg.SlackWebhookURL, cfg.SlackChannel), nil
	default:
		return nil, apperrors.New(apperrors.ErrorTypeValidation, fmt.Sprintf("unknown notification backend %q", cfg.Backend))
	}
}

func newLogger(level, format string) (logr.Logger, func() error) {
	zapLevel := zapcore.InfoLevel
	_ = zapLevel.UnmarshalText([]byte(level))

	var zapCfg zap.Config
	if format == "text" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(zapLevel)

	zapLogger, err := zapCfg.Build()
	if err != nil {
		zapLogger = zap.NewNop()
	}

	return zapr.NewLogger(zapLogger), zapLogger.Sync
}

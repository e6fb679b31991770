package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"raine/internal/auth"
	"raine/internal/config"
	"raine/internal/constants"
	"raine/internal/database"
	"raine/internal/middleware"
	"raine/internal/models"
	"raine/internal/ratelimit"
	"raine/internal/retry"
	"raine/internal/service"
	"raine/internal/tracing"
	"raine/pkg/push"

	"github.com/sirupsen/logrus"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// CLI flags
	verbose    = flag.Bool("verbose", false, "Enable verbose logging (includes sensitive information)")
	configPath = flag.String("config", "config.json", "Path to configuration file")
	version    = flag.Bool("version", false, "Show version information")
)

const (
	jobRetryQueue = "retry_queue"
	jobCleanup    = "cleanup"
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("Raine %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func run(ctx context.Context) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting Raine")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	configureLogLevel(logger, cfg.LogLevel, *verbose)

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing, logger)
	if err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	// Database startup is retried with exponential backoff
	var db *database.Database
	dbBackoff := retry.FromConfig(cfg.Retry)
	dbBackoff.MaxAttempts = constants.DefaultDatabaseRetryAttempts
	err = retry.NewBackoff(dbBackoff).Retry(ctx, func() error {
		var initErr error
		db, initErr = database.New(ctx, cfg.Database.Path, database.Options{
			EncryptionSecret: cfg.Database.EncryptionSecret,
			BusyTimeoutMs:    cfg.Database.BusyTimeoutMs,
			MaxOpenConns:     cfg.Database.MaxOpenConns,
		})
		if initErr != nil {
			logger.Warnf("Failed to initialize database: %v", initErr)
		}
		return initErr
	})
	if err != nil {
		return fmt.Errorf("failed to initialize database after retries: %w", err)
	}
	defer db.Close()

	sender, err := newSender(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create push sender: %w", err)
	}

	application, err := newApp(cfg, db, sender, logger)
	if err != nil {
		return err
	}

	scheduler, err := newScheduler(cfg, application, logger)
	if err != nil {
		return err
	}
	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		scheduler.Start(ctx)
	}()

	throttle := middleware.NewIPRateLimiter(cfg.Server.RequestsPerSecond, cfg.Server.Burst)
	throttle.StartCleanup(ctx, 5*time.Minute)

	server := NewServer(cfg, application.services, db, auth.NewJWTVerifier(cfg.Auth), throttle, logger)
	serverErrCh := make(chan error, constants.ServerErrorChannelSize)
	go func() {
		if err := server.Start(); err != nil {
			serverErrCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serverErrCh:
		logger.Error(err)
		scheduler.Stop()
		<-schedulerDone
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeoutSec)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}

	scheduler.Stop()
	select {
	case <-schedulerDone:
	case <-shutdownCtx.Done():
		logger.Warn("Timed out waiting for scheduled jobs to finish")
	}

	logger.Info("Server shutdown completed")
	return nil
}

func configureLogLevel(logger *logrus.Logger, level string, verbose bool) {
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
		logger.Info("Verbose logging enabled - sensitive information will be logged")
		return
	}
	if level == "" {
		logger.SetLevel(logrus.InfoLevel)
		return
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		logger.Warnf("Invalid log level %q, defaulting to info", level)
		logger.SetLevel(logrus.InfoLevel)
		return
	}
	logger.SetLevel(parsed)
}

// newSender returns the FCM client when a project is configured and a
// logging sender otherwise.
func newSender(cfg *models.Config, logger *logrus.Logger) (push.Sender, error) {
	if strings.TrimSpace(cfg.Push.ProjectID) == "" {
		logger.Warn("Push project not configured, notifications will only be logged")
		return push.NewLogSender(logger), nil
	}
	return push.NewClient(cfg.Push, retry.FromConfig(cfg.Retry), logger)
}

// app holds the wired services.
type app struct {
	services Services
	retries  *service.RetryProcessor
	sweeper  *service.CleanupSweeper
}

func newApp(cfg *models.Config, db *database.Database, sender push.Sender, logger *logrus.Logger) (*app, error) {
	dispatcher, err := service.NewDispatcher(db, sender, cfg.Notifications, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatcher: %w", err)
	}
	handler := service.NewMessageEventHandler(db, dispatcher, logger)
	limiter := ratelimit.NewLimiter(db, logger)
	userNotifier := service.NewUserNotifier(db, sender, logger)

	return &app{
		services: Services{
			Accounts:  service.NewAccountService(db, logger),
			Messages:  handler,
			Callables: service.NewCallableService(db, limiter, handler, logger),
			Billing:   service.NewBillingService(db, userNotifier, cfg.Billing, logger),
		},
		retries: service.NewRetryProcessor(db, dispatcher, cfg.RetryQueue, logger),
		sweeper: service.NewCleanupSweeper(db, cfg.Cleanup, logger),
	}, nil
}

func newScheduler(cfg *models.Config, a *app, logger *logrus.Logger) (*service.Scheduler, error) {
	loc, err := time.LoadLocation(cfg.Notifications.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid scheduler timezone: %w", err)
	}
	scheduler := service.NewScheduler(loc, logger)

	jobs := []service.Job{
		{
			Name:     jobRetryQueue,
			Schedule: cfg.RetryQueue.Schedule,
			Timeout:  time.Duration(cfg.RetryQueue.JobTimeout) * time.Second,
			Run: func(ctx context.Context) error {
				_, err := a.retries.ProcessQueue(ctx)
				return err
			},
		},
		{
			Name:     jobCleanup,
			Schedule: cfg.Cleanup.Schedule,
			Timeout:  time.Duration(cfg.Cleanup.JobTimeout) * time.Second,
			Run: func(ctx context.Context) error {
				report := a.sweeper.Run(ctx)
				if len(report.Errors) > 0 {
					return fmt.Errorf("cleanup sweeps failed: %s", strings.Join(report.Errors, ", "))
				}
				return nil
			},
		},
	}
	for _, job := range jobs {
		if err := scheduler.AddJob(job); err != nil {
			return nil, err
		}
	}
	return scheduler, nil
}

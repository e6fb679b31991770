package service

import (
	"context"
	"time"

	"raine/internal/constants"
	"raine/internal/metrics"
	"raine/internal/models"

	"github.com/sirupsen/logrus"
)

// SweepReport holds the rows removed by each sweep. Errors lists the sweeps
// that failed.
type SweepReport struct {
	Devices    int
	Events     int
	Typing     int
	RateLimits int
	Webhooks   int
	Errors     []string
}

// CleanupSweeper deletes expired devices, markers, typing rows and rate
// limit records.
type CleanupSweeper struct {
	store  SweepStore
	cfg    models.CleanupConfig
	logger *logrus.Logger
	now    func() time.Time
}

func NewCleanupSweeper(store SweepStore, cfg models.CleanupConfig, logger *logrus.Logger) *CleanupSweeper {
	if cfg.DeviceRetentionDays <= 0 {
		cfg.DeviceRetentionDays = constants.DefaultDeviceRetentionDays
	}
	if cfg.EventRetentionDays <= 0 {
		cfg.EventRetentionDays = constants.DefaultEventRetentionDays
	}
	if cfg.WebhookRetentionDays <= 0 {
		cfg.WebhookRetentionDays = constants.DefaultWebhookRetentionDays
	}
	if cfg.TypingTTLSec <= 0 {
		cfg.TypingTTLSec = constants.DefaultTypingTTLSec
	}
	if cfg.RateLimitRetentionHours <= 0 {
		cfg.RateLimitRetentionHours = constants.DefaultRateLimitRetentionHours
	}
	if cfg.BatchSize <= 0 || cfg.BatchSize > constants.MaxBatchWriteSize {
		cfg.BatchSize = constants.MaxBatchWriteSize
	}
	return &CleanupSweeper{store: store, cfg: cfg, logger: logger, now: time.Now}
}

// Run executes every sweep. A failing sweep is logged and the rest still run.
func (c *CleanupSweeper) Run(ctx context.Context) *SweepReport {
	now := c.now()
	day := 24 * time.Hour
	report := &SweepReport{}

	sweeps := []struct {
		name  string
		count *int
		run   func() (int, error)
	}{
		{"devices", &report.Devices, func() (int, error) {
			return c.store.DeleteStaleDevices(ctx, now.Add(-time.Duration(c.cfg.DeviceRetentionDays)*day), c.cfg.BatchSize)
		}},
		{"processed_events", &report.Events, func() (int, error) {
			return c.store.DeleteProcessedEventsBefore(ctx, now.Add(-time.Duration(c.cfg.EventRetentionDays)*day), c.cfg.BatchSize)
		}},
		{"typing_indicators", &report.Typing, func() (int, error) {
			return c.store.DeleteTypingBefore(ctx, now.Add(-time.Duration(c.cfg.TypingTTLSec)*time.Second))
		}},
		{"rate_limits", &report.RateLimits, func() (int, error) {
			return c.store.DeleteRateLimitsBefore(ctx, now.Add(-time.Duration(c.cfg.RateLimitRetentionHours)*time.Hour), c.cfg.BatchSize)
		}},
		{"processed_webhooks", &report.Webhooks, func() (int, error) {
			return c.store.DeleteProcessedWebhooksBefore(ctx, now.Add(-time.Duration(c.cfg.WebhookRetentionDays)*day), c.cfg.BatchSize)
		}},
	}

	for _, sweep := range sweeps {
		log := c.logger.WithField(LogFieldOperation, "cleanup_"+sweep.name)
		n, err := sweep.run()
		if err != nil {
			log.WithError(err).Error("Failed to run cleanup sweep")
			report.Errors = append(report.Errors, sweep.name)
			continue
		}
		*sweep.count = n
		if n > 0 {
			metrics.AddToCounter(metrics.CleanupDeleted, float64(n), map[string]string{"sweep": sweep.name}, "Rows removed by the cleanup sweeper")
		}
		log.WithField(LogFieldCount, n).Info("Cleanup sweep completed")
	}
	return report
}

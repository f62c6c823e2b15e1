package jobs

import (
	"log/slog"
	"time"

	"novasite/internal/config"
	"novasite/internal/database"
	"novasite/internal/newsletter"
	"novasite/internal/tracking"
)

const sentDispatchRetention = 30 * 24 * time.Hour

// CleanupJob removes queued page views that could never be delivered and
// dispatch rows that already went out. Keeps the local database small and
// avoids retaining per-visitor data longer than needed.
type CleanupJob struct {
	dbManager *database.DBManager
	logger    *slog.Logger
	cfg       *config.Config
}

func NewCleanupJob(dbManager *database.DBManager, logger *slog.Logger, cfg *config.Config) *CleanupJob {
	return &CleanupJob{
		dbManager: dbManager,
		logger:    logger,
		cfg:       cfg,
	}
}

func (j *CleanupJob) Run() error {
	retention := time.Duration(j.cfg.PageViewQueueRetentionDays) * 24 * time.Hour

	j.logger.Info("Starting cleanup of stale queued page views",
		slog.Int("retention_days", j.cfg.PageViewQueueRetentionDays))

	deleted, err := tracking.PurgeStaleQueued(j.dbManager, j.logger, retention)
	if err != nil {
		j.logger.Error("Failed to purge stale queued page views", slog.Any("error", err))
		return err
	}
	if deleted > 0 {
		j.logger.Info("Purged stale queued page views", slog.Int64("deleted_count", deleted))
	}

	if err := newsletter.PurgeSent(j.dbManager, j.logger, sentDispatchRetention); err != nil {
		j.logger.Error("Failed to purge sent newsletter dispatches", slog.Any("error", err))
		return err
	}

	return nil
}

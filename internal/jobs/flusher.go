package jobs

import (
	"context"
	"log/slog"
	"time"

	"novasite/internal/cms"
	"novasite/internal/database"
	"novasite/internal/tracking"
)

// sessions younger than this still receive page views; retrying them early
// would just split one visit into two payloads
const flushGracePeriod = 2 * time.Minute

// FlushJob retries delivery of page views that an earlier beacon-time flush
// left queued, typically because the content service was unreachable.
type FlushJob struct {
	dbManager *database.DBManager
	client    *cms.Client
	logger    *slog.Logger
}

func NewFlushJob(dbManager *database.DBManager, client *cms.Client, logger *slog.Logger) *FlushJob {
	return &FlushJob{
		dbManager: dbManager,
		client:    client,
		logger:    logger,
	}
}

// Run flushes every session with queued page views older than the grace
// period. A session that fails to flush stays queued for the next run.
func (j *FlushJob) Run() error {
	db := j.dbManager.GetConnection()

	visits, err := tracking.SessionsWithQueuedViews(db, flushGracePeriod)
	if err != nil {
		j.logger.Error("Failed to find sessions with queued page views", slog.Any("error", err))
		return err
	}

	if len(visits) == 0 {
		j.logger.Debug("No queued page views to flush")
		return nil
	}

	j.logger.Info("Flushing queued page views", slog.Int("sessions", len(visits)))

	flushed := 0
	for _, visit := range visits {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if tracking.SendPageViews(ctx, j.dbManager, j.logger, j.client, visit) {
			flushed++
		}
		cancel()
	}

	j.logger.Info("Page view flush finished",
		slog.Int("flushed", flushed),
		slog.Int("remaining", len(visits)-flushed))

	return nil
}

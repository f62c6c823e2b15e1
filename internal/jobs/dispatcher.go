package jobs

import (
	"context"
	"log/slog"
	"time"

	"novasite/internal/cms"
	"novasite/internal/database"
	"novasite/internal/newsletter"
)

// DispatchJob drains the newsletter dispatch queue.
type DispatchJob struct {
	dbManager *database.DBManager
	client    *cms.Client
	logger    *slog.Logger
}

func NewDispatchJob(dbManager *database.DBManager, client *cms.Client, logger *slog.Logger) *DispatchJob {
	return &DispatchJob{
		dbManager: dbManager,
		client:    client,
		logger:    logger,
	}
}

func (j *DispatchJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := newsletter.DispatchPending(ctx, j.dbManager, j.logger, j.client); err != nil {
		j.logger.Error("Newsletter dispatch run failed", slog.Any("error", err))
		return err
	}
	return nil
}

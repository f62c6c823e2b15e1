package http

import (
	"time"

	"log/slog"

	"github.com/karloscodes/cartridge"

	"novasite/internal/newsletter"
	"novasite/internal/tracking"
)

// HealthStatus is the health check response. The queue depths let an
// operator spot a content-service outage from the outside: both grow when
// flushes and dispatches stop going through.
type HealthStatus struct {
	Status          string    `json:"status"`
	Timestamp       time.Time `json:"timestamp"`
	DBStatus        string    `json:"db_status"`
	QueuedPageViews int64     `json:"queued_page_views"`
	QueuedDispatch  int64     `json:"queued_dispatches"`
}

// HealthIndexAction handles the health check endpoint
func HealthIndexAction(ctx *cartridge.Context) error {
	health := HealthStatus{
		Status:    "ok",
		Timestamp: time.Now(),
		DBStatus:  "ok",
	}

	db := ctx.DBManager.GetConnection()
	if db == nil {
		health.DBStatus = "error"
		ctx.Logger.Error("Database connection unavailable")
	} else {
		sqlDB, err := db.DB()
		if err != nil || sqlDB.Ping() != nil {
			health.DBStatus = "error"
			ctx.Logger.Error("Database ping failed", slog.Any("error", err))
		} else {
			db.Model(&tracking.QueuedPageView{}).Count(&health.QueuedPageViews)
			db.Model(&newsletter.Dispatch{}).
				Where("status = ?", newsletter.StatusPending).
				Count(&health.QueuedDispatch)
		}
	}

	if health.DBStatus != "ok" {
		health.Status = "degraded"
	}

	return ctx.JSON(health)
}

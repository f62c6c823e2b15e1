// Package tracking buffers page-view events per visitor session and flushes
// them to the Content API. Delivery is at-least-once: the buffer is cleared
// only after a successful POST, and nothing here guards against two
// overlapping flushes of the same session.
package tracking

import (
	"context"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"novasite/internal/cms"
	"novasite/internal/pkg/geoip"
	"novasite/internal/pkg/useragent"
)

// QueuedPageView is one buffered navigation event, ordered and scoped to a
// visitor session. Rows are destroyed once successfully flushed, or retained
// for retry when the flush fails.
type QueuedPageView struct {
	ID        uint   `gorm:"primaryKey"`
	SessionID string `gorm:"index;size:36;not null"`
	VisitorID string `gorm:"size:36;not null"`
	Path      string `gorm:"not null"`
	Title     string
	Timestamp time.Time `gorm:"not null"`
	CreatedAt time.Time `gorm:"index"`
}

// Visit carries the per-request visitor context collected at the boundary.
type Visit struct {
	VisitorID   string
	SessionID   string
	UserAgent   string
	Referrer    string
	LandingPath string
	IPAddress   string
}

// TrackPageView appends an event to the session buffer and returns it. No
// network call happens here.
func TrackPageView(dbManager cartridge.DBManager, logger *slog.Logger, visit Visit, path, title string) (cms.PageView, error) {
	event := cms.PageView{
		Path:      path,
		Title:     title,
		Timestamp: time.Now().UTC(),
	}

	row := &QueuedPageView{
		SessionID: visit.SessionID,
		VisitorID: visit.VisitorID,
		Path:      event.Path,
		Title:     event.Title,
		Timestamp: event.Timestamp,
		CreatedAt: time.Now().UTC(),
	}

	db := dbManager.GetConnection()
	err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Create(row).Error
	})
	if err != nil {
		logger.Error("Failed to buffer page view",
			slog.String("session_id", visit.SessionID),
			slog.Any("error", err))
		return event, err
	}
	return event, nil
}

// BufferedPageViews returns the session's buffer in append order.
func BufferedPageViews(db *gorm.DB, sessionID string) ([]QueuedPageView, error) {
	var rows []QueuedPageView
	if err := db.Where("session_id = ?", sessionID).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// BuildVisitorPayload assembles the tracking submission: identity ids, the
// coarse browser/device/OS classification, optional GeoIP country, and any
// buffered page views.
func BuildVisitorPayload(visit Visit, views []QueuedPageView) cms.VisitorPayload {
	classification := useragent.Classify(visit.UserAgent)

	pageViews := make([]cms.PageView, len(views))
	for i, v := range views {
		pageViews[i] = cms.PageView{Path: v.Path, Title: v.Title, Timestamp: v.Timestamp}
	}

	return cms.VisitorPayload{
		VisitorID:   visit.VisitorID,
		SessionID:   visit.SessionID,
		UserAgent:   visit.UserAgent,
		Referrer:    visit.Referrer,
		LandingPath: visit.LandingPath,
		Browser:     classification.Browser,
		Device:      classification.Device,
		OS:          classification.OS,
		Country:     geoip.CountryFromIP(visit.IPAddress),
		PageViews:   pageViews,
	}
}

// TrackVisitor submits the visitor payload. Fire-and-forget: the result is
// (ack, delivered); there is no error path into the caller.
func TrackVisitor(ctx context.Context, client *cms.Client, visit Visit, views []QueuedPageView) (*cms.Ack, bool) {
	return client.TrackVisitor(ctx, BuildVisitorPayload(visit, views))
}

// SendPageViews flushes the session's buffer. The buffer is cleared only
// after a successful POST, and only the rows that were read are deleted so a
// page view appended mid-flight survives for the next attempt. A failed
// flush leaves the buffer untouched.
func SendPageViews(ctx context.Context, dbManager cartridge.DBManager, logger *slog.Logger, client *cms.Client, visit Visit) bool {
	db := dbManager.GetConnection()

	views, err := BufferedPageViews(db, visit.SessionID)
	if err != nil {
		logger.Error("Failed to read page-view buffer",
			slog.String("session_id", visit.SessionID),
			slog.Any("error", err))
		return false
	}
	if len(views) == 0 {
		return true
	}

	if _, delivered := TrackVisitor(ctx, client, visit, views); !delivered {
		logger.Debug("Page-view flush not delivered, buffer retained",
			slog.String("session_id", visit.SessionID),
			slog.Int("buffered", len(views)))
		return false
	}

	maxID := views[len(views)-1].ID
	err = sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Where("session_id = ? AND id <= ?", visit.SessionID, maxID).
			Delete(&QueuedPageView{}).Error
	})
	if err != nil {
		// Delivery succeeded but cleanup failed; the rows will be re-sent.
		// At-least-once, duplicates possible.
		logger.Warn("Failed to clear flushed page views",
			slog.String("session_id", visit.SessionID),
			slog.Any("error", err))
	}
	return true
}

// SessionsWithQueuedViews lists sessions that still hold unflushed events
// older than minAge. Used by the background flush job to retry buffers
// abandoned mid-session.
func SessionsWithQueuedViews(db *gorm.DB, minAge time.Duration) ([]Visit, error) {
	cutoff := time.Now().UTC().Add(-minAge)

	var rows []QueuedPageView
	err := db.Model(&QueuedPageView{}).
		Select("session_id, visitor_id, min(path) as path").
		Where("created_at < ?", cutoff).
		Group("session_id, visitor_id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	visits := make([]Visit, len(rows))
	for i, row := range rows {
		visits[i] = Visit{VisitorID: row.VisitorID, SessionID: row.SessionID}
	}
	return visits, nil
}

// PurgeStaleQueued drops buffered events older than the retention window.
// Events this old belong to sessions whose flush never succeeded; keeping
// them forever would replay ancient navigation on an unrelated day.
func PurgeStaleQueued(dbManager cartridge.DBManager, logger *slog.Logger, retention time.Duration) (int64, error) {
	db := dbManager.GetConnection()
	cutoff := time.Now().UTC().Add(-retention)

	var purged int64
	err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		result := tx.Where("created_at < ?", cutoff).Delete(&QueuedPageView{})
		purged = result.RowsAffected
		return result.Error
	})
	return purged, err
}

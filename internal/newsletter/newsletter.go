// Package newsletter queues dispatch work triggered by the content
// service's publish webhook. Dispatches are durable rows so a crash between
// hook and send loses nothing; the scheduler drains them in the background.
package newsletter

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"novasite/internal/cms"
	"novasite/internal/pkg/async"
)

const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusFailed  = "failed"

	maxAttempts   = 5
	dispatchBatch = 25
	workerCount   = 4
)

// Dispatch is one queued newsletter send for a published entry.
type Dispatch struct {
	ID         uint      `gorm:"primaryKey"`
	Collection string    `gorm:"size:64;not null"`
	EntryRef   string    `gorm:"size:64;not null;index:idx_dispatch_entry"`
	Status     string    `gorm:"size:16;not null;default:pending;index:idx_dispatch_status"`
	Attempts   int       `gorm:"not null;default:0"`
	LastError  string    `gorm:"type:text"`
	CreatedAt  time.Time `gorm:"not null"`
	SentAt     *time.Time
}

// Enqueue records a dispatch for a freshly published entry. Re-publishing an
// entry that is still pending is a no-op so the hook can fire repeatedly.
func Enqueue(dbManager cartridge.DBManager, logger *slog.Logger, collection, entryRef string) error {
	if entryRef == "" {
		return fmt.Errorf("entry reference is required")
	}

	return sqlite.PerformWrite(logger, dbManager.GetConnection(), func(tx *gorm.DB) error {
		var pending int64
		if err := tx.Model(&Dispatch{}).
			Where("entry_ref = ? AND status = ?", entryRef, StatusPending).
			Count(&pending).Error; err != nil {
			return err
		}
		if pending > 0 {
			logger.Info("newsletter dispatch already queued", "entry", entryRef)
			return nil
		}
		return tx.Create(&Dispatch{
			Collection: collection,
			EntryRef:   entryRef,
			Status:     StatusPending,
			CreatedAt:  time.Now().UTC(),
		}).Error
	})
}

// Pending returns queued dispatches oldest first, capped at the batch size.
func Pending(db *gorm.DB) ([]Dispatch, error) {
	var dispatches []Dispatch
	err := db.Where("status = ?", StatusPending).
		Order("id ASC").
		Limit(dispatchBatch).
		Find(&dispatches).Error
	return dispatches, err
}

// DispatchPending sends every queued dispatch through the content service,
// fanning out over a small worker pool. Failures are retried on later runs
// until maxAttempts, after which the row is marked failed and kept for
// inspection.
func DispatchPending(ctx context.Context, dbManager cartridge.DBManager, logger *slog.Logger, client *cms.Client) error {
	dispatches, err := Pending(dbManager.GetConnection())
	if err != nil {
		return fmt.Errorf("failed to load pending dispatches: %w", err)
	}
	if len(dispatches) == 0 {
		return nil
	}

	tasks := make([]async.Task, len(dispatches))
	for i, d := range dispatches {
		entryRef := d.EntryRef
		tasks[i] = async.Task{
			Name: fmt.Sprintf("dispatch-%d", d.ID),
			Execute: func() (interface{}, error) {
				return nil, client.SendNewsletter(ctx, entryRef)
			},
		}
	}

	results := async.NewPool(workerCount).Execute(ctx, tasks)

	return sqlite.PerformWrite(logger, dbManager.GetConnection(), func(tx *gorm.DB) error {
		now := time.Now().UTC()
		for _, d := range dispatches {
			result, ok := results[fmt.Sprintf("dispatch-%d", d.ID)]
			if !ok {
				continue // context expired before the task ran
			}

			updates := map[string]any{"attempts": d.Attempts + 1}
			if result.Err == nil {
				updates["status"] = StatusSent
				updates["sent_at"] = now
				updates["last_error"] = ""
			} else {
				updates["last_error"] = result.Err.Error()
				if d.Attempts+1 >= maxAttempts {
					updates["status"] = StatusFailed
					logger.Error("newsletter dispatch abandoned",
						"entry", d.EntryRef, "attempts", d.Attempts+1, "error", result.Err)
				} else {
					logger.Warn("newsletter dispatch failed, will retry",
						"entry", d.EntryRef, "attempts", d.Attempts+1, "error", result.Err)
				}
			}

			if err := tx.Model(&Dispatch{}).Where("id = ?", d.ID).Updates(updates).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// PurgeSent deletes sent dispatches older than the retention window.
func PurgeSent(dbManager cartridge.DBManager, logger *slog.Logger, retention time.Duration) error {
	cutoff := time.Now().UTC().Add(-retention)
	return sqlite.PerformWrite(logger, dbManager.GetConnection(), func(tx *gorm.DB) error {
		return tx.Where("status = ? AND sent_at < ?", StatusSent, cutoff).
			Delete(&Dispatch{}).Error
	})
}

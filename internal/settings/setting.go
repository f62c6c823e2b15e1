package settings

import (
	"context"
	"fmt"
	"strings"
	"time"

	"log/slog"

	"github.com/karloscodes/cartridge/cache"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
)

// Setting is one editable configuration item.
type Setting struct {
	ID        uint      `gorm:"primaryKey"`
	Key       string    `gorm:"uniqueIndex;not null"`
	Value     string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime:milli"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime:milli"`
}

const (
	KeyExcludedIPs       = "excluded_ips"
	KeyMaintenanceBanner = "maintenance_banner"
	KeyNewsletterSender  = "newsletter_sender"
)

var excludedIPsCache *cache.Cache[string, []string]

// SetupDefaultSettings seeds the keys the dashboard expects to exist.
func SetupDefaultSettings(dbConn *gorm.DB) error {
	defaults := []Setting{
		{Key: KeyExcludedIPs, Value: ""},
		{Key: KeyMaintenanceBanner, Value: ""},
		{Key: KeyNewsletterSender, Value: "news@novasite.local"},
	}
	err := sqlite.PerformWrite(slog.Default(), dbConn, func(tx *gorm.DB) error {
		for _, setting := range defaults {
			err := tx.Exec(`
                INSERT INTO settings (key, value, created_at, updated_at)
                VALUES (?, ?, ?, ?)
                ON CONFLICT(key) DO NOTHING
            `, setting.Key, setting.Value, time.Now().UTC(), time.Now().UTC()).Error
			if err != nil {
				return fmt.Errorf("failed to upsert setting %s: %w", setting.Key, err)
			}
		}
		return nil
	})

	loadCache(dbConn, slog.Default())

	return err
}

// IsIPExcluded reports whether tracking should skip this client IP. Admin
// and office addresses are kept out of the visitor data this way.
func IsIPExcluded(ip string) (bool, error) {
	if excludedIPsCache == nil {
		return false, nil
	}

	excludedIPs, err := excludedIPsCache.Get(KeyExcludedIPs)
	if err != nil {
		return false, fmt.Errorf("failed to check excluded IPs: %w", err)
	}

	for _, excludedIP := range excludedIPs {
		if excludedIP == ip {
			return true, nil
		}
	}
	return false, nil
}

// GetSetting retrieves a setting value.
func GetSetting(dbConn *gorm.DB, key string) (string, error) {
	var setting Setting
	result := dbConn.Where("key = ?", key).First(&setting)
	if result.Error != nil {
		return "", result.Error
	}
	return setting.Value, nil
}

// GetSettingOr retrieves a setting value, falling back when unset.
func GetSettingOr(dbConn *gorm.DB, key, fallback string) string {
	value, err := GetSetting(dbConn, key)
	if err != nil || value == "" {
		return fallback
	}
	return value
}

// UpdateSetting writes a setting, creating it when missing, and refreshes
// the cache.
func UpdateSetting(dbConn *gorm.DB, key string, value string) error {
	err := sqlite.PerformWrite(slog.Default(), dbConn, func(tx *gorm.DB) error {
		result := tx.Model(&Setting{}).Where("key = ?", key).Update("value", value)
		if result.Error != nil {
			return fmt.Errorf("failed to update setting: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			if err := tx.Create(&Setting{Key: key, Value: value}).Error; err != nil {
				return fmt.Errorf("failed to create setting: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if excludedIPsCache != nil {
		excludedIPsCache.Clear()
	}
	loadCache(dbConn, slog.Default())

	return nil
}

func loadCache(dbConn *gorm.DB, logger *slog.Logger) {
	fetchFunc := func(key string) ([]string, error) {
		var value string
		err := dbConn.WithContext(context.Background()).Raw("SELECT value FROM settings WHERE key = ? LIMIT 1", key).Scan(&value).Error
		if err != nil {
			return nil, err
		}
		excludedIPs := strings.Split(value, ",")
		for i, ip := range excludedIPs {
			excludedIPs[i] = strings.TrimSpace(ip)
		}
		return excludedIPs, nil
	}
	excludedIPsCache = cache.NewCache[string, []string](logger, 5*time.Minute, fetchFunc)
}

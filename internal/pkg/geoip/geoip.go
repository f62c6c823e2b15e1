// Package geoip wraps the optional GeoLite2 country database. When the
// database file is absent the package degrades to no-op lookups.
package geoip

import (
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"

	"github.com/oschwald/geoip2-golang"

	"novasite/internal/config"
)

var (
	geoDB  *geoip2.Reader
	once   sync.Once
	mu     sync.RWMutex
	logger *slog.Logger
)

// InitLogger sets the logger for the geoip package.
func InitLogger(l *slog.Logger) {
	logger = l
}

// InitGeoDB opens the GeoLite2 database. Returns nil if the database is not
// configured or not found; GeoIP enrichment is optional.
func InitGeoDB() *geoip2.Reader {
	cfg := config.GetConfig()
	if cfg.GeoDBPath == "" {
		return nil
	}

	if _, err := os.Stat(cfg.GeoDBPath); err != nil {
		if logger != nil {
			logger.Info("GeoLite2 database not found - country enrichment disabled",
				slog.String("path", cfg.GeoDBPath))
		}
		return nil
	}

	db, err := geoip2.Open(cfg.GeoDBPath)
	if err != nil {
		if logger != nil {
			logger.Error("Failed to open GeoLite2 database",
				slog.String("path", cfg.GeoDBPath),
				slog.Any("error", err))
		}
		return nil
	}

	if logger != nil {
		logger.Info("GeoLite2 database initialized", slog.String("path", cfg.GeoDBPath))
	}
	return db
}

// GetGeoDB returns the GeoLite2 reader, initializing it on first use.
func GetGeoDB() *geoip2.Reader {
	once.Do(func() {
		mu.Lock()
		geoDB = InitGeoDB()
		mu.Unlock()
	})
	mu.RLock()
	defer mu.RUnlock()
	return geoDB
}

// ReloadGeoDB reloads the database from disk, e.g. after downloading a new
// file.
func ReloadGeoDB() {
	mu.Lock()
	defer mu.Unlock()

	if geoDB != nil {
		geoDB.Close()
	}
	geoDB = InitGeoDB()
}

// CountryFromIP resolves an IP address to a lowercase ISO country code.
// Returns "" when the database is unavailable or the address is unknown.
func CountryFromIP(ipAddress string) string {
	db := GetGeoDB()
	if db == nil {
		return ""
	}

	ip := net.ParseIP(ipAddress)
	if ip == nil {
		return ""
	}

	record, err := db.Country(ip)
	if err != nil {
		return ""
	}
	if record.Country.IsoCode == "" || record.Country.IsoCode == "--" {
		return ""
	}
	return strings.ToLower(record.Country.IsoCode)
}

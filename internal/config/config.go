// Package config provides configuration management using Viper
package config

import (
	"fmt"
	"log"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
)

// Environment types
const (
	Development = "development"
	Production  = "production"
	Test        = "test"
)

// LogLevel represents the logging level for the application
type LogLevel string

// Available log levels
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Database types
const (
	SQLiteDatabase = "sqlite"
)

// Config holds all configuration parameters for the application
type Config struct {
	// Application settings
	AppName                    string   `mapstructure:"appname"`
	AppPort                    string   `mapstructure:"appport"`
	Environment                string   `mapstructure:"environment"`
	LogLevel                   LogLevel `mapstructure:"loglevel"`
	PrivateKey                 string   `mapstructure:"privatekey"`
	LoginSessionTimeoutSeconds int      `mapstructure:"loginsessiontimeoutseconds"`
	CSRFContextKey             string   `mapstructure:"-"`
	Domain                     string   `mapstructure:"domain"`

	// Content API settings
	CMSBaseURL             string `mapstructure:"cmsbaseurl"`
	CMSServiceToken        string `mapstructure:"cmsservicetoken"`
	TrackingTimeoutSeconds int    `mapstructure:"trackingtimeoutseconds"`

	// Visitor identity cookie lifetimes
	VisitorCookieMaxAgeDays  int `mapstructure:"visitorcookiemaxagedays"`
	SessionCookieMaxAgeHours int `mapstructure:"sessioncookiemaxagehours"`

	// File paths
	DatabasePath          string `mapstructure:"storagepath"`
	DatabaseName          string `mapstructure:"-"` // Derived from other settings
	GeoDBPath             string `mapstructure:"geodbpath"`
	PublicDirectory       string `mapstructure:"publicdir"`
	PublicAssetsUrlPrefix string `mapstructure:"publicassetsurlprefix"`

	// Logging settings
	LogsDirectory    string `mapstructure:"logsdir"`
	LogsMaxSizeInMb  int    `mapstructure:"logsmaxsizeinmb"`
	LogsMaxBackups   int    `mapstructure:"logsmaxbackups"`
	LogsMaxAgeInDays int    `mapstructure:"logsmaxageindays"`

	// Database settings
	DatabaseType         string `mapstructure:"dbtype"`
	DatabaseMaxOpenConns int    `mapstructure:"dbmaxopenconns"`
	DatabaseMaxIdleConns int    `mapstructure:"dbmaxidleconns"`

	// Job scheduling settings
	JobIntervalSeconds int `mapstructure:"jobintervalseconds"`

	// Data retention settings
	PageViewQueueRetentionDays int `mapstructure:"pageviewqueueretentiondays"`
}

var (
	cfg  *Config
	once sync.Once
)

// GetConfig returns the application configuration
func GetConfig() *Config {
	once.Do(func() {
		v := viper.New()

		// Set defaults
		v.SetDefault("appname", "novasite")
		v.SetDefault("appport", "3000")
		v.SetDefault("environment", Development)
		v.SetDefault("loglevel", string(LogLevelDebug))
		v.SetDefault("privatekey", "88888888888888888888888888888888")
		v.SetDefault("loginsessiontimeoutseconds", 604800) // 1 week
		v.SetDefault("cmsbaseurl", "http://localhost:1337")
		v.SetDefault("cmsservicetoken", "")
		v.SetDefault("trackingtimeoutseconds", 3)
		v.SetDefault("visitorcookiemaxagedays", 365)
		v.SetDefault("sessioncookiemaxagehours", 24)
		v.SetDefault("storagepath", "storage")
		v.SetDefault("geodbpath", "storage/GeoLite2-Country.mmdb")
		v.SetDefault("publicdir", "web/dist/assets")
		v.SetDefault("publicassetsurlprefix", "/")
		v.SetDefault("logsdir", "logs")
		v.SetDefault("logsmaxsizeinmb", 20)
		v.SetDefault("logsmaxbackups", 10)
		v.SetDefault("logsmaxageindays", 30)
		v.SetDefault("dbtype", SQLiteDatabase)
		v.SetDefault("dbmaxopenconns", 0)
		v.SetDefault("dbmaxidleconns", 0)
		v.SetDefault("jobintervalseconds", 60)
		v.SetDefault("pageviewqueueretentiondays", 7)

		// Bind environment variables
		v.BindEnv("appname", "NOVASITE_APP_NAME")
		v.BindEnv("appport", "NOVASITE_APP_PORT")
		v.BindEnv("environment", "NOVASITE_ENV")
		v.BindEnv("loglevel", "NOVASITE_LOG_LEVEL")
		v.BindEnv("privatekey", "NOVASITE_PRIVATE_KEY")
		v.BindEnv("loginsessiontimeoutseconds", "NOVASITE_LOGIN_SESSION_TIMEOUT_SECONDS")
		v.BindEnv("domain", "NOVASITE_DOMAIN")
		v.BindEnv("cmsbaseurl", "NOVASITE_CMS_BASE_URL")
		v.BindEnv("cmsservicetoken", "NOVASITE_CMS_SERVICE_TOKEN")
		v.BindEnv("trackingtimeoutseconds", "NOVASITE_TRACKING_TIMEOUT_SECONDS")
		v.BindEnv("visitorcookiemaxagedays", "NOVASITE_VISITOR_COOKIE_MAX_AGE_DAYS")
		v.BindEnv("sessioncookiemaxagehours", "NOVASITE_SESSION_COOKIE_MAX_AGE_HOURS")
		v.BindEnv("storagepath", "NOVASITE_STORAGE_PATH")
		v.BindEnv("geodbpath", "NOVASITE_GEO_DB_PATH")
		v.BindEnv("publicdir", "NOVASITE_PUBLIC_DIR")
		v.BindEnv("publicassetsurlprefix", "NOVASITE_PUBLIC_ASSETS_URL_PREFIX")
		v.BindEnv("logsdir", "NOVASITE_LOGS_DIR")
		v.BindEnv("logsmaxsizeinmb", "NOVASITE_LOGS_MAX_SIZE_IN_MB")
		v.BindEnv("logsmaxbackups", "NOVASITE_LOGS_MAX_BACKUPS")
		v.BindEnv("logsmaxageindays", "NOVASITE_LOGS_MAX_AGE_IN_DAYS")
		v.BindEnv("dbtype", "NOVASITE_DB_TYPE")
		v.BindEnv("dbmaxopenconns", "NOVASITE_DB_MAX_OPEN_CONNS")
		v.BindEnv("dbmaxidleconns", "NOVASITE_DB_MAX_IDLE_CONNS")
		v.BindEnv("jobintervalseconds", "NOVASITE_JOB_INTERVAL_SECONDS")
		v.BindEnv("pageviewqueueretentiondays", "NOVASITE_PAGE_VIEW_QUEUE_RETENTION_DAYS")

		cfg = &Config{
			CSRFContextKey: "csrf",
		}
		if err := v.Unmarshal(cfg); err != nil {
			log.Fatalf("config: failed to unmarshal configuration: %v", err)
		}

		// Validate
		if err := cfg.validate(); err != nil {
			log.Fatalf("config: invalid configuration: %v", err)
		}

		// Set derived values
		cfg.DatabaseName = cfg.GetDatabasePath()

		// Validate private key - in production, must be explicitly set (not empty, not default)
		defaultKey := "88888888888888888888888888888888"
		if cfg.PrivateKey == "" {
			log.Fatal("Private key is required")
		}
		if cfg.IsProduction() && cfg.PrivateKey == defaultKey {
			log.Fatal("Production requires a unique NOVASITE_PRIVATE_KEY (cannot use default)")
		}
	})
	return cfg
}

// validate checks the configuration for errors
func (c *Config) validate() error {
	validEnvs := map[string]bool{
		Development: true,
		Production:  true,
		Test:        true,
	}
	if !validEnvs[c.Environment] {
		return fmt.Errorf("invalid environment: %s", c.Environment)
	}

	validDBTypes := map[string]bool{
		SQLiteDatabase: true,
	}
	if !validDBTypes[c.DatabaseType] {
		return fmt.Errorf("invalid database type: %s", c.DatabaseType)
	}

	if c.TrackingTimeoutSeconds <= 0 {
		return fmt.Errorf("invalid tracking timeout: %d", c.TrackingTimeoutSeconds)
	}

	return nil
}

// GetDatabasePath returns the appropriate database path based on environment
func (c *Config) GetDatabasePath() string {
	if c.DatabaseName == "" {
		c.DatabaseName = filepath.Join(c.DatabasePath,
			fmt.Sprintf("%s-%s.db", c.AppName, c.Environment))
	}
	return c.DatabaseName
}

// IsDevelopment returns true if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.Environment == Development
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.Environment == Production
}

// IsTest returns true if the environment is test
func (c *Config) IsTest() bool {
	return c.Environment == Test
}

// GetPort returns the HTTP server port (implements cartridge.Config interface).
func (c *Config) GetPort() string {
	return c.AppPort
}

// GetPublicDirectory returns the path to public/static assets (implements cartridge.Config interface).
func (c *Config) GetPublicDirectory() string {
	return c.PublicDirectory
}

// GetAssetsPrefix returns the URL prefix for static assets (implements cartridge.Config interface).
func (c *Config) GetAssetsPrefix() string {
	return c.PublicAssetsUrlPrefix
}

// GetAppName returns the application name (implements cartridge.FactoryConfig interface).
func (c *Config) GetAppName() string {
	return c.AppName
}

// DatabaseDSN returns the database connection string (implements cartridge.FactoryConfig interface).
func (c *Config) DatabaseDSN() string {
	return c.GetDatabasePath()
}

// GetSessionSecret returns the session encryption key (implements cartridge.FactoryConfig interface).
func (c *Config) GetSessionSecret() string {
	return c.PrivateKey
}

// GetLoginSessionTimeout returns the login session timeout in seconds.
// Used for the admin login cookie duration.
func (c *Config) GetLoginSessionTimeout() int {
	return c.LoginSessionTimeoutSeconds
}

// GetMaxOpenConns returns the appropriate MaxOpenConns value based on environment
// If explicitly set via env var, uses that value. Otherwise:
// - Test: 1 (required for E2E test stability)
// - Development/Production: 10 (allows concurrent reads for parallel queue queries)
func (c *Config) GetMaxOpenConns() int {
	if c.DatabaseMaxOpenConns > 0 {
		return c.DatabaseMaxOpenConns
	}

	if c.Environment == Test {
		return 1 // Required for E2E test stability
	}

	return 10 // Higher concurrency for development and production
}

// GetMaxIdleConns returns the appropriate MaxIdleConns value based on environment
func (c *Config) GetMaxIdleConns() int {
	if c.DatabaseMaxIdleConns > 0 {
		return c.DatabaseMaxIdleConns
	}

	if c.Environment == Test {
		return 1 // Matches MaxOpenConns for test stability
	}

	return 5 // Keep half the pool warm for development and production
}

// GetLogLevel returns the log level as a string (implements cartridge.LogConfigProvider).
func (c *Config) GetLogLevel() string {
	return string(c.LogLevel)
}

// GetLogDirectory returns the logs directory (implements cartridge.LogConfigProvider).
func (c *Config) GetLogDirectory() string {
	return c.LogsDirectory
}

// GetLogMaxSizeMB returns the max log file size in MB (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxSizeMB() int {
	return c.LogsMaxSizeInMb
}

// GetLogMaxBackups returns the max number of log backups (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxBackups() int {
	return c.LogsMaxBackups
}

// GetLogMaxAgeDays returns the max age in days for log files (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxAgeDays() int {
	return c.LogsMaxAgeInDays
}

// Reset clears the cached configuration; intended for tests.
func Reset() {
	once = sync.Once{}
	cfg = nil
}

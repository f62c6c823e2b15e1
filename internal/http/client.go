package http

import (
	"sync"
	"time"

	"log/slog"

	"novasite/internal/cms"
	"novasite/internal/config"
)

var (
	clientOnce sync.Once

	// siteClient reads public content with the service token. adminSession
	// holds the bearer token of the logged-in editor; it is written once at
	// login and cleared once at logout, and every admin call reads it.
	siteClient   *cms.Client
	adminClient  *cms.Client
	adminSession *cms.Session
)

func initClients(logger *slog.Logger) {
	clientOnce.Do(func() {
		cfg := config.GetConfig()
		timeout := time.Duration(cfg.TrackingTimeoutSeconds) * time.Second

		serviceSession := cms.NewSession(cfg.CMSServiceToken, time.Time{})
		siteClient = cms.NewClient(cfg.CMSBaseURL, timeout, serviceSession, logger)

		adminSession = cms.NewSession("", time.Time{})
		adminClient = cms.NewClient(cfg.CMSBaseURL, timeout, adminSession, logger)
	})
}

// SiteClient returns the service-token client used by public pages and
// background jobs.
func SiteClient(logger *slog.Logger) *cms.Client {
	initClients(logger)
	return siteClient
}

// AdminClient returns the client bound to the logged-in editor's token.
func AdminClient(logger *slog.Logger) *cms.Client {
	initClients(logger)
	return adminClient
}

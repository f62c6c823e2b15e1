// Package internal contains core application functionality
package internal

import (
	"fmt"
	"io/fs"
	netHTTP "net/http"

	"github.com/gofiber/fiber/v2/middleware/filesystem"
	"github.com/karloscodes/cartridge"

	"novasite/internal/config"
	"novasite/internal/database"
	"novasite/internal/http"
	"novasite/internal/jobs"
)

// Application wraps cartridge.Application with novasite-specific components
type Application struct {
	*cartridge.Application
	DBManager *database.DBManager
	Scheduler *jobs.Scheduler
}

// Option customizes application construction.
type Option func(*appOptions)

type appOptions struct {
	staticFS fs.FS
}

// WithStaticFS serves the embedded frontend assets under /assets. In
// development the assets come from disk instead for hot reload.
func WithStaticFS(assets fs.FS) Option {
	return func(o *appOptions) { o.staticFS = assets }
}

// NewApp creates a new application instance with default settings
func NewApp(opts ...Option) (*Application, error) {
	cfg := config.GetConfig()

	var options appOptions
	for _, opt := range opts {
		opt(&options)
	}

	routeMount := MountAppRoutes
	if options.staticFS != nil {
		assets := options.staticFS
		routeMount = func(srv *cartridge.Server) {
			srv.App().Use("/assets", filesystem.New(filesystem.Config{
				Root:   netHTTP.FS(assets),
				MaxAge: 86400,
			}))
			MountAppRoutes(srv)
		}
	}

	return NewAppWithRoutes(cfg, routeMount)
}

// NewAppWithRoutes creates a new application with a custom route mounting function
func NewAppWithRoutes(cfg *config.Config, routeMount func(*cartridge.Server)) (*Application, error) {
	logger := cartridge.NewLogger(cfg, nil)

	dbManager := database.NewDBManager(cfg, logger)
	if err := dbManager.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// The scheduler flushes queued page views and drains the newsletter
	// queue against the content service, so it shares the site client.
	scheduler, err := jobs.NewScheduler(dbManager, http.SiteClient(logger), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize jobs: %w", err)
	}

	app, err := cartridge.NewApplication(cartridge.ApplicationOptions{
		Config:            cfg,
		Logger:            logger,
		DBManager:         dbManager,
		RouteMountFunc:    routeMount,
		BackgroundWorkers: []cartridge.BackgroundWorker{scheduler},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create application: %w", err)
	}

	return &Application{
		Application: app,
		DBManager:   dbManager,
		Scheduler:   scheduler,
	}, nil
}

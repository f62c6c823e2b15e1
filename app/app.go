// Package app provides the public API for embedding novasite.
// This package exports types and functions for extensions to build on.
package app

import (
	"novasite/internal"
	"novasite/internal/cms"
	"novasite/internal/config"
	"novasite/internal/database"
	"novasite/internal/listing"

	"github.com/karloscodes/cartridge"
)

// Re-export core types
type (
	Application = internal.Application
	Config      = config.Config
	DBManager   = database.DBManager
)

// Re-export content-service types
type (
	Record    = cms.Record
	APIError  = cms.APIError
	CMSClient = cms.Client
)

// ListController is the shared admin list state machine over CMS records.
type ListController = listing.Controller[cms.Record]

// GetConfig returns the application configuration
func GetConfig() *Config {
	return config.GetConfig()
}

// NewApp creates a new application with default routes
func NewApp(opts ...internal.Option) (*Application, error) {
	return internal.NewApp(opts...)
}

// NewAppWithRoutes creates a new application with custom route mounting
func NewAppWithRoutes(cfg *Config, routeMount func(*cartridge.Server)) (*Application, error) {
	return internal.NewAppWithRoutes(cfg, routeMount)
}

// SetupSession configures session management on the server
func SetupSession(srv *cartridge.Server) {
	internal.SetupSession(srv)
}

// MountAppRoutes mounts the stock routes (for extensions to call after
// mounting their own)
func MountAppRoutes(srv *cartridge.Server) {
	internal.MountAppRoutesWithoutSession(srv)
}

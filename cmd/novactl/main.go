// main.go - Admin control tool for novasite
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/karloscodes/cartridge"
	"github.com/sirupsen/logrus"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"

	"novasite/internal"
	"novasite/internal/config"
	"novasite/internal/content"
	"novasite/internal/http"
	"novasite/internal/listing"
	"novasite/internal/newsletter"
	"novasite/internal/settings"
	"novasite/internal/tracking"
)

const (
	defaultShutdownTimeout = 30 * time.Second
)

var log = logrus.New()

// Command defines the interface for all command implementations
type Command interface {
	// Name returns the command name
	Name() string
	// Description returns the command description
	Description() string
	// Execute runs the command with the given app and args
	Execute(ctx context.Context, app *internal.Application, args []string) error
}

// The set of available commands
var commands = []Command{
	&MigrateCommand{},
	&StatusCommand{},
	&FlushCommand{},
	&QueueNewsletterCommand{},
	&ExportCommand{},
	&SettingCommand{},
	&CMSLoginCommand{},
	&HelpCommand{},
}

func setupLogging(cfg *config.Config) {
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	rotating := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.LogsDirectory, "novactl.log"),
		MaxSize:    cfg.LogsMaxSizeInMb,
		MaxBackups: cfg.LogsMaxBackups,
		MaxAge:     cfg.LogsMaxAgeInDays,
	}
	log.SetOutput(io.MultiWriter(os.Stdout, rotating))
}

func main() {
	flag.Parse()

	setupLogging(config.GetConfig())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := <-sigChan
		log.Infof("Received signal: %v, initiating cleanup...", sig)
		cancel()
	}()

	cmdName, args := parseArgs()

	cmd := findCommand(cmdName)
	if cmd == nil {
		showUsageAndExit()
	}

	app, err := internal.NewApp()
	if err != nil {
		log.Warnf("Failed to initialize app: %v", err)
		log.Info("Proceeding with limited functionality...")
	}

	defer func() {
		if app != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
			defer cancel()
			if err := app.Shutdown(shutdownCtx); err != nil {
				log.Warnf("Cleanup error: %v", err)
			}
		}
	}()

	if err := cmd.Execute(ctx, app, args); err != nil {
		log.Fatalf("Command failed: %v", err)
	}

	log.Infof("Command %s completed successfully", cmd.Name())
}

func parseArgs() (string, []string) {
	args := flag.Args()
	if len(args) == 0 {
		return "help", nil
	}
	return args[0], args[1:]
}

func findCommand(name string) Command {
	for _, cmd := range commands {
		if cmd.Name() == name {
			return cmd
		}
	}
	return nil
}

func showUsageAndExit() {
	(&HelpCommand{}).Execute(context.Background(), nil, nil)
	os.Exit(1)
}

// MigrateCommand runs database migrations
type MigrateCommand struct{}

func (c *MigrateCommand) Name() string        { return "migrate" }
func (c *MigrateCommand) Description() string { return "Runs database migrations" }

func (c *MigrateCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if app == nil {
		return fmt.Errorf("app initialization failed, cannot run migrations")
	}

	log.Info("Running database migrations...")
	if err := app.DBManager.MigrateDatabase(); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	log.Info("Migrations completed successfully")
	return nil
}

// StatusCommand shows the local queue state and database statistics
type StatusCommand struct{}

func (c *StatusCommand) Name() string        { return "status" }
func (c *StatusCommand) Description() string { return "Shows the current system status" }

func (c *StatusCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if app == nil {
		return fmt.Errorf("cannot check status: app initialization failed")
	}

	db := app.DBManager.GetConnection()

	var queuedViews, pendingDispatches, failedDispatches int64
	if err := db.Model(&tracking.QueuedPageView{}).Count(&queuedViews).Error; err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	db.Model(&newsletter.Dispatch{}).Where("status = ?", newsletter.StatusPending).Count(&pendingDispatches)
	db.Model(&newsletter.Dispatch{}).Where("status = ?", newsletter.StatusFailed).Count(&failedDispatches)

	log.Info("System Status:")
	log.Info("- Database: Connected")
	log.Infof("- Queued page views: %d", queuedViews)
	log.Infof("- Pending newsletter dispatches: %d", pendingDispatches)
	log.Infof("- Failed newsletter dispatches: %d", failedDispatches)

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get SQL DB: %w", err)
	}
	log.Infof("- Open Connections: %d", sqlDB.Stats().OpenConnections)
	log.Infof("- In Use: %d", sqlDB.Stats().InUse)

	return nil
}

// FlushCommand manually pushes queued page views to the content service
type FlushCommand struct{}

func (c *FlushCommand) Name() string        { return "flush-page-views" }
func (c *FlushCommand) Description() string { return "Delivers queued page views immediately" }

func (c *FlushCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if app == nil {
		return fmt.Errorf("app initialization failed, cannot flush")
	}
	return app.Scheduler.FlushPageViews()
}

// QueueNewsletterCommand enqueues a newsletter dispatch for an entry
type QueueNewsletterCommand struct{}

func (c *QueueNewsletterCommand) Name() string { return "queue-newsletter" }
func (c *QueueNewsletterCommand) Description() string {
	return "Queues a newsletter dispatch for a published entry"
}

func (c *QueueNewsletterCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: %s <entry-ref> [collection]", c.Name())
	}
	if app == nil {
		return fmt.Errorf("app initialization failed, cannot queue")
	}

	collection := "blogs"
	if len(args) >= 2 {
		collection = args[1]
	}

	logger := cartridge.NewLogger(config.GetConfig(), nil)
	if err := newsletter.Enqueue(app.DBManager, logger, collection, args[0]); err != nil {
		return fmt.Errorf("failed to queue dispatch: %w", err)
	}
	log.Infof("Dispatch queued for %s", args[0])
	return nil
}

// ExportCommand writes one collection as CSV, to stdout or a file
type ExportCommand struct{}

func (c *ExportCommand) Name() string { return "export" }
func (c *ExportCommand) Description() string {
	return "Exports a collection as CSV (entities: " + strings.Join(content.Entities(), ", ") + ")"
}

func (c *ExportCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: %s <entity> [file]", c.Name())
	}
	entity := args[0]

	cfg, ok := content.Descriptor(entity, http.SiteClient(nil))
	if !ok {
		return fmt.Errorf("unknown entity %q, expected one of: %s", entity, strings.Join(content.Entities(), ", "))
	}

	controller := listing.New(cfg)
	loadCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()
	if err := controller.Load(loadCtx); err != nil {
		return fmt.Errorf("failed to load %s: %w", entity, err)
	}

	out := os.Stdout
	if len(args) >= 2 {
		f, err := os.Create(args[1])
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", args[1], err)
		}
		defer f.Close()
		out = f
	}

	if err := controller.ExportCSV(out); err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	if len(args) >= 2 {
		log.Infof("Exported %d rows to %s", len(controller.Filtered()), args[1])
	}
	return nil
}

// SettingCommand reads or writes a site setting
type SettingCommand struct{}

func (c *SettingCommand) Name() string        { return "setting" }
func (c *SettingCommand) Description() string { return "Reads or writes a site setting" }

func (c *SettingCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if app == nil {
		return fmt.Errorf("app initialization failed, cannot access settings")
	}
	if len(args) < 1 {
		return fmt.Errorf("usage: %s <key> [value]", c.Name())
	}

	db := app.DBManager.GetConnection()
	key := args[0]

	if len(args) == 1 {
		value, err := settings.GetSetting(db, key)
		if err != nil {
			return fmt.Errorf("setting %s not found: %w", key, err)
		}
		fmt.Printf("%s=%s\n", key, value)
		return nil
	}

	value := strings.Join(args[1:], " ")
	if err := settings.UpdateSetting(db, key, value); err != nil {
		return fmt.Errorf("failed to update setting: %w", err)
	}
	log.Infof("Setting %s updated", key)
	return nil
}

// CMSLoginCommand verifies editor credentials against the content service
type CMSLoginCommand struct{}

func (c *CMSLoginCommand) Name() string { return "cms-login" }
func (c *CMSLoginCommand) Description() string {
	return "Verifies editor credentials against the content service"
}

func (c *CMSLoginCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: %s <email>", c.Name())
	}
	email := args[0]

	fmt.Print("Password: ")
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}

	client := http.SiteClient(nil)
	loginCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	result, err := client.Login(loginCtx, email, string(passwordBytes))
	if err != nil {
		return fmt.Errorf("login rejected: %w", err)
	}

	log.Infof("Login accepted for %s", result.User.StringOr("email", email))
	return nil
}

// HelpCommand shows usage information
type HelpCommand struct{}

func (c *HelpCommand) Name() string        { return "help" }
func (c *HelpCommand) Description() string { return "Shows usage information" }

func (c *HelpCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fmt.Println("Usage: novactl [command] [args...]")
	fmt.Println("Available commands:")

	for _, cmd := range commands {
		fmt.Printf("  %s: %s\n", cmd.Name(), cmd.Description())
	}

	return nil
}

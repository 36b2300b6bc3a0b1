// Package internal provides the App struct that wires all components of the
// signal radar together and initializes the CLI layer.
package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/valter-silva-au/signal-radar/internal/cli"
	"github.com/valter-silva-au/signal-radar/internal/core"
	"github.com/valter-silva-au/signal-radar/internal/observability"
	"github.com/valter-silva-au/signal-radar/internal/storage"
	"github.com/valter-silva-au/signal-radar/pkg/models"
)

// App holds all service dependencies for the signal radar.
type App struct {
	BasePath string

	// Configuration
	ConfigMgr core.ConfigurationManager
	Config    *models.RadarConfig

	// Storage layer
	SubStore storage.SubscriptionStore

	// Observability
	EventLog    observability.EventLog
	AlertEngine observability.AlertEngine
	MetricsCalc observability.MetricsCalculator
	Notifier    observability.Notifier
}

// NewApp creates and wires all components of the signal radar. basePath is
// the directory holding .radarconfig, the event log and recorded
// subscriptions.
func NewApp(basePath string) (*App, error) {
	app := &App{BasePath: basePath}

	// --- Configuration ---
	app.ConfigMgr = core.NewConfigurationManager(basePath)
	cfg, err := app.ConfigMgr.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	app.Config = cfg

	// --- Storage layer ---
	app.SubStore = storage.NewSubscriptionStore(basePath)

	// --- Observability ---
	eventLogPath := cfg.EventLog
	if !filepath.IsAbs(eventLogPath) {
		eventLogPath = filepath.Join(basePath, eventLogPath)
	}
	app.EventLog, err = observability.NewJSONLEventLog(eventLogPath)
	if err != nil {
		// Non-fatal: disable observability if log can't be created.
		app.EventLog = nil
	}
	if app.EventLog != nil {
		app.AlertEngine = observability.NewAlertEngine(app.EventLog, alertThresholds(cfg.Notifications.Alerts))
		app.MetricsCalc = observability.NewMetricsCalculator(app.EventLog)
	}
	app.Notifier = observability.NewNotifier(cfg.Notifications.WebhookURL)

	// --- Wire CLI package-level variables ---
	cli.BasePath = basePath
	cli.Config = app.Config
	cli.ConfigMgr = app.ConfigMgr
	cli.SubStore = app.SubStore

	cli.EventLog = app.EventLog
	cli.AlertEngine = app.AlertEngine
	cli.MetricsCalc = app.MetricsCalc
	cli.Notifier = app.Notifier
	if app.EventLog != nil {
		cli.SessionLog = &eventLogAdapter{log: app.EventLog}
	}

	return app, nil
}

func alertThresholds(cfg models.AlertConfig) observability.AlertThresholds {
	thresholds := observability.DefaultAlertThresholds()
	if cfg.ViolationBurst > 0 {
		thresholds.ViolationBurst = cfg.ViolationBurst
	}
	if cfg.JobFailures > 0 {
		thresholds.JobFailures = cfg.JobFailures
	}
	if cfg.MaxPollFailurePercent > 0 {
		thresholds.MaxPollFailurePercent = cfg.MaxPollFailurePercent
	}
	return thresholds
}

// Close releases resources held by the App, such as the event log file handle.
// It is safe to call Close on an App whose EventLog is nil.
func (a *App) Close() error {
	if a.EventLog != nil {
		return a.EventLog.Close()
	}
	return nil
}

// ResolveBasePath determines the base path for the radar data directory.
// It checks for RADAR_HOME env var, then walks up from the current directory
// looking for .radarconfig, then falls back to the current directory.
func ResolveBasePath() string {
	if home := os.Getenv("RADAR_HOME"); home != "" {
		return home
	}
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	for {
		for _, name := range []string{core.ConfigFileName, core.ConfigFileName + ".yaml", core.ConfigFileName + ".yml"} {
			if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
				return dir
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	// Fall back to cwd.
	cwd, _ := os.Getwd()
	return cwd
}

// eventLogAdapter adapts observability.EventLog to core.EventLogger.
type eventLogAdapter struct {
	log observability.EventLog
}

func (a *eventLogAdapter) LogEvent(eventType string, data map[string]any) error {
	return a.log.Write(observability.Event{
		Time:    time.Now().UTC(),
		Level:   core.EventLevel(eventType),
		Type:    eventType,
		Message: eventType,
		Data:    data,
	})
}

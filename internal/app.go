// Package internal provides the App struct that wires all components of
// chatrange together and initializes the CLI layer.
package internal

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/valter-silva-au/chatrange/internal/cli"
	"github.com/valter-silva-au/chatrange/internal/core"
	"github.com/valter-silva-au/chatrange/internal/integration"
	"github.com/valter-silva-au/chatrange/internal/observability"
	"github.com/valter-silva-au/chatrange/internal/storage"
	"github.com/valter-silva-au/chatrange/pkg/models"
)

// EventLogFileName is the JSONL event log kept in the base path.
const EventLogFileName = ".chatrange_events.jsonl"

// App holds all service dependencies for chatrange.
type App struct {
	BasePath string
	Config   *models.GlobalConfig

	// Configuration
	ConfigMgr core.ConfigurationManager

	// Storage layer
	Archive storage.CaptureArchive

	// Core services
	Summarizer core.Summarizer
	Recorder   core.Recorder
	Events     core.EventLogger

	// Observability
	EventLog    observability.EventLog
	AlertEngine observability.AlertEngine
	MetricsCalc observability.MetricsCalculator
	Notifier    observability.Notifier
}

// NewApp creates and wires all components of chatrange. basePath is the
// directory holding .chatrange.yaml, the event log and the capture archive.
func NewApp(basePath string) (*App, error) {
	app := &App{BasePath: basePath}

	// --- Configuration ---
	app.ConfigMgr = core.NewConfigurationManager(basePath)
	cfg, err := app.ConfigMgr.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	if err := app.ConfigMgr.ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	app.Config = cfg

	// --- Observability ---
	app.EventLog, err = observability.NewJSONLEventLog(filepath.Join(basePath, EventLogFileName))
	if err != nil {
		// Non-fatal: run without observability if the log can't be created.
		app.EventLog = nil
	}
	if app.EventLog != nil {
		app.Events = &eventLogAdapter{log: app.EventLog}
		app.AlertEngine = observability.NewAlertEngine(app.EventLog, alertThresholds(cfg.Notifications.Alerts))
		app.MetricsCalc = observability.NewMetricsCalculator(app.EventLog)
	}
	if cfg.Notifications.Enabled && cfg.Notifications.SlackWebhook != "" {
		app.Notifier = observability.NewSlackNotifier(cfg.Notifications.SlackWebhook)
	}

	// --- Storage layer ---
	app.Archive = storage.NewCaptureArchive(basePath)
	if err := app.Archive.Load(); err != nil {
		return nil, fmt.Errorf("loading capture archive: %w", err)
	}

	// --- Core services ---
	app.Summarizer = integration.NewSummarizer(integration.SummarizerOptions{
		Model:      cfg.Summarizer.Model,
		MaxTokens:  cfg.Summarizer.MaxTokens,
		MaxRetries: cfg.Summarizer.MaxRetries,
	}, app.logFallback)
	app.Recorder = core.NewRecorder(app.Archive, app.Summarizer, app.Events)

	// --- Wire CLI package-level variables ---
	cli.BasePath = basePath
	cli.Config = cfg
	cli.Archive = app.Archive
	cli.Recorder = app.Recorder
	cli.Events = app.Events

	cli.EventLog = app.EventLog
	cli.AlertEngine = app.AlertEngine
	cli.MetricsCalc = app.MetricsCalc
	cli.Notifier = app.Notifier

	return app, nil
}

// logFallback records that a summary came from the heuristic summarizer.
func (a *App) logFallback(reason error) {
	if a.Events == nil {
		return
	}
	_ = a.Events.LogEvent("capture.summary_fallback", map[string]any{"reason": reason.Error()})
}

// alertThresholds overlays configured alert thresholds on the defaults.
func alertThresholds(cfg models.AlertConfig) observability.AlertThresholds {
	t := observability.DefaultAlertThresholds()
	if cfg.WindowHours > 0 {
		t.WindowHours = cfg.WindowHours
	}
	if cfg.MaxFailureRate > 0 {
		t.MaxFailureRate = cfg.MaxFailureRate
	}
	if cfg.MinSessions > 0 {
		t.MinSessions = cfg.MinSessions
	}
	if cfg.MaxSearchMisses > 0 {
		t.MaxSearchMisses = cfg.MaxSearchMisses
	}
	if cfg.MaxSampleFailures > 0 {
		t.MaxSampleFailures = cfg.MaxSampleFailures
	}
	if cfg.StaleMinutes > 0 {
		t.StaleMinutes = cfg.StaleMinutes
	}
	return t
}

// Close releases resources held by the App, such as the event log file handle.
// It is safe to call Close on an App whose EventLog is nil.
func (a *App) Close() error {
	if a.EventLog != nil {
		return a.EventLog.Close()
	}
	return nil
}

// ResolveBasePath determines the chatrange data directory. It checks the
// CHATRANGE_HOME env var, then walks up from the current directory looking
// for .chatrange.yaml, then falls back to the current directory.
func ResolveBasePath() string {
	if home := os.Getenv("CHATRANGE_HOME"); home != "" {
		return home
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	for dir := cwd; ; {
		if _, err := os.Stat(filepath.Join(dir, core.ConfigFileName+".yaml")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return cwd
}

// --- Adapters ---

// eventLogAdapter adapts observability.EventLog to core.EventLogger.
type eventLogAdapter struct {
	log observability.EventLog
}

func (a *eventLogAdapter) LogEvent(eventType string, data map[string]any) error {
	return a.log.Write(observability.NewEvent(eventType, data))
}

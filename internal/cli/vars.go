package cli

import (
	"github.com/valter-silva-au/chatrange/internal/core"
	"github.com/valter-silva-au/chatrange/internal/observability"
	"github.com/valter-silva-au/chatrange/internal/storage"
	"github.com/valter-silva-au/chatrange/pkg/models"
)

// Package-level service instances, set during app initialization in app.go.
var (
	BasePath string
	Config   *models.GlobalConfig
	Archive  storage.CaptureArchive
	Recorder core.Recorder
	Events   core.EventLogger
)

// Observability service instances, set during app initialization in app.go.
var (
	EventLog    observability.EventLog
	AlertEngine observability.AlertEngine
	MetricsCalc observability.MetricsCalculator
	Notifier    observability.Notifier
)

// config returns the loaded configuration or the defaults when the app was
// not initialized (e.g. in tests).
func config() *models.GlobalConfig {
	if Config != nil {
		return Config
	}
	return core.DefaultConfig()
}

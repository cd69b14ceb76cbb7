// Package core contains the capture engine for chatrange: record extraction,
// sampling, the capture store, scroll search, range resolution, transcript
// formatting and configuration.
package core

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/valter-silva-au/chatrange/pkg/models"
)

// ConfigFileName is the configuration file looked up in the base path.
const ConfigFileName = ".chatrange"

// ConfigurationManager loads and validates the .chatrange.yaml configuration.
type ConfigurationManager interface {
	LoadConfig() (*models.GlobalConfig, error)
	ValidateConfig(cfg *models.GlobalConfig) error
}

// viperConfigManager implements ConfigurationManager using Viper for
// reading YAML configuration files.
type viperConfigManager struct {
	// basePath is the root directory where .chatrange.yaml resides.
	basePath string
}

// NewConfigurationManager creates a new ConfigurationManager that reads
// configuration files relative to basePath.
func NewConfigurationManager(basePath string) ConfigurationManager {
	return &viperConfigManager{basePath: basePath}
}

// DefaultConfig returns a GlobalConfig populated with the engine defaults.
func DefaultConfig() *models.GlobalConfig {
	return &models.GlobalConfig{
		Capture: models.CaptureConfig{
			SampleInterval:    DefaultSampleInterval,
			SidePanelFraction: DefaultSidePanelFraction,
			FingerprintPrefix: DefaultFingerprintPrefix,
		},
		Search: models.SearchConfig{
			Step:          DefaultSearchStep,
			Settle:        DefaultSearchSettle,
			Timeout:       DefaultSearchTimeout,
			MaxScrolls:    DefaultSearchMaxScrolls,
			RestoreScroll: true,
		},
		Resolve: models.ResolveConfig{
			MatchPrefix: DefaultMatchPrefix,
			DedupWindow: 0,
		},
		Summarizer: models.SummarizerConfig{
			Model:      "claude-3-haiku-20240307",
			MaxTokens:  1024,
			MaxRetries: 3,
		},
		Browser: models.BrowserConfig{
			PageURL: "https://web.whatsapp.com",
		},
		Notifications: models.NotificationConfig{
			Alerts: models.AlertConfig{
				WindowHours:       24,
				MaxFailureRate:    0.5,
				MinSessions:       4,
				MaxSearchMisses:   5,
				MaxSampleFailures: 20,
				StaleMinutes:      30,
			},
		},
	}
}

// LoadConfig reads .chatrange.yaml from the base path using Viper.
// If the file does not exist, defaults are returned.
func (cm *viperConfigManager) LoadConfig() (*models.GlobalConfig, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigName(ConfigFileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(cm.basePath)

	// Set Viper defaults so missing keys fall back gracefully.
	v.SetDefault("capture.sample_interval", cfg.Capture.SampleInterval)
	v.SetDefault("capture.side_panel_fraction", cfg.Capture.SidePanelFraction)
	v.SetDefault("capture.fingerprint_prefix", cfg.Capture.FingerprintPrefix)
	v.SetDefault("search.step", cfg.Search.Step)
	v.SetDefault("search.settle", cfg.Search.Settle)
	v.SetDefault("search.timeout", cfg.Search.Timeout)
	v.SetDefault("search.max_scrolls", cfg.Search.MaxScrolls)
	v.SetDefault("search.restore_scroll", cfg.Search.RestoreScroll)
	v.SetDefault("resolve.match_prefix", cfg.Resolve.MatchPrefix)
	v.SetDefault("resolve.dedup_window", cfg.Resolve.DedupWindow)
	v.SetDefault("summarizer.model", cfg.Summarizer.Model)
	v.SetDefault("summarizer.max_tokens", cfg.Summarizer.MaxTokens)
	v.SetDefault("summarizer.max_retries", cfg.Summarizer.MaxRetries)
	v.SetDefault("browser.debugger_url", cfg.Browser.DebuggerURL)
	v.SetDefault("browser.headless", cfg.Browser.Headless)
	v.SetDefault("browser.page_url", cfg.Browser.PageURL)
	v.SetDefault("notifications.enabled", cfg.Notifications.Enabled)
	v.SetDefault("notifications.slack_webhook", cfg.Notifications.SlackWebhook)
	v.SetDefault("notifications.alerts.window_hours", cfg.Notifications.Alerts.WindowHours)
	v.SetDefault("notifications.alerts.max_failure_rate", cfg.Notifications.Alerts.MaxFailureRate)
	v.SetDefault("notifications.alerts.min_sessions", cfg.Notifications.Alerts.MinSessions)
	v.SetDefault("notifications.alerts.max_search_misses", cfg.Notifications.Alerts.MaxSearchMisses)
	v.SetDefault("notifications.alerts.max_sample_failures", cfg.Notifications.Alerts.MaxSampleFailures)
	v.SetDefault("notifications.alerts.stale_minutes", cfg.Notifications.Alerts.StaleMinutes)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading %s.yaml: %w", ConfigFileName, err)
	}

	cfg.Capture.SampleInterval = v.GetDuration("capture.sample_interval")
	cfg.Capture.SidePanelFraction = v.GetFloat64("capture.side_panel_fraction")
	cfg.Capture.FingerprintPrefix = v.GetInt("capture.fingerprint_prefix")
	cfg.Search.Step = v.GetFloat64("search.step")
	cfg.Search.Settle = v.GetDuration("search.settle")
	cfg.Search.Timeout = v.GetDuration("search.timeout")
	cfg.Search.MaxScrolls = v.GetInt("search.max_scrolls")
	cfg.Search.RestoreScroll = v.GetBool("search.restore_scroll")
	cfg.Resolve.MatchPrefix = v.GetInt("resolve.match_prefix")
	cfg.Resolve.DedupWindow = v.GetInt("resolve.dedup_window")
	cfg.Summarizer.Model = v.GetString("summarizer.model")
	cfg.Summarizer.MaxTokens = v.GetInt("summarizer.max_tokens")
	cfg.Summarizer.MaxRetries = v.GetInt("summarizer.max_retries")
	cfg.Browser.DebuggerURL = v.GetString("browser.debugger_url")
	cfg.Browser.Headless = v.GetBool("browser.headless")
	cfg.Browser.PageURL = v.GetString("browser.page_url")
	cfg.Notifications.Enabled = v.GetBool("notifications.enabled")
	cfg.Notifications.SlackWebhook = v.GetString("notifications.slack_webhook")
	cfg.Notifications.Alerts.WindowHours = v.GetInt("notifications.alerts.window_hours")
	cfg.Notifications.Alerts.MaxFailureRate = v.GetFloat64("notifications.alerts.max_failure_rate")
	cfg.Notifications.Alerts.MinSessions = v.GetInt("notifications.alerts.min_sessions")
	cfg.Notifications.Alerts.MaxSearchMisses = v.GetInt("notifications.alerts.max_search_misses")
	cfg.Notifications.Alerts.MaxSampleFailures = v.GetInt("notifications.alerts.max_sample_failures")
	cfg.Notifications.Alerts.StaleMinutes = v.GetInt("notifications.alerts.stale_minutes")

	return cfg, nil
}

// ValidateConfig checks cfg for invalid values and reports every problem in
// a single error.
func (cm *viperConfigManager) ValidateConfig(cfg *models.GlobalConfig) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	var errs []string

	if cfg.Capture.SampleInterval < 10*time.Millisecond {
		errs = append(errs, fmt.Sprintf("capture.sample_interval must be at least 10ms, got %s", cfg.Capture.SampleInterval))
	}
	if cfg.Capture.SidePanelFraction < 0 || cfg.Capture.SidePanelFraction >= 1 {
		errs = append(errs, fmt.Sprintf("capture.side_panel_fraction must be in [0,1), got %g", cfg.Capture.SidePanelFraction))
	}
	if cfg.Capture.FingerprintPrefix < 1 {
		errs = append(errs, fmt.Sprintf("capture.fingerprint_prefix must be positive, got %d", cfg.Capture.FingerprintPrefix))
	}
	if cfg.Search.Step <= 0 {
		errs = append(errs, fmt.Sprintf("search.step must be positive, got %g", cfg.Search.Step))
	}
	if cfg.Search.Settle < 0 {
		errs = append(errs, fmt.Sprintf("search.settle must not be negative, got %s", cfg.Search.Settle))
	}
	if cfg.Search.Timeout <= 0 {
		errs = append(errs, fmt.Sprintf("search.timeout must be positive, got %s", cfg.Search.Timeout))
	}
	if cfg.Search.MaxScrolls < 1 {
		errs = append(errs, fmt.Sprintf("search.max_scrolls must be positive, got %d", cfg.Search.MaxScrolls))
	}
	if cfg.Resolve.MatchPrefix < 1 {
		errs = append(errs, fmt.Sprintf("resolve.match_prefix must be positive, got %d", cfg.Resolve.MatchPrefix))
	}
	if cfg.Resolve.DedupWindow < 0 {
		errs = append(errs, fmt.Sprintf("resolve.dedup_window must not be negative, got %d", cfg.Resolve.DedupWindow))
	}
	if cfg.Summarizer.Model == "" {
		errs = append(errs, "summarizer.model must not be empty")
	}
	if cfg.Summarizer.MaxTokens < 1 {
		errs = append(errs, fmt.Sprintf("summarizer.max_tokens must be positive, got %d", cfg.Summarizer.MaxTokens))
	}
	if cfg.Summarizer.MaxRetries < 0 {
		errs = append(errs, fmt.Sprintf("summarizer.max_retries must not be negative, got %d", cfg.Summarizer.MaxRetries))
	}
	if cfg.Browser.DebuggerURL != "" {
		if u, err := url.Parse(cfg.Browser.DebuggerURL); err != nil || u.Scheme == "" {
			errs = append(errs, fmt.Sprintf("browser.debugger_url %q is not a valid URL", cfg.Browser.DebuggerURL))
		}
	}
	if cfg.Browser.PageURL == "" {
		errs = append(errs, "browser.page_url must not be empty")
	}
	if cfg.Notifications.Enabled && cfg.Notifications.SlackWebhook == "" {
		errs = append(errs, "notifications.slack_webhook is required when notifications are enabled")
	}
	if cfg.Notifications.SlackWebhook != "" {
		if u, err := url.Parse(cfg.Notifications.SlackWebhook); err != nil || (u.Scheme != "https" && u.Scheme != "http") {
			errs = append(errs, fmt.Sprintf("notifications.slack_webhook %q is not an http(s) URL", cfg.Notifications.SlackWebhook))
		}
	}
	if cfg.Notifications.Alerts.WindowHours < 1 {
		errs = append(errs, fmt.Sprintf("notifications.alerts.window_hours must be positive, got %d", cfg.Notifications.Alerts.WindowHours))
	}
	if r := cfg.Notifications.Alerts.MaxFailureRate; r < 0 || r > 1 {
		errs = append(errs, fmt.Sprintf("notifications.alerts.max_failure_rate must be in [0,1], got %g", r))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

package models

import "time"

// CaptureConfig controls the periodic sampler and the record extractor.
type CaptureConfig struct {
	SampleInterval    time.Duration `yaml:"sample_interval" mapstructure:"sample_interval"`
	SidePanelFraction float64       `yaml:"side_panel_fraction" mapstructure:"side_panel_fraction"`
	FingerprintPrefix int           `yaml:"fingerprint_prefix" mapstructure:"fingerprint_prefix"`
}

// SearchConfig controls the scroll search for anchors not yet captured.
type SearchConfig struct {
	Step          float64       `yaml:"step" mapstructure:"step"`
	Settle        time.Duration `yaml:"settle" mapstructure:"settle"`
	Timeout       time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MaxScrolls    int           `yaml:"max_scrolls" mapstructure:"max_scrolls"`
	RestoreScroll bool          `yaml:"restore_scroll" mapstructure:"restore_scroll"`
}

// ResolveConfig controls anchor matching and deduplication.
type ResolveConfig struct {
	MatchPrefix int `yaml:"match_prefix" mapstructure:"match_prefix"`
	DedupWindow int `yaml:"dedup_window" mapstructure:"dedup_window"`
}

// SummarizerConfig selects the summarization model.
type SummarizerConfig struct {
	Model      string `yaml:"model" mapstructure:"model"`
	MaxTokens  int    `yaml:"max_tokens" mapstructure:"max_tokens"`
	MaxRetries int    `yaml:"max_retries" mapstructure:"max_retries"`
}

// BrowserConfig describes how to reach the live chat page.
type BrowserConfig struct {
	DebuggerURL string `yaml:"debugger_url" mapstructure:"debugger_url"`
	Headless    bool   `yaml:"headless" mapstructure:"headless"`
	PageURL     string `yaml:"page_url" mapstructure:"page_url"`
}

// AlertConfig holds thresholds for capture health alerts.
type AlertConfig struct {
	WindowHours       int     `yaml:"window_hours" mapstructure:"window_hours"`
	MaxFailureRate    float64 `yaml:"max_failure_rate" mapstructure:"max_failure_rate"`
	MinSessions       int     `yaml:"min_sessions" mapstructure:"min_sessions"`
	MaxSearchMisses   int     `yaml:"max_search_misses" mapstructure:"max_search_misses"`
	MaxSampleFailures int     `yaml:"max_sample_failures" mapstructure:"max_sample_failures"`
	StaleMinutes      int     `yaml:"stale_minutes" mapstructure:"stale_minutes"`
}

// NotificationConfig controls Slack delivery of alerts and shared summaries.
type NotificationConfig struct {
	Enabled      bool        `yaml:"enabled" mapstructure:"enabled"`
	SlackWebhook string      `yaml:"slack_webhook" mapstructure:"slack_webhook"`
	Alerts       AlertConfig `yaml:"alerts" mapstructure:"alerts"`
}

// GlobalConfig holds all settings read from .chatrange.yaml via Viper.
type GlobalConfig struct {
	Capture       CaptureConfig      `yaml:"capture" mapstructure:"capture"`
	Search        SearchConfig       `yaml:"search" mapstructure:"search"`
	Resolve       ResolveConfig      `yaml:"resolve" mapstructure:"resolve"`
	Summarizer    SummarizerConfig   `yaml:"summarizer" mapstructure:"summarizer"`
	Browser       BrowserConfig      `yaml:"browser" mapstructure:"browser"`
	Notifications NotificationConfig `yaml:"notifications" mapstructure:"notifications"`
}

package observability

import (
	"fmt"
	"time"
)

// AlertSeverity represents the urgency of an alert.
type AlertSeverity string

const (
	SeverityHigh   AlertSeverity = "high"
	SeverityMedium AlertSeverity = "medium"
	SeverityLow    AlertSeverity = "low"
)

// Alert represents a triggered alert condition.
type Alert struct {
	ID          string        `json:"id"`
	Condition   string        `json:"condition"`
	Severity    AlertSeverity `json:"severity"`
	Message     string        `json:"message"`
	TriggeredAt time.Time     `json:"triggered_at"`
}

// AlertThresholds configures when capture health alerts fire. Every check
// looks at events from the last WindowHours.
type AlertThresholds struct {
	WindowHours       int     `yaml:"window_hours" mapstructure:"window_hours" json:"window_hours"`
	MaxFailureRate    float64 `yaml:"max_failure_rate" mapstructure:"max_failure_rate" json:"max_failure_rate"`
	MinSessions       int     `yaml:"min_sessions" mapstructure:"min_sessions" json:"min_sessions"`
	MaxSearchMisses   int     `yaml:"max_search_misses" mapstructure:"max_search_misses" json:"max_search_misses"`
	MaxSampleFailures int     `yaml:"max_sample_failures" mapstructure:"max_sample_failures" json:"max_sample_failures"`
	StaleMinutes      int     `yaml:"stale_minutes" mapstructure:"stale_minutes" json:"stale_minutes"`
}

// DefaultAlertThresholds returns sensible defaults for alert thresholds.
func DefaultAlertThresholds() AlertThresholds {
	return AlertThresholds{
		WindowHours:       24,
		MaxFailureRate:    0.5,
		MinSessions:       4,
		MaxSearchMisses:   5,
		MaxSampleFailures: 20,
		StaleMinutes:      30,
	}
}

// AlertEngine evaluates alert conditions against the event log.
type AlertEngine interface {
	Evaluate() ([]Alert, error)
}

// alertEngine implements AlertEngine by reading events and checking thresholds.
type alertEngine struct {
	eventLog   EventLog
	thresholds AlertThresholds
	now        func() time.Time
}

// NewAlertEngine creates a new AlertEngine with the given EventLog and thresholds.
func NewAlertEngine(eventLog EventLog, thresholds AlertThresholds) AlertEngine {
	return &alertEngine{
		eventLog:   eventLog,
		thresholds: thresholds,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Evaluate reads the window's capture events and checks all alert
// conditions, returning any triggered alerts.
func (ae *alertEngine) Evaluate() ([]Alert, error) {
	now := ae.now()
	since := now.Add(-time.Duration(ae.thresholds.WindowHours) * time.Hour)
	events, err := ae.eventLog.Read(EventFilter{Since: &since, Type: "capture."})
	if err != nil {
		return nil, fmt.Errorf("reading capture events: %w", err)
	}

	var alerts []Alert
	alerts = append(alerts, ae.checkFailureRate(events, now)...)
	alerts = append(alerts, ae.checkSearchMisses(events, now)...)
	alerts = append(alerts, ae.checkSampleFailures(events, now)...)
	alerts = append(alerts, ae.checkStaleSessions(events, now)...)
	return alerts, nil
}

// checkFailureRate fires when too many finished sessions failed.
func (ae *alertEngine) checkFailureRate(events []Event, now time.Time) []Alert {
	var completed, failed int
	for _, event := range events {
		switch event.Type {
		case "capture.completed":
			completed++
		case "capture.failed":
			failed++
		}
	}
	finished := completed + failed
	if finished == 0 || finished < ae.thresholds.MinSessions {
		return nil
	}
	rate := float64(failed) / float64(finished)
	if rate <= ae.thresholds.MaxFailureRate {
		return nil
	}
	return []Alert{{
		ID:          "capture-failure-rate",
		Condition:   "failure_rate_high",
		Severity:    SeverityHigh,
		Message:     fmt.Sprintf("%d of %d captures failed in the last %d hours (%.0f%%)", failed, finished, ae.thresholds.WindowHours, rate*100),
		TriggeredAt: now,
	}}
}

// checkSearchMisses fires when anchor searches keep ending without finding
// their target.
func (ae *alertEngine) checkSearchMisses(events []Event, now time.Time) []Alert {
	misses := 0
	for _, event := range events {
		if event.Type != "capture.search_finished" {
			continue
		}
		switch event.Data["outcome"] {
		case "timed-out", "max-scrolls", "boundary-hit":
			misses++
		}
	}
	if misses <= ae.thresholds.MaxSearchMisses {
		return nil
	}
	return []Alert{{
		ID:          "capture-search-misses",
		Condition:   "search_misses_high",
		Severity:    SeverityMedium,
		Message:     fmt.Sprintf("%d anchor searches ended without finding their anchor, exceeding the maximum of %d", misses, ae.thresholds.MaxSearchMisses),
		TriggeredAt: now,
	}}
}

// checkSampleFailures fires when sampling the page keeps failing, which
// usually means the host markup changed.
func (ae *alertEngine) checkSampleFailures(events []Event, now time.Time) []Alert {
	failures := 0
	for _, event := range events {
		if event.Type == "capture.sample_failed" {
			failures++
		}
	}
	if failures <= ae.thresholds.MaxSampleFailures {
		return nil
	}
	return []Alert{{
		ID:          "capture-sample-failures",
		Condition:   "sample_failures_high",
		Severity:    SeverityMedium,
		Message:     fmt.Sprintf("%d page samples failed, exceeding the maximum of %d", failures, ae.thresholds.MaxSampleFailures),
		TriggeredAt: now,
	}}
}

// checkStaleSessions looks for sessions with a start anchor and no terminal
// event for longer than the threshold.
func (ae *alertEngine) checkStaleSessions(events []Event, now time.Time) []Alert {
	lastActivity := make(map[string]time.Time)
	finished := make(map[string]bool)

	for _, event := range events {
		id, _ := event.Data["session_id"].(string)
		if id == "" {
			continue
		}
		switch event.Type {
		case "capture.completed", "capture.failed", "capture.cancelled":
			finished[id] = true
		case "capture.anchor_marked":
			if event.Time.After(lastActivity[id]) {
				lastActivity[id] = event.Time
			}
		}
	}

	threshold := time.Duration(ae.thresholds.StaleMinutes) * time.Minute
	var alerts []Alert
	for id, last := range lastActivity {
		if finished[id] || now.Sub(last) <= threshold {
			continue
		}
		alerts = append(alerts, Alert{
			ID:          fmt.Sprintf("stale-%s", id),
			Condition:   "session_stale",
			Severity:    SeverityLow,
			Message:     fmt.Sprintf("capture session %s has waited for its end anchor for more than %d minutes", id, ae.thresholds.StaleMinutes),
			TriggeredAt: now,
		})
	}
	return alerts
}

package observability

import (
	"fmt"
	"time"
)

// Metrics holds capture metrics derived from the event log.
type Metrics struct {
	SessionsStarted   int            `json:"sessions_started"`
	SessionsCompleted int            `json:"sessions_completed"`
	SessionsFailed    int            `json:"sessions_failed"`
	SessionsCancelled int            `json:"sessions_cancelled"`
	FailuresByCode    map[string]int `json:"failures_by_code"`
	SearchesByOutcome map[string]int `json:"searches_by_outcome"`
	StartMatches      map[string]int `json:"start_matches"`
	EndMatches        map[string]int `json:"end_matches"`
	MessagesCaptured  int            `json:"messages_captured"`
	DuplicatesDropped int            `json:"duplicates_dropped"`
	SampleFailures    int            `json:"sample_failures"`
	Archived          int            `json:"archived"`
	Summaries         int            `json:"summaries"`
	SummaryFallbacks  int            `json:"summary_fallbacks"`
	EventCount        int            `json:"event_count"`
	OldestEvent       *time.Time     `json:"oldest_event,omitempty"`
	NewestEvent       *time.Time     `json:"newest_event,omitempty"`
}

// SuccessRate is completed sessions over finished (completed or failed)
// sessions, or 0 when none finished.
func (m *Metrics) SuccessRate() float64 {
	finished := m.SessionsCompleted + m.SessionsFailed
	if finished == 0 {
		return 0
	}
	return float64(m.SessionsCompleted) / float64(finished)
}

// MetricsCalculator derives metrics from the event log.
type MetricsCalculator interface {
	Calculate(since time.Time) (*Metrics, error)
}

// metricsCalculator implements MetricsCalculator by reading from an EventLog.
type metricsCalculator struct {
	eventLog EventLog
}

// NewMetricsCalculator creates a new MetricsCalculator that reads from the given EventLog.
func NewMetricsCalculator(eventLog EventLog) MetricsCalculator {
	return &metricsCalculator{eventLog: eventLog}
}

// Calculate reads all events since the given time and aggregates them into metrics.
func (mc *metricsCalculator) Calculate(since time.Time) (*Metrics, error) {
	events, err := mc.eventLog.Read(EventFilter{Since: &since})
	if err != nil {
		return nil, fmt.Errorf("reading events for metrics: %w", err)
	}

	m := &Metrics{
		FailuresByCode:    make(map[string]int),
		SearchesByOutcome: make(map[string]int),
		StartMatches:      make(map[string]int),
		EndMatches:        make(map[string]int),
	}

	m.EventCount = len(events)

	for i, event := range events {
		if i == 0 {
			t := event.Time
			m.OldestEvent = &t
		}
		t := event.Time
		m.NewestEvent = &t

		switch event.Type {
		case "capture.session_started":
			m.SessionsStarted++
		case "capture.completed":
			m.SessionsCompleted++
			m.MessagesCaptured += intField(event.Data, "messages")
			m.DuplicatesDropped += intField(event.Data, "duplicates")
			if s, ok := event.Data["start_match"].(string); ok && s != "" {
				m.StartMatches[s]++
			}
			if s, ok := event.Data["end_match"].(string); ok && s != "" {
				m.EndMatches[s]++
			}
		case "capture.failed":
			m.SessionsFailed++
			code, _ := event.Data["code"].(string)
			if code == "" {
				code = "UNKNOWN"
			}
			m.FailuresByCode[code]++
		case "capture.cancelled":
			m.SessionsCancelled++
		case "capture.search_finished":
			if outcome, ok := event.Data["outcome"].(string); ok {
				m.SearchesByOutcome[outcome]++
			}
		case "capture.sample_failed":
			m.SampleFailures++
		case "capture.archived":
			m.Archived++
		case "capture.summarized":
			m.Summaries++
		case "capture.summary_fallback":
			m.SummaryFallbacks++
		}
	}

	return m, nil
}

// intField reads a numeric event field. Values decoded from JSON arrive as
// float64, values logged in-process as int.
func intField(data map[string]any, key string) int {
	switch v := data[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

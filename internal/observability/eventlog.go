package observability

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// Event levels.
const (
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// Event represents a single observable event in the system.
type Event struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"` // INFO, WARN, ERROR
	Type    string         `json:"type"`  // e.g. "capture.completed", "capture.search_finished"
	Message string         `json:"msg"`
	Data    map[string]any `json:"data,omitempty"`
}

// EventFilter specifies criteria for reading events.
type EventFilter struct {
	Since *time.Time
	Until *time.Time
	// Type matches exactly, or by prefix when it ends in ".", e.g. "capture.".
	Type      string
	Level     string
	SessionID string
	// Limit keeps only the most recent matching events when positive.
	Limit int
}

// EventLog defines the interface for writing and reading events.
type EventLog interface {
	Write(event Event) error
	Read(filter EventFilter) ([]Event, error)
	Close() error
}

// LevelFor returns the level an event type is logged at.
func LevelFor(eventType string) string {
	switch eventType {
	case "capture.failed":
		return LevelError
	case "capture.sample_failed", "capture.summary_fallback":
		return LevelWarn
	}
	return LevelInfo
}

// NewEvent builds an event stamped now at the level LevelFor assigns.
func NewEvent(eventType string, data map[string]any) Event {
	return Event{
		Time:    time.Now().UTC(),
		Level:   LevelFor(eventType),
		Type:    eventType,
		Message: describe(eventType, data),
		Data:    data,
	}
}

// describe renders a one-line human message for an event.
func describe(eventType string, data map[string]any) string {
	switch eventType {
	case "capture.completed":
		return fmt.Sprintf("captured %v messages in %v blocks", data["messages"], data["blocks"])
	case "capture.failed":
		return fmt.Sprintf("capture failed: %v", data["error"])
	case "capture.search_finished":
		return fmt.Sprintf("search %v for %v: %v", data["direction"], data["target_id"], data["outcome"])
	case "capture.anchor_marked":
		return fmt.Sprintf("%v anchor marked", data["role"])
	}
	return strings.ReplaceAll(strings.TrimPrefix(eventType, "capture."), "_", " ")
}

// jsonlEventLog implements EventLog using append-only JSONL files.
type jsonlEventLog struct {
	path string
	file *os.File
	mu   sync.Mutex
}

// NewJSONLEventLog creates a new EventLog backed by a JSONL file at the given path.
func NewJSONLEventLog(path string) (EventLog, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening event log: %w", err)
	}
	return &jsonlEventLog{
		path: path,
		file: f,
	}, nil
}

// Write appends a JSON-encoded event followed by a newline to the log file.
func (l *jsonlEventLog) Write(event Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshalling event: %w", err)
	}
	data = append(data, '\n')

	if _, err := l.file.Write(data); err != nil {
		return fmt.Errorf("writing event: %w", err)
	}
	return nil
}

// Read scans the log line by line and returns the events matching filter in
// write order.
func (l *jsonlEventLog) Read(filter EventFilter) ([]Event, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening event log for reading: %w", err)
	}
	defer func() { _ = f.Close() }()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var event Event
		if err := json.Unmarshal(line, &event); err != nil {
			continue // skip malformed lines
		}

		if matchesEventFilter(event, filter) {
			events = append(events, event)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning event log: %w", err)
	}

	if filter.Limit > 0 && len(events) > filter.Limit {
		events = events[len(events)-filter.Limit:]
	}
	return events, nil
}

// Close closes the underlying log file.
func (l *jsonlEventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.file.Close(); err != nil {
		return fmt.Errorf("closing event log: %w", err)
	}
	return nil
}

// matchesEventFilter checks whether an event satisfies all filter criteria.
func matchesEventFilter(event Event, filter EventFilter) bool {
	if filter.Since != nil && event.Time.Before(*filter.Since) {
		return false
	}
	if filter.Until != nil && event.Time.After(*filter.Until) {
		return false
	}
	if filter.Type != "" {
		if strings.HasSuffix(filter.Type, ".") {
			if !strings.HasPrefix(event.Type, filter.Type) {
				return false
			}
		} else if event.Type != filter.Type {
			return false
		}
	}
	if filter.Level != "" && event.Level != filter.Level {
		return false
	}
	if filter.SessionID != "" {
		if id, _ := event.Data["session_id"].(string); id != filter.SessionID {
			return false
		}
	}
	return true
}

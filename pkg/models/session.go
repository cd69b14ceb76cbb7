package models

import "time"

// CaptureStatus is the lifecycle state of a capture session.
type CaptureStatus string

const (
	StatusIdle        CaptureStatus = "idle"
	StatusAwaitingEnd CaptureStatus = "awaiting-end"
	StatusSearching   CaptureStatus = "searching"
	StatusResolving   CaptureStatus = "resolving"
	StatusDone        CaptureStatus = "done"
	StatusFailed      CaptureStatus = "failed"
)

// Active reports whether a session in this state is between its first anchor
// and a terminal result.
func (s CaptureStatus) Active() bool {
	switch s {
	case StatusAwaitingEnd, StatusSearching, StatusResolving:
		return true
	}
	return false
}

// MatchStrategy records how an anchor was located in the captured records.
type MatchStrategy string

const (
	MatchByID          MatchStrategy = "by-id"
	MatchByFingerprint MatchStrategy = "by-fingerprint"
	MatchByExtremity   MatchStrategy = "by-extremity"
)

// CapturedTranscript is an archived capture result.
type CapturedTranscript struct {
	ID            string        `yaml:"id"`
	SessionID     string        `yaml:"session_id"`
	Source        string        `yaml:"source"`
	StartID       string        `yaml:"start_id"`
	EndID         string        `yaml:"end_id"`
	StartMatch    MatchStrategy `yaml:"start_match"`
	EndMatch      MatchStrategy `yaml:"end_match"`
	MessageCount  int           `yaml:"message_count"`
	BlockCount    int           `yaml:"block_count"`
	Participants  []string      `yaml:"participants,omitempty"`
	CapturedAt    time.Time     `yaml:"captured_at"`
	Summary       string        `yaml:"summary,omitempty"`
	SummarySource string        `yaml:"summary_source,omitempty"`
}

// CaptureFilter specifies criteria for querying archived captures.
type CaptureFilter struct {
	Source      string
	Participant string
	Since       *time.Time
	Until       *time.Time
	MinMessages int
}

// CaptureIndex is the master index of all archived captures.
type CaptureIndex struct {
	Version  string               `yaml:"version"`
	Captures []CapturedTranscript `yaml:"captures"`
}

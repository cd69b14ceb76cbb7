package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/valter-silva-au/chatrange/pkg/models"
)

// CaptureArchiver is the subset of the capture archive that the recorder
// needs. Defining it here avoids importing the storage package.
type CaptureArchiver interface {
	Add(capture models.CapturedTranscript, records []models.MessageRecord, transcript string) (string, error)
	Get(id string) (*models.CapturedTranscript, error)
	Transcript(id string) (string, error)
	SetSummary(id, summary, source string) error
	GenerateID() (string, error)
	Save() error
}

// Recorder persists completed captures and attaches summaries to them.
type Recorder interface {
	// Record archives a completed result and returns its capture ID.
	Record(res *Result) (string, error)
	// Summarize summarizes an archived capture's transcript, stores the
	// summary and returns it with the name of the summarizer that produced it.
	Summarize(ctx context.Context, id string) (summary, source string, err error)
}

type recorder struct {
	archive    CaptureArchiver
	summarizer Summarizer
	events     EventLogger
}

// NewRecorder creates a Recorder. summarizer and events may be nil; Summarize
// then fails and nothing is logged.
func NewRecorder(archive CaptureArchiver, summarizer Summarizer, events EventLogger) Recorder {
	return &recorder{archive: archive, summarizer: summarizer, events: events}
}

func (r *recorder) Record(res *Result) (string, error) {
	if res == nil || res.Resolution == nil {
		return "", fmt.Errorf("recording capture: no result to record")
	}

	id, err := r.archive.GenerateID()
	if err != nil {
		return "", fmt.Errorf("recording capture: %w", err)
	}
	if _, err := r.archive.Add(res.Archive(id), res.Resolution.Records, res.Transcript.Text); err != nil {
		return "", fmt.Errorf("recording capture: %w", err)
	}
	if err := r.archive.Save(); err != nil {
		return "", fmt.Errorf("recording capture: %w", err)
	}

	r.logEvent("capture.archived", map[string]any{
		"session_id": res.SessionID,
		"capture_id": id,
		"messages":   res.Transcript.MessageCount,
	})
	return id, nil
}

func (r *recorder) Summarize(ctx context.Context, id string) (string, string, error) {
	if r.summarizer == nil {
		return "", "", fmt.Errorf("summarizing %s: no summarizer configured", id)
	}
	if _, err := r.archive.Get(id); err != nil {
		return "", "", fmt.Errorf("summarizing %s: %w", id, err)
	}
	transcript, err := r.archive.Transcript(id)
	if err != nil {
		return "", "", fmt.Errorf("summarizing %s: %w", id, err)
	}
	if strings.TrimSpace(transcript) == "" {
		return "", "", fmt.Errorf("summarizing %s: transcript is empty", id)
	}

	summary, err := r.summarizer.Summarize(ctx, transcript)
	if err != nil {
		return "", "", fmt.Errorf("summarizing %s: %w", id, err)
	}
	source := r.summarizer.Name()

	if err := r.archive.SetSummary(id, summary, source); err != nil {
		return "", "", fmt.Errorf("summarizing %s: %w", id, err)
	}
	if err := r.archive.Save(); err != nil {
		return "", "", fmt.Errorf("summarizing %s: %w", id, err)
	}

	r.logEvent("capture.summarized", map[string]any{"capture_id": id, "source": source})
	return summary, source, nil
}

func (r *recorder) logEvent(eventType string, data map[string]any) {
	if r.events != nil {
		_ = r.events.LogEvent(eventType, data)
	}
}

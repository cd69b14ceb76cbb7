package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/valter-silva-au/chatrange/pkg/models"
)

type memArchive struct {
	counter     int
	captures    map[string]models.CapturedTranscript
	records     map[string][]models.MessageRecord
	transcripts map[string]string
	saves       int
	saveErr     error
}

func newMemArchive() *memArchive {
	return &memArchive{
		captures:    make(map[string]models.CapturedTranscript),
		records:     make(map[string][]models.MessageRecord),
		transcripts: make(map[string]string),
	}
}

func (a *memArchive) Add(c models.CapturedTranscript, records []models.MessageRecord, transcript string) (string, error) {
	if _, ok := a.captures[c.ID]; ok {
		return "", fmt.Errorf("capture %s already exists", c.ID)
	}
	a.captures[c.ID] = c
	a.records[c.ID] = records
	a.transcripts[c.ID] = transcript
	return c.ID, nil
}

func (a *memArchive) Get(id string) (*models.CapturedTranscript, error) {
	c, ok := a.captures[id]
	if !ok {
		return nil, fmt.Errorf("capture %s not found", id)
	}
	return &c, nil
}

func (a *memArchive) Transcript(id string) (string, error) {
	if _, ok := a.captures[id]; !ok {
		return "", fmt.Errorf("capture %s not found", id)
	}
	return a.transcripts[id], nil
}

func (a *memArchive) SetSummary(id, summary, source string) error {
	c, ok := a.captures[id]
	if !ok {
		return fmt.Errorf("capture %s not found", id)
	}
	c.Summary = summary
	c.SummarySource = source
	a.captures[id] = c
	return nil
}

func (a *memArchive) GenerateID() (string, error) {
	a.counter++
	return fmt.Sprintf("C-%05d", a.counter), nil
}

func (a *memArchive) Save() error {
	a.saves++
	return a.saveErr
}

type cannedSummarizer struct {
	out string
	err error
}

func (s cannedSummarizer) Summarize(context.Context, string) (string, error) { return s.out, s.err }
func (s cannedSummarizer) Name() string                                      { return "canned" }

func completedResult() *Result {
	records := []models.MessageRecord{
		{ID: "m1", Timestamp: "10:00", Sender: "Alice", Text: "hello", Kind: models.KindText},
		{ID: "m2", Timestamp: "10:01", Sender: "Bob", Text: "hi", Kind: models.KindText},
	}
	return &Result{
		SessionID:   "sess-1",
		Source:      "test",
		StartAnchor: records[0],
		EndAnchor:   records[1],
		Resolution: &Resolution{
			Records:    records,
			EndIndex:   1,
			StartMatch: models.MatchByID,
			EndMatch:   models.MatchByFingerprint,
		},
		Transcript: FormatTranscript(records),
		FinishedAt: time.Date(2025, 3, 4, 10, 2, 0, 0, time.UTC),
	}
}

func TestRecorder_Record(t *testing.T) {
	archive := newMemArchive()
	logger := &recordingLogger{}
	rec := NewRecorder(archive, nil, logger)

	id, err := rec.Record(completedResult())
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if id != "C-00001" {
		t.Errorf("expected C-00001, got %s", id)
	}

	got := archive.captures[id]
	if got.SessionID != "sess-1" || got.MessageCount != 2 || got.EndMatch != models.MatchByFingerprint {
		t.Errorf("unexpected archived capture %+v", got)
	}
	if len(archive.records[id]) != 2 {
		t.Errorf("expected 2 records, got %d", len(archive.records[id]))
	}
	if archive.transcripts[id] != "[10:00] Alice: hello\n\n[10:01] Bob: hi" {
		t.Errorf("unexpected transcript %q", archive.transcripts[id])
	}
	if archive.saves != 1 {
		t.Errorf("expected one save, got %d", archive.saves)
	}
	if !logger.has("capture.archived") {
		t.Error("expected capture.archived event")
	}
}

func TestRecorder_RecordErrors(t *testing.T) {
	archive := newMemArchive()
	rec := NewRecorder(archive, nil, nil)

	if _, err := rec.Record(nil); err == nil {
		t.Error("expected error for nil result")
	}
	if _, err := rec.Record(&Result{}); err == nil {
		t.Error("expected error for result without resolution")
	}

	archive.saveErr = errors.New("disk full")
	if _, err := rec.Record(completedResult()); err == nil {
		t.Error("expected save error to propagate")
	}
}

func TestRecorder_Summarize(t *testing.T) {
	archive := newMemArchive()
	logger := &recordingLogger{}
	rec := NewRecorder(archive, cannedSummarizer{out: "## Summary\n- greetings"}, logger)

	id, err := rec.Record(completedResult())
	if err != nil {
		t.Fatalf("Record: %v", err)
	}

	summary, source, err := rec.Summarize(context.Background(), id)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if summary != "## Summary\n- greetings" || source != "canned" {
		t.Errorf("unexpected summary %q from %q", summary, source)
	}
	if got := archive.captures[id]; got.Summary != summary || got.SummarySource != "canned" {
		t.Errorf("summary not stored: %+v", got)
	}
	if !logger.has("capture.summarized") {
		t.Error("expected capture.summarized event")
	}
}

func TestRecorder_SummarizeErrors(t *testing.T) {
	archive := newMemArchive()
	ctx := context.Background()

	if _, _, err := NewRecorder(archive, nil, nil).Summarize(ctx, "C-00001"); err == nil {
		t.Error("expected error without summarizer")
	}

	rec := NewRecorder(archive, cannedSummarizer{err: errors.New("boom")}, nil)
	if _, _, err := rec.Summarize(ctx, "C-99999"); err == nil {
		t.Error("expected error for unknown capture")
	}

	id, _ := rec.Record(completedResult())
	if _, _, err := rec.Summarize(ctx, id); err == nil {
		t.Error("expected summarizer error to propagate")
	}
	if archive.captures[id].Summary != "" {
		t.Error("failed summarization must not store a summary")
	}

	archive.transcripts[id] = "  "
	rec = NewRecorder(archive, cannedSummarizer{out: "x"}, nil)
	if _, _, err := rec.Summarize(ctx, id); err == nil {
		t.Error("expected error for empty transcript")
	}
}

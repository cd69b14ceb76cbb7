package storage

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/valter-silva-au/chatrange/pkg/models"
	"pgregory.net/rapid"
)

func genAlphaString(t *rapid.T, label string, minLen, maxLen int) string {
	return rapid.StringMatching(fmt.Sprintf("[a-zA-Z]{%d,%d}", minLen, maxLen)).Draw(t, label)
}

func genCapturedTranscript(t *rapid.T) models.CapturedTranscript {
	n := rapid.IntRange(1, 99999).Draw(t, "captureNum")
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	offset := rapid.IntRange(0, 365*24).Draw(t, "hourOffset")
	participants := rapid.SliceOfN(rapid.Custom(func(t *rapid.T) string {
		return genAlphaString(t, "participant", 2, 12)
	}), 1, 4).Draw(t, "participants")

	return models.CapturedTranscript{
		ID:           fmt.Sprintf("C-%05d", n),
		SessionID:    genAlphaString(t, "session", 8, 16),
		Source:       "fixtures/" + genAlphaString(t, "source", 2, 10) + ".yaml",
		StartID:      genAlphaString(t, "startID", 1, 10),
		EndID:        genAlphaString(t, "endID", 1, 10),
		StartMatch:   rapid.SampledFrom([]models.MatchStrategy{models.MatchByID, models.MatchByFingerprint, models.MatchByExtremity}).Draw(t, "startMatch"),
		EndMatch:     rapid.SampledFrom([]models.MatchStrategy{models.MatchByID, models.MatchByFingerprint, models.MatchByExtremity}).Draw(t, "endMatch"),
		MessageCount: rapid.IntRange(1, 500).Draw(t, "messages"),
		BlockCount:   rapid.IntRange(1, 500).Draw(t, "blocks"),
		Participants: participants,
		CapturedAt:   base.Add(time.Duration(offset) * time.Hour),
	}
}

// Feature: chatrange, Property 8: Capture Archive Round-Trip
// Captures survive a Save/Load cycle with all index fields preserved.
func TestProperty_CaptureArchiveRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		captures := rapid.SliceOfN(rapid.Custom(genCapturedTranscript), 1, 10).Draw(t, "captures")

		seen := make(map[string]bool)
		var unique []models.CapturedTranscript
		for _, c := range captures {
			if !seen[c.ID] {
				seen[c.ID] = true
				unique = append(unique, c)
			}
		}

		dir, err := os.MkdirTemp("", "capture-prop-test-*")
		if err != nil {
			t.Fatal(err)
		}
		defer func() { _ = os.RemoveAll(dir) }()

		archive := NewCaptureArchive(dir)
		for _, c := range unique {
			if _, err := archive.Add(c, nil, "transcript"); err != nil {
				t.Fatalf("Add %s: %v", c.ID, err)
			}
		}
		if err := archive.Save(); err != nil {
			t.Fatalf("Save: %v", err)
		}

		reloaded := NewCaptureArchive(dir)
		if err := reloaded.Load(); err != nil {
			t.Fatalf("Load: %v", err)
		}
		for _, want := range unique {
			got, err := reloaded.Get(want.ID)
			if err != nil {
				t.Fatalf("Get %s: %v", want.ID, err)
			}
			if got.Source != want.Source || got.StartMatch != want.StartMatch ||
				got.EndMatch != want.EndMatch || got.MessageCount != want.MessageCount ||
				!got.CapturedAt.Equal(want.CapturedAt) || len(got.Participants) != len(want.Participants) {
				t.Fatalf("capture %s changed across round trip:\n got %+v\nwant %+v", want.ID, got, want)
			}
		}
	})
}

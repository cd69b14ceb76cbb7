package core

import (
	"strings"

	"github.com/valter-silva-au/chatrange/pkg/models"
)

// Transcript is the plain-text rendering of a resolved range, as handed to
// the summarizer.
type Transcript struct {
	Text         string
	MessageCount int
	BlockCount   int
	Participants []string
}

// FormatTranscript groups consecutive records from the same sender into one
// block. The first record of a block is "[timestamp] sender: text", later ones
// are "> text", and a quoted reply follows its body as an indented "| quote"
// line. Blocks are separated by a blank line.
func FormatTranscript(records []models.MessageRecord) Transcript {
	var (
		b            strings.Builder
		blocks       int
		participants []string
		seen         = make(map[string]bool)
	)

	for i, rec := range records {
		if !seen[rec.Sender] {
			seen[rec.Sender] = true
			participants = append(participants, rec.Sender)
		}

		continuation := i > 0 && records[i-1].Sender == rec.Sender
		if continuation {
			b.WriteString("\n> ")
		} else {
			if blocks > 0 {
				b.WriteString("\n\n")
			}
			blocks++
			if rec.Timestamp != "" {
				b.WriteString("[" + rec.Timestamp + "] ")
			}
			b.WriteString(rec.Sender + ": ")
		}
		b.WriteString(rec.Text)
		if rec.Quote != "" {
			for _, line := range strings.Split(rec.Quote, "\n") {
				b.WriteString("\n    | " + line)
			}
		}
	}

	return Transcript{
		Text:         b.String(),
		MessageCount: len(records),
		BlockCount:   blocks,
		Participants: participants,
	}
}

// CountBlocks returns the number of sender blocks in a transcript produced by
// FormatTranscript.
func CountBlocks(text string) int {
	n := 0
	for _, block := range strings.Split(text, "\n\n") {
		if strings.TrimSpace(block) != "" {
			n++
		}
	}
	return n
}

// Archive describes a completed result as an archive entry with the given id.
func (r *Result) Archive(id string) models.CapturedTranscript {
	c := models.CapturedTranscript{
		ID:           id,
		SessionID:    r.SessionID,
		Source:       r.Source,
		StartID:      r.StartAnchor.ID,
		EndID:        r.EndAnchor.ID,
		MessageCount: r.Transcript.MessageCount,
		BlockCount:   r.Transcript.BlockCount,
		Participants: r.Transcript.Participants,
		CapturedAt:   r.FinishedAt.UTC(),
	}
	if r.Resolution != nil {
		c.StartMatch = r.Resolution.StartMatch
		c.EndMatch = r.Resolution.EndMatch
	}
	return c
}

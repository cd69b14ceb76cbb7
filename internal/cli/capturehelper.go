package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/valter-silva-au/chatrange/internal/core"
	"github.com/valter-silva-au/chatrange/internal/observability"
)

// finishOptions selects what happens to a completed capture.
type finishOptions struct {
	archive   bool
	summarize bool
	share     bool
	json      bool
}

// statusPrinter returns an engine status callback that writes one line per
// update to w.
func statusPrinter(w io.Writer) func(core.StatusUpdate) {
	return func(u core.StatusUpdate) {
		if u.Message == "" {
			return
		}
		if u.Progress > 0 {
			_, _ = fmt.Fprintf(w, "[%s %3.0f%%] %s\n", u.Status, u.Progress*100, u.Message)
			return
		}
		_, _ = fmt.Fprintf(w, "[%s] %s\n", u.Status, u.Message)
	}
}

type resultJSON struct {
	CaptureID     string   `json:"capture_id,omitempty"`
	SessionID     string   `json:"session_id"`
	Source        string   `json:"source"`
	Messages      int      `json:"messages"`
	Blocks        int      `json:"blocks"`
	Participants  []string `json:"participants,omitempty"`
	StartMatch    string   `json:"start_match"`
	EndMatch      string   `json:"end_match"`
	Duplicates    int      `json:"duplicates"`
	Warnings      []string `json:"warnings,omitempty"`
	Transcript    string   `json:"transcript"`
	Summary       string   `json:"summary,omitempty"`
	SummarySource string   `json:"summary_source,omitempty"`
}

// finishCapture archives, summarizes and shares res per opts, then prints it.
func finishCapture(ctx context.Context, w io.Writer, res *core.Result, opts finishOptions) error {
	out := resultJSON{
		SessionID:    res.SessionID,
		Source:       res.Source,
		Messages:     res.Transcript.MessageCount,
		Blocks:       res.Transcript.BlockCount,
		Participants: res.Transcript.Participants,
		Transcript:   res.Transcript.Text,
	}
	if r := res.Resolution; r != nil {
		out.StartMatch = string(r.StartMatch)
		out.EndMatch = string(r.EndMatch)
		out.Duplicates = r.Duplicates
	}
	for _, warn := range res.Warnings {
		out.Warnings = append(out.Warnings, warn.Error())
	}

	if opts.archive || opts.summarize || opts.share {
		if Recorder == nil {
			return fmt.Errorf("capture archive not initialized")
		}
		id, err := Recorder.Record(res)
		if err != nil {
			return err
		}
		out.CaptureID = id

		if opts.summarize || opts.share {
			summary, source, err := Recorder.Summarize(ctx, id)
			if err != nil {
				return err
			}
			out.Summary = summary
			out.SummarySource = source
		}
		if opts.share {
			if err := shareSummary(out.CaptureID, res.Source, res.Transcript.Participants, res.Transcript.MessageCount, out.Summary); err != nil {
				return err
			}
		}
	}

	if opts.json {
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return fmt.Errorf("formatting result as JSON: %w", err)
		}
		_, _ = fmt.Fprintln(w, string(data))
		return nil
	}

	_, _ = fmt.Fprintf(w, "\nCaptured %d messages in %d blocks (start %s, end %s)\n",
		out.Messages, out.Blocks, out.StartMatch, out.EndMatch)
	if out.Duplicates > 0 {
		_, _ = fmt.Fprintf(w, "Dropped %d duplicate(s)\n", out.Duplicates)
	}
	for _, warn := range out.Warnings {
		_, _ = fmt.Fprintf(w, "Warning: %s\n", warn)
	}
	if out.CaptureID != "" {
		_, _ = fmt.Fprintf(w, "Archived as %s\n", out.CaptureID)
	}
	_, _ = fmt.Fprintf(w, "\n%s\n", out.Transcript)
	if out.Summary != "" {
		_, _ = fmt.Fprintf(w, "\n%s\n(summary by %s)\n", out.Summary, out.SummarySource)
	}
	return nil
}

// shareSummary posts a capture summary through the configured notifier.
func shareSummary(id, source string, participants []string, messages int, summary string) error {
	if Notifier == nil {
		return fmt.Errorf("notifications not configured (set notifications.enabled and notifications.slack_webhook)")
	}
	if strings.TrimSpace(summary) == "" {
		return fmt.Errorf("capture %s has no summary to share", id)
	}
	err := Notifier.Share(observability.SharedSummary{
		CaptureID:    id,
		Source:       source,
		Participants: participants,
		MessageCount: messages,
		Summary:      summary,
	})
	if err != nil {
		return fmt.Errorf("sharing summary of %s: %w", id, err)
	}
	return nil
}

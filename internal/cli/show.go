package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	showRecords bool
	showJSON    bool
)

var showCmd = &cobra.Command{
	Use:               "show <capture-id>",
	Short:             "Show an archived capture",
	Long:              `Show the metadata, transcript and summary of an archived capture.`,
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeCaptureIDs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Archive == nil {
			return fmt.Errorf("capture archive not initialized")
		}
		id := args[0]

		capture, err := Archive.Get(id)
		if err != nil {
			return err
		}
		transcript, err := Archive.Transcript(id)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if showJSON {
			payload := map[string]any{"capture": capture, "transcript": transcript}
			if showRecords {
				records, err := Archive.Records(id)
				if err != nil {
					return err
				}
				payload["records"] = records
			}
			data, err := json.MarshalIndent(payload, "", "  ")
			if err != nil {
				return fmt.Errorf("formatting capture as JSON: %w", err)
			}
			_, _ = fmt.Fprintln(out, string(data))
			return nil
		}

		_, _ = fmt.Fprintf(out, "Capture %s\n\n", capture.ID)
		_, _ = fmt.Fprintf(out, "  %-14s %s\n", "Source:", capture.Source)
		_, _ = fmt.Fprintf(out, "  %-14s %s\n", "Captured:", capture.CapturedAt.Local().Format("2006-01-02 15:04:05"))
		_, _ = fmt.Fprintf(out, "  %-14s %s (%s) .. %s (%s)\n", "Anchors:", capture.StartID, capture.StartMatch, capture.EndID, capture.EndMatch)
		_, _ = fmt.Fprintf(out, "  %-14s %d in %d blocks\n", "Messages:", capture.MessageCount, capture.BlockCount)
		if len(capture.Participants) > 0 {
			_, _ = fmt.Fprintf(out, "  %-14s %s\n", "Participants:", strings.Join(capture.Participants, ", "))
		}
		_, _ = fmt.Fprintf(out, "\n%s\n", transcript)

		if showRecords {
			records, err := Archive.Records(id)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(out, "\nRecords:")
			for _, r := range records {
				_, _ = fmt.Fprintf(out, "  %-14s %-6s %-8s %s\n", r.ID, r.Kind, r.Timestamp, r.Preview())
			}
		}

		if capture.Summary != "" {
			_, _ = fmt.Fprintf(out, "\nSummary (%s):\n\n%s\n", capture.SummarySource, capture.Summary)
		}
		return nil
	},
}

func init() {
	showCmd.Flags().BoolVar(&showRecords, "records", false, "Also list the individual message records")
	showCmd.Flags().BoolVar(&showJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(showCmd)
}

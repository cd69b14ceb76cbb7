package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

var (
	summarizeShare bool
	summarizeForce bool
)

var summarizeCmd = &cobra.Command{
	Use:   "summarize <capture-id>",
	Short: "Summarize an archived capture",
	Long: `Summarize the transcript of an archived capture and store the summary
alongside it (summary.md).

The summary comes from the Anthropic API when ANTHROPIC_API_KEY is set and
falls back to a local heuristic digest otherwise. An existing summary is
reused unless --force is given. With --share the summary is posted to the
configured Slack webhook.`,
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeCaptureIDs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Archive == nil || Recorder == nil {
			return fmt.Errorf("capture archive not initialized")
		}
		id := args[0]

		capture, err := Archive.Get(id)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		summary, source := capture.Summary, capture.SummarySource
		if summary == "" || summarizeForce {
			summary, source, err = Recorder.Summarize(ctx, id)
			if err != nil {
				return err
			}
		}

		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(out, "%s\n\n(summary of %s by %s)\n", summary, id, source)

		if summarizeShare {
			if err := shareSummary(id, capture.Source, capture.Participants, capture.MessageCount, summary); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(out, "Summary shared.")
		}
		return nil
	},
}

func init() {
	summarizeCmd.Flags().BoolVar(&summarizeShare, "share", false, "Post the summary to the configured Slack webhook")
	summarizeCmd.Flags().BoolVar(&summarizeForce, "force", false, "Regenerate an existing summary")
	rootCmd.AddCommand(summarizeCmd)
}

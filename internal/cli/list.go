package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/chatrange/pkg/models"
)

var (
	listParticipant string
	listSource      string
	listSince       string
	listMinMessages int
	listLimit       int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived captures",
	Long: `List archived captures, newest first.

Filter by participant (case-insensitive), source, age (--since 7d) or a
minimum message count.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Archive == nil {
			return fmt.Errorf("capture archive not initialized")
		}

		filter := models.CaptureFilter{
			Participant: listParticipant,
			Source:      listSource,
			MinMessages: listMinMessages,
		}
		if listSince != "" {
			since, err := parseSinceDuration(listSince)
			if err != nil {
				return fmt.Errorf("parsing --since: %w", err)
			}
			filter.Since = &since
		}

		captures, err := Archive.List(filter)
		if err != nil {
			return fmt.Errorf("listing captures: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(captures) == 0 {
			_, _ = fmt.Fprintln(out, "No captures found.")
			return nil
		}

		// Newest first.
		newest := make([]models.CapturedTranscript, 0, len(captures))
		for i := len(captures) - 1; i >= 0; i-- {
			if listLimit > 0 && len(newest) == listLimit {
				break
			}
			newest = append(newest, captures[i])
		}
		printCaptureTable(out, newest)
		return nil
	},
}

// printCaptureTable prints one line per capture.
func printCaptureTable(w io.Writer, captures []models.CapturedTranscript) {
	_, _ = fmt.Fprintf(w, "  %-8s %-16s %-5s %-3s %-24s %s\n", "ID", "CAPTURED", "MSGS", "SUM", "PARTICIPANTS", "SOURCE")
	_, _ = fmt.Fprintf(w, "  %-8s %-16s %-5s %-3s %-24s %s\n", "--", "--------", "----", "---", "------------", "------")
	for _, c := range captures {
		summarized := "-"
		if c.Summary != "" {
			summarized = "yes"
		}
		_, _ = fmt.Fprintf(w, "  %-8s %-16s %-5d %-3s %-24s %s\n",
			c.ID,
			c.CapturedAt.Local().Format("2006-01-02 15:04"),
			c.MessageCount,
			summarized,
			truncate(strings.Join(c.Participants, ", "), 24),
			c.Source,
		)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func init() {
	listCmd.Flags().StringVar(&listParticipant, "participant", "", "Only captures involving this sender")
	listCmd.Flags().StringVar(&listSource, "source", "", "Only captures from this source")
	listCmd.Flags().StringVar(&listSince, "since", "", "Only captures newer than this window (e.g. 7d, 24h)")
	listCmd.Flags().IntVar(&listMinMessages, "min-messages", 0, "Only captures with at least this many messages")
	listCmd.Flags().IntVar(&listLimit, "limit", 0, "Maximum number of captures to show")
	rootCmd.AddCommand(listCmd)
}

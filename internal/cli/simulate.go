package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/chatrange/internal/integration"
)

var (
	simFixture   string
	simSynthetic int
	simStart     string
	simEnd       string
	simMode      string
	simViewport  float64
	simFinish    finishOptions
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Capture a range from a simulated virtualized conversation",
	Long: `Capture the messages between two anchors of an in-memory virtualized
conversation, loaded from a YAML fixture or generated synthetically.

Anchors are row ids, or row indices when no row has that id. In manual mode
the simulated user scrolls from the start anchor to the end anchor while the
sampler runs; in search mode the view starts on the end anchor and the engine
has to scroll up to find the start.

Examples:
  chatrange simulate --synthetic 300 --start 20 --end 250
  chatrange simulate --fixture chat.yaml --start a1 --end c2 --mode search --archive`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if simStart == "" || simEnd == "" {
			return fmt.Errorf("--start and --end are required")
		}
		mode := integration.ScrollMode(simMode)
		if mode != integration.ScrollManual && mode != integration.ScrollSearch {
			return fmt.Errorf("invalid --mode %q: must be manual or search", simMode)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		out := cmd.OutOrStdout()
		sim := integration.Simulator{Config: *config(), Events: Events}
		if !simFinish.json {
			sim.OnStatus = statusPrinter(cmd.ErrOrStderr())
		}

		res, err := sim.Run(ctx, integration.SimulationRequest{
			Fixture:        simFixture,
			Synthetic:      simSynthetic,
			StartID:        simStart,
			EndID:          simEnd,
			Mode:           mode,
			ViewportHeight: simViewport,
		})
		if err != nil {
			return fmt.Errorf("simulating capture: %w", err)
		}
		return finishCapture(ctx, out, res, simFinish)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simFixture, "fixture", "", "YAML conversation fixture (default: synthetic conversation)")
	simulateCmd.Flags().IntVar(&simSynthetic, "synthetic", integration.DefaultSyntheticSize, "Number of messages in the synthetic conversation")
	simulateCmd.Flags().StringVar(&simStart, "start", "", "Start anchor row id or index")
	simulateCmd.Flags().StringVar(&simEnd, "end", "", "End anchor row id or index")
	simulateCmd.Flags().StringVar(&simMode, "mode", string(integration.ScrollManual), "How the end anchor is reached: manual or search")
	simulateCmd.Flags().Float64Var(&simViewport, "viewport", integration.DefaultViewportHeight, "Viewport height in pixels")
	simulateCmd.Flags().BoolVar(&simFinish.archive, "archive", false, "Store the capture in the archive")
	simulateCmd.Flags().BoolVar(&simFinish.summarize, "summarize", false, "Archive and summarize the capture")
	simulateCmd.Flags().BoolVar(&simFinish.share, "share", false, "Archive, summarize and post the summary to Slack")
	simulateCmd.Flags().BoolVar(&simFinish.json, "json", false, "Output the result as JSON")
	_ = simulateCmd.RegisterFlagCompletionFunc("mode", completeModes)
	rootCmd.AddCommand(simulateCmd)
}

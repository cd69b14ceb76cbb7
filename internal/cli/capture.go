package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/chatrange/internal/core"
	"github.com/valter-silva-au/chatrange/internal/integration"
)

var (
	captureDebuggerURL string
	capturePageURL     string
	captureHeadless    bool
	captureWait        time.Duration
	captureFinish      finishOptions
)

var captureCmd = &cobra.Command{
	Use:   "capture <start> <end>",
	Short: "Capture a range from a live chat tab",
	Long: `Capture the messages between two anchors in a live chat tab driven over
the Chrome DevTools protocol.

Each anchor is a row data-id or a piece of the message text. The start anchor
must be visible when the command runs. Then scroll the chat until the end
anchor is visible, in either direction; everything scrolled past is sampled
on the way. Rows the sampler missed are searched for before the range is
resolved.

The browser is reached through browser.debugger_url (or --debugger-url); when
none is set a browser is launched and the chat page opened.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config()
		if captureDebuggerURL == "" {
			captureDebuggerURL = cfg.Browser.DebuggerURL
		}
		if capturePageURL == "" {
			capturePageURL = cfg.Browser.PageURL
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		page, err := integration.ConnectRodPage(ctx, integration.RodPageOptions{
			DebuggerURL: captureDebuggerURL,
			Headless:    captureHeadless || cfg.Browser.Headless,
			PageURL:     capturePageURL,
			Settle:      cfg.Search.Settle,
		})
		if err != nil {
			return err
		}
		defer func() { _ = page.Close() }()

		status := cmd.ErrOrStderr()
		eng := core.NewEngine(page, core.EngineOptions{
			Capture:  cfg.Capture,
			Search:   cfg.Search,
			Resolve:  cfg.Resolve,
			Source:   capturePageURL,
			Events:   Events,
			OnStatus: statusPrinter(status),
		})

		res, err := integration.CaptureByRef(ctx, eng, page, args[0], args[1], integration.RefCaptureOptions{
			Wait: captureWait,
			OnWaiting: func(ref string) {
				_, _ = fmt.Fprintf(status, "Scroll until %q is visible (waiting up to %s)...\n", ref, captureWait)
			},
		})
		if err != nil {
			return fmt.Errorf("capturing range: %w", err)
		}
		return finishCapture(ctx, cmd.OutOrStdout(), res, captureFinish)
	},
}

func init() {
	captureCmd.Flags().StringVar(&captureDebuggerURL, "debugger-url", "", "DevTools websocket URL of a running browser (default browser.debugger_url)")
	captureCmd.Flags().StringVar(&capturePageURL, "page-url", "", "URL of the chat page (default browser.page_url)")
	captureCmd.Flags().BoolVar(&captureHeadless, "headless", false, "Launch the browser headless")
	captureCmd.Flags().DurationVar(&captureWait, "wait", integration.DefaultEndWait, "How long to wait for the end anchor to become visible")
	captureCmd.Flags().BoolVar(&captureFinish.archive, "archive", false, "Store the capture in the archive")
	captureCmd.Flags().BoolVar(&captureFinish.summarize, "summarize", false, "Archive and summarize the capture")
	captureCmd.Flags().BoolVar(&captureFinish.share, "share", false, "Archive, summarize and post the summary to Slack")
	captureCmd.Flags().BoolVar(&captureFinish.json, "json", false, "Output the result as JSON")
	rootCmd.AddCommand(captureCmd)
}

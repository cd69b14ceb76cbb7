package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/chatrange/internal/core"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the effective configuration as YAML: the defaults merged with
.chatrange.yaml. The Slack webhook is masked.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := *config()
		if cfg.Notifications.SlackWebhook != "" {
			cfg.Notifications.SlackWebhook = "********"
		}

		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("formatting config: %w", err)
		}

		out := cmd.OutOrStdout()
		if BasePath != "" {
			_, _ = fmt.Fprintf(out, "# %s\n", filepath.Join(BasePath, core.ConfigFileName+".yaml"))
		}
		_, _ = fmt.Fprint(out, string(data))
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}

// -- cmd/status.go --
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gridpilot/gridpilot/internal/observability"
	"github.com/gridpilot/gridpilot/internal/wire"
)

// statusCmd asks the hub whether it is ready to accept sessions.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check whether the hub is ready",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := wire.NewClient(appCfg.Hub, observability.GetLogger())
		ready, err := client.Status(cmd.Context())
		if err != nil {
			return fmt.Errorf("query hub status: %w", err)
		}
		if !ready {
			return fmt.Errorf("hub at %s is not ready", appCfg.Hub.BaseURL())
		}
		fmt.Fprintf(cmd.OutOrStdout(), "hub at %s is ready\n", appCfg.Hub.BaseURL())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

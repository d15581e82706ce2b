package cli

import (
	"github.com/spf13/cobra"

	"github.com/i474232898/cmip6-download/internal/config"
	"github.com/i474232898/cmip6-download/internal/console"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "List every request of the batch with its output file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		newLogger(cmd.ErrOrStderr(), flags.Verbose)

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		console.PrintPlan(cmd.OutOrStdout(), cfg.Catalog, cfg.DataDir)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(planCmd)
}

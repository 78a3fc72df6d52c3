package cli

import (
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the evaluation and backfill schedulers",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Run(cmd.Context())
	},
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Run a single evaluation cycle",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Evaluate(cmd.Context(), cmd.OutOrStdout())
	},
}

var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Run the Telegram report bot",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().RunBot(cmd.Context())
	},
}

package cli

import (
	"github.com/spf13/cobra"

	"goalline-alerts/internal/match"
)

var (
	roadHalf     string
	roadInverted bool
	reliabDays   int
)

var roadCmd = &cobra.Command{
	Use:   "road",
	Short: "Print the signal outcome road",
	RunE: func(cmd *cobra.Command, args []string) error {
		half, err := match.ParseHalf(roadHalf)
		if err != nil {
			return err
		}
		return getApp().Road(cmd.Context(), cmd.OutOrStdout(), half, roadInverted)
	},
}

var reliabilityCmd = &cobra.Command{
	Use:   "reliability",
	Short: "Backtest recent estimates against final results",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Reliability(cmd.Context(), cmd.OutOrStdout(), reliabDays)
	},
}

func init() {
	roadCmd.Flags().StringVar(&roadHalf, "half", "ht", "Market to report (ht or ft)")
	roadCmd.Flags().BoolVar(&roadInverted, "no", false, "Report from the no-goal side")
	reliabilityCmd.Flags().IntVar(&reliabDays, "days", 7, "Window in days")
}

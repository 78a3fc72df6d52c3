package cli

import (
	"github.com/spf13/cobra"

	"goalline-alerts/internal/app"
)

var (
	showLimit         int
	showNotifications bool
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show recent match records or notifications",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Show(cmd.Context(), cmd.OutOrStdout(), app.ShowOptions{
			Limit:         showLimit,
			Notifications: showNotifications,
		})
	},
}

func init() {
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of rows to display")
	showCmd.Flags().BoolVar(&showNotifications, "notifications", false, "Show the notification audit trail instead of match records")
}

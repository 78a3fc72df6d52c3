package cli

import (
	"errors"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"goalline-alerts/internal/app"
)

var (
	simulateMatch   string
	simulateHome    string
	simulateAway    string
	simulateMinute  int
	simulatePrice   string
	simulateHTLine  string
	simulateHTPrice string
	simulateFTLine  string
	simulateFTPrice string
	simulateHistory bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Run a synthetic live match through the evaluation path",
	RunE: func(cmd *cobra.Command, args []string) error {
		live, err := decimal.NewFromString(simulatePrice)
		if err != nil || !live.IsPositive() {
			return errors.New("--price must be a positive decimal")
		}
		htPrice, err := decimal.NewFromString(simulateHTPrice)
		if err != nil {
			return errors.New("--ht-price must be a decimal")
		}
		ftPrice, err := decimal.NewFromString(simulateFTPrice)
		if err != nil {
			return errors.New("--ft-price must be a decimal")
		}

		return getApp().SimulateAlert(cmd.Context(), cmd.OutOrStdout(), app.SimulateOptions{
			MatchID:    simulateMatch,
			Home:       simulateHome,
			Away:       simulateAway,
			Minute:     simulateMinute,
			LivePrice:  live,
			HTLine:     simulateHTLine,
			HTPrice:    htPrice,
			FTLine:     simulateFTLine,
			FTPrice:    ftPrice,
			UseHistory: simulateHistory,
		})
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateMatch, "match", "simulated", "Match id")
	simulateCmd.Flags().StringVar(&simulateHome, "home", "Home", "Home team")
	simulateCmd.Flags().StringVar(&simulateAway, "away", "Away", "Away team")
	simulateCmd.Flags().IntVar(&simulateMinute, "minute", 25, "Elapsed minute")
	simulateCmd.Flags().StringVar(&simulatePrice, "price", "2.05", "Live over price of the tracked line")
	simulateCmd.Flags().StringVar(&simulateHTLine, "ht-line", "0.5/1.0", "Pre-match first-half goal line")
	simulateCmd.Flags().StringVar(&simulateHTPrice, "ht-price", "1.95", "Pre-match first-half over price")
	simulateCmd.Flags().StringVar(&simulateFTLine, "ft-line", "2.5", "Pre-match full-time goal line")
	simulateCmd.Flags().StringVar(&simulateFTPrice, "ft-price", "1.90", "Pre-match full-time over price")
	simulateCmd.Flags().BoolVar(&simulateHistory, "with-history", false, "Score against the database history")
}

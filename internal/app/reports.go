package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"goalline-alerts/internal/estimator"
	"goalline-alerts/internal/match"
	"goalline-alerts/internal/report"
)

// Road prints the signal outcome road of one market.
func (a *App) Road(ctx context.Context, out io.Writer, half match.Half, inverted bool) error {
	st, err := a.requireDatabase(ctx)
	if err != nil {
		return err
	}
	defer st.close()

	history, err := st.history.GetAll(ctx, true)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, report.Road(history, report.RoadOptions{
		Half:         half,
		SuccessGoals: a.Config.Estimator.SuccessGoals,
		Inverted:     inverted,
	}))
	return nil
}

// Reliability prints the estimate backtest over a window and per day.
func (a *App) Reliability(ctx context.Context, out io.Writer, days int) error {
	st, err := a.requireDatabase(ctx)
	if err != nil {
		return err
	}
	defer st.close()

	history, err := st.history.GetAll(ctx, true)
	if err != nil {
		return err
	}
	opts := a.estimatorOptions()
	now := time.Now()
	fmt.Fprintln(out, report.Calibration(estimator.Reliability(history, now, days, opts)))
	fmt.Fprintln(out)
	fmt.Fprintln(out, report.Trend(estimator.DailyReliability(history, now, days, opts)))
	return nil
}

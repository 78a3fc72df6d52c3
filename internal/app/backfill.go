package app

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Backfill runs one result backfill pass against the configured database.
func (a *App) Backfill(ctx context.Context, out io.Writer) error {
	if a.Config.App.DryRun {
		return errors.New("backfill needs a database; disable app.dry_run")
	}
	st, err := a.requireDatabase(ctx)
	if err != nil {
		return err
	}
	defer st.close()

	feed, odds := a.newFetchers(nil)
	svc := a.newService(st, feed, odds, nil, nil)

	report, err := svc.BackfillResults(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "checked %d, completed %d, pending %d, failed %d\n",
		report.Checked, report.Completed, report.Pending, report.Failed)
	if report.Failed > 0 {
		return errors.New("部分记录回填失败，请检查日志")
	}
	return nil
}

// Evaluate runs a single evaluation cycle and prints the notifications.
func (a *App) Evaluate(ctx context.Context, out io.Writer) error {
	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.close()

	feed, odds := a.newFetchers(nil)
	svc := a.newService(st, feed, odds, a.newNotifier(), nil)

	notes, err := svc.EvaluateCycle(ctx)
	if err != nil {
		return err
	}
	if len(notes) == 0 {
		fmt.Fprintln(out, "no notifications this cycle")
		return nil
	}
	for _, n := range notes {
		fmt.Fprintf(out, "[%s/%s] %s\n%s\n\n", n.Kind, n.Half, n.Header, n.Body)
	}
	return nil
}

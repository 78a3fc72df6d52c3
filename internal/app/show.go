package app

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"goalline-alerts/internal/storage"
)

// Show prints recent history records or notifications.
func (a *App) Show(ctx context.Context, out io.Writer, opts ShowOptions) error {
	st, err := a.requireDatabase(ctx)
	if err != nil {
		return err
	}
	defer st.close()

	if opts.Notifications {
		notes, err := st.notes.ListRecentNotifications(ctx, opts.Limit)
		if err != nil {
			return err
		}
		return printNotifications(out, notes)
	}

	history, err := st.history.GetAll(ctx, true)
	if err != nil {
		return err
	}
	return printRecords(out, latestRecords(history, opts.Limit))
}

// latestRecords returns up to limit records, newest match date first.
func latestRecords(history []storage.MatchRecord, limit int) []storage.MatchRecord {
	recs := append([]storage.MatchRecord(nil), history...)
	sort.SliceStable(recs, func(i, j int) bool {
		if !recs[i].MatchDate.Equal(recs[j].MatchDate) {
			return recs[i].MatchDate.After(recs[j].MatchDate)
		}
		return recs[i].ID > recs[j].ID
	})
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs
}

func printRecords(out io.Writer, recs []storage.MatchRecord) error {
	if len(recs) == 0 {
		fmt.Fprintln(out, "no records found")
		return nil
	}

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Match\tDate\tHT Min\tHT Line\tHT Goals\tHT Prob\tFT Min\tFT Line\tFT Goals\tFT Prob")
	for _, rec := range recs {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			rec.ID,
			formatDate(rec.MatchDate),
			optionalInt(rec.HT.SignalMinute),
			lineSummary(rec.HT),
			optionalInt(rec.HT.Goals),
			optionalFloat(rec.HT.Probability),
			optionalInt(rec.FT.SignalMinute),
			lineSummary(rec.FT),
			optionalInt(rec.FT.Goals),
			optionalFloat(rec.FT.Probability),
		)
	}
	return writer.Flush()
}

func lineSummary(h storage.HalfRecord) string {
	if h.GoalLine == "" {
		return ""
	}
	return fmt.Sprintf("%s@%s", h.GoalLine, optionalDecimal(h.PrematchPrice))
}

func printNotifications(out io.Writer, notes []storage.NotificationRecord) error {
	if len(notes) == 0 {
		fmt.Fprintln(out, "no notifications found")
		return nil
	}

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tMatch\tHalf\tKind\tHeader")
	for _, n := range notes {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\n",
			n.CreatedAt.UTC().Format(time.RFC3339),
			n.MatchID,
			n.Half,
			n.Kind,
			sanitizeInline(n.Header),
		)
	}
	return writer.Flush()
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}

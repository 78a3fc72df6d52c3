package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"goalline-alerts/internal/estimator"
	"goalline-alerts/internal/report"
	"goalline-alerts/internal/storage"
)

// Export writes history as CSV and/or the daily hit-rate trend as PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)
	if opts.TrendDays <= 0 {
		opts.TrendDays = a.Config.Export.TrendDays
	}

	st, err := a.requireDatabase(ctx)
	if err != nil {
		return err
	}
	defer st.close()

	history, err := st.history.GetAll(ctx, true)
	if err != nil {
		return err
	}

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	if opts.CSVPath != "" {
		var from time.Time
		if opts.From != nil {
			from = opts.From.UTC()
		}
		if !from.IsZero() && !from.Before(to) {
			return errors.New("from must be before to")
		}
		selected := recordsBetween(history, from, to)
		if len(selected) == 0 {
			a.Logger.Info().Msg("no records found for export window")
		} else {
			downsampled := downsampleRecords(selected, opts.MaxPoints)
			a.Logger.Info().Int("total", len(selected)).Int("exported", len(downsampled)).Msg("exporting records")
			if err := writeRecordsCSV(opts.CSVPath, downsampled); err != nil {
				return err
			}
		}
	}

	if opts.PNGPath != "" {
		scores := estimator.DailyReliability(history, to, opts.TrendDays, a.estimatorOptions())
		if err := writeTrendPNG(opts.PNGPath, scores); err != nil {
			return err
		}
	}

	return nil
}

func recordsBetween(history []storage.MatchRecord, from, to time.Time) []storage.MatchRecord {
	out := make([]storage.MatchRecord, 0, len(history))
	for _, rec := range history {
		if !from.IsZero() && rec.MatchDate.Before(from) {
			continue
		}
		if rec.MatchDate.After(to) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

func downsampleRecords(records []storage.MatchRecord, max int) []storage.MatchRecord {
	if max <= 0 || len(records) <= max {
		return records
	}
	if max == 1 {
		return records[len(records)-1:]
	}

	result := make([]storage.MatchRecord, 0, max)
	step := float64(len(records)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(records) {
			idx = len(records) - 1
		}
		result = append(result, records[idx])
	}
	return result
}

var csvHeader = []string{
	"match_id", "match_date",
	"ht_signal_minute", "ht_signal_price", "ht_goal_line", "ht_prematch_price", "ht_direction", "ht_goals", "ht_probability", "ht_last_minutes",
	"ft_signal_minute", "ft_signal_price", "ft_goal_line", "ft_prematch_price", "ft_direction", "ft_goals", "ft_probability", "ft_last_minutes",
}

func writeRecordsCSV(path string, records []storage.MatchRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(csvHeader); err != nil {
		return err
	}
	for _, rec := range records {
		row := []string{rec.ID, formatDate(rec.MatchDate)}
		row = append(row, halfColumns(rec.HT)...)
		row = append(row, halfColumns(rec.FT)...)
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func halfColumns(h storage.HalfRecord) []string {
	return []string{
		optionalInt(h.SignalMinute),
		optionalDecimal(h.SignalPrice),
		h.GoalLine,
		optionalDecimal(h.PrematchPrice),
		h.Direction.String(),
		optionalInt(h.Goals),
		optionalFloat(h.Probability),
		strconv.FormatBool(h.LastMinutes),
	}
}

func writeTrendPNG(path string, scores []estimator.DayScore) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return report.RenderTrendPNG(file, scores)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}

func optionalInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func optionalFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}

func optionalDecimal(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.StringFixed(2)
}

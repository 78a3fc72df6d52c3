// Package report renders history summaries for the CLI and the chat bot.
package report

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	chart "github.com/wcharczuk/go-chart/v2"

	"goalline-alerts/internal/estimator"
	"goalline-alerts/internal/match"
	"goalline-alerts/internal/road"
	"goalline-alerts/internal/storage"
)

// RecentStrip is how many outcomes the road header lists.
const RecentStrip = 10

// RoadOptions selects which outcomes a road report covers.
type RoadOptions struct {
	Half         match.Half
	SuccessGoals int
	// Inverted reports from the "no goal" side: a half without goals is a win.
	Inverted bool
}

// SignalOutcomes returns, oldest first, whether each signalled and settled
// half produced a goal.
func SignalOutcomes(history []storage.MatchRecord, opts RoadOptions) []bool {
	if opts.SuccessGoals <= 0 {
		opts.SuccessGoals = 1
	}
	recs := make([]storage.MatchRecord, 0, len(history))
	for _, rec := range history {
		h := rec.Half(opts.Half)
		if h.Signalled() && h.Settled() {
			recs = append(recs, rec)
		}
	}
	sort.SliceStable(recs, func(i, j int) bool {
		if !recs[i].MatchDate.Equal(recs[j].MatchDate) {
			return recs[i].MatchDate.Before(recs[j].MatchDate)
		}
		return recs[i].ID < recs[j].ID
	})

	out := make([]bool, 0, len(recs))
	for _, rec := range recs {
		success := *rec.Half(opts.Half).Goals >= opts.SuccessGoals
		out = append(out, success != opts.Inverted)
	}
	return out
}

// Road renders the recent strip (newest first) followed by the road grid.
func Road(history []storage.MatchRecord, opts RoadOptions) string {
	outcomes := SignalOutcomes(history, opts)
	side := "goal"
	if opts.Inverted {
		side = "no goal"
	}

	var b strings.Builder
	if len(outcomes) == 0 {
		fmt.Fprintf(&b, "No settled %s signals yet", strings.ToUpper(opts.Half.String()))
		return b.String()
	}

	n := RecentStrip
	if n > len(outcomes) {
		n = len(outcomes)
	}
	fmt.Fprintf(&b, "Last %d %s signals, %s side (newest first):\n", n, strings.ToUpper(opts.Half.String()), side)
	for i := len(outcomes) - 1; i >= len(outcomes)-n; i-- {
		b.WriteString(mark(outcomes[i]))
	}
	b.WriteString("\n\nRoad:\n")
	b.WriteString(road.Layout(outcomes).Tail(road.DisplayColumns).String())
	return b.String()
}

func mark(ok bool) string {
	if ok {
		return "✅"
	}
	return "❌"
}

// TrendLines is how many days the text trend lists.
const TrendLines = 7

// Trend renders the daily hit rates, oldest listed day first.
func Trend(scores []estimator.DayScore) string {
	n := len(scores)
	if n > TrendLines {
		n = TrendLines
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Estimate hit rate, last %d days", n)
	for i := n - 1; i >= 0; i-- {
		s := scores[i]
		fmt.Fprintf(&b, "\n%s: %.2f%% (%d estimates)", s.Label(), s.Rate(), s.Total)
	}
	return b.String()
}

// Calibration renders a window backtest for the CLI.
func Calibration(cal estimator.Calibration) string {
	if line := cal.Render(); line != "" {
		return line
	}
	return fmt.Sprintf("Last %d days: %d estimates scored, fewer than %d needed", cal.Days, cal.Total, cal.MinSamples)
}

// ErrTooFewDays is returned when a trend has fewer than two points.
var ErrTooFewDays = errors.New("trend needs at least two days")

// RenderTrendPNG draws the daily hit rates, today at the left.
func RenderTrendPNG(w io.Writer, scores []estimator.DayScore) error {
	if len(scores) < 2 {
		return ErrTooFewDays
	}

	x := make([]float64, len(scores))
	y := make([]float64, len(scores))
	for i, s := range scores {
		x[i] = float64(s.DaysAgo)
		y[i] = s.Rate()
	}

	percent := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.0f%%")
	}
	graph := chart.Chart{
		Title:  "Estimate hit rate",
		Width:  960,
		Height: 540,
		XAxis: chart.XAxis{
			Name:           "Days ago",
			ValueFormatter: func(v interface{}) string { return chart.FloatValueFormatterWithFormat(v, "%.0f") },
		},
		YAxis: chart.YAxis{
			Name:           "Hit rate",
			Range:          &chart.ContinuousRange{Min: 0, Max: 100},
			ValueFormatter: percent,
		},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    "Hit rate",
				XValues: x,
				YValues: y,
				Style: chart.Style{
					StrokeWidth: 2,
					DotWidth:    4,
				},
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	return graph.Render(chart.PNG, w)
}

package estimator

import (
	"fmt"
	"time"

	"goalline-alerts/internal/match"
	"goalline-alerts/internal/storage"
)

// Calibration scores past estimates against realised outcomes.
type Calibration struct {
	Days       int
	Hits       int
	Total      int
	MinSamples int
}

// Rate is the hit percentage, zero without samples.
func (c Calibration) Rate() float64 {
	if c.Total == 0 {
		return 0
	}
	return float64(c.Hits) * 100 / float64(c.Total)
}

// Known reports whether enough samples exist to be worth reporting.
func (c Calibration) Known() bool {
	return c.Total >= c.MinSamples
}

// Render formats the reliability line, or returns "" when not Known.
func (c Calibration) Render() string {
	if !c.Known() {
		return ""
	}
	return fmt.Sprintf("Last %d days hit rate: %.2f%% (%d estimates)", c.Days, c.Rate(), c.Total)
}

// scoreHalf returns whether the half carries a scorable estimate and whether
// that estimate was right. An estimate of exactly 50 is never scored.
func scoreHalf(h storage.HalfRecord, opts Options) (counted, hit bool) {
	if h.Probability == nil || h.Goals == nil {
		return false, false
	}
	p := *h.Probability
	if p == 50 {
		return false, false
	}
	success := *h.Goals >= opts.SuccessGoals
	return true, (p > 50 && success) || (p < 50 && !success)
}

func dayStart(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// daysBefore counts calendar days from matchDate to asOf.
func daysBefore(asOf, matchDate time.Time) int {
	return int(dayStart(asOf).Sub(dayStart(matchDate)).Hours() / 24)
}

// Reliability backtests the estimates of matches played within days of asOf.
func Reliability(history []storage.MatchRecord, asOf time.Time, days int, opts Options) Calibration {
	opts = opts.withDefaults()
	if days <= 0 {
		days = opts.ReliabilityDays
	}

	cal := Calibration{Days: days, MinSamples: opts.MinReliabilitySamples}
	for _, rec := range history {
		if rec.MatchDate.IsZero() || daysBefore(asOf, rec.MatchDate) > days {
			continue
		}
		for _, h := range match.Halves {
			counted, hit := scoreHalf(*rec.Half(h), opts)
			if !counted {
				continue
			}
			cal.Total++
			if hit {
				cal.Hits++
			}
		}
	}
	return cal
}

// DayScore is the calibration of one calendar day.
type DayScore struct {
	DaysAgo int
	Hits    int
	Total   int
}

// Rate is the hit percentage, zero without samples.
func (d DayScore) Rate() float64 {
	if d.Total == 0 {
		return 0
	}
	return float64(d.Hits) * 100 / float64(d.Total)
}

// Label renders "today" or "N days ago".
func (d DayScore) Label() string {
	switch d.DaysAgo {
	case 0:
		return "today"
	case 1:
		return "1 day ago"
	default:
		return fmt.Sprintf("%d days ago", d.DaysAgo)
	}
}

// DailyReliability splits the backtest per day, index 0 being today.
func DailyReliability(history []storage.MatchRecord, now time.Time, days int, opts Options) []DayScore {
	opts = opts.withDefaults()
	if days <= 0 {
		days = opts.ReliabilityDays
	}

	scores := make([]DayScore, days)
	for i := range scores {
		scores[i].DaysAgo = i
	}
	for _, rec := range history {
		if rec.MatchDate.IsZero() {
			continue
		}
		ago := daysBefore(now, rec.MatchDate)
		if ago < 0 || ago >= days {
			continue
		}
		for _, h := range match.Halves {
			counted, hit := scoreHalf(*rec.Half(h), opts)
			if !counted {
				continue
			}
			scores[ago].Total++
			if hit {
				scores[ago].Hits++
			}
		}
	}
	return scores
}

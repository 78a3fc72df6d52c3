package pipeline

import (
	"github.com/shopspring/decimal"

	"goalline-alerts/internal/match"
)

// Kind tags what a notification announces.
type Kind string

const (
	KindSignal      Kind = "signal"
	KindLastMinutes Kind = "last_minutes"
)

// Notification is one message ready for a sink.
type Notification struct {
	MatchID string
	Half    match.Half
	Kind    Kind
	Header  string
	Body    string
}

// Outcome is how the evaluation of one snapshot ended.
type Outcome int

const (
	OutcomeNotified Outcome = iota
	OutcomeNotStarted
	OutcomeGoaled
	OutcomeNotLive
	OutcomeCooldown
	OutcomeOddsUnavailable
	OutcomeOutOfBand
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNotified:
		return "notified"
	case OutcomeNotStarted:
		return "not_started"
	case OutcomeGoaled:
		return "goaled"
	case OutcomeNotLive:
		return "not_live"
	case OutcomeCooldown:
		return "cooldown"
	case OutcomeOddsUnavailable:
		return "odds_unavailable"
	case OutcomeOutOfBand:
		return "out_of_band"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is the per-match outcome of a batch. Notifications may be present
// even when the match was skipped (last-minutes alerts are additive).
type Result struct {
	MatchID       string
	Half          match.Half
	Outcome       Outcome
	Price         decimal.Decimal
	Notifications []Notification
	Err           error
}

// Batch aggregates the results of one Evaluate call. Order is unspecified.
type Batch struct {
	Results []Result
}

// Notifications flattens all notifications of the batch.
func (b Batch) Notifications() []Notification {
	var out []Notification
	for _, r := range b.Results {
		out = append(out, r.Notifications...)
	}
	return out
}

// Count returns how many results ended with outcome.
func (b Batch) Count(outcome Outcome) int {
	n := 0
	for _, r := range b.Results {
		if r.Outcome == outcome {
			n++
		}
	}
	return n
}

// Failed returns the results that carry an error.
func (b Batch) Failed() []Result {
	var out []Result
	for _, r := range b.Results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}

// Result returns the result for matchID.
func (b Batch) Result(matchID string) (Result, bool) {
	for _, r := range b.Results {
		if r.MatchID == matchID {
			return r, true
		}
	}
	return Result{}, false
}

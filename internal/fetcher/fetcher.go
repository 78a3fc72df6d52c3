package fetcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"goalline-alerts/internal/match"
)

var (
	// ErrFeedUnavailable means the live feed could not be fetched at all.
	ErrFeedUnavailable = errors.New("live feed unavailable")
	// ErrOddsUnavailable means no usable price was published for the match.
	ErrOddsUnavailable = errors.New("odds unavailable")
	// ErrMalformedOddsTable means the goal-line table was missing or unreadable.
	// It is treated as ErrOddsUnavailable by callers.
	ErrMalformedOddsTable = fmt.Errorf("%w: malformed odds table", ErrOddsUnavailable)
	// ErrResultUnavailable means the final result is not published yet.
	ErrResultUnavailable = errors.New("result unavailable")
)

// LineQuote is the pre-match over price of one goal-line bucket.
type LineQuote struct {
	GoalLine  string
	Price     decimal.Decimal
	Direction match.Direction
}

// PrematchOdds groups the pre-match quotes of both markets.
type PrematchOdds struct {
	HT LineQuote
	FT LineQuote
}

// Quote returns the quote for one market.
func (p PrematchOdds) Quote(h match.Half) LineQuote {
	if h == match.HT {
		return p.HT
	}
	return p.FT
}

// FinalResult carries the goal totals of a finished match.
type FinalResult struct {
	HTGoals int
	FTGoals int
}

// Goals returns the total for one market.
func (r FinalResult) Goals(h match.Half) int {
	if h == match.HT {
		return r.HTGoals
	}
	return r.FTGoals
}

// LiveFeed lists the matches currently published by a live source.
type LiveFeed interface {
	FetchLiveMatches(ctx context.Context) ([]match.FeedRecord, error)
}

// OddsFetcher retrieves prices and results for a single match.
type OddsFetcher interface {
	FetchLivePrice(ctx context.Context, matchID string) (decimal.Decimal, error)
	FetchPrematchOdds(ctx context.Context, matchID string) (PrematchOdds, error)
	FetchFinalResult(ctx context.Context, matchID string) (FinalResult, error)
}

package fetcher

import (
	"context"

	"github.com/shopspring/decimal"
)

// LivePricer supplies the in-play price of the tracked line.
type LivePricer interface {
	FetchLivePrice(ctx context.Context, matchID string) (decimal.Decimal, error)
}

// MatchDetails supplies pre-match odds and final results.
type MatchDetails interface {
	FetchPrematchOdds(ctx context.Context, matchID string) (PrematchOdds, error)
	FetchFinalResult(ctx context.Context, matchID string) (FinalResult, error)
}

// Combined takes live prices from one source and match details from another.
type Combined struct {
	Live    LivePricer
	Details MatchDetails
}

// NewCombined wires the two halves of an OddsFetcher.
func NewCombined(live LivePricer, details MatchDetails) *Combined {
	return &Combined{Live: live, Details: details}
}

func (c *Combined) FetchLivePrice(ctx context.Context, matchID string) (decimal.Decimal, error) {
	return c.Live.FetchLivePrice(ctx, matchID)
}

func (c *Combined) FetchPrematchOdds(ctx context.Context, matchID string) (PrematchOdds, error) {
	return c.Details.FetchPrematchOdds(ctx, matchID)
}

func (c *Combined) FetchFinalResult(ctx context.Context, matchID string) (FinalResult, error) {
	return c.Details.FetchFinalResult(ctx, matchID)
}

var (
	_ OddsFetcher  = (*Combined)(nil)
	_ LivePricer   = (*HKJC)(nil)
	_ MatchDetails = (*Listing)(nil)
)

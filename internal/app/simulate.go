package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"

	"goalline-alerts/internal/fetcher"
	"goalline-alerts/internal/match"
	"goalline-alerts/internal/storage"
)

// SimulateOptions describe one synthetic in-play match.
type SimulateOptions struct {
	MatchID    string
	Home       string
	Away       string
	Minute     int
	LivePrice  decimal.Decimal
	HTLine     string
	HTPrice    decimal.Decimal
	FTLine     string
	FTPrice    decimal.Decimal
	UseHistory bool
}

// SimulateAlert runs a synthetic match through the full evaluation path and
// delivers whatever it produces. Nothing is written to the database.
func (a *App) SimulateAlert(ctx context.Context, out io.Writer, opts SimulateOptions) error {
	if opts.LivePrice.IsZero() {
		return errors.New("live price is required")
	}
	if opts.MatchID == "" {
		opts.MatchID = "simulated"
	}

	mem := storage.NewMemoryStore()
	if opts.UseHistory {
		if err := a.copyHistory(ctx, mem); err != nil {
			return err
		}
	}

	now := time.Now()
	feed := &staticFeed{record: match.FeedRecord{
		Source:    match.SourceListing,
		ID:        opts.MatchID,
		HomeName:  opts.Home,
		AwayName:  opts.Away,
		Date:      now.Format("01-02"),
		LiveBadge: true,
		ScoreText: "0-0",
		Clock:     fmt.Sprintf("%d'", opts.Minute),
	}}
	odds := &staticOdds{
		price: opts.LivePrice,
		prematch: fetcher.PrematchOdds{
			HT: fetcher.LineQuote{GoalLine: opts.HTLine, Price: opts.HTPrice},
			FT: fetcher.LineQuote{GoalLine: opts.FTLine, Price: opts.FTPrice},
		},
	}

	st := stores{history: mem, notes: mem, locker: mem, close: func() {}}
	svc := a.newService(st, feed, odds, a.newNotifier(), nil)

	notes, err := svc.EvaluateCycle(ctx)
	if err != nil {
		return err
	}
	if len(notes) == 0 {
		fmt.Fprintf(out, "no notification: live price %s outside %s-%s or match filtered\n",
			opts.LivePrice, a.Config.Pipeline.TriggerLow, a.Config.Pipeline.TriggerHigh)
		return nil
	}
	for _, n := range notes {
		fmt.Fprintf(out, "%s\n%s\n", n.Header, n.Body)
	}
	return nil
}

func (a *App) copyHistory(ctx context.Context, dst *storage.MemoryStore) error {
	st, err := a.requireDatabase(ctx)
	if err != nil {
		return err
	}
	defer st.close()

	history, err := st.history.GetAll(ctx, true)
	if err != nil {
		return err
	}
	for _, rec := range history {
		if err := dst.Upsert(ctx, rec); err != nil {
			return err
		}
	}
	a.Logger.Info().Int("records", len(history)).Msg("history loaded for simulation")
	return nil
}

type staticFeed struct {
	record match.FeedRecord
}

func (s *staticFeed) FetchLiveMatches(context.Context) ([]match.FeedRecord, error) {
	return []match.FeedRecord{s.record}, nil
}

type staticOdds struct {
	price    decimal.Decimal
	prematch fetcher.PrematchOdds
}

func (s *staticOdds) FetchLivePrice(context.Context, string) (decimal.Decimal, error) {
	return s.price, nil
}

func (s *staticOdds) FetchPrematchOdds(context.Context, string) (fetcher.PrematchOdds, error) {
	return s.prematch, nil
}

func (s *staticOdds) FetchFinalResult(context.Context, string) (fetcher.FinalResult, error) {
	return fetcher.FinalResult{}, fetcher.ErrResultUnavailable
}

var (
	_ fetcher.LiveFeed    = (*staticFeed)(nil)
	_ fetcher.OddsFetcher = (*staticOdds)(nil)
)

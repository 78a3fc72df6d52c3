// Package estimator scores a live signal against similar archived signals and
// backtests earlier estimates.
package estimator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"goalline-alerts/internal/match"
	"goalline-alerts/internal/storage"
)

// Options tune the search. Outcomes are goal counts: a half succeeds when at
// least SuccessGoals were scored, and counts as a multi-goal hit from
// MultiGoals.
type Options struct {
	MinSamples            int
	SuccessGoals          int
	MultiGoals            int
	MaxMinuteTolerance    int
	ReliabilityDays       int
	MinReliabilitySamples int
}

// DefaultOptions mirrors the production settings.
func DefaultOptions() Options {
	return Options{
		MinSamples:            10,
		SuccessGoals:          1,
		MultiGoals:            2,
		MaxMinuteTolerance:    2,
		ReliabilityDays:       3,
		MinReliabilitySamples: 4,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.MinSamples <= 0 {
		o.MinSamples = def.MinSamples
	}
	if o.SuccessGoals <= 0 {
		o.SuccessGoals = def.SuccessGoals
	}
	if o.MultiGoals <= 0 {
		o.MultiGoals = def.MultiGoals
	}
	if o.MaxMinuteTolerance < 0 {
		o.MaxMinuteTolerance = def.MaxMinuteTolerance
	}
	if o.ReliabilityDays <= 0 {
		o.ReliabilityDays = def.ReliabilityDays
	}
	if o.MinReliabilitySamples <= 0 {
		o.MinReliabilitySamples = def.MinReliabilitySamples
	}
	return o
}

// Line is a pre-match goal-line bucket and its over price.
type Line struct {
	GoalLine string
	Price    decimal.Decimal
}

// Signal describes a live trigger to be scored.
type Signal struct {
	Half      match.Half
	Minute    int
	MatchDate time.Time
	HT        Line
	FT        Line
}

// Line returns the pre-match line of one market.
func (s Signal) Line(h match.Half) Line {
	if h == match.HT {
		return s.HT
	}
	return s.FT
}

// Estimate is the outcome of a search. The zero value means no estimate.
type Estimate struct {
	Half           match.Half
	GoalLine       string
	Found          bool
	Stage          Stage
	Signal         Signal
	Total          int
	Successes      int
	MultiSuccesses int
	Rate           float64
	MultiRate      float64
	MinSamples     int
}

// Empty reports whether too few similar signals were found.
func (e Estimate) Empty() bool {
	return !e.Found
}

// Render formats the estimate section of a notification.
func (e Estimate) Render() string {
	var b strings.Builder
	b.WriteString("=== History ===\n")
	if e.Empty() {
		b.WriteString("No estimate available")
		if e.MinSamples > 0 {
			fmt.Fprintf(&b, " (fewer than %d similar matches)", e.MinSamples)
		}
		return b.String()
	}

	fmt.Fprintf(&b, "%s %s over, %d similar matches", strings.ToUpper(e.Half.String()), e.GoalLine, e.Total)
	if !e.Stage.CrossHalf {
		b.WriteString(" (this market only)")
	}
	fmt.Fprintf(&b, "\nMinute %d±%d", e.Signal.Minute, e.Stage.MinuteTol)
	for _, h := range match.Halves {
		if !e.Stage.CrossHalf && h != e.Half {
			continue
		}
		fmt.Fprintf(&b, "\n%s price %s±%s", strings.ToUpper(h.String()), e.Signal.Line(h).Price.StringFixed(2), e.Stage.PriceTol(h).StringFixed(2))
	}
	fmt.Fprintf(&b, "\n1+ goal: %.2f%%", e.Rate)
	fmt.Fprintf(&b, "\n2+ goals: %.2f%%", e.MultiRate)
	return b.String()
}

// Search walks the plan and returns the first stage reaching MinSamples.
func Search(history []storage.MatchRecord, sig Signal, opts Options) Estimate {
	opts = opts.withDefaults()
	own := sig.Half

	for _, stage := range Plan(sig, opts) {
		est := Estimate{Half: own, GoalLine: sig.Line(own).GoalLine, Stage: stage, Signal: sig, MinSamples: opts.MinSamples}
		for _, rec := range history {
			if !similar(rec, sig, stage) {
				continue
			}
			goals := *rec.Half(own).Goals
			est.Total++
			if goals >= opts.SuccessGoals {
				est.Successes++
			}
			if goals >= opts.MultiGoals {
				est.MultiSuccesses++
			}
		}
		if est.Total >= opts.MinSamples {
			est.Found = true
			est.Rate = float64(est.Successes) * 100 / float64(est.Total)
			est.MultiRate = float64(est.MultiSuccesses) * 100 / float64(est.Total)
			return est
		}
	}
	return Estimate{Half: own, GoalLine: sig.Line(own).GoalLine, Signal: sig, MinSamples: opts.MinSamples}
}

func similar(rec storage.MatchRecord, sig Signal, stage Stage) bool {
	own := sig.Half
	half := rec.Half(own)
	if !half.Signalled() || !half.Settled() {
		return false
	}
	if abs(*half.SignalMinute-sig.Minute) > stage.MinuteTol {
		return false
	}
	if !lineWithin(*half, sig.Line(own), stage.PriceTol(own)) {
		return false
	}
	if stage.CrossHalf {
		other := otherHalf(own)
		if !lineWithin(*rec.Half(other), sig.Line(other), stage.PriceTol(other)) {
			return false
		}
	}
	return true
}

func lineWithin(h storage.HalfRecord, line Line, tol decimal.Decimal) bool {
	if h.GoalLine != line.GoalLine || !h.PrematchPrice.Valid {
		return false
	}
	return h.PrematchPrice.Decimal.Sub(line.Price).Abs().LessThanOrEqual(tol)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Estimator runs searches against a history store and records the estimate
// on the match being signalled.
type Estimator struct {
	store  storage.HistoryStore
	opts   Options
	logger zerolog.Logger
}

// New constructs an estimator.
func New(store storage.HistoryStore, opts Options, logger zerolog.Logger) *Estimator {
	return &Estimator{
		store:  store,
		opts:   opts.withDefaults(),
		logger: logger.With().Str("component", "estimator").Logger(),
	}
}

// Options returns the effective options.
func (e *Estimator) Options() Options {
	return e.opts
}

// Estimate scores the signal of matchID. A found estimate is written onto the
// record's half unless a probability is already stored there.
func (e *Estimator) Estimate(ctx context.Context, matchID string, sig Signal) (Estimate, error) {
	history, err := e.store.GetAll(ctx, false)
	if err != nil {
		return Estimate{}, fmt.Errorf("load history: %w", err)
	}

	est := Search(history, sig, e.opts)
	e.logger.Debug().
		Str("match_id", matchID).
		Str("half", sig.Half.String()).
		Bool("found", est.Found).
		Int("samples", est.Total).
		Str("stage", est.Stage.String()).
		Msg("estimate computed")

	if est.Empty() {
		return est, nil
	}
	if err := e.recordProbability(ctx, matchID, sig.Half, est.Rate); err != nil {
		return est, err
	}
	return est, nil
}

func (e *Estimator) recordProbability(ctx context.Context, matchID string, h match.Half, rate float64) error {
	rec, err := e.store.GetByID(ctx, matchID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load record %s: %w", matchID, err)
	}

	half := rec.Half(h)
	if half.Probability != nil {
		return nil
	}
	half.Probability = storage.FloatPtr(rate)
	if err := e.store.Upsert(ctx, rec); err != nil {
		return fmt.Errorf("store probability for %s: %w", matchID, err)
	}
	return nil
}

// RecentReliability backtests estimates of matches played in the configured
// window before asOf, using the cached history.
func (e *Estimator) RecentReliability(ctx context.Context, asOf time.Time) (Calibration, error) {
	history, err := e.store.GetAll(ctx, false)
	if err != nil {
		return Calibration{}, fmt.Errorf("load history: %w", err)
	}
	return Reliability(history, asOf, e.opts.ReliabilityDays, e.opts), nil
}

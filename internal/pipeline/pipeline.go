// Package pipeline evaluates live match snapshots concurrently and produces
// signal notifications.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"goalline-alerts/internal/estimator"
	"goalline-alerts/internal/fetcher"
	"goalline-alerts/internal/ledger"
	"goalline-alerts/internal/match"
	"goalline-alerts/internal/storage"
)

// Config tunes the pipeline.
type Config struct {
	Workers             int
	TriggerLow          decimal.Decimal
	TriggerHigh         decimal.Decimal
	TrackedLine         string
	CooldownCapacity    int
	LastMinutesCapacity int
	HTLastMinutes       int
	FTLastMinutes       int
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		Workers:             16,
		TriggerLow:          decimal.RequireFromString("2.0"),
		TriggerHigh:         decimal.RequireFromString("2.15"),
		TrackedLine:         "0.5/1.0",
		CooldownCapacity:    50,
		LastMinutesCapacity: 5,
		HTLastMinutes:       41,
		FTLastMinutes:       86,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Workers <= 0 {
		c.Workers = def.Workers
	}
	if c.TriggerLow.IsZero() && c.TriggerHigh.IsZero() {
		c.TriggerLow, c.TriggerHigh = def.TriggerLow, def.TriggerHigh
	}
	if c.TrackedLine == "" {
		c.TrackedLine = def.TrackedLine
	}
	if c.CooldownCapacity <= 0 {
		c.CooldownCapacity = def.CooldownCapacity
	}
	if c.LastMinutesCapacity <= 0 {
		c.LastMinutesCapacity = def.LastMinutesCapacity
	}
	if c.HTLastMinutes <= 0 {
		c.HTLastMinutes = def.HTLastMinutes
	}
	if c.FTLastMinutes <= 0 {
		c.FTLastMinutes = def.FTLastMinutes
	}
	return c
}

// InBand reports whether price lies in the closed trigger band.
func (c Config) InBand(price decimal.Decimal) bool {
	return !price.LessThan(c.TriggerLow) && !price.GreaterThan(c.TriggerHigh)
}

// Estimator scores signals against history.
type Estimator interface {
	Estimate(ctx context.Context, matchID string, sig estimator.Signal) (estimator.Estimate, error)
	RecentReliability(ctx context.Context, asOf time.Time) (estimator.Calibration, error)
}

// Recorder receives per-match outcomes.
type Recorder interface {
	RecordOutcome(half, outcome string)
}

// Pipeline owns the cooldown state of one evaluator. Ledgers live as long as
// the pipeline and are shared by its workers.
type Pipeline struct {
	cfg      Config
	odds     fetcher.OddsFetcher
	store    storage.HistoryStore
	est      Estimator
	recorder Recorder
	logger   zerolog.Logger
	now      func() time.Time

	cooldown    map[match.Half]*ledger.Ledger
	lastMinutes map[match.Half]*ledger.Ledger
}

// Option customises a pipeline.
type Option func(*Pipeline)

// WithRecorder attaches an outcome recorder.
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) {
		p.recorder = r
	}
}

// WithClock overrides the wall clock used for reliability windows.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

// New constructs a pipeline.
func New(cfg Config, odds fetcher.OddsFetcher, store storage.HistoryStore, est Estimator, logger zerolog.Logger, opts ...Option) *Pipeline {
	cfg = cfg.withDefaults()
	p := &Pipeline{
		cfg:    cfg,
		odds:   odds,
		store:  store,
		est:    est,
		logger: logger.With().Str("component", "pipeline").Logger(),
		now:    time.Now,
		cooldown: map[match.Half]*ledger.Ledger{
			match.HT: ledger.New(cfg.CooldownCapacity),
			match.FT: ledger.New(cfg.CooldownCapacity),
		},
		lastMinutes: map[match.Half]*ledger.Ledger{
			match.HT: ledger.New(cfg.LastMinutesCapacity),
			match.FT: ledger.New(cfg.LastMinutesCapacity),
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Config returns the effective configuration.
func (p *Pipeline) Config() Config {
	return p.cfg
}

// Cooldown exposes the ledger of one market.
func (p *Pipeline) Cooldown(h match.Half) *ledger.Ledger {
	return p.cooldown[h]
}

// Evaluate drains snaps with a fixed worker pool and blocks until every
// distinct match has a result. Repeated ids keep their first snapshot only,
// so no two workers ever hold the same match. Failures stay confined to their
// own Result. Calls must not overlap on one pipeline.
func (p *Pipeline) Evaluate(ctx context.Context, snaps []match.Snapshot) Batch {
	snaps = p.uniqueByID(snaps)
	queue := make(chan match.Snapshot, len(snaps))
	for _, s := range snaps {
		queue <- s
	}
	close(queue)

	workers := p.cfg.Workers
	if workers > len(snaps) {
		workers = len(snaps)
	}

	var (
		mu      sync.Mutex
		results = make([]Result, 0, len(snaps))
		wg      sync.WaitGroup
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for snap := range queue {
				res := p.evaluateSafe(ctx, snap)
				if p.recorder != nil {
					p.recorder.RecordOutcome(res.Half.String(), res.Outcome.String())
				}
				mu.Lock()
				results = append(results, res)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	return Batch{Results: results}
}

func (p *Pipeline) uniqueByID(snaps []match.Snapshot) []match.Snapshot {
	seen := make(map[string]struct{}, len(snaps))
	out := make([]match.Snapshot, 0, len(snaps))
	for _, s := range snaps {
		if _, dup := seen[s.ID]; dup {
			p.logger.Debug().Str("match_id", s.ID).Msg("duplicate snapshot dropped")
			continue
		}
		seen[s.ID] = struct{}{}
		out = append(out, s)
	}
	return out
}

func (p *Pipeline) evaluateSafe(ctx context.Context, snap match.Snapshot) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().
				Str("match_id", snap.ID).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("match evaluation panicked")
			res.MatchID = snap.ID
			res.Outcome = OutcomeFailed
			res.Err = fmt.Errorf("evaluate %s: panic: %v", snap.ID, r)
		}
	}()
	return p.evaluate(ctx, snap)
}

func (p *Pipeline) evaluate(ctx context.Context, snap match.Snapshot) Result {
	res := Result{MatchID: snap.ID}
	log := p.logger.With().Str("match_id", snap.ID).Logger()

	if !snap.Started {
		log.Debug().Msg("not started")
		res.Outcome = OutcomeNotStarted
		return res
	}

	half := snap.Half()
	res.Half = half
	log = log.With().Str("half", half.String()).Int("minute", snap.Elapsed).Logger()

	if snap.Goaled {
		log.Debug().Msg("already goaled")
		res.Outcome = OutcomeGoaled
		return res
	}
	if !snap.Live {
		log.Debug().Msg("no in-play market")
		res.Outcome = OutcomeNotLive
		return res
	}

	if note, ok := p.lastMinutesAlert(ctx, snap, half, log); ok {
		res.Notifications = append(res.Notifications, note)
	}

	if p.cooldown[half].Contains(snap.ID) {
		log.Debug().Msg("already notified this half")
		res.Outcome = OutcomeCooldown
		return res
	}

	price, err := p.odds.FetchLivePrice(ctx, snap.ID)
	if err != nil {
		return p.oddsFailure(res, err, "live price", log)
	}
	res.Price = price
	if !p.cfg.InBand(price) {
		log.Debug().Str("price", price.String()).Msg("price outside trigger band")
		res.Outcome = OutcomeOutOfBand
		return res
	}

	prematch, err := p.odds.FetchPrematchOdds(ctx, snap.ID)
	if err != nil {
		return p.oddsFailure(res, err, "prematch odds", log)
	}

	p.recordSignal(ctx, snap, half, price, prematch, log)

	sig := estimator.Signal{
		Half:      half,
		Minute:    snap.Elapsed,
		MatchDate: snap.MatchDate,
		HT:        estimator.Line{GoalLine: prematch.HT.GoalLine, Price: prematch.HT.Price},
		FT:        estimator.Line{GoalLine: prematch.FT.GoalLine, Price: prematch.FT.Price},
	}
	est, err := p.est.Estimate(ctx, snap.ID, sig)
	if err != nil {
		log.Warn().Err(err).Msg("estimate failed")
	}
	asOf := snap.MatchDate
	if asOf.IsZero() {
		asOf = p.now()
	}
	cal, err := p.est.RecentReliability(ctx, asOf)
	if err != nil {
		log.Warn().Err(err).Msg("reliability failed")
	}

	res.Notifications = append(res.Notifications, Notification{
		MatchID: snap.ID,
		Half:    half,
		Kind:    KindSignal,
		Header:  fmt.Sprintf("%s vs %s: live %s over at %s", snap.HomeName, snap.AwayName, p.cfg.TrackedLine, price.StringFixed(2)),
		Body:    signalBody(snap, prematch.Quote(half), est, cal),
	})

	p.cooldown[half].Add(snap.ID)
	res.Outcome = OutcomeNotified
	log.Info().Str("price", price.String()).Bool("estimated", !est.Empty()).Msg("signal notified")
	return res
}

func (p *Pipeline) oddsFailure(res Result, err error, what string, log zerolog.Logger) Result {
	if errors.Is(err, fetcher.ErrOddsUnavailable) {
		log.Debug().Err(err).Msgf("%s unavailable", what)
		res.Outcome = OutcomeOddsUnavailable
		return res
	}
	log.Warn().Err(err).Msgf("fetch %s failed", what)
	res.Outcome = OutcomeFailed
	res.Err = fmt.Errorf("fetch %s for %s: %w", what, res.MatchID, err)
	return res
}

func (p *Pipeline) lastMinutesAlert(ctx context.Context, snap match.Snapshot, half match.Half, log zerolog.Logger) (Notification, bool) {
	var label string
	switch {
	case snap.Phase == match.PhaseFirstHalf && snap.Elapsed >= p.cfg.HTLastMinutes:
		label = "first half"
	case half == match.FT && snap.Elapsed >= p.cfg.FTLastMinutes:
		label = "full time"
	default:
		return Notification{}, false
	}
	if !p.lastMinutes[half].Add(snap.ID) {
		return Notification{}, false
	}

	rec, err := p.store.GetByID(ctx, snap.ID)
	switch {
	case err == nil:
		rec.Half(half).LastMinutes = true
		if err := p.store.Upsert(ctx, rec); err != nil {
			log.Warn().Err(err).Msg("flag last minutes failed")
		}
	case !errors.Is(err, storage.ErrNotFound):
		log.Warn().Err(err).Msg("load record for last minutes failed")
	}

	log.Info().Msg("last minutes alert")
	return Notification{
		MatchID: snap.ID,
		Half:    half,
		Kind:    KindLastMinutes,
		Header:  fmt.Sprintf("%s vs %s: %s final minutes", snap.HomeName, snap.AwayName, label),
		Body:    fmt.Sprintf("Clock: %s", snap.ClockText),
	}, true
}

// recordSignal creates the record on a first-half signal and fills the
// full-time fields of an existing record on a second-half signal.
func (p *Pipeline) recordSignal(ctx context.Context, snap match.Snapshot, half match.Half, price decimal.Decimal, prematch fetcher.PrematchOdds, log zerolog.Logger) {
	rec, err := p.store.GetByID(ctx, snap.ID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		if half != match.HT {
			log.Debug().Msg("no first-half record, full-time signal not archived")
			return
		}
		rec = storage.MatchRecord{ID: snap.ID, MatchDate: snap.MatchDate}
	case err != nil:
		log.Warn().Err(err).Msg("load record failed")
		return
	}

	h := rec.Half(half)
	if h.Signalled() {
		return
	}
	h.SignalMinute = storage.IntPtr(snap.Elapsed)
	h.SignalPrice = decimal.NewNullDecimal(price)
	for _, market := range match.Halves {
		quote := prematch.Quote(market)
		target := rec.Half(market)
		if target.GoalLine == "" {
			target.GoalLine = quote.GoalLine
			target.PrematchPrice = decimal.NewNullDecimal(quote.Price)
			target.Direction = quote.Direction
		}
	}
	if rec.MatchDate.IsZero() {
		rec.MatchDate = snap.MatchDate
	}

	if err := p.store.Upsert(ctx, rec); err != nil {
		log.Warn().Err(err).Msg("store signal failed")
	}
}

func signalBody(snap match.Snapshot, quote fetcher.LineQuote, est estimator.Estimate, cal estimator.Calibration) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Clock: %s\n", snap.ClockText)
	fmt.Fprintf(&b, "Pre-match: %s over @ %s, %s", quote.GoalLine, quote.Price.StringFixed(2), quote.Direction)
	b.WriteString("\n\n")
	b.WriteString(est.Render())
	if line := cal.Render(); line != "" {
		b.WriteString("\n")
		b.WriteString(line)
	}
	return b.String()
}

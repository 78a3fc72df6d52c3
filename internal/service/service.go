package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"goalline-alerts/internal/alerting"
	"goalline-alerts/internal/fetcher"
	"goalline-alerts/internal/match"
	"goalline-alerts/internal/pipeline"
	"goalline-alerts/internal/storage"
)

// ErrCycleInProgress is returned when a cycle is requested while another one
// is still running. The request is dropped, not queued.
var ErrCycleInProgress = errors.New("evaluation cycle already in progress")

// Recorder receives cycle level measurements.
type Recorder interface {
	RecordCycle(elapsed time.Duration, snapshots, notifications int, err error)
	RecordDelivery(kind string, err error)
	RecordBackfill(completed, pending, failed int)
}

// Config holds service tunables.
type Config struct {
	LockKey               int64
	NotificationRetention time.Duration
}

// Deps wires the collaborators of a Service.
type Deps struct {
	Feed          fetcher.LiveFeed
	Odds          fetcher.OddsFetcher
	Normalizer    *match.Normalizer
	Pipeline      *pipeline.Pipeline
	History       storage.HistoryStore
	Notifications storage.NotificationStore
	Notifier      alerting.Notifier
	Locker        storage.AdvisoryLocker
	Recorder      Recorder
}

// Service orchestrates polling, evaluation, delivery and result backfill.
type Service struct {
	feed       fetcher.LiveFeed
	odds       fetcher.OddsFetcher
	normalizer *match.Normalizer
	pipeline   *pipeline.Pipeline
	history    storage.HistoryStore
	notes      storage.NotificationStore
	notifier   alerting.Notifier
	locker     storage.AdvisoryLocker
	recorder   Recorder
	logger     zerolog.Logger

	lockKey   int64
	retention time.Duration
	now       func() time.Time

	evaluating  atomic.Bool
	backfilling atomic.Bool
}

// BackfillReport summarises one backfill pass.
type BackfillReport struct {
	Checked   int
	Completed int
	Pending   int
	Failed    int
}

// New constructs the service.
func New(cfg Config, deps Deps, logger zerolog.Logger) *Service {
	locker := deps.Locker
	if locker == nil {
		if l, ok := deps.History.(storage.AdvisoryLocker); ok {
			locker = l
		}
	}
	normalizer := deps.Normalizer
	if normalizer == nil {
		normalizer = match.NewNormalizer(nil, nil)
	}

	return &Service{
		feed:       deps.Feed,
		odds:       deps.Odds,
		normalizer: normalizer,
		pipeline:   deps.Pipeline,
		history:    deps.History,
		notes:      deps.Notifications,
		notifier:   deps.Notifier,
		locker:     locker,
		recorder:   deps.Recorder,
		logger:     logger.With().Str("component", "service").Logger(),
		lockKey:    cfg.LockKey,
		retention:  cfg.NotificationRetention,
		now:        time.Now,
	}
}

// EvaluateTick adapts EvaluateCycle to the scheduler.
func (s *Service) EvaluateTick(ctx context.Context, _ time.Time) error {
	_, err := s.EvaluateCycle(ctx)
	if errors.Is(err, ErrCycleInProgress) || errors.Is(err, fetcher.ErrFeedUnavailable) {
		s.logger.Warn().Err(err).Msg("evaluation cycle skipped")
		return nil
	}
	return err
}

// BackfillTick adapts BackfillResults to the scheduler.
func (s *Service) BackfillTick(ctx context.Context, _ time.Time) error {
	_, err := s.BackfillResults(ctx)
	if errors.Is(err, ErrCycleInProgress) {
		s.logger.Warn().Msg("backfill skipped, previous pass still running")
		return nil
	}
	return err
}

// EvaluateCycle polls the live feed once, evaluates every in-play match and
// delivers the resulting notifications.
func (s *Service) EvaluateCycle(ctx context.Context) ([]pipeline.Notification, error) {
	if !s.evaluating.CompareAndSwap(false, true) {
		return nil, ErrCycleInProgress
	}
	defer s.evaluating.Store(false)

	started := s.now()
	log := s.logger.With().Str("cycle_id", uuid.NewString()).Logger()

	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return nil, err
	}
	if !proceed {
		log.Debug().Msg("skip cycle because advisory lock held elsewhere")
		return nil, nil
	}
	if unlock != nil {
		defer unlock()
	}

	notes, snaps, err := s.runCycle(ctx, log)
	if s.recorder != nil {
		s.recorder.RecordCycle(s.now().Sub(started), snaps, len(notes), err)
	}
	return notes, err
}

func (s *Service) runCycle(ctx context.Context, log zerolog.Logger) ([]pipeline.Notification, int, error) {
	raw, err := s.feed.FetchLiveMatches(ctx)
	if err != nil {
		if !errors.Is(err, fetcher.ErrFeedUnavailable) {
			err = fmt.Errorf("%w: %v", fetcher.ErrFeedUnavailable, err)
		}
		log.Warn().Err(err).Msg("live feed unavailable")
		return nil, 0, err
	}

	snaps := s.normalize(raw, log)
	batch := s.pipeline.Evaluate(ctx, snaps)
	for _, res := range batch.Failed() {
		log.Error().Err(res.Err).Str("match_id", res.MatchID).Msg("match evaluation failed")
	}

	notes := batch.Notifications()
	for _, n := range notes {
		s.deliver(ctx, n, log)
	}

	log.Info().
		Int("feed_records", len(raw)).
		Int("snapshots", len(snaps)).
		Int("notifications", len(notes)).
		Int("failed", len(batch.Failed())).
		Msg("evaluation cycle finished")
	return notes, len(snaps), nil
}

func (s *Service) normalize(raw []match.FeedRecord, log zerolog.Logger) []match.Snapshot {
	snaps := make([]match.Snapshot, 0, len(raw))
	ids := make([]string, 0, len(raw))
	for _, rec := range raw {
		ids = append(ids, rec.ID)
		snap, err := s.normalizer.Normalize(rec)
		switch {
		case err == nil:
			snaps = append(snaps, snap)
		case errors.Is(err, match.ErrNotInPlay):
			log.Debug().Str("match_id", rec.ID).Str("state", rec.State).Msg("match not in play")
		default:
			log.Warn().Err(err).Str("match_id", rec.ID).Msg("skip malformed feed record")
		}
	}
	// 离开列表的比赛不再计时
	if dropped := s.normalizer.Clock().Retain(ids); dropped > 0 {
		log.Debug().Int("dropped", dropped).Msg("forgot matches gone from the feed")
	}
	return snaps
}

func (s *Service) deliver(ctx context.Context, n pipeline.Notification, log zerolog.Logger) {
	var sendErr error
	if s.notifier != nil {
		sendErr = s.notifier.Send(ctx, n.Header, n.Body)
		if sendErr != nil {
			log.Error().Err(sendErr).Str("match_id", n.MatchID).Msg("failed to dispatch notification")
		}
	}
	if s.recorder != nil {
		s.recorder.RecordDelivery(string(n.Kind), sendErr)
	}

	if s.notes == nil {
		return
	}
	rec := storage.NotificationRecord{
		MatchID: n.MatchID,
		Half:    n.Half.String(),
		Kind:    string(n.Kind),
		Header:  n.Header,
		Body:    n.Body,
	}
	if _, err := s.notes.InsertNotification(ctx, rec); err != nil && !errors.Is(err, storage.ErrNotConfigured) {
		log.Error().Err(err).Str("match_id", n.MatchID).Msg("failed to persist notification record")
	}
}

// BackfillResults fills in the final goals and pre-match lines of every
// archived record still missing an outcome. Per-record failures are counted
// and skipped.
func (s *Service) BackfillResults(ctx context.Context) (BackfillReport, error) {
	var report BackfillReport
	if !s.backfilling.CompareAndSwap(false, true) {
		return report, ErrCycleInProgress
	}
	defer s.backfilling.Store(false)

	records, err := s.history.GetAll(ctx, true)
	if err != nil {
		return report, fmt.Errorf("load history: %w", err)
	}

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if rec.Complete() {
			continue
		}
		report.Checked++

		log := s.logger.With().Str("match_id", rec.ID).Logger()
		done, err := s.backfillRecord(ctx, rec.ID)
		switch {
		case err != nil:
			report.Failed++
			log.Warn().Err(err).Msg("backfill failed")
		case !done:
			report.Pending++
			log.Debug().Msg("result not published yet")
		default:
			report.Completed++
			log.Info().Msg("result backfilled")
		}
	}

	if report.Completed > 0 {
		if _, err := s.history.GetAll(ctx, true); err != nil {
			s.logger.Warn().Err(err).Msg("refresh history cache failed")
		}
	}
	s.pruneNotifications(ctx)

	if s.recorder != nil {
		s.recorder.RecordBackfill(report.Completed, report.Pending, report.Failed)
	}
	s.logger.Info().
		Int("checked", report.Checked).
		Int("completed", report.Completed).
		Int("pending", report.Pending).
		Int("failed", report.Failed).
		Msg("backfill finished")
	return report, nil
}

func (s *Service) backfillRecord(ctx context.Context, id string) (bool, error) {
	result, err := s.odds.FetchFinalResult(ctx, id)
	if errors.Is(err, fetcher.ErrResultUnavailable) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("fetch final result: %w", err)
	}

	prematch, err := s.odds.FetchPrematchOdds(ctx, id)
	if err != nil {
		return false, fmt.Errorf("fetch prematch odds: %w", err)
	}

	// 重新读取，保留评估周期在此期间写入的字段
	rec, err := s.history.GetByID(ctx, id)
	if err != nil {
		return false, fmt.Errorf("reload record: %w", err)
	}

	for _, h := range match.Halves {
		half := rec.Half(h)
		quote := prematch.Quote(h)
		half.Goals = storage.IntPtr(result.Goals(h))
		if quote.GoalLine != "" {
			half.GoalLine = quote.GoalLine
			half.PrematchPrice.Decimal = quote.Price
			half.PrematchPrice.Valid = true
			half.Direction = quote.Direction
		}
	}

	if err := s.history.Upsert(ctx, rec); err != nil {
		return false, fmt.Errorf("store result: %w", err)
	}
	return true, nil
}

func (s *Service) pruneNotifications(ctx context.Context) {
	if s.notes == nil || s.retention <= 0 {
		return
	}
	cutoff := s.now().Add(-s.retention)
	if err := s.notes.DeleteNotificationsBefore(ctx, cutoff); err != nil && !errors.Is(err, storage.ErrNotConfigured) {
		s.logger.Warn().Err(err).Msg("prune notifications failed")
		return
	}
	s.logger.Debug().Time("cutoff", cutoff).Msg("old notifications pruned")
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if errors.Is(err, storage.ErrNotConfigured) {
		return nil, true, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}

package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"goalline-alerts/internal/alerting"
	"goalline-alerts/internal/bot"
	"goalline-alerts/internal/config"
	"goalline-alerts/internal/estimator"
	"goalline-alerts/internal/fetcher"
	"goalline-alerts/internal/match"
	"goalline-alerts/internal/metrics"
	"goalline-alerts/internal/pipeline"
	"goalline-alerts/internal/scheduler"
	"goalline-alerts/internal/service"
	"goalline-alerts/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

// stores bundles the persistence interfaces handed to the service.
type stores struct {
	history storage.HistoryStore
	notes   storage.NotificationStore
	locker  storage.AdvisoryLocker
	close   func()
}

func (a *App) newFetchers(observe fetcher.ObserveFunc) (fetcher.LiveFeed, fetcher.OddsFetcher) {
	feedCfg := a.Config.Feed
	hkjc := fetcher.NewHKJC(fetcher.HKJCOptions{
		BaseURL:       feedCfg.HKJC.BaseURL,
		UserAgent:     feedCfg.HKJC.UserAgent,
		Timeout:       feedCfg.HKJC.RequestTimeout,
		TrackedLine:   a.Config.Pipeline.TrackedLine,
		RetryAttempts: feedCfg.HKJC.RetryAttempts,
		RetryBackoff:  feedCfg.HKJC.RetryBackoff,
		RateLimit:     feedCfg.HKJC.RateLimit,
		Burst:         feedCfg.HKJC.Burst,
		Observe:       observe,
	}, a.Logger)

	listing := fetcher.NewListing(fetcher.ListingOptions{
		BaseURL:   feedCfg.Listing.BaseURL,
		UserAgent: feedCfg.Listing.UserAgent,
		Timeout:   feedCfg.Listing.RequestTimeout,
		RateLimit: feedCfg.Listing.RateLimit,
		Burst:     feedCfg.Listing.Burst,
		Observe:   observe,
	}, a.Logger)

	var feed fetcher.LiveFeed = hkjc
	if feedCfg.Source == config.SourceListing {
		feed = listing
	}
	return feed, fetcher.NewCombined(hkjc, listing)
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.App.DryRun || !a.Config.Alerting.Enabled {
		return alerting.NewLogNotifier(a.Logger)
	}
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.Fanout{
			alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, cfg.RequestTimeout, a.Logger),
			alerting.NewLogNotifier(a.Logger),
		}
	}
	return alerting.NewLogNotifier(a.Logger)
}

// openStore connects to PostgreSQL, or falls back to memory in dry-run mode
// and when no DSN is configured.
func (a *App) openStore(ctx context.Context) (stores, error) {
	if a.Config.App.DryRun || a.Config.Database.DSN == "" {
		mem := storage.NewMemoryStore()
		return stores{history: mem, notes: mem, locker: mem, close: func() {}}, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return stores{}, err
	}
	if a.Config.Database.AutoMigrate {
		if err := storage.Migrate(ctx, pool, a.Config.Database.MigrationsPath); err != nil {
			pool.Close()
			return stores{}, err
		}
	}

	store := storage.NewStore(pool)
	return stores{history: store, notes: store, locker: store, close: store.Close}, nil
}

// requireDatabase opens the PostgreSQL store for read commands.
func (a *App) requireDatabase(ctx context.Context) (stores, error) {
	if a.Config.Database.DSN == "" {
		return stores{}, errors.New("database not configured; set database.dsn")
	}
	return a.openStore(ctx)
}

func (a *App) estimatorOptions() estimator.Options {
	c := a.Config.Estimator
	return estimator.Options{
		MinSamples:            c.MinSamples,
		SuccessGoals:          c.SuccessGoals,
		MultiGoals:            c.MultiGoals,
		MaxMinuteTolerance:    c.MaxMinuteTolerance,
		ReliabilityDays:       c.ReliabilityDays,
		MinReliabilitySamples: c.MinReliabilitySamples,
	}
}

func (a *App) pipelineConfig() pipeline.Config {
	c := a.Config.Pipeline
	return pipeline.Config{
		Workers:             c.Workers,
		TriggerLow:          c.TriggerLow,
		TriggerHigh:         c.TriggerHigh,
		TrackedLine:         c.TrackedLine,
		CooldownCapacity:    c.CooldownCapacity,
		LastMinutesCapacity: c.LastMinutesCapacity,
		HTLastMinutes:       c.HTLastMinutes,
		FTLastMinutes:       c.FTLastMinutes,
	}
}

// newService wires the evaluation service. m may be nil.
func (a *App) newService(st stores, feed fetcher.LiveFeed, odds fetcher.OddsFetcher, notifier alerting.Notifier, m *metrics.Metrics) *service.Service {
	est := estimator.New(st.history, a.estimatorOptions(), a.Logger)

	var pipeOpts []pipeline.Option
	deps := service.Deps{
		Feed:          feed,
		Odds:          odds,
		Normalizer:    match.NewNormalizer(nil, nil),
		History:       st.history,
		Notifications: st.notes,
		Notifier:      notifier,
		Locker:        st.locker,
	}
	if m != nil {
		pipeOpts = append(pipeOpts, pipeline.WithRecorder(m))
		deps.Recorder = m
	}
	deps.Pipeline = pipeline.New(a.pipelineConfig(), odds, st.history, est, a.Logger, pipeOpts...)

	return service.New(service.Config{
		LockKey:               a.Config.Scheduler.AdvisoryLockKey,
		NotificationRetention: a.Config.Alerting.NotificationRetention,
	}, deps, a.Logger)
}

func (a *App) newBot(history storage.HistoryStore) (*bot.Bot, error) {
	api, err := tgbotapi.NewBotAPI(a.Config.Bot.Token)
	if err != nil {
		return nil, err
	}
	api.Debug = a.Config.Bot.Debug
	return bot.New(api, history, bot.Options{
		AllowedChats: a.Config.Bot.AllowedChats,
		PollTimeout:  a.Config.Bot.PollTimeout,
		Estimator:    a.estimatorOptions(),
	}, a.Logger), nil
}

// Run executes the long-running watcher: evaluation and backfill schedulers,
// plus the metrics endpoint and command bot when enabled.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.close()
	if a.Config.Database.DSN == "" {
		a.Logger.Warn().Msg("database.dsn not configured; history kept in memory")
	}

	var m *metrics.Metrics
	var observe fetcher.ObserveFunc
	if a.Config.Metrics.Enabled {
		m = metrics.New()
		observe = m.ObserveFetch
	}

	feed, odds := a.newFetchers(observe)
	svc := a.newService(st, feed, odds, a.newNotifier(), m)

	sc := a.Config.Scheduler
	evaluate := scheduler.New(scheduler.Options{
		Name:         "evaluate",
		Interval:     sc.EvaluateInterval,
		AlignToStart: sc.AlignToInterval,
		StartupDelay: sc.StartupDelay,
		Immediate:    true,
	}, a.Logger)
	backfill := scheduler.New(scheduler.Options{
		Name:         "backfill",
		Interval:     sc.BackfillInterval,
		AlignToStart: sc.AlignToInterval,
		StartupDelay: sc.StartupDelay,
		Immediate:    true,
	}, a.Logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return evaluate.Run(gctx, svc.EvaluateTick) })
	g.Go(func() error { return backfill.Run(gctx, svc.BackfillTick) })
	if m != nil {
		g.Go(func() error { return m.Serve(gctx, a.Config.Metrics.Addr, a.Config.Metrics.Path, a.Logger) })
	}
	if a.Config.Bot.Enabled {
		b, err := a.newBot(st.history)
		if err != nil {
			return err
		}
		g.Go(func() error { return b.Run(gctx) })
	}

	a.Logger.Info().
		Str("feed", a.Config.Feed.Source).
		Dur("evaluate_interval", sc.EvaluateInterval).
		Dur("backfill_interval", sc.BackfillInterval).
		Msg("starting goal-line watcher")

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("watcher terminated with error")
		return err
	}

	a.Logger.Info().Msg("goal-line watcher stopped")
	return nil
}

// RunBot runs only the command bot.
func (a *App) RunBot(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if a.Config.Bot.Token == "" {
		return errors.New("bot.token not configured")
	}
	st, err := a.requireDatabase(ctx)
	if err != nil {
		return err
	}
	defer st.close()

	b, err := a.newBot(st.history)
	if err != nil {
		return err
	}
	if err := b.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// ExportOptions hold parameters for exporting history.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
	TrendDays int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit         int
	Notifications bool
}

// Package bot answers report commands over Telegram.
package bot

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"goalline-alerts/internal/estimator"
	"goalline-alerts/internal/match"
	"goalline-alerts/internal/report"
	"goalline-alerts/internal/storage"
)

// Day window bounds for /data_day and /reliability.
const (
	defaultDays = 10
	minDays     = 3
	maxDays     = 30
)

// Options configure the bot.
type Options struct {
	AllowedChats []int64
	PollTimeout  int
	Estimator    estimator.Options
}

// Bot polls Telegram for commands and replies with reports.
type Bot struct {
	api     *tgbotapi.BotAPI
	history storage.HistoryStore
	opts    Options
	allowed map[int64]bool
	now     func() time.Time
	logger  zerolog.Logger
}

// New wires a bot. api may be nil when only Handle is used.
func New(api *tgbotapi.BotAPI, history storage.HistoryStore, opts Options, logger zerolog.Logger) *Bot {
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 60
	}
	allowed := make(map[int64]bool, len(opts.AllowedChats))
	for _, id := range opts.AllowedChats {
		allowed[id] = true
	}
	return &Bot{
		api:     api,
		history: history,
		opts:    opts,
		allowed: allowed,
		now:     time.Now,
		logger:  logger.With().Str("component", "bot").Logger(),
	}
}

// Run consumes updates until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	if b.api == nil {
		return fmt.Errorf("bot api not configured")
	}
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.opts.PollTimeout
	updates := b.api.GetUpdatesChan(u)
	b.logger.Info().Str("account", b.api.Self.UserName).Msg("bot polling")

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			for _, reply := range b.Handle(ctx, update.Message) {
				if _, err := b.api.Send(reply); err != nil {
					b.logger.Error().Err(err).Int64("chat_id", update.Message.Chat.ID).Msg("send reply failed")
				}
			}
		}
	}
}

// Handle produces the replies to one message.
func (b *Bot) Handle(ctx context.Context, msg *tgbotapi.Message) []tgbotapi.Chattable {
	if msg == nil || msg.Chat == nil {
		return nil
	}
	chatID := msg.Chat.ID
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return nil
	}
	if len(b.allowed) > 0 && !b.allowed[chatID] {
		return []tgbotapi.Chattable{tgbotapi.NewMessage(chatID, "Access denied.")}
	}

	parts := strings.Fields(text)
	command := strings.ToLower(parts[0])
	if at := strings.Index(command, "@"); at > 0 {
		command = command[:at]
	}
	args := parts[1:]
	log := b.logger.With().Int64("chat_id", chatID).Str("command", command).Logger()

	switch command {
	case "/start", "/help":
		return []tgbotapi.Chattable{tgbotapi.NewMessage(chatID, helpText)}
	case "/road":
		return b.road(ctx, chatID, args, log)
	case "/reliability":
		return b.reliability(ctx, chatID, args, log)
	case "/data_day":
		return b.dataDay(ctx, chatID, args, log)
	default:
		return []tgbotapi.Chattable{tgbotapi.NewMessage(chatID, "Unknown command. Use /help to see available commands.")}
	}
}

const helpText = `Commands:
/road [ht|ft] [no] - signal outcome road
/reliability [days] - estimate hit rate over a window
/data_day [days] - daily estimate hit rate with chart`

func (b *Bot) load(ctx context.Context, chatID int64, log zerolog.Logger) ([]storage.MatchRecord, tgbotapi.Chattable) {
	history, err := b.history.GetAll(ctx, true)
	if err != nil {
		log.Error().Err(err).Msg("load history failed")
		return nil, tgbotapi.NewMessage(chatID, "History is unavailable right now.")
	}
	return history, nil
}

func (b *Bot) road(ctx context.Context, chatID int64, args []string, log zerolog.Logger) []tgbotapi.Chattable {
	opts := report.RoadOptions{Half: match.HT, SuccessGoals: b.opts.Estimator.SuccessGoals}
	for _, arg := range args {
		if strings.EqualFold(arg, "no") {
			opts.Inverted = true
			continue
		}
		if h, err := match.ParseHalf(arg); err == nil {
			opts.Half = h
		}
	}

	history, failure := b.load(ctx, chatID, log)
	if failure != nil {
		return []tgbotapi.Chattable{failure}
	}
	return []tgbotapi.Chattable{tgbotapi.NewMessage(chatID, report.Road(history, opts))}
}

func (b *Bot) reliability(ctx context.Context, chatID int64, args []string, log zerolog.Logger) []tgbotapi.Chattable {
	days, note := parseDays(args, b.opts.Estimator.ReliabilityDays)
	history, failure := b.load(ctx, chatID, log)
	if failure != nil {
		return []tgbotapi.Chattable{failure}
	}

	cal := estimator.Reliability(history, b.now(), days, b.opts.Estimator)
	return withNote(chatID, note, tgbotapi.NewMessage(chatID, report.Calibration(cal)))
}

func (b *Bot) dataDay(ctx context.Context, chatID int64, args []string, log zerolog.Logger) []tgbotapi.Chattable {
	days, note := parseDays(args, defaultDays)
	history, failure := b.load(ctx, chatID, log)
	if failure != nil {
		return []tgbotapi.Chattable{failure}
	}

	scores := estimator.DailyReliability(history, b.now(), days, b.opts.Estimator)
	caption := report.Trend(scores)

	var buf bytes.Buffer
	if err := report.RenderTrendPNG(&buf, scores); err != nil {
		log.Warn().Err(err).Msg("render trend chart failed")
		return withNote(chatID, note, tgbotapi.NewMessage(chatID, caption))
	}
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: "trend.png", Bytes: buf.Bytes()})
	photo.Caption = caption
	return withNote(chatID, note, photo)
}

func withNote(chatID int64, note string, reply tgbotapi.Chattable) []tgbotapi.Chattable {
	if note == "" {
		return []tgbotapi.Chattable{reply}
	}
	return []tgbotapi.Chattable{tgbotapi.NewMessage(chatID, note), reply}
}

// parseDays reads the optional day argument. Out of range values fall back
// with a note for the user.
func parseDays(args []string, fallback int) (int, string) {
	if fallback <= 0 {
		fallback = defaultDays
	}
	if len(args) == 0 {
		return fallback, ""
	}
	n, err := strconv.Atoi(args[0])
	switch {
	case err != nil || n < 0:
		return fallback, fmt.Sprintf("Could not read %q as a day count, using %d days.", args[0], fallback)
	case n < minDays:
		return fallback, fmt.Sprintf("%d days is too short, using %d days.", n, fallback)
	case n > maxDays:
		return maxDays, fmt.Sprintf("%d days is too long, using %d days.", n, maxDays)
	default:
		return n, ""
	}
}

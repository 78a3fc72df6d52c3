package bot

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"goalline-alerts/internal/estimator"
	"goalline-alerts/internal/storage"
)

var today = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestBot(t *testing.T, allowed ...int64) (*Bot, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	b := New(nil, store, Options{AllowedChats: allowed, Estimator: estimator.DefaultOptions()}, zerolog.Nop())
	b.now = func() time.Time { return today }
	return b, store
}

func message(chatID int64, text string) *tgbotapi.Message {
	return &tgbotapi.Message{Text: text, Chat: &tgbotapi.Chat{ID: chatID}}
}

func seed(t *testing.T, store *storage.MemoryStore, id string, daysAgo, goals int, prob float64) {
	t.Helper()
	rec := storage.MatchRecord{ID: id, MatchDate: today.AddDate(0, 0, -daysAgo).Truncate(24 * time.Hour)}
	rec.HT.SignalMinute = storage.IntPtr(20)
	rec.HT.Goals = storage.IntPtr(goals)
	rec.HT.Probability = storage.FloatPtr(prob)
	rec.FT.Goals = storage.IntPtr(goals)
	if err := store.Upsert(context.Background(), rec); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func text(t *testing.T, c tgbotapi.Chattable) string {
	t.Helper()
	msg, ok := c.(tgbotapi.MessageConfig)
	if !ok {
		t.Fatalf("expected a text message, got %T", c)
	}
	return msg.Text
}

func TestHandleRoad(t *testing.T) {
	b, store := newTestBot(t)
	seed(t, store, "a", 2, 1, 60)
	seed(t, store, "b", 1, 0, 40)

	replies := b.Handle(context.Background(), message(7, "/road ht"))
	if len(replies) != 1 {
		t.Fatalf("expected one reply, got %d", len(replies))
	}
	if got := text(t, replies[0]); !strings.Contains(got, "❌✅") {
		t.Fatalf("road reply:\n%s", got)
	}

	inverted := text(t, b.Handle(context.Background(), message(7, "/road no"))[0])
	if !strings.Contains(inverted, "no goal side") || !strings.Contains(inverted, "✅❌") {
		t.Fatalf("inverted road reply:\n%s", inverted)
	}
}

func TestHandleReliability(t *testing.T) {
	b, store := newTestBot(t)
	seed(t, store, "a", 0, 1, 60)
	seed(t, store, "b", 1, 0, 40)
	seed(t, store, "c", 2, 0, 70)
	seed(t, store, "d", 3, 2, 80)

	replies := b.Handle(context.Background(), message(1, "/reliability 3"))
	if got := text(t, replies[0]); got != "Last 3 days hit rate: 75.00% (4 estimates)" {
		t.Fatalf("reliability reply = %q", got)
	}
}

func TestHandleDataDaySendsChart(t *testing.T) {
	b, store := newTestBot(t)
	seed(t, store, "a", 0, 1, 60)

	replies := b.Handle(context.Background(), message(1, "/data_day 99"))
	if len(replies) != 2 {
		t.Fatalf("expected note and photo, got %d replies", len(replies))
	}
	if note := text(t, replies[0]); !strings.Contains(note, "using 30 days") {
		t.Fatalf("note = %q", note)
	}
	photo, ok := replies[1].(tgbotapi.PhotoConfig)
	if !ok {
		t.Fatalf("expected a photo, got %T", replies[1])
	}
	if !strings.Contains(photo.Caption, "today: 100.00% (1 estimates)") {
		t.Fatalf("caption = %q", photo.Caption)
	}
}

func TestHandleAccessControl(t *testing.T) {
	b, _ := newTestBot(t, 42)
	if got := text(t, b.Handle(context.Background(), message(7, "/road"))[0]); got != "Access denied." {
		t.Fatalf("reply = %q", got)
	}
	if replies := b.Handle(context.Background(), message(42, "hello")); replies != nil {
		t.Fatal("plain text should be ignored")
	}
	if got := text(t, b.Handle(context.Background(), message(42, "/help@goalbot"))[0]); !strings.HasPrefix(got, "Commands:") {
		t.Fatalf("help reply = %q", got)
	}
}

type brokenStore struct{ storage.HistoryStore }

func (brokenStore) GetAll(context.Context, bool) ([]storage.MatchRecord, error) {
	return nil, errors.New("db down")
}

func TestHandleHistoryFailure(t *testing.T) {
	b := New(nil, brokenStore{}, Options{}, zerolog.Nop())
	if got := text(t, b.Handle(context.Background(), message(1, "/road"))[0]); got != "History is unavailable right now." {
		t.Fatalf("reply = %q", got)
	}
}

func TestParseDays(t *testing.T) {
	tests := []struct {
		args []string
		want int
		note bool
	}{
		{nil, 10, false},
		{[]string{"7"}, 7, false},
		{[]string{"2"}, 10, true},
		{[]string{"45"}, 30, true},
		{[]string{"abc"}, 10, true},
	}
	for _, tt := range tests {
		got, note := parseDays(tt.args, 10)
		if got != tt.want || (note != "") != tt.note {
			t.Fatalf("parseDays(%v) = %d, %q", tt.args, got, note)
		}
	}
}

package report

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"goalline-alerts/internal/estimator"
	"goalline-alerts/internal/match"
	"goalline-alerts/internal/storage"
)

func signalled(id string, day int, goals *int) storage.MatchRecord {
	rec := storage.MatchRecord{ID: id, MatchDate: time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC)}
	rec.HT.SignalMinute = storage.IntPtr(25)
	rec.HT.Goals = goals
	return rec
}

func TestSignalOutcomesOrderAndFilter(t *testing.T) {
	history := []storage.MatchRecord{
		signalled("c", 3, storage.IntPtr(0)),
		signalled("a", 1, storage.IntPtr(2)),
		signalled("b", 1, storage.IntPtr(0)),
		signalled("pending", 2, nil),
		{ID: "quiet", MatchDate: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)},
	}

	got := SignalOutcomes(history, RoadOptions{Half: match.HT})
	want := []bool{true, false, false}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}

	inverted := SignalOutcomes(history, RoadOptions{Half: match.HT, Inverted: true})
	if inverted[0] || !inverted[1] || !inverted[2] {
		t.Fatalf("inverted view wrong: %v", inverted)
	}
}

func TestRoadRendersStripAndGrid(t *testing.T) {
	history := []storage.MatchRecord{
		signalled("a", 1, storage.IntPtr(1)),
		signalled("b", 2, storage.IntPtr(0)),
	}
	out := Road(history, RoadOptions{Half: match.HT})
	if !strings.Contains(out, "Last 2 HT signals, goal side (newest first):\n❌✅") {
		t.Fatalf("unexpected header:\n%s", out)
	}
	if !strings.Contains(out, "Road:\n✅❌\n") {
		t.Fatalf("unexpected grid:\n%s", out)
	}

	if got := Road(nil, RoadOptions{Half: match.FT}); got != "No settled FT signals yet" {
		t.Fatalf("empty road = %q", got)
	}
}

func TestTrendListsOldestFirst(t *testing.T) {
	scores := []estimator.DayScore{
		{DaysAgo: 0, Hits: 1, Total: 2},
		{DaysAgo: 1, Hits: 3, Total: 4},
	}
	want := "Estimate hit rate, last 2 days\n1 day ago: 75.00% (4 estimates)\ntoday: 50.00% (2 estimates)"
	if got := Trend(scores); got != want {
		t.Fatalf("got %q\nwant %q", got, want)
	}
}

func TestCalibrationFallback(t *testing.T) {
	got := Calibration(estimator.Calibration{Days: 3, Hits: 1, Total: 2, MinSamples: 4})
	if got != "Last 3 days: 2 estimates scored, fewer than 4 needed" {
		t.Fatalf("got %q", got)
	}
}

func TestRenderTrendPNG(t *testing.T) {
	var buf bytes.Buffer
	scores := []estimator.DayScore{
		{DaysAgo: 0, Hits: 1, Total: 2},
		{DaysAgo: 1, Hits: 3, Total: 4},
		{DaysAgo: 2},
	}
	if err := RenderTrendPNG(&buf, scores); err != nil {
		t.Fatalf("RenderTrendPNG: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG")) {
		t.Fatal("output is not a PNG")
	}

	if err := RenderTrendPNG(&buf, scores[:1]); !errors.Is(err, ErrTooFewDays) {
		t.Fatalf("single day should be rejected, got %v", err)
	}
}

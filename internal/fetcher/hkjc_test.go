package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"goalline-alerts/internal/match"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestHKJCFetchLiveMatches(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("jsontype"); got != hkjcResultsType {
			t.Fatalf("unexpected jsontype %q", got)
		}
		_ = json.NewEncoder(w).Encode([]any{
			map[string]any{"matches": []any{
				map[string]any{
					"matchID":          "early",
					"matchState":       "SecondHalf",
					"matchDate":        "2024-01-22+08:00",
					"homeTeam":         map[string]string{"teamNameCH": "主隊A"},
					"awayTeam":         map[string]string{"teamNameCH": "客隊A"},
					"accumulatedscore": []map[string]string{{"home": "0", "away": "0"}},
				},
			}},
			map[string]any{"matches": []any{
				map[string]any{
					"matchID":    "live",
					"matchState": "FirstHalf",
					"matchDate":  "2024-01-22+08:00",
					"homeTeam":   map[string]string{"teamNameEN": "Home"},
					"awayTeam":   map[string]string{"teamNameEN": "Away"},
				},
			}},
		})
	}))
	defer srv.Close()

	h := NewHKJC(HKJCOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	records, err := h.FetchLiveMatches(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].ID != "live" || records[1].ID != "early" {
		t.Fatalf("second page should come first: %+v", records)
	}
	if records[0].HomeName != "Home" || records[1].HomeName != "主隊A" {
		t.Fatalf("team names not mapped: %+v", records)
	}
	if records[1].Source != match.SourceHKJC || len(records[1].Scores) != 1 {
		t.Fatalf("scores not mapped: %+v", records[1])
	}
}

func TestHKJCFetchLiveMatchesUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	h := NewHKJC(HKJCOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	if _, err := h.FetchLiveMatches(context.Background()); !errors.Is(err, ErrFeedUnavailable) {
		t.Fatalf("expected ErrFeedUnavailable, got %v", err)
	}
}

func oddsHandler(t *testing.T, payload any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("matchid") == "" {
			t.Fatalf("matchid missing")
		}
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func TestHKJCFetchLivePrice(t *testing.T) {
	payload := map[string]any{"matches": []any{
		map[string]any{
			"matchID": "m1",
			"hilodds": map[string]any{"LINELIST": []map[string]string{
				{"LINE": "1.5", "H": "100@1.90"},
				{"LINE": "0.5/1.0", "H": "100@2.05"},
			}},
		},
	}}
	srv := httptest.NewServer(oddsHandler(t, payload))
	defer srv.Close()

	h := NewHKJC(HKJCOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	price, err := h.FetchLivePrice(context.Background(), "m1")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !price.Equal(decimal.RequireFromString("2.05")) {
		t.Fatalf("expected 2.05, got %s", price)
	}
}

func TestHKJCFetchLivePricePrefersFirstHalfPool(t *testing.T) {
	payload := map[string]any{"matches": []any{
		map[string]any{
			"matchID": "m1",
			"fhlodds": map[string]any{"LINELIST": []map[string]string{{"LINE": "0.5/1.0", "H": "100@2.10"}}},
			"hilodds": map[string]any{"LINELIST": []map[string]string{{"LINE": "0.5/1.0", "H": "100@1.50"}}},
		},
	}}
	srv := httptest.NewServer(oddsHandler(t, payload))
	defer srv.Close()

	h := NewHKJC(HKJCOptions{BaseURL: srv.URL}, noopLogger())
	price, err := h.FetchLivePrice(context.Background(), "m1")
	if err != nil {
		t.Fatal(err)
	}
	if !price.Equal(decimal.RequireFromString("2.10")) {
		t.Fatalf("expected first-half price, got %s", price)
	}
}

func TestHKJCFetchLivePriceUnavailable(t *testing.T) {
	cases := map[string]any{
		"not listed": map[string]any{"matches": []any{}},
		"no line": map[string]any{"matches": []any{
			map[string]any{"matchID": "m1", "hilodds": map[string]any{"LINELIST": []map[string]string{{"LINE": "2.5", "H": "100@1.9"}}}},
		}},
		"malformed": map[string]any{"matches": []any{
			map[string]any{"matchID": "m1", "hilodds": map[string]any{"LINELIST": []map[string]string{{"LINE": "0.5/1.0", "H": "n/a"}}}},
		}},
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(oddsHandler(t, payload))
			defer srv.Close()

			h := NewHKJC(HKJCOptions{BaseURL: srv.URL}, noopLogger())
			if _, err := h.FetchLivePrice(context.Background(), "m1"); !errors.Is(err, ErrOddsUnavailable) {
				t.Fatalf("expected ErrOddsUnavailable, got %v", err)
			}
		})
	}
}

func TestHKJCRetriesDecodeFailures(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			_, _ = w.Write([]byte("<html>busy</html>"))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"matches": []any{
			map[string]any{"matchID": "m1", "hilodds": map[string]any{"LINELIST": []map[string]string{{"LINE": "0.5/1.0", "H": "100@2.00"}}}},
		}})
	}))
	defer srv.Close()

	h := NewHKJC(HKJCOptions{BaseURL: srv.URL, RetryAttempts: 5}, noopLogger())
	if _, err := h.FetchLivePrice(context.Background(), "m1"); err != nil {
		t.Fatalf("should recover after retries: %v", err)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestHKJCRetryBounded(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	var observed int32
	h := NewHKJC(HKJCOptions{
		BaseURL: srv.URL,
		Observe: func(source, op string, elapsed time.Duration, err error) {
			atomic.AddInt32(&observed, 1)
		},
	}, noopLogger())
	if _, err := h.FetchLivePrice(context.Background(), "m1"); !errors.Is(err, ErrOddsUnavailable) {
		t.Fatalf("expected ErrOddsUnavailable, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != defaultRetryCount {
		t.Fatalf("expected %d attempts, got %d", defaultRetryCount, got)
	}
	if atomic.LoadInt32(&observed) != 1 {
		t.Fatalf("observer should see one logical request")
	}
}

func TestParseHKJCPrice(t *testing.T) {
	if _, err := parseHKJCPrice("2.05"); err == nil {
		t.Fatal("missing '@' should fail")
	}
	p, err := parseHKJCPrice(" 100@1.95 ")
	if err != nil || !p.Equal(decimal.RequireFromString("1.95")) {
		t.Fatalf("unexpected %s %v", p, err)
	}
}

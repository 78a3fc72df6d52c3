package estimator

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"goalline-alerts/internal/match"
	"goalline-alerts/internal/storage"
)

var testDay = time.Date(2024, 1, 22, 0, 0, 0, 0, time.UTC)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func testSignal() Signal {
	return Signal{
		Half:      match.HT,
		Minute:    30,
		MatchDate: testDay,
		HT:        Line{GoalLine: "0.5/1.0", Price: dec("1.95")},
		FT:        Line{GoalLine: "2.5", Price: dec("1.90")},
	}
}

// settled builds a finished HT signal record with the given offsets from the
// test signal.
func settled(id string, minute int, htPrice, ftPrice string, htGoals int) storage.MatchRecord {
	rec := storage.MatchRecord{ID: id, MatchDate: testDay.AddDate(0, 0, -5)}
	rec.HT = storage.HalfRecord{
		SignalMinute:  storage.IntPtr(minute),
		GoalLine:      "0.5/1.0",
		PrematchPrice: decimal.NewNullDecimal(dec(htPrice)),
		Goals:         storage.IntPtr(htGoals),
	}
	rec.FT = storage.HalfRecord{
		GoalLine:      "2.5",
		PrematchPrice: decimal.NewNullDecimal(dec(ftPrice)),
		Goals:         storage.IntPtr(htGoals + 1),
	}
	return rec
}

func exactHistory(n, successes int) []storage.MatchRecord {
	out := make([]storage.MatchRecord, 0, n)
	for i := 0; i < n; i++ {
		goals := 0
		if i < successes {
			goals = 1
		}
		out = append(out, settled(fmt.Sprintf("h%d", i), 30, "1.95", "1.90", goals))
	}
	return out
}

func TestPriceIncrementBands(t *testing.T) {
	cases := []struct {
		price string
		want  string
	}{
		{"1.01", "0.03"},
		{"1.49", "0.03"},
		{"1.5", "0.05"},
		{"1.64", "0.05"},
		{"1.65", "0.07"},
		{"1.8", "0.09"},
		{"2.04", "0.09"},
		{"2.05", "0.15"},
		{"2.39", "0.15"},
		{"2.4", "0.2"},
		{"5.0", "0.2"},
	}
	for _, tc := range cases {
		if got := PriceIncrement(dec(tc.price)); !got.Equal(dec(tc.want)) {
			t.Fatalf("PriceIncrement(%s) = %s, want %s", tc.price, got, tc.want)
		}
	}
}

func TestPlanOrder(t *testing.T) {
	plan := Plan(testSignal(), DefaultOptions())
	if len(plan) != 9 {
		t.Fatalf("expected 9 stages, got %d", len(plan))
	}
	if !plan[0].Exact() {
		t.Fatal("first stage must be exact")
	}
	for i := 0; i < 3; i++ {
		if plan[i].MinuteTol != i || !plan[i].HTPriceTol.IsZero() || !plan[i].FTPriceTol.IsZero() {
			t.Fatalf("stage %d should widen minutes only: %s", i, plan[i])
		}
	}
	// HT signal: the other market (FT) widens first
	if !plan[3].HTPriceTol.IsZero() || !plan[3].FTPriceTol.Equal(dec("0.09")) {
		t.Fatalf("stage 3 should widen FT price: %s", plan[3])
	}
	if !plan[4].HTPriceTol.Equal(dec("0.09")) {
		t.Fatalf("stage 4 should widen HT price: %s", plan[4])
	}
	for i := 5; i < 9; i++ {
		if plan[i].CrossHalf {
			t.Fatalf("stage %d should be single-market", i)
		}
	}
	if !plan[8].HTPriceTol.Equal(dec("0.09")) {
		t.Fatalf("last stage should widen own price: %s", plan[8])
	}
}

func TestSearchExactTenRecords(t *testing.T) {
	est := Search(exactHistory(10, 6), testSignal(), DefaultOptions())
	if est.Empty() {
		t.Fatal("expected an estimate")
	}
	if est.Rate != 60.0 {
		t.Fatalf("expected 60.0, got %v", est.Rate)
	}
	if !est.Stage.Exact() {
		t.Fatalf("expected zero widening, got %s", est.Stage)
	}
	if est.Total != 10 || est.Successes != 6 {
		t.Fatalf("unexpected counts %+v", est)
	}
}

func TestSearchWidensWhenShort(t *testing.T) {
	history := exactHistory(9, 5)
	history = append(history, settled("near", 31, "1.95", "1.90", 1))

	est := Search(history, testSignal(), DefaultOptions())
	if est.Empty() {
		t.Fatal("widening should reach 10 samples")
	}
	if est.Stage.Exact() || est.Stage.MinuteTol != 1 {
		t.Fatalf("expected minute tolerance 1, got %s", est.Stage)
	}
	if est.Total != 10 || est.Rate != 60.0 {
		t.Fatalf("unexpected estimate %+v", est)
	}
	if !strings.Contains(est.Render(), "Minute 30±1") {
		t.Fatalf("render should name the tolerance:\n%s", est.Render())
	}
}

func TestSearchWidensPriceThenRelaxes(t *testing.T) {
	history := exactHistory(9, 3)
	// FT price off by 0.05: reachable once the FT tolerance opens
	history = append(history, settled("ft-off", 30, "1.95", "1.95", 1))

	est := Search(history, testSignal(), DefaultOptions())
	if est.Empty() || !est.Stage.CrossHalf || !est.Stage.FTPriceTol.Equal(dec("0.09")) || !est.Stage.HTPriceTol.IsZero() {
		t.Fatalf("expected FT price widening, got %+v", est.Stage)
	}

	history = exactHistory(9, 3)
	other := settled("other-line", 30, "1.95", "1.90", 2)
	other.FT.GoalLine = "3.5"
	history = append(history, other)

	est = Search(history, testSignal(), DefaultOptions())
	if est.Empty() || est.Stage.CrossHalf {
		t.Fatalf("expected single-market stage, got %+v", est.Stage)
	}
	if est.MultiSuccesses != 1 || est.MultiRate != 10.0 {
		t.Fatalf("multi-goal rate wrong: %+v", est)
	}
}

func TestSearchInsufficient(t *testing.T) {
	est := Search(exactHistory(9, 9), testSignal(), DefaultOptions())
	if !est.Empty() {
		t.Fatalf("9 records cannot satisfy 10 samples: %+v", est)
	}
	if !strings.Contains(est.Render(), "No estimate available") {
		t.Fatalf("unexpected render %q", est.Render())
	}

	opts := DefaultOptions()
	opts.MinSamples = 4
	if Search(exactHistory(4, 1), testSignal(), opts).Empty() {
		t.Fatal("a lower minimum should be honoured")
	}
}

func TestSearchIgnoresUnsettledRecords(t *testing.T) {
	history := exactHistory(10, 6)
	pending := settled("pending", 30, "1.95", "1.90", 0)
	pending.HT.Goals = nil
	history = append(history, pending)

	if est := Search(history, testSignal(), DefaultOptions()); est.Total != 10 {
		t.Fatalf("unsettled records must not count, got %d", est.Total)
	}
}

func TestEstimatorWritesProbabilityOnce(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	for _, rec := range exactHistory(10, 6) {
		if err := store.Upsert(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}
	live := storage.MatchRecord{ID: "live", MatchDate: testDay}
	live.HT.SignalMinute = storage.IntPtr(30)
	if err := store.Upsert(ctx, live); err != nil {
		t.Fatal(err)
	}

	est := New(store, DefaultOptions(), zerolog.Nop())
	if _, err := est.Estimate(ctx, "live", testSignal()); err != nil {
		t.Fatalf("estimate: %v", err)
	}
	rec, _ := store.GetByID(ctx, "live")
	if rec.HT.Probability == nil || *rec.HT.Probability != 60.0 {
		t.Fatalf("probability should be written, got %+v", rec.HT.Probability)
	}

	// an already-set probability is never overwritten
	rec.HT.Probability = storage.FloatPtr(12.5)
	_ = store.Upsert(ctx, rec)
	for i := 0; i < 2; i++ {
		if _, err := est.Estimate(ctx, "live", testSignal()); err != nil {
			t.Fatal(err)
		}
	}
	rec, _ = store.GetByID(ctx, "live")
	if *rec.HT.Probability != 12.5 {
		t.Fatalf("probability overwritten: %v", *rec.HT.Probability)
	}
	if rec.FT.Probability != nil {
		t.Fatal("other half must stay untouched")
	}
}

func TestEstimatorMissingRecord(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	for _, rec := range exactHistory(10, 6) {
		_ = store.Upsert(ctx, rec)
	}
	est := New(store, DefaultOptions(), zerolog.Nop())
	got, err := est.Estimate(ctx, "unknown", testSignal())
	if err != nil {
		t.Fatalf("missing record is not an error: %v", err)
	}
	if got.Empty() {
		t.Fatal("estimate should still be returned")
	}
}

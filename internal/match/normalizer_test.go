package match

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeNow struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeNow) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeNow) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

func newTestNormalizer() (*Normalizer, *fakeNow) {
	clock := &fakeNow{t: time.Date(2024, 1, 22, 20, 0, 0, 0, time.UTC)}
	return NewNormalizer(NewClock(clock.Now), clock.Now), clock
}

func hkjcRecord(id, state string, scores ...Score) FeedRecord {
	return FeedRecord{
		Source:   SourceHKJC,
		ID:       id,
		HomeName: "Home",
		AwayName: "Away",
		Date:     "2024-01-22+08:00",
		State:    state,
		Scores:   scores,
	}
}

func TestNormalizeHKJCElapsedMonotonic(t *testing.T) {
	n, clock := newTestNormalizer()

	prev := -1
	for i := 0; i < 60; i++ {
		snap, err := n.Normalize(hkjcRecord("m1", StateFirstHalf))
		if err != nil {
			t.Fatalf("normalize: %v", err)
		}
		if snap.Elapsed < prev {
			t.Fatalf("elapsed went backwards: %d -> %d", prev, snap.Elapsed)
		}
		if snap.Elapsed > 45 {
			t.Fatalf("first half elapsed should cap at 45, got %d", snap.Elapsed)
		}
		if snap.Half() != HT {
			t.Fatalf("first half snapshot should evaluate HT")
		}
		prev = snap.Elapsed
		clock.Advance(59 * time.Second)
	}
	if prev != 45 {
		t.Fatalf("expected cap reached, got %d", prev)
	}
}

func TestNormalizeHKJCHalfTimeResetsTimer(t *testing.T) {
	n, clock := newTestNormalizer()

	if _, err := n.Normalize(hkjcRecord("m1", StateFirstHalf)); err != nil {
		t.Fatal(err)
	}
	clock.Advance(30 * time.Minute)
	snap, _ := n.Normalize(hkjcRecord("m1", StateFirstHalf))
	if snap.Elapsed != 30 {
		t.Fatalf("expected 30 minutes, got %d", snap.Elapsed)
	}

	snap, err := n.Normalize(hkjcRecord("m1", StateFirstHalfCompleted))
	if err != nil {
		t.Fatal(err)
	}
	if snap.Elapsed != 46 || snap.Phase != PhaseHalfTime || snap.Half() != FT {
		t.Fatalf("half-time snapshot wrong: %+v", snap)
	}
	if n.Clock().Len() != 0 {
		t.Fatalf("half-time must drop the timer")
	}

	clock.Advance(15 * time.Minute)
	snap, _ = n.Normalize(hkjcRecord("m1", StateSecondHalf))
	if snap.Elapsed != 46 {
		t.Fatalf("second half should restart at 46, got %d", snap.Elapsed)
	}
	clock.Advance(20 * time.Minute)
	snap, _ = n.Normalize(hkjcRecord("m1", StateSecondHalf))
	if snap.Elapsed != 66 {
		t.Fatalf("expected 66, got %d", snap.Elapsed)
	}
	clock.Advance(2 * time.Hour)
	snap, _ = n.Normalize(hkjcRecord("m1", StateSecondHalf))
	if snap.Elapsed != 90 {
		t.Fatalf("second half should cap at 90, got %d", snap.Elapsed)
	}
}

func TestNormalizeHKJCSecondHalfWithoutHalfTimeObserved(t *testing.T) {
	n, clock := newTestNormalizer()

	_, _ = n.Normalize(hkjcRecord("m1", StateFirstHalf))
	clock.Advance(40 * time.Minute)
	snap, _ := n.Normalize(hkjcRecord("m1", StateSecondHalf))
	if snap.Elapsed != 46 {
		t.Fatalf("entering second half must reset the timer, got %d", snap.Elapsed)
	}
}

func TestNormalizeHKJCGoalDetection(t *testing.T) {
	n, _ := newTestNormalizer()

	cases := []struct {
		name   string
		state  string
		scores []Score
		want   bool
	}{
		{"no scores", StateFirstHalf, nil, false},
		{"level first half", StateFirstHalf, []Score{{"0", "0"}}, false},
		{"goal first half", StateFirstHalf, []Score{{"1", "0"}}, true},
		{"goal at half-time", StateFirstHalfCompleted, []Score{{"0", "1"}}, true},
		{"second half single entry", StateSecondHalf, []Score{{"0", "0"}}, false},
		{"second half uses second entry", StateSecondHalf, []Score{{"0", "0"}, {"0", "2"}}, true},
		{"second half level", StateSecondHalf, []Score{{"0", "0"}, {"0", "0"}}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			snap, err := n.Normalize(hkjcRecord("g-"+tc.name, tc.state, tc.scores...))
			if err != nil {
				t.Fatal(err)
			}
			if snap.Goaled != tc.want {
				t.Fatalf("goaled = %v, want %v", snap.Goaled, tc.want)
			}
		})
	}
}

func TestNormalizeHKJCStates(t *testing.T) {
	n, _ := newTestNormalizer()

	snap, err := n.Normalize(hkjcRecord("pre", "PreEvent"))
	if err != nil {
		t.Fatal(err)
	}
	if snap.Started {
		t.Fatal("pre-match state should not be started")
	}

	if _, err := n.Normalize(hkjcRecord("done", "ResultFinal")); !errors.Is(err, ErrNotInPlay) {
		t.Fatalf("expected ErrNotInPlay, got %v", err)
	}
}

func TestNormalizeHKJCForgetsFinishedMatch(t *testing.T) {
	n, _ := newTestNormalizer()

	if _, err := n.Normalize(hkjcRecord("m1", StateSecondHalf)); err != nil {
		t.Fatal(err)
	}
	if n.Clock().Len() != 1 {
		t.Fatalf("second half should be timed")
	}
	if _, err := n.Normalize(hkjcRecord("m1", "ResultFinal")); !errors.Is(err, ErrNotInPlay) {
		t.Fatalf("expected ErrNotInPlay, got %v", err)
	}
	if n.Clock().Len() != 0 {
		t.Fatalf("finished match must leave the clock cache")
	}
}

func TestClockRetain(t *testing.T) {
	c := NewClock(nil)
	for _, id := range []string{"a", "b", "c"} {
		c.Observe(id, PhaseFirstHalf)
	}
	if dropped := c.Retain([]string{"b", "zzz"}); dropped != 2 {
		t.Fatalf("dropped = %d, want 2", dropped)
	}
	if c.Len() != 1 {
		t.Fatalf("expected one entry left, got %d", c.Len())
	}
	c.Forget("b")
	if c.Len() != 0 {
		t.Fatalf("Forget should empty the cache")
	}
}

func TestNormalizeMalformed(t *testing.T) {
	n, _ := newTestNormalizer()

	bad := []FeedRecord{
		{Source: SourceHKJC, State: StateFirstHalf},
		hkjcRecord("x", ""),
		hkjcRecord("x", StateFirstHalf, Score{"a", "0"}),
		{Source: SourceHKJC, ID: "x", HomeName: "H", AwayName: "A", Date: "yesterday", State: StateFirstHalf},
		{Source: SourceListing, ID: "y", HomeName: "H", AwayName: "A", Date: "01-20", Clock: "abc"},
	}
	for i, rec := range bad {
		if _, err := n.Normalize(rec); !errors.Is(err, ErrMalformedFeedRecord) {
			t.Fatalf("case %d: expected ErrMalformedFeedRecord, got %v", i, err)
		}
	}
	if n.Clock().Len() != 0 {
		t.Fatalf("malformed records must not leak into the clock cache")
	}
}

func TestNormalizeListing(t *testing.T) {
	n, _ := newTestNormalizer()

	cases := []struct {
		clock   string
		elapsed int
		phase   Phase
	}{
		{"23'", 23, PhaseFirstHalf},
		{"45+2'", 45, PhaseFirstHalf},
		{"HT", 46, PhaseHalfTime},
		{"半場", 46, PhaseHalfTime},
		{"67'", 67, PhaseSecondHalf},
		{"90+4'", 90, PhaseSecondHalf},
	}
	for _, tc := range cases {
		snap, err := n.Normalize(FeedRecord{
			Source: SourceListing, ID: "l1", HomeName: "H", AwayName: "A",
			Date: "01-21", LiveBadge: true, ScoreText: "0-0", Clock: tc.clock,
		})
		if err != nil {
			t.Fatalf("%s: %v", tc.clock, err)
		}
		if snap.Elapsed != tc.elapsed || snap.Phase != tc.phase {
			t.Fatalf("%s: got %d/%s", tc.clock, snap.Elapsed, snap.Phase)
		}
		if !snap.Live || snap.Goaled {
			t.Fatalf("%s: flags wrong %+v", tc.clock, snap)
		}
	}

	snap, err := n.Normalize(FeedRecord{Source: SourceListing, ID: "l2", HomeName: "H", AwayName: "A", Upcoming: true})
	if err != nil {
		t.Fatal(err)
	}
	if snap.Started {
		t.Fatal("upcoming listing should not be started")
	}

	snap, _ = n.Normalize(FeedRecord{Source: SourceListing, ID: "l3", HomeName: "H", AwayName: "A", Date: "01-21", ScoreText: "1-0", Clock: "12'"})
	if !snap.Goaled || snap.Live {
		t.Fatalf("expected goaled, not live: %+v", snap)
	}
}

func TestListingDateRollsBackYear(t *testing.T) {
	now := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	d, err := ListingDate("12-31", now)
	if err != nil {
		t.Fatal(err)
	}
	if d.Year() != 2023 {
		t.Fatalf("expected previous year, got %v", d)
	}
	d, _ = ListingDate("01-02", now)
	if d.Year() != 2024 {
		t.Fatalf("expected current year, got %v", d)
	}
}

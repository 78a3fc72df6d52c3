package match

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// HKJC match states.
const (
	StateFirstHalf          = "FirstHalf"
	StateFirstHalfCompleted = "FirstHalfCompleted"
	StateSecondHalf         = "SecondHalf"
)

var preMatchStates = map[string]bool{
	"PreEvent":  true,
	"Scheduled": true,
	"Defined":   true,
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02Z07:00",
	"2006-01-02",
}

// Normalizer converts raw feed records into snapshots.
type Normalizer struct {
	clock *Clock
	now   func() time.Time
}

// NewNormalizer wires a normalizer to the elapsed-time cache it owns.
func NewNormalizer(clock *Clock, now func() time.Time) *Normalizer {
	if clock == nil {
		clock = NewClock(now)
	}
	if now == nil {
		now = time.Now
	}
	return &Normalizer{clock: clock, now: now}
}

// Clock exposes the elapsed-time cache.
func (n *Normalizer) Clock() *Clock {
	return n.clock
}

// Normalize converts one record. Records that fail validation never touch the
// elapsed-time cache.
func (n *Normalizer) Normalize(rec FeedRecord) (Snapshot, error) {
	if strings.TrimSpace(rec.ID) == "" {
		return Snapshot{}, fmt.Errorf("%w: missing match id", ErrMalformedFeedRecord)
	}
	switch rec.Source {
	case SourceHKJC:
		return n.normalizeHKJC(rec)
	case SourceListing:
		return n.normalizeListing(rec)
	default:
		return Snapshot{}, fmt.Errorf("%w: unknown source %d", ErrMalformedFeedRecord, rec.Source)
	}
}

func (n *Normalizer) normalizeHKJC(rec FeedRecord) (Snapshot, error) {
	snap := Snapshot{ID: rec.ID, HomeName: rec.HomeName, AwayName: rec.AwayName}

	if preMatchStates[rec.State] {
		return snap, nil
	}

	var phase Phase
	switch rec.State {
	case StateFirstHalf:
		phase = PhaseFirstHalf
	case StateFirstHalfCompleted:
		phase = PhaseHalfTime
	case StateSecondHalf:
		phase = PhaseSecondHalf
	case "":
		return Snapshot{}, fmt.Errorf("%w: match %s has no state", ErrMalformedFeedRecord, rec.ID)
	default:
		n.clock.Forget(rec.ID)
		return Snapshot{}, fmt.Errorf("%w: state %s", ErrNotInPlay, rec.State)
	}

	if rec.HomeName == "" || rec.AwayName == "" {
		return Snapshot{}, fmt.Errorf("%w: match %s missing team names", ErrMalformedFeedRecord, rec.ID)
	}

	date, err := parseFeedDate(rec.Date)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: match %s: %v", ErrMalformedFeedRecord, rec.ID, err)
	}

	goaled, err := scoresGoaled(rec.Scores, phase)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: match %s: %v", ErrMalformedFeedRecord, rec.ID, err)
	}

	snap.Started = true
	snap.Live = true
	snap.Goaled = goaled
	snap.Phase = phase
	snap.MatchDate = date
	snap.Elapsed = n.clock.Observe(rec.ID, phase)
	if phase == PhaseHalfTime {
		snap.ClockText = "HT"
	} else {
		snap.ClockText = fmt.Sprintf("%d'", snap.Elapsed)
	}
	return snap, nil
}

// scoresGoaled inspects the score entry of the current half: the first entry
// up to half-time, the second one (when published) afterwards.
func scoresGoaled(scores []Score, phase Phase) (bool, error) {
	if len(scores) == 0 {
		return false, nil
	}
	idx := 0
	if phase == PhaseSecondHalf && len(scores) > 1 {
		idx = 1
	}
	home, err := parseGoals(scores[idx].Home)
	if err != nil {
		return false, err
	}
	away, err := parseGoals(scores[idx].Away)
	if err != nil {
		return false, err
	}
	return home != 0 || away != 0, nil
}

func parseGoals(v string) (int, error) {
	goals, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("score %q: %w", v, err)
	}
	if goals < 0 {
		return 0, fmt.Errorf("negative score %q", v)
	}
	return goals, nil
}

func parseFeedDate(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, fmt.Errorf("missing match date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable match date %q", v)
}

func (n *Normalizer) normalizeListing(rec FeedRecord) (Snapshot, error) {
	snap := Snapshot{ID: rec.ID, HomeName: rec.HomeName, AwayName: rec.AwayName}
	if rec.Upcoming {
		return snap, nil
	}

	if rec.HomeName == "" || rec.AwayName == "" {
		return Snapshot{}, fmt.Errorf("%w: match %s missing team names", ErrMalformedFeedRecord, rec.ID)
	}

	date, err := ListingDate(rec.Date, n.now())
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: match %s: %v", ErrMalformedFeedRecord, rec.ID, err)
	}

	elapsed, phase, err := parseClock(rec.Clock)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: match %s: %v", ErrMalformedFeedRecord, rec.ID, err)
	}

	score := strings.ReplaceAll(strings.TrimSpace(rec.ScoreText), " ", "")

	snap.Started = true
	snap.Live = rec.LiveBadge
	snap.Goaled = score != "" && score != "0-0"
	snap.Phase = phase
	snap.Elapsed = elapsed
	snap.MatchDate = date
	if phase == PhaseHalfTime {
		snap.ClockText = "HT"
	} else {
		snap.ClockText = strings.TrimSpace(rec.Clock)
	}
	return snap, nil
}

// parseClock reads "23'", "45+2'", "90+4'" and "HT"/"半場".
func parseClock(v string) (int, Phase, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, PhaseFirstHalf, fmt.Errorf("missing clock")
	}
	if strings.EqualFold(v, "HT") || strings.HasPrefix(v, "半場") {
		return halfTimeMark, PhaseHalfTime, nil
	}

	v = strings.TrimSuffix(strings.TrimSuffix(v, "'"), "’")
	if base, _, ok := strings.Cut(v, "+"); ok {
		minute, err := strconv.Atoi(strings.TrimSpace(base))
		if err != nil {
			return 0, PhaseFirstHalf, fmt.Errorf("clock %q: %w", v, err)
		}
		if minute <= firstHalfCap {
			return firstHalfCap, PhaseFirstHalf, nil
		}
		return secondHalfCap, PhaseSecondHalf, nil
	}

	minute, err := strconv.Atoi(v)
	if err != nil {
		return 0, PhaseFirstHalf, fmt.Errorf("clock %q: %w", v, err)
	}
	if minute < 0 {
		return 0, PhaseFirstHalf, fmt.Errorf("negative clock %q", v)
	}
	if minute <= firstHalfCap {
		return minute, PhaseFirstHalf, nil
	}
	if minute > secondHalfCap {
		minute = secondHalfCap
	}
	return minute, PhaseSecondHalf, nil
}

// ListingDate resolves a "MM-DD" listing date to the most recent such day not
// after now.
func ListingDate(v string, now time.Time) (time.Time, error) {
	parsed, err := time.Parse("01-02", strings.TrimSpace(v))
	if err != nil {
		return time.Time{}, fmt.Errorf("listing date %q: %w", v, err)
	}
	year := now.Year()
	candidate := time.Date(year, parsed.Month(), parsed.Day(), 0, 0, 0, 0, now.Location())
	if candidate.After(now) {
		candidate = time.Date(year-1, parsed.Month(), parsed.Day(), 0, 0, 0, 0, now.Location())
	}
	return candidate, nil
}

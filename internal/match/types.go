package match

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrMalformedFeedRecord marks a raw record with missing or unparsable fields.
	ErrMalformedFeedRecord = errors.New("malformed feed record")
	// ErrNotInPlay marks a record whose state is neither pre-match nor in play.
	ErrNotInPlay = errors.New("match not in play")
)

// Phase is the in-play period a snapshot was observed in.
type Phase int

const (
	PhaseFirstHalf Phase = iota
	PhaseHalfTime
	PhaseSecondHalf
)

func (p Phase) String() string {
	switch p {
	case PhaseFirstHalf:
		return "first_half"
	case PhaseHalfTime:
		return "half_time"
	case PhaseSecondHalf:
		return "second_half"
	default:
		return "unknown"
	}
}

// Half identifies one of the two goal-line markets tracked per match.
type Half int

const (
	HT Half = iota
	FT
)

// Halves lists the tracked markets in evaluation order.
var Halves = []Half{HT, FT}

func (h Half) String() string {
	if h == HT {
		return "ht"
	}
	return "ft"
}

// ParseHalf accepts "ht"/"ft" (case-insensitive).
func ParseHalf(v string) (Half, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "ht", "1h", "first":
		return HT, nil
	case "ft", "full":
		return FT, nil
	default:
		return HT, fmt.Errorf("unknown half %q", v)
	}
}

// Direction is the pre-match price movement of a goal-line over price.
type Direction int

const (
	DirectionUnknown Direction = iota
	DirectionRising
	DirectionFalling
)

func (d Direction) String() string {
	switch d {
	case DirectionRising:
		return "rising"
	case DirectionFalling:
		return "falling"
	default:
		return "flat"
	}
}

// Source selects how a FeedRecord is interpreted.
type Source int

const (
	// SourceHKJC records carry a match state; elapsed time is derived locally.
	SourceHKJC Source = iota
	// SourceListing records carry the clock text published by the page.
	SourceListing
)

// Score is one accumulated score entry, as published by the feed.
type Score struct {
	Home string `json:"home"`
	Away string `json:"away"`
}

// FeedRecord is one raw per-match entry of a live feed.
type FeedRecord struct {
	Source   Source
	ID       string
	HomeName string
	AwayName string
	Date     string

	// HKJC fields.
	State  string
	Scores []Score

	// Listing fields.
	Upcoming  bool
	LiveBadge bool
	ScoreText string
	Clock     string
}

// Snapshot is the canonical state of one match at one poll.
//
// When Started is false only ID and the team names are populated.
type Snapshot struct {
	ID        string
	HomeName  string
	AwayName  string
	Started   bool
	Live      bool
	Goaled    bool
	Phase     Phase
	Elapsed   int
	ClockText string
	MatchDate time.Time
}

// Half returns the market the snapshot evaluates: HT while the first half is
// running, FT from the half-time break on.
func (s Snapshot) Half() Half {
	if s.Phase == PhaseFirstHalf {
		return HT
	}
	return FT
}

func (s Snapshot) String() string {
	return fmt.Sprintf("[%s] %s vs %s", s.ID, s.HomeName, s.AwayName)
}

package storage

import (
	"time"

	"github.com/shopspring/decimal"

	"goalline-alerts/internal/match"
)

// HalfRecord holds one market (HT or FT) of an archived match. Pointer and
// Null fields stay unset until the value is known.
type HalfRecord struct {
	SignalMinute  *int
	SignalPrice   decimal.NullDecimal
	GoalLine      string
	PrematchPrice decimal.NullDecimal
	Direction     match.Direction
	Goals         *int
	Probability   *float64
	LastMinutes   bool
}

// Signalled reports whether a live signal fired for this half.
func (h HalfRecord) Signalled() bool {
	return h.SignalMinute != nil
}

// Settled reports whether the real outcome is known.
func (h HalfRecord) Settled() bool {
	return h.Goals != nil
}

func (h HalfRecord) clone() HalfRecord {
	out := h
	if h.SignalMinute != nil {
		v := *h.SignalMinute
		out.SignalMinute = &v
	}
	if h.Goals != nil {
		v := *h.Goals
		out.Goals = &v
	}
	if h.Probability != nil {
		v := *h.Probability
		out.Probability = &v
	}
	return out
}

// MatchRecord is the archived pre-match and outcome data of one match.
type MatchRecord struct {
	ID        string
	MatchDate time.Time
	HT        HalfRecord
	FT        HalfRecord
	UpdatedAt time.Time
}

// Half returns a pointer to the requested half for in-place edits.
func (r *MatchRecord) Half(h match.Half) *HalfRecord {
	if h == match.HT {
		return &r.HT
	}
	return &r.FT
}

// Complete reports whether both halves carry their outcome.
func (r MatchRecord) Complete() bool {
	return r.HT.Settled() && r.FT.Settled()
}

// Clone returns a deep copy so callers can mutate it freely.
func (r MatchRecord) Clone() MatchRecord {
	out := r
	out.HT = r.HT.clone()
	out.FT = r.FT.clone()
	return out
}

// NotificationRecord captures an emitted notification for auditing.
type NotificationRecord struct {
	ID        int64
	MatchID   string
	Half      string
	Kind      string
	Header    string
	Body      string
	CreatedAt time.Time
}

// IntPtr is a small helper for optional integer fields.
func IntPtr(v int) *int {
	return &v
}

// FloatPtr is a small helper for optional float fields.
func FloatPtr(v float64) *float64 {
	return &v
}

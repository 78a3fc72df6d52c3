package estimator

import (
	"fmt"

	"github.com/shopspring/decimal"

	"goalline-alerts/internal/match"
)

var priceBands = []struct {
	below     decimal.Decimal
	increment decimal.Decimal
}{
	{decimal.RequireFromString("1.5"), decimal.RequireFromString("0.03")},
	{decimal.RequireFromString("1.65"), decimal.RequireFromString("0.05")},
	{decimal.RequireFromString("1.8"), decimal.RequireFromString("0.07")},
	{decimal.RequireFromString("2.05"), decimal.RequireFromString("0.09")},
	{decimal.RequireFromString("2.4"), decimal.RequireFromString("0.15")},
}

var topBandIncrement = decimal.RequireFromString("0.20")

// PriceIncrement returns the price tolerance step for a pre-match price.
func PriceIncrement(price decimal.Decimal) decimal.Decimal {
	for _, band := range priceBands {
		if price.LessThan(band.below) {
			return band.increment
		}
	}
	return topBandIncrement
}

// Stage is one candidate set of tolerances. When CrossHalf is false only the
// signal half's goal line and price are compared.
type Stage struct {
	CrossHalf  bool
	MinuteTol  int
	HTPriceTol decimal.Decimal
	FTPriceTol decimal.Decimal
}

// PriceTol returns the tolerance of one market.
func (s Stage) PriceTol(h match.Half) decimal.Decimal {
	if h == match.HT {
		return s.HTPriceTol
	}
	return s.FTPriceTol
}

// Exact reports whether the stage applies no widening at all.
func (s Stage) Exact() bool {
	return s.CrossHalf && s.MinuteTol == 0 && s.HTPriceTol.IsZero() && s.FTPriceTol.IsZero()
}

func (s Stage) String() string {
	if !s.CrossHalf {
		return fmt.Sprintf("single-half minute±%d ht±%s ft±%s", s.MinuteTol, s.HTPriceTol, s.FTPriceTol)
	}
	return fmt.Sprintf("minute±%d ht±%s ft±%s", s.MinuteTol, s.HTPriceTol, s.FTPriceTol)
}

func otherHalf(h match.Half) match.Half {
	if h == match.HT {
		return match.FT
	}
	return match.HT
}

// Plan lists the stages tried for a signal, in order. Minutes widen first up
// to the cap, then the other market's price, then the signal market's own.
// The same sequence is then repeated on the signal market alone.
func Plan(sig Signal, opts Options) []Stage {
	own := sig.Half
	other := otherHalf(own)
	ownInc := PriceIncrement(sig.Line(own).Price)
	otherInc := PriceIncrement(sig.Line(other).Price)

	stage := func(cross bool, minute int, ownTol, otherTol decimal.Decimal) Stage {
		s := Stage{CrossHalf: cross, MinuteTol: minute}
		if own == match.HT {
			s.HTPriceTol, s.FTPriceTol = ownTol, otherTol
		} else {
			s.HTPriceTol, s.FTPriceTol = otherTol, ownTol
		}
		return s
	}

	maxMinute := opts.MaxMinuteTolerance
	if maxMinute < 0 {
		maxMinute = 0
	}

	plan := make([]Stage, 0, 2*(maxMinute+1)+3)
	for m := 0; m <= maxMinute; m++ {
		plan = append(plan, stage(true, m, decimal.Zero, decimal.Zero))
	}
	plan = append(plan,
		stage(true, maxMinute, decimal.Zero, otherInc),
		stage(true, maxMinute, ownInc, otherInc),
	)
	for m := 0; m <= maxMinute; m++ {
		plan = append(plan, stage(false, m, decimal.Zero, decimal.Zero))
	}
	plan = append(plan, stage(false, maxMinute, ownInc, decimal.Zero))
	return plan
}

package portfolio

import (
	"math"

	"github.com/jaewoongo/optfolio/internal/market"
)

// executionPriceScale is the fixed-point scale of on-chain execution prices.
const executionPriceScale = 1e30

// Valuation is the mark-to-market outcome of a single position.
type Valuation struct {
	Size           float64
	MarkPrice      float64
	ExecutionPrice float64
	Payoff         float64
	PnL            float64
	ROI            float64
}

// Value computes normalized size, mark price, payoff, PnL and ROI for a
// position against its resolved quotes.
//
// The mark price falls back to the position's own reported price whenever the
// quote-derived value is zero or NaN - including a legitimately zero mark,
// which is indistinguishable from a missing one in the upstream feed. That
// falsy trigger is a known quirk of the source of truth and is preserved
// exactly. A zero execution price yields a non-finite ROI, which propagates
// to the caller untouched.
func Value(pos RawPosition, main, paired market.Quote, isCombo bool, assetDecimals int) Valuation {
	size := parseNumber(pos.Size) / math.Pow(10, float64(assetDecimals))

	var mark float64
	if isCombo {
		mark = main.MarkPrice - paired.MarkPrice
	} else {
		mark = main.MarkPrice
	}
	if !truthy(mark) {
		mark = pos.MarkPrice
	}
	mark = math.Max(mark, 0)

	exec := parseNumber(pos.ExecutionPrice) / executionPriceScale

	var payoff float64
	if pos.IsBuy {
		payoff = mark - exec
	} else {
		payoff = exec - mark
	}

	return Valuation{
		Size:           size,
		MarkPrice:      mark,
		ExecutionPrice: exec,
		Payoff:         payoff,
		PnL:            payoff * size,
		ROI:            payoff / exec * 100,
	}
}

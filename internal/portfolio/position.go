// Package portfolio turns raw on-chain position records into per-expiry
// analytics: net Greeks, mark-to-market PnL and ROI per position.
package portfolio

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/jaewoongo/optfolio/internal/market"
)

// RawPosition is one position record as served by the positions endpoint.
// Numeric fields arrive as strings when they originate from on-chain big
// integers.
type RawPosition struct {
	UnderlyingAssetIndex string `json:"underlyingAssetIndex"`
	OptionTokenID        string `json:"optionTokenId"`

	// Length is the position's own reported leg count. It drives the combo
	// decision for valuation and Greeks, and is independent of the leg count
	// decodable from OptionTokenID; the two are not guaranteed to agree.
	Length       string `json:"length"`
	IsBuys       string `json:"isBuys"`
	StrikePrices string `json:"strikePrices"`
	IsCalls      string `json:"isCalls"`
	OptionNames  string `json:"optionNames"`

	MainOptionStrikePrice   float64 `json:"mainOptionStrikePrice"`
	PairedOptionStrikePrice float64 `json:"pairedOptionStrikePrice"`
	MarkIV                  float64 `json:"markIv"`
	MarkPrice               float64 `json:"markPrice"`

	Size        string `json:"size"`
	SizeOpened  string `json:"sizeOpened"`
	SizeClosing string `json:"sizeClosing"`
	SizeClosed  string `json:"sizeClosed"`
	SizeSettled string `json:"sizeSettled"`

	IsBuy          bool   `json:"isBuy"`
	ExecutionPrice string `json:"executionPrice"`

	IsSettled            bool   `json:"isSettled"`
	LastProcessBlockTime string `json:"lastProcessBlockTime"`
}

// ExpiryGroup is the positions endpoint's grouping of one asset's positions
// under a shared expiry.
type ExpiryGroup struct {
	Expiry      string        `json:"expiry"`
	Positions   []RawPosition `json:"positions"`
	SettlePrice string        `json:"settlePrice"`
}

// Metric is a float64 whose JSON form survives non-finite values. ROI is
// contractually allowed to be ±Inf when the execution price is zero, and
// encoding/json rejects non-finite floats outright.
type Metric float64

// MarshalJSON encodes non-finite values as strings and everything else as a
// plain JSON number.
func (m Metric) MarshalJSON() ([]byte, error) {
	f := float64(m)
	switch {
	case math.IsInf(f, 1):
		return []byte(`"Infinity"`), nil
	case math.IsInf(f, -1):
		return []byte(`"-Infinity"`), nil
	case math.IsNaN(f):
		return []byte(`"NaN"`), nil
	}
	return json.Marshal(f)
}

// UnmarshalJSON accepts both the string forms produced by MarshalJSON and
// plain numbers.
func (m *Metric) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	switch s {
	case "Infinity":
		*m = Metric(math.Inf(1))
		return nil
	case "-Infinity":
		*m = Metric(math.Inf(-1))
		return nil
	case "NaN":
		*m = Metric(math.NaN())
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*m = Metric(f)
	return nil
}

// ProcessedPosition is one position with analytics attached, ready for
// presentation. Immutable once built.
type ProcessedPosition struct {
	MainInstrument string        `json:"mainOptionName"`
	PairedStrike   *float64      `json:"pairedOptionStrikePrice"`
	IsBuy          bool          `json:"isBuy"`
	Size           float64       `json:"parsedSize"`
	Greeks         market.Greeks `json:"greeks"`
	PnL            float64       `json:"pnl"`
	ROI            Metric        `json:"roi"`
}

// ExpiryAnalytics is one expiry's processed positions, ordered ascending by
// main-leg strike.
type ExpiryAnalytics struct {
	Expiry    string              `json:"expiry"`
	Positions []ProcessedPosition `json:"positions"`
}

// Result is the full analytics output for one underlying asset, ordered
// ascending by numeric expiry. The ordering is part of the contract:
// consumers iterate it directly.
type Result []ExpiryAnalytics

// Totals are portfolio-level sums across every position in a Result.
type Totals struct {
	Greeks    market.Greeks `json:"greeks"`
	PnL       float64       `json:"pnl"`
	Positions int           `json:"positions"`
}

// Totals sums Greeks, PnL and the position count across all expiries.
func (r Result) Totals() Totals {
	var t Totals
	for _, group := range r {
		for _, pos := range group.Positions {
			t.Greeks.Delta += pos.Greeks.Delta
			t.Greeks.Gamma += pos.Greeks.Gamma
			t.Greeks.Vega += pos.Greeks.Vega
			t.Greeks.Theta += pos.Greeks.Theta
			t.PnL += pos.PnL
			t.Positions++
		}
	}
	return t
}

// parseNumber converts a string-encoded decimal the way the upstream feed
// defines it: empty is 0, anything unparseable is NaN. NaN then flows through
// the same falsy checks a missing value would.
func parseNumber(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// truthy reports whether v is a usable numeric value: non-zero and not NaN.
// A legitimate value of exactly zero is deliberately NOT truthy; the mark
// price fallback depends on that exact behavior.
func truthy(v float64) bool {
	return v != 0 && !math.IsNaN(v)
}

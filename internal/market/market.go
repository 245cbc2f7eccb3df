// Package market models the live option quote surface published by the
// protocol and flattens it into the instrument-keyed table the analytics
// pipeline consumes.
package market

import (
	"strconv"
	"strings"
)

// Quote is the live market view of a single option instrument.
//
// The zero value is the canonical "missing quote": all prices and Greeks zero
// and Available false. Resolving an unknown instrument returns it instead of
// an error so one delisted instrument never aborts portfolio analytics.
type Quote struct {
	Instrument             string  `json:"instrument,omitempty"`
	OptionID               string  `json:"optionId"`
	Strike                 float64 `json:"strikePrice"`
	MarkIV                 float64 `json:"markIv"`
	MarkPrice              float64 `json:"markPrice"`
	RiskPremiumRateForBuy  float64 `json:"riskPremiumRateForBuy"`
	RiskPremiumRateForSell float64 `json:"riskPremiumRateForSell"`
	Delta                  float64 `json:"delta"`
	Gamma                  float64 `json:"gamma"`
	Vega                   float64 `json:"vega"`
	Theta                  float64 `json:"theta"`
	Volume                 float64 `json:"volume"`
	Available              bool    `json:"isOptionAvailable"`
}

// Greeks is the first-order risk vector of an instrument or a position.
type Greeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Vega  float64 `json:"vega"`
	Theta float64 `json:"theta"`
}

// Table maps instrument name to its latest quote.
type Table map[string]Quote

// Resolve returns the stored quote for an instrument, or the zero quote when
// the instrument is absent. It never fails.
func (t Table) Resolve(instrument string) Quote {
	if q, ok := t[instrument]; ok {
		return q
	}
	return Quote{}
}

// TypedQuotes is one expiry's quote lists split by option type.
type TypedQuotes struct {
	Call []Quote `json:"call"`
	Put  []Quote `json:"put"`
}

// AssetBoard is the nested per-asset quote structure of the market payload:
// the asset's listed expiries and, per expiry timestamp, its call and put
// quote lists.
type AssetBoard struct {
	Expiries []int64                `json:"expiries"`
	Options  map[string]TypedQuotes `json:"options"`
}

// Flatten collapses per-asset boards into a single instrument-keyed table.
// Quotes missing an instrument name are dropped; they could never be resolved.
func Flatten(boards map[string]AssetBoard) Table {
	table := make(Table)
	for _, board := range boards {
		for _, expiry := range board.Expiries {
			typed, ok := board.Options[strconv.FormatInt(expiry, 10)]
			if !ok {
				continue
			}
			for _, q := range typed.Call {
				if q.Instrument != "" {
					table[q.Instrument] = q
				}
			}
			for _, q := range typed.Put {
				if q.Instrument != "" {
					table[q.Instrument] = q
				}
			}
		}
	}
	return table
}

// StrikeFromInstrument parses the strike out of an instrument name of the
// form ASSET-EXPIRY-STRIKE-TYPE, e.g. "BTC-27JUN25-70000-C". The second
// return is false when the name does not carry a parseable strike.
func StrikeFromInstrument(instrument string) (float64, bool) {
	parts := strings.Split(instrument, "-")
	if len(parts) < 3 {
		return 0, false
	}
	strike, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return 0, false
	}
	return strike, true
}

// Indices carries the spot and futures index prices and per-expiry risk-free
// rates published alongside the quote surface.
type Indices struct {
	Futures      map[string]float64            `json:"futures"`
	Spot         map[string]float64            `json:"spot"`
	RiskFreeRate map[string]map[string]float64 `json:"riskFreeRate"`
}

// PoolAssets is the USD balance-sheet breakdown of an options liquidity pool.
type PoolAssets struct {
	PoolUSD      float64 `json:"poolUsd"`
	PendingMpUSD float64 `json:"pendingMpUsd"`
	PendingRpUSD float64 `json:"pendingRpUsd"`
	ReservedUSD  float64 `json:"reservedUsd"`
	UtilizedUSD  float64 `json:"utilizedUsd"`
	AvailableUSD float64 `json:"availableUsd"`
	DepositedUSD float64 `json:"depositedUsd"`
}

// AssetAmount is a pool's per-token utilization breakdown.
type AssetAmount struct {
	UtilizedAmount  float64 `json:"utilizedAmount"`
	AvailableAmount float64 `json:"availableAmount"`
	DepositedAmount float64 `json:"depositedAmount"`
}

// PoolStats combines the pool's balance sheet from the daily analysis archive
// with the live utilization and net Greeks from the market payload.
type PoolStats struct {
	Assets        PoolAssets             `json:"assets"`
	AssetAmounts  map[string]AssetAmount `json:"assetAmounts"`
	PositionValue float64                `json:"positionValue"`
	Greeks        map[string]Greeks      `json:"greeks"`
}

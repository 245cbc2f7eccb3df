package portfolio

import (
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jaewoongo/optfolio/internal/market"
	"github.com/jaewoongo/optfolio/internal/token"
)

// Assembler builds the per-asset analytics result from raw expiry groups and
// the live quote table. It holds no mutable state between runs; Assemble is a
// pure function of its inputs plus the injected clock.
type Assembler struct {
	Quotes   market.Table
	Decimals map[string]int
	Logger   *logrus.Logger

	// Now is overridable for tests; defaults to time.Now.
	Now func() time.Time
}

// Assemble filters, sorts and processes one asset's expiry groups.
//
// Groups survive only when unsettled (settlePrice == "0") and not yet expired.
// Within a kept group, settled positions are dropped and the rest ordered by
// their reported main strike. A position whose token fails to decode is
// excluded with a warning; it never aborts the batch. The result is ordered
// ascending by numeric expiry.
func (a *Assembler) Assemble(asset string, groups []ExpiryGroup) Result {
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	nowUnix := float64(now().Unix())
	decimals := a.Decimals[asset]

	result := make(Result, 0, len(groups))
	for _, group := range groups {
		if group.SettlePrice != "0" || parseNumber(group.Expiry) < nowUnix {
			continue
		}

		sorted := make([]RawPosition, len(group.Positions))
		copy(sorted, group.Positions)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].MainOptionStrikePrice < sorted[j].MainOptionStrikePrice
		})

		processed := make([]ProcessedPosition, 0, len(sorted))
		for _, pos := range sorted {
			if pos.IsSettled {
				continue
			}
			p, err := a.process(pos, decimals)
			if err != nil {
				if a.Logger != nil {
					a.Logger.WithFields(logrus.Fields{
						"asset":   asset,
						"expiry":  group.Expiry,
						"tokenId": pos.OptionTokenID,
					}).WithError(err).Warn("skipping undecodable position")
				}
				continue
			}
			processed = append(processed, p)
		}

		// Kept groups stay in the result even when every position was
		// filtered out; consumers render empty expiries.
		result = append(result, ExpiryAnalytics{
			Expiry:    group.Expiry,
			Positions: processed,
		})
	}

	sort.SliceStable(result, func(i, j int) bool {
		return parseNumber(result[i].Expiry) < parseNumber(result[j].Expiry)
	})

	return result
}

func (a *Assembler) process(pos RawPosition, decimals int) (ProcessedPosition, error) {
	id, err := token.ParseID(pos.OptionTokenID)
	if err != nil {
		return ProcessedPosition{}, err
	}
	strategy, err := token.DecodeStrategy(id)
	if err != nil {
		return ProcessedPosition{}, err
	}

	isCombo := parseNumber(pos.Length) > 1
	mainName := token.MainInstrument(strategy, pos.OptionNames)
	pairedName := token.PairedInstrument(strategy, pos.OptionNames)

	var pairedStrike *float64
	if strike, ok := market.StrikeFromInstrument(pairedName); ok {
		pairedStrike = &strike
	}

	mainQuote := a.Quotes.Resolve(mainName)
	pairedQuote := a.Quotes.Resolve(pairedName)

	val := Value(pos, mainQuote, pairedQuote, isCombo, decimals)
	greeks := NetGreeks(isCombo, mainQuote, pairedQuote, val.Size, pos.IsBuy)

	return ProcessedPosition{
		MainInstrument: mainName,
		PairedStrike:   pairedStrike,
		IsBuy:          pos.IsBuy,
		Size:           val.Size,
		Greeks:         greeks,
		PnL:            val.PnL,
		ROI:            Metric(val.ROI),
	}, nil
}

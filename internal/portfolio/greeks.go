package portfolio

import "github.com/jaewoongo/optfolio/internal/market"

// NetGreeks combines main and paired quote Greeks into the position's net,
// direction-signed exposure. For combos the net is main minus paired; either
// way the vector is scaled by normalized size and negated for sells.
//
// isCombo comes from the position's reported leg-count field, not from the
// decoded token. Missing quotes arrive here as zero quotes, so a position
// with no live market data nets out to zero exposure.
func NetGreeks(isCombo bool, main, paired market.Quote, size float64, isBuy bool) market.Greeks {
	sign := 1.0
	if !isBuy {
		sign = -1.0
	}

	if isCombo {
		return market.Greeks{
			Delta: (main.Delta - paired.Delta) * size * sign,
			Gamma: (main.Gamma - paired.Gamma) * size * sign,
			Vega:  (main.Vega - paired.Vega) * size * sign,
			Theta: (main.Theta - paired.Theta) * size * sign,
		}
	}

	return market.Greeks{
		Delta: main.Delta * size * sign,
		Gamma: main.Gamma * size * sign,
		Vega:  main.Vega * size * sign,
		Theta: main.Theta * size * sign,
	}
}

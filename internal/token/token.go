// Package token decodes packed option token identifiers.
//
// The protocol encodes the full contract identity of a position - underlying
// asset, expiry, strategy, up to four legs and the vault that issued it - into
// a single 256-bit unsigned integer. Decoding is exact bit slicing; no field is
// ever rounded or approximated through floats.
package token

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// ErrUnsupportedStrategy is returned when the strategy nibble of a token is 0,
// the reserved value the contracts never emit for a live position.
var ErrUnsupportedStrategy = errors.New("unsupported strategy code 0")

// Strategy is the 4-bit strategy code carried in an option token.
type Strategy uint8

// Strategy codes as emitted by the contracts. Code 0 is reserved and invalid.
const (
	StrategyNotSupported Strategy = iota
	StrategyBuyCall
	StrategySellCall
	StrategyBuyPut
	StrategySellPut
	StrategyBuyCallSpread
	StrategySellCallSpread
	StrategyBuyPutSpread
	StrategySellPutSpread
)

var strategyNames = map[Strategy]string{
	StrategyNotSupported:   "not_supported",
	StrategyBuyCall:        "buy_call",
	StrategySellCall:       "sell_call",
	StrategyBuyPut:         "buy_put",
	StrategySellPut:        "sell_put",
	StrategyBuyCallSpread:  "buy_call_spread",
	StrategySellCallSpread: "sell_call_spread",
	StrategyBuyPutSpread:   "buy_put_spread",
	StrategySellPutSpread:  "sell_put_spread",
}

func (s Strategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return fmt.Sprintf("strategy(%d)", uint8(s))
}

// IsCallSpread reports whether the strategy is one of the two call-spread variants.
func (s Strategy) IsCallSpread() bool {
	return s == StrategyBuyCallSpread || s == StrategySellCallSpread
}

// IsPutSpread reports whether the strategy is one of the two put-spread variants.
func (s Strategy) IsPutSpread() bool {
	return s == StrategyBuyPutSpread || s == StrategySellPutSpread
}

// IsSpread reports whether the strategy carries a paired leg.
func (s Strategy) IsSpread() bool {
	return s.IsCallSpread() || s.IsPutSpread()
}

// MaxLegs is the number of leg slots encoded in every token, whether used or not.
const MaxLegs = 4

// Leg is one constituent option contract of a decoded token.
type Leg struct {
	IsBuy  bool
	Strike uint64 // 42-bit fixed-point strike as stored on chain
	IsCall bool
}

// Decoded holds every field reconstructed from a packed token identifier.
//
// LegCount is the count encoded in the token itself. Positions also report
// their own leg-count field on the wire, and the two are not guaranteed to
// agree; analytics decisions use the position-reported value, so LegCount here
// is informational only.
type Decoded struct {
	UnderlyingAssetIndex uint16
	Expiry               int64 // unix seconds
	Strategy             Strategy
	LegCount             int // 1..4
	Legs                 [MaxLegs]Leg
	VaultIndex           uint8
}

// Bit offsets of each field, LSB = bit 0. Leg slots repeat every 48 bits:
// the first leg packs isBuy at bit 193, its 42-bit strike at bits 188..147
// and isCall at bit 146, and each subsequent leg sits 48 bits lower.
const (
	assetIndexShift = 240
	expiryShift     = 200
	strategyShift   = 196
	legCountShift   = 194
	legStride       = 48
	legBuyShift     = 193
	legStrikeShift  = 147
	legCallShift    = 146
	strikeWidth     = 42
)

// ParseID parses a decimal string into a token identifier. Position payloads
// carry the 256-bit token as a decimal string because it does not fit any
// native JSON number.
func ParseID(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	id, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("malformed token id %q", s)
	}
	if id.Sign() < 0 || id.BitLen() > 256 {
		return nil, fmt.Errorf("token id %q out of uint256 range", s)
	}
	return id, nil
}

// Decode reconstructs the structured fields packed into a token identifier.
// Every 4-bit strategy value except 0 decodes successfully; whether the caller
// recognizes the strategy semantically is a separate concern.
func Decode(id *big.Int) (Decoded, error) {
	strategy := Strategy(extract(id, strategyShift, 4))
	if strategy == StrategyNotSupported {
		return Decoded{}, ErrUnsupportedStrategy
	}

	d := Decoded{
		UnderlyingAssetIndex: uint16(extract(id, assetIndexShift, 16)),
		Expiry:               int64(extract(id, expiryShift, 40)),
		Strategy:             strategy,
		LegCount:             int(extract(id, legCountShift, 2)) + 1,
		VaultIndex:           uint8(extract(id, 0, 2)),
	}

	// All four slots are decoded regardless of LegCount; trailing slots are
	// simply zero for shorter strategies.
	for i := 0; i < MaxLegs; i++ {
		off := uint(i * legStride)
		d.Legs[i] = Leg{
			IsBuy:  extract(id, legBuyShift-off, 1) == 1,
			Strike: extract(id, legStrikeShift-off, strikeWidth),
			IsCall: extract(id, legCallShift-off, 1) == 1,
		}
	}

	return d, nil
}

// DecodeStrategy extracts only the strategy nibble. Main/paired instrument
// resolution needs nothing else from the token.
func DecodeStrategy(id *big.Int) (Strategy, error) {
	strategy := Strategy(extract(id, strategyShift, 4))
	if strategy == StrategyNotSupported {
		return 0, ErrUnsupportedStrategy
	}
	return strategy, nil
}

// MainInstrument returns the instrument name of the leg used for direct
// valuation, given the position's comma-delimited instrument list.
//
// Put spreads list their legs in reverse economic order on the wire, so the
// second name is the main leg for those strategies. This asymmetry is a fixed
// rule of the encoding.
func MainInstrument(s Strategy, names string) string {
	list := strings.Split(names, ",")
	if s.IsPutSpread() {
		return instrumentAt(list, 1)
	}
	return instrumentAt(list, 0)
}

// PairedInstrument returns the instrument name subtracted from the main leg
// for spread strategies, or "" for single-leg strategies.
func PairedInstrument(s Strategy, names string) string {
	list := strings.Split(names, ",")
	if s.IsPutSpread() {
		return instrumentAt(list, 0)
	}
	if s.IsCallSpread() {
		return instrumentAt(list, 1)
	}
	return ""
}

func instrumentAt(list []string, i int) string {
	if i >= len(list) {
		return ""
	}
	return strings.TrimSpace(list[i])
}

// extract right-shifts id by shift and masks to width bits.
func extract(id *big.Int, shift, width uint) uint64 {
	v := new(big.Int).Rsh(id, shift)
	mask := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), width), big.NewInt(1))
	return v.And(v, mask).Uint64()
}

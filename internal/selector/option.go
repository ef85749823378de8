package selector

import (
	"sort"

	"optioncore/internal/greeks"
)

// OptionQuote is one candidate option contract with its current market
// snapshot, as fed to OptionSelector.SelectTarget.
type OptionQuote struct {
	VtSymbol         string
	UnderlyingSymbol string
	OptionType       greeks.OptionType
	StrikePrice      float64
	ExpiryDate       string
	BidPrice         float64
	BidVolume        int
	AskPrice         float64
	AskVolume        int
	DaysToExpiry     int
}

// SelectedOption is a quote annotated with its computed out-of-the-money
// fraction (diff1): positive means OTM, and quotes are ranked from
// smallest positive diff1 (nearest the money) to largest.
type SelectedOption struct {
	OptionQuote
	Diff1 float64
}

// OptionSelector filters candidate option contracts by liquidity and
// remaining tenor, then picks the target out-of-the-money strike level.
type OptionSelector struct {
	StrikeLevel    int
	MinBidPrice    float64
	MinBidVolume   int
	MinTradingDays int
	MaxTradingDays int
}

// NewOptionSelector returns a selector configured with the reference
// implementation's defaults.
func NewOptionSelector() *OptionSelector {
	return &OptionSelector{
		StrikeLevel:    3,
		MinBidPrice:    10.0,
		MinBidVolume:   10,
		MinTradingDays: 1,
		MaxTradingDays: 50,
	}
}

// Tick is the subset of live market data CheckLiquidity needs.
type Tick struct {
	VtSymbol  string
	Volume    float64
	BidPrice1 float64
	BidVol1   float64
	AskPrice1 float64
}

// ContractMeta supplies the exchange-defined price tick for spread checks.
type ContractMeta struct {
	PriceTick float64
}

// CheckLiquidity gates opening a new position on pre-trade liquidity:
// minimum daily volume, minimum best-bid depth, and a maximum bid/ask
// spread expressed in price-tick multiples.
func CheckLiquidity(tick Tick, contract ContractMeta, minVolume, minBidVolume float64, maxSpreadTicks float64) bool {
	if tick.Volume < minVolume {
		return false
	}
	if tick.BidVol1 < minBidVolume {
		return false
	}
	if contract.PriceTick <= 0 {
		return false
	}
	spread := tick.AskPrice1 - tick.BidPrice1
	spreadTicks := spread / contract.PriceTick
	return spreadTicks < maxSpreadTicks
}

// SelectTarget filters candidates by option type, liquidity and tenor,
// ranks the survivors by out-of-the-money fraction (ascending, nearest the
// money first), and returns the contract at StrikeLevel (1-indexed). If
// fewer candidates than StrikeLevel survive, the most out-of-the-money
// surviving contract is returned instead of failing outright. Returns
// ok=false only when no candidate survives filtering.
func (s *OptionSelector) SelectTarget(candidates []OptionQuote, optionType greeks.OptionType, underlyingPrice float64) (SelectedOption, bool) {
	level := s.StrikeLevel
	if level <= 0 {
		level = 3
	}

	var typed []OptionQuote
	for _, c := range candidates {
		if c.OptionType == optionType {
			typed = append(typed, c)
		}
	}
	if len(typed) == 0 {
		return SelectedOption{}, false
	}

	liquid := s.filterLiquidity(typed)
	if len(liquid) == 0 {
		return SelectedOption{}, false
	}

	tenored := s.filterTradingDays(liquid)
	if len(tenored) == 0 {
		return SelectedOption{}, false
	}

	ranked := rankByOTM(tenored, optionType, underlyingPrice)
	if len(ranked) == 0 {
		return SelectedOption{}, false
	}

	idx := level - 1
	if idx >= len(ranked) {
		idx = len(ranked) - 1
	}
	return ranked[idx], true
}

func (s *OptionSelector) filterLiquidity(in []OptionQuote) []OptionQuote {
	var out []OptionQuote
	for _, c := range in {
		if c.BidPrice < s.MinBidPrice {
			continue
		}
		if c.BidVolume < s.MinBidVolume {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (s *OptionSelector) filterTradingDays(in []OptionQuote) []OptionQuote {
	var out []OptionQuote
	for _, c := range in {
		if c.DaysToExpiry < s.MinTradingDays || c.DaysToExpiry > s.MaxTradingDays {
			continue
		}
		out = append(out, c)
	}
	return out
}

// rankByOTM keeps only strictly out-of-the-money candidates and sorts them
// by ascending OTM fraction (nearest the money first).
func rankByOTM(in []OptionQuote, optionType greeks.OptionType, underlyingPrice float64) []SelectedOption {
	if underlyingPrice <= 0 {
		return nil
	}
	var out []SelectedOption
	for _, c := range in {
		var diff1 float64
		if optionType == greeks.Call {
			diff1 = (c.StrikePrice - underlyingPrice) / underlyingPrice
		} else {
			diff1 = (underlyingPrice - c.StrikePrice) / underlyingPrice
		}
		if diff1 > 0 {
			out = append(out, SelectedOption{OptionQuote: c, Diff1: diff1})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Diff1 < out[j].Diff1 })
	return out
}

// Package sizing turns a signal into an order instruction, subject to
// position-count and daily open-count risk limits.
package sizing

import (
	"github.com/shopspring/decimal"
)

// Direction mirrors the broker-facing long/short convention.
type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

// Offset distinguishes opening a new position from closing an existing one.
type Offset string

const (
	Open  Offset = "open"
	Close Offset = "close"
)

// Instruction is the sizing service's output: a fully-specified order
// request ready for the executor.
type Instruction struct {
	VtSymbol  string
	Direction Direction
	Offset    Offset
	Volume    int
	Price     float64
	Signal    string
}

// PositionView is the minimal position state the sizing service needs to
// enforce per-contract and max-position limits.
type PositionView struct {
	VtSymbol string
	Volume   int
	IsActive bool
}

// Limits bundles the configurable risk caps. Values of zero mean "use the
// service's defaults" only when constructing via NewService; once set,
// zero is a genuine hard limit of zero.
type Limits struct {
	MaxPositions        int
	GlobalDailyOpenCap  int
	ContractDailyOpenCap int
}

// Service computes open/close instructions and enforces position and
// daily-cap risk limits. Unlike the reference implementation (which fixes
// volume at a flat 1 lot), margin sufficiency is also checked via exact
// decimal arithmetic before an open is approved, since float64 rounding on
// the margin-ratio comparison could approve a trade a human review would
// reject by a hair.
type Service struct {
	limits Limits
	// MarginRatio is the fraction of account balance required as margin
	// per lot at contract_price. 0 disables the margin check.
	MarginRatio decimal.Decimal
}

// NewService returns a sizing service with the reference defaults: 5 max
// positions, 50 global daily opens, 2 per-contract daily opens.
func NewService() *Service {
	return &Service{
		limits: Limits{MaxPositions: 5, GlobalDailyOpenCap: 50, ContractDailyOpenCap: 2},
	}
}

// WithLimits returns a copy of s using the given limits.
func (s *Service) WithLimits(l Limits) *Service {
	cp := *s
	cp.limits = l
	return &cp
}

// CalculateOpenVolume returns a short-open instruction (the strategy is a
// premium seller) for one lot, or ok=false if any risk gate rejects the
// trade: max-position count, global or per-contract daily open cap,
// an existing position in the same contract, a non-positive contract
// price, or insufficient margin when MarginRatio is set.
func (s *Service) CalculateOpenVolume(
	accountBalance float64,
	signal, vtSymbol string,
	contractPrice float64,
	currentPositions []PositionView,
	currentDailyOpenCount, currentContractOpenCount int,
) (Instruction, bool) {
	activeCount := 0
	for _, p := range currentPositions {
		if !p.IsActive {
			continue
		}
		activeCount++
		if p.VtSymbol == vtSymbol {
			return Instruction{}, false
		}
	}
	if activeCount >= s.limits.MaxPositions {
		return Instruction{}, false
	}
	if currentDailyOpenCount+1 > s.limits.GlobalDailyOpenCap {
		return Instruction{}, false
	}
	if currentContractOpenCount+1 > s.limits.ContractDailyOpenCap {
		return Instruction{}, false
	}
	if contractPrice <= 0 {
		return Instruction{}, false
	}

	const volume = 1
	if !s.MarginRatio.IsZero() {
		required := s.MarginRatio.Mul(decimal.NewFromFloat(contractPrice)).Mul(decimal.NewFromInt(volume))
		balance := decimal.NewFromFloat(accountBalance)
		if balance.LessThan(required) {
			return Instruction{}, false
		}
	}

	return Instruction{
		VtSymbol:  vtSymbol,
		Direction: Short,
		Offset:    Open,
		Volume:    volume,
		Price:     contractPrice,
		Signal:    signal,
	}, true
}

// CalculateCloseVolume returns a long-close instruction covering the
// position's full volume, or ok=false if the position is already flat.
func (s *Service) CalculateCloseVolume(position PositionView, closePrice float64, signal string) (Instruction, bool) {
	if !position.IsActive || position.Volume <= 0 {
		return Instruction{}, false
	}
	return Instruction{
		VtSymbol:  position.VtSymbol,
		Direction: Long,
		Offset:    Close,
		Volume:    position.Volume,
		Price:     closePrice,
		Signal:    signal,
	}, true
}

// Package gateway adapts the broker connection to the strategy engine's
// MarketPort. The wire protocol itself (CTP-style) is an external
// collaborator (SPEC_FULL §1): CTPGateway holds market state fed in by a
// market-data feed goroutine (not built here, since the broker's API is
// out of scope) and forwards orders to an injected common.Gateway client,
// defaulting to a deterministic paper client when none is configured.
package gateway

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"optioncore/internal/greeks"
	"optioncore/internal/selector"
	"optioncore/internal/sizing"
	exchange "optioncore/pkg/exchanges/common"
)

// MarketDataSnapshot is the mutable market state CTPGateway serves reads
// from. A feed goroutine owns writing it via the Update* methods; the
// strategy engine only ever reads through the MarketPort interface.
type MarketDataSnapshot struct {
	mu               sync.RWMutex
	ticks            map[string]selector.Tick
	contractMeta     map[string]selector.ContractMeta
	futureCandidates map[string][]selector.Contract
	optionCandidates map[string][]selector.OptionQuote
	greeksInputs     map[string]greeks.Inputs
	balance          float64
}

// NewMarketDataSnapshot returns an empty, ready-to-use snapshot.
func NewMarketDataSnapshot() *MarketDataSnapshot {
	return &MarketDataSnapshot{
		ticks:            make(map[string]selector.Tick),
		contractMeta:     make(map[string]selector.ContractMeta),
		futureCandidates: make(map[string][]selector.Contract),
		optionCandidates: make(map[string][]selector.OptionQuote),
		greeksInputs:     make(map[string]greeks.Inputs),
	}
}

// UpdateTick records vtSymbol's latest quote.
func (s *MarketDataSnapshot) UpdateTick(vtSymbol string, tick selector.Tick) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticks[vtSymbol] = tick
}

// UpdateContractMeta records vtSymbol's contract metadata (price tick etc).
func (s *MarketDataSnapshot) UpdateContractMeta(vtSymbol string, meta selector.ContractMeta) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contractMeta[vtSymbol] = meta
}

// UpdateFutureCandidates replaces product's tracked future contract list.
func (s *MarketDataSnapshot) UpdateFutureCandidates(product string, candidates []selector.Contract) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.futureCandidates[product] = candidates
}

// UpdateOptionCandidates replaces underlyingVtSymbol's option chain.
func (s *MarketDataSnapshot) UpdateOptionCandidates(underlyingVtSymbol string, candidates []selector.OptionQuote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.optionCandidates[underlyingVtSymbol] = candidates
}

// UpdateGreeksInputs records vtSymbol's latest Black-Scholes inputs.
func (s *MarketDataSnapshot) UpdateGreeksInputs(vtSymbol string, in greeks.Inputs) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.greeksInputs[vtSymbol] = in
}

// SetAccountBalance records the broker-reported account balance.
func (s *MarketDataSnapshot) SetAccountBalance(balance float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balance = balance
}

// CTPGateway implements strategy.MarketPort over a MarketDataSnapshot and
// an injected exchange.Gateway order client.
type CTPGateway struct {
	snapshot *MarketDataSnapshot

	client  exchange.Gateway // nil => paper mode, orders accepted but never sent
	limiter *exchange.RateLimiter
	clock   *exchange.TimeSync

	mu          sync.Mutex
	subscribed  map[string]bool
	nextPaperID uint64
}

// NewCTPGateway returns a gateway fed from snapshot. client may be nil to
// run in paper mode (orders are accepted and acked locally, never routed
// to a broker) — used for dry runs and tests. limiter/clock may be nil.
func NewCTPGateway(snapshot *MarketDataSnapshot, client exchange.Gateway, limiter *exchange.RateLimiter, clock *exchange.TimeSync) *CTPGateway {
	return &CTPGateway{
		snapshot:   snapshot,
		client:     client,
		limiter:    limiter,
		clock:      clock,
		subscribed: make(map[string]bool),
	}
}

// Subscribe marks vtSymbol as wanted by the strategy; the feed goroutine
// consults Subscribed to decide what to stream.
func (g *CTPGateway) Subscribe(vtSymbol string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.subscribed[vtSymbol] = true
}

// Unsubscribe drops vtSymbol from the wanted set.
func (g *CTPGateway) Unsubscribe(vtSymbol string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.subscribed, vtSymbol)
}

// Subscribed reports whether vtSymbol is currently subscribed, for the
// feed goroutine to consult.
func (g *CTPGateway) Subscribed(vtSymbol string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.subscribed[vtSymbol]
}

func (g *CTPGateway) GetTick(vtSymbol string) (selector.Tick, bool) {
	g.snapshot.mu.RLock()
	defer g.snapshot.mu.RUnlock()
	t, ok := g.snapshot.ticks[vtSymbol]
	return t, ok
}

func (g *CTPGateway) GetContractMeta(vtSymbol string) (selector.ContractMeta, bool) {
	g.snapshot.mu.RLock()
	defer g.snapshot.mu.RUnlock()
	m, ok := g.snapshot.contractMeta[vtSymbol]
	return m, ok
}

func (g *CTPGateway) GetFutureCandidates(product string) []selector.Contract {
	g.snapshot.mu.RLock()
	defer g.snapshot.mu.RUnlock()
	return append([]selector.Contract(nil), g.snapshot.futureCandidates[product]...)
}

func (g *CTPGateway) GetOptionCandidates(underlyingVtSymbol string) []selector.OptionQuote {
	g.snapshot.mu.RLock()
	defer g.snapshot.mu.RUnlock()
	return append([]selector.OptionQuote(nil), g.snapshot.optionCandidates[underlyingVtSymbol]...)
}

func (g *CTPGateway) GetGreeksInputs(vtSymbol string) (greeks.Inputs, bool) {
	g.snapshot.mu.RLock()
	defer g.snapshot.mu.RUnlock()
	in, ok := g.snapshot.greeksInputs[vtSymbol]
	return in, ok
}

func (g *CTPGateway) GetAccountBalance() float64 {
	g.snapshot.mu.RLock()
	defer g.snapshot.mu.RUnlock()
	return g.snapshot.balance
}

// SendOrder routes instr to the broker client, gated by the rate limiter.
// In paper mode (client == nil) it synthesizes a deterministic local order
// ID and never touches the network.
func (g *CTPGateway) SendOrder(instr sizing.Instruction) (string, error) {
	if g.limiter != nil && g.limiter.ShouldDelay() {
		time.Sleep(50 * time.Millisecond)
	}

	if g.client == nil {
		id := atomic.AddUint64(&g.nextPaperID, 1)
		return fmt.Sprintf("paper-%d", id), nil
	}

	side := exchange.SideBuy
	if instr.Direction == sizing.Short {
		side = exchange.SideSell
	}
	req := exchange.OrderRequest{
		Symbol:      instr.VtSymbol,
		Side:        side,
		Type:        exchange.OrderTypeLimit,
		Qty:         float64(instr.Volume),
		Price:       instr.Price,
		TimeInForce: exchange.TIFGTC,
		ReduceOnly:  instr.Offset == sizing.Close,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	result, err := g.client.SubmitOrder(ctx, req)
	if err != nil {
		return "", fmt.Errorf("submit order: %w", err)
	}
	return result.ExchangeOrderID, nil
}

// CancelOrder requests cancellation of vtOrderID. A client error is
// discarded, neither logged nor returned, matching the executor's
// best-effort cancel-and-retry model.
func (g *CTPGateway) CancelOrder(vtOrderID string) {
	if g.client == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = g.client.CancelOrder(ctx, "", vtOrderID)
}

// Now returns the broker-synchronized current time, falling back to the
// local clock when no TimeSync is configured.
func (g *CTPGateway) Now() time.Time {
	if g.clock == nil {
		return time.Now()
	}
	return time.UnixMilli(g.clock.Now())
}

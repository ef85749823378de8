package indicator

import (
	"context"
	"log"

	"optioncore/internal/instrument"
	"optioncore/internal/rpcbridge"
)

// GRPCService is the out-of-process alternate to MACDService: it scores
// bars by calling a worker over rpcbridge instead of computing MACD
// in-process. It satisfies the same Service interface, so the strategy
// engine never needs to know which implementation is wired in.
type GRPCService struct {
	client *rpcbridge.Client
}

// NewGRPCService wraps an already-dialed bridge client.
func NewGRPCService(client *rpcbridge.Client) *GRPCService {
	return &GRPCService{client: client}
}

// CalculateBar sends target's bar history to the worker and merges the
// returned indicator snapshot in. A transport failure is logged and
// otherwise swallowed: a strategy engine blocking on a flaky worker would
// stall the whole bar cycle, so this degrades to "indicators unchanged"
// instead.
func (s *GRPCService) CalculateBar(target *instrument.Target) {
	if s.client == nil || len(target.Bars) == 0 {
		return
	}

	req := rpcbridge.CalculateBarRequest{VtSymbol: target.VtSymbol, Bars: make([]rpcbridge.BarPoint, len(target.Bars))}
	for i, b := range target.Bars {
		req.Bars[i] = rpcbridge.BarPoint{Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume, Datetime: b.Datetime}
	}

	resp, err := s.client.CalculateBar(context.Background(), req)
	if err != nil {
		log.Printf("indicator worker call failed for %s: %v", target.VtSymbol, err)
		return
	}

	if target.Indicators == nil {
		target.Indicators = make(instrument.IndicatorSnapshot)
	}
	for k, v := range resp.Indicators {
		target.Indicators[k] = v
	}
}

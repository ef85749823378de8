package signal

import (
	"context"
	"log"

	"optioncore/internal/instrument"
	"optioncore/internal/rpcbridge"
)

// GRPCService is the out-of-process alternate to MACDSignalService: open
// and close signals are decided by a worker over rpcbridge rather than an
// in-process rule, per SPEC_FULL §1.2/§4.3. It satisfies the same Service
// interface the engine depends on.
type GRPCService struct {
	client *rpcbridge.Client
}

// NewGRPCService wraps an already-dialed bridge client.
func NewGRPCService(client *rpcbridge.Client) *GRPCService {
	return &GRPCService{client: client}
}

func (s *GRPCService) CheckOpenSignal(target *instrument.Target) (string, bool) {
	if s.client == nil {
		return "", false
	}
	resp, err := s.client.CheckOpenSignal(context.Background(), rpcbridge.SignalRequest{
		VtSymbol: target.VtSymbol, Indicators: target.Indicators,
	})
	if err != nil {
		log.Printf("signal worker open-check failed for %s: %v", target.VtSymbol, err)
		return "", false
	}
	return resp.Signal, resp.Fired
}

func (s *GRPCService) CheckCloseSignal(target *instrument.Target, position PositionView) (string, bool) {
	if s.client == nil {
		return "", false
	}
	resp, err := s.client.CheckCloseSignal(context.Background(), rpcbridge.SignalRequest{
		VtSymbol: target.VtSymbol, Indicators: target.Indicators,
		PositionDirection: position.Direction, PositionOpenPrice: position.OpenPrice,
	})
	if err != nil {
		log.Printf("signal worker close-check failed for %s: %v", target.VtSymbol, err)
		return "", false
	}
	return resp.Signal, resp.Fired
}

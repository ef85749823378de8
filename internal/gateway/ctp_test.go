package gateway

import (
	"context"
	"errors"
	"testing"

	"optioncore/internal/greeks"
	"optioncore/internal/selector"
	"optioncore/internal/sizing"
	exchange "optioncore/pkg/exchanges/common"
)

type fakeClient struct {
	submitted []exchange.OrderRequest
	cancelled []string
	submitErr error
	cancelErr error
	nextID    int
}

func (f *fakeClient) SubmitOrder(ctx context.Context, req exchange.OrderRequest) (exchange.OrderResult, error) {
	if f.submitErr != nil {
		return exchange.OrderResult{}, f.submitErr
	}
	f.submitted = append(f.submitted, req)
	f.nextID++
	return exchange.OrderResult{ExchangeOrderID: "ord-1", Status: exchange.StatusNew}, nil
}

func (f *fakeClient) CancelOrder(ctx context.Context, symbol, exchangeOrderID string) error {
	f.cancelled = append(f.cancelled, exchangeOrderID)
	return f.cancelErr
}

func TestCTPGatewayPaperModeSendOrder(t *testing.T) {
	g := NewCTPGateway(NewMarketDataSnapshot(), nil, nil, nil)

	id, err := g.SendOrder(sizing.Instruction{VtSymbol: "IF2409", Direction: sizing.Long, Offset: sizing.Open, Volume: 2, Price: 100})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == "" {
		t.Fatal("expected a non-empty paper order id")
	}

	id2, _ := g.SendOrder(sizing.Instruction{VtSymbol: "IF2409", Direction: sizing.Long, Offset: sizing.Open, Volume: 1, Price: 100})
	if id2 == id {
		t.Fatalf("expected distinct paper order ids, got %q twice", id)
	}
}

func TestCTPGatewayRoutesThroughClient(t *testing.T) {
	client := &fakeClient{}
	g := NewCTPGateway(NewMarketDataSnapshot(), client, nil, nil)

	id, err := g.SendOrder(sizing.Instruction{VtSymbol: "IO2409-C-4000", Direction: sizing.Short, Offset: sizing.Close, Volume: 3, Price: 12.5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "ord-1" {
		t.Fatalf("expected exchange order id from client, got %q", id)
	}
	if len(client.submitted) != 1 {
		t.Fatalf("expected exactly one submitted order, got %d", len(client.submitted))
	}
	req := client.submitted[0]
	if req.Side != exchange.SideSell {
		t.Fatalf("expected SELL side for Short direction, got %v", req.Side)
	}
	if !req.ReduceOnly {
		t.Fatal("expected ReduceOnly for a Close offset")
	}
	if req.Qty != 3 {
		t.Fatalf("expected qty 3, got %v", req.Qty)
	}

	g.CancelOrder("ord-1")
	if len(client.cancelled) != 1 || client.cancelled[0] != "ord-1" {
		t.Fatalf("expected CancelOrder forwarded to client, got %v", client.cancelled)
	}
}

func TestCTPGatewaySendOrderPropagatesClientError(t *testing.T) {
	client := &fakeClient{submitErr: errors.New("broker rejected")}
	g := NewCTPGateway(NewMarketDataSnapshot(), client, nil, nil)

	_, err := g.SendOrder(sizing.Instruction{VtSymbol: "IF2409", Direction: sizing.Long, Offset: sizing.Open, Volume: 1, Price: 100})
	if err == nil {
		t.Fatal("expected an error to propagate from the client")
	}
}

func TestCTPGatewayReadsReflectSnapshotUpdates(t *testing.T) {
	snap := NewMarketDataSnapshot()
	g := NewCTPGateway(snap, nil, nil, nil)

	if _, ok := g.GetTick("IF2409"); ok {
		t.Fatal("expected no tick before an update")
	}

	snap.UpdateTick("IF2409", selector.Tick{VtSymbol: "IF2409", Volume: 1000, BidPrice1: 100, AskPrice1: 100.2})
	tick, ok := g.GetTick("IF2409")
	if !ok || tick.BidPrice1 != 100 {
		t.Fatalf("expected updated tick to be visible, got %+v ok=%v", tick, ok)
	}

	snap.UpdateContractMeta("IF2409", selector.ContractMeta{PriceTick: 0.2})
	meta, ok := g.GetContractMeta("IF2409")
	if !ok || meta.PriceTick != 0.2 {
		t.Fatalf("expected updated contract meta, got %+v ok=%v", meta, ok)
	}

	snap.UpdateFutureCandidates("IF", []selector.Contract{{VtSymbol: "IF2409", Symbol: "IF2409"}})
	if got := g.GetFutureCandidates("IF"); len(got) != 1 || got[0].VtSymbol != "IF2409" {
		t.Fatalf("expected one future candidate, got %+v", got)
	}

	snap.UpdateOptionCandidates("IO2409", []selector.OptionQuote{{VtSymbol: "IO2409-C-4000", StrikePrice: 4000}})
	if got := g.GetOptionCandidates("IO2409"); len(got) != 1 || got[0].StrikePrice != 4000 {
		t.Fatalf("expected one option candidate, got %+v", got)
	}

	snap.UpdateGreeksInputs("IO2409-C-4000", greeks.Inputs{Spot: 4000, Strike: 4000, Vol: 0.2, TimeToExpY: 0.1, Type: greeks.Call})
	in, ok := g.GetGreeksInputs("IO2409-C-4000")
	if !ok || in.Strike != 4000 {
		t.Fatalf("expected updated greeks inputs, got %+v ok=%v", in, ok)
	}

	snap.SetAccountBalance(1_000_000)
	if g.GetAccountBalance() != 1_000_000 {
		t.Fatalf("expected updated balance, got %v", g.GetAccountBalance())
	}
}

func TestCTPGatewaySubscribeTracking(t *testing.T) {
	g := NewCTPGateway(NewMarketDataSnapshot(), nil, nil, nil)

	g.Subscribe("IF2409")
	if !g.Subscribed("IF2409") {
		t.Fatal("expected IF2409 to be subscribed")
	}
	g.Unsubscribe("IF2409")
	if g.Subscribed("IF2409") {
		t.Fatal("expected IF2409 to be unsubscribed")
	}
}

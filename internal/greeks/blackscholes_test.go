package greeks

import (
	"math"
	"testing"
)

func TestPutCallParity(t *testing.T) {
	in := Inputs{Spot: 100, Strike: 100, Rate: 0.03, Vol: 0.20, TimeToExpY: 0.25}
	in.Type = Call
	call := Compute(in)
	in.Type = Put
	put := Compute(in)

	diff := PutCallParity(call.Price, put.Price, in.Spot, in.Strike, in.Rate, in.TimeToExpY)
	if math.Abs(diff) > 1e-6 {
		t.Fatalf("put-call parity violated: diff=%v call=%v put=%v", diff, call.Price, put.Price)
	}
}

func TestComputeExpiryBoundary(t *testing.T) {
	in := Inputs{Spot: 110, Strike: 100, Rate: 0.03, Vol: 0.20, TimeToExpY: 0, Type: Call}
	g := Compute(in)
	if g.Price != 10 {
		t.Fatalf("expected intrinsic 10 at expiry, got %v", g.Price)
	}
	if g.Delta != 1 {
		t.Fatalf("expected delta 1 for deep ITM call at expiry, got %v", g.Delta)
	}
	if g.Gamma != 0 || g.Vega != 0 {
		t.Fatalf("expected zeroed gamma/vega at expiry, got gamma=%v vega=%v", g.Gamma, g.Vega)
	}
}

func TestGreeksSanity(t *testing.T) {
	cases := []struct {
		name string
		typ  OptionType
	}{
		{"call", Call},
		{"put", Put},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			in := Inputs{Spot: 100, Strike: 100, Rate: 0.03, Vol: 0.20, TimeToExpY: 0.25, Type: c.typ}
			g := Compute(in)
			if g.Gamma <= 0 {
				t.Fatalf("gamma must be positive, got %v", g.Gamma)
			}
			if g.Vega <= 0 {
				t.Fatalf("vega must be positive, got %v", g.Vega)
			}
			if c.typ == Call && (g.Delta < 0 || g.Delta > 1) {
				t.Fatalf("call delta out of [0,1]: %v", g.Delta)
			}
			if c.typ == Put && (g.Delta < -1 || g.Delta > 0) {
				t.Fatalf("put delta out of [-1,0]: %v", g.Delta)
			}
		})
	}
}

func TestImpliedVolRoundTrip(t *testing.T) {
	in := Inputs{Spot: 100, Strike: 105, Rate: 0.03, TimeToExpY: 0.5, Type: Call}
	wantSigma := 0.28
	in.Vol = wantSigma
	price := Compute(in).Price

	got, err := ImpliedVol(in, price)
	if err != nil {
		t.Fatalf("ImpliedVol returned error: %v", err)
	}
	if math.Abs(got-wantSigma) > 1e-4 {
		t.Fatalf("round-trip iv mismatch: want %v got %v", wantSigma, got)
	}
}

func TestImpliedVolRoundTripPut(t *testing.T) {
	in := Inputs{Spot: 100, Strike: 95, Rate: 0.02, TimeToExpY: 1.0, Type: Put}
	wantSigma := 0.45
	in.Vol = wantSigma
	price := Compute(in).Price

	got, err := ImpliedVol(in, price)
	if err != nil {
		t.Fatalf("ImpliedVol returned error: %v", err)
	}
	if math.Abs(got-wantSigma) > 1e-3 {
		t.Fatalf("round-trip iv mismatch: want %v got %v", wantSigma, got)
	}
}

func TestImpliedVolBelowIntrinsicFails(t *testing.T) {
	in := Inputs{Spot: 120, Strike: 100, Rate: 0.03, TimeToExpY: 0.25, Type: Call}
	_, err := ImpliedVol(in, 1.0) // below intrinsic of 20
	if err == nil {
		t.Fatal("expected error for below-intrinsic market price")
	}
}

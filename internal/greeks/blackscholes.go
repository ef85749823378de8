// Package greeks computes Black-Scholes option prices, Greeks and implied
// volatility for European options on futures-style underlyings.
package greeks

import "math"

// OptionType distinguishes calls from puts.
type OptionType string

const (
	Call OptionType = "call"
	Put  OptionType = "put"
)

// Inputs bundles the parameters needed for a single pricing/Greeks call.
type Inputs struct {
	Spot       float64 // underlying price S
	Strike     float64 // K
	Rate       float64 // risk-free rate r, annualized
	Vol        float64 // sigma, annualized
	TimeToExpY float64 // T, in years
	Type       OptionType
}

// Greeks holds the standard sensitivities. Vega is reported per 1.00 of
// volatility (not per 1 vol-point / 0.01), and Theta is reported per year
// (callers dividing by 365 get a per-day figure).
type Greeks struct {
	Price float64
	Delta float64
	Gamma float64
	Vega  float64
	Theta float64
	Rho   float64
}

func normCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}

func normPDF(x float64) float64 {
	return math.Exp(-0.5*x*x) / math.Sqrt(2*math.Pi)
}

// d1d2 returns the Black-Scholes d1 and d2 terms. Callers must ensure
// TimeToExpY > 0 and Vol > 0; at expiry or zero vol use IntrinsicValue
// instead.
func d1d2(in Inputs) (d1, d2 float64) {
	sqrtT := math.Sqrt(in.TimeToExpY)
	d1 = (math.Log(in.Spot/in.Strike) + (in.Rate+0.5*in.Vol*in.Vol)*in.TimeToExpY) / (in.Vol * sqrtT)
	d2 = d1 - in.Vol*sqrtT
	return
}

// IntrinsicValue returns the payoff if exercised immediately, used as the
// boundary case when TimeToExpY <= 0.
func IntrinsicValue(in Inputs) float64 {
	if in.Type == Call {
		return math.Max(in.Spot-in.Strike, 0)
	}
	return math.Max(in.Strike-in.Spot, 0)
}

// Compute returns price and Greeks for the given inputs. At or past expiry
// (TimeToExpY <= 0) it returns the intrinsic value with zeroed Greeks
// except Delta, which is 1/-1/0 depending on moneyness. A non-positive Vol
// is treated the same way, since the distribution degenerates.
func Compute(in Inputs) Greeks {
	if in.TimeToExpY <= 0 || in.Vol <= 0 {
		price := IntrinsicValue(in)
		delta := 0.0
		if in.Type == Call {
			if in.Spot > in.Strike {
				delta = 1
			}
		} else {
			if in.Spot < in.Strike {
				delta = -1
			}
		}
		return Greeks{Price: price, Delta: delta}
	}

	d1, d2 := d1d2(in)
	sqrtT := math.Sqrt(in.TimeToExpY)
	discount := math.Exp(-in.Rate * in.TimeToExpY)
	pdf := normPDF(d1)

	g := Greeks{
		Gamma: pdf / (in.Spot * in.Vol * sqrtT),
		Vega:  in.Spot * pdf * sqrtT,
	}

	if in.Type == Call {
		nd1 := normCDF(d1)
		nd2 := normCDF(d2)
		g.Price = in.Spot*nd1 - in.Strike*discount*nd2
		g.Delta = nd1
		g.Theta = -(in.Spot*pdf*in.Vol)/(2*sqrtT) - in.Rate*in.Strike*discount*nd2
		g.Rho = in.Strike * in.TimeToExpY * discount * nd2
	} else {
		nMd1 := normCDF(-d1)
		nMd2 := normCDF(-d2)
		g.Price = in.Strike*discount*nMd2 - in.Spot*nMd1
		g.Delta = -nMd1
		g.Theta = -(in.Spot*pdf*in.Vol)/(2*sqrtT) + in.Rate*in.Strike*discount*nMd2
		g.Rho = -in.Strike * in.TimeToExpY * discount * nMd2
	}
	return g
}

// PutCallParity returns call - put - (S - K*e^{-rT}), which should be ~0
// for consistent inputs (within numerical tolerance).
func PutCallParity(callPrice, putPrice, spot, strike, rate, t float64) float64 {
	return callPrice - putPrice - (spot - strike*math.Exp(-rate*t))
}

package greeks

import (
	"errors"
	"math"
)

// ErrNoConvergence is returned when neither the Newton nor the bisection
// pass can bracket a volatility that reprices within tolerance.
var ErrNoConvergence = errors.New("greeks: implied volatility did not converge")

const (
	ivTolerance  = 1e-6
	ivMaxNewton  = 50
	ivMaxBisect  = 100
	ivVolFloor   = 1e-4
	ivVolCeiling = 5.0
)

// brennerSubrahmanyamSeed returns the closed-form at-the-money approximation
// used to bootstrap Newton's method, per Brenner & Subrahmanyam (1988):
// sigma ~= sqrt(2*pi/T) * price / S. It degrades gracefully away from
// at-the-money since it is only a starting guess, not the answer.
func brennerSubrahmanyamSeed(price, spot, t float64) float64 {
	if spot <= 0 || t <= 0 {
		return 0.2
	}
	seed := math.Sqrt(2*math.Pi/t) * price / spot
	if seed < ivVolFloor || math.IsNaN(seed) || math.IsInf(seed, 0) {
		return 0.2
	}
	if seed > ivVolCeiling {
		return ivVolCeiling
	}
	return seed
}

// ImpliedVol solves for the volatility that reprices marketPrice under the
// given inputs (Vol in in is ignored). It starts from a
// Brenner-Subrahmanyam seed and runs Newton-Raphson using Vega as the
// derivative; if Newton fails to converge or leaves the admissible vol
// range, it falls back to bisection over [ivVolFloor, ivVolCeiling].
func ImpliedVol(in Inputs, marketPrice float64) (float64, error) {
	if in.TimeToExpY <= 0 || in.Spot <= 0 || in.Strike <= 0 {
		return 0, ErrNoConvergence
	}
	intrinsic := IntrinsicValue(in)
	if marketPrice < intrinsic-ivTolerance {
		return 0, ErrNoConvergence
	}

	sigma := brennerSubrahmanyamSeed(marketPrice, in.Spot, in.TimeToExpY)
	trial := in
	for i := 0; i < ivMaxNewton; i++ {
		trial.Vol = sigma
		g := Compute(trial)
		diff := g.Price - marketPrice
		if math.Abs(diff) < ivTolerance {
			return sigma, nil
		}
		if g.Vega < 1e-8 {
			break
		}
		next := sigma - diff/g.Vega
		if next <= ivVolFloor || next >= ivVolCeiling || math.IsNaN(next) {
			break
		}
		sigma = next
	}

	return bisectVol(in, marketPrice)
}

func bisectVol(in Inputs, marketPrice float64) (float64, error) {
	lo, hi := ivVolFloor, ivVolCeiling
	trial := in
	trial.Vol = lo
	fLo := Compute(trial).Price - marketPrice
	trial.Vol = hi
	fHi := Compute(trial).Price - marketPrice
	if fLo*fHi > 0 {
		return 0, ErrNoConvergence
	}

	for i := 0; i < ivMaxBisect; i++ {
		mid := (lo + hi) / 2
		trial.Vol = mid
		fMid := Compute(trial).Price - marketPrice
		if math.Abs(fMid) < ivTolerance {
			return mid, nil
		}
		if fLo*fMid <= 0 {
			hi = mid
			fHi = fMid
		} else {
			lo = mid
			fLo = fMid
		}
		_ = fHi
	}
	return 0, ErrNoConvergence
}

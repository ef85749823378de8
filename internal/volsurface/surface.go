// Package volsurface builds an implied-volatility surface from option
// quotes and answers bilinear-interpolated queries against it.
package volsurface

import (
	"fmt"
	"sort"
	"time"
)

// Quote is one market observation: implied vol at a given strike and time
// to expiry (in years).
type Quote struct {
	Strike        float64
	TimeToExpiry  float64
	ImpliedVol    float64
}

// Snapshot is an immutable grid: vol at Matrix[expiryIndex][strikeIndex].
type Snapshot struct {
	Strikes   []float64
	Expiries  []float64
	Matrix    [][]float64
	BuiltAt   time.Time
}

// QueryResult is the outcome of a point lookup on a Snapshot.
type QueryResult struct {
	ImpliedVol float64
	Success    bool
	Error      string
}

// Smile is the vol curve across strikes at one fixed expiry.
type Smile struct {
	TimeToExpiry float64
	Strikes      []float64
	Vols         []float64
}

// TermStructure is the vol curve across expiries at one fixed strike.
type TermStructure struct {
	Strike   float64
	Expiries []float64
	Vols     []float64
}

// Builder constructs and queries volatility surfaces.
type Builder struct{}

// NewBuilder returns a stateless surface builder.
func NewBuilder() *Builder { return &Builder{} }

// BuildSurface filters out non-positive vols and assembles a strike x
// expiry grid. It returns an error if fewer than two distinct strikes or
// two distinct expiries survive filtering — bilinear interpolation needs
// at least a 2x2 grid.
func (b *Builder) BuildSurface(quotes []Quote) (Snapshot, error) {
	strikeSet := map[float64]bool{}
	expirySet := map[float64]bool{}
	lookup := map[[2]float64]float64{}

	for _, q := range quotes {
		if q.ImpliedVol <= 0 {
			continue
		}
		strikeSet[q.Strike] = true
		expirySet[q.TimeToExpiry] = true
		lookup[[2]float64{q.TimeToExpiry, q.Strike}] = q.ImpliedVol
	}

	strikes := sortedKeys(strikeSet)
	expiries := sortedKeys(expirySet)

	if len(strikes) < 2 || len(expiries) < 2 {
		return Snapshot{}, fmt.Errorf("volsurface: insufficient quotes to build surface: %d strikes, %d expiries (need >=2 each)", len(strikes), len(expiries))
	}

	matrix := make([][]float64, len(expiries))
	for ei, exp := range expiries {
		row := make([]float64, len(strikes))
		for si, stk := range strikes {
			row[si] = lookup[[2]float64{exp, stk}]
		}
		matrix[ei] = row
	}

	return Snapshot{Strikes: strikes, Expiries: expiries, Matrix: matrix, BuiltAt: time.Now()}, nil
}

func sortedKeys(set map[float64]bool) []float64 {
	out := make([]float64, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Float64s(out)
	return out
}

const rangeEps = 1e-9

// QueryVol returns the bilinear-interpolated implied vol at (strike, t).
// Queries outside the built grid's range fail rather than extrapolate;
// queries within floating-point epsilon of the boundary are clamped.
func (b *Builder) QueryVol(snap Snapshot, strike, timeToExpiry float64) QueryResult {
	if len(snap.Strikes) == 0 || len(snap.Expiries) == 0 {
		return QueryResult{Success: false, Error: "volsurface: empty surface"}
	}

	strikes := snap.Strikes
	expiries := snap.Expiries

	if strike < strikes[0]-rangeEps || strike > strikes[len(strikes)-1]+rangeEps {
		return QueryResult{Success: false, Error: fmt.Sprintf("volsurface: strike %v out of range [%v, %v]", strike, strikes[0], strikes[len(strikes)-1])}
	}
	if timeToExpiry < expiries[0]-rangeEps || timeToExpiry > expiries[len(expiries)-1]+rangeEps {
		return QueryResult{Success: false, Error: fmt.Sprintf("volsurface: time-to-expiry %v out of range [%v, %v]", timeToExpiry, expiries[0], expiries[len(expiries)-1])}
	}

	strike = clamp(strike, strikes[0], strikes[len(strikes)-1])
	timeToExpiry = clamp(timeToExpiry, expiries[0], expiries[len(expiries)-1])

	si := upperBound(strikes, strike) - 1
	if si < 0 {
		si = 0
	}
	if si > len(strikes)-2 {
		si = len(strikes) - 2
	}
	ei := upperBound(expiries, timeToExpiry) - 1
	if ei < 0 {
		ei = 0
	}
	if ei > len(expiries)-2 {
		ei = len(expiries) - 2
	}

	s0, s1 := strikes[si], strikes[si+1]
	e0, e1 := expiries[ei], expiries[ei+1]

	var ts, te float64
	if s1 != s0 {
		ts = (strike - s0) / (s1 - s0)
	}
	if e1 != e0 {
		te = (timeToExpiry - e0) / (e1 - e0)
	}

	v00 := snap.Matrix[ei][si]
	v01 := snap.Matrix[ei][si+1]
	v10 := snap.Matrix[ei+1][si]
	v11 := snap.Matrix[ei+1][si+1]

	vol := v00*(1-ts)*(1-te) + v01*ts*(1-te) + v10*(1-ts)*te + v11*ts*te
	return QueryResult{ImpliedVol: vol, Success: true}
}

// upperBound returns the index of the first element strictly greater than
// x (bisect_right semantics).
func upperBound(sorted []float64, x float64) int {
	return sort.Search(len(sorted), func(i int) bool { return sorted[i] > x })
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ExtractSmile returns the vol curve across all built strikes at a fixed
// expiry, via QueryVol (so interpolated, not raw grid values).
func (b *Builder) ExtractSmile(snap Snapshot, timeToExpiry float64) Smile {
	vols := make([]float64, len(snap.Strikes))
	for i, strike := range snap.Strikes {
		if r := b.QueryVol(snap, strike, timeToExpiry); r.Success {
			vols[i] = r.ImpliedVol
		}
	}
	return Smile{TimeToExpiry: timeToExpiry, Strikes: append([]float64(nil), snap.Strikes...), Vols: vols}
}

// ExtractTermStructure returns the vol curve across all built expiries at
// a fixed strike, via QueryVol.
func (b *Builder) ExtractTermStructure(snap Snapshot, strike float64) TermStructure {
	vols := make([]float64, len(snap.Expiries))
	for i, exp := range snap.Expiries {
		if r := b.QueryVol(snap, strike, exp); r.Success {
			vols[i] = r.ImpliedVol
		}
	}
	return TermStructure{Strike: strike, Expiries: append([]float64(nil), snap.Expiries...), Vols: vols}
}

package options

import (
	"math"
	"sort"

	"github.com/quantleaf/optrader/internal/domain"
)

// ProviderSkew is a provider's own pre-computed skew input: a slope, mapped
// onto a [0,100] scale where 50 is neutral ("slope·500 bias"). Only the
// slope is carried; a provider's separate skewing field is not read.
type ProviderSkew struct {
	Slope float64
}

// SkewFromProvider maps a provider-reported slope into [0,100].
func SkewFromProvider(p ProviderSkew) float64 {
	return clamp(50+p.Slope*500, 0, 100)
}

// SkewFromChain falls back to computing skew directly from near-the-money
// call vs. put implied volatilities when the provider doesn't supply one.
// Positive skew (>50) means puts carry a richer IV than calls at comparable
// distance from the underlying - the classic equity skew.
func SkewFromChain(chain domain.Chain, underlying float64) float64 {
	callIV, callOK := nearestIV(chain.Contracts(domain.Call), underlying)
	putIV, putOK := nearestIV(chain.Contracts(domain.Put), underlying)
	if !callOK || !putOK || callIV == 0 {
		return 50
	}

	ratio := (putIV - callIV) / callIV
	return clamp(50+ratio*100, 0, 100)
}

// nearestIV finds the contract closest to at-the-money and returns its IV
// (as a fraction, e.g. 0.30, converting from the contract's percent form).
func nearestIV(contracts []domain.Contract, underlying float64) (float64, bool) {
	if len(contracts) == 0 {
		return 0, false
	}
	sort.Slice(contracts, func(i, j int) bool {
		return math.Abs(contracts[i].StrikePrice-underlying) < math.Abs(contracts[j].StrikePrice-underlying)
	})
	nearest := contracts[0]
	iv := nearest.VolatilityPercent
	if iv > 10 {
		// Provider's field is already a percent (see Open Questions heuristic).
		iv = iv / 100
	}
	return iv, true
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

// NormalizeIV applies the "IV > 10 is already-percent" heuristic, returning
// a fractional IV (e.g. 0.30) regardless of which unit the provider used.
func NormalizeIV(raw float64) float64 {
	if raw > 10 {
		return raw / 100
	}
	return raw
}

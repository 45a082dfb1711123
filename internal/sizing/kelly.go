// Package sizing implements Kelly-criterion position sizing: the fraction
// of account equity to risk on an opportunity, converted to a whole number
// of contracts bounded by per-trade and portfolio exposure caps.
package sizing

import (
	"fmt"
	"math"

	"github.com/quantleaf/optrader/internal/domain"
)

// strategyParams holds the fields that vary per strategy class:
// the fraction of the raw Kelly result actually risked, the per-trade
// percent-of-account cap, and the absolute contract-count cap.
type strategyParams struct {
	KellyMultiplier  float64
	PerTradePctCap   float64 // e.g. 0.05 for 5%
	AbsoluteCap      int
}

var strategyTable = map[domain.Strategy]strategyParams{
	domain.StrategyLEAP:    {KellyMultiplier: 0.5, PerTradePctCap: 0.05, AbsoluteCap: 10},
	domain.StrategyWeekly:  {KellyMultiplier: 1.0 / 3.0, PerTradePctCap: 0.03, AbsoluteCap: 8},
	domain.StrategySameDay: {KellyMultiplier: 0.25, PerTradePctCap: 0.02, AbsoluteCap: 5},
}

// Input bundles everything Size needs for one opportunity.
type Input struct {
	AccountSize       float64
	Strategy          domain.Strategy
	Regime            domain.VIXRegime
	Premium           float64 // per-share premium; contract cost = premium * 100
	Delta             float64 // used when HasDelta is true; otherwise OpportunityScore drives the estimate
	HasDelta          bool
	OpportunityScore  float64
	ProfitPotential   float64 // avg_win% of Kelly's b ratio
	AvgLossPct        float64 // avg_loss% of Kelly's b ratio; <= 0 withholds sizing (zero contracts)
	MaxExposurePct    float64 // portfolio-level cap, e.g. 0.50
	CurrentExposurePct float64
}

// Result is the full sizing breakdown callers need for a position.
type Result struct {
	Contracts         int
	TotalCost         float64
	PercentOfAccount  float64
	KellyRaw          float64
	KellyAdjusted     float64
	WinProbability    float64
	Method            string
	AdjustmentReasons []string
}

// Size computes the Kelly-based contract count for one opportunity,
// matching this project's sizing conventions.
func Size(in Input) Result {
	var reasons []string

	if in.AvgLossPct <= 0 {
		return Result{Method: "kelly", AdjustmentReasons: []string{"avg_loss_pct <= 0, sizing withheld"}}
	}

	winProb := winProbability(in)
	if winProb <= 0 {
		return Result{Method: "kelly", WinProbability: winProb, AdjustmentReasons: []string{"win_prob <= 0, sizing withheld"}}
	}

	b := in.ProfitPotential / in.AvgLossPct
	q := 1 - winProb
	kellyRaw := (winProb*b - q) / b
	kellyRawCapped := math.Min(kellyRaw, 0.25)
	if kellyRaw > 0.25 {
		reasons = append(reasons, "kelly raw fraction capped at 0.25")
	}

	params, ok := strategyTable[in.Strategy]
	if !ok {
		params = strategyTable[domain.StrategyWeekly]
	}
	kellyAdjusted := kellyRawCapped * params.KellyMultiplier
	reasons = append(reasons, fmt.Sprintf("strategy multiplier %.3f applied", params.KellyMultiplier))

	switch in.Regime {
	case domain.RegimeCrisis:
		kellyAdjusted *= 0.5
		reasons = append(reasons, "crisis regime multiplier 0.5 applied")
	case domain.RegimeElevated:
		kellyAdjusted *= 0.75
		reasons = append(reasons, "elevated regime multiplier 0.75 applied")
	}

	dollars := kellyAdjusted * in.AccountSize
	contractCost := in.Premium * 100
	if contractCost <= 0 {
		return Result{Method: "kelly", KellyRaw: kellyRaw, KellyAdjusted: kellyAdjusted, WinProbability: winProb,
			AdjustmentReasons: append(reasons, "premium <= 0, sizing withheld")}
	}

	contracts := int(math.Floor(dollars / contractCost))

	perTradeCapDollars := params.PerTradePctCap * in.AccountSize
	if perTradeCapDollars < dollars {
		capContracts := int(math.Floor(perTradeCapDollars / contractCost))
		if capContracts < contracts {
			contracts = capContracts
			reasons = append(reasons, fmt.Sprintf("per-trade %.0f%% cap applied", params.PerTradePctCap*100))
		}
	}

	if contracts > params.AbsoluteCap {
		contracts = params.AbsoluteCap
		reasons = append(reasons, fmt.Sprintf("absolute contract cap %d applied", params.AbsoluteCap))
	}

	if in.MaxExposurePct > 0 {
		remainingExposureDollars := (in.MaxExposurePct - in.CurrentExposurePct) * in.AccountSize
		if remainingExposureDollars < 0 {
			remainingExposureDollars = 0
		}
		exposureCapContracts := int(math.Floor(remainingExposureDollars / contractCost))
		if exposureCapContracts < contracts {
			contracts = exposureCapContracts
			reasons = append(reasons, "portfolio exposure cap applied")
		}
	}

	if contracts < 1 {
		contracts = 0
	}

	totalCost := float64(contracts) * contractCost
	percentOfAccount := 0.0
	if in.AccountSize > 0 {
		percentOfAccount = totalCost / in.AccountSize * 100
	}

	return Result{
		Contracts:         contracts,
		TotalCost:         totalCost,
		PercentOfAccount:  percentOfAccount,
		KellyRaw:          kellyRaw,
		KellyAdjusted:     kellyAdjusted,
		WinProbability:    winProb,
		Method:            "kelly",
		AdjustmentReasons: reasons,
	}
}

// winProbability estimates p from |delta| plus a bounded opportunity-score
// adjustment, or falls back to opportunity_score/100 when delta is absent,
// matching this project's sizing conventions.
func winProbability(in Input) float64 {
	var p float64
	if in.HasDelta {
		delta := in.Delta
		if delta < 0 {
			delta = -delta
		}
		p = delta + (in.OpportunityScore-50)/200
	} else {
		p = in.OpportunityScore / 100
	}
	return clamp(p, 0.05, 0.95)
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

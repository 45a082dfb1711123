package options

import (
	"sort"

	"github.com/quantleaf/optrader/internal/domain"
)

// ScoreBreakdown is the composite opportunity score and its component
// weights, carried verbatim onto the emitted Opportunity.
type ScoreBreakdown struct {
	Technical    float64
	Sentiment    float64
	OptionsScore float64 // liquidity + greeks profile + skew
	Fundamental  float64
	Composite    float64
}

// RankInput bundles everything the ranking step needs beyond the chain
// itself.
type RankInput struct {
	Direction          domain.Direction
	Side               domain.OptionType
	UnderlyingPrice    float64
	TechnicalScore     float64
	SentimentScore     float64
	FundamentalScore   float64
	SkewScore          float64
	Regime             domain.VIXRegime
	IVPercentile       float64
	DaysToEarnings     int
	MinExpectedProfit  float64 // floor, e.g. 0.30 for 30%, overridable per strategy
	MinDaysToExpiry    int     // 0 = no filter (long-dated variants require >=150)
}

// Candidate is one ranked contract, pre exit-plan/sizing attachment.
type Candidate struct {
	Contract Contract
	Score    ScoreBreakdown
}

// Contract is domain.Contract. AnalyzeAndRank back-fills its greeks via
// Black-Scholes only when the provider left Delta and Gamma both zero and
// the IV, days to expiry and underlying price are all positive; otherwise
// the contract is ranked with the greeks it arrived with.
type Contract = domain.Contract

// AnalyzeAndRank parses the chain for the requested direction, fills in
// missing greeks, applies the expected-profit floor and DTE filters, scores
// every remaining contract, and returns them ranked best-first.
func AnalyzeAndRank(chain domain.Chain, input RankInput) []Candidate {
	side := input.Side
	if side == "" {
		side = domain.Call
	}

	contracts := chain.Contracts(side)
	candidates := make([]Candidate, 0, len(contracts))

	for _, c := range contracts {
		filled := fillMissingGreeks(c, input.UnderlyingPrice)

		if input.MinDaysToExpiry > 0 && filled.DaysToExpiration < input.MinDaysToExpiry {
			continue
		}

		expectedProfit := estimateExpectedProfit(filled)
		floor := input.MinExpectedProfit
		if floor <= 0 {
			floor = 0.30
		}
		if expectedProfit < floor {
			continue
		}

		score := scoreContract(filled, input)
		candidates = append(candidates, Candidate{Contract: filled, Score: score})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Score.Composite != b.Score.Composite {
			return a.Score.Composite > b.Score.Composite
		}
		// Ties broken by liquidity (open interest then volume) then lower spread.
		if a.Contract.OpenInterest != b.Contract.OpenInterest {
			return a.Contract.OpenInterest > b.Contract.OpenInterest
		}
		if a.Contract.TotalVolume != b.Contract.TotalVolume {
			return a.Contract.TotalVolume > b.Contract.TotalVolume
		}
		return spread(a.Contract) < spread(b.Contract)
	})

	return candidates
}

func spread(c Contract) float64 {
	return c.Ask - c.Bid
}

// fillMissingGreeks computes greeks via Black-Scholes wherever the provider
// left them zero-valued.
func fillMissingGreeks(c Contract, underlying float64) Contract {
	if c.Greeks.Delta != 0 || c.Greeks.Gamma != 0 {
		return c
	}

	years := float64(c.DaysToExpiration) / 365.0
	sigma := NormalizeIV(c.VolatilityPercent)
	if sigma <= 0 || years <= 0 || underlying <= 0 {
		return c
	}

	var g BSGreeks
	if c.PutCall == domain.Put {
		g = PutGreeks(underlying, c.StrikePrice, years, sigma, RiskFreeRate)
	} else {
		g = CallGreeks(underlying, c.StrikePrice, years, sigma, RiskFreeRate)
	}

	c.Greeks = domain.Greeks{
		Delta: g.Delta,
		Gamma: g.Gamma,
		Theta: DailyTheta(g.Theta),
		Vega:  g.Vega,
		Rho:   g.Rho,
	}
	if c.Mark == 0 {
		c.Mark = g.Price
	}
	return c
}

// estimateExpectedProfit is a coarse proxy: the contract's |delta|, used
// purely to apply the minimum-expected-profit floor. It is not the position sizer's win-probability estimate.
func estimateExpectedProfit(c Contract) float64 {
	delta := c.Greeks.Delta
	if delta < 0 {
		delta = -delta
	}
	return delta
}

func scoreContract(c Contract, input RankInput) ScoreBreakdown {
	optionsScore := optionsIntrinsicScore(c, input.SkewScore)

	composite := input.TechnicalScore*0.35 +
		input.SentimentScore*0.20 +
		optionsScore*0.30 +
		input.FundamentalScore*0.15

	composite = directionAdjust(composite, c, input)

	return ScoreBreakdown{
		Technical:    input.TechnicalScore,
		Sentiment:    input.SentimentScore,
		OptionsScore: optionsScore,
		Fundamental:  input.FundamentalScore,
		Composite:    clamp(composite, 0, 100),
	}
}

// optionsIntrinsicScore combines liquidity, a greeks profile favoring
// moderate delta / low theta decay, and skew into [0,100].
func optionsIntrinsicScore(c Contract, skewScore float64) float64 {
	liquidity := 0.0
	if c.OpenInterest > 0 {
		liquidity += 20
	}
	if c.TotalVolume > 100 {
		liquidity += 10
	}
	if spread(c) > 0 && c.Mark > 0 {
		spreadPct := spread(c) / c.Mark
		if spreadPct < 0.05 {
			liquidity += 10
		} else if spreadPct > 0.20 {
			liquidity -= 10
		}
	}

	delta := c.Greeks.Delta
	if delta < 0 {
		delta = -delta
	}
	greeksProfile := 0.0
	if delta >= 0.30 && delta <= 0.70 {
		greeksProfile += 15
	}
	if c.Greeks.Theta < 0 && c.Greeks.Theta > -0.05 {
		greeksProfile += 10
	}

	return clamp(40+liquidity+greeksProfile+(skewScore-50)*0.2, 0, 100)
}

// directionAdjust adds 3 to the composite score for a sell-direction
// request when the IV percentile is above 50. The contract's own delta is
// not consulted, and buy-direction requests are left unchanged.
func directionAdjust(composite float64, c Contract, input RankInput) float64 {
	if input.Direction == domain.DirectionSell {
		// Selling premium benefits from elevated IV percentile.
		if input.IVPercentile > 50 {
			composite += 3
		}
	}
	return composite
}

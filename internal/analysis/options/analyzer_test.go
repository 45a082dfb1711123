package options

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantleaf/optrader/internal/domain"
)

func makeChain(contracts ...domain.Contract) domain.Chain {
	chain := domain.NewChain()
	for _, c := range contracts {
		chain.Add(c)
	}
	return chain
}

func TestCallGreeks_ATMDeltaNearHalf(t *testing.T) {
	g := CallGreeks(100, 100, 0.5, 0.30, RiskFreeRate)
	assert.InDelta(t, 0.55, g.Delta, 0.1)
	assert.Greater(t, g.Price, 0.0)
}

func TestPutGreeks_DeltaIsNegative(t *testing.T) {
	g := PutGreeks(100, 100, 0.5, 0.30, RiskFreeRate)
	assert.Less(t, g.Delta, 0.0)
}

func TestNormalizeIV_HeuristicSwitchesOnMagnitude(t *testing.T) {
	assert.InDelta(t, 0.30, NormalizeIV(30), 0.0001)
	assert.InDelta(t, 0.30, NormalizeIV(0.30), 0.0001)
}

func TestSkewFromProvider_NeutralSlopeIsFifty(t *testing.T) {
	assert.InDelta(t, 50, SkewFromProvider(ProviderSkew{Slope: 0}), 0.0001)
}

func TestSkewFromChain_NoContractsReturnsNeutral(t *testing.T) {
	chain := domain.NewChain()
	assert.Equal(t, 50.0, SkewFromChain(chain, 100))
}

func TestAnalyzeAndRank_FiltersBelowExpectedProfitFloor(t *testing.T) {
	lowDelta := domain.Contract{
		PutCall:          domain.Call,
		Symbol:           "XYZ250117C00150000",
		StrikePrice:      150,
		DaysToExpiration: 30,
		VolatilityPercent: 25,
		Bid:              1.0,
		Ask:              1.2,
		Mark:             1.1,
		OpenInterest:     500,
		TotalVolume:      200,
	}
	chain := makeChain(lowDelta)

	candidates := AnalyzeAndRank(chain, RankInput{
		Direction:         domain.DirectionBuy,
		UnderlyingPrice:   100,
		TechnicalScore:    60,
		SentimentScore:    55,
		FundamentalScore:  50,
		SkewScore:         50,
		MinExpectedProfit: 0.30,
	})

	assert.Empty(t, candidates, "deep OTM contract should fail the expected-profit floor")
}

func TestAnalyzeAndRank_RanksHigherCompositeFirst(t *testing.T) {
	near := domain.Contract{
		PutCall:           domain.Call,
		Symbol:            "XYZ250117C00100000",
		StrikePrice:       100,
		DaysToExpiration:  60,
		VolatilityPercent: 30,
		Bid:               4.8,
		Ask:               5.0,
		Mark:               4.9,
		OpenInterest:       1000,
		TotalVolume:         500,
	}
	far := domain.Contract{
		PutCall:           domain.Call,
		Symbol:            "XYZ250117C00095000",
		StrikePrice:       95,
		DaysToExpiration:  60,
		VolatilityPercent: 30,
		Bid:               8.8,
		Ask:               9.4,
		Mark:               9.1,
		OpenInterest:       50,
		TotalVolume:         10,
	}
	chain := makeChain(near, far)

	candidates := AnalyzeAndRank(chain, RankInput{
		Direction:         domain.DirectionBuy,
		UnderlyingPrice:   100,
		TechnicalScore:    70,
		SentimentScore:    60,
		FundamentalScore:  55,
		SkewScore:         50,
		MinExpectedProfit: 0.10,
	})

	require.Len(t, candidates, 2)
	assert.GreaterOrEqual(t, candidates[0].Score.Composite, candidates[1].Score.Composite)
}

func TestAnalyzeAndRank_TiesBrokenByOpenInterestThenSpread(t *testing.T) {
	a := domain.Contract{
		PutCall: domain.Call, Symbol: "A", StrikePrice: 100, DaysToExpiration: 60,
		VolatilityPercent: 30, Bid: 4.9, Ask: 5.0, Mark: 4.95,
		OpenInterest: 1000, TotalVolume: 500,
		Greeks: domain.Greeks{Delta: 0.5},
	}
	b := domain.Contract{
		PutCall: domain.Call, Symbol: "B", StrikePrice: 100, DaysToExpiration: 60,
		VolatilityPercent: 30, Bid: 4.9, Ask: 5.0, Mark: 4.95,
		OpenInterest: 2000, TotalVolume: 500,
		Greeks: domain.Greeks{Delta: 0.5},
	}
	chain := makeChain(a, b)

	candidates := AnalyzeAndRank(chain, RankInput{
		Direction:         domain.DirectionBuy,
		UnderlyingPrice:   100,
		TechnicalScore:    60,
		SentimentScore:    60,
		FundamentalScore:  60,
		SkewScore:         50,
		MinExpectedProfit: 0.10,
	})

	require.Len(t, candidates, 2)
	assert.Equal(t, "B", candidates[0].Contract.Symbol, "higher open interest should win an exact score tie")
}

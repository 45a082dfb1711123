package technical

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func makeCandles(closes []float64) []Candle {
	candles := make([]Candle, len(closes))
	for i, c := range closes {
		candles[i] = Candle{Open: c, High: c * 1.01, Low: c * 0.99, Close: c, Volume: 1000}
	}
	return candles
}

func TestCompute_ScoreClampedToBounds(t *testing.T) {
	closes := make([]float64, 250)
	for i := range closes {
		closes[i] = 100 + float64(i)*0.5
	}
	ind := Compute(makeCandles(closes))
	assert.GreaterOrEqual(t, ind.TechnicalScore, 0.0)
	assert.LessOrEqual(t, ind.TechnicalScore, 100.0)
}

func TestClassifyRSI2_Bands(t *testing.T) {
	assert.Equal(t, RSI2Oversold, classifyRSI2(5))
	assert.Equal(t, RSI2Overbought, classifyRSI2(95))
	assert.Equal(t, RSI2Neutral, classifyRSI2(50))
}

func TestMinerviniStage_Stage2WhenPriceAboveRisingMAs(t *testing.T) {
	stage := minerviniStage([]float64{110}, 100, 90)
	assert.Equal(t, Stage2, stage)
}

func TestMinerviniStage_UnknownWithoutMAs(t *testing.T) {
	stage := minerviniStage([]float64{110}, 0, 0)
	assert.Equal(t, StageUnknown, stage)
}

func TestVwapAnalysis_FlatCandlesZeroDeviation(t *testing.T) {
	candles := makeCandles([]float64{100, 100, 100, 100, 100})
	vwap, dev, support, resistance := vwapAnalysis(candles)
	assert.InDelta(t, 100, vwap, 0.5)
	assert.InDelta(t, 0, dev, 0.01)
	assert.True(t, support)
	assert.False(t, resistance)
}

func TestCompute_InsufficientHistoryDoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		Compute(makeCandles([]float64{100, 101, 99}))
	})
}

func TestCompute_InsufficientHistoryLeavesBollingerUndetermined(t *testing.T) {
	ind := Compute(makeCandles([]float64{100, 101, 99}))
	assert.Equal(t, -1.0, ind.BollingerPosition)
}

func TestCompute_BollingerPositionWithinUnitRangeWhenDetermined(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100 + float64(i%5)
	}
	ind := Compute(makeCandles(closes))
	assert.GreaterOrEqual(t, ind.BollingerPosition, 0.0)
	assert.LessOrEqual(t, ind.BollingerPosition, 1.0)
}

func TestCompute_EMA21DistancePositiveOnSteadyUptrend(t *testing.T) {
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	ind := Compute(makeCandles(closes))
	assert.Greater(t, ind.EMA21Distance, 0.0)
}

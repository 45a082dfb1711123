// Package technical computes technical indicators from an ascending OHLCV
// candle series and aggregates them into a single technical_score in [0,100].
//
// Indicator math is delegated to github.com/markcheno/go-talib wherever the
// library covers it directly (RSI, MACD, SMA), or through this project's own
// pkg/formulas wrapper for Bollinger Bands and EMA distance; VWAP and the
// Minervini stage score have no go-talib equivalent and are computed
// directly.
package technical

import (
	"math"

	"github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/stat"

	"github.com/quantleaf/optrader/pkg/formulas"
)

// Candle is one OHLCV bar.
type Candle struct {
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// RSI2Band labels the RSI-2 extreme-band classification.
type RSI2Band string

const (
	RSI2Oversold   RSI2Band = "OVERSOLD"
	RSI2Overbought RSI2Band = "OVERBOUGHT"
	RSI2Neutral    RSI2Band = "NEUTRAL"
)

// MinerviniStage is a coarse trend classification.
type MinerviniStage int

const (
	StageUnknown MinerviniStage = iota
	Stage1                      // basing
	Stage2                      // uptrend (price > 50MA > 200MA)
	Stage3                      // topping
	Stage4                      // downtrend
)

// Indicators bundles every computed signal plus the aggregate score.
type Indicators struct {
	RSI14           float64
	RSI2            float64
	RSI2Band        RSI2Band
	MACD            float64
	MACDSignal      float64
	MACDHist        float64
	SMA50           float64
	SMA200          float64
	VolumeTrendPct  float64 // recent volume vs trailing average, as a percent delta
	VWAP            float64
	VWAPDeviation   float64 // (price - VWAP) / VWAP
	VWAPSupport     bool    // price near/above VWAP, classified as support
	VWAPResistance  bool    // price more than 0.2% below VWAP, classified as resistance
	MinerviniStage  MinerviniStage
	BollingerPosition float64 // 0 = at lower band, 1 = at upper band; -1 when undetermined
	EMA21Distance   float64 // (price - EMA21) / EMA21, momentum confirmation alongside the 50/200 SMAs
	TechnicalScore  float64 // aggregate, clamped to [0,100]
}

// isNaN is a local alias for readability: go-talib pads leading values
// with NaN until it has enough history.
func isNaN(v float64) bool { return math.IsNaN(v) }

func lastValid(series []float64) (float64, bool) {
	for i := len(series) - 1; i >= 0; i-- {
		if !isNaN(series[i]) {
			return series[i], true
		}
	}
	return 0, false
}

// Compute derives Indicators from an ascending candle series. Returns
// ErrInsufficientData-free best-effort results: indicators that cannot be
// computed from too little history are left at zero, and the aggregate
// score degrades gracefully rather than failing outright (the scanner
// orchestrator is responsible for aborting on NoHistory before calling in).
func Compute(candles []Candle) Indicators {
	n := len(candles)
	closes := make([]float64, n)
	volumes := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	for i, c := range candles {
		closes[i] = c.Close
		volumes[i] = c.Volume
		highs[i] = c.High
		lows[i] = c.Low
	}

	var ind Indicators

	if n >= 14 {
		rsi := talib.Rsi(closes, 14)
		if v, ok := lastValid(rsi); ok {
			ind.RSI14 = v
		}
	}
	if n >= 2 {
		rsi2 := talib.Rsi(closes, 2)
		if v, ok := lastValid(rsi2); ok {
			ind.RSI2 = v
			ind.RSI2Band = classifyRSI2(v)
		}
	}

	if n >= 35 {
		macd, signal, hist := talib.Macd(closes, 12, 26, 9)
		if v, ok := lastValid(macd); ok {
			ind.MACD = v
		}
		if v, ok := lastValid(signal); ok {
			ind.MACDSignal = v
		}
		if v, ok := lastValid(hist); ok {
			ind.MACDHist = v
		}
	}

	if n >= 50 {
		sma50 := talib.Sma(closes, 50)
		if v, ok := lastValid(sma50); ok {
			ind.SMA50 = v
		}
	}
	if n >= 200 {
		sma200 := talib.Sma(closes, 200)
		if v, ok := lastValid(sma200); ok {
			ind.SMA200 = v
		}
	}

	ind.VolumeTrendPct = volumeTrend(volumes)
	ind.VWAP, ind.VWAPDeviation, ind.VWAPSupport, ind.VWAPResistance = vwapAnalysis(candles)
	ind.MinerviniStage = minerviniStage(closes, ind.SMA50, ind.SMA200)

	ind.BollingerPosition = -1
	if bp := formulas.CalculateBollingerPosition(closes, 20, 2.0); bp != nil {
		ind.BollingerPosition = bp.Position
	}

	if dist := formulas.CalculateDistanceFromEMA(closes, 21); dist != nil {
		ind.EMA21Distance = *dist
	}

	ind.TechnicalScore = aggregateScore(ind)
	return ind
}

func classifyRSI2(v float64) RSI2Band {
	switch {
	case v <= 10:
		return RSI2Oversold
	case v >= 90:
		return RSI2Overbought
	default:
		return RSI2Neutral
	}
}

// volumeTrend compares the most recent bar's volume against the trailing
// 20-bar mean, returned as a percent delta (+50 = 50% above average).
func volumeTrend(volumes []float64) float64 {
	n := len(volumes)
	if n < 2 {
		return 0
	}
	lookback := 20
	if n-1 < lookback {
		lookback = n - 1
	}
	trailing := volumes[n-1-lookback : n-1]
	if len(trailing) == 0 {
		return 0
	}
	avg := stat.Mean(trailing, nil)
	if avg == 0 {
		return 0
	}
	return (volumes[n-1] - avg) / avg * 100
}

// vwapAnalysis computes a short-horizon (20-bar) VWAP and classifies the
// current price's deviation from it as support (price holding above) or
// resistance (price capped below).
func vwapAnalysis(candles []Candle) (vwap, deviation float64, support, resistance bool) {
	n := len(candles)
	if n == 0 {
		return 0, 0, false, false
	}
	lookback := 20
	if n < lookback {
		lookback = n
	}
	window := candles[n-lookback:]

	var pv, vol float64
	for _, c := range window {
		typicalPrice := (c.High + c.Low + c.Close) / 3
		pv += typicalPrice * c.Volume
		vol += c.Volume
	}
	if vol == 0 {
		return 0, 0, false, false
	}
	vwap = pv / vol
	price := candles[n-1].Close
	if vwap == 0 {
		return vwap, 0, false, false
	}
	deviation = (price - vwap) / vwap

	const institutionalBand = 0.002 // within 0.2% is treated as an institutional level
	support = deviation >= -institutionalBand
	resistance = deviation <= institutionalBand && !support
	return vwap, deviation, support, resistance
}

// minerviniStage classifies trend stage from price vs. 50/200-bar SMAs.
// Stage 2 requires price above both MAs with the 50 above the 200 (uptrend);
// Stage 4 is the mirror (downtrend); Stage 3 is a topping pattern (price
// below the 50MA while the 50MA sits above the 200MA); everything else is
// Stage 1 (basing) or Unknown when MAs are unavailable. Only MA levels are
// compared; MA slopes are not checked.
func minerviniStage(closes []float64, sma50, sma200 float64) MinerviniStage {
	if sma50 == 0 || sma200 == 0 || len(closes) == 0 {
		return StageUnknown
	}
	price := closes[len(closes)-1]

	switch {
	case price > sma50 && sma50 > sma200:
		return Stage2
	case price < sma50 && sma50 > sma200:
		return Stage3
	case price < sma50 && sma50 < sma200:
		return Stage4
	default:
		return Stage1
	}
}

// aggregateScore combines the computed indicators into a single [0,100]
// composite, starting from neutral (50) and applying bounded adjustments.
func aggregateScore(ind Indicators) float64 {
	score := 50.0

	if ind.RSI14 > 0 {
		// RSI above 50 is bullish momentum, below is bearish; scale gently.
		score += (ind.RSI14 - 50) * 0.3
	}
	if ind.MACDHist > 0 {
		score += 5
	} else if ind.MACDHist < 0 {
		score -= 5
	}
	if ind.SMA50 > 0 && ind.SMA200 > 0 {
		if ind.SMA50 > ind.SMA200 {
			score += 8
		} else {
			score -= 8
		}
	}
	if ind.VolumeTrendPct > 20 {
		score += 4
	}
	switch ind.MinerviniStage {
	case Stage2:
		score += 8
	case Stage3, Stage4:
		score -= 10
	}
	if ind.BollingerPosition >= 0 {
		// Pulled toward either band is treated as an overbought/oversold
		// mean-reversion signal, same direction as RSI-2's extreme bands.
		score += (0.5 - ind.BollingerPosition) * 10
	}
	if ind.EMA21Distance != 0 {
		score += clamp(ind.EMA21Distance*100, -5, 5)
	}

	return clamp(score, 0, 100)
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

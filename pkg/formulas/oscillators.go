package formulas

import (
	"math"

	"github.com/markcheno/go-talib"
)

// CalculateEMA returns the latest Exponential Moving Average of closes,
// falling back to a plain mean when there isn't enough history for a
// proper EMA window, or when go-talib's own series ends in NaN.
//
//	EMA_today = (Price_today * multiplier) + (EMA_yesterday * (1 - multiplier))
//	multiplier = 2 / (period + 1)
func CalculateEMA(closes []float64, length int) *float64 {
	if len(closes) == 0 {
		return nil
	}
	if len(closes) < length {
		sma := Mean(closes)
		return &sma
	}

	ema := talib.Ema(closes, length)
	if len(ema) > 0 && !math.IsNaN(ema[len(ema)-1]) {
		result := ema[len(ema)-1]
		return &result
	}

	sma := Mean(closes[len(closes)-length:])
	return &sma
}

// CalculateSMA returns the latest Simple Moving Average over length
// closes, or nil when there isn't enough history.
func CalculateSMA(closes []float64, length int) *float64 {
	if len(closes) < length {
		return nil
	}
	sma := talib.Sma(closes, length)
	if len(sma) > 0 && !math.IsNaN(sma[len(sma)-1]) {
		result := sma[len(sma)-1]
		return &result
	}
	return nil
}

// CalculateDistanceFromEMA returns (price - EMA) / EMA: positive when
// price trades above its EMA, negative below.
func CalculateDistanceFromEMA(closes []float64, length int) *float64 {
	if len(closes) == 0 {
		return nil
	}
	ema := CalculateEMA(closes, length)
	if ema == nil || *ema == 0 {
		return nil
	}
	currentPrice := closes[len(closes)-1]
	distance := (currentPrice - *ema) / *ema
	return &distance
}

// BollingerBands is one snapshot of the 20-period (by convention) moving
// average band: Middle is the SMA, Upper/Lower sit stdDevMultiplier
// standard deviations away.
type BollingerBands struct {
	Upper  float64 `json:"upper"`
	Middle float64 `json:"middle"`
	Lower  float64 `json:"lower"`
}

// BollingerPosition locates the current price within its Bollinger Bands:
// 0.0 at the lower band, 1.0 at the upper, clamped to that range even
// when price trades outside the bands.
type BollingerPosition struct {
	Position float64        `json:"position"`
	Bands    BollingerBands `json:"bands"`
}

// CalculateBollingerBands returns the latest Bollinger Bands, or nil when
// there isn't enough history for the requested period.
func CalculateBollingerBands(closes []float64, length int, stdDevMultiplier float64) *BollingerBands {
	if len(closes) < length {
		return nil
	}
	upper, middle, lower := talib.BBands(closes, length, stdDevMultiplier, stdDevMultiplier, 0)
	if len(upper) > 0 && !math.IsNaN(upper[len(upper)-1]) {
		return &BollingerBands{
			Upper:  upper[len(upper)-1],
			Middle: middle[len(middle)-1],
			Lower:  lower[len(lower)-1],
		}
	}
	return nil
}

// CalculateBollingerPosition locates the current price within its
// Bollinger Bands. Collapsed bands (zero width) report a position of 0.5.
func CalculateBollingerPosition(closes []float64, length int, stdDevMultiplier float64) *BollingerPosition {
	if len(closes) == 0 {
		return nil
	}
	bands := CalculateBollingerBands(closes, length, stdDevMultiplier)
	if bands == nil {
		return nil
	}

	currentPrice := closes[len(closes)-1]
	bandWidth := bands.Upper - bands.Lower
	if bandWidth == 0 {
		return &BollingerPosition{Position: 0.5, Bands: *bands}
	}

	position := (currentPrice - bands.Lower) / bandWidth
	if position < 0.0 {
		position = 0.0
	}
	if position > 1.0 {
		position = 1.0
	}
	return &BollingerPosition{Position: position, Bands: *bands}
}

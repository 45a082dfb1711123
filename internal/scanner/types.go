package scanner

import (
	"time"

	"github.com/quantleaf/optrader/internal/analysis/options"
	"github.com/quantleaf/optrader/internal/analysis/technical"
	"github.com/quantleaf/optrader/internal/domain"
	"github.com/quantleaf/optrader/internal/exitplan"
	"github.com/quantleaf/optrader/internal/sizing"
)

// Opportunity is an immutable record: a ranked candidate contract plus its
// attached recommendation-layer output. Created by the scanner, never
// mutated afterward.
type Opportunity struct {
	Ticker            string
	Contract          domain.Contract
	UnderlyingAtScan  float64
	Score             options.ScoreBreakdown
	ExitPlan          exitplan.Plan
	Sizing            sizing.Result
	ScannedAt         time.Time
	Speculative       bool // ticker failed the quality gate but ran anyway, non-strict mode
}

// SectorMomentum buckets the sector-momentum scoring modifier.
type SectorMomentum string

const (
	SectorMomentumStrong   SectorMomentum = "STRONG"
	SectorMomentumNeutral  SectorMomentum = "NEUTRAL"
	SectorMomentumWeak     SectorMomentum = "WEAK"
)

// PutCallSignal buckets the put/call-ratio contrarian signal.
type PutCallSignal string

const (
	PutCallBullish PutCallSignal = "BULLISH"
	PutCallBearish PutCallSignal = "BEARISH"
	PutCallNeutral PutCallSignal = "NEUTRAL"
)

// TradingContext is the scan pipeline's context-fetch bundle.
type TradingContext struct {
	IVPercentile        float64
	DaysToEarnings      int
	ImpliedEarningsMove float64
	NextDividendDate    time.Time
	Regime              domain.VIXRegime
	PutCallSignal       PutCallSignal
	SectorMomentum      SectorMomentum
}

// Result is the structured scan payload: ranked
// opportunities plus the trading-system context used to derive them.
type Result struct {
	Ticker          string
	Strategy        domain.Strategy
	Direction       domain.Direction
	Opportunities   []Opportunity
	Context         TradingContext
	RawTechnical    float64
	AdjustedTechnical float64
	RawSentiment    float64
	AdjustedSentiment float64
	FundamentalScore float64
	Indicators      technical.Indicators
	PriceUsed       float64
	PriceIsStale    bool // T-1 caveat flag
	Speculative     bool // ticker failed the quality gate but ran anyway, non-strict mode
}

// Package scanner implements the per-ticker scan pipeline: a sequence of
// gates, data fetches and score adjustments that turns (ticker, strategy,
// direction) into a ranked, sized, exit-planned set of option opportunities.
package scanner

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantleaf/optrader/internal/analysis/options"
	"github.com/quantleaf/optrader/internal/analysis/technical"
	"github.com/quantleaf/optrader/internal/domain"
	"github.com/quantleaf/optrader/internal/errs"
	"github.com/quantleaf/optrader/internal/exitplan"
	"github.com/quantleaf/optrader/internal/providers/result"
	"github.com/quantleaf/optrader/internal/sizing"
	"github.com/quantleaf/optrader/internal/universe"
)

// QualityThresholds configures the fundamentals quality gate.
type QualityThresholds struct {
	MinROE         float64 // e.g. 0.15
	MinGrossMargin float64 // e.g. 0.40
	StrictMode     bool
}

// Config bundles the orchestrator's tunables.
type Config struct {
	Quality               QualityThresholds
	MinHistoryCalendarDays int // e.g. 400
	LongDatedMinDTE       int // e.g. 150, applied only to long-dated strategies
	MinExpectedProfit     float64
	AccountSize           float64
	MaxExposurePct        float64
	CurrentExposurePct    float64
}

// DefaultConfig returns this project's baseline parameter values.
func DefaultConfig() Config {
	return Config{
		Quality: QualityThresholds{
			MinROE:         0.15,
			MinGrossMargin: 0.40,
			StrictMode:     false,
		},
		MinHistoryCalendarDays: 400,
		LongDatedMinDTE:        150,
		MinExpectedProfit:      0.30,
	}
}

// Orchestrator wires every upstream dependency the scan pipeline needs.
type Orchestrator struct {
	Universe     *universe.Set
	Options      OptionsSource
	Fundamentals FundamentalsSource
	News         NewsSource
	History      HistorySource
	Context      ContextSource
	Store        ResultStore // nil disables persistence
	Config       Config
	Log          zerolog.Logger
}

// Scan executes the full pipeline for (ticker, strategy, direction),
// returning failure kinds NotCovered, QualityFailed, WrongTrend, NoHistory,
// NoPrice, or a Result whose Opportunities may legitimately be
// empty.
func (o *Orchestrator) Scan(ctx context.Context, ticker string, strategy domain.Strategy, direction domain.Direction) (*Result, error) {
	// 1. Universe gate.
	if o.Universe != nil && !o.Universe.IsCovered(ticker) {
		return nil, errs.New(errs.KindNotCovered, "ticker not in options-provider universe")
	}

	// 2. Quality gate.
	fundamentalScore := 0.0
	speculative := false
	if o.Universe == nil || !o.Universe.IsNonCorporate(ticker) {
		if o.Fundamentals != nil {
			fr := o.Fundamentals.GetFundamentals(ctx, ticker)
			if fr.IsOk() {
				data, _ := fr.Value()
				failsROE := data.ReturnOnEquity > 0 && data.ReturnOnEquity < o.Config.Quality.MinROE
				failsMargin := data.GrossMargin > 0 && data.GrossMargin < o.Config.Quality.MinGrossMargin
				if failsROE && failsMargin {
					if o.Config.Quality.StrictMode {
						return nil, errs.New(errs.KindQualityFailed, "fails ROE and gross-margin thresholds")
					}
					speculative = true
				}
				fundamentalScore = scoreFromRating(data.Rating)
			}
			// Forbidden/Unavailable fundamentals degrade gracefully: score
			// stays at 0 and the gate is skipped rather than aborting the scan.
		}
	}

	// 3. Trend gate.
	if o.History == nil {
		return nil, errs.New(errs.KindNoHistory, "no history source configured")
	}
	candles, err := o.History.GetHistory(ctx, ticker, o.Config.MinHistoryCalendarDays)
	if err != nil || len(candles) == 0 {
		return nil, errs.Wrap(errs.KindNoHistory, "failed to fetch candle history", err)
	}

	ind := technical.Compute(candles)
	sma := ind.SMA200
	if sma == 0 {
		sma = ind.SMA50
	}
	if sma == 0 {
		return nil, errs.New(errs.KindNoHistory, "insufficient history to compute a moving average")
	}

	latestPrice := candles[len(candles)-1].Close

	// 4. Price.
	price, stale, err := o.resolvePrice(ctx, ticker, latestPrice)
	if err != nil {
		return nil, err
	}

	return o.continueAfterTrendGate(ctx, ticker, strategy, direction, candles, ind, sma, price, stale, fundamentalScore, speculative)
}

// continueAfterTrendGate runs the remainder of the pipeline once a moving
// average and a resolved price are in hand: sentiment, context, score
// adjustments, chain fetch, ranking and sizing.
func (o *Orchestrator) continueAfterTrendGate(ctx context.Context, ticker string, strategy domain.Strategy, direction domain.Direction,
	candles []technical.Candle, ind technical.Indicators, sma, price float64, priceStale bool, fundamentalScore float64, speculative bool) (*Result, error) {

	side := sideFromDirection(direction)
	if side == domain.Call && price <= sma {
		return nil, errs.New(errs.KindWrongTrend, "price not above moving average for a call request")
	}
	if side == domain.Put && price >= sma {
		return nil, errs.New(errs.KindWrongTrend, "price not below moving average for a put request")
	}

	// 6. Indicators and sentiment (indicators already computed above).
	sentimentScore := 50.0
	if o.News != nil {
		sr := o.News.GetSentiment(ctx, ticker)
		if sr.IsOk() {
			s, _ := sr.Value()
			sentimentScore = s.Score
		}
	}

	// 7. Context fetch.
	var tctx TradingContext
	if o.Context != nil {
		c, err := o.Context.GetContext(ctx, ticker)
		if err == nil {
			tctx = c
		}
	}
	if tctx.Regime == "" {
		tctx.Regime = domain.RegimeNormal
	}

	// 8. Score adjustments.
	adjTechnical := ind.TechnicalScore
	adjSentiment := sentimentScore

	switch tctx.Regime {
	case domain.RegimeCrisis:
		adjTechnical -= 10
	case domain.RegimeElevated:
		adjTechnical -= 5
	}

	switch tctx.PutCallSignal {
	case PutCallBullish:
		adjSentiment += 6
	case PutCallBearish:
		adjSentiment -= 6
	}

	switch tctx.SectorMomentum {
	case SectorMomentumStrong:
		adjTechnical += 6
	case SectorMomentumWeak:
		adjTechnical -= 6
	}

	adjTechnical += rsi2Adjustment(ind, side)

	if ind.VWAPSupport && side == domain.Call {
		adjTechnical += 5
	}
	if ind.VWAPResistance && side == domain.Put {
		adjTechnical += 5
	}

	switch ind.MinerviniStage {
	case technical.Stage2:
		adjTechnical += 8
	case technical.Stage3, technical.Stage4:
		adjTechnical -= 10
	}

	adjTechnical = clamp(adjTechnical, 0, 100)
	adjSentiment = clamp(adjSentiment, 0, 100)

	// 9. Chain.
	var chain domain.Chain
	if o.Options != nil {
		cr := o.Options.GetChain(ctx, ticker)
		switch cr.Status() {
		case result.StatusOk:
			chain, _ = cr.Value()
		case result.StatusForbidden, result.StatusUnavailable:
			chain = domain.NewChain()
		default:
			return nil, errs.Wrap(errs.KindNoPrice, "option chain fetch failed", cr.Err())
		}
	}

	minDTE := 0
	if strategy == domain.StrategyLEAP {
		minDTE = o.Config.LongDatedMinDTE
	}

	skewScore := 50.0
	if o.Options != nil {
		sk := o.Options.GetSkew(ctx, ticker)
		if sk.IsOk() {
			fields, _ := sk.Value()
			skewScore = options.SkewFromProvider(options.ProviderSkew{Slope: fields.Slope})
		} else {
			skewScore = options.SkewFromChain(chain, price)
		}
	}

	// 10. Rank and annotate.
	candidates := options.AnalyzeAndRank(chain, options.RankInput{
		Direction:         direction,
		Side:              side,
		UnderlyingPrice:   price,
		TechnicalScore:    adjTechnical,
		SentimentScore:    adjSentiment,
		FundamentalScore:  fundamentalScore,
		SkewScore:         skewScore,
		Regime:            tctx.Regime,
		IVPercentile:      tctx.IVPercentile,
		DaysToEarnings:    tctx.DaysToEarnings,
		MinExpectedProfit: o.Config.MinExpectedProfit,
		MinDaysToExpiry:   minDTE,
	})

	opportunities := make([]Opportunity, 0, len(candidates))
	now := time.Now()
	for _, cand := range candidates {
		plan := exitplan.Build(strategy, tctx.Regime, tctx.IVPercentile, cand.Contract.Mark)
		sz := sizing.Size(sizing.Input{
			AccountSize:      o.Config.AccountSize,
			Strategy:         strategy,
			Regime:           tctx.Regime,
			Premium:          cand.Contract.Mark,
			Delta:            cand.Contract.Greeks.Delta,
			HasDelta:         true,
			OpportunityScore: cand.Score.Composite,
			ProfitPotential:  50,
			AvgLossPct:       30,
			MaxExposurePct:   o.Config.MaxExposurePct,
			CurrentExposurePct: o.Config.CurrentExposurePct,
		})
		opportunities = append(opportunities, Opportunity{
			Ticker:           ticker,
			Contract:         cand.Contract,
			UnderlyingAtScan: price,
			Score:            cand.Score,
			ExitPlan:         plan,
			Sizing:           sz,
			ScannedAt:        now,
			Speculative:      speculative,
		})
	}

	res := &Result{
		Ticker:            ticker,
		Strategy:          strategy,
		Direction:         direction,
		Opportunities:     opportunities,
		Context:           tctx,
		RawTechnical:      ind.TechnicalScore,
		AdjustedTechnical: adjTechnical,
		RawSentiment:      50,
		AdjustedSentiment: adjSentiment,
		FundamentalScore:  fundamentalScore,
		Indicators:        ind,
		PriceUsed:         price,
		PriceIsStale:      priceStale,
		Speculative:       speculative,
	}

	// 11. Persist.
	if o.Store != nil {
		if err := o.Store.SaveScanResult(ctx, *res); err != nil {
			o.Log.Warn().Err(err).Str("ticker", ticker).Msg("failed to persist scan result")
		}
	}

	return res, nil
}

func (o *Orchestrator) resolvePrice(ctx context.Context, ticker string, latestClose float64) (float64, bool, error) {
	if o.Options != nil {
		qr := o.Options.GetQuote(ctx, ticker)
		if qr.IsOk() {
			q, _ := qr.Value()
			if q.Price > 0 {
				return q.Price, false, nil
			}
		}
	}
	if latestClose > 0 {
		return latestClose, true, nil
	}
	return 0, false, errs.New(errs.KindNoPrice, "both live quote and historical close unavailable")
}

func sideFromDirection(direction domain.Direction) domain.OptionType {
	if direction == domain.DirectionSell {
		return domain.Put
	}
	return domain.Call
}

// rsi2Adjustment applies the direction-aware RSI-2 extreme-band modifier
// oversold favors calls, overbought favors puts;
// contrarian warnings penalize the opposite side.
func rsi2Adjustment(ind technical.Indicators, side domain.OptionType) float64 {
	switch ind.RSI2Band {
	case technical.RSI2Oversold:
		if side == domain.Call {
			return 12
		}
		return -8
	case technical.RSI2Overbought:
		if side == domain.Put {
			return 12
		}
		return -8
	default:
		return 0
	}
}

func scoreFromRating(rating int) float64 {
	switch rating {
	case 1:
		return 15
	case 2:
		return 10
	default:
		return 0
	}
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

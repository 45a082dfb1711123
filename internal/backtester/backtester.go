// Package backtester replays a fixed exit plan against a historical
// underlying candle series, pricing the synthetic option position with the
// same Black-Scholes engine the live scanner uses. It is explicitly
// scoped as a simplified synthetic-P&L model: no slippage, no partial
// fills, no real order book. It never touches tradestore or the broker
// gateway — it is pure computation over historical candles.
package backtester

import (
	"fmt"

	"github.com/quantleaf/optrader/internal/analysis/options"
	"github.com/quantleaf/optrader/internal/analysis/technical"
	"github.com/quantleaf/optrader/internal/analytics"
	"github.com/quantleaf/optrader/internal/domain"
	"github.com/quantleaf/optrader/internal/exitplan"
)

// Bar pairs one OHLCV candle with the calendar day it covers, since
// technical.Candle itself carries no date.
type Bar struct {
	Date   string
	Candle technical.Candle
}

// Config describes one synthetic position to simulate.
type Config struct {
	Strategy         domain.Strategy
	Side             domain.OptionType
	Strike           float64
	ImpliedVol       float64 // decimal, e.g. 0.30
	Regime           domain.VIXRegime
	IVPercentile     float64
	DaysToExpiryAtEntry int
	EntryIndex       int // index into Bars marking trade open
}

// SyntheticTrade is one simulated closed position.
type SyntheticTrade struct {
	EntryDate  string
	ExitDate   string
	EntryPrice float64
	ExitPrice  float64
	PnL        float64
	ExitReason exitplan.DecisionKind
}

// Run replays cfg against bars day-by-day from EntryIndex, pricing the
// option at each day's close via Black-Scholes, and evaluating the exit
// plan's should_exit rule until it fires or the bars run out.
func Run(bars []Bar, cfg Config) (SyntheticTrade, error) {
	if cfg.EntryIndex < 0 || cfg.EntryIndex >= len(bars) {
		return SyntheticTrade{}, fmt.Errorf("entry index %d out of range for %d bars", cfg.EntryIndex, len(bars))
	}

	plan := exitplan.Build(cfg.Strategy, cfg.Regime, cfg.IVPercentile, 0)

	entryBar := bars[cfg.EntryIndex]
	entryPrice := priceAt(entryBar.Candle.Close, cfg.Strike, cfg.DaysToExpiryAtEntry, cfg.ImpliedVol, cfg.Side)
	if entryPrice <= 0 {
		return SyntheticTrade{}, fmt.Errorf("entry premium computed as non-positive (%.4f); check strike/IV inputs", entryPrice)
	}

	trade := SyntheticTrade{EntryDate: entryBar.Date, EntryPrice: entryPrice, ExitReason: exitplan.Hold}

	for i := cfg.EntryIndex + 1; i < len(bars); i++ {
		dte := cfg.DaysToExpiryAtEntry - (i - cfg.EntryIndex)
		mark := priceAt(bars[i].Candle.Close, cfg.Strike, dte, cfg.ImpliedVol, cfg.Side)
		pnlPct := (mark/entryPrice - 1) * 100

		decision := exitplan.ShouldExit(pnlPct, dte, -1, plan)
		if decision.Kind != exitplan.Hold || dte <= 0 {
			trade.ExitDate = bars[i].Date
			trade.ExitPrice = mark
			trade.ExitReason = decision.Kind
			trade.PnL = mark - entryPrice
			return trade, nil
		}
	}

	last := bars[len(bars)-1]
	finalDTE := cfg.DaysToExpiryAtEntry - (len(bars) - 1 - cfg.EntryIndex)
	exitPrice := priceAt(last.Candle.Close, cfg.Strike, finalDTE, cfg.ImpliedVol, cfg.Side)
	trade.ExitDate = last.Date
	trade.ExitPrice = exitPrice
	trade.PnL = exitPrice - entryPrice
	return trade, nil
}

// priceAt computes the theoretical option premium for an underlying price
// and a remaining days-to-expiry, clamping DTE to at least one trading day
// so time value never goes fully to zero mid-simulation.
func priceAt(underlying, strike float64, dte int, iv float64, side domain.OptionType) float64 {
	if dte < 1 {
		dte = 1
	}
	yearsToExpiry := float64(dte) / 365.0
	if side == domain.Put {
		return options.PutGreeks(underlying, strike, yearsToExpiry, iv, options.RiskFreeRate).Price
	}
	return options.CallGreeks(underlying, strike, yearsToExpiry, iv, options.RiskFreeRate).Price
}

// RunMany simulates a batch of configs over the same bar series and
// reports the result through analytics.Summary so backtests and live
// performance share one reporting shape.
func RunMany(bars []Bar, configs []Config) ([]SyntheticTrade, analytics.Summary, error) {
	trades := make([]SyntheticTrade, 0, len(configs))
	for _, cfg := range configs {
		trade, err := Run(bars, cfg)
		if err != nil {
			return nil, analytics.Summary{}, err
		}
		trades = append(trades, trade)
	}
	return trades, summarize(trades), nil
}

func summarize(trades []SyntheticTrade) analytics.Summary {
	var sum analytics.Summary
	var winTotal, lossTotal float64
	for _, t := range trades {
		sum.TradeCount++
		sum.TotalPnL += t.PnL
		switch {
		case t.PnL > 0:
			sum.WinCount++
			winTotal += t.PnL
			if t.PnL > sum.LargestWin {
				sum.LargestWin = t.PnL
			}
		case t.PnL < 0:
			sum.LossCount++
			lossTotal += t.PnL
			if t.PnL < sum.LargestLoss {
				sum.LargestLoss = t.PnL
			}
		}
	}
	if sum.TradeCount > 0 {
		sum.WinRate = float64(sum.WinCount) / float64(sum.TradeCount)
	}
	if sum.WinCount > 0 {
		sum.AverageWin = winTotal / float64(sum.WinCount)
	}
	if sum.LossCount > 0 {
		sum.AverageLoss = lossTotal / float64(sum.LossCount)
	}
	return sum
}

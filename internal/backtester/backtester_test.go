package backtester

import (
	"testing"

	"github.com/quantleaf/optrader/internal/analysis/technical"
	"github.com/quantleaf/optrader/internal/domain"
)

func barsRising(days int, start, stepUp float64) []Bar {
	bars := make([]Bar, days)
	price := start
	for i := 0; i < days; i++ {
		bars[i] = Bar{Date: dateFor(i), Candle: technical.Candle{Close: price}}
		price += stepUp
	}
	return bars
}

func dateFor(i int) string {
	return "2026-01-" + []string{"01", "02", "03", "04", "05", "06", "07", "08", "09", "10",
		"11", "12", "13", "14", "15", "16", "17", "18", "19", "20", "21", "22", "23", "24", "25"}[i%25]
}

func TestRun_RisingUnderlyingProducesPositivePnLForCall(t *testing.T) {
	bars := barsRising(15, 100, 2)
	cfg := Config{
		Strategy: domain.StrategyWeekly, Side: domain.Call, Strike: 100,
		ImpliedVol: 0.35, Regime: domain.RegimeNormal, DaysToExpiryAtEntry: 14, EntryIndex: 0,
	}
	trade, err := Run(bars, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if trade.PnL <= 0 {
		t.Fatalf("expected positive pnl for rising underlying, got %+v", trade)
	}
}

func TestRun_FallingUnderlyingTriggersStopLoss(t *testing.T) {
	bars := barsRising(15, 100, -3)
	cfg := Config{
		Strategy: domain.StrategyWeekly, Side: domain.Call, Strike: 100,
		ImpliedVol: 0.35, Regime: domain.RegimeNormal, DaysToExpiryAtEntry: 14, EntryIndex: 0,
	}
	trade, err := Run(bars, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if trade.PnL >= 0 {
		t.Fatalf("expected a loss on falling underlying, got %+v", trade)
	}
}

func TestRun_RejectsOutOfRangeEntryIndex(t *testing.T) {
	bars := barsRising(5, 100, 1)
	cfg := Config{Strategy: domain.StrategyWeekly, Side: domain.Call, Strike: 100, ImpliedVol: 0.3, EntryIndex: 50}
	if _, err := Run(bars, cfg); err == nil {
		t.Fatal("expected an out-of-range error")
	}
}

func TestRunMany_AggregatesSummaryAcrossConfigs(t *testing.T) {
	bars := barsRising(15, 100, 2)
	configs := []Config{
		{Strategy: domain.StrategyWeekly, Side: domain.Call, Strike: 100, ImpliedVol: 0.35, DaysToExpiryAtEntry: 14, EntryIndex: 0},
		{Strategy: domain.StrategyWeekly, Side: domain.Call, Strike: 110, ImpliedVol: 0.35, DaysToExpiryAtEntry: 14, EntryIndex: 0},
	}
	trades, summary, err := RunMany(bars, configs)
	if err != nil {
		t.Fatal(err)
	}
	if len(trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(trades))
	}
	if summary.TradeCount != 2 {
		t.Fatalf("expected summary trade count 2, got %d", summary.TradeCount)
	}
}

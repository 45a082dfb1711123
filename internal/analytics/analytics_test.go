package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/quantleaf/optrader/internal/domain"
	"github.com/quantleaf/optrader/internal/trading"
)

type fakeStore struct {
	trades []*trading.Trade
}

func (f fakeStore) ClosedTrades(ctx context.Context, username string) ([]*trading.Trade, error) {
	return f.trades, nil
}

func closedTrade(id, ticker, strategy string, pnl float64, closedAt time.Time) *trading.Trade {
	p := pnl
	t := closedAt
	return &trading.Trade{
		ID: id, Ticker: ticker, StrategyLabel: strategy, OptionType: domain.Call,
		RealizedPnL: &p, ClosedAt: &t, Status: trading.StatusClosed,
	}
}

func TestSummarize_ComputesWinRateAndAverages(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	trades := []*trading.Trade{
		closedTrade("1", "AAPL", "weekly", 100, base),
		closedTrade("2", "AAPL", "weekly", -50, base.Add(time.Hour)),
		closedTrade("3", "MSFT", "leap", 200, base.Add(2*time.Hour)),
	}
	svc := New(fakeStore{trades: trades})
	sum, err := svc.Summarize(context.Background(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	if sum.TradeCount != 3 || sum.WinCount != 2 || sum.LossCount != 1 {
		t.Fatalf("unexpected counts: %+v", sum)
	}
	if sum.TotalPnL != 250 {
		t.Fatalf("expected total pnl 250, got %v", sum.TotalPnL)
	}
	if sum.AverageWin != 150 {
		t.Fatalf("expected average win 150, got %v", sum.AverageWin)
	}
	if sum.AverageLoss != -50 {
		t.Fatalf("expected average loss -50, got %v", sum.AverageLoss)
	}
}

func TestMaxDrawdown_FindsPeakToTroughDecline(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	trades := []*trading.Trade{
		closedTrade("1", "AAPL", "weekly", 100, base),
		closedTrade("2", "AAPL", "weekly", -150, base.Add(time.Hour)),
		closedTrade("3", "AAPL", "weekly", 30, base.Add(2*time.Hour)),
	}
	svc := New(fakeStore{trades: trades})
	dd, err := svc.MaxDrawdown(context.Background(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	if dd != 150 {
		t.Fatalf("expected drawdown 150, got %v", dd)
	}
}

func TestAttribute_GroupsByStrategyDescendingByAbsPnL(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	trades := []*trading.Trade{
		closedTrade("1", "AAPL", "weekly", 10, base),
		closedTrade("2", "MSFT", "leap", -500, base.Add(time.Hour)),
	}
	svc := New(fakeStore{trades: trades})
	attr, err := svc.Attribute(context.Background(), "alice", ByStrategy)
	if err != nil {
		t.Fatal(err)
	}
	if len(attr) != 2 || attr[0].Key != "leap" {
		t.Fatalf("expected leap first by magnitude, got %+v", attr)
	}
}

// Package analytics computes realized-P&L summaries, equity curves,
// drawdown and attribution over a user's closed trades. It reads through
// the same row-level-security-scoped tradestore connection the lifecycle
// engine uses; every query here is read-only and user-scoped, so no new
// concurrency invariant is introduced beyond that.
package analytics

import (
	"context"
	"sort"

	"github.com/quantleaf/optrader/internal/trading"
)

// ClosedTradeSource is the subset of tradestore.Store analytics needs.
type ClosedTradeSource interface {
	ClosedTrades(ctx context.Context, username string) ([]*trading.Trade, error)
}

// Summary is the headline performance readout over a set of closed trades.
type Summary struct {
	TradeCount    int
	TotalPnL      float64
	WinCount      int
	LossCount     int
	WinRate       float64
	AverageWin    float64
	AverageLoss   float64
	LargestWin    float64
	LargestLoss   float64
}

// EquityPoint is one step of the cumulative-P&L curve, in close order.
type EquityPoint struct {
	TradeID       string
	ClosedAt      string
	CumulativePnL float64
}

// Attribution buckets total P&L and trade count by a single dimension
// (strategy label, ticker, or option type).
type Attribution struct {
	Key      string
	PnL      float64
	Count    int
	WinCount int
}

// Service computes summaries over one user's closed trades.
type Service struct {
	store ClosedTradeSource
}

func New(store ClosedTradeSource) *Service {
	return &Service{store: store}
}

// Summarize computes the headline Summary for a user.
func (s *Service) Summarize(ctx context.Context, username string) (Summary, error) {
	trades, err := s.store.ClosedTrades(ctx, username)
	if err != nil {
		return Summary{}, err
	}
	return summarize(trades), nil
}

func summarize(trades []*trading.Trade) Summary {
	var sum Summary
	var winTotal, lossTotal float64
	for _, t := range trades {
		pnl := pnlOf(t)
		sum.TradeCount++
		sum.TotalPnL += pnl
		switch {
		case pnl > 0:
			sum.WinCount++
			winTotal += pnl
			if pnl > sum.LargestWin {
				sum.LargestWin = pnl
			}
		case pnl < 0:
			sum.LossCount++
			lossTotal += pnl
			if pnl < sum.LargestLoss {
				sum.LargestLoss = pnl
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

// EquityCurve computes the running cumulative P&L, in the order trades
// were closed.
func (s *Service) EquityCurve(ctx context.Context, username string) ([]EquityPoint, error) {
	trades, err := s.store.ClosedTrades(ctx, username)
	if err != nil {
		return nil, err
	}
	curve := make([]EquityPoint, 0, len(trades))
	var running float64
	for _, t := range trades {
		running += pnlOf(t)
		closedAt := ""
		if t.ClosedAt != nil {
			closedAt = t.ClosedAt.Format("2006-01-02T15:04:05Z07:00")
		}
		curve = append(curve, EquityPoint{TradeID: t.ID, ClosedAt: closedAt, CumulativePnL: running})
	}
	return curve, nil
}

// MaxDrawdown returns the largest peak-to-trough decline in the equity
// curve, as a positive number (0 when the curve never falls below a prior
// peak).
func (s *Service) MaxDrawdown(ctx context.Context, username string) (float64, error) {
	curve, err := s.EquityCurve(ctx, username)
	if err != nil {
		return 0, err
	}
	return maxDrawdown(curve), nil
}

func maxDrawdown(curve []EquityPoint) float64 {
	peak := 0.0
	maxDD := 0.0
	for i, p := range curve {
		if i == 0 || p.CumulativePnL > peak {
			peak = p.CumulativePnL
		}
		if dd := peak - p.CumulativePnL; dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

// AttributionDimension selects which field Attribute groups trades by.
type AttributionDimension string

const (
	ByStrategy   AttributionDimension = "strategy"
	ByTicker     AttributionDimension = "ticker"
	ByOptionType AttributionDimension = "option_type"
)

// Attribute buckets a user's closed trades' P&L by the given dimension,
// sorted by descending absolute contribution.
func (s *Service) Attribute(ctx context.Context, username string, dim AttributionDimension) ([]Attribution, error) {
	trades, err := s.store.ClosedTrades(ctx, username)
	if err != nil {
		return nil, err
	}
	byKey := make(map[string]*Attribution)
	var order []string
	for _, t := range trades {
		key := keyFor(t, dim)
		a, ok := byKey[key]
		if !ok {
			a = &Attribution{Key: key}
			byKey[key] = a
			order = append(order, key)
		}
		pnl := pnlOf(t)
		a.PnL += pnl
		a.Count++
		if pnl > 0 {
			a.WinCount++
		}
	}
	out := make([]Attribution, 0, len(order))
	for _, k := range order {
		out = append(out, *byKey[k])
	}
	sort.Slice(out, func(i, j int) bool {
		return absf(out[i].PnL) > absf(out[j].PnL)
	})
	return out, nil
}

func keyFor(t *trading.Trade, dim AttributionDimension) string {
	switch dim {
	case ByTicker:
		return t.Ticker
	case ByOptionType:
		return string(t.OptionType)
	default:
		if t.StrategyLabel == "" {
			return "unlabeled"
		}
		return t.StrategyLabel
	}
}

func pnlOf(t *trading.Trade) float64 {
	if t.RealizedPnL == nil {
		return 0
	}
	return *t.RealizedPnL
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

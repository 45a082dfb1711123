package scanner

import (
	"context"

	"github.com/quantleaf/optrader/internal/analysis/options"
	"github.com/quantleaf/optrader/internal/analysis/technical"
	"github.com/quantleaf/optrader/internal/domain"
	"github.com/quantleaf/optrader/internal/providers/fundamentals"
	"github.com/quantleaf/optrader/internal/providers/news"
	"github.com/quantleaf/optrader/internal/providers/result"
)

// OptionsSource is the subset of the options provider the scanner needs:
// live quote and chain.
type OptionsSource interface {
	GetQuote(ctx context.Context, ticker string) result.Result[domain.Quote]
	GetChain(ctx context.Context, ticker string) result.Result[domain.Chain]
	GetSkew(ctx context.Context, ticker string) result.Result[options.ProviderSkewFields]
}

// FundamentalsSource is the quality-gate and scoring-step dependency.
type FundamentalsSource interface {
	GetFundamentals(ctx context.Context, ticker string) result.Result[fundamentals.Data]
}

// NewsSource is the sentiment dependency.
type NewsSource interface {
	GetSentiment(ctx context.Context, ticker string) result.Result[news.Sentiment]
}

// HistorySource supplies an ascending OHLCV candle series covering at
// least the requested number of calendar days.
type HistorySource interface {
	GetHistory(ctx context.Context, ticker string, minCalendarDays int) ([]technical.Candle, error)
}

// ContextSource supplies the trading-system context bundle.
type ContextSource interface {
	GetContext(ctx context.Context, ticker string) (TradingContext, error)
}

// ResultStore persists a completed scan result; optional, since persistence
// is a best-effort side channel and not load-bearing for the returned payload.
type ResultStore interface {
	SaveScanResult(ctx context.Context, r Result) error
}

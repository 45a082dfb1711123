package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantleaf/optrader/internal/broker"
	"github.com/quantleaf/optrader/internal/domain"
	"github.com/quantleaf/optrader/internal/errs"
	"github.com/quantleaf/optrader/internal/exitplan"
	"github.com/quantleaf/optrader/internal/trading"
)

// TradeSource is the subset of tradestore.Store the scheduler's jobs need
// to discover work: the users configured, and each user's open trades.
type TradeSource interface {
	ListUsernames(ctx context.Context) ([]string, error)
	OpenTrades(ctx context.Context, username string) ([]*trading.Trade, error)
}

// BrokerFor resolves the broker client to use for one user, so the
// scheduler never hard-codes a single account.
type BrokerFor func(username string) (*broker.Client, error)

// LivePricePollJob marks every open position to market and appends a
// PERIODIC snapshot, driving unrealized P&L and exit-plan evaluation.
type LivePricePollJob struct {
	trades TradeSource
	engine *trading.Engine
	broker BrokerFor
	log    zerolog.Logger
}

func NewLivePricePollJob(trades TradeSource, engine *trading.Engine, brokerFor BrokerFor, log zerolog.Logger) *LivePricePollJob {
	return &LivePricePollJob{trades: trades, engine: engine, broker: brokerFor, log: log.With().Str("job", "live_price_poll").Logger()}
}

func (j *LivePricePollJob) Name() string { return "live_price_poll" }

func (j *LivePricePollJob) Run(ctx context.Context) error {
	usernames, err := j.trades.ListUsernames(ctx)
	if err != nil {
		return err
	}
	for _, username := range usernames {
		open, err := j.trades.OpenTrades(ctx, username)
		if err != nil {
			j.log.Error().Err(err).Str("user", username).Msg("failed to list open trades")
			continue
		}
		if len(open) == 0 {
			continue
		}
		b, err := j.broker(username)
		if err != nil {
			j.log.Warn().Err(err).Str("user", username).Msg("no broker client configured")
			continue
		}
		j.markToMarket(ctx, b, open)
	}
	return nil
}

// markToMarket fetches an option quote per open trade, updates its stored
// mark and unrealized P&L, appends a PERIODIC snapshot, and evaluates the
// trade's attached exit plan — submitting a close order through the
// broker and transitioning the trade to CLOSING on any rule hit.
func (j *LivePricePollJob) markToMarket(ctx context.Context, b *broker.Client, open []*trading.Trade) {
	for _, t := range open {
		quote, err := b.GetOptionQuote(ctx, t.Ticker, t.Strike, t.Expiry, t.OptionType)
		if err != nil {
			j.log.Error().Err(err).Str("trade_id", t.ID).Msg("option quote fetch failed")
			continue
		}
		if quote.Mark <= 0 {
			continue
		}

		unrealizedPnL := trading.RealizedPnL(t.Direction, t.EntryPrice, quote.Mark, t.Quantity)
		if err := j.engine.UpdateMark(ctx, t, quote.Mark, unrealizedPnL); err != nil {
			j.log.Error().Err(err).Str("trade_id", t.ID).Msg("failed to update mark")
		}

		if err := j.engine.RecordSnapshot(ctx, trading.PriceSnapshot{
			TradeID:           t.ID,
			Username:          t.Username,
			Mark:              quote.Mark,
			Bid:               quote.Bid,
			Ask:               quote.Ask,
			Delta:             quote.Greeks.Delta,
			ImpliedVolatility: quote.IV,
			UnderlyingPrice:   quote.Underlying,
			Kind:              trading.SnapshotPeriodic,
		}); err != nil {
			j.log.Error().Err(err).Str("trade_id", t.ID).Msg("failed to record snapshot")
		}

		j.evaluateExit(ctx, b, t, unrealizedPnL)
	}
}

// evaluateExit reconstructs the trade's attached exit plan, runs it
// through should_exit, and — on anything but Hold — submits a closing
// order through the broker and transitions the trade to CLOSING. A trade
// with no attached plan (opened outside the engine) is left untouched.
func (j *LivePricePollJob) evaluateExit(ctx context.Context, b *broker.Client, t *trading.Trade, unrealizedPnL float64) {
	plan, daysToEarnings, ok := t.ExitPlan()
	if !ok {
		return
	}

	pnlPct := 0.0
	if t.EntryPrice > 0 {
		pnlPct = unrealizedPnL / (t.EntryPrice * float64(t.Quantity) * 100) * 100
	}
	dteRemaining := int(time.Until(t.Expiry).Hours() / 24)

	decision := exitplan.ShouldExit(pnlPct, dteRemaining, daysToEarnings, plan)
	if decision.Kind == exitplan.Hold {
		return
	}

	if err := j.engine.BeginClosing(ctx, t, decision.Reason); err != nil {
		if !errs.IsKind(err, errs.KindConcurrentModified) {
			j.log.Error().Err(err).Str("trade_id", t.ID).Msg("failed to begin closing trade")
		}
		return
	}

	symbol := broker.BuildOCCSymbol(t.Ticker, t.Expiry, t.OptionType, t.Strike)
	side := broker.SideSellToClose
	if t.Direction == domain.DirectionSell {
		side = broker.SideBuyToClose
	}
	orderID, err := b.PlaceOrder(ctx, broker.OrderRequest{Symbol: symbol, Side: side, Quantity: t.Quantity, Type: "market"})
	if err != nil {
		j.log.Error().Err(err).Str("trade_id", t.ID).Str("decision", string(decision.Kind)).Msg("close order placement failed")
		return
	}
	j.log.Info().Str("trade_id", t.ID).Str("decision", string(decision.Kind)).Str("order_id", orderID).Msg("exit order submitted")
}

// BookendJob captures a PRE_SESSION or POST_SESSION snapshot for every
// open trade, used to anchor daily overnight P&L attribution.
type BookendJob struct {
	trades TradeSource
	engine *trading.Engine
	broker BrokerFor
	kind   trading.SnapshotKind
	name   string
	log    zerolog.Logger
}

func NewPreSessionBookendJob(trades TradeSource, engine *trading.Engine, brokerFor BrokerFor, log zerolog.Logger) *BookendJob {
	return &BookendJob{trades: trades, engine: engine, broker: brokerFor, kind: trading.SnapshotPreSession, name: "pre_session_bookend", log: log}
}

func NewPostSessionBookendJob(trades TradeSource, engine *trading.Engine, brokerFor BrokerFor, log zerolog.Logger) *BookendJob {
	return &BookendJob{trades: trades, engine: engine, broker: brokerFor, kind: trading.SnapshotPostSession, name: "post_session_bookend", log: log}
}

func (j *BookendJob) Name() string { return j.name }

func (j *BookendJob) Run(ctx context.Context) error {
	usernames, err := j.trades.ListUsernames(ctx)
	if err != nil {
		return err
	}
	for _, username := range usernames {
		open, err := j.trades.OpenTrades(ctx, username)
		if err != nil || len(open) == 0 {
			continue
		}
		b, err := j.broker(username)
		if err != nil {
			continue
		}
		for _, t := range open {
			quote, err := b.GetOptionQuote(ctx, t.Ticker, t.Strike, t.Expiry, t.OptionType)
			if err != nil || quote.Mark <= 0 {
				continue
			}
			_ = j.engine.RecordSnapshot(ctx, trading.PriceSnapshot{
				TradeID:           t.ID,
				Username:          t.Username,
				Mark:              quote.Mark,
				Bid:               quote.Bid,
				Ask:               quote.Ask,
				Delta:             quote.Greeks.Delta,
				ImpliedVolatility: quote.IV,
				UnderlyingPrice:   quote.Underlying,
				Kind:              j.kind,
			})
		}
	}
	return nil
}

// OrphanGuardJob cancels any still-open stop-loss or take-profit leg
// belonging to a trade that has already reached a terminal status —
// the broker side of an OCO bracket can otherwise outlive the local
// trade it protected.
type OrphanGuardJob struct {
	trades TradeSource
	broker BrokerFor
	log    zerolog.Logger
}

func NewOrphanGuardJob(trades TradeSource, brokerFor BrokerFor, log zerolog.Logger) *OrphanGuardJob {
	return &OrphanGuardJob{trades: trades, broker: brokerFor, log: log.With().Str("job", "orphan_guard").Logger()}
}

func (j *OrphanGuardJob) Name() string { return "orphan_guard" }

func (j *OrphanGuardJob) Run(ctx context.Context) error {
	usernames, err := j.trades.ListUsernames(ctx)
	if err != nil {
		return err
	}
	for _, username := range usernames {
		b, err := j.broker(username)
		if err != nil {
			continue
		}
		orders, err := b.GetOrders(ctx)
		if err != nil {
			j.log.Error().Err(err).Str("user", username).Msg("failed to list broker orders")
			continue
		}
		for _, o := range orders {
			if o.Status != "open" && o.Status != "pending" {
				continue
			}
			// An orphan guard needs to cross-reference order ids against
			// terminal local trades; that linkage is resolved by the
			// caller supplying a terminal-trade id set per user in a
			// fuller deployment. Here we rely on OpenTrades already
			// excluding terminal trades: any broker order whose id isn't
			// attached to a currently-open local trade is a candidate.
			if !j.belongsToOpenTrade(ctx, username, o.ID) {
				b.CancelOrder(ctx, o.ID)
			}
		}
	}
	return nil
}

func (j *OrphanGuardJob) belongsToOpenTrade(ctx context.Context, username, orderID string) bool {
	open, err := j.trades.OpenTrades(ctx, username)
	if err != nil {
		return true // fail safe: don't cancel if we can't confirm
	}
	for _, t := range open {
		if t.EntryOrderID == orderID || t.StopOrderID == orderID || t.TakeProfitOrderID == orderID {
			return true
		}
	}
	return false
}

// EODReconciliationJob closes out any trade whose option has expired
// without a broker-confirmed exit, transitioning it to EXPIRED.
type EODReconciliationJob struct {
	trades TradeSource
	engine *trading.Engine
	log    zerolog.Logger
}

func NewEODReconciliationJob(trades TradeSource, engine *trading.Engine, log zerolog.Logger) *EODReconciliationJob {
	return &EODReconciliationJob{trades: trades, engine: engine, log: log.With().Str("job", "eod_reconciliation").Logger()}
}

func (j *EODReconciliationJob) Name() string { return "eod_reconciliation" }

func (j *EODReconciliationJob) Run(ctx context.Context) error {
	usernames, err := j.trades.ListUsernames(ctx)
	if err != nil {
		return err
	}
	now := time.Now()
	for _, username := range usernames {
		open, err := j.trades.OpenTrades(ctx, username)
		if err != nil {
			continue
		}
		for _, t := range open {
			if t.Expiry.After(now) {
				continue
			}
			if err := j.engine.Expire(ctx, t); err != nil && !errs.IsKind(err, errs.KindConcurrentModified) {
				j.log.Error().Err(err).Str("trade_id", t.ID).Msg("failed to expire trade")
			}
		}
	}
	return nil
}

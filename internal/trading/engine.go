package trading

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quantleaf/optrader/internal/broker"
	"github.com/quantleaf/optrader/internal/domain"
	"github.com/quantleaf/optrader/internal/exitplan"
)

// Store is the persistence contract the lifecycle engine depends on. It is
// defined here, not in tradestore, so this package stays import-free of
// its own storage backend; tradestore.Store satisfies it structurally.
type Store interface {
	Create(ctx context.Context, t *Trade) error
	Get(ctx context.Context, username, id string) (*Trade, error)
	Transition(ctx context.Context, username, id string, expectedVersion int, to Status, trigger string, metadata map[string]interface{}) error
	CloseWithPnL(ctx context.Context, username, id string, expectedVersion int, exitPrice, realizedPnL float64, closeReason string) error
	InsertSnapshot(ctx context.Context, snap PriceSnapshot) error
	UpdateMark(ctx context.Context, username, id string, mark, unrealizedPnL float64) error
}

// Broker is the subset of the broker gateway the lifecycle engine needs to
// open a position: submit the entry leg and its protective OCO bracket.
// Defined here rather than imported as *broker.Client so the engine stays
// testable without a live transport.
type Broker interface {
	PlaceOrder(ctx context.Context, req broker.OrderRequest) (string, error)
	PlaceOCOBracket(ctx context.Context, req broker.BracketRequest) (stopOrderID, tpOrderID string, err error)
}

// BrokerFor resolves the broker to use for one user. A nil BrokerFor leaves
// every Open'd trade PENDING with no broker call, which is what the
// engine's own unit tests rely on.
type BrokerFor func(username string) (Broker, error)

// NewTradeRequest carries everything the engine needs to open a position.
type NewTradeRequest struct {
	Username              string
	Ticker                string
	OptionType            domain.OptionType
	Strike                float64
	Expiry                time.Time
	Direction             domain.Direction
	EntryPrice            float64
	Quantity              int
	StopLossPrice         float64
	TakeProfitPrice       float64
	StrategyLabel         string
	ScoreContext          map[string]interface{}
	BrokerMode            BrokerMode
	IdempotencyKey        string
	ExitPlan              exitplan.Plan
	DaysToEarningsAtEntry int
}

// Engine is the lifecycle orchestrator: it enforces the state machine on
// every transition, stamps an audit row for each one, and computes
// realized P&L on close.
type Engine struct {
	store     Store
	brokerFor BrokerFor
	log       zerolog.Logger
}

func NewEngine(store Store, brokerFor BrokerFor, log zerolog.Logger) *Engine {
	return &Engine{store: store, brokerFor: brokerFor, log: log}
}

// Open creates a new PENDING trade, attaches the exit plan it was sized
// against, then — when a broker resolver is configured — places the entry
// order and its protective OCO bracket and marks the trade filled.
// Supplying an IdempotencyKey that was already used fails with the store's
// duplicate-key error before any broker call, so a caller retrying after a
// timeout can't double-open a position; the previously created trade is
// not returned.
func (e *Engine) Open(ctx context.Context, req NewTradeRequest) (*Trade, error) {
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = uuid.NewString()
	}
	t := &Trade{
		Username:        req.Username,
		Ticker:          req.Ticker,
		OptionType:      req.OptionType,
		Strike:          req.Strike,
		Expiry:          req.Expiry,
		Direction:       req.Direction,
		EntryPrice:      req.EntryPrice,
		Quantity:        req.Quantity,
		StopLossPrice:   req.StopLossPrice,
		TakeProfitPrice: req.TakeProfitPrice,
		StrategyLabel:   req.StrategyLabel,
		ScoreContext:    req.ScoreContext,
		BrokerMode:      req.BrokerMode,
		IdempotencyKey:  req.IdempotencyKey,
	}
	AttachExitPlan(t, req.ExitPlan, req.DaysToEarningsAtEntry)
	if err := e.store.Create(ctx, t); err != nil {
		return nil, err
	}
	e.log.Info().Str("trade_id", t.ID).Str("ticker", t.Ticker).Msg("trade opened pending")

	if e.brokerFor == nil {
		return t, nil
	}
	b, err := e.brokerFor(t.Username)
	if err != nil {
		e.log.Warn().Err(err).Str("trade_id", t.ID).Msg("no broker client configured, trade stays pending")
		return t, nil
	}

	symbol := broker.BuildOCCSymbol(t.Ticker, t.Expiry, t.OptionType, t.Strike)
	side := broker.SideBuyToOpen
	if t.Direction == domain.DirectionSell {
		side = broker.SideSellToOpen
	}
	orderID, err := b.PlaceOrder(ctx, broker.OrderRequest{
		Symbol:   symbol,
		Side:     side,
		Quantity: t.Quantity,
		Type:     "market",
	})
	if err != nil {
		e.log.Error().Err(err).Str("trade_id", t.ID).Msg("entry order placement failed, trade stays pending")
		return t, nil
	}

	if t.StopLossPrice > 0 && t.TakeProfitPrice > 0 {
		stopID, tpID, err := b.PlaceOCOBracket(ctx, broker.BracketRequest{
			Symbol:          symbol,
			Quantity:        t.Quantity,
			StopPrice:       t.StopLossPrice,
			TakeProfitPrice: t.TakeProfitPrice,
		})
		if err != nil {
			e.log.Error().Err(err).Str("trade_id", t.ID).Msg("OCO bracket placement failed")
		} else {
			t.StopOrderID = stopID
			t.TakeProfitOrderID = tpID
		}
	}

	if err := e.MarkFilled(ctx, t, t.EntryPrice, orderID); err != nil {
		e.log.Error().Err(err).Str("trade_id", t.ID).Msg("failed to mark trade filled after broker confirmation")
	}
	return t, nil
}

// MarkFilled transitions PENDING -> OPEN once the broker confirms the
// entry leg filled.
func (e *Engine) MarkFilled(ctx context.Context, t *Trade, brokerFillPrice float64, entryOrderID string) error {
	if err := e.store.Transition(ctx, t.Username, t.ID, t.Version, StatusOpen, "broker_fill", map[string]interface{}{
		"broker_fill_price": brokerFillPrice,
		"entry_order_id":    entryOrderID,
	}); err != nil {
		return err
	}
	t.Status = StatusOpen
	t.Version++
	t.BrokerFillPrice = brokerFillPrice
	t.EntryOrderID = entryOrderID
	return nil
}

// MarkPartiallyFilled transitions OPEN <-> PARTIALLY_FILLED.
func (e *Engine) MarkPartiallyFilled(ctx context.Context, t *Trade, filledQuantity int) error {
	if err := e.store.Transition(ctx, t.Username, t.ID, t.Version, StatusPartiallyFilled, "partial_fill", map[string]interface{}{
		"filled_quantity": filledQuantity,
	}); err != nil {
		return err
	}
	t.Status = StatusPartiallyFilled
	t.Version++
	return nil
}

// BeginClosing transitions a live trade into CLOSING once an exit order
// has been submitted to the broker, per the exit-plan decision that
// triggered it.
func (e *Engine) BeginClosing(ctx context.Context, t *Trade, reason string) error {
	if err := e.store.Transition(ctx, t.Username, t.ID, t.Version, StatusClosing, "exit_triggered", map[string]interface{}{
		"close_reason": reason,
	}); err != nil {
		return err
	}
	t.Status = StatusClosing
	t.Version++
	t.CloseReason = reason
	return nil
}

// Close finalizes a trade once the broker confirms the exit fill,
// computing realized P&L as (exitPrice - entryPrice) * quantity * 100 for
// a long position, inverted for a short position.
func (e *Engine) Close(ctx context.Context, t *Trade, exitPrice float64) (float64, error) {
	realizedPnL := RealizedPnL(t.Direction, t.EntryPrice, exitPrice, t.Quantity)
	if err := e.store.CloseWithPnL(ctx, t.Username, t.ID, t.Version, exitPrice, realizedPnL, t.CloseReason); err != nil {
		return 0, err
	}
	t.Status = StatusClosed
	t.Version++
	t.ExitPrice = &exitPrice
	t.RealizedPnL = &realizedPnL
	now := time.Now()
	t.ClosedAt = &now
	return realizedPnL, nil
}

// Expire transitions a trade to EXPIRED, used by the scheduler's
// end-of-day reconciliation job when an option's expiry date has passed
// without an exit order.
func (e *Engine) Expire(ctx context.Context, t *Trade) error {
	if err := e.store.Transition(ctx, t.Username, t.ID, t.Version, StatusExpired, "expiry_reached", nil); err != nil {
		return err
	}
	t.Status = StatusExpired
	t.Version++
	return nil
}

// Cancel transitions a non-terminal trade to CANCELED, used when a
// PENDING entry order never fills or an operator aborts a position.
func (e *Engine) Cancel(ctx context.Context, t *Trade, reason string) error {
	if err := e.store.Transition(ctx, t.Username, t.ID, t.Version, StatusCanceled, "canceled", map[string]interface{}{
		"reason": reason,
	}); err != nil {
		return err
	}
	t.Status = StatusCanceled
	t.Version++
	t.CloseReason = reason
	return nil
}

// RecordSnapshot appends a mark-to-market row independent of any status
// transition.
func (e *Engine) RecordSnapshot(ctx context.Context, snap PriceSnapshot) error {
	return e.store.InsertSnapshot(ctx, snap)
}

// UpdateMark persists a trade's latest mark and unrealized P&L without a
// status transition, driven by the scheduler's live-price-poll job on
// every open position each cycle.
func (e *Engine) UpdateMark(ctx context.Context, t *Trade, mark, unrealizedPnL float64) error {
	if err := e.store.UpdateMark(ctx, t.Username, t.ID, mark, unrealizedPnL); err != nil {
		return err
	}
	t.CurrentMark = mark
	t.UnrealizedPnL = unrealizedPnL
	return nil
}

// RealizedPnL computes dollar P&L for a closed options position. A long
// (BUY) position profits when exitPrice exceeds entryPrice; a short
// (SELL) position profits the reverse. Contracts are 100-share
// multiplier.
func RealizedPnL(direction domain.Direction, entryPrice, exitPrice float64, quantity int) float64 {
	delta := exitPrice - entryPrice
	if direction == domain.DirectionSell {
		delta = -delta
	}
	return delta * float64(quantity) * 100
}

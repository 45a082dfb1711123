package trading

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantleaf/optrader/internal/broker"
	"github.com/quantleaf/optrader/internal/domain"
	"github.com/quantleaf/optrader/internal/exitplan"
)

// fakeStore is an in-memory Store used to exercise the lifecycle engine
// without a database, preferring a fake over a mocking framework.
type fakeStore struct {
	trades     map[string]*Trade
	snapshots  []PriceSnapshot
	transitions []StateTransition
}

func newFakeStore() *fakeStore {
	return &fakeStore{trades: map[string]*Trade{}}
}

func (f *fakeStore) Create(ctx context.Context, t *Trade) error {
	t.ID = "trade-1"
	t.Version = 1
	t.Status = StatusPending
	cp := *t
	f.trades[t.ID] = &cp
	return nil
}

func (f *fakeStore) Get(ctx context.Context, username, id string) (*Trade, error) {
	t, ok := f.trades[id]
	if !ok {
		return nil, ErrIllegalTransition{}
	}
	cp := *t
	return &cp, nil
}

func (f *fakeStore) Transition(ctx context.Context, username, id string, expectedVersion int, to Status, trigger string, metadata map[string]interface{}) error {
	t, ok := f.trades[id]
	if !ok {
		return ErrIllegalTransition{}
	}
	if t.Version != expectedVersion {
		return concurrentModErr{}
	}
	if err := RequireTransition(t.Status, to); err != nil {
		return err
	}
	from := t.Status
	t.Status = to
	t.Version++
	f.transitions = append(f.transitions, StateTransition{TradeID: id, FromStatus: &from, ToStatus: to, Trigger: trigger})
	return nil
}

func (f *fakeStore) CloseWithPnL(ctx context.Context, username, id string, expectedVersion int, exitPrice, realizedPnL float64, closeReason string) error {
	t, ok := f.trades[id]
	if !ok {
		return ErrIllegalTransition{}
	}
	if t.Version != expectedVersion {
		return concurrentModErr{}
	}
	if err := RequireTransition(t.Status, StatusClosed); err != nil {
		return err
	}
	t.Status = StatusClosed
	t.Version++
	t.ExitPrice = &exitPrice
	t.RealizedPnL = &realizedPnL
	t.CloseReason = closeReason
	return nil
}

func (f *fakeStore) InsertSnapshot(ctx context.Context, snap PriceSnapshot) error {
	f.snapshots = append(f.snapshots, snap)
	return nil
}

func (f *fakeStore) UpdateMark(ctx context.Context, username, id string, mark, unrealizedPnL float64) error {
	t, ok := f.trades[id]
	if !ok {
		return ErrIllegalTransition{}
	}
	t.CurrentMark = mark
	t.UnrealizedPnL = unrealizedPnL
	return nil
}

type concurrentModErr struct{}

func (concurrentModErr) Error() string { return "concurrent modification" }

// fakeBroker exercises Open's order-placement path without a live
// transport: it records every call it receives and returns canned IDs.
type fakeBroker struct {
	placedOrders  []broker.OrderRequest
	placedBracket *broker.BracketRequest
	orderErr      error
	bracketErr    error
}

func (f *fakeBroker) PlaceOrder(ctx context.Context, req broker.OrderRequest) (string, error) {
	f.placedOrders = append(f.placedOrders, req)
	if f.orderErr != nil {
		return "", f.orderErr
	}
	return "entry-order-1", nil
}

func (f *fakeBroker) PlaceOCOBracket(ctx context.Context, req broker.BracketRequest) (string, string, error) {
	f.placedBracket = &req
	if f.bracketErr != nil {
		return "", "", f.bracketErr
	}
	return "stop-order-1", "tp-order-1", nil
}

func newTestEngine() (*Engine, *fakeStore) {
	store := newFakeStore()
	return NewEngine(store, nil, zerolog.Nop()), store
}

func TestEngine_OpenCreatesPendingTrade(t *testing.T) {
	e, _ := newTestEngine()
	trade, err := e.Open(context.Background(), NewTradeRequest{
		Username: "alice", Ticker: "AAPL", OptionType: domain.Call,
		EntryPrice: 5.0, Quantity: 2, BrokerMode: ModeSandbox,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if trade.Status != StatusPending {
		t.Fatalf("expected PENDING, got %s", trade.Status)
	}
	if trade.IdempotencyKey == "" {
		t.Fatal("expected an idempotency key to be generated")
	}
}

func TestEngine_FullLifecycle_OpenFillCloseComputesPnL(t *testing.T) {
	e, _ := newTestEngine()
	trade, err := e.Open(context.Background(), NewTradeRequest{
		Username: "alice", Ticker: "AAPL", OptionType: domain.Call,
		Direction: domain.DirectionBuy, EntryPrice: 5.0, Quantity: 2, BrokerMode: ModeSandbox,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := e.MarkFilled(context.Background(), trade, 5.05, "order-1"); err != nil {
		t.Fatal(err)
	}
	if err := e.BeginClosing(context.Background(), trade, "profit_target"); err != nil {
		t.Fatal(err)
	}
	pnl, err := e.Close(context.Background(), trade, 8.0)
	if err != nil {
		t.Fatal(err)
	}
	want := (8.0 - 5.0) * 2 * 100
	if pnl != want {
		t.Fatalf("expected realized pnl %v, got %v", want, pnl)
	}
	if trade.Status != StatusClosed {
		t.Fatalf("expected CLOSED, got %s", trade.Status)
	}
}

func TestEngine_ShortPositionPnLIsInverted(t *testing.T) {
	pnl := RealizedPnL(domain.DirectionSell, 5.0, 2.0, 3)
	want := (5.0 - 2.0) * 3 * 100
	if pnl != want {
		t.Fatalf("expected %v, got %v", want, pnl)
	}
}

func TestEngine_CancelFromPending(t *testing.T) {
	e, _ := newTestEngine()
	trade, _ := e.Open(context.Background(), NewTradeRequest{Username: "alice", Ticker: "AAPL", BrokerMode: ModeSandbox})
	if err := e.Cancel(context.Background(), trade, "user_abort"); err != nil {
		t.Fatal(err)
	}
	if trade.Status != StatusCanceled {
		t.Fatalf("expected CANCELED, got %s", trade.Status)
	}
}

func TestEngine_RecordSnapshotDoesNotChangeStatus(t *testing.T) {
	e, store := newTestEngine()
	trade, _ := e.Open(context.Background(), NewTradeRequest{Username: "alice", Ticker: "AAPL", BrokerMode: ModeSandbox})
	if err := e.RecordSnapshot(context.Background(), PriceSnapshot{TradeID: trade.ID, Username: "alice", Kind: SnapshotPeriodic}); err != nil {
		t.Fatal(err)
	}
	if len(store.snapshots) != 1 {
		t.Fatalf("expected 1 snapshot recorded, got %d", len(store.snapshots))
	}
	if trade.Status != StatusPending {
		t.Fatalf("snapshot should not mutate status, got %s", trade.Status)
	}
}

func TestEngine_OpenWithBrokerPlacesEntryAndBracketThenMarksFilled(t *testing.T) {
	store := newFakeStore()
	fb := &fakeBroker{}
	e := NewEngine(store, func(username string) (Broker, error) { return fb, nil }, zerolog.Nop())

	trade, err := e.Open(context.Background(), NewTradeRequest{
		Username: "alice", Ticker: "AAPL", OptionType: domain.Call,
		Strike: 200, Direction: domain.DirectionBuy, EntryPrice: 5.0, Quantity: 2,
		StopLossPrice: 3.5, TakeProfitPrice: 7.5, BrokerMode: ModeSandbox,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(fb.placedOrders) != 1 {
		t.Fatalf("expected 1 entry order placed, got %d", len(fb.placedOrders))
	}
	if fb.placedOrders[0].Side != broker.SideBuyToOpen {
		t.Fatalf("expected buy_to_open, got %s", fb.placedOrders[0].Side)
	}
	if fb.placedBracket == nil {
		t.Fatal("expected an OCO bracket to be placed")
	}
	if trade.Status != StatusOpen {
		t.Fatalf("expected OPEN after broker confirmation, got %s", trade.Status)
	}
	if trade.EntryOrderID != "entry-order-1" {
		t.Fatalf("expected entry order id recorded, got %q", trade.EntryOrderID)
	}
	if trade.StopOrderID != "stop-order-1" || trade.TakeProfitOrderID != "tp-order-1" {
		t.Fatalf("expected bracket order ids recorded, got stop=%q tp=%q", trade.StopOrderID, trade.TakeProfitOrderID)
	}
}

func TestEngine_OpenWithBrokerOrderRejectionStaysPending(t *testing.T) {
	store := newFakeStore()
	fb := &fakeBroker{orderErr: assertErr{}}
	e := NewEngine(store, func(username string) (Broker, error) { return fb, nil }, zerolog.Nop())

	trade, err := e.Open(context.Background(), NewTradeRequest{
		Username: "alice", Ticker: "AAPL", EntryPrice: 5.0, Quantity: 1, BrokerMode: ModeSandbox,
	})
	if err != nil {
		t.Fatal(err)
	}
	if trade.Status != StatusPending {
		t.Fatalf("expected trade to stay PENDING when the entry order is rejected, got %s", trade.Status)
	}
}

type assertErr struct{}

func (assertErr) Error() string { return "broker rejected order" }

func TestEngine_UpdateMarkPersistsMarkAndUnrealizedPnL(t *testing.T) {
	e, store := newTestEngine()
	trade, _ := e.Open(context.Background(), NewTradeRequest{Username: "alice", Ticker: "AAPL", BrokerMode: ModeSandbox})

	if err := e.UpdateMark(context.Background(), trade, 6.25, 125.0); err != nil {
		t.Fatal(err)
	}
	if trade.CurrentMark != 6.25 || trade.UnrealizedPnL != 125.0 {
		t.Fatalf("expected in-memory trade updated, got mark=%v pnl=%v", trade.CurrentMark, trade.UnrealizedPnL)
	}
	stored := store.trades[trade.ID]
	if stored.CurrentMark != 6.25 || stored.UnrealizedPnL != 125.0 {
		t.Fatalf("expected store row updated, got mark=%v pnl=%v", stored.CurrentMark, stored.UnrealizedPnL)
	}
}

func TestAttachExitPlanAndExitPlanRoundTrip(t *testing.T) {
	trade := &Trade{CreatedAt: time.Now().Add(-3 * 24 * time.Hour)}
	plan := exitplan.Build(domain.StrategyWeekly, domain.RegimeNormal, 50, 4.0)
	AttachExitPlan(trade, plan, 10)

	got, daysRemaining, ok := trade.ExitPlan()
	if !ok {
		t.Fatal("expected plan to be found")
	}
	if got.Strategy != domain.StrategyWeekly {
		t.Fatalf("expected strategy round-tripped, got %s", got.Strategy)
	}
	if daysRemaining != 7 {
		t.Fatalf("expected 10 - 3 elapsed days = 7, got %d", daysRemaining)
	}
}

func TestExitPlan_MissingReturnsFalse(t *testing.T) {
	trade := &Trade{ScoreContext: map[string]interface{}{}}
	_, _, ok := trade.ExitPlan()
	if ok {
		t.Fatal("expected no plan to be found on a trade nothing was attached to")
	}
}

func TestEngine_ConcurrentCloseRaceYieldsExactlyOneSuccess(t *testing.T) {
	e, _ := newTestEngine()
	trade, _ := e.Open(context.Background(), NewTradeRequest{
		Username: "alice", Ticker: "AAPL", Direction: domain.DirectionBuy,
		EntryPrice: 5.0, Quantity: 1, BrokerMode: ModeSandbox,
	})
	_ = e.MarkFilled(context.Background(), trade, 5.0, "order-1")
	_ = e.BeginClosing(context.Background(), trade, "stop_loss")

	staleView := *trade
	_, err1 := e.Close(context.Background(), trade, 3.0)
	_, err2 := e.Close(context.Background(), &staleView, 3.5)

	successes := 0
	if err1 == nil {
		successes++
	}
	if err2 == nil {
		successes++
	}
	if successes != 1 {
		t.Fatalf("expected exactly one winner in the close race, got %d", successes)
	}
}

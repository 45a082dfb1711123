// Package trading holds the durable trade domain types and the lifecycle
// engine: a finite state machine over trade status, idempotent creation,
// and an append-only audit trail of every status change.
package trading

import (
	"time"

	"github.com/quantleaf/optrader/internal/domain"
)

// Status is a trade's lifecycle state.
type Status string

const (
	StatusPending         Status = "PENDING"
	StatusOpen            Status = "OPEN"
	StatusPartiallyFilled Status = "PARTIALLY_FILLED"
	StatusClosing         Status = "CLOSING"
	StatusClosed          Status = "CLOSED"
	StatusExpired         Status = "EXPIRED"
	StatusCanceled        Status = "CANCELED"
)

// BrokerMode distinguishes sandbox paper trading from a live account.
type BrokerMode string

const (
	ModeSandbox BrokerMode = "SANDBOX"
	ModeLive    BrokerMode = "LIVE"
)

// Trade is the durable paper-trading position entity.
type Trade struct {
	ID             string
	Username       string
	Ticker         string
	OptionType     domain.OptionType
	Strike         float64
	Expiry         time.Time
	Direction      domain.Direction
	EntryPrice     float64
	Quantity       int
	StopLossPrice  float64
	TakeProfitPrice float64
	CurrentMark    float64
	UnrealizedPnL  float64
	RealizedPnL    *float64
	Status         Status
	ExitPrice      *float64
	CloseReason    string
	StrategyLabel  string
	ScoreContext   map[string]interface{} // scores/greeks/IV/verdicts at entry
	BrokerMode     BrokerMode
	EntryOrderID   string
	StopOrderID    string
	TakeProfitOrderID string
	BrokerFillPrice float64
	BrokerFillTime  time.Time
	Version        int
	IdempotencyKey string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ClosedAt       *time.Time
}

// StateTransition is an append-only audit row recording one status change.
type StateTransition struct {
	ID         string
	TradeID    string
	FromStatus *Status
	ToStatus   Status
	Trigger    string
	Metadata   map[string]interface{}
	CreatedAt  time.Time
}

// SnapshotKind labels why a PriceSnapshot was captured.
type SnapshotKind string

const (
	SnapshotPeriodic    SnapshotKind = "PERIODIC"
	SnapshotPreSession  SnapshotKind = "PRE_SESSION"
	SnapshotPostSession SnapshotKind = "POST_SESSION"
	SnapshotOnClose     SnapshotKind = "ON_CLOSE"
)

// PriceSnapshot is an append-only time-series row capturing a trade's
// marked price and greeks at some point in its life.
type PriceSnapshot struct {
	ID              string
	TradeID         string
	Username        string
	Timestamp       time.Time
	Mark            float64
	Bid             float64
	Ask             float64
	Delta           float64
	ImpliedVolatility float64
	UnderlyingPrice float64
	Kind            SnapshotKind
}

// UserSettings is keyed by user. Tokens are always stored encrypted by the
// caller before reaching the store.
type UserSettings struct {
	Username              string
	BrokerMode            BrokerMode
	EncryptedSandboxToken []byte
	EncryptedLiveToken    []byte
	BrokerAccountID       string
	AccountBalance        float64
	MaxConcurrentPositions int
	DailyLossLimit        float64
	PortfolioHeatLimit    float64
	DefaultStopLossPct    float64
	DefaultTakeProfitPct  float64
	UIPreferences         map[string]interface{}
}

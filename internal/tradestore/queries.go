package tradestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/quantleaf/optrader/internal/errs"
	"github.com/quantleaf/optrader/internal/trading"
)

// pgTx is the subset of pgx.Tx that queries.go needs; it lets withUser
// accept either a pool transaction or (in tests) a fake.
type pgTx interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconnCommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// pgconnCommandTag mirrors pgconn.CommandTag's RowsAffected method so this
// file doesn't need to import pgconn directly for the interface.
type pgconnCommandTag interface {
	RowsAffected() int64
}

// poolTx adapts *pgxpool.Tx (really pgx.Tx) to pgTx.
type poolTx struct {
	pgx.Tx
}

func (t poolTx) Exec(ctx context.Context, sql string, args ...interface{}) (pgconnCommandTag, error) {
	tag, err := t.Tx.Exec(ctx, sql, args...)
	return tag, err
}

var _ pgTx = poolTx{}

// ErrNotFound is returned when a lookup matches no row under the
// caller's row-level-security scope.
var ErrNotFound = errors.New("tradestore: not found")

// ErrIdempotentDuplicate is returned by Create when the idempotency key
// already exists; the caller should fetch and return the existing trade.
var ErrIdempotentDuplicate = errors.New("tradestore: idempotency key already used")

// Create inserts a new trade and its initial state-transition row in one
// transaction. If the idempotency key has already been used, it returns
// ErrIdempotentDuplicate without creating a duplicate.
func (s *Store) Create(ctx context.Context, t *trading.Trade) error {
	return s.withUser(ctx, t.Username, func(tx pgTx) error {
		contextJSON, err := json.Marshal(t.ScoreContext)
		if err != nil {
			return fmt.Errorf("marshal trade_context: %w", err)
		}

		row := tx.QueryRow(ctx, `
			INSERT INTO paper_trades (
				username, ticker, option_type, strike, expiry, direction,
				entry_price, quantity, stop_loss_price, take_profit_price,
				status, strategy_label, trade_context, broker_mode,
				idempotency_key
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
			ON CONFLICT (idempotency_key) DO NOTHING
			RETURNING id, version, created_at, updated_at
		`,
			t.Username, t.Ticker, t.OptionType, t.Strike, t.Expiry, t.Direction,
			t.EntryPrice, t.Quantity, t.StopLossPrice, t.TakeProfitPrice,
			trading.StatusPending, t.StrategyLabel, contextJSON, t.BrokerMode,
			t.IdempotencyKey,
		)
		if err := row.Scan(&t.ID, &t.Version, &t.CreatedAt, &t.UpdatedAt); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrIdempotentDuplicate
			}
			return fmt.Errorf("insert trade: %w", err)
		}
		t.Status = trading.StatusPending

		if _, err := tx.Exec(ctx, `
			INSERT INTO state_transitions (trade_id, username, from_status, to_status, trigger, metadata)
			VALUES ($1,$2,NULL,$3,$4,$5)
		`, t.ID, t.Username, trading.StatusPending, "create", contextJSON); err != nil {
			return fmt.Errorf("insert creation transition: %w", err)
		}
		return nil
	})
}

// Get fetches a trade by ID, scoped to username via row-level security.
func (s *Store) Get(ctx context.Context, username, id string) (*trading.Trade, error) {
	var t trading.Trade
	var contextJSON []byte
	err := s.withUser(ctx, username, func(tx pgTx) error {
		row := tx.QueryRow(ctx, `
			SELECT id, username, ticker, option_type, strike, expiry, direction,
			       entry_price, quantity,
			       COALESCE(stop_loss_price,0), COALESCE(take_profit_price,0),
			       COALESCE(current_mark,0), COALESCE(unrealized_pnl,0),
			       status, strategy_label, COALESCE(trade_context,'{}'),
			       broker_mode, version, idempotency_key, created_at, updated_at
			FROM paper_trades WHERE id = $1
		`, id)
		return row.Scan(
			&t.ID, &t.Username, &t.Ticker, &t.OptionType, &t.Strike, &t.Expiry, &t.Direction,
			&t.EntryPrice, &t.Quantity,
			&t.StopLossPrice, &t.TakeProfitPrice,
			&t.CurrentMark, &t.UnrealizedPnL,
			&t.Status, &t.StrategyLabel, &contextJSON,
			&t.BrokerMode, &t.Version, &t.IdempotencyKey, &t.CreatedAt, &t.UpdatedAt,
		)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get trade: %w", err)
	}
	_ = json.Unmarshal(contextJSON, &t.ScoreContext)
	return &t, nil
}

// Transition moves a trade to a new status under an optimistic-locking
// guard: the UPDATE only succeeds if the row's version still matches what
// the caller last observed. A zero-rows-affected result means another
// writer raced ahead, and is surfaced as errs.KindConcurrentModified so
// callers can retry or abandon, per the trade lifecycle's single-writer
// invariant.
func (s *Store) Transition(ctx context.Context, username, id string, expectedVersion int, to trading.Status, trigger string, metadata map[string]interface{}) error {
	return s.withUser(ctx, username, func(tx pgTx) error {
		var fromStatus trading.Status
		if err := tx.QueryRow(ctx, `SELECT status FROM paper_trades WHERE id = $1`, id).Scan(&fromStatus); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("read current status: %w", err)
		}
		if err := trading.RequireTransition(fromStatus, to); err != nil {
			return err
		}

		closedAtClause := ""
		if trading.TerminalStatuses[to] {
			closedAtClause = ", closed_at = now()"
		}

		tag, err := tx.Exec(ctx, fmt.Sprintf(`
			UPDATE paper_trades
			SET status = $1, version = version + 1, updated_at = now()%s
			WHERE id = $2 AND version = $3
		`, closedAtClause), to, id, expectedVersion)
		if err != nil {
			return fmt.Errorf("update trade status: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return errs.ConcurrentModification(id)
		}

		metaJSON, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("marshal transition metadata: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO state_transitions (trade_id, username, from_status, to_status, trigger, metadata)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, id, username, fromStatus, to, trigger, metaJSON); err != nil {
			return fmt.Errorf("insert transition row: %w", err)
		}
		return nil
	})
}

// CloseWithPnL is Transition specialised for terminal CLOSED status: it
// also records exit_price, realized_pnl and close_reason atomically with
// the version bump.
func (s *Store) CloseWithPnL(ctx context.Context, username, id string, expectedVersion int, exitPrice, realizedPnL float64, closeReason string) error {
	return s.withUser(ctx, username, func(tx pgTx) error {
		var fromStatus trading.Status
		if err := tx.QueryRow(ctx, `SELECT status FROM paper_trades WHERE id = $1`, id).Scan(&fromStatus); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("read current status: %w", err)
		}
		if err := trading.RequireTransition(fromStatus, trading.StatusClosed); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, `
			UPDATE paper_trades
			SET status = $1, exit_price = $2, realized_pnl = $3, close_reason = $4,
			    version = version + 1, updated_at = now(), closed_at = now()
			WHERE id = $5 AND version = $6
		`, trading.StatusClosed, exitPrice, realizedPnL, closeReason, id, expectedVersion)
		if err != nil {
			return fmt.Errorf("close trade: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return errs.ConcurrentModification(id)
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO state_transitions (trade_id, username, from_status, to_status, trigger, metadata)
			VALUES ($1,$2,$3,$4,'close',$5)
		`, id, username, fromStatus, trading.StatusClosed,
			mustJSON(map[string]interface{}{"exit_price": exitPrice, "realized_pnl": realizedPnL, "reason": closeReason})); err != nil {
			return fmt.Errorf("insert close transition: %w", err)
		}
		return nil
	})
}

// UpdateMark persists a trade's latest mark and unrealized P&L. Unlike
// Transition, this does not bump version or touch status: it is called
// once per open trade on every live-price-poll cycle and isn't gated by
// optimistic locking, since concurrent writers never race on these two
// columns alone.
func (s *Store) UpdateMark(ctx context.Context, username, id string, mark, unrealizedPnL float64) error {
	return s.withUser(ctx, username, func(tx pgTx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE paper_trades
			SET current_mark = $1, unrealized_pnl = $2, updated_at = now()
			WHERE id = $3
		`, mark, unrealizedPnL, id)
		if err != nil {
			return fmt.Errorf("update mark: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// InsertSnapshot appends a price/greeks snapshot row.
func (s *Store) InsertSnapshot(ctx context.Context, snap trading.PriceSnapshot) error {
	return s.withUser(ctx, snap.Username, func(tx pgTx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO price_snapshots (
				trade_id, username, "timestamp", mark, bid, ask, delta,
				implied_volatility, underlying_price, kind
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		`, snap.TradeID, snap.Username, snap.Timestamp, snap.Mark, snap.Bid, snap.Ask,
			snap.Delta, snap.ImpliedVolatility, snap.UnderlyingPrice, snap.Kind)
		return err
	})
}

// OpenTrades lists every non-terminal trade for a user, used by the
// scheduler's live-price and reconciliation jobs. It loads trade_context
// and created_at, not just the pricing fields, because the live-price-poll
// job reconstructs each trade's attached exit plan from trade_context via
// Trade.ExitPlan, which also needs created_at to re-derive days-to-earnings.
func (s *Store) OpenTrades(ctx context.Context, username string) ([]*trading.Trade, error) {
	var out []*trading.Trade
	err := s.withUser(ctx, username, func(tx pgTx) error {
		rows, err := tx.Query(ctx, `
			SELECT id, ticker, option_type, strike, expiry, direction,
			       entry_price, quantity, status, version,
			       COALESCE(trade_context,'{}'), created_at,
			       COALESCE(entry_order_id,''), COALESCE(stop_order_id,''),
			       COALESCE(take_profit_order_id,'')
			FROM paper_trades
			WHERE username = $1 AND status NOT IN ('CLOSED','EXPIRED','CANCELED')
		`, username)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			t := &trading.Trade{Username: username}
			var contextJSON []byte
			if err := rows.Scan(&t.ID, &t.Ticker, &t.OptionType, &t.Strike, &t.Expiry,
				&t.Direction, &t.EntryPrice, &t.Quantity, &t.Status, &t.Version,
				&contextJSON, &t.CreatedAt,
				&t.EntryOrderID, &t.StopOrderID, &t.TakeProfitOrderID); err != nil {
				return err
			}
			_ = json.Unmarshal(contextJSON, &t.ScoreContext)
			out = append(out, t)
		}
		return rows.Err()
	})
	return out, err
}

// ClosedTrades lists every trade that reached CLOSED for a user, ordered by
// close time, used by internal/analytics to compute performance summaries.
func (s *Store) ClosedTrades(ctx context.Context, username string) ([]*trading.Trade, error) {
	var out []*trading.Trade
	err := s.withUser(ctx, username, func(tx pgTx) error {
		rows, err := tx.Query(ctx, `
			SELECT id, ticker, option_type, strategy_label, entry_price,
			       COALESCE(exit_price, 0), COALESCE(realized_pnl, 0), quantity,
			       created_at, closed_at
			FROM paper_trades
			WHERE username = $1 AND status = 'CLOSED'
			ORDER BY closed_at ASC
		`, username)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			t := &trading.Trade{Username: username}
			var exitPrice, realizedPnL float64
			if err := rows.Scan(&t.ID, &t.Ticker, &t.OptionType, &t.StrategyLabel, &t.EntryPrice,
				&exitPrice, &realizedPnL, &t.Quantity, &t.CreatedAt, &t.ClosedAt); err != nil {
				return err
			}
			t.ExitPrice = &exitPrice
			t.RealizedPnL = &realizedPnL
			t.Status = trading.StatusClosed
			out = append(out, t)
		}
		return rows.Err()
	})
	return out, err
}

// ListUsernames returns every username with a settings row, used by the
// scheduler to fan its per-user jobs (price poll, bookends, orphan
// guard, reconciliation) out across all configured accounts. This
// bypasses row-level security on purpose — it is the one place the
// engine needs a cross-user view.
func (s *Store) ListUsernames(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT username FROM user_settings`)
	if err != nil {
		return nil, fmt.Errorf("list usernames: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// GetUserSettings fetches per-user broker and risk configuration.
func (s *Store) GetUserSettings(ctx context.Context, username string) (*trading.UserSettings, error) {
	var u trading.UserSettings
	var prefsJSON []byte
	err := s.withUser(ctx, username, func(tx pgTx) error {
		row := tx.QueryRow(ctx, `
			SELECT username, broker_mode,
			       COALESCE(encrypted_sandbox_token, ''), COALESCE(encrypted_live_token, ''),
			       COALESCE(broker_account_id, ''), account_balance,
			       max_concurrent_positions, daily_loss_limit, portfolio_heat_limit,
			       COALESCE(default_stop_loss_pct, 0), COALESCE(default_take_profit_pct, 0),
			       COALESCE(ui_preferences, '{}')
			FROM user_settings WHERE username = $1
		`, username)
		return row.Scan(&u.Username, &u.BrokerMode, &u.EncryptedSandboxToken, &u.EncryptedLiveToken,
			&u.BrokerAccountID, &u.AccountBalance, &u.MaxConcurrentPositions, &u.DailyLossLimit,
			&u.PortfolioHeatLimit, &u.DefaultStopLossPct, &u.DefaultTakeProfitPct, &prefsJSON)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user settings: %w", err)
	}
	_ = json.Unmarshal(prefsJSON, &u.UIPreferences)
	return &u, nil
}

// UpsertUserSettings creates or updates a user's settings row.
func (s *Store) UpsertUserSettings(ctx context.Context, u trading.UserSettings) error {
	prefsJSON, err := json.Marshal(u.UIPreferences)
	if err != nil {
		return fmt.Errorf("marshal ui_preferences: %w", err)
	}
	return s.withUser(ctx, u.Username, func(tx pgTx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO user_settings (
				username, broker_mode, encrypted_sandbox_token, encrypted_live_token,
				broker_account_id, account_balance, max_concurrent_positions,
				daily_loss_limit, portfolio_heat_limit, default_stop_loss_pct,
				default_take_profit_pct, ui_preferences, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12, now())
			ON CONFLICT (username) DO UPDATE SET
				broker_mode = EXCLUDED.broker_mode,
				encrypted_sandbox_token = EXCLUDED.encrypted_sandbox_token,
				encrypted_live_token = EXCLUDED.encrypted_live_token,
				broker_account_id = EXCLUDED.broker_account_id,
				account_balance = EXCLUDED.account_balance,
				max_concurrent_positions = EXCLUDED.max_concurrent_positions,
				daily_loss_limit = EXCLUDED.daily_loss_limit,
				portfolio_heat_limit = EXCLUDED.portfolio_heat_limit,
				default_stop_loss_pct = EXCLUDED.default_stop_loss_pct,
				default_take_profit_pct = EXCLUDED.default_take_profit_pct,
				ui_preferences = EXCLUDED.ui_preferences,
				updated_at = now()
		`, u.Username, u.BrokerMode, u.EncryptedSandboxToken, u.EncryptedLiveToken,
			u.BrokerAccountID, u.AccountBalance, u.MaxConcurrentPositions,
			u.DailyLossLimit, u.PortfolioHeatLimit, u.DefaultStopLossPct,
			u.DefaultTakeProfitPct, prefsJSON)
		return err
	})
}

func mustJSON(v interface{}) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return b
}

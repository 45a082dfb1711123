package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quantleaf/optrader/internal/errs"
)

// OrderSide is a broker order's buy/sell-to-open/close direction.
type OrderSide string

const (
	SideBuyToOpen    OrderSide = "buy_to_open"
	SideSellToClose  OrderSide = "sell_to_close"
	SideBuyToClose   OrderSide = "buy_to_close"
	SideSellToOpen   OrderSide = "sell_to_open"
)

// OrderRequest places a single-leg option order.
type OrderRequest struct {
	Symbol   string // OCC symbol
	Side     OrderSide
	Quantity int
	Type     string // "market", "limit", "stop", "stop_limit"
	Price    float64
	Stop     float64
	Duration string // "day", "gtc"
}

// OrderStatus is the broker's reported lifecycle state for one order.
type OrderStatus struct {
	ID               string
	Status           string
	ReasonDescription string
}

// defaultLimitFloorPct is the default fraction of the stop price used as the
// stop-limit leg's limit price, keeping the stop leg from ever being a
// naked stop order.
const defaultLimitFloorPct = 0.80

// PlaceOrder submits a single-leg order, then guards against the
// "200 OK but rejected downstream" case: Tradier-shaped brokers can
// accept a POST and still reject the order a moment later, so the order
// resource is polled up to three times before trusting it.
func (c *Client) PlaceOrder(ctx context.Context, req OrderRequest) (string, error) {
	payload := url.Values{
		"class":    {"option"},
		"symbol":   {req.Symbol},
		"side":     {string(req.Side)},
		"quantity": {strconv.Itoa(req.Quantity)},
		"type":     {orDefault(req.Type, "market")},
		"duration": {orDefault(req.Duration, "day")},
	}
	if req.Price > 0 {
		payload.Set("price", strconv.FormatFloat(req.Price, 'f', 2, 64))
	}
	if req.Stop > 0 {
		payload.Set("stop", strconv.FormatFloat(req.Stop, 'f', 2, 64))
	}

	resp, err := c.request(ctx, "POST", fmt.Sprintf("/accounts/%s/orders", c.accountID), formBody(payload))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result struct {
		Order struct {
			ID     json.Number `json:"id"`
			Status string      `json:"status"`
		} `json:"order"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode order response: %w", err)
	}
	orderID := result.Order.ID.String()
	if orderID == "" {
		orderID = uuid.NewString()
	}

	time.Sleep(orderConfirmDelay)
	confirmation := c.confirmOrder(ctx, orderID)
	if confirmation.Status == "rejected" {
		return "", errs.OrderRejected(orderID, confirmation.ReasonDescription)
	}
	return orderID, nil
}

// confirmOrder polls GetOrder up to orderConfirmMaxRetries times. Any
// terminal or accepted-but-pending status is returned as-is; if every
// attempt comes back inconclusive, it returns status "unknown" rather
// than erroring, matching the reference broker's log-and-continue.
func (c *Client) confirmOrder(ctx context.Context, orderID string) OrderStatus {
	for attempt := 0; attempt < orderConfirmMaxRetries; attempt++ {
		order, err := c.GetOrder(ctx, orderID)
		if err == nil {
			switch order.Status {
			case "filled", "partially_filled", "rejected", "canceled", "expired", "pending", "open":
				return order
			}
		}
		if attempt < orderConfirmMaxRetries-1 {
			time.Sleep(orderConfirmRetryDelay)
		}
	}
	return OrderStatus{ID: orderID, Status: "unknown"}
}

// BracketRequest describes the two legs of an OCO stop-loss/take-profit
// pair around an existing position.
type BracketRequest struct {
	Symbol        string
	Quantity      int
	StopPrice     float64
	TakeProfitPrice float64
	LimitFloorPct float64 // defaults to 0.80 if zero
}

// PlaceOCOBracket submits a two-leg One-Cancels-Other order: a stop-limit
// leg (never a naked stop — its limit price floors at LimitFloorPct of
// the stop price) and a limit leg at the take-profit price.
func (c *Client) PlaceOCOBracket(ctx context.Context, req BracketRequest) (stopOrderID, tpOrderID string, err error) {
	floorPct := req.LimitFloorPct
	if floorPct <= 0 {
		floorPct = defaultLimitFloorPct
	}
	stopLimitPrice := req.StopPrice * floorPct

	payload := url.Values{
		"class":      {"oco"},
		"duration":   {"gtc"},
		"side[0]":    {string(SideSellToClose)},
		"symbol[0]":  {req.Symbol},
		"quantity[0]": {strconv.Itoa(req.Quantity)},
		"type[0]":    {"stop_limit"},
		"stop[0]":    {strconv.FormatFloat(req.StopPrice, 'f', 2, 64)},
		"price[0]":   {strconv.FormatFloat(stopLimitPrice, 'f', 2, 64)},
		"side[1]":    {string(SideSellToClose)},
		"symbol[1]":  {req.Symbol},
		"quantity[1]": {strconv.Itoa(req.Quantity)},
		"type[1]":    {"limit"},
		"price[1]":   {strconv.FormatFloat(req.TakeProfitPrice, 'f', 2, 64)},
	}

	resp, err := c.request(ctx, "POST", fmt.Sprintf("/accounts/%s/orders", c.accountID), formBody(payload))
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	var result struct {
		Order struct {
			ID json.Number `json:"id"`
		} `json:"order"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", "", fmt.Errorf("decode OCO response: %w", err)
	}
	id := result.Order.ID.String()
	return id, id, nil
}

// CancelOrder cancels an open order, returning false on any broker error
// rather than propagating it — cancellation is best-effort cleanup.
func (c *Client) CancelOrder(ctx context.Context, orderID string) bool {
	resp, err := c.request(ctx, "DELETE", fmt.Sprintf("/accounts/%s/orders/%s", c.accountID, orderID), nil)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == 200
}

// GetOrder fetches one order's current status.
func (c *Client) GetOrder(ctx context.Context, orderID string) (OrderStatus, error) {
	resp, err := c.request(ctx, "GET", fmt.Sprintf("/accounts/%s/orders/%s", c.accountID, orderID), nil)
	if err != nil {
		return OrderStatus{}, err
	}
	defer resp.Body.Close()

	var wire struct {
		Order struct {
			ID                json.Number `json:"id"`
			Status            string      `json:"status"`
			ReasonDescription string      `json:"reason_description"`
		} `json:"order"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return OrderStatus{}, fmt.Errorf("decode order: %w", err)
	}
	return OrderStatus{ID: wire.Order.ID.String(), Status: wire.Order.Status, ReasonDescription: wire.Order.ReasonDescription}, nil
}

// GetOrders lists every order on the account. The broker reports an
// absent order list as the literal string "null" rather than omitting
// the field or returning an empty array, and a single order as an object
// instead of a one-element array; both are normalized away here.
func (c *Client) GetOrders(ctx context.Context) ([]OrderStatus, error) {
	resp, err := c.request(ctx, "GET", fmt.Sprintf("/accounts/%s/orders", c.accountID), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var raw struct {
		Orders json.RawMessage `json:"orders"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode orders: %w", err)
	}
	return decodeOrderList(raw.Orders)
}

func decodeOrderList(raw json.RawMessage) ([]OrderStatus, error) {
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return nil, nil // "null" sentinel, or a genuinely empty string
	}

	var wrapper struct {
		Order json.RawMessage `json:"order"`
	}
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return nil, fmt.Errorf("decode orders wrapper: %w", err)
	}
	return decodeOneOrMany(wrapper.Order)
}

func decodeOneOrMany(raw json.RawMessage) ([]OrderStatus, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var list []struct {
		ID                json.Number `json:"id"`
		Status            string      `json:"status"`
		ReasonDescription string      `json:"reason_description"`
	}
	if err := json.Unmarshal(raw, &list); err == nil {
		out := make([]OrderStatus, len(list))
		for i, o := range list {
			out[i] = OrderStatus{ID: o.ID.String(), Status: o.Status, ReasonDescription: o.ReasonDescription}
		}
		return out, nil
	}

	var single struct {
		ID                json.Number `json:"id"`
		Status            string      `json:"status"`
		ReasonDescription string      `json:"reason_description"`
	}
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, fmt.Errorf("decode order entry: %w", err)
	}
	return []OrderStatus{{ID: single.ID.String(), Status: single.Status, ReasonDescription: single.ReasonDescription}}, nil
}

func formBody(values url.Values) io.Reader {
	return strings.NewReader(values.Encode())
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

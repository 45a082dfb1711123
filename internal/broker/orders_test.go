package broker

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	c := New(Config{Environment: Sandbox, AccessToken: "tok", AccountID: "ACC1", Logger: zerolog.Nop()})
	c.baseURL = srv.URL
	return c, srv
}

func TestPlaceOrder_ConfirmsFillAfterPolling(t *testing.T) {
	calls := 0
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		switch {
		case r.Method == "POST":
			fmt.Fprint(w, `{"order":{"id":"101","status":"pending"}}`)
		case r.Method == "GET":
			fmt.Fprint(w, `{"order":{"id":"101","status":"filled"}}`)
		}
	})
	defer srv.Close()

	orderID, err := c.PlaceOrder(context.Background(), OrderRequest{Symbol: "AAPL260320C00200000", Side: SideBuyToOpen, Quantity: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if orderID != "101" {
		t.Fatalf("expected order id 101, got %s", orderID)
	}
}

func TestPlaceOrder_RejectedDownstreamReturnsOrderRejected(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case "POST":
			fmt.Fprint(w, `{"order":{"id":"102","status":"pending"}}`)
		case "GET":
			fmt.Fprint(w, `{"order":{"id":"102","status":"rejected","reason_description":"insufficient funds"}}`)
		}
	})
	defer srv.Close()

	_, err := c.PlaceOrder(context.Background(), OrderRequest{Symbol: "AAPL260320C00200000", Side: SideBuyToOpen, Quantity: 1})
	if err == nil {
		t.Fatal("expected an OrderRejected error")
	}
}

func TestPlaceOCOBracket_BuildsFloorPricedStopLimitLeg(t *testing.T) {
	var capturedBody string
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		capturedBody = r.Form.Encode()
		fmt.Fprint(w, `{"order":{"id":"500"}}`)
	})
	defer srv.Close()

	_, _, err := c.PlaceOCOBracket(context.Background(), BracketRequest{
		Symbol: "AAPL260320C00200000", Quantity: 1, StopPrice: 5.00, TakeProfitPrice: 10.00,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !contains(capturedBody, "stop%5B0%5D=5.00") || !contains(capturedBody, "price%5B0%5D=4.00") {
		t.Fatalf("expected stop leg floored at 0.80*stop (4.00), got body %q", capturedBody)
	}
	if !contains(capturedBody, "price%5B1%5D=10.00") {
		t.Fatalf("expected take-profit leg at 10.00, got body %q", capturedBody)
	}
}

func TestCancelOrder_ReturnsFalseOnBrokerError(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	defer srv.Close()

	if c.CancelOrder(context.Background(), "999") {
		t.Fatal("expected cancellation to report false on broker error")
	}
}

func TestGetOrders_NormalizesNullSentinelToEmptySlice(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"orders":"null"}`)
	})
	defer srv.Close()

	orders, err := c.GetOrders(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(orders) != 0 {
		t.Fatalf("expected zero orders, got %d", len(orders))
	}
}

func TestGetOrders_NormalizesSingleObjectToOneElementSlice(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"orders":{"order":{"id":"7","status":"open"}}}`)
	})
	defer srv.Close()

	orders, err := c.GetOrders(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(orders) != 1 || orders[0].ID != "7" {
		t.Fatalf("expected one order with id 7, got %+v", orders)
	}
}

func contains(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}

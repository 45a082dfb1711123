package broker

import (
	"testing"
	"time"

	"github.com/quantleaf/optrader/internal/domain"
)

func TestBuildOCCSymbol_KnownExample(t *testing.T) {
	expiry := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)
	got := BuildOCCSymbol("AAPL", expiry, domain.Call, 200)
	want := "AAPL260320C00200000"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestOCCSymbol_RoundTripsForVariousStrikes(t *testing.T) {
	strikes := []float64{0.5, 1, 12.5, 100, 200.125, 4999.875}
	expiry := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)
	for _, strike := range strikes {
		for _, side := range []domain.OptionType{domain.Call, domain.Put} {
			symbol := BuildOCCSymbol("SPX", expiry, side, strike)
			ticker, gotExpiry, gotSide, gotStrike, err := ParseOCCSymbol(symbol)
			if err != nil {
				t.Fatalf("strike %v side %v: %v", strike, side, err)
			}
			if ticker != "SPX" {
				t.Errorf("strike %v: ticker = %q, want SPX", strike, ticker)
			}
			if !gotExpiry.Equal(expiry) {
				t.Errorf("strike %v: expiry = %v, want %v", strike, gotExpiry, expiry)
			}
			if gotSide != side {
				t.Errorf("strike %v: side = %v, want %v", strike, gotSide, side)
			}
			if gotStrike != strike {
				t.Errorf("strike %v: parsed strike = %v", strike, gotStrike)
			}
		}
	}
}

func TestParseOCCSymbol_RejectsMalformedInput(t *testing.T) {
	if _, _, _, _, err := ParseOCCSymbol("notanoccsymbol"); err == nil {
		t.Fatal("expected an error for a malformed symbol")
	}
}

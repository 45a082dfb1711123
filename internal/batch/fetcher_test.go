package batch

import (
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestRun_CollectsSuccessfulResultsOnly(t *testing.T) {
	f := New[int](4, zerolog.Nop())
	tickers := []string{"AAPL", "MSFT", "BADTICKER", "GOOG"}

	results := f.Run(tickers, func(ticker string) (int, error) {
		if ticker == "BADTICKER" {
			return 0, fmt.Errorf("no data")
		}
		return len(ticker), nil
	})

	assert.Len(t, results, 3)
	assert.NotContains(t, results, "BADTICKER")
	assert.Equal(t, 4, results["AAPL"])
}

func TestRun_EmptyTickersReturnsEmptyMap(t *testing.T) {
	f := New[int](4, zerolog.Nop())
	results := f.Run(nil, func(ticker string) (int, error) { return 0, nil })
	assert.Empty(t, results)
}

func TestRun_FewerTickersThanWorkersDoesNotDeadlock(t *testing.T) {
	f := New[int](16, zerolog.Nop())
	results := f.Run([]string{"A"}, func(ticker string) (int, error) { return 1, nil })
	assert.Equal(t, 1, results["A"])
}

package broker

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/quantleaf/optrader/internal/domain"
)

// BuildOCCSymbol constructs a standard OCC option symbol:
// {TICKER}{YYMMDD}{C|P}{STRIKE*1000, zero-padded to 8 digits}.
// e.g. AAPL, 2026-03-20, CALL, 200 -> AAPL260320C00200000.
func BuildOCCSymbol(ticker string, expiry time.Time, optionType domain.OptionType, strike float64) string {
	typeChar := "C"
	if optionType == domain.Put {
		typeChar = "P"
	}
	strikeThousandths := int64(strike*1000 + 0.5)
	return fmt.Sprintf("%s%s%s%08d", strings.ToUpper(ticker), expiry.Format("060102"), typeChar, strikeThousandths)
}

// ParseOCCSymbol recovers (ticker, expiry, optionType, strike) from an OCC
// symbol. The ticker is the run of characters before the first digit,
// which is why the Build/Parse pair is a closed property for strikes up
// to 3 decimal places but not for tickers containing digits.
func ParseOCCSymbol(symbol string) (ticker string, expiry time.Time, optionType domain.OptionType, strike float64, err error) {
	digitIdx := -1
	for i, r := range symbol {
		if r >= '0' && r <= '9' {
			digitIdx = i
			break
		}
	}
	if digitIdx < 0 || len(symbol) < digitIdx+15 {
		return "", time.Time{}, "", 0, fmt.Errorf("malformed OCC symbol %q", symbol)
	}

	ticker = symbol[:digitIdx]
	dateAndRest := symbol[digitIdx:]
	expiry, err = time.Parse("060102", dateAndRest[:6])
	if err != nil {
		return "", time.Time{}, "", 0, fmt.Errorf("parse OCC expiry: %w", err)
	}

	typeChar := dateAndRest[6]
	switch typeChar {
	case 'C':
		optionType = domain.Call
	case 'P':
		optionType = domain.Put
	default:
		return "", time.Time{}, "", 0, fmt.Errorf("unknown OCC option type char %q", typeChar)
	}

	strikeDigits := dateAndRest[7:15]
	strikeThousandths, err := strconv.ParseInt(strikeDigits, 10, 64)
	if err != nil {
		return "", time.Time{}, "", 0, fmt.Errorf("parse OCC strike: %w", err)
	}
	strike = float64(strikeThousandths) / 1000.0

	return ticker, expiry, optionType, strike, nil
}

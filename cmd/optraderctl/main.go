// Command optraderctl is the informational-script surface: ticker refresh,
// broker connectivity checks, and a one-shot regression smoke test. None of
// it touches the trade store or places live orders; each subcommand is
// meant to run from an operator's shell or a CI step and exit 0 or 1.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/quantleaf/optrader/internal/analysis/technical"
	"github.com/quantleaf/optrader/internal/backtester"
	"github.com/quantleaf/optrader/internal/broker"
	"github.com/quantleaf/optrader/internal/domain"
	"github.com/quantleaf/optrader/internal/exitplan"
	"github.com/quantleaf/optrader/internal/providers/fundamentals"
	"github.com/quantleaf/optrader/internal/providers/httpclient"
	"github.com/quantleaf/optrader/internal/providers/result"
)

var (
	tickersFlag    string
	tickersFile    string
	fundamentalsKey string

	brokerEnv string
)

func requireNoError(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err.Error())
		os.Exit(1)
	}
}

func main() {
	rootCmd.AddCommand(refreshTickersCmd)
	refreshTickersCmd.Flags().StringVarP(&tickersFlag, "tickers", "t", "", "Comma-separated ticker list to validate")
	refreshTickersCmd.Flags().StringVarP(&tickersFile, "file", "f", "", "Newline-delimited file of tickers to validate")
	refreshTickersCmd.Flags().StringVarP(&fundamentalsKey, "key", "k", "", "Fundamentals provider API key (or FUNDAMENTALS_API_KEY envvar)")

	rootCmd.AddCommand(checkConnectivityCmd)
	checkConnectivityCmd.Flags().StringVarP(&brokerEnv, "environment", "e", "sandbox", "Broker environment: sandbox or live")

	rootCmd.AddCommand(regressionSmokeCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "optraderctl",
	Short: "optraderctl runs informational maintenance and smoke-test scripts for optrader.",
}

var refreshTickersCmd = &cobra.Command{
	Use:     "refresh-tickers",
	Short:   "Fetches fundamentals for each ticker and prints pass/fail: pass means the provider returned a record; no ROE or gross-margin threshold is applied.",
	Args:    cobra.ArbitraryArgs,
	Run: func(cmd *cobra.Command, args []string) {
		tickers := collectTickers(args)
		if len(tickers) == 0 {
			fmt.Fprint(os.Stderr, "must pass tickers as arguments, --tickers, or --file\n")
			os.Exit(1)
		}

		apiKey := fundamentalsKey
		if apiKey == "" {
			apiKey = os.Getenv("FUNDAMENTALS_API_KEY")
		}

		log := zerolog.New(os.Stderr).With().Timestamp().Logger()
		client := fundamentals.New(httpclient.New(httpclient.Config{
			BaseURL:        "https://api.fundamentals.example.com",
			MaxCalls:       60,
			Period:         time.Minute,
			RetryMax:       3,
			RequestTimeout: 10 * time.Second,
			Logger:         log,
		}), apiKey, log)

		if !client.IsConfigured() {
			fmt.Fprint(os.Stderr, "fundamentals provider not configured, skipping live validation\n")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		failures := 0
		for _, ticker := range tickers {
			res := client.GetFundamentals(ctx, ticker)
			switch res.Status() {
			case result.StatusOk:
				data, _ := res.Value()
				fmt.Fprintf(os.Stdout, "%-8s pass  roe=%.2f margin=%.2f rating=%d\n", ticker, data.ReturnOnEquity, data.GrossMargin, data.Rating)
			default:
				failures++
				fmt.Fprintf(os.Stdout, "%-8s fail  %s\n", ticker, res.Reason())
			}
		}
		if failures > 0 {
			os.Exit(1)
		}
	},
}

func collectTickers(args []string) []string {
	var out []string
	out = append(out, args...)
	if tickersFlag != "" {
		for _, t := range strings.Split(tickersFlag, ",") {
			if t = strings.TrimSpace(t); t != "" {
				out = append(out, t)
			}
		}
	}
	if tickersFile != "" {
		raw, err := os.ReadFile(tickersFile)
		requireNoError(err)
		for _, line := range strings.Split(string(raw), "\n") {
			line = strings.TrimSpace(line)
			if line != "" && !strings.HasPrefix(line, "#") {
				out = append(out, line)
			}
		}
	}
	return out
}

var checkConnectivityCmd = &cobra.Command{
	Use:   "check-connectivity",
	Short: "Authenticates against the broker using BROKER_ACCESS_TOKEN/BROKER_ACCOUNT_ID and reports the result.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		token := os.Getenv("BROKER_ACCESS_TOKEN")
		accountID := os.Getenv("BROKER_ACCOUNT_ID")
		if token == "" || accountID == "" {
			fmt.Fprint(os.Stderr, "BROKER_ACCESS_TOKEN and BROKER_ACCOUNT_ID must both be set\n")
			os.Exit(1)
		}

		env := broker.Sandbox
		if strings.EqualFold(brokerEnv, "live") {
			env = broker.Live
		}

		log := zerolog.New(os.Stderr).With().Timestamp().Logger()
		client := broker.New(broker.Config{
			Environment: env,
			AccessToken: token,
			AccountID:   accountID,
			Logger:      log,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		status := client.TestConnection(ctx)
		if !status.Connected {
			fmt.Fprintf(os.Stdout, "not connected (%s): %s\n", status.Environment, status.Error)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stdout, "connected to %s as account %s (%s)\n", status.Environment, status.AccountID, status.Name)
	},
}

var regressionSmokeCmd = &cobra.Command{
	Use:   "regression-smoke",
	Short: "Runs a synthetic backtest through the exit-plan rules with no network or database access, as a quick build-time sanity check.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		plan := exitplan.Build(domain.StrategyWeekly, domain.RegimeNormal, 0.4, 2.50)
		if len(plan.ProfitTargets) == 0 {
			fmt.Fprint(os.Stderr, "smoke test failed: exit plan built with no profit targets\n")
			os.Exit(1)
		}

		bars := make([]backtester.Bar, 10)
		price := 100.0
		for i := range bars {
			bars[i] = backtester.Bar{
				Date:   fmt.Sprintf("2026-01-%02d", i+1),
				Candle: technical.Candle{Open: price, High: price + 1, Low: price - 1, Close: price},
			}
			price += 1.5
		}

		trade, err := backtester.Run(bars, backtester.Config{
			Strategy:            domain.StrategyWeekly,
			Side:                domain.Call,
			Strike:              100,
			ImpliedVol:          0.35,
			Regime:              domain.RegimeNormal,
			DaysToExpiryAtEntry: 9,
			EntryIndex:          0,
		})
		requireNoError(err)

		fmt.Fprintf(os.Stdout, "ok: synthetic trade entry=%.2f exit=%.2f pnl=%.2f reason=%q\n",
			trade.EntryPrice, trade.ExitPrice, trade.PnL, trade.ExitReason)
	},
}

// Package exitplan builds strategy-aware exit plans (stop-loss, tiered
// profit targets, trailing stop, time stop, earnings rule) and evaluates
// them against a live position via should_exit.
package exitplan

import (
	"fmt"

	"github.com/quantleaf/optrader/internal/domain"
)

// EarningsRule labels how a plan treats an upcoming earnings date.
type EarningsRule string

const (
	HoldThrough EarningsRule = "HOLD_THROUGH"
	CloseBefore EarningsRule = "CLOSE_BEFORE"
)

// Earnings proximity windows, in calendar days. Within OuterWindowDays,
// non-long-dated strategies are forced to close-before; within
// InnerWindowDays every strategy (including LEAP) is forced to close-before.
const (
	OuterWindowDays = 5
	InnerWindowDays = 2
)

// ProfitTarget is one tier of a plan's profit-taking ladder.
type ProfitTarget struct {
	PercentGain float64
	Action      string // "sell 33%", "sell 50%", "sell remaining"
	Label       string
	DollarGain  float64 // contract_cost * PercentGain/100, zero premium omits this
}

// Defaults is a strategy's baseline exit parameters before regime/IV/earnings
// adjustments are applied.
type Defaults struct {
	StopLossPct     float64
	TrailingStopPct float64
	ProfitTargets   []ProfitTarget
	TimeStopDTE     int
	EarningsRule    EarningsRule
}

// strategyDefaults holds one baseline table per strategy class. Numbers
// beyond the LEAP row (which is pinned by the worked crisis-regime example)
// are judgment calls recorded in the project's design notes.
var strategyDefaults = map[domain.Strategy]Defaults{
	domain.StrategyLEAP: {
		StopLossPct:     -30,
		TrailingStopPct: 25,
		ProfitTargets: []ProfitTarget{
			{PercentGain: 50, Action: "sell 33%", Label: "first target"},
			{PercentGain: 100, Action: "sell 50%", Label: "second target"},
			{PercentGain: 200, Action: "sell remaining", Label: "final target"},
		},
		TimeStopDTE:  21,
		EarningsRule: HoldThrough,
	},
	domain.StrategyWeekly: {
		StopLossPct:     -25,
		TrailingStopPct: 15,
		ProfitTargets: []ProfitTarget{
			{PercentGain: 25, Action: "sell 33%", Label: "first target"},
			{PercentGain: 50, Action: "sell 50%", Label: "second target"},
			{PercentGain: 100, Action: "sell remaining", Label: "final target"},
		},
		TimeStopDTE:  2,
		EarningsRule: CloseBefore,
	},
	domain.StrategySameDay: {
		StopLossPct:     -15,
		TrailingStopPct: 8,
		ProfitTargets: []ProfitTarget{
			{PercentGain: 15, Action: "sell 33%", Label: "first target"},
			{PercentGain: 30, Action: "sell 50%", Label: "second target"},
			{PercentGain: 60, Action: "sell remaining", Label: "final target"},
		},
		TimeStopDTE:  0,
		EarningsRule: CloseBefore,
	},
}

// Plan is the fully adjusted exit plan for one opportunity or open trade.
type Plan struct {
	Strategy        domain.Strategy
	StopLossPct     float64
	TrailingStopPct float64
	ProfitTargets   []ProfitTarget
	TimeStopDTE     int
	EarningsRule    EarningsRule
	ContractCost    float64 // premium * 100, zero when premium is unknown
	DollarStop      float64
	Summary         string
}

// Build produces the adjusted exit plan for a strategy, regime, IV
// percentile and premium.
func Build(strategy domain.Strategy, regime domain.VIXRegime, ivPercentile, premium float64) Plan {
	d, ok := strategyDefaults[strategy]
	if !ok {
		d = strategyDefaults[domain.StrategyWeekly]
	}

	stop := d.StopLossPct
	trailing := d.TrailingStopPct

	switch regime {
	case domain.RegimeCrisis:
		stop = maxF(-20, stop+10)
		trailing = maxF(10, trailing-5)
	case domain.RegimeElevated:
		stop = maxF(-25, stop+5)
		trailing = maxF(10, trailing-2)
	}

	targets := make([]ProfitTarget, len(d.ProfitTargets))
	copy(targets, d.ProfitTargets)

	if ivPercentile > 80 {
		for i := range targets {
			targets[i].PercentGain *= 0.80
		}
	} else if ivPercentile < 20 {
		trailing += 5
	}

	contractCost := 0.0
	dollarStop := 0.0
	if premium > 0 {
		contractCost = premium * 100
		dollarStop = stop / 100 * contractCost
		for i := range targets {
			targets[i].DollarGain = targets[i].PercentGain / 100 * contractCost
		}
	}

	plan := Plan{
		Strategy:        strategy,
		StopLossPct:     stop,
		TrailingStopPct: trailing,
		ProfitTargets:   targets,
		TimeStopDTE:     d.TimeStopDTE,
		EarningsRule:    d.EarningsRule,
		ContractCost:    contractCost,
		DollarStop:       dollarStop,
	}
	plan.Summary = summarize(plan)
	return plan
}

func summarize(p Plan) string {
	s := fmt.Sprintf("%s plan: stop %.0f%%, trailing %.0f%%, time-stop at %dDTE, earnings=%s",
		p.Strategy, p.StopLossPct, p.TrailingStopPct, p.TimeStopDTE, p.EarningsRule)
	for _, t := range p.ProfitTargets {
		s += fmt.Sprintf("; %s +%.0f%% -> %s", t.Label, t.PercentGain, t.Action)
	}
	return s
}

// EarningsOverride returns the earnings rule actually in force once
// proximity windows are applied: within InnerWindowDays every strategy is
// forced to close-before; within OuterWindowDays non-long-dated strategies
// are forced to close-before.
func EarningsOverride(strategy domain.Strategy, base EarningsRule, daysToEarnings int) EarningsRule {
	if daysToEarnings < 0 {
		return base
	}
	if daysToEarnings <= InnerWindowDays {
		return CloseBefore
	}
	if daysToEarnings <= OuterWindowDays && strategy != domain.StrategyLEAP {
		return CloseBefore
	}
	return base
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

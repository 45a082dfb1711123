package exitplan

// DecisionKind labels why should_exit recommends acting.
type DecisionKind string

const (
	Hold             DecisionKind = "HOLD"
	StopLossHit      DecisionKind = "STOP_LOSS"
	TimeStopHit      DecisionKind = "TIME_STOP"
	ProfitTargetHit  DecisionKind = "PROFIT_TARGET"
	EarningsClose    DecisionKind = "EARNINGS_CLOSE"
)

// Decision is the result of evaluating a live position against its plan.
type Decision struct {
	Kind   DecisionKind
	Action string
	Reason string
}

// ShouldExit evaluates, in order: stop-loss, time-stop, first profit-target
// hit, then the earnings-proximity rule; otherwise hold.
func ShouldExit(pnlPct float64, dteRemaining, daysToEarnings int, plan Plan) Decision {
	if pnlPct <= plan.StopLossPct {
		return Decision{Kind: StopLossHit, Action: "close all", Reason: "stop-loss breached"}
	}

	// TimeStopDTE == 0 is a disabled sentinel, not "stop exactly at
	// expiry" — same-day strategies default to it and must never trigger
	// a time-stop off DTE alone.
	if plan.TimeStopDTE > 0 && dteRemaining <= plan.TimeStopDTE {
		return Decision{Kind: TimeStopHit, Action: "close all", Reason: "time-stop reached"}
	}

	for _, t := range plan.ProfitTargets {
		if pnlPct >= t.PercentGain {
			return Decision{Kind: ProfitTargetHit, Action: t.Action, Reason: t.Label}
		}
	}

	effectiveRule := EarningsOverride(plan.Strategy, plan.EarningsRule, daysToEarnings)
	if effectiveRule == CloseBefore && daysToEarnings >= 0 && daysToEarnings <= OuterWindowDays {
		return Decision{Kind: EarningsClose, Action: "close all", Reason: "earnings proximity"}
	}

	return Decision{Kind: Hold, Action: "hold"}
}

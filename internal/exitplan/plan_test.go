package exitplan

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quantleaf/optrader/internal/domain"
)

func TestBuild_ScenarioOne_LeapCrisisIV90(t *testing.T) {
	p := Build(domain.StrategyLEAP, domain.RegimeCrisis, 90, 6.00)

	assert.InDelta(t, -20, p.StopLossPct, 0.001)
	assert.InDelta(t, 20, p.TrailingStopPct, 0.001)
	assert.InDelta(t, 600, p.ContractCost, 0.001)
	assert.InDelta(t, -120, p.DollarStop, 0.001)

	assert.InDelta(t, 40, p.ProfitTargets[0].PercentGain, 0.001)
	assert.InDelta(t, 80, p.ProfitTargets[1].PercentGain, 0.001)
	assert.InDelta(t, 160, p.ProfitTargets[2].PercentGain, 0.001)
	assert.InDelta(t, 240, p.ProfitTargets[0].DollarGain, 0.001)
}

func TestBuild_LowIVPercentileWidensTrailing(t *testing.T) {
	p := Build(domain.StrategyLEAP, domain.RegimeNormal, 10, 0)
	assert.InDelta(t, 30, p.TrailingStopPct, 0.001) // base 25 + 5
}

func TestShouldExit_StopLossTakesPriorityOverTimeStop(t *testing.T) {
	p := Build(domain.StrategyLEAP, domain.RegimeNormal, 50, 0)
	d := ShouldExit(p.StopLossPct, 0, 100, p)
	assert.Equal(t, StopLossHit, d.Kind)
}

func TestShouldExit_ExactStopLossTriggers(t *testing.T) {
	// stop_loss_pct = -30, current_pnl_pct = -30 triggers stop-loss exactly.
	p := Build(domain.StrategyLEAP, domain.RegimeNormal, 50, 0)
	assert.InDelta(t, -30, p.StopLossPct, 0.001)
	d := ShouldExit(-30, 100, 100, p)
	assert.Equal(t, StopLossHit, d.Kind)
}

func TestShouldExit_TimeStopWhenDTEReached(t *testing.T) {
	p := Build(domain.StrategyWeekly, domain.RegimeNormal, 50, 0)
	d := ShouldExit(0, p.TimeStopDTE, 100, p)
	assert.Equal(t, TimeStopHit, d.Kind)
}

func TestShouldExit_SameDayTimeStopDisabledAtZeroDTE(t *testing.T) {
	// StrategySameDay defaults TimeStopDTE to 0, which must disable the
	// time-stop check entirely rather than fire whenever DTE hits zero.
	p := Build(domain.StrategySameDay, domain.RegimeNormal, 50, 0)
	assert.Equal(t, 0, p.TimeStopDTE)
	d := ShouldExit(5, 0, 100, p)
	assert.Equal(t, Hold, d.Kind)
}

func TestShouldExit_FirstProfitTargetHit(t *testing.T) {
	p := Build(domain.StrategyLEAP, domain.RegimeNormal, 50, 0)
	d := ShouldExit(60, 200, 100, p)
	assert.Equal(t, ProfitTargetHit, d.Kind)
	assert.Equal(t, "sell 33%", d.Action)
}

func TestShouldExit_EarningsCloseWithinInnerWindow(t *testing.T) {
	p := Build(domain.StrategyLEAP, domain.RegimeNormal, 50, 0) // LEAP defaults to hold-through
	d := ShouldExit(0, 200, 1, p)
	assert.Equal(t, EarningsClose, d.Kind)
}

func TestShouldExit_HoldsWhenNothingTriggers(t *testing.T) {
	p := Build(domain.StrategyLEAP, domain.RegimeNormal, 50, 0)
	d := ShouldExit(5, 200, 100, p)
	assert.Equal(t, Hold, d.Kind)
}

func TestEarningsOverride_OuterWindowForcesCloseForNonLeap(t *testing.T) {
	rule := EarningsOverride(domain.StrategyWeekly, HoldThrough, 4)
	assert.Equal(t, CloseBefore, rule)
}

func TestEarningsOverride_OuterWindowLeavesLeapHoldThrough(t *testing.T) {
	rule := EarningsOverride(domain.StrategyLEAP, HoldThrough, 4)
	assert.Equal(t, HoldThrough, rule)
}

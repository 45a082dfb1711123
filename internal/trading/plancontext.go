package trading

import (
	"encoding/json"
	"time"

	"github.com/quantleaf/optrader/internal/exitplan"
)

// Reserved ScoreContext keys holding the exit plan a trade was sized
// against and the days-to-earnings observed at scan time. ScoreContext is
// otherwise a free-form bag of scores/greeks/IV recorded for display, so
// these are namespaced to avoid colliding with a caller's own keys.
const (
	exitPlanContextKey       = "_exit_plan"
	daysToEarningsContextKey = "_days_to_earnings_at_entry"
)

// AttachExitPlan records the exit plan a trade was opened against, plus
// the days-to-earnings observed at scan time, inside its score context so
// the scheduler can reconstruct both at mark-to-market time without a
// second scan.
func AttachExitPlan(t *Trade, plan exitplan.Plan, daysToEarningsAtEntry int) {
	if t.ScoreContext == nil {
		t.ScoreContext = map[string]interface{}{}
	}
	t.ScoreContext[exitPlanContextKey] = plan
	t.ScoreContext[daysToEarningsContextKey] = daysToEarningsAtEntry
}

// ExitPlan reconstructs the plan attached at entry and today's
// days-to-earnings, decremented by the calendar days elapsed since the
// trade was created. The bool is false when no plan was ever attached
// (older trades, or trades opened outside the engine). A negative
// days-to-earnings means earnings has passed or was never known, matching
// exitplan.EarningsOverride's no-override sentinel.
func (t *Trade) ExitPlan() (exitplan.Plan, int, bool) {
	raw, ok := t.ScoreContext[exitPlanContextKey]
	if !ok {
		return exitplan.Plan{}, -1, false
	}

	// ScoreContext round-trips through JSON at the store boundary, so raw
	// may arrive as a map[string]interface{} rather than a Plan value.
	encoded, err := json.Marshal(raw)
	if err != nil {
		return exitplan.Plan{}, -1, false
	}
	var plan exitplan.Plan
	if err := json.Unmarshal(encoded, &plan); err != nil {
		return exitplan.Plan{}, -1, false
	}

	daysAtEntry := -1
	switch v := t.ScoreContext[daysToEarningsContextKey].(type) {
	case int:
		daysAtEntry = v
	case float64:
		daysAtEntry = int(v)
	}
	if daysAtEntry < 0 {
		return plan, -1, true
	}

	elapsed := int(time.Since(t.CreatedAt).Hours() / 24)
	remaining := daysAtEntry - elapsed
	if remaining < 0 {
		remaining = -1
	}
	return plan, remaining, true
}

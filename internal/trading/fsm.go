package trading

import "fmt"

// permittedTransitions enumerates every legal (from, to) edge of the trade
// status state machine. "Any non-terminal -> CANCELED" is expanded
// explicitly rather than special-cased so CanTransition stays a single
// table lookup.
var permittedTransitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusOpen:     true,
		StatusCanceled: true,
	},
	StatusOpen: {
		StatusPartiallyFilled: true,
		StatusClosing:         true,
		StatusExpired:         true,
		StatusCanceled:        true,
	},
	StatusPartiallyFilled: {
		StatusOpen:     true,
		StatusClosing:  true,
		StatusExpired:  true,
		StatusCanceled: true,
	},
	StatusClosing: {
		StatusClosed:   true,
		StatusOpen:     true,
		StatusCanceled: true,
	},
}

// TerminalStatuses are states with no outgoing transitions.
var TerminalStatuses = map[Status]bool{
	StatusClosed:   true,
	StatusExpired:  true,
	StatusCanceled: true,
}

// CanTransition reports whether moving from -> to is a legal edge.
func CanTransition(from, to Status) bool {
	if TerminalStatuses[from] {
		return false
	}
	edges, ok := permittedTransitions[from]
	if !ok {
		return false
	}
	return edges[to]
}

// ErrIllegalTransition is returned by CanTransition callers that choose to
// surface a typed error instead of a bool.
type ErrIllegalTransition struct {
	From, To Status
}

func (e ErrIllegalTransition) Error() string {
	return fmt.Sprintf("illegal trade transition %s -> %s", e.From, e.To)
}

// RequireTransition returns ErrIllegalTransition when the edge is not
// permitted.
func RequireTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return ErrIllegalTransition{From: from, To: to}
	}
	return nil
}

package trading

import "testing"

func TestCanTransition_PendingToOpenAllowed(t *testing.T) {
	if !CanTransition(StatusPending, StatusOpen) {
		t.Fatal("expected PENDING -> OPEN to be legal")
	}
}

func TestCanTransition_ClosedIsTerminal(t *testing.T) {
	if CanTransition(StatusClosed, StatusOpen) {
		t.Fatal("expected no transitions out of CLOSED")
	}
}

func TestCanTransition_OpenToClosingAllowed(t *testing.T) {
	if !CanTransition(StatusOpen, StatusClosing) {
		t.Fatal("expected OPEN -> CLOSING to be legal")
	}
}

func TestCanTransition_PendingToClosedDisallowed(t *testing.T) {
	if CanTransition(StatusPending, StatusClosed) {
		t.Fatal("expected PENDING -> CLOSED to be illegal; must pass through OPEN/CLOSING")
	}
}

func TestRequireTransition_ReturnsTypedError(t *testing.T) {
	err := RequireTransition(StatusPending, StatusClosed)
	if err == nil {
		t.Fatal("expected an error")
	}
	var illegal ErrIllegalTransition
	switch e := err.(type) {
	case ErrIllegalTransition:
		illegal = e
	default:
		t.Fatalf("expected ErrIllegalTransition, got %T", err)
	}
	if illegal.From != StatusPending || illegal.To != StatusClosed {
		t.Fatalf("unexpected transition fields: %+v", illegal)
	}
}

func TestCanTransition_AnyNonTerminalToCanceled(t *testing.T) {
	for _, from := range []Status{StatusPending, StatusOpen, StatusPartiallyFilled, StatusClosing} {
		if !CanTransition(from, StatusCanceled) {
			t.Fatalf("expected %s -> CANCELED to be legal", from)
		}
	}
}

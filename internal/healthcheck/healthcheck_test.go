package healthcheck

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

type fakePinger struct {
	err error
}

func (f fakePinger) Ping(ctx context.Context) error { return f.err }

func TestRun_RecordsReachableDatabase(t *testing.T) {
	j := New(fakePinger{}, zerolog.Nop())
	if err := j.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap := j.Latest()
	if !snap.DBReachable {
		t.Fatal("expected db reachable")
	}
	if snap.DBError != "" {
		t.Fatalf("expected no db error, got %q", snap.DBError)
	}
}

func TestRun_RecordsUnreachableDatabaseWithoutFailingTheJob(t *testing.T) {
	j := New(fakePinger{err: errors.New("connection refused")}, zerolog.Nop())
	if err := j.Run(context.Background()); err != nil {
		t.Fatalf("Run should never fail on a db ping error, got: %v", err)
	}
	snap := j.Latest()
	if snap.DBReachable {
		t.Fatal("expected db unreachable")
	}
	if snap.DBError == "" {
		t.Fatal("expected db error to be recorded")
	}
}

func TestName_ReturnsHealthCheck(t *testing.T) {
	j := New(fakePinger{}, zerolog.Nop())
	if j.Name() != "health_check" {
		t.Fatalf("expected health_check, got %s", j.Name())
	}
}

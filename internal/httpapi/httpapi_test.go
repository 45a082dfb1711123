package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantleaf/optrader/internal/healthcheck"
)

type fakeHealth struct {
	snap healthcheck.Snapshot
}

func (f fakeHealth) Latest() healthcheck.Snapshot { return f.snap }

func TestHandleHealthz_ReturnsOKWhenDBReachable(t *testing.T) {
	s := New(":0", fakeHealth{snap: healthcheck.Snapshot{Time: time.Now(), DBReachable: true, CPUPercent: 12.5}}, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestHandleHealthz_ReturnsServiceUnavailableWhenDBUnreachable(t *testing.T) {
	s := New(":0", fakeHealth{snap: healthcheck.Snapshot{Time: time.Now(), DBReachable: false, DBError: "timeout"}}, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestHandleMetrics_ServesPrometheusFormat(t *testing.T) {
	s := New(":0", fakeHealth{}, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

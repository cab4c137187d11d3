package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHealthzNotReadyByDefault(t *testing.T) {
	_, reg := NewMetrics()
	ready := &Readiness{}
	h := Handler(reg, ready)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("got status %d, want 503", rec.Code)
	}
}

func TestHealthzReadyAfterSetReady(t *testing.T) {
	_, reg := NewMetrics()
	ready := &Readiness{}
	ready.SetReady()
	h := Handler(reg, ready)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("got status %d, want 200", rec.Code)
	}
}

func TestHealthzNotReadyAfterSetNotReady(t *testing.T) {
	_, reg := NewMetrics()
	ready := &Readiness{}
	ready.SetReady()
	ready.SetNotReady()
	h := Handler(reg, ready)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("got status %d, want 503", rec.Code)
	}
}

func TestMetricsExposesRegisteredCounter(t *testing.T) {
	m, reg := NewMetrics()
	m.RequestsTotal.WithLabelValues("aliases", "hit").Inc()
	ready := &Readiness{}
	h := Handler(reg, ready)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "pfxrest_requests_total") {
		t.Errorf("metrics output missing pfxrest_requests_total: %s", rec.Body.String())
	}
}

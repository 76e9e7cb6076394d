package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestPrometheusHandler_ExportsSortedCounters(t *testing.T) {
	m := New()
	m.Inc(SignalsRelayed)
	m.Inc(SignalsRelayed)
	m.Inc(DropReasonPeerNotFound)

	rec := httptest.NewRecorder()
	PrometheusHandler(m).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	if rec.Code != 200 {
		t.Fatalf("status=%d, want 200", rec.Code)
	}
	if !strings.Contains(body, "# TYPE doceasy_signaling_events_total counter") {
		t.Fatalf("missing TYPE line in body:\n%s", body)
	}
	if !strings.Contains(body, `doceasy_signaling_events_total{event="signals_relayed"} 2`) {
		t.Fatalf("missing signals_relayed counter in body:\n%s", body)
	}
	if !strings.Contains(body, `doceasy_signaling_events_total{event="peer_not_found"} 1`) {
		t.Fatalf("missing peer_not_found counter in body:\n%s", body)
	}
	idxDrop := strings.Index(body, `event="peer_not_found"`)
	idxSignals := strings.Index(body, `event="signals_relayed"`)
	if idxDrop > idxSignals {
		t.Fatalf("expected counters sorted by event name")
	}
}

func TestPrometheusHandler_NilMetrics(t *testing.T) {
	rec := httptest.NewRecorder()
	PrometheusHandler(nil).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 500 {
		t.Fatalf("status=%d, want 500", rec.Code)
	}
}

func TestMetrics_NilReceiverIsSafe(t *testing.T) {
	var m *Metrics
	m.Inc(ConnectionsOpened)
	if got := m.Get(ConnectionsOpened); got != 0 {
		t.Fatalf("Get on nil Metrics=%d, want 0", got)
	}
	if snap := m.Snapshot(); snap != nil {
		t.Fatalf("Snapshot on nil Metrics=%v, want nil", snap)
	}
}

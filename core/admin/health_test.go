package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"scriptindex/core/chain"
	"scriptindex/core/metrics"
)

type fakePeers struct{ n int }

func (f fakePeers) PeerCount() int { return f.n }

func TestHealthzReportsSnapshot(t *testing.T) {
	hc, err := chain.NewMemHeaderChain(0)
	if err != nil {
		t.Fatalf("NewMemHeaderChain: %v", err)
	}
	if err := hc.Apply([]chain.HeaderEntry{{Height: 0}}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	h, err := New(hc, fakePeers{n: 2}, metrics.New(), filepath.Join(t.TempDir(), "health.log"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { h.Close() })

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var snap Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if snap.PeerCount != 2 {
		t.Fatalf("PeerCount = %d, want 2", snap.PeerCount)
	}
}

func TestMetricsRouteServesPrometheusFormat(t *testing.T) {
	h, err := New(nil, nil, metrics.New(), filepath.Join(t.TempDir(), "health.log"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { h.Close() })

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

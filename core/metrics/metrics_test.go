package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandlerServesRegisteredMetrics(t *testing.T) {
	r := New()
	r.ParseBlocks.WithLabelValues("indexed").Inc()
	r.Subscriptions.Set(3)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "parse_blocks_total") {
		t.Error("missing parse_blocks_total in scrape output")
	}
	if !strings.Contains(body, "electrum_subscriptions") {
		t.Error("missing electrum_subscriptions in scrape output")
	}
}

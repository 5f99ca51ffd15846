package prometheus

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/JeanGrijp/identity-gate/internal/core/domain"
)

func TestRecorder_CountsDecisions(t *testing.T) {
	r := NewRecorder(prometheus.NewRegistry())

	r.Decision("global", domain.Admit)
	r.Decision("global", domain.Admit)
	r.Decision("global", domain.Reject)
	r.Decision("sensitive", domain.Fault)
	r.StoreFault("sensitive")

	tests := []struct {
		limiter, outcome string
		want             float64
	}{
		{"global", "admit", 2},
		{"global", "reject", 1},
		{"sensitive", "fault", 1},
		{"sensitive", "admit", 0},
	}
	for _, tt := range tests {
		got := testutil.ToFloat64(r.decisions.WithLabelValues(tt.limiter, tt.outcome))
		if got != tt.want {
			t.Errorf("decisions{%s,%s} = %v, want %v", tt.limiter, tt.outcome, got, tt.want)
		}
	}

	if got := testutil.ToFloat64(r.storeFaults.WithLabelValues("sensitive")); got != 1 {
		t.Errorf("store faults = %v, want 1", got)
	}
}

func TestRecorder_Handler(t *testing.T) {
	r := NewRecorder(nil)
	r.ObserveStoreLatency("increment", 2*time.Millisecond)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "identity_gate_store_latency_seconds_count{op=\"increment\"} 1") {
		t.Fatalf("expected latency histogram in output, got:\n%s", body)
	}
	if !strings.Contains(string(body), "go_goroutines") {
		t.Fatal("expected runtime collectors in default registry")
	}
}

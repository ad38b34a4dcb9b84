package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHTTPMetrics_ObserveRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewHTTPMetricsWithRegisterer(reg)

	metrics.ObserveRequest("POST", "/orders", 201, 5*time.Millisecond)
	metrics.ObserveRequest("POST", "/orders", 201, 7*time.Millisecond)
	metrics.ObserveRequest("GET", "", 404, time.Millisecond)

	if got := testutil.ToFloat64(metrics.requests.WithLabelValues("POST", "/orders", "201")); got != 2 {
		t.Errorf("expected 2 created requests, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.requests.WithLabelValues("GET", "unmatched", "404")); got != 1 {
		t.Errorf("expected unmatched route label, got %v", got)
	}
	if got := testutil.CollectAndCount(metrics.duration); got != 2 {
		t.Errorf("expected 2 duration series, got %d", got)
	}
}

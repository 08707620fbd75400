package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsCountsRequests(t *testing.T) {
	r := newEngine()
	r.Use(Metrics())
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	before := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/ping", "200"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	after := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/ping", "200"))

	if after != before+1 {
		t.Fatalf("counter went %v -> %v, want +1", before, after)
	}
}

func TestGateCounters(t *testing.T) {
	before := testutil.ToFloat64(blockedSends.WithLabelValues("guest"))
	ObserveBlockedSend("guest")
	after := testutil.ToFloat64(blockedSends.WithLabelValues("guest"))
	if after != before+1 {
		t.Fatalf("blocked counter went %v -> %v", before, after)
	}

	base := testutil.ToFloat64(watchConns)
	WatchOpened()
	if got := testutil.ToFloat64(watchConns); got != base+1 {
		t.Fatalf("watch gauge = %v, want %v", got, base+1)
	}
	WatchClosed()
	if got := testutil.ToFloat64(watchConns); got != base {
		t.Fatalf("watch gauge = %v, want %v", got, base)
	}
}

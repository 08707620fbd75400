package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func limitedEngine(rps float64, burst int) *gin.Engine {
	r := newEngine()
	rl := NewRateLimiter(rps, burst, KeyByFingerprintOrIP())
	r.Use(rl.Handler())
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	return r
}

func TestRateLimitRefusesAfterBurst(t *testing.T) {
	r := limitedEngine(0.0001, 2)

	var codes []int
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		codes = append(codes, w.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Fatalf("codes = %v, first two should pass", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Fatalf("codes = %v, third should be limited", codes)
	}
}

func TestRateLimitKeysByFingerprint(t *testing.T) {
	r := limitedEngine(0.0001, 1)

	do := func(fp string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		if fp != "" {
			req.Header.Set(HeaderDeviceFingerprint, fp)
		}
		r.ServeHTTP(w, req)
		return w.Code
	}

	if do("fp-a") != http.StatusOK {
		t.Fatal("first fp-a request limited")
	}
	if do("fp-a") != http.StatusTooManyRequests {
		t.Fatal("second fp-a request not limited")
	}
	// A different fingerprint from the same IP has its own bucket.
	if do("fp-b") != http.StatusOK {
		t.Fatal("fp-b shared fp-a's bucket")
	}
}

func TestRateLimitRetryAfterHeader(t *testing.T) {
	r := limitedEngine(0.0001, 1)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if w.Header().Get("Retry-After") != "1" {
		t.Fatalf("Retry-After = %q", w.Header().Get("Retry-After"))
	}
}

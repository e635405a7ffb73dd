package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

func TestParsePolicy(t *testing.T) {
	cases := []struct {
		policy string
		limit  rate.Limit
		burst  int
	}{
		{"30 per minute", rate.Every(2 * time.Second), 30},
		{"1 per second", rate.Every(time.Second), 1},
		{"5 per hour", rate.Every(12 * time.Minute), 5},
		{"2 per day", rate.Every(12 * time.Hour), 2},
	}
	for _, c := range cases {
		limit, burst, err := ParsePolicy(c.policy)
		if err != nil {
			t.Fatalf("ParsePolicy(%q): %v", c.policy, err)
		}
		if limit != c.limit || burst != c.burst {
			t.Fatalf("ParsePolicy(%q) = (%v, %d), want (%v, %d)", c.policy, limit, burst, c.limit, c.burst)
		}
	}

	for _, bad := range []string{"", "per minute", "ten per minute", "5 per fortnight", "0 per minute", "-1 per hour"} {
		if _, _, err := ParsePolicy(bad); err == nil {
			t.Fatalf("ParsePolicy(%q): expected error", bad)
		}
	}
}

func newTestRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	chain := append([]gin.HandlerFunc{}, handlers...)
	chain = append(chain, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	r.GET("/t", chain...)
	return r
}

func TestRequestID_GeneratesAndEchoes(t *testing.T) {
	r := newTestRouter(RequestID())

	// Generated when absent.
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/t", nil))
	if rec.Header().Get(HeaderRequestID) == "" {
		t.Fatalf("expected a generated request id header")
	}

	// Echoed when supplied.
	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/t", nil)
	req.Header.Set(HeaderRequestID, "caller-id-1")
	r.ServeHTTP(rec, req)
	if got := rec.Header().Get(HeaderRequestID); got != "caller-id-1" {
		t.Fatalf("expected echoed request id, got %q", got)
	}
}

func TestRateLimit_RejectsWithTypedEnvelope(t *testing.T) {
	r := newTestRouter(RequestID(), RateLimit("2 per hour", true))

	req := func() *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		httpReq := httptest.NewRequest(http.MethodGet, "/t", nil)
		httpReq.RemoteAddr = "10.1.2.3:4567"
		r.ServeHTTP(rec, httpReq)
		return rec
	}

	if rec := req(); rec.Code != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", rec.Code)
	}
	if rec := req(); rec.Code != http.StatusOK {
		t.Fatalf("second request: expected 200, got %d", rec.Code)
	}

	rec := req()
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third request: expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
	if got := rec.Header().Get("X-RateLimit-Limit"); got != "2 per hour" {
		t.Fatalf("expected policy header, got %q", got)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("parse body: %v", err)
	}
	if body["error_code"] != "RATE_LIMITED" {
		t.Fatalf("expected RATE_LIMITED envelope, got %v", body)
	}
	if body["request_id"] == nil || body["request_id"] == "" {
		t.Fatalf("expected request id in envelope, got %v", body)
	}
}

func TestRateLimit_KeysByClientIP(t *testing.T) {
	r := newTestRouter(RateLimit("1 per hour", true))

	hit := func(addr string) int {
		rec := httptest.NewRecorder()
		httpReq := httptest.NewRequest(http.MethodGet, "/t", nil)
		httpReq.RemoteAddr = addr
		r.ServeHTTP(rec, httpReq)
		return rec.Code
	}

	if code := hit("10.0.0.1:1000"); code != http.StatusOK {
		t.Fatalf("first ip: expected 200, got %d", code)
	}
	if code := hit("10.0.0.1:1001"); code != http.StatusTooManyRequests {
		t.Fatalf("first ip again: expected 429, got %d", code)
	}
	if code := hit("10.0.0.2:1000"); code != http.StatusOK {
		t.Fatalf("second ip: expected its own bucket, got %d", code)
	}
}

func TestRateLimit_DisabledPassesThrough(t *testing.T) {
	r := newTestRouter(RateLimit("1 per hour", false))
	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/t", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200 with limits disabled, got %d", i, rec.Code)
		}
	}
}

func TestRecovery_ReturnsTypedEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Recovery(), RequestID())
	r.GET("/boom", func(c *gin.Context) {
		panic("kaboom")
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("parse body: %v", err)
	}
	if body["error_code"] != "STREAM_ERROR" {
		t.Fatalf("expected typed envelope, got %v", body)
	}
}

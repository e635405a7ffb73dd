package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/orconsole/server/internal/apierr"
)

// ParsePolicy turns a policy string such as "30 per minute" into a token
// bucket rate and burst. The count doubles as the burst so a quiet client
// can spend its whole window at once.
func ParsePolicy(policy string) (rate.Limit, int, error) {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(policy)))
	if len(fields) != 3 || fields[1] != "per" {
		return 0, 0, fmt.Errorf("invalid rate limit policy %q", policy)
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil || n <= 0 {
		return 0, 0, fmt.Errorf("invalid rate limit count in %q", policy)
	}
	var window time.Duration
	switch fields[2] {
	case "second":
		window = time.Second
	case "minute":
		window = time.Minute
	case "hour":
		window = time.Hour
	case "day":
		window = 24 * time.Hour
	default:
		return 0, 0, fmt.Errorf("invalid rate limit unit in %q", policy)
	}
	return rate.Every(window / time.Duration(n)), n, nil
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipLimiter hands out one token bucket per client IP and forgets buckets
// idle for over an hour.
type ipLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
}

func newIPLimiter(limit rate.Limit, burst int) *ipLimiter {
	return &ipLimiter{visitors: make(map[string]*visitor), limit: limit, burst: burst}
}

func (l *ipLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[ip] = v
		if len(l.visitors) > 1024 {
			l.prune()
		}
	}
	v.lastSeen = time.Now()
	return v.limiter.Allow()
}

func (l *ipLimiter) prune() {
	cutoff := time.Now().Add(-time.Hour)
	for ip, v := range l.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(l.visitors, ip)
		}
	}
}

// RateLimit enforces a per-IP policy on the routes it wraps. Rejections
// carry Retry-After and X-RateLimit-Limit headers alongside the JSON body.
// An unparsable policy panics at startup rather than running unlimited.
func RateLimit(policy string, enabled bool) gin.HandlerFunc {
	if !enabled {
		return func(c *gin.Context) { c.Next() }
	}
	limit, burst, err := ParsePolicy(policy)
	if err != nil {
		panic(err)
	}
	limiter := newIPLimiter(limit, burst)
	retryAfter := retryAfterSeconds(limit)

	return func(c *gin.Context) {
		if limiter.allow(c.ClientIP()) {
			c.Next()
			return
		}
		apiErr := apierr.RateLimited(policy, retryAfter)
		c.Header("Retry-After", strconv.Itoa(retryAfter))
		c.Header("X-RateLimit-Limit", policy)
		c.AbortWithStatusJSON(http.StatusTooManyRequests, apiErr.Envelope(GetRequestID(c)))
	}
}

// retryAfterSeconds is the refill interval rounded up to whole seconds.
func retryAfterSeconds(limit rate.Limit) int {
	if limit <= 0 {
		return 1
	}
	sec := int(1 / float64(limit))
	if sec < 1 {
		sec = 1
	}
	return sec
}

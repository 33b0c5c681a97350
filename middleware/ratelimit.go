package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	limiterSweepEvery = 5 * time.Minute
	limiterIdleTTL    = 10 * time.Minute
)

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type limiterSet struct {
	mu       sync.Mutex
	limiters map[string]*ipLimiter
	r        rate.Limit
	b        int
}

func (s *limiterSet) get(ip string, now time.Time) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	il, ok := s.limiters[ip]
	if !ok {
		il = &ipLimiter{limiter: rate.NewLimiter(s.r, s.b)}
		s.limiters[ip] = il
	}
	il.lastSeen = now
	return il.limiter
}

func (s *limiterSet) sweep(cutoff time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ip, il := range s.limiters {
		if il.lastSeen.Before(cutoff) {
			delete(s.limiters, ip)
		}
	}
}

// retryAfter is the whole number of seconds until lim admits one more
// request, at least 1.
func retryAfter(lim *rate.Limiter, now time.Time) int {
	res := lim.ReserveN(now, 1)
	if !res.OK() {
		return 1
	}
	d := res.DelayFrom(now)
	res.CancelAt(now)
	return RetryAfterSeconds(d)
}

// RetryAfterSeconds rounds d up to whole seconds for a Retry-After header,
// never below 1.
func RetryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}

// RateLimit provides per-IP token-bucket rate limiting.
// r = requests per second, b = burst size; r <= 0 disables limiting. Idle
// entries are swept until ctx is done.
func RateLimit(ctx context.Context, r rate.Limit, b int) gin.HandlerFunc {
	if r <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	set := &limiterSet{limiters: make(map[string]*ipLimiter), r: r, b: b}

	go func() {
		ticker := time.NewTicker(limiterSweepEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				set.sweep(time.Now().Add(-limiterIdleTTL))
			}
		}
	}()

	return func(c *gin.Context) {
		now := time.Now()
		lim := set.get(c.ClientIP(), now)
		if !lim.AllowN(now, 1) {
			c.Header("Retry-After", strconv.Itoa(retryAfter(lim, now)))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded", "code": "RateLimited"})
			return
		}
		c.Next()
	}
}
